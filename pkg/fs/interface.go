// Package fs provides one uniform file-system abstraction over two backends:
// the local device and a remote machine reachable through the broker channel.
package fs

import (
	"context"
	"sort"

	"github.com/faredit/faredit/pkg/models"
)

// FileSystem is the capability contract both backends implement. All methods
// accept absolute POSIX paths; listing methods accept "" for the current
// path.
//
// Listing order is deterministic: directories before files, each group
// sorted case-sensitively by name.
type FileSystem interface {
	// CurrentPath never fails; it returns the backend's notion of the
	// current directory, a root-like default if unset.
	CurrentPath(ctx context.Context) string

	// ListDir lists path, or the current path when path is empty.
	ListDir(ctx context.Context, path string) ([]models.Entry, error)

	// ChangeDir validates path by listing it first and only then mutates
	// the current-path state.
	ChangeDir(ctx context.Context, path string) error

	// ReadFile returns the full textual content of path.
	ReadFile(ctx context.Context, path string) (string, error)

	// WriteFile overwrites or creates path with content.
	WriteFile(ctx context.Context, path string, content string) error

	// Connected and ConnectionInfo are pure status queries and never fail.
	Connected() bool
	ConnectionInfo() models.ConnectionInfo
}

// Channel is what the remote backend needs from the transport. Implemented
// by transport.Transport; tests substitute fakes.
type Channel interface {
	Connect(ctx context.Context, creds models.Credentials) (initialPath string, err error)
	Disconnect(ctx context.Context) error
	Connected() bool
	Remote() (host string, username string)

	ListDir(ctx context.Context, path string) ([]models.Entry, error)
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path string, content string) error
	Execute(ctx context.Context, command string) (int, error)
	Output() <-chan models.OutputChunk
}

// SortEntries orders a listing in place: directories first, then
// case-sensitive lexicographic by name within each group.
func SortEntries(entries []models.Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir != entries[j].IsDir {
			return entries[i].IsDir
		}
		return entries[i].Name < entries[j].Name
	})
}
