package fs

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/faredit/faredit/pkg/fserr"
	"github.com/faredit/faredit/pkg/models"
)

// RemoteFS implements FileSystem by delegating every operation to the broker
// channel. It is a thin adapter: connectivity is checked before each call so
// an unconnected backend fails with NotConnected without touching the
// channel, and every channel failure is wrapped with the operation and path
// while keeping the underlying kind intact for errors.Is.
type RemoteFS struct {
	channel Channel

	mu          sync.Mutex
	currentPath string
}

// NewRemoteFS builds a remote backend over an established or future channel.
func NewRemoteFS(channel Channel) *RemoteFS {
	return &RemoteFS{channel: channel, currentPath: "/"}
}

// Connect validates the credentials, establishes the channel, and seeds the
// current path from the credentials' initial path or the broker-reported
// starting directory.
func (r *RemoteFS) Connect(ctx context.Context, creds models.Credentials) error {
	initialPath, err := r.channel.Connect(ctx, creds)
	if err != nil {
		return err
	}
	if strings.TrimSpace(initialPath) == "" {
		initialPath = "/"
	}

	r.mu.Lock()
	r.currentPath = initialPath
	r.mu.Unlock()
	return nil
}

// Disconnect tears the channel down (best-effort ack inside the transport)
// and resets the current path.
func (r *RemoteFS) Disconnect(ctx context.Context) error {
	err := r.channel.Disconnect(ctx)

	r.mu.Lock()
	r.currentPath = "/"
	r.mu.Unlock()
	return err
}

func (r *RemoteFS) CurrentPath(ctx context.Context) string {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.currentPath == "" {
		return "/"
	}
	return r.currentPath
}

func (r *RemoteFS) ListDir(ctx context.Context, p string) ([]models.Entry, error) {
	if strings.TrimSpace(p) == "" {
		p = r.CurrentPath(ctx)
	}
	if !r.channel.Connected() {
		return nil, fmt.Errorf("list directory %s: %w", p, fserr.ErrNotConnected)
	}
	entries, err := r.channel.ListDir(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("list directory %s: %w", p, err)
	}
	// The broker sorts; enforce the ordering contract regardless.
	SortEntries(entries)
	return entries, nil
}

// ChangeDir validates the target by listing it; only on success does the
// current path change.
func (r *RemoteFS) ChangeDir(ctx context.Context, p string) error {
	if !r.channel.Connected() {
		return fmt.Errorf("change directory %s: %w", p, fserr.ErrNotConnected)
	}
	if _, err := r.channel.ListDir(ctx, p); err != nil {
		return fmt.Errorf("change directory %s: %w", p, err)
	}

	r.mu.Lock()
	r.currentPath = p
	r.mu.Unlock()
	return nil
}

func (r *RemoteFS) ReadFile(ctx context.Context, p string) (string, error) {
	if !r.channel.Connected() {
		return "", fmt.Errorf("read file %s: %w", p, fserr.ErrNotConnected)
	}
	content, err := r.channel.ReadFile(ctx, p)
	if err != nil {
		return "", fmt.Errorf("read file %s: %w", p, err)
	}
	return content, nil
}

func (r *RemoteFS) WriteFile(ctx context.Context, p string, content string) error {
	if !r.channel.Connected() {
		return fmt.Errorf("write file %s: %w", p, fserr.ErrNotConnected)
	}
	if err := r.channel.WriteFile(ctx, p, content); err != nil {
		return fmt.Errorf("write file %s: %w", p, err)
	}
	return nil
}

// Execute runs a command on the remote host. Live output is delivered on
// Output(), independent of the completion reply.
func (r *RemoteFS) Execute(ctx context.Context, command string) (int, error) {
	if !r.channel.Connected() {
		return 0, fmt.Errorf("execute %q: %w", command, fserr.ErrNotConnected)
	}
	code, err := r.channel.Execute(ctx, command)
	if err != nil {
		return 0, fmt.Errorf("execute %q: %w", command, err)
	}
	return code, nil
}

// Output is the session-scoped command output stream.
func (r *RemoteFS) Output() <-chan models.OutputChunk {
	return r.channel.Output()
}

func (r *RemoteFS) Connected() bool { return r.channel.Connected() }

func (r *RemoteFS) ConnectionInfo() models.ConnectionInfo {
	info := models.ConnectionInfo{Source: models.BackendRemote}
	if !r.channel.Connected() {
		return info
	}
	host, username := r.channel.Remote()
	info.Connected = true
	info.Details = &models.ConnectionDetails{
		Host:        host,
		Username:    username,
		CurrentPath: r.CurrentPath(context.Background()),
	}
	return info
}

var _ FileSystem = (*RemoteFS)(nil)
