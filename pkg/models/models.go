package models

import (
	"errors"
	"strings"
	"time"
)

// BackendKind identifies which filesystem backend a call is routed to.
type BackendKind string

const (
	BackendLocal  BackendKind = "local"
	BackendRemote BackendKind = "remote"
)

// Entry describes one file or directory returned by a listing.
//
// It is an immutable snapshot, not live-tracked. Exactly one of IsFile and
// IsDir is true. Size is negative when the entry's metadata could not be
// read (the entry is still listed, classified as a file of unknown size).
//
// Path semantics:
//   - Paths use forward slashes (POSIX-style).
//   - All paths are absolute (start with '/').
type Entry struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	IsFile  bool      `json:"is_file"`
	IsDir   bool      `json:"is_dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Credentials carries everything needed for one remote connect attempt.
//
// The transport holds it only for the duration of the connect call and for
// reporting connection metadata; persistence belongs to the vault.
type Credentials struct {
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	Password    string `json:"password,omitempty"`
	PrivateKey  string `json:"private_key,omitempty"`
	InitialPath string `json:"initial_path,omitempty"`
}

var (
	ErrNoHost     = errors.New("credentials: host is required")
	ErrNoUsername = errors.New("credentials: username is required")
	ErrNoAuth     = errors.New("credentials: exactly one of password or private key is required")
)

// Validate checks the credentials before a connect attempt is accepted.
// Exactly one of Password and PrivateKey must be supplied.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return ErrNoHost
	}
	if strings.TrimSpace(c.Username) == "" {
		return ErrNoUsername
	}
	hasPassword := c.Password != ""
	hasKey := strings.TrimSpace(c.PrivateKey) != ""
	if hasPassword == hasKey {
		return ErrNoAuth
	}
	return nil
}

// ConnectionDetails describes an established remote connection.
type ConnectionDetails struct {
	Host        string `json:"host"`
	Username    string `json:"username"`
	CurrentPath string `json:"current_path"`
}

// ConnectionInfo is derived from backend state on demand; it is never cached
// authoritatively outside the owning backend.
type ConnectionInfo struct {
	Connected bool               `json:"connected"`
	Source    BackendKind        `json:"source"`
	Details   *ConnectionDetails `json:"details,omitempty"`
}

// OutputKind distinguishes the two command output streams.
type OutputKind string

const (
	OutputStdout OutputKind = "stdout"
	OutputStderr OutputKind = "stderr"
)

// OutputChunk is one piece of live command output. Chunks arrive in emission
// order for the lifetime of a connection; they are not scoped to a single
// command.
type OutputChunk struct {
	Kind OutputKind `json:"kind"`
	Data string     `json:"data"`
}

// Response is the envelope for broker HTTP endpoints.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}
