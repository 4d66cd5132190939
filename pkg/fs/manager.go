package fs

import (
	"context"
	"fmt"
	"sync"

	"github.com/faredit/faredit/pkg/event"
	"github.com/faredit/faredit/pkg/fserr"
	"github.com/faredit/faredit/pkg/models"
)

// Manager routes every contract call to the single active backend. It is
// constructed once per session and passed by reference; there is no
// process-wide instance.
//
// The selector only moves to remote after a successful connect, and falls
// back to local unconditionally on disconnect.
type Manager struct {
	local  *LocalFS
	remote *RemoteFS
	events *event.Emitter

	mu     sync.Mutex
	active models.BackendKind
}

// FullStatus is a snapshot of the manager and both backends.
type FullStatus struct {
	Active models.BackendKind    `json:"active"`
	Local  models.ConnectionInfo `json:"local"`
	Remote models.ConnectionInfo `json:"remote"`
}

// NewManager wires the two backends behind one selector, starting on local.
// The emitter may be nil.
func NewManager(local *LocalFS, remote *RemoteFS, events *event.Emitter) *Manager {
	return &Manager{
		local:  local,
		remote: remote,
		active: models.BackendLocal,
		events: events,
	}
}

// current returns the backend matching the selector. Every contract call
// goes through this single indirection point; bypassing it would make
// backend switching unsafe and unobservable.
func (m *Manager) current() FileSystem {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == models.BackendRemote {
		return m.remote
	}
	return m.local
}

// Active returns the current selector value.
func (m *Manager) Active() models.BackendKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// SwitchToLocal always succeeds.
func (m *Manager) SwitchToLocal() {
	m.setActive(models.BackendLocal)
}

// SwitchToRemote fails unless the remote backend already reports connected.
func (m *Manager) SwitchToRemote() error {
	if !m.remote.Connected() {
		return fmt.Errorf("switch to remote before connect: %w", fserr.ErrPrecondition)
	}
	m.setActive(models.BackendRemote)
	return nil
}

func (m *Manager) setActive(kind models.BackendKind) {
	m.mu.Lock()
	changed := m.active != kind
	m.active = kind
	m.mu.Unlock()
	if changed && m.events != nil {
		m.events.Emit(event.BackendSwitchedEvent{Active: string(kind)})
	}
}

// ConnectRemote connects the remote backend and, only on success, flips the
// selector to remote.
func (m *Manager) ConnectRemote(ctx context.Context, creds models.Credentials) error {
	if err := m.remote.Connect(ctx, creds); err != nil {
		return err
	}
	m.setActive(models.BackendRemote)
	return nil
}

// DisconnectRemote tears down the remote backend and reverts the selector to
// local regardless of whether the broker acknowledged.
func (m *Manager) DisconnectRemote(ctx context.Context) error {
	err := m.remote.Disconnect(ctx)
	m.setActive(models.BackendLocal)
	return err
}

// Contract delegation — pure pass-through to the active backend.

func (m *Manager) CurrentPath(ctx context.Context) string {
	return m.current().CurrentPath(ctx)
}

func (m *Manager) ListDir(ctx context.Context, path string) ([]models.Entry, error) {
	return m.current().ListDir(ctx, path)
}

func (m *Manager) ChangeDir(ctx context.Context, path string) error {
	return m.current().ChangeDir(ctx, path)
}

func (m *Manager) ReadFile(ctx context.Context, path string) (string, error) {
	return m.current().ReadFile(ctx, path)
}

func (m *Manager) WriteFile(ctx context.Context, path string, content string) error {
	return m.current().WriteFile(ctx, path, content)
}

func (m *Manager) Connected() bool { return m.current().Connected() }

func (m *Manager) ConnectionInfo() models.ConnectionInfo {
	return m.current().ConnectionInfo()
}

// Execute runs a command on the remote host; it is only meaningful while the
// remote backend is active.
func (m *Manager) Execute(ctx context.Context, command string) (int, error) {
	if m.Active() != models.BackendRemote {
		return 0, fmt.Errorf("execute on local backend: %w", fserr.ErrUnsupported)
	}
	return m.remote.Execute(ctx, command)
}

// CommandOutput returns the live output stream; remote backend only.
func (m *Manager) CommandOutput() (<-chan models.OutputChunk, error) {
	if m.Active() != models.BackendRemote {
		return nil, fmt.Errorf("command output on local backend: %w", fserr.ErrUnsupported)
	}
	return m.remote.Output(), nil
}

// FullStatus reports the selector and both backends' connection info.
func (m *Manager) FullStatus() FullStatus {
	return FullStatus{
		Active: m.Active(),
		Local:  m.local.ConnectionInfo(),
		Remote: m.remote.ConnectionInfo(),
	}
}

var _ FileSystem = (*Manager)(nil)
