// Package transport owns the persistent websocket channel between the client
// and the broker process that performs the real remote operations.
//
// One Transport is one remote connection. All requests share the single
// channel; each request registers a correlation record keyed by a fresh UUID
// before it is sent, and the record is retired the moment the matching
// success or error reply arrives or the per-operation deadline elapses. A
// reply arriving after its deadline finds no record and is dropped.
//
// Command output is not part of the request/reply path: the broker pushes
// command-output events at any time and the transport forwards them, in
// emission order, to a session-scoped channel.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/faredit/faredit/pkg/config"
	"github.com/faredit/faredit/pkg/event"
	"github.com/faredit/faredit/pkg/fserr"
	"github.com/faredit/faredit/pkg/models"
	"github.com/faredit/faredit/pkg/protocol"
)

// State is the coarse connection state. Operations other than connect are
// only accepted in StateConnected; operations do not change the state.
type State string

const (
	StateDisconnected   State = "disconnected"
	StateConnecting     State = "connecting"
	StateAuthenticating State = "authenticating"
	StateConnected      State = "connected"
)

// Timeouts bounds each operation independently. Zero fields fall back to the
// package defaults from pkg/config.
type Timeouts struct {
	Connect    time.Duration // channel establishment (websocket handshake)
	Auth       time.Duration // connect request awaiting connected/connect-error
	List       time.Duration
	Read       time.Duration
	Write      time.Duration
	Exec       time.Duration
	Disconnect time.Duration // best-effort wait for the disconnect ack
}

// TimeoutsFromConfig picks the per-operation timeouts out of the app config.
func TimeoutsFromConfig(cfg *config.AppConfig) Timeouts {
	return Timeouts{
		Connect:    cfg.ConnectTimeout(),
		Auth:       cfg.AuthTimeout(),
		List:       cfg.ListTimeout(),
		Read:       cfg.ReadTimeout(),
		Write:      cfg.WriteTimeout(),
		Exec:       cfg.ExecTimeout(),
		Disconnect: cfg.DisconnectTimeout(),
	}
}

func (t Timeouts) withDefaults() Timeouts {
	def := func(v *time.Duration, d time.Duration) {
		if *v <= 0 {
			*v = d
		}
	}
	def(&t.Connect, config.DefaultConnectTimeout)
	def(&t.Auth, config.DefaultAuthTimeout)
	def(&t.List, config.DefaultListTimeout)
	def(&t.Read, config.DefaultReadTimeout)
	def(&t.Write, config.DefaultWriteTimeout)
	def(&t.Exec, config.DefaultExecTimeout)
	def(&t.Disconnect, config.DefaultDisconnectTimeout)
	return t
}

// outputBuffer is the capacity of the command output channel. When the
// consumer falls behind, chunks are dropped rather than stalling the read
// loop (same policy as the broker's own push path).
const outputBuffer = 64

type pendingCall struct {
	successEvent string
	errorEvent   string
	ch           chan callResult // buffered, exactly one result
}

type callResult struct {
	data json.RawMessage
	err  error
}

// Transport is the client end of the broker channel.
type Transport struct {
	url      string
	timeouts Timeouts
	logger   *slog.Logger
	events   *event.Emitter

	mu      sync.Mutex
	state   State
	conn    *websocket.Conn
	pending map[string]*pendingCall
	done    chan struct{} // closed on teardown of the current channel

	writeMu sync.Mutex

	host     string
	username string

	output chan models.OutputChunk
}

// New creates a disconnected transport for the given broker URL.
// The emitter may be nil when nobody observes state changes.
func New(url string, timeouts Timeouts, logger *slog.Logger, events *event.Emitter) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		url:      url,
		timeouts: timeouts.withDefaults(),
		logger:   logger,
		events:   events,
		state:    StateDisconnected,
		output:   make(chan models.OutputChunk, outputBuffer),
	}
}

// State returns the coarse connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Connected reports whether the channel is established and authenticated.
// A channel lost to a network drop is observable here without an explicit
// disconnect call.
func (t *Transport) Connected() bool {
	return t.State() == StateConnected
}

// Remote returns the host and username of the current connection; both are
// empty when disconnected.
func (t *Transport) Remote() (host string, username string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != StateConnected {
		return "", ""
	}
	return t.host, t.username
}

// Output is the session-scoped stream of command output chunks, in emission
// order. It is not scoped to a single command; interleaving across
// concurrently executed commands is the caller's concern.
func (t *Transport) Output() <-chan models.OutputChunk {
	return t.output
}

// Connect establishes the channel in two phases: the websocket handshake
// bounded by the connect timeout, then the connect request carrying the
// credentials bounded by the auth timeout. Either phase failing tears the
// channel down and returns a descriptive error; no retry is attempted here.
//
// On success it returns the session's starting directory as reported by the
// broker.
func (t *Transport) Connect(ctx context.Context, creds models.Credentials) (string, error) {
	if err := creds.Validate(); err != nil {
		return "", err
	}

	t.mu.Lock()
	if t.state != StateDisconnected {
		state := t.state
		t.mu.Unlock()
		return "", fmt.Errorf("connect while %s: %w", state, fserr.ErrPrecondition)
	}
	t.state = StateConnecting
	t.mu.Unlock()
	t.emitState(StateConnecting, creds.Host)

	dialer := &websocket.Dialer{HandshakeTimeout: t.timeouts.Connect}
	conn, _, err := dialer.DialContext(ctx, t.url, nil)
	if err != nil {
		t.setDisconnected()
		return "", fmt.Errorf("dial broker %s: %s: %w", t.url, err, fserr.ErrTransport)
	}

	done := make(chan struct{})
	t.mu.Lock()
	t.conn = conn
	t.pending = make(map[string]*pendingCall)
	t.done = done
	t.state = StateAuthenticating
	t.mu.Unlock()
	t.emitState(StateAuthenticating, creds.Host)

	go t.readLoop(conn, done)

	data, err := t.roundTrip(ctx, protocol.EventConnect, protocol.ConnectRequest{Credentials: creds}, t.timeouts.Auth)
	if err != nil {
		t.teardown()
		return "", fmt.Errorf("connect to %s@%s: %w", creds.Username, creds.Host, err)
	}

	var payload protocol.ConnectedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.teardown()
		return "", fmt.Errorf("decode connected reply: %s: %w", err, fserr.ErrTransport)
	}

	t.mu.Lock()
	t.state = StateConnected
	t.host = creds.Host
	t.username = creds.Username
	t.mu.Unlock()
	t.emitState(StateConnected, creds.Host)

	return payload.CurrentPath, nil
}

// Disconnect sends a disconnect request and waits, bounded, for the ack.
// Teardown proceeds whether or not the broker acknowledges. Disconnecting an
// already disconnected transport is a no-op.
func (t *Transport) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	if t.state != StateConnected {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	if _, err := t.roundTrip(ctx, protocol.EventDisconnect, nil, t.timeouts.Disconnect); err != nil {
		t.logger.Warn("disconnect not acknowledged, tearing down anyway", "error", err)
	}
	t.teardown()
	return nil
}

// ListDir lists a remote directory. Entries arrive pre-sorted by the broker
// (directories first, then case-sensitive lexicographic by name).
func (t *Transport) ListDir(ctx context.Context, path string) ([]models.Entry, error) {
	data, err := t.call(ctx, protocol.EventListDir, protocol.ListDirRequest{Path: path}, t.timeouts.List)
	if err != nil {
		return nil, err
	}
	var payload protocol.ListDirPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode list reply: %s: %w", err, fserr.ErrTransport)
	}
	return payload.Entries, nil
}

// ReadFile returns the full textual content of a remote file.
func (t *Transport) ReadFile(ctx context.Context, path string) (string, error) {
	data, err := t.call(ctx, protocol.EventReadFile, protocol.ReadFileRequest{Path: path}, t.timeouts.Read)
	if err != nil {
		return "", err
	}
	var payload protocol.ReadFilePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("decode read reply: %s: %w", err, fserr.ErrTransport)
	}
	return payload.Content, nil
}

// WriteFile overwrites or creates a remote file with the given content.
func (t *Transport) WriteFile(ctx context.Context, path string, content string) error {
	_, err := t.call(ctx, protocol.EventWriteFile, protocol.WriteFileRequest{Path: path, Content: content}, t.timeouts.Write)
	return err
}

// Execute runs a shell command on the remote host and returns its exit code.
// Live output arrives on Output() independently of this call.
func (t *Transport) Execute(ctx context.Context, command string) (int, error) {
	data, err := t.call(ctx, protocol.EventExecute, protocol.ExecuteRequest{Command: command}, t.timeouts.Exec)
	if err != nil {
		return 0, err
	}
	var payload protocol.ExecutePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, fmt.Errorf("decode execute reply: %s: %w", err, fserr.ErrTransport)
	}
	return payload.ExitCode, nil
}

// call is roundTrip gated on the Connected state. Every contract operation
// goes through here; only connect and disconnect use roundTrip directly.
func (t *Transport) call(ctx context.Context, eventName string, payload any, timeout time.Duration) (json.RawMessage, error) {
	t.mu.Lock()
	if t.state != StateConnected {
		t.mu.Unlock()
		return nil, fserr.ErrNotConnected
	}
	t.mu.Unlock()
	return t.roundTrip(ctx, eventName, payload, timeout)
}

// roundTrip sends one request and waits for its correlated reply or the
// deadline. The pending record is registered before the send so a fast reply
// cannot race the registration, and removed on every exit path so a late
// reply finds nothing to resolve.
func (t *Transport) roundTrip(ctx context.Context, eventName string, payload any, timeout time.Duration) (json.RawMessage, error) {
	id := uuid.New().String()
	pc := &pendingCall{
		successEvent: protocol.SuccessReply(eventName),
		errorEvent:   protocol.ErrorReply(eventName),
		ch:           make(chan callResult, 1),
	}

	t.mu.Lock()
	if t.conn == nil {
		t.mu.Unlock()
		return nil, fserr.ErrNotConnected
	}
	conn := t.conn
	done := t.done
	t.pending[id] = pc
	t.mu.Unlock()

	msg, err := protocol.NewMessage(id, eventName, payload)
	if err != nil {
		t.dropPending(id)
		return nil, fmt.Errorf("encode %s request: %w", eventName, err)
	}

	t.writeMu.Lock()
	err = conn.WriteJSON(msg)
	t.writeMu.Unlock()
	if err != nil {
		t.dropPending(id)
		return nil, fmt.Errorf("send %s request: %s: %w", eventName, err, fserr.ErrTransport)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-pc.ch:
		return res.data, res.err
	case <-timer.C:
		t.dropPending(id)
		return nil, fmt.Errorf("%s: no reply within %s: %w", eventName, timeout, fserr.ErrTimeout)
	case <-done:
		t.dropPending(id)
		return nil, fmt.Errorf("%s: connection lost: %w", eventName, fserr.ErrTransport)
	case <-ctx.Done():
		t.dropPending(id)
		return nil, ctx.Err()
	}
}

func (t *Transport) dropPending(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// readLoop is the single reader of the channel. It dispatches replies to
// their pending records and output events to the output channel; anything
// else (late replies included) is dropped. A read error means the channel is
// gone and flips the transport to disconnected.
func (t *Transport) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		var msg protocol.Message
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-done:
				// Deliberate teardown, nothing to report.
			default:
				t.logger.Warn("channel lost", "error", err)
				t.teardown()
			}
			return
		}

		if msg.Event == protocol.EventCommandOutput {
			var payload protocol.OutputPayload
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				t.logger.Warn("bad command-output payload", "error", err)
				continue
			}
			select {
			case t.output <- models.OutputChunk{Kind: payload.Kind, Data: payload.Data}:
			default:
				t.logger.Warn("output consumer behind, dropping chunk")
			}
			continue
		}

		if msg.ID == "" {
			t.logger.Debug("unsolicited event dropped", "event", msg.Event)
			continue
		}

		t.mu.Lock()
		pc, ok := t.pending[msg.ID]
		if ok {
			delete(t.pending, msg.ID)
		}
		t.mu.Unlock()
		if !ok {
			// Late reply after timeout, or a reply we never asked for.
			t.logger.Debug("reply with no pending request dropped", "event", msg.Event, "id", msg.ID)
			continue
		}

		switch msg.Event {
		case pc.successEvent:
			pc.ch <- callResult{data: msg.Data}
		case pc.errorEvent:
			var payload protocol.ErrorPayload
			if err := json.Unmarshal(msg.Data, &payload); err != nil {
				pc.ch <- callResult{err: fmt.Errorf("undecodable error reply: %w", fserr.ErrTransport)}
				continue
			}
			pc.ch <- callResult{err: fserr.FromCode(payload.Code, payload.Message)}
		default:
			pc.ch <- callResult{err: fmt.Errorf("reply %s does not match request: %w", msg.Event, fserr.ErrTransport)}
		}
	}
}

// teardown releases the channel and fails every pending call. Safe to call
// from any goroutine and idempotent per connection.
func (t *Transport) teardown() {
	t.mu.Lock()
	if t.state == StateDisconnected && t.conn == nil {
		t.mu.Unlock()
		return
	}
	conn := t.conn
	done := t.done
	pending := t.pending
	t.conn = nil
	t.done = nil
	t.pending = nil
	t.state = StateDisconnected
	t.host = ""
	t.username = ""
	t.mu.Unlock()

	if done != nil {
		close(done)
	}
	if conn != nil {
		_ = conn.Close()
	}
	for _, pc := range pending {
		pc.ch <- callResult{err: fmt.Errorf("connection lost: %w", fserr.ErrTransport)}
	}
	t.emitState(StateDisconnected, "")
}

func (t *Transport) setDisconnected() {
	t.mu.Lock()
	t.state = StateDisconnected
	t.mu.Unlock()
	t.emitState(StateDisconnected, "")
}

func (t *Transport) emitState(state State, host string) {
	if t.events == nil {
		return
	}
	t.events.Emit(event.ConnectionStateChangedEvent{State: string(state), Host: host})
}
