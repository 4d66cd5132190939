package broker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/faredit/faredit/pkg/event"
	"github.com/faredit/faredit/pkg/fs"
	"github.com/faredit/faredit/pkg/fserr"
	"github.com/faredit/faredit/pkg/models"
	"github.com/faredit/faredit/pkg/transport"
)

// startBrokerServer runs the real broker over httptest and returns the
// websocket URL for the channel endpoint.
func startBrokerServer(t *testing.T, dial Dialer) string {
	t.Helper()
	b := New(nil, dial)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		b.HandleConn(r.Context(), ws)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// TestEndToEnd_ManagerOverLiveChannel drives the full stack: manager over a
// remote backend, over the transport, over a real broker loop, down to a
// scripted session.
func TestEndToEnd_ManagerOverLiveChannel(t *testing.T) {
	session := newFakeSession()
	session.workingDir = "/home/u1"
	session.entries["/home/u1"] = []models.Entry{
		{Name: "notes.txt", Path: "/home/u1/notes.txt", IsFile: true, Size: 12},
		{Name: "src", Path: "/home/u1/src", IsDir: true},
	}
	url := startBrokerServer(t, fixedDialer(session))

	events := event.NewEmitter()
	tr := transport.New(url, transport.Timeouts{}, nil, events)
	m := fs.NewManager(fs.NewLocalFS(nil), fs.NewRemoteFS(tr), events)

	ctx := context.Background()
	if err := m.ConnectRemote(ctx, brokerCreds()); err != nil {
		t.Fatalf("ConnectRemote() error = %v", err)
	}
	if got := m.Active(); got != models.BackendRemote {
		t.Fatalf("Active() = %v, want remote", got)
	}
	if got := m.CurrentPath(ctx); got != "/home/u1" {
		t.Fatalf("CurrentPath() = %q, want /home/u1", got)
	}

	entries, err := m.ListDir(ctx, "")
	if err != nil {
		t.Fatalf("ListDir() error = %v", err)
	}
	if len(entries) != 2 || entries[0].Name != "src" || entries[1].Name != "notes.txt" {
		t.Fatalf("ListDir() entries = %+v", entries)
	}

	// Write/read law across the whole stack.
	if err := m.WriteFile(ctx, "/home/u1/draft.txt", "first\nsecond\n"); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	content, err := m.ReadFile(ctx, "/home/u1/draft.txt")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if content != "first\nsecond\n" {
		t.Fatalf("ReadFile() = %q", content)
	}

	// Execute with streamed output arriving before the exit code is observed.
	output, err := m.CommandOutput()
	if err != nil {
		t.Fatalf("CommandOutput() error = %v", err)
	}
	code, err := m.Execute(ctx, "make test")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if code != 42 {
		t.Fatalf("Execute() exit code = %d, want 42", code)
	}
	var chunks []models.OutputChunk
	for len(chunks) < 2 {
		select {
		case chunk := <-output:
			chunks = append(chunks, chunk)
		case <-time.After(time.Second):
			t.Fatalf("output stalled after %d chunks", len(chunks))
		}
	}
	if chunks[0].Kind != models.OutputStdout || chunks[0].Data != "ran: make test\n" {
		t.Fatalf("chunks[0] = %+v", chunks[0])
	}
	if chunks[1].Kind != models.OutputStderr {
		t.Fatalf("chunks[1] = %+v", chunks[1])
	}

	if err := m.DisconnectRemote(ctx); err != nil {
		t.Fatalf("DisconnectRemote() error = %v", err)
	}
	if got := m.Active(); got != models.BackendLocal {
		t.Fatalf("Active() = %v after disconnect, want local", got)
	}
	if !session.isClosed() {
		t.Fatalf("broker session not closed after disconnect")
	}
}

func TestEndToEnd_AuthFailureStaysLocal(t *testing.T) {
	dial := func(ctx context.Context, creds models.Credentials) (Session, error) {
		return nil, authError{errors.New("permission denied (publickey,password)")}
	}
	url := startBrokerServer(t, dial)

	tr := transport.New(url, transport.Timeouts{}, nil, nil)
	m := fs.NewManager(fs.NewLocalFS(nil), fs.NewRemoteFS(tr), nil)

	err := m.ConnectRemote(context.Background(), brokerCreds())
	if !errors.Is(err, fserr.ErrAuthFailed) {
		t.Fatalf("ConnectRemote() error = %v, want ErrAuthFailed", err)
	}
	if got := m.Active(); got != models.BackendLocal {
		t.Fatalf("Active() = %v after auth failure, want local", got)
	}
	if tr.Connected() {
		t.Fatalf("transport still connected after auth failure")
	}
}
