// Package broker implements the server end of the channel protocol: one
// websocket connection maps to at most one SSH session, and every named
// request is answered by exactly one success or error reply carrying the
// request's correlation ID. Command output is pushed as independent
// command-output events, interleaved with whatever replies are in flight.
package broker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/faredit/faredit/pkg/fs"
	"github.com/faredit/faredit/pkg/fserr"
	"github.com/faredit/faredit/pkg/models"
	"github.com/faredit/faredit/pkg/protocol"
)

// Broker serves channel connections.
type Broker struct {
	logger *slog.Logger
	dial   Dialer
}

// New creates a broker. A nil dialer selects the production SSH dialer.
func New(logger *slog.Logger, dial Dialer) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	if dial == nil {
		dial = DialSSH
	}
	return &Broker{logger: logger, dial: dial}
}

// conn is the per-connection state: the shared write lock and the session,
// if one has been established.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	session Session
}

func (c *conn) getSession() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *conn) setSession(s Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

// closeSession tears down the session if present and clears it.
func (c *conn) closeSession() {
	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()
	if s != nil {
		_ = s.Close()
	}
}

// HandleConn runs the protocol loop for one websocket connection until the
// peer goes away. Requests are dispatched concurrently; replies and output
// events share the connection under a write lock.
func (b *Broker) HandleConn(ctx context.Context, ws *websocket.Conn) {
	c := &conn{ws: ws}
	defer c.closeSession()
	defer ws.Close()

	for {
		var msg protocol.Message
		if err := ws.ReadJSON(&msg); err != nil {
			b.logger.Debug("channel closed", "error", err)
			return
		}

		switch msg.Event {
		case protocol.EventConnect:
			go b.handleConnect(ctx, c, msg)
		case protocol.EventDisconnect:
			go b.handleDisconnect(c, msg)
		case protocol.EventListDir, protocol.EventReadFile, protocol.EventWriteFile, protocol.EventExecute:
			go b.handleOperation(ctx, c, msg)
		default:
			b.logger.Warn("unknown request dropped", "event", msg.Event, "id", msg.ID)
		}
	}
}

func (b *Broker) handleConnect(ctx context.Context, c *conn, msg protocol.Message) {
	var req protocol.ConnectRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		b.replyError(c, msg, fserr.CodeTransport, "undecodable connect request")
		return
	}
	if err := req.Credentials.Validate(); err != nil {
		b.replyError(c, msg, fserr.CodeAuthFailed, err.Error())
		return
	}
	if c.getSession() != nil {
		b.replyError(c, msg, fserr.CodeTransport, "session already established on this channel")
		return
	}

	session, err := b.dial(ctx, req.Credentials)
	if err != nil {
		b.logger.Warn("connect failed", "host", req.Credentials.Host, "error", err)
		b.replyError(c, msg, wireCode(err), err.Error())
		return
	}

	currentPath := strings.TrimSpace(req.Credentials.InitialPath)
	if currentPath == "" {
		currentPath, err = session.WorkingDir(ctx)
		if err != nil {
			currentPath = "/"
		}
	}

	c.setSession(session)
	b.logger.Info("session established", "host", req.Credentials.Host, "user", req.Credentials.Username)
	b.reply(c, msg.ID, protocol.EventConnected, protocol.ConnectedPayload{CurrentPath: currentPath})
}

func (b *Broker) handleDisconnect(c *conn, msg protocol.Message) {
	c.closeSession()
	b.reply(c, msg.ID, protocol.EventDisconnectSuccess, nil)
}

func (b *Broker) handleOperation(ctx context.Context, c *conn, msg protocol.Message) {
	session := c.getSession()
	if session == nil {
		b.replyError(c, msg, fserr.CodeNotConnected, "no session established")
		return
	}

	switch msg.Event {
	case protocol.EventListDir:
		var req protocol.ListDirRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			b.replyError(c, msg, fserr.CodeTransport, "undecodable list request")
			return
		}
		entries, err := session.ListDir(ctx, req.Path)
		if err != nil {
			b.replyError(c, msg, wireCode(err), err.Error())
			return
		}
		fs.SortEntries(entries)
		b.reply(c, msg.ID, protocol.EventListSuccess, protocol.ListDirPayload{Path: req.Path, Entries: entries})

	case protocol.EventReadFile:
		var req protocol.ReadFileRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			b.replyError(c, msg, fserr.CodeTransport, "undecodable read request")
			return
		}
		content, err := session.ReadFile(ctx, req.Path)
		if err != nil {
			b.replyError(c, msg, wireCode(err), err.Error())
			return
		}
		b.reply(c, msg.ID, protocol.EventReadSuccess, protocol.ReadFilePayload{Path: req.Path, Content: content})

	case protocol.EventWriteFile:
		var req protocol.WriteFileRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			b.replyError(c, msg, fserr.CodeTransport, "undecodable write request")
			return
		}
		if err := session.WriteFile(ctx, req.Path, req.Content); err != nil {
			b.replyError(c, msg, wireCode(err), err.Error())
			return
		}
		b.reply(c, msg.ID, protocol.EventWriteSuccess, nil)

	case protocol.EventExecute:
		var req protocol.ExecuteRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			b.replyError(c, msg, fserr.CodeTransport, "undecodable execute request")
			return
		}
		exitCode, err := session.Execute(ctx, req.Command, func(kind models.OutputKind, data string) {
			b.push(c, protocol.EventCommandOutput, protocol.OutputPayload{Kind: kind, Data: data})
		})
		if err != nil {
			b.replyError(c, msg, wireCode(err), err.Error())
			return
		}
		b.reply(c, msg.ID, protocol.EventExecuteSuccess, protocol.ExecutePayload{ExitCode: exitCode})
	}
}

// reply answers a request, echoing its correlation ID.
func (b *Broker) reply(c *conn, id string, eventName string, payload any) {
	msg, err := protocol.NewMessage(id, eventName, payload)
	if err != nil {
		b.logger.Error("encode reply", "event", eventName, "error", err)
		return
	}
	b.write(c, msg)
}

func (b *Broker) replyError(c *conn, req protocol.Message, code string, message string) {
	b.reply(c, req.ID, protocol.ErrorReply(req.Event), protocol.ErrorPayload{Code: code, Message: message})
}

// push sends a stream event not paired with any request.
func (b *Broker) push(c *conn, eventName string, payload any) {
	msg, err := protocol.NewMessage("", eventName, payload)
	if err != nil {
		b.logger.Error("encode event", "event", eventName, "error", err)
		return
	}
	b.write(c, msg)
}

func (b *Broker) write(c *conn, msg protocol.Message) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(msg); err != nil {
		b.logger.Debug("write to channel failed", "event", msg.Event, "error", err)
	}
}
