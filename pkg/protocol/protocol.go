// Package protocol defines the wire format spoken between the client
// transport and the broker over a single persistent websocket channel.
//
// Every request carries a fresh correlation ID; the broker echoes it in the
// matching success or error reply, so concurrent requests of the same kind
// never cross-talk. Command output events are independent of any request and
// carry no ID.
package protocol

import (
	"encoding/json"
	"time"

	"github.com/faredit/faredit/pkg/models"
)

// Request event names.
const (
	EventConnect    = "connect"
	EventListDir    = "list-directory"
	EventReadFile   = "read-file"
	EventWriteFile  = "write-file"
	EventExecute    = "execute-command"
	EventDisconnect = "disconnect"
)

// Reply and stream event names.
const (
	EventConnected         = "connected"
	EventConnectError      = "connect-error"
	EventListSuccess       = "list-success"
	EventListError         = "list-error"
	EventReadSuccess       = "read-success"
	EventReadError         = "read-error"
	EventWriteSuccess      = "write-success"
	EventWriteError        = "write-error"
	EventExecuteSuccess    = "execute-success"
	EventExecuteError      = "execute-error"
	EventDisconnectSuccess = "disconnect-success"
	EventCommandOutput     = "command-output"
)

// Message is the JSON envelope for everything on the channel.
type Message struct {
	ID    string          `json:"id,omitempty"` // request correlation ID, echoed in replies
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	TS    int64           `json:"ts"`
}

// NewMessage builds an envelope with the payload marshaled into Data.
func NewMessage(id string, event string, payload any) (Message, error) {
	msg := Message{ID: id, Event: event, TS: time.Now().UnixMilli()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		msg.Data = data
	}
	return msg, nil
}

// ErrorPayload is the body of every *-error reply. Code is one of the
// fserr wire codes.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectRequest carries credentials for the broker-side SSH dial.
type ConnectRequest struct {
	Credentials models.Credentials `json:"credentials"`
}

// ConnectedPayload reports the established session's starting directory.
type ConnectedPayload struct {
	CurrentPath string `json:"current_path"`
}

type ListDirRequest struct {
	Path string `json:"path"`
}

type ListDirPayload struct {
	Path    string         `json:"path"`
	Entries []models.Entry `json:"entries"`
}

type ReadFileRequest struct {
	Path string `json:"path"`
}

type ReadFilePayload struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type WriteFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type ExecuteRequest struct {
	Command string `json:"command"`
}

type ExecutePayload struct {
	ExitCode int `json:"exit_code"`
}

// OutputPayload is the body of a command-output stream event.
type OutputPayload struct {
	Kind models.OutputKind `json:"kind"`
	Data string            `json:"data"`
}

// ErrorReply maps a request event name to its error reply name.
func ErrorReply(requestEvent string) string {
	switch requestEvent {
	case EventConnect:
		return EventConnectError
	case EventListDir:
		return EventListError
	case EventReadFile:
		return EventReadError
	case EventWriteFile:
		return EventWriteError
	case EventExecute:
		return EventExecuteError
	default:
		return EventConnectError
	}
}

// SuccessReply maps a request event name to its success reply name.
func SuccessReply(requestEvent string) string {
	switch requestEvent {
	case EventConnect:
		return EventConnected
	case EventListDir:
		return EventListSuccess
	case EventReadFile:
		return EventReadSuccess
	case EventWriteFile:
		return EventWriteSuccess
	case EventExecute:
		return EventExecuteSuccess
	case EventDisconnect:
		return EventDisconnectSuccess
	default:
		return EventConnected
	}
}
