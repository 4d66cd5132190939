// Package fserr defines the failure kinds shared by all filesystem backends
// and the transport, plus the mapping to the wire-level error codes the
// broker puts in error replies.
//
// Kinds are sentinel errors; callers classify failures with errors.Is and
// layers add context with fmt.Errorf("...: %w", ...), so the kind survives
// any amount of wrapping.
package fserr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected: operation attempted on a backend that isn't connected.
	ErrNotConnected = errors.New("not connected")
	// ErrTimeout: no reply arrived within the operation's deadline.
	ErrTimeout = errors.New("operation timed out")
	// ErrAuthFailed: the connect phase was rejected by the broker.
	ErrAuthFailed = errors.New("authentication failed")
	// ErrNotFound: the path does not exist.
	ErrNotFound = errors.New("path not found")
	// ErrNotADirectory: the path exists but is not a directory.
	ErrNotADirectory = errors.New("not a directory")
	// ErrIO: local storage failure.
	ErrIO = errors.New("i/o failure")
	// ErrPrecondition: illegal backend switch.
	ErrPrecondition = errors.New("precondition failed")
	// ErrUnsupported: remote-only call issued against the local backend.
	ErrUnsupported = errors.New("unsupported operation")
	// ErrTransport: channel-level failure distinct from any specific request.
	ErrTransport = errors.New("transport failure")
)

// Wire-level error codes carried in broker error replies.
const (
	CodeNotConnected  = "not-connected"
	CodeTimeout       = "timeout"
	CodeAuthFailed    = "auth-failed"
	CodeNotFound      = "not-found"
	CodeNotADirectory = "not-a-directory"
	CodeIO            = "io-error"
	CodeTransport     = "transport-error"
)

var codeToKind = map[string]error{
	CodeNotConnected:  ErrNotConnected,
	CodeTimeout:       ErrTimeout,
	CodeAuthFailed:    ErrAuthFailed,
	CodeNotFound:      ErrNotFound,
	CodeNotADirectory: ErrNotADirectory,
	CodeIO:            ErrIO,
	CodeTransport:     ErrTransport,
}

var kindToCode = map[error]string{
	ErrNotConnected:  CodeNotConnected,
	ErrTimeout:       CodeTimeout,
	ErrAuthFailed:    CodeAuthFailed,
	ErrNotFound:      CodeNotFound,
	ErrNotADirectory: CodeNotADirectory,
	ErrIO:            CodeIO,
	ErrTransport:     CodeTransport,
}

// FromCode rebuilds a kind-carrying error from a wire code and message.
// Unknown codes degrade to ErrTransport so a broker bug can never produce an
// error the client cannot classify.
func FromCode(code string, message string) error {
	kind, ok := codeToKind[code]
	if !ok {
		kind = ErrTransport
	}
	if message == "" {
		return kind
	}
	return fmt.Errorf("%s: %w", message, kind)
}

// Code returns the wire code for err's kind, or CodeIO if the error carries
// no recognized kind.
func Code(err error) string {
	for kind, code := range kindToCode {
		if errors.Is(err, kind) {
			return code
		}
	}
	return CodeIO
}
