package realtime

import (
	"errors"
	"fmt"
)

// ErrNotConnected is returned by writes attempted while no socket is open.
var ErrNotConnected = errors.New("realtime: not connected")

// ServerError carries the text of an {"type":"error"} frame. It is non-fatal.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return "realtime: server error: " + e.Message }

// ParseError reports an inbound frame that could not be decoded. The connection
// stays open.
type ParseError struct {
	Raw []byte
	Err error
}

func (e *ParseError) Error() string { return fmt.Sprintf("realtime: malformed frame: %v", e.Err) }

func (e *ParseError) Unwrap() error { return e.Err }

// TransportError reports a failed dial or a dropped socket. Code is the close
// code when the peer sent one, zero otherwise.
type TransportError struct {
	Code int
	Err  error
}

func (e *TransportError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("realtime: connection closed (%d): %v", e.Code, e.Err)
	}
	return fmt.Sprintf("realtime: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
