package webos

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a frame is sent with no open socket
	ErrNotConnected = errors.New("not connected to a TV")
	// ErrSuperseded is returned by a Connect that a later Connect or Disconnect replaced
	ErrSuperseded = errors.New("connection attempt superseded")
)

// TransportError wraps a socket open/read/write failure
type TransportError struct {
	Op  string // "dial", "write", "read"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("webOS %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError is a registration rejected with anything other than 401
type ProtocolError struct {
	Code    string
	Message string
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("registration rejected (code %s)", e.Code)
	}
	return fmt.Sprintf("registration rejected (code %s): %s", e.Code, e.Message)
}
