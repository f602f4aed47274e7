package task

import (
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// SocketError wraps a failure writing to the channel
type SocketError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *SocketError) Error() string {
	return fmt.Sprintf("socket error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *SocketError) Unwrap() error {
	return e.Err
}

// IsSocketError reports whether err is a transport failure rather than an
// application or protocol error
func IsSocketError(err error) bool {
	if err == nil {
		return false
	}

	var sockErr *SocketError
	if errors.As(err, &sockErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe)
}
