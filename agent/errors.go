package agent

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	// ErrNoReply is returned when no reply line arrives before the reply timeout.
	ErrNoReply = errors.New("agent: no reply from device")
	// ErrTransport is matched by every *TransportError.
	ErrTransport = errors.New("agent: transport failure")
)

// TransportError reports a failed write to, or read from, the device link.
type TransportError struct {
	Command string
	Err     error
}

func (e *TransportError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("transport: %v", e.Err)
	}
	return fmt.Sprintf("transport: command %s: %v", strconv.Quote(e.Command), e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is reports ErrTransport as a match.
func (e *TransportError) Is(target error) bool { return target == ErrTransport }
