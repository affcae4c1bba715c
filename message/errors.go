package message

import "fmt"

// ProtocolError is returned when a message is malformed or unrecognized. It
// is fatal to the single message, not to the connection.
type ProtocolError struct {
	ID     uint32
	Reason string
}

func (err *ProtocolError) Error() string {
	if err.ID == 0 {
		return fmt.Sprintf("protocol error: %s", err.Reason)
	}
	return fmt.Sprintf("protocol error in message %d: %s", err.ID, err.Reason)
}

func protocolErrorf(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}
