package wsockets

import (
	"errors"
	"fmt"
)

// Standard error messages
const (
	// Construction errors
	ErrMsgConnectionCreation = "failed to create websocket connection"
	ErrMsgInvalidAddress     = "invalid websocket address"

	// Send errors
	ErrMsgNotConnected    = "websocket is not connected"
	ErrMsgSendBufferFull  = "send buffer full"
	ErrMsgFailedToSend    = "failed to send message"
	ErrMsgConnectionClose = "connection is closed"

	// Receive errors
	ErrMsgMessageTooLarge = "message exceeds maximum size"
	ErrMsgReassembly      = "failed to read binary message"
	ErrMsgRateLimited     = "rate limit exceeded"
	ErrMsgUnexpectedFrame = "unexpected frame type"
)

var (
	// ErrInvalidState is matched by every StateError.
	ErrInvalidState = errors.New(ErrMsgNotConnected)

	// ErrInvalidAddress is returned by providers for malformed addresses.
	ErrInvalidAddress = errors.New(ErrMsgInvalidAddress)

	// ErrConnectionClosed is returned by sockets asked to send after they closed.
	ErrConnectionClosed = errors.New(ErrMsgConnectionClose)

	// ErrSendBufferFull is returned when a socket's outbound queue is full.
	ErrSendBufferFull = errors.New(ErrMsgSendBufferFull)

	// ErrMessageTooLarge is reported when an inbound message exceeds the size limit.
	ErrMessageTooLarge = errors.New(ErrMsgMessageTooLarge)

	// ErrRateLimited is reported when the peer exceeds the inbound rate limit.
	ErrRateLimited = errors.New(ErrMsgRateLimited)
)

// ConnectionError is returned from client construction when the provider
// refuses to start connecting. No retry is attempted.
type ConnectionError struct {
	Address string
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s to %q", ErrMsgConnectionCreation, e.Address)
	}
	return fmt.Sprintf("%s to %q: %v", ErrMsgConnectionCreation, e.Address, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// StateError is returned by sends attempted while the connection is not
// StatusConnected. The caller may retry once connected.
type StateError struct {
	Op     string
	Status ConnectionStatus
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s: %s (status: %s)", e.Op, ErrMsgNotConnected, e.Status)
}

func (e *StateError) Unwrap() error {
	return ErrInvalidState
}

// SizeError is reported when an inbound message exceeds Limit bytes.
type SizeError struct {
	Limit int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("%s: limit is %d bytes", ErrMsgMessageTooLarge, e.Limit)
}

func (e *SizeError) Unwrap() error {
	return ErrMessageTooLarge
}
