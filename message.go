package wsockets

import (
	"bytes"
	"fmt"
)

// ConnectionStatus is the lifecycle state of a connection.
type ConnectionStatus int

const (
	// StatusConnecting means the provider is still opening the connection.
	StatusConnecting ConnectionStatus = iota

	// StatusConnected means the connection is open and frames can be sent.
	StatusConnected

	// StatusError means the provider reported an error. A close usually follows.
	StatusError

	// StatusDisconnected means the connection is closed. It is terminal.
	StatusDisconnected
)

// String returns the string representation of a ConnectionStatus.
func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// CanTransition reports whether the state machine allows moving from s to next.
//
//	connecting   -> connected | error | disconnected
//	connected    -> error | disconnected
//	error        -> disconnected
//	disconnected -> (none)
func (s ConnectionStatus) CanTransition(next ConnectionStatus) bool {
	switch s {
	case StatusConnecting:
		return next == StatusConnected || next == StatusError || next == StatusDisconnected
	case StatusConnected:
		return next == StatusError || next == StatusDisconnected
	case StatusError:
		return next == StatusDisconnected
	default:
		return false
	}
}

// MessageType tells text frames from binary frames.
type MessageType int

const (
	TextMessage MessageType = iota + 1
	BinaryMessage
)

func (t MessageType) String() string {
	switch t {
	case TextMessage:
		return "text"
	case BinaryMessage:
		return "binary"
	default:
		return "unknown"
	}
}

// Message is a text or binary websocket message. It is immutable once built.
type Message struct {
	typ  MessageType
	text string
	data []byte
}

// NewTextMessage builds a text message.
func NewTextMessage(text string) Message {
	return Message{typ: TextMessage, text: text}
}

// NewBinaryMessage builds a binary message holding a copy of data.
func NewBinaryMessage(data []byte) Message {
	return Message{typ: BinaryMessage, data: bytes.Clone(data)}
}

// Type returns TextMessage or BinaryMessage.
func (m Message) Type() MessageType {
	return m.typ
}

// IsText reports whether m is a text message.
func (m Message) IsText() bool {
	return m.typ == TextMessage
}

// IsBinary reports whether m is a binary message.
func (m Message) IsBinary() bool {
	return m.typ == BinaryMessage
}

// Text returns the text of a text message, or "" for binary messages.
func (m Message) Text() string {
	return m.text
}

// Bytes returns a copy of the payload. Text messages return their UTF-8 bytes.
func (m Message) Bytes() []byte {
	if m.typ == TextMessage {
		return []byte(m.text)
	}
	return bytes.Clone(m.data)
}

// Len returns the payload size in bytes.
func (m Message) Len() int {
	if m.typ == TextMessage {
		return len(m.text)
	}
	return len(m.data)
}

// Equal reports whether m and other have the same type and payload.
func (m Message) Equal(other Message) bool {
	if m.typ != other.typ {
		return false
	}
	if m.typ == TextMessage {
		return m.text == other.text
	}
	return bytes.Equal(m.data, other.data)
}

func (m Message) String() string {
	switch m.typ {
	case TextMessage:
		return fmt.Sprintf("Text(%q)", m.text)
	case BinaryMessage:
		return fmt.Sprintf("Binary(%v)", m.data)
	default:
		return "Message(invalid)"
	}
}
