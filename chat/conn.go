package chat

import "errors"

var (
	// ErrConnectionClosed is returned by Conn.Send when the transport can no
	// longer accept payloads. It is treated the same as a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	ErrUnknownEvent     = errors.New("unknown chat event")
	ErrEmptyMessage     = errors.New("message body is empty")
)

// Conn is a live transport connection. ID must be unique per connection.
type Conn interface {
	ID() string
	Send(p Payload) error
	Close() error
}
