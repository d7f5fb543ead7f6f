// Package messaging defines the broker-neutral types used to move exception
// events between the reporter library and the monitor's ingestion worker.
package messaging

import (
	"context"
	"time"
)

// Message is one payload published to or received from the bus.
type Message struct {
	// Subject is the topic (or topic partition) the message travels on.
	Subject string

	// Data is the raw payload, a JSON-encoded event.
	Data []byte

	// Metadata carries message headers. The event id travels under
	// HeaderExceptionID and plays the role of the message key.
	Metadata map[string]string

	// Timestamp is the broker's publish time when known, otherwise the
	// receive time.
	Timestamp time.Time
}

// Key returns the message key, the id of the carried event.
func (m *Message) Key() string {
	if m == nil || m.Metadata == nil {
		return ""
	}
	return m.Metadata[HeaderExceptionID]
}

// MessageHandler processes one message. A returned error asks the broker to
// redeliver it later.
type MessageHandler func(ctx context.Context, msg *Message) error

// Publisher publishes messages and waits for the broker to persist them.
type Publisher interface {
	PublishMsg(ctx context.Context, msg *Message) error
	Close() error
}

// Client is a Publisher that also reports connection state.
type Client interface {
	Publisher

	// Drain flushes pending work and closes the connection.
	Drain() error

	IsConnected() bool
}
