// Package bus provides the message bus that connects the capture pipeline,
// the push orchestrator, and the UI-facing message endpoint. It supports
// publish/subscribe and request/reply. The default implementation is
// in-memory; a NATS-backed implementation is available for running the
// observer and the pusher as separate processes.
package bus

import (
	"context"
	"errors"
	"time"
)

// Canonical subjects.
const (
	// SubjectCandidate carries normalized submission records from the
	// capture pipeline to the push orchestrator.
	SubjectCandidate = "grind.candidate"

	// SubjectPushState carries push status transitions to UI surfaces.
	SubjectPushState = "grind.push.state"

	// SubjectSettingsChanged announces settings document replacements.
	SubjectSettingsChanged = "grind.settings.changed"

	// messagePrefix scopes the request/reply subjects for UI envelopes.
	messagePrefix = "grind.msg."
)

// MessageSubject returns the request/reply subject for a UI envelope type,
// e.g. MessageSubject("get-settings") == "grind.msg.get-settings".
func MessageSubject(envelopeType string) string {
	return messagePrefix + envelopeType
}

var (
	// ErrTimeout is returned when a request times out waiting for a response.
	ErrTimeout = errors.New("request timeout")

	// ErrNoResponders is returned when no subscribers are available to handle a request.
	ErrNoResponders = errors.New("no responders available")

	// ErrClosed is returned when operating on a closed bus or subscription.
	ErrClosed = errors.New("bus or subscription closed")
)

// MessageBus is the core interface for component communication.
// Implementations must be safe for concurrent use.
type MessageBus interface {
	// Publish sends a message to all subscribers of the given subject.
	// Returns immediately; does not wait for message delivery.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The handler is called in a separate goroutine for each message.
	// Supports wildcards: "grind.push.*" matches "grind.push.state".
	Subscribe(ctx context.Context, subject string, handler MessageHandler) (Subscription, error)

	// Request sends a message and waits for a single response.
	Request(ctx context.Context, subject string, data []byte, timeout time.Duration) ([]byte, error)

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// MessageHandler processes incoming messages.
// For request/reply, return data to send as response; return nil for no response.
type MessageHandler func(msg *Message) []byte

// Message represents an incoming message from the bus.
type Message struct {
	Subject string
	Data    []byte
	ReplyTo string // Set if sender expects a response
}

// Subscription represents an active subscription that can be cancelled.
type Subscription interface {
	// Unsubscribe stops receiving messages and cleans up resources.
	Unsubscribe() error

	// Subject returns the subject pattern this subscription is for.
	Subject() string
}

// Config holds configuration for creating a MessageBus.
type Config struct {
	// URL is the NATS server URL (e.g., "nats://localhost:4222").
	// Ignored for in-memory bus.
	URL string

	// Name is a client identifier for debugging/monitoring.
	Name string

	// Timeout is the default timeout for operations.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:     "nats://localhost:4222",
		Name:    "gitgrind",
		Timeout: 30 * time.Second,
	}
}
