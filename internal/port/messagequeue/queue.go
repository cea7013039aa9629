// Package messagequeue defines the message queue port (interface) used to
// publish pipeline events.
package messagequeue

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher is the port interface for publishing pipeline events.
type Publisher interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Close shuts down the queue connection.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Handler processes a message received from the queue.
// The context carries the request ID of the publishing request, if any.
type Handler func(ctx context.Context, subject string, data []byte) error

// Subscriber is implemented by queues that can deliver events back to a
// consumer, such as the watch command.
type Subscriber interface {
	// Subscribe registers a handler for messages on subject. The returned
	// function stops delivery.
	Subscribe(ctx context.Context, subject string, handler Handler) (func(), error)
}

// Subject constants for the events emitted by mailflow.
const (
	SubjectRouted          = "mail.routed"           // router delivered an email to a handler
	SubjectRouteFailed     = "mail.route_failed"     // router exhausted every target
	SubjectReviewRequested = "mail.review_requested" // human-review handler accepted an email
)

// StreamSubjects is the subject filter for the mailflow JetStream stream.
var StreamSubjects = []string{"mail.>"}

// PublishJSON marshals payload, validates it against the subject schema and
// publishes it.
func PublishJSON(ctx context.Context, p Publisher, subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", subject, err)
	}
	if err := Validate(subject, data); err != nil {
		return err
	}
	return p.Publish(ctx, subject, data)
}

// Nop discards every message. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, []byte) error { return nil }
func (Nop) Close() error                                  { return nil }
func (Nop) IsConnected() bool                             { return false }
