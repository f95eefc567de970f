// Package queue defines the message transport used by the collection
// scheduler and its consumers. Delivery is at-least-once: a received message
// stays invisible for its visibility timeout and is redelivered unless
// deleted, so consumers must be idempotent.
package queue

import (
	"context"
	"time"
)

// Message is one queued unit of work. Receipt and ReceiveCount are set by
// the queue on receive; senders leave them empty.
type Message struct {
	ID         string            `json:"id"`
	Body       string            `json:"body"`
	Attributes map[string]string `json:"attributes,omitempty"`

	// Delay postpones first delivery after Send.
	Delay time.Duration `json:"delay,omitempty"`
	// VisibilityTimeout is how long the message stays invisible after a
	// receive before redelivery. Zero uses the queue default.
	VisibilityTimeout time.Duration `json:"visibility_timeout,omitempty"`

	Receipt      string `json:"receipt,omitempty"`
	ReceiveCount int    `json:"receive_count,omitempty"`
}

// Queue is the transport contract. Implementations provide at-least-once
// delivery with per-message visibility timeouts.
type Queue interface {
	// Send enqueues a message, honoring its Delay.
	Send(ctx context.Context, msg *Message) error

	// Receive returns up to max currently visible messages, waiting up to
	// wait for at least one to become available. Returned messages carry a
	// receipt and become invisible for their visibility timeout.
	Receive(ctx context.Context, max int, wait time.Duration) ([]*Message, error)

	// Delete acknowledges a received message by its receipt. Deleting an
	// unknown or already redelivered receipt is not an error.
	Delete(ctx context.Context, receipt string) error
}
