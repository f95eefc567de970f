package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultVisibilityTimeout applies to messages that do not set their own.
const DefaultVisibilityTimeout = 30 * time.Second

// memoryEntry wraps a message with its delivery state.
type memoryEntry struct {
	msg       *Message
	visibleAt time.Time
	receipt   string
}

// MemoryQueue is an in-process Queue with visibility-timeout redelivery.
// It backs tests and standalone runs; production deployments use the SQS
// implementation.
type MemoryQueue struct {
	mu                sync.Mutex
	entries           []*memoryEntry
	defaultVisibility time.Duration
	pollInterval      time.Duration
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		defaultVisibility: DefaultVisibilityTimeout,
		pollInterval:      20 * time.Millisecond,
	}
}

// Send implements Queue.
func (q *MemoryQueue) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := *msg
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	stored.Receipt = ""

	q.mu.Lock()
	q.entries = append(q.entries, &memoryEntry{
		msg:       &stored,
		visibleAt: time.Now().Add(stored.Delay),
	})
	q.mu.Unlock()
	return nil
}

// Receive implements Queue. It polls until at least one message is visible
// or the wait elapses.
func (q *MemoryQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]*Message, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	for {
		if msgs := q.takeVisible(max); len(msgs) > 0 {
			return msgs, nil
		}
		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

func (q *MemoryQueue) takeVisible(max int) []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var out []*Message
	for _, entry := range q.entries {
		if len(out) >= max {
			break
		}
		if entry.visibleAt.After(now) {
			continue
		}

		visibility := entry.msg.VisibilityTimeout
		if visibility <= 0 {
			visibility = q.defaultVisibility
		}
		entry.receipt = uuid.New().String()
		entry.visibleAt = now.Add(visibility)
		entry.msg.ReceiveCount++

		delivered := *entry.msg
		delivered.Receipt = entry.receipt
		out = append(out, &delivered)
	}
	return out
}

// Delete implements Queue. A receipt whose message was already redelivered
// no longer matches and is ignored.
func (q *MemoryQueue) Delete(ctx context.Context, receipt string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, entry := range q.entries {
		if entry.receipt == receipt && receipt != "" {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

// Len returns the number of messages held, visible or not.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
