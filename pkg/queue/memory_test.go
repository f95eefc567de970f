package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueueSendReceiveDelete(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	err := q.Send(ctx, &Message{Body: "hello", Attributes: map[string]string{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, 1, q.Len())

	msgs, err := q.Receive(ctx, 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Body)
	assert.Equal(t, "v", msgs[0].Attributes["k"])
	assert.NotEmpty(t, msgs[0].Receipt)
	assert.Equal(t, 1, msgs[0].ReceiveCount)

	require.NoError(t, q.Delete(ctx, msgs[0].Receipt))
	assert.Equal(t, 0, q.Len())
}

func TestMemoryQueueReceivedMessageIsInvisible(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, &Message{Body: "one", VisibilityTimeout: time.Minute}))

	first, err := q.Receive(ctx, 10, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Within the visibility timeout the message must not reappear.
	second, err := q.Receive(ctx, 10, 50*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestMemoryQueueVisibilityRedelivery(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, &Message{Body: "retry-me", VisibilityTimeout: 50 * time.Millisecond}))

	first, err := q.Receive(ctx, 1, 100*time.Millisecond)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Unacked message reappears after its visibility timeout with a fresh
	// receipt and a bumped receive count.
	second, err := q.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "retry-me", second[0].Body)
	assert.Equal(t, 2, second[0].ReceiveCount)
	assert.NotEqual(t, first[0].Receipt, second[0].Receipt)

	// The stale receipt no longer matches; deleting it is a no-op.
	require.NoError(t, q.Delete(ctx, first[0].Receipt))
	assert.Equal(t, 1, q.Len())

	require.NoError(t, q.Delete(ctx, second[0].Receipt))
	assert.Equal(t, 0, q.Len())
}

func TestMemoryQueueDelay(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, &Message{Body: "later", Delay: 80 * time.Millisecond}))

	msgs, err := q.Receive(ctx, 1, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, msgs, "delayed message must not be visible immediately")

	msgs, err = q.Receive(ctx, 1, time.Second)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "later", msgs[0].Body)
}

func TestMemoryQueueReceiveRespectsMax(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Send(ctx, &Message{Body: "m"}))
	}

	msgs, err := q.Receive(ctx, 3, 100*time.Millisecond)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)
}

func TestMemoryQueueReceiveHonorsContext(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Receive(ctx, 1, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryQueueDeleteUnknownReceipt(t *testing.T) {
	q := NewMemoryQueue()
	assert.NoError(t, q.Delete(context.Background(), "no-such-receipt"))
}
