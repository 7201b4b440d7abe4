package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/gateway/internal/infrastructure/logging"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	fail map[string]error
}

func (s *recordingSender) SendMessage(_ context.Context, chatID, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.fail[chatID]; ok {
		return err
	}
	s.sent = append(s.sent, chatID+":"+body)
	return nil
}

func TestQueueFlushSendsInOrder(t *testing.T) {
	q := NewQueue(logging.NewNop())
	q.Enqueue("tenant-a", Pending{Destination: "1@c.us", Body: "first"})
	q.Enqueue("tenant-a", Pending{Destination: "2@c.us", Body: "second"})
	q.Enqueue("tenant-a", Pending{Destination: "3@c.us", Body: "third"})
	require.Equal(t, 3, q.Depth("tenant-a"))

	sender := &recordingSender{}
	sent := q.Flush(context.Background(), "tenant-a", sender)

	assert.Equal(t, 3, sent)
	assert.Equal(t, []string{"1@c.us:first", "2@c.us:second", "3@c.us:third"}, sender.sent)
	assert.Equal(t, 0, q.Depth("tenant-a"))
}

func TestQueueFlushDropsFailedMessages(t *testing.T) {
	q := NewQueue(logging.NewNop())
	q.Enqueue("tenant-a", Pending{Destination: "1@c.us", Body: "ok"})
	q.Enqueue("tenant-a", Pending{Destination: "2@c.us", Body: "broken"})
	q.Enqueue("tenant-a", Pending{Destination: "3@c.us", Body: "ok"})

	sender := &recordingSender{fail: map[string]error{"2@c.us": errors.New("send failed")}}
	sent := q.Flush(context.Background(), "tenant-a", sender)

	assert.Equal(t, 2, sent)
	// Queue is cleared even though one send failed.
	assert.Equal(t, 0, q.Depth("tenant-a"))

	// A second flush sends nothing.
	assert.Equal(t, 0, q.Flush(context.Background(), "tenant-a", sender))
}

func TestQueueIsolatesTenants(t *testing.T) {
	q := NewQueue(logging.NewNop())
	q.Enqueue("tenant-a", Pending{Destination: "1@c.us", Body: "a"})
	q.Enqueue("tenant-b", Pending{Destination: "2@c.us", Body: "b"})

	sender := &recordingSender{}
	q.Flush(context.Background(), "tenant-a", sender)

	assert.Equal(t, []string{"1@c.us:a"}, sender.sent)
	assert.Equal(t, 1, q.Depth("tenant-b"))
}

func TestQueueClear(t *testing.T) {
	q := NewQueue(logging.NewNop())
	q.Enqueue("tenant-a", Pending{Destination: "1@c.us", Body: "a"})
	q.Clear("tenant-a")

	sender := &recordingSender{}
	assert.Equal(t, 0, q.Flush(context.Background(), "tenant-a", sender))
	assert.Empty(t, sender.sent)
}

func TestQueueEnqueueReturnsDepth(t *testing.T) {
	q := NewQueue(logging.NewNop())
	assert.Equal(t, 1, q.Enqueue("tenant-a", Pending{Destination: "1@c.us", Body: "a"}))
	assert.Equal(t, 2, q.Enqueue("tenant-a", Pending{Destination: "1@c.us", Body: "b"}))
}
