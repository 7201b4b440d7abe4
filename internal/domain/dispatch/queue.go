package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/chatrelay/gateway/internal/infrastructure/logging"
)

// Sender delivers one message to a chat identifier.
type Sender interface {
	SendMessage(ctx context.Context, chatID, body string) error
}

// Pending is a message accepted while its session was not yet ready.
type Pending struct {
	Destination string
	Body        string
}

// Queue holds messages per tenant until the tenant's session becomes ready.
type Queue struct {
	mu      sync.Mutex
	pending map[string][]Pending
	logger  *logging.Logger
}

// NewQueue creates an empty queue.
func NewQueue(logger *logging.Logger) *Queue {
	return &Queue{
		pending: make(map[string][]Pending),
		logger:  logger,
	}
}

// Enqueue appends a message to the tenant's queue and returns its new depth.
func (q *Queue) Enqueue(tenantID string, msg Pending) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending[tenantID] = append(q.pending[tenantID], msg)
	return len(q.pending[tenantID])
}

// Depth returns the number of messages queued for the tenant.
func (q *Queue) Depth(tenantID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending[tenantID])
}

// Flush drains the tenant's queue and sends each message in arrival order.
// Delivery is best effort: failures are logged and the message is dropped,
// never requeued. Returns how many messages were sent successfully.
func (q *Queue) Flush(ctx context.Context, tenantID string, sender Sender) int {
	q.mu.Lock()
	drained := q.pending[tenantID]
	delete(q.pending, tenantID)
	q.mu.Unlock()

	if len(drained) == 0 {
		return 0
	}

	sent := 0
	for _, msg := range drained {
		if err := ctx.Err(); err != nil {
			q.logger.Warn("queue flush interrupted",
				zap.String("tenant_id", tenantID),
				zap.Int("remaining", len(drained)-sent))
			break
		}
		if err := sender.SendMessage(ctx, msg.Destination, msg.Body); err != nil {
			q.logger.Warn("queued message dropped",
				zap.String("tenant_id", tenantID),
				zap.String("destination", msg.Destination),
				zap.Error(err))
			continue
		}
		sent++
	}

	q.logger.Info("queue flushed",
		zap.String("tenant_id", tenantID),
		zap.Int("queued", len(drained)),
		zap.Int("sent", sent))
	return sent
}

// Clear discards the tenant's queued messages without sending them.
func (q *Queue) Clear(tenantID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, tenantID)
}
