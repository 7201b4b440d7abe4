package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatrelay/gateway/internal/infrastructure/logging"
)

type countingSender struct {
	mu       sync.Mutex
	calls    int
	maxBurst int
	inFlight int
	fail     map[string]error
	chatIDs  []string
}

func (s *countingSender) SendMessage(_ context.Context, chatID, body string) error {
	s.mu.Lock()
	s.calls++
	s.inFlight++
	if s.inFlight > s.maxBurst {
		s.maxBurst = s.inFlight
	}
	s.chatIDs = append(s.chatIDs, chatID)
	err := s.fail[chatID]
	s.mu.Unlock()

	time.Sleep(time.Millisecond)

	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	return err
}

func recipients(n int) []Recipient {
	out := make([]Recipient, n)
	for i := range out {
		out[i] = Recipient{Number: "911234500" + string(rune('0'+i%10)), Message: "hello"}
	}
	return out
}

func TestBulkSendAllSucceed(t *testing.T) {
	b := NewBulkSender(5, 0, "91", logging.NewNop())
	sender := &countingSender{}

	result, err := b.Send(context.Background(), sender, recipients(12))
	require.NoError(t, err)

	assert.Equal(t, 12, result.Total)
	assert.Equal(t, 12, result.SuccessCount)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 12, sender.calls)
	// Concurrency never exceeds the batch size.
	assert.LessOrEqual(t, sender.maxBurst, 5)
}

func TestBulkSendRejectsEmptyList(t *testing.T) {
	b := NewBulkSender(5, 0, "91", logging.NewNop())
	_, err := b.Send(context.Background(), &countingSender{}, nil)
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestBulkSendAccountsForEveryRecipient(t *testing.T) {
	b := NewBulkSender(2, 0, "91", logging.NewNop())
	sender := &countingSender{fail: map[string]error{
		"919999999999@c.us": errors.New("unreachable"),
	}}

	list := []Recipient{
		{Number: "9111111111", Message: "hi"},
		{Number: "9999999999", Message: "hi"},
		{Number: "", Message: "hi"},
		{Number: "9122222222", Message: ""},
		{Number: "9133333333", Message: "hi"},
	}

	result, err := b.Send(context.Background(), sender, list)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, result.Total, result.SuccessCount+len(result.Failed))
	assert.Equal(t, 2, result.SuccessCount)
	assert.Len(t, result.Failed, 3)
}

func TestBulkSendNormalizesNumbers(t *testing.T) {
	b := NewBulkSender(5, 0, "91", logging.NewNop())
	sender := &countingSender{}

	_, err := b.Send(context.Background(), sender, []Recipient{
		{Number: "+91 98765-43210", Message: "hi"},
		{Number: "9876543210", Message: "hi"},
	})
	require.NoError(t, err)

	assert.Contains(t, sender.chatIDs, "919876543210@c.us")
	assert.Len(t, sender.chatIDs, 2)
}

func TestBulkSendEstimate(t *testing.T) {
	b := NewBulkSender(5, time.Second, "91", logging.NewNop())

	assert.Equal(t, time.Duration(0), b.Estimate(0))
	assert.Equal(t, time.Duration(0), b.Estimate(5))
	assert.Equal(t, time.Second, b.Estimate(6))
	assert.Equal(t, 2*time.Second, b.Estimate(11))
}

func TestBulkSendPacesBatches(t *testing.T) {
	delay := 30 * time.Millisecond
	b := NewBulkSender(2, delay, "91", logging.NewNop())
	sender := &countingSender{}

	start := time.Now()
	result, err := b.Send(context.Background(), sender, recipients(6))
	require.NoError(t, err)

	// Three batches means two pacing delays.
	assert.GreaterOrEqual(t, time.Since(start), 2*delay)
	assert.Equal(t, 6, result.SuccessCount)
}

func TestBulkSendCancelledMidRun(t *testing.T) {
	b := NewBulkSender(1, 50*time.Millisecond, "91", logging.NewNop())
	sender := &countingSender{}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result, err := b.Send(ctx, sender, recipients(10))
	require.NoError(t, err)

	assert.Equal(t, 10, result.Total)
	assert.Equal(t, result.Total, result.SuccessCount+len(result.Failed))
	assert.Less(t, result.SuccessCount, 10)
}
