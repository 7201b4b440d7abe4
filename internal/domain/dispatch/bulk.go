package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chatrelay/gateway/internal/infrastructure/logging"
	"github.com/chatrelay/gateway/internal/shared/phone"
)

// ErrNoRecipients is returned when a bulk request carries an empty list.
var ErrNoRecipients = errors.New("no recipients")

// Recipient is one entry in a bulk send request. Field names follow the
// wire format bulk callers already produce.
type Recipient struct {
	Number  string `json:"MobileNo"`
	Message string `json:"Message"`
}

// Failure records one recipient that could not be delivered to.
type Failure struct {
	Number string `json:"number"`
	Reason string `json:"error"`
}

// BulkResult summarizes a completed bulk send.
type BulkResult struct {
	Total        int
	SuccessCount int
	Failed       []Failure
	Estimated    time.Duration
	Elapsed      time.Duration
}

// BulkSender fans a recipient list out in fixed-size concurrent batches
// with a pacing delay between batches. The pacing keeps the messaging
// platform from flagging the account for burst sending.
type BulkSender struct {
	batchSize   int
	delay       time.Duration
	countryCode string
	logger      *logging.Logger
}

// NewBulkSender creates a bulk sender. Non-positive batchSize falls back
// to 5 and a negative delay to zero.
func NewBulkSender(batchSize int, delay time.Duration, countryCode string, logger *logging.Logger) *BulkSender {
	if batchSize <= 0 {
		batchSize = 5
	}
	if delay < 0 {
		delay = 0
	}
	return &BulkSender{
		batchSize:   batchSize,
		delay:       delay,
		countryCode: countryCode,
		logger:      logger,
	}
}

// BatchSize returns the normalized batch size.
func (b *BulkSender) BatchSize() int {
	return b.batchSize
}

// Estimate returns the minimum duration the pacing delays impose on a send
// of n recipients.
func (b *BulkSender) Estimate(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	batches := (n + b.batchSize - 1) / b.batchSize
	return time.Duration(batches-1) * b.delay
}

// Send delivers to every recipient and always returns a full accounting:
// SuccessCount plus len(Failed) equals Total even when ctx is cancelled
// mid-run, in which case undelivered recipients are recorded as failures.
func (b *BulkSender) Send(ctx context.Context, sender Sender, recipients []Recipient) (*BulkResult, error) {
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	result := &BulkResult{
		Total:     len(recipients),
		Estimated: b.Estimate(len(recipients)),
	}

	b.logger.Info("bulk send started",
		zap.Int("recipients", result.Total),
		zap.Int("batch_size", b.batchSize),
		zap.Duration("estimated", result.Estimated))

	start := time.Now()
	var mu sync.Mutex

	for i := 0; i < len(recipients); i += b.batchSize {
		if err := ctx.Err(); err != nil {
			mu.Lock()
			for _, r := range recipients[i:] {
				result.Failed = append(result.Failed, Failure{Number: r.Number, Reason: "cancelled"})
			}
			mu.Unlock()
			break
		}

		end := i + b.batchSize
		if end > len(recipients) {
			end = len(recipients)
		}

		var wg sync.WaitGroup
		for _, recipient := range recipients[i:end] {
			wg.Add(1)
			go func(r Recipient) {
				defer wg.Done()

				if r.Number == "" || r.Message == "" {
					mu.Lock()
					result.Failed = append(result.Failed, Failure{Number: r.Number, Reason: "missing MobileNo or Message"})
					mu.Unlock()
					return
				}

				chatID := phone.ChatID(r.Number, b.countryCode)
				if err := sender.SendMessage(ctx, chatID, r.Message); err != nil {
					b.logger.Warn("bulk recipient failed",
						zap.String("number", r.Number),
						zap.Error(err))
					mu.Lock()
					result.Failed = append(result.Failed, Failure{Number: r.Number, Reason: err.Error()})
					mu.Unlock()
					return
				}

				mu.Lock()
				result.SuccessCount++
				mu.Unlock()
			}(recipient)
		}
		wg.Wait()

		if end < len(recipients) {
			select {
			case <-ctx.Done():
			case <-time.After(b.delay):
			}
		}
	}

	result.Elapsed = time.Since(start)
	b.logger.Info("bulk send finished",
		zap.Int("success", result.SuccessCount),
		zap.Int("failed", len(result.Failed)),
		zap.Duration("elapsed", result.Elapsed))
	return result, nil
}
