package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/palimpsest/internal/reuse"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 2 * time.Second
)

// RetryHandler retries failed runs with exponential backoff and moves
// exhausted messages to a dead letter stream
type RetryHandler struct {
	client        redis.Cmdable
	deadLetterKey string
	maxRetries    int
	baseDelay     time.Duration
}

func NewRetryHandler(client redis.Cmdable, deadLetterKey string) *RetryHandler {
	return &RetryHandler{
		client:        client,
		deadLetterKey: deadLetterKey,
		maxRetries:    defaultMaxRetries,
		baseDelay:     defaultBaseDelay,
	}
}

// WithBackoff overrides the retry budget and the first delay
func (h *RetryHandler) WithBackoff(maxRetries int, baseDelay time.Duration) *RetryHandler {
	h.maxRetries = max(0, maxRetries)
	h.baseDelay = baseDelay
	return h
}

// RetryWithBackoff calls fn until it succeeds or the retries run out.
// Invalid requests are dead-lettered without retrying.
func (h *RetryHandler) RetryWithBackoff(ctx context.Context, fn func() error, msgID string, values map[string]interface{}) error {
	var err error
	attempt := 0
	for ; attempt <= h.maxRetries; attempt++ {
		if attempt > 0 {
			delay := h.baseDelay * time.Duration(1<<(attempt-1))
			log.Warn().
				Err(err).
				Str("message_id", msgID).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Retrying run request")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err = fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, reuse.ErrInvalidRequest) {
			attempt++
			break
		}
	}

	if dlqErr := h.DeadLetter(ctx, msgID, values, err, attempt); dlqErr != nil {
		return fmt.Errorf("%w (dead letter failed: %v)", err, dlqErr)
	}
	return err
}

// DeadLetter copies a failed message to the dead letter stream with the failure reason
func (h *RetryHandler) DeadLetter(ctx context.Context, msgID string, values map[string]interface{}, cause error, attempts int) error {
	fields := make(map[string]interface{}, len(values)+4)
	for k, v := range values {
		fields[k] = v
	}
	fields["originalId"] = msgID
	fields["attempts"] = attempts
	fields["failedAt"] = time.Now().UTC().Format(time.RFC3339)
	if cause != nil {
		fields["error"] = cause.Error()
	}

	if err := h.client.XAdd(ctx, &redis.XAddArgs{
		Stream: h.deadLetterKey,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to dead letter stream: %w", err)
	}

	log.Error().
		Err(cause).
		Str("message_id", msgID).
		Str("stream", h.deadLetterKey).
		Int("attempts", attempts).
		Msg("Run request moved to dead letter stream")
	return nil
}
