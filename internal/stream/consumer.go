package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/RishiKendai/palimpsest/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RunExecutor executes a run request to completion
type RunExecutor interface {
	Run(ctx context.Context, req models.RunRequest) (*models.RunResult, error)
}

// Consumer reads run requests from a Redis stream consumer group
type Consumer struct {
	client              redis.Cmdable
	streamKey           string
	consumerGroup       string
	consumerName        string
	runs                RunExecutor
	retryHandler        *RetryHandler
	retentionDuration   time.Duration
	pelRecoveryInterval time.Duration
	pelMinIdle          time.Duration
	cleanupInterval     time.Duration
	readBlock           time.Duration
	lastPELCheck        time.Time
}

func NewConsumer(
	client redis.Cmdable,
	streamKey string,
	consumerGroup string,
	consumerName string,
	runs RunExecutor,
	retryHandler *RetryHandler,
	retentionDuration time.Duration,
) *Consumer {
	return &Consumer{
		client:              client,
		streamKey:           streamKey,
		consumerGroup:       consumerGroup,
		consumerName:        consumerName,
		runs:                runs,
		retryHandler:        retryHandler,
		retentionDuration:   retentionDuration,
		pelRecoveryInterval: 30 * time.Second,
		pelMinIdle:          time.Minute,
		cleanupInterval:     time.Hour,
		readBlock:           time.Second,
		lastPELCheck:        time.Now(),
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	if err := c.createConsumerGroup(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create consumer group, may already exist")
	}

	// Runs claimed by a consumer that crashed are still pending
	if err := c.recoverPEL(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to recover PEL messages on startup")
	}
	c.lastPELCheck = time.Now()

	go c.runCleanupPeriodically(ctx)
	log.Info().
		Str("stream", c.streamKey).
		Str("consumer", c.consumerName).
		Dur("cleanup_interval", c.cleanupInterval).
		Dur("retention", c.retentionDuration).
		Msg("Run request consumer started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := c.consume(ctx); err != nil {
				log.Error().Err(err).Msg("Error consuming run requests")
				time.Sleep(time.Second)
			}
		}
	}
}

func (c *Consumer) createConsumerGroup(ctx context.Context) error {
	// MKSTREAM creates the stream if it doesn't exist
	err := c.client.XGroupCreateMkStream(ctx, c.streamKey, c.consumerGroup, "$").Err()
	if err != nil {
		if strings.Contains(err.Error(), "BUSYGROUP") {
			log.Debug().Str("group", c.consumerGroup).Msg("Consumer group already exists")
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	log.Info().
		Str("group", c.consumerGroup).
		Str("stream", c.streamKey).
		Msg("Created consumer group")
	return nil
}

// recoverPEL claims and processes messages left idle in the Pending Entry List
func (c *Consumer) recoverPEL(ctx context.Context) error {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.streamKey,
		Group:  c.consumerGroup,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get pending messages: %w", err)
	}

	messageIDs := make([]string, 0, len(pending))
	for _, p := range pending {
		if p.Idle >= c.pelMinIdle {
			messageIDs = append(messageIDs, p.ID)
		}
	}
	if len(messageIDs) == 0 {
		return nil
	}

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.streamKey,
		Group:    c.consumerGroup,
		Consumer: c.consumerName,
		MinIdle:  c.pelMinIdle,
		Messages: messageIDs,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to claim messages: %w", err)
	}

	log.Info().
		Int("pending", len(pending)).
		Int("claimed", len(claimed)).
		Msg("Claimed idle run requests")

	for _, msg := range claimed {
		if err := c.processMessage(ctx, msg); err != nil {
			log.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to process claimed message")
		}
	}

	return nil
}

func (c *Consumer) consume(ctx context.Context) error {
	if time.Since(c.lastPELCheck) > c.pelRecoveryInterval {
		if err := c.recoverPEL(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to recover PEL messages")
		}
		c.lastPELCheck = time.Now()
	}

	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.consumerGroup,
		Consumer: c.consumerName,
		Streams:  []string{c.streamKey, ">"},
		Count:    1, // runs are heavy, take one at a time
		Block:    c.readBlock,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read from stream: %w", err)
	}

	for _, stream := range streams {
		if stream.Stream != c.streamKey {
			continue
		}
		for _, msg := range stream.Messages {
			if err := c.processMessage(ctx, msg); err != nil {
				log.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to process run request")
			}
		}
	}

	return nil
}

// processMessage runs one request. The message is acknowledged whatever the outcome;
// failures end up in the dead letter stream.
func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage) error {
	defer c.acknowledge(ctx, msg.ID)

	req, err := ParseRunRequest(msg)
	if err != nil {
		if dlqErr := c.retryHandler.DeadLetter(ctx, msg.ID, msg.Values, err, 0); dlqErr != nil {
			log.Error().Err(dlqErr).Str("message_id", msg.ID).Msg("Failed to dead-letter message")
		}
		return err
	}
	if req.RunID == "" {
		// Retries and redeliveries keep reporting under the same run
		req.RunID = msg.ID
	}

	return c.retryHandler.RetryWithBackoff(ctx, func() error {
		_, err := c.runs.Run(ctx, req)
		return err
	}, msg.ID, msg.Values)
}

// cleanupOldMessages trims messages older than the retention duration
func (c *Consumer) cleanupOldMessages(ctx context.Context) error {
	cutoffTime := time.Now().Add(-c.retentionDuration)
	minID := fmt.Sprintf("%d-0", cutoffTime.UnixMilli())

	trimmed, err := c.client.XTrimMinID(ctx, c.streamKey, minID).Result()
	if err != nil {
		return fmt.Errorf("failed to trim stream: %w", err)
	}

	if trimmed > 0 {
		log.Debug().
			Int64("trimmed", trimmed).
			Str("cutoff_time", cutoffTime.Format(time.RFC3339)).
			Msg("Trimmed old run requests from stream")
	}

	return nil
}

func (c *Consumer) runCleanupPeriodically(ctx context.Context) {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	if err := c.cleanupOldMessages(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to run initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.cleanupOldMessages(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to cleanup old messages")
			}
		}
	}
}

func (c *Consumer) acknowledge(ctx context.Context, messageID string) {
	if err := c.client.XAck(ctx, c.streamKey, c.consumerGroup, messageID).Err(); err != nil {
		log.Error().Err(err).Str("message_id", messageID).Msg("Failed to acknowledge message")
		return
	}
	log.Debug().Str("message_id", messageID).Msg("Message acknowledged")
}
