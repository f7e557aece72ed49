package reuse

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/RishiKendai/palimpsest/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	statusKeyPrefix = "reuse_run_status:"
	statusTTL       = 12 * time.Hour
)

// ErrStatusNotFound is returned when no status is stored for a run
var ErrStatusNotFound = errors.New("run status not found")

var validSteps = map[models.Step]bool{
	models.StepIdle:          true,
	models.StepQueued:        true,
	models.StepLoadingInputs: true,
	models.StepBuildingIndex: true,
	models.StepMatching:      true,
	models.StepDone:          true,
	models.StepNotFound:      true,
	models.StepFailed:        true,
}

// StatusStore keeps the live step and progress of runs in a Redis hash
type StatusStore struct {
	rdb redis.Cmdable
}

func NewStatusStore(rdb redis.Cmdable) *StatusStore {
	return &StatusStore{rdb: rdb}
}

func statusKey(runID string) string {
	return statusKeyPrefix + runID
}

func (s *StatusStore) UpdateStep(ctx context.Context, runID string, step models.Step) error {
	if !validSteps[step] {
		return fmt.Errorf("unknown step: %s", step)
	}
	return s.set(ctx, runID, "step", string(step))
}

func (s *StatusStore) UpdateProgress(ctx context.Context, runID string, progress int) error {
	return s.set(ctx, runID, "progress", strconv.Itoa(progress))
}

func (s *StatusStore) set(ctx context.Context, runID, field, value string) error {
	rkey := statusKey(runID)

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, rkey, field, value)
	pipe.Expire(ctx, rkey, statusTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).
			Str(field, value).
			Str("runId", runID).
			Str("redisKey", rkey).
			Msg("Failed to update status in Redis")
		return fmt.Errorf("failed to update status in Redis: %w", err)
	}

	log.Trace().
		Str(field, value).
		Str("runId", runID).
		Msg("Status updated in Redis")

	return nil
}

func (s *StatusStore) Get(ctx context.Context, runID string) (*models.RunStatus, error) {
	fields, err := s.rdb.HGetAll(ctx, statusKey(runID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read status from Redis: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrStatusNotFound
	}

	status := &models.RunStatus{Step: models.Step(fields["step"])}
	if status.Step == "" {
		status.Step = models.StepIdle
	}
	if p, ok := fields["progress"]; ok {
		status.Progress, _ = strconv.Atoi(p)
	}
	return status, nil
}

// Hooks returns run hooks mirroring step and progress into Redis. Write failures are logged, not returned.
func (s *StatusStore) Hooks(ctx context.Context, runID string) Hooks {
	return Hooks{
		Progress: func(value int) {
			if err := s.UpdateProgress(ctx, runID, value); err != nil {
				log.Warn().Err(err).Str("runId", runID).Msg("Failed to publish progress")
			}
		},
		Step: func(step models.Step) {
			if err := s.UpdateStep(ctx, runID, step); err != nil {
				log.Warn().Err(err).Str("runId", runID).Msg("Failed to publish step")
			}
		},
	}
}
