package runs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RishiKendai/palimpsest/internal/metrics"
	"github.com/RishiKendai/palimpsest/internal/models"
	"github.com/RishiKendai/palimpsest/internal/reuse"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ReportStore persists run reports
type ReportStore interface {
	SaveReport(ctx context.Context, report *models.RunReport) error
	CompleteReport(ctx context.Context, runID string, status models.Step, result *models.RunResult, errMsg string) error
	GetReport(ctx context.Context, runID string) (*models.RunReport, error)
}

// StatusStore publishes the live state of runs
type StatusStore interface {
	UpdateStep(ctx context.Context, runID string, step models.Step) error
	Get(ctx context.Context, runID string) (*models.RunStatus, error)
	Hooks(ctx context.Context, runID string) reuse.Hooks
}

// Service executes runs on behalf of the HTTP API and the stream consumer
type Service struct {
	engine          *reuse.Engine
	reports         ReportStore
	status          StatusStore
	sem             chan struct{} // Semaphore for bounded concurrency
	timeout         time.Duration
	defaultMinWords int
}

func NewService(
	engine *reuse.Engine,
	reports ReportStore,
	status StatusStore,
	maxConcurrent int,
	timeout time.Duration,
	defaultMinWords int,
) *Service {
	return &Service{
		engine:          engine,
		reports:         reports,
		status:          status,
		sem:             make(chan struct{}, max(1, maxConcurrent)),
		timeout:         timeout,
		defaultMinWords: defaultMinWords,
	}
}

// Prepare fills in the run id and the default window size, then validates req
func (s *Service) Prepare(req models.RunRequest) (models.RunRequest, error) {
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}
	if req.MinWords == 0 {
		req.MinWords = s.defaultMinWords
	}
	if err := reuse.ValidateRequest(req); err != nil {
		return req, err
	}
	return req, nil
}

// Submit queues req and executes it in the background once a slot is free.
// It blocks while every slot is taken, until ctx is done.
func (s *Service) Submit(ctx context.Context, req models.RunRequest) (models.RunRequest, error) {
	req, err := s.Prepare(req)
	if err != nil {
		return req, err
	}

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return req, ctx.Err()
	}

	if err := s.begin(ctx, req); err != nil {
		<-s.sem
		return req, err
	}

	go func() {
		defer func() { <-s.sem }() // Release semaphore

		runCtx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if _, err := s.execute(runCtx, req); err != nil {
			log.Error().Err(err).Str("runId", req.RunID).Msg("Run failed")
		}
	}()

	return req, nil
}

// Run executes req synchronously and persists its report
func (s *Service) Run(ctx context.Context, req models.RunRequest) (*models.RunResult, error) {
	req, err := s.Prepare(req)
	if err != nil {
		return nil, err
	}
	if err := s.begin(ctx, req); err != nil {
		return nil, err
	}
	return s.execute(ctx, req)
}

// Stream executes req in the background without persisting it. Progress is read from the task.
func (s *Service) Stream(ctx context.Context, req models.RunRequest) (*reuse.Task, error) {
	req, err := s.Prepare(req)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	var outcome models.Step
	hooks := reuse.Hooks{
		Step: func(step models.Step) {
			if step.Terminal() {
				outcome = step
			}
		},
		Stats: observeStats,
	}
	task := s.engine.Stream(ctx, req, hooks)
	go func() {
		<-task.Done()
		observeRun(outcome, start)
	}()
	return task, nil
}

func (s *Service) Report(ctx context.Context, runID string) (*models.RunReport, error) {
	return s.reports.GetReport(ctx, runID)
}

func (s *Service) Status(ctx context.Context, runID string) (*models.RunStatus, error) {
	return s.status.Get(ctx, runID)
}

func (s *Service) begin(ctx context.Context, req models.RunRequest) error {
	report := &models.RunReport{
		RunID:    req.RunID,
		Target:   req.Target,
		MinWords: req.MinWords,
		Status:   models.StepQueued,
	}
	if err := s.reports.SaveReport(ctx, report); err != nil {
		return fmt.Errorf("failed to create run report: %w", err)
	}

	if err := s.status.UpdateStep(ctx, req.RunID, models.StepQueued); err != nil {
		log.Warn().Err(err).Str("runId", req.RunID).Msg("Failed to update queued status")
	}
	return nil
}

func (s *Service) execute(ctx context.Context, req models.RunRequest) (*models.RunResult, error) {
	start := time.Now()

	hooks := s.status.Hooks(ctx, req.RunID)
	hooks.Stats = observeStats

	result, err := s.engine.Run(ctx, req, hooks)
	if err != nil {
		observeRun(models.StepFailed, start)
		if cerr := s.reports.CompleteReport(ctx, req.RunID, models.StepFailed, nil, err.Error()); cerr != nil {
			log.Error().Err(cerr).Str("runId", req.RunID).Msg("Failed to update failed report")
		}
		return nil, err
	}

	step := models.StepDone
	if result.Target.NotFound {
		step = models.StepNotFound
	}
	observeRun(step, start)

	if err := s.reports.CompleteReport(ctx, req.RunID, step, result, ""); err != nil {
		return result, fmt.Errorf("failed to store run report: %w", err)
	}

	log.Info().
		Str("runId", req.RunID).
		Str("target", req.Target).
		Str("outcome", string(step)).
		Int("connections", len(result.Connections)).
		Dur("took", time.Since(start)).
		Msg("Run completed")

	return result, nil
}

// IsClientError reports whether err was caused by the request rather than the service
func IsClientError(err error) bool {
	return errors.Is(err, reuse.ErrInvalidRequest)
}

func observeRun(step models.Step, start time.Time) {
	if step == "" {
		step = models.StepFailed
	}
	metrics.RunCount.WithLabelValues(string(step)).Inc()
	metrics.RunDuration.Observe(time.Since(start).Seconds())
}

func observeStats(stats reuse.RunStats) {
	metrics.ShinglesScanned.Add(float64(stats.ScannedShingles))
	metrics.RecordsSkipped.WithLabelValues("malformed").Add(float64(stats.SkippedRecords))
	metrics.RecordsSkipped.WithLabelValues("unknown_document").Add(float64(stats.UnknownDocuments))
	metrics.ConnectionsPerRun.Observe(float64(stats.Connections))
}
