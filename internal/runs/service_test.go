package runs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RishiKendai/palimpsest/internal/models"
	"github.com/RishiKendai/palimpsest/internal/reuse"
)

type mockInputs struct {
	err error
}

func (m *mockInputs) LoadMetadata(ctx context.Context) ([]models.RawMetadataRecord, error) {
	return []models.RawMetadataRecord{
		{Filename: "A", Date: "1760", Title: "Target"},
		{Filename: "B", Date: "1790", Title: "Later"},
	}, m.err
}

func (m *mockInputs) LoadCorpus(ctx context.Context) ([]byte, error) {
	return []byte(strings.Join([]string{
		"A/newpage/t/newpage/one two three four",
		"B/newpage/t/newpage/zero one two three",
	}, "\n")), nil
}

type mockReports struct {
	mu      sync.Mutex
	reports map[string]*models.RunReport
	saveErr error
}

func newMockReports() *mockReports {
	return &mockReports{reports: make(map[string]*models.RunReport)}
}

func (m *mockReports) SaveReport(ctx context.Context, report *models.RunReport) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *report
	m.reports[report.RunID] = &copied
	return nil
}

func (m *mockReports) CompleteReport(ctx context.Context, runID string, status models.Step, result *models.RunResult, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	report, ok := m.reports[runID]
	if !ok {
		return errors.New("report not found")
	}
	report.Status = status
	report.Result = result
	report.Error = errMsg
	return nil
}

func (m *mockReports) GetReport(ctx context.Context, runID string) (*models.RunReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report, ok := m.reports[runID]
	if !ok {
		return nil, nil
	}
	copied := *report
	return &copied, nil
}

type mockStatus struct {
	mu       sync.Mutex
	statuses map[string]*models.RunStatus
}

func newMockStatus() *mockStatus {
	return &mockStatus{statuses: make(map[string]*models.RunStatus)}
}

func (m *mockStatus) entry(runID string) *models.RunStatus {
	if _, ok := m.statuses[runID]; !ok {
		m.statuses[runID] = &models.RunStatus{Step: models.StepIdle}
	}
	return m.statuses[runID]
}

func (m *mockStatus) UpdateStep(ctx context.Context, runID string, step models.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entry(runID).Step = step
	return nil
}

func (m *mockStatus) Get(ctx context.Context, runID string) (*models.RunStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.statuses[runID]
	if !ok {
		return nil, reuse.ErrStatusNotFound
	}
	copied := *status
	return &copied, nil
}

func (m *mockStatus) Hooks(ctx context.Context, runID string) reuse.Hooks {
	return reuse.Hooks{
		Progress: func(v int) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.entry(runID).Progress = v
		},
		Step: func(step models.Step) {
			_ = m.UpdateStep(ctx, runID, step)
		},
	}
}

func newService(inputs reuse.Inputs) (*Service, *mockReports, *mockStatus) {
	reports := newMockReports()
	status := newMockStatus()
	svc := NewService(reuse.NewEngine(inputs, nil), reports, status, 2, time.Minute, 3)
	return svc, reports, status
}

func TestPrepare(t *testing.T) {
	svc, _, _ := newService(&mockInputs{})

	req, err := svc.Prepare(models.RunRequest{Target: "A"})
	require.NoError(t, err)
	assert.NotEmpty(t, req.RunID)
	assert.Equal(t, 3, req.MinWords)

	req, err = svc.Prepare(models.RunRequest{RunID: "fixed", Target: "A", MinWords: 5})
	require.NoError(t, err)
	assert.Equal(t, "fixed", req.RunID)
	assert.Equal(t, 5, req.MinWords)

	_, err = svc.Prepare(models.RunRequest{Target: "A", MinWords: -1})
	assert.True(t, IsClientError(err))

	_, err = svc.Prepare(models.RunRequest{})
	assert.True(t, IsClientError(err))
}

func TestRun(t *testing.T) {
	svc, _, _ := newService(&mockInputs{})
	ctx := context.Background()

	result, err := svc.Run(ctx, models.RunRequest{RunID: "r1", Target: "A"})
	require.NoError(t, err)
	require.Len(t, result.Connections, 1)
	assert.Equal(t, models.DirectionOut, result.Connections[0].Direction)
	assert.Equal(t, 1, result.Connections[0].Weight)

	report, err := svc.Report(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.StepDone, report.Status)
	assert.Equal(t, result, report.Result)
	assert.Equal(t, 3, report.MinWords)

	st, err := svc.Status(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, &models.RunStatus{Step: models.StepDone, Progress: 100}, st)
}

func TestRunNotFound(t *testing.T) {
	svc, _, _ := newService(&mockInputs{})
	ctx := context.Background()

	result, err := svc.Run(ctx, models.RunRequest{RunID: "r2", Target: "missing"})
	require.NoError(t, err)
	assert.True(t, result.Target.NotFound)

	report, err := svc.Report(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, models.StepNotFound, report.Status)
}

func TestRunInputFailure(t *testing.T) {
	svc, _, _ := newService(&mockInputs{err: errors.New("offline")})
	ctx := context.Background()

	_, err := svc.Run(ctx, models.RunRequest{RunID: "r3", Target: "A"})
	require.ErrorIs(t, err, reuse.ErrInputUnavailable)
	assert.False(t, IsClientError(err))

	report, err := svc.Report(ctx, "r3")
	require.NoError(t, err)
	assert.Equal(t, models.StepFailed, report.Status)
	assert.Contains(t, report.Error, "offline")
	assert.Nil(t, report.Result)

	st, err := svc.Status(ctx, "r3")
	require.NoError(t, err)
	assert.Equal(t, models.StepFailed, st.Step)
}

func TestRunSaveFailure(t *testing.T) {
	svc, reports, _ := newService(&mockInputs{})
	reports.saveErr = errors.New("mongo down")

	_, err := svc.Run(context.Background(), models.RunRequest{Target: "A"})
	assert.Error(t, err)
}

func TestSubmit(t *testing.T) {
	svc, _, _ := newService(&mockInputs{})
	ctx := context.Background()

	req, err := svc.Submit(ctx, models.RunRequest{Target: "A"})
	require.NoError(t, err)
	require.NotEmpty(t, req.RunID)

	require.Eventually(t, func() bool {
		report, err := svc.Report(ctx, req.RunID)
		return err == nil && report != nil && report.Status == models.StepDone
	}, 2*time.Second, 10*time.Millisecond)

	_, err = svc.Submit(ctx, models.RunRequest{Target: ""})
	assert.True(t, IsClientError(err))
}

func TestSubmitWaitsForSlot(t *testing.T) {
	svc, _, _ := newService(&mockInputs{})
	svc.sem = make(chan struct{}, 1)
	svc.sem <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Submit(ctx, models.RunRequest{Target: "A"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStream(t *testing.T) {
	svc, _, _ := newService(&mockInputs{})

	task, err := svc.Stream(context.Background(), models.RunRequest{Target: "A"})
	require.NoError(t, err)

	var last int
	for v := range task.Progress() {
		last = v
	}
	assert.Equal(t, 100, last)

	result, err := task.Wait()
	require.NoError(t, err)
	assert.Len(t, result.Connections, 1)

	_, err = svc.Stream(context.Background(), models.RunRequest{})
	assert.True(t, IsClientError(err))
}
