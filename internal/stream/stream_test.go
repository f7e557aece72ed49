package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RishiKendai/palimpsest/internal/models"
	"github.com/RishiKendai/palimpsest/internal/reuse"
)

const (
	testStream = "reuse:runs"
	testGroup  = "reuse-workers"
	testDLQ    = "reuse:runs:dead"
)

func newTestClient(t *testing.T) *redis.Client {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type mockExecutor struct {
	mu    sync.Mutex
	calls []models.RunRequest
	errs  []error
}

func (m *mockExecutor) Run(ctx context.Context, req models.RunRequest) (*models.RunResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return nil, err
	}
	return &models.RunResult{Target: models.TargetDescriptor{ID: req.Target}}, nil
}

func (m *mockExecutor) Calls() []models.RunRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.RunRequest(nil), m.calls...)
}

func TestParseRunRequest(t *testing.T) {
	tests := []struct {
		name    string
		values  map[string]interface{}
		want    models.RunRequest
		wantErr bool
	}{
		{
			name:   "all fields",
			values: map[string]interface{}{"runId": "r1", "target": "rousseau_emile", "minWords": "12"},
			want:   models.RunRequest{RunID: "r1", Target: "rousseau_emile", MinWords: 12},
		},
		{
			name:   "default window",
			values: map[string]interface{}{"target": " voltaire "},
			want:   models.RunRequest{Target: "voltaire"},
		},
		{
			name:    "missing target",
			values:  map[string]interface{}{"runId": "r1"},
			wantErr: true,
		},
		{
			name:    "bad window",
			values:  map[string]interface{}{"target": "a", "minWords": "twenty"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRunRequest(redis.XMessage{ID: "1-0", Values: tt.values})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunRequestValues(t *testing.T) {
	req := models.RunRequest{RunID: "r1", Target: "a", MinWords: 7}
	got, err := ParseRunRequest(redis.XMessage{ID: "1-0", Values: RunRequestValues(req)})
	require.NoError(t, err)
	assert.Equal(t, req, got)

	assert.NotContains(t, RunRequestValues(models.RunRequest{Target: "a"}), FieldMinWords)
}

func TestRetryWithBackoff(t *testing.T) {
	ctx := context.Background()

	t.Run("succeeds after failures", func(t *testing.T) {
		client := newTestClient(t)
		h := NewRetryHandler(client, testDLQ).WithBackoff(3, time.Millisecond)

		calls := 0
		err := h.RetryWithBackoff(ctx, func() error {
			calls++
			if calls < 3 {
				return errors.New("corpus offline")
			}
			return nil
		}, "1-0", map[string]interface{}{"target": "a"})

		require.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Equal(t, int64(0), client.XLen(ctx, testDLQ).Val())
	})

	t.Run("dead letters when exhausted", func(t *testing.T) {
		client := newTestClient(t)
		h := NewRetryHandler(client, testDLQ).WithBackoff(2, time.Millisecond)

		calls := 0
		err := h.RetryWithBackoff(ctx, func() error {
			calls++
			return errors.New("corpus offline")
		}, "1-0", map[string]interface{}{"target": "a"})

		require.Error(t, err)
		assert.Equal(t, 3, calls)

		entries, err := client.XRange(ctx, testDLQ, "-", "+").Result()
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "a", entries[0].Values["target"])
		assert.Equal(t, "1-0", entries[0].Values["originalId"])
		assert.Equal(t, "3", entries[0].Values["attempts"])
		assert.Equal(t, "corpus offline", entries[0].Values["error"])
	})

	t.Run("invalid request is not retried", func(t *testing.T) {
		client := newTestClient(t)
		h := NewRetryHandler(client, testDLQ).WithBackoff(3, time.Millisecond)

		calls := 0
		err := h.RetryWithBackoff(ctx, func() error {
			calls++
			return fmt.Errorf("%w: minWords must be at least 1", reuse.ErrInvalidRequest)
		}, "1-0", nil)

		assert.ErrorIs(t, err, reuse.ErrInvalidRequest)
		assert.Equal(t, 1, calls)
		assert.Equal(t, int64(1), client.XLen(ctx, testDLQ).Val())
	})

	t.Run("stops on cancellation", func(t *testing.T) {
		client := newTestClient(t)
		h := NewRetryHandler(client, testDLQ).WithBackoff(3, time.Hour)

		cctx, cancel := context.WithCancel(ctx)
		err := h.RetryWithBackoff(cctx, func() error {
			cancel()
			return errors.New("boom")
		}, "1-0", nil)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, int64(0), client.XLen(ctx, testDLQ).Val())
	})
}

func newTestConsumer(t *testing.T, exec RunExecutor) (*Consumer, *redis.Client) {
	client := newTestClient(t)
	retry := NewRetryHandler(client, testDLQ).WithBackoff(1, time.Millisecond)
	c := NewConsumer(client, testStream, testGroup, "worker-1", exec, retry, time.Hour)
	c.readBlock = 10 * time.Millisecond
	require.NoError(t, c.createConsumerGroup(context.Background()))
	return c, client
}

func TestConsumerProcessesRequest(t *testing.T) {
	ctx := context.Background()
	exec := &mockExecutor{}
	c, client := newTestConsumer(t, exec)

	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: testStream,
		Values: RunRequestValues(models.RunRequest{Target: "rousseau_emile", MinWords: 5}),
	}).Result()
	require.NoError(t, err)

	require.NoError(t, c.consume(ctx))

	calls := exec.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, id, calls[0].RunID)
	assert.Equal(t, "rousseau_emile", calls[0].Target)
	assert.Equal(t, 5, calls[0].MinWords)

	pending, err := client.XPending(ctx, testStream, testGroup).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
	assert.Equal(t, int64(0), client.XLen(ctx, testDLQ).Val())
}

func TestConsumerDeadLettersMalformedRequest(t *testing.T) {
	ctx := context.Background()
	exec := &mockExecutor{}
	c, client := newTestConsumer(t, exec)

	_, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: testStream,
		Values: map[string]interface{}{"runId": "r1"},
	}).Result()
	require.NoError(t, err)

	require.NoError(t, c.consume(ctx))

	assert.Empty(t, exec.Calls())
	assert.Equal(t, int64(1), client.XLen(ctx, testDLQ).Val())

	pending, err := client.XPending(ctx, testStream, testGroup).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending.Count)
}

func TestConsumerRetriesFailedRun(t *testing.T) {
	ctx := context.Background()
	exec := &mockExecutor{errs: []error{errors.New("mongo down")}}
	c, client := newTestConsumer(t, exec)

	_, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: testStream,
		Values: RunRequestValues(models.RunRequest{RunID: "r1", Target: "a"}),
	}).Result()
	require.NoError(t, err)

	require.NoError(t, c.consume(ctx))

	calls := exec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "r1", calls[1].RunID)
	assert.Equal(t, int64(0), client.XLen(ctx, testDLQ).Val())
}

func TestConsumerEmptyStream(t *testing.T) {
	exec := &mockExecutor{}
	c, _ := newTestConsumer(t, exec)

	require.NoError(t, c.consume(context.Background()))
	assert.Empty(t, exec.Calls())
}

func TestCreateConsumerGroupIsIdempotent(t *testing.T) {
	c, _ := newTestConsumer(t, &mockExecutor{})
	assert.NoError(t, c.createConsumerGroup(context.Background()))
}
