package reuse

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countJob struct {
	n *atomic.Int32
}

func (j countJob) Execute(ctx context.Context) error {
	j.n.Add(1)
	return nil
}

func TestWorkerPool(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2)
	assert.Equal(t, 2, pool.Size())

	var n atomic.Int32
	for i := 0; i < 20; i++ {
		require.NoError(t, pool.Submit(context.Background(), countJob{n: &n}))
	}
	assert.Eventually(t, func() bool { return n.Load() == 20 }, time.Second, 5*time.Millisecond)

	pool.Close()
	pool.Close()
	assert.Error(t, pool.Submit(context.Background(), countJob{n: &n}))
}

func TestWorkerPoolDefaultSize(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 0)
	defer pool.Close()
	assert.GreaterOrEqual(t, pool.Size(), 1)
}

func TestWorkerPoolSubmitCancelled(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	block := make(chan struct{})
	defer close(block)
	// fill the worker and the queue so Submit has to wait
	for i := 0; i < 3; i++ {
		_ = pool.Submit(context.Background(), blockingJob{block: block})
	}
	assert.ErrorIs(t, pool.Submit(ctx, blockingJob{block: block}), context.Canceled)
}

func TestWorkerPoolSubmitCancelledWithRoom(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 2)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var n atomic.Int32
	for i := 0; i < 50; i++ {
		assert.ErrorIs(t, pool.Submit(ctx, countJob{n: &n}), context.Canceled)
	}
	assert.Equal(t, int32(0), n.Load())
}

func TestWorkerPoolDone(t *testing.T) {
	pool := NewWorkerPool(context.Background(), 1)

	select {
	case <-pool.Done():
		t.Fatal("pool reported done before Close")
	default:
	}

	pool.Close()
	select {
	case <-pool.Done():
	case <-time.After(time.Second):
		t.Fatal("pool not done after Close")
	}
}

type blockingJob struct {
	block chan struct{}
}

func (j blockingJob) Execute(ctx context.Context) error {
	select {
	case <-j.block:
	case <-ctx.Done():
	}
	return nil
}
