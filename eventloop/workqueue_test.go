package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkQueueRunsSubmittedTasks(t *testing.T) {
	q := NewWorkQueue(2, 4)
	defer func() { <-q.Stop() }()

	var n atomic.Int32
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Submit(func(ctx context.Context) { n.Add(1) }))
	}

	require.Eventually(t, func() bool { return n.Load() == 4 }, time.Second, 10*time.Millisecond)
}

func TestWorkQueueSubmitReturnsErrWhenFull(t *testing.T) {
	q := NewWorkQueue(1, 1)
	defer func() { <-q.Stop() }()

	block := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, q.Submit(func(ctx context.Context) { close(started); <-block }))
	<-started // the worker holds the first task, so the queue slot is free
	require.NoError(t, q.Submit(func(ctx context.Context) {}))

	err := q.Submit(func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
}

func TestWorkQueueStopRejectsFurtherSubmits(t *testing.T) {
	q := NewWorkQueue(1, 1)
	<-q.Stop()

	err := q.Submit(func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrQueueFull)
}
