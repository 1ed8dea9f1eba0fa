package eventloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swarmkeep/swarmkeep/bittorrent"
	"github.com/swarmkeep/swarmkeep/pkg/clock"
	"github.com/swarmkeep/swarmkeep/storage"
)

func TestLoopRunsExpireSweepOnTicker(t *testing.T) {
	c := clock.New()
	defer c.Stop()

	store := storage.New(storage.Config{BucketCount: 2, BucketTimeout: time.Second}, c)
	defer store.Stop(context.Background())

	// A swarm with no peers is dropped by the first sweep.
	store.SeedDownloaded(bittorrent.InfoHashFromBytes(make([]byte, 20)), 1)
	require.EqualValues(t, 1, store.NumTorrents())

	loop := New(c, store, 200*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Run(ctx)

	time.Sleep(500 * time.Millisecond)
	assert.EqualValues(t, 0, store.NumTorrents())
	errs := loop.Stop()
	assert.Empty(t, errs)
}

func TestLoopStopWaitsForManagedComponents(t *testing.T) {
	c := clock.New()
	defer c.Stop()

	store := storage.New(storage.Config{BucketCount: 2, BucketTimeout: time.Second}, c)
	defer store.Stop(context.Background())

	loop := New(c, store, time.Hour)

	stopped := false
	loop.Manage(func() <-chan error {
		done := make(chan error)
		go func() {
			stopped = true
			close(done)
		}()
		return done
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Run(ctx)

	errs := loop.Stop()
	require.Empty(t, errs)
	assert.True(t, stopped)
}
