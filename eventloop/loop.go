// Package eventloop ties the tracker's periodic background work and
// frontend listeners into one shutdown-coordinated unit. Each listener
// (HTTP, UDP) still runs its own accept/read loop — goroutines parked on
// blocking reads, multiplexed by the Go runtime's netpoller, are this
// core's idiomatic rendition of a single-threaded non-blocking event loop
// (see DESIGN.md's Open Question resolution). Loop itself only owns the
// maintenance ticker (clock refresh, peer-store expiry sweep) and the
// shutdown group, grounded on the teacher's frontend/udp serve-loop idiom
// (closing channel + sync.WaitGroup) and pkg/stop's concurrent group.
package eventloop

import (
	"context"
	"sync"
	"time"

	"github.com/swarmkeep/swarmkeep/pkg/clock"
	"github.com/swarmkeep/swarmkeep/pkg/log"
	"github.com/swarmkeep/swarmkeep/pkg/stop"
	"github.com/swarmkeep/swarmkeep/storage"
)

// DefaultExpireSweepInterval is how often the loop walks every shard to
// evict stale peers and refresh the Prometheus gauges, absent an explicit
// config value.
const DefaultExpireSweepInterval = 30 * time.Second

// shutdownTimeout bounds how long Stop waits for any single managed
// component (an HTTP/UDP listener, the live-sync syncer) before logging it
// as stuck and moving on, so one wedged accept loop can't hang the whole
// process past SIGTERM.
const shutdownTimeout = 10 * time.Second

// Loop drives the tracker's periodic maintenance work and coordinates
// shutdown across every long-running component registered with Manage.
type Loop struct {
	clock *clock.Clock
	store *storage.PeerStore

	sweepInterval time.Duration

	closing chan struct{}
	wg      sync.WaitGroup

	shutdown *stop.Group
}

// New builds a Loop around a clock and peer store. sweepInterval <= 0 uses
// DefaultExpireSweepInterval.
func New(c *clock.Clock, store *storage.PeerStore, sweepInterval time.Duration) *Loop {
	if sweepInterval <= 0 {
		sweepInterval = DefaultExpireSweepInterval
	}
	return &Loop{
		clock:         c,
		store:         store,
		sweepInterval: sweepInterval,
		closing:       make(chan struct{}),
		shutdown:      stop.NewGroup(),
	}
}

// Manage registers a component to be stopped (and waited on) when the loop
// shuts down. fn must return immediately, performing its own shutdown work
// on a separate goroutine and signaling completion on the returned
// channel, per stop.Func's contract.
func (l *Loop) Manage(fn stop.Func) {
	l.shutdown.AddFunc(fn)
}

// ManageNamed is Manage but labels the component in shutdown logs, so an
// operator can tell which listener is slow to stop.
func (l *Loop) ManageNamed(name string, fn stop.Func) {
	l.shutdown.AddNamed(name, fn)
}

// Run starts the maintenance ticker in the background and returns
// immediately.
func (l *Loop) Run(ctx context.Context) {
	l.wg.Add(1)
	go l.tick(ctx)
}

func (l *Loop) tick(ctx context.Context) {
	defer l.wg.Done()
	t := time.NewTicker(l.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.closing:
			return
		case <-t.C:
			l.clock.Tick()
			l.store.ExpireSweep()
			log.Debug("eventloop: expire sweep complete", nil)
		}
	}
}

// Stop ends the maintenance ticker and stops every managed component
// concurrently, returning any errors they reported.
func (l *Loop) Stop() []error {
	select {
	case <-l.closing:
	default:
		close(l.closing)
	}
	l.wg.Wait()
	return l.shutdown.StopWithTimeout(shutdownTimeout)
}
