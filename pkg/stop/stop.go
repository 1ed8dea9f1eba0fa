// Package stop implements a pattern for shutting down swarmkeepd's
// long-running components (HTTP/UDP listeners, the live-sync syncer) as one
// coordinated group, naming each component in shutdown logs so an operator
// can tell which listener is slow or failing to stop rather than seeing an
// anonymous count of errors.
package stop

import (
	"sync"
	"time"

	"github.com/swarmkeep/swarmkeep/pkg/log"
)

// AlreadyStopped is a closed error channel to be used by Funcs when
// an element was already stopped.
var AlreadyStopped <-chan error

// AlreadyStoppedFunc is a Func that returns AlreadyStopped.
var AlreadyStoppedFunc = func() <-chan error { return AlreadyStopped }

func init() {
	closeMe := make(chan error)
	close(closeMe)
	AlreadyStopped = closeMe
}

// Stopper is an interface that allows a clean shutdown.
type Stopper interface {
	// Stop returns a channel that indicates whether the stop was
	// successful.
	//
	// The channel can either return one error or be closed.
	// Closing the channel signals a clean shutdown.
	// Stop() should return immediately and perform the actual shutdown in a
	// separate goroutine.
	Stop() <-chan error
}

// Func is a function that can be used to provide a clean shutdown.
type Func func() <-chan error

type named struct {
	name string
	fn   Func
}

// Group is a collection of Stoppers that can be stopped all at once.
type Group struct {
	stoppables []named
	sync.Mutex
}

// NewGroup allocates a new Group.
func NewGroup() *Group {
	return &Group{
		stoppables: make([]named, 0),
	}
}

// Add appends a Stopper to the Group under an auto-generated name.
func (cg *Group) Add(toAdd Stopper) {
	cg.AddNamed(cg.autoName(), toAdd.Stop)
}

// AddFunc appends a Func to the Group under an auto-generated name.
func (cg *Group) AddFunc(toAddFunc Func) {
	cg.AddNamed(cg.autoName(), toAddFunc)
}

// AddNamed appends a Func identified by name, so shutdown logging and
// timeouts can point to the specific listener or syncer that misbehaved.
func (cg *Group) AddNamed(name string, toAddFunc Func) {
	cg.Lock()
	defer cg.Unlock()

	cg.stoppables = append(cg.stoppables, named{name: name, fn: toAddFunc})
}

func (cg *Group) autoName() string {
	return "component-" + itoa(len(cg.stoppables))
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

// Stop stops all members of the Group concurrently and returns every error
// reported. Equivalent to StopWithTimeout(0), which never times out.
func (cg *Group) Stop() []error {
	return cg.StopWithTimeout(0)
}

// StopWithTimeout stops every member concurrently, waiting up to timeout
// for each one (no limit when timeout <= 0). A component that doesn't
// finish in time is logged by name and excluded from the returned errors,
// so one wedged listener can't hang swarmkeepd's shutdown indefinitely.
func (cg *Group) StopWithTimeout(timeout time.Duration) []error {
	cg.Lock()
	defer cg.Unlock()

	var mu sync.Mutex
	var errs []error
	var wg sync.WaitGroup

	for _, s := range cg.stoppables {
		waitFor := s.fn()
		if waitFor == nil {
			panic("received a nil chan from Stop")
		}
		wg.Add(1)
		go func(name string, waitFor <-chan error) {
			defer wg.Done()
			var timeoutC <-chan time.Time
			if timeout > 0 {
				t := time.NewTimer(timeout)
				defer t.Stop()
				timeoutC = t.C
			}
			select {
			case err := <-waitFor:
				if err != nil {
					log.Warn("stop: component reported error on shutdown", log.Fields{"component": name, "err": err.Error()})
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				} else {
					log.Debug("stop: component shut down cleanly", log.Fields{"component": name})
				}
			case <-timeoutC:
				log.Warn("stop: component did not shut down before timeout", log.Fields{"component": name, "timeout": timeout.String()})
			}
		}(s.name, waitFor)
	}

	wg.Wait()
	return errs
}
