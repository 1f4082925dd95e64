// Package estop implements the dedicated emergency-stop worker: a
// single goroutine that owns the Nanotec driver's estop send path and
// nothing else, so an abort can always get through regardless of what
// the Executor or Thermal regulator are doing.
//
// Grounded on core/trsync.go's single-owner synchronization object,
// reached only through its own command channel, with no shared
// mutable state touched by any other goroutine.
package estop

import "time"

// Overtravel bounds the worst-case time motors take to halt on their
// quick-stop ramp once EStop is issued.
const Overtravel = 2000 * time.Millisecond

// Driver is the slice of internal/nanotec.Driver the worker needs.
type Driver interface {
	EStop(overtravel time.Duration) error
}

type cmdKind uint8

const (
	cmdEStop cmdKind = iota
	cmdExit
)

// Worker is the EStop goroutine. Construct with New, which starts it;
// release with Exit.
type Worker struct {
	driver Driver
	cmd    chan cmdKind
	done   chan struct{}
}

// New wraps driver and starts the worker goroutine.
func New(driver Driver) *Worker {
	w := &Worker{
		driver: driver,
		cmd:    make(chan cmdKind, 1),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Trigger posts an EStop request and returns immediately without
// waiting. A request still waiting in the queue (not yet picked up by
// the worker) makes this a no-op rather than piling up redundant trips.
func (w *Worker) Trigger() {
	select {
	case w.cmd <- cmdEStop:
	default:
	}
}

// Exit terminates the worker and waits for it to join.
func (w *Worker) Exit() {
	w.cmd <- cmdExit
	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)
	for c := range w.cmd {
		switch c {
		case cmdEStop:
			if err := w.driver.EStop(Overtravel); err != nil {
				// There is no safer recovery than a failed estop write:
				// the bus may be wedged with motors still commanded to
				// move. This panics rather than logging and continuing.
				panic(err)
			}
		case cmdExit:
			return
		}
	}
}
