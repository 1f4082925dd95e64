// Package executor implements the single-threaded action executor:
// the one goroutine that ever calls into Motors, dispatching actions
// either from a running job's Decoder or from a single manual request
// issued by the API while idle.
//
// Grounded on standalone/manager.go's ProcessByte/ProcessLine dispatch
// loop and protocol/transport_host.go's channel/select idioms.
package executor

import (
	"fmt"
	"time"

	"github.com/PS-3D/3dprintd/internal/action"
	"github.com/PS-3D/3dprintd/internal/axis"
	"github.com/PS-3D/3dprintd/internal/errbus"
	"github.com/PS-3D/3dprintd/internal/gcode"
	"github.com/PS-3D/3dprintd/internal/motors"
	"github.com/PS-3D/3dprintd/internal/thermal"

	"sync/atomic"
)

// Decoder is the slice of internal/gcode.Decoder the Executor drives.
type Decoder interface {
	Out() <-chan gcode.Decoded
	Err() error
	Stop()
}

// JobResult reports how a print ended: nil Err for a clean end of
// file, non-nil for a decode or motion failure.
type JobResult struct {
	Err error
}

type ctrlKind uint8

const (
	ctrlStart ctrlKind = iota
	ctrlStop
	ctrlPause
	ctrlPlay
	ctrlExit
)

type ctrlCmd struct {
	kind  ctrlKind
	dec   Decoder
	reply chan error
}

type manualCmd struct {
	action action.Action
	reply  chan error
}

// Executor is the single owner of Motors. Construct with New, which
// starts its goroutine; release with Exit.
type Executor struct {
	motors  *motors.Motors
	thermal *thermal.Thermal
	bus     *errbus.Bus

	currentLine  atomic.Int32
	zHotendOrigin atomic.Int32

	control chan ctrlCmd
	manual  chan manualCmd
	jobDone chan JobResult

	done chan struct{}
}

// New builds an Executor over already-initialized Motors and Thermal
// handles and starts its goroutine.
func New(m *motors.Motors, th *thermal.Thermal, bus *errbus.Bus) *Executor {
	e := &Executor{
		motors:  m,
		thermal: th,
		bus:     bus,
		control: make(chan ctrlCmd, 4),
		manual:  make(chan manualCmd, 1),
		jobDone: make(chan JobResult, 1),
		done:    make(chan struct{}),
	}
	go e.run()
	return e
}

// CurrentLine returns the source line of the action most recently
// dispatched during a print (0 when idle).
func (e *Executor) CurrentLine() int32 { return e.currentLine.Load() }

// ZHotendOrigin returns the raw Z step position recorded by the last
// ReferenceZHotend action (0 until one has run).
func (e *Executor) ZHotendOrigin() int32 { return e.zHotendOrigin.Load() }

// JobDone is signaled once per job when the Decoder's channel closes,
// whether cleanly or due to an error; HwCtrl reads it to transition
// the job state machine back to Stopped.
func (e *Executor) JobDone() <-chan JobResult { return e.jobDone }

func (e *Executor) sendCtrl(kind ctrlKind, dec Decoder) error {
	reply := make(chan error, 1)
	e.control <- ctrlCmd{kind: kind, dec: dec, reply: reply}
	return <-reply
}

// StartJob begins executing actions pulled from dec until it closes or
// Stop is called. The caller (HwCtrl) is responsible for ensuring no
// job is already running.
func (e *Executor) StartJob(dec Decoder) error {
	return e.sendCtrl(ctrlStart, dec)
}

// Stop preempts a running job (or is a no-op if idle): the Decoder is
// told to stop, and the Executor returns to idle scheduling.
func (e *Executor) Stop() error {
	return e.sendCtrl(ctrlStop, nil)
}

// Pause/Play toggle whether a running job's Decoder is drained; they
// do not affect Motors state directly (a move already in flight runs
// to completion regardless).
func (e *Executor) Pause() error { return e.sendCtrl(ctrlPause, nil) }
func (e *Executor) Play() error  { return e.sendCtrl(ctrlPlay, nil) }

// Exit terminates the goroutine and waits for it to join.
func (e *Executor) Exit() error {
	err := e.sendCtrl(ctrlExit, nil)
	<-e.done
	return err
}

// Manual executes a single action immediately; only meaningful while
// idle (HwCtrl enforces the Stopped precondition before calling this).
func (e *Executor) Manual(a action.Action) error {
	reply := make(chan error, 1)
	e.manual <- manualCmd{action: a, reply: reply}
	return <-reply
}

// Position exposes the raw step mirror for HwCtrl's pos_info.
func (e *Executor) Position() *motors.Position { return e.motors.Position() }

func (e *Executor) run() {
	defer close(e.done)

	var dec Decoder
	var paused bool

	for {
		drained := e.drainControl(&dec, &paused)
		if drained == drainExit {
			return
		}

		switch {
		case dec != nil && !paused:
			select {
			case c := <-e.control:
				if e.handleControl(c, &dec, &paused) {
					return
				}
			case d, ok := <-dec.Out():
				if !ok {
					e.finishJob(dec.Err())
					dec = nil
					continue
				}
				if err := e.execute(d.Action); err != nil {
					e.bus.Post(time.Now(), err)
					dec.Stop()
					e.finishJob(err)
					dec = nil
				} else {
					e.currentLine.Store(int32(d.Span.Line))
				}
			}

		default:
			select {
			case c := <-e.control:
				if e.handleControl(c, &dec, &paused) {
					return
				}
			case m := <-e.manual:
				m.reply <- e.execute(m.action)
			}
		}
	}
}

type drainResult uint8

const (
	drainContinue drainResult = iota
	drainExit
)

// drainControl empties the control channel non-blocking, per the
// scheduling rule's priority drain step.
func (e *Executor) drainControl(dec *Decoder, paused *bool) drainResult {
	for {
		select {
		case c := <-e.control:
			if e.handleControl(c, dec, paused) {
				return drainExit
			}
		default:
			return drainContinue
		}
	}
}

// handleControl applies one control command; it returns true if the
// Executor goroutine should terminate.
func (e *Executor) handleControl(c ctrlCmd, dec *Decoder, paused *bool) bool {
	switch c.kind {
	case ctrlStart:
		*dec = c.dec
		*paused = false
		e.currentLine.Store(0)
		c.reply <- nil
	case ctrlStop:
		if *dec != nil {
			(*dec).Stop()
		}
		*dec = nil
		*paused = false
		e.currentLine.Store(0)
		c.reply <- nil
	case ctrlPause:
		*paused = true
		c.reply <- nil
	case ctrlPlay:
		*paused = false
		c.reply <- nil
	case ctrlExit:
		c.reply <- nil
		return true
	}
	return false
}

func (e *Executor) finishJob(err error) {
	e.currentLine.Store(0)
	select {
	case e.jobDone <- JobResult{Err: err}:
	default:
		// A previous result wasn't drained yet; HwCtrl only ever runs
		// one job at a time so this should not happen, but don't block
		// the Executor goroutine on a slow reader.
	}
}

// execute dispatches one Action synchronously on the Executor
// goroutine, preserving single-threaded execution.
func (e *Executor) execute(a action.Action) error {
	switch a.Kind {
	case action.KindMoveAll:
		if err := e.motors.MoveAll(a.Move); err != nil {
			return fmt.Errorf("executor: move: %w", err)
		}
		return nil

	case action.KindReferenceAxis:
		speed, accelDecel, jerk := resolveReferenceParams(a.RefParams)
		if err := e.motors.ReferenceAxis(a.RefAxis, speed, accelDecel, jerk); err != nil {
			return fmt.Errorf("executor: reference %s: %w", a.RefAxis, err)
		}
		return nil

	case action.KindReferenceZHotend:
		e.zHotendOrigin.Store(e.motors.Position().Get(axis.Z))
		return nil

	case action.KindHotendTarget:
		e.thermal.SetHotendTarget(a.Target)
		return nil

	case action.KindBedTarget:
		e.thermal.SetBedTarget(a.Target)
		return nil

	case action.KindWaitHotendTarget:
		return e.thermal.WaitHotendTarget()

	case action.KindWaitBedTarget:
		return e.thermal.WaitBedTarget()

	case action.KindWaitBedMinTemp:
		return e.thermal.WaitBedMinTemp(a.MinTemp)

	case action.KindWait:
		time.Sleep(a.Dwell)
		return nil

	default:
		return fmt.Errorf("executor: unknown action kind %d", a.Kind)
	}
}

// resolveReferenceParams falls back to zero (caller/HwCtrl is expected
// to have already substituted per-axis configured defaults for any nil
// field before building the Action; zero here only guards a
// programmer error, not a user-facing path).
func resolveReferenceParams(p action.ReferenceParams) (speed, accelDecel, jerk uint32) {
	if p.Speed != nil {
		speed = *p.Speed
	}
	if p.AccelDecel != nil {
		accelDecel = *p.AccelDecel
	}
	if p.Jerk != nil {
		jerk = *p.Jerk
	}
	return
}
