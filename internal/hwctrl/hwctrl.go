// Package hwctrl is the public façade: the job state machine and the
// single entry point every other subsystem (the HTTP API, most
// directly) goes through to reach Executor, Thermal, or the EStop
// worker. It never exposes its collaborators' receivers, only their
// already-constructed handles, so Decoder/Executor lifetimes stay
// acyclic.
//
// Grounded on standalone/manager.go's Manager type: one struct
// coordinating everything else behind a small operation set,
// generalized here to the Stopped/Printing/Paused machine.
package hwctrl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/PS-3D/3dprintd/internal/action"
	"github.com/PS-3D/3dprintd/internal/axis"
	"github.com/PS-3D/3dprintd/internal/errbus"
	"github.com/PS-3D/3dprintd/internal/estop"
	"github.com/PS-3D/3dprintd/internal/executor"
	"github.com/PS-3D/3dprintd/internal/gcode"
	"github.com/PS-3D/3dprintd/internal/kinematics"
	"github.com/PS-3D/3dprintd/internal/thermal"
)

// Status is the job state machine's coarse phase.
type Status uint8

const (
	Stopped Status = iota
	Printing
	Paused
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Printing:
		return "printing"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// StateErrorKind names which precondition the request violated.
type StateErrorKind uint8

const (
	NotStopped StateErrorKind = iota
	NotPaused
	NotPrinting
	ErrStopped
	ErrPrinting
	ErrPaused
)

// StateError is returned whenever a request's precondition on the job
// state machine isn't met. Status carries the state that was actually
// observed, so callers (the API layer) can report both without a
// second query.
type StateError struct {
	Kind   StateErrorKind
	Status Status
}

func (e *StateError) Error() string {
	switch e.Kind {
	case NotStopped:
		return fmt.Sprintf("hwctrl: operation requires Stopped, currently %s", e.Status)
	case NotPaused:
		return fmt.Sprintf("hwctrl: operation requires Paused, currently %s", e.Status)
	case NotPrinting:
		return fmt.Sprintf("hwctrl: operation requires Printing, currently %s", e.Status)
	default:
		return fmt.Sprintf("hwctrl: invalid request while %s", e.Status)
	}
}

// OutOfBoundsError is returned when a caller-supplied parameter falls
// outside the axis's configured limits.
type OutOfBoundsError struct {
	Axis axis.Axis
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("hwctrl: reference params exceed axis %s limits", e.Axis)
}

// StateInfo is the snapshot returned by state_info.
type StateInfo struct {
	Status Status
	Path   string // only meaningful for Printing/Paused
	Line   int    // only meaningful for Printing/Paused
}

// PosInfo is the snapshot returned by pos_info, in millimeters.
type PosInfo struct {
	X, Y, Z float64
}

// ReferenceDefaults is one axis's configured homing defaults, used to
// fill in any field left nil in a ReferenceAxis request.
type ReferenceDefaults struct {
	Speed, AccelDecel, Jerk uint32
}

// Config is HwCtrl's static configuration.
type Config struct {
	Limits       kinematics.Limits
	GCode        gcode.Config
	AxisDefaults [3]ReferenceDefaults // indexed by axis.Axis
}

type jobState struct {
	status Status
	path   string
	file   *os.File // open handle backing the running job's Decoder; nil when Stopped
}

// HwCtrl is the façade. Construct with New, release with Exit.
type HwCtrl struct {
	mu  sync.RWMutex
	job jobState

	exec *executor.Executor
	th   *thermal.Thermal
	es   *estop.Worker
	bus  *errbus.Bus

	cfg Config

	watcherDone chan struct{}
}

// New wires an already-constructed Executor/Thermal/EStop/error-bus
// set into a façade and starts the job-completion watcher goroutine.
func New(exec *executor.Executor, th *thermal.Thermal, es *estop.Worker, bus *errbus.Bus, cfg Config) *HwCtrl {
	hw := &HwCtrl{
		exec:        exec,
		th:          th,
		es:          es,
		bus:         bus,
		cfg:         cfg,
		watcherDone: make(chan struct{}),
	}
	go hw.watchJobDone()
	return hw
}

// watchJobDone transitions Printing/Paused back to Stopped whenever
// the Executor reports a job ended on its own (decoder EOF or a
// motion/decode failure), without ever calling back into the Executor
// while holding hw.mu — only reacting to what it already posted.
func (hw *HwCtrl) watchJobDone() {
	for {
		select {
		case res, ok := <-hw.exec.JobDone():
			if !ok {
				return
			}
			if res.Err != nil {
				hw.bus.Post(time.Now(), res.Err)
			}
			hw.mu.Lock()
			if hw.job.file != nil {
				hw.job.file.Close()
			}
			hw.job = jobState{status: Stopped}
			hw.mu.Unlock()
		case <-hw.watcherDone:
			return
		}
	}
}

// StateInfo reports the current job state.
func (hw *HwCtrl) StateInfo() StateInfo {
	hw.mu.RLock()
	defer hw.mu.RUnlock()
	info := StateInfo{Status: hw.job.status, Path: hw.job.path}
	if hw.job.status != Stopped {
		info.Line = int(hw.exec.CurrentLine())
	}
	return info
}

// PosInfo reports the current machine position in millimeters; Z is
// relative to the recorded hotend origin.
func (hw *HwCtrl) PosInfo() PosInfo {
	pos := hw.exec.Position()
	rawZ := pos.Get(axis.Z) - hw.exec.ZHotendOrigin()
	return PosInfo{
		X: kinematics.StepsToMM(pos.Get(axis.X), hw.cfg.Limits.X),
		Y: kinematics.StepsToMM(pos.Get(axis.Y), hw.cfg.Limits.Y),
		Z: kinematics.StepsToMM(rawZ, hw.cfg.Limits.Z),
	}
}

// TryReferenceAxis homes one axis; requires Stopped. A nil field in
// params is filled from the axis's configured default before the
// resolved triple is checked against the axis's kinematic limits.
func (hw *HwCtrl) TryReferenceAxis(a axis.Axis, params action.ReferenceParams) error {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	if hw.job.status != Stopped {
		return &StateError{Kind: NotStopped, Status: hw.job.status}
	}

	def := hw.cfg.AxisDefaults[a]
	speed, accelDecel, jerk := def.Speed, def.AccelDecel, def.Jerk
	if params.Speed != nil {
		speed = *params.Speed
	}
	if params.AccelDecel != nil {
		accelDecel = *params.AccelDecel
	}
	if params.Jerk != nil {
		jerk = *params.Jerk
	}

	lim := hw.axisLimits(a)
	if speed > lim.SpeedLimit || accelDecel > lim.AccelLimit || accelDecel > lim.DecelLimit ||
		jerk > lim.AccelJerkLimit || jerk > lim.DecelJerkLimit {
		return &OutOfBoundsError{Axis: a}
	}

	return hw.exec.Manual(action.ReferenceAxis(a, action.ReferenceParams{
		Speed:      &speed,
		AccelDecel: &accelDecel,
		Jerk:       &jerk,
	}))
}

func (hw *HwCtrl) axisLimits(a axis.Axis) kinematics.AxisLimits {
	switch a {
	case axis.X:
		return hw.cfg.Limits.X
	case axis.Y:
		return hw.cfg.Limits.Y
	default:
		return hw.cfg.Limits.Z
	}
}

// TryReferenceZHotend records the current raw Z as the hotend's Z
// origin; requires Stopped.
func (hw *HwCtrl) TryReferenceZHotend() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	if hw.job.status != Stopped {
		return &StateError{Kind: NotStopped, Status: hw.job.status}
	}
	return hw.exec.Manual(action.ReferenceZHotend())
}

// TryPrint opens path, starts a Decoder over it, and transitions to
// Printing; requires Stopped.
func (hw *HwCtrl) TryPrint(path string) error {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	if hw.job.status != Stopped {
		return &StateError{Kind: NotStopped, Status: hw.job.status}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("hwctrl: canonicalize %q: %w", path, err)
	}
	f, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf("hwctrl: open %q: %w", abs, err)
	}

	// A fresh Decoder/Translator per job starts logical program
	// coordinates at the origin; physical position (Motors' own
	// mirror) is unaffected and carries over untouched.
	dec := gcode.NewDecoder(abs, f, hw.cfg.GCode)
	if err := hw.exec.StartJob(dec); err != nil {
		f.Close()
		return err
	}

	hw.job = jobState{status: Printing, path: abs, file: f}
	return nil
}

// Stop is idempotent: it transitions to Stopped, preempting any
// running job. Heater set-points are cleared and any parked
// temperature wait is released with thermal.ErrTargetChanged.
func (hw *HwCtrl) Stop() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	if hw.job.status == Stopped {
		return nil
	}
	// Releasing thermal waiters first keeps exec.Stop from waiting on
	// an Executor parked in a temperature wait.
	hw.th.Stop()
	if err := hw.exec.Stop(); err != nil {
		return err
	}
	if hw.job.file != nil {
		hw.job.file.Close()
	}
	hw.job = jobState{status: Stopped}
	return nil
}

// TryPause requires Printing.
func (hw *HwCtrl) TryPause() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	if hw.job.status != Printing {
		return &StateError{Kind: NotPrinting, Status: hw.job.status}
	}
	if err := hw.exec.Pause(); err != nil {
		return err
	}
	hw.job.status = Paused
	return nil
}

// TryPlay requires Paused.
func (hw *HwCtrl) TryPlay() error {
	hw.mu.Lock()
	defer hw.mu.Unlock()

	if hw.job.status != Paused {
		return &StateError{Kind: NotPaused, Status: hw.job.status}
	}
	if err := hw.exec.Play(); err != nil {
		return err
	}
	hw.job.status = Printing
	return nil
}

// EStop posts to the EStop worker without waiting, forces heaters off,
// and immediately transitions the job state to Stopped so a client
// polling state_info right after this call observes the new state
// even though the motors themselves may still be decelerating within
// their overtravel window.
func (hw *HwCtrl) EStop() {
	hw.mu.Lock()
	// Closing the job file directly (rather than routing through
	// exec.Stop, which would wait for the Executor to leave its
	// current action) keeps EStop non-blocking as required; the
	// Decoder, mid-read on a now-closed file, simply errors out and
	// reports through the normal JobDone path.
	if hw.job.file != nil {
		hw.job.file.Close()
	}
	hw.job = jobState{status: Stopped}
	hw.mu.Unlock()

	hw.es.Trigger()
	if err := hw.th.EStop(); err != nil {
		hw.bus.Post(time.Now(), err)
	}
	hw.bus.Post(time.Now(), errors.New("hwctrl: emergency stop triggered"))
}

// Exit performs orderly teardown: join the Executor, join Thermal,
// signal and join the EStop worker, then stop the job-done watcher.
func (hw *HwCtrl) Exit() error {
	if err := hw.exec.Exit(); err != nil {
		return err
	}
	if err := hw.th.Close(); err != nil {
		return err
	}
	hw.es.Exit()
	close(hw.watcherDone)
	return nil
}
