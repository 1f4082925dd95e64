// Package thermal implements the "Pi loop": a single-threaded,
// ticker-driven regulator owning the hotend and bed set-points, bang-bang
// heater control with hysteresis, and wait-for-temperature/minimum-
// temperature servicing.
//
// Grounded on core/adc.go/core/pwm.go's periodic read-then-drive
// shape, adapted from embedded register polling to HAL calls, and on
// standalone/manager.go's EmergencyStop best-effort shutdown idiom.
package thermal

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrTargetChanged is returned to a parked waiter whose heater's
// set-point mutated before the wait was satisfied.
var ErrTargetChanged = errors.New("thermal: target changed")

// heaterHAL is the slice of internal/hal.HAL that the regulator needs.
// Declared at point of use so tests can exercise the bang-bang and
// waiter logic against a fake rather than a real process image.
type heaterHAL interface {
	ReadHotendTemp() (float64, error)
	ReadBedTemp() (float64, error)
	SetHotendHeater(on bool) error
	SetBedHeater(on bool) error
}

// HeaterLimits bounds a single heater's configured set-point range.
// Thermal itself does not enforce these — bounds are pre-validated by
// the caller before a target ever reaches the command channel — they
// exist here only for Config's documentation value and for callers
// that want to read them back.
type HeaterLimits struct {
	Lower, Upper uint16
}

// Config is the regulator's static tuning.
type Config struct {
	CheckInterval time.Duration
	Hysteresis    float64 // degrees C below target at which the heater turns back on
	Epsilon       float64 // degrees C tolerance for "at target"

	Hotend HeaterLimits
	Bed    HeaterLimits
}

type cmdKind uint8

const (
	cmdSetHotendTarget cmdKind = iota
	cmdSetBedTarget
	cmdWaitHotendTarget
	cmdWaitBedTarget
	cmdWaitBedMinTemp
	cmdStop
	cmdEStop
)

type command struct {
	kind    cmdKind
	target  *uint16
	minTemp *uint16
	reply   chan error
}

// ExitError aggregates best-effort heater-off failures at shutdown or
// estop; either field may be nil.
type ExitError struct {
	Hotend, Bed error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("thermal: exit: hotend=%v bed=%v", e.Hotend, e.Bed)
}

func (e *ExitError) anySet() bool { return e.Hotend != nil || e.Bed != nil }

// Thermal is the Pi loop. Construct with New, which spawns its
// goroutine; release with Close.
type Thermal struct {
	hal heaterHAL
	cfg Config

	hotendTarget atomic.Uint32 // 0 = off
	bedTarget    atomic.Uint32

	hotendOn, bedOn bool // last-commanded heater state, for hysteresis

	exitErr error // set by run on exit if forcing a heater off failed

	cmd  chan command
	stop chan struct{}
	done chan struct{}
}

// New builds a Thermal regulator over the given HAL and starts its loop.
func New(h heaterHAL, cfg Config) *Thermal {
	t := &Thermal{
		hal:  h,
		cfg:  cfg,
		cmd:  make(chan command, 8),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go t.run()
	return t
}

func u16ptr(v uint32) *uint16 {
	if v == 0 {
		return nil
	}
	u := uint16(v)
	return &u
}

// HotendTarget returns the active hotend set-point, or nil if off.
func (t *Thermal) HotendTarget() *uint16 { return u16ptr(t.hotendTarget.Load()) }

// BedTarget returns the active bed set-point, or nil if off.
func (t *Thermal) BedTarget() *uint16 { return u16ptr(t.bedTarget.Load()) }

func (t *Thermal) sendCmd(c command) {
	select {
	case t.cmd <- c:
	case <-t.done:
	}
}

// SetHotendTarget sets (or, if nil, clears) the hotend set-point.
func (t *Thermal) SetHotendTarget(target *uint16) {
	t.sendCmd(command{kind: cmdSetHotendTarget, target: target})
}

// SetBedTarget sets (or, if nil, clears) the bed set-point.
func (t *Thermal) SetBedTarget(target *uint16) {
	t.sendCmd(command{kind: cmdSetBedTarget, target: target})
}

// WaitHotendTarget blocks until the hotend reaches its active
// set-point, or returns ErrTargetChanged if the set-point mutates
// before that happens.
func (t *Thermal) WaitHotendTarget() error {
	reply := make(chan error, 1)
	t.sendCmd(command{kind: cmdWaitHotendTarget, reply: reply})
	return t.await(reply)
}

// WaitBedTarget blocks until the bed reaches its active set-point.
func (t *Thermal) WaitBedTarget() error {
	reply := make(chan error, 1)
	t.sendCmd(command{kind: cmdWaitBedTarget, reply: reply})
	return t.await(reply)
}

// WaitBedMinTemp blocks until the bed reaches at least min, independent
// of the bed's current target. A nil min resolves immediately.
func (t *Thermal) WaitBedMinTemp(min *uint16) error {
	reply := make(chan error, 1)
	t.sendCmd(command{kind: cmdWaitBedMinTemp, minTemp: min, reply: reply})
	return t.await(reply)
}

func (t *Thermal) await(reply chan error) error {
	select {
	case err := <-reply:
		return err
	case <-t.done:
		return ErrTargetChanged
	}
}

// Stop clears both set-points and releases any parked waiters.
func (t *Thermal) Stop() {
	reply := make(chan error, 1)
	t.sendCmd(command{kind: cmdStop, reply: reply})
	<-reply
}

// EStop forces both heaters off immediately, best-effort, and releases
// any parked waiters.
func (t *Thermal) EStop() error {
	reply := make(chan error, 1)
	t.sendCmd(command{kind: cmdEStop, reply: reply})
	return <-reply
}

// Close stops the regulator's goroutine, forcing both heaters off
// best-effort on the way out, and waits for it to exit. It returns the
// *ExitError if forcing a heater off failed.
func (t *Thermal) Close() error {
	close(t.stop)
	<-t.done
	return t.exitErr
}

type waiters struct {
	hotend []chan error
	bed    []chan error
	minBed []struct {
		min   uint16
		reply chan error
	}
}

func (t *Thermal) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.cfg.CheckInterval)
	defer ticker.Stop()

	var w waiters

	for {
		select {
		case <-t.stop:
			if exitErr := t.forceOff(); exitErr.anySet() {
				// Best-effort: the aggregate is handed to Close, which
				// returns it to its caller (HwCtrl.Exit).
				t.exitErr = exitErr
			}
			t.releaseAll(&w, ErrTargetChanged)
			return

		case c := <-t.cmd:
			t.handleCommand(c, &w)

		case <-ticker.C:
			t.regulate(&w)
		}
	}
}

func (t *Thermal) handleCommand(c command, w *waiters) {
	switch c.kind {
	case cmdSetHotendTarget:
		t.setTarget(&t.hotendTarget, c.target)
		t.release(&w.hotend, ErrTargetChanged)
	case cmdSetBedTarget:
		t.setTarget(&t.bedTarget, c.target)
		t.release(&w.bed, ErrTargetChanged)
	case cmdWaitHotendTarget:
		if t.hotendSatisfied() {
			c.reply <- nil
		} else {
			w.hotend = append(w.hotend, c.reply)
		}
	case cmdWaitBedTarget:
		if t.bedSatisfied() {
			c.reply <- nil
		} else {
			w.bed = append(w.bed, c.reply)
		}
	case cmdWaitBedMinTemp:
		if c.minTemp == nil {
			c.reply <- nil
			return
		}
		actual, err := t.hal.ReadBedTemp()
		if err == nil && actual >= float64(*c.minTemp) {
			c.reply <- nil
			return
		}
		w.minBed = append(w.minBed, struct {
			min   uint16
			reply chan error
		}{min: *c.minTemp, reply: c.reply})
	case cmdStop:
		t.setTarget(&t.hotendTarget, nil)
		t.setTarget(&t.bedTarget, nil)
		t.releaseAll(w, ErrTargetChanged)
		exitErr := t.forceOff()
		if exitErr.anySet() {
			c.reply <- exitErr
		} else {
			c.reply <- nil
		}
	case cmdEStop:
		t.setTarget(&t.hotendTarget, nil)
		t.setTarget(&t.bedTarget, nil)
		t.releaseAll(w, ErrTargetChanged)
		exitErr := t.forceOff()
		if exitErr.anySet() {
			c.reply <- exitErr
		} else {
			c.reply <- nil
		}
	}
}

func (t *Thermal) setTarget(target *atomic.Uint32, v *uint16) {
	if v == nil {
		target.Store(0)
		return
	}
	target.Store(uint32(*v))
}

func (t *Thermal) hotendSatisfied() bool {
	target := t.hotendTarget.Load()
	if target == 0 {
		return true
	}
	actual, err := t.hal.ReadHotendTemp()
	return err == nil && abs(actual-float64(target)) <= t.cfg.Epsilon
}

func (t *Thermal) bedSatisfied() bool {
	target := t.bedTarget.Load()
	if target == 0 {
		return true
	}
	actual, err := t.hal.ReadBedTemp()
	return err == nil && abs(actual-float64(target)) <= t.cfg.Epsilon
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func (t *Thermal) release(ws *[]chan error, err error) {
	for _, reply := range *ws {
		reply <- err
	}
	*ws = nil
}

func (t *Thermal) releaseAll(w *waiters, err error) {
	t.release(&w.hotend, err)
	t.release(&w.bed, err)
	for _, mw := range w.minBed {
		mw.reply <- err
	}
	w.minBed = nil
}

// regulate reads both thermistors, applies bang-bang control with
// hysteresis, drives the heater outputs, and satisfies any parked
// waiters whose condition now holds.
func (t *Thermal) regulate(w *waiters) {
	hotendTarget := t.hotendTarget.Load()
	bedTarget := t.bedTarget.Load()

	if actual, err := t.hal.ReadHotendTemp(); err == nil {
		t.hotendOn = bangBang(t.hotendOn, actual, hotendTarget, t.cfg.Hysteresis)
		_ = t.hal.SetHotendHeater(t.hotendOn)
		if hotendTarget != 0 && abs(actual-float64(hotendTarget)) <= t.cfg.Epsilon {
			t.release(&w.hotend, nil)
		}
	}

	if actual, err := t.hal.ReadBedTemp(); err == nil {
		t.bedOn = bangBang(t.bedOn, actual, bedTarget, t.cfg.Hysteresis)
		_ = t.hal.SetBedHeater(t.bedOn)
		if bedTarget != 0 && abs(actual-float64(bedTarget)) <= t.cfg.Epsilon {
			t.release(&w.bed, nil)
		}

		remaining := w.minBed[:0]
		for _, mw := range w.minBed {
			if actual >= float64(mw.min) {
				mw.reply <- nil
			} else {
				remaining = append(remaining, mw)
			}
		}
		w.minBed = remaining
	}
}

// bangBang returns the next heater-on state given the last state,
// actual temperature, target (0 = off), and hysteresis band.
func bangBang(on bool, actual float64, target uint32, hysteresis float64) bool {
	if target == 0 {
		return false
	}
	t := float64(target)
	if actual >= t {
		return false
	}
	if actual < t-hysteresis {
		return true
	}
	return on
}

// forceOff drives both heaters off, best-effort, aggregating failures.
func (t *Thermal) forceOff() *ExitError {
	e := &ExitError{}
	if err := t.hal.SetHotendHeater(false); err != nil {
		e.Hotend = err
	} else {
		t.hotendOn = false
	}
	if err := t.hal.SetBedHeater(false); err != nil {
		e.Bed = err
	} else {
		t.bedOn = false
	}
	return e
}
