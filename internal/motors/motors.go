// Package motors implements the stepper-motor abstraction: driver
// initialization, referencing (homing), coordinated moves, and raw
// step position tracking.
//
// Grounded on standalone/planner/planner.go's
// InitSteppers/QueueMove/SetPosition shape, with the actual wire work
// delegated to internal/nanotec the way host/mcu/mcu.go delegates to
// protocol.HostTransport.
package motors

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/PS-3D/3dprintd/internal/action"
	"github.com/PS-3D/3dprintd/internal/axis"
	"github.com/PS-3D/3dprintd/internal/nanotec"
)

// AxisConfig is one axis motor's wiring and defaults.
type AxisConfig struct {
	Address          uint8
	QuickStopRamp    nanotec.QuickStopRamp
	StepMode         nanotec.StepMode
	EndstopDirection nanotec.EndstopDirection

	DefaultReferenceSpeed      uint32
	DefaultReferenceAccelDecel uint32
	DefaultReferenceJerk       uint32
}

// driver is the slice of internal/nanotec.Driver that Motors needs.
// Declared at point of use, the same way thermal's heaterHAL is, so
// tests can exercise MoveAll/Init/ReferenceAxis against a fake rather
// than a real serial port.
type driver interface {
	Close() error
	EnableAutoStatus(addr uint8) error
	SetPositioningMode(addr uint8, mode nanotec.PositioningMode) error
	SetRotationDirection(addr uint8, dir nanotec.EndstopDirection) error
	SetMinFrequency(addr uint8, hz uint32) error
	SetStepMode(addr uint8, mode nanotec.StepMode) error
	SetLimitBehavior(addr uint8, which nanotec.LimitSwitch, behavior nanotec.LimitBehavior) error
	SetErrorCorrection(addr uint8, enabled bool) error
	SetRampType(addr uint8, r nanotec.RampType) error
	SetQuickStopRamp(addr uint8, ramp nanotec.QuickStopRamp) error
	SetQuiet(addr uint8, quiet bool) error
	ConfigureMove(addr uint8, p nanotec.MoveParams) error
	SetExtruderDirection(addr uint8, dir nanotec.EndstopDirection) error
	StartMotor(addr uint8) error
	SetPosition(addr uint8, steps int32) error
	WaitAutoStatus(addr uint8, timeout time.Duration) (nanotec.AutoStatus, error)
}

// ExtruderConfig is the extruder motor's wiring.
type ExtruderConfig struct {
	Address           uint8
	QuickStopRamp     nanotec.QuickStopRamp
	StepMode          nanotec.StepMode
	PositiveDirection nanotec.EndstopDirection
}

// Config is every motor's static configuration.
type Config struct {
	X, Y, Z AxisConfig
	E       ExtruderConfig
}

func (c Config) axisConfig(a axis.Axis) AxisConfig {
	switch a {
	case axis.X:
		return c.X
	case axis.Y:
		return c.Y
	default:
		return c.Z
	}
}

// Position is a lock-free mirror of the raw step position of X, Y, Z —
// written only by Motors, read by any number of observers (HwCtrl's
// position query).
type Position struct {
	x, y, z atomic.Int32
}

// Get returns the current raw step position of one axis.
func (p *Position) Get(a axis.Axis) int32 {
	switch a {
	case axis.X:
		return p.x.Load()
	case axis.Y:
		return p.y.Load()
	default:
		return p.z.Load()
	}
}

func (p *Position) store(a axis.Axis, v int32) {
	switch a {
	case axis.X:
		p.x.Store(v)
	case axis.Y:
		p.y.Store(v)
	default:
		p.z.Store(v)
	}
}

// Error aggregates per-axis move failures from a single MoveAll call.
// The invariant is that at least one field is non-nil whenever Error
// is returned at all.
type Error struct {
	X, Y, Z, E error
}

func (e *Error) Error() string {
	return fmt.Sprintf("motors: move failed: x=%v y=%v z=%v e=%v", e.X, e.Y, e.Z, e.E)
}

// anySet reports whether at least one axis failed.
func (e *Error) anySet() bool {
	return e.X != nil || e.Y != nil || e.Z != nil || e.E != nil
}

// PositionError reports that a single motor's move yielded PosError
// auto-status rather than Ready.
type PositionError struct {
	Address uint8
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("motors: position error on motor 0x%02x", e.Address)
}

// Motors owns the Nanotec driver and closes it; apart from the EStop
// worker's Driver.EStop call (through hal.HAL), no other component
// calls into it once constructed.
type Motors struct {
	driver driver
	cfg    Config
	pos    Position

	waitTimeout time.Duration
}

// New wraps an already-open Nanotec driver.
func New(drv *nanotec.Driver, cfg Config) *Motors {
	return &Motors{driver: drv, cfg: cfg, waitTimeout: 30 * time.Second}
}

// Position exposes the raw step mirror for HwCtrl's position queries.
func (m *Motors) Position() *Position { return &m.pos }

func (m *Motors) axisAddress(a axis.Axis) uint8 {
	return m.cfg.axisConfig(a).Address
}

// Init performs the one-time startup sequence: enable auto-status,
// absolute positioning, default direction, minimum frequency, step
// mode, limit-switch behavior, error correction off, trapezoidal
// ramp, and each axis's quick-stop ramp.
func (m *Motors) Init() error {
	all := []struct {
		addr     uint8
		dir      nanotec.EndstopDirection
		stepMode nanotec.StepMode
		qsRamp   nanotec.QuickStopRamp
	}{
		{m.cfg.X.Address, m.cfg.X.EndstopDirection, m.cfg.X.StepMode, m.cfg.X.QuickStopRamp},
		{m.cfg.Y.Address, m.cfg.Y.EndstopDirection, m.cfg.Y.StepMode, m.cfg.Y.QuickStopRamp},
		{m.cfg.Z.Address, m.cfg.Z.EndstopDirection, m.cfg.Z.StepMode, m.cfg.Z.QuickStopRamp},
		{m.cfg.E.Address, m.cfg.E.PositiveDirection, m.cfg.E.StepMode, m.cfg.E.QuickStopRamp},
	}

	for _, mc := range all {
		steps := []func() error{
			func() error { return m.driver.EnableAutoStatus(mc.addr) },
			func() error { return m.driver.SetPositioningMode(mc.addr, nanotec.PositioningAbsolute) },
			func() error { return m.driver.SetRotationDirection(mc.addr, mc.dir) },
			func() error { return m.driver.SetMinFrequency(mc.addr, 1) },
			func() error { return m.driver.SetStepMode(mc.addr, mc.stepMode) },
			func() error {
				return m.driver.SetLimitBehavior(mc.addr, nanotec.LimitExternal, nanotec.BehaviorStop)
			},
			func() error {
				return m.driver.SetLimitBehavior(mc.addr, nanotec.LimitInternal, nanotec.BehaviorIgnore)
			},
			func() error { return m.driver.SetErrorCorrection(mc.addr, false) },
			func() error { return m.driver.SetRampType(mc.addr, nanotec.RampTrapezoidal) },
			func() error { return m.driver.SetQuickStopRamp(mc.addr, mc.qsRamp) },
		}
		for _, step := range steps {
			if err := step(); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReferenceAxis homes one axis: external-reference mode, rotate toward
// the configured endstop direction at the given ramp, wait for Ready.
// On success it restores Absolute mode and zeroes the raw-step mirror.
func (m *Motors) ReferenceAxis(a axis.Axis, speed, accelDecel, jerk uint32) error {
	ac := m.cfg.axisConfig(a)
	addr := ac.Address

	if err := m.driver.SetLimitBehavior(addr, nanotec.LimitExternal, nanotec.BehaviorFreeTravelBackwards); err != nil {
		return err
	}
	if err := m.driver.SetPositioningMode(addr, nanotec.PositioningExternalReference); err != nil {
		return err
	}
	if err := m.driver.ConfigureMove(addr, nanotec.MoveParams{
		MaxFrequency:     speed,
		Acceleration:     accelDecel,
		Deceleration:     accelDecel,
		AccelerationJerk: jerk,
		DecelerationJerk: jerk,
	}); err != nil {
		return err
	}
	if err := m.driver.StartMotor(addr); err != nil {
		return err
	}

	status, err := m.driver.WaitAutoStatus(addr, m.waitTimeout)
	if err != nil {
		return err
	}
	if status.Code != nanotec.StatusReady {
		return &PositionError{Address: addr}
	}

	if err := m.driver.SetPositioningMode(addr, nanotec.PositioningAbsolute); err != nil {
		return err
	}
	if err := m.driver.SetLimitBehavior(addr, nanotec.LimitExternal, nanotec.BehaviorStop); err != nil {
		return err
	}
	if err := m.driver.SetPosition(addr, 0); err != nil {
		return err
	}
	m.pos.store(a, 0)
	return nil
}

// MoveAll issues one coordinated broadcast move. Movement.{X,Y,Z}.Distance
// is a signed relative step delta (see DESIGN.md): Motors converts it
// to the absolute target the Nanotec driver's Absolute positioning
// mode requires, since the action's distance field is a per-segment
// delta primitive while the wire protocol is absolute.
func (m *Motors) MoveAll(mv action.Movement) error {
	if err := m.driver.SetQuiet(nanotec.Broadcast, true); err != nil {
		return err
	}

	targets := [3]int32{}
	axes := [3]axis.Axis{axis.X, axis.Y, axis.Z}
	movs := [3]action.AxisMovement{mv.X, mv.Y, mv.Z}

	for i, a := range axes {
		am := movs[i]
		addr := m.axisAddress(a)
		if am.Distance == 0 {
			// Skip all but distance when the axis does not move; an
			// absolute-target of "no change" is the current raw
			// position.
			targets[i] = m.pos.Get(a)
			if err := m.driver.ConfigureMove(addr, nanotec.MoveParams{Distance: targets[i]}); err != nil {
				return err
			}
			continue
		}
		targets[i] = m.pos.Get(a) + am.Distance
		if err := m.driver.ConfigureMove(addr, nanotec.MoveParams{
			Distance:         targets[i],
			MaxFrequency:     am.MaxFrequency,
			Acceleration:     am.Acceleration,
			Deceleration:     am.Deceleration,
			AccelerationJerk: am.AccelerationJerk,
			DecelerationJerk: am.DecelerationJerk,
		}); err != nil {
			return err
		}
	}

	if mv.E.Distance != 0 {
		// mv.E.Direction is logical (Right = extrude, Left = retract);
		// the wire direction also depends on which physical rotation
		// the configured positive_direction calls "extrude", so a
		// retract flips whatever that configured direction is.
		dir := m.cfg.E.PositiveDirection
		if mv.E.Direction == action.Left {
			dir = flipDirection(dir)
		}
		if err := m.driver.SetExtruderDirection(m.cfg.E.Address, dir); err != nil {
			return err
		}
		if err := m.driver.ConfigureMove(m.cfg.E.Address, nanotec.MoveParams{
			Distance:         int32(mv.E.Distance),
			MaxFrequency:     mv.E.MaxFrequency,
			Acceleration:     mv.E.Acceleration,
			Deceleration:     mv.E.Deceleration,
			AccelerationJerk: mv.E.AccelerationJerk,
			DecelerationJerk: mv.E.DecelerationJerk,
		}); err != nil {
			return err
		}
	}

	if err := m.driver.SetQuiet(nanotec.Broadcast, false); err != nil {
		return err
	}
	if err := m.driver.StartMotor(nanotec.Broadcast); err != nil {
		return err
	}

	merr := &Error{}
	for i, a := range axes {
		addr := m.axisAddress(a)
		status, err := m.driver.WaitAutoStatus(addr, m.waitTimeout)
		switch {
		case err != nil:
			m.setAxisErr(merr, a, err)
		case status.Code != nanotec.StatusReady:
			m.setAxisErr(merr, a, &PositionError{Address: addr})
		default:
			m.pos.store(a, targets[i])
		}
	}
	if mv.E.Distance != 0 {
		status, err := m.driver.WaitAutoStatus(m.cfg.E.Address, m.waitTimeout)
		switch {
		case err != nil:
			merr.E = err
		case status.Code != nanotec.StatusReady:
			merr.E = &PositionError{Address: m.cfg.E.Address}
		}
	}

	if merr.anySet() {
		return merr
	}
	return nil
}

// flipDirection returns the other rotation direction.
func flipDirection(d nanotec.EndstopDirection) nanotec.EndstopDirection {
	if d == nanotec.DirLeft {
		return nanotec.DirRight
	}
	return nanotec.DirLeft
}

func (m *Motors) setAxisErr(e *Error, a axis.Axis, err error) {
	switch a {
	case axis.X:
		e.X = err
	case axis.Y:
		e.Y = err
	default:
		e.Z = err
	}
}

// Close releases the underlying driver.
func (m *Motors) Close() error { return m.driver.Close() }
