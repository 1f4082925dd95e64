package nanotec

import "encoding/binary"

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func i32(v int32) []byte {
	return u32(uint32(v))
}

// EnableAutoStatus turns on motor-initiated completion reports.
func (d *Driver) EnableAutoStatus(addr uint8) error {
	_, err := d.send(addr, cmdEnableAutoStatus, []byte{1}, defaultTimeout)
	return err
}

// SetPositioningMode switches a motor between absolute and
// external-reference (homing) positioning.
func (d *Driver) SetPositioningMode(addr uint8, mode PositioningMode) error {
	_, err := d.send(addr, cmdSetPositioningMode, []byte{byte(mode)}, defaultTimeout)
	return err
}

// SetRotationDirection sets the default sense of positive motion.
func (d *Driver) SetRotationDirection(addr uint8, dir EndstopDirection) error {
	_, err := d.send(addr, cmdSetRotationDirection, []byte{byte(dir)}, defaultTimeout)
	return err
}

// SetMinFrequency sets the motor's minimum step frequency floor.
func (d *Driver) SetMinFrequency(addr uint8, hz uint32) error {
	_, err := d.send(addr, cmdSetMinFrequency, u32(hz), defaultTimeout)
	return err
}

// SetStepMode sets the microstepping subdivision.
func (d *Driver) SetStepMode(addr uint8, mode StepMode) error {
	_, err := d.send(addr, cmdSetStepMode, []byte{byte(mode)}, defaultTimeout)
	return err
}

// SetLimitBehavior configures what the motor does when the given
// limit switch triggers.
func (d *Driver) SetLimitBehavior(addr uint8, which LimitSwitch, behavior LimitBehavior) error {
	_, err := d.send(addr, cmdSetLimitBehavior, []byte{byte(which), byte(behavior)}, defaultTimeout)
	return err
}

// SetErrorCorrection enables or disables closed-loop error correction.
// This daemon always disables it; it does not implement online
// position correction.
func (d *Driver) SetErrorCorrection(addr uint8, enabled bool) error {
	v := byte(0)
	if enabled {
		v = 1
	}
	_, err := d.send(addr, cmdSetErrorCorrection, []byte{v}, defaultTimeout)
	return err
}

// SetRampType selects the motion profile shape.
func (d *Driver) SetRampType(addr uint8, r RampType) error {
	_, err := d.send(addr, cmdSetRampType, []byte{byte(r)}, defaultTimeout)
	return err
}

// SetQuickStopRamp configures the deceleration profile used on
// emergency stop.
func (d *Driver) SetQuickStopRamp(addr uint8, ramp QuickStopRamp) error {
	_, err := d.send(addr, cmdSetQuickStopRamp, u32(uint32(ramp)), defaultTimeout)
	return err
}

// SetQuiet toggles whether a motor replies to every individual
// command (NotQuiet) or only to the final start (Quiet). move_all uses
// this to suppress per-axis replies while it configures all four
// motors, then switches back before issuing start_motor.
func (d *Driver) SetQuiet(addr uint8, quiet bool) error {
	v := byte(0)
	if quiet {
		v = 1
	}
	_, err := d.send(addr, cmdSetQuiet, []byte{v}, defaultTimeout)
	return err
}

// MoveParams is one motor's commanded ramp for a coordinated move.
type MoveParams struct {
	Distance         int32 // absolute target in raw steps
	MaxFrequency     uint32
	Acceleration     uint32
	Deceleration     uint32
	AccelerationJerk uint32
	DecelerationJerk uint32
}

// ConfigureMove loads the distance/ramp parameters for the next
// start_motor. When Distance is the only meaningful field the caller
// should still send it (other fields are don't-care and may be zero).
func (d *Driver) ConfigureMove(addr uint8, p MoveParams) error {
	payload := make([]byte, 0, 24)
	payload = append(payload, i32(p.Distance)...)
	payload = append(payload, u32(p.MaxFrequency)...)
	payload = append(payload, u32(p.Acceleration)...)
	payload = append(payload, u32(p.Deceleration)...)
	payload = append(payload, u32(p.AccelerationJerk)...)
	payload = append(payload, u32(p.DecelerationJerk)...)
	_, err := d.send(addr, cmdConfigureMove, payload, defaultTimeout)
	return err
}

// SetExtruderDirection sets the extruder motor's rotation sense for
// the next move.
func (d *Driver) SetExtruderDirection(addr uint8, dir EndstopDirection) error {
	_, err := d.send(addr, cmdSetExtruderDirection, []byte{byte(dir)}, defaultTimeout)
	return err
}

// StartMotor issues the start command. Sent to Broadcast, this is how
// move_all launches all four motors in lockstep.
func (d *Driver) StartMotor(addr uint8) error {
	_, err := d.send(addr, cmdStartMotor, nil, defaultTimeout)
	return err
}

// SetPosition zeroes (or otherwise sets) the motor's internal raw-step
// counter, used after a successful reference move.
func (d *Driver) SetPosition(addr uint8, steps int32) error {
	_, err := d.send(addr, cmdSetPosition, i32(steps), defaultTimeout)
	return err
}
