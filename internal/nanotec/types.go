package nanotec

import "fmt"

// Broadcast is the address that reaches all motors on the bus at once.
const Broadcast uint8 = 0xFF

// PositioningMode selects how a motor interprets a move command.
type PositioningMode uint8

const (
	PositioningAbsolute PositioningMode = iota
	PositioningExternalReference
)

// StepMode is the microstepping subdivision factor.
type StepMode uint8

const (
	Step1 StepMode = 1 << iota
	Step2
	Step4
	Step8
)

// LimitSwitch identifies which endstop input a behavior applies to.
type LimitSwitch uint8

const (
	LimitInternal LimitSwitch = iota // wired to the motor's own driver
	LimitExternal                    // wired through the controller
)

// LimitBehavior is what the motor does when a limit switch triggers.
type LimitBehavior uint8

const (
	BehaviorIgnore LimitBehavior = iota
	BehaviorStop
	BehaviorFreeTravelBackwards
)

// RampType selects the motion profile shape.
type RampType uint8

const (
	RampTrapezoidal RampType = iota
	RampSShape
)

// EndstopDirection is the direction a motor rotates while referencing.
type EndstopDirection uint8

const (
	DirLeft EndstopDirection = iota
	DirRight
)

// QuickStopRamp is the deceleration profile applied on an emergency stop.
type QuickStopRamp uint32

// AutoStatusCode is the motor-initiated status reported when motion
// completes.
type AutoStatusCode uint8

const (
	StatusReady AutoStatusCode = iota
	StatusPosError
)

func (s AutoStatusCode) String() string {
	switch s {
	case StatusReady:
		return "ready"
	case StatusPosError:
		return "pos_error"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// AutoStatus is the decoded auto-status reply from one motor.
type AutoStatus struct {
	Address uint8
	Code    AutoStatusCode
}

// DriverError wraps a transport/IO failure talking to a motor.
type DriverError struct {
	Address uint8
	Err     error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("nanotec: motor 0x%02x: %v", e.Address, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// PositionError means the motor itself reported PosError auto-status.
type PositionError struct {
	Address uint8
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("nanotec: motor 0x%02x reported position error", e.Address)
}
