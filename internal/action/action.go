// Package action defines the vocabulary produced by the G-code decoder
// and consumed by the executor: motion primitives, thermal set-point
// requests, and waits. It favors flat, allocation-light structs over
// an interface hierarchy, the same way standalone/types.go does.
package action

import (
	"time"

	"github.com/PS-3D/3dprintd/internal/axis"
)

// Direction is the extruder's rotation sign.
type Direction uint8

const (
	Left Direction = iota
	Right
)

// AxisMovement is a per-axis motion primitive in raw steps.
//
// Invariant: if Distance == 0 the motor does not move and the other
// fields are not meaningful (the caller may leave them zero).
type AxisMovement struct {
	Distance         int32 // signed step delta for this segment; Motors adds it to the raw position mirror to get the absolute target the driver's Absolute positioning mode requires
	MinFrequency     uint32
	MaxFrequency     uint32
	Acceleration     uint32
	Deceleration     uint32
	AccelerationJerk uint32
	DecelerationJerk uint32
}

// ExtruderMovement is like AxisMovement but unsigned, with an explicit
// direction.
type ExtruderMovement struct {
	Direction        Direction
	Distance         uint32
	MinFrequency     uint32
	MaxFrequency     uint32
	Acceleration     uint32
	Deceleration     uint32
	AccelerationJerk uint32
	DecelerationJerk uint32
}

// Movement describes one coordinated segment across all four motors.
type Movement struct {
	X, Y, Z AxisMovement
	E       ExtruderMovement
}

// ReferenceParams carries optional homing overrides; a nil field means
// "use the axis's configured default".
type ReferenceParams struct {
	Speed        *uint32
	AccelDecel   *uint32
	Jerk         *uint32
}

// Kind tags which payload field of Action is meaningful.
type Kind uint8

const (
	KindMoveAll Kind = iota
	KindReferenceAxis
	KindReferenceZHotend
	KindHotendTarget
	KindBedTarget
	KindWaitHotendTarget
	KindWaitBedTarget
	KindWaitBedMinTemp
	KindWait
)

// Action is a tagged union of everything the executor can dispatch.
// Only the field(s) relevant to Kind are populated; this mirrors
// standalone/types.go's flat-struct style rather than a Go interface,
// since the executor is a hot, allocation-sensitive loop.
type Action struct {
	Kind Kind

	Move Movement // KindMoveAll

	RefAxis   axis.Axis       // KindReferenceAxis
	RefParams ReferenceParams // KindReferenceAxis

	// HotendTarget/BedTarget: nil means "off".
	Target *uint16 // KindHotendTarget, KindBedTarget

	// BedMinTemp: nil means "resolve immediately".
	MinTemp *uint16 // KindWaitBedMinTemp

	Dwell time.Duration // KindWait
}

// MoveAll builds a KindMoveAll action.
func MoveAll(m Movement) Action { return Action{Kind: KindMoveAll, Move: m} }

// ReferenceAxis builds a KindReferenceAxis action.
func ReferenceAxis(a axis.Axis, p ReferenceParams) Action {
	return Action{Kind: KindReferenceAxis, RefAxis: a, RefParams: p}
}

// ReferenceZHotend builds the action that records the current raw Z
// position as the hotend's Z origin.
func ReferenceZHotend() Action { return Action{Kind: KindReferenceZHotend} }

// HotendTarget builds a KindHotendTarget action; nil target means off.
func HotendTarget(t *uint16) Action { return Action{Kind: KindHotendTarget, Target: t} }

// BedTarget builds a KindBedTarget action; nil target means off.
func BedTarget(t *uint16) Action { return Action{Kind: KindBedTarget, Target: t} }

// WaitHotendTarget blocks until the hotend reaches its active set-point.
func WaitHotendTarget() Action { return Action{Kind: KindWaitHotendTarget} }

// WaitBedTarget blocks until the bed reaches its active set-point.
func WaitBedTarget() Action { return Action{Kind: KindWaitBedTarget} }

// WaitBedMinTemp blocks until the bed is at or above min (nil = immediate).
func WaitBedMinTemp(min *uint16) Action { return Action{Kind: KindWaitBedMinTemp, MinTemp: min} }

// Wait builds a dwell action.
func Wait(d time.Duration) Action { return Action{Kind: KindWait, Dwell: d} }

// GCodeSpan is a source location attached to a parsed/decoded record,
// used purely for diagnostics and line tracking. Its lifetime must
// outlive the action it is paired with until that action completes.
type GCodeSpan struct {
	Path string
	Line int // 1-based
}

// Arg is one letter/value word following a command letter, e.g. "X12.5".
// GCode keeps arguments as an ordered slice rather than a map so the
// translator can detect a repeated letter (DuplicateArgument) instead
// of silently losing it to a map overwrite.
type Arg struct {
	Letter byte
	Value  float64
}

// GCode is one parsed G-code statement.
type GCode struct {
	Letter byte // 'G', 'M', or 'T'
	Number int
	Minor  int // e.g. the "1" in "M104.1"; 0 if absent
	Args   []Arg
	Span   GCodeSpan
}
