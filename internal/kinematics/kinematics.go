// Package kinematics implements the per-segment kinematic calculation
// for G0/G1 moves: converting an mm delta and feedrate into raw step
// counts and per-axis velocity/acceleration/jerk values clamped to
// configured limits.
//
// Grounded on standalone/planner/planner.go's calculateTrapezoid: the
// same "compute unconstrained, then proportionally rescale the
// violating axis down to its limit" idiom, generalized from
// velocity-only to velocity/accel/decel/jerk and from three axes to
// four (X, Y, Z, E).
package kinematics

import (
	"errors"
	"math"

	"github.com/PS-3D/3dprintd/internal/action"
)

// ErrZeroTime is returned when a non-zero move has no time basis (the
// feedrate resolved to zero); callers should treat this as a decoder
// bug, not a user-facing error, since the translator guarantees an
// active feedrate before calling Plan.
var ErrZeroTime = errors.New("kinematics: zero move duration for non-zero distance")

// AxisLimits bounds one motor's commanded kinematics.
type AxisLimits struct {
	TranslationMMPerRev float64 // lead, mm/rev
	Microsteps          uint32  // step mode multiplier
	MinFrequency        uint32  // Hz, typically 1
	SpeedLimit          uint32  // Hz
	AccelLimit          uint32  // Hz/s
	DecelLimit          uint32  // Hz/s
	AccelJerkLimit       uint32  // Hz/s^2
	DecelJerkLimit       uint32  // Hz/s^2
}

// Limits bounds all four motors.
type Limits struct {
	X, Y, Z, E AxisLimits
}

// Delta is the mm distance to travel on each axis for one segment (E
// already carries its sign; direction is derived from its sign).
type Delta struct {
	X, Y, Z, E float64
}

const fullStepsPerRev = 360.0 / 1.8 // 200

// stepsForAxis converts an mm delta to a signed raw step count.
func stepsForAxis(mm float64, l AxisLimits) int64 {
	if l.TranslationMMPerRev == 0 {
		return 0
	}
	steps := mm / l.TranslationMMPerRev * fullStepsPerRev * float64(l.Microsteps)
	return int64(math.Round(steps))
}

// StepsToMM is the inverse of stepsForAxis, used by HwCtrl's position
// query to translate the raw-step mirror back to millimeters.
func StepsToMM(steps int32, l AxisLimits) float64 {
	if l.Microsteps == 0 {
		return 0
	}
	return float64(steps) / float64(l.Microsteps) / fullStepsPerRev * l.TranslationMMPerRev
}

// scaleToLimits computes, for four rates v[i] (>=0) and four limits
// L[i], the largest ratio t = max_i(v[i]/L[i]) over the axes with
// v[i] > 0 and L[i] > 0 (an axis with a non-positive limit is left out
// of t). If t > 1 it returns round(v[i]/t) for each axis; otherwise no
// axis exceeds its limit and it returns round(v[i]) unscaled.
//
// For t > 1 this is the closed form of choosing one axis, deriving the
// others, rescaling any that still exceed their limit, and repeating:
// whichever axis has the largest v[i]/L[i] ratio is exactly the one
// that ends up pinned at its limit, and every other axis comes out
// proportionally scaled by the same factor — so the ratio
// v[0]:v[1]:v[2]:v[3] is preserved modulo rounding. Rates already
// within their limits are never scaled up toward them.
func scaleToLimits(v [4]float64, limits [4]float64) [4]uint32 {
	var t float64
	for i, vi := range v {
		if vi <= 0 || limits[i] <= 0 {
			continue
		}
		if ratio := vi / limits[i]; ratio > t {
			t = ratio
		}
	}
	var out [4]uint32
	if t <= 1.0 {
		// Nothing exceeds its limit; still round for integral output.
		for i, vi := range v {
			if vi > 0 {
				out[i] = uint32(math.Round(vi))
			}
		}
		return out
	}
	for i, vi := range v {
		if vi > 0 {
			out[i] = uint32(math.Round(vi / t))
		}
	}
	return out
}

// Plan computes the four AxisMovement/ExtruderMovement records for one
// coordinated G0/G1 segment.
//
// feedrateMMPerMin must be > 0 whenever the delta is non-zero; the
// decoder is responsible for ensuring an active feedrate before
// calling Plan (MissingArguments is raised earlier for that case).
func Plan(d Delta, feedrateMMPerMin float64, l Limits) (action.Movement, error) {
	pathLenMM := math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
	primary := pathLenMM
	if primary < 1e-9 {
		primary = math.Abs(d.E)
	}
	if primary < 1e-9 {
		// No motion at all; caller should have skipped this segment.
		return action.Movement{}, nil
	}

	feedMMPerSec := feedrateMMPerMin / 60.0
	if feedMMPerSec <= 0 {
		return action.Movement{}, ErrZeroTime
	}
	t := primary / feedMMPerSec
	if t <= 0 {
		return action.Movement{}, ErrZeroTime
	}

	stepsX := stepsForAxis(d.X, l.X)
	stepsY := stepsForAxis(d.Y, l.Y)
	stepsZ := stepsForAxis(d.Z, l.Z)
	stepsE := stepsForAxis(d.E, l.E)

	v := [4]float64{
		math.Abs(float64(stepsX)) / t,
		math.Abs(float64(stepsY)) / t,
		math.Abs(float64(stepsZ)) / t,
		math.Abs(float64(stepsE)) / t,
	}

	speedLimits := [4]float64{float64(l.X.SpeedLimit), float64(l.Y.SpeedLimit), float64(l.Z.SpeedLimit), float64(l.E.SpeedLimit)}
	vClamped := scaleToLimits(v, speedLimits)

	vRef := [4]float64{float64(vClamped[0]), float64(vClamped[1]), float64(vClamped[2]), float64(vClamped[3])}

	accel := scaleToLimits(vRef, [4]float64{float64(l.X.AccelLimit), float64(l.Y.AccelLimit), float64(l.Z.AccelLimit), float64(l.E.AccelLimit)})
	decel := scaleToLimits(vRef, [4]float64{float64(l.X.DecelLimit), float64(l.Y.DecelLimit), float64(l.Z.DecelLimit), float64(l.E.DecelLimit)})
	accelJerk := scaleToLimits(vRef, [4]float64{float64(l.X.AccelJerkLimit), float64(l.Y.AccelJerkLimit), float64(l.Z.AccelJerkLimit), float64(l.E.AccelJerkLimit)})
	decelJerk := scaleToLimits(vRef, [4]float64{float64(l.X.DecelJerkLimit), float64(l.Y.DecelJerkLimit), float64(l.Z.DecelJerkLimit), float64(l.E.DecelJerkLimit)})

	mk := func(i int, lim AxisLimits, steps int64) action.AxisMovement {
		if steps == 0 {
			return action.AxisMovement{}
		}
		minFreq := lim.MinFrequency
		if minFreq == 0 {
			minFreq = 1
		}
		return action.AxisMovement{
			Distance:         int32(steps),
			MinFrequency:     minFreq,
			MaxFrequency:     vClamped[i],
			Acceleration:     accel[i],
			Deceleration:     decel[i],
			AccelerationJerk: accelJerk[i],
			DecelerationJerk: decelJerk[i],
		}
	}

	m := action.Movement{
		X: mk(0, l.X, stepsX),
		Y: mk(1, l.Y, stepsY),
		Z: mk(2, l.Z, stepsZ),
	}

	if stepsE != 0 {
		dir := action.Right
		mag := stepsE
		if stepsE < 0 {
			dir = action.Left
			mag = -stepsE
		}
		minFreq := l.E.MinFrequency
		if minFreq == 0 {
			minFreq = 1
		}
		m.E = action.ExtruderMovement{
			Direction:        dir,
			Distance:         uint32(mag),
			MinFrequency:     minFreq,
			MaxFrequency:     vClamped[3],
			Acceleration:     accel[3],
			Deceleration:     decel[3],
			AccelerationJerk: accelJerk[3],
			DecelerationJerk: decelJerk[3],
		}
	}

	return m, nil
}
