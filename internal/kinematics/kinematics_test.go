package kinematics

import (
	"math"
	"testing"

	"github.com/PS-3D/3dprintd/internal/action"
)

func testLimits() AxisLimits {
	return AxisLimits{
		TranslationMMPerRev: 8,
		Microsteps:          16,
		MinFrequency:        1,
		SpeedLimit:          20000,
		AccelLimit:          100000,
		DecelLimit:          100000,
		AccelJerkLimit:      1000000,
		DecelJerkLimit:      1000000,
	}
}

func TestStepsToMMRoundTripsStepsForAxis(t *testing.T) {
	l := testLimits()
	steps := stepsForAxis(37.5, l)
	got := StepsToMM(int32(steps), l)
	if math.Abs(got-37.5) > 1e-6 {
		t.Fatalf("StepsToMM(stepsForAxis(37.5)) = %v, want ~37.5", got)
	}
}

func TestScaleToLimitsUnderLimitPassesThrough(t *testing.T) {
	v := [4]float64{10, 20, 0, 5}
	limits := [4]float64{100, 100, 100, 100}
	out := scaleToLimits(v, limits)
	want := [4]uint32{10, 20, 0, 5}
	if out != want {
		t.Fatalf("scaleToLimits = %v, want %v", out, want)
	}
}

func TestScaleToLimitsPreservesRatios(t *testing.T) {
	// Axis 1 is the one that exceeds its limit (200/50 = 4 is the
	// largest ratio); every axis should come out scaled by the same
	// factor so axis 1 lands exactly on its limit.
	v := [4]float64{100, 200, 50, 0}
	limits := [4]float64{100, 50, 100, 100}
	out := scaleToLimits(v, limits)

	if out[1] != 50 {
		t.Fatalf("pinned axis = %d, want 50 (its limit)", out[1])
	}
	wantRatio := v[0] / v[1]
	gotRatio := float64(out[0]) / float64(out[1])
	if math.Abs(gotRatio-wantRatio) > 1e-6 {
		t.Fatalf("ratio not preserved: got %v, want %v", gotRatio, wantRatio)
	}
	for i, lim := range limits {
		if float64(out[i]) > lim+1e-6 {
			t.Fatalf("axis %d = %v exceeds limit %v", i, out[i], lim)
		}
	}
}

func TestScaleToLimitsIgnoresZeroAndNegativeLimits(t *testing.T) {
	v := [4]float64{10, 0, 5, 0}
	limits := [4]float64{100, 0, 0, 100}
	out := scaleToLimits(v, limits)
	if out[1] != 0 || out[2] != 5 {
		t.Fatalf("axes with no limit should stay unscaled at their rounded value, got %v", out)
	}
}

func TestPlanNoMotionReturnsZeroMovement(t *testing.T) {
	l := testLimits()
	m, err := Plan(Delta{}, 1200, Limits{X: l, Y: l, Z: l, E: l})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if m.X.Distance != 0 || m.Y.Distance != 0 || m.Z.Distance != 0 || m.E.Distance != 0 {
		t.Fatalf("expected zero movement, got %+v", m)
	}
}

func TestPlanZeroFeedrateIsError(t *testing.T) {
	l := testLimits()
	_, err := Plan(Delta{X: 10}, 0, Limits{X: l, Y: l, Z: l, E: l})
	if err != ErrZeroTime {
		t.Fatalf("err = %v, want ErrZeroTime", err)
	}
}

func TestPlanPositiveEProducesRightDirection(t *testing.T) {
	l := testLimits()
	m, err := Plan(Delta{E: 5}, 300, Limits{X: l, Y: l, Z: l, E: l})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if m.E.Distance == 0 {
		t.Fatalf("expected nonzero E distance")
	}
	if m.E.Direction != action.Right {
		t.Fatalf("Direction = %v, want Right for positive E delta", m.E.Direction)
	}
}

func TestPlanNegativeEProducesLeftDirection(t *testing.T) {
	l := testLimits()
	m, err := Plan(Delta{E: -5}, 300, Limits{X: l, Y: l, Z: l, E: l})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if m.E.Distance == 0 {
		t.Fatalf("expected nonzero E distance")
	}
	if m.E.Direction != action.Left {
		t.Fatalf("Direction = %v, want Left for negative E delta", m.E.Direction)
	}
}

func TestPlanClampsSpeedToConfiguredLimit(t *testing.T) {
	l := testLimits()
	l.SpeedLimit = 1000
	m, err := Plan(Delta{X: 1000}, 1e9, Limits{X: l, Y: l, Z: l, E: l})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if m.X.MaxFrequency > l.SpeedLimit {
		t.Fatalf("MaxFrequency = %v, exceeds configured SpeedLimit %v", m.X.MaxFrequency, l.SpeedLimit)
	}
}

func TestPlanCoordinatedMoveRescalesAllAxesProportionally(t *testing.T) {
	fast := testLimits()
	fast.SpeedLimit = 20000
	slow := testLimits()
	slow.SpeedLimit = 2000

	m, err := Plan(Delta{X: 100, Y: 100}, 1e9, Limits{X: fast, Y: slow, Z: fast, E: fast})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if m.Y.MaxFrequency > slow.SpeedLimit {
		t.Fatalf("Y.MaxFrequency = %v exceeds its SpeedLimit %v", m.Y.MaxFrequency, slow.SpeedLimit)
	}
	// X and Y travel equal distances here, so once Y is pinned at its
	// limit X must be scaled down by the same factor, not left alone.
	if m.X.MaxFrequency >= fast.SpeedLimit {
		t.Fatalf("X.MaxFrequency = %v, expected it rescaled below its own limit %v along with Y", m.X.MaxFrequency, fast.SpeedLimit)
	}
}
