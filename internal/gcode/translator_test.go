package gcode

import (
	"testing"

	"github.com/PS-3D/3dprintd/internal/action"
	"github.com/PS-3D/3dprintd/internal/kinematics"
)

func testLimits() kinematics.AxisLimits {
	return kinematics.AxisLimits{
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

func testConfig() Config {
	l := testLimits()
	return Config{
		Limits:          kinematics.Limits{X: l, Y: l, Z: l, E: l},
		XLimit:          200,
		YLimit:          200,
		Hotend:          HeaterBounds{Lower: 0, Upper: 280},
		Bed:             HeaterBounds{Lower: 0, Upper: 120},
		ZHotendLocation: func() float64 { return -50 },
	}
}

func parseOne(t *testing.T, line string) *action.GCode {
	t.Helper()
	p := NewParser("test.gcode")
	gc, err := p.ParseLine(1, line)
	if err != nil {
		t.Fatalf("ParseLine(%q): %v", line, err)
	}
	if gc == nil {
		t.Fatalf("ParseLine(%q): nil statement", line)
	}
	return gc
}

func TestTranslateMoveProducesMoveAll(t *testing.T) {
	tr := NewTranslator(testConfig())
	gc := parseOne(t, "G1 X10 Y0 Z0 F1200")
	out, err := tr.Translate(gc)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(out) != 1 || out[0].Action.Kind != action.KindMoveAll {
		t.Fatalf("got %+v", out)
	}
	if out[0].Action.Move.X.Distance == 0 {
		t.Fatalf("expected nonzero X distance, got %+v", out[0].Action.Move.X)
	}
}

func TestTranslateMoveRequiresFeedrate(t *testing.T) {
	tr := NewTranslator(testConfig())
	gc := parseOne(t, "G1 X10")
	_, err := tr.Translate(gc)
	ge, ok := err.(*GCodeError)
	if !ok || ge.Kind != ErrMissingArguments {
		t.Fatalf("err = %v, want MissingArguments", err)
	}
}

func TestTranslateMoveReusesPriorFeedrate(t *testing.T) {
	tr := NewTranslator(testConfig())
	if _, err := tr.Translate(parseOne(t, "G1 X10 F1200")); err != nil {
		t.Fatalf("first move: %v", err)
	}
	out, err := tr.Translate(parseOne(t, "G1 X20"))
	if err != nil {
		t.Fatalf("second move: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %+v", out)
	}
}

func TestTranslateMoveOutOfBounds(t *testing.T) {
	tr := NewTranslator(testConfig())
	gc := parseOne(t, "G1 X1000 F1200")
	_, err := tr.Translate(gc)
	ge, ok := err.(*GCodeError)
	if !ok || ge.Kind != ErrPosOutOfBounds {
		t.Fatalf("err = %v, want PosOutOfBounds", err)
	}
}

func TestTranslateUnknownArgument(t *testing.T) {
	tr := NewTranslator(testConfig())
	gc := parseOne(t, "G1 Q10 F1200")
	_, err := tr.Translate(gc)
	ge, ok := err.(*GCodeError)
	if !ok || ge.Kind != ErrUnknownArgument || ge.Word != 'Q' {
		t.Fatalf("err = %v, want UnknownArgument(Q)", err)
	}
}

func TestTranslateDuplicateArgument(t *testing.T) {
	tr := NewTranslator(testConfig())
	p := NewParser("test.gcode")
	gc, err := p.ParseLine(1, "G1 X10 X20 F1200")
	if err != nil {
		t.Fatalf("ParseLine: %v", err)
	}
	_, terr := tr.Translate(gc)
	ge, ok := terr.(*GCodeError)
	if !ok || ge.Kind != ErrDuplicateArgument || ge.Word != 'X' {
		t.Fatalf("err = %v, want DuplicateArgument(X)", terr)
	}
}

func TestTranslateUnknownCode(t *testing.T) {
	tr := NewTranslator(testConfig())
	gc := parseOne(t, "G12345")
	_, err := tr.Translate(gc)
	ge, ok := err.(*GCodeError)
	if !ok || ge.Kind != ErrUnknownCode {
		t.Fatalf("err = %v, want UnknownCode", err)
	}
}

func TestTranslateM104TempOutOfBounds(t *testing.T) {
	tr := NewTranslator(testConfig())
	gc := parseOne(t, "M104 S999")
	_, err := tr.Translate(gc)
	ge, ok := err.(*GCodeError)
	if !ok || ge.Kind != ErrTempOutOfBounds {
		t.Fatalf("err = %v, want TempOutOfBounds", err)
	}
}

func TestTranslateM104ZeroTurnsOff(t *testing.T) {
	tr := NewTranslator(testConfig())
	gc := parseOne(t, "M104 S0")
	out, err := tr.Translate(gc)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(out) != 1 || out[0].Action.Target != nil {
		t.Fatalf("got %+v, want single off action", out)
	}
}

func TestTranslateM109WaitsAfterTarget(t *testing.T) {
	tr := NewTranslator(testConfig())
	gc := parseOne(t, "M109 S200")
	out, err := tr.Translate(gc)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(out) != 2 || out[0].Action.Kind != action.KindHotendTarget || out[1].Action.Kind != action.KindWaitHotendTarget {
		t.Fatalf("got %+v", out)
	}
}

func TestTranslateG92SetsNoAction(t *testing.T) {
	tr := NewTranslator(testConfig())
	gc := parseOne(t, "G92 X0 Y0 Z0 E0")
	out, err := tr.Translate(gc)
	if err != nil || out != nil {
		t.Fatalf("got out=%+v err=%v, want nil, nil", out, err)
	}
}

func TestTranslateG28HomesBothWhenNoArgs(t *testing.T) {
	tr := NewTranslator(testConfig())
	gc := parseOne(t, "G28")
	out, err := tr.Translate(gc)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %+v, want 2 reference actions", out)
	}
}
