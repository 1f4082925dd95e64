package gcode

import (
	"fmt"
	"strings"
	"time"

	"github.com/PS-3D/3dprintd/internal/action"
	"github.com/PS-3D/3dprintd/internal/axis"
	"github.com/PS-3D/3dprintd/internal/kinematics"
)

// CoordMode is a programmed-coordinate interpretation mode.
type CoordMode uint8

const (
	Absolute CoordMode = iota
	Relative
)

// Unit is the unit G20/G21 select for X/Y/Z/E arguments.
type Unit uint8

const (
	Millimeters Unit = iota
	Inches
)

// HeaterBounds is a heater's configured set-point range, used only for
// M104/M109/M140 argument validation — kept local to this package
// rather than imported from internal/thermal so the translator has no
// dependency on the regulator's own types.
type HeaterBounds struct {
	Lower, Upper uint16
}

// Config is the translator's static configuration: kinematic limits,
// the Cartesian workspace bounds, and heater set-point bounds.
type Config struct {
	Limits kinematics.Limits
	XLimit float64 // mm
	YLimit float64 // mm

	Hotend HeaterBounds
	Bed    HeaterBounds

	// ZHotendLocation returns the lowest Z (mm, in the translator's
	// actual-position frame) a move may reach: G0/G1 keeps Z within
	// [ZHotendLocation(), 0]. It is called on every move and is
	// read-only from the translator's perspective.
	ZHotendLocation func() float64
}

// GCodeErrorKind tags why a parsed statement was semantically rejected.
type GCodeErrorKind uint8

const (
	ErrMissingArguments GCodeErrorKind = iota
	ErrUnknownCode
	ErrUnknownArgument
	ErrDuplicateArgument
	ErrPosOutOfBounds
	ErrTempOutOfBounds
)

func (k GCodeErrorKind) String() string {
	switch k {
	case ErrMissingArguments:
		return "missing_arguments"
	case ErrUnknownCode:
		return "unknown_code"
	case ErrUnknownArgument:
		return "unknown_argument"
	case ErrDuplicateArgument:
		return "duplicate_argument"
	case ErrPosOutOfBounds:
		return "pos_out_of_bounds"
	case ErrTempOutOfBounds:
		return "temp_out_of_bounds"
	default:
		return fmt.Sprintf("gcode_error(%d)", uint8(k))
	}
}

// GCodeError is a semantic (translator-level) rejection of an
// otherwise well-formed statement.
type GCodeError struct {
	Kind         GCodeErrorKind
	Code         string // e.g. "G1", "M104.1"
	Word         byte   // set for UnknownArgument/DuplicateArgument
	Lower, Upper uint16 // set for TempOutOfBounds
	Span         action.GCodeSpan
}

func (e *GCodeError) Error() string {
	switch e.Kind {
	case ErrUnknownArgument, ErrDuplicateArgument:
		return fmt.Sprintf("gcode: %s: %c in %s at %s:%d", e.Kind, e.Word, e.Code, e.Span.Path, e.Span.Line)
	case ErrTempOutOfBounds:
		return fmt.Sprintf("gcode: %s: %s outside [%d,%d] at %s:%d", e.Kind, e.Code, e.Lower, e.Upper, e.Span.Path, e.Span.Line)
	default:
		return fmt.Sprintf("gcode: %s: %s at %s:%d", e.Kind, e.Code, e.Span.Path, e.Span.Line)
	}
}

func codeStr(gc *action.GCode) string {
	if gc.Minor != 0 {
		return fmt.Sprintf("%c%d.%d", gc.Letter, gc.Number, gc.Minor)
	}
	return fmt.Sprintf("%c%d", gc.Letter, gc.Number)
}

// Decoded pairs one translated Action with the statement's source span.
type Decoded struct {
	Action action.Action
	Span   action.GCodeSpan
}

// Translator holds DecoderState: programmed/actual position, coord
// modes, unit, and active feedrate. Grounded on
// standalone/gcode/interpreter.go's per-code switch dispatch,
// generalized to produce Actions instead of calling a planner
// directly, and made unforgiving: unknown codes/args are errors, not
// silently ignored.
type Translator struct {
	cfg Config

	progX, progY, progZ, progE float64
	actualX, actualY, actualZ  float64

	feedrate *float64 // mm/min; nil = none active yet
	xyzMode  CoordMode
	eMode    CoordMode
	unit     Unit
}

// NewTranslator builds a Translator in its reset state.
func NewTranslator(cfg Config) *Translator {
	t := &Translator{cfg: cfg}
	t.Reset()
	return t
}

// Reset clears feedrate, restores coord modes and unit to their
// defaults, and sets programmed position to the actual position. It
// does not clear actual position — the physical printer kept moving.
func (t *Translator) Reset() {
	t.feedrate = nil
	t.xyzMode = Absolute
	t.eMode = Relative
	t.unit = Millimeters
	t.progX, t.progY, t.progZ = t.actualX, t.actualY, t.actualZ
	t.progE = 0
}

// args validates gc's arguments against the allowed letter set,
// returning UnknownArgument/DuplicateArgument on violation.
func (t *Translator) args(gc *action.GCode, allowed string) (map[byte]float64, error) {
	out := make(map[byte]float64, len(gc.Args))
	for _, a := range gc.Args {
		if !strings.ContainsRune(allowed, rune(a.Letter)) {
			return nil, &GCodeError{Kind: ErrUnknownArgument, Code: codeStr(gc), Word: a.Letter, Span: gc.Span}
		}
		if _, dup := out[a.Letter]; dup {
			return nil, &GCodeError{Kind: ErrDuplicateArgument, Code: codeStr(gc), Word: a.Letter, Span: gc.Span}
		}
		out[a.Letter] = a.Value
	}
	return out, nil
}

func (t *Translator) toMM(v float64) float64 {
	if t.unit == Inches {
		return v * 25.4
	}
	return v
}

// Translate converts one parsed statement into zero or more Actions.
func (t *Translator) Translate(gc *action.GCode) ([]Decoded, error) {
	switch gc.Letter {
	case 'G':
		return t.translateG(gc)
	case 'M':
		return t.translateM(gc)
	case 'T':
		return t.translateT(gc)
	default:
		return nil, t.unknownCode(gc)
	}
}

func (t *Translator) unknownCode(gc *action.GCode) error {
	return &GCodeError{Kind: ErrUnknownCode, Code: codeStr(gc), Span: gc.Span}
}

func (t *Translator) missing(gc *action.GCode) error {
	return &GCodeError{Kind: ErrMissingArguments, Code: codeStr(gc), Span: gc.Span}
}

func one(a action.Action, span action.GCodeSpan) []Decoded {
	return []Decoded{{Action: a, Span: span}}
}

func (t *Translator) translateG(gc *action.GCode) ([]Decoded, error) {
	if gc.Minor != 0 {
		return nil, t.unknownCode(gc)
	}
	switch gc.Number {
	case 0, 1:
		return t.move(gc)
	case 4:
		return t.dwell(gc)
	case 20:
		if _, err := t.args(gc, ""); err != nil {
			return nil, err
		}
		t.unit = Inches
		return nil, nil
	case 21:
		if _, err := t.args(gc, ""); err != nil {
			return nil, err
		}
		t.unit = Millimeters
		return nil, nil
	case 28:
		return t.home(gc)
	case 90:
		if _, err := t.args(gc, ""); err != nil {
			return nil, err
		}
		t.xyzMode = Absolute
		return nil, nil
	case 91:
		if _, err := t.args(gc, ""); err != nil {
			return nil, err
		}
		t.xyzMode = Relative
		return nil, nil
	case 92:
		return t.setPosition(gc)
	default:
		return nil, t.unknownCode(gc)
	}
}

func (t *Translator) translateM(gc *action.GCode) ([]Decoded, error) {
	if gc.Minor != 0 {
		return nil, t.unknownCode(gc)
	}
	switch gc.Number {
	case 82:
		if _, err := t.args(gc, ""); err != nil {
			return nil, err
		}
		t.eMode = Absolute
		return nil, nil
	case 83:
		if _, err := t.args(gc, ""); err != nil {
			return nil, err
		}
		t.eMode = Relative
		return nil, nil
	case 84:
		_, _ = t.args(gc, "")
		return nil, nil
	case 104:
		return t.heaterTarget(gc, true, false)
	case 109:
		return t.heaterTarget(gc, true, true)
	case 106, 107:
		_, _ = t.args(gc, "S")
		return nil, nil
	case 140:
		return t.heaterTarget(gc, false, false)
	case 190:
		return t.waitBedMinTemp(gc)
	default:
		return nil, t.unknownCode(gc)
	}
}

func (t *Translator) translateT(gc *action.GCode) ([]Decoded, error) {
	if gc.Minor != 0 || gc.Number != 0 {
		return nil, t.unknownCode(gc)
	}
	_, _ = t.args(gc, "")
	return nil, nil
}

func (t *Translator) dwell(gc *action.GCode) ([]Decoded, error) {
	args, err := t.args(gc, "PS")
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, t.missing(gc)
	}
	var d time.Duration
	if p, ok := args['P']; ok {
		d += time.Duration(p) * time.Millisecond
	}
	if s, ok := args['S']; ok {
		d += time.Duration(s * float64(time.Second))
	}
	return one(action.Wait(d), gc.Span), nil
}

func (t *Translator) home(gc *action.GCode) ([]Decoded, error) {
	args, err := t.args(gc, "XY")
	if err != nil {
		return nil, err
	}
	homeX, homeY := false, false
	if len(args) == 0 {
		homeX, homeY = true, true
	} else {
		_, homeX = args['X']
		_, homeY = args['Y']
	}
	var out []Decoded
	if homeX {
		out = append(out, Decoded{Action: action.ReferenceAxis(axis.X, action.ReferenceParams{}), Span: gc.Span})
	}
	if homeY {
		out = append(out, Decoded{Action: action.ReferenceAxis(axis.Y, action.ReferenceParams{}), Span: gc.Span})
	}
	return out, nil
}

func (t *Translator) setPosition(gc *action.GCode) ([]Decoded, error) {
	args, err := t.args(gc, "XYZE")
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, t.missing(gc)
	}
	if v, ok := args['X']; ok {
		t.progX = t.toMM(v)
	}
	if v, ok := args['Y']; ok {
		t.progY = t.toMM(v)
	}
	if v, ok := args['Z']; ok {
		t.progZ = t.toMM(v)
	}
	if v, ok := args['E']; ok {
		t.progE = t.toMM(v)
	}
	return nil, nil
}

func (t *Translator) move(gc *action.GCode) ([]Decoded, error) {
	args, err := t.args(gc, "XYZEF")
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, t.missing(gc)
	}
	if f, ok := args['F']; ok {
		feed := f
		t.feedrate = &feed
	}
	if t.feedrate == nil {
		return nil, t.missing(gc)
	}

	var dx, dy, dz, de float64
	if v, ok := args['X']; ok {
		mm := t.toMM(v)
		if t.xyzMode == Absolute {
			dx = mm - t.progX
			t.progX = mm
		} else {
			dx = mm
			t.progX += mm
		}
	}
	if v, ok := args['Y']; ok {
		mm := t.toMM(v)
		if t.xyzMode == Absolute {
			dy = mm - t.progY
			t.progY = mm
		} else {
			dy = mm
			t.progY += mm
		}
	}
	if v, ok := args['Z']; ok {
		mm := t.toMM(v)
		if t.xyzMode == Absolute {
			dz = mm - t.progZ
			t.progZ = mm
		} else {
			dz = mm
			t.progZ += mm
		}
	}
	if v, ok := args['E']; ok {
		mm := t.toMM(v)
		if t.eMode == Absolute {
			de = mm - t.progE
			t.progE = mm
		} else {
			de = mm
			t.progE += mm
		}
	}

	newX := t.actualX + dx
	newY := t.actualY + dy
	newZ := t.actualZ + dz

	if newX < 0 || newX > t.cfg.XLimit || newY < 0 || newY > t.cfg.YLimit {
		return nil, &GCodeError{Kind: ErrPosOutOfBounds, Code: codeStr(gc), Span: gc.Span}
	}
	zHotend := t.cfg.ZHotendLocation()
	if newZ < zHotend || newZ > 0 {
		return nil, &GCodeError{Kind: ErrPosOutOfBounds, Code: codeStr(gc), Span: gc.Span}
	}

	t.actualX, t.actualY, t.actualZ = newX, newY, newZ

	mv, err := kinematics.Plan(kinematics.Delta{X: dx, Y: dy, Z: dz, E: de}, *t.feedrate, t.cfg.Limits)
	if err != nil {
		return nil, err
	}
	if mv == (action.Movement{}) {
		return nil, nil
	}
	return one(action.MoveAll(mv), gc.Span), nil
}

func (t *Translator) heaterTarget(gc *action.GCode, hotend, wait bool) ([]Decoded, error) {
	args, err := t.args(gc, "S")
	if err != nil {
		return nil, err
	}
	s, ok := args['S']
	if !ok {
		return nil, t.missing(gc)
	}

	bounds := t.cfg.Bed
	if hotend {
		bounds = t.cfg.Hotend
	}

	var target *uint16
	if s != 0 {
		v := uint16(s)
		if v < bounds.Lower || v > bounds.Upper {
			return nil, &GCodeError{Kind: ErrTempOutOfBounds, Code: codeStr(gc), Lower: bounds.Lower, Upper: bounds.Upper, Span: gc.Span}
		}
		target = &v
	}

	var out []Decoded
	if hotend {
		out = append(out, Decoded{Action: action.HotendTarget(target), Span: gc.Span})
		if wait {
			out = append(out, Decoded{Action: action.WaitHotendTarget(), Span: gc.Span})
		}
	} else {
		out = append(out, Decoded{Action: action.BedTarget(target), Span: gc.Span})
	}
	return out, nil
}

func (t *Translator) waitBedMinTemp(gc *action.GCode) ([]Decoded, error) {
	args, err := t.args(gc, "S")
	if err != nil {
		return nil, err
	}
	s, ok := args['S']
	if !ok {
		return nil, t.missing(gc)
	}
	var min *uint16
	if s != 0 {
		v := uint16(s)
		min = &v
	}
	return one(action.WaitBedMinTemp(min), gc.Span), nil
}
