// Package axis defines the X/Y/Z axis tag shared across the daemon.
package axis

import "fmt"

// Axis identifies one of the three Cartesian axes. The extruder is
// handled separately since it has no position limits or homing.
type Axis uint8

const (
	X Axis = iota
	Y
	Z
)

// All lists the axes in a stable order, used for position maps and
// iteration in HAL/motors init.
var All = [3]Axis{X, Y, Z}

func (a Axis) String() string {
	switch a {
	case X:
		return "x"
	case Y:
		return "y"
	case Z:
		return "z"
	default:
		return fmt.Sprintf("axis(%d)", uint8(a))
	}
}

// Parse converts a path parameter ("x"|"y"|"z") into an Axis.
func Parse(s string) (Axis, error) {
	switch s {
	case "x", "X":
		return X, nil
	case "y", "Y":
		return Y, nil
	case "z", "Z":
		return Z, nil
	default:
		return 0, fmt.Errorf("axis: unknown axis %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler so Axis can be used
// as a TOML table key or JSON map key.
func (a *Axis) UnmarshalText(text []byte) error {
	v, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a Axis) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}
