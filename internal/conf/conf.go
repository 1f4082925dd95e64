// Package conf loads the daemon's TOML process configuration and
// applies CLI flag overrides, mirroring host/cmd/gopper-host/main.go's
// flag-parsing style (stdlib flag, never a framework) while switching
// the file format itself to TOML to carry the full per-axis motor
// configuration that a flat JSON file never needed to.
//
// Grounded on standalone/config/config.go's load shape, decoded here
// with github.com/BurntSushi/toml since nothing upstream reaches for
// TOML on its own.
package conf

import (
	"flag"
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/PS-3D/3dprintd/internal/nanotec"
)

// AxisMotor mirrors one [motors.x|y|z] table.
type AxisMotor struct {
	Address             uint8   `toml:"address"`
	Translation         float64 `toml:"translation"`
	StepSize            uint8   `toml:"step_size"`
	QuickstopRamp       uint32  `toml:"quickstop_ramp"`
	Limit               float64 `toml:"limit"`
	SpeedLimit          uint32  `toml:"speed_limit"`
	AccelLimit          uint32  `toml:"accel_limit"`
	DecelLimit          uint32  `toml:"decel_limit"`
	AccelJerkLimit      uint32  `toml:"accel_jerk_limit"`
	DecelJerkLimit      uint32  `toml:"decel_jerk_limit"`
	EndstopDirection    string  `toml:"endstop_direction"` // "left"|"right"
	DefaultRefSpeed     uint32  `toml:"default_reference_speed"`
	DefaultRefAccelDecel uint32 `toml:"default_reference_accel_decel"`
	DefaultRefJerk      uint32  `toml:"default_reference_jerk"`
}

// Direction resolves the configured endstop direction string.
func (a AxisMotor) Direction() (nanotec.EndstopDirection, error) {
	switch a.EndstopDirection {
	case "left":
		return nanotec.DirLeft, nil
	case "right":
		return nanotec.DirRight, nil
	default:
		return 0, fmt.Errorf("conf: invalid endstop_direction %q", a.EndstopDirection)
	}
}

// ExtruderMotor mirrors [motors.e].
type ExtruderMotor struct {
	Address           uint8   `toml:"address"`
	Translation       float64 `toml:"translation"`
	StepSize          uint8   `toml:"step_size"`
	QuickstopRamp     uint32  `toml:"quickstop_ramp"`
	SpeedLimit        uint32  `toml:"speed_limit"`
	AccelLimit        uint32  `toml:"accel_limit"`
	DecelLimit        uint32  `toml:"decel_limit"`
	AccelJerkLimit    uint32  `toml:"accel_jerk_limit"`
	DecelJerkLimit    uint32  `toml:"decel_jerk_limit"`
	PositiveDirection string  `toml:"positive_direction"`
}

func (e ExtruderMotor) Direction() (nanotec.EndstopDirection, error) {
	switch e.PositiveDirection {
	case "left":
		return nanotec.DirLeft, nil
	case "right":
		return nanotec.DirRight, nil
	default:
		return 0, fmt.Errorf("conf: invalid positive_direction %q", e.PositiveDirection)
	}
}

// Motors mirrors the [motors] table.
type Motors struct {
	Port     string `toml:"port"`
	BaudRate int    `toml:"baud_rate"`
	TimeoutS float64 `toml:"timeout_s"`

	X AxisMotor     `toml:"x"`
	Y AxisMotor     `toml:"y"`
	Z AxisMotor     `toml:"z"`
	E ExtruderMotor `toml:"e"`
}

// General mirrors [general].
type General struct {
	SettingsPath string `toml:"settings_path"`
}

// Log mirrors [log].
type Log struct {
	Level string `toml:"level"` // error|warn|info|debug|trace
}

// API mirrors [api].
type API struct {
	Address string `toml:"address"`
	Port    int    `toml:"port"`
	Workers int    `toml:"workers"`
}

// Pi mirrors [pi].
type Pi struct {
	CheckIntervalMS int `toml:"check_interval_ms"`
}

// HeaterLimits mirrors [hotend]/[bed].
type HeaterLimits struct {
	UpperLimit uint16 `toml:"upper_limit"`
	LowerLimit uint16 `toml:"lower_limit"`
}

// Config is the full decoded TOML document.
type Config struct {
	General General      `toml:"general"`
	Log     Log          `toml:"log"`
	API     API          `toml:"api"`
	Pi      Pi           `toml:"pi"`
	Hotend  HeaterLimits `toml:"hotend"`
	Bed     HeaterLimits `toml:"bed"`
	Motors  Motors       `toml:"motors"`
}

// Load decodes path as TOML into a Config.
func Load(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, fmt.Errorf("conf: load %q: %w", path, err)
	}
	return &c, nil
}

// Flags are the supported CLI overrides: listen address, per-axis
// motor bus address, and log level. Parse populates them from args (pass
// flag.CommandLine's Args or a custom FlagSet in tests); Apply then
// overlays any flag the caller actually set onto cfg.
type Flags struct {
	fs *flag.FlagSet

	address  string
	xAddress uint
	yAddress uint
	zAddress uint
	eAddress uint
	logLevel string
}

// NewFlags registers the override flags on a fresh FlagSet named name.
func NewFlags(name string) *Flags {
	f := &Flags{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	f.fs.StringVar(&f.address, "address", "", "override [api] address")
	f.fs.UintVar(&f.xAddress, "motors-address-x", 0, "override [motors.x] address")
	f.fs.UintVar(&f.yAddress, "motors-address-y", 0, "override [motors.y] address")
	f.fs.UintVar(&f.zAddress, "motors-address-z", 0, "override [motors.z] address")
	f.fs.UintVar(&f.eAddress, "motors-address-e", 0, "override [motors.e] address")
	f.fs.StringVar(&f.logLevel, "log-level", "", "override [log] level")
	return f
}

// Parse parses args (excluding the program name).
func (f *Flags) Parse(args []string) error {
	return f.fs.Parse(args)
}

// isSet reports whether name was explicitly passed on the command line.
func (f *Flags) isSet(name string) bool {
	set := false
	f.fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			set = true
		}
	})
	return set
}

// Apply overlays every flag the caller actually passed onto cfg.
func (f *Flags) Apply(cfg *Config) {
	if f.isSet("address") {
		cfg.API.Address = f.address
	}
	if f.isSet("motors-address-x") {
		cfg.Motors.X.Address = uint8(f.xAddress)
	}
	if f.isSet("motors-address-y") {
		cfg.Motors.Y.Address = uint8(f.yAddress)
	}
	if f.isSet("motors-address-z") {
		cfg.Motors.Z.Address = uint8(f.zAddress)
	}
	if f.isSet("motors-address-e") {
		cfg.Motors.E.Address = uint8(f.eAddress)
	}
	if f.isSet("log-level") {
		cfg.Log.Level = f.logLevel
	}
}
