package conf

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleTOML = `
[general]
settings_path = "/var/lib/3dprintd/settings.json"

[log]
level = "info"

[api]
address = "127.0.0.1"
port = 8080
workers = 4

[pi]
check_interval_ms = 50

[hotend]
upper_limit = 280
lower_limit = 0

[bed]
upper_limit = 120
lower_limit = 0

[motors]
port = "/dev/ttyUSB0"
baud_rate = 115200
timeout_s = 0.5

[motors.x]
address = 1
translation = 8.0
step_size = 4
quickstop_ramp = 50000
limit = 200
speed_limit = 20000
accel_limit = 100000
decel_limit = 100000
accel_jerk_limit = 1000000
decel_jerk_limit = 1000000
endstop_direction = "left"
default_reference_speed = 1000
default_reference_accel_decel = 5000
default_reference_jerk = 10000

[motors.y]
address = 2
translation = 8.0
step_size = 4
quickstop_ramp = 50000
limit = 200
speed_limit = 20000
accel_limit = 100000
decel_limit = 100000
accel_jerk_limit = 1000000
decel_jerk_limit = 1000000
endstop_direction = "left"
default_reference_speed = 1000
default_reference_accel_decel = 5000
default_reference_jerk = 10000

[motors.z]
address = 3
translation = 4.0
step_size = 4
quickstop_ramp = 50000
limit = 250
speed_limit = 10000
accel_limit = 50000
decel_limit = 50000
accel_jerk_limit = 500000
decel_jerk_limit = 500000
endstop_direction = "right"
default_reference_speed = 500
default_reference_accel_decel = 2000
default_reference_jerk = 5000

[motors.e]
address = 4
translation = 4.7
step_size = 2
quickstop_ramp = 50000
speed_limit = 5000
accel_limit = 50000
decel_limit = 50000
accel_jerk_limit = 500000
decel_jerk_limit = 500000
positive_direction = "right"
`

func writeTOML(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "3dprintd.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadDecodesAllTables(t *testing.T) {
	path := writeTOML(t, sampleTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.General.SettingsPath != "/var/lib/3dprintd/settings.json" {
		t.Errorf("SettingsPath = %q", cfg.General.SettingsPath)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
	if cfg.API.Port != 8080 || cfg.API.Workers != 4 {
		t.Errorf("API = %+v", cfg.API)
	}
	if cfg.Motors.X.Address != 1 || cfg.Motors.Z.Address != 3 || cfg.Motors.E.Address != 4 {
		t.Errorf("motor addresses not decoded: x=%d z=%d e=%d",
			cfg.Motors.X.Address, cfg.Motors.Z.Address, cfg.Motors.E.Address)
	}
	if _, err := cfg.Motors.X.Direction(); err != nil {
		t.Errorf("X.Direction: %v", err)
	}
	if _, err := cfg.Motors.Z.Direction(); err != nil {
		t.Errorf("Z.Direction: %v", err)
	}
	if _, err := cfg.Motors.E.Direction(); err != nil {
		t.Errorf("E.Direction: %v", err)
	}
}

func TestAxisMotorDirectionRejectsInvalid(t *testing.T) {
	a := AxisMotor{EndstopDirection: "up"}
	if _, err := a.Direction(); err == nil {
		t.Fatal("Direction: want error for invalid endstop_direction")
	}
}

func TestFlagsApplyOnlyOverridesExplicitlySetFlags(t *testing.T) {
	path := writeTOML(t, sampleTOML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	f := NewFlags("3dprintd")
	if err := f.Parse([]string{"-address", "0.0.0.0", "-motors-address-z", "9"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	f.Apply(cfg)

	if cfg.API.Address != "0.0.0.0" {
		t.Errorf("API.Address = %q, want overridden", cfg.API.Address)
	}
	if cfg.Motors.Z.Address != 9 {
		t.Errorf("Motors.Z.Address = %d, want 9", cfg.Motors.Z.Address)
	}
	// x was never passed on the command line, so it must keep its
	// decoded TOML value rather than being zeroed out.
	if cfg.Motors.X.Address != 1 {
		t.Errorf("Motors.X.Address = %d, want unchanged 1", cfg.Motors.X.Address)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want unchanged", cfg.Log.Level)
	}
}
