// Package settings persists the mutable per-axis reference parameters
// an operator can tune at runtime (reference_speed, reference_accel_decel,
// reference_jerk) across restarts, independent of the static TOML
// process configuration.
//
// Grounded on standalone/config/config.go's
// decode-with-defaults-on-missing-file load shape and host/mcu/mcu.go's
// dictionary JSON round-trip, both generalized to a whole-file-replace
// + fsync save since this file is now written at runtime rather than
// only read at startup.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/PS-3D/3dprintd/internal/axis"
)

// AxisSettings are the tunable per-axis reference parameters.
type AxisSettings struct {
	ReferenceSpeed      uint32 `json:"reference_speed"`
	ReferenceAccelDecel uint32 `json:"reference_accel_decel"`
	ReferenceJerk       uint32 `json:"reference_jerk"`
}

// document is the on-disk shape, keyed by axis name so the file stays
// readable and forward-compatible with additional axes.
type document struct {
	X AxisSettings `json:"x"`
	Y AxisSettings `json:"y"`
	Z AxisSettings `json:"z"`
}

// Settings is the in-memory, lock-guarded handle other subsystems hold
// a single shared reference to; the API layer reads and writes it for
// /axis/{x|y|z}/settings. HwCtrl's referencing defaults come from the
// TOML configuration, not from this store.
type Settings struct {
	mu   sync.Mutex
	path string
	doc  document
}

// Defaults are used whenever the settings file is missing or empty.
func Defaults() AxisSettings {
	return AxisSettings{ReferenceSpeed: 1000, ReferenceAccelDecel: 5000, ReferenceJerk: 10000}
}

// Load reads path, falling back to Defaults() for every axis when the
// file doesn't exist or is empty.
func Load(path string) (*Settings, error) {
	s := &Settings{path: path, doc: document{X: Defaults(), Y: Defaults(), Z: Defaults()}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("settings: read %q: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, fmt.Errorf("settings: parse %q: %w", path, err)
	}
	return s, nil
}

// Get returns the currently held settings for a, or a zero
// AxisSettings for any value other than X, Y or Z.
func (s *Settings) Get(a axis.Axis) AxisSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch a {
	case axis.X:
		return s.doc.X
	case axis.Y:
		return s.doc.Y
	case axis.Z:
		return s.doc.Z
	default:
		return AxisSettings{}
	}
}

// Set updates the in-memory settings for a and persists the whole file,
// so a caller never observes a write that only partially applied.
func (s *Settings) Set(a axis.Axis, v AxisSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch a {
	case axis.X:
		s.doc.X = v
	case axis.Y:
		s.doc.Y = v
	case axis.Z:
		s.doc.Z = v
	default:
		return fmt.Errorf("settings: axis %s has no persisted settings", a)
	}
	return s.save()
}

// save writes the document to a temp file in the same directory, fsyncs
// it, then renames it over the real path — a crash mid-write leaves the
// previous, still-valid file in place rather than a truncated one.
func (s *Settings) save() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("settings: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("settings: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("settings: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("settings: rename into place: %w", err)
	}
	return nil
}
