package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/PS-3D/3dprintd/internal/axis"
)

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.Get(axis.X); got != Defaults() {
		t.Errorf("Get(X) = %+v, want defaults", got)
	}
}

func TestLoadEmptyFileYieldsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.Get(axis.Z); got != Defaults() {
		t.Errorf("Get(Z) = %+v, want defaults", got)
	}
}

func TestSetPersistsAndRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := AxisSettings{ReferenceSpeed: 2000, ReferenceAccelDecel: 8000, ReferenceJerk: 15000}
	if err := s.Set(axis.Y, want); err != nil {
		t.Fatalf("Set: %v", err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load after Set: %v", err)
	}
	if got := reloaded.Get(axis.Y); got != want {
		t.Errorf("Get(Y) after reload = %+v, want %+v", got, want)
	}
	// Unrelated axes keep their defaults after a single-axis write.
	if got := reloaded.Get(axis.X); got != Defaults() {
		t.Errorf("Get(X) after Y write = %+v, want unchanged defaults", got)
	}
}

func TestSetRejectsAxisWithoutPersistedSettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Set(3, AxisSettings{}); err == nil {
		t.Fatal("Set: want error for non-X/Y/Z axis")
	}
}

func TestSaveLeavesNoTempFilesBehind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := s.Set(axis.X, Defaults()); err != nil {
		t.Fatalf("Set: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "settings.json" {
		t.Fatalf("dir entries = %v, want only settings.json", entries)
	}
}
