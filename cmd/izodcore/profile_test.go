package main

import (
	"os"
	"path/filepath"
	"testing"
)

// TestProfileStore_Roundtrip tests save then load of profile and baseline.
func TestProfileStore_Roundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "profile.yml")
	store := NewProfileStore(path, testLogger())

	p := DefaultProfile()
	if err := p.SetLevel(SensitivityHigh); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	if err := p.SetElectrodeThreshold(4, 20, 10); err != nil {
		t.Fatalf("SetElectrodeThreshold failed: %v", err)
	}
	baseline := flatBaseline(312)
	baseline[7] = 298

	if err := store.Save(p, baseline); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, gotBaseline, found := store.Load()
	if !found {
		t.Fatal("Load did not find the saved profile")
	}
	if got.Level != SensitivityHigh {
		t.Errorf("level: got %s, want %s", got.Level, SensitivityHigh)
	}
	if !got.CustomPerPad {
		t.Error("per-pad customization flag lost")
	}
	if got.Thresholds[4] != (thresholdPair{Touch: 20, Release: 10}) {
		t.Errorf("custom threshold lost: %+v", got.Thresholds[4])
	}
	if gotBaseline != baseline {
		t.Errorf("baseline mismatch: got %v", gotBaseline)
	}
}

// TestProfileStore_MissingFileUsesDefaults tests first-boot behavior.
func TestProfileStore_MissingFileUsesDefaults(t *testing.T) {
	store := NewProfileStore(filepath.Join(t.TempDir(), "absent.yml"), testLogger())
	p, _, found := store.Load()
	if found {
		t.Error("missing file reported as found")
	}
	if p.Level != DefaultProfile().Level {
		t.Errorf("expected default level, got %s", p.Level)
	}
}

// TestProfileStore_CorruptFileUsesDefaults tests the fallback on bad YAML.
func TestProfileStore_CorruptFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yml")
	if err := os.WriteFile(path, []byte("{not yaml:::"), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewProfileStore(path, testLogger())
	_, _, found := store.Load()
	if found {
		t.Error("corrupt file reported as found")
	}
}

// TestProfileStore_RefusesInvalidProfile tests the save-side validation.
func TestProfileStore_RefusesInvalidProfile(t *testing.T) {
	store := NewProfileStore(filepath.Join(t.TempDir(), "profile.yml"), testLogger())
	p := DefaultProfile()
	p.Thresholds[0] = thresholdPair{Touch: 2, Release: 5} // release above touch
	if err := store.Save(p, flatBaseline(300)); err == nil {
		t.Error("invalid profile persisted")
	}
}
