package main

import "testing"

// TestSensitivityProfile_SetLevel tests the threshold tables and the small
// pad compensation.
func TestSensitivityProfile_SetLevel(t *testing.T) {
	p := DefaultProfile()

	if err := p.SetLevel(SensitivityVeryLow); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	if p.Thresholds[0] != (thresholdPair{Touch: 15, Release: 10}) {
		t.Errorf("Very Low standard pad: got %+v", p.Thresholds[0])
	}
	if p.Thresholds[smallPadElectrode] != (thresholdPair{Touch: 12, Release: 8}) {
		t.Errorf("Very Low small pad: got %+v", p.Thresholds[smallPadElectrode])
	}

	if err := p.SetLevel(SensitivityVeryHigh); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	if p.Thresholds[0] != (thresholdPair{Touch: 4, Release: 2}) {
		t.Errorf("Very High standard pad: got %+v", p.Thresholds[0])
	}
	if p.Thresholds[smallPadElectrode] != (thresholdPair{Touch: 3, Release: 1}) {
		t.Errorf("Very High small pad: got %+v", p.Thresholds[smallPadElectrode])
	}

	if err := p.SetLevel(SensitivityLevel(9)); err == nil {
		t.Error("out-of-range level accepted")
	}
}

// TestSensitivityProfile_NoCompensation tests that the small pad follows the
// standard table when compensation is off.
func TestSensitivityProfile_NoCompensation(t *testing.T) {
	p := SensitivityProfile{}
	if err := p.SetLevel(SensitivityMedium); err != nil {
		t.Fatalf("SetLevel failed: %v", err)
	}
	if p.Thresholds[smallPadElectrode] != p.Thresholds[0] {
		t.Errorf("uncompensated small pad differs: %+v vs %+v",
			p.Thresholds[smallPadElectrode], p.Thresholds[0])
	}
}

// TestSensitivityProfile_PerPadOverride tests the custom flag lifecycle.
func TestSensitivityProfile_PerPadOverride(t *testing.T) {
	p := DefaultProfile()
	if p.CustomPerPad {
		t.Fatal("fresh profile marked custom")
	}

	if err := p.SetElectrodeThreshold(3, 11, 5); err != nil {
		t.Fatalf("SetElectrodeThreshold failed: %v", err)
	}
	if !p.CustomPerPad {
		t.Error("override did not mark the profile custom")
	}

	// Touch must stay above release.
	if err := p.SetElectrodeThreshold(3, 5, 5); err == nil {
		t.Error("touch == release accepted")
	}
	if err := p.SetElectrodeThreshold(99, 10, 5); err == nil {
		t.Error("electrode out of range accepted")
	}

	// Re-applying a level clears the customization.
	p.SetLevel(SensitivityMedium)
	if p.CustomPerPad {
		t.Error("SetLevel did not clear the custom flag")
	}
}

// TestParseSensitivityLevel tests name and numeric forms.
func TestParseSensitivityLevel(t *testing.T) {
	tests := []struct {
		in   string
		want SensitivityLevel
		ok   bool
	}{
		{"Medium", SensitivityMedium, true},
		{"Very High", SensitivityVeryHigh, true},
		{"1", SensitivityVeryLow, true},
		{"5", SensitivityVeryHigh, true},
		{"medium", 0, false},
		{"0", 0, false},
		{"6", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseSensitivityLevel(tt.in)
		if tt.ok && (err != nil || got != tt.want) {
			t.Errorf("ParseSensitivityLevel(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
		}
		if !tt.ok && err == nil {
			t.Errorf("ParseSensitivityLevel(%q) accepted", tt.in)
		}
	}
}
