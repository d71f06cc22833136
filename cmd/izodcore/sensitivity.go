package main

import (
	"errors"
	"fmt"
)

// ============================================================================
// Sensitivity profiles
// ============================================================================
// Five sensitivity levels map to per-electrode touch/release threshold pairs.
// Thresholds are the inverse of sensitivity: a higher level means lower
// thresholds. Electrode 11 is a physically smaller pad and gets compensated
// (lower) thresholds at every level.
// ============================================================================

// SensitivityLevel is the global sensitivity setting, 1..5.
type SensitivityLevel int

const (
	SensitivityVeryLow  SensitivityLevel = 1
	SensitivityLow      SensitivityLevel = 2
	SensitivityMedium   SensitivityLevel = 3
	SensitivityHigh     SensitivityLevel = 4
	SensitivityVeryHigh SensitivityLevel = 5

	SensitivityDefault = SensitivityMedium
)

var sensitivityNames = map[SensitivityLevel]string{
	SensitivityVeryLow:  "Very Low",
	SensitivityLow:      "Low",
	SensitivityMedium:   "Medium",
	SensitivityHigh:     "High",
	SensitivityVeryHigh: "Very High",
}

func (l SensitivityLevel) Valid() bool {
	return l >= SensitivityVeryLow && l <= SensitivityVeryHigh
}

func (l SensitivityLevel) String() string {
	if name, ok := sensitivityNames[l]; ok {
		return name
	}
	return "Invalid"
}

// ParseSensitivityLevel accepts either the numeric level or its name.
func ParseSensitivityLevel(s string) (SensitivityLevel, error) {
	for l, name := range sensitivityNames {
		if s == name || s == fmt.Sprintf("%d", int(l)) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("invalid sensitivity level: %q (1-5 or Very Low..Very High)", s)
}

// thresholdPair is a touch/release threshold pair for one electrode.
// Touch must exceed release to give the active/idle hysteresis band.
type thresholdPair struct {
	Touch   int `yaml:"touch"`
	Release int `yaml:"release"`
}

// Threshold tables per level, standard pads and the small pad.
var (
	levelThresholds = map[SensitivityLevel]thresholdPair{
		SensitivityVeryLow:  {Touch: 15, Release: 10},
		SensitivityLow:      {Touch: 12, Release: 8},
		SensitivityMedium:   {Touch: 8, Release: 4},
		SensitivityHigh:     {Touch: 6, Release: 3},
		SensitivityVeryHigh: {Touch: 4, Release: 2},
	}
	smallPadThresholds = map[SensitivityLevel]thresholdPair{
		SensitivityVeryLow:  {Touch: 12, Release: 8},
		SensitivityLow:      {Touch: 10, Release: 6},
		SensitivityMedium:   {Touch: 6, Release: 3},
		SensitivityHigh:     {Touch: 4, Release: 2},
		SensitivityVeryHigh: {Touch: 3, Release: 1},
	}
)

// SensitivityProfile is the active per-electrode threshold configuration.
// It is owned by the sampling context and persisted to the profile store;
// outside writers go through requests, never direct mutation.
type SensitivityProfile struct {
	Level                SensitivityLevel              `yaml:"level"`
	Thresholds           [electrodeCount]thresholdPair `yaml:"thresholds"`
	CustomPerPad         bool                          `yaml:"custom_per_pad"`
	SmallPadCompensation bool                          `yaml:"small_pad_compensation"`
}

// DefaultProfile returns a Medium-level profile with small-pad compensation.
func DefaultProfile() SensitivityProfile {
	p := SensitivityProfile{SmallPadCompensation: true}
	p.SetLevel(SensitivityDefault)
	return p
}

// SetLevel applies a global level to every electrode, honoring small-pad
// compensation. Clears any per-pad customization.
func (p *SensitivityProfile) SetLevel(level SensitivityLevel) error {
	if !level.Valid() {
		return fmt.Errorf("sensitivity level out of range: %d", level)
	}
	p.Level = level
	p.CustomPerPad = false
	for i := 0; i < electrodeCount; i++ {
		if i == smallPadElectrode && p.SmallPadCompensation {
			p.Thresholds[i] = smallPadThresholds[level]
		} else {
			p.Thresholds[i] = levelThresholds[level]
		}
	}
	return nil
}

// SetElectrodeThreshold overrides a single electrode's thresholds and marks
// the profile as per-pad customized.
func (p *SensitivityProfile) SetElectrodeThreshold(electrode, touch, release int) error {
	if electrode < 0 || electrode >= electrodeCount {
		return fmt.Errorf("electrode out of range: %d", electrode)
	}
	if touch <= 0 || release <= 0 || touch <= release {
		return errors.New("thresholds must satisfy touch > release > 0")
	}
	p.Thresholds[electrode] = thresholdPair{Touch: touch, Release: release}
	p.CustomPerPad = true
	return nil
}

// Validate checks profile invariants.
func (p *SensitivityProfile) Validate() error {
	if !p.Level.Valid() {
		return fmt.Errorf("sensitivity level out of range: %d", p.Level)
	}
	for i, t := range p.Thresholds {
		if t.Touch <= 0 || t.Release <= 0 || t.Touch <= t.Release {
			return fmt.Errorf("electrode %d thresholds invalid: touch=%d release=%d", i, t.Touch, t.Release)
		}
	}
	return nil
}
