package main

import (
	"testing"
	"time"
)

// calReading builds a flat reading at the given level.
func calReading(level uint16) ElectrodeReading {
	var r ElectrodeReading
	r.At = time.Now()
	for i := range r.Raw {
		r.Raw[i] = level
	}
	return r
}

// runCalibration feeds alternating readings until the calibrator finishes or
// the frame budget runs out.
func runCalibration(t *testing.T, c *calibrator, levels []uint16, maxFrames int) *CalibrationResult {
	t.Helper()
	for i := 0; i < maxFrames; i++ {
		if res := c.Offer(calReading(levels[i%len(levels)]), false); res != nil {
			return res
		}
	}
	t.Fatal("calibration did not complete within frame budget")
	return nil
}

// TestCalibrator_AutoTune tests baseline averaging and noise-derived
// thresholds, including small pad compensation.
func TestCalibrator_AutoTune(t *testing.T) {
	c := newCalibrator(defaultSampleHz, testLogger())
	if deferred := c.Begin(DefaultProfile(), false); deferred {
		t.Fatal("calibration deferred on an untouched wheel")
	}

	// Alternating 300/302 readings: jitter of 2 counts per sample.
	res := runCalibration(t, c, []uint16{300, 302}, 200)

	for i := 0; i < electrodeCount; i++ {
		if res.Baseline[i] < 300 || res.Baseline[i] > 302 {
			t.Errorf("electrode %d baseline out of range: %f", i, res.Baseline[i])
		}
	}

	// noise=2: touch = 2*2+5 = 9, release = 2+2 = 4.
	std := res.Profile.Thresholds[0]
	if std.Touch != 9 || std.Release != 4 {
		t.Errorf("standard pad thresholds: got %d/%d, want 9/4", std.Touch, std.Release)
	}
	// Small pad compensated down by a quarter.
	small := res.Profile.Thresholds[smallPadElectrode]
	if small.Touch != 6 || small.Release != 3 {
		t.Errorf("small pad thresholds: got %d/%d, want 6/3", small.Touch, small.Release)
	}
	if len(res.Disabled) != 0 {
		t.Errorf("healthy electrodes flagged as disabled: %v", res.Disabled)
	}
}

// TestCalibrator_QuietWheelClampsThresholds tests the lower clamp when the
// wheel is electrically silent.
func TestCalibrator_QuietWheelClampsThresholds(t *testing.T) {
	c := newCalibrator(defaultSampleHz, testLogger())
	c.Begin(DefaultProfile(), false)

	// Perfectly stable readings: noise 0 gives touch 5, release 2.
	res := runCalibration(t, c, []uint16{400}, 200)
	std := res.Profile.Thresholds[0]
	if std.Touch != 5 || std.Release != 2 {
		t.Errorf("zero-noise thresholds: got %d/%d, want 5/2", std.Touch, std.Release)
	}
}

// TestCalibrator_DeferredWhileTouched tests that a request during a touch
// waits for release and then completes.
func TestCalibrator_DeferredWhileTouched(t *testing.T) {
	c := newCalibrator(defaultSampleHz, testLogger())
	if deferred := c.Begin(DefaultProfile(), true); !deferred {
		t.Fatal("expected calibration to defer behind an active touch")
	}

	// Still touched: nothing progresses.
	for i := 0; i < 20; i++ {
		if res := c.Offer(calReading(400), true); res != nil {
			t.Fatal("calibration completed while touched")
		}
	}
	if !c.Active() {
		t.Fatal("deferred calibration reported inactive")
	}

	// Release: settle then sample to completion.
	res := runCalibration(t, c, []uint16{400}, 200)
	if res == nil {
		t.Fatal("calibration did not complete after release")
	}
	if c.Active() {
		t.Error("calibrator still active after completion")
	}
}

// TestCalibrator_TouchAbortsSampling tests that a touch mid-pass restarts
// the pass instead of absorbing the finger into the baseline.
func TestCalibrator_TouchAbortsSampling(t *testing.T) {
	c := newCalibrator(defaultSampleHz, testLogger())
	c.Begin(DefaultProfile(), false)

	// Run through settle and partway into sampling.
	for i := 0; i < 15; i++ {
		if res := c.Offer(calReading(400), false); res != nil {
			t.Fatal("calibration completed too early")
		}
	}

	// Finger lands: the pass must restart, and the touched readings (600)
	// must not contaminate the final baseline.
	for i := 0; i < 5; i++ {
		if res := c.Offer(calReading(600), true); res != nil {
			t.Fatal("calibration completed while touched")
		}
	}

	res := runCalibration(t, c, []uint16{400}, 200)
	for i := 0; i < electrodeCount; i++ {
		if res.Baseline[i] != 400 {
			t.Errorf("electrode %d baseline contaminated by touch: %f", i, res.Baseline[i])
		}
	}
}

// TestCalibrator_HealthCheck tests that implausible baselines disable the
// electrode.
func TestCalibrator_HealthCheck(t *testing.T) {
	c := newCalibrator(defaultSampleHz, testLogger())
	c.Begin(DefaultProfile(), false)

	var res *CalibrationResult
	for i := 0; i < 200 && res == nil; i++ {
		r := calReading(400)
		r.Raw[2] = 10 // shorted low, below the plausible band
		res = c.Offer(r, false)
	}
	if res == nil {
		t.Fatal("calibration did not complete")
	}

	if len(res.Disabled) != 1 || res.Disabled[0] != 2 {
		t.Errorf("expected electrode 2 disabled, got %v", res.Disabled)
	}
}
