package main

import (
	"fmt"
	"log/slog"
	"math"
)

// ============================================================================
// Touch calibration
// ============================================================================
// Auto calibration re-learns the per-electrode baseline and derives touch
// thresholds from measured noise. It only runs on an untouched wheel: a
// request that arrives mid-touch is deferred and picked up after release.
//
// Sequence on an idle wheel:
//   1. settle: discard readings while the front end stabilizes
//   2. sample: average N readings per electrode into the new baseline,
//      tracking sample-to-sample jitter as the noise estimate
//   3. tune: touch threshold = 2*noise + 5 (clamped), release = noise + 2
//      (clamped); the small pad gets proportionally reduced thresholds
//   4. health: electrodes whose baseline falls outside the plausible band
//      are flagged and excluded from estimation
//
// The calibrator is fed from the sampling loop, one reading per tick, and is
// not safe for concurrent use.
// ============================================================================

type calibrationPhase int

const (
	calIdle calibrationPhase = iota
	calDeferred
	calSettling
	calSampling
)

// CalibrationResult is the output applied to the estimator and persisted.
type CalibrationResult struct {
	Baseline [electrodeCount]float64
	Noise    [electrodeCount]float64
	Profile  SensitivityProfile
	Disabled []int // electrodes failing the health check
}

type calibrator struct {
	logger *slog.Logger

	phase        calibrationPhase
	settleLeft   int
	settleFrames int
	samples      [][electrodeCount]uint16
	baseProfile  SensitivityProfile // level/compensation flags carried over
}

func newCalibrator(sampleHz int, logger *slog.Logger) *calibrator {
	if sampleHz <= 0 {
		sampleHz = defaultSampleHz
	}
	frames := calibrationSettleMS * sampleHz / 1000
	if frames < 1 {
		frames = 1
	}
	return &calibrator{logger: logger, settleFrames: frames}
}

// Active reports whether a calibration run is in progress or deferred.
func (c *calibrator) Active() bool {
	return c.phase != calIdle
}

// Begin starts a calibration run. If the wheel is currently touched the run
// is deferred until release; the return value reports that.
func (c *calibrator) Begin(profile SensitivityProfile, touched bool) (deferred bool) {
	c.baseProfile = profile
	c.samples = c.samples[:0]
	if touched {
		c.phase = calDeferred
		c.logger.Info("calibration deferred until touch release")
		return true
	}
	c.phase = calSettling
	c.settleLeft = c.settleFrames
	c.logger.Info("calibration started", "settle_frames", c.settleFrames, "samples", calibrationSamples)
	return false
}

// Offer feeds one reading. Returns a non-nil result when the run completes.
// A touch during settle or sampling aborts the pass back to deferred so the
// baseline never absorbs a finger.
func (c *calibrator) Offer(r ElectrodeReading, touched bool) *CalibrationResult {
	switch c.phase {
	case calIdle:
		return nil

	case calDeferred:
		if !touched {
			c.phase = calSettling
			c.settleLeft = c.settleFrames
			c.samples = c.samples[:0]
			c.logger.Info("touch released, calibration resuming")
		}
		return nil

	case calSettling:
		if touched {
			c.phase = calDeferred
			return nil
		}
		c.settleLeft--
		if c.settleLeft <= 0 {
			c.phase = calSampling
		}
		return nil

	case calSampling:
		if touched {
			c.phase = calDeferred
			c.samples = c.samples[:0]
			c.logger.Info("touch during calibration, restarting after release")
			return nil
		}
		c.samples = append(c.samples, r.Raw)
		if len(c.samples) < calibrationSamples {
			return nil
		}
		res := c.finish()
		c.phase = calIdle
		c.samples = nil
		return res
	}
	return nil
}

// finish averages the collected samples and derives tuned thresholds.
func (c *calibrator) finish() *CalibrationResult {
	res := &CalibrationResult{Profile: c.baseProfile}
	n := float64(len(c.samples))

	for i := 0; i < electrodeCount; i++ {
		var sum, jitter float64
		for k, s := range c.samples {
			v := float64(s[i])
			sum += v
			if k > 0 {
				jitter += math.Abs(v - float64(c.samples[k-1][i]))
			}
		}
		res.Baseline[i] = sum / n
		if n > 1 {
			res.Noise[i] = jitter / (n - 1)
		}

		touch := clampInt(int(math.Round(2*res.Noise[i]+5)), autoTouchMin, autoTouchMax)
		release := clampInt(int(math.Round(res.Noise[i]+2)), autoReleaseMin, autoReleaseMax)
		if i == smallPadElectrode && c.baseProfile.SmallPadCompensation {
			// Smaller contact area yields weaker signals; scale thresholds
			// down to match.
			touch = clampInt(touch*3/4, autoTouchMin, autoTouchMax)
			release = clampInt(release*3/4, autoReleaseMin, autoReleaseMax)
		}
		if release >= touch {
			release = touch - 1
			if release < autoReleaseMin {
				release = autoReleaseMin
				touch = release + 1
			}
		}
		res.Profile.Thresholds[i] = thresholdPair{Touch: touch, Release: release}

		if res.Baseline[i] < electrodeBaselineMin || res.Baseline[i] > electrodeBaselineMax {
			res.Disabled = append(res.Disabled, i)
		}
	}
	res.Profile.CustomPerPad = true

	if len(res.Disabled) > 0 {
		c.logger.Warn("electrodes failed health check, excluded from estimation", "electrodes", res.Disabled)
	}
	c.logger.Info("calibration complete",
		"samples", len(c.samples),
		"disabled", len(res.Disabled))
	return res
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Detail string for the calibrated system event.
func (r *CalibrationResult) String() string {
	return fmt.Sprintf("auto calibration: %d electrodes tuned, %d disabled", electrodeCount-len(r.Disabled), len(r.Disabled))
}
