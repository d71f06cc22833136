package main

import (
	"log/slog"
	"math"
	"time"
)

// ============================================================================
// Touch wheel position estimator
// ============================================================================
// Converts raw 12-electrode capacitance samples into a calibrated angular
// position, scroll deltas, and tap events.
//
// Per sample tick:
//   1. activation = raw - baseline per electrode; per-electrode hysteresis
//      (touch threshold in, release threshold out)
//   2. no active electrodes: baseline tracks the raw reading with a slow
//      exponential (drift compensation); result is "no touch"
//   3. active: activation-weighted vector-sum center of mass around the
//      circle (handles the 11->0 seam with no special casing)
//   4. anti-drift gate rejects single-tick jumps beyond the max step
//   5. fractional motion accumulates into whole detent steps; short touches
//      with negligible motion become taps on release
//
// The estimator is owned by the sampling goroutine; it is not safe for
// concurrent use.
// ============================================================================

// ElectrodeReading is one raw sample of all electrodes at a sampling tick.
type ElectrodeReading struct {
	Raw [electrodeCount]uint16
	At  time.Time
}

// WheelPosition is the derived wheel state for one estimator cycle.
type WheelPosition struct {
	Touched    bool
	Angle      float64 // [0,1) revolutions, valid when Touched
	Confidence float64 // proportional to total activation, capped at 1
	Delta      float64 // signed shortest-path change since last accepted sample
}

// WheelConfig carries the tunables the source material leaves open. The
// defaults are documented in constants.go and the example config.
type WheelConfig struct {
	SampleHz    int
	BaselineTau float64       // seconds
	MaxStep     float64       // revolutions per tick accepted by the drift gate
	TapMax      time.Duration // touches shorter than this (and still) are taps
	Invert      bool
}

func (c *WheelConfig) fillDefaults() {
	if c.SampleHz <= 0 {
		c.SampleHz = defaultSampleHz
	}
	if c.BaselineTau <= 0 {
		c.BaselineTau = defaultBaselineTauS
	}
	if c.MaxStep <= 0 {
		c.MaxStep = defaultMaxStep
	}
	if c.TapMax <= 0 {
		c.TapMax = defaultTapMaxMS * time.Millisecond
	}
}

// confidenceFullScale is the total activation treated as full confidence
// (two strongly driven pads).
const confidenceFullScale = 240.0

type wheelEstimator struct {
	cfg     WheelConfig
	logger  *slog.Logger
	profile SensitivityProfile

	baseline [electrodeCount]float64
	enabled  [electrodeCount]bool
	padOn    [electrodeCount]bool // per-electrode hysteresis state

	active       bool
	activeFrames int
	quietFrames  int

	lastAngle float64
	hasLast   bool
	fracMove  float64

	touchBegan time.Time
	touchMoved float64 // absolute revolutions during the current touch

	sensorFaults uint64
}

func newWheelEstimator(cfg WheelConfig, profile SensitivityProfile, baseline [electrodeCount]float64, logger *slog.Logger) *wheelEstimator {
	cfg.fillDefaults()
	e := &wheelEstimator{
		cfg:      cfg,
		logger:   logger,
		profile:  profile,
		baseline: baseline,
	}
	for i := range e.enabled {
		e.enabled[i] = true
	}
	return e
}

// SetProfile swaps the active sensitivity profile. Takes effect on the next
// sample.
func (e *wheelEstimator) SetProfile(p SensitivityProfile) {
	e.profile = p
}

// Profile returns the active profile.
func (e *wheelEstimator) Profile() SensitivityProfile {
	return e.profile
}

// Baseline returns the current drift-compensation baseline for persistence.
func (e *wheelEstimator) Baseline() [electrodeCount]float64 {
	return e.baseline
}

// SetBaseline replaces the baseline (calibration result).
func (e *wheelEstimator) SetBaseline(b [electrodeCount]float64) {
	e.baseline = b
}

// SetElectrodeEnabled excludes or re-includes an electrode from estimation.
func (e *wheelEstimator) SetElectrodeEnabled(electrode int, enabled bool) {
	if electrode >= 0 && electrode < electrodeCount {
		e.enabled[electrode] = enabled
	}
}

// Touched reports whether a touch is currently active (after hysteresis).
func (e *wheelEstimator) Touched() bool {
	return e.active
}

// SensorFaults returns the saturation fault counter.
func (e *wheelEstimator) SensorFaults() uint64 {
	return e.sensorFaults
}

// Sample processes one electrode reading and returns the derived position
// plus any discrete events (detent steps, taps, sensor faults) to publish.
func (e *wheelEstimator) Sample(r ElectrodeReading) (WheelPosition, []EventPayload) {
	var events []EventPayload

	if allSaturated(r.Raw) {
		// Implausible reading: likely a wedged controller or shorted lines.
		// Never a valid position, and the baseline must not chase it.
		e.sensorFaults++
		if e.sensorFaults == 1 || e.sensorFaults%100 == 0 {
			e.logger.Warn("all electrodes saturated, treating as no touch", "faults", e.sensorFaults)
			events = append(events, SystemEvent{Kind: SystemSensorFault, Detail: "all electrodes saturated"})
		}
		return e.idle(r, false), events
	}

	// Per-electrode activation with touch/release hysteresis.
	var activation [electrodeCount]float64
	anyActive := false
	for i := 0; i < electrodeCount; i++ {
		if !e.enabled[i] {
			e.padOn[i] = false
			continue
		}
		activation[i] = float64(r.Raw[i]) - e.baseline[i]
		th := e.profile.Thresholds[i]
		if e.padOn[i] {
			if activation[i] < float64(th.Release) {
				e.padOn[i] = false
			}
		} else if activation[i] > float64(th.Touch) {
			e.padOn[i] = true
		}
		if e.padOn[i] {
			anyActive = true
		}
	}

	// Frame hysteresis so one noisy tick cannot flip the touch state.
	if anyActive {
		e.activeFrames++
		e.quietFrames = 0
	} else {
		e.quietFrames++
		e.activeFrames = 0
	}
	wasActive := e.active
	if !e.active && e.activeFrames >= activeFramesOn {
		e.active = true
		e.touchBegan = r.At
		e.touchMoved = 0
	}
	if e.active && e.quietFrames >= quietFramesOff {
		e.active = false
	}

	if !e.active {
		if wasActive {
			// Touch released: short and still means tap.
			held := r.At.Sub(e.touchBegan)
			if held >= 0 && held <= e.cfg.TapMax && e.touchMoved < tapMotionEps {
				events = append(events, WheelEvent{Tap: true})
			}
		}
		return e.idle(r, !anyActive), events
	}

	// Activation-weighted center of mass around the circle. Active pads
	// and their immediate neighbors contribute, which interpolates between
	// electrodes and rides across the 11->0 seam for free.
	var sumX, sumY, total float64
	for i := 0; i < electrodeCount; i++ {
		if !e.enabled[i] || activation[i] <= 0 {
			continue
		}
		if !e.padOn[i] && !e.padOn[wrapElectrode(i-1)] && !e.padOn[wrapElectrode(i+1)] {
			continue
		}
		theta := 2 * math.Pi * float64(i) / electrodeCount
		sumX += math.Cos(theta) * activation[i]
		sumY += math.Sin(theta) * activation[i]
		total += activation[i]
	}
	if total <= 0 {
		return e.idle(r, false), events
	}

	angle := math.Atan2(sumY, sumX) / (2 * math.Pi)
	if angle < 0 {
		angle += 1
	}

	pos := WheelPosition{
		Touched:    true,
		Angle:      angle,
		Confidence: math.Min(1, total/confidenceFullScale),
	}

	if e.hasLast {
		diff := shortestArc(angle - e.lastAngle)
		if math.Abs(diff) > e.cfg.MaxStep {
			// Single-tick jump beyond the gate: noise spike, hold position.
			pos.Angle = e.lastAngle
			pos.Delta = 0
			return pos, events
		}
		if e.cfg.Invert {
			diff = -diff
		}
		pos.Delta = diff
		e.touchMoved += math.Abs(diff)

		// Accumulate fractional motion into whole detent steps.
		e.fracMove += diff * electrodeCount
		steps := 0
		for e.fracMove >= 0.5 {
			steps++
			e.fracMove -= 1.0
		}
		for e.fracMove <= -0.5 {
			steps--
			e.fracMove += 1.0
		}
		if steps != 0 {
			events = append(events, WheelEvent{Delta: diff, Steps: steps})
		}
	}
	e.lastAngle = angle
	e.hasLast = true

	return pos, events
}

// idle resets motion tracking and optionally lets the baseline drift toward
// the current reading (only when genuinely untouched).
func (e *wheelEstimator) idle(r ElectrodeReading, updateBaseline bool) WheelPosition {
	e.hasLast = false
	e.fracMove = 0

	if updateBaseline {
		// One-pole exponential toward the raw value; alpha derived from the
		// sample period and configured time constant.
		alpha := 1.0 / (e.cfg.BaselineTau * float64(e.cfg.SampleHz))
		if alpha > 1 {
			alpha = 1
		}
		for i := 0; i < electrodeCount; i++ {
			if e.enabled[i] {
				e.baseline[i] += alpha * (float64(r.Raw[i]) - e.baseline[i])
			}
		}
	}
	return WheelPosition{Touched: false}
}

func allSaturated(raw [electrodeCount]uint16) bool {
	for _, v := range raw {
		if v < electrodeSaturated {
			return false
		}
	}
	return true
}

func wrapElectrode(i int) int {
	return ((i % electrodeCount) + electrodeCount) % electrodeCount
}

// shortestArc wraps an angular difference in revolutions to [-0.5, 0.5).
func shortestArc(d float64) float64 {
	for d >= 0.5 {
		d -= 1
	}
	for d < -0.5 {
		d += 1
	}
	return d
}
