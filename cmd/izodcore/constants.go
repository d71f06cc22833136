package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_KEY = 0x01

	KEY_PLAYPAUSE    = 164
	KEY_STOPCD       = 166
	KEY_PREVIOUSSONG = 165
	KEY_NEXTSONG     = 163
	KEY_MENU         = 139
	KEY_SELECT       = 0x161
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
	evValueRepeat  = 2
)

// Touch wheel geometry and sampling defaults.
//
// The wheel is a ring of 12 capacitive electrodes read by an MPR121-class
// controller. Electrode 11 is physically smaller than the others and gets
// compensated thresholds.
const (
	electrodeCount    = 12
	smallPadElectrode = 11

	defaultSampleHz = 125 // ~8ms poll period for responsive scroll

	// Activity hysteresis in sample frames: debounce into active after 2
	// consecutive active frames, back to idle after 3 quiet frames.
	activeFramesOn = 2
	quietFramesOff = 3

	// Baseline drift tracking: exponential update toward the raw reading
	// while idle. Time constant in seconds.
	defaultBaselineTauS = 5.0

	// Anti-drift gate: largest accepted position change per sample, as a
	// fraction of a full revolution. Single-tick jumps beyond this are
	// treated as noise unless the previous sample was no-touch.
	defaultMaxStep = 0.25

	// Tap detection: touch shorter than this with negligible motion is a
	// tap; anything longer is a scroll gesture.
	defaultTapMaxMS = 250

	// Motion below this many revolutions during a touch still counts as
	// a tap (finger wobble tolerance).
	tapMotionEps = 0.03

	// Saturated electrode reading (10-bit MPR121 filtered data tops out
	// well below this; readings at or above are implausible).
	electrodeSaturated = 1023

	// Electrode health window: baselines outside this range mark the
	// electrode as dead and exclude it from the centroid.
	electrodeBaselineMin = 50
	electrodeBaselineMax = 1000
)

// Calibration defaults.
const (
	calibrationSamples     = 10  // samples averaged into the baseline
	calibrationSettleMS    = 100 // settle time before sampling starts
	defaultCalibIntervalMS = 30000

	// Auto-tuned threshold clamps: touch = 2*noise+5, release = noise+2,
	// each held inside a sane band.
	autoTouchMin   = 3
	autoTouchMax   = 30
	autoReleaseMin = 1
	autoReleaseMax = 15
)

// Input bus defaults.
const (
	defaultBusCapacity = 128

	// Hard upper bound on the bounded wait for button/system enqueue when
	// the bus is saturated.
	busEnqueueTimeoutMS = 50

	// Button debounce settle time.
	defaultDebounceMS = 20
)

// Audio pipeline defaults. Frame geometry mirrors the I2S DMA layout of the
// target hardware: 256 stereo frames per block at 44.1kHz (~5.8ms per block).
const (
	defaultSampleRate   = 44100
	defaultChannels     = 2
	defaultFrameSamples = 256 // frames per AudioFrame (per channel)
	defaultRingFrames   = 8   // ring capacity in AudioFrames

	defaultVolume       = 50 // percent
	defaultVolumeRampMS = 10 // linear ramp window for volume changes

	// Synthetic tone source default (hardware bring-up tone).
	defaultToneHz = 1000
)
