package main

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// ============================================================================
// Sampling loop
// ============================================================================
// One goroutine owns the electrode sampler, the wheel estimator, the
// calibrator, and the active sensitivity profile. Everything else talks to it
// through the request channel, so the estimator state never needs a lock.
// ============================================================================

// ElectrodeSampler abstracts the touch front end. Hardware implementations
// read the capacitance controller; the simulated sampler synthesizes idle
// readings with drift and jitter.
type ElectrodeSampler interface {
	Sample() (ElectrodeReading, error)
	Close() error
}

// WheelStatus is the sampling context's contribution to state snapshots.
type WheelStatus struct {
	Touched      bool    `json:"touched"`
	Angle        float64 `json:"angle"`
	Confidence   float64 `json:"confidence"`
	Level        int     `json:"sensitivity_level"`
	LevelName    string  `json:"sensitivity_name"`
	CustomPerPad bool    `json:"custom_per_pad"`
	Calibrating  bool    `json:"calibrating"`
	SensorFaults uint64  `json:"sensor_faults"`
	Disabled     []int   `json:"disabled_electrodes,omitempty"`
}

type samplingRequest interface {
	samplingRequest()
}

type setLevelRequest struct {
	level SensitivityLevel
	reply chan error
}

type setThresholdRequest struct {
	electrode int
	touch     int
	release   int
	reply     chan error
}

type calibrateRequest struct {
	reply chan bool // true when deferred behind an active touch
}

type wheelStatusRequest struct {
	reply chan WheelStatus
}

func (setLevelRequest) samplingRequest()     {}
func (setThresholdRequest) samplingRequest() {}
func (calibrateRequest) samplingRequest()    {}
func (wheelStatusRequest) samplingRequest()  {}

type samplingLoop struct {
	logger  *slog.Logger
	sampler ElectrodeSampler
	est     *wheelEstimator
	cal     *calibrator
	bus     *InputBus
	store   *ProfileStore

	period        time.Duration
	calibInterval time.Duration // 0 disables periodic recalibration
	requests      chan samplingRequest

	disabled []int
	lastPos  WheelPosition
}

func newSamplingLoop(sampler ElectrodeSampler, est *wheelEstimator, cal *calibrator, bus *InputBus, store *ProfileStore, sampleHz int, calibInterval time.Duration, logger *slog.Logger) *samplingLoop {
	if sampleHz <= 0 {
		sampleHz = defaultSampleHz
	}
	return &samplingLoop{
		logger:        logger,
		sampler:       sampler,
		est:           est,
		cal:           cal,
		bus:           bus,
		store:         store,
		period:        time.Second / time.Duration(sampleHz),
		calibInterval: calibInterval,
		requests:      make(chan samplingRequest, 8),
	}
}

// Run drives the fixed-rate sampling tick until ctx is canceled.
func (s *samplingLoop) Run(ctx context.Context) error {
	defer s.sampler.Close()

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	var recal <-chan time.Time
	if s.calibInterval > 0 {
		t := time.NewTicker(s.calibInterval)
		defer t.Stop()
		recal = t.C
	}

	s.logger.Info("sampling loop started",
		"period", s.period,
		"recalibration_interval", s.calibInterval)

	for {
		select {
		case <-ctx.Done():
			s.persist()
			return ctx.Err()

		case req := <-s.requests:
			s.handleRequest(req)

		case <-recal:
			if !s.cal.Active() {
				s.startCalibration()
			}

		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *samplingLoop) tick() {
	reading, err := s.sampler.Sample()
	if err != nil {
		s.logger.Error("electrode sample failed", "error", err)
		return
	}

	pos, events := s.est.Sample(reading)
	s.lastPos = pos
	for _, ev := range events {
		s.bus.Publish(ev, reading.At)
	}

	if res := s.cal.Offer(reading, s.est.Touched()); res != nil {
		s.applyCalibration(res)
	}
}

func (s *samplingLoop) startCalibration() bool {
	deferred := s.cal.Begin(s.est.Profile(), s.est.Touched())
	if deferred {
		s.bus.Publish(SystemEvent{Kind: SystemCalibPending, Detail: "waiting for touch release"}, time.Time{})
	}
	return deferred
}

func (s *samplingLoop) applyCalibration(res *CalibrationResult) {
	s.est.SetBaseline(res.Baseline)
	s.est.SetProfile(res.Profile)
	for i := 0; i < electrodeCount; i++ {
		s.est.SetElectrodeEnabled(i, true)
	}
	for _, e := range res.Disabled {
		s.est.SetElectrodeEnabled(e, false)
	}
	s.disabled = res.Disabled

	s.persist()
	s.bus.Publish(SystemEvent{Kind: SystemCalibrated, Detail: res.String()}, time.Time{})
}

func (s *samplingLoop) persist() {
	if err := s.store.Save(s.est.Profile(), s.est.Baseline()); err != nil {
		s.logger.Error("profile persist failed", "error", err)
	}
}

func (s *samplingLoop) handleRequest(req samplingRequest) {
	switch r := req.(type) {
	case setLevelRequest:
		p := s.est.Profile()
		err := p.SetLevel(r.level)
		if err == nil {
			s.est.SetProfile(p)
			s.persist()
			s.logger.Info("sensitivity level changed", "level", r.level.String())
		}
		r.reply <- err

	case setThresholdRequest:
		p := s.est.Profile()
		err := p.SetElectrodeThreshold(r.electrode, r.touch, r.release)
		if err == nil {
			s.est.SetProfile(p)
			s.persist()
			s.logger.Info("electrode thresholds changed",
				"electrode", r.electrode, "touch", r.touch, "release", r.release)
		}
		r.reply <- err

	case calibrateRequest:
		r.reply <- s.startCalibration()

	case wheelStatusRequest:
		p := s.est.Profile()
		r.reply <- WheelStatus{
			Touched:      s.lastPos.Touched,
			Angle:        s.lastPos.Angle,
			Confidence:   s.lastPos.Confidence,
			Level:        int(p.Level),
			LevelName:    p.Level.String(),
			CustomPerPad: p.CustomPerPad,
			Calibrating:  s.cal.Active(),
			SensorFaults: s.est.SensorFaults(),
			Disabled:     s.disabled,
		}
	}
}

// SetLevel applies a sensitivity level from outside the sampling context.
func (s *samplingLoop) SetLevel(ctx context.Context, level SensitivityLevel) error {
	req := setLevelRequest{level: level, reply: make(chan error, 1)}
	return s.roundTripErr(ctx, req, req.reply)
}

// SetThreshold overrides one electrode's thresholds.
func (s *samplingLoop) SetThreshold(ctx context.Context, electrode, touch, release int) error {
	req := setThresholdRequest{electrode: electrode, touch: touch, release: release, reply: make(chan error, 1)}
	return s.roundTripErr(ctx, req, req.reply)
}

// Calibrate starts an auto calibration run. Returns true when the run was
// deferred behind an active touch.
func (s *samplingLoop) Calibrate(ctx context.Context) (bool, error) {
	req := calibrateRequest{reply: make(chan bool, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	select {
	case deferred := <-req.reply:
		return deferred, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Status returns a wheel state snapshot.
func (s *samplingLoop) Status(ctx context.Context) (WheelStatus, error) {
	req := wheelStatusRequest{reply: make(chan WheelStatus, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return WheelStatus{}, ctx.Err()
	}
	select {
	case st := <-req.reply:
		return st, nil
	case <-ctx.Done():
		return WheelStatus{}, ctx.Err()
	}
}

func (s *samplingLoop) roundTripErr(ctx context.Context, req samplingRequest, reply chan error) error {
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ============================================================================
// Simulated sampler
// ============================================================================

// simSampler synthesizes idle electrode readings with per-electrode jitter
// and a slow environmental drift, which exercises the baseline tracker the
// way a real front end would.
type simSampler struct {
	rng   *rand.Rand
	base  [electrodeCount]float64
	drift float64
	t     int
}

func newSimSampler(seed uint64) *simSampler {
	s := &simSampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
	for i := range s.base {
		s.base[i] = 280 + 8*float64(i%3)
	}
	return s
}

func (s *simSampler) Sample() (ElectrodeReading, error) {
	s.t++
	// Drift wanders a few counts over minutes.
	s.drift = 6 * math.Sin(float64(s.t)/9000)

	var r ElectrodeReading
	r.At = time.Now()
	for i := range r.Raw {
		v := s.base[i] + s.drift + (s.rng.Float64()-0.5)*2
		if v < 0 {
			v = 0
		}
		r.Raw[i] = uint16(v)
	}
	return r, nil
}

func (s *simSampler) Close() error { return nil }
