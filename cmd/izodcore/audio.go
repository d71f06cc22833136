package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"
)

// ============================================================================
// Audio pipeline
// ============================================================================
// Three pieces with strictly separated timing domains:
//
//   fill goroutine   reads PCM from the current track's source and pushes
//                    frames into the ring; blocks when the ring is full
//   render callback  runs on the output device's clock; pops frames, applies
//                    the volume ramp, writes silence on underrun; never
//                    blocks and takes no locks
//   control loop     owns track/playlist state and the source; serializes
//                    commands from IPC, buttons, and the wheel
//
// The render side shares state with the loop only through atomics (playing
// flag, target gain, underrun counter), so nothing the control plane does can
// stall the sample clock.
// ============================================================================

// AudioConfig carries the pipeline geometry and volume defaults.
type AudioConfig struct {
	SampleRate   int
	Channels     int
	FrameSamples int
	RingFrames   int
	Volume       int
	VolumeRampMS int
}

func (c *AudioConfig) fillDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = defaultSampleRate
	}
	if c.Channels <= 0 {
		c.Channels = defaultChannels
	}
	if c.FrameSamples <= 0 {
		c.FrameSamples = defaultFrameSamples
	}
	if c.RingFrames <= 0 {
		c.RingFrames = defaultRingFrames
	}
	if c.Volume < 0 || c.Volume > 100 {
		c.Volume = defaultVolume
	}
	if c.VolumeRampMS <= 0 {
		c.VolumeRampMS = defaultVolumeRampMS
	}
}

type audioCommand interface {
	audioCommand()
}

type playCmd struct{ reply chan error }
type pauseCmd struct{ reply chan error }
type togglePlayCmd struct{ reply chan error }
type stopCmd struct{ reply chan error }
type skipCmd struct {
	delta int // +1 next, -1 previous
	reply chan error
}
type seekCmd struct {
	pos   time.Duration
	reply chan error
}
type setVolumeCmd struct {
	volume int
	reply  chan error
}
type adjustVolumeCmd struct {
	delta int
	reply chan error
}
type sessionCmd struct{ reply chan PlaybackSession }

func (playCmd) audioCommand()         {}
func (pauseCmd) audioCommand()        {}
func (togglePlayCmd) audioCommand()   {}
func (stopCmd) audioCommand()         {}
func (skipCmd) audioCommand()         {}
func (seekCmd) audioCommand()         {}
func (setVolumeCmd) audioCommand()    {}
func (adjustVolumeCmd) audioCommand() {}
func (sessionCmd) audioCommand()      {}

// fillResult reports a fill goroutine ending, tagged with its source so the
// loop can ignore results from a fill it already replaced.
type fillResult struct {
	src FrameSource
	err error
}

// AudioPipeline is the playback engine. Construct with newAudioPipeline and
// drive with Run; all other methods are safe from any goroutine.
type AudioPipeline struct {
	cfg    AudioConfig
	logger *slog.Logger
	bus    *InputBus
	out    AudioOutput
	ring   *frameRing

	commands chan audioCommand
	fillDone chan fillResult

	// Shared with the render callback.
	playingFlag atomic.Bool
	underruns   atomic.Uint64
	targetGain  atomic.Uint64 // math.Float64bits
	posNanos    atomic.Int64  // fill position within the current track

	// Render-callback locals, persisted across calls. Only the render
	// goroutine touches these.
	gain     float64
	gainStep float64

	// Control-loop state. Only the Run goroutine touches these.
	tracks   []Track
	index    int
	state    PlaybackState
	volume   int
	src      FrameSource
	duration time.Duration
	stopFill context.CancelFunc
	fillDead chan struct{}
}

func newAudioPipeline(cfg AudioConfig, tracks []Track, out AudioOutput, bus *InputBus, logger *slog.Logger) *AudioPipeline {
	cfg.fillDefaults()
	p := &AudioPipeline{
		cfg:      cfg,
		logger:   logger,
		bus:      bus,
		out:      out,
		ring:     newFrameRing(cfg.RingFrames),
		commands: make(chan audioCommand, 8),
		fillDone: make(chan fillResult, 1),
		tracks:   tracks,
		state:    StateStopped,
		volume:   cfg.Volume,
		gainStep: 1000.0 / (float64(cfg.VolumeRampMS) * float64(cfg.SampleRate)),
	}
	p.targetGain.Store(math.Float64bits(float64(p.volume) / 100))
	p.gain = float64(p.volume) / 100
	return p
}

// Run starts the output device and serves commands until ctx is canceled.
func (p *AudioPipeline) Run(ctx context.Context) error {
	if err := p.out.Start(p.render); err != nil {
		return err
	}
	defer p.out.Close()

	// Underrun monitor: the render callback can only count, so the loop
	// surfaces new underruns as system events at a low rate.
	monitor := time.NewTicker(time.Second)
	defer monitor.Stop()
	var lastUnderruns uint64

	p.logger.Info("audio pipeline started",
		"sample_rate", p.cfg.SampleRate,
		"channels", p.cfg.Channels,
		"frame_samples", p.cfg.FrameSamples,
		"ring_frames", p.cfg.RingFrames,
		"tracks", len(p.tracks))

	for {
		select {
		case <-ctx.Done():
			p.teardown()
			return ctx.Err()

		case cmd := <-p.commands:
			p.handleCommand(cmd)

		case res := <-p.fillDone:
			if res.src == p.src {
				p.fillEnded(res.err)
			}

		case <-monitor.C:
			if n := p.underruns.Load(); n > lastUnderruns && p.state == StatePlaying {
				p.logger.Warn("audio underruns", "new", n-lastUnderruns, "total", n)
				p.bus.Publish(SystemEvent{Kind: SystemUnderrun, Detail: fmt.Sprintf("%d total", n)}, time.Time{})
				lastUnderruns = n
			}
		}
	}
}

// render is the device-clock callback. len(out) is always one frame
// (FrameSamples * Channels samples).
func (p *AudioPipeline) render(out []int16) {
	target := math.Float64frombits(p.targetGain.Load())

	if !p.playingFlag.Load() {
		zeroSamples(out)
		p.gain = target
		return
	}

	f, ok := p.ring.TryPop()
	if !ok {
		p.underruns.Add(1)
		zeroSamples(out)
		return
	}

	g := p.gain
	ch := p.cfg.Channels
	n := len(f.Samples)
	if n > len(out) {
		n = len(out)
	}
	for i := 0; i < n; i += ch {
		if g < target {
			g += p.gainStep
			if g > target {
				g = target
			}
		} else if g > target {
			g -= p.gainStep
			if g < target {
				g = target
			}
		}
		for c := 0; c < ch && i+c < n; c++ {
			out[i+c] = int16(float64(f.Samples[i+c]) * g)
		}
	}
	p.gain = g
	zeroSamples(out[n:])
}

func zeroSamples(s []int16) {
	for i := range s {
		s[i] = 0
	}
}

// ----------------------------------------------------------------------------
// Control loop internals (Run goroutine only)
// ----------------------------------------------------------------------------

func (p *AudioPipeline) handleCommand(cmd audioCommand) {
	switch c := cmd.(type) {
	case playCmd:
		c.reply <- p.play()
	case pauseCmd:
		c.reply <- p.pause()
	case togglePlayCmd:
		if p.state == StatePlaying {
			c.reply <- p.pause()
		} else {
			c.reply <- p.play()
		}
	case stopCmd:
		p.stop()
		c.reply <- nil
	case skipCmd:
		c.reply <- p.skip(c.delta)
	case seekCmd:
		c.reply <- p.seek(c.pos)
	case setVolumeCmd:
		c.reply <- p.setVolume(c.volume)
	case adjustVolumeCmd:
		c.reply <- p.setVolume(p.volume + c.delta)
	case sessionCmd:
		c.reply <- p.snapshot()
	}
}

func (p *AudioPipeline) play() error {
	switch p.state {
	case StatePlaying:
		return nil
	case StatePaused:
		p.state = StatePlaying
		p.playingFlag.Store(true)
		p.logger.Info("playback resumed", "track", p.trackName())
		return nil
	}

	if err := p.loadTrack(p.index); err != nil {
		return err
	}
	p.state = StatePlaying
	p.playingFlag.Store(true)
	p.logger.Info("playback started", "track", p.trackName())
	return nil
}

func (p *AudioPipeline) pause() error {
	if p.state != StatePlaying {
		return nil
	}
	p.state = StatePaused
	p.playingFlag.Store(false)
	p.logger.Info("playback paused", "track", p.trackName())
	return nil
}

func (p *AudioPipeline) stop() {
	p.playingFlag.Store(false)
	p.unloadTrack()
	p.ring.Flush()
	p.state = StateStopped
	p.posNanos.Store(0)
	p.logger.Info("playback stopped")
}

func (p *AudioPipeline) skip(delta int) error {
	if len(p.tracks) == 0 {
		return errors.New("playlist is empty")
	}
	n := len(p.tracks)
	p.index = ((p.index+delta)%n + n) % n

	if p.state == StateStopped {
		return nil
	}
	resume := p.state == StatePlaying
	p.unloadTrack()
	p.ring.Flush()
	if err := p.loadTrack(p.index); err != nil {
		p.state = StateStopped
		p.playingFlag.Store(false)
		return err
	}
	if resume {
		p.state = StatePlaying
		p.playingFlag.Store(true)
	}
	p.logger.Info("track changed", "track", p.trackName(), "index", p.index)
	return nil
}

func (p *AudioPipeline) seek(pos time.Duration) error {
	if p.src == nil {
		return errors.New("nothing loaded")
	}
	p.haltFill()
	if err := p.src.Seek(pos); err != nil {
		return err
	}
	p.posNanos.Store(int64(p.src.Position()))
	p.ring.Flush()
	p.startFill()
	p.logger.Debug("seek", "position", p.src.Position())
	return nil
}

func (p *AudioPipeline) setVolume(volume int) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	p.volume = volume
	p.targetGain.Store(math.Float64bits(float64(volume) / 100))
	p.logger.Debug("volume", "percent", volume)
	return nil
}

func (p *AudioPipeline) fillEnded(err error) {
	p.haltFill()
	if errors.Is(err, errEndOfStream) {
		ended := p.trackName()
		p.bus.Publish(SystemEvent{Kind: SystemTrackEnded, Detail: ended}, time.Time{})

		if p.index+1 < len(p.tracks) {
			p.unloadTrack()
			p.index++
			if err := p.loadTrack(p.index); err == nil {
				p.logger.Info("advancing to next track", "track", p.trackName())
				return
			}
		}
		p.stop()
		return
	}

	p.logger.Error("track source failed", "track", p.trackName(), "error", err)
	p.bus.Publish(SystemEvent{Kind: SystemDecodeError, Detail: err.Error()}, time.Time{})
	p.stop()
}

func (p *AudioPipeline) loadTrack(index int) error {
	if len(p.tracks) == 0 {
		return errors.New("playlist is empty")
	}
	src, err := p.tracks[index].Open()
	if err != nil {
		return fmt.Errorf("open track %q: %w", p.tracks[index].Name, err)
	}
	p.src = src
	p.duration = src.Duration()
	p.posNanos.Store(0)
	p.startFill()
	return nil
}

func (p *AudioPipeline) unloadTrack() {
	p.haltFill()
	if p.src != nil {
		p.src.Close()
		p.src = nil
	}
	p.duration = 0
}

func (p *AudioPipeline) startFill() {
	ctx, cancel := context.WithCancel(context.Background())
	dead := make(chan struct{})
	p.stopFill = cancel
	p.fillDead = dead
	go p.fill(ctx, p.src, dead)
}

func (p *AudioPipeline) haltFill() {
	if p.stopFill == nil {
		return
	}
	p.stopFill()
	<-p.fillDead
	p.stopFill = nil
	p.fillDead = nil
	// A fill that ended on its own may have left a result behind.
	select {
	case <-p.fillDone:
	default:
	}
}

func (p *AudioPipeline) fill(ctx context.Context, src FrameSource, dead chan struct{}) {
	defer close(dead)
	size := p.cfg.FrameSamples * p.cfg.Channels
	for {
		buf := make([]int16, size)
		if err := src.ReadFrame(buf); err != nil {
			select {
			case p.fillDone <- fillResult{src: src, err: err}:
			case <-ctx.Done():
			}
			return
		}
		p.posNanos.Store(int64(src.Position()))
		if err := p.ring.Push(ctx, AudioFrame{Samples: buf, Gen: p.ring.Generation()}); err != nil {
			return
		}
	}
}

func (p *AudioPipeline) teardown() {
	p.playingFlag.Store(false)
	p.unloadTrack()
	p.ring.Flush()
}

func (p *AudioPipeline) trackName() string {
	if p.index >= 0 && p.index < len(p.tracks) {
		return p.tracks[p.index].Name
	}
	return ""
}

func (p *AudioPipeline) snapshot() PlaybackSession {
	s := PlaybackSession{
		State:      p.state,
		TrackIndex: p.index,
		TrackCount: len(p.tracks),
		Volume:     p.volume,
		Underruns:  p.underruns.Load(),
		Buffered:   p.ring.Len(),
	}
	if p.index >= 0 && p.index < len(p.tracks) {
		s.TrackID = p.tracks[p.index].ID.String()
		s.TrackName = p.tracks[p.index].Name
	}
	if p.src != nil {
		// Fill position runs ahead of playback by the buffered amount.
		buffered := time.Duration(p.ring.Len()*p.cfg.FrameSamples) * time.Second / time.Duration(p.cfg.SampleRate)
		pos := time.Duration(p.posNanos.Load()) - buffered
		if pos < 0 {
			pos = 0
		}
		s.PositionS = pos.Seconds()
		s.DurationS = p.duration.Seconds()
	}
	return s
}

// ----------------------------------------------------------------------------
// Public command API
// ----------------------------------------------------------------------------

func (p *AudioPipeline) Play(ctx context.Context) error {
	c := playCmd{reply: make(chan error, 1)}
	return p.roundTrip(ctx, c, c.reply)
}

func (p *AudioPipeline) Pause(ctx context.Context) error {
	c := pauseCmd{reply: make(chan error, 1)}
	return p.roundTrip(ctx, c, c.reply)
}

func (p *AudioPipeline) TogglePlay(ctx context.Context) error {
	c := togglePlayCmd{reply: make(chan error, 1)}
	return p.roundTrip(ctx, c, c.reply)
}

func (p *AudioPipeline) Stop(ctx context.Context) error {
	c := stopCmd{reply: make(chan error, 1)}
	return p.roundTrip(ctx, c, c.reply)
}

// Next advances the playlist, wrapping at the end.
func (p *AudioPipeline) Next(ctx context.Context) error {
	c := skipCmd{delta: 1, reply: make(chan error, 1)}
	return p.roundTrip(ctx, c, c.reply)
}

// Prev moves back one playlist entry, wrapping at the start.
func (p *AudioPipeline) Prev(ctx context.Context) error {
	c := skipCmd{delta: -1, reply: make(chan error, 1)}
	return p.roundTrip(ctx, c, c.reply)
}

func (p *AudioPipeline) Seek(ctx context.Context, pos time.Duration) error {
	c := seekCmd{pos: pos, reply: make(chan error, 1)}
	return p.roundTrip(ctx, c, c.reply)
}

// SetVolume sets the output volume in percent (0-100, clamped).
func (p *AudioPipeline) SetVolume(ctx context.Context, volume int) error {
	c := setVolumeCmd{volume: volume, reply: make(chan error, 1)}
	return p.roundTrip(ctx, c, c.reply)
}

// AdjustVolume shifts the volume by delta percent (wheel detents).
func (p *AudioPipeline) AdjustVolume(ctx context.Context, delta int) error {
	c := adjustVolumeCmd{delta: delta, reply: make(chan error, 1)}
	return p.roundTrip(ctx, c, c.reply)
}

// Session returns a playback snapshot.
func (p *AudioPipeline) Session(ctx context.Context) (PlaybackSession, error) {
	c := sessionCmd{reply: make(chan PlaybackSession, 1)}
	select {
	case p.commands <- c:
	case <-ctx.Done():
		return PlaybackSession{}, ctx.Err()
	}
	select {
	case s := <-c.reply:
		return s, nil
	case <-ctx.Done():
		return PlaybackSession{}, ctx.Err()
	}
}

func (p *AudioPipeline) roundTrip(ctx context.Context, cmd audioCommand, reply chan error) error {
	select {
	case p.commands <- cmd:
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
