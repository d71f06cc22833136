package main

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// RenderFunc fills out with interleaved PCM at the device sample clock. It
// must never block; when no data is buffered it writes silence.
type RenderFunc func(out []int16)

// AudioOutput drives a RenderFunc at a steady sample clock. The device
// implementation pulls from the render callback; the simulated one runs a
// wall-clock ticker so the pipeline behaves identically without hardware.
type AudioOutput interface {
	Start(render RenderFunc) error
	Close() error
}

// otoOutput plays through the platform audio device. oto pulls PCM from an
// io.Reader on its own mixer goroutine, which maps directly onto the render
// callback model.
type otoOutput struct {
	sampleRate int
	channels   int
	logger     *slog.Logger

	ctx    *oto.Context
	player *oto.Player
}

func newOtoOutput(sampleRate, channels int, logger *slog.Logger) *otoOutput {
	return &otoOutput{sampleRate: sampleRate, channels: channels, logger: logger}
}

func (o *otoOutput) Start(render RenderFunc) error {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   o.sampleRate,
		ChannelCount: o.channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return fmt.Errorf("open audio device: %w", err)
	}
	<-ready
	o.ctx = ctx

	o.player = ctx.NewPlayer(&renderReader{
		render:  render,
		scratch: make([]int16, defaultFrameSamples*o.channels),
	})
	o.player.Play()
	o.logger.Info("audio device started", "sample_rate", o.sampleRate, "channels", o.channels)
	return nil
}

func (o *otoOutput) Close() error {
	if o.player != nil {
		return o.player.Close()
	}
	return nil
}

// renderReader adapts a RenderFunc to the io.Reader oto pulls from,
// serializing int16 samples as little-endian bytes.
type renderReader struct {
	render  RenderFunc
	scratch []int16
	pending []byte
}

func (r *renderReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		r.render(r.scratch)
		if cap(r.pending) < len(r.scratch)*2 {
			r.pending = make([]byte, len(r.scratch)*2)
		}
		r.pending = r.pending[:len(r.scratch)*2]
		for i, s := range r.scratch {
			r.pending[2*i] = byte(s)
			r.pending[2*i+1] = byte(s >> 8)
		}
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// simOutput drives the render callback from a wall-clock ticker at the block
// rate, discarding the rendered PCM. Used by the simulator and tests.
type simOutput struct {
	sampleRate   int
	channels     int
	frameSamples int

	mu      sync.Mutex
	stop    chan struct{}
	stopped chan struct{}
	last    []int16
}

func newSimOutput(sampleRate, channels, frameSamples int) *simOutput {
	if frameSamples <= 0 {
		frameSamples = defaultFrameSamples
	}
	return &simOutput{sampleRate: sampleRate, channels: channels, frameSamples: frameSamples}
}

func (s *simOutput) Start(render RenderFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return fmt.Errorf("simulated output already started")
	}
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})

	period := time.Duration(float64(s.frameSamples) / float64(s.sampleRate) * float64(time.Second))
	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		buf := make([]int16, s.frameSamples*s.channels)
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				render(buf)
				s.mu.Lock()
				s.last = append(s.last[:0], buf...)
				s.mu.Unlock()
			}
		}
	}()
	return nil
}

func (s *simOutput) Close() error {
	s.mu.Lock()
	stop, stopped := s.stop, s.stopped
	s.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-stopped
	return nil
}

// LastBlock returns a copy of the most recently rendered block.
func (s *simOutput) LastBlock() []int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int16, len(s.last))
	copy(out, s.last)
	return out
}
