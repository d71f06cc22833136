package main

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// errEndOfStream is returned by a FrameSource when the track is exhausted.
var errEndOfStream = errors.New("end of stream")

// FrameSource produces interleaved PCM for the fill goroutine. Sources are
// used by a single goroutine at a time.
type FrameSource interface {
	// ReadFrame fills dst completely or returns errEndOfStream. A short
	// final block is zero-padded by the source.
	ReadFrame(dst []int16) error
	// Seek repositions the stream. Positions past the end clamp to the end.
	Seek(pos time.Duration) error
	Position() time.Duration
	Duration() time.Duration
	Close() error
}

// toneSource synthesizes a fixed-frequency sine from a precomputed table,
// standing in for a decoder during bring-up and in the simulator. Identical
// phase math to a table oscillator: a fractional phase accumulator stepping
// through the table per output frame.
type toneSource struct {
	freq       float64
	sampleRate int
	channels   int
	duration   time.Duration

	table  []int16
	phase  float64
	step   float64
	cursor int64 // frames produced
	frames int64 // total frames in the track
}

const (
	toneTableSize = 1024
	toneAmplitude = 8192 // -12 dBFS, headroom for the volume ramp
)

func newToneSource(freq float64, sampleRate, channels int, duration time.Duration) (*toneSource, error) {
	if freq <= 0 || freq >= float64(sampleRate)/2 {
		return nil, fmt.Errorf("tone frequency out of range: %g", freq)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("tone duration must be positive: %s", duration)
	}
	s := &toneSource{
		freq:       freq,
		sampleRate: sampleRate,
		channels:   channels,
		duration:   duration,
		table:      make([]int16, toneTableSize),
		step:       freq * toneTableSize / float64(sampleRate),
		frames:     int64(duration.Seconds() * float64(sampleRate)),
	}
	for i := range s.table {
		s.table[i] = int16(toneAmplitude * math.Sin(2*math.Pi*float64(i)/toneTableSize))
	}
	return s, nil
}

func (s *toneSource) ReadFrame(dst []int16) error {
	if s.cursor >= s.frames {
		return errEndOfStream
	}
	frames := int64(len(dst) / s.channels)
	for f := int64(0); f < frames; f++ {
		var v int16
		if s.cursor+f < s.frames {
			v = s.table[int(s.phase)%toneTableSize]
			s.phase += s.step
			if s.phase >= toneTableSize {
				s.phase -= toneTableSize
			}
		}
		for c := 0; c < s.channels; c++ {
			dst[int(f)*s.channels+c] = v
		}
	}
	s.cursor += frames
	return nil
}

func (s *toneSource) Seek(pos time.Duration) error {
	if pos < 0 {
		pos = 0
	}
	frame := int64(pos.Seconds() * float64(s.sampleRate))
	if frame > s.frames {
		frame = s.frames
	}
	s.cursor = frame
	s.phase = math.Mod(float64(frame)*s.step, toneTableSize)
	return nil
}

func (s *toneSource) Position() time.Duration {
	return time.Duration(float64(s.cursor) / float64(s.sampleRate) * float64(time.Second))
}

func (s *toneSource) Duration() time.Duration {
	return s.duration
}

func (s *toneSource) Close() error { return nil }
