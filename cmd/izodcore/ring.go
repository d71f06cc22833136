package main

import (
	"context"
	"sync/atomic"
)

// AudioFrame is one block of interleaved PCM samples. Frames carry the ring
// generation they were filled under so a flush can invalidate everything in
// flight without coordinating with the consumer.
type AudioFrame struct {
	Samples []int16
	Gen     uint64
}

// frameRing is the bounded handoff between the filler goroutine and the
// render callback. Single producer, single consumer.
//
// The producer blocks when the ring is full (back-pressure into the decode
// path). The consumer never blocks: an empty ring is an underrun and the
// caller renders silence instead.
type frameRing struct {
	frames chan AudioFrame
	gen    atomic.Uint64
}

func newFrameRing(capacity int) *frameRing {
	if capacity <= 0 {
		capacity = defaultRingFrames
	}
	return &frameRing{frames: make(chan AudioFrame, capacity)}
}

// Generation returns the current fill generation. The producer stamps frames
// with this before pushing.
func (r *frameRing) Generation() uint64 {
	return r.gen.Load()
}

// Push blocks until there is space or ctx is canceled.
func (r *frameRing) Push(ctx context.Context, f AudioFrame) error {
	select {
	case r.frames <- f:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPop returns the next current-generation frame without blocking. Frames
// from older generations (pushed before a flush) are discarded in passing.
func (r *frameRing) TryPop() (AudioFrame, bool) {
	for {
		select {
		case f := <-r.frames:
			if f.Gen == r.gen.Load() {
				return f, true
			}
			// Stale frame from before a flush.
		default:
			return AudioFrame{}, false
		}
	}
}

// Flush invalidates all buffered frames and returns the new generation. Any
// frame pushed under an older generation is silently discarded on pop; the
// producer must re-read Generation before continuing.
func (r *frameRing) Flush() uint64 {
	gen := r.gen.Add(1)
	for {
		select {
		case <-r.frames:
		default:
			return gen
		}
	}
}

// Len reports buffered frames, stale ones included.
func (r *frameRing) Len() int {
	return len(r.frames)
}
