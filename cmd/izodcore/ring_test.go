package main

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testFrame(gen uint64, first int16) AudioFrame {
	s := make([]int16, 8)
	s[0] = first
	return AudioFrame{Samples: s, Gen: gen}
}

// TestFrameRing_FIFO tests in-order delivery.
func TestFrameRing_FIFO(t *testing.T) {
	r := newFrameRing(4)
	ctx := context.Background()

	for i := int16(0); i < 4; i++ {
		if err := r.Push(ctx, testFrame(r.Generation(), i)); err != nil {
			t.Fatalf("push %d failed: %v", i, err)
		}
	}
	for i := int16(0); i < 4; i++ {
		f, ok := r.TryPop()
		if !ok {
			t.Fatalf("pop %d: ring unexpectedly empty", i)
		}
		if f.Samples[0] != i {
			t.Errorf("pop %d: got frame %d, want %d", i, f.Samples[0], i)
		}
	}
}

// TestFrameRing_PushBlocksWhenFull tests producer back-pressure.
func TestFrameRing_PushBlocksWhenFull(t *testing.T) {
	r := newFrameRing(2)
	ctx := context.Background()

	r.Push(ctx, testFrame(0, 0))
	r.Push(ctx, testFrame(0, 1))

	timeoutCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err := r.Push(timeoutCtx, testFrame(0, 2))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected push on a full ring to block until deadline, got %v", err)
	}

	// Draining one frame unblocks the producer.
	if _, ok := r.TryPop(); !ok {
		t.Fatal("pop failed on a full ring")
	}
	if err := r.Push(ctx, testFrame(0, 2)); err != nil {
		t.Errorf("push after drain failed: %v", err)
	}
}

// TestFrameRing_TryPopEmpty tests the non-blocking consumer contract.
func TestFrameRing_TryPopEmpty(t *testing.T) {
	r := newFrameRing(4)
	if _, ok := r.TryPop(); ok {
		t.Error("TryPop returned a frame from an empty ring")
	}
}

// TestFrameRing_FlushInvalidatesBufferedFrames tests generation-based flush.
func TestFrameRing_FlushInvalidatesBufferedFrames(t *testing.T) {
	r := newFrameRing(4)
	ctx := context.Background()

	for i := int16(0); i < 3; i++ {
		r.Push(ctx, testFrame(r.Generation(), i))
	}

	gen := r.Flush()
	if gen != 1 {
		t.Errorf("expected generation 1 after flush, got %d", gen)
	}
	if _, ok := r.TryPop(); ok {
		t.Error("stale frame survived the flush")
	}

	// Frames stamped with the new generation flow through.
	r.Push(ctx, testFrame(r.Generation(), 42))
	f, ok := r.TryPop()
	if !ok || f.Samples[0] != 42 {
		t.Errorf("post-flush frame not delivered: ok=%v", ok)
	}
}

// TestFrameRing_StaleFrameSkippedInPassing tests that a frame pushed under an
// old generation after a flush is discarded on pop, not delivered.
func TestFrameRing_StaleFrameSkippedInPassing(t *testing.T) {
	r := newFrameRing(4)
	ctx := context.Background()

	oldGen := r.Generation()
	r.Flush()

	// Producer raced the flush: frame carries the old generation.
	r.Push(ctx, AudioFrame{Samples: []int16{7}, Gen: oldGen})
	r.Push(ctx, testFrame(r.Generation(), 9))

	f, ok := r.TryPop()
	if !ok {
		t.Fatal("expected the current-generation frame")
	}
	if f.Samples[0] != 9 {
		t.Errorf("got stale frame %d, want 9", f.Samples[0])
	}
}
