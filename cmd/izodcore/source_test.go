package main

import (
	"errors"
	"testing"
	"time"
)

// TestToneSource_ReadUntilEnd tests block counting, final-block zero padding,
// and the end-of-stream error.
func TestToneSource_ReadUntilEnd(t *testing.T) {
	// 100 frames of track, 64-frame blocks: one full block, one padded block.
	const sampleRate = 1000
	src, err := newToneSource(100, sampleRate, 2, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("newToneSource failed: %v", err)
	}

	buf := make([]int16, 64*2)
	if err := src.ReadFrame(buf); err != nil {
		t.Fatalf("first block failed: %v", err)
	}

	if err := src.ReadFrame(buf); err != nil {
		t.Fatalf("second block failed: %v", err)
	}
	// Frames past the 100th are zero padded.
	for i := 36 * 2; i < len(buf); i++ {
		if buf[i] != 0 {
			t.Fatalf("sample %d past end of track not zero: %d", i, buf[i])
		}
	}

	if err := src.ReadFrame(buf); !errors.Is(err, errEndOfStream) {
		t.Errorf("expected end of stream, got %v", err)
	}
}

// TestToneSource_StereoInterleaving tests that both channels carry the same
// sample.
func TestToneSource_StereoInterleaving(t *testing.T) {
	src, err := newToneSource(440, defaultSampleRate, 2, time.Second)
	if err != nil {
		t.Fatalf("newToneSource failed: %v", err)
	}
	buf := make([]int16, 128*2)
	if err := src.ReadFrame(buf); err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	for i := 0; i < len(buf); i += 2 {
		if buf[i] != buf[i+1] {
			t.Fatalf("frame %d channels differ: %d vs %d", i/2, buf[i], buf[i+1])
		}
	}
}

// TestToneSource_SeekClamps tests position reporting and the end clamp.
func TestToneSource_SeekClamps(t *testing.T) {
	src, err := newToneSource(440, defaultSampleRate, 2, 10*time.Second)
	if err != nil {
		t.Fatalf("newToneSource failed: %v", err)
	}

	if err := src.Seek(4 * time.Second); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}
	if got := src.Position(); got < 3999*time.Millisecond || got > 4001*time.Millisecond {
		t.Errorf("position after seek: got %s, want ~4s", got)
	}

	if err := src.Seek(-time.Second); err != nil {
		t.Fatalf("negative Seek failed: %v", err)
	}
	if got := src.Position(); got != 0 {
		t.Errorf("position after negative seek: got %s, want 0", got)
	}

	// Past the end: clamp there and report end of stream on the next read.
	if err := src.Seek(time.Minute); err != nil {
		t.Fatalf("past-end Seek failed: %v", err)
	}
	buf := make([]int16, 64*2)
	if err := src.ReadFrame(buf); !errors.Is(err, errEndOfStream) {
		t.Errorf("expected end of stream after past-end seek, got %v", err)
	}
}

// TestToneSource_RejectsBadParams tests constructor validation.
func TestToneSource_RejectsBadParams(t *testing.T) {
	if _, err := newToneSource(0, defaultSampleRate, 2, time.Second); err == nil {
		t.Error("zero frequency accepted")
	}
	if _, err := newToneSource(30000, defaultSampleRate, 2, time.Second); err == nil {
		t.Error("frequency above Nyquist accepted")
	}
	if _, err := newToneSource(440, defaultSampleRate, 2, 0); err == nil {
		t.Error("zero duration accepted")
	}
}
