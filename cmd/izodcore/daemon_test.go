package main

import (
	"context"
	"testing"
	"time"
)

// startDaemon wires a bus, a pipeline on the simulated output, and the
// aggregating daemon.
func startDaemon(t *testing.T) (*daemon, *AudioPipeline, *InputBus) {
	t.Helper()
	cfg := testAudioConfig()
	p, bus, _ := startPipeline(t, cfg, testToneTracks(cfg, 30*time.Second))
	d := newDaemon(bus, p, nil, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return d, p, bus
}

// TestDaemon_PlayPauseButton tests the press-to-toggle mapping; releases are
// ignored.
func TestDaemon_PlayPauseButton(t *testing.T) {
	_, p, bus := startDaemon(t)

	bus.Publish(ButtonEvent{ID: ButtonPlayPause, Edge: EdgePress}, time.Time{})
	waitForState(t, p, StatePlaying)

	bus.Publish(ButtonEvent{ID: ButtonPlayPause, Edge: EdgeRelease}, time.Time{})
	time.Sleep(50 * time.Millisecond)
	s, _ := p.Session(context.Background())
	if s.State != StatePlaying {
		t.Errorf("release toggled playback: state %s", s.State)
	}

	bus.Publish(ButtonEvent{ID: ButtonPlayPause, Edge: EdgePress}, time.Time{})
	waitForState(t, p, StatePaused)
}

// TestDaemon_WheelVolumeAndTap tests detent-to-volume and tap-to-toggle.
func TestDaemon_WheelVolumeAndTap(t *testing.T) {
	_, p, bus := startDaemon(t)
	ctx := context.Background()

	if err := p.SetVolume(ctx, 50); err != nil {
		t.Fatalf("SetVolume failed: %v", err)
	}

	bus.Publish(WheelEvent{Delta: 0.25, Steps: 3}, time.Time{})
	deadline := time.Now().Add(time.Second)
	for {
		s, _ := p.Session(ctx)
		if s.Volume == 50+3*volumeStepPct {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("volume after 3 detents: got %d, want %d", s.Volume, 50+3*volumeStepPct)
		}
		time.Sleep(5 * time.Millisecond)
	}

	bus.Publish(WheelEvent{Tap: true}, time.Time{})
	waitForState(t, p, StatePlaying)
}

// TestDaemon_MenuStops tests the menu button mapping.
func TestDaemon_MenuStops(t *testing.T) {
	_, p, bus := startDaemon(t)

	bus.Publish(ButtonEvent{ID: ButtonPlayPause, Edge: EdgePress}, time.Time{})
	waitForState(t, p, StatePlaying)

	bus.Publish(ButtonEvent{ID: ButtonMenu, Edge: EdgePress}, time.Time{})
	waitForState(t, p, StateStopped)
}
