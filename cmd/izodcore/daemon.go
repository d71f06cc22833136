package main

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ============================================================================
// Daemon
// ============================================================================
// The daemon is the aggregation context: the single consumer of the input
// bus. It maps events onto playback actions and keeps the state WebSocket
// fed with snapshots. All actions go through the pipeline's command API, so
// the daemon never touches playback state directly.
//
// Control mapping:
//   play_pause press  toggle play/pause
//   next press        next track
//   prev press        previous track
//   menu press        stop
//   wheel tap         toggle play/pause
//   wheel steps       volume, volumeStepPct percent per detent
// ============================================================================

const (
	volumeStepPct   = 2
	actionTimeout   = 2 * time.Second
	snapshotRefresh = time.Second
)

type daemon struct {
	logger   *slog.Logger
	bus      *InputBus
	audio    *AudioPipeline
	sampling *samplingLoop
	hub      *Hub
}

func newDaemon(bus *InputBus, audio *AudioPipeline, sampling *samplingLoop, hub *Hub, logger *slog.Logger) *daemon {
	return &daemon{
		logger:   logger,
		bus:      bus,
		audio:    audio,
		sampling: sampling,
		hub:      hub,
	}
}

// Run drains the input bus until ctx is canceled.
func (d *daemon) Run(ctx context.Context) error {
	d.logger.Info("daemon started")
	for {
		ev, err := d.bus.Next(ctx)
		if err != nil {
			return err
		}
		d.handle(ctx, ev)
	}
}

func (d *daemon) handle(ctx context.Context, ev InputEvent) {
	actx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()

	switch p := ev.Payload.(type) {
	case ButtonEvent:
		if p.Edge != EdgePress {
			return
		}
		d.logger.Debug("button", "id", p.ID, "seq", ev.Seq)
		var err error
		switch p.ID {
		case ButtonPlayPause:
			err = d.audio.TogglePlay(actx)
		case ButtonNext:
			err = d.audio.Next(actx)
		case ButtonPrev:
			err = d.audio.Prev(actx)
		case ButtonMenu:
			err = d.audio.Stop(actx)
		case ButtonSelect:
			// Reserved for menu navigation; nothing to confirm yet.
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Error("button action failed", "id", p.ID, "error", err)
		}

	case WheelEvent:
		if p.Tap {
			if err := d.audio.TogglePlay(actx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("wheel tap action failed", "error", err)
			}
			return
		}
		if p.Steps != 0 {
			if err := d.audio.AdjustVolume(actx, p.Steps*volumeStepPct); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error("wheel volume adjust failed", "error", err)
			}
		}

	case SystemEvent:
		switch p.Kind {
		case SystemTrackEnded, SystemCalibrated:
			d.logger.Info("system event", "kind", p.Kind, "detail", p.Detail)
			d.broadcastSnapshot(ctx)
		case SystemDecodeError, SystemSensorFault, SystemBusOverflow, SystemUnderrun:
			d.logger.Warn("system event", "kind", p.Kind, "detail", p.Detail)
		default:
			d.logger.Debug("system event", "kind", p.Kind, "detail", p.Detail)
		}
	}
}

// Snapshot assembles the full state snapshot for the WS layer and IPC.
func (d *daemon) Snapshot(ctx context.Context) (StateSnapshot, error) {
	session, err := d.audio.Session(ctx)
	if err != nil {
		return StateSnapshot{}, err
	}
	wheel, err := d.sampling.Status(ctx)
	if err != nil {
		return StateSnapshot{}, err
	}
	return StateSnapshot{
		Session: session,
		Wheel:   wheel,
		Bus:     d.bus.Stats(),
	}, nil
}

func (d *daemon) broadcastSnapshot(ctx context.Context) {
	if d.hub == nil {
		return
	}
	actx, cancel := context.WithTimeout(ctx, actionTimeout)
	defer cancel()
	snap, err := d.Snapshot(actx)
	if err != nil {
		d.logger.Warn("snapshot for broadcast failed", "error", err)
		return
	}
	BroadcastSnapshot(d.hub, snap)
}

// RunSnapshots pushes periodic state refreshes to WS clients while playback
// is active, so position and buffer level stay current without client polls.
func (d *daemon) RunSnapshots(ctx context.Context) error {
	if d.hub == nil {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(snapshotRefresh)
	defer ticker.Stop()

	var lastState PlaybackState
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			actx, cancel := context.WithTimeout(ctx, actionTimeout)
			snap, err := d.Snapshot(actx)
			cancel()
			if err != nil {
				continue
			}
			// Quiet when stopped and nothing changed.
			if snap.Session.State == StateStopped && lastState == StateStopped {
				continue
			}
			lastState = snap.Session.State
			BroadcastSnapshot(d.hub, snap)
		}
	}
}
