package main

import (
	"context"
	"testing"
	"time"
)

// drainOne pops the next event with a short deadline.
func drainOne(t *testing.T, b *InputBus) InputEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := b.Next(ctx)
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	return ev
}

// TestInputBus_SequenceOrder tests that mixed events come out in publish
// order with strictly increasing sequence numbers.
func TestInputBus_SequenceOrder(t *testing.T) {
	b := NewInputBus(16, testLogger())

	b.Publish(ButtonEvent{ID: ButtonPlayPause, Edge: EdgePress}, time.Time{})
	b.Publish(SystemEvent{Kind: SystemTrackEnded}, time.Time{})
	b.Publish(WheelEvent{Delta: 0.01, Steps: 1}, time.Time{})

	var lastSeq uint64
	for i, wantType := range []string{"button", "system", "wheel"} {
		ev := drainOne(t, b)
		if ev.Seq <= lastSeq {
			t.Errorf("event %d: sequence not increasing: %d after %d", i, ev.Seq, lastSeq)
		}
		lastSeq = ev.Seq

		var got string
		switch ev.Payload.(type) {
		case ButtonEvent:
			got = "button"
		case SystemEvent:
			got = "system"
		case WheelEvent:
			got = "wheel"
		}
		if got != wantType {
			t.Errorf("event %d: got %s, want %s", i, got, wantType)
		}
	}
}

// TestInputBus_WheelCoalescing tests that pending same-direction wheel
// deltas merge into one event.
func TestInputBus_WheelCoalescing(t *testing.T) {
	b := NewInputBus(16, testLogger())

	b.Publish(WheelEvent{Delta: 0.02, Steps: 1}, time.Time{})
	if _, accepted := b.Publish(WheelEvent{Delta: 0.03, Steps: 1}, time.Time{}); accepted {
		t.Error("second same-direction wheel event should coalesce, not enqueue")
	}

	ev := drainOne(t, b)
	w, ok := ev.Payload.(WheelEvent)
	if !ok {
		t.Fatalf("expected WheelEvent, got %T", ev.Payload)
	}
	if w.Steps != 2 {
		t.Errorf("coalesced steps: got %d, want 2", w.Steps)
	}
	if diff := w.Delta - 0.05; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("coalesced delta: got %f, want 0.05", w.Delta)
	}
}

// TestInputBus_WheelDirectionChangeNotCoalesced tests that a direction
// reversal starts a fresh event.
func TestInputBus_WheelDirectionChangeNotCoalesced(t *testing.T) {
	b := NewInputBus(16, testLogger())

	b.Publish(WheelEvent{Delta: 0.02, Steps: 1}, time.Time{})
	if _, accepted := b.Publish(WheelEvent{Delta: -0.02, Steps: -1}, time.Time{}); !accepted {
		t.Error("direction reversal should enqueue a new event")
	}

	first := drainOne(t, b)
	second := drainOne(t, b)
	if first.Payload.(WheelEvent).Steps != 1 || second.Payload.(WheelEvent).Steps != -1 {
		t.Errorf("reversal events wrong: %+v then %+v", first.Payload, second.Payload)
	}
}

// TestInputBus_TapsNotCoalesced tests that taps never merge with motion.
func TestInputBus_TapsNotCoalesced(t *testing.T) {
	b := NewInputBus(16, testLogger())

	b.Publish(WheelEvent{Delta: 0.02, Steps: 1}, time.Time{})
	if _, accepted := b.Publish(WheelEvent{Tap: true}, time.Time{}); !accepted {
		t.Error("tap should enqueue as a distinct event")
	}
}

// TestInputBus_WheelDroppedWhenFull tests the wheel drop policy at capacity.
func TestInputBus_WheelDroppedWhenFull(t *testing.T) {
	b := NewInputBus(2, testLogger())

	b.Publish(ButtonEvent{ID: ButtonNext, Edge: EdgePress}, time.Time{})
	b.Publish(ButtonEvent{ID: ButtonNext, Edge: EdgeRelease}, time.Time{})

	// Tail is a button event, so no coalesce target; the bus is full.
	if _, accepted := b.Publish(WheelEvent{Delta: 0.01, Steps: 1}, time.Time{}); accepted {
		t.Error("wheel event accepted on a full bus")
	}
	if stats := b.Stats(); stats.WheelDropped != 1 {
		t.Errorf("expected 1 dropped wheel event, got %d", stats.WheelDropped)
	}
}

// TestInputBus_ButtonsNeverDropped tests that button events land past the
// soft capacity, flagged with an overflow marker in order.
func TestInputBus_ButtonsNeverDropped(t *testing.T) {
	b := NewInputBus(2, testLogger())

	b.Publish(ButtonEvent{ID: ButtonPlayPause, Edge: EdgePress}, time.Time{})
	b.Publish(ButtonEvent{ID: ButtonPlayPause, Edge: EdgeRelease}, time.Time{})
	// Third button event overflows the soft capacity but must not be lost.
	b.Publish(ButtonEvent{ID: ButtonNext, Edge: EdgePress}, time.Time{})

	if stats := b.Stats(); stats.Overflows != 1 {
		t.Errorf("expected 1 overflow, got %d", stats.Overflows)
	}

	got := make([]EventPayload, 0, 4)
	for i := 0; i < 4; i++ {
		got = append(got, drainOne(t, b).Payload)
	}

	if _, ok := got[0].(ButtonEvent); !ok {
		t.Errorf("event 0: got %T, want ButtonEvent", got[0])
	}
	if _, ok := got[1].(ButtonEvent); !ok {
		t.Errorf("event 1: got %T, want ButtonEvent", got[1])
	}
	if s, ok := got[2].(SystemEvent); !ok || s.Kind != SystemBusOverflow {
		t.Errorf("event 2: got %v, want bus overflow marker", got[2])
	}
	if bt, ok := got[3].(ButtonEvent); !ok || bt.ID != ButtonNext {
		t.Errorf("event 3: got %v, want the overflowing button event", got[3])
	}
}

// TestInputBus_ObserverReceivesCopies tests the non-destructive observer tap.
func TestInputBus_ObserverReceivesCopies(t *testing.T) {
	b := NewInputBus(16, testLogger())
	obs := b.Observe(4)

	b.Publish(ButtonEvent{ID: ButtonMenu, Edge: EdgePress}, time.Time{})

	select {
	case ev := <-obs:
		if _, ok := ev.Payload.(ButtonEvent); !ok {
			t.Errorf("observer got %T, want ButtonEvent", ev.Payload)
		}
	case <-time.After(time.Second):
		t.Fatal("observer did not receive the event")
	}

	// The main stream still delivers the event.
	ev := drainOne(t, b)
	if _, ok := ev.Payload.(ButtonEvent); !ok {
		t.Errorf("main stream got %T, want ButtonEvent", ev.Payload)
	}
}
