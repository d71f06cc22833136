package main

import (
	"sync"
	"time"
)

// buttonDebouncer turns bouncy raw edges into clean press/release pairs.
//
// A raw edge is accepted only once the line has been stable for the settle
// time; contact bounce inside the window collapses into the single edge that
// the line settles on. One physical press therefore yields exactly one press
// event and one release event.
//
// Thread-safe: hardware readers may feed edges from their own goroutines.
type buttonDebouncer struct {
	bus    *InputBus
	settle time.Duration

	mu     sync.Mutex
	states map[ButtonID]*buttonState
}

type buttonState struct {
	accepted bool // last accepted (published) level; true = pressed
	raw      bool // last raw level seen
	rawSince time.Time
	timer    *time.Timer
}

func newButtonDebouncer(bus *InputBus, settle time.Duration) *buttonDebouncer {
	if settle <= 0 {
		settle = defaultDebounceMS * time.Millisecond
	}
	return &buttonDebouncer{
		bus:    bus,
		settle: settle,
		states: make(map[ButtonID]*buttonState),
	}
}

// RawEdge feeds one raw electrical transition. pressed is the new raw level.
func (d *buttonDebouncer) RawEdge(id ButtonID, pressed bool, at time.Time) {
	if at.IsZero() {
		at = time.Now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	st, ok := d.states[id]
	if !ok {
		st = &buttonState{}
		d.states[id] = st
	}

	if pressed == st.raw && st.timer != nil {
		// Repeat of the current raw level while a settle is pending; the
		// running timer already covers it.
		return
	}

	st.raw = pressed
	st.rawSince = at

	// Any change restarts the settle window.
	if st.timer != nil {
		st.timer.Stop()
	}
	if pressed == st.accepted {
		// Bounced back to the accepted level before settling; nothing to emit.
		st.timer = nil
		return
	}
	st.timer = time.AfterFunc(d.settle, func() {
		d.settled(id)
	})
}

func (d *buttonDebouncer) settled(id ButtonID) {
	d.mu.Lock()
	st, ok := d.states[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	st.timer = nil
	if st.raw == st.accepted {
		d.mu.Unlock()
		return
	}
	st.accepted = st.raw
	edge := EdgeRelease
	if st.accepted {
		edge = EdgePress
	}
	at := st.rawSince
	d.mu.Unlock()

	d.bus.Publish(ButtonEvent{ID: id, Edge: edge}, at)
}
