package main

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ============================================================================
// Input bus
// ============================================================================
// The bus merges wheel, button, and system events into one ordered stream.
// Each event gets a bus-wide sequence number at enqueue time; consumers see
// a single linear order with no reordering.
//
// Back-pressure policy per event class:
//   - wheel deltas: coalesced with the newest pending wheel event of the
//     same sign; dropped (counted) when the bus is full
//   - button and system events: never dropped; the producer waits briefly
//     for space, then the queue grows toward a hard cap and an overflow is
//     signalled to the consumer
// ============================================================================

// BusStats is a snapshot of the bus's fault counters.
type BusStats struct {
	WheelDropped uint64
	Overflows    uint64
	Published    uint64
}

// InputBus is safe for any number of producers and one draining consumer.
// Observers receive best-effort copies and never affect the main stream.
type InputBus struct {
	logger *slog.Logger

	mu    sync.Mutex
	queue []InputEvent
	seq   uint64
	stats BusStats

	capacity int
	hardCap  int

	// items is signalled (capacity 1) whenever the queue goes non-empty;
	// space whenever an event is consumed.
	items chan struct{}
	space chan struct{}

	obsMu     sync.Mutex
	observers []chan InputEvent
}

// NewInputBus creates a bus with the given soft capacity. The hard cap,
// beyond which even button producers block, is twice the soft capacity.
func NewInputBus(capacity int, logger *slog.Logger) *InputBus {
	if capacity <= 0 {
		capacity = defaultBusCapacity
	}
	return &InputBus{
		logger:   logger,
		queue:    make([]InputEvent, 0, capacity),
		capacity: capacity,
		hardCap:  capacity * 2,
		items:    make(chan struct{}, 1),
		space:    make(chan struct{}, 1),
	}
}

func (b *InputBus) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Publish enqueues a payload with the producer's timestamp. Wheel deltas may
// be coalesced or dropped under pressure; button and system events always
// land. Returns the assigned sequence number and whether the event was
// accepted as a distinct entry (false means coalesced or dropped).
func (b *InputBus) Publish(p EventPayload, at time.Time) (uint64, bool) {
	if at.IsZero() {
		at = time.Now()
	}

	b.mu.Lock()

	if w, ok := p.(WheelEvent); ok && !w.Tap {
		// Coalesce with the newest pending wheel event of the same sign.
		if n := len(b.queue); n > 0 {
			if prev, ok := b.queue[n-1].Payload.(WheelEvent); ok && !prev.Tap && sameSign(prev.Delta, w.Delta) {
				prev.Delta += w.Delta
				prev.Steps += w.Steps
				b.queue[n-1].Payload = prev
				b.queue[n-1].At = at
				seq := b.queue[n-1].Seq
				b.mu.Unlock()
				b.notifyObservers(InputEvent{Seq: seq, At: at, Payload: p})
				return seq, false
			}
		}
		if len(b.queue) >= b.capacity {
			b.stats.WheelDropped++
			dropped := b.stats.WheelDropped
			b.mu.Unlock()
			b.logger.Debug("input bus full, wheel delta dropped", "dropped_total", dropped)
			return 0, false
		}
		seq := b.enqueueLocked(p, at)
		b.mu.Unlock()
		b.notifyObservers(InputEvent{Seq: seq, At: at, Payload: p})
		return seq, true
	}

	// Button/system events: wait briefly for space at the soft capacity,
	// then grow toward the hard cap with an overflow signal. At the hard
	// cap the producer blocks until the consumer drains (explicit bounded
	// handoff; these events are never lost).
	if len(b.queue) >= b.capacity {
		b.mu.Unlock()
		b.waitForSpace(busEnqueueTimeoutMS * time.Millisecond)
		b.mu.Lock()
	}
	for len(b.queue) >= b.hardCap {
		b.mu.Unlock()
		b.waitForSpace(busEnqueueTimeoutMS * time.Millisecond)
		b.mu.Lock()
	}
	if len(b.queue) >= b.capacity {
		b.stats.Overflows++
		b.enqueueLocked(SystemEvent{Kind: SystemBusOverflow}, at)
	}
	seq := b.enqueueLocked(p, at)
	b.mu.Unlock()
	b.notifyObservers(InputEvent{Seq: seq, At: at, Payload: p})
	return seq, true
}

func (b *InputBus) enqueueLocked(p EventPayload, at time.Time) uint64 {
	b.seq++
	b.stats.Published++
	b.queue = append(b.queue, InputEvent{Seq: b.seq, At: at, Payload: p})
	b.signal(b.items)
	return b.seq
}

func (b *InputBus) waitForSpace(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-b.space:
	case <-t.C:
	}
}

// Next blocks until an event is available or ctx is canceled. Events are
// delivered strictly in sequence order.
func (b *InputBus) Next(ctx context.Context) (InputEvent, error) {
	for {
		b.mu.Lock()
		if len(b.queue) > 0 {
			ev := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			b.signal(b.space)
			return ev, nil
		}
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return InputEvent{}, ctx.Err()
		case <-b.items:
		}
	}
}

// Stats returns a snapshot of the fault counters.
func (b *InputBus) Stats() BusStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Observe registers a non-destructive observer. The returned channel gets a
// best-effort copy of every published event; a slow observer misses events
// rather than stalling producers.
func (b *InputBus) Observe(buf int) <-chan InputEvent {
	if buf <= 0 {
		buf = 32
	}
	ch := make(chan InputEvent, buf)
	b.obsMu.Lock()
	b.observers = append(b.observers, ch)
	b.obsMu.Unlock()
	return ch
}

func (b *InputBus) notifyObservers(ev InputEvent) {
	b.obsMu.Lock()
	defer b.obsMu.Unlock()
	for _, ch := range b.observers {
		select {
		case ch <- ev:
		default:
		}
	}
}

func sameSign(a, c float64) bool {
	return (a >= 0 && c >= 0) || (a <= 0 && c <= 0)
}
