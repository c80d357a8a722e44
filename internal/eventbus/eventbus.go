// Package eventbus implements the throttled, latest-wins event bus (C9):
// a small buffer that coalesces tablet and strum events between periodic
// flushes, pausing automatically when no subscriber is listening. Built as an accumulate-then-flush-on-a-ticker debounce
// buffer, generalized from a single save action to a multi-subscriber
// broadcast.
package eventbus

import (
	"sync"
	"time"

	"github.com/sketchatone/strummer/internal/hid"
)

// StrumNote is one sounded note within a StrumPayload: the already-curved,
// already-transposed MIDI state the pipeline computed, plus enough of the
// source note's identity (notation/octave) and scheduled duration for a
// client to render it without re-deriving MIDI-number-to-name mapping.
type StrumNote struct {
	MIDI     int
	Velocity int
	Notation string
	Octave   int
	Duration float64 // seconds
}

// StrumPayload is the strum-side half of a CombinedEvent, as reported to
// subscribers — distinct from strummer.Event in that it carries the
// already-curved, already-transposed MIDI state the pipeline computed.
type StrumPayload struct {
	Type      string // "strum" or "release"
	Notes     []StrumNote
	Velocity  int
	X         float64
	Pressure  float64
	Timestamp time.Time
}

// CombinedEvent is the unit handed to every subscriber on each flush.
type CombinedEvent struct {
	Tablet    *hid.Frame
	Strum     *StrumPayload
	Timestamp time.Time
}

// Bus is the throttled, latest-wins coalescing buffer.
type Bus struct {
	mu          sync.Mutex
	tablet      *hid.Frame
	strum       *StrumPayload
	hasNewData  bool
	paused      bool
	throttle    time.Duration
	subscribers map[int]func(CombinedEvent)
	nextID      int

	stop chan struct{}
}

// defaultThrottle is the default flush interval.
const defaultThrottle = 150 * time.Millisecond

// New returns a bus with the default throttle, started in the paused state
// (no subscribers yet).
func New() *Bus {
	b := &Bus{
		throttle:    defaultThrottle,
		paused:      true,
		subscribers: make(map[int]func(CombinedEvent)),
		stop:        make(chan struct{}),
	}
	go b.run()
	return b
}

// EmitTablet overwrites the tablet slot — latest wins.
func (b *Bus) EmitTablet(frame hid.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tablet = &frame
	b.hasNewData = true
}

// EmitStrum overwrites the strum slot — strums between flushes collapse to
// the most recent one, a deliberate choice at human-playable rates.
func (b *Bus) EmitStrum(payload StrumPayload) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.strum = &payload
	b.hasNewData = true
}

// Subscribe registers fn to receive every flushed CombinedEvent and resumes
// the bus if it was the first subscriber. Returns an unsubscribe func.
func (b *Bus) Subscribe(fn func(CombinedEvent)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = fn
	if len(b.subscribers) == 1 {
		b.paused = false
	}
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		if len(b.subscribers) == 0 {
			b.paused = true
		}
		b.mu.Unlock()
	}
}

// SetThrottle changes the flush interval, taking effect on the next cycle
// without dropping any pending data.
func (b *Bus) SetThrottle(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d <= 0 {
		return
	}
	b.throttle = d
}

// Throttle returns the current flush interval.
func (b *Bus) Throttle() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.throttle
}

// Stop halts the flush loop.
func (b *Bus) Stop() {
	close(b.stop)
}

func (b *Bus) run() {
	timer := time.NewTimer(b.Throttle())
	defer timer.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-timer.C:
			b.flush()
			timer.Reset(b.Throttle())
		}
	}
}

// flush is a no-op if paused or there's nothing new. Otherwise it copies
// the buffer, clears the strum slot and the dirty flag, and hands the copy
// to every subscriber. The tablet slot survives the flush so a late
// subscriber still sees the last known pose.
func (b *Bus) flush() {
	b.mu.Lock()
	if b.paused || !b.hasNewData {
		b.mu.Unlock()
		return
	}

	event := CombinedEvent{Tablet: b.tablet, Strum: b.strum, Timestamp: now()}
	b.strum = nil
	b.hasNewData = false

	subs := make([]func(CombinedEvent), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		subs = append(subs, fn)
	}
	b.mu.Unlock()

	for _, fn := range subs {
		fn(event)
	}
}

var now = time.Now
