// Package strummer implements the pressure-triggered strum detector (C3): a
// state machine that converts a stream of (x, pressure) samples into
// discrete strum/release events with quantized MIDI velocity. State is
// single-writer (mutated only from the HID thread); only the note sequence
// may be replaced from other goroutines, via an atomic pointer swap.
package strummer

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/sketchatone/strummer/internal/note"
)

const bufferCapacity = 3

// NotedVelocity is one (note, velocity) pair in a strum burst.
type NotedVelocity struct {
	Note     note.Note
	Velocity int
}

// EventType distinguishes the two event shapes the detector can emit.
type EventType int

const (
	EventStrum EventType = iota
	EventRelease
)

// Event is the detector's output: either a Strum with one-or-more notes, or
// a Release carrying the last strum's velocity.
type Event struct {
	Type     EventType
	Notes    []NotedVelocity // Strum only
	Velocity int             // Release only
}

type pressureSample struct {
	pressure float64
	ts       time.Time
}

// Detector is the strum state machine. Safe to mutate Notes via SetNotes
// from any goroutine (pointer-swapped); Strum must be called from a single
// thread (the HID thread).
type Detector struct {
	notes atomic.Pointer[[]note.Note]

	lastStrummedIndex int
	lastX             float64
	lastPressure      float64
	lastTimestamp     time.Time
	haveLastSample    bool

	pressureBuffer  []pressureSample
	pendingTapIndex int

	lastStrumVelocity int

	PressureThreshold float64
	VelocityScale     float64

	now func() time.Time
}

// New returns an idle detector with the given notes and threshold.
func New(notes []note.Note, threshold float64) *Detector {
	d := &Detector{
		lastStrummedIndex: -1,
		pendingTapIndex:   -1,
		PressureThreshold: threshold,
		VelocityScale:     4.0,
		now:               time.Now,
	}
	d.SetNotes(notes)
	return d
}

// SetNotes atomically replaces the active note sequence.
func (d *Detector) SetNotes(notes []note.Note) {
	cp := make([]note.Note, len(notes))
	copy(cp, notes)
	d.notes.Store(&cp)
}

// Notes returns the currently active note sequence.
func (d *Detector) Notes() []note.Note {
	p := d.notes.Load()
	if p == nil {
		return nil
	}
	return *p
}

func (d *Detector) resetState() {
	d.lastStrummedIndex = -1
	d.pressureBuffer = nil
	d.pendingTapIndex = -1
	d.lastStrumVelocity = 0
}

// Strum feeds one (x, pressure) sample and returns the resulting event, if any.
func (d *Detector) Strum(x, pressure float64) *Event {
	notes := d.Notes()
	n := len(notes)
	if n == 0 {
		return nil
	}

	now := d.now()
	idx := stringIndex(x, n)

	var ev *Event

	pressureUp := d.haveLastSample && d.lastPressure >= d.PressureThreshold && pressure < d.PressureThreshold
	pressureDown := d.haveLastSample && d.lastPressure < d.PressureThreshold && pressure >= d.PressureThreshold &&
		(d.lastStrummedIndex == -1 || d.lastStrummedIndex != idx)

	switch {
	case pressureUp:
		if d.lastStrumVelocity > 0 {
			ev = &Event{Type: EventRelease, Velocity: d.lastStrumVelocity}
		}
		d.resetState()
		d.lastX, d.lastPressure, d.lastTimestamp = x, pressure, now
		d.haveLastSample = true
		return ev

	case pressureDown:
		// Seeded with the crossing sample only: the detector needs exactly
		// two more buffering calls before it has three total samples and
		// can emit, so the tap fires on the fourth frame using that frame's
		// pressure rather than the third.
		d.pressureBuffer = []pressureSample{{pressure: pressure, ts: now}}
		d.pendingTapIndex = idx
		d.lastX, d.lastPressure, d.lastTimestamp = x, pressure, now
		d.haveLastSample = true
		return nil

	case !d.haveLastSample && pressure >= d.PressureThreshold:
		// Cold-start coercion: threshold already crossed on the very first sample.
		d.pressureBuffer = []pressureSample{{pressure: pressure, ts: now}}
		d.pendingTapIndex = idx
		d.lastX, d.lastPressure, d.lastTimestamp = x, pressure, now
		d.haveLastSample = true
		return nil
	}

	if d.pendingTapIndex != -1 && len(d.pressureBuffer) < bufferCapacity {
		d.pressureBuffer = append(d.pressureBuffer, pressureSample{pressure: pressure, ts: now})
		if len(d.pressureBuffer) == bufferCapacity {
			normalized := clamp01((pressure - d.PressureThreshold) / (1 - d.PressureThreshold))
			vel := quantizeVelocity(20 + normalized*107)

			tapIdx := d.pendingTapIndex
			d.lastStrummedIndex = tapIdx
			d.pressureBuffer = nil
			d.pendingTapIndex = -1
			d.lastStrumVelocity = vel

			ev = &Event{Type: EventStrum, Notes: []NotedVelocity{{Note: notes[tapIdx], Velocity: vel}}}
		}
		d.lastX, d.lastPressure, d.lastTimestamp = x, pressure, now
		d.haveLastSample = true
		return ev
	}

	if pressure >= d.PressureThreshold && d.lastStrummedIndex != -1 && d.lastStrummedIndex != idx {
		vel := quantizeVelocity(pressure * 127)
		burst := crossingIndices(d.lastStrummedIndex, idx)

		nv := make([]NotedVelocity, 0, len(burst))
		for _, i := range burst {
			nv = append(nv, NotedVelocity{Note: notes[i], Velocity: vel})
		}
		d.lastStrummedIndex = idx
		d.lastStrumVelocity = vel
		ev = &Event{Type: EventStrum, Notes: nv}
	}

	d.lastX, d.lastPressure, d.lastTimestamp = x, pressure, now
	d.haveLastSample = true
	return ev
}

func stringIndex(x float64, n int) int {
	idx := int(math.Floor(x * float64(n)))
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// crossingIndices returns the indices strictly between from and to,
// inclusive of to but exclusive of from, ordered by motion direction.
func crossingIndices(from, to int) []int {
	if to > from {
		out := make([]int, 0, to-from)
		for i := from + 1; i <= to; i++ {
			out = append(out, i)
		}
		return out
	}
	out := make([]int, 0, from-to)
	for i := from - 1; i >= to; i-- {
		out = append(out, i)
	}
	return out
}

func quantizeVelocity(v float64) int {
	iv := int(math.Round(v))
	if iv < 20 {
		return 20
	}
	if iv > 127 {
		return 127
	}
	return iv
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
