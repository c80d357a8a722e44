// Package midiinput implements the MIDI input bridge (C6): it listens on
// one or more external MIDI input ports, aggregates held notes into a
// sorted set, and drives the strum detector's notes through its own narrow
// NotesReplacer interface. Enumerates ports the same tolerant, substring-matching
// way as the rtmidi backend, generalized from a single-device input to a
// multi-port aggregator with debounced release.
package midiinput

import (
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/sketchatone/strummer/internal/note"
)

// DefaultExcludePatterns lists substrings of port names that auto-connect
// skips, to avoid feeding our own output (or a synth's thru-port) back into
// the bridge as input.
var DefaultExcludePatterns = []string{
	"sketchstrummer",
	"strummer",
	"Midi Through",
	"RtMidi",
	"IAC Driver Bus 1",
}

// releaseDebounce is the window a note's release is held open before the
// bridge commits to it.
const releaseDebounce = 100 * time.Millisecond

// Delta describes a single aggregation event: notes currently held, plus
// which notes were added or removed relative to the prior state.
type Delta struct {
	Notes    []note.Note
	Added    []note.Note
	Removed  []note.Note
	PortName string
}

// NotesReplacer is the narrow interface the bridge needs to push updated
// notes into the strum detector.
type NotesReplacer interface {
	SetNotes(notes []note.Note)
}

// Bridge aggregates held notes from one or more MIDI input ports.
type Bridge struct {
	mu    sync.Mutex
	held  map[int]bool // midi note number -> held
	ports []drivers.In

	notes    NotesReplacer
	onDelta  func(Delta)
	pending  map[int]*time.Timer
	portName string
}

// New returns a bridge that pushes aggregated notes to notes and reports
// every delta to onDelta (may be nil).
func New(notes NotesReplacer, onDelta func(Delta)) *Bridge {
	if onDelta == nil {
		onDelta = func(Delta) {}
	}
	return &Bridge{
		held:    make(map[int]bool),
		notes:   notes,
		onDelta: onDelta,
		pending: make(map[int]*time.Timer),
	}
}

// ConnectAll opens every system MIDI input port whose name does not match
// any of excludePatterns.
func (b *Bridge) ConnectAll(excludePatterns []string) error {
	ins := midi.GetInPorts()
	var connected int
	for _, in := range ins {
		name := in.String()
		if matchesAny(name, excludePatterns) {
			log.Printf("[MIDIINPUT] skipping excluded port %q", name)
			continue
		}
		if err := b.connectPort(in); err != nil {
			log.Printf("[MIDIINPUT] failed to open port %q: %v", name, err)
			continue
		}
		connected++
	}
	log.Printf("[MIDIINPUT] connected to %d input port(s)", connected)
	return nil
}

// Connect opens exactly the input port matching the given substring.
func (b *Bridge) Connect(portQuery string) error {
	for _, in := range midi.GetInPorts() {
		if strings.Contains(strings.ToLower(in.String()), strings.ToLower(portQuery)) {
			return b.connectPort(in)
		}
	}
	return errNoSuchPort(portQuery)
}

func (b *Bridge) connectPort(in drivers.In) error {
	if err := in.Open(); err != nil {
		return err
	}

	b.mu.Lock()
	b.ports = append(b.ports, in)
	b.portName = in.String()
	b.mu.Unlock()

	_, err := midi.ListenTo(in, func(msg midi.Message, timestampms int32) {
		b.handleMessage(msg, in.String())
	})
	return err
}

// Close stops listening on every connected port.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, timer := range b.pending {
		timer.Stop()
	}
	b.pending = make(map[int]*time.Timer)
	for _, in := range b.ports {
		in.Close()
	}
	b.ports = nil
}

// handleMessage runs on the MIDI-input thread, outside any realtime
// constraint, and may take the bridge's short lock.
func (b *Bridge) handleMessage(msg midi.Message, portName string) {
	var channel, key, velocity uint8
	switch {
	case msg.GetNoteOn(&channel, &key, &velocity):
		if velocity == 0 {
			b.noteReleased(int(key), portName)
		} else {
			b.noteHeld(int(key), portName)
		}
	case msg.GetNoteOff(&channel, &key, &velocity):
		b.noteReleased(int(key), portName)
	}
}

// noteHeld handles a note-on: applied immediately.
func (b *Bridge) noteHeld(midiNote int, portName string) {
	b.mu.Lock()
	if timer, ok := b.pending[midiNote]; ok {
		timer.Stop()
		delete(b.pending, midiNote)
	}
	added := !b.held[midiNote]
	b.held[midiNote] = true
	b.mu.Unlock()

	if !added {
		return
	}
	b.applyAndNotify(portName, []note.Note{note.FromMIDI(midiNote, false)}, nil)
}

// noteReleased handles a note-off: debounced by releaseDebounce before the
// release is committed. If any note is still held once the timer fires,
// the held set (minus the released note) is applied; if none are held, the
// previously applied chord is preserved untouched.
func (b *Bridge) noteReleased(midiNote int, portName string) {
	b.mu.Lock()
	if !b.held[midiNote] {
		b.mu.Unlock()
		return
	}
	if timer, ok := b.pending[midiNote]; ok {
		timer.Stop()
	}
	timer := time.AfterFunc(releaseDebounce, func() {
		b.commitRelease(midiNote, portName)
	})
	b.pending[midiNote] = timer
	b.mu.Unlock()
}

func (b *Bridge) commitRelease(midiNote int, portName string) {
	b.mu.Lock()
	delete(b.pending, midiNote)
	delete(b.held, midiNote)
	remaining := b.sortedHeldLocked()
	b.mu.Unlock()

	if len(remaining) == 0 {
		// All notes released: last chord wins, nothing more to apply.
		b.onDelta(Delta{Notes: nil, Removed: []note.Note{note.FromMIDI(midiNote, false)}, PortName: portName})
		return
	}

	b.applyAndNotify(portName, nil, []note.Note{note.FromMIDI(midiNote, false)})
}

func (b *Bridge) applyAndNotify(portName string, added, removed []note.Note) {
	b.mu.Lock()
	current := b.sortedHeldLocked()
	b.mu.Unlock()

	b.notes.SetNotes(current)
	b.onDelta(Delta{Notes: current, Added: added, Removed: removed, PortName: portName})
}

func (b *Bridge) sortedHeldLocked() []note.Note {
	nums := make([]int, 0, len(b.held))
	for n, on := range b.held {
		if on {
			nums = append(nums, n)
		}
	}
	sort.Ints(nums)
	notes := make([]note.Note, 0, len(nums))
	for _, n := range nums {
		notes = append(notes, note.FromMIDI(n, false))
	}
	return notes
}

func matchesAny(name string, patterns []string) bool {
	lower := strings.ToLower(name)
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

type errNoSuchPort string

func (e errNoSuchPort) Error() string { return "no midi input port matching " + string(e) }
