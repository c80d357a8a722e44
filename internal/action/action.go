// Package action implements the symbolic action dispatcher (C4): a small
// command system bound to stylus/tablet-surface buttons, capable of
// toggling transpose/repeater, setting strum notes from chord symbols, and
// navigating chord progressions. Modeled as a dispatch-by-name,
// mutate-the-model pattern, using string-keyed actions instead of a fixed
// view-row enum.
package action

import (
	"log"

	"github.com/sketchatone/strummer/internal/config"
	"github.com/sketchatone/strummer/internal/note"
)

// NotesReplacer is the narrow interface the dispatcher needs from the strum
// detector — avoids a direct, cyclic dependency between the two.
type NotesReplacer interface {
	SetNotes(notes []note.Note)
}

// progressionState tracks the active chord progression.
type progressionState struct {
	name         string
	chords       []string
	currentIndex int
}

// Dispatcher executes named actions against the live config and strum detector.
type Dispatcher struct {
	cfg      *config.Config
	notes    NotesReplacer
	onChange func()

	progression progressionState
}

// New returns a dispatcher bound to the given config and note replacer.
// onChange is invoked after every successful mutation (the "config_changed"
// signal) so the caller can re-broadcast over WebSocket.
func New(cfg *config.Config, notes NotesReplacer, onChange func()) *Dispatcher {
	if onChange == nil {
		onChange = func() {}
	}
	return &Dispatcher{cfg: cfg, notes: notes, onChange: onChange}
}

// Execute parses and runs an action, returning true if it mutated state.
func (d *Dispatcher) Execute(a config.Action) bool {
	if a.IsNoop() {
		return false
	}

	switch a.Name {
	case "toggle-repeater":
		return d.toggleRepeater()
	case "toggle-transpose":
		return d.toggleTranspose()
	case "transpose":
		return d.transpose(a.Args)
	case "set-strum-notes":
		return d.setStrumNotes(a.Args)
	case "set-strum-chord":
		return d.setStrumChord(a.Args)
	case "set-chord-in-progression":
		return d.setChordInProgression(a.Args)
	case "increment-chord-in-progression":
		return d.incrementChordInProgression(a.Args)
	default:
		log.Printf("[ACTION] unknown action %q", a.Name)
		return false
	}
}

func (d *Dispatcher) toggleRepeater() bool {
	d.cfg.Strummer.NoteRepeater.Active = !d.cfg.Strummer.NoteRepeater.Active
	d.onChange()
	return true
}

func (d *Dispatcher) toggleTranspose() bool {
	d.cfg.Strummer.Transpose.Active = !d.cfg.Strummer.Transpose.Active
	d.onChange()
	return true
}

func (d *Dispatcher) transpose(args []any) bool {
	semi := argInt(args, 0, 0)
	tr := &d.cfg.Strummer.Transpose
	if tr.Active && tr.Semitones == semi {
		tr.Active = false
		tr.Semitones = 0
	} else {
		tr.Active = true
		tr.Semitones = semi
	}
	d.onChange()
	return true
}

func (d *Dispatcher) setStrumNotes(args []any) bool {
	if len(args) == 0 {
		return false
	}
	notations, ok := args[0].([]any)
	if !ok {
		log.Printf("[ACTION] set-strum-notes: expected a list of note names")
		return false
	}

	base := make([]note.Note, 0, len(notations))
	for _, raw := range notations {
		s, ok := raw.(string)
		if !ok {
			continue
		}
		n, err := note.Parse(s)
		if err != nil {
			log.Printf("[ACTION] set-strum-notes: %v", err)
			continue
		}
		base = append(base, n)
	}
	if len(base) == 0 {
		return false
	}

	d.replaceWithSpread(base)
	return true
}

func (d *Dispatcher) setStrumChord(args []any) bool {
	if len(args) == 0 {
		return false
	}
	sym, ok := args[0].(string)
	if !ok {
		return false
	}
	octave := argInt(args, 1, 4)

	base, err := note.ParseChord(sym, octave)
	if err != nil {
		log.Printf("[ACTION] set-strum-chord: %v", err)
		return false
	}

	d.replaceWithSpread(base)
	return true
}

func (d *Dispatcher) setChordInProgression(args []any) bool {
	if len(args) == 0 {
		return false
	}
	name, _ := args[0].(string)
	idx := argInt(args, 1, 0)
	octave := argInt(args, 2, 4)

	if d.progression.name != name {
		if !d.loadProgression(name) {
			return false
		}
	}

	if len(d.progression.chords) == 0 {
		return false
	}
	d.progression.currentIndex = ((idx % len(d.progression.chords)) + len(d.progression.chords)) % len(d.progression.chords)

	return d.applyCurrentProgressionChord(octave)
}

func (d *Dispatcher) incrementChordInProgression(args []any) bool {
	name, _ := argString(args, 0, "")
	amount := argInt(args, 1, 1)
	octave := argInt(args, 2, 4)

	if name != "" && d.progression.name != name {
		if !d.loadProgression(name) {
			return false
		}
	}
	if len(d.progression.chords) == 0 {
		return false
	}

	n := len(d.progression.chords)
	d.progression.currentIndex = (((d.progression.currentIndex+amount)%n)+n) % n

	return d.applyCurrentProgressionChord(octave)
}

func (d *Dispatcher) loadProgression(name string) bool {
	prog, ok := note.Progressions[name]
	if !ok {
		log.Printf("[ACTION] unknown progression %q", name)
		return false
	}
	d.progression = progressionState{name: prog.Name, chords: prog.Chords, currentIndex: 0}
	return true
}

func (d *Dispatcher) applyCurrentProgressionChord(octave int) bool {
	sym := d.progression.chords[d.progression.currentIndex]
	base, err := note.ParseChord(sym, octave)
	if err != nil {
		log.Printf("[ACTION] progression chord %q: %v", sym, err)
		return false
	}
	d.replaceWithSpread(base)
	return true
}

func (d *Dispatcher) replaceWithSpread(base []note.Note) {
	spread := d.cfg.Strummer.Strumming
	expanded := note.FillSpread(base, spread.LowerNoteSpread, spread.UpperNoteSpread)
	d.notes.SetNotes(expanded)
	d.onChange()
}

func argInt(args []any, i int, def int) int {
	if i >= len(args) {
		return def
	}
	switch v := args[i].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func argString(args []any, i int, def string) (string, bool) {
	if i >= len(args) {
		return def, false
	}
	s, ok := args[i].(string)
	if !ok {
		return def, false
	}
	return s, true
}
