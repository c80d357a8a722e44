package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sketchatone/strummer/internal/config"
	"github.com/sketchatone/strummer/internal/note"
)

type fakeNotes struct {
	set []note.Note
}

func (f *fakeNotes) SetNotes(notes []note.Note) { f.set = notes }

func newDispatcherForTest() (*Dispatcher, *config.Config, *fakeNotes, *int) {
	cfg := config.Default()
	notes := &fakeNotes{}
	changes := 0
	d := New(&cfg, notes, func() { changes++ })
	return d, &cfg, notes, &changes
}

func TestUnknownActionNeverPanics(t *testing.T) {
	d, _, _, _ := newDispatcherForTest()
	assert.False(t, d.Execute(config.Action{Name: "does-not-exist"}))
}

func TestNoopActionsReturnFalse(t *testing.T) {
	d, _, _, _ := newDispatcherForTest()
	assert.False(t, d.Execute(config.Action{Name: ""}))
	assert.False(t, d.Execute(config.Action{Name: "none"}))
}

func TestToggleRepeater(t *testing.T) {
	d, cfg, _, changes := newDispatcherForTest()
	require.False(t, cfg.Strummer.NoteRepeater.Active)
	assert.True(t, d.Execute(config.Action{Name: "toggle-repeater"}))
	assert.True(t, cfg.Strummer.NoteRepeater.Active)
	assert.Equal(t, 1, *changes)

	d.Execute(config.Action{Name: "toggle-repeater"})
	assert.False(t, cfg.Strummer.NoteRepeater.Active)
}

func TestTransposeTogglesOffOnSameSemitones(t *testing.T) {
	d, cfg, _, _ := newDispatcherForTest()
	d.Execute(config.Action{Name: "transpose", Args: []any{float64(5)}})
	assert.True(t, cfg.Strummer.Transpose.Active)
	assert.Equal(t, 5, cfg.Strummer.Transpose.Semitones)

	d.Execute(config.Action{Name: "transpose", Args: []any{float64(5)}})
	assert.False(t, cfg.Strummer.Transpose.Active)
	assert.Equal(t, 0, cfg.Strummer.Transpose.Semitones)
}

func TestTransposeDifferentSemitonesStaysActive(t *testing.T) {
	d, cfg, _, _ := newDispatcherForTest()
	d.Execute(config.Action{Name: "transpose", Args: []any{float64(5)}})
	d.Execute(config.Action{Name: "transpose", Args: []any{float64(7)}})
	assert.True(t, cfg.Strummer.Transpose.Active)
	assert.Equal(t, 7, cfg.Strummer.Transpose.Semitones)
}

func TestSetStrumNotesExpandsSpread(t *testing.T) {
	d, cfg, notes, _ := newDispatcherForTest()
	cfg.Strummer.Strumming.LowerNoteSpread = 1
	cfg.Strummer.Strumming.UpperNoteSpread = 2

	ok := d.Execute(config.Action{Name: "set-strum-notes", Args: []any{
		[]any{"C4", "E4", "G4"},
	}})
	require.True(t, ok)
	assert.Len(t, notes.set, 3+1+2)
}

func TestSetStrumChord(t *testing.T) {
	d, _, notes, _ := newDispatcherForTest()
	ok := d.Execute(config.Action{Name: "set-strum-chord", Args: []any{"Am", float64(3)}})
	require.True(t, ok)
	assert.NotEmpty(t, notes.set)
}

func TestChordProgressionNavigation(t *testing.T) {
	d, _, notes, _ := newDispatcherForTest()

	ok := d.Execute(config.Action{Name: "set-chord-in-progression", Args: []any{"c-major-pop", float64(0), float64(4)}})
	require.True(t, ok)
	firstChordNotes := len(notes.set)
	assert.NotZero(t, firstChordNotes)

	ok = d.Execute(config.Action{Name: "increment-chord-in-progression", Args: []any{"c-major-pop", float64(1), float64(4)}})
	require.True(t, ok)
	assert.Equal(t, 1, d.progression.currentIndex)

	// Wrap around: 4 chords, from index 1 + amount 10 -> (1+10)%4 = 3
	d.Execute(config.Action{Name: "increment-chord-in-progression", Args: []any{"c-major-pop", float64(10), float64(4)}})
	assert.Equal(t, 3, d.progression.currentIndex)
}

func TestUnknownProgressionReturnsFalse(t *testing.T) {
	d, _, _, _ := newDispatcherForTest()
	assert.False(t, d.Execute(config.Action{Name: "set-chord-in-progression", Args: []any{"no-such-progression", float64(0)}}))
}
