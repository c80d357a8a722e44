package midiinput

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/gomidi/midi/v2"

	"github.com/sketchatone/strummer/internal/note"
)

type fakeNotes struct {
	calls [][]note.Note
}

func (f *fakeNotes) SetNotes(notes []note.Note) {
	cp := make([]note.Note, len(notes))
	copy(cp, notes)
	f.calls = append(f.calls, cp)
}

func (f *fakeNotes) last() []note.Note {
	if len(f.calls) == 0 {
		return nil
	}
	return f.calls[len(f.calls)-1]
}

func TestNoteOnAppliesImmediately(t *testing.T) {
	notes := &fakeNotes{}
	b := New(notes, nil)

	b.handleMessage(midi.NoteOn(0, 60, 100), "test")
	require.Len(t, notes.calls, 1)
	assert.Equal(t, 60, notes.last()[0].MIDI())
}

func TestNoteOffDebouncesAndPreservesIfNoneHeld(t *testing.T) {
	notes := &fakeNotes{}
	var lastDelta Delta
	b := New(notes, func(d Delta) { lastDelta = d })

	b.handleMessage(midi.NoteOn(0, 60, 100), "test")
	b.handleMessage(midi.NoteOff(0, 60), "test")

	// Immediately after release, the previous chord must still be applied
	// (no SetNotes call yet for the release).
	require.Len(t, notes.calls, 1)

	time.Sleep(150 * time.Millisecond)
	// All notes released: the prior chord is preserved, so SetNotes is not
	// called a second time.
	assert.Len(t, notes.calls, 1)
	assert.Empty(t, lastDelta.Notes)
	require.Len(t, lastDelta.Removed, 1)
	assert.Equal(t, 60, lastDelta.Removed[0].MIDI())
}

func TestReleaseWithOthersStillHeldAppliesRemaining(t *testing.T) {
	notes := &fakeNotes{}
	b := New(notes, nil)

	b.handleMessage(midi.NoteOn(0, 60, 100), "test")
	b.handleMessage(midi.NoteOn(0, 64, 100), "test")
	require.Len(t, notes.calls, 2)

	b.handleMessage(midi.NoteOff(0, 60), "test")
	time.Sleep(150 * time.Millisecond)

	require.Len(t, notes.calls, 3)
	last := notes.last()
	require.Len(t, last, 1)
	assert.Equal(t, 64, last[0].MIDI())
}

func TestReStrikeDuringDebounceCancelsRelease(t *testing.T) {
	notes := &fakeNotes{}
	b := New(notes, nil)

	b.handleMessage(midi.NoteOn(0, 60, 100), "test")
	b.handleMessage(midi.NoteOff(0, 60), "test")
	time.Sleep(20 * time.Millisecond)
	b.handleMessage(midi.NoteOn(0, 60, 100), "test")

	time.Sleep(150 * time.Millisecond)
	// Re-striking before the debounce elapses should cancel the pending
	// release; the note count should not drop to zero in between.
	last := notes.last()
	require.Len(t, last, 1)
	assert.Equal(t, 60, last[0].MIDI())
}

func TestMatchesAnyExcludePattern(t *testing.T) {
	assert.True(t, matchesAny("sketchstrummer output 1", DefaultExcludePatterns))
	assert.True(t, matchesAny("IAC Driver Bus 1", DefaultExcludePatterns))
	assert.False(t, matchesAny("Arturia KeyStep 37", DefaultExcludePatterns))
}
