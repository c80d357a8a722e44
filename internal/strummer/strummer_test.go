package strummer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sketchatone/strummer/internal/note"
)

func notesCEG() []note.Note {
	return []note.Note{
		{Notation: "C", Octave: 4},
		{Notation: "E", Octave: 4},
		{Notation: "G", Octave: 4},
	}
}

// TestS1TapMiddleString: tap the middle string and expect a smoothed velocity on the fourth sample.
func TestS1TapMiddleString(t *testing.T) {
	d := New(notesCEG(), 0.1)

	assert.Nil(t, d.Strum(0.5, 0.0))
	assert.Nil(t, d.Strum(0.5, 0.3))
	assert.Nil(t, d.Strum(0.5, 0.6))

	ev := d.Strum(0.5, 0.8)
	require.NotNil(t, ev)
	require.Equal(t, EventStrum, ev.Type)
	require.Len(t, ev.Notes, 1)
	assert.Equal(t, "E4", ev.Notes[0].Note.String())
	assert.Equal(t, 103, ev.Notes[0].Velocity)

	rel := d.Strum(0.5, 0.0)
	require.NotNil(t, rel)
	assert.Equal(t, EventRelease, rel.Type)
	assert.Equal(t, 103, rel.Velocity)
}

// TestS2CrossStrumRight: crossing strings to the right after a tap bursts every crossed index.
func TestS2CrossStrumRight(t *testing.T) {
	d := New(notesCEG(), 0.1)
	d.Strum(0.5, 0.0)
	d.Strum(0.5, 0.3)
	d.Strum(0.5, 0.6)
	d.Strum(0.5, 0.8) // tap on E4 (index 1)

	ev := d.Strum(0.95, 0.5)
	require.NotNil(t, ev)
	require.Equal(t, EventStrum, ev.Type)
	require.Len(t, ev.Notes, 1)
	assert.Equal(t, "G4", ev.Notes[0].Note.String())
	assert.Equal(t, 64, ev.Notes[0].Velocity)
}

// TestS3ThresholdReject: samples that never cross the pressure threshold emit nothing.
func TestS3ThresholdReject(t *testing.T) {
	d := New(notesCEG(), 0.2)
	assert.Nil(t, d.Strum(0.1, 0.0))
	assert.Nil(t, d.Strum(0.1, 0.15))
	assert.Nil(t, d.Strum(0.1, 0.0))
}

func TestVelocityBounds(t *testing.T) {
	d := New(notesCEG(), 0.1)
	// Cold-start coercion immediately at max pressure.
	d.Strum(0.0, 1.0)
	d.Strum(0.0, 1.0)
	ev := d.Strum(0.0, 1.0)
	require.NotNil(t, ev)
	for _, nv := range ev.Notes {
		assert.GreaterOrEqual(t, nv.Velocity, 20)
		assert.LessOrEqual(t, nv.Velocity, 127)
	}
}

func TestNoStrumBelowThreshold(t *testing.T) {
	d := New(notesCEG(), 0.5)
	for _, p := range []float64{0.0, 0.1, 0.2, 0.3, 0.49} {
		ev := d.Strum(0.2, p)
		assert.Nil(t, ev)
	}
}

func TestEmptyNotesReturnsNil(t *testing.T) {
	d := New(nil, 0.1)
	assert.Nil(t, d.Strum(0.5, 0.9))
}

func TestReleaseOnlyAfterStrum(t *testing.T) {
	d := New(notesCEG(), 0.1)
	// Cross threshold then drop without completing a 3-sample tap buffer —
	// no strum was ever committed, so no release should fire either.
	d.Strum(0.5, 0.0)
	d.Strum(0.5, 0.3) // starts buffering
	rel := d.Strum(0.5, 0.0)
	assert.Nil(t, rel)
}

func TestStringIndexClampsAtRightEdge(t *testing.T) {
	assert.Equal(t, 2, stringIndex(1.0, 3))
	assert.Equal(t, 0, stringIndex(0.0, 3))
	assert.Equal(t, 1, stringIndex(0.5, 3))
}

func TestCrossingIndicesAscendingExcludesFrom(t *testing.T) {
	assert.Equal(t, []int{2, 3}, crossingIndices(1, 3))
}

func TestCrossingIndicesDescendingExcludesFrom(t *testing.T) {
	assert.Equal(t, []int{2, 1}, crossingIndices(3, 1))
}
