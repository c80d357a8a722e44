// Package note implements pitch-class parsing, chord resolution, transposition,
// and spread expansion — the pure music-theory layer shared by the strummer,
// the action dispatcher, and the config model.
package note

import (
	"fmt"
	"strconv"
	"strings"
)

// sharpNames and flatNames both index pitch class 0-11; Parse accepts either
// spelling and Transpose preserves whichever was used when unambiguous.
var sharpNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
var flatNames = []string{"C", "Db", "D", "Eb", "E", "F", "Gb", "G", "Ab", "A", "Bb", "B"}

var nameToPitchClass = func() map[string]int {
	m := make(map[string]int)
	for i, n := range sharpNames {
		m[strings.ToUpper(n)] = i
	}
	for i, n := range flatNames {
		m[strings.ToUpper(n)] = i
	}
	return m
}()

// Note is a pitch class + octave, optionally flagged as a spread-expansion clone.
type Note struct {
	Notation  string // canonical spelling as parsed, e.g. "C#" or "Db"
	Octave    int
	Secondary bool
}

func (n Note) String() string {
	return fmt.Sprintf("%s%d", n.Notation, n.Octave)
}

// PitchClass returns 0-11 for the note's notation.
func (n Note) PitchClass() int {
	return nameToPitchClass[strings.ToUpper(n.Notation)]
}

// MIDI returns the note's MIDI number as 12*octave + pitch class.
func (n Note) MIDI() int {
	return 12*n.Octave + n.PitchClass()
}

// Parse reads a note token like "C4", "Db3", "F#-1" into a Note.
func Parse(s string) (Note, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Note{}, fmt.Errorf("note: empty notation")
	}

	i := 0
	// Letter
	if i >= len(s) || !isNoteLetter(s[i]) {
		return Note{}, fmt.Errorf("note: invalid notation %q", s)
	}
	letter := strings.ToUpper(string(s[i]))
	i++

	// Optional accidental
	accidental := ""
	if i < len(s) && (s[i] == '#' || s[i] == 'b') {
		accidental = string(s[i])
		i++
	}

	notation := letter + accidental
	if _, ok := nameToPitchClass[strings.ToUpper(notation)]; !ok {
		return Note{}, fmt.Errorf("note: unknown pitch class %q", notation)
	}

	octaveStr := s[i:]
	if octaveStr == "" {
		return Note{}, fmt.Errorf("note: missing octave in %q", s)
	}
	octave, err := strconv.Atoi(octaveStr)
	if err != nil {
		return Note{}, fmt.Errorf("note: invalid octave in %q: %w", s, err)
	}

	return Note{Notation: canonicalSpelling(notation), Octave: octave}, nil
}

func isNoteLetter(b byte) bool {
	switch b {
	case 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'a', 'b', 'c', 'd', 'e', 'f', 'g':
		return true
	}
	return false
}

func canonicalSpelling(notation string) string {
	pc := nameToPitchClass[strings.ToUpper(notation)]
	// Preserve the spelling the caller used when it's one of our two tables.
	up := strings.ToUpper(notation)
	for _, n := range sharpNames {
		if strings.ToUpper(n) == up {
			return n
		}
	}
	for _, n := range flatNames {
		if strings.ToUpper(n) == up {
			return n
		}
	}
	return sharpNames[pc]
}

// FromMIDI converts a MIDI number back into a Note using the
// 12*octave + pitch-class formula.
func FromMIDI(midi int, preferFlats bool) Note {
	octave := midi / 12
	pc := midi % 12
	if pc < 0 {
		pc += 12
		octave--
	}
	names := sharpNames
	if preferFlats {
		names = flatNames
	}
	return Note{Notation: names[pc], Octave: octave}
}

// Transpose shifts a note by semitones, preserving sharp/flat spelling
// when the source spelling is unambiguous. Transpose(Transpose(n,k),-k) == n.
func Transpose(n Note, semitones int) Note {
	preferFlats := isFlatSpelling(n.Notation)
	return FromMIDI(n.MIDI()+semitones, preferFlats)
}

func isFlatSpelling(notation string) bool {
	return strings.Contains(notation, "b")
}

// FillSpread expands a base chord with `lower` octave-down and `upper`
// octave-up clones, each marked Secondary. Result has len(base)+lower+upper
// notes. Both spreads cycle through every base note in turn rather than
// repeating a single root/top note: upper walks base forward
// (note_index = c % len(base)), lower walks it in reverse
// (reverse_index = len(base)-1-note_index), each bumping an extra octave
// every time the cycle wraps.
func FillSpread(base []Note, lower, upper int) []Note {
	if len(base) == 0 {
		return nil
	}

	out := make([]Note, 0, len(base)+lower+upper)

	lowerNotes := make([]Note, lower)
	for c := 0; c < lower; c++ {
		noteIndex := c % len(base)
		octaveDecrease := c / len(base)
		reverseIndex := len(base) - 1 - noteIndex
		src := base[reverseIndex]
		lowerNotes[c] = Note{Notation: src.Notation, Octave: src.Octave - octaveDecrease - 1, Secondary: true}
	}

	out = append(out, lowerNotes...)
	out = append(out, base...)

	for c := 0; c < upper; c++ {
		noteIndex := c % len(base)
		octaveIncrease := c / len(base)
		src := base[noteIndex]
		out = append(out, Note{Notation: src.Notation, Octave: src.Octave + octaveIncrease + 1, Secondary: true})
	}

	return out
}
