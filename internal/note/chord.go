package note

import (
	"fmt"
	"strings"
)

// qualityIntervals maps a chord-symbol suffix to semitone offsets from the
// root, same shape as the guitartutor reference's chord-quality table.
var qualityIntervals = map[string][]int{
	"":     {0, 4, 7},
	"m":    {0, 3, 7},
	"7":    {0, 4, 7, 10},
	"maj7": {0, 4, 7, 11},
	"m7":   {0, 3, 7, 10},
	"dim":  {0, 3, 6},
	"aug":  {0, 4, 8},
	"sus2": {0, 2, 7},
	"sus4": {0, 5, 7},
}

// ParseChord resolves a chord symbol ("C", "Am", "F#m7", ...) to its primary
// notes at the given base octave.
func ParseChord(symbol string, octave int) ([]Note, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("note: empty chord symbol")
	}

	root, suffix, err := splitChordSymbol(symbol)
	if err != nil {
		return nil, err
	}

	intervals, ok := qualityIntervals[suffix]
	if !ok {
		return nil, fmt.Errorf("note: unknown chord quality %q in %q", suffix, symbol)
	}

	rootPC, ok := nameToPitchClass[strings.ToUpper(root)]
	if !ok {
		return nil, fmt.Errorf("note: unknown chord root %q in %q", root, symbol)
	}

	notes := make([]Note, len(intervals))
	for i, iv := range intervals {
		notes[i] = FromMIDI(12*octave+rootPC+iv, isFlatSpelling(root))
	}
	return notes, nil
}

// splitChordSymbol separates the root ("C", "F#", "Bb") from the quality
// suffix ("m", "maj7", ...).
func splitChordSymbol(symbol string) (root, suffix string, err error) {
	if len(symbol) == 0 {
		return "", "", fmt.Errorf("note: empty chord symbol")
	}
	i := 1
	if len(symbol) > 1 && (symbol[1] == '#' || symbol[1] == 'b') {
		i = 2
	}
	if i > len(symbol) {
		return "", "", fmt.Errorf("note: malformed chord symbol %q", symbol)
	}
	root = symbol[:i]
	suffix = symbol[i:]
	if _, ok := nameToPitchClass[strings.ToUpper(root)]; !ok {
		return "", "", fmt.Errorf("note: unknown chord root %q", root)
	}
	return root, suffix, nil
}

// Progression is a fixed, named list of chord symbols.
type Progression struct {
	Name   string
	Chords []string
}

// Progressions is the canonical static table (Glossary).
var Progressions = map[string]Progression{
	"c-major-pop":        {Name: "c-major-pop", Chords: []string{"C", "G", "Am", "F"}},
	"c-major-50s":        {Name: "c-major-50s", Chords: []string{"C", "Am", "F", "G"}},
	"c-major-axis":       {Name: "c-major-axis", Chords: []string{"Am", "F", "C", "G"}},
	"c-major-royal":      {Name: "c-major-royal", Chords: []string{"F", "C", "G", "Am"}},
	"a-minor-pop":        {Name: "a-minor-pop", Chords: []string{"Am", "F", "C", "G"}},
	"a-minor-andalusian": {Name: "a-minor-andalusian", Chords: []string{"Am", "G", "F", "E"}},
	"g-major-country":    {Name: "g-major-country", Chords: []string{"G", "C", "D", "G"}},
	"d-major-folk":       {Name: "d-major-folk", Chords: []string{"D", "G", "A", "D"}},
	"e-minor-rock":       {Name: "e-minor-rock", Chords: []string{"Em", "C", "G", "D"}},
	"blues-12bar": {Name: "blues-12bar", Chords: []string{
		"C7", "C7", "C7", "C7", "F7", "F7", "C7", "C7", "G7", "F7", "C7", "G7",
	}},
}
