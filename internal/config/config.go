// Package config implements the typed hierarchical configuration model
// (C11): defaults, JSON (de)serialization tolerant of nested/flat and
// camelCase/snake_case input, and a dotted-path get/set used by the
// WebSocket handler to mutate live state. JSON handling follows the
// teacher's internal/storage pattern of pinning a jsoniter codec.
package config

import "github.com/sketchatone/strummer/internal/mapping"

// Config is the full configuration tree.
type Config struct {
	Strummer StrummerConfig `json:"strummer"`
	Midi     MidiConfig     `json:"midi"`
	Server   ServerConfig   `json:"server"`
}

type StrummerConfig struct {
	Strumming     StrummingConfig        `json:"strumming"`
	NoteDuration  mapping.Mapping        `json:"noteDuration"`
	PitchBend     mapping.Mapping        `json:"pitchBend"`
	NoteVelocity  mapping.Mapping        `json:"noteVelocity"`
	NoteRepeater  NoteRepeaterConfig     `json:"noteRepeater"`
	Transpose     TransposeConfig        `json:"transpose"`
	StylusButtons StylusButtonsConfig    `json:"stylusButtons"`
	TabletButtons TabletButtonsConfig    `json:"tabletButtons"`
	StrumRelease  StrumReleaseConfig     `json:"strumRelease"`
}

type StrummingConfig struct {
	PressureThreshold  float64  `json:"pressureThreshold"`
	PluckVelocityScale float64  `json:"pluckVelocityScale"`
	InitialNotes       []string `json:"initialNotes"`
	Chord              *string  `json:"chord"`
	UpperNoteSpread    int      `json:"upperNoteSpread"`
	LowerNoteSpread    int      `json:"lowerNoteSpread"`
	MidiChannel        *int     `json:"midiChannel"`
}

type NoteRepeaterConfig struct {
	Active              bool    `json:"active"`
	PressureMultiplier  float64 `json:"pressureMultiplier"`
	FrequencyMultiplier float64 `json:"frequencyMultiplier"`
}

type TransposeConfig struct {
	Active    bool `json:"active"`
	Semitones int  `json:"semitones"`
}

type StylusButtonsConfig struct {
	Active               bool   `json:"active"`
	PrimaryButtonAction   Action `json:"primaryButtonAction"`
	SecondaryButtonAction Action `json:"secondaryButtonAction"`
}

// TabletButtonsConfig is either a preset name, a progression binding, or a
// per-button action map.
type TabletButtonsConfig struct {
	Preset       string            `json:"preset,omitempty"`
	Mode         string            `json:"mode,omitempty"` // "progression" when set
	Chords       []string          `json:"chords,omitempty"`
	CurrentIndex int               `json:"currentIndex,omitempty"`
	Octave       int               `json:"octave,omitempty"`
	Actions      map[string]Action `json:"actions,omitempty"` // keyed "1".."8"
}

type StrumReleaseConfig struct {
	Active             bool    `json:"active"`
	MidiNote           int     `json:"midiNote"`
	MidiChannel        *int    `json:"midiChannel"`
	MaxDuration        float64 `json:"maxDuration"`
	VelocityMultiplier float64 `json:"velocityMultiplier"`
}

type MidiConfig struct {
	MidiOutputBackend string  `json:"midiOutputBackend"` // "rtmidi" | "jack"
	MidiOutputID      string  `json:"midiOutputId"`
	MidiInputID       string  `json:"midiInputId"`
	MidiInputExclude  []string `json:"midiInputExclude"`
	JackClientName    string  `json:"jackClientName"`
	JackAutoConnect   string  `json:"jackAutoConnect"` // "none", or a substring of the JACK MIDI input port to connect to; "chain0"/"all-chains" get no special handling
	NoteDuration      float64 `json:"noteDuration"`
}

type ServerConfig struct {
	Device                   string `json:"device"`
	HTTPPort                 int    `json:"httpPort"`
	WSPort                   int    `json:"wsPort"`
	WSMessageThrottle        int    `json:"wsMessageThrottle"`
	DeviceFindingPollInterval int   `json:"deviceFindingPollInterval"`
}

// Action is a named command with positional args: a bare string or [name, args...].
// JSON (de)serialization lives in action_json.go.
type Action struct {
	Name string
	Args []any
}

// Default returns the full config with its factory defaults.
func Default() Config {
	ch := 9
	return Config{
		Strummer: StrummerConfig{
			Strumming: StrummingConfig{
				PressureThreshold:  0.1,
				PluckVelocityScale: 4.0,
				InitialNotes:       []string{"C4", "E4", "G4"},
				UpperNoteSpread:    3,
				LowerNoteSpread:    3,
			},
			NoteDuration: mapping.Mapping{Min: 0.1, Max: 1.5, Multiplier: 1, Curve: 1, Spread: mapping.SpreadDirect, Control: mapping.ControlNone, Default: 0.5},
			PitchBend:    mapping.Mapping{Min: -1, Max: 1, Multiplier: 1, Curve: 1, Spread: mapping.SpreadCentral, Control: mapping.ControlNone, Default: 0},
			NoteVelocity: mapping.Mapping{Min: 1, Max: 127, Multiplier: 1, Curve: 1, Spread: mapping.SpreadDirect, Control: mapping.ControlVelocity, Default: 100},
			NoteRepeater: NoteRepeaterConfig{PressureMultiplier: 1, FrequencyMultiplier: 1},
			StylusButtons: StylusButtonsConfig{},
			TabletButtons: TabletButtonsConfig{},
			StrumRelease: StrumReleaseConfig{
				MidiNote:           38,
				MidiChannel:        &ch,
				MaxDuration:        0.25,
				VelocityMultiplier: 1.0,
			},
		},
		Midi: MidiConfig{
			MidiOutputBackend: "rtmidi",
			JackAutoConnect:   "none",
			NoteDuration:      1.5,
		},
		Server: ServerConfig{
			HTTPPort:          8080,
			WSPort:            8081,
			WSMessageThrottle: 150,
		},
	}
}
