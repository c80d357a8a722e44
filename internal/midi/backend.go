package midi

import "fmt"

// Backend is the minimal byte-level transport every MIDI output driver must
// implement. Everything above this line — channel tracking, note
// scheduling, pitch-bend quantization — is backend-agnostic, which keeps
// driver specifics out of the pipeline (C8) entirely.
type Backend interface {
	// Send writes a single raw MIDI message (status byte plus data bytes).
	Send(msg []byte) error
	// Close releases whatever OS/driver resources the backend holds.
	Close() error
	// Name identifies the backend for logging.
	Name() string
}

// Kind tags which concrete Backend a configuration selects.
type Kind string

const (
	KindRtmidi Kind = "rtmidi"
	KindJack   Kind = "jack"
)

// OpenOptions bundles the backend-selection knobs from config.MidiConfig.
type OpenOptions struct {
	Kind            Kind
	OutputID        string // rtmidi: substring match against port names
	JackClientName  string
	JackAutoConnect string // "none" or a destination port substring
}

// Open opens the backend named by opts.Kind.
func Open(opts OpenOptions) (Backend, error) {
	switch opts.Kind {
	case KindJack:
		return openJack(opts.JackClientName, opts.JackAutoConnect)
	case KindRtmidi, "":
		return openRtmidi(opts.OutputID)
	default:
		return nil, fmt.Errorf("unknown midi output backend %q", opts.Kind)
	}
}
