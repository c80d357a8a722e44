//go:build !windows

package midi

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// rtmidiBackend sends raw MIDI bytes over a drivers.Out port, matched by
// substring against the system's available port names. Grounded on the
// teacher's internal/midiconnector.Device, generalized to a bare Backend
// (no per-device note bookkeeping — that lives in Output now).
type rtmidiBackend struct {
	name string
	out  drivers.Out
}

func openRtmidi(outputID string) (Backend, error) {
	name, err := findPortName(ListOutputs(), outputID)
	if err != nil {
		return nil, err
	}

	out, err := midi.FindOutPort(name)
	if err != nil {
		return nil, fmt.Errorf("find midi out port %q: %w", name, err)
	}
	if err := out.Open(); err != nil {
		return nil, fmt.Errorf("open midi out port %q: %w", name, err)
	}

	return &rtmidiBackend{name: name, out: out}, nil
}

func (b *rtmidiBackend) Send(msg []byte) error {
	return b.out.Send(msg)
}

func (b *rtmidiBackend) Close() error {
	return b.out.Close()
}

func (b *rtmidiBackend) Name() string {
	return "rtmidi:" + b.name
}

// ListOutputs returns the names of all system MIDI output ports.
func ListOutputs() []string {
	var names []string
	for _, out := range midi.GetOutPorts() {
		names = append(names, out.String())
	}
	return names
}

// ListInputs returns the names of all system MIDI input ports.
func ListInputs() []string {
	var names []string
	for _, in := range midi.GetInPorts() {
		names = append(names, in.String())
	}
	return names
}

// findPortName resolves a user-supplied substring (case-insensitive) to one
// of the candidate port names, preferring an exact match, then a prefix
// match, then a plain substring match — tolerates partial device names the same way most rtmidi wrappers do.
func findPortName(candidates []string, query string) (string, error) {
	if query == "" {
		if len(candidates) == 0 {
			return "", fmt.Errorf("no midi ports available")
		}
		return candidates[0], nil
	}

	lowerQuery := strings.ToLower(query)

	for _, c := range candidates {
		if strings.EqualFold(c, query) {
			return c, nil
		}
	}
	for _, c := range candidates {
		if strings.HasPrefix(strings.ToLower(c), lowerQuery) {
			return c, nil
		}
	}
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c), lowerQuery) {
			return c, nil
		}
	}
	return "", fmt.Errorf("no midi port matching %q", query)
}
