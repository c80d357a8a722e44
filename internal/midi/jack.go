//go:build jack

package midi

import (
	"fmt"
	"strings"
	"sync"

	"github.com/xthexder/go-jack"
)

// jackBackend sends raw MIDI bytes through a JACK MIDI output port. JACK
// requires writes to happen from the realtime process callback, so Send
// just appends to a pending queue under a mutex and the callback drains it
// into the port buffer on the next process cycle — grounded on the
// gosfzplayer JACK client's port-register/process-callback shape, adapted
// from audio+MIDI-in to MIDI-out only.
type jackBackend struct {
	client   *jack.Client
	outPort  *jack.Port
	name     string

	mu      sync.Mutex
	pending [][]byte
}

func openJack(clientName, autoConnect string) (Backend, error) {
	if clientName == "" {
		clientName = "sketchstrummer"
	}

	client, err := jack.ClientOpen(clientName, jack.NoStartServer)
	if err != 0 {
		return nil, fmt.Errorf("open jack client %q: status %d", clientName, err)
	}

	outPort := client.PortRegister("midi_out", jack.DEFAULT_MIDI_TYPE, jack.PortIsOutput, 0)
	if outPort == nil {
		client.Close()
		return nil, fmt.Errorf("register jack midi output port")
	}

	b := &jackBackend{client: client, outPort: outPort, name: clientName}
	client.SetProcessCallback(b.process)

	if code := client.Activate(); code != 0 {
		client.Close()
		return nil, fmt.Errorf("activate jack client: status %d", code)
	}

	if autoConnect != "" && !strings.EqualFold(autoConnect, "none") {
		b.autoConnect(autoConnect)
	}

	return b, nil
}

func (b *jackBackend) autoConnect(destSubstring string) {
	ports := b.client.GetPorts("", jack.DEFAULT_MIDI_TYPE, jack.PortIsInput)
	for _, p := range ports {
		if strings.Contains(strings.ToLower(p), strings.ToLower(destSubstring)) {
			b.client.Connect(b.client.GetName()+":midi_out", p)
			return
		}
	}
}

// process is the realtime JACK callback: it drains the pending queue into
// the output port's event buffer for this cycle.
func (b *jackBackend) process(nframes uint32) int {
	buf := b.outPort.GetBuffer(nframes)
	jack.MidiClearBuffer(buf)

	b.mu.Lock()
	msgs := b.pending
	b.pending = nil
	b.mu.Unlock()

	for _, msg := range msgs {
		jack.MidiEventWrite(buf, 0, msg, uint32(len(msg)))
	}
	return 0
}

func (b *jackBackend) Send(msg []byte) error {
	cp := make([]byte, len(msg))
	copy(cp, msg)

	b.mu.Lock()
	b.pending = append(b.pending, cp)
	b.mu.Unlock()
	return nil
}

func (b *jackBackend) Close() error {
	b.client.Deactivate()
	return b.client.Close()
}

func (b *jackBackend) Name() string {
	return "jack:" + b.name
}
