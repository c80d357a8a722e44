// Package midi implements the backend-agnostic MIDI output layer (C5) and
// its shared note-off scheduler (C7), on top of two concrete transports:
// rtmidi (gitlab.com/gomidi/midi/v2 + drivers/rtmididrv) and JACK
// (github.com/xthexder/go-jack). Follows a raw status-byte-over-drivers.Out
// send style and a per-note lifecycle idiom, generalized from a
// single-device tracker instrument into a multi-channel live output with
// one shared note-off scheduler instead of one goroutine per note.
package midi

import (
	"log"
	"sync"
	"time"
)

const (
	statusNoteOn     = 0x90
	statusNoteOff    = 0x80
	statusCC         = 0xB0
	statusPitchBend  = 0xE0
	ccAllNotesOff    = 123
	ccResetAllCtrls  = 121
	pitchBendCenter  = 8192
)

// Output is the backend-agnostic MIDI output layer (C5). It owns the shared
// note-off Scheduler (C7) and tracks which notes are currently sounding so
// Disconnect and ReleaseNotes can silence them deterministically.
type Output struct {
	mu        sync.Mutex
	backend   Backend
	channel   uint8
	sched     *Scheduler
	sounding  map[NoteKey]bool
	connected bool
}

// NewOutput wraps backend in the shared output layer and starts its
// note-off scheduler. The backend is assumed already open and connected.
func NewOutput(backend Backend) *Output {
	return &Output{
		backend:   backend,
		sched:     NewScheduler(),
		sounding:  make(map[NoteKey]bool),
		connected: true,
	}
}

// Connect logs a successful backend open. The backend itself is already
// live by the time Open returns; this exists as a symmetric counterpart to
// Disconnect so callers can treat connect/disconnect as a matched pair.
func (o *Output) Connect() error {
	o.mu.Lock()
	o.connected = true
	o.mu.Unlock()
	log.Printf("[MIDI] connected via %s backend", o.backend.Name())
	return nil
}

// Disconnect silences every channel — all-notes-off (CC123),
// reset-all-controllers (CC121), and a centered pitch bend — stops the
// scheduler, and closes the backend. Further sends are silent no-ops until
// Connect is called again.
func (o *Output) Disconnect() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.sched.Stop()
	for ch := uint8(0); ch < 16; ch++ {
		o.send([]byte{statusCC | ch, ccAllNotesOff, 0})
		o.send([]byte{statusCC | ch, ccResetAllCtrls, 0})
		o.send(pitchBendMessage(ch, pitchBendCenter))
	}
	o.sounding = make(map[NoteKey]bool)

	log.Printf("[MIDI] disconnecting %s backend", o.backend.Name())
	err := o.backend.Close()
	o.connected = false
	return err
}

// SetChannel sets the default output channel (0-15) used by operations that
// don't take an explicit channel.
func (o *Output) SetChannel(channel int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.channel = clampChannel(channel)
}

// Channel returns the current default output channel.
func (o *Output) Channel() uint8 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.channel
}

// SendNoteOn sends an immediate note-on with no scheduled release; the
// caller is responsible for eventually silencing the note.
func (o *Output) SendNoteOn(noteNum, velocity int, channel uint8) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := NoteKey{Note: uint8(noteNum), ChannelMask: 1 << channel}
	o.sounding[key] = true
	return o.send([]byte{statusNoteOn | channel, uint8(noteNum), uint8(clampByte(velocity))})
}

// SendNoteOff sends an immediate note-off for noteNum on channel, cancelling
// any pending scheduled release for it.
func (o *Output) SendNoteOff(noteNum int, channel uint8) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	key := NoteKey{Note: uint8(noteNum), ChannelMask: 1 << channel}
	o.sched.Cancel(key)
	delete(o.sounding, key)
	return o.send([]byte{statusNoteOff | channel, uint8(noteNum), 0})
}

// SendNote sends a note-on and schedules its note-off after duration. A
// second SendNote for the same (note, channel) before the first fires
// cancels the pending release and replaces it — the scheduler never emits
// a stale note-off after a note has been re-struck.
func (o *Output) SendNote(noteNum, velocity int, duration time.Duration, channel uint8) error {
	o.mu.Lock()
	key := NoteKey{Note: uint8(noteNum), ChannelMask: 1 << channel}
	o.sounding[key] = true
	err := o.send([]byte{statusNoteOn | channel, uint8(noteNum), uint8(clampByte(velocity))})
	o.mu.Unlock()
	if err != nil {
		return err
	}

	o.sched.Schedule(key, duration, func() {
		o.mu.Lock()
		delete(o.sounding, key)
		sendErr := o.send([]byte{statusNoteOff | channel, uint8(noteNum), 0})
		o.mu.Unlock()
		if sendErr != nil {
			log.Printf("[MIDI] scheduled note-off failed for note %d ch %d: %v", noteNum, channel, sendErr)
		}
	})
	return nil
}

// SendRawNote sends a note-on and schedules its note-off after duration,
// identically to SendNote — used when the caller already has a bare MIDI
// note number (e.g. the strum-release drum hit) rather than a domain Note.
func (o *Output) SendRawNote(noteNum, velocity int, duration time.Duration, channel uint8) error {
	return o.SendNote(noteNum, velocity, duration, channel)
}

// ReleaseNotes sends note-off for every currently sounding note. If channel
// is non-nil, only notes on that channel are released.
func (o *Output) ReleaseNotes(channel *int) {
	o.mu.Lock()
	var keys []NoteKey
	for k, on := range o.sounding {
		if !on {
			continue
		}
		if channel != nil && k.ChannelMask != 1<<uint(*channel) {
			continue
		}
		keys = append(keys, k)
	}
	o.mu.Unlock()

	for _, k := range keys {
		ch := channelFromMask(k.ChannelMask)
		o.SendNoteOff(int(k.Note), ch)
	}
}

// SendPitchBend sends a 14-bit-quantized pitch bend. value is in [-1, 1],
// where -1 is full bend down, 0 is centered, and 1 is full bend up.
func (o *Output) SendPitchBend(value float64, channel uint8) error {
	if value > 1 {
		value = 1
	}
	if value < -1 {
		value = -1
	}
	bend := int(value*8191) + pitchBendCenter
	if bend < 0 {
		bend = 0
	}
	if bend > 16383 {
		bend = 16383
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	return o.send(pitchBendMessage(channel, bend))
}

// send assumes o.mu is already held. Sends on a disconnected backend are
// silent no-ops.
func (o *Output) send(msg []byte) error {
	if !o.connected {
		return nil
	}
	return o.backend.Send(msg)
}

func pitchBendMessage(channel uint8, bend int) []byte {
	lsb := uint8(bend & 0x7F)
	msb := uint8((bend >> 7) & 0x7F)
	return []byte{statusPitchBend | channel, lsb, msb}
}

func clampChannel(channel int) uint8 {
	if channel < 0 {
		channel = 0
	}
	if channel > 15 {
		channel = 15
	}
	return uint8(channel)
}

func clampByte(v int) int {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return v
}

func channelFromMask(mask uint16) uint8 {
	for i := uint8(0); i < 16; i++ {
		if mask&(1<<i) != 0 {
			return i
		}
	}
	return 0
}
