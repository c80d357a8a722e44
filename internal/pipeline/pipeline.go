// Package pipeline implements the per-frame orchestrator (C8): it wires
// every HID frame through button edge-detection and action dispatch,
// pitch-bend and note-duration mapping, the strum detector, the note
// repeater, and the event bus, in that order. Follows a top-level wiring
// style and an edge-detection loop generalized to a stylus/tablet button +
// strum + repeater flow.
package pipeline

import (
	"math"
	"sync"
	"time"

	"github.com/sketchatone/strummer/internal/action"
	"github.com/sketchatone/strummer/internal/config"
	"github.com/sketchatone/strummer/internal/eventbus"
	"github.com/sketchatone/strummer/internal/hid"
	"github.com/sketchatone/strummer/internal/mapping"
	"github.com/sketchatone/strummer/internal/midi"
	"github.com/sketchatone/strummer/internal/note"
	"github.com/sketchatone/strummer/internal/strummer"
)

const (
	pitchBendThrottle     = 20 * time.Millisecond
	pitchBendFastPath     = 5 * time.Millisecond
	pitchBendFastDelta    = 0.01
)

// Pipeline wires the per-frame components together. Process must be called
// from a single thread (the HID thread); Close stops background work.
type Pipeline struct {
	mu sync.Mutex

	cfg        *config.Config
	detector   *strummer.Detector
	dispatcher *action.Dispatcher
	output     *midi.Output
	bus        *eventbus.Bus
	now        func() time.Time

	prevPrimary, prevSecondary bool
	prevButtons                [8]bool

	lastBendSent  time.Time
	lastBendValue float64
	haveBendValue bool

	strumStart         time.Time
	repeaterNotes      []strummer.NotedVelocity
	repeaterGeneration int
	repeaterStop       chan struct{}

	lastStrumVelocityNorm float64
	haveStrumVelocity     bool
}

// New wires a pipeline over the given config, strum detector, action
// dispatcher and MIDI output, publishing telemetry to bus.
func New(cfg *config.Config, detector *strummer.Detector, dispatcher *action.Dispatcher, output *midi.Output, bus *eventbus.Bus) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		detector:   detector,
		dispatcher: dispatcher,
		output:     output,
		bus:        bus,
		now:        time.Now,
	}
}

// Process runs one HID frame through the full pipeline.
func (p *Pipeline) Process(frame hid.Frame) {
	p.bus.EmitTablet(frame)

	p.mu.Lock()
	defer p.mu.Unlock()

	p.dispatchButtonEdges(frame)

	p.computeAndMaybeSendPitchBend(frame)

	duration := p.computeNoteDuration(frame)

	var strumPayload *eventbus.StrumPayload
	ev := p.detector.Strum(frame.X, frame.Pressure)
	if ev != nil {
		switch ev.Type {
		case strummer.EventStrum:
			strumPayload = p.handleStrum(ev, duration, frame)
		case strummer.EventRelease:
			strumPayload = p.handleRelease(ev, frame)
		}
	}

	if strumPayload != nil {
		p.bus.EmitStrum(*strumPayload)
	}
}

// Close stops the note repeater goroutine, if running.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopRepeaterLocked()
}

func (p *Pipeline) dispatchButtonEdges(frame hid.Frame) {
	sb := p.cfg.Strummer.StylusButtons
	if sb.Active {
		if frame.PrimaryButton && !p.prevPrimary {
			p.dispatcher.Execute(sb.PrimaryButtonAction)
		}
		if frame.SecondaryButton && !p.prevSecondary {
			p.dispatcher.Execute(sb.SecondaryButtonAction)
		}
	}
	p.prevPrimary = frame.PrimaryButton
	p.prevSecondary = frame.SecondaryButton

	buttons := frame.Buttons()
	actions := p.cfg.Strummer.TabletButtons.Actions
	for i, pressed := range buttons {
		if pressed && !p.prevButtons[i] {
			key := buttonKey(i)
			if a, ok := actions[key]; ok {
				p.dispatcher.Execute(a)
			}
		}
		p.prevButtons[i] = pressed
	}
}

func buttonKey(i int) string {
	return string(rune('1' + i))
}

// computeAndMaybeSendPitchBend returns the mapped [-1,1] bend value and
// sends it to the backend, throttled to 20ms (5ms when the value jumps by
// more than pitchBendFastDelta).
func (p *Pipeline) computeAndMaybeSendPitchBend(frame hid.Frame) float64 {
	m := p.cfg.Strummer.PitchBend
	input := mapping.Resolve(m, frame, p.lastStrumVelocityNorm, p.haveStrumVelocity)
	value := m.Apply(input)

	now := p.now()
	elapsed := now.Sub(p.lastBendSent)
	delta := math.Abs(value - p.lastBendValue)

	shouldSend := !p.haveBendValue ||
		elapsed >= pitchBendThrottle ||
		(elapsed >= pitchBendFastPath && delta > pitchBendFastDelta)

	if shouldSend {
		channel := p.defaultChannel()
		p.output.SendPitchBend(value, channel)
		p.lastBendSent = now
		p.lastBendValue = value
		p.haveBendValue = true
	}
	return value
}

func (p *Pipeline) computeNoteDuration(frame hid.Frame) float64 {
	m := p.cfg.Strummer.NoteDuration
	input := mapping.Resolve(m, frame, p.lastStrumVelocityNorm, p.haveStrumVelocity)
	return m.Apply(input)
}

func (p *Pipeline) defaultChannel() uint8 {
	if ch := p.cfg.Strummer.Strumming.MidiChannel; ch != nil {
		return clampChannel(*ch)
	}
	return p.output.Channel()
}

func clampChannel(ch int) uint8 {
	if ch < 0 {
		return 0
	}
	if ch > 15 {
		return 15
	}
	return uint8(ch)
}

func (p *Pipeline) handleStrum(ev *strummer.Event, durationSec float64, frame hid.Frame) *eventbus.StrumPayload {
	if p.strumStart.IsZero() {
		p.strumStart = p.now()
	}

	channel := p.defaultChannel()
	duration := time.Duration(durationSec * float64(time.Second))

	strumNotes := make([]eventbus.StrumNote, 0, len(ev.Notes))
	for _, nv := range ev.Notes {
		velocity := p.curveVelocity(nv.Velocity)
		n := nv.Note
		if p.cfg.Strummer.Transpose.Active {
			n = note.Transpose(n, p.cfg.Strummer.Transpose.Semitones)
		}
		p.output.SendNote(n.MIDI(), velocity, duration, channel)
		strumNotes = append(strumNotes, eventbus.StrumNote{
			MIDI:     n.MIDI(),
			Velocity: velocity,
			Notation: n.Notation,
			Octave:   n.Octave,
			Duration: durationSec,
		})
	}

	p.lastStrumVelocityNorm = float64(ev.Notes[len(ev.Notes)-1].Velocity) / 127.0
	p.haveStrumVelocity = true

	p.repeaterNotes = append([]strummer.NotedVelocity(nil), ev.Notes...)
	p.startRepeaterLocked(durationSec, channel)

	velocity := 0
	if len(ev.Notes) > 0 {
		velocity = ev.Notes[len(ev.Notes)-1].Velocity
	}
	return &eventbus.StrumPayload{
		Type:      "strum",
		Notes:     strumNotes,
		Velocity:  velocity,
		X:         frame.X,
		Pressure:  frame.Pressure,
		Timestamp: frameTimestamp(frame, p.now),
	}
}

func (p *Pipeline) curveVelocity(rawVelocity int) int {
	m := p.cfg.Strummer.NoteVelocity
	normalized := float64(rawVelocity) / 127.0
	mapped := m.Apply(normalized)
	v := int(math.Round(mapped))
	if v < 1 {
		v = 1
	}
	if v > 127 {
		v = 127
	}
	return v
}

func (p *Pipeline) handleRelease(ev *strummer.Event, frame hid.Frame) *eventbus.StrumPayload {
	sr := p.cfg.Strummer.StrumRelease
	if sr.Active && !p.strumStart.IsZero() {
		elapsed := p.now().Sub(p.strumStart)
		if elapsed.Seconds() <= sr.MaxDuration {
			channel := uint8(9)
			if sr.MidiChannel != nil {
				channel = clampChannel(*sr.MidiChannel)
			}
			velocity := int(math.Round(float64(ev.Velocity) * sr.VelocityMultiplier))
			if velocity < 1 {
				velocity = 1
			}
			if velocity > 127 {
				velocity = 127
			}
			p.output.SendRawNote(sr.MidiNote, velocity, elapsed, channel)
		}
	}

	p.strumStart = time.Time{}
	p.repeaterNotes = nil
	p.stopRepeaterLocked()

	return &eventbus.StrumPayload{
		Type:      "release",
		Velocity:  ev.Velocity,
		X:         frame.X,
		Pressure:  frame.Pressure,
		Timestamp: frameTimestamp(frame, p.now),
	}
}

// frameTimestamp prefers the frame's own device-reported timestamp; frames
// that never set TimestampMS fall back to the pipeline clock.
func frameTimestamp(frame hid.Frame, now func() time.Time) time.Time {
	if frame.TimestampMS != 0 {
		return time.UnixMilli(frame.TimestampMS)
	}
	return now()
}

// startRepeaterLocked (re)starts the note-repeater goroutine with the
// current repeaterNotes, cancelling any previous one. Assumes p.mu held.
func (p *Pipeline) startRepeaterLocked(durationSec float64, channel uint8) {
	p.stopRepeaterLocked()

	rep := p.cfg.Strummer.NoteRepeater
	if !rep.Active || len(p.repeaterNotes) == 0 {
		return
	}
	freqMult := rep.FrequencyMultiplier
	if freqMult <= 0 {
		freqMult = 1
	}
	interval := time.Duration((durationSec / freqMult) * float64(time.Second))
	if interval <= 0 {
		return
	}

	p.repeaterGeneration++
	generation := p.repeaterGeneration
	stop := make(chan struct{})
	p.repeaterStop = stop

	notes := append([]strummer.NotedVelocity(nil), p.repeaterNotes...)
	pressureMult := rep.PressureMultiplier

	go p.runRepeater(generation, notes, interval, pressureMult, durationSec, channel, stop)
}

func (p *Pipeline) runRepeater(generation int, notes []strummer.NotedVelocity, interval time.Duration, pressureMult, durationSec float64, channel uint8, stop chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	duration := time.Duration(durationSec * float64(time.Second))
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			if p.repeaterGeneration != generation {
				p.mu.Unlock()
				return
			}
			p.mu.Unlock()

			for _, nv := range notes {
				scaled := int(math.Round(float64(nv.Velocity) * pressureMult))
				velocity := p.curveVelocity(clampVelocity(scaled))
				n := nv.Note
				p.mu.Lock()
				if p.cfg.Strummer.Transpose.Active {
					n = note.Transpose(n, p.cfg.Strummer.Transpose.Semitones)
				}
				p.mu.Unlock()
				p.output.SendNote(n.MIDI(), velocity, duration, channel)
			}
		}
	}
}

func clampVelocity(v int) int {
	if v < 0 {
		return 0
	}
	if v > 127 {
		return 127
	}
	return v
}

func (p *Pipeline) stopRepeaterLocked() {
	if p.repeaterStop != nil {
		close(p.repeaterStop)
		p.repeaterStop = nil
	}
	p.repeaterGeneration++
}
