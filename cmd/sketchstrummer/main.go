// Command sketchstrummer wires a pressure-sensitive tablet into a
// polyphonic MIDI instrument: a normalized HID frame stream drives the
// strum detector and parameter mappings, which drive a MIDI backend, a
// note-off scheduler, and a throttled WebSocket telemetry channel. Flags
// are intentionally thin, parsing exactly the knobs needed to run
// standalone rather than reaching for a CLI framework.
package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sketchatone/strummer/internal/action"
	"github.com/sketchatone/strummer/internal/config"
	"github.com/sketchatone/strummer/internal/eventbus"
	"github.com/sketchatone/strummer/internal/hid"
	"github.com/sketchatone/strummer/internal/midi"
	"github.com/sketchatone/strummer/internal/midiinput"
	"github.com/sketchatone/strummer/internal/note"
	"github.com/sketchatone/strummer/internal/pipeline"
	"github.com/sketchatone/strummer/internal/strummer"
	"github.com/sketchatone/strummer/internal/wsserver"
)

func main() {
	var configPath string
	var httpPort int
	var wsPort int
	var midiBackend string
	var staticDir string
	flag.StringVar(&configPath, "config", "sketchstrummer.json", "path to the config file")
	flag.IntVar(&httpPort, "http-port", 0, "HTTP static server port (0 = use config)")
	flag.IntVar(&wsPort, "ws-port", 0, "WebSocket server port (0 = use config)")
	flag.StringVar(&midiBackend, "midi-backend", "", "midi output backend override: rtmidi | jack")
	flag.StringVar(&staticDir, "static-dir", "web", "directory to serve the browser client from")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("[MAIN] loading config: %v", err)
	}
	if httpPort != 0 {
		cfg.Server.HTTPPort = httpPort
	}
	if wsPort != 0 {
		cfg.Server.WSPort = wsPort
	}
	if midiBackend != "" {
		cfg.Midi.MidiOutputBackend = midiBackend
	}

	initialNotes := resolveInitialNotes(cfg)
	detector := strummer.New(initialNotes, cfg.Strummer.Strumming.PressureThreshold)

	backend, err := midi.Open(midi.OpenOptions{
		Kind:            midi.Kind(cfg.Midi.MidiOutputBackend),
		OutputID:        cfg.Midi.MidiOutputID,
		JackClientName:  cfg.Midi.JackClientName,
		JackAutoConnect: cfg.Midi.JackAutoConnect,
	})
	if err != nil {
		log.Fatalf("[MAIN] opening midi backend: %v", err)
	}
	output := midi.NewOutput(backend)
	if ch := cfg.Strummer.Strumming.MidiChannel; ch != nil {
		output.SetChannel(*ch)
	}
	log.Printf("[MAIN] midi output connected: %s", backend.Name())

	bus := eventbus.New()

	ws := wsserver.New(&cfg, configPath, detector, output, bus)

	dispatcher := action.New(&cfg, detector, ws.BroadcastConfig)

	p := pipeline.New(&cfg, detector, dispatcher, output, bus)

	inputBridge := midiinput.New(detector, ws.OnMidiInputDelta)
	ws.SetMidiInputPorts(midi.ListInputs())
	exclude := cfg.Midi.MidiInputExclude
	if len(exclude) == 0 {
		exclude = midiinput.DefaultExcludePatterns
	}
	if cfg.Midi.MidiInputID != "" {
		if err := inputBridge.Connect(cfg.Midi.MidiInputID); err != nil {
			log.Printf("[MAIN] midi input connect: %v", err)
		} else {
			ws.SetMidiInputConnected(true)
		}
	} else if err := inputBridge.ConnectAll(exclude); err != nil {
		log.Printf("[MAIN] midi input connect-all: %v", err)
	} else {
		ws.SetMidiInputConnected(true)
	}

	staticMux := http.NewServeMux()
	staticMux.Handle("/", wsserver.StaticHandler(staticDir))
	httpAddr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
	httpSrv := &http.Server{Addr: httpAddr, Handler: staticMux}
	go func() {
		log.Printf("[MAIN] static file server listening on %s", httpAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[MAIN] static file server error: %v", err)
		}
	}()

	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/", ws.HandleWS)
	wsAddr := fmt.Sprintf(":%d", cfg.Server.WSPort)
	wsSrv := &http.Server{Addr: wsAddr, Handler: wsMux}
	go func() {
		log.Printf("[MAIN] websocket server listening on %s", wsAddr)
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[MAIN] websocket server error: %v", err)
		}
	}()

	frameDone := make(chan struct{})
	source, err := hid.Open(cfg.Server.Device)
	if err != nil {
		log.Printf("[MAIN] no HID device source available: %v", err)
		close(frameDone)
	} else {
		ws.SendDeviceStatus(true, "device connected")
		go func() {
			defer close(frameDone)
			for frame := range source.Frames() {
				p.Process(frame)
			}
			ws.SendDeviceStatus(false, "device disconnected")
		}()
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	<-shutdown
	log.Printf("[MAIN] shutting down")

	if source != nil {
		source.Close()
	}
	inputBridge.Close()
	p.Close()
	bus.Stop()
	ws.Close()
	output.Disconnect()

	ctxShutdownDeadline := 2 * time.Second
	done := make(chan struct{})
	go func() {
		httpSrv.Close()
		wsSrv.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(ctxShutdownDeadline):
	}

	<-frameDone
	log.Printf("[MAIN] shutdown complete")
}

// resolveInitialNotes builds the strum detector's starting note sequence
// from the config's chord (if set) or its initialNotes list, expanded by
// the configured octave spread.
func resolveInitialNotes(cfg config.Config) []note.Note {
	s := cfg.Strummer.Strumming

	var base []note.Note
	if s.Chord != nil && *s.Chord != "" {
		parsed, err := note.ParseChord(*s.Chord, 4)
		if err != nil {
			log.Printf("[MAIN] bad initial chord %q: %v", *s.Chord, err)
		} else {
			base = parsed
		}
	}
	if len(base) == 0 {
		for _, n := range s.InitialNotes {
			parsed, err := note.Parse(n)
			if err != nil {
				log.Printf("[MAIN] bad initial note %q: %v", n, err)
				continue
			}
			base = append(base, parsed)
		}
	}
	if len(base) == 0 {
		base = []note.Note{{Notation: "C", Octave: 4}, {Notation: "E", Octave: 4}, {Notation: "G", Octave: 4}}
	}

	return note.FillSpread(base, s.LowerNoteSpread, s.UpperNoteSpread)
}
