// Package wsserver implements the WebSocket server (C10): session
// management, the JSON telemetry/control protocol, live config mutation by
// dotted path, and config persistence, plus the GET-only static file server
// (A4). Persistence follows a write-then-move auto-save style; the
// gorilla/websocket transport follows the live-control/telemetry pairing
// used by several comparable WebSocket-plus-MIDI tools.
package wsserver

import (
	stdjson "encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"github.com/sketchatone/strummer/internal/config"
	"github.com/sketchatone/strummer/internal/eventbus"
	"github.com/sketchatone/strummer/internal/hid"
	"github.com/sketchatone/strummer/internal/midiinput"
	"github.com/sketchatone/strummer/internal/note"
)

// json pins the same jsoniter codec the config package uses for the wire
// protocol, rather than the standard library encoder.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ServerVersion is reported in every "config" message.
const ServerVersion = "1.0.0"

// sendTimeout is the per-client broadcast deadline; a client that doesn't
// drain within this window is evicted.
const sendTimeout = 1 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NotesController is the narrow surface the server needs from the strum
// detector side to re-seed notes and report the live set.
type NotesController interface {
	SetNotes(notes []note.Note)
	Notes() []note.Note
}

// ChannelSetter is the narrow surface needed from the MIDI output to react
// to a live midiChannel change.
type ChannelSetter interface {
	SetChannel(channel int)
}

// Server hosts the WebSocket endpoint and the static file handler.
type Server struct {
	mu         sync.Mutex
	cfg        *config.Config
	configPath string
	notes      NotesController
	output     ChannelSetter
	bus        *eventbus.Bus

	clients map[*client]struct{}

	midiInputPorts    []string
	midiInputPort     string
	midiInputNotes    []note.Note
	midiInputConnected bool

	unsubscribeBus func()
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(sendTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// New returns a server bound to the given config, strum-note controller,
// MIDI output channel setter, and event bus. configPath is where
// "save-config" persists to.
func New(cfg *config.Config, configPath string, notes NotesController, output ChannelSetter, bus *eventbus.Bus) *Server {
	s := &Server{
		cfg:        cfg,
		configPath: configPath,
		notes:      notes,
		output:     output,
		bus:        bus,
		clients:    make(map[*client]struct{}),
	}
	s.unsubscribeBus = bus.Subscribe(s.onCombinedEvent)
	return s
}

// Close stops the bus subscription and closes every connected client.
func (s *Server) Close() {
	if s.unsubscribeBus != nil {
		s.unsubscribeBus()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.clients = make(map[*client]struct{})
}

// HandleWS upgrades the connection and runs the client's read loop until it
// disconnects.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	log.Printf("[WS] client connected (%d total)", s.clientCount())

	s.sendConfig(c)
	s.sendStatus(c, "connected", "")
	s.sendMidiInputStatus(c)

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		conn.Close()
		log.Printf("[WS] client disconnected (%d total)", s.clientCount())
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		s.handleClientMessage(data)
	}
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// handleClientMessage dispatches one inbound JSON message. Malformed JSON
// and unknown config paths are logged and otherwise ignored; the session is
// never closed because of them.
func (s *Server) handleClientMessage(data []byte) {
	var env struct {
		Type       string          `json:"type"`
		ThrottleMs *int            `json:"throttleMs"`
		Throttle   *int            `json:"throttle"`
		Path       string          `json:"path"`
		Value      stdjson.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Printf("[WS] malformed client message: %v", err)
		return
	}

	switch env.Type {
	case "set-throttle":
		ms := env.ThrottleMs
		if ms == nil {
			ms = env.Throttle
		}
		if ms == nil {
			log.Printf("[WS] set-throttle: missing throttleMs")
			return
		}
		s.bus.SetThrottle(time.Duration(*ms) * time.Millisecond)
	case "update-config":
		s.handleUpdateConfig(env.Path, env.Value)
	case "save-config":
		s.handleSaveConfig()
	default:
		log.Printf("[WS] unknown message type %q", env.Type)
	}
}

func (s *Server) handleUpdateConfig(path string, raw stdjson.RawMessage) {
	var value any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &value); err != nil {
			log.Printf("[WS] update-config: bad value for %q: %v", path, err)
			return
		}
	}

	s.mu.Lock()
	err := config.Set(s.cfg, path, value)
	s.mu.Unlock()
	if err != nil {
		log.Printf("[WS] update-config: %v", err)
		return
	}

	if affectsNotes(path) {
		s.reseedNotes()
	}
	if affectsChannel(path) {
		s.applyChannel()
	}

	s.broadcastConfig()
}

// affectsNotes reports whether a dotted path mutates the active chord,
// spread, or initial notes, which requires re-seeding the strum detector.
func affectsNotes(path string) bool {
	switch path {
	case "strummer.strumming.initialNotes",
		"strummer.strumming.chord",
		"strummer.strumming.upperNoteSpread",
		"strummer.strumming.lowerNoteSpread":
		return true
	default:
		return false
	}
}

func affectsChannel(path string) bool {
	return path == "strummer.strumming.midiChannel"
}

func (s *Server) reseedNotes() {
	s.mu.Lock()
	strumming := s.cfg.Strummer.Strumming
	s.mu.Unlock()

	base := make([]note.Note, 0, len(strumming.InitialNotes))
	if strumming.Chord != nil && *strumming.Chord != "" {
		chordNotes, err := note.ParseChord(*strumming.Chord, 4)
		if err != nil {
			log.Printf("[WS] reseed: bad chord %q: %v", *strumming.Chord, err)
		} else {
			base = chordNotes
		}
	} else {
		for _, n := range strumming.InitialNotes {
			parsed, err := note.Parse(n)
			if err != nil {
				log.Printf("[WS] reseed: bad note %q: %v", n, err)
				continue
			}
			base = append(base, parsed)
		}
	}
	if len(base) == 0 {
		return
	}

	expanded := note.FillSpread(base, strumming.LowerNoteSpread, strumming.UpperNoteSpread)
	s.notes.SetNotes(expanded)
}

func (s *Server) applyChannel() {
	s.mu.Lock()
	ch := s.cfg.Strummer.Strumming.MidiChannel
	s.mu.Unlock()
	if ch != nil {
		s.output.SetChannel(*ch)
	}
}

func (s *Server) handleSaveConfig() {
	s.mu.Lock()
	cfg := *s.cfg
	path := s.configPath
	s.mu.Unlock()

	if err := config.Save(cfg, path); err != nil {
		log.Printf("[WS] save-config: %v", err)
	}
}

// OnMidiInputDelta is wired to midiinput.Bridge's onDelta callback and
// broadcasts a "midi-input" message to every client.
func (s *Server) OnMidiInputDelta(delta midiinput.Delta) {
	s.mu.Lock()
	s.midiInputNotes = delta.Notes
	s.midiInputPort = delta.PortName
	s.mu.Unlock()

	msg := map[string]any{
		"type":           "midi-input",
		"notes":          notesWire(delta.Notes),
		"portName":       delta.PortName,
		"availablePorts": s.availablePorts(),
		"connectedPort":  delta.PortName,
	}
	if delta.Added != nil {
		msg["added"] = notesWire(delta.Added)
	}
	if delta.Removed != nil {
		msg["removed"] = notesWire(delta.Removed)
	}
	s.broadcast(msg)
}

// SetMidiInputPorts records the available MIDI input port names for
// inclusion in midi-input(-status) broadcasts.
func (s *Server) SetMidiInputPorts(ports []string) {
	s.mu.Lock()
	s.midiInputPorts = ports
	s.mu.Unlock()
}

// SetMidiInputConnected updates the midi-input connection flag broadcast in
// status messages.
func (s *Server) SetMidiInputConnected(connected bool) {
	s.mu.Lock()
	s.midiInputConnected = connected
	s.mu.Unlock()
}

func (s *Server) availablePorts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.midiInputPorts...)
}

func (s *Server) sendMidiInputStatus(c *client) {
	s.mu.Lock()
	msg := map[string]any{
		"type":           "midi-input-status",
		"connected":      s.midiInputConnected,
		"availablePorts": append([]string(nil), s.midiInputPorts...),
		"connectedPort":  s.midiInputPort,
		"currentNotes":   notesWire(s.midiInputNotes),
	}
	s.mu.Unlock()
	if err := c.send(msg); err != nil {
		log.Printf("[WS] send midi-input-status: %v", err)
	}
}

// SendDeviceStatus broadcasts a "status" message reflecting a device
// connection transition.
func (s *Server) SendDeviceStatus(connected bool, message string) {
	status := "disconnected"
	if connected {
		status = "connected"
	}
	s.broadcast(map[string]any{
		"type":            "status",
		"status":          status,
		"deviceConnected": connected,
		"message":         message,
		"timestamp":       nowMillis(),
	})
}

func (s *Server) sendStatus(c *client, status, message string) {
	if err := c.send(map[string]any{
		"type":            "status",
		"status":          status,
		"deviceConnected": status == "connected",
		"message":         message,
		"timestamp":       nowMillis(),
	}); err != nil {
		log.Printf("[WS] send status: %v", err)
	}
}

// BroadcastConfig re-sends the current "config" message to every client.
// Wired as the action dispatcher's onChange hook, so button- or
// progression-driven mutations re-sync connected browsers the same way a
// WebSocket-originated update-config does.
func (s *Server) BroadcastConfig() {
	s.broadcastConfig()
}

// broadcastConfig sends the current "config" message to every client.
func (s *Server) broadcastConfig() {
	s.mu.Lock()
	cfg := *s.cfg
	throttle := s.bus.Throttle()
	s.mu.Unlock()

	notes := s.notes.Notes()
	s.broadcast(map[string]any{
		"type": "config",
		"data": map[string]any{
			"throttleMs":    int(throttle / time.Millisecond),
			"notes":         notesWire(notes),
			"config":        cfg,
			"serverVersion": ServerVersion,
		},
	})
}

func (s *Server) sendConfig(c *client) {
	s.mu.Lock()
	cfg := *s.cfg
	throttle := s.bus.Throttle()
	s.mu.Unlock()

	notes := s.notes.Notes()
	if err := c.send(map[string]any{
		"type": "config",
		"data": map[string]any{
			"throttleMs":    int(throttle / time.Millisecond),
			"notes":         notesWire(notes),
			"config":        cfg,
			"serverVersion": ServerVersion,
		},
	}); err != nil {
		log.Printf("[WS] send config: %v", err)
	}
}

// onCombinedEvent is the event-bus subscriber: it turns a throttled
// CombinedEvent into a "tablet-data" broadcast.
func (s *Server) onCombinedEvent(ev eventbus.CombinedEvent) {
	if ev.Tablet == nil {
		return
	}
	msg := tabletDataMessage(*ev.Tablet, ev.Strum, ev.Timestamp)
	s.broadcast(msg)
}

func tabletDataMessage(f hid.Frame, strum *eventbus.StrumPayload, ts time.Time) map[string]any {
	msg := map[string]any{
		"type":            "tablet-data",
		"timestamp":       ts.UnixMilli(),
		"x":               f.X,
		"y":               f.Y,
		"pressure":        f.Pressure,
		"state":           string(f.State),
		"tiltX":           f.TiltX,
		"tiltY":           f.TiltY,
		"tiltXY":          f.TiltXY,
		"primaryButton":   f.PrimaryButton,
		"secondaryButton": f.SecondaryButton,
		"button1":         f.Button1,
		"button2":         f.Button2,
		"button3":         f.Button3,
		"button4":         f.Button4,
		"button5":         f.Button5,
		"button6":         f.Button6,
		"button7":         f.Button7,
		"button8":         f.Button8,
	}
	if strum != nil {
		msg["strum"] = strumWire(*strum)
	}
	return msg
}

func strumWire(strum eventbus.StrumPayload) map[string]any {
	notes := make([]map[string]any, 0, len(strum.Notes))
	for _, n := range strum.Notes {
		notes = append(notes, map[string]any{
			"midi":     n.MIDI,
			"velocity": n.Velocity,
			"notation": n.Notation,
			"octave":   n.Octave,
			"duration": n.Duration,
		})
	}
	return map[string]any{
		"type":      strum.Type,
		"notes":     notes,
		"velocity":  strum.Velocity,
		"x":         strum.X,
		"pressure":  strum.Pressure,
		"timestamp": strum.Timestamp.UnixMilli(),
	}
}

// broadcast sends v to every connected client, serialized so that
// backpressure on one client cannot cause unbounded queuing toward another:
// each send is awaited (with its own 1s deadline) before the next begins.
// A client whose send fails or times out is evicted.
func (s *Server) broadcast(v any) {
	s.mu.Lock()
	targets := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	var dead []*client
	for _, c := range targets {
		if err := c.send(v); err != nil {
			dead = append(dead, c)
		}
	}

	if len(dead) == 0 {
		return
	}
	s.mu.Lock()
	for _, c := range dead {
		delete(s.clients, c)
	}
	s.mu.Unlock()
	for _, c := range dead {
		c.conn.Close()
	}
	log.Printf("[WS] evicted %d unresponsive client(s)", len(dead))
}

func notesWire(notes []note.Note) []map[string]any {
	out := make([]map[string]any, 0, len(notes))
	for _, n := range notes {
		out = append(out, map[string]any{"notation": n.Notation, "octave": n.Octave})
	}
	return out
}

var nowMillis = func() int64 { return time.Now().UnixMilli() }
