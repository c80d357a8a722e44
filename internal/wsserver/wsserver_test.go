package wsserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sketchatone/strummer/internal/config"
	"github.com/sketchatone/strummer/internal/eventbus"
	"github.com/sketchatone/strummer/internal/hid"
	"github.com/sketchatone/strummer/internal/note"
)

type fakeNotes struct {
	notes []note.Note
}

func (f *fakeNotes) SetNotes(notes []note.Note) { f.notes = notes }
func (f *fakeNotes) Notes() []note.Note          { return f.notes }

type fakeChannel struct {
	channel int
}

func (f *fakeChannel) SetChannel(channel int) { f.channel = channel }

func newTestServer(t *testing.T) (*Server, *httptest.Server, *fakeNotes, *fakeChannel) {
	t.Helper()
	cfg := config.Default()
	notes := &fakeNotes{notes: []note.Note{{Notation: "C", Octave: 4}}}
	ch := &fakeChannel{}
	bus := eventbus.New()
	t.Cleanup(bus.Stop)

	s := New(&cfg, t.TempDir()+"/config.json", notes, ch, bus)
	t.Cleanup(s.Close)

	hs := httptest.NewServer(http.HandlerFunc(s.HandleWS))
	t.Cleanup(hs.Close)
	return s, hs, notes, ch
}

func dial(t *testing.T, hs *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readTyped(t *testing.T, conn *websocket.Conn, typ string, timeout time.Duration) map[string]any {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		conn.SetReadDeadline(deadline)
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		if m["type"] == typ {
			return m
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for message type %q", typ)
		}
	}
}

func TestConnectSendsConfigStatusAndMidiInputStatus(t *testing.T) {
	_, hs, _, _ := newTestServer(t)
	conn := dial(t, hs)

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		seen[m["type"].(string)] = true
	}

	assert.True(t, seen["config"])
	assert.True(t, seen["status"])
	assert.True(t, seen["midi-input-status"])
}

func TestSetThrottleUpdatesBus(t *testing.T) {
	s, hs, _, _ := newTestServer(t)
	conn := dial(t, hs)
	readTyped(t, conn, "config", time.Second)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "set-throttle", "throttleMs": 50}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, s.bus.Throttle())
}

func TestUpdateConfigMutatesAndBroadcastsConfig(t *testing.T) {
	s, hs, _, _ := newTestServer(t)
	conn := dial(t, hs)
	readTyped(t, conn, "config", time.Second)
	readTyped(t, conn, "status", time.Second)
	readTyped(t, conn, "midi-input-status", time.Second)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":  "update-config",
		"path":  "strummer.strumming.pressureThreshold",
		"value": 0.42,
	}))

	m := readTyped(t, conn, "config", time.Second)
	data := m["data"].(map[string]any)
	cfgMap := data["config"].(map[string]any)
	strummerMap := cfgMap["strummer"].(map[string]any)
	strummingMap := strummerMap["strumming"].(map[string]any)
	assert.InDelta(t, 0.42, strummingMap["pressureThreshold"].(float64), 0.0001)

	s.mu.Lock()
	got := s.cfg.Strummer.Strumming.PressureThreshold
	s.mu.Unlock()
	assert.InDelta(t, 0.42, got, 0.0001)
}

func TestUpdateConfigInitialNotesReseedsDetector(t *testing.T) {
	s, hs, notes, _ := newTestServer(t)
	conn := dial(t, hs)
	readTyped(t, conn, "config", time.Second)
	readTyped(t, conn, "status", time.Second)
	readTyped(t, conn, "midi-input-status", time.Second)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":  "update-config",
		"path":  "strummer.strumming.initialNotes",
		"value": []string{"A3", "C4", "E4"},
	}))
	readTyped(t, conn, "config", time.Second)

	_ = s
	require.NotEmpty(t, notes.notes)
	// Default lowerNoteSpread/upperNoteSpread is 3/3; the lower spread cycles
	// base notes in reverse (E, C, A for base [A3, C4, E4]), so index 0 is the
	// lowest clone of the last base note, not the root itself.
	assert.Equal(t, "E", notes.notes[0].Notation)
	assert.Equal(t, "A", notes.notes[3].Notation)
	assert.Equal(t, 3, notes.notes[3].Octave)
}

func TestUpdateConfigMidiChannelAppliesToOutput(t *testing.T) {
	s, hs, _, ch := newTestServer(t)
	conn := dial(t, hs)
	readTyped(t, conn, "config", time.Second)
	readTyped(t, conn, "status", time.Second)
	readTyped(t, conn, "midi-input-status", time.Second)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":  "update-config",
		"path":  "strummer.strumming.midiChannel",
		"value": 3,
	}))
	readTyped(t, conn, "config", time.Second)

	_ = s
	assert.Equal(t, 3, ch.channel)
}

func TestUpdateConfigBadPathDoesNotCloseSession(t *testing.T) {
	s, hs, _, _ := newTestServer(t)
	conn := dial(t, hs)
	readTyped(t, conn, "config", time.Second)
	readTyped(t, conn, "status", time.Second)
	readTyped(t, conn, "midi-input-status", time.Second)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":  "update-config",
		"path":  "strummer.nope.nope",
		"value": 1,
	}))

	// The session should still be usable: a valid follow-up message is still
	// processed.
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "set-throttle", "throttleMs": 25}))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 25*time.Millisecond, s.bus.Throttle())
}

func TestMalformedJSONIsIgnored(t *testing.T) {
	_, hs, _, _ := newTestServer(t)
	conn := dial(t, hs)
	readTyped(t, conn, "config", time.Second)
	readTyped(t, conn, "status", time.Second)
	readTyped(t, conn, "midi-input-status", time.Second)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "set-throttle", "throttleMs": 25}))
	time.Sleep(50 * time.Millisecond)
}

func TestTabletDataBroadcastAfterEmit(t *testing.T) {
	s, hs, _, _ := newTestServer(t)
	conn := dial(t, hs)
	readTyped(t, conn, "config", time.Second)
	readTyped(t, conn, "status", time.Second)
	readTyped(t, conn, "midi-input-status", time.Second)

	s.bus.SetThrottle(10 * time.Millisecond)
	s.bus.EmitTablet(hid.Frame{X: 0.25, Pressure: 0.9})

	m := readTyped(t, conn, "tablet-data", time.Second)
	assert.InDelta(t, 0.25, m["x"].(float64), 0.0001)
}

func TestSaveConfigPersistsToPath(t *testing.T) {
	s, hs, _, _ := newTestServer(t)
	conn := dial(t, hs)
	readTyped(t, conn, "config", time.Second)
	readTyped(t, conn, "status", time.Second)
	readTyped(t, conn, "midi-input-status", time.Second)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "save-config"}))
	time.Sleep(50 * time.Millisecond)

	data, err := os.ReadFile(s.configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "strumming")
}
