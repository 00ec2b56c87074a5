package main

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"arena-server/internal/room"
)

// ---------- helpers ----------

type testServer struct {
	srv   *httptest.Server
	wsURL string
	hub   *Hub
	rooms *room.Manager
}

// startTestServer spins up an httptest.Server with a Hub and a room manager.
// Everything is torn down with the test.
func startTestServer(t *testing.T, tweak func(*room.Options)) *testServer {
	t.Helper()

	// Create a temp client dir with a minimal index.html
	tmpDir := t.TempDir()
	jsDir := filepath.Join(tmpDir, "js")
	require.NoError(t, os.MkdirAll(jsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte("<html>test</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(jsDir, "main.js"), []byte("// test"), 0o644))

	log := zap.NewNop()
	hub := NewHub(HubConfig{
		Tickets:   NewTickets(nil, "test-secret", time.Minute, log),
		PublicURL: "http://arena.test/",
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	opts := room.DefaultOptions()
	opts.Seed = 1
	opts.Observer = hub
	if tweak != nil {
		tweak(&opts)
	}
	rooms := room.NewManager(ctx, opts, log)
	hub.SetRooms(rooms)
	go hub.Run(ctx)

	srv := httptest.NewServer(SetupRoutes(hub, tmpDir))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		rooms.Wait()
	})

	return &testServer{
		srv:   srv,
		wsURL: "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		hub:   hub,
		rooms: rooms,
	}
}

func (ts *testServer) createRoom(t *testing.T) RoomCreatedMsg {
	t.Helper()
	resp, err := http.Post(ts.srv.URL+"/api/rooms", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created RoomCreatedMsg
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created
}

// dialWS opens a WebSocket connection to the test server.
func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

const msgState = "state"

// readEnvelope reads one message from the WebSocket. Binary frames are
// msgpack snapshots and come back as a "state" envelope.
func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	if msgType == websocket.BinaryMessage {
		var snap room.Snapshot
		require.NoError(t, msgpack.Unmarshal(raw, &snap))
		return Envelope{T: msgState, Data: snap}
	}
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	return env
}

// readUntil skips messages until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ string) Envelope {
	t.Helper()
	for i := 0; i < 200; i++ {
		env := readEnvelope(t, conn)
		if env.T == typ {
			return env
		}
	}
	t.Fatalf("no %s message", typ)
	return Envelope{}
}

// sendMsg sends a typed message over the WebSocket.
func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(Envelope{T: msgType, Data: data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

// dataMap extracts the Data field as map[string]interface{}.
func dataMap(t *testing.T, env Envelope) map[string]interface{} {
	t.Helper()
	raw, _ := json.Marshal(env.Data)
	var m map[string]interface{}
	json.Unmarshal(raw, &m)
	return m
}

func joinRoom(t *testing.T, conn *websocket.Conn, created RoomCreatedMsg, extra map[string]interface{}) map[string]interface{} {
	t.Helper()
	msg := map[string]interface{}{"room": created.ID, "ticket": created.Ticket, "name": "Ada"}
	for k, v := range extra {
		msg[k] = v
	}
	sendMsg(t, conn, MsgJoin, msg)
	joined := readEnvelope(t, conn)
	require.Equal(t, MsgJoined, joined.T, "got %v", joined.Data)
	return dataMap(t, joined)
}

// ---------- SPA routing ----------

func TestSPARouting(t *testing.T) {
	ts := startTestServer(t, nil)

	cases := []struct {
		path   string
		status int
		body   string
	}{
		{"/", http.StatusOK, "<html>test</html>"},
		{"/3f2b8c1e-9d4a-4b6e-8f1c-2a3b4c5d6e7f", http.StatusOK, "<html>test</html>"},
		{"/js/main.js", http.StatusOK, "// test"},
		{"/not-a-room", http.StatusNotFound, ""},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			resp, err := http.Get(ts.srv.URL + tc.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
			if tc.body != "" {
				body, _ := io.ReadAll(resp.Body)
				assert.Equal(t, tc.body, string(body))
			}
		})
	}
}

// ---------- REST ----------

func TestCreateRoom(t *testing.T) {
	ts := startTestServer(t, nil)

	created := ts.createRoom(t)
	assert.Regexp(t, uuidPathRe, "/"+created.ID)
	assert.Equal(t, "http://arena.test/"+created.ID, created.URL)
	require.NotEmpty(t, created.Ticket)
	assert.NoError(t, ts.hub.tickets.Verify(created.Ticket, created.ID))

	_, ok := ts.rooms.Get(created.ID)
	assert.True(t, ok)
}

func TestCreateRoomLimit(t *testing.T) {
	ts := startTestServer(t, nil)
	ts.rooms.SetMaxRooms(1)
	ts.createRoom(t)

	resp, err := http.Post(ts.srv.URL+"/api/rooms", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestListRooms(t *testing.T) {
	ts := startTestServer(t, nil)
	a := ts.createRoom(t)
	b := ts.createRoom(t)

	resp, err := http.Get(ts.srv.URL + "/api/rooms")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list []room.Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 2)
	ids := []string{list[0].ID, list[1].ID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
	for _, info := range list {
		assert.Equal(t, 0, info.Players)
		assert.Positive(t, info.Npcs)
	}
}

func TestRoomTicket(t *testing.T) {
	ts := startTestServer(t, nil)
	created := ts.createRoom(t)

	resp, err := http.Post(ts.srv.URL+"/api/rooms/"+created.ID+"/ticket", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got RoomCreatedMsg
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.NoError(t, ts.hub.tickets.Verify(got.Ticket, created.ID))

	resp2, err := http.Post(ts.srv.URL+"/api/rooms/nope/ticket", "application/json", nil)
	require.NoError(t, err)
	resp2.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestRoomQR(t *testing.T) {
	ts := startTestServer(t, nil)
	created := ts.createRoom(t)

	resp, err := http.Get(ts.srv.URL + "/api/rooms/" + created.ID + "/qr")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	body, _ := io.ReadAll(resp.Body)
	require.Greater(t, len(body), 8)
	assert.Equal(t, "\x89PNG", string(body[:4]))

	missing, err := http.Get(ts.srv.URL + "/api/rooms/unknown/qr")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestStats(t *testing.T) {
	ts := startTestServer(t, nil)
	ts.createRoom(t)
	dialWS(t, ts.wsURL)
	require.Eventually(t, func() bool { return ts.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	resp, err := http.Get(ts.srv.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats StatsMsg
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 1, stats.Connections)
	assert.Equal(t, 1, stats.Rooms)
}

// ---------- WebSocket flow ----------

func TestJoinReceivesState(t *testing.T) {
	ts := startTestServer(t, nil)
	created := ts.createRoom(t)
	conn := dialWS(t, ts.wsURL)

	joined := joinRoom(t, conn, created, map[string]interface{}{"x": 400.0, "y": 300.0})
	assert.Equal(t, created.ID, joined["room"])
	session := joined["session"].(string)
	playerID := joined["player"].(string)
	require.NotEmpty(t, playerID)

	snap := readUntil(t, conn, msgState).Data.(room.Snapshot)
	assert.Equal(t, created.ID, snap.Room)
	require.Len(t, snap.Players, 1)
	p := snap.Players[0]
	assert.Equal(t, playerID, p.ID)
	assert.Equal(t, session, p.SessionID)
	assert.Equal(t, "Ada", p.Name)
	assert.InDelta(t, 400, p.X, 5)
	assert.InDelta(t, 300, p.Y, 5)
	assert.NotEmpty(t, snap.Npcs)
}

func TestJoinRejections(t *testing.T) {
	ts := startTestServer(t, nil)
	created := ts.createRoom(t)
	other := ts.createRoom(t)

	cases := []struct {
		name string
		msg  map[string]interface{}
		want string
	}{
		{"unknown room", map[string]interface{}{"room": "nope", "ticket": created.Ticket}, "room not found"},
		{"bad ticket", map[string]interface{}{"room": created.ID, "ticket": "garbage"}, "invalid ticket"},
		{"other room's ticket", map[string]interface{}{"room": created.ID, "ticket": other.Ticket}, "invalid ticket"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := dialWS(t, ts.wsURL)
			sendMsg(t, conn, MsgJoin, tc.msg)
			env := readEnvelope(t, conn)
			require.Equal(t, MsgError, env.T)
			assert.Equal(t, tc.want, dataMap(t, env)["msg"])
		})
	}
}

func TestJoinTwice(t *testing.T) {
	ts := startTestServer(t, nil)
	created := ts.createRoom(t)
	conn := dialWS(t, ts.wsURL)
	joinRoom(t, conn, created, nil)

	sendMsg(t, conn, MsgJoin, map[string]interface{}{"room": created.ID, "ticket": created.Ticket})
	env := readUntil(t, conn, MsgError)
	assert.Equal(t, "already in a room", dataMap(t, env)["msg"])
}

func TestGameplayBeforeJoinIgnored(t *testing.T) {
	ts := startTestServer(t, nil)
	created := ts.createRoom(t)
	conn := dialWS(t, ts.wsURL)

	sendMsg(t, conn, MsgMove, map[string]float64{"x": 1, "y": 0})
	sendMsg(t, conn, MsgShoot, map[string]float64{"dirx": 1, "diry": 0})
	// The connection survives and can still join.
	joinRoom(t, conn, created, nil)
}

func TestDebugBodies(t *testing.T) {
	ts := startTestServer(t, nil)
	created := ts.createRoom(t)
	conn := dialWS(t, ts.wsURL)
	joinRoom(t, conn, created, nil)

	sendMsg(t, conn, MsgGetDebugBodies, nil)
	env := readUntil(t, conn, MsgDebugBodies)
	bodies, ok := dataMap(t, env)["bodies"].([]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, bodies)
}

func TestMultiplePlayers(t *testing.T) {
	ts := startTestServer(t, nil)
	created := ts.createRoom(t)

	a := dialWS(t, ts.wsURL)
	joinRoom(t, a, created, nil)
	b := dialWS(t, ts.wsURL)
	joinRoom(t, b, created, map[string]interface{}{"name": "Grace"})

	var players int
	for i := 0; i < 60 && players < 2; i++ {
		players = len(readUntil(t, a, msgState).Data.(room.Snapshot).Players)
	}
	assert.Equal(t, 2, players)

	rm, ok := ts.rooms.Get(created.ID)
	require.True(t, ok)
	assert.Equal(t, 2, rm.Info().Players)
}

func TestLeaveThenTeardown(t *testing.T) {
	ts := startTestServer(t, func(o *room.Options) {
		o.TeardownDelay = 50 * time.Millisecond
	})
	created := ts.createRoom(t)
	conn := dialWS(t, ts.wsURL)
	joinRoom(t, conn, created, nil)

	sendMsg(t, conn, MsgLeave, nil)
	readUntil(t, conn, MsgLeft)

	require.Eventually(t, func() bool {
		_, ok := ts.rooms.Get(created.ID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnectLeavesRoom(t *testing.T) {
	ts := startTestServer(t, func(o *room.Options) {
		o.TeardownDelay = 50 * time.Millisecond
	})
	created := ts.createRoom(t)
	conn := dialWS(t, ts.wsURL)
	joinRoom(t, conn, created, nil)
	conn.Close()

	require.Eventually(t, func() bool {
		return ts.hub.ClientCount() == 0 && ts.hub.TotalConns() == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return ts.rooms.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestRoomClosedNotifiesClients(t *testing.T) {
	ts := startTestServer(t, nil)
	created := ts.createRoom(t)
	conn := dialWS(t, ts.wsURL)
	joinRoom(t, conn, created, nil)

	rm, ok := ts.rooms.Get(created.ID)
	require.True(t, ok)
	rm.Close()

	env := readUntil(t, conn, MsgClosed)
	assert.Equal(t, created.ID, dataMap(t, env)["room"])

	// The client is free to join another room afterwards.
	next := ts.createRoom(t)
	joinRoom(t, conn, next, nil)
}
