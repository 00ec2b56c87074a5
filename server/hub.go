package main

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"arena-server/internal/physics"
	"arena-server/internal/room"
)

const maxTotalConns = 1000

type HubConfig struct {
	Tickets       *Tickets
	Analytics     *Analytics
	MaxConnsPerIP int
	PublicURL     string
}

// Hub tracks connected clients, routes room output to them and enforces
// connection limits. It is the rooms' Observer.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	members    map[string]map[*Client]bool // room id -> clients
	sessions   map[string]*Client          // session id -> client
	register   chan *Client
	unregister chan *Client

	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu        sync.Mutex
	ipConns       map[string]int
	totalConns    int
	maxConnsPerIP int

	rooms     *room.Manager
	tickets   *Tickets
	analytics *Analytics
	publicURL string
	log       *zap.Logger
}

func NewHub(cfg HubConfig, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients:       make(map[*Client]bool),
		members:       make(map[string]map[*Client]bool),
		sessions:      make(map[string]*Client),
		register:      make(chan *Client, 64),
		unregister:    make(chan *Client, 64),
		ipConns:       make(map[string]int),
		maxConnsPerIP: cfg.MaxConnsPerIP,
		tickets:       cfg.Tickets,
		analytics:     cfg.Analytics,
		publicURL:     cfg.PublicURL,
		log:           log,
	}
}

// SetRooms wires the room manager in. Rooms need the hub as their observer,
// so the manager is built after the hub.
func (h *Hub) SetRooms(m *room.Manager) {
	h.rooms = m
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.maxConnsPerIP > 0 && h.ipConns[ip] >= h.maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.sessions[client.sessionID] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				delete(h.sessions, client.sessionID)
				close(client.send)
			}
			h.mu.Unlock()
			// Leave outside the lock: the room may be publishing to us.
			client.leaveRoom()

		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) attach(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.members[roomID]
	if !ok {
		set = make(map[*Client]bool)
		h.members[roomID] = set
	}
	set[c] = true
}

func (h *Hub) detach(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.members[roomID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.members, roomID)
		}
	}
}

// State encodes a snapshot once and fans it out to the room's clients.
func (h *Hub) State(snap *room.Snapshot) {
	for _, ev := range snap.Events {
		switch ev.Type {
		case room.EventKill:
			h.analytics.Track(EvtNpcKill, snap.Room, "", eventData(ev))
		case room.EventRespawn:
			h.analytics.Track(EvtRespawn, snap.Room, "", eventData(ev))
		case room.EventPickup:
			h.analytics.Track(EvtPickup, snap.Room, "", eventData(ev))
		}
	}

	data, err := msgpack.Marshal(snap)
	if err != nil {
		h.log.Error("encode state", zap.String("room", snap.Room), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.members[snap.Room] {
		c.SendBinary(data)
	}
}

func (h *Hub) DebugBodies(roomID, sessionID string, bodies []physics.DebugBody) {
	h.mu.RLock()
	c, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if ok {
		c.SendJSON(Envelope{T: MsgDebugBodies, Data: DebugBodiesMsg{Bodies: bodies}})
	}
}

// Disposed tells the room's clients it is gone and forgets them.
func (h *Hub) Disposed(roomID string) {
	h.mu.Lock()
	set := h.members[roomID]
	delete(h.members, roomID)
	h.mu.Unlock()

	for c := range set {
		c.roomClosed(roomID)
		c.SendJSON(Envelope{T: MsgClosed, Data: map[string]string{"room": roomID}})
	}
	h.analytics.Track(EvtRoomDisposed, roomID, "", "")
	h.log.Info("room closed", zap.String("room", roomID), zap.Int("clients", len(set)))
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}

func eventData(ev room.Event) string {
	b, err := json.Marshal(ev)
	if err != nil {
		return ""
	}
	return string(b)
}
