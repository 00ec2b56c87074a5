package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"arena-server/internal/room"
	"arena-server/internal/sim"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	joinTimeout       = 5 * time.Second
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 120
	maxNameLen        = 16
)

// Client represents a WebSocket connection. Each connection is one session.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	sessionID  string
	remoteAddr string
	log        *zap.Logger
	msgCount   int
	msgResetAt time.Time

	mu       sync.Mutex
	room     *room.Room
	playerID string
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	id := uuid.NewString()
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		sessionID:  id,
		remoteAddr: remoteAddr,
		log:        hub.log.With(zap.String("session", id)),
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("ws read", zap.Error(err))
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			c.log.Warn("rate limit exceeded, disconnecting", zap.String("ip", c.remoteAddr))
			break
		}

		c.handleMessage(message)
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Check for binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("marshal", zap.Error(err))
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message.
// It prefixes a 0xFF marker byte so WritePump can tell it from text.
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(msg string) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: msg}})
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Debug("unmarshal", zap.Error(err))
		return
	}

	switch env.T {
	case MsgJoin:
		c.handleJoin(env.D)
	case MsgLeave:
		c.handleLeave()
	case MsgMove, MsgShoot, MsgPositionSync, MsgToggleDebug, MsgGetDebugBodies:
		c.handleGameplay(env.T, env.D)
	}
}

func (c *Client) currentRoom() (*room.Room, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room, c.playerID
}

func (c *Client) handleJoin(data json.RawMessage) {
	var msg JoinMsg
	if len(data) > 0 {
		_ = json.Unmarshal(data, &msg)
	}
	if r, _ := c.currentRoom(); r != nil {
		c.sendError("already in a room")
		return
	}
	if c.hub.rooms == nil {
		c.sendError("room not found")
		return
	}
	r, ok := c.hub.rooms.Get(msg.Room)
	if !ok {
		c.sendError("room not found")
		return
	}
	if c.hub.tickets != nil {
		if err := c.hub.tickets.Verify(msg.Ticket, msg.Room); err != nil {
			c.log.Debug("ticket rejected", zap.String("room", msg.Room), zap.Error(err))
			c.sendError("invalid ticket")
			return
		}
	}

	name := strings.TrimSpace(msg.Name)
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()
	playerID, err := r.Join(ctx, c.sessionID, sim.JoinOptions{X: msg.X, Y: msg.Y, Name: name, Avatar: msg.Avatar})
	if err != nil {
		switch {
		case errors.Is(err, sim.ErrPaletteExhausted):
			c.sendError("room full")
		case errors.Is(err, room.ErrRoomClosed):
			c.sendError("room closed")
		default:
			c.log.Warn("join failed", zap.String("room", msg.Room), zap.Error(err))
			c.sendError("join failed")
		}
		return
	}

	c.mu.Lock()
	c.room, c.playerID = r, playerID
	c.mu.Unlock()
	// Joined goes out before the first state frame can.
	c.SendJSON(Envelope{T: MsgJoined, Data: JoinedMsg{Room: r.ID(), Session: c.sessionID, PlayerID: playerID}})
	c.hub.attach(c, r.ID())
	c.hub.analytics.Track(EvtSessionStart, r.ID(), c.sessionID, "")

	// The room may have been disposed before attach saw it.
	select {
	case <-r.Done():
		c.hub.detach(c, r.ID())
		c.roomClosed(r.ID())
		c.SendJSON(Envelope{T: MsgClosed, Data: map[string]string{"room": r.ID()}})
	default:
	}
}

func (c *Client) handleLeave() {
	if c.leaveRoom() {
		c.SendJSON(Envelope{T: MsgLeft})
	}
}

// leaveRoom takes the client out of its room, if any.
func (c *Client) leaveRoom() bool {
	c.mu.Lock()
	r := c.room
	c.room, c.playerID = nil, ""
	c.mu.Unlock()
	if r == nil {
		return false
	}
	c.hub.detach(c, r.ID())
	r.Leave(c.sessionID)
	c.hub.analytics.Track(EvtSessionEnd, r.ID(), c.sessionID, "")
	return true
}

// roomClosed forgets the room if it is still the current one.
func (c *Client) roomClosed(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room != nil && c.room.ID() == roomID {
		c.room, c.playerID = nil, ""
	}
}

func (c *Client) handleGameplay(typ string, data json.RawMessage) {
	r, _ := c.currentRoom()
	if r == nil {
		return
	}
	msg, err := room.DecodeMessage(typ, data)
	if err != nil {
		return
	}
	r.Deliver(c.sessionID, msg)
}
