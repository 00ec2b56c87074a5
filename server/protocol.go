package main

import (
	"encoding/json"

	"arena-server/internal/physics"
	"arena-server/internal/room"
)

// Client -> Server message types. Gameplay messages use the room's names.
const (
	MsgJoin           = "join"
	MsgLeave          = "leave"
	MsgMove           = room.MsgMove
	MsgShoot          = room.MsgShoot
	MsgPositionSync   = room.MsgPositionSync
	MsgToggleDebug    = room.MsgToggleDebug
	MsgGetDebugBodies = room.MsgGetDebugBodies
)

// Server -> Client message types. State frames are binary msgpack and carry
// no envelope.
const (
	MsgJoined      = "joined"
	MsgLeft        = "left"
	MsgError       = "error"
	MsgDebugBodies = "debug_bodies"
	MsgClosed      = "closed" // room was disposed
)

// Envelope wraps all outgoing JSON messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; json.RawMessage defers decoding
// of the payload to the handler.
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// JoinMsg is sent when a client wants to enter a room. X and Y are an
// optional display-frame start position.
type JoinMsg struct {
	Room   string   `json:"room"`
	Ticket string   `json:"ticket"`
	Name   string   `json:"name"`
	Avatar int      `json:"avatar"`
	X      *float64 `json:"x,omitempty"`
	Y      *float64 `json:"y,omitempty"`
}

// JoinedMsg confirms a join.
type JoinedMsg struct {
	Room     string `json:"room"`
	Session  string `json:"session"`
	PlayerID string `json:"player"`
}

type DebugBodiesMsg struct {
	Bodies []physics.DebugBody `json:"bodies"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// RoomCreatedMsg is the body of a successful POST /api/rooms.
type RoomCreatedMsg struct {
	ID     string `json:"id"`
	Ticket string `json:"ticket"`
	URL    string `json:"url"`
}

// StatsMsg is the body of GET /api/stats.
type StatsMsg struct {
	Connections int            `json:"connections"`
	Rooms       int            `json:"rooms"`
	Events      map[string]int `json:"events,omitempty"`
}
