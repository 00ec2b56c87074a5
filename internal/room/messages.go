package room

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"arena-server/internal/sim"
)

// Inbound message types.
const (
	MsgMove           = "move"
	MsgShoot          = "shoot"
	MsgPositionSync   = "position_sync"
	MsgToggleDebug    = "toggle_debug"
	MsgGetDebugBodies = "get_debug_bodies"
)

// Move is a display-frame movement vector.
type Move struct {
	X, Y float64
}

type Shoot struct {
	Input sim.ShootInput
}

// PositionSync is a client-reported display-frame position.
type PositionSync struct {
	X, Y float64
}

type ToggleDebug struct {
	Enabled bool
}

type GetDebugBodies struct{}

// DecodeMessage turns a raw JSON payload into one of the message structs.
// Decoding is lenient: missing, null or non-numeric fields become zero, and
// a payload that is not an object is treated as empty. Only an unknown
// message type is an error.
func DecodeMessage(typ string, raw json.RawMessage) (any, error) {
	var f fields
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &f); err != nil {
			f = nil
		}
	}
	switch typ {
	case MsgMove:
		return Move{X: f.num("x"), Y: f.num("y")}, nil
	case MsgShoot:
		return Shoot{Input: sim.ShootInput{
			Type:     f.str("type"),
			X:        f.num("x"),
			Y:        f.num("y"),
			DirX:     f.num("dirx"),
			DirY:     f.num("diry"),
			Power:    f.num("power"),
			Velocity: f.num("velocity"),
		}}, nil
	case MsgPositionSync:
		return PositionSync{X: f.num("x"), Y: f.num("y")}, nil
	case MsgToggleDebug:
		return ToggleDebug{Enabled: f.flag("enabled")}, nil
	case MsgGetDebugBodies:
		return GetDebugBodies{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, typ)
}

type fields map[string]any

func (f fields) num(key string) float64 {
	var v float64
	switch x := f[key].(type) {
	case float64:
		v = x
	case string:
		v, _ = strconv.ParseFloat(x, 64)
	case bool:
		if x {
			v = 1
		}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func (f fields) str(key string) string {
	s, _ := f[key].(string)
	return s
}

func (f fields) flag(key string) bool {
	switch x := f[key].(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	}
	return false
}
