package room

import (
	"time"

	"arena-server/internal/physics"
	"arena-server/internal/sim"
)

// Event types carried in snapshots.
const (
	EventHit     = "hit"
	EventKill    = "kill"
	EventDamage  = "damage"
	EventRespawn = "respawn"
	EventPickup  = "pickup"
)

// Event is something that happened during a tick that clients may want to
// animate. Positions are display-frame.
type Event struct {
	Type   string  `msgpack:"type" json:"type"`
	Actor  string  `msgpack:"actor,omitempty" json:"actor,omitempty"`
	Target string  `msgpack:"target,omitempty" json:"target,omitempty"`
	Squad  string  `msgpack:"squad,omitempty" json:"squad,omitempty"`
	X      float64 `msgpack:"x" json:"x"`
	Y      float64 `msgpack:"y" json:"y"`
	Amount float64 `msgpack:"amount,omitempty" json:"amount,omitempty"`
}

// Snapshot is the post-tick truth of a room.
type Snapshot struct {
	Room    string             `msgpack:"room" json:"room"`
	Tick    uint64             `msgpack:"tick" json:"tick"`
	Time    int64              `msgpack:"time" json:"time"`
	Players []sim.PlayerRecord `msgpack:"players" json:"players"`
	Npcs    []sim.NpcRecord    `msgpack:"npcs" json:"npcs"`
	Bullets []sim.BulletRecord `msgpack:"bullets" json:"bullets"`
	Pickups []sim.PickupRecord `msgpack:"pickups" json:"pickups"`
	Events  []Event            `msgpack:"events,omitempty" json:"events,omitempty"`
}

// Info is the goroutine-safe summary of a room used for listings.
type Info struct {
	ID        string    `json:"id"`
	Players   int       `json:"players"`
	Npcs      int       `json:"npcs"`
	Tick      uint64    `json:"tick"`
	CreatedAt time.Time `json:"createdAt"`
}

// Observer receives room output. Its methods are called from the room's
// goroutine and must not block.
type Observer interface {
	State(snap *Snapshot)
	DebugBodies(roomID, sessionID string, bodies []physics.DebugBody)
	Disposed(roomID string)
}

type nopObserver struct{}

func (nopObserver) State(*Snapshot) {}
func (nopObserver) DebugBodies(string, string, []physics.DebugBody) {}
func (nopObserver) Disposed(string) {}

// Snapshot collects every record. It must be called from the room's
// goroutine, or before Run starts.
func (r *Room) Snapshot() *Snapshot {
	s := r.world.Store
	snap := &Snapshot{
		Room:    r.id,
		Tick:    r.tick,
		Time:    r.world.Now().UnixMilli(),
		Players: s.Players(),
		Npcs:    s.Npcs(),
		Bullets: s.Bullets(),
		Pickups: s.Pickups(),
	}
	if len(r.events) > 0 {
		snap.Events = r.events
		r.events = nil
	}
	return snap
}

// DebugBodies is the display-frame snapshot of every physics body.
func (r *Room) DebugBodies() []physics.DebugBody {
	return r.world.Physics.DebugBodies()
}

func (r *Room) emit(ev Event) {
	r.events = append(r.events, ev)
}
