package sim

import (
	"sort"
	"time"

	"github.com/yohamta/donburi"
)

// Kind tags every record with its variant. Collision dispatch switches on
// it instead of inspecting ids.
type Kind uint8

const (
	KindNone Kind = iota
	KindPlayer
	KindNpc
	KindBullet
	KindPickup
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindNpc:
		return "npc"
	case KindBullet:
		return "bullet"
	case KindPickup:
		return "pickup"
	}
	return "none"
}

type NpcRole string

const (
	RoleLeader   NpcRole = "leader"
	RoleFollower NpcRole = "follower"
)

// Records hold display-frame positions and directions: they are what
// observers see after a tick.

type PlayerRecord struct {
	ID        string  `msgpack:"id" json:"id"`
	SessionID string  `msgpack:"sessionId" json:"sessionId"`
	X         float64 `msgpack:"x" json:"x"`
	Y         float64 `msgpack:"y" json:"y"`
	DirX      float64 `msgpack:"dirx" json:"dirx"`
	DirY      float64 `msgpack:"diry" json:"diry"`
	Color     string  `msgpack:"color" json:"color"`
	Name      string  `msgpack:"name" json:"name"`
	Avatar    int     `msgpack:"avatar" json:"avatar"`
	Score     int     `msgpack:"score" json:"score"`
	Health    float64 `msgpack:"health" json:"health"`
}

type NpcRecord struct {
	ID      string  `msgpack:"id" json:"id"`
	Owner   string  `msgpack:"owner" json:"owner"`
	Role    NpcRole `msgpack:"role" json:"role"`
	SquadID string  `msgpack:"squad" json:"squad"`
	X       float64 `msgpack:"x" json:"x"`
	Y       float64 `msgpack:"y" json:"y"`
	Size    float64 `msgpack:"size" json:"size"`
	Shape   string  `msgpack:"shape" json:"shape"`
	Color   string  `msgpack:"color" json:"color"`
	DirX    float64 `msgpack:"dirx" json:"dirx"`
	DirY    float64 `msgpack:"diry" json:"diry"`
	Power   float64 `msgpack:"power" json:"power"`
	Health  float64 `msgpack:"health" json:"health"`
	Dead    bool    `msgpack:"dead" json:"dead"`
}

type BulletRecord struct {
	ID        string    `msgpack:"id" json:"id"`
	Type      string    `msgpack:"type" json:"type"`
	X         float64   `msgpack:"x" json:"x"`
	Y         float64   `msgpack:"y" json:"y"`
	DirX      float64   `msgpack:"dirx" json:"dirx"`
	DirY      float64   `msgpack:"diry" json:"diry"`
	Power     float64   `msgpack:"power" json:"power"`
	Speed     float64   `msgpack:"speed" json:"speed"`
	OwnerID   string    `msgpack:"owner" json:"owner"`
	OwnerKind Kind      `msgpack:"ownerKind" json:"ownerKind"`
	SpawnedAt time.Time `msgpack:"-" json:"-"`
}

type PickupRecord struct {
	ID        string    `msgpack:"id" json:"id"`
	X         float64   `msgpack:"x" json:"x"`
	Y         float64   `msgpack:"y" json:"y"`
	Heal      float64   `msgpack:"heal" json:"heal"`
	OwnerID   string    `msgpack:"owner" json:"owner"`
	CreatedAt time.Time `msgpack:"-" json:"-"`
}

var (
	kindComponent   = donburi.NewComponentType[Kind]()
	playerComponent = donburi.NewComponentType[PlayerRecord]()
	npcComponent    = donburi.NewComponentType[NpcRecord]()
	bulletComponent = donburi.NewComponentType[BulletRecord]()
	pickupComponent = donburi.NewComponentType[PickupRecord]()
)

// Store keeps the networked records in a donburi world, indexed by entity
// id. Pointers returned by the getters are valid until the next add or
// remove.
type Store struct {
	world donburi.World
	index map[string]donburi.Entity
}

func NewStore() *Store {
	return &Store{
		world: donburi.NewWorld(),
		index: make(map[string]donburi.Entity),
	}
}

func (s *Store) create(id string, kind Kind, comp donburi.IComponentType) *donburi.Entry {
	if old, ok := s.index[id]; ok && s.world.Valid(old) {
		s.world.Remove(old)
	}
	e := s.world.Create(kindComponent, comp)
	s.index[id] = e
	entry := s.world.Entry(e)
	kindComponent.Set(entry, &kind)
	return entry
}

func (s *Store) entry(id string, kind Kind) *donburi.Entry {
	e, ok := s.index[id]
	if !ok || !s.world.Valid(e) {
		return nil
	}
	entry := s.world.Entry(e)
	if *kindComponent.Get(entry) != kind {
		return nil
	}
	return entry
}

// Kind returns the variant stored for id, or KindNone.
func (s *Store) Kind(id string) Kind {
	e, ok := s.index[id]
	if !ok || !s.world.Valid(e) {
		return KindNone
	}
	return *kindComponent.Get(s.world.Entry(e))
}

func (s *Store) Has(id string) bool {
	return s.Kind(id) != KindNone
}

// Remove deletes the record for id and reports whether one existed.
func (s *Store) Remove(id string) bool {
	e, ok := s.index[id]
	if !ok {
		return false
	}
	delete(s.index, id)
	if !s.world.Valid(e) {
		return false
	}
	s.world.Remove(e)
	return true
}

func (s *Store) Len() int { return len(s.index) }

func (s *Store) AddPlayer(rec PlayerRecord) {
	playerComponent.Set(s.create(rec.ID, KindPlayer, playerComponent), &rec)
}

func (s *Store) AddNpc(rec NpcRecord) {
	npcComponent.Set(s.create(rec.ID, KindNpc, npcComponent), &rec)
}

func (s *Store) AddBullet(rec BulletRecord) {
	bulletComponent.Set(s.create(rec.ID, KindBullet, bulletComponent), &rec)
}

func (s *Store) AddPickup(rec PickupRecord) {
	pickupComponent.Set(s.create(rec.ID, KindPickup, pickupComponent), &rec)
}

func (s *Store) Player(id string) *PlayerRecord {
	if entry := s.entry(id, KindPlayer); entry != nil {
		return playerComponent.Get(entry)
	}
	return nil
}

func (s *Store) Npc(id string) *NpcRecord {
	if entry := s.entry(id, KindNpc); entry != nil {
		return npcComponent.Get(entry)
	}
	return nil
}

func (s *Store) Bullet(id string) *BulletRecord {
	if entry := s.entry(id, KindBullet); entry != nil {
		return bulletComponent.Get(entry)
	}
	return nil
}

func (s *Store) Pickup(id string) *PickupRecord {
	if entry := s.entry(id, KindPickup); entry != nil {
		return pickupComponent.Get(entry)
	}
	return nil
}

// IDs lists the ids of one kind in sorted order.
func (s *Store) IDs(kind Kind) []string {
	var out []string
	for id := range s.index {
		if s.Kind(id) == kind {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Store) Players() []PlayerRecord {
	ids := s.IDs(KindPlayer)
	out := make([]PlayerRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.Player(id))
	}
	return out
}

func (s *Store) Npcs() []NpcRecord {
	ids := s.IDs(KindNpc)
	out := make([]NpcRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.Npc(id))
	}
	return out
}

func (s *Store) Bullets() []BulletRecord {
	ids := s.IDs(KindBullet)
	out := make([]BulletRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.Bullet(id))
	}
	return out
}

func (s *Store) Pickups() []PickupRecord {
	ids := s.IDs(KindPickup)
	out := make([]PickupRecord, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.Pickup(id))
	}
	return out
}
