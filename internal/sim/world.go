// Package sim holds the room-scoped simulation: entity records, the player
// controller, NPC squads with formation, election and combat, pickups, and
// the deferred-task scheduler that backs every timer.
package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"arena-server/internal/physics"
)

// World pairs the physics world with the record store. Every entity that has
// a body has exactly one record under the same id.
type World struct {
	Physics   *physics.World
	Store     *Store
	Scheduler *Scheduler
	Clock     Clock
	Rand      *rand.Rand
	Log       *zap.Logger
	Tuning    Tuning

	counters map[string]int
}

func NewWorld(t Tuning, clock Clock, rng *rand.Rand, log *zap.Logger) *World {
	if log == nil {
		log = zap.NewNop()
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &World{
		Physics:   physics.NewWorld(t.Physics, log),
		Store:     NewStore(),
		Scheduler: NewScheduler(clock),
		Clock:     clock,
		Rand:      rng,
		Log:       log,
		Tuning:    t,
		counters:  make(map[string]int),
	}
}

func (w *World) Now() time.Time { return w.Clock.Now() }

func (w *World) Arena() physics.Arena { return w.Tuning.Physics.Arena }

// NextID returns prefix-N with N counting up per prefix. Ids are never
// reused within a world.
func (w *World) NextID(prefix string) string {
	w.counters[prefix]++
	return fmt.Sprintf("%s-%d", prefix, w.counters[prefix])
}

// Destroy removes the body, then the record. A missing body is logged and
// does not stop the record from being removed.
func (w *World) Destroy(id string) bool {
	if err := w.Physics.Remove(id); err != nil {
		if errors.Is(err, physics.ErrBodyNotFound) {
			w.Log.Debug("destroy without body", zap.String("id", id))
		} else {
			w.Log.Warn("remove body", zap.String("id", id), zap.Error(err))
		}
	}
	return w.Store.Remove(id)
}

// Alive reports whether id has both a body and a record.
func (w *World) Alive(id string) bool {
	_, ok := w.Physics.Body(id)
	return ok && w.Store.Has(id)
}

// RandomPoint samples a point inside the arena, margin away from the walls.
func (w *World) RandomPoint(margin float64) (float64, float64) {
	a := w.Arena()
	return margin + w.Rand.Float64()*(a.Width-2*margin),
		margin + w.Rand.Float64()*(a.Height-2*margin)
}

// SyncRecords copies post-step body state into records in the display
// frame. Records whose body is gone are dropped.
func (w *World) SyncRecords() {
	a := w.Arena()
	for _, id := range w.Store.IDs(KindPlayer) {
		b, ok := w.Physics.Body(id)
		if !ok {
			w.Store.Remove(id)
			continue
		}
		rec := w.Store.Player(id)
		rec.X, rec.Y = a.ToDisplay(b.X, b.Y)
	}
	for _, id := range w.Store.IDs(KindNpc) {
		b, ok := w.Physics.Body(id)
		if !ok {
			w.Store.Remove(id)
			continue
		}
		rec := w.Store.Npc(id)
		rec.X, rec.Y = a.ToDisplay(b.X, b.Y)
		rec.DirX, rec.DirY = physics.DirToDisplay(math.Cos(b.Angle), math.Sin(b.Angle))
	}
	for _, id := range w.Store.IDs(KindBullet) {
		b, ok := w.Physics.Body(id)
		if !ok {
			w.Store.Remove(id)
			continue
		}
		rec := w.Store.Bullet(id)
		rec.X, rec.Y = a.ToDisplay(b.X, b.Y)
	}
	for _, id := range w.Store.IDs(KindPickup) {
		if _, ok := w.Physics.Body(id); !ok {
			w.Store.Remove(id)
		}
	}
}

// BulletSpec describes a bullet to spawn. Position and direction are in the
// physics frame.
type BulletSpec struct {
	Type       string
	X, Y       float64
	DirX, DirY float64
	Power      float64
	Speed      float64
	OwnerID    string
	OwnerKind  Kind
}

// SpawnBullet creates the bullet body and its record.
func (w *World) SpawnBullet(spec BulletSpec) (string, error) {
	id := w.NextID("bullet")
	b, err := w.Physics.Add(physics.BodyDef{
		Label:    id,
		Category: physics.CategoryBullet,
		Shape:    physics.ShapeCircle,
		X:        spec.X,
		Y:        spec.Y,
		Radius:   w.Tuning.BulletRadius,
	})
	if err != nil {
		return "", fmt.Errorf("spawn bullet: %w", err)
	}
	b.VX = spec.DirX * spec.Speed
	b.VY = spec.DirY * spec.Speed
	b.Angle = math.Atan2(spec.DirY, spec.DirX)

	a := w.Arena()
	x, y := a.ToDisplay(spec.X, spec.Y)
	dx, dy := physics.DirToDisplay(spec.DirX, spec.DirY)
	typ := spec.Type
	if typ == "" {
		typ = "standard"
	}
	w.Store.AddBullet(BulletRecord{
		ID:        id,
		Type:      typ,
		X:         x,
		Y:         y,
		DirX:      dx,
		DirY:      dy,
		Power:     spec.Power,
		Speed:     spec.Speed,
		OwnerID:   spec.OwnerID,
		OwnerKind: spec.OwnerKind,
		SpawnedAt: w.Now(),
	})
	return id, nil
}

// CullBullets removes bullets of the given owner kind that have left the
// arena by more than the bullet margin, and returns how many went.
func (w *World) CullBullets(owner Kind) int {
	a := w.Arena()
	n := 0
	for _, id := range w.Store.IDs(KindBullet) {
		rec := w.Store.Bullet(id)
		if rec.OwnerKind != owner {
			continue
		}
		b, ok := w.Physics.Body(id)
		if !ok || !a.Contains(b.X, b.Y, w.Tuning.BulletMargin) {
			w.Destroy(id)
			n++
		}
	}
	return n
}

// RemoveOwnedBullets destroys every bullet fired by owner.
func (w *World) RemoveOwnedBullets(owner string) int {
	n := 0
	for _, id := range w.Store.IDs(KindBullet) {
		if w.Store.Bullet(id).OwnerID == owner {
			w.Destroy(id)
			n++
		}
	}
	return n
}

// Clear removes every record of the given kinds together with its body.
func (w *World) Clear(kinds ...Kind) {
	for _, k := range kinds {
		for _, id := range w.Store.IDs(k) {
			w.Destroy(id)
		}
	}
}
