package sim

import (
	"fmt"

	"arena-server/internal/physics"
)

// Pickups manages healing drops left behind by dead NPCs.
type Pickups struct {
	Spawned   int
	Collected int
	Expired   int
}

// Spawn drops a pickup at a physics-frame position. ownerID is the player
// whose kill created it.
func (pk *Pickups) Spawn(w *World, x, y float64, ownerID string) (string, error) {
	t := w.Tuning
	x, y = w.Arena().ClampToArena(x, y, t.PickupRadius)
	id := w.NextID("pickup")
	if _, err := w.Physics.Add(physics.BodyDef{
		Label:    id,
		Category: physics.CategoryPickup,
		Shape:    physics.ShapeCircle,
		X:        x,
		Y:        y,
		Radius:   t.PickupRadius,
		Static:   true,
	}); err != nil {
		return "", fmt.Errorf("spawn pickup: %w", err)
	}
	dx, dy := w.Arena().ToDisplay(x, y)
	w.Store.AddPickup(PickupRecord{
		ID:        id,
		X:         dx,
		Y:         dy,
		Heal:      t.PickupHeal,
		OwnerID:   ownerID,
		CreatedAt: w.Now(),
	})
	pk.Spawned++
	return id, nil
}

// Collect heals the player and removes the pickup. Collecting a pickup made
// by someone else earns the bonus. It reports false if either side is gone.
func (pk *Pickups) Collect(w *World, players *Players, pickupID, playerID string) bool {
	pickup := w.Store.Pickup(pickupID)
	player := w.Store.Player(playerID)
	if pickup == nil || player == nil {
		return false
	}
	heal, owner := pickup.Heal, pickup.OwnerID
	if owner != playerID {
		player.Score += w.Tuning.PickupBonus
	}
	players.Heal(w, playerID, heal)
	w.Destroy(pickupID)
	pk.Collected++
	return true
}

// Sweep removes pickups older than the pickup lifetime.
func (pk *Pickups) Sweep(w *World) int {
	now := w.Now()
	n := 0
	for _, id := range w.Store.IDs(KindPickup) {
		if now.Sub(w.Store.Pickup(id).CreatedAt) >= w.Tuning.PickupLifetime {
			w.Destroy(id)
			n++
		}
	}
	pk.Expired += n
	return n
}
