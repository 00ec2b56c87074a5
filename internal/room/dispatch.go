package room

import (
	"go.uber.org/zap"

	"arena-server/internal/physics"
	"arena-server/internal/sim"
)

// dispatch routes the contacts of the last physics step. Bullets are handled
// before pickups, whichever side of the pair they are on.
func (r *Room) dispatch(contacts []physics.Contact) {
	s := r.world.Store
	for _, c := range contacts {
		ka, kb := s.Kind(c.A), s.Kind(c.B)
		switch {
		case ka == sim.KindBullet:
			r.bulletContact(c.A, c.B, kb)
		case kb == sim.KindBullet:
			r.bulletContact(c.B, c.A, ka)
		case ka == sim.KindPickup:
			r.pickupContact(c.A, c.B, kb)
		case kb == sim.KindPickup:
			r.pickupContact(c.B, c.A, ka)
		}
	}
}

func (r *Room) bulletContact(bullet, other string, kind sim.Kind) {
	w := r.world
	rec := w.Store.Bullet(bullet)
	if rec == nil {
		// Already spent on an earlier contact this tick.
		return
	}
	switch {
	case physics.IsWall(other):
		w.Destroy(bullet)

	case kind == sim.KindNpc:
		res := r.players.ResolveBulletHitNpc(w, bullet, other)
		if !res.Hit {
			return
		}
		x, y := w.Arena().ToDisplay(res.X, res.Y)
		var squad string
		if s := r.squads.SquadOf(other); s != nil {
			squad = s.ID
		}
		if !res.Killed {
			r.emit(Event{Type: EventHit, Actor: res.ShooterID, Target: other, Squad: squad, X: x, Y: y, Amount: res.Damage})
			return
		}
		sim.KillNpc(w, other)
		r.emit(Event{Type: EventKill, Actor: res.ShooterID, Target: other, Squad: squad, X: x, Y: y, Amount: float64(res.Reward)})
		if _, err := r.pickups.Spawn(w, res.X, res.Y, res.ShooterID); err != nil {
			r.log.Warn("pickup spawn", zap.String("npc", other), zap.Error(err))
		}

	case kind == sim.KindPlayer:
		owner, power := rec.OwnerID, rec.Power
		var before float64
		if p := w.Store.Player(other); p != nil {
			before = p.Health
		}
		if !r.players.DamagePlayer(w, bullet, other) {
			return
		}
		p := w.Store.Player(other)
		x, y := p.X, p.Y
		if before-power <= 0 {
			r.emit(Event{Type: EventRespawn, Actor: owner, Target: other, X: x, Y: y})
			return
		}
		r.emit(Event{Type: EventDamage, Actor: owner, Target: other, X: x, Y: y, Amount: power})
	}
}

func (r *Room) pickupContact(pickup, other string, kind sim.Kind) {
	if kind != sim.KindPlayer {
		return
	}
	w := r.world
	rec := w.Store.Pickup(pickup)
	if rec == nil {
		return
	}
	x, y, heal := rec.X, rec.Y, rec.Heal
	if r.pickups.Collect(w, r.players, pickup, other) {
		r.emit(Event{Type: EventPickup, Actor: other, Target: pickup, X: x, Y: y, Amount: heal})
	}
}
