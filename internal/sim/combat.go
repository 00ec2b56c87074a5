package sim

import (
	"math"
	"time"

	"go.uber.org/zap"

	"arena-server/internal/physics"
)

// combatMask is what a combat ray can stop on. Only players are targets;
// walls and other NPCs block the line of fire.
const combatMask = physics.CategoryWall | physics.CategoryPlayer | physics.CategoryNpc

type gunner struct {
	lastX, lastY float64
	heading      float64
	nextShot     time.Time
}

// Combat decides when NPCs fire. Headings come from how far each NPC moved
// since the previous tick, so knockback does not swing its aim.
type Combat struct {
	gunners map[string]*gunner
}

func NewCombat() *Combat {
	return &Combat{gunners: make(map[string]*gunner)}
}

// Heading returns the tracked movement heading of npc id.
func (c *Combat) Heading(id string) (float64, bool) {
	g, ok := c.gunners[id]
	if !ok {
		return 0, false
	}
	return g.heading, true
}

// Update lets every live squad member fire if its cooldown allows and it has
// a target. It returns the ids of the bullets fired.
func (c *Combat) Update(w *World, squads []*Squad) []string {
	var fired []string
	for _, s := range squads {
		for _, id := range s.Members() {
			if !npcAlive(w, id) {
				continue
			}
			b, _ := w.Physics.Body(id)
			g, ok := c.gunners[id]
			if !ok {
				g = &gunner{lastX: b.X, lastY: b.Y, heading: b.Angle}
				c.gunners[id] = g
			}
			if dx, dy := b.X-g.lastX, b.Y-g.lastY; math.Hypot(dx, dy) > w.Tuning.HeadingEpsilon {
				g.heading = math.Atan2(dy, dx)
			}
			g.lastX, g.lastY = b.X, b.Y

			if w.Now().Before(g.nextShot) {
				continue
			}
			if bid, ok := c.tryFire(w, id, b, g, id == s.LeaderID); ok {
				fired = append(fired, bid)
			}
		}
	}
	return fired
}

func (c *Combat) tryFire(w *World, id string, b *physics.Body, g *gunner, leader bool) (string, bool) {
	t := w.Tuning
	var dx, dy float64
	cooldown := t.FollowerCooldown

	if leader {
		pid, ok := nearestPlayer(w, b.X, b.Y, t.LeaderFireRange)
		if !ok {
			return "", false
		}
		pb, _ := w.Physics.Body(pid)
		dx, dy = physics.Normalize(pb.X-b.X, pb.Y-b.Y)
		cooldown = t.LeaderCooldown
	} else {
		if _, ok := c.detectPlayer(w, id, b.X, b.Y, g.heading); !ok {
			return "", false
		}
		dx, dy = math.Cos(g.heading), math.Sin(g.heading)
	}
	if dx == 0 && dy == 0 {
		return "", false
	}

	power := t.NpcBulletPower
	if rec := w.Store.Npc(id); rec != nil {
		power = rec.Power
	}
	offset := b.Radius + t.BulletRadius + 2
	bid, err := w.SpawnBullet(BulletSpec{
		Type:      "npc",
		X:         b.X + dx*offset,
		Y:         b.Y + dy*offset,
		DirX:      dx,
		DirY:      dy,
		Power:     power,
		Speed:     t.NpcBulletSpeed,
		OwnerID:   id,
		OwnerKind: KindNpc,
	})
	if err != nil {
		w.Log.Warn("npc fire", zap.String("npc", id), zap.Error(err))
		return "", false
	}
	g.nextShot = w.Now().Add(cooldown)
	return bid, true
}

// detectPlayer casts the combat fan along heading. Each ray stops at its
// first body; the closest ray whose first body is a player wins.
func (c *Combat) detectPlayer(w *World, self string, x, y, heading float64) (string, bool) {
	fan := w.Tuning.CombatFan
	best, bestDist := "", math.Inf(1)
	for _, a := range fan.Angles(heading) {
		hit, ok := w.Physics.Raycast(x, y, x+math.Cos(a)*fan.Length, y+math.Sin(a)*fan.Length, combatMask, self)
		if !ok || hit.Category != physics.CategoryPlayer || w.Store.Player(hit.Label) == nil {
			continue
		}
		if hit.Distance < bestDist {
			best, bestDist = hit.Label, hit.Distance
		}
	}
	return best, best != ""
}

func nearestPlayer(w *World, x, y, maxRange float64) (string, bool) {
	best, bestDist := "", maxRange
	for _, pid := range w.Store.IDs(KindPlayer) {
		pb, ok := w.Physics.Body(pid)
		if !ok {
			continue
		}
		if d := physics.Distance(x, y, pb.X, pb.Y); d <= bestDist {
			best, bestDist = pid, d
		}
	}
	return best, best != ""
}

// Cleanup culls NPC bullets that left the arena and forgets NPCs that are
// gone.
func (c *Combat) Cleanup(w *World) int {
	for id := range c.gunners {
		if !npcAlive(w, id) {
			delete(c.gunners, id)
		}
	}
	return w.CullBullets(KindNpc)
}
