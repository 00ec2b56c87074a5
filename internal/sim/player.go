package sim

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"arena-server/internal/physics"
)

var (
	ErrNoPlayer      = errors.New("session has no player")
	ErrAlreadyJoined = errors.New("session already has a player")
)

type autopilotState uint8

const (
	autoIdle autopilotState = iota
	autoMoving
)

// pilot is the controller state kept per player.
type pilot struct {
	sessionID   string
	lastInput   time.Time
	lastArrival time.Time
	state       autopilotState
	targetX     float64
	targetY     float64
	started     time.Time
	lastShot    time.Time
}

// JoinOptions are the optional fields a client may send on join. X and Y
// are display-frame coordinates.
type JoinOptions struct {
	X, Y   *float64
	Name   string
	Avatar int
}

// ShootInput is a shoot request. The client position is advisory; bullets
// always leave from the server's position.
type ShootInput struct {
	Type     string
	X, Y     float64
	DirX     float64
	DirY     float64
	Power    float64
	Velocity float64
}

// Players is the player controller: joins and leaves, movement input, the
// idle autopilot, shooting, and bullet hits on NPCs.
type Players struct {
	palette  *ColorPool
	pilots   map[string]*pilot
	sessions map[string]string
}

func NewPlayers(palette *ColorPool) *Players {
	return &Players{
		palette:  palette,
		pilots:   make(map[string]*pilot),
		sessions: make(map[string]string),
	}
}

func (p *Players) Count() int { return len(p.sessions) }

// PlayerID maps a session to its player id.
func (p *Players) PlayerID(sessionID string) (string, bool) {
	id, ok := p.sessions[sessionID]
	return id, ok
}

// Autopiloting reports whether the player is currently on autopilot.
func (p *Players) Autopiloting(playerID string) bool {
	pl, ok := p.pilots[playerID]
	return ok && pl.state == autoMoving
}

// Join creates the body and record of a new player.
func (p *Players) Join(w *World, sessionID string, opts JoinOptions) (string, error) {
	if _, ok := p.sessions[sessionID]; ok {
		return "", ErrAlreadyJoined
	}
	color, err := p.palette.Acquire()
	if err != nil {
		return "", err
	}
	t := w.Tuning
	a := w.Arena()

	var x, y float64
	if opts.X != nil && opts.Y != nil {
		x, y = a.ToPhysics(physics.Sanitize(*opts.X), physics.Sanitize(*opts.Y))
		x, y = a.ClampToArena(x, y, t.PlayerRadius)
	} else {
		x, y = w.RandomPoint(t.WallMargin)
	}

	id := w.NextID("player")
	if _, err := w.Physics.Add(physics.BodyDef{
		Label:    id,
		Category: physics.CategoryPlayer,
		Shape:    physics.ShapeCircle,
		X:        x,
		Y:        y,
		Radius:   t.PlayerRadius,
	}); err != nil {
		p.palette.Release(color)
		return "", fmt.Errorf("join %s: %w", sessionID, err)
	}

	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("Player %d", len(p.sessions)+1)
	}
	dx, dy := a.ToDisplay(x, y)
	w.Store.AddPlayer(PlayerRecord{
		ID:        id,
		SessionID: sessionID,
		X:         dx,
		Y:         dy,
		DirX:      1,
		Color:     color,
		Name:      name,
		Avatar:    opts.Avatar,
		Health:    t.PlayerMaxHealth,
	})
	now := w.Now()
	p.sessions[sessionID] = id
	p.pilots[id] = &pilot{sessionID: sessionID, lastInput: now, lastArrival: now}
	w.Log.Info("player joined", zap.String("session", sessionID), zap.String("player", id), zap.String("color", color))
	return id, nil
}

// Leave returns the player's color, removes its bullets, then its body and
// record. It reports false for unknown sessions.
func (p *Players) Leave(w *World, sessionID string) bool {
	id, ok := p.sessions[sessionID]
	if !ok {
		return false
	}
	delete(p.sessions, sessionID)
	delete(p.pilots, id)
	if rec := w.Store.Player(id); rec != nil {
		p.palette.Release(rec.Color)
	}
	n := w.RemoveOwnedBullets(id)
	w.Destroy(id)
	w.Log.Info("player left", zap.String("session", sessionID), zap.String("player", id), zap.Int("bullets", n))
	return true
}

func (p *Players) lookup(w *World, sessionID string) (string, *pilot, *physics.Body, bool) {
	id, ok := p.sessions[sessionID]
	if !ok {
		return "", nil, nil, false
	}
	b, ok := w.Physics.Body(id)
	if !ok || w.Store.Player(id) == nil {
		return "", nil, nil, false
	}
	return id, p.pilots[id], b, true
}

// Move applies a display-frame movement vector. Nonzero input sets velocity
// at once and cancels the autopilot; zero input stops the player but leaves
// the idle timer running.
func (p *Players) Move(w *World, sessionID string, x, y float64) error {
	id, pl, b, ok := p.lookup(w, sessionID)
	if !ok {
		return ErrNoPlayer
	}
	if b.Uncontrollable {
		return nil
	}
	x, y = physics.DirToPhysics(physics.Sanitize(x), physics.Sanitize(y))
	l := math.Hypot(x, y)
	if l < 1e-9 {
		if pl.state != autoMoving {
			b.VX, b.VY = 0, 0
		}
		return nil
	}
	if l > 1 {
		x, y = x/l, y/l
	}
	speed := w.Tuning.PlayerSpeed
	b.VX, b.VY = x*speed, y*speed
	b.Angle = math.Atan2(y, x)
	pl.lastInput = w.Now()
	pl.state = autoIdle

	rec := w.Store.Player(id)
	rec.DirX, rec.DirY = physics.DirToDisplay(physics.Normalize(x, y))
	return nil
}

// Shoot fires a bullet owned by the session's player. It returns the bullet
// id, or "" when the shot was refused by the cooldown.
func (p *Players) Shoot(w *World, sessionID string, in ShootInput) (string, error) {
	id, pl, b, ok := p.lookup(w, sessionID)
	if !ok {
		return "", ErrNoPlayer
	}
	t := w.Tuning
	now := w.Now()
	if t.ShotCooldown > 0 && !pl.lastShot.IsZero() && now.Sub(pl.lastShot) < t.ShotCooldown {
		return "", nil
	}

	dx, dy := physics.Normalize(physics.DirToPhysics(in.DirX, in.DirY))
	if dx == 0 && dy == 0 {
		rec := w.Store.Player(id)
		dx, dy = physics.Normalize(physics.DirToPhysics(rec.DirX, rec.DirY))
		if dx == 0 && dy == 0 {
			dx = 1
		}
	}
	power := physics.Sanitize(in.Power)
	if power <= 0 {
		power = t.BulletPower
	}
	power = math.Min(power, t.BulletMaxPower)
	speed := physics.Sanitize(in.Velocity)
	if speed <= 0 {
		speed = t.BulletSpeed
	}
	speed = physics.Clamp(speed, t.BulletMinSpeed, t.BulletMaxSpeed)

	offset := b.Radius + t.BulletRadius + 2
	bid, err := w.SpawnBullet(BulletSpec{
		Type:      in.Type,
		X:         b.X + dx*offset,
		Y:         b.Y + dy*offset,
		DirX:      dx,
		DirY:      dy,
		Power:     power,
		Speed:     speed,
		OwnerID:   id,
		OwnerKind: KindPlayer,
	})
	if err != nil {
		return "", err
	}
	pl.lastShot = now
	return bid, nil
}

// PositionSync accepts a client-reported display-frame position when it is
// within SyncTolerance of the server's. It reports whether it was applied.
func (p *Players) PositionSync(w *World, sessionID string, x, y float64) bool {
	_, _, b, ok := p.lookup(w, sessionID)
	if !ok {
		return false
	}
	px, py := w.Arena().ToPhysics(physics.Sanitize(x), physics.Sanitize(y))
	if physics.Distance(px, py, b.X, b.Y) > w.Tuning.SyncTolerance {
		return false
	}
	px, py = w.Arena().ClampToArena(px, py, b.Radius)
	w.Physics.SetPosition(b, px, py)
	return true
}

// Update runs the autopilot of every player and culls player bullets that
// left the arena.
func (p *Players) Update(w *World) {
	now := w.Now()
	t := w.Tuning
	for _, id := range w.Store.IDs(KindPlayer) {
		pl, ok := p.pilots[id]
		if !ok {
			continue
		}
		b, ok := w.Physics.Body(id)
		if !ok || b.Uncontrollable {
			continue
		}
		switch pl.state {
		case autoIdle:
			idleSince := pl.lastInput
			if pl.lastArrival.After(idleSince) {
				idleSince = pl.lastArrival
			}
			if now.Sub(idleSince) < t.IdleTimeout {
				continue
			}
			pl.targetX, pl.targetY = sampleWaypoint(w, b.X, b.Y)
			pl.state = autoMoving
			pl.started = now
		case autoMoving:
			d := physics.Distance(b.X, b.Y, pl.targetX, pl.targetY)
			if d < t.ArriveEpsilon || now.Sub(pl.started) > t.AutoMaxDuration {
				b.VX, b.VY = 0, 0
				pl.state = autoIdle
				pl.lastArrival = now
				continue
			}
		}
		if pl.state == autoMoving {
			nx, ny := physics.Normalize(pl.targetX-b.X, pl.targetY-b.Y)
			b.VX, b.VY = nx*t.AutoSpeed, ny*t.AutoSpeed
			b.Angle = math.Atan2(ny, nx)
			rec := w.Store.Player(id)
			rec.DirX, rec.DirY = physics.DirToDisplay(nx, ny)
		}
	}
	w.CullBullets(KindPlayer)
}

// sampleWaypoint picks a random reachable point at least AutoMinTravel away.
// Near a wall that may be impossible, so the farthest candidate is kept.
func sampleWaypoint(w *World, x, y float64) (float64, float64) {
	t := w.Tuning
	a := w.Arena()
	bestX, bestY, bestD := x, y, -1.0
	for i := 0; i < t.AutoAttempts; i++ {
		ang := w.Rand.Float64() * 2 * math.Pi
		dist := t.AutoMinTravel + w.Rand.Float64()*(t.AutoMaxTravel-t.AutoMinTravel)
		cx, cy := a.ClampToArena(x+math.Cos(ang)*dist, y+math.Sin(ang)*dist, t.WallMargin)
		d := physics.Distance(x, y, cx, cy)
		if d >= t.AutoMinTravel {
			return cx, cy
		}
		if d > bestD {
			bestX, bestY, bestD = cx, cy, d
		}
	}
	return bestX, bestY
}

// HitResult describes a bullet striking an NPC.
type HitResult struct {
	Hit       bool
	Killed    bool
	Damage    float64
	Reward    int
	NpcID     string
	ShooterID string
	// X and Y are the NPC's physics-frame position.
	X, Y float64
}

// ResolveBulletHitNpc applies a player bullet to an NPC. Self-owned and
// NPC-owned bullets are ignored and keep flying; every other bullet is
// destroyed whether or not it did damage.
func (p *Players) ResolveBulletHitNpc(w *World, bulletID, npcID string) HitResult {
	bullet := w.Store.Bullet(bulletID)
	if bullet == nil || bullet.OwnerID == npcID || bullet.OwnerKind != KindPlayer {
		return HitResult{}
	}
	shooter, power := bullet.OwnerID, bullet.Power

	npc := w.Store.Npc(npcID)
	if npc == nil || npc.Dead {
		w.Destroy(bulletID)
		return HitResult{}
	}
	t := w.Tuning
	dmg := power
	if npc.Role == RoleLeader {
		dmg *= t.LeaderDamageRatio
	}
	npc.Health = math.Max(0, npc.Health-dmg)
	res := HitResult{Hit: true, Damage: dmg, NpcID: npcID, ShooterID: shooter, Killed: npc.Health <= 0}
	if b, ok := w.Physics.Body(npcID); ok {
		res.X, res.Y = b.X, b.Y
	}
	res.Reward = t.HitReward
	if res.Killed {
		res.Reward = t.KillReward
	}
	if rec := w.Store.Player(shooter); rec != nil {
		rec.Score += res.Reward
	}
	w.Destroy(bulletID)
	return res
}

// DamagePlayer applies an NPC bullet to a player. Player bullets pass
// through players. A player brought to zero health respawns at full health.
// It reports whether damage was applied.
func (p *Players) DamagePlayer(w *World, bulletID, playerID string) bool {
	bullet := w.Store.Bullet(bulletID)
	if bullet == nil || bullet.OwnerID == playerID || bullet.OwnerKind != KindNpc {
		return false
	}
	power := bullet.Power
	rec := w.Store.Player(playerID)
	if rec == nil {
		return false
	}
	t := w.Tuning
	rec.Health = physics.Clamp(rec.Health-power, 0, t.PlayerMaxHealth)
	died := rec.Health <= 0
	w.Destroy(bulletID)
	if died {
		p.respawn(w, playerID)
	}
	return true
}

func (p *Players) respawn(w *World, id string) {
	rec := w.Store.Player(id)
	b, ok := w.Physics.Body(id)
	if rec == nil || !ok {
		return
	}
	x, y := w.RandomPoint(w.Tuning.WallMargin)
	w.Physics.SetPosition(b, x, y)
	b.VX, b.VY = 0, 0
	rec.Health = w.Tuning.PlayerMaxHealth
	rec.X, rec.Y = w.Arena().ToDisplay(x, y)
	if pl, ok := p.pilots[id]; ok {
		now := w.Now()
		pl.state = autoIdle
		pl.lastArrival = now
	}
	w.Log.Debug("player respawned", zap.String("player", id))
}

// Heal adds health to a player, clamped to the maximum.
func (p *Players) Heal(w *World, id string, amount float64) {
	if rec := w.Store.Player(id); rec != nil {
		rec.Health = physics.Clamp(rec.Health+amount, 0, w.Tuning.PlayerMaxHealth)
	}
}
