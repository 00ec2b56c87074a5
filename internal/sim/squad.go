package sim

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"arena-server/internal/physics"
)

const npcOwner = "server"

type LeaderState uint8

const (
	LeaderRoam LeaderState = iota
	LeaderAvoid
)

func (s LeaderState) String() string {
	if s == LeaderAvoid {
		return "avoid"
	}
	return "roam"
}

type FollowState uint8

const (
	FollowFormation FollowState = iota
	FollowPursuit
	FollowReturn
)

func (s FollowState) String() string {
	switch s {
	case FollowPursuit:
		return "pursuit"
	case FollowReturn:
		return "return"
	}
	return "formation"
}

type follower struct {
	state      FollowState
	evadeUntil time.Time
	evadeSide  float64
}

type pursuit struct {
	playerID string
	started  time.Time
}

// Squad is one leader and its followers. The leader roams and watches for
// players; followers hold formation or chase a spotted player for a while.
type Squad struct {
	ID        string
	LeaderID  string
	Formation *Formation
	Color     string
	Dissolved bool

	leaderState LeaderState
	targetX     float64
	targetY     float64
	hasTarget   bool
	avoidUntil  time.Time
	pursuit     *pursuit
	followers   map[string]*follower
	hold        bool
}

// SpawnSquad creates a leader at (x, y) in the physics frame and n
// followers placed on their formation slots.
func SpawnSquad(w *World, typ FormationType, x, y float64, n int, color string) (*Squad, error) {
	t := w.Tuning
	s := &Squad{
		ID:        w.NextID("squad"),
		Color:     color,
		Formation: NewFormation(typ, t.FormationSpacing, t.FormationAngle, w.Rand),
		followers: make(map[string]*follower),
	}
	heading := w.Rand.Float64()*2*math.Pi - math.Pi

	s.LeaderID = w.NextID("npc")
	if err := spawnNpc(w, s.LeaderID, RoleLeader, s.ID, x, y, heading, color); err != nil {
		return nil, err
	}

	ids := make([]string, n)
	for i := range ids {
		ids[i] = w.NextID("npc")
	}
	s.Formation.Assign(ids)
	for _, id := range ids {
		fx, fy, _ := s.Formation.Target(id, x, y, heading)
		fx, fy = w.Arena().ClampToArena(fx, fy, t.FollowerSize)
		if err := spawnNpc(w, id, RoleFollower, s.ID, fx, fy, heading, color); err != nil {
			return nil, err
		}
		s.followers[id] = &follower{}
	}
	return s, nil
}

func spawnNpc(w *World, id string, role NpcRole, squadID string, x, y, heading float64, color string) error {
	t := w.Tuning
	size, health, shape := t.FollowerSize, t.FollowerHealth, "circle"
	if role == RoleLeader {
		size, health, shape = t.LeaderSize, t.LeaderHealth, "triangle"
	}
	b, err := w.Physics.Add(physics.BodyDef{
		Label:    id,
		Category: physics.CategoryNpc,
		Shape:    physics.ShapeCircle,
		X:        x,
		Y:        y,
		Radius:   size,
	})
	if err != nil {
		return fmt.Errorf("spawn npc %s: %w", id, err)
	}
	b.Angle = heading

	dx, dy := physics.DirToDisplay(math.Cos(heading), math.Sin(heading))
	px, py := w.Arena().ToDisplay(x, y)
	w.Store.AddNpc(NpcRecord{
		ID:      id,
		Owner:   npcOwner,
		Role:    role,
		SquadID: squadID,
		X:       px,
		Y:       py,
		Size:    size,
		Shape:   shape,
		Color:   color,
		DirX:    dx,
		DirY:    dy,
		Power:   t.NpcBulletPower,
		Health:  health,
	})
	return nil
}

// Members lists the leader (if any) followed by the roster.
func (s *Squad) Members() []string {
	var out []string
	if s.LeaderID != "" {
		out = append(out, s.LeaderID)
	}
	return append(out, s.Formation.Roster()...)
}

func (s *Squad) LeaderState() LeaderState { return s.leaderState }

// Waypoint returns the leader's current roaming target.
func (s *Squad) Waypoint() (float64, float64, bool) { return s.targetX, s.targetY, s.hasTarget }

// isMember reports whether label is this squad's leader or one of its
// followers. The leader steers around everything else.
func (s *Squad) isMember(label string) bool {
	return label == s.LeaderID || s.Formation.Contains(label)
}

// FollowState reports the behaviour state of follower id.
func (s *Squad) FollowState(id string) (FollowState, bool) {
	f, ok := s.followers[id]
	if !ok {
		return 0, false
	}
	return f.state, true
}

// PursuitTarget returns the player being chased, if any.
func (s *Squad) PursuitTarget() (string, bool) {
	if s.pursuit == nil {
		return "", false
	}
	return s.pursuit.playerID, true
}

// Holding reports whether followers are frozen waiting for a new leader.
func (s *Squad) Holding() bool { return s.hold }

func npcAlive(w *World, id string) bool {
	rec := w.Store.Npc(id)
	if rec == nil || rec.Dead || rec.Health <= 0 {
		return false
	}
	_, ok := w.Physics.Body(id)
	return ok
}

func (s *Squad) leaderAlive(w *World) bool {
	return s.LeaderID != "" && npcAlive(w, s.LeaderID)
}

// prune drops followers whose record or body went away.
func (s *Squad) prune(w *World) {
	for _, id := range s.Formation.Roster() {
		if !npcAlive(w, id) {
			s.Formation.Remove(id)
			delete(s.followers, id)
		}
	}
}

// Update runs one tick of leader roaming, player detection and follower
// steering.
func (s *Squad) Update(w *World) {
	s.prune(w)
	if s.hold || !s.leaderAlive(w) {
		for _, id := range s.Formation.Roster() {
			if b, ok := w.Physics.Body(id); ok {
				b.VX, b.VY = 0, 0
			}
		}
		return
	}
	s.updateLeader(w)
	s.detect(w)
	s.updateFollowers(w)
}

func (s *Squad) updateLeader(w *World) {
	t := w.Tuning
	b, _ := w.Physics.Body(s.LeaderID)
	if b.Uncontrollable {
		return
	}
	now := w.Now()

	if !s.hasTarget {
		s.resample(w, b, b.Angle)
	}
	if s.leaderState == LeaderAvoid && !now.Before(s.avoidUntil) {
		s.leaderState = LeaderRoam
	}
	if s.leaderState == LeaderRoam {
		if _, blocked := DetectObstacle(w.Physics, b.X, b.Y, b.Angle, t.ObstacleFan, s.isMember); blocked {
			heading := AvoidanceAngle(w.Rand, w.Physics, b.X, b.Y, b.Angle, t.ObstacleFan, t.AvoidMaxTurn, s.isMember)
			s.resample(w, b, heading)
			s.leaderState = LeaderAvoid
			s.avoidUntil = now.Add(t.AvoidDuration)
		}
	}
	if physics.Distance(b.X, b.Y, s.targetX, s.targetY) < t.WaypointEpsilon {
		s.resample(w, b, b.Angle)
	}
	steer(b, s.targetX, s.targetY, t.LeaderSpeed, t)
}

// resample picks the leader's next waypoint ahead of heading. A waypoint that
// clamps onto the leader's own position means a wall is ahead, so it turns
// around instead.
func (s *Squad) resample(w *World, b *physics.Body, heading float64) {
	t := w.Tuning
	x, y := SampleTarget(w.Rand, w.Arena(), b.X, b.Y, heading, t.WanderRadius, t.WanderSpread, t.WallMargin)
	if physics.Distance(b.X, b.Y, x, y) < t.WaypointEpsilon {
		x, y = SampleTarget(w.Rand, w.Arena(), b.X, b.Y, heading+math.Pi, t.WanderRadius, t.WanderSpread, t.WallMargin)
	}
	s.targetX, s.targetY, s.hasTarget = x, y, true
}

// detect arms a pursuit on the first player inside the leader's cone.
func (s *Squad) detect(w *World) {
	if s.pursuit != nil || s.Formation.Len() == 0 {
		return
	}
	t := w.Tuning
	lb, _ := w.Physics.Body(s.LeaderID)
	for _, pid := range w.Store.IDs(KindPlayer) {
		pb, ok := w.Physics.Body(pid)
		if !ok {
			continue
		}
		dx, dy := pb.X-lb.X, pb.Y-lb.Y
		d := math.Hypot(dx, dy)
		if d == 0 || d > t.DetectDistance {
			continue
		}
		if math.Abs(physics.NormalizeAngle(math.Atan2(dy, dx)-lb.Angle)) > t.DetectAngle {
			continue
		}
		s.pursuit = &pursuit{playerID: pid, started: w.Now()}
		for _, f := range s.followers {
			f.state = FollowPursuit
			f.evadeUntil = time.Time{}
		}
		w.Log.Debug("squad pursuit", zap.String("squad", s.ID), zap.String("player", pid))
		return
	}
}

func (s *Squad) endPursuit() {
	s.pursuit = nil
	for _, f := range s.followers {
		if f.state == FollowPursuit {
			f.state = FollowReturn
		}
	}
}

func (s *Squad) updateFollowers(w *World) {
	t := w.Tuning
	now := w.Now()
	lb, _ := w.Physics.Body(s.LeaderID)
	ceiling := math.Max(lb.Speed()*t.FollowerSpeedMul, t.MinFollowerCeil)

	var target *physics.Body
	if s.pursuit != nil {
		pb, ok := w.Physics.Body(s.pursuit.playerID)
		switch {
		case !ok || w.Store.Player(s.pursuit.playerID) == nil:
			s.endPursuit()
		case now.Sub(s.pursuit.started) > t.PursuitDuration:
			s.endPursuit()
		case physics.Distance(lb.X, lb.Y, pb.X, pb.Y) > t.PursuitMaxDist:
			s.endPursuit()
		default:
			target = pb
		}
	}

	for _, id := range s.Formation.Roster() {
		fb, ok := w.Physics.Body(id)
		if !ok || fb.Uncontrollable {
			continue
		}
		st, ok := s.followers[id]
		if !ok {
			st = &follower{}
			s.followers[id] = st
		}
		if st.state == FollowPursuit && target == nil {
			st.state = FollowReturn
		}

		switch st.state {
		case FollowPursuit:
			tx, ty := target.X, target.Y
			if !now.Before(st.evadeUntil) && physics.Distance(fb.X, fb.Y, tx, ty) < t.EvadeDistance {
				st.evadeUntil = now.Add(t.EvadeDuration)
				st.evadeSide = 1
				if w.Rand.Intn(2) == 0 {
					st.evadeSide = -1
				}
			}
			if now.Before(st.evadeUntil) {
				nx, ny := physics.Normalize(tx-fb.X, ty-fb.Y)
				tx = fb.X - ny*st.evadeSide*t.EvadeOffset
				ty = fb.Y + nx*st.evadeSide*t.EvadeOffset
			}
			steer(fb, tx, ty, ceiling, t)
		case FollowReturn:
			tx, ty, _ := s.Formation.Target(id, lb.X, lb.Y, lb.Angle)
			if physics.Distance(fb.X, fb.Y, tx, ty) < t.ReturnEpsilon {
				st.state = FollowFormation
			}
			steer(fb, tx, ty, ceiling, t)
		default:
			tx, ty, _ := s.Formation.Target(id, lb.X, lb.Y, lb.Angle)
			steer(fb, tx, ty, ceiling, t)
		}
	}
}

// steer is the shared movement law: speed grows with distance up to ceiling,
// stops dead inside StopEpsilon, and turns toward the target gradually.
func steer(b *physics.Body, tx, ty, ceiling float64, t Tuning) {
	dx, dy := tx-b.X, ty-b.Y
	d := math.Hypot(dx, dy)
	if d < t.StopEpsilon {
		b.VX, b.VY = 0, 0
		return
	}
	speed := math.Min(d*t.SteerGain, ceiling)
	b.VX = dx / d * speed
	b.VY = dy / d * speed
	b.Angle = physics.LerpAngle(b.Angle, math.Atan2(dy, dx), t.TurnLerp)
}

// promote makes follower id the leader.
func (s *Squad) promote(w *World, id string) {
	s.Formation.Remove(id)
	delete(s.followers, id)
	if rec := w.Store.Npc(id); rec != nil {
		rec.Role = RoleLeader
		rec.Shape = "triangle"
	}
	s.LeaderID = id
	s.leaderState = LeaderRoam
	s.hasTarget = false
	s.endPursuit()
}

// Release destroys every member of the squad.
func (s *Squad) Release(w *World) {
	for _, id := range s.Members() {
		w.Destroy(id)
	}
	s.Formation.Assign(nil)
	s.followers = make(map[string]*follower)
	s.LeaderID = ""
	s.Dissolved = true
}
