// Package room runs one arena match: it owns a simulation world, applies
// client commands between fixed-rate ticks and tears itself down once it has
// been empty for a while.
package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"arena-server/internal/config"
	"arena-server/internal/sim"
)

var (
	ErrRoomClosed     = errors.New("room closed")
	ErrUnknownMessage = errors.New("unknown message type")
	ErrTooManyRooms   = errors.New("room limit reached")
)

const (
	broadcastRate = 30 // state snapshots per second
	debugEvery    = 6  // ticks between debug body pushes
	inboxSize     = 256
)

var squadColors = []string{"#c0392b", "#8e44ad", "#16a085", "#d35400", "#2c3e50", "#7f8c8d"}

type Options struct {
	TickRate      int
	TeardownDelay time.Duration
	// InitialGrace is how long a new room waits for its first player.
	InitialGrace time.Duration
	// RespawnDelay is how long the room waits before topping its squads
	// back up after some were wiped out.
	RespawnDelay time.Duration
	Squads       int
	Followers    int
	Seed         int64
	Tuning       sim.Tuning
	Clock        sim.Clock
	Observer     Observer
}

func DefaultOptions() Options {
	return Options{
		TickRate:      60,
		TeardownDelay: 5 * time.Second,
		InitialGrace:  time.Minute,
		RespawnDelay:  10 * time.Second,
		Squads:        3,
		Followers:     4,
		Tuning:        sim.DefaultTuning(),
	}
}

// OptionsFromConfig maps the operator settings onto room options.
func OptionsFromConfig(cfg config.Config) Options {
	o := DefaultOptions()
	o.TickRate = cfg.Room.TickRate
	o.TeardownDelay = cfg.Room.TeardownDelay
	o.Squads = cfg.Room.SquadCount
	o.Followers = cfg.Room.FollowersPerSquad
	o.Seed = cfg.Room.Seed
	o.Tuning.ShotCooldown = cfg.Sim.ShotCooldown
	o.Tuning.Physics.WallStun = cfg.Sim.WallStun
	return o
}

type cmdKind uint8

const (
	cmdJoin cmdKind = iota
	cmdLeave
	cmdMessage
	cmdClose
)

type joinResult struct {
	id  string
	err error
}

type command struct {
	kind    cmdKind
	ctx     context.Context
	session string
	join    sim.JoinOptions
	msg     any
	reply   chan joinResult
}

// Room is a single match. All simulation state belongs to the goroutine
// running Run; other goroutines talk to it through Join, Leave, Deliver and
// Close.
type Room struct {
	id        string
	opts      Options
	log       *zap.Logger
	obs       Observer
	createdAt time.Time

	world   *sim.World
	players *sim.Players
	squads  *sim.Squads
	combat  *sim.Combat
	pickups sim.Pickups

	interval       time.Duration
	broadcastEvery uint64
	tick           uint64
	lastStep       time.Time
	spawned        int
	events         []Event
	debug          map[string]bool

	teardown *sim.Task
	respawn  *sim.Task

	disposing bool
	disposed  bool

	inbox chan command
	done  chan struct{}

	nPlayers atomic.Int32
	nNpcs    atomic.Int32
	lastTick atomic.Uint64
}

// New builds a room and runs its create hook: the arena walls go up and the
// initial squads spawn.
func New(id string, opts Options, log *zap.Logger) (*Room, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.TickRate <= 0 {
		opts.TickRate = 60
	}
	if opts.Clock == nil {
		opts.Clock = sim.SystemClock{}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log = log.With(zap.String("room", id))

	every := uint64(opts.TickRate / broadcastRate)
	if every == 0 {
		every = 1
	}
	r := &Room{
		id:             id,
		opts:           opts,
		log:            log,
		obs:            opts.Observer,
		createdAt:      opts.Clock.Now(),
		lastStep:       opts.Clock.Now(),
		world:          sim.NewWorld(opts.Tuning, opts.Clock, rand.New(rand.NewSource(seed)), log),
		players:        sim.NewPlayers(sim.NewColorPool(sim.DefaultPalette)),
		squads:         sim.NewSquads(),
		combat:         sim.NewCombat(),
		interval:       time.Second / time.Duration(opts.TickRate),
		broadcastEvery: every,
		debug:          make(map[string]bool),
		inbox:          make(chan command, inboxSize),
		done:           make(chan struct{}),
	}
	if err := r.create(); err != nil {
		return nil, fmt.Errorf("create room %s: %w", id, err)
	}
	return r, nil
}

func (r *Room) ID() string { return r.id }

// Done is closed once the room has been disposed.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) Info() Info {
	return Info{
		ID:        r.id,
		Players:   int(r.nPlayers.Load()),
		Npcs:      int(r.nNpcs.Load()),
		Tick:      r.lastTick.Load(),
		CreatedAt: r.createdAt,
	}
}

// Run drives the room until it is disposed or ctx ends. Commands are applied
// between ticks.
func (r *Room) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for !r.disposed {
		select {
		case <-ctx.Done():
			r.dispose("shutdown")
		case cmd := <-r.inbox:
			r.guard("inbox", func() { r.apply(cmd) })
		case <-ticker.C:
			r.step()
		}
	}
}

// Join adds a player for session and returns its id.
func (r *Room) Join(ctx context.Context, session string, opts sim.JoinOptions) (string, error) {
	reply := make(chan joinResult, 1)
	if err := r.send(ctx, command{kind: cmdJoin, ctx: ctx, session: session, join: opts, reply: reply}); err != nil {
		return "", err
	}
	select {
	case res := <-reply:
		return res.id, res.err
	case <-r.done:
		return "", ErrRoomClosed
	case <-ctx.Done():
		// The join may still be applied after we give up on it. Queue a
		// leave behind it so no player is left without a session.
		_ = r.send(context.Background(), command{kind: cmdLeave, session: session})
		return "", ctx.Err()
	}
}

func (r *Room) Leave(session string) {
	_ = r.send(context.Background(), command{kind: cmdLeave, session: session})
}

// Deliver queues a decoded client message. Messages are dropped rather than
// block the caller when the inbox is full.
func (r *Room) Deliver(session string, msg any) bool {
	select {
	case r.inbox <- command{kind: cmdMessage, session: session, msg: msg}:
		return true
	case <-r.done:
	default:
		r.log.Debug("inbox full, message dropped", zap.String("session", session))
	}
	return false
}

// Close asks the room to dispose itself.
func (r *Room) Close() {
	_ = r.send(context.Background(), command{kind: cmdClose})
}

func (r *Room) send(ctx context.Context, cmd command) error {
	select {
	case r.inbox <- cmd:
		return nil
	case <-r.done:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) apply(cmd command) {
	switch cmd.kind {
	case cmdJoin:
		if cmd.ctx != nil && cmd.ctx.Err() != nil {
			cmd.reply <- joinResult{err: cmd.ctx.Err()}
			return
		}
		id, err := r.join(cmd.session, cmd.join)
		cmd.reply <- joinResult{id: id, err: err}
	case cmdLeave:
		r.leave(cmd.session)
	case cmdMessage:
		r.handle(cmd.session, cmd.msg)
	case cmdClose:
		r.dispose("closed")
	}
}

func (r *Room) create() error {
	for i := 0; i < r.opts.Squads; i++ {
		if err := r.spawnSquad(); err != nil {
			return err
		}
	}
	r.armTeardown(r.opts.InitialGrace)
	r.nNpcs.Store(int32(len(r.world.Store.IDs(sim.KindNpc))))
	r.log.Info("room created", zap.Int("squads", r.squads.Len()))
	return nil
}

func (r *Room) spawnSquad() error {
	w := r.world
	n := r.spawned
	r.spawned++
	x, y := w.RandomPoint(w.Tuning.WallMargin * 2.5)
	typ := sim.AllFormations[n%len(sim.AllFormations)]
	_, err := r.squads.Spawn(w, typ, x, y, r.opts.Followers, squadColors[n%len(squadColors)])
	return err
}

func (r *Room) join(session string, opts sim.JoinOptions) (string, error) {
	if r.disposing {
		return "", ErrRoomClosed
	}
	id, err := r.players.Join(r.world, session, opts)
	if err != nil {
		// A pending teardown keeps its original deadline.
		return "", fmt.Errorf("join room %s: %w", r.id, err)
	}
	r.cancelTeardown()
	r.nPlayers.Store(int32(r.players.Count()))
	return id, nil
}

func (r *Room) leave(session string) {
	if r.disposing || !r.players.Leave(r.world, session) {
		return
	}
	delete(r.debug, session)
	r.nPlayers.Store(int32(r.players.Count()))
	if r.players.Count() == 0 {
		r.armTeardown(r.opts.TeardownDelay)
	}
}

func (r *Room) armTeardown(d time.Duration) {
	r.teardown.Cancel()
	r.teardown = r.world.Scheduler.After(d, "teardown", func() {
		if r.players.Count() == 0 {
			r.dispose("empty")
		}
	})
	r.log.Debug("teardown armed", zap.Duration("delay", d))
}

func (r *Room) cancelTeardown() {
	if r.teardown.Pending() {
		r.log.Debug("teardown cancelled")
	}
	r.teardown.Cancel()
	r.teardown = nil
}

// handle applies one client message. Messages from sessions without a live
// player are ignored.
func (r *Room) handle(session string, msg any) {
	if r.disposing {
		return
	}
	w := r.world
	var err error
	switch m := msg.(type) {
	case Move:
		err = r.players.Move(w, session, m.X, m.Y)
	case Shoot:
		_, err = r.players.Shoot(w, session, m.Input)
	case PositionSync:
		r.players.PositionSync(w, session, m.X, m.Y)
	case ToggleDebug:
		if _, ok := r.players.PlayerID(session); !ok {
			return
		}
		if m.Enabled {
			r.debug[session] = true
		} else {
			delete(r.debug, session)
		}
	case GetDebugBodies:
		if _, ok := r.players.PlayerID(session); ok {
			r.obs.DebugBodies(r.id, session, r.DebugBodies())
		}
	default:
		r.log.Debug("unhandled message", zap.String("session", session), zap.String("type", fmt.Sprintf("%T", msg)))
	}
	if err != nil && !errors.Is(err, sim.ErrNoPlayer) {
		r.log.Warn("message failed", zap.String("session", session), zap.Error(err))
	}
}

// step runs one tick. Each subsystem is guarded so a panic in one of them
// is logged and the rest of the tick still runs.
func (r *Room) step() {
	if r.disposed {
		return
	}
	w := r.world
	r.guard("scheduler", func() { w.Scheduler.RunDue() })
	if r.disposing {
		return
	}
	now := w.Now()
	dt := now.Sub(r.lastStep)
	r.lastStep = now
	r.guard("physics", func() { w.Physics.Step(dt.Seconds()) })
	r.guard("players", func() { r.players.Update(w) })
	r.guard("squads", func() { r.squads.Update(w) })
	r.guard("combat", func() {
		r.combat.Update(w, r.squads.All())
		r.combat.Cleanup(w)
	})
	r.guard("contacts", func() { r.dispatch(w.Physics.DrainContacts()) })
	r.guard("pickups", func() { r.pickups.Sweep(w) })
	r.guard("population", r.maintainSquads)
	r.guard("sync", w.SyncRecords)

	r.tick++
	r.lastTick.Store(r.tick)
	r.nNpcs.Store(int32(len(w.Store.IDs(sim.KindNpc))))
	if r.tick%r.broadcastEvery == 0 {
		r.obs.State(r.Snapshot())
	}
	if r.tick%debugEvery == 0 && len(r.debug) > 0 {
		bodies := r.DebugBodies()
		for session := range r.debug {
			r.obs.DebugBodies(r.id, session, bodies)
		}
	}
}

// maintainSquads schedules replacements once squads have been wiped out.
func (r *Room) maintainSquads() {
	if r.squads.Len() >= r.opts.Squads || r.respawn.Pending() {
		return
	}
	r.respawn = r.world.Scheduler.After(r.opts.RespawnDelay, "respawn", func() {
		for r.squads.Len() < r.opts.Squads {
			if err := r.spawnSquad(); err != nil {
				r.log.Warn("squad respawn", zap.Error(err))
				return
			}
		}
	})
}

func (r *Room) guard(subsystem string, fn func()) {
	defer func() {
		if v := recover(); v != nil {
			r.log.Error("subsystem panic",
				zap.String("subsystem", subsystem),
				zap.Uint64("tick", r.tick),
				zap.Any("panic", v),
				zap.Stack("stack"))
		}
	}()
	fn()
}

// dispose tears the room down. It is idempotent.
func (r *Room) dispose(reason string) {
	if r.disposing {
		return
	}
	r.disposing = true
	w := r.world
	w.Scheduler.CancelAll()
	r.teardown, r.respawn = nil, nil
	r.squads.Release(w)
	r.combat = sim.NewCombat()
	w.Clear(sim.KindBullet, sim.KindPickup, sim.KindNpc)
	r.nNpcs.Store(0)
	r.disposed = true
	close(r.done)
	r.obs.Disposed(r.id)
	r.log.Info("room disposed", zap.String("reason", reason), zap.Uint64("tick", r.tick))
}
