// Package physics is a small gravity-free rigid-body world for the arena:
// static boundary walls, category-filtered contacts, and a clamped fixed
// step. Broad phase runs on a resolv.Space; the narrow phase and the
// positional response live in this package.
package physics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/solarlune/resolv"
	"go.uber.org/zap"
)

var (
	ErrBodyNotFound   = errors.New("body not found")
	ErrDuplicateLabel = errors.New("duplicate body label")
)

// Category is a collision category bit.
type Category uint8

const (
	CategoryWall Category = 1 << iota
	CategoryPlayer
	CategoryNpc
	CategoryBullet
	CategoryPickup
)

var categoryTags = map[Category]string{
	CategoryWall:   "wall",
	CategoryPlayer: "player",
	CategoryNpc:    "npc",
	CategoryBullet: "bullet",
	CategoryPickup: "pickup",
}

// collisionMask is the filter matrix; it is symmetric.
var collisionMask = map[Category]Category{
	CategoryWall:   CategoryPlayer | CategoryNpc | CategoryBullet,
	CategoryPlayer: CategoryWall | CategoryPlayer | CategoryNpc | CategoryBullet | CategoryPickup,
	CategoryNpc:    CategoryWall | CategoryPlayer | CategoryNpc | CategoryBullet,
	CategoryBullet: CategoryWall | CategoryPlayer | CategoryNpc,
	CategoryPickup: CategoryPlayer,
}

func (c Category) String() string {
	if tag, ok := categoryTags[c]; ok {
		return tag
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// CollidesWith reports whether the filter matrix lets c touch other.
func (c Category) CollidesWith(other Category) bool {
	return collisionMask[c]&other != 0
}

// Sensor categories report contacts but never push.
func (c Category) Sensor() bool {
	return c == CategoryBullet || c == CategoryPickup
}

// tags lists the resolv tags of every category c collides with.
func (c Category) tags() []string {
	var out []string
	for _, cat := range []Category{CategoryWall, CategoryPlayer, CategoryNpc, CategoryBullet, CategoryPickup} {
		if c.CollidesWith(cat) {
			out = append(out, categoryTags[cat])
		}
	}
	return out
}

type Shape uint8

const (
	ShapeCircle Shape = iota
	ShapeBox
)

func (s Shape) String() string {
	if s == ShapeBox {
		return "rectangle"
	}
	return "circle"
}

// Body is one simulated object. Positions are body centres in the physics
// frame. Callers may change velocity and angle freely; position changes go
// through World.SetPosition so the broad phase stays in sync.
type Body struct {
	Label       string
	Category    Category
	Shape       Shape
	Radius      float64
	W, H        float64
	X, Y        float64
	VX, VY      float64
	Angle       float64
	FrictionAir float64
	Static      bool

	// Uncontrollable is set by wall contacts in wall-stun mode and cleared
	// once the body slows down.
	Uncontrollable bool

	obj *resolv.Object
	pad float64
}

func (b *Body) halfExtents() (float64, float64) {
	if b.Shape == ShapeCircle {
		return b.Radius, b.Radius
	}
	return b.W / 2, b.H / 2
}

func (b *Body) Speed() float64 {
	return math.Hypot(b.VX, b.VY)
}

func (b *Body) sync() {
	hw, hh := b.halfExtents()
	b.obj.X = b.X - hw + b.pad
	b.obj.Y = b.Y - hh + b.pad
	b.obj.Update()
}

// BodyDef describes a body to add.
type BodyDef struct {
	Label       string
	Category    Category
	Shape       Shape
	X, Y        float64
	Radius      float64
	W, H        float64
	FrictionAir float64
	Static      bool
}

// Contact is one overlapping body pair found during a step.
type Contact struct {
	A, B       string
	CatA, CatB Category
}

// Other returns the label on the other side of the pair from label.
func (c Contact) Other(label string) string {
	if c.A == label {
		return c.B
	}
	return c.A
}

type Options struct {
	Arena         Arena
	WallThickness float64
	// MaxDelta caps a single step, in seconds.
	MaxDelta float64
	CellSize int

	WallStun         bool
	StunDamping      float64
	StunRecoverSpeed float64
}

func DefaultOptions() Options {
	return Options{
		Arena:            Arena{Width: 1600, Height: 1000},
		WallThickness:    60,
		MaxDelta:         0.05,
		CellSize:         32,
		StunDamping:      0.08,
		StunRecoverSpeed: 20,
	}
}

const wallPrefix = "wall:"

type World struct {
	opts     Options
	log      *zap.Logger
	space    *resolv.Space
	bodies   map[string]*Body
	order    []*Body
	contacts []Contact
}

func NewWorld(opts Options, log *zap.Logger) *World {
	if log == nil {
		log = zap.NewNop()
	}
	pad := opts.WallThickness
	w := &World{
		opts:   opts,
		log:    log,
		bodies: make(map[string]*Body),
		space: resolv.NewSpace(
			int(math.Ceil(opts.Arena.Width+2*pad)),
			int(math.Ceil(opts.Arena.Height+2*pad)),
			opts.CellSize, opts.CellSize,
		),
	}
	w.addWalls()
	return w
}

func (w *World) addWalls() {
	a := w.opts.Arena
	t := w.opts.WallThickness
	walls := []BodyDef{
		{Label: wallPrefix + "left", X: -t / 2, Y: a.Height / 2, W: t, H: a.Height + 2*t},
		{Label: wallPrefix + "right", X: a.Width + t/2, Y: a.Height / 2, W: t, H: a.Height + 2*t},
		{Label: wallPrefix + "bottom", X: a.Width / 2, Y: -t / 2, W: a.Width + 2*t, H: t},
		{Label: wallPrefix + "top", X: a.Width / 2, Y: a.Height + t/2, W: a.Width + 2*t, H: t},
	}
	for _, def := range walls {
		def.Category = CategoryWall
		def.Shape = ShapeBox
		def.Static = true
		if _, err := w.Add(def); err != nil {
			w.log.Error("add wall", zap.String("label", def.Label), zap.Error(err))
		}
	}
}

func (w *World) Arena() Arena { return w.opts.Arena }

func (w *World) Options() Options { return w.opts }

// Add inserts a body. Labels are unique across the world.
func (w *World) Add(def BodyDef) (*Body, error) {
	if _, ok := w.bodies[def.Label]; ok {
		return nil, fmt.Errorf("add %q: %w", def.Label, ErrDuplicateLabel)
	}
	b := &Body{
		Label:       def.Label,
		Category:    def.Category,
		Shape:       def.Shape,
		Radius:      def.Radius,
		W:           def.W,
		H:           def.H,
		X:           def.X,
		Y:           def.Y,
		FrictionAir: def.FrictionAir,
		Static:      def.Static,
		pad:         w.opts.WallThickness,
	}
	hw, hh := b.halfExtents()
	b.obj = resolv.NewObject(b.X-hw+b.pad, b.Y-hh+b.pad, 2*hw, 2*hh, categoryTags[def.Category])
	b.obj.Data = b
	w.space.Add(b.obj)
	w.bodies[b.Label] = b
	w.order = append(w.order, b)
	return b, nil
}

// Remove deletes a body by label.
func (w *World) Remove(label string) error {
	b, ok := w.bodies[label]
	if !ok {
		return fmt.Errorf("remove %q: %w", label, ErrBodyNotFound)
	}
	w.space.Remove(b.obj)
	delete(w.bodies, label)
	for i, ob := range w.order {
		if ob == b {
			w.order = append(w.order[:i], w.order[i+1:]...)
			break
		}
	}
	return nil
}

// Body looks a body up by label.
func (w *World) Body(label string) (*Body, bool) {
	b, ok := w.bodies[label]
	return b, ok
}

func (w *World) Len() int { return len(w.bodies) }

// SetPosition moves a body and updates the broad phase.
func (w *World) SetPosition(b *Body, x, y float64) {
	b.X, b.Y = x, y
	b.sync()
}

// SetStatic freezes or releases a body. Frozen bodies lose their velocity.
func (w *World) SetStatic(b *Body, static bool) {
	b.Static = static
	if static {
		b.VX, b.VY = 0, 0
	}
}

// Step advances the world by dt seconds, capped at MaxDelta.
func (w *World) Step(dt float64) {
	if dt <= 0 || math.IsNaN(dt) {
		return
	}
	if dt > w.opts.MaxDelta {
		dt = w.opts.MaxDelta
	}
	frames := dt * 60

	for _, b := range w.order {
		if b.Static {
			continue
		}
		b.VX, b.VY = Sanitize(b.VX), Sanitize(b.VY)
		b.X += b.VX * dt
		b.Y += b.VY * dt
		if b.FrictionAir > 0 {
			damp := math.Pow(1-b.FrictionAir, frames)
			b.VX *= damp
			b.VY *= damp
		}
		if b.Uncontrollable {
			damp := math.Pow(1-w.opts.StunDamping, frames)
			b.VX *= damp
			b.VY *= damp
			if b.Speed() < w.opts.StunRecoverSpeed {
				b.Uncontrollable = false
			}
		}
		b.sync()
	}

	w.detect()

	a := w.opts.Arena
	for _, b := range w.order {
		if b.Static || b.Category.Sensor() {
			continue
		}
		hw, hh := b.halfExtents()
		x := Clamp(b.X, hw, a.Width-hw)
		y := Clamp(b.Y, hh, a.Height-hh)
		if x != b.X || y != b.Y {
			w.SetPosition(b, x, y)
		}
	}
}

// detect finds contacts among moving bodies and pushes solid pairs apart.
func (w *World) detect() {
	seen := make(map[[2]string]struct{})
	for _, b := range w.order {
		if b.Static {
			continue
		}
		tags := b.Category.tags()
		if len(tags) == 0 {
			continue
		}
		check := b.obj.Check(0, 0, tags...)
		if check == nil {
			continue
		}
		for _, o := range check.ObjectsByTags(tags...) {
			other, ok := o.Data.(*Body)
			if !ok || other == b || !b.Category.CollidesWith(other.Category) {
				continue
			}
			key := [2]string{b.Label, other.Label}
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
			}
			if _, dup := seen[key]; dup {
				continue
			}
			if !overlaps(b, other) {
				continue
			}
			seen[key] = struct{}{}
			w.contacts = append(w.contacts, Contact{A: b.Label, B: other.Label, CatA: b.Category, CatB: other.Category})
			if !b.Category.Sensor() && !other.Category.Sensor() {
				w.separate(b, other)
			}
		}
	}
}

func (w *World) separate(b, other *Body) {
	nx, ny, depth, ok := penetration(b, other)
	if !ok {
		return
	}
	if other.Static {
		w.SetPosition(b, b.X+nx*depth, b.Y+ny*depth)
		if vn := b.VX*nx + b.VY*ny; vn < 0 {
			if w.opts.WallStun && other.Category == CategoryWall {
				// Bounce and lose control until the body slows down.
				b.VX -= 1.5 * vn * nx
				b.VY -= 1.5 * vn * ny
				b.Uncontrollable = true
			} else {
				b.VX -= vn * nx
				b.VY -= vn * ny
			}
		}
		return
	}
	half := depth / 2
	w.SetPosition(b, b.X+nx*half, b.Y+ny*half)
	w.SetPosition(other, other.X-nx*half, other.Y-ny*half)
}

// DrainContacts returns the contacts queued since the last call.
func (w *World) DrainContacts() []Contact {
	out := w.contacts
	w.contacts = nil
	return out
}

// DebugBody is a display-frame description of one body.
type DebugBody struct {
	Label  string  `json:"label" msgpack:"label"`
	X      float64 `json:"x" msgpack:"x"`
	Y      float64 `json:"y" msgpack:"y"`
	Shape  string  `json:"shape" msgpack:"shape"`
	Radius float64 `json:"radius,omitempty" msgpack:"radius,omitempty"`
	W      float64 `json:"width,omitempty" msgpack:"width,omitempty"`
	H      float64 `json:"height,omitempty" msgpack:"height,omitempty"`
	Static bool    `json:"isStatic" msgpack:"isStatic"`
}

// DebugBodies snapshots every body, sorted by label.
func (w *World) DebugBodies() []DebugBody {
	out := make([]DebugBody, 0, len(w.bodies))
	for _, b := range w.order {
		x, y := w.opts.Arena.ToDisplay(b.X, b.Y)
		d := DebugBody{Label: b.Label, X: x, Y: y, Shape: b.Shape.String(), Static: b.Static}
		if b.Shape == ShapeCircle {
			d.Radius = b.Radius
		} else {
			d.W, d.H = b.W, b.H
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// IsWall reports whether label names one of the boundary walls.
func IsWall(label string) bool {
	return len(label) > len(wallPrefix) && label[:len(wallPrefix)] == wallPrefix
}
