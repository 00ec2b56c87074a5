package physics

import "math"

// Arena is the playable rectangle in the physics frame: origin bottom-left,
// +y up. The display frame shares the origin's x but has +y down.
type Arena struct {
	Width  float64
	Height float64
}

// ToDisplay converts a physics-frame point to the display frame.
func (a Arena) ToDisplay(x, y float64) (float64, float64) {
	return x, a.Height - y
}

// ToPhysics converts a display-frame point to the physics frame.
func (a Arena) ToPhysics(x, y float64) (float64, float64) {
	return x, a.Height - y
}

// DirToDisplay flips a direction vector between frames. The flip is its own
// inverse, so it also serves as DirToPhysics.
func DirToDisplay(dx, dy float64) (float64, float64) {
	return dx, -dy
}

func DirToPhysics(dx, dy float64) (float64, float64) {
	return dx, -dy
}

// ClampToArena keeps a point at least margin away from every edge.
func (a Arena) ClampToArena(x, y, margin float64) (float64, float64) {
	return Clamp(x, margin, a.Width-margin), Clamp(y, margin, a.Height-margin)
}

// Contains reports whether the point lies within the arena grown by margin.
func (a Arena) Contains(x, y, margin float64) bool {
	return x >= -margin && x <= a.Width+margin && y >= -margin && y <= a.Height+margin
}

func (a Arena) Center() (float64, float64) {
	return a.Width / 2, a.Height / 2
}

// Clamp restricts v to [min, max]
func Clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Distance returns the distance between two points
func Distance(x1, y1, x2, y2 float64) float64 {
	dx := x2 - x1
	dy := y2 - y1
	return math.Sqrt(dx*dx + dy*dy)
}

// Sanitize maps NaN and infinities to zero.
func Sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Normalize returns the unit vector of (x, y), or (0, 0) for zero-length or
// non-finite input.
func Normalize(x, y float64) (float64, float64) {
	x, y = Sanitize(x), Sanitize(y)
	l := math.Hypot(x, y)
	if l < 1e-9 || math.IsInf(l, 0) {
		return 0, 0
	}
	return x / l, y / l
}

// NormalizeAngle wraps angle to [-PI, PI]
func NormalizeAngle(a float64) float64 {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return 0
	}
	a = math.Mod(a, 2*math.Pi)
	if a > math.Pi {
		a -= 2 * math.Pi
	}
	if a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// LerpAngle interpolates between two angles taking the short path
func LerpAngle(from, to, t float64) float64 {
	diff := NormalizeAngle(to - from)
	return NormalizeAngle(from + diff*t)
}
