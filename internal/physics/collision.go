package physics

import "math"

// CheckCollision checks if two circles overlap
func CheckCollision(x1, y1, r1, x2, y2, r2 float64) bool {
	dx := x2 - x1
	dy := y2 - y1
	dist2 := dx*dx + dy*dy
	radSum := r1 + r2
	return dist2 <= radSum*radSum
}

// circleBoxCollision checks a circle against an axis-aligned box given by
// its centre and half extents.
func circleBoxCollision(cx, cy, r, bx, by, hw, hh float64) bool {
	px := Clamp(cx, bx-hw, bx+hw)
	py := Clamp(cy, by-hh, by+hh)
	dx := cx - px
	dy := cy - py
	return dx*dx+dy*dy <= r*r
}

func boxCollision(ax, ay, ahw, ahh, bx, by, bhw, bhh float64) bool {
	return math.Abs(ax-bx) <= ahw+bhw && math.Abs(ay-by) <= ahh+bhh
}

// overlaps runs the narrow phase for any pair of shapes.
func overlaps(a, b *Body) bool {
	switch {
	case a.Shape == ShapeCircle && b.Shape == ShapeCircle:
		return CheckCollision(a.X, a.Y, a.Radius, b.X, b.Y, b.Radius)
	case a.Shape == ShapeCircle:
		return circleBoxCollision(a.X, a.Y, a.Radius, b.X, b.Y, b.W/2, b.H/2)
	case b.Shape == ShapeCircle:
		return circleBoxCollision(b.X, b.Y, b.Radius, a.X, a.Y, a.W/2, a.H/2)
	default:
		return boxCollision(a.X, a.Y, a.W/2, a.H/2, b.X, b.Y, b.W/2, b.H/2)
	}
}

// penetration returns the direction and depth that a must move to stop
// overlapping b. ok is false when they do not overlap.
func penetration(a, b *Body) (nx, ny, depth float64, ok bool) {
	if a.Shape == ShapeCircle && b.Shape == ShapeCircle {
		dx := a.X - b.X
		dy := a.Y - b.Y
		d := math.Hypot(dx, dy)
		sum := a.Radius + b.Radius
		if d >= sum {
			return 0, 0, 0, false
		}
		if d < 1e-9 {
			return 1, 0, sum, true
		}
		return dx / d, dy / d, sum - d, true
	}

	// Treat a as its bounding box against box b (walls are the only boxes
	// that push).
	ahw, ahh := a.halfExtents()
	bhw, bhh := b.halfExtents()
	ox := ahw + bhw - math.Abs(a.X-b.X)
	oy := ahh + bhh - math.Abs(a.Y-b.Y)
	if ox <= 0 || oy <= 0 {
		return 0, 0, 0, false
	}
	if a.Shape == ShapeCircle && !circleBoxCollision(a.X, a.Y, a.Radius, b.X, b.Y, bhw, bhh) {
		return 0, 0, 0, false
	}
	if ox < oy {
		if a.X < b.X {
			return -1, 0, ox, true
		}
		return 1, 0, ox, true
	}
	if a.Y < b.Y {
		return 0, -1, oy, true
	}
	return 0, 1, oy, true
}

// segmentCircleHit returns the fraction t in [0, 1] along (x1,y1)-(x2,y2)
// where the segment first touches the circle. A segment starting inside the
// circle hits at t = 0.
func segmentCircleHit(x1, y1, x2, y2, cx, cy, r float64) (float64, bool) {
	dx := x2 - x1
	dy := y2 - y1
	fx := x1 - cx
	fy := y1 - cy
	a := dx*dx + dy*dy
	c := fx*fx + fy*fy - r*r
	if c <= 0 {
		return 0, true
	}
	if a == 0 {
		return 0, false
	}
	b := 2 * (fx*dx + fy*dy)
	discriminant := b*b - 4*a*c
	if discriminant < 0 {
		return 0, false
	}
	discriminant = math.Sqrt(discriminant)
	t1 := (-b - discriminant) / (2 * a)
	if t1 >= 0 && t1 <= 1 {
		return t1, true
	}
	return 0, false
}

// segmentBoxHit is the slab test against an axis-aligned box.
func segmentBoxHit(x1, y1, x2, y2, bx, by, hw, hh float64) (float64, bool) {
	tmin, tmax := 0.0, 1.0
	d := [2]float64{x2 - x1, y2 - y1}
	o := [2]float64{x1, y1}
	lo := [2]float64{bx - hw, by - hh}
	hi := [2]float64{bx + hw, by + hh}
	for i := 0; i < 2; i++ {
		if math.Abs(d[i]) < 1e-12 {
			if o[i] < lo[i] || o[i] > hi[i] {
				return 0, false
			}
			continue
		}
		t1 := (lo[i] - o[i]) / d[i]
		t2 := (hi[i] - o[i]) / d[i]
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		tmin = math.Max(tmin, t1)
		tmax = math.Min(tmax, t2)
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}
