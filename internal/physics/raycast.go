package physics

import (
	"math"
	"sort"
)

// RayHit is one body intersected by a ray.
type RayHit struct {
	Label    string
	Category Category
	X, Y     float64
	Distance float64
}

// RaycastAll returns every body in mask crossed by the segment, nearest
// first. The body labelled ignore is skipped.
func (w *World) RaycastAll(x1, y1, x2, y2 float64, mask Category, ignore string) []RayHit {
	length := Distance(x1, y1, x2, y2)
	var hits []RayHit
	for _, o := range w.space.Objects() {
		b, ok := o.Data.(*Body)
		if !ok || b.Label == ignore || b.Category&mask == 0 {
			continue
		}
		var t float64
		var hit bool
		if b.Shape == ShapeCircle {
			t, hit = segmentCircleHit(x1, y1, x2, y2, b.X, b.Y, b.Radius)
		} else {
			t, hit = segmentBoxHit(x1, y1, x2, y2, b.X, b.Y, b.W/2, b.H/2)
		}
		if !hit {
			continue
		}
		hits = append(hits, RayHit{
			Label:    b.Label,
			Category: b.Category,
			X:        x1 + (x2-x1)*t,
			Y:        y1 + (y2-y1)*t,
			Distance: length * t,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	return hits
}

// Raycast returns the nearest hit, if any.
func (w *World) Raycast(x1, y1, x2, y2 float64, mask Category, ignore string) (RayHit, bool) {
	hits := w.RaycastAll(x1, y1, x2, y2, mask, ignore)
	if len(hits) == 0 {
		return RayHit{}, false
	}
	return hits[0], true
}

// Fan describes a symmetric spread of rays around a heading.
type Fan struct {
	Count     int
	HalfAngle float64
	Length    float64
}

// Angles returns the ray headings of the fan centred on heading.
func (f Fan) Angles(heading float64) []float64 {
	if f.Count <= 1 {
		return []float64{heading}
	}
	out := make([]float64, f.Count)
	step := 2 * f.HalfAngle / float64(f.Count-1)
	for i := range out {
		out[i] = heading - f.HalfAngle + step*float64(i)
	}
	return out
}

// CastFan casts every ray of the fan from (x, y) and returns the nearest hit
// across all rays.
func (w *World) CastFan(x, y, heading float64, fan Fan, mask Category, ignore string) (RayHit, bool) {
	var best RayHit
	found := false
	for _, a := range fan.Angles(heading) {
		ex := x + math.Cos(a)*fan.Length
		ey := y + math.Sin(a)*fan.Length
		hit, ok := w.Raycast(x, y, ex, ey, mask, ignore)
		if ok && (!found || hit.Distance < best.Distance) {
			best, found = hit, true
		}
	}
	return best, found
}
