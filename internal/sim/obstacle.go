package sim

import (
	"math"
	"math/rand"

	"arena-server/internal/physics"
)

// obstacleMask is what movers steer around.
const obstacleMask = physics.CategoryWall | physics.CategoryNpc

// DetectObstacle casts the fan ahead of a mover and returns the nearest wall
// or NPC it hits. Bodies for which skip reports true are looked through.
func DetectObstacle(pw *physics.World, x, y, heading float64, fan physics.Fan, skip func(label string) bool) (physics.RayHit, bool) {
	var best physics.RayHit
	found := false
	for _, a := range fan.Angles(heading) {
		hit, ok := nearestObstacle(pw, x, y, a, fan.Length, skip)
		if ok && (!found || hit.Distance < best.Distance) {
			best, found = hit, true
		}
	}
	return best, found
}

// AvoidanceAngle turns heading by a random amount up to maxTurn toward
// whichever side has more free space.
func AvoidanceAngle(rng *rand.Rand, pw *physics.World, x, y, heading float64, fan physics.Fan, maxTurn float64, skip func(label string) bool) float64 {
	clearance := func(a float64) float64 {
		hit, ok := nearestObstacle(pw, x, y, a, fan.Length, skip)
		if !ok {
			return fan.Length
		}
		return hit.Distance
	}
	left := clearance(heading + maxTurn)
	right := clearance(heading - maxTurn)

	side := 1.0
	switch {
	case right > left:
		side = -1
	case right == left && rng.Intn(2) == 0:
		side = -1
	}
	turn := maxTurn * (0.5 + 0.5*rng.Float64())
	return physics.NormalizeAngle(heading + side*turn)
}

func nearestObstacle(pw *physics.World, x, y, angle, length float64, skip func(label string) bool) (physics.RayHit, bool) {
	for _, hit := range pw.RaycastAll(x, y, x+math.Cos(angle)*length, y+math.Sin(angle)*length, obstacleMask, "") {
		if skip == nil || !skip(hit.Label) {
			return hit, true
		}
	}
	return physics.RayHit{}, false
}

// SampleTarget picks a point up to radius ahead of (x, y) within spread of
// heading, clamped into the arena minus margin.
func SampleTarget(rng *rand.Rand, arena physics.Arena, x, y, heading, radius, spread, margin float64) (float64, float64) {
	a := heading + (rng.Float64()*2-1)*spread
	d := radius * (0.4 + 0.6*rng.Float64())
	return arena.ClampToArena(x+math.Cos(a)*d, y+math.Sin(a)*d, margin)
}
