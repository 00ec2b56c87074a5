package sim

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-server/internal/physics"
)

func TestDetectObstacle(t *testing.T) {
	w, _ := newTestWorld(t)
	fan := physics.Fan{Count: 5, HalfAngle: 0.3, Length: 200}

	_, hit := DetectObstacle(w.Physics, 800, 500, 0, fan, nil)
	assert.False(t, hit, "open arena")

	wall, hit := DetectObstacle(w.Physics, 1550, 500, 0, fan, nil)
	require.True(t, hit)
	assert.True(t, physics.IsWall(wall.Label))
	assert.InDelta(t, 50, wall.Distance, 1)

	_, err := w.Physics.Add(physics.BodyDef{Label: "npc-a", Category: physics.CategoryNpc, Shape: physics.ShapeCircle, X: 900, Y: 500, Radius: 20})
	require.NoError(t, err)
	_, err = w.Physics.Add(physics.BodyDef{Label: "self", Category: physics.CategoryNpc, Shape: physics.ShapeCircle, X: 800, Y: 500, Radius: 20})
	require.NoError(t, err)

	npc, hit := DetectObstacle(w.Physics, 800, 500, 0, fan, func(l string) bool { return l == "self" })
	require.True(t, hit)
	assert.Equal(t, "npc-a", npc.Label)
	assert.InDelta(t, 80, npc.Distance, 1)
}

func TestAvoidanceAngleTurnsToOpenSide(t *testing.T) {
	w, _ := newTestWorld(t)
	fan := physics.Fan{Count: 3, HalfAngle: 0.3, Length: 200}
	rng := rand.New(rand.NewSource(7))
	maxTurn := math.Pi / 2

	// Near the top wall, up is blocked and down is clear.
	for i := 0; i < 20; i++ {
		a := AvoidanceAngle(rng, w.Physics, 1500, 920, 0, fan, maxTurn, nil)
		assert.LessOrEqual(t, a, -maxTurn/2+1e-9)
		assert.GreaterOrEqual(t, a, -maxTurn-1e-9)
	}

	// Near the bottom wall it is the other way round.
	for i := 0; i < 20; i++ {
		a := AvoidanceAngle(rng, w.Physics, 1500, 80, 0, fan, maxTurn, nil)
		assert.GreaterOrEqual(t, a, maxTurn/2-1e-9)
		assert.LessOrEqual(t, a, maxTurn+1e-9)
	}
}

func TestSampleTargetBounds(t *testing.T) {
	arena := physics.Arena{Width: 1600, Height: 1000}
	rng := rand.New(rand.NewSource(3))
	const radius, spread, margin = 300.0, 0.5, 50.0

	for i := 0; i < 200; i++ {
		x, y := SampleTarget(rng, arena, 800, 500, math.Pi/2, radius, spread, margin)
		d := physics.Distance(800, 500, x, y)
		assert.LessOrEqual(t, d, radius+1e-9)
		assert.GreaterOrEqual(t, d, radius*0.4-1e-9)
		a := math.Atan2(y-500, x-800)
		assert.LessOrEqual(t, math.Abs(a-math.Pi/2), spread+1e-9)
	}

	// Near a corner the point is clamped inside the margin.
	for i := 0; i < 50; i++ {
		x, y := SampleTarget(rng, arena, 1580, 980, math.Pi/4, radius, spread, margin)
		assert.True(t, x >= margin && x <= arena.Width-margin, "x=%v", x)
		assert.True(t, y >= margin && y <= arena.Height-margin, "y=%v", y)
	}
}
