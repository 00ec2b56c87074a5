package physics

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameFlip(t *testing.T) {
	a := Arena{Width: 800, Height: 600}
	x, y := a.ToDisplay(100, 50)
	assert.Equal(t, 100.0, x)
	assert.Equal(t, 550.0, y)

	x, y = a.ToPhysics(a.ToDisplay(123, 456))
	assert.Equal(t, 123.0, x)
	assert.Equal(t, 456.0, y)

	dx, dy := DirToDisplay(0, 1)
	assert.Equal(t, 0.0, dx)
	assert.Equal(t, -1.0, dy)
}

func TestClampToArena(t *testing.T) {
	a := Arena{Width: 800, Height: 600}
	x, y := a.ClampToArena(-50, 900, 40)
	assert.Equal(t, 40.0, x)
	assert.Equal(t, 560.0, y)
	assert.True(t, a.Contains(-10, 300, 50))
	assert.False(t, a.Contains(-60, 300, 50))
}

func TestNormalize(t *testing.T) {
	x, y := Normalize(3, 4)
	assert.InDelta(t, 0.6, x, 1e-9)
	assert.InDelta(t, 0.8, y, 1e-9)

	x, y = Normalize(math.NaN(), 1)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 1.0, y)

	x, y = Normalize(0, 0)
	assert.Zero(t, x)
	assert.Zero(t, y)

	x, y = Normalize(math.Inf(1), math.NaN())
	assert.Zero(t, x)
	assert.Zero(t, y)
}

func TestNormalizeAngle(t *testing.T) {
	assert.InDelta(t, 0, NormalizeAngle(2*math.Pi), 1e-9)
	assert.InDelta(t, -math.Pi/2, NormalizeAngle(3*math.Pi/2), 1e-9)
	assert.InDelta(t, math.Pi/2, NormalizeAngle(-3*math.Pi/2), 1e-9)
	assert.Equal(t, 0.0, NormalizeAngle(math.Inf(1)))
}

func TestLerpAngleShortPath(t *testing.T) {
	from := math.Pi - 0.1
	to := -math.Pi + 0.1
	got := LerpAngle(from, to, 0.5)
	assert.InDelta(t, math.Pi, math.Abs(got), 1e-9)
}

func TestCheckCollision(t *testing.T) {
	assert.True(t, CheckCollision(0, 0, 10, 15, 0, 10), "overlapping")
	assert.True(t, CheckCollision(0, 0, 10, 20, 0, 10), "touching")
	assert.False(t, CheckCollision(0, 0, 10, 25, 0, 10))
	assert.True(t, CheckCollision(5, 5, 1, 5, 5, 1), "same position")
}

func TestSegmentHits(t *testing.T) {
	tt, ok := segmentCircleHit(0, 0, 100, 0, 50, 0, 10)
	assert.True(t, ok)
	assert.InDelta(t, 0.4, tt, 1e-9)

	tt, ok = segmentCircleHit(50, 0, 100, 0, 50, 0, 10)
	assert.True(t, ok, "start inside")
	assert.Zero(t, tt)

	_, ok = segmentCircleHit(0, 20, 100, 20, 50, 0, 10)
	assert.False(t, ok)

	tt, ok = segmentBoxHit(0, 0, 100, 0, 60, 0, 10, 10)
	assert.True(t, ok)
	assert.InDelta(t, 0.5, tt, 1e-9)

	_, ok = segmentBoxHit(0, 30, 100, 30, 60, 0, 10, 10)
	assert.False(t, ok)
}
