package physics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorld(t *testing.T, mutate func(*Options)) *World {
	t.Helper()
	opts := DefaultOptions()
	if mutate != nil {
		mutate(&opts)
	}
	return NewWorld(opts, nil)
}

func circle(label string, cat Category, x, y, r float64) BodyDef {
	return BodyDef{Label: label, Category: cat, Shape: ShapeCircle, X: x, Y: y, Radius: r}
}

func hasContact(contacts []Contact, a, b string) bool {
	for _, c := range contacts {
		if (c.A == a && c.B == b) || (c.A == b && c.B == a) {
			return true
		}
	}
	return false
}

func TestWorldHasFourWalls(t *testing.T) {
	w := newTestWorld(t, nil)
	assert.Equal(t, 4, w.Len())
	for _, side := range []string{"left", "right", "top", "bottom"} {
		b, ok := w.Body(wallPrefix + side)
		require.True(t, ok, side)
		assert.True(t, b.Static)
		assert.True(t, IsWall(b.Label))
	}
}

func TestAddRemove(t *testing.T) {
	w := newTestWorld(t, nil)
	_, err := w.Add(circle("p1", CategoryPlayer, 100, 100, 20))
	require.NoError(t, err)

	_, err = w.Add(circle("p1", CategoryPlayer, 200, 100, 20))
	assert.ErrorIs(t, err, ErrDuplicateLabel)

	require.NoError(t, w.Remove("p1"))
	_, ok := w.Body("p1")
	assert.False(t, ok)
	assert.ErrorIs(t, w.Remove("p1"), ErrBodyNotFound)
}

func TestStepClampsDelta(t *testing.T) {
	w := newTestWorld(t, nil)
	b, err := w.Add(circle("p1", CategoryPlayer, 500, 500, 20))
	require.NoError(t, err)
	b.VX = 100

	w.Step(1.0)
	assert.InDelta(t, 500+100*w.Options().MaxDelta, b.X, 1e-9)

	w.Step(0)
	w.Step(-1)
	assert.InDelta(t, 505, b.X, 1e-9, "non-positive steps are ignored")
}

func TestWallsContainMovers(t *testing.T) {
	w := newTestWorld(t, nil)
	b, err := w.Add(circle("p1", CategoryPlayer, 30, 500, 20))
	require.NoError(t, err)
	b.VX = -1000

	for i := 0; i < 10; i++ {
		w.Step(1.0 / 60)
	}
	assert.GreaterOrEqual(t, b.X, 20.0-1e-9)
	assert.True(t, hasContact(w.DrainContacts(), "p1", wallPrefix+"left"))
	assert.Empty(t, w.DrainContacts(), "drain resets the queue")
}

func TestSensorsDoNotPush(t *testing.T) {
	w := newTestWorld(t, nil)
	_, err := w.Add(circle("n1", CategoryNpc, 400, 400, 20))
	require.NoError(t, err)
	bullet, err := w.Add(circle("b1", CategoryBullet, 410, 400, 5))
	require.NoError(t, err)

	w.Step(1.0 / 60)
	assert.True(t, hasContact(w.DrainContacts(), "n1", "b1"))
	assert.InDelta(t, 410, bullet.X, 1e-9)
}

func TestFilterMatrix(t *testing.T) {
	assert.False(t, CategoryBullet.CollidesWith(CategoryPickup))
	assert.False(t, CategoryBullet.CollidesWith(CategoryBullet))
	assert.False(t, CategoryNpc.CollidesWith(CategoryPickup))
	assert.True(t, CategoryPlayer.CollidesWith(CategoryPickup))

	all := []Category{CategoryWall, CategoryPlayer, CategoryNpc, CategoryBullet, CategoryPickup}
	for _, a := range all {
		for _, b := range all {
			assert.Equal(t, a.CollidesWith(b), b.CollidesWith(a), "%s/%s", a, b)
		}
	}

	w := newTestWorld(t, nil)
	b1, err := w.Add(circle("b1", CategoryBullet, 300, 300, 5))
	require.NoError(t, err)
	b1.VX = 1
	_, err = w.Add(circle("k1", CategoryPickup, 302, 300, 10))
	require.NoError(t, err)
	w.Step(1.0 / 60)
	assert.False(t, hasContact(w.DrainContacts(), "b1", "k1"))
}

func TestSolidMoversSeparate(t *testing.T) {
	w := newTestWorld(t, nil)
	a, err := w.Add(circle("p1", CategoryPlayer, 300, 300, 20))
	require.NoError(t, err)
	b, err := w.Add(circle("p2", CategoryPlayer, 310, 300, 20))
	require.NoError(t, err)

	w.Step(1.0 / 60)
	assert.GreaterOrEqual(t, Distance(a.X, a.Y, b.X, b.Y), 40.0-1e-6)
}

func TestWallStun(t *testing.T) {
	w := newTestWorld(t, func(o *Options) { o.WallStun = true })
	b, err := w.Add(circle("p1", CategoryPlayer, 25, 500, 20))
	require.NoError(t, err)
	b.VX = -600

	w.Step(1.0 / 60)
	assert.True(t, b.Uncontrollable)
	assert.Greater(t, b.VX, 0.0, "bounced off the wall")

	for i := 0; i < 600 && b.Uncontrollable; i++ {
		w.Step(1.0 / 60)
	}
	assert.False(t, b.Uncontrollable, "control returns once the body slows")
}

func TestSetStatic(t *testing.T) {
	w := newTestWorld(t, nil)
	b, err := w.Add(circle("n1", CategoryNpc, 300, 300, 20))
	require.NoError(t, err)
	b.VX, b.VY = 50, 50
	w.SetStatic(b, true)
	w.Step(1.0 / 60)
	assert.Equal(t, 300.0, b.X)
	assert.Zero(t, b.VX)
}

func TestRaycastNearest(t *testing.T) {
	w := newTestWorld(t, nil)
	_, err := w.Add(circle("far", CategoryNpc, 600, 500, 20))
	require.NoError(t, err)
	_, err = w.Add(circle("near", CategoryNpc, 400, 500, 20))
	require.NoError(t, err)
	_, err = w.Add(circle("player", CategoryPlayer, 300, 500, 20))
	require.NoError(t, err)

	hit, ok := w.Raycast(200, 500, 800, 500, CategoryNpc, "")
	require.True(t, ok)
	assert.Equal(t, "near", hit.Label)
	assert.InDelta(t, 180, hit.Distance, 1e-6)

	hits := w.RaycastAll(200, 500, 800, 500, CategoryNpc|CategoryPlayer, "player")
	require.Len(t, hits, 2)
	assert.Equal(t, "far", hits[1].Label)

	hit, ok = w.Raycast(200, 500, -200, 500, CategoryWall, "")
	require.True(t, ok)
	assert.Equal(t, wallPrefix+"left", hit.Label)
	assert.InDelta(t, 200, hit.Distance, 1e-6)

	_, ok = w.Raycast(200, 900, 800, 900, CategoryNpc, "")
	assert.False(t, ok)
}

func TestCastFanPicksClosest(t *testing.T) {
	w := newTestWorld(t, nil)
	_, err := w.Add(circle("ahead", CategoryPlayer, 600, 500, 20))
	require.NoError(t, err)
	_, err = w.Add(circle("side", CategoryPlayer, 380, 560, 20))
	require.NoError(t, err)

	fan := Fan{Count: 5, HalfAngle: 0.5, Length: 500}
	hit, ok := w.CastFan(300, 500, 0, fan, CategoryPlayer, "")
	require.True(t, ok)
	assert.Equal(t, "side", hit.Label)
	assert.Len(t, fan.Angles(0), 5)
}

func TestDebugBodiesDisplayFrame(t *testing.T) {
	w := newTestWorld(t, nil)
	_, err := w.Add(circle("p1", CategoryPlayer, 100, 100, 20))
	require.NoError(t, err)

	var found bool
	for _, d := range w.DebugBodies() {
		if d.Label == "p1" {
			found = true
			assert.Equal(t, 100.0, d.X)
			assert.Equal(t, w.Arena().Height-100, d.Y)
			assert.Equal(t, "circle", d.Shape)
			assert.Equal(t, 20.0, d.Radius)
			assert.False(t, d.Static)
		}
		if IsWall(d.Label) {
			assert.True(t, d.Static)
			assert.Equal(t, "rectangle", d.Shape)
		}
	}
	assert.True(t, found)
}
