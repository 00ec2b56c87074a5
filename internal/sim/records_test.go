package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-server/internal/physics"
)

func TestStoreKinds(t *testing.T) {
	s := NewStore()
	s.AddPlayer(PlayerRecord{ID: "player-1", Health: 100})
	s.AddNpc(NpcRecord{ID: "npc-1", Role: RoleLeader})
	s.AddBullet(BulletRecord{ID: "bullet-1", OwnerID: "player-1"})
	s.AddPickup(PickupRecord{ID: "pickup-1"})

	assert.Equal(t, KindPlayer, s.Kind("player-1"))
	assert.Equal(t, KindNpc, s.Kind("npc-1"))
	assert.Equal(t, KindBullet, s.Kind("bullet-1"))
	assert.Equal(t, KindPickup, s.Kind("pickup-1"))
	assert.Equal(t, KindNone, s.Kind("nope"))

	assert.Nil(t, s.Npc("player-1"), "lookup checks the kind")
	require.NotNil(t, s.Player("player-1"))
	s.Player("player-1").Score = 7
	assert.Equal(t, 7, s.Player("player-1").Score)

	assert.Equal(t, []string{"npc-1"}, s.IDs(KindNpc))
	assert.Len(t, s.Players(), 1)
	assert.Equal(t, 4, s.Len())

	assert.True(t, s.Remove("npc-1"))
	assert.False(t, s.Remove("npc-1"))
	assert.Nil(t, s.Npc("npc-1"))
	assert.Empty(t, s.Npcs())
}

func TestDestroyRemovesBodyAndRecord(t *testing.T) {
	w, _ := newTestWorld(t)
	id, err := w.SpawnBullet(BulletSpec{X: 100, Y: 100, DirX: 1, Speed: 100, OwnerID: "x", OwnerKind: KindPlayer})
	require.NoError(t, err)
	assert.True(t, w.Alive(id))

	assert.True(t, w.Destroy(id))
	_, ok := w.Physics.Body(id)
	assert.False(t, ok)
	assert.False(t, w.Store.Has(id))

	// A record whose body already vanished is still removed.
	w.Store.AddPickup(PickupRecord{ID: "pickup-x"})
	assert.True(t, w.Destroy("pickup-x"))
}

func TestSyncRecordsUsesDisplayFrame(t *testing.T) {
	w, _ := newTestWorld(t)
	id, err := w.SpawnBullet(BulletSpec{X: 100, Y: 200, DirX: 0, DirY: 1, Speed: 60, OwnerID: "x", OwnerKind: KindPlayer})
	require.NoError(t, err)

	rec := w.Store.Bullet(id)
	assert.Equal(t, w.Arena().Height-200, rec.Y)
	assert.Equal(t, -1.0, rec.DirY, "up in physics is up on screen")

	w.Physics.Step(1.0 / 60)
	w.SyncRecords()
	assert.InDelta(t, w.Arena().Height-201, w.Store.Bullet(id).Y, 1e-9)

	require.NoError(t, w.Physics.Remove(id))
	w.SyncRecords()
	assert.False(t, w.Store.Has(id), "orphaned records are dropped")
}

func TestNextIDNeverRepeats(t *testing.T) {
	w, _ := newTestWorld(t)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id := w.NextID("npc")
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestCullBullets(t *testing.T) {
	w, _ := newTestWorld(t)
	a := w.Arena()
	inside, err := w.SpawnBullet(BulletSpec{X: 100, Y: 100, DirX: 1, Speed: 1, OwnerID: "npc-1", OwnerKind: KindNpc})
	require.NoError(t, err)
	outside, err := w.SpawnBullet(BulletSpec{X: a.Width + w.Tuning.BulletMargin + 1, Y: 100, DirX: 1, Speed: 1, OwnerID: "npc-1", OwnerKind: KindNpc})
	require.NoError(t, err)
	playerOwned, err := w.SpawnBullet(BulletSpec{X: -500, Y: 100, DirX: -1, Speed: 1, OwnerID: "player-1", OwnerKind: KindPlayer})
	require.NoError(t, err)

	assert.Equal(t, 1, w.CullBullets(KindNpc))
	assert.True(t, w.Alive(inside))
	assert.False(t, w.Store.Has(outside))
	_, ok := w.Physics.Body(outside)
	assert.False(t, ok)
	assert.True(t, w.Alive(playerOwned), "other owners are left alone")
	assert.Equal(t, physics.CategoryBullet, mustBody(t, w, inside).Category)
}

func mustBody(t *testing.T, w *World, id string) *physics.Body {
	t.Helper()
	b, ok := w.Physics.Body(id)
	require.True(t, ok, id)
	return b
}
