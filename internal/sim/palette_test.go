package sim

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertPartition(t *testing.T, pool *ColorPool) {
	t.Helper()
	seen := map[string]int{}
	for _, c := range pool.Free() {
		seen[c]++
	}
	for _, c := range pool.Assigned() {
		seen[c]++
	}
	for c, n := range seen {
		assert.Equal(t, 1, n, "color %s in both sets", c)
	}
	all := pool.Palette()
	got := make([]string, 0, len(seen))
	for c := range seen {
		got = append(got, c)
	}
	sort.Strings(all)
	sort.Strings(got)
	assert.Equal(t, all, got)
}

func TestColorPoolAcquireRelease(t *testing.T) {
	pool := NewColorPool([]string{"red", "green"})
	c1, err := pool.Acquire()
	require.NoError(t, err)
	c2, err := pool.Acquire()
	require.NoError(t, err)
	assert.NotEqual(t, c1, c2)

	_, err = pool.Acquire()
	assert.ErrorIs(t, err, ErrPaletteExhausted)

	pool.Release(c1)
	pool.Release(c1)
	pool.Release("purple")
	assertPartition(t, pool)
	assert.Equal(t, []string{c1}, pool.Free())
}

func TestColorPoolInvariantUnderJoinLeave(t *testing.T) {
	w, _ := newTestWorld(t)
	pool := NewColorPool(DefaultPalette)
	players := NewPlayers(pool)
	rng := rand.New(rand.NewSource(42))

	var active []string
	next := 0
	for step := 0; step < 400; step++ {
		if len(active) == 0 || (rng.Intn(2) == 0 && len(active) < len(DefaultPalette)) {
			session := fmt.Sprintf("s%d", next)
			next++
			_, err := players.Join(w, session, JoinOptions{})
			require.NoError(t, err)
			active = append(active, session)
		} else {
			i := rng.Intn(len(active))
			assert.True(t, players.Leave(w, active[i]))
			active = append(active[:i], active[i+1:]...)
		}
		assertPartition(t, pool)

		held := map[string]bool{}
		for _, p := range w.Store.Players() {
			assert.False(t, held[p.Color], "two players share %s", p.Color)
			held[p.Color] = true
		}
		assert.Len(t, pool.Assigned(), len(active))
	}
}

func TestPalettesArePerRoom(t *testing.T) {
	a := NewColorPool(DefaultPalette)
	b := NewColorPool(DefaultPalette)
	ca, _ := a.Acquire()
	cb, _ := b.Acquire()
	assert.Equal(t, ca, cb)
	assert.Len(t, a.Free(), len(DefaultPalette)-1)
}
