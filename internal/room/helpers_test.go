package room

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"arena-server/internal/physics"
	"arena-server/internal/sim"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type recorder struct {
	mu       sync.Mutex
	states   []*Snapshot
	debug    map[string][]physics.DebugBody
	disposed []string
}

func newRecorder() *recorder {
	return &recorder{debug: make(map[string][]physics.DebugBody)}
}

func (rec *recorder) State(snap *Snapshot) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.states = append(rec.states, snap)
}

func (rec *recorder) DebugBodies(_, session string, bodies []physics.DebugBody) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.debug[session] = bodies
}

func (rec *recorder) Disposed(roomID string) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.disposed = append(rec.disposed, roomID)
}

func (rec *recorder) stateCount() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.states)
}

func (rec *recorder) disposedCount() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.disposed)
}

func testOptions(clock sim.Clock, obs Observer) Options {
	o := DefaultOptions()
	o.Seed = 1
	o.Squads = 2
	o.Followers = 3
	o.Clock = clock
	o.Observer = obs
	return o
}

func newTestRoom(t *testing.T, tweak func(*Options)) (*Room, *sim.ManualClock, *recorder) {
	t.Helper()
	clock := sim.NewManualClock(testEpoch)
	rec := newRecorder()
	opts := testOptions(clock, rec)
	if tweak != nil {
		tweak(&opts)
	}
	r, err := New("test", opts, nil)
	require.NoError(t, err)
	return r, clock, rec
}

// runFor ticks the room by hand for d of simulated time.
func runFor(r *Room, clock *sim.ManualClock, d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d && !r.disposed; elapsed += r.interval {
		clock.Advance(r.interval)
		r.step()
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func ptr(v float64) *float64 { return &v }
