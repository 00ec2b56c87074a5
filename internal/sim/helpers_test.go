package sim

import (
	"math/rand"
	"testing"
	"time"
)

var testEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const tick = time.Second / 60

func newTestWorld(t *testing.T) (*World, *ManualClock) {
	t.Helper()
	clock := NewManualClock(testEpoch)
	return NewWorld(DefaultTuning(), clock, rand.New(rand.NewSource(1)), nil), clock
}

// advance moves the clock one tick at a time for d, running due tasks and
// stepping physics each tick, then calls each fn.
func advance(w *World, clock *ManualClock, d time.Duration, fns ...func()) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += tick {
		clock.Advance(tick)
		w.Scheduler.RunDue()
		w.Physics.Step(tick.Seconds())
		for _, fn := range fns {
			fn()
		}
		w.SyncRecords()
	}
}

func ptr(v float64) *float64 { return &v }
