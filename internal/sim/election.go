package sim

import (
	"math"

	"go.uber.org/zap"

	"arena-server/internal/physics"
)

type ElectionState uint8

const (
	ElectionStable ElectionState = iota
	ElectionLeaderless
	ElectionElecting
)

func (s ElectionState) String() string {
	switch s {
	case ElectionLeaderless:
		return "leaderless"
	case ElectionElecting:
		return "electing"
	}
	return "stable"
}

// Election replaces a squad's leader after it dies. The vote runs as a
// deferred task after ElectionDelay; followers hold still meanwhile.
type Election struct {
	squad   *Squad
	state   ElectionState
	task    *Task
	vacated string
}

func NewElection(s *Squad) *Election {
	return &Election{squad: s}
}

func (e *Election) State() ElectionState { return e.state }

// Vacated is the id of the last leader that went missing.
func (e *Election) Vacated() string { return e.vacated }

func (e *Election) Update(w *World) {
	s := e.squad
	if s.Dissolved {
		return
	}
	switch e.state {
	case ElectionStable:
		if s.leaderAlive(w) {
			return
		}
		e.vacated = s.LeaderID
		e.state = ElectionLeaderless
		s.hold = true
		w.Log.Debug("squad leaderless", zap.String("squad", s.ID), zap.String("leader", e.vacated))
		e.arm(w)
	case ElectionLeaderless:
		e.arm(w)
	case ElectionElecting:
		if s.leaderAlive(w) {
			e.task.Cancel()
			e.task = nil
			e.state = ElectionStable
			s.hold = false
		}
	}
}

func (e *Election) arm(w *World) {
	s := e.squad
	s.prune(w)
	if s.Formation.Len() == 0 {
		e.dissolve(w)
		return
	}
	e.state = ElectionElecting
	e.task = w.Scheduler.After(w.Tuning.ElectionDelay, "election:"+s.ID, func() { e.elect(w) })
}

func (e *Election) elect(w *World) {
	s := e.squad
	if e.state != ElectionElecting || s.Dissolved {
		return
	}
	e.task = nil
	if s.leaderAlive(w) {
		e.state = ElectionStable
		s.hold = false
		return
	}
	s.prune(w)
	id, ok := closestToCenter(w, s.Formation.Roster())
	if !ok {
		e.dissolve(w)
		return
	}
	s.promote(w, id)
	e.state = ElectionStable
	s.hold = false
	w.Log.Debug("squad leader elected", zap.String("squad", s.ID), zap.String("leader", id), zap.String("previous", e.vacated))
}

func (e *Election) dissolve(w *World) {
	s := e.squad
	s.Dissolved = true
	s.LeaderID = ""
	e.state = ElectionStable
	w.Log.Debug("squad dissolved", zap.String("squad", s.ID))
}

// Cancel drops any pending vote.
func (e *Election) Cancel() {
	e.task.Cancel()
	e.task = nil
}

// closestToCenter picks the candidate nearest the arena centre. Ties keep
// roster order.
func closestToCenter(w *World, ids []string) (string, bool) {
	cx, cy := w.Arena().Center()
	best, bestDist := "", math.Inf(1)
	for _, id := range ids {
		b, ok := w.Physics.Body(id)
		if !ok {
			continue
		}
		if d := physics.Distance(b.X, b.Y, cx, cy); d < bestDist {
			best, bestDist = id, d
		}
	}
	return best, best != ""
}
