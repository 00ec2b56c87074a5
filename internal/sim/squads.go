package sim

import (
	"go.uber.org/zap"
)

// Squads owns every NPC squad of a room together with its election.
type Squads struct {
	list      []*Squad
	elections map[string]*Election
}

func NewSquads() *Squads {
	return &Squads{elections: make(map[string]*Election)}
}

func (m *Squads) Spawn(w *World, typ FormationType, x, y float64, followers int, color string) (*Squad, error) {
	s, err := SpawnSquad(w, typ, x, y, followers, color)
	if err != nil {
		return nil, err
	}
	m.list = append(m.list, s)
	m.elections[s.ID] = NewElection(s)
	w.Log.Debug("squad spawned",
		zap.String("squad", s.ID),
		zap.Stringer("formation", typ),
		zap.Int("followers", followers))
	return s, nil
}

// Update runs elections first so a squad that just lost its leader holds
// its followers on the same tick, then steers every squad. Dissolved squads
// are dropped.
func (m *Squads) Update(w *World) {
	kept := m.list[:0]
	for _, s := range m.list {
		if e := m.elections[s.ID]; e != nil {
			e.Update(w)
		}
		if s.Dissolved {
			delete(m.elections, s.ID)
			continue
		}
		s.Update(w)
		kept = append(kept, s)
	}
	for i := len(kept); i < len(m.list); i++ {
		m.list[i] = nil
	}
	m.list = kept
}

func (m *Squads) All() []*Squad {
	return append([]*Squad(nil), m.list...)
}

func (m *Squads) Len() int { return len(m.list) }

func (m *Squads) Election(squadID string) *Election {
	return m.elections[squadID]
}

// SquadOf finds the squad npcID belongs to.
func (m *Squads) SquadOf(npcID string) *Squad {
	for _, s := range m.list {
		if s.LeaderID == npcID || s.Formation.Contains(npcID) {
			return s
		}
	}
	return nil
}

// Release cancels pending elections and destroys every squad member.
func (m *Squads) Release(w *World) {
	for _, e := range m.elections {
		e.Cancel()
	}
	for _, s := range m.list {
		s.Release(w)
	}
	m.list = nil
	m.elections = make(map[string]*Election)
}

// KillNpc marks an NPC dead, freezes its body and schedules its removal
// after the ragdoll delay. It reports false when the NPC was already dead or
// missing.
func KillNpc(w *World, id string) bool {
	rec := w.Store.Npc(id)
	if rec == nil || rec.Dead {
		return false
	}
	rec.Dead = true
	rec.Health = 0
	if b, ok := w.Physics.Body(id); ok {
		w.Physics.SetStatic(b, true)
	}
	w.Scheduler.After(w.Tuning.RagdollDelay, "ragdoll:"+id, func() {
		if r := w.Store.Npc(id); r != nil && r.Dead {
			w.Destroy(id)
		}
	})
	return true
}
