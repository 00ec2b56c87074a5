package sim

import (
	"fmt"
	"math"
	"math/rand"
)

// FormationType identifies the shape a squad's followers hold.
type FormationType int

const (
	FormationV      FormationType = iota // two diagonals trailing the leader
	FormationLine                        // single file behind the leader
	FormationEscort                      // front/left/right, or a box ring plus a tail
	FormationScatter                     // random fixed offsets
	FormationHLine                       // row perpendicular to the heading
)

var formationNames = map[FormationType]string{
	FormationV:       "v",
	FormationLine:    "line",
	FormationEscort:  "escort",
	FormationScatter: "scatter",
	FormationHLine:   "hline",
}

func (f FormationType) String() string {
	if s, ok := formationNames[f]; ok {
		return s
	}
	return fmt.Sprintf("formation(%d)", int(f))
}

// AllFormations lists every topology in spawn rotation order.
var AllFormations = []FormationType{FormationV, FormationLine, FormationEscort, FormationScatter, FormationHLine}

type SlotRole string

const (
	SlotLeft    SlotRole = "left"
	SlotRight   SlotRole = "right"
	SlotCenter  SlotRole = "center"
	SlotFront   SlotRole = "front"
	SlotBack    SlotRole = "back"
	SlotBox     SlotRole = "box"
	SlotScatter SlotRole = "scatter"
	SlotHLine   SlotRole = "hline"
)

// Slot is a follower's place in the formation as a (forward, right) offset
// from the leader.
type Slot struct {
	Role    SlotRole
	Index   int
	Forward float64
	Right   float64
}

// Formation assigns slots to an ordered roster of followers. Slots are
// recomputed from roster position on every change, so indices never have
// gaps.
type Formation struct {
	Type    FormationType
	Spacing float64
	// Angle is the half-opening of the V, measured from straight back.
	Angle float64

	rng     *rand.Rand
	roster  []string
	slots   map[string]Slot
	scatter map[string][2]float64
}

func NewFormation(typ FormationType, spacing, angle float64, rng *rand.Rand) *Formation {
	return &Formation{
		Type:    typ,
		Spacing: spacing,
		Angle:   angle,
		rng:     rng,
		slots:   make(map[string]Slot),
		scatter: make(map[string][2]float64),
	}
}

// Assign replaces the roster.
func (f *Formation) Assign(ids []string) {
	f.roster = append([]string(nil), ids...)
	for id := range f.scatter {
		if !f.Contains(id) {
			delete(f.scatter, id)
		}
	}
	f.reassign()
}

func (f *Formation) Add(id string) {
	if f.Contains(id) {
		return
	}
	f.roster = append(f.roster, id)
	f.reassign()
}

// Remove drops id from the roster and reports whether it was there.
func (f *Formation) Remove(id string) bool {
	for i, r := range f.roster {
		if r == id {
			f.roster = append(f.roster[:i], f.roster[i+1:]...)
			delete(f.slots, id)
			delete(f.scatter, id)
			f.reassign()
			return true
		}
	}
	return false
}

func (f *Formation) Contains(id string) bool {
	for _, r := range f.roster {
		if r == id {
			return true
		}
	}
	return false
}

func (f *Formation) Roster() []string {
	return append([]string(nil), f.roster...)
}

func (f *Formation) Len() int { return len(f.roster) }

func (f *Formation) Slot(id string) (Slot, bool) {
	s, ok := f.slots[id]
	return s, ok
}

// Target maps id's slot into world space around the leader.
func (f *Formation) Target(id string, leaderX, leaderY, heading float64) (float64, float64, bool) {
	s, ok := f.slots[id]
	if !ok {
		return 0, 0, false
	}
	x, y := SlotWorld(leaderX, leaderY, heading, s.Forward, s.Right)
	return x, y, true
}

// SlotWorld converts a local (forward, right) offset into a world position.
// The physics frame is y-up, so right is 90 degrees clockwise of forward.
func SlotWorld(leaderX, leaderY, heading, fwd, right float64) (float64, float64) {
	fx := math.Cos(heading)
	fy := math.Sin(heading)
	rx := fy
	ry := -fx
	return leaderX + fx*fwd + rx*right, leaderY + fy*fwd + ry*right
}

func (f *Formation) reassign() {
	n := len(f.roster)
	s := f.Spacing
	for i, id := range f.roster {
		var slot Slot
		switch f.Type {
		case FormationV:
			k := i/2 + 1
			switch {
			case n%2 == 1 && i == n-1:
				slot = Slot{Role: SlotCenter, Index: 0, Forward: -s}
			case i%2 == 0:
				slot = Slot{Role: SlotLeft, Index: k, Forward: -float64(k) * s * math.Cos(f.Angle), Right: -float64(k) * s * math.Sin(f.Angle)}
			default:
				slot = Slot{Role: SlotRight, Index: k, Forward: -float64(k) * s * math.Cos(f.Angle), Right: float64(k) * s * math.Sin(f.Angle)}
			}
		case FormationLine:
			slot = Slot{Role: SlotBack, Index: i + 1, Forward: -float64(i+1) * s}
		case FormationEscort:
			slot = escortSlot(i, n, s)
		case FormationScatter:
			off := f.scatterOffset(id)
			slot = Slot{Role: SlotScatter, Index: i, Forward: off[0], Right: off[1]}
		case FormationHLine:
			k := i/2 + 1
			switch {
			case n%2 == 1 && i == n-1:
				slot = Slot{Role: SlotFront, Index: 0, Forward: s}
			case i%2 == 0:
				slot = Slot{Role: SlotHLine, Index: -k, Right: -float64(k) * s}
			default:
				slot = Slot{Role: SlotHLine, Index: k, Right: float64(k) * s}
			}
		}
		f.slots[id] = slot
	}
}

var escortSmall = []Slot{
	{Role: SlotFront, Forward: 1},
	{Role: SlotLeft, Right: -1},
	{Role: SlotRight, Right: 1},
}

var escortBox = [][2]float64{{1, -1}, {1, 1}, {-1, -1}, {-1, 1}}

func escortSlot(i, n int, s float64) Slot {
	if n <= 3 {
		base := escortSmall[i]
		return Slot{Role: base.Role, Index: i, Forward: base.Forward * s, Right: base.Right * s}
	}
	if i < len(escortBox) {
		c := escortBox[i]
		return Slot{Role: SlotBox, Index: i, Forward: c[0] * s, Right: c[1] * s}
	}
	k := i - len(escortBox) + 2
	return Slot{Role: SlotBack, Index: k, Forward: -float64(k) * s}
}

// scatterOffset returns the stable random offset of id, sampling one on
// first use that keeps clear of the leader and the other followers.
func (f *Formation) scatterOffset(id string) [2]float64 {
	if off, ok := f.scatter[id]; ok {
		return off
	}
	s := f.Spacing
	minDist := s * 0.75
	clear := func(fw, rt float64) bool {
		if math.Hypot(fw, rt) < minDist {
			return false
		}
		for other, off := range f.scatter {
			if other != id && math.Hypot(off[0]-fw, off[1]-rt) < minDist {
				return false
			}
		}
		return true
	}

	var off [2]float64
	placed := false
	for attempt := 0; attempt < 30 && !placed; attempt++ {
		fw := -3*s + f.rng.Float64()*4*s
		rt := -2*s + f.rng.Float64()*4*s
		if clear(fw, rt) {
			off, placed = [2]float64{fw, rt}, true
		}
	}
	// Crowded: walk back along the tail until a free spot turns up.
	for k := 1; !placed; k++ {
		fw := -float64(3+k) * s
		if clear(fw, 0) {
			off, placed = [2]float64{fw, 0}, true
		}
	}
	f.scatter[id] = off
	return off
}
