package sim

import (
	"sort"
	"time"
)

// Task is a deferred action. Its function must re-check the state it
// depends on before acting; Cancel only stops it from running at all.
type Task struct {
	Name      string
	due       time.Time
	seq       uint64
	fn        func()
	cancelled bool
	done      bool
}

func (t *Task) Cancel() {
	if t != nil {
		t.cancelled = true
	}
}

// Pending reports whether the task will still run.
func (t *Task) Pending() bool {
	return t != nil && !t.cancelled && !t.done
}

func (t *Task) Due() time.Time { return t.due }

// Scheduler runs deferred tasks on the room goroutine. It never starts
// goroutines of its own.
type Scheduler struct {
	clock   Clock
	tasks   []*Task
	running []*Task
	seq     uint64
}

func NewScheduler(clock Clock) *Scheduler {
	return &Scheduler{clock: clock}
}

// After schedules fn to run once d has elapsed.
func (s *Scheduler) After(d time.Duration, name string, fn func()) *Task {
	s.seq++
	t := &Task{Name: name, due: s.clock.Now().Add(d), seq: s.seq, fn: fn}
	s.tasks = append(s.tasks, t)
	return t
}

// RunDue executes every pending task whose time has come, in due order, and
// returns how many ran. Tasks scheduled by a running task wait for the next
// call.
func (s *Scheduler) RunDue() int {
	now := s.clock.Now()
	var due, keep []*Task
	for _, t := range s.tasks {
		switch {
		case t.cancelled:
		case !t.due.After(now):
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	s.tasks = keep
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].seq < due[j].seq
		}
		return due[i].due.Before(due[j].due)
	})

	s.running = due
	defer func() { s.running = nil }()
	ran := 0
	for _, t := range due {
		if t.cancelled {
			continue
		}
		t.done = true
		t.fn()
		ran++
	}
	return ran
}

func (s *Scheduler) CancelAll() {
	for _, t := range s.tasks {
		t.cancelled = true
	}
	for _, t := range s.running {
		if !t.done {
			t.cancelled = true
		}
	}
	s.tasks = nil
}

// Len counts pending tasks.
func (s *Scheduler) Len() int {
	n := 0
	for _, t := range s.tasks {
		if !t.cancelled {
			n++
		}
	}
	return n
}
