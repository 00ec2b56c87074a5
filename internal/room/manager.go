package room

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultMaxRooms = 100

// Manager creates rooms and forgets them once they dispose. Rooms share
// nothing but the manager's bookkeeping.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	ctx   context.Context
	wg    sync.WaitGroup
	opts  Options
	log   *zap.Logger
	max   int
	seq   int64
}

// NewManager returns a manager whose rooms stop when ctx ends.
func NewManager(ctx context.Context, opts Options, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		rooms: make(map[string]*Room),
		ctx:   ctx,
		opts:  opts,
		log:   log,
		max:   defaultMaxRooms,
	}
}

// SetMaxRooms changes the room limit.
func (m *Manager) SetMaxRooms(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.max = n
}

// Create starts a new room.
func (m *Manager) Create() (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.rooms) >= m.max {
		return nil, ErrTooManyRooms
	}
	opts := m.opts
	if opts.Seed != 0 {
		opts.Seed += m.seq
	}
	m.seq++

	id := uuid.NewString()
	r, err := New(id, opts, m.log)
	if err != nil {
		return nil, err
	}
	m.rooms[id] = r

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		r.Run(m.ctx)
	}()
	go func() {
		defer m.wg.Done()
		<-r.Done()
		m.mu.Lock()
		delete(m.rooms, id)
		m.mu.Unlock()
	}()
	return r, nil
}

func (m *Manager) Get(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// List returns room summaries, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	list := make([]Info, 0, len(m.rooms))
	for _, r := range m.rooms {
		list = append(list, r.Info())
	}
	m.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Wait blocks until every room goroutine has returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}
