package session

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process. Used by tests and single-node dev.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]map[string]string)}
}

func (m *MemoryStore) Load(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[id]
	if id == "" || !ok {
		return New(), nil
	}
	values := make(map[string]string, len(stored))
	for k, v := range stored {
		values[k] = v
	}
	return loaded(id, values), nil
}

func (m *MemoryStore) Save(ctx context.Context, s *Session) error {
	if s.Destroyed() {
		return m.Destroy(ctx, s.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[s.ID]
	if !ok {
		stored = make(map[string]string)
		m.sessions[s.ID] = stored
	}
	set, removed := s.changes()
	for k, v := range set {
		stored[k] = v
	}
	for _, k := range removed {
		delete(stored, k)
	}
	s.markSaved()
	return nil
}

func (m *MemoryStore) Destroy(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) ThrottleReply(_ context.Context, id string, now time.Time, interval time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.sessions[id]
	if !ok {
		stored = make(map[string]string)
		m.sessions[id] = stored
	}
	if raw, ok := stored[KeyLastReply]; ok {
		if last, err := strconv.ParseInt(raw, 10, 64); err == nil && now.Unix()-last < int64(interval/time.Second) {
			return false, nil
		}
	}
	stored[KeyLastReply] = strconv.FormatInt(now.Unix(), 10)
	return true, nil
}
