package store

import (
	"context"
	"sync"
	"time"

	"assistchat/internal/models"
)

const minSweepInterval = time.Second

type memoryEntry struct {
	session  *models.Session
	lastUsed time.Time
}

// Memory is a process-local Store. Sessions idle longer than ttl are swept.
type Memory struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	ttl     time.Duration
	now     func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewMemory(ttl time.Duration) *Memory {
	m := newMemory(ttl, time.Now)
	if ttl > 0 {
		go m.sweepLoop(max(ttl/4, minSweepInterval))
	}
	return m
}

func newMemory(ttl time.Duration, now func() time.Time) *Memory {
	return &Memory{
		entries: make(map[string]*memoryEntry),
		ttl:     ttl,
		now:     now,
		stopCh:  make(chan struct{}),
	}
}

func (m *Memory) Get(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[id]
	if !ok || m.expiredLocked(entry, m.now()) {
		delete(m.entries, id)
		return nil, ErrNotFound
	}
	entry.lastUsed = m.now()
	return entry.session.Clone(), nil
}

func (m *Memory) Save(_ context.Context, sess *models.Session) error {
	m.mu.Lock()
	m.entries[sess.ID] = &memoryEntry{session: sess.Clone(), lastUsed: m.now()}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep drops every expired session and reports how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, entry := range m.entries {
		if m.expiredLocked(entry, now) {
			delete(m.entries, id)
			removed++
		}
	}
	return removed
}

func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	return nil
}

func (m *Memory) expiredLocked(entry *memoryEntry, now time.Time) bool {
	return m.ttl > 0 && now.Sub(entry.lastUsed) >= m.ttl
}

func (m *Memory) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
