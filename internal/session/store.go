package session

import (
	"sync"

	"github.com/gator-labs/chomp-bot/internal/fsm"
	"github.com/gator-labs/chomp-bot/internal/models"
)

// Store keeps per-user sessions keyed by telegram user id. WithLock gives
// exclusive access to one user's session and is the only way handlers
// mutate it: updates, timer ticks and expiries for the same user are
// serialized here, whatever ordering the transport provides.
type Store interface {
	Get(userID int64) (*models.Session, bool)
	Set(userID int64, sess *models.Session)
	Delete(userID int64)
	WithLock(userID int64, fn func(sess *models.Session))
}

func newSession() *models.Session {
	return &models.Session{State: fsm.StateNew}
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[int64]*memoryEntry
}

type memoryEntry struct {
	mu   sync.Mutex
	sess *models.Session
}

// NewMemoryStore constructs the default in-process Store. Sessions live
// for the process uptime.
func NewMemoryStore() Store {
	return &memoryStore{entries: make(map[int64]*memoryEntry)}
}

func (m *memoryStore) entry(userID int64) *memoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		e = &memoryEntry{sess: newSession()}
		m.entries[userID] = e
	}
	return e
}

func (m *memoryStore) Get(userID int64) (*models.Session, bool) {
	m.mu.Lock()
	e, ok := m.entries[userID]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess, true
}

func (m *memoryStore) Set(userID int64, sess *models.Session) {
	e := m.entry(userID)
	e.mu.Lock()
	e.sess = sess
	e.mu.Unlock()
}

func (m *memoryStore) Delete(userID int64) {
	m.mu.Lock()
	delete(m.entries, userID)
	m.mu.Unlock()
}

func (m *memoryStore) WithLock(userID int64, fn func(sess *models.Session)) {
	e := m.entry(userID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.sess)
}
