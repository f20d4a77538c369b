package session

import (
	"database/sql"
	"encoding/json"
	"log"
	"sync"

	"github.com/gator-labs/chomp-bot/internal/models"
)

// InitSchema creates the sessions table.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			user_id INTEGER PRIMARY KEY,
			data TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// sqliteStore persists sessions as JSON rows so they survive restarts.
// Per-user locks serialize handlers; the queue serializes the SQL itself.
type sqliteStore struct {
	queue *DBQueue

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func NewSQLiteStore(queue *DBQueue) Store {
	return &sqliteStore{
		queue: queue,
		locks: make(map[int64]*sync.Mutex),
	}
}

func (s *sqliteStore) userLock(userID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func (s *sqliteStore) load(userID int64) (*models.Session, bool) {
	data, err := s.queue.Execute(func(db *sql.DB) (interface{}, error) {
		var raw string
		err := db.QueryRow("SELECT data FROM sessions WHERE user_id = ?", userID).Scan(&raw)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		log.Printf("[SESSION] Failed to load session for %d: %v", userID, err)
		return nil, false
	}
	raw, ok := data.(string)
	if !ok {
		return nil, false
	}

	var sess models.Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		log.Printf("[SESSION] Corrupt session for %d, resetting: %v", userID, err)
		return nil, false
	}
	return &sess, true
}

func (s *sqliteStore) save(userID int64, sess *models.Session) {
	raw, err := json.Marshal(sess)
	if err != nil {
		log.Printf("[SESSION] Failed to encode session for %d: %v", userID, err)
		return
	}
	_, err = s.queue.Execute(func(db *sql.DB) (interface{}, error) {
		return db.Exec(`
			INSERT INTO sessions (user_id, data, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(user_id) DO UPDATE SET data = excluded.data, updated_at = CURRENT_TIMESTAMP
		`, userID, string(raw))
	})
	if err != nil {
		log.Printf("[SESSION] Failed to save session for %d: %v", userID, err)
	}
}

func (s *sqliteStore) Get(userID int64) (*models.Session, bool) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()
	return s.load(userID)
}

func (s *sqliteStore) Set(userID int64, sess *models.Session) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()
	s.save(userID, sess)
}

func (s *sqliteStore) Delete(userID int64) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()
	_, err := s.queue.Execute(func(db *sql.DB) (interface{}, error) {
		return db.Exec("DELETE FROM sessions WHERE user_id = ?", userID)
	})
	if err != nil {
		log.Printf("[SESSION] Failed to delete session for %d: %v", userID, err)
	}
}

func (s *sqliteStore) WithLock(userID int64, fn func(sess *models.Session)) {
	l := s.userLock(userID)
	l.Lock()
	defer l.Unlock()

	sess, ok := s.load(userID)
	if !ok {
		sess = newSession()
	}
	fn(sess)
	s.save(userID, sess)
}
