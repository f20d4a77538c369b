package session

import (
	"database/sql"
	"sync"
	"testing"

	"github.com/gator-labs/chomp-bot/internal/fsm"
	"github.com/gator-labs/chomp-bot/internal/models"
	_ "modernc.org/sqlite"
	"pgregory.net/rapid"
)

func setupTestStore(t *testing.T) (Store, func()) {
	sqlDB, err := sql.Open("sqlite", "file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}
	if err := InitSchema(sqlDB); err != nil {
		t.Fatal(err)
	}

	queue := NewDBQueueForTest(sqlDB)
	return NewSQLiteStore(queue), func() {
		queue.Close()
		sqlDB.Close()
	}
}

func TestMemoryStoreCreatesSessionOnFirstLock(t *testing.T) {
	store := NewMemoryStore()

	if _, ok := store.Get(1); ok {
		t.Fatal("expected no session before first write")
	}

	store.WithLock(1, func(sess *models.Session) {
		if sess.State != fsm.StateNew {
			t.Errorf("fresh session state = %q, want %q", sess.State, fsm.StateNew)
		}
		sess.State = fsm.StateMenu
	})

	sess, ok := store.Get(1)
	if !ok {
		t.Fatal("session not retained after WithLock")
	}
	if sess.State != fsm.StateMenu {
		t.Errorf("state = %q, want %q", sess.State, fsm.StateMenu)
	}
}

func TestMemoryStoreKeyedIsolation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		store := NewMemoryStore()

		base := rapid.Int64Range(1, 1_000_000).Draw(rt, "base")
		numUsers := rapid.IntRange(2, 20).Draw(rt, "numUsers")

		for i := 0; i < numUsers; i++ {
			userID := base + int64(i)
			store.WithLock(userID, func(sess *models.Session) {
				sess.AnswerElapsedMs = userID
			})
		}

		for i := 0; i < numUsers; i++ {
			userID := base + int64(i)
			sess, ok := store.Get(userID)
			if !ok {
				rt.Fatalf("no session for user %d", userID)
			}
			if sess.AnswerElapsedMs != userID {
				rt.Errorf("user %d sees value %d; cross-user leakage", userID, sess.AnswerElapsedMs)
			}
		}
	})
}

func TestMemoryStoreWithLockIsExclusive(t *testing.T) {
	store := NewMemoryStore()

	const workers = 10
	const iterations = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				store.WithLock(7, func(sess *models.Session) {
					sess.AnswerElapsedMs++
				})
			}
		}()
	}
	wg.Wait()

	sess, _ := store.Get(7)
	if sess.AnswerElapsedMs != workers*iterations {
		t.Errorf("counter = %d, want %d; WithLock not exclusive", sess.AnswerElapsedMs, workers*iterations)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore()

	store.Set(3, &models.Session{State: fsm.StateMenu})
	store.Delete(3)

	if _, ok := store.Get(3); ok {
		t.Error("session survived delete")
	}

	store.WithLock(3, func(sess *models.Session) {
		if sess.State != fsm.StateNew {
			t.Errorf("recreated session state = %q, want %q", sess.State, fsm.StateNew)
		}
	})
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	deckID := int64(4)
	store.WithLock(100, func(sess *models.Session) {
		sess.State = fsm.StateAwaitingFirstOrderAnswer
		sess.User = &models.User{ID: "user-1", TelegramID: 100, Wallets: []models.Wallet{{Address: "abc"}}}
		sess.Question = &models.Question{
			ID:                  17,
			Question:            "Is mayo an instrument?",
			Type:                models.QuestionTypeBinary,
			DurationMiliseconds: 10000,
			DeckID:              &deckID,
			Options: []models.QuestionOption{
				{ID: 1, Option: "Yes", IsLeft: true},
				{ID: 2, Option: "No"},
			},
		}
		sess.Verification = &models.EmailVerification{Email: "a@b.co", VerificationUUID: "uuid-1"}
	})

	sess, ok := store.Get(100)
	if !ok {
		t.Fatal("session not persisted")
	}
	if sess.State != fsm.StateAwaitingFirstOrderAnswer {
		t.Errorf("state = %q", sess.State)
	}
	if sess.User == nil || !sess.User.HasWallet() {
		t.Error("user wallet lost in round trip")
	}
	if sess.Question == nil || sess.Question.DeckID == nil || *sess.Question.DeckID != deckID {
		t.Error("question deck id lost in round trip")
	}
	if opt := sess.Question.OptionByID(2); opt == nil || opt.Option != "No" {
		t.Error("question options lost in round trip")
	}
	if sess.Verification == nil || sess.Verification.VerificationUUID != "uuid-1" {
		t.Error("verification ticket lost in round trip")
	}
}

func TestSQLiteStoreDelete(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	store.Set(200, &models.Session{State: fsm.StateMenu})
	if _, ok := store.Get(200); !ok {
		t.Fatal("session not stored")
	}

	store.Delete(200)
	if _, ok := store.Get(200); ok {
		t.Error("session survived delete")
	}
}

func TestSQLiteStoreWithLockIsExclusive(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	const workers = 5
	const iterations = 20

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				store.WithLock(300, func(sess *models.Session) {
					sess.AnswerElapsedMs++
				})
			}
		}()
	}
	wg.Wait()

	sess, ok := store.Get(300)
	if !ok {
		t.Fatal("no session after concurrent writes")
	}
	if sess.AnswerElapsedMs != workers*iterations {
		t.Errorf("counter = %d, want %d", sess.AnswerElapsedMs, workers*iterations)
	}
}
