package bracket

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"BlitzCup/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	err = db.AutoMigrate(
		&models.Participant{},
		&models.Match{},
		&models.Problem{},
		&models.TournamentState{},
		&models.OutboxEvent{},
	)
	if err != nil {
		t.Fatalf("Failed to migrate tables: %v", err)
	}
	return db
}

func seedParticipants(t *testing.T, db *gorm.DB, n int) []models.Participant {
	t.Helper()

	participants := make([]models.Participant, 0, n)
	for i := 1; i <= n; i++ {
		p := models.Participant{Handle: fmt.Sprintf("player_%02d", i)}
		if _, err := p.SaveParticipant(db); err != nil {
			t.Fatalf("Failed to seed participant %d: %v", i, err)
		}
		participants = append(participants, p)
	}
	return participants
}

func seedProblems(t *testing.T, db *gorm.DB, band, n int) []models.Problem {
	t.Helper()

	problems := make([]models.Problem, 0, n)
	for i := 0; i < n; i++ {
		questionID := fmt.Sprintf("%d%c", 1000+band*100+i, 'A'+byte(i%6))
		p := models.Problem{
			QuestionID: questionID,
			Link:       "https://codeforces.com/problemset/problem/" + questionID,
			Band:       band,
		}
		if _, err := p.SaveProblem(db); err != nil {
			t.Fatalf("Failed to seed problem %d of band %d: %v", i, band, err)
		}
		problems = append(problems, p)
	}
	return problems
}

// fakeChecker is an in-memory submission verifier. failFirst injects
// transient errors into the first N calls.
type fakeChecker struct {
	mu        sync.Mutex
	solved    map[string]bool
	failFirst int
	calls     int
}

func newFakeChecker() *fakeChecker {
	return &fakeChecker{solved: make(map[string]bool)}
}

func (f *fakeChecker) markSolved(handle, questionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.solved[handle+"|"+questionID] = true
}

func (f *fakeChecker) HasSolved(ctx context.Context, handle, questionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirst {
		return false, fmt.Errorf("verifier unavailable")
	}
	return f.solved[handle+"|"+questionID], nil
}

// fakePublisher records every match-ready event it is handed.
type fakePublisher struct {
	mu     sync.Mutex
	events []MatchReady
}

func (f *fakePublisher) PublishMatchReady(ctx context.Context, event MatchReady) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) published() []MatchReady {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]MatchReady, len(f.events))
	copy(out, f.events)
	return out
}

// fakeNotifier records realtime winner pushes.
type fakeNotifier struct {
	mu      sync.Mutex
	updates []string
}

func (f *fakeNotifier) NotifyNewWinner(matchID string, winnerID uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, fmt.Sprintf("%s:%d", matchID, winnerID))
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func newTestEngine(t *testing.T, db *gorm.DB, checker Checker) (*Engine, *fakePublisher, *fakeNotifier) {
	t.Helper()

	config := Config{MaxAttempts: 10, RetryDelay: 0, FallbackOnExhaustion: true}
	publisher := &fakePublisher{}
	notifier := &fakeNotifier{}
	engine := NewEngine(db, NewProvisioner(db, checker, config), publisher, notifier)
	return engine, publisher, notifier
}
