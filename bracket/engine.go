package bracket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"

	"BlitzCup/models"

	"gorm.io/gorm"
)

const rounds = 5

// MatchReady is the outbound payload handed to the match-execution workers
// once a match has both occupants and a validated problem.
type MatchReady struct {
	P1          string `json:"p1"`
	P2          string `json:"p2"`
	MatchID     string `json:"match_id"`
	MatchNumber int    `json:"match_number"`
	Level       int    `json:"level"`
	Question    string `json:"cf_question"`
}

// MatchPublisher pushes a match-ready payload onto the outbound channel with
// at-least-once semantics.
type MatchPublisher interface {
	PublishMatchReady(ctx context.Context, event MatchReady) error
}

// WinnerNotifier fans a "new winner" update out to live viewers. Best effort:
// failures must not block advancement.
type WinnerNotifier interface {
	NotifyNewWinner(matchID string, winnerID uint)
}

// MatchReadyTopic is the durable queue the execution workers consume.
const MatchReadyTopic = "matches"

// Engine is the bracket progression engine: it consumes winner decisions,
// advances the binary tree by one step each, and provisions newly completed
// matches with a conflict-free problem.
type Engine struct {
	db          *gorm.DB
	provisioner ProblemProvisioner
	publisher   MatchPublisher
	notifier    WinnerNotifier

	// resetMu makes the bracket-wide operations mutually exclusive with
	// in-flight advancement: advancement holds the read side, seeding and
	// reset take the write side.
	resetMu sync.RWMutex

	// parentMu serializes the slot-fill-and-provision sequence per parent
	// match so sibling winners (or a duplicate redelivery) never race.
	parentMu keyedMutex
}

func NewEngine(db *gorm.DB, provisioner ProblemProvisioner, publisher MatchPublisher, notifier WinnerNotifier) *Engine {
	return &Engine{
		db:          db,
		provisioner: provisioner,
		publisher:   publisher,
		notifier:    notifier,
	}
}

// AdvanceWinner records the winner of a match and advances the bracket by
// exactly one step. The call is idempotent but not a bare no-op on
// redelivery: an advancement can fail after the winner is durably recorded
// (parent update or provisioning), and the queue redelivers exactly so that
// failure can be repaired. A redelivered decision therefore resumes the
// parent-side work, where every step is conditional, instead of returning
// early. The bracket itself is never re-advanced.
func (e *Engine) AdvanceWinner(ctx context.Context, matchID, winnerHandle string) error {
	e.resetMu.RLock()
	defer e.resetMu.RUnlock()

	var match models.Match
	if _, err := match.FindMatchByID(e.db, matchID); err != nil {
		return fmt.Errorf("advance winner: match %s: %w", matchID, err)
	}

	var winner models.Participant
	if _, err := winner.FindParticipantByHandle(e.db, winnerHandle); err != nil {
		return fmt.Errorf("advance winner: participant %s: %w", winnerHandle, err)
	}

	if !isOccupant(&match, winner.ID) {
		return fmt.Errorf("advance winner: match %s, handle %s: %w", matchID, winnerHandle, ErrInvalidWinner)
	}

	parentNumber, _ := ParentSlot(match.MatchNumber)
	unlock := e.parentMu.lock(parentNumber)
	defer unlock()

	if match.WinnerID != nil {
		if *match.WinnerID != winner.ID {
			log.Printf("[engine] match %s already won by participant %d, ignoring conflicting report for %d",
				matchID, *match.WinnerID, winner.ID)
			return nil
		}
		return e.advanceToParent(ctx, &match, &winner)
	}

	rows, err := match.SetWinner(e.db, winner.ID)
	if err != nil {
		return fmt.Errorf("advance winner: set winner on %s: %w", matchID, err)
	}
	if rows == 0 {
		// Another delivery recorded the winner between our read and the
		// update. Resume only if it agrees with this report.
		if _, err := match.FindMatchByID(e.db, matchID); err != nil {
			return fmt.Errorf("advance winner: reread match %s: %w", matchID, err)
		}
		if match.WinnerID == nil || *match.WinnerID != winner.ID {
			return nil
		}
		return e.advanceToParent(ctx, &match, &winner)
	}

	// Live viewers see the winner immediately, whether or not the parent
	// match is ready yet.
	if e.notifier != nil {
		e.notifier.NotifyNewWinner(matchID, winner.ID)
	}

	if IsFinal(match.MatchNumber) {
		log.Printf("[engine] tournament decided: participant %d (%s) wins the final", winner.ID, winner.Handle)
	}
	return e.advanceToParent(ctx, &match, &winner)
}

// advanceToParent does the work that follows a recorded winner: fill the
// parent slot, bump the winner's round, and provision the parent once both
// slots are in. Every step is a conditional update or guarded by a re-read,
// so it is safe to run again on redelivery. The caller holds the parent
// lock.
func (e *Engine) advanceToParent(ctx context.Context, match *models.Match, winner *models.Participant) error {
	if IsFinal(match.MatchNumber) {
		if err := winner.AdvanceMaxRound(e.db, match.Level+1); err != nil {
			log.Printf("[engine] could not record champion round: %v", err)
		}
		return nil
	}

	parentNumber, slot := ParentSlot(match.MatchNumber)

	var parent models.Match
	if _, err := parent.FindMatchByNumber(e.db, parentNumber); err != nil {
		return fmt.Errorf("advance winner: parent match %d: %w", parentNumber, err)
	}

	if _, err := parent.FillSlot(e.db, slot, winner.ID); err != nil {
		return fmt.Errorf("advance winner: fill slot %d of match %d: %w", slot, parentNumber, err)
	}

	if err := winner.AdvanceMaxRound(e.db, parent.Level); err != nil {
		log.Printf("[engine] could not bump max round for participant %d: %v", winner.ID, err)
	}

	// Re-read the parent: the sibling match may have filled the other slot
	// in the meantime.
	if _, err := parent.FindMatchByNumber(e.db, parentNumber); err != nil {
		return fmt.Errorf("advance winner: reread parent %d: %w", parentNumber, err)
	}
	if parent.P1 == nil || parent.P2 == nil {
		// Waiting for the other occupant.
		return nil
	}
	if parent.ProblemID != nil {
		// Already provisioned (duplicate-safe).
		return nil
	}

	if err := e.ProvisionMatch(ctx, &parent); err != nil {
		return fmt.Errorf("advance winner: provision match %s: %w", parent.ID, err)
	}
	return nil
}

// ProvisionMatch selects a conflict-free problem for a match whose two slots
// are filled, persists the assignment together with its outbox row, then
// publishes the match-ready event.
func (e *Engine) ProvisionMatch(ctx context.Context, match *models.Match) error {
	if match.P1 == nil || match.P2 == nil {
		return fmt.Errorf("provision %s: both slots must be filled", match.ID)
	}

	var occupant1, occupant2 models.Participant
	if _, err := occupant1.FindParticipantByID(e.db, *match.P1); err != nil {
		return fmt.Errorf("provision %s: occupant 1: %w", match.ID, err)
	}
	if _, err := occupant2.FindParticipantByID(e.db, *match.P2); err != nil {
		return fmt.Errorf("provision %s: occupant 2: %w", match.ID, err)
	}

	problem, degraded, err := e.provisioner.Resolve(ctx, match.Level, occupant1.Handle, occupant2.Handle, nil)
	if err != nil {
		return fmt.Errorf("provision %s: %w", match.ID, err)
	}
	if degraded {
		log.Printf("[engine] match %s provisioned with possibly pre-solved problem %s after retry exhaustion",
			match.ID, problem.QuestionID)
	}

	event := MatchReady{
		P1:          occupant1.Handle,
		P2:          occupant2.Handle,
		MatchID:     match.ID,
		MatchNumber: match.MatchNumber,
		Level:       match.Level,
		Question:    problem.Link,
	}
	return e.commitAndPublish(ctx, match, problem.ID, event)
}

// commitAndPublish writes the problem assignment and the outbox row in one
// transaction, then attempts the direct broker publish. A failed publish is
// only logged: the row stays unpublished and the sweeper delivers it.
func (e *Engine) commitAndPublish(ctx context.Context, match *models.Match, problemID uint, event MatchReady) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	outbox := models.OutboxEvent{Topic: MatchReadyTopic, Payload: string(payload)}
	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := match.AssignProblem(tx, problemID); err != nil {
			return err
		}
		return outbox.Enqueue(tx)
	})
	if err != nil {
		return err
	}

	e.publishReady(ctx, match, &outbox, event)
	return nil
}

// publishReady attempts the direct broker publish for a committed outbox
// row. A failure is only logged: the row stays unpublished and the sweeper
// delivers it.
func (e *Engine) publishReady(ctx context.Context, match *models.Match, outbox *models.OutboxEvent, event MatchReady) {
	if err := e.publisher.PublishMatchReady(ctx, event); err != nil {
		log.Printf("[engine] publish failed for match %s, outbox sweep will retry: %v", match.ID, err)
		return
	}
	if err := outbox.MarkPublished(e.db); err != nil {
		log.Printf("[engine] could not mark outbox event %d published: %v", outbox.ID, err)
	}
}

// Reset clears the bracket. It takes the write side of the reset lock, so it
// waits for in-flight advancements to finish and blocks new ones while it
// runs.
func (e *Engine) Reset(ctx context.Context) error {
	e.resetMu.Lock()
	defer e.resetMu.Unlock()

	if _, err := models.DeleteAllMatches(e.db); err != nil {
		return fmt.Errorf("reset: delete matches: %w", err)
	}
	if err := models.ReleaseAllProblems(e.db); err != nil {
		return fmt.Errorf("reset: release problems: %w", err)
	}
	if err := models.ResetMaxRounds(e.db); err != nil {
		return fmt.Errorf("reset: reset participants: %w", err)
	}
	if err := models.DeleteAllOutboxEvents(e.db); err != nil {
		return fmt.Errorf("reset: clear outbox: %w", err)
	}

	state, err := models.GetTournamentState(e.db)
	if err != nil {
		return fmt.Errorf("reset: load state: %w", err)
	}
	if err := state.SetLive(e.db, false, 0); err != nil {
		return fmt.Errorf("reset: clear live flag: %w", err)
	}

	log.Println("[engine] tournament reset")
	return nil
}

// IsNotFound reports whether the error is a missing-record lookup, which the
// consumer treats as a poison message rather than a transient failure.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func isOccupant(match *models.Match, participantID uint) bool {
	if match.P1 != nil && *match.P1 == participantID {
		return true
	}
	if match.P2 != nil && *match.P2 == participantID {
		return true
	}
	return false
}

// keyedMutex hands out one mutex per parent match number.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func (k *keyedMutex) lock(key int) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[int]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
