package bracket

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"

	"BlitzCup/models"

	"gorm.io/gorm"
)

var roundNames = map[int]string{
	1: "ROUND-OF-32",
	2: "ROUND-OF-16",
	3: "QUARTER-FINAL",
	4: "SEMI-FINAL",
	5: "FINAL",
}

// MatchID builds the human-readable identifier for the i-th match (1-based)
// of a round, e.g. "ROUND-OF-32-3" or "FINAL-1".
func MatchID(level, ordinal int) string {
	return fmt.Sprintf("%s-%d", roundNames[level], ordinal)
}

// matchesAtLevel is the number of matches a round holds in the 32-entrant
// tree: 16, 8, 4, 2, 1.
func matchesAtLevel(level int) int {
	return 1 << (rounds - level)
}

// firstNumberAtLevel is the smallest tree position of a round: level 1 spans
// 16..31, the final sits at 1.
func firstNumberAtLevel(level int) int {
	return 1 << (rounds - level)
}

// SeedRound creates the full match tree and populates the starting round:
// eligible participants are shuffled, paired sequentially into the round's
// matches, and each pair's problem is validated with the same conflict
// resolution the progression engine uses - seeded from an up-front batch of
// exactly one unused problem per match.
//
// Both preconditions are hard: fewer eligible participants or unused problems
// than the round needs fails the whole call before any match is created.
func (e *Engine) SeedRound(ctx context.Context, round int) error {
	e.resetMu.Lock()
	defer e.resetMu.Unlock()

	level := round
	if level > rounds {
		level = rounds
	}
	matchCount := matchesAtLevel(level)
	needed := matchCount * 2

	state, err := models.GetTournamentState(e.db)
	if err != nil {
		return fmt.Errorf("seed round %d: load state: %w", round, err)
	}
	if state.Live {
		return fmt.Errorf("seed round %d: %w", round, ErrTournamentLive)
	}

	var p models.Participant
	eligible, err := p.FindEligibleParticipants(e.db, round, needed)
	if err != nil {
		return fmt.Errorf("seed round %d: load participants: %w", round, err)
	}
	if len(*eligible) < needed {
		return fmt.Errorf("seed round %d: have %d of %d participants: %w",
			round, len(*eligible), needed, ErrInsufficientParticipants)
	}

	unused, err := models.CountUnusedProblems(e.db, level)
	if err != nil {
		return fmt.Errorf("seed round %d: count problems: %w", round, err)
	}
	if unused < int64(matchCount) {
		return fmt.Errorf("seed round %d: have %d of %d problems in band %d: %w",
			round, unused, matchCount, level, ErrInsufficientProblems)
	}

	if err := e.createTree(level); err != nil {
		return fmt.Errorf("seed round %d: create tree: %w", round, err)
	}

	participants := *eligible
	rand.Shuffle(len(participants), func(i, j int) {
		participants[i], participants[j] = participants[j], participants[i]
	})

	batch, err := models.ReserveProblemBatch(e.db, level, matchCount)
	if err != nil {
		return fmt.Errorf("seed round %d: reserve problems: %w", round, err)
	}

	first := firstNumberAtLevel(level)
	ids := make([]uint, 0, needed)

	for i := 0; i < matchCount; i++ {
		occupant1 := participants[i*2]
		occupant2 := participants[i*2+1]
		ids = append(ids, occupant1.ID, occupant2.ID)

		problem, degraded, err := e.provisioner.Resolve(ctx, level, occupant1.Handle, occupant2.Handle, &batch[i])
		if err != nil {
			return fmt.Errorf("seed round %d: resolve problem for pair %d: %w", round, i+1, err)
		}
		if degraded {
			log.Printf("[seed] pair %d (%s vs %s) provisioned with possibly pre-solved problem %s",
				i+1, occupant1.Handle, occupant2.Handle, problem.QuestionID)
		}

		var match models.Match
		if _, err := match.FindMatchByNumber(e.db, first+i); err != nil {
			return fmt.Errorf("seed round %d: match %d: %w", round, first+i, err)
		}

		event := MatchReady{
			P1:          occupant1.Handle,
			P2:          occupant2.Handle,
			MatchID:     match.ID,
			MatchNumber: match.MatchNumber,
			Level:       match.Level,
			Question:    problem.Link,
		}
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("seed round %d: encode event for %s: %w", round, match.ID, err)
		}

		// The outbox row commits with the slot fills and the problem
		// assignment. A crash after this transaction cannot lose the
		// match-ready event: the sweeper picks the row up.
		outbox := models.OutboxEvent{Topic: MatchReadyTopic, Payload: string(payload)}
		err = e.db.Transaction(func(tx *gorm.DB) error {
			if _, err := match.FillSlot(tx, 1, occupant1.ID); err != nil {
				return err
			}
			if _, err := match.FillSlot(tx, 2, occupant2.ID); err != nil {
				return err
			}
			if err := match.AssignProblem(tx, problem.ID); err != nil {
				return err
			}
			return outbox.Enqueue(tx)
		})
		if err != nil {
			return fmt.Errorf("seed round %d: populate match %s: %w", round, match.ID, err)
		}

		e.publishReady(ctx, &match, &outbox, event)
	}

	if err := models.SetMaxRoundForAll(e.db, ids, round); err != nil {
		return fmt.Errorf("seed round %d: stamp participants: %w", round, err)
	}
	if err := state.SetLive(e.db, true, round); err != nil {
		return fmt.Errorf("seed round %d: set live: %w", round, err)
	}

	log.Printf("[seed] round %d live: %d matches, %d participants", round, matchCount, needed)
	return nil
}

// createTree inserts the empty match rows for the starting level and every
// level above it, named by round and ordinal.
func (e *Engine) createTree(startLevel int) error {
	return e.db.Transaction(func(tx *gorm.DB) error {
		for level := startLevel; level <= rounds; level++ {
			first := firstNumberAtLevel(level)
			for i := 0; i < matchesAtLevel(level); i++ {
				match := models.Match{
					ID:          MatchID(level, i+1),
					MatchNumber: first + i,
					Level:       level,
				}
				if err := tx.Create(&match).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
}
