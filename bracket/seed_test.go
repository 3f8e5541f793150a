package bracket

import (
	"context"
	"fmt"
	"testing"
	"time"

	"BlitzCup/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingPublisher simulates a broker that is down.
type failingPublisher struct{}

func (failingPublisher) PublishMatchReady(ctx context.Context, event MatchReady) error {
	return fmt.Errorf("broker unavailable")
}

func TestSeedRoundInsufficientParticipants(t *testing.T) {
	db := newTestDB(t)
	seedParticipants(t, db, 31)
	seedProblems(t, db, 1, 16)

	engine, _, _ := newTestEngine(t, db, newFakeChecker())

	err := engine.SeedRound(context.Background(), 1)
	assert.ErrorIs(t, err, ErrInsufficientParticipants)

	// The failed call leaves no partial bracket behind.
	var count int64
	require.NoError(t, db.Model(&models.Match{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSeedRoundInsufficientProblems(t *testing.T) {
	db := newTestDB(t)
	seedParticipants(t, db, 32)
	seedProblems(t, db, 1, 15)

	engine, _, _ := newTestEngine(t, db, newFakeChecker())

	err := engine.SeedRound(context.Background(), 1)
	assert.ErrorIs(t, err, ErrInsufficientProblems)

	var count int64
	require.NoError(t, db.Model(&models.Match{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestSeedRoundBuildsFullTree(t *testing.T) {
	db := newTestDB(t)
	participants := seedParticipants(t, db, 32)
	seedProblems(t, db, 1, 20)

	engine, publisher, _ := newTestEngine(t, db, newFakeChecker())
	require.NoError(t, engine.SeedRound(context.Background(), 1))

	var m models.Match
	all, err := m.FindAllMatches(db)
	require.NoError(t, err)
	require.Len(t, *all, 31)

	// The tree is addressed 1..31 with round-qualified names.
	byNumber := make(map[int]models.Match, len(*all))
	for _, match := range *all {
		byNumber[match.MatchNumber] = match
	}
	assert.Equal(t, "FINAL-1", byNumber[1].ID)
	assert.Equal(t, "SEMI-FINAL-1", byNumber[2].ID)
	assert.Equal(t, "QUARTER-FINAL-4", byNumber[7].ID)
	assert.Equal(t, "ROUND-OF-16-1", byNumber[8].ID)
	assert.Equal(t, "ROUND-OF-32-1", byNumber[16].ID)
	assert.Equal(t, "ROUND-OF-32-16", byNumber[31].ID)

	// All 16 opening matches are fully provisioned, later rounds are empty.
	seen := make(map[uint]bool)
	for number := 16; number <= 31; number++ {
		match := byNumber[number]
		require.NotNil(t, match.P1, "%s missing occupant 1", match.ID)
		require.NotNil(t, match.P2, "%s missing occupant 2", match.ID)
		require.NotNil(t, match.ProblemID, "%s missing problem", match.ID)
		assert.Equal(t, 1, match.Level)
		seen[*match.P1] = true
		seen[*match.P2] = true
	}
	assert.Len(t, seen, 32, "every participant is paired exactly once")
	for number := 1; number <= 15; number++ {
		assert.Nil(t, byNumber[number].P1)
		assert.Nil(t, byNumber[number].P2)
		assert.Nil(t, byNumber[number].ProblemID)
	}

	// Every entrant is stamped into round 1.
	for _, p := range participants {
		var reloaded models.Participant
		_, err := reloaded.FindParticipantByID(db, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, reloaded.MaxRound)
	}

	// One match-ready event per opening match, and the tournament is live.
	assert.Len(t, publisher.published(), 16)
	state, err := models.GetTournamentState(db)
	require.NoError(t, err)
	assert.True(t, state.Live)
	assert.Equal(t, 1, state.CurrentRound)
}

func TestSeedRoundRejectedWhileLive(t *testing.T) {
	db := newTestDB(t)
	seedParticipants(t, db, 32)
	seedProblems(t, db, 1, 20)

	engine, _, _ := newTestEngine(t, db, newFakeChecker())
	require.NoError(t, engine.SeedRound(context.Background(), 1))

	err := engine.SeedRound(context.Background(), 1)
	assert.ErrorIs(t, err, ErrTournamentLive)
}

func TestSeedRoundOutboxSurvivesPublishFailure(t *testing.T) {
	db := newTestDB(t)
	seedParticipants(t, db, 32)
	seedProblems(t, db, 1, 20)

	config := Config{MaxAttempts: 10, RetryDelay: 0, FallbackOnExhaustion: true}
	engine := NewEngine(db, NewProvisioner(db, newFakeChecker(), config), failingPublisher{}, &fakeNotifier{})

	require.NoError(t, engine.SeedRound(context.Background(), 1))

	// Every opening match is fully populated and its match-ready event is
	// committed durably, so the sweeper can deliver all of them later.
	var m models.Match
	matches, err := m.FindMatchesByLevel(db, 1)
	require.NoError(t, err)
	for _, match := range *matches {
		require.NotNil(t, match.ProblemID, "%s not populated", match.ID)
	}

	time.Sleep(10 * time.Millisecond)
	pending, err := models.FindUnpublishedEvents(db, 0, 100)
	require.NoError(t, err)
	assert.Len(t, pending, 16)
}

func TestSeedRoundResolvesBatchConflicts(t *testing.T) {
	db := newTestDB(t)
	seedParticipants(t, db, 32)
	problems := seedProblems(t, db, 1, 20)

	// The first pooled problem is burned: everybody has solved it, so no
	// pair may receive it.
	checker := newFakeChecker()
	burned := problems[0]
	for i := 1; i <= 32; i++ {
		checker.markSolved(fmt.Sprintf("player_%02d", i), burned.QuestionID)
	}

	engine, _, _ := newTestEngine(t, db, checker)
	require.NoError(t, engine.SeedRound(context.Background(), 1))

	var m models.Match
	matches, err := m.FindMatchesByLevel(db, 1)
	require.NoError(t, err)
	for _, match := range *matches {
		require.NotNil(t, match.ProblemID)
		assert.NotEqual(t, burned.ID, *match.ProblemID, "burned problem assigned to %s", match.ID)
	}

	var reloaded models.Problem
	_, err = reloaded.FindProblemByID(db, burned.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.Used, "the rejected problem goes back to the pool")
}
