package bracket

import (
	"context"
	"testing"

	"BlitzCup/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// seededEngine brings up a live round 1 bracket with 32 participants and a
// populated problem pool for every band.
func seededEngine(t *testing.T) (*Engine, *fakePublisher, *fakeNotifier, *gorm.DB) {
	t.Helper()

	db := newTestDB(t)
	seedParticipants(t, db, 32)
	for band := 1; band <= 5; band++ {
		seedProblems(t, db, band, 20)
	}

	checker := newFakeChecker()
	engine, publisher, notifier := newTestEngine(t, db, checker)

	require.NoError(t, engine.SeedRound(context.Background(), 1))
	return engine, publisher, notifier, db
}

func TestAdvanceWinnerFillsParentSlotByParity(t *testing.T) {
	engine, _, _, db := seededEngine(t)

	// Match 17 is odd, so its winner lands in slot 1 of match 8; match 16
	// is even and feeds slot 2 of the same parent.
	var odd, even models.Match
	_, err := odd.FindMatchByNumber(db, 17)
	require.NoError(t, err)
	_, err = even.FindMatchByNumber(db, 16)
	require.NoError(t, err)

	oddWinner := handleOf(t, db, *odd.P1)
	require.NoError(t, engine.AdvanceWinner(context.Background(), odd.ID, oddWinner))

	var parent models.Match
	_, err = parent.FindMatchByNumber(db, 8)
	require.NoError(t, err)
	require.NotNil(t, parent.P1)
	assert.Equal(t, *odd.P1, *parent.P1)
	assert.Nil(t, parent.P2, "slot 2 waits for the sibling match")
	assert.Nil(t, parent.ProblemID, "no problem until both slots are filled")

	evenWinner := handleOf(t, db, *even.P2)
	require.NoError(t, engine.AdvanceWinner(context.Background(), even.ID, evenWinner))

	_, err = parent.FindMatchByNumber(db, 8)
	require.NoError(t, err)
	require.NotNil(t, parent.P2)
	assert.Equal(t, *even.P2, *parent.P2)
}

func TestAdvanceWinnerRejectsNonOccupant(t *testing.T) {
	engine, publisher, _, db := seededEngine(t)

	var match, other models.Match
	_, err := match.FindMatchByNumber(db, 16)
	require.NoError(t, err)
	_, err = other.FindMatchByNumber(db, 17)
	require.NoError(t, err)

	outsider := handleOf(t, db, *other.P1)
	published := len(publisher.published())

	err = engine.AdvanceWinner(context.Background(), match.ID, outsider)
	assert.ErrorIs(t, err, ErrInvalidWinner)

	_, err = match.FindMatchByNumber(db, 16)
	require.NoError(t, err)
	assert.Nil(t, match.WinnerID)
	assert.Equal(t, published, len(publisher.published()))
}

func TestAdvanceWinnerIsIdempotent(t *testing.T) {
	engine, publisher, notifier, db := seededEngine(t)

	var match models.Match
	_, err := match.FindMatchByNumber(db, 20)
	require.NoError(t, err)
	winner := handleOf(t, db, *match.P1)

	require.NoError(t, engine.AdvanceWinner(context.Background(), match.ID, winner))

	snapshot := dumpMatches(t, db)
	published := len(publisher.published())
	notified := notifier.count()

	// Redelivery of the same decision is a successful no-op.
	require.NoError(t, engine.AdvanceWinner(context.Background(), match.ID, winner))
	assert.Equal(t, snapshot, dumpMatches(t, db))
	assert.Equal(t, published, len(publisher.published()))
	assert.Equal(t, notified, notifier.count())
}

func TestAdvanceWinnerDoesNotOverwriteWinner(t *testing.T) {
	engine, _, _, db := seededEngine(t)

	var match models.Match
	_, err := match.FindMatchByNumber(db, 22)
	require.NoError(t, err)

	first := handleOf(t, db, *match.P1)
	second := handleOf(t, db, *match.P2)

	require.NoError(t, engine.AdvanceWinner(context.Background(), match.ID, first))
	// A conflicting late report for the other occupant is absorbed, never
	// applied.
	require.NoError(t, engine.AdvanceWinner(context.Background(), match.ID, second))

	_, err = match.FindMatchByNumber(db, 22)
	require.NoError(t, err)
	require.NotNil(t, match.WinnerID)
	assert.Equal(t, *match.P1, *match.WinnerID)
}

func TestAdvanceWinnerProvisionsCompletedParent(t *testing.T) {
	engine, publisher, notifier, db := seededEngine(t)

	var odd, even models.Match
	_, err := odd.FindMatchByNumber(db, 19)
	require.NoError(t, err)
	_, err = even.FindMatchByNumber(db, 18)
	require.NoError(t, err)

	oddWinner := handleOf(t, db, *odd.P2)
	evenWinner := handleOf(t, db, *even.P1)
	seedEvents := len(publisher.published())

	require.NoError(t, engine.AdvanceWinner(context.Background(), odd.ID, oddWinner))
	require.NoError(t, engine.AdvanceWinner(context.Background(), even.ID, evenWinner))

	var parent models.Match
	_, err = parent.FindMatchByNumber(db, 9)
	require.NoError(t, err)
	require.NotNil(t, parent.P1)
	require.NotNil(t, parent.P2)
	require.NotNil(t, parent.ProblemID, "completed parent must be provisioned")

	var problem models.Problem
	_, err = problem.FindProblemByID(db, *parent.ProblemID)
	require.NoError(t, err)
	assert.Equal(t, 2, problem.Band, "problem band matches the parent's level")
	assert.True(t, problem.Used)

	events := publisher.published()
	require.Len(t, events, seedEvents+1)
	ready := events[len(events)-1]
	assert.Equal(t, parent.ID, ready.MatchID)
	assert.Equal(t, 9, ready.MatchNumber)
	assert.Equal(t, 2, ready.Level)
	assert.Equal(t, oddWinner, ready.P1, "odd feeder match fills slot 1")
	assert.Equal(t, evenWinner, ready.P2, "even feeder match fills slot 2")
	assert.Equal(t, problem.Link, ready.Question)

	assert.Equal(t, 2, notifier.count(), "both winners were pushed to live viewers")
}

func TestAdvanceWinnerRedeliveryRepairsFailedProvision(t *testing.T) {
	db := newTestDB(t)
	seedParticipants(t, db, 32)
	for band := 1; band <= 5; band++ {
		seedProblems(t, db, band, 20)
	}

	checker := newFakeChecker()
	publisher := &fakePublisher{}
	config := Config{MaxAttempts: 2, RetryDelay: 0, FallbackOnExhaustion: false}
	engine := NewEngine(db, NewProvisioner(db, checker, config), publisher, &fakeNotifier{})
	require.NoError(t, engine.SeedRound(context.Background(), 1))
	ctx := context.Background()

	var odd, even models.Match
	_, err := odd.FindMatchByNumber(db, 17)
	require.NoError(t, err)
	_, err = even.FindMatchByNumber(db, 16)
	require.NoError(t, err)
	require.NoError(t, engine.AdvanceWinner(ctx, odd.ID, handleOf(t, db, *odd.P1)))

	// The verifier goes down. The sibling's advancement records its winner
	// but cannot provision the completed parent.
	checker.mu.Lock()
	checker.failFirst = checker.calls + 1000
	checker.mu.Unlock()

	evenWinner := handleOf(t, db, *even.P2)
	err = engine.AdvanceWinner(ctx, even.ID, evenWinner)
	require.ErrorIs(t, err, ErrProvisionExhausted)

	var parent models.Match
	_, err = parent.FindMatchByNumber(db, 8)
	require.NoError(t, err)
	require.NotNil(t, parent.P1)
	require.NotNil(t, parent.P2)
	require.Nil(t, parent.ProblemID)

	_, err = even.FindMatchByNumber(db, 16)
	require.NoError(t, err)
	require.NotNil(t, even.WinnerID, "the winner survives the failed advancement")

	// The verifier recovers and the queue redelivers the same decision;
	// the resumed advancement finishes the parent.
	checker.mu.Lock()
	checker.failFirst = 0
	checker.mu.Unlock()
	published := len(publisher.published())

	require.NoError(t, engine.AdvanceWinner(ctx, even.ID, evenWinner))

	_, err = parent.FindMatchByNumber(db, 8)
	require.NoError(t, err)
	require.NotNil(t, parent.ProblemID, "redelivery must provision the completed parent")
	assert.Len(t, publisher.published(), published+1)

	// The failed attempt's reservation went back to the pool, so exactly
	// one band-2 problem is held.
	var reserved int64
	require.NoError(t, db.Model(&models.Problem{}).
		Where("band = ? AND used = ?", 2, true).Count(&reserved).Error)
	assert.EqualValues(t, 1, reserved)
}

func TestFullBracketDrainProducesOneChampion(t *testing.T) {
	engine, _, _, db := seededEngine(t)
	ctx := context.Background()

	for level := 1; level <= 5; level++ {
		var m models.Match
		matches, err := m.FindMatchesByLevel(db, level)
		require.NoError(t, err)

		for _, match := range *matches {
			require.NotNil(t, match.P1, "match %s missing occupant 1", match.ID)
			require.NotNil(t, match.P2, "match %s missing occupant 2", match.ID)
			require.NotNil(t, match.ProblemID, "match %s missing problem", match.ID)
			winner := handleOf(t, db, *match.P1)
			require.NoError(t, engine.AdvanceWinner(ctx, match.ID, winner))
		}
	}

	// Every decided match holds a winner that is one of its occupants.
	var m models.Match
	all, err := m.FindAllMatches(db)
	require.NoError(t, err)
	assert.Len(t, *all, 31)
	for _, match := range *all {
		require.NotNil(t, match.WinnerID, "match %s undecided", match.ID)
		valid := (match.P1 != nil && *match.P1 == *match.WinnerID) ||
			(match.P2 != nil && *match.P2 == *match.WinnerID)
		assert.True(t, valid, "winner of %s is not an occupant", match.ID)
	}

	// Exactly one participant survived the final.
	var champions int64
	require.NoError(t, db.Model(&models.Participant{}).Where("max_round = ?", 6).Count(&champions).Error)
	assert.EqualValues(t, 1, champions)
}

func TestResetClearsBracket(t *testing.T) {
	engine, _, _, db := seededEngine(t)

	require.NoError(t, engine.Reset(context.Background()))

	var matchCount int64
	require.NoError(t, db.Model(&models.Match{}).Count(&matchCount).Error)
	assert.Zero(t, matchCount)

	var reserved int64
	require.NoError(t, db.Model(&models.Problem{}).Where("used = ?", true).Count(&reserved).Error)
	assert.Zero(t, reserved)

	state, err := models.GetTournamentState(db)
	require.NoError(t, err)
	assert.False(t, state.Live)
}

func handleOf(t *testing.T, db *gorm.DB, id uint) string {
	t.Helper()
	var p models.Participant
	if _, err := p.FindParticipantByID(db, id); err != nil {
		t.Fatalf("participant %d not found: %v", id, err)
	}
	return p.Handle
}

func dumpMatches(t *testing.T, db *gorm.DB) []models.Match {
	t.Helper()
	var m models.Match
	matches, err := m.FindAllMatches(db)
	if err != nil {
		t.Fatalf("dump matches: %v", err)
	}
	return *matches
}
