package bracket

import "errors"

var (
	// ErrInvalidWinner means the reported winner is not an occupant of the
	// match it supposedly won.
	ErrInvalidWinner = errors.New("winner is not an occupant of the match")

	// ErrInsufficientParticipants fails seeding before any match is created.
	ErrInsufficientParticipants = errors.New("not enough eligible participants for this round")

	// ErrInsufficientProblems fails seeding when the band holds fewer unused
	// problems than the round needs.
	ErrInsufficientProblems = errors.New("not enough unused problems for this band")

	// ErrProvisionExhausted is returned only when the retry budget runs out
	// and the exhaustion fallback is disabled.
	ErrProvisionExhausted = errors.New("conflict resolution exhausted all attempts")

	// ErrTournamentLive rejects seeding while a bracket is already running.
	ErrTournamentLive = errors.New("a tournament is already live")
)
