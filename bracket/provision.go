package bracket

import (
	"context"
	"errors"
	"log"
	"time"

	"BlitzCup/models"

	"gorm.io/gorm"
)

// Checker reports whether a handle has an accepted submission for a problem.
// The production implementation calls the Codeforces API; tests use a fake.
type Checker interface {
	HasSolved(ctx context.Context, handle, questionID string) (bool, error)
}

// ProblemProvisioner resolves a conflict-free problem for an occupant pair.
// It is the one routine shared by round seeding and bracket advancement.
type ProblemProvisioner interface {
	Resolve(ctx context.Context, band int, handle1, handle2 string, initial *models.Problem) (*models.Problem, bool, error)
}

// Config tunes the conflict-resolution loop. The defaults mirror long-running
// production values; they are a pragmatic choice, not a derived optimum.
type Config struct {
	// MaxAttempts bounds the reserve-verify-release loop.
	MaxAttempts int
	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
	// FallbackOnExhaustion hands out the last attempted problem instead of
	// failing the match when the budget runs out.
	FallbackOnExhaustion bool
}

// DefaultConfig returns the stock retry policy: 100 attempts, 500ms apart,
// degrade rather than fail.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:          100,
		RetryDelay:           500 * time.Millisecond,
		FallbackOnExhaustion: true,
	}
}

// Provisioner reserves pool problems and validates them against both
// occupants' submission history.
type Provisioner struct {
	DB      *gorm.DB
	Checker Checker
	Config  Config
}

func NewProvisioner(db *gorm.DB, checker Checker, cfg Config) *Provisioner {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return &Provisioner{DB: db, Checker: checker, Config: cfg}
}

// Resolve finds an unused problem in the band that neither occupant has
// already solved. A non-nil initial problem (seeding hands in one from its
// up-front batch) is verified first; otherwise one is reserved from the pool.
//
// Conflicted problems are kept reserved until the loop settles. Releasing
// them mid-loop would make the next reservation pick the same row straight
// back up; they all return to the pool once a decision is made.
//
// Verifier failures are treated as "unknown" and retried with the same
// candidate: a timed-out check must never count as "problem is clean".
//
// The bool result reports degradation: true means the retry budget ran out
// and the last attempted problem was handed out anyway.
func (p *Provisioner) Resolve(ctx context.Context, band int, handle1, handle2 string, initial *models.Problem) (*models.Problem, bool, error) {
	candidate := initial
	var last *models.Problem
	var rejected []*models.Problem

	// abandon puts every parked problem, and the still-reserved candidate
	// of a failed loop, back into the pool.
	abandon := func() {
		if candidate != nil {
			rejected = append(rejected, candidate)
		}
		p.releaseRejected(rejected, nil)
	}

	for attempt := 1; attempt <= p.Config.MaxAttempts; attempt++ {
		if candidate == nil {
			problem, err := models.ReserveNextProblem(p.DB, band)
			if err != nil {
				if errors.Is(err, models.ErrNoUnusedProblems) {
					log.Printf("[provision] pool dry for band %d after %d attempts", band, attempt-1)
					break
				}
				abandon()
				return nil, false, err
			}
			candidate = problem
		}
		last = candidate

		solved1, err := p.Checker.HasSolved(ctx, handle1, candidate.QuestionID)
		if err != nil {
			log.Printf("[provision] verifier error for %s on %s (attempt %d): %v", handle1, candidate.QuestionID, attempt, err)
			if err := p.wait(ctx); err != nil {
				abandon()
				return nil, false, err
			}
			continue
		}
		solved2, err := p.Checker.HasSolved(ctx, handle2, candidate.QuestionID)
		if err != nil {
			log.Printf("[provision] verifier error for %s on %s (attempt %d): %v", handle2, candidate.QuestionID, attempt, err)
			if err := p.wait(ctx); err != nil {
				abandon()
				return nil, false, err
			}
			continue
		}

		if !solved1 && !solved2 {
			p.releaseRejected(rejected, nil)
			return candidate, false, nil
		}

		// Conflict: someone has solved it before. Park it and try another
		// one of the same band.
		log.Printf("[provision] conflict on %s (band %d): solved by occupant", candidate.QuestionID, band)
		rejected = append(rejected, candidate)
		candidate = nil

		if err := p.wait(ctx); err != nil {
			p.releaseRejected(rejected, nil)
			return nil, false, err
		}
	}

	if p.Config.FallbackOnExhaustion && last != nil {
		log.Printf("[provision] DEGRADED: exhausted %d attempts for band %d, falling back to last attempted problem %s",
			p.Config.MaxAttempts, band, last.QuestionID)
		p.releaseRejected(rejected, last)
		return last, true, nil
	}

	abandon()
	return nil, false, ErrProvisionExhausted
}

// releaseRejected returns parked problems to the pool, skipping keep (the
// degraded fallback stays reserved).
func (p *Provisioner) releaseRejected(rejected []*models.Problem, keep *models.Problem) {
	for _, problem := range rejected {
		if keep != nil && problem.ID == keep.ID {
			continue
		}
		if err := problem.Release(p.DB); err != nil {
			log.Printf("[provision] failed to release problem %s back to the pool: %v", problem.QuestionID, err)
		}
	}
}

func (p *Provisioner) wait(ctx context.Context) error {
	if p.Config.RetryDelay <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.Config.RetryDelay):
		return nil
	}
}
