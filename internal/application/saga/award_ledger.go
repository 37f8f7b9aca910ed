package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/heritage-hub/heritage-engine/internal/domain/achievement"
	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD LEDGER
// Records grants at most once per (user, achievement) and keeps the
// catalog-wide earn counters. Grants are applied to a progress aggregate
// the caller holds under the user lock; counters are committed only after
// that aggregate was saved. Increments that fail are kept and retried by
// RetryPending, so a saved grant is counted exactly once eventually.
// ══════════════════════════════════════════════════════════════════════════════

// Grant is one achievement added to a user's earned set.
type Grant struct {
	// UserID - the user who earned it.
	UserID string

	// Definition - the granted catalog entry.
	Definition *achievement.Definition

	// EarnedAt - grant time.
	EarnedAt time.Time

	// TotalEarned - the catalog counter after Commit, 0 before.
	TotalEarned int64
}

// AwardLedger grants achievements and increments earn counters.
type AwardLedger struct {
	catalog  *achievement.Catalog
	counters achievement.EarnCounter

	mu      sync.Mutex
	pending []string // achievement ids whose increment failed, one per grant
}

// NewAwardLedger creates an award ledger.
func NewAwardLedger(catalog *achievement.Catalog, counters achievement.EarnCounter) *AwardLedger {
	return &AwardLedger{catalog: catalog, counters: counters}
}

// Catalog returns the catalog grants are resolved against.
func (l *AwardLedger) Catalog() *achievement.Catalog {
	return l.catalog
}

// Grant adds achievementID to p's earned set. It returns (nil, nil) when
// the achievement is already owned, shared.ErrNotFound for unknown ids and
// shared.ErrFailedPrecondition when a prerequisite is not earned yet.
// Criteria and the validity window are the evaluator's concern.
func (l *AwardLedger) Grant(p *progress.Progress, achievementID string, at time.Time) (*Grant, error) {
	def, err := l.catalog.Get(achievementID)
	if err != nil {
		return nil, err
	}
	if p.HasEarned(achievementID) {
		return nil, nil
	}
	if !achievement.PrerequisitesMet(def, p.EarnedSet()) {
		return nil, shared.WrapError("achievement", "Grant", shared.ErrFailedPrecondition,
			fmt.Sprintf("%s requires %v", achievementID, def.AllPrerequisites()), shared.ErrPrerequisitesUnmet)
	}

	p.Earn(achievementID, at)
	return &Grant{UserID: p.UserID, Definition: def, EarnedAt: at.UTC()}, nil
}

// Commit increments the earn counter of every grant and stores the new
// totals on the grants. A failed increment does not stop the others: the
// grant keeps TotalEarned 0, its increment is queued for RetryPending and
// the failures are returned joined.
func (l *AwardLedger) Commit(ctx context.Context, grants []*Grant) error {
	var errs []error
	for _, g := range grants {
		total, err := l.counters.IncrementEarned(ctx, g.Definition.ID)
		if err != nil {
			l.enqueue(g.Definition.ID)
			errs = append(errs, fmt.Errorf("increment earn counter %s: %w", g.Definition.ID, err))
			continue
		}
		g.TotalEarned = total
	}
	return errors.Join(errs...)
}

func (l *AwardLedger) enqueue(achievementID string) {
	l.mu.Lock()
	l.pending = append(l.pending, achievementID)
	l.mu.Unlock()
}

// PendingIncrements returns how many increments wait for a retry.
func (l *AwardLedger) PendingIncrements() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// RetryPending re-applies queued increments, keeping the ones that fail
// again. It returns how many were applied.
func (l *AwardLedger) RetryPending(ctx context.Context) (int, error) {
	l.mu.Lock()
	queued := l.pending
	l.pending = nil
	l.mu.Unlock()

	applied := 0
	var failed []string
	var errs []error
	for i, id := range queued {
		if err := ctx.Err(); err != nil {
			failed = append(failed, queued[i:]...)
			errs = append(errs, err)
			break
		}
		if _, err := l.counters.IncrementEarned(ctx, id); err != nil {
			failed = append(failed, id)
			errs = append(errs, fmt.Errorf("increment earn counter %s: %w", id, err))
			continue
		}
		applied++
	}

	if len(failed) > 0 {
		l.mu.Lock()
		l.pending = append(failed, l.pending...)
		l.mu.Unlock()
	}
	return applied, errors.Join(errs...)
}

// TotalEarned returns the earn counter of an achievement.
func (l *AwardLedger) TotalEarned(ctx context.Context, achievementID string) (int64, error) {
	return l.counters.TotalEarned(ctx, achievementID)
}

// GrantedIDs returns the ids of grants in order.
func GrantedIDs(grants []*Grant) []string {
	ids := make([]string, len(grants))
	for i, g := range grants {
		ids[i] = g.Definition.ID
	}
	return ids
}
