// Package saga contains the multi-step processes the command handlers run
// after every mutation: evaluating achievements to a fixed point and
// recording the resulting grants.
package saga

import (
	"time"

	"github.com/heritage-hub/heritage-engine/internal/domain/achievement"
	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
	"github.com/heritage-hub/heritage-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT FLOW
// Evaluate → Grant in (rarity, points, id) order → Evaluate again, until no
// achievement becomes eligible. Granting one achievement can satisfy the
// prerequisite or achievements_earned criterion of another, so a single
// pass is not enough.
// ══════════════════════════════════════════════════════════════════════════════

// AchievementFlowStep names a step of the flow, for logs.
type AchievementFlowStep string

const (
	StepEvaluate AchievementFlowStep = "evaluate"
	StepGrant    AchievementFlowStep = "grant"
	StepComplete AchievementFlowStep = "complete"
)

// AchievementFlow runs evaluation and grants on a loaded progress aggregate.
// It performs no I/O; the caller saves the aggregate and commits the grants
// with AwardLedger.Commit.
type AchievementFlow struct {
	evaluator *achievement.Evaluator
	ledger    *AwardLedger
	log       *logger.Logger
}

// NewAchievementFlow creates the flow.
func NewAchievementFlow(evaluator *achievement.Evaluator, ledger *AwardLedger, log *logger.Logger) *AchievementFlow {
	if log == nil {
		log = logger.Nop()
	}
	return &AchievementFlow{
		evaluator: evaluator,
		ledger:    ledger,
		log:       log.With(logger.Component("achievement_flow")),
	}
}

// Evaluator returns the evaluator the flow uses.
func (f *AchievementFlow) Evaluator() *achievement.Evaluator {
	return f.evaluator
}

// Ledger returns the award ledger the flow grants through.
func (f *AchievementFlow) Ledger() *AwardLedger {
	return f.ledger
}

// Run grants every achievement p has become eligible for at now and
// returns the grants in grant order. Running it again on unchanged
// progress returns nothing.
func (f *AchievementFlow) Run(p *progress.Progress, now time.Time) []*Grant {
	var grants []*Grant

	// Each round grants at least one achievement, so the catalog size
	// bounds the number of rounds.
	for round := 0; round <= f.evaluator.Catalog().Len(); round++ {
		eligible := f.evaluator.Evaluate(p.Snapshot(), p.EarnedSet(), now)
		if len(eligible) == 0 {
			break
		}

		for _, id := range eligible {
			g, err := f.ledger.Grant(p, id, now)
			if err != nil {
				// Evaluate only returns known ids with earned prerequisites.
				f.log.Error("eligible achievement rejected by ledger",
					logger.UserID(p.UserID),
					logger.AchievementID(id),
					logger.String("step", string(StepGrant)),
					logger.Err(err),
				)
				continue
			}
			if g != nil {
				grants = append(grants, g)
			}
		}
	}

	if len(grants) > 0 {
		f.log.Debug("achievement flow granted",
			logger.UserID(p.UserID),
			logger.Granted(GrantedIDs(grants)),
			logger.String("step", string(StepComplete)),
		)
	}
	return grants
}
