package achievement

import (
	"time"

	"github.com/heritage-hub/heritage-engine/internal/domain/progress"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATOR
// Pure function of (snapshot, earned set, time). No I/O, no hidden state.
// ══════════════════════════════════════════════════════════════════════════════

// Rejection explains why an achievement is not eligible.
type Rejection string

const (
	RejectNone          Rejection = ""
	RejectAlreadyEarned Rejection = "already_earned"
	RejectNotAvailable  Rejection = "not_available"
	RejectPrerequisites Rejection = "prerequisites_missing"
	RejectCriteria      Rejection = "criteria_unmet"
)

// CriterionProgress is the current vs required value of one criterion.
type CriterionProgress struct {
	Kind     CriterionKind `json:"kind"`
	Metric   string        `json:"metric,omitempty"`
	Current  int           `json:"current"`
	Required int           `json:"required"`
	Met      bool          `json:"met"`
}

// Evaluator computes newly eligible achievements against a catalog.
type Evaluator struct {
	catalog *Catalog
}

// NewEvaluator creates an evaluator over catalog.
func NewEvaluator(catalog *Catalog) *Evaluator {
	return &Evaluator{catalog: catalog}
}

// Catalog returns the catalog the evaluator reads.
func (e *Evaluator) Catalog() *Catalog {
	return e.catalog
}

// Evaluate returns the ids of achievements not in earned that are eligible
// at now, ordered by (rarity, points, id).
func (e *Evaluator) Evaluate(snap progress.Snapshot, earned map[string]struct{}, now time.Time) []string {
	var eligible []string
	for _, d := range e.catalog.ordered {
		if e.Check(d, snap, earned, now) == RejectNone {
			eligible = append(eligible, d.ID)
		}
	}
	return eligible
}

// Check runs the eligibility steps for one definition in order: ownership,
// validity window, prerequisites, criteria.
func (e *Evaluator) Check(d *Definition, snap progress.Snapshot, earned map[string]struct{}, now time.Time) Rejection {
	if _, ok := earned[d.ID]; ok {
		return RejectAlreadyEarned
	}
	if !d.AvailableAt(now) {
		return RejectNotAvailable
	}
	if !PrerequisitesMet(d, earned) {
		return RejectPrerequisites
	}
	for _, c := range d.Criteria {
		if !criterionProgress(c, snap, earned).Met {
			return RejectCriteria
		}
	}
	return RejectNone
}

// Explain reports per-criterion progress of d.
func (e *Evaluator) Explain(d *Definition, snap progress.Snapshot, earned map[string]struct{}) []CriterionProgress {
	out := make([]CriterionProgress, 0, len(d.Criteria))
	for _, c := range d.Criteria {
		out = append(out, criterionProgress(c, snap, earned))
	}
	return out
}

// PrerequisitesMet reports whether every prerequisite of d is earned.
func PrerequisitesMet(d *Definition, earned map[string]struct{}) bool {
	for _, p := range d.AllPrerequisites() {
		if _, ok := earned[p]; !ok {
			return false
		}
	}
	return true
}

func criterionProgress(c Criterion, snap progress.Snapshot, earned map[string]struct{}) CriterionProgress {
	switch c := c.(type) {
	case CountThreshold:
		cur := countOf(c.Metric, snap)
		return CriterionProgress{Kind: CriterionCount, Metric: string(c.Metric), Current: cur, Required: c.Min, Met: cur >= c.Min}
	case TimeThreshold:
		cur := snap.TotalLearningMinutes
		return CriterionProgress{Kind: CriterionTime, Metric: "learning_minutes", Current: cur, Required: c.MinMinutes, Met: cur >= c.MinMinutes}
	case ScoreThreshold:
		cur := snap.CountScoresAtLeast(c.MinScore)
		return CriterionProgress{Kind: CriterionScore, Metric: "vr_score", Current: cur, Required: c.Count, Met: cur >= c.Count}
	case PrerequisiteSet:
		have := 0
		for _, id := range c.IDs {
			if _, ok := earned[id]; ok {
				have++
			}
		}
		return CriterionProgress{Kind: CriterionPrerequisites, Current: have, Required: len(c.IDs), Met: have == len(c.IDs)}
	default:
		// Unknown criteria never hold.
		return CriterionProgress{Met: false}
	}
}

func countOf(m Metric, snap progress.Snapshot) int {
	switch m {
	case MetricTribesVisited:
		return snap.TribesVisited
	case MetricArtifactsViewed:
		return snap.ArtifactsViewed
	case MetricVRCompleted:
		return snap.VRCompleted
	case MetricAchievementsEarned:
		return snap.AchievementsEarned
	default:
		return 0
	}
}
