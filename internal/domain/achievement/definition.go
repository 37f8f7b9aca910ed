// Package achievement contains the achievement catalog, the typed criteria
// and the pure evaluator that decides which achievements became eligible.
package achievement

import (
	"sort"
	"strings"
	"time"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RARITY
// ══════════════════════════════════════════════════════════════════════════════

// Rarity is ordered: Common < Uncommon < Rare < Epic < Legendary.
type Rarity int

const (
	RarityCommon Rarity = iota
	RarityUncommon
	RarityRare
	RarityEpic
	RarityLegendary
)

var rarityNames = [...]string{"common", "uncommon", "rare", "epic", "legendary"}

// String returns the lowercase rarity name.
func (r Rarity) String() string {
	if r < RarityCommon || r > RarityLegendary {
		return "unknown"
	}
	return rarityNames[r]
}

// IsValid checks if the rarity is known.
func (r Rarity) IsValid() bool {
	return r >= RarityCommon && r <= RarityLegendary
}

// ParseRarity parses a rarity name (case-insensitive).
func ParseRarity(s string) (Rarity, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, n := range rarityNames {
		if n == name {
			return Rarity(i), nil
		}
	}
	return 0, shared.NewDomainErrorf("achievement", "ParseRarity", shared.ErrInvalidArgument, "unknown rarity %q", s)
}

// ══════════════════════════════════════════════════════════════════════════════
// CRITERIA
// ══════════════════════════════════════════════════════════════════════════════

// CriterionKind tags a criterion.
type CriterionKind string

const (
	CriterionCount         CriterionKind = "count"
	CriterionTime          CriterionKind = "time"
	CriterionScore         CriterionKind = "score"
	CriterionPrerequisites CriterionKind = "prerequisites"
)

// Metric is a countable progress field.
type Metric string

const (
	MetricTribesVisited      Metric = "tribes_visited"
	MetricArtifactsViewed    Metric = "artifacts_viewed"
	MetricVRCompleted        Metric = "vr_completed"
	MetricAchievementsEarned Metric = "achievements_earned"
)

// IsValid checks if the metric is known.
func (m Metric) IsValid() bool {
	switch m {
	case MetricTribesVisited, MetricArtifactsViewed, MetricVRCompleted, MetricAchievementsEarned:
		return true
	}
	return false
}

// Criterion is one condition of an achievement. The set of implementations
// is closed; the evaluator switches over them.
type Criterion interface {
	Kind() CriterionKind
	validate() error
}

// CountThreshold requires a progress count of at least Min.
type CountThreshold struct {
	Metric Metric
	Min    int
}

// Kind implements Criterion.
func (CountThreshold) Kind() CriterionKind { return CriterionCount }

func (c CountThreshold) validate() error {
	if !c.Metric.IsValid() {
		return shared.NewDomainErrorf("achievement", "Validate", shared.ErrInvalidArgument, "unknown metric %q", c.Metric)
	}
	if c.Min < 0 {
		return shared.NewDomainErrorf("achievement", "Validate", shared.ErrValueOutOfRange, "count threshold must be non-negative")
	}
	return nil
}

// TimeThreshold requires at least MinMinutes of learning time.
type TimeThreshold struct {
	MinMinutes int
}

// Kind implements Criterion.
func (TimeThreshold) Kind() CriterionKind { return CriterionTime }

func (c TimeThreshold) validate() error {
	if c.MinMinutes < 0 {
		return shared.NewDomainErrorf("achievement", "Validate", shared.ErrValueOutOfRange, "time threshold must be non-negative")
	}
	return nil
}

// ScoreThreshold requires Count VR completions scoring at least MinScore.
type ScoreThreshold struct {
	MinScore int
	Count    int
}

// Kind implements Criterion.
func (ScoreThreshold) Kind() CriterionKind { return CriterionScore }

func (c ScoreThreshold) validate() error {
	if !shared.Score(c.MinScore).IsValid() {
		return shared.NewDomainErrorf("achievement", "Validate", shared.ErrValueOutOfRange, "score threshold must be between 0 and 100")
	}
	if c.Count < 1 {
		return shared.NewDomainErrorf("achievement", "Validate", shared.ErrValueOutOfRange, "score criterion count must be at least 1")
	}
	return nil
}

// PrerequisiteSet requires other achievements to be earned first.
type PrerequisiteSet struct {
	IDs []string
}

// Kind implements Criterion.
func (PrerequisiteSet) Kind() CriterionKind { return CriterionPrerequisites }

func (c PrerequisiteSet) validate() error {
	if len(c.IDs) == 0 {
		return shared.NewDomainErrorf("achievement", "Validate", shared.ErrEmptyValue, "prerequisite criterion lists no achievements")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DEFINITION
// ══════════════════════════════════════════════════════════════════════════════

// Definition is an immutable catalog entry. The global earn counter is not
// part of it; see EarnCounter.
type Definition struct {
	ID          string
	Name        string
	Description string
	Icon        string
	Points      int
	Rarity      Rarity
	Criteria    []Criterion

	// Prerequisites - achievement ids that must be earned first.
	Prerequisites []string

	// Window - optional [unlock, expiry) availability.
	Window shared.TimeRange
}

// AllPrerequisites merges Prerequisites with every PrerequisiteSet
// criterion, deduplicated and sorted.
func (d *Definition) AllPrerequisites() []string {
	seen := make(map[string]struct{}, len(d.Prerequisites))
	out := make([]string, 0, len(d.Prerequisites))
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range d.Prerequisites {
		add(id)
	}
	for _, c := range d.Criteria {
		if ps, ok := c.(PrerequisiteSet); ok {
			for _, id := range ps.IDs {
				add(id)
			}
		}
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy. Criteria are values; only PrerequisiteSet
// carries a slice.
func (d *Definition) Clone() *Definition {
	c := *d
	c.Prerequisites = append([]string(nil), d.Prerequisites...)
	if d.Criteria != nil {
		c.Criteria = make([]Criterion, len(d.Criteria))
		for i, cr := range d.Criteria {
			if ps, ok := cr.(PrerequisiteSet); ok {
				cr = PrerequisiteSet{IDs: append([]string(nil), ps.IDs...)}
			}
			c.Criteria[i] = cr
		}
	}
	return &c
}

// AvailableAt reports whether now lies in the validity window.
func (d *Definition) AvailableAt(now time.Time) bool {
	return d.Window.Contains(now)
}

// Validate checks the definition in isolation.
func (d *Definition) Validate() error {
	if err := shared.ValidateID("achievement", "Validate", "achievement id", d.ID); err != nil {
		return err
	}
	if d.Points < 0 {
		return shared.NewDomainErrorf("achievement", "Validate", shared.ErrValueOutOfRange, "%s: points must be non-negative", d.ID)
	}
	if !d.Rarity.IsValid() {
		return shared.NewDomainErrorf("achievement", "Validate", shared.ErrInvalidArgument, "%s: unknown rarity", d.ID)
	}
	if !d.Window.IsValid() {
		return shared.WrapError("achievement", "Validate", shared.ErrInvalidArgument, d.ID, shared.ErrInvalidValidityWindow)
	}
	for _, c := range d.Criteria {
		if c == nil {
			return shared.NewDomainErrorf("achievement", "Validate", shared.ErrInvalidArgument, "%s: nil criterion", d.ID)
		}
		if err := c.validate(); err != nil {
			return shared.WrapError("achievement", "Validate", shared.ErrInvalidArgument, d.ID, err)
		}
	}
	for _, p := range d.AllPrerequisites() {
		if p == d.ID {
			return shared.WrapError("achievement", "Validate", shared.ErrInvalidArgument, d.ID+" requires itself", shared.ErrPrerequisiteCycle)
		}
	}
	return nil
}

// Less orders definitions by (rarity, points, id) ascending.
func Less(a, b *Definition) bool {
	if a.Rarity != b.Rarity {
		return a.Rarity < b.Rarity
	}
	if a.Points != b.Points {
		return a.Points < b.Points
	}
	return a.ID < b.ID
}
