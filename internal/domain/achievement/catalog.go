package achievement

import (
	"context"
	"sort"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// Catalog is the read-only set of achievement definitions. It keeps its own
// copies; Get and ListAll hand out clones.
type Catalog struct {
	byID    map[string]*Definition
	ordered []*Definition
}

// NewCatalog validates defs and builds a catalog: every definition must be
// valid, ids unique, prerequisites known and acyclic.
func NewCatalog(defs []Definition) (*Catalog, error) {
	c := &Catalog{
		byID:    make(map[string]*Definition, len(defs)),
		ordered: make([]*Definition, 0, len(defs)),
	}

	for i := range defs {
		d := defs[i].Clone()
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, shared.WrapError("achievement", "NewCatalog", shared.ErrAlreadyExists, d.ID, shared.ErrDuplicateAchievement)
		}
		c.byID[d.ID] = d
		c.ordered = append(c.ordered, d)
	}

	for _, d := range c.ordered {
		for _, p := range d.AllPrerequisites() {
			if _, ok := c.byID[p]; !ok {
				return nil, shared.WrapError("achievement", "NewCatalog", shared.ErrInvalidArgument,
					d.ID+" requires "+p, shared.ErrUnknownPrerequisite)
			}
		}
	}
	if err := c.checkCycles(); err != nil {
		return nil, err
	}

	sort.Slice(c.ordered, func(i, j int) bool { return Less(c.ordered[i], c.ordered[j]) })
	return c, nil
}

// checkCycles runs a three-color DFS over the prerequisite graph.
func (c *Catalog) checkCycles() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(c.byID))

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case grey:
			return shared.WrapError("achievement", "NewCatalog", shared.ErrInvalidArgument, "cycle through "+id, shared.ErrPrerequisiteCycle)
		case black:
			return nil
		}
		color[id] = grey
		for _, p := range c.byID[id].AllPrerequisites() {
			if err := visit(p); err != nil {
				return err
			}
		}
		color[id] = black
		return nil
	}

	ids := make([]string, 0, len(c.byID))
	for id := range c.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := visit(id); err != nil {
			return err
		}
	}
	return nil
}

// Get returns a copy of the definition with the given id.
func (c *Catalog) Get(id string) (*Definition, error) {
	d, ok := c.byID[id]
	if !ok {
		return nil, shared.WrapError("achievement", "Get", shared.ErrNotFound, id, shared.ErrAchievementNotFound)
	}
	return d.Clone(), nil
}

// ListAll returns copies of the definitions ordered by rarity, then points,
// then id.
func (c *Catalog) ListAll() []*Definition {
	out := make([]*Definition, len(c.ordered))
	for i, d := range c.ordered {
		out[i] = d.Clone()
	}
	return out
}

// Points returns the point value of an achievement, 0 if unknown.
func (c *Catalog) Points(id string) int {
	if d, ok := c.byID[id]; ok {
		return d.Points
	}
	return 0
}

// Len returns the number of definitions.
func (c *Catalog) Len() int {
	return len(c.ordered)
}

// IDs returns all ids in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.ordered))
	for i, d := range c.ordered {
		ids[i] = d.ID
	}
	return ids
}

// EarnCounter stores the catalog-wide totalEarned counters. Increments
// are atomic per achievement.
type EarnCounter interface {
	// IncrementEarned adds one to the counter and returns the new total.
	IncrementEarned(ctx context.Context, achievementID string) (int64, error)

	// TotalEarned returns the counter, 0 if never incremented.
	TotalEarned(ctx context.Context, achievementID string) (int64, error)

	// AllTotals returns every non-zero counter.
	AllTotals(ctx context.Context) (map[string]int64, error)
}
