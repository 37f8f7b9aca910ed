// Package progress contains the per-user progress aggregate: the activity
// ledger (tribes visited, artifacts viewed, VR completions, learning time)
// and the set of earned achievements. Counters are derived from it on read.
package progress

import (
	"time"

	"github.com/heritage-hub/heritage-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE TYPES
// ══════════════════════════════════════════════════════════════════════════════

// VisitedItem is a member of a deduplicated ledger set.
type VisitedItem struct {
	// ID - tribe or artifact identifier.
	ID string

	// FirstAt - when the item was first recorded.
	FirstAt time.Time
}

// VRCompletion is the best completion of one VR experience.
type VRCompletion struct {
	// ExperienceID - VR experience identifier.
	ExperienceID string

	// Score - best score so far, 0..100.
	Score shared.Score

	// CompletedAt - when the best score was recorded.
	CompletedAt time.Time
}

// EarnedAchievement is one entry of the ordered earned set.
type EarnedAchievement struct {
	ID       string
	EarnedAt time.Time
}

// VRResult describes what RecordVRCompletion did.
type VRResult struct {
	// FirstCompletion - the experience had no previous entry.
	FirstCompletion bool

	// Improved - an existing entry got a strictly higher score.
	Improved bool

	// PreviousScore - score before the call, 0 on first completion.
	PreviousScore int

	// Score - stored score after the call.
	Score int
}

// Changed reports whether the progress state was modified.
func (r VRResult) Changed() bool {
	return r.FirstCompletion || r.Improved
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS AGGREGATE
// ══════════════════════════════════════════════════════════════════════════════

// Progress is the exploration state of one user. Collections are small, so
// membership checks scan the slices and insertion order is kept for free.
type Progress struct {
	UserID string

	TribesVisited   []VisitedItem
	ArtifactsViewed []VisitedItem
	VRCompletions   []VRCompletion

	// TotalLearningMinutes - monotonically non-decreasing.
	TotalLearningMinutes int

	// Earned - ordered by grant; never shrinks.
	Earned []EarnedAchievement

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version - revision of the stored copy; bumped by Repository.Save.
	Version int64
}

// New creates empty progress for a user on their first activity.
func New(userID string, now time.Time) (*Progress, error) {
	if err := shared.ValidateID("progress", "New", "user id", userID); err != nil {
		return nil, err
	}
	return &Progress{
		UserID:    userID,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// VisitTribe adds a tribe to the visited set. It returns false when the
// tribe was already visited.
func (p *Progress) VisitTribe(tribeID string, at time.Time) (bool, error) {
	if err := shared.ValidateID("progress", "RecordTribeVisit", "tribe id", tribeID); err != nil {
		return false, err
	}
	if containsItem(p.TribesVisited, tribeID) {
		return false, nil
	}
	p.TribesVisited = append(p.TribesVisited, VisitedItem{ID: tribeID, FirstAt: at.UTC()})
	p.touch(at)
	return true, nil
}

// ViewArtifact adds an artifact to the viewed set. It returns false when
// the artifact was already viewed.
func (p *Progress) ViewArtifact(artifactID string, at time.Time) (bool, error) {
	if err := shared.ValidateID("progress", "RecordArtifactView", "artifact id", artifactID); err != nil {
		return false, err
	}
	if containsItem(p.ArtifactsViewed, artifactID) {
		return false, nil
	}
	p.ArtifactsViewed = append(p.ArtifactsViewed, VisitedItem{ID: artifactID, FirstAt: at.UTC()})
	p.touch(at)
	return true, nil
}

// CompleteVR records a VR completion. A repeated completion only replaces
// the stored score (and its timestamp) when the new score is strictly higher.
func (p *Progress) CompleteVR(experienceID string, score int, at time.Time) (VRResult, error) {
	if err := shared.ValidateID("progress", "RecordVRCompletion", "experience id", experienceID); err != nil {
		return VRResult{}, err
	}
	s, err := shared.NewScore(score)
	if err != nil {
		return VRResult{}, err
	}

	for i := range p.VRCompletions {
		c := &p.VRCompletions[i]
		if c.ExperienceID != experienceID {
			continue
		}
		res := VRResult{PreviousScore: c.Score.Int(), Score: c.Score.Int()}
		if s > c.Score {
			c.Score = s
			c.CompletedAt = at.UTC()
			res.Improved = true
			res.Score = s.Int()
			p.touch(at)
		}
		return res, nil
	}

	p.VRCompletions = append(p.VRCompletions, VRCompletion{
		ExperienceID: experienceID,
		Score:        s,
		CompletedAt:  at.UTC(),
	})
	p.touch(at)
	return VRResult{FirstCompletion: true, Score: s.Int()}, nil
}

// AddLearningTime adds a learning session. Every call is additive; a
// rejected session leaves the total untouched.
func (p *Progress) AddLearningTime(minutes int, at time.Time) error {
	total, err := shared.AddMinutes(p.TotalLearningMinutes, minutes)
	if err != nil {
		return err
	}
	p.TotalLearningMinutes = total
	p.touch(at)
	return nil
}

// Earn appends an achievement to the earned set. It returns false when the
// achievement is already owned. Prerequisite checks belong to the caller.
func (p *Progress) Earn(achievementID string, at time.Time) bool {
	if p.HasEarned(achievementID) {
		return false
	}
	p.Earned = append(p.Earned, EarnedAchievement{ID: achievementID, EarnedAt: at.UTC()})
	p.touch(at)
	return true
}

// HasEarned reports whether the achievement is in the earned set.
func (p *Progress) HasEarned(achievementID string) bool {
	for _, e := range p.Earned {
		if e.ID == achievementID {
			return true
		}
	}
	return false
}

// EarnedAt returns when an achievement was earned.
func (p *Progress) EarnedAt(achievementID string) (time.Time, bool) {
	for _, e := range p.Earned {
		if e.ID == achievementID {
			return e.EarnedAt, true
		}
	}
	return time.Time{}, false
}

// EarnedSet returns the earned ids as a set.
func (p *Progress) EarnedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.Earned))
	for _, e := range p.Earned {
		set[e.ID] = struct{}{}
	}
	return set
}

// EarnedIDs returns the earned ids in grant order.
func (p *Progress) EarnedIDs() []string {
	ids := make([]string, len(p.Earned))
	for i, e := range p.Earned {
		ids[i] = e.ID
	}
	return ids
}

// HasVisitedTribe reports whether the tribe is in the visited set.
func (p *Progress) HasVisitedTribe(tribeID string) bool {
	return containsItem(p.TribesVisited, tribeID)
}

// HasViewedArtifact reports whether the artifact is in the viewed set.
func (p *Progress) HasViewedArtifact(artifactID string) bool {
	return containsItem(p.ArtifactsViewed, artifactID)
}

// VRScore returns the stored score for an experience.
func (p *Progress) VRScore(experienceID string) (int, bool) {
	for _, c := range p.VRCompletions {
		if c.ExperienceID == experienceID {
			return c.Score.Int(), true
		}
	}
	return 0, false
}

// Clone returns a deep copy. Stores hand out clones so callers never share
// slices with the stored state.
func (p *Progress) Clone() *Progress {
	if p == nil {
		return nil
	}
	c := *p
	c.TribesVisited = append([]VisitedItem(nil), p.TribesVisited...)
	c.ArtifactsViewed = append([]VisitedItem(nil), p.ArtifactsViewed...)
	c.VRCompletions = append([]VRCompletion(nil), p.VRCompletions...)
	c.Earned = append([]EarnedAchievement(nil), p.Earned...)
	return &c
}

func (p *Progress) touch(at time.Time) {
	if at.After(p.UpdatedAt) {
		p.UpdatedAt = at.UTC()
	}
}

func containsItem(items []VisitedItem, id string) bool {
	for _, it := range items {
		if it.ID == id {
			return true
		}
	}
	return false
}
