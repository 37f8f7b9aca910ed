package progress

import (
	"math"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// AGGREGATE COUNTERS
// Pure derivations of the ledger. Nothing here is stored independently.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultRecentLimit is the size of recent-activity views.
const DefaultRecentLimit = 3

// Snapshot is the read-only view of progress the achievement evaluator works on.
type Snapshot struct {
	TribesVisited        int
	ArtifactsViewed      int
	VRCompleted          int
	VRScores             []int
	TotalLearningMinutes int
	AchievementsEarned   int
}

// Snapshot captures the current counters.
func (p *Progress) Snapshot() Snapshot {
	scores := make([]int, len(p.VRCompletions))
	for i, c := range p.VRCompletions {
		scores[i] = c.Score.Int()
	}
	return Snapshot{
		TribesVisited:        len(p.TribesVisited),
		ArtifactsViewed:      len(p.ArtifactsViewed),
		VRCompleted:          len(p.VRCompletions),
		VRScores:             scores,
		TotalLearningMinutes: p.TotalLearningMinutes,
		AchievementsEarned:   len(p.Earned),
	}
}

// CountScoresAtLeast returns how many VR completions scored at least min.
func (s Snapshot) CountScoresAtLeast(min int) int {
	n := 0
	for _, sc := range s.VRScores {
		if sc >= min {
			n++
		}
	}
	return n
}

// Summary is the progress summary returned to collaborators.
type Summary struct {
	UserID               string    `json:"user_id"`
	TribesVisited        int       `json:"tribes_visited"`
	ArtifactsViewed      int       `json:"artifacts_viewed"`
	VRCompleted          int       `json:"vr_completed"`
	BestVRScore          int       `json:"best_vr_score"`
	TotalLearningMinutes int       `json:"total_learning_minutes"`
	AchievementsEarned   int       `json:"achievements_earned"`
	TotalPoints          int       `json:"total_points"`
	CompletionPercentage int       `json:"completion_percentage"`
	RecentTribes         []string  `json:"recent_tribes"`
	RecentArtifacts      []string  `json:"recent_artifacts"`
	EarnedAchievements   []string  `json:"earned_achievements"`
	UpdatedAt            time.Time `json:"updated_at"`
	Version              int64     `json:"version"`
}

// PointsFunc resolves the point value of an achievement.
type PointsFunc func(achievementID string) int

// Summarize derives the summary. totalTribes comes from the content
// directory; points may be nil.
func (p *Progress) Summarize(totalTribes int, points PointsFunc, recentLimit int) Summary {
	if recentLimit <= 0 {
		recentLimit = DefaultRecentLimit
	}

	total := 0
	if points != nil {
		for _, e := range p.Earned {
			total += points(e.ID)
		}
	}

	best := 0
	for _, c := range p.VRCompletions {
		if c.Score.Int() > best {
			best = c.Score.Int()
		}
	}

	return Summary{
		UserID:               p.UserID,
		TribesVisited:        len(p.TribesVisited),
		ArtifactsViewed:      len(p.ArtifactsViewed),
		VRCompleted:          len(p.VRCompletions),
		BestVRScore:          best,
		TotalLearningMinutes: p.TotalLearningMinutes,
		AchievementsEarned:   len(p.Earned),
		TotalPoints:          total,
		CompletionPercentage: CompletionPercentage(len(p.TribesVisited), totalTribes),
		RecentTribes:         Recent(p.TribesVisited, recentLimit),
		RecentArtifacts:      Recent(p.ArtifactsViewed, recentLimit),
		EarnedAchievements:   p.EarnedIDs(),
		UpdatedAt:            p.UpdatedAt,
		Version:              p.Version,
	}
}

// CompletionPercentage returns round(100 * visited / total), capped at 100.
// A non-positive total yields 0.
func CompletionPercentage(visited, total int) int {
	if total <= 0 || visited <= 0 {
		return 0
	}
	pct := int(math.Round(100 * float64(visited) / float64(total)))
	if pct > 100 {
		return 100
	}
	return pct
}

// Recent returns the ids of the last n items, most recent last.
func Recent(items []VisitedItem, n int) []string {
	if n < 0 {
		n = 0
	}
	if n > len(items) {
		n = len(items)
	}
	out := make([]string, 0, n)
	for _, it := range items[len(items)-n:] {
		out = append(out, it.ID)
	}
	return out
}
