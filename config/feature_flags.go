package config

import (
	"errors"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Feature flag names.
const (
	// FeatureVRFeedback - VR completions may carry a rating of the experience.
	FeatureVRFeedback = "vr_feedback"

	// FeatureUniqueViewsDefault - views count once per user unless the caller
	// asks otherwise.
	FeatureUniqueViewsDefault = "unique_views_default"

	// FeatureAchievementEvents - publish achievement.granted events.
	FeatureAchievementEvents = "achievement_events"
)

var (
	ErrFeatureNotFound       = errors.New("feature not found")
	ErrInvalidRolloutPercent = errors.New("rollout percent must be 0-100")
)

// Feature is one toggle. Rollout assigns users to buckets by a hash of the
// feature name and user id, so a user keeps their bucket across restarts.
type Feature struct {
	Name        string
	Description string

	// Rollout - percentage of users that see the feature, 0-100.
	Rollout int

	// From, Until - optional activation window.
	From  *time.Time
	Until *time.Time
}

// Enabled reports whether any user can see the feature.
func (f Feature) Enabled() bool { return f.Rollout > 0 }

func (f Feature) activeAt(now time.Time) bool {
	if f.From != nil && now.Before(*f.From) {
		return false
	}
	return f.Until == nil || !now.After(*f.Until)
}

// FeatureContext narrows a check to one user or instant. Zero fields ask
// about the deployment as a whole at the current time.
type FeatureContext struct {
	UserID string
	Now    time.Time
}

var defaultFeatures = []Feature{
	{Name: FeatureVRFeedback, Description: "Turn VR completion feedback into experience ratings", Rollout: 100},
	{Name: FeatureUniqueViewsDefault, Description: "Count one view per user by default", Rollout: 100},
	{Name: FeatureAchievementEvents, Description: "Publish achievement.granted events", Rollout: 100},
}

// FeatureFlags holds the engine toggles and per-user overrides.
type FeatureFlags struct {
	mu        sync.RWMutex
	features  map[string]*Feature
	overrides map[string]map[string]bool // user -> feature -> enabled
}

// NewFeatureFlags returns the flags at their defaults.
func NewFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:  make(map[string]*Feature, len(defaultFeatures)),
		overrides: make(map[string]map[string]bool),
	}
	for _, f := range defaultFeatures {
		f := f
		ff.features[f.Name] = &f
	}
	return ff
}

// LoadFeatureFlags applies FEATURE_<NAME> variables on top of the defaults.
// A value is a bool (full on or off) or a rollout percentage:
//
//	FEATURE_VR_FEEDBACK=false
//	FEATURE_ACHIEVEMENT_EVENTS=50
//
// Unparseable values are ignored.
func LoadFeatureFlags() *FeatureFlags {
	ff := NewFeatureFlags()
	for name, f := range ff.features {
		if p, ok := parseRollout(os.Getenv(envKey(name))); ok {
			f.Rollout = p
		}
	}
	return ff
}

func envKey(name string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

func parseRollout(v string) (int, bool) {
	if v == "" {
		return 0, false
	}
	if b, err := strconv.ParseBool(v); err == nil {
		if b {
			return 100, true
		}
		return 0, true
	}
	p, err := strconv.Atoi(v)
	if err != nil || p < 0 || p > 100 {
		return 0, false
	}
	return p, true
}

// IsEnabled evaluates a feature. Overrides win, then the activation window,
// then the user's rollout bucket. Without a user any rollout above zero
// counts as enabled.
func (ff *FeatureFlags) IsEnabled(name string, fc *FeatureContext) bool {
	var c FeatureContext
	if fc != nil {
		c = *fc
	}
	if c.Now.IsZero() {
		c.Now = time.Now()
	}

	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if enabled, ok := ff.overrides[c.UserID][name]; ok && c.UserID != "" {
		return enabled
	}
	f, ok := ff.features[name]
	if !ok || !f.Enabled() || !f.activeAt(c.Now) {
		return false
	}
	if f.Rollout >= 100 || c.UserID == "" {
		return true
	}
	return bucket(name, c.UserID) < f.Rollout
}

func bucket(feature, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(feature))
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % 100)
}

// SetUserOverride forces a feature on or off for one user.
func (ff *FeatureFlags) SetUserOverride(userID, name string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.overrides[userID] == nil {
		ff.overrides[userID] = make(map[string]bool)
	}
	ff.overrides[userID][name] = enabled
}

// ClearUserOverrides drops every override of a user.
func (ff *FeatureFlags) ClearUserOverrides(userID string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.overrides, userID)
}

// SetRolloutPercent changes the share of users that see a feature.
func (ff *FeatureFlags) SetRolloutPercent(name string, percent int) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}
	return ff.update(name, func(f *Feature) { f.Rollout = percent })
}

// SetWindow limits a feature to [from, until]. Nil bounds are open.
func (ff *FeatureFlags) SetWindow(name string, from, until *time.Time) error {
	return ff.update(name, func(f *Feature) { f.From, f.Until = from, until })
}

func (ff *FeatureFlags) update(name string, fn func(*Feature)) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	f, ok := ff.features[name]
	if !ok {
		return ErrFeatureNotFound
	}
	fn(f)
	return nil
}

func (ff *FeatureFlags) EnableFeature(name string) error  { return ff.SetRolloutPercent(name, 100) }
func (ff *FeatureFlags) DisableFeature(name string) error { return ff.SetRolloutPercent(name, 0) }

// GetAllFeatures returns copies of every feature.
func (ff *FeatureFlags) GetAllFeatures() map[string]Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()
	out := make(map[string]Feature, len(ff.features))
	for name, f := range ff.features {
		out[name] = *f
	}
	return out
}

// VRFeedback reports whether VR completions may carry a rating.
func (ff *FeatureFlags) VRFeedback() bool {
	return ff.IsEnabled(FeatureVRFeedback, nil)
}

// UniqueViewsDefault reports the default view counting policy.
func (ff *FeatureFlags) UniqueViewsDefault() bool {
	return ff.IsEnabled(FeatureUniqueViewsDefault, nil)
}

// AchievementEvents reports whether grants are published.
func (ff *FeatureFlags) AchievementEvents() bool {
	return ff.IsEnabled(FeatureAchievementEvents, nil)
}
