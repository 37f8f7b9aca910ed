package shared

import (
	"math"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// MaxIDLength is the maximum length of any external identifier.
const MaxIDLength = 128

// ValidateID checks that value is a well-formed identifier: non-empty, at
// most MaxIDLength bytes, no whitespace or control characters.
func ValidateID(domain, op, field, value string) error {
	if value == "" {
		return NewDomainErrorf(domain, op, ErrEmptyValue, "%s is required", field)
	}
	if len(value) > MaxIDLength {
		return NewDomainErrorf(domain, op, ErrInvalidID, "%s exceeds %d characters", field, MaxIDLength)
	}
	if !utf8.ValidString(value) {
		return NewDomainErrorf(domain, op, ErrInvalidID, "%s is not valid UTF-8", field)
	}
	for _, r := range value {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return NewDomainErrorf(domain, op, ErrInvalidID, "%s contains whitespace or control characters", field)
		}
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// ContentKind Value Object
// ═══════════════════════════════════════════════════════════════════════════

// ContentKind is the category of a content entity in the content directory.
type ContentKind string

const (
	ContentTribe        ContentKind = "tribe"
	ContentArtifact     ContentKind = "artifact"
	ContentVRExperience ContentKind = "vr_experience"
)

// IsValid checks if the content kind is known.
func (k ContentKind) IsValid() bool {
	switch k {
	case ContentTribe, ContentArtifact, ContentVRExperience:
		return true
	}
	return false
}

// String returns the string representation.
func (k ContentKind) String() string {
	return string(k)
}

// Rateable reports whether the kind carries shared view/rating state.
func (k ContentKind) Rateable() bool {
	return k == ContentArtifact || k == ContentVRExperience
}

// ParseContentKind parses a content kind.
func ParseContentKind(s string) (ContentKind, error) {
	k := ContentKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", NewDomainErrorf("shared", "ParseContentKind", ErrInvalidArgument, "unknown content kind %q", s)
	}
	return k, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Learning Minutes
// ═══════════════════════════════════════════════════════════════════════════

const (
	// MaxSessionMinutes bounds a single learning session to one day.
	MaxSessionMinutes = 24 * 60

	// MaxTotalLearningMinutes is the largest total every store can hold; the
	// postgres column is a 32-bit INTEGER.
	MaxTotalLearningMinutes = math.MaxInt32
)

// ValidateSessionMinutes checks the length of one learning session.
func ValidateSessionMinutes(minutes int) error {
	if minutes <= 0 {
		return ErrNonPositiveMinutes
	}
	if minutes > MaxSessionMinutes {
		return ErrSessionTooLong
	}
	return nil
}

// AddMinutes returns total+minutes, or ErrLearningTimeOverflow when the sum
// would pass MaxTotalLearningMinutes.
func AddMinutes(total, minutes int) (int, error) {
	if err := ValidateSessionMinutes(minutes); err != nil {
		return total, err
	}
	if total > MaxTotalLearningMinutes-minutes {
		return total, ErrLearningTimeOverflow
	}
	return total + minutes, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Rating Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Rating represents a rating value (1-5 stars).
type Rating int

const (
	MinRating Rating = 1
	MaxRating Rating = 5
)

// IsValid checks if the rating is within valid range.
func (r Rating) IsValid() bool {
	return r >= MinRating && r <= MaxRating
}

// Int returns the underlying int value.
func (r Rating) Int() int {
	return int(r)
}

// NewRating creates a new Rating with validation.
func NewRating(value int) (Rating, error) {
	if value < int(MinRating) || value > int(MaxRating) {
		return 0, ErrInvalidRating
	}
	return Rating(value), nil
}

// AverageRating calculates the mean of ratings rounded to one decimal.
// It returns 0 for an empty slice.
func AverageRating(ratings []Rating) float64 {
	if len(ratings) == 0 {
		return 0
	}
	sum := 0
	for _, r := range ratings {
		sum += int(r)
	}
	return RoundTenth(float64(sum) / float64(len(ratings)))
}

// RoundTenth rounds v to one decimal place, halves away from zero.
func RoundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

// ═══════════════════════════════════════════════════════════════════════════
// Score Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Score is a VR experience completion score in [0, 100].
type Score int

const (
	MinScore Score = 0
	MaxScore Score = 100
)

// IsValid checks if the score is within valid range.
func (s Score) IsValid() bool {
	return s >= MinScore && s <= MaxScore
}

// Int returns the underlying int value.
func (s Score) Int() int {
	return int(s)
}

// FeedbackRating converts the score into the 1-5 rating submitted as VR
// feedback: score/20 clamped to [1, 5]. A zero score is a 1-star rating.
func (s Score) FeedbackRating() Rating {
	r := Rating(int(s) / 20)
	if r < MinRating {
		return MinRating
	}
	if r > MaxRating {
		return MaxRating
	}
	return r
}

// NewScore creates a new Score with validation.
func NewScore(value int) (Score, error) {
	if value < int(MinScore) || value > int(MaxScore) {
		return 0, ErrScoreOutOfRange
	}
	return Score(value), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// TimeRange Value Object
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange represents a half-open availability window [From, To).
// Zero bounds are unbounded.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsValid checks if the time range is valid.
func (t TimeRange) IsValid() bool {
	if t.From.IsZero() || t.To.IsZero() {
		return true
	}
	return t.From.Before(t.To)
}

// Contains checks if a time is within the range.
func (t TimeRange) Contains(tm time.Time) bool {
	if !t.From.IsZero() && tm.Before(t.From) {
		return false
	}
	if !t.To.IsZero() && !tm.Before(t.To) {
		return false
	}
	return true
}

// NewTimeRange creates a new TimeRange with validation.
func NewTimeRange(from, to time.Time) (TimeRange, error) {
	tr := TimeRange{From: from, To: to}
	if !tr.IsValid() {
		return TimeRange{}, ErrInvalidValidityWindow
	}
	return tr, nil
}
