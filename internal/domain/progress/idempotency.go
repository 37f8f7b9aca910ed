package progress

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ActivityKind names a recordable activity.
type ActivityKind string

const (
	KindTribeVisit   ActivityKind = "tribe_visit"
	KindArtifactView ActivityKind = "artifact_view"
	KindVRCompletion ActivityKind = "vr_completion"
	KindLearningTime ActivityKind = "learning_time"
)

// IsValid checks if the activity kind is known.
func (k ActivityKind) IsValid() bool {
	switch k {
	case KindTribeVisit, KindArtifactView, KindVRCompletion, KindLearningTime:
		return true
	}
	return false
}

// String returns the string representation.
func (k ActivityKind) String() string {
	return string(k)
}

// IdempotencyKey derives the deterministic key of an activity:
// hex(BLAKE2b-256(user|kind|item)). Repeated visits of the same tribe share a
// key, which lets journal replays spot duplicates.
func IdempotencyKey(userID string, kind ActivityKind, item string) string {
	sum := blake2b.Sum256([]byte(strings.Join([]string{userID, string(kind), item}, "|")))
	return hex.EncodeToString(sum[:])
}

// LearningSessionItem is the item component of a learning-time key. Each
// session is distinct, so its time is part of the key.
func LearningSessionItem(minutes int, at time.Time) string {
	return strconv.Itoa(minutes) + "@" + strconv.FormatInt(at.UTC().UnixNano(), 10)
}

// VRCompletionItem is the item component of a VR completion key.
func VRCompletionItem(experienceID string, score int) string {
	return experienceID + "#" + strconv.Itoa(score)
}
