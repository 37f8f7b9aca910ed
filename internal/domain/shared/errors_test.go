package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Kinds(t *testing.T) {
	tests := []struct {
		name               string
		err                error
		notFound, invalid  bool
		failedPrecondition bool
	}{
		{name: "progress not found", err: ErrProgressNotFound, notFound: true},
		{name: "non-positive minutes", err: ErrNonPositiveMinutes, invalid: true},
		{name: "session too long", err: ErrSessionTooLong, invalid: true},
		{name: "learning time overflow", err: ErrLearningTimeOverflow, invalid: true},
		{name: "score out of range", err: ErrScoreOutOfRange, invalid: true},
		{name: "invalid rating", err: ErrInvalidRating, invalid: true},
		{name: "prerequisites unmet", err: ErrPrerequisitesUnmet, failedPrecondition: true},
		{name: "duplicate achievement", err: ErrDuplicateAchievement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("command: %w", tt.err)
			assert.Equal(t, tt.notFound, IsNotFound(wrapped))
			assert.Equal(t, tt.invalid, IsInvalidArgument(wrapped))
			assert.Equal(t, tt.failedPrecondition, IsFailedPrecondition(wrapped))
		})
	}
}

func TestWrapError(t *testing.T) {
	err := WrapError("achievement", "Grant", ErrFailedPrecondition, "scholar requires [tribe_visitor]", ErrPrerequisitesUnmet)

	assert.True(t, errors.Is(err, ErrFailedPrecondition))
	assert.True(t, errors.Is(err, ErrPrerequisitesUnmet))
	assert.False(t, IsNotFound(err))
	assert.Equal(t,
		"achievement.Grant: scholar requires [tribe_visitor]: achievement.Grant: achievement prerequisites are not earned",
		err.Error())
	assert.Equal(t, "progress.Find: progress not found", ErrProgressNotFound.Error())
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrLockTimeout))
	assert.True(t, IsRetryable(ErrProgressVersionStale))
	assert.False(t, IsRetryable(ErrInvalidRating))
}
