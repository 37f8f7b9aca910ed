package shared

import "context"

// Locker provides keyed mutual exclusion. Lock blocks until the key is free
// or ctx is done, and returns the function that releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// UserLockKey is the lock key serializing one user's progress.
func UserLockKey(userID string) string {
	return "user:" + userID
}

// ContentLockKey is the lock key serializing one content entity's ratings.
func ContentLockKey(contentID string) string {
	return "content:" + contentID
}

// AchievementLockKey is the lock key guarding one catalog earn counter.
func AchievementLockKey(achievementID string) string {
	return "achievement:" + achievementID
}
