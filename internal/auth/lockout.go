package auth

import "time"

type LockoutPolicy struct {
	MaxAttempts int
	LockFor     time.Duration
}

var DefaultLockout = LockoutPolicy{MaxAttempts: 5, LockFor: 30 * time.Minute}

func (u User) IsLocked(now time.Time) bool {
	return u.LockUntil != nil && u.LockUntil.After(now)
}

// Attempt returns the account after a login attempt. A success clears the
// counter and stamps LastLogin. A failure counts up and, on reaching the
// policy limit, locks the account and restarts the count. An expired lock
// is cleared before counting.
func Attempt(u User, success bool, now time.Time, p LockoutPolicy) User {
	if p.MaxAttempts <= 0 {
		p = DefaultLockout
	}
	if u.LockUntil != nil && !u.LockUntil.After(now) {
		u.LockUntil = nil
		u.LoginAttempts = 0
	}
	if success {
		u.LoginAttempts = 0
		u.LockUntil = nil
		at := now
		u.LastLogin = &at
		return u
	}
	u.LoginAttempts++
	if u.LoginAttempts >= p.MaxAttempts {
		until := now.Add(p.LockFor)
		u.LockUntil = &until
		u.LoginAttempts = 0
	}
	return u
}
