package signin

import "time"

// LockoutOptions configures failed-attempt lockout.
type LockoutOptions struct {
	MaxFailedAccessAttempts int
	LockoutDuration         time.Duration
	Enabled                 bool
}

// ReachedThreshold reports whether count should lock the account.
func (o LockoutOptions) ReachedThreshold(count int) bool {
	return o.Enabled && o.MaxFailedAccessAttempts > 0 && count >= o.MaxFailedAccessAttempts
}

// LockoutEnd returns the lockout end for an account locked at now.
func (o LockoutOptions) LockoutEnd(now time.Time) time.Time {
	return now.Add(o.LockoutDuration)
}

// IsLockoutActive reports whether end is set and still in the future.
func IsLockoutActive(end *time.Time, now time.Time) bool {
	return end != nil && end.After(now)
}
