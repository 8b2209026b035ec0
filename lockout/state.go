package lockout

import "time"

// State is the per-identifier record. The zero value is Clear.
type State struct {
	Count          int
	FirstAttemptAt time.Time
	LockoutUntil   time.Time
}

// IsClear reports whether no failure is recorded.
func (s State) IsClear() bool {
	return s.Count == 0
}

// LockedAt reports whether the lockout is active at now.
func (s State) LockedAt(now time.Time) bool {
	return !s.LockoutUntil.IsZero() && now.Before(s.LockoutUntil)
}

// ExpiredAt reports whether the state has lapsed back to Clear at now.
func (s State) ExpiredAt(now time.Time, cfg Config) bool {
	if s.IsClear() {
		return false
	}
	if !s.LockoutUntil.IsZero() {
		return !now.Before(s.LockoutUntil)
	}
	return now.Sub(s.FirstAttemptAt) >= cfg.Window
}

// ApplyFailure returns the state after one failed attempt at now. A locked
// state is returned unchanged: the count stays at MaxAttempts and the
// lockout is not extended.
func ApplyFailure(s State, now time.Time, cfg Config) State {
	if s.ExpiredAt(now, cfg) {
		s = State{}
	}
	if s.LockedAt(now) {
		return s
	}

	if s.IsClear() {
		s = State{Count: 1, FirstAttemptAt: now}
	} else {
		s.Count++
	}
	if s.Count >= cfg.MaxAttempts {
		s.Count = cfg.MaxAttempts
		s.LockoutUntil = now.Add(cfg.LockoutDuration)
	}
	return s
}
