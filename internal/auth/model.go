package auth

import "time"

type Account struct {
	ID            string
	UserID        string
	PasswordHash  string
	KeepLoggedIn  bool
	IsActive      bool
	LastLogin     *time.Time
	LoginAttempts int
	LockUntil     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Identity is the serializable view of an account. It never carries the
// password hash or throttle counters.
type Identity struct {
	UserID       string     `json:"userId"`
	KeepLoggedIn bool       `json:"keepLoggedIn"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
}

func (a Account) Identity() Identity {
	return Identity{
		UserID:       a.UserID,
		KeepLoggedIn: a.KeepLoggedIn,
		LastLogin:    a.LastLogin,
	}
}

// ThrottleState is the per-account failure counter after a recorded attempt.
type ThrottleState struct {
	FailedAttempts int
	LockUntil      *time.Time
}

type Session struct {
	AccessToken  string
	RefreshToken string
	Identity     Identity
}
