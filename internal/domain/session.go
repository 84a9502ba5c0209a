package domain

import "time"

// Session is a server-side opaque credential. A session is never deleted;
// expiry and logout flip is_active so the audit trail survives.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"user_id"`
	Kind      UserKind  `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IsActive  bool      `json:"is_active"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

type LoginResult struct {
	User    *User    `json:"user"`
	Session *Session `json:"session"`
	Created bool     `json:"created"`
}
