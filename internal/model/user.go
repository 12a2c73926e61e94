package model

import "time"

// User mirrors a row of the `users` table. DeletedAt is nil for active users
// and holds the soft-delete time otherwise.
type User struct {
	ID           uint64     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	DeletedAt    *time.Time `json:"deleted_at"`
}

// Trashed reports whether the user is soft-deleted.
func (u User) Trashed() bool { return u.DeletedAt != nil }

// Scope selects which users a store query sees with respect to soft delete.
type Scope string

const (
	ScopeActive Scope = "active" // deleted_at IS NULL
	ScopeWith   Scope = "with"   // active and soft-deleted
	ScopeOnly   Scope = "only"   // soft-deleted only
)

// ParseScope maps a `trashed` query value to a Scope. The empty string is
// the active scope; "all" is accepted as an alias of "with".
func ParseScope(s string) (Scope, bool) {
	switch s {
	case "", string(ScopeActive):
		return ScopeActive, true
	case string(ScopeWith), "all":
		return ScopeWith, true
	case string(ScopeOnly):
		return ScopeOnly, true
	}
	return "", false
}

// AccessToken models an entry in the `access_tokens` table. Only the
// SHA-256 hex digest of the bearer string is stored.
type AccessToken struct {
	ID         uint64
	UserID     uint64
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt *time.Time
}

// Expired reports whether the token's validity window has passed at now.
func (t AccessToken) Expired(now time.Time) bool { return now.After(t.ExpiresAt) }
