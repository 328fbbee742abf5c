package domain

import (
	"strconv"
	"time"
)

// User mirrors the persisted representation in the users table.
type User struct {
	ID           int64
	Email        string
	Username     *string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

// Subject returns the token subject identifying this user.
func (u User) Subject() string {
	return strconv.FormatInt(u.ID, 10)
}

// ParseSubject converts a token subject back into a user identifier.
func ParseSubject(subject string) (int64, bool) {
	id, err := strconv.ParseInt(subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Sanitized returns a copy without the password hash.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}
