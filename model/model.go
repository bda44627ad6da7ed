// Package model holds the records shared by the engine, its flows and the
// persistence backends.
//
// The package has no dependencies on other campusAuth packages so that stores
// and the ownership resolver can import it without cycles.
package model

import (
	"errors"
	"time"
)

// ErrNotFound is returned by repositories when the requested row does not exist.
var ErrNotFound = errors.New("record not found")

// Role identifies which kind of account a user is.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleParent  Role = "parent"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent, RoleParent:
		return true
	}
	return false
}

// Principal is the authenticated caller, derived from a verified access token.
type Principal struct {
	UserID   string
	Username string
	Role     Role
}

// User is a credential record. Lockout counters live on the row and are
// mutated on every login attempt.
type User struct {
	ID                  string
	Username            string
	Email               string
	PasswordHash        string
	Role                Role
	EmailVerified       bool
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastFailedLoginAt   *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Summary returns the public subset of the user returned alongside tokens.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Role:     u.Role,
	}
}

// UserSummary is the minimal user view handed back to clients.
type UserSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     Role   `json:"role"`
}

// RefreshToken is one issued refresh credential. Only the SHA-256 of the
// secret is kept. Rows are revoked, never deleted.
type RefreshToken struct {
	ID                string
	UserID            string
	TokenHash         [32]byte
	ExpiresAt         time.Time
	CreatedAt         time.Time
	CreatedByIP       string
	RevokedAt         *time.Time
	RevokedReason     string
	RevokedByIP       string
	ReplacedByTokenID string
}

// Revoked reports whether the token has been revoked for any reason.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Expired reports whether the token is past its expiry at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TwoFactorRecord is the per-user TOTP state.
type TwoFactorRecord struct {
	UserID      string
	Secret      string
	Enrolled    bool
	Enabled     bool
	BackupCodes []string
	UpdatedAt   time.Time
}

// Student, Teacher and Parent link a domain row to a user account.
type Student struct {
	ID     string
	UserID string
}

type Teacher struct {
	ID     string
	UserID string
}

type Parent struct {
	ID     string
	UserID string
}

// Class is taught by exactly one teacher.
type Class struct {
	ID        string
	TeacherID string
}

// Enrollment is the (student, class) edge. Inactive enrollments grant nothing.
type Enrollment struct {
	StudentID string
	ClassID   string
	Active    bool
}

// ParentChild is the (parent, student) edge.
type ParentChild struct {
	ParentID  string
	StudentID string
}

// Invoice belongs to one student.
type Invoice struct {
	ID        string
	StudentID string
}
