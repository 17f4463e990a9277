package domain

import "time"

// Account states with respect to session eligibility:
// unverified (Verified=false, Active=false) → verified+active → suspended
// (Active=false, reversible) or deleted (DeletedAt set, terminal).
type User struct {
	UserID       string     `json:"id" dynamodbav:"user_id"`
	Email        string     `json:"email" dynamodbav:"email"`
	Username     string     `json:"username" dynamodbav:"username"`
	FullName     string     `json:"full_name" dynamodbav:"full_name"`
	Phone        *string    `json:"phone,omitempty" dynamodbav:"phone"`
	PasswordHash string     `json:"-" dynamodbav:"password_hash"`
	Role         string     `json:"role" dynamodbav:"role"`
	Verified     bool       `json:"verified" dynamodbav:"verified"`
	Active       bool       `json:"active" dynamodbav:"active"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty" dynamodbav:"deleted_at"`
	CreatedAt    time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt    time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// Deleted reports whether the account has been soft-deleted. Deleted accounts
// are invisible to every auth flow.
func (u *User) Deleted() bool {
	return u.DeletedAt != nil
}
