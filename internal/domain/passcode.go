package domain

import "time"

// Passcode purposes. A passcode is only redeemable for the purpose it was
// issued for.
const (
	PurposeRegistration = "registration"
	PurposeLogin        = "login"
)

// Passcode is a short-lived numeric one-time code bound to an email and a
// purpose. At most one valid (unused, unexpired) passcode exists per
// (email, purpose) pair: issuing a new one marks every prior unused code used.
// Rows are never deleted by the application; they are retained for audit and
// eventually reaped by the table TTL.
type Passcode struct {
	PasscodeID string    `json:"id" dynamodbav:"passcode_id"`
	Email      string    `json:"email" dynamodbav:"email"`
	Purpose    string    `json:"purpose" dynamodbav:"purpose"`
	Code       string    `json:"-" dynamodbav:"code"`
	Used       bool      `json:"used" dynamodbav:"used"`
	ExpiresAt  int64     `json:"expires_at" dynamodbav:"expires_at"` // Unix seconds, also the table TTL attribute
	CreatedAt  time.Time `json:"created" dynamodbav:"created_at"`
}

// Expired reports whether the passcode's validity window has passed.
func (p *Passcode) Expired(now time.Time) bool {
	return p.ExpiresAt < now.Unix()
}
