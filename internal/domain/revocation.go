package domain

import "time"

// RevocationEntry records a credential invalidated before its natural expiry.
// Keyed by JTI; absence of an entry means "not known to be revoked".
// ExpiresAt is copied from the credential so entries can be pruned once the
// codec would reject the token as expired anyway.
type RevocationEntry struct {
	JTI       string    `json:"jti" dynamodbav:"jti"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	TokenKind string    `json:"token_kind" dynamodbav:"token_kind"` // "access" | "refresh"
	ExpiresAt int64     `json:"expires_at" dynamodbav:"expires_at"` // Unix seconds, also the table TTL attribute
	Revoked   bool      `json:"revoked" dynamodbav:"revoked"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
}
