package domain

import "time"

// Audit outcomes.
const (
	AuditSuccess        = "success"
	AuditFailed         = "failed"
	AuditPartialSuccess = "partial_success"
)

// AuditLog is a single recorded action. Writes are fire-and-forget from the
// core's perspective: a failed audit write never fails the primary operation.
type AuditLog struct {
	AuditID     string            `json:"id" dynamodbav:"audit_id"`
	Action      string            `json:"action" dynamodbav:"action"`
	UserID      string            `json:"user_id,omitempty" dynamodbav:"user_id"`
	Resource    string            `json:"resource" dynamodbav:"resource"`
	ResourceID  string            `json:"resource_id,omitempty" dynamodbav:"resource_id"`
	Details     map[string]string `json:"details,omitempty" dynamodbav:"details"`
	ClientIP    string            `json:"client_ip" dynamodbav:"client_ip"`
	ClientAgent string            `json:"client_agent" dynamodbav:"client_agent"`
	Outcome     string            `json:"outcome" dynamodbav:"outcome"`
	CreatedAt   time.Time         `json:"created" dynamodbav:"created_at"`
}
