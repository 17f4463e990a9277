package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-auth-api/internal/domain"
	"github.com/go-auth-api/internal/pkg/id"
)

// AuditStore is the minimal persistence interface the recorder requires.
type AuditStore interface {
	Put(ctx context.Context, entry *domain.AuditLog) error
}

// Entry describes one action to record.
type Entry struct {
	Action      string
	UserID      string
	Resource    string
	ResourceID  string
	Details     map[string]string
	ClientIP    string
	ClientAgent string
	Outcome     string
}

const writeTimeout = 5 * time.Second

// Recorder persists audit entries without ever failing the caller. Writes
// happen on a detached goroutine with their own timeout; a failed write is
// logged and dropped.
type Recorder struct {
	store AuditStore
}

func NewRecorder(store AuditStore) *Recorder {
	return &Recorder{store: store}
}

// Record fires off the audit write and returns immediately.
func (r *Recorder) Record(e Entry) {
	entry := &domain.AuditLog{
		AuditID:     id.New(),
		Action:      e.Action,
		UserID:      e.UserID,
		Resource:    e.Resource,
		ResourceID:  e.ResourceID,
		Details:     e.Details,
		ClientIP:    e.ClientIP,
		ClientAgent: e.ClientAgent,
		Outcome:     e.Outcome,
		CreatedAt:   time.Now().UTC(),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := r.store.Put(ctx, entry); err != nil {
			slog.Warn("audit write failed", "action", e.Action, "user_id", e.UserID, "err", err)
		}
	}()
}
