package ports

import "context"

// AuditEvent is a single audit event for logging or webhooks.
type AuditEvent struct {
	Event     string `json:"event"` // account.erase.requested, account.erase.completed
	UserID    string `json:"user_id"`
	RunID     string `json:"run_id,omitempty"`
	Actor     string `json:"actor,omitempty"` // "self", "admin", "intake", "followup"
	Success   bool   `json:"success"`
	Truncated bool   `json:"truncated,omitempty"`
	Err       string `json:"error,omitempty"`
}

// WebhookEmitter sends audit events to an external endpoint.
type WebhookEmitter interface {
	Emit(ctx context.Context, event AuditEvent) error
}
