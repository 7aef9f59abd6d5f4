package domain

import "context"

type AuditEntry struct {
	Action  string // execute | analyze
	Command string
	Result  string // success | failure | risk level
	Details string
}

// AuditLogger is the interface for writing audit entries.
type AuditLogger interface {
	LogAudit(ctx context.Context, entry AuditEntry) error
}
