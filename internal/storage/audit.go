package storage

import (
	"context"
	"fmt"
)

// AuditEntry is one row of the command audit log (§7: every authorization
// decision and command outcome is recorded, win or lose).
type AuditEntry struct {
	TraceID    string
	TeamID     string
	ChatKind   string
	TelegramID int64
	Command    string
	Decision   string // "allowed" | "denied" | "error"
	ErrorKind  string // empty unless Decision == "error"
}

// RecordAudit appends one command decision to the audit log. Failures to
// write the audit log are logged by the caller but never block the
// user-visible response — the log is forensic, not authoritative.
func (s *Store) RecordAudit(ctx context.Context, e AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO command_audit_log (trace_id, team_id, chat_kind, telegram_id, command, decision, error_kind)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`, e.TraceID, e.TeamID, e.ChatKind, e.TelegramID, e.Command, e.Decision, e.ErrorKind)
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}
