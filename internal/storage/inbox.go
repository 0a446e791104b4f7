package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InboxStatus enumerates the states KICKAI's single-attempt orchestrator
// actually uses — there is no retry or dead-letter path here (§5: a
// timed-out update is reported to the user, not retried).
type InboxStatus string

const (
	InboxQueued    InboxStatus = "QUEUED"
	InboxClaimed   InboxStatus = "CLAIMED"
	InboxRunning   InboxStatus = "RUNNING"
	InboxSucceeded InboxStatus = "SUCCEEDED"
	InboxFailed    InboxStatus = "FAILED"
	InboxCanceled  InboxStatus = "CANCELED"
)

const defaultLeaseDuration = 35 * time.Second

// InboxTask is one inbound Telegram update queued for orchestrator
// processing. The (team_id, chat_kind, chat_id) triple is the FIFO unit:
// §5 requires strict per-chat ordering with no cross-chat guarantee, so
// claims are always scoped to one chat.
type InboxTask struct {
	ID             string
	TeamID         string
	ChatKind       string
	ChatID         int64
	Status         InboxStatus
	TraceID        string
	Payload        string
	Result         string
	Error          string
	LeaseOwner     string
	LeaseExpiresAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EnqueueInboxTask appends one update to a chat's FIFO queue.
func (s *Store) EnqueueInboxTask(ctx context.Context, teamID, chatKind string, chatID int64, traceID, payload string) (string, error) {
	id := uuid.NewString()
	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO inbox_tasks (id, team_id, chat_kind, chat_id, status, trace_id, payload, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
		`, id, teamID, chatKind, chatID, string(InboxQueued), traceID, payload)
		if err != nil {
			return fmt.Errorf("enqueue inbox task: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// ClaimNextForChat claims the oldest queued task for one chat. Two
// orchestrator workers racing for the same chat can only ever have one
// win, which is what gives §5's FIFO guarantee its teeth — the other
// worker observes zero rows affected and moves on to a different chat.
func (s *Store) ClaimNextForChat(ctx context.Context, teamID, chatKind string, chatID int64) (*InboxTask, error) {
	var result *InboxTask
	err := retryOnBusy(ctx, 5, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin claim tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx, `
			SELECT id, team_id, chat_kind, chat_id, status, trace_id, payload, COALESCE(result, ''), COALESCE(error, ''), created_at, updated_at
			FROM inbox_tasks
			WHERE team_id = ? AND chat_kind = ? AND chat_id = ? AND status = ?
			ORDER BY created_at ASC, id ASC
			LIMIT 1;
		`, teamID, chatKind, chatID, string(InboxQueued))

		var t InboxTask
		var status string
		if scanErr := row.Scan(&t.ID, &t.TeamID, &t.ChatKind, &t.ChatID, &status, &t.TraceID, &t.Payload, &t.Result, &t.Error, &t.CreatedAt, &t.UpdatedAt); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				result = nil
				return nil
			}
			return fmt.Errorf("select pending inbox task: %w", scanErr)
		}

		leaseOwner := uuid.NewString()
		leaseExpiresAt := time.Now().UTC().Add(defaultLeaseDuration)
		res, err := tx.ExecContext(ctx, `
			UPDATE inbox_tasks SET status = ?, lease_owner = ?, lease_expires_at = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ? AND status = ?;
		`, string(InboxClaimed), leaseOwner, leaseExpiresAt, t.ID, string(InboxQueued))
		if err != nil {
			return fmt.Errorf("claim inbox task: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			result = nil
			return nil
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit claim tx: %w", err)
		}
		t.Status = InboxClaimed
		t.LeaseOwner = leaseOwner
		t.LeaseExpiresAt = &leaseExpiresAt
		result = &t
		return nil
	})
	return result, err
}

// MarkRunning transitions a claimed task to running, used once the
// orchestrator has begun agent invocation (for lease-heartbeat purposes).
func (s *Store) MarkRunning(ctx context.Context, taskID string) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE inbox_tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?;
		`, string(InboxRunning), taskID, string(InboxClaimed))
		if err != nil {
			return fmt.Errorf("mark inbox task running: %w", err)
		}
		return nil
	})
}

// CompleteInboxTask records a successful reply.
func (s *Store) CompleteInboxTask(ctx context.Context, taskID, result string) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE inbox_tasks SET status = ?, result = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?;
		`, string(InboxSucceeded), result, taskID)
		if err != nil {
			return fmt.Errorf("complete inbox task: %w", err)
		}
		return nil
	})
}

// FailInboxTask records a terminal failure (including TimedOut) — there
// is no retry path, so this is always the end of the task's life.
func (s *Store) FailInboxTask(ctx context.Context, taskID, errMsg string) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE inbox_tasks SET status = ?, error = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?;
		`, string(InboxFailed), errMsg, taskID)
		if err != nil {
			return fmt.Errorf("fail inbox task: %w", err)
		}
		return nil
	})
}

// GetInboxTask looks up one task by id, for callers (tests, admin
// tooling) that need to observe a task's terminal status and result
// rather than drive the claim/complete lifecycle themselves.
func (s *Store) GetInboxTask(ctx context.Context, taskID string) (InboxTask, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, chat_kind, chat_id, status, trace_id, payload, COALESCE(result, ''), COALESCE(error, ''), created_at, updated_at
		FROM inbox_tasks WHERE id = ?;
	`, taskID)
	var t InboxTask
	var status string
	if err := row.Scan(&t.ID, &t.TeamID, &t.ChatKind, &t.ChatID, &status, &t.TraceID, &t.Payload, &t.Result, &t.Error, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return InboxTask{}, fmt.Errorf("inbox task %q not found", taskID)
		}
		return InboxTask{}, fmt.Errorf("get inbox task: %w", err)
	}
	t.Status = InboxStatus(status)
	return t, nil
}

// RequeueExpiredLeases recovers tasks whose claim lease expired without a
// terminal status — a crashed worker's claim reverts to QUEUED so another
// worker for the same chat can pick it up, preserving FIFO order.
func (s *Store) RequeueExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inbox_tasks SET status = ?, lease_owner = NULL, lease_expires_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE status IN (?, ?) AND lease_expires_at IS NOT NULL AND lease_expires_at < ?;
	`, string(InboxQueued), string(InboxClaimed), string(InboxRunning), now)
	if err != nil {
		return 0, fmt.Errorf("requeue expired leases: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DistinctActiveChatKeys lists (team_id, chat_kind, chat_id) triples that
// currently have a queued task, so the orchestrator knows which chats need
// a worker without polling every known chat.
func (s *Store) DistinctActiveChatKeys(ctx context.Context) ([][3]any, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT team_id, chat_kind, chat_id FROM inbox_tasks WHERE status = ?;
	`, string(InboxQueued))
	if err != nil {
		return nil, fmt.Errorf("list active chat keys: %w", err)
	}
	defer rows.Close()

	var out [][3]any
	for rows.Next() {
		var teamID, chatKind string
		var chatID int64
		if err := rows.Scan(&teamID, &chatKind, &chatID); err != nil {
			return nil, fmt.Errorf("scan active chat key: %w", err)
		}
		out = append(out, [3]any{teamID, chatKind, chatID})
	}
	return out, rows.Err()
}
