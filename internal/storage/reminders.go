package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kickai/kickai/internal/apperr"
	"github.com/kickai/kickai/internal/entity"
)

// CreateReminder persists a `/remind` or `/background` cron entry.
func (s *Store) CreateReminder(ctx context.Context, r entity.Reminder) (string, error) {
	if r.ReminderID == "" {
		r.ReminderID = uuid.NewString()
	}
	if err := validateEntity(r); err != nil {
		return "", err
	}
	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO reminders (reminder_id, team_id, chat_kind, body, cron_expr, created_by, enabled, next_run_at)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?);
		`, r.ReminderID, r.TeamID, string(r.ChatKind), r.Body, r.CronExpr, r.CreatedBy, r.NextRunAt)
		if err != nil {
			return fmt.Errorf("create reminder: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return r.ReminderID, nil
}

// DueReminders returns every enabled reminder whose next_run_at has
// passed, used by the cron scheduler's tick.
func (s *Store) DueReminders(ctx context.Context, now time.Time) ([]entity.Reminder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reminder_id, team_id, chat_kind, body, cron_expr, created_by, enabled, next_run_at, last_run_at
		FROM reminders WHERE enabled = 1 AND next_run_at IS NOT NULL AND next_run_at <= ?;
	`, now)
	if err != nil {
		return nil, fmt.Errorf("query due reminders: %w", err)
	}
	defer rows.Close()
	return scanReminders(rows)
}

func scanReminders(rows *sql.Rows) ([]entity.Reminder, error) {
	var out []entity.Reminder
	for rows.Next() {
		var r entity.Reminder
		var chatKind string
		var enabled int
		var nextRun, lastRun sql.NullTime
		if err := rows.Scan(&r.ReminderID, &r.TeamID, &chatKind, &r.Body, &r.CronExpr, &r.CreatedBy, &enabled, &nextRun, &lastRun); err != nil {
			return nil, fmt.Errorf("scan reminder: %w", err)
		}
		r.ChatKind = entity.ChatKind(chatKind)
		r.Enabled = enabled != 0
		if nextRun.Valid {
			r.NextRunAt = nextRun.Time
		}
		if lastRun.Valid {
			r.LastRunAt = lastRun.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// AdvanceReminder records a firing and schedules the next run time. A
// nil nextRun disables the reminder (one-shot semantics).
func (s *Store) AdvanceReminder(ctx context.Context, reminderID string, firedAt time.Time, nextRun *time.Time) error {
	return retryOnBusy(ctx, 5, func() error {
		if nextRun == nil {
			_, err := s.db.ExecContext(ctx, `
				UPDATE reminders SET last_run_at = ?, next_run_at = NULL, enabled = 0 WHERE reminder_id = ?;
			`, firedAt, reminderID)
			if err != nil {
				return fmt.Errorf("disable reminder: %w", err)
			}
			return nil
		}
		_, err := s.db.ExecContext(ctx, `
			UPDATE reminders SET last_run_at = ?, next_run_at = ? WHERE reminder_id = ?;
		`, firedAt, *nextRun, reminderID)
		if err != nil {
			return fmt.Errorf("advance reminder: %w", err)
		}
		return nil
	})
}

// CreatePoll persists a `/poll` ballot.
func (s *Store) CreatePoll(ctx context.Context, p entity.Poll) (string, error) {
	if p.PollID == "" {
		p.PollID = uuid.NewString()
	}
	if err := validateEntity(p); err != nil {
		return "", err
	}
	encoded, err := json.Marshal(p.Options)
	if err != nil {
		return "", fmt.Errorf("encode poll options: %w", err)
	}
	err = retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO polls (poll_id, team_id, chat_kind, question, options, created_by)
			VALUES (?, ?, ?, ?, ?, ?);
		`, p.PollID, p.TeamID, string(p.ChatKind), p.Question, string(encoded), p.CreatedBy)
		if err != nil {
			return fmt.Errorf("create poll: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return p.PollID, nil
}

// CastVote upserts a subject's vote for a poll. A subject may change
// their vote until the poll is closed.
func (s *Store) CastVote(ctx context.Context, pollID, subjectID string, optionIndex int) error {
	return retryOnBusy(ctx, 5, func() error {
		var closedAt sql.NullTime
		if err := s.db.QueryRowContext(ctx, `SELECT closed_at FROM polls WHERE poll_id = ?;`, pollID).Scan(&closedAt); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.New(apperr.NotFound, "poll not found")
			}
			return fmt.Errorf("check poll closed: %w", err)
		}
		if closedAt.Valid {
			return apperr.New(apperr.Conflict, "poll is closed")
		}
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO poll_votes (poll_id, subject_id, option_index, voted_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(poll_id, subject_id) DO UPDATE SET option_index = excluded.option_index, voted_at = CURRENT_TIMESTAMP;
		`, pollID, subjectID, optionIndex)
		if err != nil {
			return fmt.Errorf("cast vote: %w", err)
		}
		return nil
	})
}

// PollResults tallies votes per option index.
func (s *Store) PollResults(ctx context.Context, pollID string) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT option_index, COUNT(*) FROM poll_votes WHERE poll_id = ? GROUP BY option_index;
	`, pollID)
	if err != nil {
		return nil, fmt.Errorf("tally poll: %w", err)
	}
	defer rows.Close()

	out := make(map[int]int)
	for rows.Next() {
		var idx, count int
		if err := rows.Scan(&idx, &count); err != nil {
			return nil, fmt.Errorf("scan tally: %w", err)
		}
		out[idx] = count
	}
	return out, rows.Err()
}
