package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/kickai/kickai/internal/apperr"
	"github.com/kickai/kickai/internal/entity"
)

// CreateTeam inserts a new team row. TeamID must be unique.
func (s *Store) CreateTeam(ctx context.Context, t entity.Team) error {
	if err := validateEntity(t); err != nil {
		return err
	}
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO teams (team_id, name, main_chat_id, leadership_chat_id, disabled)
			VALUES (?, ?, ?, ?, ?);
		`, t.TeamID, t.Name, t.MainChatID, t.LeadershipChatID, boolToInt(t.Disabled))
		if err != nil {
			if isUniqueViolation(err) {
				return apperr.New(apperr.Conflict, "team already exists")
			}
			return fmt.Errorf("create team: %w", err)
		}
		return nil
	})
}

// GetTeam fetches a team by ID.
func (s *Store) GetTeam(ctx context.Context, teamID string) (entity.Team, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT team_id, name, main_chat_id, leadership_chat_id, disabled, created_at
		FROM teams WHERE team_id = ?;
	`, teamID)
	var t entity.Team
	var disabled int
	if err := row.Scan(&t.TeamID, &t.Name, &t.MainChatID, &t.LeadershipChatID, &disabled, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Team{}, apperr.New(apperr.NotFound, "team not found")
		}
		return entity.Team{}, fmt.Errorf("get team: %w", err)
	}
	t.Disabled = disabled != 0
	return t, nil
}

// ListTeams returns every known team, including disabled ones.
func (s *Store) ListTeams(ctx context.Context) ([]entity.Team, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT team_id, name, main_chat_id, leadership_chat_id, disabled, created_at
		FROM teams ORDER BY team_id;
	`)
	if err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	defer rows.Close()

	var out []entity.Team
	for rows.Next() {
		var t entity.Team
		var disabled int
		if err := rows.Scan(&t.TeamID, &t.Name, &t.MainChatID, &t.LeadershipChatID, &disabled, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		t.Disabled = disabled != 0
		out = append(out, t)
	}
	return out, rows.Err()
}

// TeamByChat resolves (team_id, chat_kind) from a raw Telegram chat_id —
// used by the fleet manager's routing table (§C9).
func (s *Store) TeamByChat(ctx context.Context, chatID int64) (teamID string, kind entity.ChatKind, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT team_id, 'main' FROM teams WHERE main_chat_id = ?
		UNION ALL
		SELECT team_id, 'leadership' FROM teams WHERE leadership_chat_id = ?
		LIMIT 1;
	`, chatID, chatID)
	var k string
	if scanErr := row.Scan(&teamID, &k); scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			return "", "", apperr.New(apperr.NotFound, "chat is not bound to any team")
		}
		return "", "", fmt.Errorf("resolve team by chat: %w", scanErr)
	}
	return teamID, entity.ChatKind(k), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
