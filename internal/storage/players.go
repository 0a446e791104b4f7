package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kickai/kickai/internal/apperr"
	"github.com/kickai/kickai/internal/entity"
)

// CreatePlayer inserts a new pending player and returns its generated ID.
func (s *Store) CreatePlayer(ctx context.Context, p entity.Player) (string, error) {
	if p.PlayerID == "" {
		p.PlayerID = uuid.NewString()
	}
	if err := validateEntity(p); err != nil {
		return "", err
	}
	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO players (player_id, team_id, telegram_id, name, phone, position, status)
			VALUES (?, ?, ?, ?, ?, ?, ?);
		`, p.PlayerID, p.TeamID, nullableID(p.TelegramID), p.Name, p.Phone, string(p.Position), string(p.Status))
		if err != nil {
			if isUniqueViolation(err) {
				return apperr.New(apperr.Conflict, "a player is already registered for this telegram account on this team")
			}
			return fmt.Errorf("create player: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return p.PlayerID, nil
}

// GetPlayerByTelegramID looks up the player record for (team_id, telegram_id).
// Returns apperr.NotFound if the sender has never registered on this team.
func (s *Store) GetPlayerByTelegramID(ctx context.Context, teamID string, telegramID int64) (entity.Player, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT player_id, team_id, telegram_id, name, phone, position, status
		FROM players WHERE team_id = ? AND telegram_id = ?;
	`, teamID, telegramID)
	return scanPlayer(row)
}

// GetPlayer looks up a player by ID within a team.
func (s *Store) GetPlayer(ctx context.Context, teamID, playerID string) (entity.Player, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT player_id, team_id, telegram_id, name, phone, position, status
		FROM players WHERE team_id = ? AND player_id = ?;
	`, teamID, playerID)
	return scanPlayer(row)
}

func scanPlayer(row *sql.Row) (entity.Player, error) {
	var p entity.Player
	var telegramID sql.NullInt64
	var position, status string
	if err := row.Scan(&p.PlayerID, &p.TeamID, &telegramID, &p.Name, &p.Phone, &position, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Player{}, apperr.New(apperr.NotFound, "player not found")
		}
		return entity.Player{}, fmt.Errorf("scan player: %w", err)
	}
	if telegramID.Valid {
		p.TelegramID = telegramID.Int64
	}
	p.Position = entity.Position(position)
	p.Status = entity.Status(status)
	return p, nil
}

// ListPlayers returns every player on a team, ordered by name.
func (s *Store) ListPlayers(ctx context.Context, teamID string) ([]entity.Player, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, team_id, telegram_id, name, phone, position, status
		FROM players WHERE team_id = ? ORDER BY name;
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	defer rows.Close()

	var out []entity.Player
	for rows.Next() {
		var p entity.Player
		var telegramID sql.NullInt64
		var position, status string
		if err := rows.Scan(&p.PlayerID, &p.TeamID, &telegramID, &p.Name, &p.Phone, &position, &status); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		if telegramID.Valid {
			p.TelegramID = telegramID.Int64
		}
		p.Position = entity.Position(position)
		p.Status = entity.Status(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ActivatePlayer binds a pending player to the redeemer's telegram_id and
// flips status to active. Used by invite redemption (§4.8) — must run in
// the same transaction as the invite's used_at write, so callers reach
// this through RedeemInvite rather than calling it standalone in
// production code paths.
func (s *Store) ActivatePlayer(ctx context.Context, teamID, playerID string, telegramID int64) error {
	return retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE players SET telegram_id = ?, status = 'active'
			WHERE team_id = ? AND player_id = ? AND status = 'pending';
		`, telegramID, teamID, playerID)
		if err != nil {
			return fmt.Errorf("activate player: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperr.New(apperr.Conflict, "player is not pending activation")
		}
		return nil
	})
}

// UpdatePlayerField updates a single self-service field (§4.3 update
// contract: phone/position/emergency_contact are player-writable).
func (s *Store) UpdatePlayerField(ctx context.Context, teamID, playerID string, field entity.UpdatableField, value string) error {
	column := map[entity.UpdatableField]string{
		entity.FieldPhone:    "phone",
		entity.FieldPosition: "position",
	}[field]
	if column == "" {
		return apperr.New(apperr.InvalidInput, "field is not updatable for players")
	}
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE players SET %s = ? WHERE team_id = ? AND player_id = ?;`, column), value, teamID, playerID)
		if err != nil {
			return fmt.Errorf("update player field: %w", err)
		}
		return nil
	})
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
