package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kickai/kickai/internal/apperr"
	"github.com/kickai/kickai/internal/entity"
)

// CreateMatch inserts a new fixture for /creatematch.
func (s *Store) CreateMatch(ctx context.Context, m entity.Match) (string, error) {
	if m.MatchID == "" {
		m.MatchID = uuid.NewString()
	}
	if err := validateEntity(m); err != nil {
		return "", err
	}
	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO matches (match_id, team_id, opponent, kickoff_at, venue, status, selected_player_ids)
			VALUES (?, ?, ?, ?, ?, ?, '[]');
		`, m.MatchID, m.TeamID, m.Opponent, m.KickoffAt, m.Venue, string(entity.MatchScheduled))
		if err != nil {
			return fmt.Errorf("create match: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return m.MatchID, nil
}

// ListMatches returns a team's fixtures, most recent kickoff first.
func (s *Store) ListMatches(ctx context.Context, teamID string) ([]entity.Match, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_id, team_id, opponent, kickoff_at, venue, status, selected_player_ids, created_at
		FROM matches WHERE team_id = ? ORDER BY kickoff_at DESC;
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var out []entity.Match
	for rows.Next() {
		m, err := scanMatchRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMatch fetches one fixture by ID within a team.
func (s *Store) GetMatch(ctx context.Context, teamID, matchID string) (entity.Match, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT match_id, team_id, opponent, kickoff_at, venue, status, selected_player_ids, created_at
		FROM matches WHERE team_id = ? AND match_id = ?;
	`, teamID, matchID)
	var m entity.Match
	var status, selected string
	var kickoff sql.NullTime
	if err := row.Scan(&m.MatchID, &m.TeamID, &m.Opponent, &kickoff, &m.Venue, &status, &selected, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Match{}, apperr.New(apperr.NotFound, "match not found")
		}
		return entity.Match{}, fmt.Errorf("get match: %w", err)
	}
	if kickoff.Valid {
		m.KickoffAt = kickoff.Time
	}
	m.Status = entity.MatchStatus(status)
	_ = json.Unmarshal([]byte(selected), &m.SelectedPlayerIDs)
	return m, nil
}

func scanMatchRow(rows *sql.Rows) (entity.Match, error) {
	var m entity.Match
	var status, selected string
	var kickoff sql.NullTime
	if err := rows.Scan(&m.MatchID, &m.TeamID, &m.Opponent, &kickoff, &m.Venue, &status, &selected, &m.CreatedAt); err != nil {
		return entity.Match{}, fmt.Errorf("scan match: %w", err)
	}
	if kickoff.Valid {
		m.KickoffAt = kickoff.Time
	}
	m.Status = entity.MatchStatus(status)
	_ = json.Unmarshal([]byte(selected), &m.SelectedPlayerIDs)
	return m, nil
}

// RecordAvailability upserts a player's response to a match poll (§4.4
// SquadSelector tools: respond to availability).
func (s *Store) RecordAvailability(ctx context.Context, a entity.Availability) error {
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO availability (match_id, player_id, response, responded_at)
			VALUES (?, ?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(match_id, player_id) DO UPDATE SET response = excluded.response, responded_at = CURRENT_TIMESTAMP;
		`, a.MatchID, a.PlayerID, string(a.Response))
		if err != nil {
			return fmt.Errorf("record availability: %w", err)
		}
		return nil
	})
}

// ListAvailability returns every recorded response for a match. Players
// with no row are implicitly "unknown" (§ supplement invariant).
func (s *Store) ListAvailability(ctx context.Context, matchID string) ([]entity.Availability, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT match_id, player_id, response, responded_at FROM availability WHERE match_id = ?;
	`, matchID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	defer rows.Close()

	var out []entity.Availability
	for rows.Next() {
		var a entity.Availability
		var response string
		if err := rows.Scan(&a.MatchID, &a.PlayerID, &response, &a.RespondedAt); err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		a.Response = entity.AvailabilityResponse(response)
		out = append(out, a)
	}
	return out, rows.Err()
}

// SelectSquad records the chosen players for a match and advances status.
func (s *Store) SelectSquad(ctx context.Context, teamID, matchID string, playerIDs []string) error {
	encoded, err := json.Marshal(playerIDs)
	if err != nil {
		return fmt.Errorf("encode selected players: %w", err)
	}
	return retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE matches SET selected_player_ids = ?, status = ?
			WHERE team_id = ? AND match_id = ? AND status = 'scheduled';
		`, string(encoded), string(entity.MatchSquadSelected), teamID, matchID)
		if err != nil {
			return fmt.Errorf("select squad: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperr.New(apperr.Conflict, "squad has already been selected, or the match is not in scheduled state")
		}
		return nil
	})
}
