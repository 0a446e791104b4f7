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

// CreateMember inserts a new pending leadership-chat member.
func (s *Store) CreateMember(ctx context.Context, m entity.Member) (string, error) {
	if m.MemberID == "" {
		m.MemberID = uuid.NewString()
	}
	if err := validateEntity(m); err != nil {
		return "", err
	}
	err := retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO members (member_id, team_id, telegram_id, name, phone, email, role, emergency_contact, is_admin, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
		`, m.MemberID, m.TeamID, nullableID(m.TelegramID), m.Name, m.Phone, m.Email, m.Role, m.EmergencyContact, boolToInt(m.IsAdmin), string(m.Status))
		if err != nil {
			if isUniqueViolation(err) {
				return apperr.New(apperr.Conflict, "a member is already registered for this telegram account on this team")
			}
			return fmt.Errorf("create member: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return m.MemberID, nil
}

// GetMemberByTelegramID looks up the leadership member for (team_id,
// telegram_id). Returns apperr.NotFound if absent.
func (s *Store) GetMemberByTelegramID(ctx context.Context, teamID string, telegramID int64) (entity.Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT member_id, team_id, telegram_id, name, phone, email, role, emergency_contact, is_admin, status
		FROM members WHERE team_id = ? AND telegram_id = ?;
	`, teamID, telegramID)
	return scanMember(row)
}

// GetMember looks up a member by ID within a team.
func (s *Store) GetMember(ctx context.Context, teamID, memberID string) (entity.Member, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT member_id, team_id, telegram_id, name, phone, email, role, emergency_contact, is_admin, status
		FROM members WHERE team_id = ? AND member_id = ?;
	`, teamID, memberID)
	return scanMember(row)
}

func scanMember(row *sql.Row) (entity.Member, error) {
	var m entity.Member
	var telegramID sql.NullInt64
	var isAdmin int
	var status string
	if err := row.Scan(&m.MemberID, &m.TeamID, &telegramID, &m.Name, &m.Phone, &m.Email, &m.Role, &m.EmergencyContact, &isAdmin, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Member{}, apperr.New(apperr.NotFound, "member not found")
		}
		return entity.Member{}, fmt.Errorf("scan member: %w", err)
	}
	if telegramID.Valid {
		m.TelegramID = telegramID.Int64
	}
	m.IsAdmin = isAdmin != 0
	m.Status = entity.Status(status)
	return m, nil
}

// ListMembers returns every leadership member on a team, ordered by name.
func (s *Store) ListMembers(ctx context.Context, teamID string) ([]entity.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT member_id, team_id, telegram_id, name, phone, email, role, emergency_contact, is_admin, status
		FROM members WHERE team_id = ? ORDER BY name;
	`, teamID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []entity.Member
	for rows.Next() {
		var m entity.Member
		var telegramID sql.NullInt64
		var isAdmin int
		var status string
		if err := rows.Scan(&m.MemberID, &m.TeamID, &telegramID, &m.Name, &m.Phone, &m.Email, &m.Role, &m.EmergencyContact, &isAdmin, &status); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		if telegramID.Valid {
			m.TelegramID = telegramID.Int64
		}
		m.IsAdmin = isAdmin != 0
		m.Status = entity.Status(status)
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMembers returns the number of member rows (any status) on a team,
// the check the orchestrator's bootstrap step uses to decide whether a
// leadership chat has ever had anyone register (§4.5 step 3).
func (s *Store) CountMembers(ctx context.Context, teamID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM members WHERE team_id = ?;`, teamID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return n, nil
}

// ActivateMember binds a pending member to the redeemer's telegram_id.
func (s *Store) ActivateMember(ctx context.Context, teamID, memberID string, telegramID int64) error {
	return retryOnBusy(ctx, 5, func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE members SET telegram_id = ?, status = 'active'
			WHERE team_id = ? AND member_id = ? AND status = 'pending';
		`, telegramID, teamID, memberID)
		if err != nil {
			return fmt.Errorf("activate member: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return apperr.New(apperr.Conflict, "member is not pending activation")
		}
		return nil
	})
}

// UpdateMemberField updates a single self-service field.
func (s *Store) UpdateMemberField(ctx context.Context, teamID, memberID string, field entity.UpdatableField, value string) error {
	column := map[entity.UpdatableField]string{
		entity.FieldPhone:            "phone",
		entity.FieldEmail:            "email",
		entity.FieldEmergencyContact: "emergency_contact",
	}[field]
	if column == "" {
		return apperr.New(apperr.InvalidInput, "field is not updatable for members")
	}
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, fmt.Sprintf(`UPDATE members SET %s = ? WHERE team_id = ? AND member_id = ?;`, column), value, teamID, memberID)
		if err != nil {
			return fmt.Errorf("update member field: %w", err)
		}
		return nil
	})
}
