package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kickai/kickai/internal/apperr"
	"github.com/kickai/kickai/internal/entity"
)

// CreateInvite persists a freshly minted invite (§4.8). The caller has
// already generated InviteID and signed the JWT that encodes it; this
// table is the single source of truth for expiry and single-use
// redemption.
func (s *Store) CreateInvite(ctx context.Context, inv entity.Invite) error {
	if err := validateEntity(inv); err != nil {
		return err
	}
	return retryOnBusy(ctx, 5, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO invites (invite_id, team_id, chat_kind, subject_kind, subject_id, issuer_id, issued_at, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?);
		`, inv.InviteID, inv.TeamID, string(inv.ChatKind), string(inv.Subject), inv.SubjectID, inv.IssuerID, inv.IssuedAt, inv.ExpiresAt)
		if err != nil {
			return fmt.Errorf("create invite: %w", err)
		}
		return nil
	})
}

// GetInvite fetches an invite by ID without consuming it.
func (s *Store) GetInvite(ctx context.Context, inviteID string) (entity.Invite, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT invite_id, team_id, chat_kind, subject_kind, subject_id, issuer_id, issued_at, expires_at, used_at, used_by
		FROM invites WHERE invite_id = ?;
	`, inviteID)
	return scanInvite(row)
}

func scanInvite(row *sql.Row) (entity.Invite, error) {
	var inv entity.Invite
	var chatKind, subjectKind string
	var usedAt sql.NullTime
	var usedBy sql.NullInt64
	if err := row.Scan(&inv.InviteID, &inv.TeamID, &chatKind, &subjectKind, &inv.SubjectID, &inv.IssuerID, &inv.IssuedAt, &inv.ExpiresAt, &usedAt, &usedBy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Invite{}, apperr.New(apperr.NotFound, "invite not found")
		}
		return entity.Invite{}, fmt.Errorf("scan invite: %w", err)
	}
	inv.ChatKind = entity.ChatKind(chatKind)
	inv.Subject = entity.SubjectKind(subjectKind)
	if usedAt.Valid {
		t := usedAt.Time
		inv.UsedAt = &t
	}
	if usedBy.Valid {
		inv.UsedBy = usedBy.Int64
	}
	return inv, nil
}

// RedeemInvite atomically validates and consumes an invite, then activates
// the bound player or member record to the redeemer's telegram_id. All
// three reads/writes happen inside one transaction so a double-redemption
// race (two concurrent /start taps) can only ever mark one of them
// successful — the loser observes used_at already set and returns
// InviteAlreadyUsed (§4.8 invariant: single-use, atomic).
func (s *Store) RedeemInvite(ctx context.Context, inviteID string, redeemerTelegramID int64, now time.Time) (entity.Invite, error) {
	var result entity.Invite
	err := retryOnBusy(ctx, 5, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin redeem tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		row := tx.QueryRowContext(ctx, `
			SELECT invite_id, team_id, chat_kind, subject_kind, subject_id, issuer_id, issued_at, expires_at, used_at, used_by
			FROM invites WHERE invite_id = ?;
		`, inviteID)
		var inv entity.Invite
		var chatKind, subjectKind string
		var usedAt sql.NullTime
		var usedBy sql.NullInt64
		if scanErr := row.Scan(&inv.InviteID, &inv.TeamID, &chatKind, &subjectKind, &inv.SubjectID, &inv.IssuerID, &inv.IssuedAt, &inv.ExpiresAt, &usedAt, &usedBy); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return apperr.New(apperr.NotFound, "invite not found")
			}
			return fmt.Errorf("scan invite: %w", scanErr)
		}
		inv.ChatKind = entity.ChatKind(chatKind)
		inv.Subject = entity.SubjectKind(subjectKind)
		if usedAt.Valid {
			return apperr.New(apperr.InviteAlreadyUsed, "this invite link has already been used")
		}
		if now.After(inv.ExpiresAt) {
			return apperr.New(apperr.InviteExpired, "this invite link has expired")
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE invites SET used_at = ?, used_by = ? WHERE invite_id = ? AND used_at IS NULL;
		`, now, redeemerTelegramID, inviteID)
		if err != nil {
			return fmt.Errorf("mark invite used: %w", err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			// Lost the race to a concurrent redemption between the SELECT and
			// this UPDATE.
			return apperr.New(apperr.InviteAlreadyUsed, "this invite link has already been used")
		}

		switch inv.Subject {
		case entity.SubjectPlayer:
			pres, perr := tx.ExecContext(ctx, `
				UPDATE players SET telegram_id = ?, status = 'active'
				WHERE team_id = ? AND player_id = ? AND status = 'pending';
			`, redeemerTelegramID, inv.TeamID, inv.SubjectID)
			if perr != nil {
				return fmt.Errorf("activate player: %w", perr)
			}
			if n, _ := pres.RowsAffected(); n == 0 {
				return apperr.New(apperr.Conflict, "player is not pending activation")
			}
		case entity.SubjectMember:
			mres, merr := tx.ExecContext(ctx, `
				UPDATE members SET telegram_id = ?, status = 'active'
				WHERE team_id = ? AND member_id = ? AND status = 'pending';
			`, redeemerTelegramID, inv.TeamID, inv.SubjectID)
			if merr != nil {
				return fmt.Errorf("activate member: %w", merr)
			}
			if n, _ := mres.RowsAffected(); n == 0 {
				return apperr.New(apperr.Conflict, "member is not pending activation")
			}
		default:
			return apperr.New(apperr.SystemCritical, "invite has an unknown subject kind")
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit redeem tx: %w", err)
		}
		inv.UsedAt = &now
		inv.UsedBy = redeemerTelegramID
		result = inv
		return nil
	})
	if err != nil {
		return entity.Invite{}, err
	}
	return result, nil
}

// ExpireStaleInvites is a periodic housekeeping sweep; it does not change
// redemption semantics (expiry is checked live in RedeemInvite) but keeps
// the table from growing unbounded with invites nobody will ever redeem.
func (s *Store) ExpireStaleInvites(ctx context.Context, olderThan time.Duration, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM invites WHERE used_at IS NULL AND expires_at < ?;
	`, now.Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("expire stale invites: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
