// Package invite issues and redeems the signed one-time tokens that
// promote a pending player or member to active on first message in the
// target chat (§4.8, C8). Token signing is grounded on
// orris-inc-orris's internal/infrastructure/auth/jwt.go: HS256,
// jwt.RegisteredClaims for exp/iat/nbf, a service struct holding only
// the signing secret. KICKAI's token is simpler than orris's access/
// refresh pair — one single-use claim, no rotation — since redemption
// consumes the token exactly once via storage.RedeemInvite's atomic
// transaction.
package invite

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kickai/kickai/internal/apperr"
	"github.com/kickai/kickai/internal/entity"
	ktel "github.com/kickai/kickai/internal/otel"
	"github.com/kickai/kickai/internal/storage"
)

// Claims is the payload of an invite token. InviteID is the only field
// storage.RedeemInvite needs — TeamID/Subject/SubjectID travel along
// only so a redemption attempt can be rejected early (wrong team, e.g. a
// forwarded link opened in the wrong bot) without a round trip to
// storage.
type Claims struct {
	InviteID  string             `json:"invite_id"`
	TeamID    string             `json:"team_id"`
	Subject   entity.SubjectKind `json:"subject"`
	SubjectID string             `json:"subject_id"`
	jwt.RegisteredClaims
}

// Service issues and redeems invite tokens against one team's store.
type Service struct {
	store   *storage.Store
	secret  []byte
	ttl     time.Duration
	metrics *ktel.Metrics
	baseURL string
}

// NewService builds an invite Service. secret must be stable across
// restarts (it is config.Config.InviteSecretKey) — rotating it
// invalidates every outstanding invite.
func NewService(store *storage.Store, secret string, ttl time.Duration) *Service {
	return &Service{store: store, secret: []byte(secret), ttl: ttl, baseURL: "https://t.me"}
}

// SetMetrics attaches optional OpenTelemetry counters; nil-safe to omit.
func (s *Service) SetMetrics(metrics *ktel.Metrics) {
	s.metrics = metrics
}

// SetBaseURL overrides the redemption link's base (config.Config.InviteBaseURL).
// Nil-safe to omit — an unset Service falls back to a bare "https://t.me".
func (s *Service) SetBaseURL(baseURL string) {
	if baseURL != "" {
		s.baseURL = baseURL
	}
}

// URL builds the redemption link for a token this Service issued, using
// its configured base (see RedemptionURL).
func (s *Service) URL(token string, subject entity.SubjectKind, chatID int64, teamID string) string {
	return RedemptionURL(s.baseURL, token, subject, chatID, teamID)
}

// Issue creates a pending invite row and returns its signed token.
// issuerID is the member_id of the leader who ran the issuing command.
func (s *Service) Issue(ctx context.Context, teamID string, chatKind entity.ChatKind, subject entity.SubjectKind, subjectID, issuerID string, now time.Time) (string, error) {
	inviteID := uuid.NewString()
	inv := entity.Invite{
		InviteID:  inviteID,
		TeamID:    teamID,
		ChatKind:  chatKind,
		Subject:   subject,
		SubjectID: subjectID,
		IssuerID:  issuerID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.CreateInvite(ctx, inv); err != nil {
		return "", err
	}

	claims := Claims{
		InviteID:  inviteID,
		TeamID:    teamID,
		Subject:   subject,
		SubjectID: subjectID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(inv.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign invite token: %w", err)
	}
	return signed, nil
}

// Redeem verifies tokenString and atomically activates the subject it
// names. A tampered, expired-by-JWT, or malformed token is rejected
// before storage is ever touched; an expired-by-TTL or already-used
// token is rejected by storage.RedeemInvite's own check (§3's
// single-use invariant), since a JWT's own exp claim and KICKAI's
// ExpiresAt column are set from the same value but checked
// independently as defense in depth.
func (s *Service) Redeem(ctx context.Context, tokenString string, redeemerTelegramID int64, now time.Time) (entity.Invite, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return entity.Invite{}, apperr.Wrap(apperr.InvalidInput, "invite link is invalid or has expired", err)
	}

	inv, err := s.store.RedeemInvite(ctx, claims.InviteID, redeemerTelegramID, now)
	if err == nil && s.metrics != nil {
		s.metrics.InviteRedemptions.Add(ctx, 1)
	}
	return inv, err
}

// RedemptionURL builds the opaque redemption link a bot sends for a
// freshly issued token (§4.8): base, then the signed token as the
// `invite` param (kept opaque/tamper-resistant — see the Service.Issue
// doc comment) alongside the `type`/`chat`/`team` params the spec names
// literally, so a human or client can tell at a glance what the link
// activates without decoding the token.
func RedemptionURL(base, token string, subject entity.SubjectKind, chatID int64, teamID string) string {
	return fmt.Sprintf("%s?invite=%s&type=%s&chat=%d&team=%s",
		base, url.QueryEscape(token), subject, chatID, url.QueryEscape(teamID))
}

// ParseRedemptionPayload extracts the signed token from a redemption
// payload. Accepts both the full multi-param query string RedemptionURL
// produces (as arrives verbatim in a Telegram `/start <payload>` deep
// link, since Telegram start payloads cannot contain spaces) and a bare
// token pasted directly after `/register`, for callers who skip the
// `type`/`chat`/`team` params entirely.
func ParseRedemptionPayload(payload string) string {
	if values, err := url.ParseQuery(payload); err == nil {
		if tok := values.Get("invite"); tok != "" {
			return tok
		}
	}
	return payload
}
