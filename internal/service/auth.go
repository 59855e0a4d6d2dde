// Package service contains application services for the handshake broker,
// notes and the capture inbox.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/fleetsapp/fleets/internal/crypto"
	"github.com/fleetsapp/fleets/internal/errs"
	"github.com/fleetsapp/fleets/internal/limiter"
	"github.com/fleetsapp/fleets/internal/model"
	"github.com/fleetsapp/fleets/internal/repository"
)

const (
	minSessionIDLen = 16
	maxSessionIDLen = 128
	refreshTTL      = 30 * 24 * time.Hour
)

// BotIdentity is the messaging-platform identity carried by an inbound update.
type BotIdentity struct {
	TelegramID int64
	FirstName  string
	Username   string
}

// AuthService is the handshake broker: it turns a `/start <session_id>`
// command into a fulfilled one-shot session, and delivers the credentials
// exactly once to the polling device.
type AuthService interface {
	// Fulfill provisions (or resolves) the account behind the bot identity,
	// mints a credential pair and deposits it under the session id. Nothing is
	// written on any failure.
	Fulfill(ctx context.Context, from BotIdentity, sessionID, ip string) (model.UserInfo, error)

	// Claim returns the deposited credentials and burns the record.
	// errs.ErrSessionPending means no record exists (yet, or anymore).
	Claim(ctx context.Context, sessionID string) (model.Tokens, error)
}

type AuthServiceImpl struct {
	users     repository.UserRepository
	sessions  repository.SessionRepository
	signKey   []byte
	botSecret []byte
	accessTTL time.Duration
	lim       limiter.Limiter
}

// NewAuthService constructs AuthService with required dependencies.
// botSecret is the messaging-bot token; it keys password derivation for
// provisioned accounts.
func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	signKey, botSecret []byte,
	accessTTL time.Duration,
	lim limiter.Limiter,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		users:     users,
		sessions:  sessions,
		signKey:   signKey,
		botSecret: botSecret,
		accessTTL: accessTTL,
		lim:       lim,
	}
}

// Fulfill validates the request, resolves or provisions the account, mints
// tokens and upserts the one-shot session record. The session write is the
// last step, so a failure never leaves a partial record behind.
func (s *AuthServiceImpl) Fulfill(ctx context.Context, from BotIdentity, sessionID, ip string) (model.UserInfo, error) {
	if from.TelegramID == 0 {
		return model.UserInfo{}, errors.New("validation: empty platform id")
	}
	if len(sessionID) < minSessionIDLen || len(sessionID) > maxSessionIDLen {
		return model.UserInfo{}, fmt.Errorf("validation: bad session id length %d", len(sessionID))
	}

	subject := strconv.FormatInt(from.TelegramID, 10)
	ipHash := limiter.HashIP(ip)
	allowed, _, err := s.lim.Allow(ctx, subject, ipHash)
	if err != nil {
		return model.UserInfo{}, err
	}
	if !allowed {
		return model.UserInfo{}, errs.ErrRateLimited
	}

	u, err := s.resolveUser(ctx, from)
	if err != nil {
		if blocked, _, ferr := s.lim.Failure(ctx, subject, ipHash); ferr == nil && blocked {
			return model.UserInfo{}, errs.ErrRateLimited
		}
		return model.UserInfo{}, err
	}

	tokens, err := s.mint(u)
	if err != nil {
		return model.UserInfo{}, fmt.Errorf("mint: %w", err)
	}

	if err := s.sessions.Upsert(ctx, model.AuthSession{ID: sessionID, Tokens: tokens}); err != nil {
		return model.UserInfo{}, fmt.Errorf("deposit session: %w", err)
	}

	_ = s.lim.Success(ctx, subject, ipHash)
	return tokens.User, nil
}

// Claim delivers credentials at most once; repeated claims observe absence.
func (s *AuthServiceImpl) Claim(ctx context.Context, sessionID string) (model.Tokens, error) {
	if sessionID == "" {
		return model.Tokens{}, errs.ErrSessionPending
	}
	return s.sessions.Claim(ctx, sessionID)
}

// resolveUser maps the platform identity 1:1 to an application user,
// provisioning one on first contact. The account carries a deterministic
// synthetic email and a derived password the end user never sees.
func (s *AuthServiceImpl) resolveUser(ctx context.Context, from BotIdentity) (*model.User, error) {
	derived := []byte(pkgcrypto.DerivePassword(s.botSecret, from.TelegramID))

	u, err := s.users.GetByTelegramID(ctx, from.TelegramID)
	switch {
	case err == nil:
		if !pkgcrypto.VerifyPassword(derived, u.SaltAuth, u.PwdHash) {
			// derivation secret rotated; existing account no longer reachable
			return nil, errs.ErrUnauthorized
		}
		return u, nil
	case errors.Is(err, errs.ErrNotFound):
	default:
		return nil, err
	}

	uid, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	salt, err := pkgcrypto.RandBytes(16)
	if err != nil {
		return nil, err
	}
	u = &model.User{
		ID:         uid,
		Email:      fmt.Sprintf("%d@tg.fleets.local", from.TelegramID),
		PwdHash:    pkgcrypto.HashPassword(derived, salt),
		SaltAuth:   salt,
		TelegramID: from.TelegramID,
		FirstName:  from.FirstName,
		Username:   from.Username,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			// lost a provisioning race with a concurrent update
			return s.users.GetByTelegramID(ctx, from.TelegramID)
		}
		return nil, err
	}
	return u, nil
}

// mint issues the credential pair delivered through the one-shot session.
func (s *AuthServiceImpl) mint(u *model.User) (model.Tokens, error) {
	access, exp, err := s.issueToken(u.ID, s.accessTTL)
	if err != nil {
		return model.Tokens{}, err
	}
	refresh, _, err := s.issueToken(u.ID, refreshTTL)
	if err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    exp,
		User: model.UserInfo{
			ID:        u.ID,
			Email:     u.Email,
			FirstName: u.FirstName,
			Username:  u.Username,
		},
	}, nil
}

// issueToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueToken(userID uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}
