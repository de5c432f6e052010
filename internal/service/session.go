package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/confhub/confhub/internal/model"
	"github.com/confhub/confhub/internal/queue"
	"github.com/confhub/confhub/internal/repository"
	"github.com/confhub/confhub/internal/utils"
)

// ErrInvalidRefresh is returned by Rotate for every externally
// indistinguishable failure: unknown token, expired token, revoked
// token (including detected reuse). Handlers map it to a single 401 so
// the response never advertises which case was hit.
var ErrInvalidRefresh = errors.New("invalid refresh token")

// AuditFunc receives security-relevant events. Wired to
// PublishAuthEvent in production; nil disables auditing.
type AuditFunc func(ctx context.Context, ev queue.AuthEvent)

// SessionService implements refresh-token issuance, rotation-on-use and
// revocation. All session truth lives in the credential store; the
// service holds no mutable state of its own.
type SessionService struct {
	Users          *repository.UserRepo
	Tokens         *repository.TokenRepo
	RefreshTTLDays int
	Audit          AuditFunc
}

func NewSessionService(users *repository.UserRepo, tokens *repository.TokenRepo, refreshTTLDays int, audit AuditFunc) *SessionService {
	return &SessionService{Users: users, Tokens: tokens, RefreshTTLDays: refreshTTLDays, Audit: audit}
}

// RotateResult carries the outcome of a successful rotation: the owner
// identity with a fresh role snapshot and the successor token for
// cookie delivery.
type RotateResult struct {
	User       model.User
	NewRefresh utils.RefreshToken
}

// Issue generates a refresh token for a user and persists its hash.
// The raw value is returned once, for cookie delivery.
func (s *SessionService) Issue(ctx context.Context, userID uint64) (utils.RefreshToken, error) {
	ref, err := utils.NewRefreshToken(s.RefreshTTLDays)
	if err != nil {
		return utils.RefreshToken{}, err
	}
	if err := s.Tokens.StoreRefresh(ctx, userID, utils.HashRefreshRaw(ref.Raw), ref.Exp); err != nil {
		return utils.RefreshToken{}, err
	}
	return ref, nil
}

// Rotate validates a presented refresh token and, in a single atomic
// step, revokes it and issues its successor. The owner's roles are
// re-read from the user row rather than taken from any cached snapshot,
// so role changes take effect without a full re-login.
//
// A presented token that matches a revoked row is treated as reuse of
// an already-rotated token: every active token of that user is revoked
// and an audit event is emitted, but the caller still only sees
// ErrInvalidRefresh.
func (s *SessionService) Rotate(ctx context.Context, presented string) (RotateResult, error) {
	hash := utils.HashRefreshRaw(presented)

	rec, err := s.Tokens.LookupRefresh(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return RotateResult{}, ErrInvalidRefresh
		}
		return RotateResult{}, err
	}
	if rec.Revoked {
		// Replay of a rotated-out token: the strongest signal of token
		// theft available here. Kill every session for the user.
		if err := s.Tokens.RevokeAllForUser(ctx, rec.UserID); err != nil {
			log.Printf("session: revoke-all after reuse failed for user %d: %v", rec.UserID, err)
		}
		s.audit(ctx, queue.AuthEvent{
			Type:   queue.EventTokenReuse,
			UserID: rec.UserID,
			Detail: "revoked refresh token presented; all sessions revoked",
		})
		return RotateResult{}, ErrInvalidRefresh
	}
	if time.Now().UTC().After(rec.ExpiresAt) {
		return RotateResult{}, ErrInvalidRefresh
	}

	newRef, err := utils.NewRefreshToken(s.RefreshTTLDays)
	if err != nil {
		return RotateResult{}, err
	}
	err = s.Tokens.Rotate(ctx, hash, utils.HashRefreshRaw(newRef.Raw), rec.UserID, newRef.Exp)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyRotated) {
			// Lost a concurrent double-rotate; exactly one winner exists.
			return RotateResult{}, ErrInvalidRefresh
		}
		return RotateResult{}, err
	}

	u, err := s.Users.GetByID(ctx, rec.UserID)
	if err != nil {
		return RotateResult{}, err
	}
	return RotateResult{User: u, NewRefresh: newRef}, nil
}

// Revoke marks the presented token revoked (logout). Idempotent:
// revoking an unknown or already-revoked token succeeds.
func (s *SessionService) Revoke(ctx context.Context, presented string) error {
	return s.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(presented))
}

func (s *SessionService) audit(ctx context.Context, ev queue.AuthEvent) {
	if s.Audit != nil {
		s.Audit(ctx, ev)
	}
}
