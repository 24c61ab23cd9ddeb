package token

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tech-arch1tect/authkit/services/jwt"
	"github.com/tech-arch1tect/authkit/services/logging"
	"github.com/tech-arch1tect/authkit/services/refreshtoken"
	"github.com/tech-arch1tect/authkit/services/user"
)

// TokenPair is the result of a successful refresh exchange.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Service orchestrates the refresh flow: codec verification, registry
// liveness, user-state checks, rotation, and fresh access-token issuance.
// No step retries; any failure is terminal for the request.
type Service struct {
	codec    *jwt.Service
	registry *refreshtoken.Service
	users    *user.Store
	logger   *logging.Service
}

func NewService(codec *jwt.Service, registry *refreshtoken.Service, users *user.Store, logger *logging.Service) *Service {
	return &Service{
		codec:    codec,
		registry: registry,
		users:    users,
		logger:   logger,
	}
}

// RefreshAccessToken exchanges a raw refresh token for a new access/refresh
// pair. The old refresh token is single-use: after one successful exchange it
// is revoked and any replay fails. The new access token carries the user's
// current roles, read fresh from storage, so role changes take effect on the
// next refresh without a full re-login.
func (s *Service) RefreshAccessToken(ctx context.Context, rawRefreshToken string) (*TokenPair, error) {
	validation := s.codec.Verify(rawRefreshToken, jwt.KindRefresh)
	if !validation.Valid {
		s.logger.Warn("refresh rejected by codec", zap.String("code", string(validation.Code)))
		return nil, invalidToken(validation.Code, "")
	}

	if !s.registry.IsValid(ctx, validation.JTI) {
		s.logger.Warn("refresh rejected by registry",
			zap.String("jti", validation.JTI))
		return nil, invalidToken(jwt.CodeInvalidSignature, "revoked or unknown")
	}

	if validation.Email == "" {
		return nil, invalidToken(jwt.CodeMissingClaims, "")
	}

	account, err := s.users.FindByEmail(ctx, validation.Email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, invalidToken(jwt.CodeMissingClaims, "user not found")
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if account.Suspended() {
		return nil, user.ErrAccountSuspended
	}
	if !account.EmailVerified {
		return nil, user.ErrEmailNotVerified
	}

	rotated, err := s.registry.Rotate(ctx, validation.JTI, account.ID, account.Email)
	if err != nil {
		if errors.Is(err, refreshtoken.ErrTokenNotFound) || errors.Is(err, refreshtoken.ErrTokenAlreadyRotated) {
			return nil, invalidToken(jwt.CodeInvalidSignature, "revoked or unknown")
		}
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	roles, err := s.users.RolesFor(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}

	accessToken, _, err := s.codec.Issue(jwt.KindAccess, account.ID, account.Email, roles)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}

	s.logger.Info("access token refreshed",
		zap.String("user_id", account.ID),
		zap.String("new_jti", rotated.JTI))

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: rotated.Raw,
		TokenType:    "Bearer",
		ExpiresIn:    s.codec.AccessExpirySeconds(),
	}, nil
}
