package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tech-arch1tect/authkit/config"
	"github.com/tech-arch1tect/authkit/services/logging"
)

// Kind distinguishes the two token families. They are signed with separate
// keys and must never be accepted in each other's place.
type Kind string

const (
	KindAccess  Kind = "ACCESS"
	KindRefresh Kind = "REFRESH"
)

// Code classifies an expected validation failure. Codes are diagnostic: the
// boundary surfaces them all as an authentication failure.
type Code string

const (
	CodeExpired          Code = "EXPIRED"
	CodeMalformed        Code = "MALFORMED"
	CodeInvalidSignature Code = "INVALID_SIGNATURE"
	CodeWrongTokenType   Code = "WRONG_TOKEN_TYPE"
	CodeMissingClaims    Code = "MISSING_CLAIMS"
)

var ErrSigningFailed = errors.New("failed to sign token")

type Claims struct {
	Email     string   `json:"email,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	TokenType string   `json:"token_type"`
	jwt.RegisteredClaims
}

// Validation is the outcome of Verify. Expected failure modes are reported
// through Valid/Code, never as errors: an invalid token is a normal input,
// not a programmer mistake.
type Validation struct {
	Valid     bool
	Code      Code
	JTI       string
	UserID    string
	Email     string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type Service struct {
	config *config.JWTConfig
	logger *logging.Service
}

func NewService(cfg *config.JWTConfig, logger *logging.Service) *Service {
	return &Service{config: cfg, logger: logger}
}

func (s *Service) AccessExpiry() time.Duration  { return s.config.AccessExpiry }
func (s *Service) RefreshExpiry() time.Duration { return s.config.RefreshExpiry }

func (s *Service) AccessExpirySeconds() int64 {
	return int64(s.config.AccessExpiry.Seconds())
}

func (s *Service) secretFor(kind Kind) []byte {
	if kind == KindRefresh {
		return []byte(s.config.RefreshSecret)
	}
	return []byte(s.config.AccessSecret)
}

func (s *Service) expiryFor(kind Kind) time.Duration {
	if kind == KindRefresh {
		return s.config.RefreshExpiry
	}
	return s.config.AccessExpiry
}

// Issue signs a token of the given kind and returns it with its generated jti.
// Roles are only embedded in access tokens.
func (s *Service) Issue(kind Kind, userID, email string, roles []string) (string, string, error) {
	return s.IssueWithJTI(kind, userID, email, roles, uuid.New().String())
}

func (s *Service) IssueWithJTI(kind Kind, userID, email string, roles []string, jti string) (string, string, error) {
	now := time.Now()

	if kind != KindAccess {
		roles = nil
	}

	claims := Claims{
		Email:     email,
		Roles:     roles,
		TokenType: string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.config.Issuer,
			Subject:   userID,
			Audience:  []string{s.config.Issuer},
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiryFor(kind))),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretFor(kind))
	if err != nil {
		s.logger.Error("failed to sign token",
			zap.String("kind", string(kind)),
			zap.Error(err))
		return "", "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	return signed, jti, nil
}

// MintRefreshToken issues a refresh token and reports its expiry, satisfying
// the registry's TokenMinter dependency.
func (s *Service) MintRefreshToken(userID, email string) (string, string, time.Time, error) {
	now := time.Now()
	raw, jti, err := s.Issue(KindRefresh, userID, email, nil)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return raw, jti, now.Add(s.config.RefreshExpiry), nil
}

// Verify parses and checks a token against the expected kind. The signing key
// is selected by the token's own type claim so a refresh token presented
// where an access token is required fails with WRONG_TOKEN_TYPE rather than a
// generic signature error; the signature is still verified against the key of
// the kind the token claims to be, so claim tampering cannot redirect
// verification to a weaker key.
func (s *Service) Verify(tokenString string, expected Kind) *Validation {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() == "none" {
			return nil, errors.New("'none' algorithm is not allowed")
		}
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok || token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected algorithm: expected HS256, got %s", token.Method.Alg())
		}

		claims, ok := token.Claims.(*Claims)
		if !ok {
			return s.secretFor(expected), nil
		}

		switch Kind(claims.TokenType) {
		case KindAccess, KindRefresh:
			return s.secretFor(Kind(claims.TokenType)), nil
		default:
			return s.secretFor(expected), nil
		}
	})

	if err != nil {
		s.logger.Warn("token validation failed",
			zap.String("expected_kind", string(expected)),
			zap.Error(err))

		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return invalid(CodeExpired)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return invalid(CodeMalformed)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return invalid(CodeInvalidSignature)
		default:
			return invalid(CodeMalformed)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return invalid(CodeMalformed)
	}

	if Kind(claims.TokenType) != expected {
		s.logger.Warn("token kind mismatch",
			zap.String("expected_kind", string(expected)),
			zap.String("actual_kind", claims.TokenType))
		return invalid(CodeWrongTokenType)
	}

	if claims.Subject == "" || claims.Email == "" {
		return invalid(CodeMissingClaims)
	}

	result := &Validation{
		Valid:  true,
		JTI:    claims.ID,
		UserID: claims.Subject,
		Email:  claims.Email,
		Roles:  claims.Roles,
	}
	if claims.IssuedAt != nil {
		result.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		result.ExpiresAt = claims.ExpiresAt.Time
	}
	return result
}

func invalid(code Code) *Validation {
	return &Validation{Valid: false, Code: code}
}
