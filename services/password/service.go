package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/tech-arch1tect/authkit/config"
	"github.com/tech-arch1tect/authkit/services/logging"
)

var (
	ErrHashingFailed   = errors.New("failed to hash password")
	ErrMismatch        = errors.New("password does not match")
	ErrPolicyViolation = errors.New("invalid password")
)

// Hasher is the pluggable one-way hash-and-verify dependency of the auth
// flows. Service is the bcrypt implementation.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Matches(plaintext, hash string) bool
}

type Service struct {
	config *config.AuthConfig
	logger *logging.Service
}

func NewService(cfg *config.AuthConfig, logger *logging.Service) *Service {
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{config: cfg, logger: logger}
}

func (s *Service) ValidatePolicy(password string) error {
	if len(password) < s.config.MinLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrPolicyViolation, s.config.MinLength)
	}

	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	var missing []string
	if s.config.RequireUpper && !hasUpper {
		missing = append(missing, "one uppercase letter")
	}
	if s.config.RequireLower && !hasLower {
		missing = append(missing, "one lowercase letter")
	}
	if s.config.RequireNumber && !hasNumber {
		missing = append(missing, "one number")
	}
	if s.config.RequireSpecial && !hasSpecial {
		missing = append(missing, "one special character")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: password must contain at least %s", ErrPolicyViolation, strings.Join(missing, ", "))
	}
	return nil
}

func (s *Service) Hash(plaintext string) (string, error) {
	if err := s.ValidatePolicy(plaintext); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.config.BcryptCost)
	if err != nil {
		s.logger.Error("password hashing failed", zap.Error(err))
		return "", ErrHashingFailed
	}
	return string(hash), nil
}

func (s *Service) Matches(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
