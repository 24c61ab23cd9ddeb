package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tech-arch1tect/authkit/services/refreshtoken"
)

type EmailVerificationToken struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	Email     string     `json:"email" gorm:"index;not null;size:255"`
	TokenHash string     `json:"-" gorm:"uniqueIndex;not null;size:64"`
	ExpiresAt time.Time  `json:"expires_at" gorm:"not null"`
	Used      bool       `json:"used" gorm:"default:false"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (EmailVerificationToken) TableName() string {
	return "email_verification_tokens"
}

// SendVerificationEmail creates a single-use verification token for the
// address and mails the confirmation link when a mailer is configured. The
// raw token is returned so callers without a mailer (tests, CLIs) can still
// complete the flow.
func (s *Service) SendVerificationEmail(ctx context.Context, email string) (string, error) {
	account, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if account.EmailVerified {
		return "", ErrEmailAlreadyVerified
	}

	raw, err := generateVerificationToken(s.config.Auth.EmailVerificationTokenLength)
	if err != nil {
		return "", err
	}

	// only the digest is persisted, same treatment as refresh tokens
	record := &EmailVerificationToken{
		Email:     account.Email,
		TokenHash: refreshtoken.HashToken(raw),
		ExpiresAt: time.Now().Add(s.config.Auth.EmailVerificationExpiry),
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return "", fmt.Errorf("failed to store verification token: %w", err)
	}

	if s.mailer != nil {
		link := fmt.Sprintf("%s/auth/verify-email?token=%s", s.config.App.URL, raw)
		body := fmt.Sprintf("Welcome to %s!\n\nPlease confirm your email address by visiting:\n\n%s\n\nThis link expires in %s.",
			s.config.App.Name, link, s.config.Auth.EmailVerificationExpiry)
		if err := s.mailer.Send(account.Email, "Confirm your email address", body); err != nil {
			return "", fmt.Errorf("failed to send verification email: %w", err)
		}
	}

	s.logger.Info("verification email issued", zap.String("email", account.Email))
	return raw, nil
}

// VerifyEmail consumes a verification token and marks the account verified.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) error {
	var record EmailVerificationToken
	err := s.db.WithContext(ctx).Where("token_hash = ?", refreshtoken.HashToken(rawToken)).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrVerificationTokenInvalid
		}
		return fmt.Errorf("failed to load verification token: %w", err)
	}

	if record.Used {
		return ErrVerificationTokenUsed
	}
	if time.Now().After(record.ExpiresAt) {
		return ErrVerificationTokenExpired
	}

	account, err := s.users.FindByEmail(ctx, record.Email)
	if err != nil {
		return err
	}

	account.EmailVerified = true
	if err := s.users.Save(ctx, account); err != nil {
		return err
	}

	now := time.Now()
	record.Used = true
	record.UsedAt = &now
	if err := s.db.WithContext(ctx).Save(&record).Error; err != nil {
		return fmt.Errorf("failed to mark verification token used: %w", err)
	}

	s.logger.Info("email verified", zap.String("email", record.Email))
	return nil
}

func generateVerificationToken(length int) (string, error) {
	if length <= 0 {
		length = 32
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secure token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
