package testutils

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/tech-arch1tect/authkit/config"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name: "authkit test",
			URL:  "http://localhost:8080",
		},
		Auth: config.AuthConfig{
			MinLength:                    8,
			RequireUpper:                 true,
			RequireLower:                 true,
			RequireNumber:                true,
			RequireSpecial:               false,
			BcryptCost:                   bcrypt.MinCost,
			DefaultRoleName:              "customer",
			EmailVerificationEnabled:     false,
			EmailVerificationTokenLength: 32,
			EmailVerificationExpiry:      24 * time.Hour,
		},
		JWT: config.JWTConfig{
			AccessSecret:  "access-signing-key-0123456789abcdef",
			RefreshSecret: "refresh-signing-key-0123456789abcdef",
			AccessExpiry:  15 * time.Minute,
			RefreshExpiry: 168 * time.Hour,
			Issuer:        "authkit-tests",
			Algorithm:     "HS256",
		},
		RefreshToken: config.RefreshTokenConfig{
			RetentionAfterExp: 720 * time.Hour,
		},
		Revocation: config.RevocationConfig{
			KeyPrefix:     "authkit",
			CleanupPeriod: time.Hour,
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    ":memory:",
		},
	}
}

var TestPasswords = struct {
	Valid    string
	TooShort string
	NoUpper  string
	NoNumber string
}{
	Valid:    "Secure1Password",
	TooShort: "Ab1",
	NoUpper:  "secure1password",
	NoNumber: "SecurePassword",
}
