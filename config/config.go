package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App          AppConfig          `envPrefix:"APP_"`
	Server       ServerConfig       `envPrefix:"SERVER_"`
	Log          LogConfig          `envPrefix:"LOG_"`
	Database     DatabaseConfig     `envPrefix:"DATABASE_"`
	Redis        RedisConfig        `envPrefix:"REDIS_"`
	Auth         AuthConfig         `envPrefix:"AUTH_"`
	JWT          JWTConfig          `envPrefix:"JWT_"`
	RefreshToken RefreshTokenConfig `envPrefix:"REFRESH_TOKEN_"`
	Revocation   RevocationConfig   `envPrefix:"REVOCATION_"`
	Mail         MailConfig         `envPrefix:"MAIL_"`
}

type AppConfig struct {
	Name string `env:"NAME" envDefault:"authkit"`
	URL  string `env:"URL" envDefault:"http://localhost:8080"`
}

type ServerConfig struct {
	Host string `env:"HOST" envDefault:"localhost"`
	Port string `env:"PORT" envDefault:"8080"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"authkit.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB" envDefault:"0"`
}

type AuthConfig struct {
	MinLength       int    `env:"MIN_LENGTH" envDefault:"8"`
	RequireUpper    bool   `env:"REQUIRE_UPPER" envDefault:"true"`
	RequireLower    bool   `env:"REQUIRE_LOWER" envDefault:"true"`
	RequireNumber   bool   `env:"REQUIRE_NUMBER" envDefault:"true"`
	RequireSpecial  bool   `env:"REQUIRE_SPECIAL" envDefault:"false"`
	BcryptCost      int    `env:"BCRYPT_COST" envDefault:"10"`
	DefaultRoleName string `env:"DEFAULT_ROLE" envDefault:"customer"`

	EmailVerificationEnabled     bool          `env:"EMAIL_VERIFICATION_ENABLED" envDefault:"false"`
	EmailVerificationTokenLength int           `env:"EMAIL_VERIFICATION_TOKEN_LENGTH" envDefault:"32"`
	EmailVerificationExpiry      time.Duration `env:"EMAIL_VERIFICATION_EXPIRY" envDefault:"24h"`
}

type JWTConfig struct {
	AccessSecret  string        `env:"ACCESS_SECRET"`
	RefreshSecret string        `env:"REFRESH_SECRET"`
	AccessExpiry  time.Duration `env:"ACCESS_EXPIRY" envDefault:"15m"`
	RefreshExpiry time.Duration `env:"REFRESH_EXPIRY" envDefault:"168h"`
	Issuer        string        `env:"ISSUER" envDefault:"authkit"`
	Algorithm     string        `env:"ALGORITHM" envDefault:"HS256"`
}

type RefreshTokenConfig struct {
	CleanupInterval   time.Duration `env:"CLEANUP_INTERVAL" envDefault:"0"`
	RetentionAfterExp time.Duration `env:"RETENTION_AFTER_EXPIRY" envDefault:"720h"`
}

type RevocationConfig struct {
	KeyPrefix     string        `env:"KEY_PREFIX" envDefault:"authkit"`
	CleanupPeriod time.Duration `env:"CLEANUP_PERIOD" envDefault:"1h"`
}

type MailConfig struct {
	Enabled     bool   `env:"ENABLED" envDefault:"false"`
	Host        string `env:"HOST" envDefault:"localhost"`
	Port        int    `env:"PORT" envDefault:"587"`
	Username    string `env:"USERNAME" envDefault:""`
	Password    string `env:"PASSWORD" envDefault:""`
	Encryption  string `env:"ENCRYPTION" envDefault:"starttls"`
	FromAddress string `env:"FROM_ADDRESS" envDefault:""`
	FromName    string `env:"FROM_NAME" envDefault:"authkit"`
}

const (
	// Expiries below these are almost always a misconfigured unit
	// (seconds vs minutes), so they are rejected outright.
	MinAccessExpiry  = time.Minute
	MinRefreshExpiry = time.Hour
)

func LoadConfig(cfg *Config) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return err
	}

	return cfg.Validate()
}

func (c *Config) Validate() error {
	if err := ValidateJWTConfig(&c.JWT); err != nil {
		return err
	}

	if c.JWT.AccessExpiry < MinAccessExpiry {
		return fmt.Errorf("JWT access expiry must be at least %s, got %s", MinAccessExpiry, c.JWT.AccessExpiry)
	}
	if c.JWT.RefreshExpiry < MinRefreshExpiry {
		return fmt.Errorf("JWT refresh expiry must be at least %s, got %s", MinRefreshExpiry, c.JWT.RefreshExpiry)
	}
	if c.JWT.RefreshExpiry <= c.JWT.AccessExpiry {
		return fmt.Errorf("JWT refresh expiry (%s) must exceed access expiry (%s)", c.JWT.RefreshExpiry, c.JWT.AccessExpiry)
	}

	return nil
}

var weakSecretPatterns = []string{"password", "secret", "test", "example", "default", "changeme"}

func ValidateJWTConfig(cfg *JWTConfig) error {
	for _, kind := range []struct {
		name   string
		secret string
	}{
		{"access", cfg.AccessSecret},
		{"refresh", cfg.RefreshSecret},
	} {
		if strings.TrimSpace(kind.secret) == "" {
			return fmt.Errorf("JWT %s secret key is required", kind.name)
		}
		if len(kind.secret) < 32 {
			return fmt.Errorf("JWT %s secret key must be at least 32 characters long", kind.name)
		}
		lower := strings.ToLower(kind.secret)
		for _, pattern := range weakSecretPatterns {
			if strings.Contains(lower, pattern) {
				return fmt.Errorf("JWT %s secret key contains weak patterns", kind.name)
			}
		}
	}

	if cfg.Algorithm != "HS256" {
		return fmt.Errorf("unsupported JWT algorithm: %s (supported: HS256)", cfg.Algorithm)
	}

	return nil
}
