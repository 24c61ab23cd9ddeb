package refreshtoken

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tech-arch1tect/authkit/config"
	"github.com/tech-arch1tect/authkit/services/logging"
)

var (
	ErrTokenNotFound       = errors.New("refresh token not found")
	ErrTokenAlreadyRotated = errors.New("refresh token already rotated or revoked")
)

// TokenMinter abstracts the codec so this package does not depend on the jwt
// service directly. Implemented by jwt.Service.
type TokenMinter interface {
	MintRefreshToken(userID, email string) (raw string, jti string, expiresAt time.Time, err error)
}

// Service is the durable refresh-token registry with a redis liveness cache
// in front of it. The database is authoritative; the cache only exists to
// keep IsValid off the database on the hot path, and it self-heals after a
// miss so cache loss degrades performance, not correctness.
type Service struct {
	db     *gorm.DB
	client *redis.Client
	minter TokenMinter
	config *config.Config
	logger *logging.Service
}

func NewService(db *gorm.DB, client *redis.Client, minter TokenMinter, cfg *config.Config, logger *logging.Service) *Service {
	return &Service{
		db:     db,
		client: client,
		minter: minter,
		config: cfg,
		logger: logger,
	}
}

func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (s *Service) liveKey(jti string) string {
	return fmt.Sprintf("%s:refresh:live:%s", s.config.Revocation.KeyPrefix, jti)
}

// Issue mints a refresh token for the user and records its hash durably.
func (s *Service) Issue(ctx context.Context, userID, email string, meta SessionMeta) (*IssuedToken, error) {
	raw, jti, expiresAt, err := s.minter.MintRefreshToken(userID, email)
	if err != nil {
		return nil, fmt.Errorf("failed to mint refresh token: %w", err)
	}

	if err := s.Record(ctx, jti, userID, HashToken(raw), expiresAt, meta); err != nil {
		return nil, err
	}

	s.logger.Info("refresh token issued",
		zap.String("jti", jti),
		zap.String("user_id", userID),
		zap.Time("expires_at", expiresAt))

	return &IssuedToken{Raw: raw, JTI: jti, ExpiresAt: expiresAt}, nil
}

// Record durably registers an externally minted refresh token by its hash.
func (s *Service) Record(ctx context.Context, jti, userID, tokenHash string, expiresAt time.Time, meta SessionMeta) error {
	record := RefreshTokenRecord{
		ID:         jti,
		UserID:     userID,
		TokenHash:  tokenHash,
		ExpiresAt:  expiresAt,
		DeviceInfo: meta.DeviceInfo,
		IPAddress:  meta.IPAddress,
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}

	s.cacheSet(ctx, jti, expiresAt)
	return nil
}

// IsValid reports whether the token identified by jti is live: recorded,
// unrevoked, and unexpired. The cache answers first; a miss falls back to the
// database and repopulates the cache with the remaining lifetime.
func (s *Service) IsValid(ctx context.Context, jti string) bool {
	if s.client != nil {
		exists, err := s.client.Exists(ctx, s.liveKey(jti)).Result()
		if err != nil {
			s.logger.Warn("refresh liveness cache unavailable, falling back to database",
				zap.String("jti", jti),
				zap.Error(err))
		} else if exists > 0 {
			return true
		}
	}

	var record RefreshTokenRecord
	err := s.db.WithContext(ctx).Where("id = ?", jti).First(&record).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error("refresh token lookup failed",
				zap.String("jti", jti),
				zap.Error(err))
		}
		return false
	}

	if record.Revoked || !record.ExpiresAt.After(time.Now()) {
		return false
	}

	// self-heal: repair the cache from the durable source of truth
	s.cacheSet(ctx, jti, record.ExpiresAt)
	return true
}

// Revoke marks a single token revoked. Idempotent: revoking an unknown or
// already-revoked token is a no-op.
func (s *Service) Revoke(ctx context.Context, jti string) error {
	result := s.db.WithContext(ctx).
		Model(&RefreshTokenRecord{}).
		Where("id = ?", jti).
		Update("revoked", true)
	if result.Error != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", result.Error)
	}

	s.cacheDel(ctx, jti)

	s.logger.Info("refresh token revoked",
		zap.String("jti", jti),
		zap.Int64("affected_rows", result.RowsAffected))
	return nil
}

// RevokeAllForUser revokes every live token of one user in a single
// transaction; a partially revoked set never becomes visible.
func (s *Service) RevokeAllForUser(ctx context.Context, userID string) error {
	var jtis []string

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&RefreshTokenRecord{}).
			Where("user_id = ? AND revoked = ?", userID, false).
			Pluck("id", &jtis).Error
		if err != nil {
			return err
		}

		return tx.Model(&RefreshTokenRecord{}).
			Where("user_id = ? AND revoked = ?", userID, false).
			Update("revoked", true).Error
	})
	if err != nil {
		return fmt.Errorf("failed to revoke all refresh tokens for user: %w", err)
	}

	for _, jti := range jtis {
		s.cacheDel(ctx, jti)
	}

	s.logger.Info("all refresh tokens revoked for user",
		zap.String("user_id", userID),
		zap.Int("count", len(jtis)))
	return nil
}

// Rotate exchanges a refresh token: the old record is revoked and a new token
// is minted and recorded in the same transaction. The revoke is a
// compare-and-set on the unrevoked row, so when two requests race to rotate
// the same token exactly one wins; the loser gets ErrTokenAlreadyRotated.
// An old jti with no record at all is ErrTokenNotFound: a token this system
// never recorded cannot be trusted.
func (s *Service) Rotate(ctx context.Context, oldJTI, userID, email string) (*IssuedToken, error) {
	var issued *IssuedToken

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var old RefreshTokenRecord
		if err := tx.Where("id = ?", oldJTI).First(&old).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTokenNotFound
			}
			return fmt.Errorf("failed to load refresh token: %w", err)
		}

		result := tx.Model(&RefreshTokenRecord{}).
			Where("id = ? AND revoked = ?", oldJTI, false).
			Update("revoked", true)
		if result.Error != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrTokenAlreadyRotated
		}

		raw, jti, expiresAt, err := s.minter.MintRefreshToken(userID, email)
		if err != nil {
			return fmt.Errorf("failed to mint refresh token: %w", err)
		}

		record := RefreshTokenRecord{
			ID:         jti,
			UserID:     userID,
			TokenHash:  HashToken(raw),
			ExpiresAt:  expiresAt,
			DeviceInfo: old.DeviceInfo,
			IPAddress:  old.IPAddress,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("failed to store rotated refresh token: %w", err)
		}

		issued = &IssuedToken{Raw: raw, JTI: jti, ExpiresAt: expiresAt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cacheDel(ctx, oldJTI)
	s.cacheSet(ctx, issued.JTI, issued.ExpiresAt)

	s.logger.Info("refresh token rotated",
		zap.String("old_jti", oldJTI),
		zap.String("new_jti", issued.JTI),
		zap.String("user_id", userID))
	return issued, nil
}

// FindByHash looks a record up by the hash of a raw token, for audit
// tooling.
func (s *Service) FindByHash(ctx context.Context, hash string) (*RefreshTokenRecord, error) {
	var record RefreshTokenRecord
	err := s.db.WithContext(ctx).Where("token_hash = ?", hash).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &record, nil
}

func (s *Service) cacheSet(ctx context.Context, jti string, expiresAt time.Time) {
	if s.client == nil {
		return
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return
	}
	if err := s.client.Set(ctx, s.liveKey(jti), "1", ttl).Err(); err != nil {
		s.logger.Warn("failed to prime refresh liveness cache",
			zap.String("jti", jti),
			zap.Error(err))
	}
}

func (s *Service) cacheDel(ctx context.Context, jti string) {
	if s.client == nil {
		return
	}
	if err := s.client.Del(ctx, s.liveKey(jti)).Err(); err != nil {
		s.logger.Warn("failed to drop refresh liveness cache entry",
			zap.String("jti", jti),
			zap.Error(err))
	}
}

// CleanupExpired purges records expired longer ago than the retention
// window. Retention keeps recently expired rows around for replay audits.
func (s *Service) CleanupExpired(ctx context.Context) error {
	cutoff := time.Now().Add(-s.config.RefreshToken.RetentionAfterExp)

	result := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&RefreshTokenRecord{})
	if result.Error != nil {
		return fmt.Errorf("failed to cleanup expired refresh tokens: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.logger.Info("purged aged-out refresh tokens", zap.Int64("count", result.RowsAffected))
	}
	return nil
}

func (s *Service) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.CleanupExpired(ctx); err != nil {
					s.logger.Error("refresh token cleanup worker failed", zap.Error(err))
				}
			}
		}
	}()

	s.logger.Info("started refresh token cleanup worker", zap.Duration("interval", interval))
}
