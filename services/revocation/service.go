package revocation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tech-arch1tect/authkit/config"
	"github.com/tech-arch1tect/authkit/services/logging"
)

// Service tracks revoked tokens across two tiers: a redis cache answering the
// hot-path blacklist check, and a durable mirror for token-level entries so a
// cache flush cannot resurrect a hard-revoked token.
//
// The cache tier fails open: when redis is unreachable or a marker is
// corrupted, IsBlacklisted answers false and logs. The refresh-token registry
// remains the durable authority for the operations that matter.
type Service struct {
	client *redis.Client
	db     *gorm.DB
	config *config.Config
	logger *logging.Service
}

func NewService(client *redis.Client, db *gorm.DB, cfg *config.Config, logger *logging.Service) *Service {
	return &Service{
		client: client,
		db:     db,
		config: cfg,
		logger: logger,
	}
}

func (s *Service) tokenKey(jti string) string {
	return fmt.Sprintf("%s:revoked:token:%s", s.config.Revocation.KeyPrefix, jti)
}

func (s *Service) userKey(userID string) string {
	return fmt.Sprintf("%s:revoked:user:%s", s.config.Revocation.KeyPrefix, userID)
}

// BlacklistToken marks a single token as revoked until it would have expired
// anyway. An already-expired token is a no-op: there is nothing left to
// block.
func (s *Service) BlacklistToken(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		s.logger.Debug("skipping blacklist of already-expired token", zap.String("jti", jti))
		return nil
	}

	if err := s.client.Set(ctx, s.tokenKey(jti), "1", ttl).Err(); err != nil {
		s.logger.Error("failed to blacklist token in cache",
			zap.String("jti", jti),
			zap.Error(err))
		return fmt.Errorf("failed to blacklist token: %w", err)
	}

	s.mirrorToken(ctx, jti, userID, expiresAt)

	s.logger.Info("token blacklisted",
		zap.String("jti", jti),
		zap.Time("expires_at", expiresAt))
	return nil
}

func (s *Service) mirrorToken(ctx context.Context, jti, userID string, expiresAt time.Time) {
	if s.db == nil {
		return
	}

	entry := RevokedToken{JTI: jti, UserID: userID, ExpiresAt: expiresAt}
	err := s.db.WithContext(ctx).Where("jti = ?", jti).FirstOrCreate(&entry).Error
	if err != nil {
		// mirror is best-effort; the cache entry already blocks the token
		s.logger.Error("failed to mirror revoked token to database",
			zap.String("jti", jti),
			zap.Error(err))
	}
}

// RevokeAllUserTokens overwrites the user-level revocation marker with the
// current time. Any token of that user issued strictly before the marker is
// considered revoked. The marker lives as long as the longest-lived token
// that could have been issued before it.
func (s *Service) RevokeAllUserTokens(ctx context.Context, userID string) error {
	now := time.Now()
	value := strconv.FormatInt(now.UnixMilli(), 10)

	err := s.client.Set(ctx, s.userKey(userID), value, s.config.JWT.RefreshExpiry).Err()
	if err != nil {
		s.logger.Error("failed to set user revocation marker",
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("failed to revoke user tokens: %w", err)
	}

	s.logger.Info("all user tokens revoked",
		zap.String("user_id", userID),
		zap.Time("issued_before", now))
	return nil
}

// IsBlacklisted reports whether a token must be rejected: either its jti was
// individually blacklisted, or the owning user has a revocation marker newer
// than the token's issue time. A token issued exactly at the marker time is
// NOT revoked; the comparison is strict.
func (s *Service) IsBlacklisted(ctx context.Context, jti, userID string, issuedAt time.Time) bool {
	exists, err := s.client.Exists(ctx, s.tokenKey(jti)).Result()
	if err != nil {
		s.logger.Error("blacklist lookup failed, failing open",
			zap.String("jti", jti),
			zap.Error(err))
		return false
	}
	if exists > 0 {
		return true
	}

	raw, err := s.client.Get(ctx, s.userKey(userID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Error("user revocation marker lookup failed, failing open",
				zap.String("user_id", userID),
				zap.Error(err))
		}
		return false
	}

	revokedAtMilli, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// corrupted marker: the cache is not the source of truth for hard
		// revocation, so treat it as absent rather than rejecting everyone
		s.logger.Error("corrupted user revocation marker, failing open",
			zap.String("user_id", userID),
			zap.String("raw", raw),
			zap.Error(err))
		return false
	}

	return issuedAt.UnixMilli() < revokedAtMilli
}

// WarmFromDatabase re-seeds the cache from the durable mirror, pruning rows
// that expired while the process was down. Called at startup so a redis flush
// or restart does not forget hard-revoked tokens.
func (s *Service) WarmFromDatabase(ctx context.Context) error {
	if s.db == nil {
		return nil
	}

	now := time.Now()

	var entries []RevokedToken
	if err := s.db.WithContext(ctx).Where("expires_at > ?", now).Find(&entries).Error; err != nil {
		return fmt.Errorf("failed to load revoked tokens: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		ttl := time.Until(entry.ExpiresAt)
		if ttl <= 0 {
			continue
		}
		if err := s.client.Set(ctx, s.tokenKey(entry.JTI), "1", ttl).Err(); err != nil {
			s.logger.Error("failed to warm revoked token into cache",
				zap.String("jti", entry.JTI),
				zap.Error(err))
			continue
		}
		loaded++
	}

	result := s.db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&RevokedToken{})
	if result.Error != nil {
		s.logger.Error("failed to prune expired revoked tokens", zap.Error(result.Error))
	}

	s.logger.Info("revocation cache warmed from database",
		zap.Int("loaded", loaded),
		zap.Int64("pruned", result.RowsAffected))
	return nil
}

// CleanupExpired removes mirror rows whose tokens have expired; the cache
// entries expire on their own via TTL.
func (s *Service) CleanupExpired(ctx context.Context) error {
	if s.db == nil {
		return nil
	}

	result := s.db.WithContext(ctx).Where("expires_at <= ?", time.Now()).Delete(&RevokedToken{})
	if result.Error != nil {
		return fmt.Errorf("failed to cleanup expired revoked tokens: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.logger.Info("cleaned up expired revoked tokens", zap.Int64("count", result.RowsAffected))
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
					s.logger.Error("revocation cleanup worker failed", zap.Error(err))
				}
			}
		}
	}()

	s.logger.Info("started revocation cleanup worker", zap.Duration("interval", interval))
}
