package refreshtoken

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tech-arch1tect/authkit/testutils"
)

type mockMinter struct {
	mintFunc func(userID, email string) (string, string, time.Time, error)
}

func (m *mockMinter) MintRefreshToken(userID, email string) (string, string, time.Time, error) {
	if m.mintFunc != nil {
		return m.mintFunc(userID, email)
	}
	jti := uuid.NewString()
	return "raw-" + jti, jti, time.Now().Add(24 * time.Hour), nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testutils.SetupTestDB(t, &RefreshTokenRecord{})
	client, _ := testutils.SetupTestRedis(t)
	return NewService(db, client, &mockMinter{}, testutils.GetTestConfig(), nil)
}

func TestIssue(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "user-1", "a@x.com", SessionMeta{
		DeviceInfo: "Firefox 140 on Linux",
		IPAddress:  "192.0.2.10",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, issued.Raw)
	assert.NotEmpty(t, issued.JTI)

	var record RefreshTokenRecord
	require.NoError(t, svc.db.Where("id = ?", issued.JTI).First(&record).Error)
	assert.Equal(t, "user-1", record.UserID)
	assert.Equal(t, HashToken(issued.Raw), record.TokenHash)
	assert.NotEqual(t, issued.Raw, record.TokenHash)
	assert.False(t, record.Revoked)
	assert.Equal(t, "Firefox 140 on Linux", record.DeviceInfo)
	assert.Equal(t, "192.0.2.10", record.IPAddress)
}

func TestIsValid(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	t.Run("live token is valid", func(t *testing.T) {
		issued, err := svc.Issue(ctx, "user-1", "a@x.com", SessionMeta{})
		require.NoError(t, err)
		assert.True(t, svc.IsValid(ctx, issued.JTI))
	})

	t.Run("unknown jti is invalid", func(t *testing.T) {
		assert.False(t, svc.IsValid(ctx, uuid.NewString()))
	})

	t.Run("revoked token is invalid", func(t *testing.T) {
		issued, err := svc.Issue(ctx, "user-1", "a@x.com", SessionMeta{})
		require.NoError(t, err)
		require.NoError(t, svc.Revoke(ctx, issued.JTI))
		assert.False(t, svc.IsValid(ctx, issued.JTI))
	})

	t.Run("expired token is invalid", func(t *testing.T) {
		jti := uuid.NewString()
		require.NoError(t, svc.db.Create(&RefreshTokenRecord{
			ID:        jti,
			UserID:    "user-1",
			TokenHash: HashToken("raw-" + jti),
			ExpiresAt: time.Now().Add(-time.Minute),
		}).Error)
		assert.False(t, svc.IsValid(ctx, jti))
	})
}

func TestIsValid_SelfHeal(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "user-1", "a@x.com", SessionMeta{})
	require.NoError(t, err)

	// simulate a cache flush: the durable record alone must keep the token
	// valid, and the lookup must repopulate the cache
	require.NoError(t, svc.client.FlushAll(ctx).Err())
	exists, err := svc.client.Exists(ctx, svc.liveKey(issued.JTI)).Result()
	require.NoError(t, err)
	require.Zero(t, exists)

	assert.True(t, svc.IsValid(ctx, issued.JTI))

	exists, err = svc.client.Exists(ctx, svc.liveKey(issued.JTI)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}

func TestIsValid_CacheDownDegradesToDatabase(t *testing.T) {
	db := testutils.SetupTestDB(t, &RefreshTokenRecord{})
	client, mr := testutils.SetupTestRedis(t)
	svc := NewService(db, client, &mockMinter{}, testutils.GetTestConfig(), nil)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "user-1", "a@x.com", SessionMeta{})
	require.NoError(t, err)

	mr.Close()
	assert.True(t, svc.IsValid(ctx, issued.JTI))
}

func TestRevoke_Idempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "user-1", "a@x.com", SessionMeta{})
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, issued.JTI))
	require.NoError(t, svc.Revoke(ctx, issued.JTI))
	require.NoError(t, svc.Revoke(ctx, uuid.NewString()))

	var record RefreshTokenRecord
	require.NoError(t, svc.db.Where("id = ?", issued.JTI).First(&record).Error)
	assert.True(t, record.Revoked)
}

func TestRevokeAllForUser(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, err := svc.Issue(ctx, "user-1", "a@x.com", SessionMeta{})
	require.NoError(t, err)
	second, err := svc.Issue(ctx, "user-1", "a@x.com", SessionMeta{})
	require.NoError(t, err)
	other, err := svc.Issue(ctx, "user-2", "b@x.com", SessionMeta{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeAllForUser(ctx, "user-1"))

	assert.False(t, svc.IsValid(ctx, first.JTI))
	assert.False(t, svc.IsValid(ctx, second.JTI))
	assert.True(t, svc.IsValid(ctx, other.JTI))

	// records survive revocation for auditability
	var count int64
	require.NoError(t, svc.db.Model(&RefreshTokenRecord{}).Where("user_id = ?", "user-1").Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestRotate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	t.Run("single-use exchange", func(t *testing.T) {
		issued, err := svc.Issue(ctx, "user-1", "a@x.com", SessionMeta{DeviceInfo: "cli", IPAddress: "198.51.100.7"})
		require.NoError(t, err)

		rotated, err := svc.Rotate(ctx, issued.JTI, "user-1", "a@x.com")
		require.NoError(t, err)
		assert.NotEqual(t, issued.JTI, rotated.JTI)

		assert.False(t, svc.IsValid(ctx, issued.JTI))
		assert.True(t, svc.IsValid(ctx, rotated.JTI))

		// metadata carries over to the replacement record
		var record RefreshTokenRecord
		require.NoError(t, svc.db.Where("id = ?", rotated.JTI).First(&record).Error)
		assert.Equal(t, "cli", record.DeviceInfo)
		assert.Equal(t, "198.51.100.7", record.IPAddress)
	})

	t.Run("second rotation of same jti fails", func(t *testing.T) {
		issued, err := svc.Issue(ctx, "user-1", "a@x.com", SessionMeta{})
		require.NoError(t, err)

		_, err = svc.Rotate(ctx, issued.JTI, "user-1", "a@x.com")
		require.NoError(t, err)

		_, err = svc.Rotate(ctx, issued.JTI, "user-1", "a@x.com")
		assert.ErrorIs(t, err, ErrTokenAlreadyRotated)
	})

	t.Run("unknown jti is a hard failure", func(t *testing.T) {
		_, err := svc.Rotate(ctx, uuid.NewString(), "user-1", "a@x.com")
		assert.ErrorIs(t, err, ErrTokenNotFound)
	})

	t.Run("mint failure leaves old token revocation rolled back", func(t *testing.T) {
		issued, err := svc.Issue(ctx, "user-1", "a@x.com", SessionMeta{})
		require.NoError(t, err)

		failing := NewService(svc.db, svc.client, &mockMinter{
			mintFunc: func(string, string) (string, string, time.Time, error) {
				return "", "", time.Time{}, fmt.Errorf("signer unavailable")
			},
		}, testutils.GetTestConfig(), nil)

		_, err = failing.Rotate(ctx, issued.JTI, "user-1", "a@x.com")
		require.Error(t, err)

		// the transaction rolled back, so the old token must still be live
		assert.True(t, svc.IsValid(ctx, issued.JTI))
	})
}

func TestFindByHash(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	issued, err := svc.Issue(ctx, "user-1", "a@x.com", SessionMeta{})
	require.NoError(t, err)

	record, err := svc.FindByHash(ctx, HashToken(issued.Raw))
	require.NoError(t, err)
	assert.Equal(t, issued.JTI, record.ID)

	_, err = svc.FindByHash(ctx, HashToken("unknown"))
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestCleanupExpired_RespectsRetention(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	retention := svc.config.RefreshToken.RetentionAfterExp

	require.NoError(t, svc.db.Create(&RefreshTokenRecord{
		ID: "ancient", UserID: "u", TokenHash: "h1",
		ExpiresAt: time.Now().Add(-retention - time.Hour),
	}).Error)
	require.NoError(t, svc.db.Create(&RefreshTokenRecord{
		ID: "recent", UserID: "u", TokenHash: "h2",
		ExpiresAt: time.Now().Add(-time.Hour),
	}).Error)

	require.NoError(t, svc.CleanupExpired(ctx))

	var ids []string
	require.NoError(t, svc.db.Model(&RefreshTokenRecord{}).Pluck("id", &ids).Error)
	assert.Equal(t, []string{"recent"}, ids)
}
