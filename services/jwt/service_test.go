package jwt

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tech-arch1tect/authkit/testutils"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := testutils.GetTestConfig()
	return NewService(&cfg.JWT, nil)
}

func TestIssue_AccessToken(t *testing.T) {
	svc := newTestService(t)

	tokenString, jti, err := svc.Issue(KindAccess, "user-1", "a@x.com", []string{"customer", "admin"})
	require.NoError(t, err)
	require.NotEmpty(t, tokenString)
	require.NotEmpty(t, jti)

	cfg := testutils.GetTestConfig()
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return []byte(cfg.JWT.AccessSecret), nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)

	claims := token.Claims.(*Claims)
	assert.Equal(t, jti, claims.ID)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.Equal(t, []string{"customer", "admin"}, claims.Roles)
	assert.Equal(t, string(KindAccess), claims.TokenType)
	assert.Equal(t, cfg.JWT.Issuer, claims.Issuer)
}

func TestIssue_RefreshTokenCarriesNoRoles(t *testing.T) {
	svc := newTestService(t)

	tokenString, _, err := svc.Issue(KindRefresh, "user-1", "a@x.com", []string{"admin"})
	require.NoError(t, err)

	result := svc.Verify(tokenString, KindRefresh)
	require.True(t, result.Valid)
	assert.Empty(t, result.Roles)
}

func TestIssue_ExactTTL(t *testing.T) {
	svc := newTestService(t)

	tokenString, _, err := svc.Issue(KindAccess, "user-1", "a@x.com", nil)
	require.NoError(t, err)

	result := svc.Verify(tokenString, KindAccess)
	require.True(t, result.Valid)
	assert.Equal(t, 15*time.Minute, result.ExpiresAt.Sub(result.IssuedAt))
}

func TestVerify_ValidToken(t *testing.T) {
	svc := newTestService(t)

	tokenString, jti, err := svc.Issue(KindAccess, "user-1", "a@x.com", []string{"customer"})
	require.NoError(t, err)

	result := svc.Verify(tokenString, KindAccess)
	require.True(t, result.Valid)
	assert.Empty(t, result.Code)
	assert.Equal(t, jti, result.JTI)
	assert.Equal(t, "user-1", result.UserID)
	assert.Equal(t, "a@x.com", result.Email)
	assert.Equal(t, []string{"customer"}, result.Roles)
	assert.False(t, result.IssuedAt.IsZero())
	assert.False(t, result.ExpiresAt.IsZero())
}

func TestVerify_WrongTokenType(t *testing.T) {
	svc := newTestService(t)

	t.Run("refresh token where access expected", func(t *testing.T) {
		refresh, _, err := svc.Issue(KindRefresh, "user-1", "a@x.com", nil)
		require.NoError(t, err)

		result := svc.Verify(refresh, KindAccess)
		assert.False(t, result.Valid)
		assert.Equal(t, CodeWrongTokenType, result.Code)
	})

	t.Run("access token where refresh expected", func(t *testing.T) {
		access, _, err := svc.Issue(KindAccess, "user-1", "a@x.com", nil)
		require.NoError(t, err)

		result := svc.Verify(access, KindRefresh)
		assert.False(t, result.Valid)
		assert.Equal(t, CodeWrongTokenType, result.Code)
	})
}

func TestVerify_Expired(t *testing.T) {
	cfg := testutils.GetTestConfig()
	svc := NewService(&cfg.JWT, nil)

	now := time.Now()
	claims := Claims{
		Email:     "a@x.com",
		TokenType: string(KindAccess),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
			IssuedAt:  jwt.NewNumericDate(now.Add(-time.Hour)),
		},
	}
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWT.AccessSecret))
	require.NoError(t, err)

	result := svc.Verify(expired, KindAccess)
	assert.False(t, result.Valid)
	assert.Equal(t, CodeExpired, result.Code)
}

func TestVerify_Malformed(t *testing.T) {
	svc := newTestService(t)

	for _, garbage := range []string{"", "not-a-token", "a.b", "a.b.c.d"} {
		result := svc.Verify(garbage, KindAccess)
		assert.False(t, result.Valid)
		assert.Equal(t, CodeMalformed, result.Code)
	}
}

func TestVerify_InvalidSignature(t *testing.T) {
	svc := newTestService(t)

	other := testutils.GetTestConfig()
	other.JWT.AccessSecret = "another-access-signing-key-0123456789"
	otherSvc := NewService(&other.JWT, nil)

	tokenString, _, err := otherSvc.Issue(KindAccess, "user-1", "a@x.com", nil)
	require.NoError(t, err)

	result := svc.Verify(tokenString, KindAccess)
	assert.False(t, result.Valid)
	assert.Equal(t, CodeInvalidSignature, result.Code)
}

func TestVerify_MissingClaims(t *testing.T) {
	cfg := testutils.GetTestConfig()
	svc := NewService(&cfg.JWT, nil)

	now := time.Now()

	t.Run("missing subject", func(t *testing.T) {
		claims := Claims{
			Email:     "a@x.com",
			TokenType: string(KindAccess),
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        "jti-1",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				IssuedAt:  jwt.NewNumericDate(now),
			},
		}
		tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWT.AccessSecret))
		require.NoError(t, err)

		result := svc.Verify(tokenString, KindAccess)
		assert.False(t, result.Valid)
		assert.Equal(t, CodeMissingClaims, result.Code)
	})

	t.Run("missing email", func(t *testing.T) {
		claims := Claims{
			TokenType: string(KindAccess),
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        "jti-1",
				Subject:   "user-1",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				IssuedAt:  jwt.NewNumericDate(now),
			},
		}
		tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.JWT.AccessSecret))
		require.NoError(t, err)

		result := svc.Verify(tokenString, KindAccess)
		assert.False(t, result.Valid)
		assert.Equal(t, CodeMissingClaims, result.Code)
	})
}

func TestVerify_RejectsNoneAlgorithm(t *testing.T) {
	svc := newTestService(t)

	claims := Claims{
		Email:     "a@x.com",
		TokenType: string(KindAccess),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:      "jti-1",
			Subject: "user-1",
		},
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	result := svc.Verify(unsigned, KindAccess)
	assert.False(t, result.Valid)
}

func TestIssueWithJTI_PreservesSuppliedID(t *testing.T) {
	svc := newTestService(t)

	tokenString, jti, err := svc.IssueWithJTI(KindRefresh, "user-1", "a@x.com", nil, "fixed-jti")
	require.NoError(t, err)
	assert.Equal(t, "fixed-jti", jti)

	result := svc.Verify(tokenString, KindRefresh)
	require.True(t, result.Valid)
	assert.Equal(t, "fixed-jti", result.JTI)
}
