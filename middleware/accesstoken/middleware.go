package accesstoken

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tech-arch1tect/authkit/services/jwt"
	"github.com/tech-arch1tect/authkit/services/revocation"
)

const (
	UserIDKey     = "_access_user_id"
	ValidationKey = "_access_validation"
)

// Require authenticates the request with a Bearer access token. The token
// must verify as the access kind and must not be blacklisted.
func Require(codec *jwt.Service, revoc *revocation.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Authorization header required")
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid authorization header format")
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Access token required")
			}

			validation := codec.Verify(tokenString, jwt.KindAccess)
			if !validation.Valid {
				switch validation.Code {
				case jwt.CodeExpired:
					return echo.NewHTTPError(http.StatusUnauthorized, "Access token has expired")
				case jwt.CodeWrongTokenType:
					return echo.NewHTTPError(http.StatusUnauthorized, "Token is not an access token")
				case jwt.CodeInvalidSignature:
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token signature")
				default:
					return echo.NewHTTPError(http.StatusUnauthorized, "Invalid access token")
				}
			}

			if revoc.IsBlacklisted(c.Request().Context(), validation.JTI, validation.UserID, validation.IssuedAt) {
				return echo.NewHTTPError(http.StatusUnauthorized, "Access token has been revoked")
			}

			c.Set(UserIDKey, validation.UserID)
			c.Set(ValidationKey, validation)

			return next(c)
		}
	}
}

func GetUserID(c echo.Context) string {
	if userID, ok := c.Get(UserIDKey).(string); ok {
		return userID
	}
	return ""
}

func GetValidation(c echo.Context) *jwt.Validation {
	if v, ok := c.Get(ValidationKey).(*jwt.Validation); ok {
		return v
	}
	return nil
}
