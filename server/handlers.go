package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/tech-arch1tect/authkit/internal/webutil"
	"github.com/tech-arch1tect/authkit/middleware/accesstoken"
	"github.com/tech-arch1tect/authkit/services/auth"
	"github.com/tech-arch1tect/authkit/services/logging"
	"github.com/tech-arch1tect/authkit/services/password"
	"github.com/tech-arch1tect/authkit/services/token"
	"github.com/tech-arch1tect/authkit/services/user"
)

type AuthHandler struct {
	auth   *auth.Service
	tokens *token.Service
	logger *logging.Service
}

func NewAuthHandler(authSvc *auth.Service, tokens *token.Service, logger *logging.Service) *AuthHandler {
	return &AuthHandler{
		auth:   authSvc,
		tokens: tokens,
		logger: logger,
	}
}

// RegisterRoutes mounts the auth endpoints on the group. requireAuth guards
// the endpoints that need an authenticated caller.
func (h *AuthHandler) RegisterRoutes(g *echo.Group, requireAuth echo.MiddlewareFunc) {
	g.POST("/register", h.Register)
	g.POST("/login", h.Login)
	g.POST("/refresh", h.Refresh)
	g.POST("/logout", h.Logout)
	g.POST("/logout-all", h.LogoutAll, requireAuth)
	g.GET("/verify-email", h.VerifyEmail)
}

type registerRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	profile, err := h.auth.Register(c.Request().Context(), auth.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserAlreadyExists):
			return echo.NewHTTPError(http.StatusConflict, "an account with this email already exists")
		case errors.Is(err, password.ErrPolicyViolation):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrDefaultRoleNotFound):
			return echo.NewHTTPError(http.StatusInternalServerError, "registration is not available")
		default:
			h.logger.Error("registration failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "registration failed")
		}
	}

	return c.JSON(http.StatusCreated, profile)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	result, err := h.auth.Login(c.Request().Context(), req.Email, req.Password, webutil.SessionMeta(c))
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAuthenticationFailed):
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
		case errors.Is(err, user.ErrAccountSuspended):
			return echo.NewHTTPError(http.StatusForbidden, "account is suspended")
		case errors.Is(err, user.ErrEmailNotVerified):
			return echo.NewHTTPError(http.StatusForbidden, "email address is not verified")
		default:
			h.logger.Error("login failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
		}
	}

	return c.JSON(http.StatusOK, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RefreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh_token is required")
	}

	pair, err := h.tokens.RefreshAccessToken(c.Request().Context(), req.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrInvalidToken):
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
		case errors.Is(err, user.ErrAccountSuspended):
			return echo.NewHTTPError(http.StatusForbidden, "account is suspended")
		case errors.Is(err, user.ErrEmailNotVerified):
			return echo.NewHTTPError(http.StatusForbidden, "email address is not verified")
		default:
			h.logger.Error("token refresh failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "token refresh failed")
		}
	}

	return c.JSON(http.StatusOK, pair)
}

type logoutRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Logout is best-effort and always succeeds so a half-expired session can
// still be torn down.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req logoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	h.auth.Logout(c.Request().Context(), req.AccessToken, req.RefreshToken)
	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) LogoutAll(c echo.Context) error {
	userID := accesstoken.GetUserID(c)
	if userID == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	if err := h.auth.LogoutAll(c.Request().Context(), userID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return echo.NewHTTPError(http.StatusUnauthorized, "account no longer exists")
		}
		h.logger.Error("logout-all failed", zap.Error(err), zap.String("user_id", userID))
		return echo.NewHTTPError(http.StatusInternalServerError, "logout failed")
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	rawToken := c.QueryParam("token")
	if rawToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "token is required")
	}

	err := h.auth.VerifyEmail(c.Request().Context(), rawToken)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrVerificationTokenInvalid):
			return echo.NewHTTPError(http.StatusBadRequest, "verification token is invalid")
		case errors.Is(err, auth.ErrVerificationTokenUsed):
			return echo.NewHTTPError(http.StatusGone, "verification token has already been used")
		case errors.Is(err, auth.ErrVerificationTokenExpired):
			return echo.NewHTTPError(http.StatusGone, "verification token has expired")
		default:
			h.logger.Error("email verification failed", zap.Error(err))
			return echo.NewHTTPError(http.StatusInternalServerError, "email verification failed")
		}
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "verified"})
}
