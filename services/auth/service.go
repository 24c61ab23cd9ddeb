package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tech-arch1tect/authkit/config"
	"github.com/tech-arch1tect/authkit/services/events"
	"github.com/tech-arch1tect/authkit/services/jwt"
	"github.com/tech-arch1tect/authkit/services/logging"
	"github.com/tech-arch1tect/authkit/services/password"
	"github.com/tech-arch1tect/authkit/services/refreshtoken"
	"github.com/tech-arch1tect/authkit/services/revocation"
	"github.com/tech-arch1tect/authkit/services/token"
	"github.com/tech-arch1tect/authkit/services/user"
)

// Mailer sends plain transactional mail. Optional: a nil mailer disables
// verification email delivery without disabling registration.
type Mailer interface {
	Send(to, subject, body string) error
}

// Service composes the register/login/logout flows on top of the token
// subsystem. All collaborators arrive through the constructor.
type Service struct {
	db         *gorm.DB
	users      *user.Store
	hasher     password.Hasher
	codec      *jwt.Service
	registry   *refreshtoken.Service
	revocation *revocation.Service
	publisher  events.Publisher
	mailer     Mailer
	config     *config.Config
	logger     *logging.Service
}

func NewService(
	db *gorm.DB,
	users *user.Store,
	hasher password.Hasher,
	codec *jwt.Service,
	registry *refreshtoken.Service,
	revocationSvc *revocation.Service,
	publisher events.Publisher,
	mailer Mailer,
	cfg *config.Config,
	logger *logging.Service,
) *Service {
	return &Service{
		db:         db,
		users:      users,
		hasher:     hasher,
		codec:      codec,
		registry:   registry,
		revocation: revocationSvc,
		publisher:  publisher,
		mailer:     mailer,
		config:     cfg,
		logger:     logger,
	}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// Register creates a new account with the configured default role attached
// and publishes a UserRegistered event. The returned profile never contains
// the password hash.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*user.Profile, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	_, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		return nil, ErrUserAlreadyExists
	}
	if !errors.Is(err, user.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}

	role, err := s.users.FindRoleByName(ctx, s.config.Auth.DefaultRoleName)
	if err != nil {
		if errors.Is(err, user.ErrRoleNotFound) {
			s.logger.Error("default role missing, registration cannot proceed",
				zap.String("role", s.config.Auth.DefaultRoleName))
			return nil, ErrDefaultRoleNotFound
		}
		return nil, fmt.Errorf("failed to load default role: %w", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	account := &user.User{
		Email:         email,
		PasswordHash:  hash,
		FirstName:     input.FirstName,
		LastName:      input.LastName,
		Phone:         input.Phone,
		Status:        user.StatusActive,
		EmailVerified: false,
	}
	if err := s.users.Create(ctx, account, role); err != nil {
		return nil, err
	}

	s.publisher.Publish(events.UserRegistered{
		UserID: account.ID,
		Email:  account.Email,
		At:     time.Now(),
	})

	if s.config.Auth.EmailVerificationEnabled {
		// best-effort: a failed verification mail must not undo the account
		if _, err := s.SendVerificationEmail(ctx, account.Email); err != nil {
			s.logger.Error("failed to send verification email",
				zap.String("email", account.Email),
				zap.Error(err))
		}
	}

	s.logger.Info("user registered",
		zap.String("user_id", account.ID),
		zap.String("role", role.Name))

	return account.ToProfile([]string{role.Name}), nil
}

// LoginResult bundles the issued tokens with the authenticated profile.
type LoginResult struct {
	Tokens     token.TokenPair `json:"tokens"`
	User       *user.Profile   `json:"user"`
	AuthStatus string          `json:"auth_status"`
}

// Login authenticates by email and password and issues a fresh token pair.
// Account-state checks run only after the password matched, so probing with
// wrong credentials cannot distinguish suspended accounts from absent ones.
func (s *Service) Login(ctx context.Context, email, plaintext string, meta refreshtoken.SessionMeta) (*LoginResult, error) {
	account, err := s.users.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrAuthenticationFailed
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !s.hasher.Matches(plaintext, account.PasswordHash) {
		s.logger.Warn("login failed, bad password", zap.String("user_id", account.ID))
		return nil, ErrAuthenticationFailed
	}

	if account.Suspended() {
		return nil, user.ErrAccountSuspended
	}
	if !account.EmailVerified {
		return nil, user.ErrEmailNotVerified
	}

	now := time.Now()
	account.LastLoginAt = &now
	if err := s.users.Save(ctx, account); err != nil {
		return nil, err
	}

	roles, err := s.users.RolesFor(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	accessToken, _, err := s.codec.Issue(jwt.KindAccess, account.ID, account.Email, roles)
	if err != nil {
		return nil, err
	}

	issued, err := s.registry.Issue(ctx, account.ID, account.Email, meta)
	if err != nil {
		return nil, err
	}

	s.publisher.Publish(events.UserLoggedIn{
		UserID: account.ID,
		Email:  account.Email,
		At:     now,
	})

	s.logger.Info("user logged in", zap.String("user_id", account.ID))

	return &LoginResult{
		Tokens: token.TokenPair{
			AccessToken:  accessToken,
			RefreshToken: issued.Raw,
			TokenType:    "Bearer",
			ExpiresIn:    s.codec.AccessExpirySeconds(),
		},
		User:       account.ToProfile(roles),
		AuthStatus: "VERIFIED",
	}, nil
}

// Logout best-effort blacklists the access token and revokes the refresh
// token. The two halves are independent and neither can fail the logout:
// presenting an already-expired or malformed token is still a successful
// logout from the client's point of view.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) {
	if accessToken != "" {
		validation := s.codec.Verify(accessToken, jwt.KindAccess)
		if validation.Valid {
			err := s.revocation.BlacklistToken(ctx, validation.JTI, validation.UserID, validation.ExpiresAt)
			if err != nil {
				s.logger.Error("failed to blacklist access token on logout",
					zap.String("jti", validation.JTI),
					zap.Error(err))
			}
		} else {
			s.logger.Warn("logout with unusable access token, continuing",
				zap.String("code", string(validation.Code)))
		}
	}

	if refreshToken != "" {
		validation := s.codec.Verify(refreshToken, jwt.KindRefresh)
		if validation.Valid {
			if err := s.registry.Revoke(ctx, validation.JTI); err != nil {
				s.logger.Error("failed to revoke refresh token on logout",
					zap.String("jti", validation.JTI),
					zap.Error(err))
			}
		} else {
			s.logger.Warn("logout with unusable refresh token, continuing",
				zap.String("code", string(validation.Code)))
		}
	}
}

// LogoutAll revokes every outstanding token of one user: the user-level
// revocation marker blocks still-valid access tokens issued before now, and
// the registry bulk-revoke kills all outstanding refresh tokens. Both must
// succeed; tokens issued by a later login are unaffected.
func (s *Service) LogoutAll(ctx context.Context, userID string) error {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return err
	}

	if err := s.revocation.RevokeAllUserTokens(ctx, userID); err != nil {
		return err
	}

	if err := s.registry.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}

	s.logger.Info("user logged out everywhere", zap.String("user_id", userID))
	return nil
}
