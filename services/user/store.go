package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tech-arch1tect/authkit/services/logging"
)

var ErrRoleNotFound = errors.New("role not found")

// Store is the gorm-backed user/role repository. Lookups return ErrNotFound /
// ErrRoleNotFound rather than leaking gorm error types to callers.
type Store struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewStore(db *gorm.DB, logger *logging.Service) *Store {
	return &Store{db: db, logger: logger}
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &u, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*User, error) {
	var u User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &u, nil
}

// Create persists a new user and attaches the supplied role in one
// transaction. The caller owns uniqueness pre-checks; a duplicate email still
// fails here on the unique index.
func (s *Store) Create(ctx context.Context, u *User, role *Role) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Email = strings.ToLower(u.Email)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(u).Error; err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		if role != nil {
			if err := tx.Create(&UserRole{UserID: u.ID, RoleID: role.ID}).Error; err != nil {
				return fmt.Errorf("failed to attach role: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) Save(ctx context.Context, u *User) error {
	if err := s.db.WithContext(ctx).Save(u).Error; err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// SaveAndFlush saves and re-reads the row so database-generated fields
// (created/updated timestamps) are populated before the caller uses them.
func (s *Store) SaveAndFlush(ctx context.Context, u *User) error {
	if err := s.Save(ctx, u); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("id = ?", u.ID).First(u).Error; err != nil {
		return fmt.Errorf("failed to reload user: %w", err)
	}
	return nil
}

// RolesFor returns the user's current role names, read fresh from the join
// table. Token issuance must use this, never roles embedded in old claims.
func (s *Store) RolesFor(ctx context.Context, userID string) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).
		Table("roles").
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Where("user_roles.user_id = ?", userID).
		Order("roles.name").
		Pluck("roles.name", &names).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	return names, nil
}

func (s *Store) AttachRole(ctx context.Context, userID, roleID string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		FirstOrCreate(&UserRole{UserID: userID, RoleID: roleID}).Error
	if err != nil {
		return fmt.Errorf("failed to attach role: %w", err)
	}
	return nil
}

func (s *Store) DetachRole(ctx context.Context, userID, roleID string) error {
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND role_id = ?", userID, roleID).
		Delete(&UserRole{}).Error
	if err != nil {
		return fmt.Errorf("failed to detach role: %w", err)
	}
	return nil
}

func (s *Store) FindRoleByName(ctx context.Context, name string) (*Role, error) {
	var r Role
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&r).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &r, nil
}

// EnsureRole creates the role if missing. Used at startup to seed the default
// role so registration does not depend on manual provisioning.
func (s *Store) EnsureRole(ctx context.Context, name string) (*Role, error) {
	role, err := s.FindRoleByName(ctx, name)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, ErrRoleNotFound) {
		return nil, err
	}

	role = &Role{ID: uuid.NewString(), Name: name}
	if err := s.db.WithContext(ctx).Create(role).Error; err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	s.logger.Info("seeded role", zap.String("role", name))
	return role, nil
}
