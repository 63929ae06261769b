package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aussiebroadwan/stocktake/internal/auth/domain"
	"github.com/aussiebroadwan/stocktake/internal/auth/store"
	"github.com/aussiebroadwan/stocktake/pkg/cryptox"
	"github.com/aussiebroadwan/stocktake/pkg/idx"
	"github.com/aussiebroadwan/stocktake/pkg/slogx"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
	MaxUsernameLength = 64
)

// KnownRoles are the roles a user may hold.
var KnownRoles = []string{domain.RoleStaff, domain.RoleAdmin}

type RegisterInput struct {
	Username string
	Email    string
	Password string
	Roles    []string // empty means staff
}

type UserService struct {
	Store  store.Store
	Hasher cryptox.Hasher
	Now    func() time.Time
}

func (s *UserService) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// CreateUser validates the input, hashes the password and stores an active
// user.
func (s *UserService) CreateUser(ctx context.Context, in RegisterInput) (domain.User, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || utf8.RuneCountInString(username) > MaxUsernameLength || strings.ContainsAny(username, " \t\r\n") {
		return domain.User{}, fmt.Errorf("%w: username must be 1-%d characters without spaces", ErrInvalidInput, MaxUsernameLength)
	}

	email := normalizeEmail(in.Email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return domain.User{}, fmt.Errorf("%w: email is not a valid address", ErrInvalidInput)
	}

	if err := validatePassword(in.Password); err != nil {
		return domain.User{}, err
	}

	roles := in.Roles
	if len(roles) == 0 {
		roles = []string{domain.RoleStaff}
	}
	for _, r := range roles {
		if !slices.Contains(KnownRoles, r) {
			return domain.User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, r)
		}
	}

	hash, err := s.Hasher.Hash(in.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	u := domain.User{
		ID:           idx.NewAt(now).String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Roles:        slices.Compact(slices.Clone(roles)),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrAlreadyExists
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user created", "user_id", u.ID, "roles", u.Roles)
	return u, nil
}

// GetUser fetches a user by id.
func (s *UserService) GetUser(ctx context.Context, userID string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrPrincipalNotFound
		}
		return domain.User{}, err
	}
	return u, nil
}

// DeactivateUser soft-deactivates a user and revokes all their refresh
// tokens. Access tokens already issued stay valid until they expire.
func (s *UserService) DeactivateUser(ctx context.Context, userID string) error {
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().SetActive(ctx, userID, false); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrPrincipalNotFound
			}
			return err
		}
		return tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID)
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("user deactivated", "user_id", userID)
	return nil
}

func validatePassword(p string) error {
	n := utf8.RuneCountInString(p)
	if n < MinPasswordLength || n > MaxPasswordLength {
		return fmt.Errorf("%w: password must be %d-%d characters", ErrWeakPassword, MinPasswordLength, MaxPasswordLength)
	}
	return nil
}
