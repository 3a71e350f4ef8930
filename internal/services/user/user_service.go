package user

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/curaious/projecthub/internal/apperrors"
)

var (
	ErrUserNotFound       = apperrors.Kind(apperrors.ErrNotFound, "user not found")
	ErrEmailTaken         = apperrors.Kind(apperrors.ErrConflict, "email already registered")
	ErrUsernameTaken      = apperrors.Kind(apperrors.ErrConflict, "username already taken")
	ErrUsernameImmutable  = apperrors.Kind(apperrors.ErrConflict, "username cannot be changed once set")
	ErrInvalidCredentials = apperrors.Kind(apperrors.ErrAuthenticationRequired, "invalid credentials")
	ErrPasswordAuthOff    = apperrors.Kind(apperrors.ErrAuthenticationRequired, "password authentication is disabled for this user")
)

const minPasswordLength = 8

var (
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,30}$`)
)

// IsEmail reports whether s looks like an email address.
func IsEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateUsername returns a validation error for malformed usernames.
func ValidateUsername(s string) error {
	if !usernamePattern.MatchString(s) {
		return apperrors.Validation("username must be 3-30 letters, digits, '_', '.' or '-'")
	}
	return nil
}

// Store is the persistence contract the service depends on; *UserRepo implements it.
type Store interface {
	Create(ctx context.Context, email, passwordHash string, passwordAuth bool, username *string, displayName string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetIdentity(ctx context.Context, id uuid.UUID) (*Identity, error)
	GetIdentityByUsername(ctx context.Context, username string) (*Identity, error)
	GetIdentityByEmail(ctx context.Context, email string) (*Identity, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, req *UpdateProfileRequest) (*Profile, error)
}

type UserService struct {
	repo Store
}

func NewUserService(repo Store) *UserService {
	return &UserService{repo: repo}
}

// SignUp creates a password account and its profile.
func (s *UserService) SignUp(ctx context.Context, req *SignUpRequest) (*Identity, error) {
	email := NormalizeEmail(req.Email)
	if !IsEmail(email) {
		return nil, apperrors.Validation("a valid email is required")
	}
	if len(req.Password) < minPasswordLength {
		return nil, apperrors.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	username, err := normalizeUsername(req.Username)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	displayName := strings.TrimSpace(req.DisplayName)
	u, err := s.repo.Create(ctx, email, string(hash), true, username, displayName)
	if err != nil {
		return nil, err
	}

	return &Identity{ID: u.ID, Email: u.Email, Username: username, DisplayName: displayName}, nil
}

func (s *UserService) Authenticate(ctx context.Context, email, password string) (*Identity, error) {
	user, err := s.repo.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.PasswordAuthEnabled {
		return nil, ErrPasswordAuthOff
	}

	err = bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.repo.GetIdentity(ctx, user.ID)
}

// EnsureExternal returns the identity for an externally authenticated email, creating a
// password-less account on first sight.
func (s *UserService) EnsureExternal(ctx context.Context, email, displayName string) (*Identity, error) {
	email = NormalizeEmail(email)
	if !IsEmail(email) {
		return nil, apperrors.Validation("identity provider returned no usable email")
	}

	identity, err := s.repo.GetIdentityByEmail(ctx, email)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	u, err := s.repo.Create(ctx, email, "", false, nil, displayName)
	if errors.Is(err, ErrEmailTaken) {
		// Lost a race with a concurrent first login
		return s.repo.GetIdentityByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	return &Identity{ID: u.ID, Email: u.Email, DisplayName: displayName}, nil
}

func (s *UserService) GetIdentity(ctx context.Context, id uuid.UUID) (*Identity, error) {
	return s.repo.GetIdentity(ctx, id)
}

// LookupUsername resolves a username to an identity, case-insensitively.
func (s *UserService) LookupUsername(ctx context.Context, username string) (*Identity, error) {
	username = strings.TrimSpace(username)
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	return s.repo.GetIdentityByUsername(ctx, username)
}

func (s *UserService) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uuid.UUID, req *UpdateProfileRequest) (*Profile, error) {
	if req.Username != nil {
		username, err := normalizeUsername(req.Username)
		if err != nil {
			return nil, err
		}

		existing, err := s.repo.GetProfile(ctx, userID)
		if err != nil {
			return nil, err
		}
		if existing.Username != nil && *existing.Username != "" {
			if username == nil || !strings.EqualFold(*existing.Username, *username) {
				return nil, ErrUsernameImmutable
			}
		}
		req.Username = username
	}

	if req.DisplayName != nil {
		trimmed := strings.TrimSpace(*req.DisplayName)
		req.DisplayName = &trimmed
	}

	return s.repo.UpdateProfile(ctx, userID, req)
}

func normalizeUsername(in *string) (*string, error) {
	if in == nil {
		return nil, nil
	}
	username := strings.TrimSpace(*in)
	if username == "" {
		return nil, nil
	}
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	return &username, nil
}
