package user

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/curaious/projecthub/internal/apperrors"
	"github.com/curaious/projecthub/internal/db"
)

const identityColumns = `u.id, u.email, p.username, COALESCE(p.display_name, '') AS display_name`

const profileColumns = `user_id, username, email, display_name, avatar_url, bio, location, website,
        notification_preferences, theme_preference, language_preference, created_at, updated_at`

type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Create inserts the user and its profile in one transaction.
func (r *UserRepo) Create(ctx context.Context, email, passwordHash string, passwordAuth bool, username *string, displayName string) (*User, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var user User
	err = tx.GetContext(ctx, &user, `
		INSERT INTO users (email, password_hash, password_auth_enabled)
		VALUES ($1, $2, $3)
		RETURNING id, email, password_hash, password_auth_enabled, created_at, updated_at
	`, email, passwordHash, passwordAuth)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO profiles (user_id, username, email, display_name)
		VALUES ($1, $2, $3, $4)
	`, user.ID, username, email, displayName)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &user, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, email, password_hash, password_auth_enabled, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	var user User
	err := r.db.GetContext(ctx, &user, query, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

func (r *UserRepo) GetIdentity(ctx context.Context, id uuid.UUID) (*Identity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM users u
		LEFT JOIN profiles p ON p.user_id = u.id
		WHERE u.id = $1
	`
	var identity Identity
	err := r.db.GetContext(ctx, &identity, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return &identity, nil
}

// GetIdentityByUsername matches usernames case-insensitively.
func (r *UserRepo) GetIdentityByUsername(ctx context.Context, username string) (*Identity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM users u
		JOIN profiles p ON p.user_id = u.id
		WHERE LOWER(p.username) = LOWER($1)
	`
	var identity Identity
	err := r.db.GetContext(ctx, &identity, query, username)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return &identity, nil
}

func (r *UserRepo) GetIdentityByEmail(ctx context.Context, email string) (*Identity, error) {
	query := `
		SELECT ` + identityColumns + `
		FROM users u
		LEFT JOIN profiles p ON p.user_id = u.id
		WHERE u.email = $1
	`
	var identity Identity
	err := r.db.GetContext(ctx, &identity, query, email)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return &identity, nil
}

func (r *UserRepo) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`

	var profile Profile
	err := r.db.GetContext(ctx, &profile, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

// UpdateProfile applies the non-nil fields. The username is only written while it is NULL,
// so a concurrent set cannot overwrite an existing one.
func (r *UserRepo) UpdateProfile(ctx context.Context, userID uuid.UUID, req *UpdateProfileRequest) (*Profile, error) {
	setParts := []string{}
	args := []interface{}{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		setParts = append(setParts, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if req.Username != nil {
		args = append(args, *req.Username)
		setParts = append(setParts, fmt.Sprintf("username = COALESCE(username, $%d)", len(args)))
	}
	if req.DisplayName != nil {
		add("display_name", *req.DisplayName)
	}
	if req.AvatarURL != nil {
		add("avatar_url", *req.AvatarURL)
	}
	if req.Bio != nil {
		add("bio", *req.Bio)
	}
	if req.Location != nil {
		add("location", *req.Location)
	}
	if req.Website != nil {
		add("website", *req.Website)
	}
	if req.NotificationPreferences != nil {
		add("notification_preferences", *req.NotificationPreferences)
	}
	if req.ThemePreference != nil {
		add("theme_preference", *req.ThemePreference)
	}
	if req.LanguagePreference != nil {
		add("language_preference", *req.LanguagePreference)
	}

	if len(setParts) == 0 {
		return r.GetProfile(ctx, userID)
	}

	setParts = append(setParts, "updated_at = NOW()")
	args = append(args, userID)

	query := fmt.Sprintf(`
		UPDATE profiles
		SET %s
		WHERE user_id = $%d
		RETURNING `+profileColumns, strings.Join(setParts, ", "), len(args))

	var profile Profile
	err := r.db.GetContext(ctx, &profile, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, mapUniqueViolation(err)
	}
	return &profile, nil
}

func mapUniqueViolation(err error) error {
	constraint, ok := db.UniqueViolation(err)
	if !ok {
		return fmt.Errorf("failed to write user: %w", err)
	}
	if strings.Contains(constraint, "username") {
		return ErrUsernameTaken
	}
	if strings.Contains(constraint, "email") {
		return ErrEmailTaken
	}
	return fmt.Errorf("%w: %s", apperrors.ErrConflict, constraint)
}
