package user

import (
	"database/sql/driver"
	"fmt"
	"time"

	json "github.com/bytedance/sonic"
	"github.com/google/uuid"
)

// User holds login credentials. Profile data lives in Profile.
type User struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	Email               string    `db:"email" json:"email"`
	PasswordHash        string    `db:"password_hash" json:"-"`
	PasswordAuthEnabled bool      `db:"password_auth_enabled" json:"password_auth_enabled"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// NotificationPreferences is stored as JSONB.
type NotificationPreferences map[string]bool

// Scan implements the sql.Scanner interface for database/sql
func (n *NotificationPreferences) Scan(value interface{}) error {
	if value == nil {
		*n = NotificationPreferences{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into NotificationPreferences", value)
	}

	return json.Unmarshal(bytes, n)
}

// Value implements the driver.Valuer interface for database/sql
func (n NotificationPreferences) Value() (driver.Value, error) {
	if n == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]bool(n))
}

// Profile is the public-facing record of an identity.
type Profile struct {
	UserID                  uuid.UUID               `db:"user_id" json:"user_id"`
	Username                *string                 `db:"username" json:"username,omitempty"`
	Email                   string                  `db:"email" json:"email"`
	DisplayName             string                  `db:"display_name" json:"display_name"`
	AvatarURL               *string                 `db:"avatar_url" json:"avatar_url,omitempty"`
	Bio                     *string                 `db:"bio" json:"bio,omitempty"`
	Location                *string                 `db:"location" json:"location,omitempty"`
	Website                 *string                 `db:"website" json:"website,omitempty"`
	NotificationPreferences NotificationPreferences `db:"notification_preferences" json:"notification_preferences"`
	ThemePreference         string                  `db:"theme_preference" json:"theme_preference"`
	LanguagePreference      string                  `db:"language_preference" json:"language_preference"`
	CreatedAt               time.Time               `db:"created_at" json:"created_at"`
	UpdatedAt               time.Time               `db:"updated_at" json:"updated_at"`
}

// Identity is the minimal view of an authenticated user that other services work with.
type Identity struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	Username    *string   `db:"username" json:"username,omitempty"`
	DisplayName string    `db:"display_name" json:"display_name"`
}

// Label is how the identity is shown to other people: display name, then username, then email.
func (i *Identity) Label() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	if i.Username != nil && *i.Username != "" {
		return *i.Username
	}
	return i.Email
}

// SignUpRequest captures payload for creating an account
type SignUpRequest struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	Username    *string `json:"username,omitempty"`
	DisplayName string  `json:"display_name"`
}

// UpdateProfileRequest captures payload for updating the caller's profile.
// Username may only be set while it is still empty.
type UpdateProfileRequest struct {
	Username                *string                  `json:"username,omitempty"`
	DisplayName             *string                  `json:"display_name,omitempty"`
	AvatarURL               *string                  `json:"avatar_url,omitempty"`
	Bio                     *string                  `json:"bio,omitempty"`
	Location                *string                  `json:"location,omitempty"`
	Website                 *string                  `json:"website,omitempty"`
	NotificationPreferences *NotificationPreferences `json:"notification_preferences,omitempty"`
	ThemePreference         *string                  `json:"theme_preference,omitempty"`
	LanguagePreference      *string                  `json:"language_preference,omitempty"`
}
