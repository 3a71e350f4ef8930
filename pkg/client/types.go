package client

import (
	"time"

	"github.com/google/uuid"
)

// Identity is the signed-in user as seen by other people.
type Identity struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Username    *string   `json:"username,omitempty"`
	DisplayName string    `json:"display_name"`
}

// AuthResponse is returned by sign-up, sign-in and refresh.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *Identity `json:"user"`
}

type Profile struct {
	UserID                  uuid.UUID       `json:"user_id"`
	Username                *string         `json:"username,omitempty"`
	Email                   string          `json:"email"`
	DisplayName             string          `json:"display_name"`
	AvatarURL               *string         `json:"avatar_url,omitempty"`
	Bio                     *string         `json:"bio,omitempty"`
	Location                *string         `json:"location,omitempty"`
	Website                 *string         `json:"website,omitempty"`
	NotificationPreferences map[string]bool `json:"notification_preferences"`
	ThemePreference         string          `json:"theme_preference"`
	LanguagePreference      string          `json:"language_preference"`
}

type UpdateProfileRequest struct {
	Username                *string         `json:"username,omitempty"`
	DisplayName             *string         `json:"display_name,omitempty"`
	AvatarURL               *string         `json:"avatar_url,omitempty"`
	Bio                     *string         `json:"bio,omitempty"`
	Location                *string         `json:"location,omitempty"`
	Website                 *string         `json:"website,omitempty"`
	NotificationPreferences map[string]bool `json:"notification_preferences,omitempty"`
	ThemePreference         *string         `json:"theme_preference,omitempty"`
	LanguagePreference      *string         `json:"language_preference,omitempty"`
}

type Project struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Tags        []string  `json:"tags"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type CreateProjectRequest struct {
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags"`
}

type UpdateProjectRequest struct {
	Name        *string   `json:"name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Tags        *[]string `json:"tags,omitempty"`
}

type Invitation struct {
	ID           uuid.UUID  `json:"id"`
	ProjectID    uuid.UUID  `json:"project_id"`
	ProjectName  string     `json:"project_name,omitempty"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	InvitedBy    uuid.UUID  `json:"invited_by"`
	InviterEmail string     `json:"inviter_email"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty"`
}

type Membership struct {
	ID        uuid.UUID  `json:"id"`
	ProjectID uuid.UUID  `json:"project_id"`
	UserID    uuid.UUID  `json:"user_id"`
	Role      string     `json:"role"`
	Email     string     `json:"email"`
	InvitedBy *uuid.UUID `json:"invited_by,omitempty"`
	JoinedAt  time.Time  `json:"joined_at"`
}

// Participant is either the project owner or a member. Membership is set for members only.
type Participant struct {
	Kind        string      `json:"kind"`
	UserID      uuid.UUID   `json:"user_id"`
	Email       string      `json:"email"`
	DisplayName string      `json:"display_name"`
	Username    *string     `json:"username,omitempty"`
	Membership  *Membership `json:"membership,omitempty"`
}

func (p *Participant) EffectiveRole() string {
	if p.Kind == "owner" {
		return "owner"
	}
	if p.Membership != nil && p.Membership.Role != "" {
		return p.Membership.Role
	}
	return "member"
}

// InviteOutcome reports a created invitation. EmailSent false is a degraded success: the
// invitation exists but its email was not delivered.
type InviteOutcome struct {
	Invitation *Invitation `json:"invitation"`
	EmailSent  bool        `json:"email_sent"`
	EmailError string      `json:"email_error,omitempty"`
}

type AcceptResult struct {
	Invitation *Invitation `json:"invitation"`
	Membership *Membership `json:"membership,omitempty"`
}

type ContactMessage struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

type SignUpRequest struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	Username    *string `json:"username,omitempty"`
	DisplayName string  `json:"display_name"`
}
