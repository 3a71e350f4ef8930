package membership

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/curaious/projecthub/internal/services/notification"
)

// Role is the access level granted by a membership or invitation
type Role string

const (
	RoleMember Role = "member"
	// RoleOwner is derived from projects.user_id and never stored in project_members.
	RoleOwner Role = "owner"
)

// InvitationStatus is the derived lifecycle state of an invitation
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
)

// Invitation offers a project role to an email address
type Invitation struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	ProjectID    uuid.UUID  `json:"project_id" db:"project_id"`
	Email        string     `json:"email" db:"email"`
	Role         Role       `json:"role" db:"role"`
	InvitedBy    uuid.UUID  `json:"invited_by" db:"invited_by"`
	InviterEmail string     `json:"inviter_email" db:"inviter_email"`
	Token        string     `json:"-" db:"token"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at" db:"expires_at"`
	AcceptedAt   *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	ProjectName  string     `json:"project_name,omitempty" db:"project_name"`
}

// Status derives the invitation state at now. Declined and cancelled invitations no longer exist.
func (i *Invitation) Status(now time.Time) InvitationStatus {
	switch {
	case i.AcceptedAt != nil:
		return InvitationAccepted
	case !i.ExpiresAt.After(now):
		return InvitationExpired
	default:
		return InvitationPending
	}
}

// IsPending reports whether the invitation is unaccepted and unexpired at now.
func (i *Invitation) IsPending(now time.Time) bool {
	return i.Status(now) == InvitationPending
}

// checkAcceptable is shared by the service and the repo, which repeats it under a row lock.
func checkAcceptable(inv *Invitation, email string, now time.Time) error {
	switch inv.Status(now) {
	case InvitationAccepted:
		return ErrInvitationAlreadyAccepted
	case InvitationExpired:
		return ErrInvitationExpired
	}
	if !strings.EqualFold(strings.TrimSpace(inv.Email), strings.TrimSpace(email)) {
		return ErrInvitationEmailMismatch
	}
	return nil
}

// Membership associates a non-owner identity with a project
type Membership struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	ProjectID uuid.UUID  `json:"project_id" db:"project_id"`
	UserID    uuid.UUID  `json:"user_id" db:"user_id"`
	Role      Role       `json:"role" db:"role"`
	Email     string     `json:"email" db:"email"`
	InvitedBy *uuid.UUID `json:"invited_by,omitempty" db:"invited_by"`
	JoinedAt  time.Time  `json:"joined_at" db:"joined_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// ParticipantKind tags a Participant as the project owner or a member
type ParticipantKind string

const (
	ParticipantOwner  ParticipantKind = "owner"
	ParticipantMember ParticipantKind = "member"
)

// Participant is one entry of a project's effective member set. Membership is set only for
// members.
type Participant struct {
	Kind        ParticipantKind `json:"kind" db:"kind"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	Email       string          `json:"email" db:"email"`
	DisplayName string          `json:"display_name" db:"display_name"`
	Username    *string         `json:"username,omitempty" db:"username"`
	Membership  *Membership     `json:"membership,omitempty" db:"-"`
}

// EffectiveRole projects both variants onto a Role.
func (p *Participant) EffectiveRole() Role {
	if p.Kind == ParticipantOwner {
		return RoleOwner
	}
	if p.Membership != nil && p.Membership.Role != "" {
		return p.Membership.Role
	}
	return RoleMember
}

// InviteOutcome reports a created invitation and whether its email went out.
type InviteOutcome struct {
	Invitation *Invitation `json:"invitation"`
	EmailSent  bool        `json:"email_sent"`
	EmailError string      `json:"email_error,omitempty"`
}

func newInviteOutcome(inv *Invitation, res notification.Result) *InviteOutcome {
	return &InviteOutcome{Invitation: inv, EmailSent: res.Success, EmailError: res.Error}
}

// InviteRequest captures payload for inviting someone by email or username
type InviteRequest struct {
	Target string `json:"target"`
}

// AcceptByTokenRequest captures payload for accepting through an emailed link
type AcceptByTokenRequest struct {
	Token string `json:"token"`
}

// TransferOwnershipRequest captures payload for handing a project to a member
type TransferOwnershipRequest struct {
	NewOwnerID uuid.UUID `json:"new_owner_id"`
}
