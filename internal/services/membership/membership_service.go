package membership

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/curaious/projecthub/internal/apperrors"
	"github.com/curaious/projecthub/internal/services/notification"
	"github.com/curaious/projecthub/internal/services/project"
	"github.com/curaious/projecthub/internal/services/user"
)

var (
	ErrInvitationNotFound         = apperrors.Kind(apperrors.ErrNotFound, "invitation not found")
	ErrInviteeNotFound            = apperrors.Kind(apperrors.ErrNotFound, "no user with that username")
	ErrMemberNotFound             = apperrors.Kind(apperrors.ErrNotFound, "member not found")
	ErrSelfInvite                 = apperrors.Kind(apperrors.ErrSelfInvite, "you cannot invite yourself")
	ErrDuplicatePendingInvitation = apperrors.Kind(apperrors.ErrDuplicatePendingInvitation, "this person already has a pending invitation")
	ErrAlreadyMember              = apperrors.Kind(apperrors.ErrAlreadyMember, "this person is already part of the project")
	ErrInvitationEmailMismatch    = apperrors.Kind(apperrors.ErrForbidden, "this invitation was sent to a different email address")
	ErrNotInviterOrOwner          = apperrors.Kind(apperrors.ErrForbidden, "only the inviter or the project owner can cancel this invitation")
	ErrInvitationAlreadyAccepted  = apperrors.Kind(apperrors.ErrConflict, "invitation already accepted")
	ErrInvitationExpired          = apperrors.Kind(apperrors.ErrConflict, "invitation has expired")
	ErrOwnerCannotQuit            = apperrors.Kind(apperrors.ErrConflict, "the owner cannot leave the project, transfer ownership first")
	ErrNewOwnerNotMember          = apperrors.Validation("the new owner must be a member of the project")
	ErrAlreadyOwner               = apperrors.Validation("ownership can only be transferred to another member")
	ErrAuthenticationRequired     = apperrors.Kind(apperrors.ErrAuthenticationRequired, "sign in to continue")
)

// InvitationTTL is the lifetime of every invitation, counted from creation.
const InvitationTTL = 7 * 24 * time.Hour

var tracer = otel.Tracer("MembershipService")

// Store is the persistence contract of MembershipService; *MembershipRepo implements it.
type Store interface {
	GetProject(ctx context.Context, projectID uuid.UUID) (*project.Project, error)
	IsMember(ctx context.Context, projectID, userID uuid.UUID) (bool, error)
	IsMemberEmail(ctx context.Context, projectID uuid.UUID, email string) (bool, error)
	CreateInvitation(ctx context.Context, inv *Invitation, now time.Time) (*Invitation, error)
	GetInvitation(ctx context.Context, id uuid.UUID) (*Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*Invitation, error)
	AcceptInvitation(ctx context.Context, id uuid.UUID, userID uuid.UUID, email string, now time.Time) (*Invitation, *Membership, error)
	DeleteInvitation(ctx context.Context, id uuid.UUID, now time.Time) error
	ListProjectInvitations(ctx context.Context, projectID uuid.UUID, now time.Time) ([]*Invitation, error)
	ListInvitationsForEmail(ctx context.Context, email string, now time.Time) ([]*Invitation, error)
	TransferOwnership(ctx context.Context, projectID, currentOwnerID, newOwnerID uuid.UUID, retainFormer bool) (*project.Project, error)
	DeleteMembership(ctx context.Context, projectID, userID uuid.UUID) (bool, error)
	ListParticipants(ctx context.Context, projectID uuid.UUID) ([]*Participant, error)
	DeleteExpiredInvitations(ctx context.Context, cutoff time.Time) (int64, error)
}

// Directory resolves usernames to identities; *user.UserService implements it.
type Directory interface {
	LookupUsername(ctx context.Context, username string) (*user.Identity, error)
}

// Notifier sends invitation emails; *notification.Dispatcher implements it.
type Notifier interface {
	SendInvitation(ctx context.Context, notice notification.InvitationNotice) notification.Result
}

// Options tune workflow policies.
type Options struct {
	// DispatchTimeout bounds the email call made after an invitation is stored.
	DispatchTimeout time.Duration
	// RetainFormerOwner gives the previous owner a member row on ownership transfer.
	RetainFormerOwner bool
}

// MembershipService runs the invitation and membership workflow
type MembershipService struct {
	repo      Store
	directory Directory
	notifier  Notifier
	opts      Options
	now       func() time.Time
}

// NewMembershipService constructs a new MembershipService
func NewMembershipService(repo Store, directory Directory, notifier Notifier, opts Options) *MembershipService {
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = 10 * time.Second
	}

	return &MembershipService{
		repo:      repo,
		directory: directory,
		notifier:  notifier,
		opts:      opts,
		now:       time.Now,
	}
}

// Target is a resolved invitee. Identity is set when the input was a username.
type Target struct {
	Email    string
	Identity *user.Identity
}

// ResolveTarget turns free text into an invitee email. Emails are used as given; anything else
// is looked up as a username. Resolving to the inviter fails with ErrSelfInvite.
func (s *MembershipService) ResolveTarget(ctx context.Context, inviter *user.Identity, input string) (*Target, error) {
	if inviter == nil {
		return nil, ErrAuthenticationRequired
	}

	input = strings.TrimSpace(input)
	if input == "" {
		return nil, apperrors.Validation("enter an email address or username")
	}

	if user.IsEmail(input) {
		email := user.NormalizeEmail(input)
		if strings.EqualFold(email, inviter.Email) {
			return nil, ErrSelfInvite
		}
		return &Target{Email: email}, nil
	}

	if err := user.ValidateUsername(input); err != nil {
		return nil, err
	}

	identity, err := s.directory.LookupUsername(ctx, input)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, ErrInviteeNotFound
		}
		return nil, fmt.Errorf("failed to look up username: %w", err)
	}

	if identity.ID == inviter.ID || strings.EqualFold(identity.Email, inviter.Email) {
		return nil, ErrSelfInvite
	}

	return &Target{Email: user.NormalizeEmail(identity.Email), Identity: identity}, nil
}

// Invite creates a pending invitation and emails it. Only the owner may invite. A failed email
// leaves the invitation in place and is reported in the outcome.
func (s *MembershipService) Invite(ctx context.Context, projectID uuid.UUID, input string, inviter *user.Identity) (*InviteOutcome, error) {
	ctx, span := tracer.Start(ctx, "Membership.Invite", trace.WithAttributes(attribute.String("project.id", projectID.String())))
	defer span.End()

	if inviter == nil {
		return nil, ErrAuthenticationRequired
	}

	p, err := s.ownedProject(ctx, projectID, inviter.ID)
	if err != nil {
		return nil, spanError(span, err)
	}

	target, err := s.ResolveTarget(ctx, inviter, input)
	if err != nil {
		return nil, spanError(span, err)
	}

	member, err := s.repo.IsMemberEmail(ctx, projectID, target.Email)
	if err != nil {
		return nil, spanError(span, err)
	}
	if member || (target.Identity != nil && target.Identity.ID == p.OwnerID) {
		return nil, spanError(span, ErrAlreadyMember)
	}

	token, err := generateToken()
	if err != nil {
		return nil, spanError(span, err)
	}

	now := s.now()
	inv, err := s.repo.CreateInvitation(ctx, &Invitation{
		ProjectID:    projectID,
		Email:        target.Email,
		Role:         RoleMember,
		InvitedBy:    inviter.ID,
		InviterEmail: inviter.Email,
		Token:        token,
		CreatedAt:    now,
		ExpiresAt:    now.Add(InvitationTTL),
		ProjectName:  p.Name,
	}, now)
	if err != nil {
		if errors.Is(err, ErrDuplicatePendingInvitation) {
			return nil, spanError(span, ErrDuplicatePendingInvitation)
		}
		return nil, spanError(span, fmt.Errorf("failed to create invitation: %w", err))
	}

	slog.InfoContext(ctx, "Invitation created",
		slog.String("project_id", projectID.String()),
		slog.String("invitation_id", inv.ID.String()))

	res := s.dispatch(ctx, inv, p.Name, inviter)
	if !res.Success {
		span.SetAttributes(attribute.String("email.error", res.Error))
	}

	return newInviteOutcome(inv, res), nil
}

// dispatch runs after the invitation is committed. The request context's cancellation does not
// apply so a client disconnect cannot cut the email off mid-flight.
func (s *MembershipService) dispatch(ctx context.Context, inv *Invitation, projectName string, inviter *user.Identity) notification.Result {
	if s.notifier == nil {
		return notification.Result{Error: notification.ErrNotConfigured.Error()}
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.DispatchTimeout)
	defer cancel()

	return s.notifier.SendInvitation(dctx, notification.InvitationNotice{
		ToEmail:      inv.Email,
		ProjectName:  projectName,
		InviterLabel: inviter.Label(),
		InviterID:    inviter.ID.String(),
		Token:        inv.Token,
	})
}

// Accept joins the invitation's project as the invited role. The identity's email must match.
func (s *MembershipService) Accept(ctx context.Context, invitationID uuid.UUID, identity *user.Identity) (*Invitation, *Membership, error) {
	ctx, span := tracer.Start(ctx, "Membership.Accept", trace.WithAttributes(attribute.String("invitation.id", invitationID.String())))
	defer span.End()

	if identity == nil {
		return nil, nil, ErrAuthenticationRequired
	}

	inv, err := s.repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return nil, nil, spanError(span, err)
	}

	inv, m, err := s.accept(ctx, inv, identity)
	return inv, m, spanError(span, err)
}

// AcceptByToken accepts the invitation carried by an emailed link.
func (s *MembershipService) AcceptByToken(ctx context.Context, token string, identity *user.Identity) (*Invitation, *Membership, error) {
	ctx, span := tracer.Start(ctx, "Membership.AcceptByToken")
	defer span.End()

	if identity == nil {
		return nil, nil, ErrAuthenticationRequired
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil, apperrors.Validation("invitation token is required")
	}

	inv, err := s.repo.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, nil, spanError(span, err)
	}

	inv, m, err := s.accept(ctx, inv, identity)
	return inv, m, spanError(span, err)
}

func (s *MembershipService) accept(ctx context.Context, inv *Invitation, identity *user.Identity) (*Invitation, *Membership, error) {
	now := s.now()
	if err := checkAcceptable(inv, identity.Email, now); err != nil {
		return nil, nil, err
	}

	accepted, m, err := s.repo.AcceptInvitation(ctx, inv.ID, identity.ID, user.NormalizeEmail(identity.Email), now)
	if err != nil {
		return nil, nil, err
	}

	slog.InfoContext(ctx, "Invitation accepted",
		slog.String("project_id", accepted.ProjectID.String()),
		slog.String("user_id", identity.ID.String()))

	return accepted, m, nil
}

// Decline deletes a pending invitation addressed to the identity.
func (s *MembershipService) Decline(ctx context.Context, invitationID uuid.UUID, identity *user.Identity) error {
	if identity == nil {
		return ErrAuthenticationRequired
	}

	inv, err := s.repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(inv.Email, identity.Email) {
		return ErrInvitationNotFound
	}

	return s.deletePending(ctx, inv)
}

// Cancel deletes a pending invitation. The inviter and the current project owner may cancel.
func (s *MembershipService) Cancel(ctx context.Context, invitationID uuid.UUID, identity *user.Identity) error {
	if identity == nil {
		return ErrAuthenticationRequired
	}

	inv, err := s.repo.GetInvitation(ctx, invitationID)
	if err != nil {
		return err
	}

	if inv.InvitedBy != identity.ID {
		p, err := s.repo.GetProject(ctx, inv.ProjectID)
		if err != nil {
			return err
		}
		if p.OwnerID != identity.ID {
			return ErrNotInviterOrOwner
		}
	}

	return s.deletePending(ctx, inv)
}

// deletePending removes inv only while it is pending. Expired rows stay until the reaper runs.
func (s *MembershipService) deletePending(ctx context.Context, inv *Invitation) error {
	now := s.now()
	switch inv.Status(now) {
	case InvitationAccepted:
		return ErrInvitationAlreadyAccepted
	case InvitationExpired:
		return ErrInvitationExpired
	}

	return s.repo.DeleteInvitation(ctx, inv.ID, now)
}

// TransferOwnership makes a current member the owner in one atomic step.
func (s *MembershipService) TransferOwnership(ctx context.Context, projectID, newOwnerID uuid.UUID, identity *user.Identity) (*project.Project, error) {
	ctx, span := tracer.Start(ctx, "Membership.TransferOwnership", trace.WithAttributes(attribute.String("project.id", projectID.String())))
	defer span.End()

	if identity == nil {
		return nil, ErrAuthenticationRequired
	}
	if newOwnerID == identity.ID {
		return nil, ErrAlreadyOwner
	}

	if _, err := s.ownedProject(ctx, projectID, identity.ID); err != nil {
		return nil, spanError(span, err)
	}

	p, err := s.repo.TransferOwnership(ctx, projectID, identity.ID, newOwnerID, s.opts.RetainFormerOwner)
	if err != nil {
		return nil, spanError(span, err)
	}

	slog.InfoContext(ctx, "Project ownership transferred",
		slog.String("project_id", projectID.String()),
		slog.String("from", identity.ID.String()),
		slog.String("to", newOwnerID.String()),
		slog.Bool("former_owner_retained", s.opts.RetainFormerOwner))

	return p, nil
}

// Quit removes the identity's own membership. Quitting a project one is not a member of succeeds.
func (s *MembershipService) Quit(ctx context.Context, projectID uuid.UUID, identity *user.Identity) error {
	if identity == nil {
		return ErrAuthenticationRequired
	}

	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		if errors.Is(err, project.ErrProjectNotFound) {
			return nil
		}
		return err
	}
	if p.OwnerID == identity.ID {
		return ErrOwnerCannotQuit
	}

	if _, err := s.repo.DeleteMembership(ctx, projectID, identity.ID); err != nil {
		return err
	}
	return nil
}

// RemoveMember lets the owner remove someone else's membership.
func (s *MembershipService) RemoveMember(ctx context.Context, projectID, memberID uuid.UUID, identity *user.Identity) error {
	if identity == nil {
		return ErrAuthenticationRequired
	}

	p, err := s.ownedProject(ctx, projectID, identity.ID)
	if err != nil {
		return err
	}
	if memberID == p.OwnerID {
		return ErrOwnerCannotQuit
	}

	removed, err := s.repo.DeleteMembership(ctx, projectID, memberID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrMemberNotFound
	}
	return nil
}

// ListMembers returns the owner followed by members. Any participant may list.
func (s *MembershipService) ListMembers(ctx context.Context, projectID uuid.UUID, identity *user.Identity) ([]*Participant, error) {
	if identity == nil {
		return nil, ErrAuthenticationRequired
	}

	if _, err := s.accessibleProject(ctx, projectID, identity.ID); err != nil {
		return nil, err
	}

	return s.repo.ListParticipants(ctx, projectID)
}

// ListProjectInvitations returns a project's pending invitations, newest first. Owner only.
func (s *MembershipService) ListProjectInvitations(ctx context.Context, projectID uuid.UUID, identity *user.Identity) ([]*Invitation, error) {
	if identity == nil {
		return nil, ErrAuthenticationRequired
	}

	if _, err := s.ownedProject(ctx, projectID, identity.ID); err != nil {
		return nil, err
	}

	return s.repo.ListProjectInvitations(ctx, projectID, s.now())
}

// ListMyInvitations returns pending invitations addressed to the identity, newest first.
func (s *MembershipService) ListMyInvitations(ctx context.Context, identity *user.Identity) ([]*Invitation, error) {
	if identity == nil {
		return nil, ErrAuthenticationRequired
	}

	return s.repo.ListInvitationsForEmail(ctx, user.NormalizeEmail(identity.Email), s.now())
}

// ReapExpired deletes unaccepted invitations that expired more than retention ago.
func (s *MembershipService) ReapExpired(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.repo.DeleteExpiredInvitations(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("failed to reap invitations: %w", err)
	}
	return n, nil
}

// ownedProject returns the project if ownerID owns it. Members get ErrNotProjectOwner, anyone
// else ErrProjectNotFound.
func (s *MembershipService) ownedProject(ctx context.Context, projectID, ownerID uuid.UUID) (*project.Project, error) {
	p, err := s.accessibleProject(ctx, projectID, ownerID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID != ownerID {
		return nil, project.ErrNotProjectOwner
	}
	return p, nil
}

func (s *MembershipService) accessibleProject(ctx context.Context, projectID, userID uuid.UUID) (*project.Project, error) {
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.OwnerID == userID {
		return p, nil
	}

	member, err := s.repo.IsMember(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, project.ErrProjectNotFound
	}
	return p, nil
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(bytes), nil
}

func spanError(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
