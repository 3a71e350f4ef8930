package notification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

var (
	ErrNotConfigured = errors.New("email delivery is not configured")
	ErrRateLimited   = errors.New("too many invitation emails, try again later")
)

// InvitationNotice is what an invitee needs to find and accept an invitation.
type InvitationNotice struct {
	ToEmail      string
	ProjectName  string
	InviterLabel string
	InviterID    string
	Token        string
}

// ContactNotice is a message from the public contact form.
type ContactNotice struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Message string `json:"message"`
}

// Result is the outcome of a dispatch. Dispatch never fails loudly: every problem ends up in
// Error with Success false.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Templates names the templates configured at the email provider.
type Templates struct {
	Invitation string
	Contact    string
}

// DispatcherConfig wires a Dispatcher.
type DispatcherConfig struct {
	Sender           EmailSender
	Limiter          RateLimiter
	Templates        Templates
	AppBaseURL       string
	ContactRecipient string
}

// Dispatcher sends invitation and contact emails on a best-effort basis.
type Dispatcher struct {
	sender           EmailSender
	limiter          RateLimiter
	templates        Templates
	appBaseURL       string
	contactRecipient string
}

func NewDispatcher(conf DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		sender:           conf.Sender,
		limiter:          conf.Limiter,
		templates:        conf.Templates,
		appBaseURL:       strings.TrimSuffix(conf.AppBaseURL, "/"),
		contactRecipient: conf.ContactRecipient,
	}
}

// AcceptLink is the page an invitee opens to accept an invitation.
func (d *Dispatcher) AcceptLink(token string) string {
	return fmt.Sprintf("%s/invitations/accept?token=%s", d.appBaseURL, url.QueryEscape(token))
}

// SendInvitation emails the invitee. Rate limiting applies per inviter.
func (d *Dispatcher) SendInvitation(ctx context.Context, notice InvitationNotice) (res Result) {
	defer recoverInto(ctx, &res)

	if d.sender == nil {
		return failure(ctx, "invitation", ErrNotConfigured)
	}

	if d.limiter != nil && notice.InviterID != "" {
		allowed, err := d.limiter.Allow(ctx, notice.InviterID)
		if err != nil {
			// A broken limiter should not stop delivery
			slog.WarnContext(ctx, "Rate limiter unavailable", slog.Any("error", err))
		} else if !allowed {
			return failure(ctx, "invitation", ErrRateLimited)
		}
	}

	params := Params{}.
		Add("to_email", notice.ToEmail).
		Add("project_name", notice.ProjectName).
		Add("inviter_name", notice.InviterLabel).
		Add("invitation_link", d.AcceptLink(notice.Token))

	if err := d.sender.Send(ctx, d.templates.Invitation, notice.ToEmail, params); err != nil {
		return failure(ctx, "invitation", err)
	}

	slog.InfoContext(ctx, "Invitation email sent", slog.String("to", notice.ToEmail))
	return Result{Success: true}
}

// SendContact forwards a contact form submission to the configured recipient.
func (d *Dispatcher) SendContact(ctx context.Context, notice ContactNotice) (res Result) {
	defer recoverInto(ctx, &res)

	if d.sender == nil {
		return failure(ctx, "contact", ErrNotConfigured)
	}

	params := Params{}.
		Add("from_name", notice.Name).
		Add("from_email", notice.Email).
		Add("message", notice.Message)

	if err := d.sender.Send(ctx, d.templates.Contact, d.contactRecipient, params); err != nil {
		return failure(ctx, "contact", err)
	}

	return Result{Success: true}
}

func failure(ctx context.Context, kind string, err error) Result {
	slog.WarnContext(ctx, "Email dispatch failed", slog.String("kind", kind), slog.Any("error", err))
	return Result{Success: false, Error: err.Error()}
}

func recoverInto(ctx context.Context, res *Result) {
	if r := recover(); r != nil {
		*res = failure(ctx, "panic", fmt.Errorf("email dispatch panicked: %v", r))
	}
}
