package controllers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/curaious/projecthub/internal/perrors"
	"github.com/curaious/projecthub/internal/services"
	"github.com/curaious/projecthub/internal/services/membership"
	"github.com/curaious/projecthub/internal/services/user"
)

// AcceptResponse is returned by both accept endpoints.
type AcceptResponse struct {
	Invitation *membership.Invitation `json:"invitation"`
	Membership *membership.Membership `json:"membership,omitempty"`
}

func RegisterMembershipRoutes(r *router.Router, svc *services.Services) {
	r.GET("/api/projects/{id}/members", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		projectID, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeServiceError(ctx, stdCtx, "Invalid ID format", err)
			return
		}

		participants, err := svc.Membership.ListMembers(stdCtx, projectID, identity)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to list members", err)
			return
		}

		writeOK(ctx, stdCtx, "Members retrieved successfully", participants)
	}))

	r.DELETE("/api/projects/{id}/members/{userId}", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		projectID, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeServiceError(ctx, stdCtx, "Invalid ID format", err)
			return
		}
		memberID, err := pathParamUUID(ctx, "userId")
		if err != nil {
			writeServiceError(ctx, stdCtx, "Invalid ID format", err)
			return
		}

		if err := svc.Membership.RemoveMember(stdCtx, projectID, memberID, identity); err != nil {
			writeServiceError(ctx, stdCtx, "Failed to remove member", err)
			return
		}

		writeOK(ctx, stdCtx, "Member removed successfully", nil)
	}))

	r.POST("/api/projects/{id}/quit", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		projectID, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeServiceError(ctx, stdCtx, "Invalid ID format", err)
			return
		}

		if err := svc.Membership.Quit(stdCtx, projectID, identity); err != nil {
			writeServiceError(ctx, stdCtx, "Failed to leave project", err)
			return
		}

		writeOK(ctx, stdCtx, "Left project successfully", nil)
	}))

	r.POST("/api/projects/{id}/transfer", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		projectID, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeServiceError(ctx, stdCtx, "Invalid ID format", err)
			return
		}

		var body membership.TransferOwnershipRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		p, err := svc.Membership.TransferOwnership(stdCtx, projectID, body.NewOwnerID, identity)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to transfer ownership", err)
			return
		}

		writeOK(ctx, stdCtx, "Ownership transferred successfully", p)
	}))

	r.GET("/api/projects/{id}/invitations", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		projectID, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeServiceError(ctx, stdCtx, "Invalid ID format", err)
			return
		}

		invitations, err := svc.Membership.ListProjectInvitations(stdCtx, projectID, identity)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to list invitations", err)
			return
		}

		writeOK(ctx, stdCtx, "Invitations retrieved successfully", invitations)
	}))

	// Invite by email or username. A failed email still returns the created invitation.
	r.POST("/api/projects/{id}/invitations", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		projectID, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeServiceError(ctx, stdCtx, "Invalid ID format", err)
			return
		}

		var body membership.InviteRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		outcome, err := svc.Membership.Invite(stdCtx, projectID, body.Target, identity)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to create invitation", err)
			return
		}

		message := "Invitation sent successfully"
		if !outcome.EmailSent {
			message = "Invitation created, but the email could not be sent"
		}
		writeOK(ctx, stdCtx, message, outcome)
	}))

	r.GET("/api/invitations", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		invitations, err := svc.Membership.ListMyInvitations(stdCtx, identity)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to list invitations", err)
			return
		}

		writeOK(ctx, stdCtx, "Invitations retrieved successfully", invitations)
	}))

	r.POST("/api/invitations/accept", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		var body membership.AcceptByTokenRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		inv, m, err := svc.Membership.AcceptByToken(stdCtx, body.Token, identity)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to accept invitation", err)
			return
		}

		writeOK(ctx, stdCtx, "Invitation accepted successfully", AcceptResponse{Invitation: inv, Membership: m})
	}))

	r.POST("/api/invitations/{id}/accept", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		invitationID, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeServiceError(ctx, stdCtx, "Invalid ID format", err)
			return
		}

		inv, m, err := svc.Membership.Accept(stdCtx, invitationID, identity)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to accept invitation", err)
			return
		}

		writeOK(ctx, stdCtx, "Invitation accepted successfully", AcceptResponse{Invitation: inv, Membership: m})
	}))

	r.POST("/api/invitations/{id}/decline", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		invitationID, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeServiceError(ctx, stdCtx, "Invalid ID format", err)
			return
		}

		if err := svc.Membership.Decline(stdCtx, invitationID, identity); err != nil {
			writeServiceError(ctx, stdCtx, "Failed to decline invitation", err)
			return
		}

		writeOK(ctx, stdCtx, "Invitation declined", nil)
	}))

	// Cancel by the inviter or project owner
	r.DELETE("/api/invitations/{id}", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		invitationID, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeServiceError(ctx, stdCtx, "Invalid ID format", err)
			return
		}

		if err := svc.Membership.Cancel(stdCtx, invitationID, identity); err != nil {
			writeServiceError(ctx, stdCtx, "Failed to cancel invitation", err)
			return
		}

		writeOK(ctx, stdCtx, "Invitation cancelled", nil)
	}))
}
