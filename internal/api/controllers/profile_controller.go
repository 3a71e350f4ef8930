package controllers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/curaious/projecthub/internal/perrors"
	"github.com/curaious/projecthub/internal/services"
	"github.com/curaious/projecthub/internal/services/user"
)

func RegisterProfileRoutes(r *router.Router, svc *services.Services) {
	r.GET("/api/profile", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		profile, err := svc.User.GetProfile(stdCtx, identity.ID)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to get profile", err)
			return
		}

		writeOK(ctx, stdCtx, "Profile retrieved successfully", profile)
	}))

	r.PUT("/api/profile", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		var body user.UpdateProfileRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		profile, err := svc.User.UpdateProfile(stdCtx, identity.ID, &body)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to update profile", err)
			return
		}

		writeOK(ctx, stdCtx, "Profile updated successfully", profile)
	}))

	// Look up someone to invite by username
	r.GET("/api/profiles/lookup", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, _ *user.Identity) {
		username, err := requireStringQuery(ctx, "username")
		if err != nil {
			writeServiceError(ctx, stdCtx, "Username is required", err)
			return
		}

		identity, err := svc.User.LookupUsername(stdCtx, username)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to look up username", err)
			return
		}

		writeOK(ctx, stdCtx, "success", identity)
	}))
}
