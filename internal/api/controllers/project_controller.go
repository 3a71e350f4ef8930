package controllers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/curaious/projecthub/internal/perrors"
	"github.com/curaious/projecthub/internal/services"
	"github.com/curaious/projecthub/internal/services/project"
	"github.com/curaious/projecthub/internal/services/user"
)

func RegisterProjectRoutes(r *router.Router, svc *services.Services) {
	// Create project
	r.POST("/api/projects", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		var body project.CreateProjectRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		created, err := svc.Project.Create(stdCtx, identity.ID, &body)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to create project", err)
			return
		}

		writeOK(ctx, stdCtx, "Project created successfully", created)
	}))

	// List owned and shared projects
	r.GET("/api/projects", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		projects, err := svc.Project.ListAccessible(stdCtx, identity.ID)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to list projects", err)
			return
		}

		writeOK(ctx, stdCtx, "Projects retrieved successfully", projects)
	}))

	r.GET("/api/projects/{id}", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeServiceError(ctx, stdCtx, "Invalid ID format", err)
			return
		}

		p, err := svc.Project.Get(stdCtx, id, identity.ID)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to get project", err)
			return
		}

		writeOK(ctx, stdCtx, "Project retrieved successfully", p)
	}))

	// Update project
	r.PUT("/api/projects/{id}", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeServiceError(ctx, stdCtx, "Invalid ID format", err)
			return
		}

		var body project.UpdateProjectRequest
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		updated, err := svc.Project.Update(stdCtx, id, identity.ID, &body)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to update project", err)
			return
		}

		writeOK(ctx, stdCtx, "Project updated successfully", updated)
	}))

	// Delete project, its memberships and invitations
	r.DELETE("/api/projects/{id}", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		id, err := pathParamUUID(ctx, "id")
		if err != nil {
			writeServiceError(ctx, stdCtx, "Invalid ID format", err)
			return
		}

		deleted, err := svc.Project.Delete(stdCtx, id, identity.ID)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to delete project", err)
			return
		}

		writeOK(ctx, stdCtx, "Project deleted successfully", deleted)
	}))
}
