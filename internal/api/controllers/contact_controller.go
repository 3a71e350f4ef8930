package controllers

import (
	"strings"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	"github.com/curaious/projecthub/internal/apperrors"
	"github.com/curaious/projecthub/internal/perrors"
	"github.com/curaious/projecthub/internal/services"
	"github.com/curaious/projecthub/internal/services/notification"
	"github.com/curaious/projecthub/internal/services/user"
)

const maxContactMessageLength = 5000

func RegisterContactRoutes(r *router.Router, svc *services.Services) {
	r.POST("/api/contact", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		var body notification.ContactNotice
		if err := parseBody(ctx, &body); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		if err := validateContact(&body); err != nil {
			writeServiceError(ctx, stdCtx, "Invalid contact message", err)
			return
		}

		res := svc.Dispatcher.SendContact(stdCtx, body)
		if !res.Success {
			writeError(ctx, stdCtx, "Failed to send message", perrors.New(perrors.ErrCodeRemoteFailure, "Failed to send message", apperrors.Kind(apperrors.ErrRemoteFailure, res.Error)))
			return
		}

		writeOK(ctx, stdCtx, "Message sent successfully", res)
	})
}

func validateContact(notice *notification.ContactNotice) error {
	notice.Name = strings.TrimSpace(notice.Name)
	notice.Email = user.NormalizeEmail(notice.Email)
	notice.Message = strings.TrimSpace(notice.Message)

	switch {
	case notice.Name == "":
		return apperrors.Validation("name is required")
	case !user.IsEmail(notice.Email):
		return apperrors.Validation("a valid email is required")
	case notice.Message == "":
		return apperrors.Validation("message is required")
	case len(notice.Message) > maxContactMessageLength:
		return apperrors.Validation("message is too long")
	}
	return nil
}
