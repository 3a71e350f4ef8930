package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	json "github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"

	"github.com/curaious/projecthub/internal/api/authenticator"
	"github.com/curaious/projecthub/internal/api/response"
	"github.com/curaious/projecthub/internal/apperrors"
	"github.com/curaious/projecthub/internal/perrors"
	"github.com/curaious/projecthub/internal/services"
	"github.com/curaious/projecthub/internal/services/user"
)

const accessTokenCookie = "access_token"

var errNoSession = apperrors.Kind(apperrors.ErrAuthenticationRequired, "sign in to continue")

// requestContext returns the context carrying the extracted trace parent. fasthttp does not
// provide a standard context, so we start from Background when none was set.
func requestContext(ctx *fasthttp.RequestCtx) context.Context {
	if traceCtx, ok := ctx.UserValue("traceCtx").(context.Context); ok && traceCtx != nil {
		return traceCtx
	}
	return context.Background()
}

func parseBody(ctx *fasthttp.RequestCtx, target any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return errors.New("request body is empty")
	}

	return json.Unmarshal(body, target)
}

func writeError(ctx *fasthttp.RequestCtx, stdCtx context.Context, message string, err error) {
	response.NewResponse[any](stdCtx, message, nil).WithError(err).Write(ctx)
}

// writeServiceError maps a service error onto its HTTP category. Client errors carry the
// service message; server errors only the fallback.
func writeServiceError(ctx *fasthttp.RequestCtx, stdCtx context.Context, fallback string, err error) {
	perr := toPErr(fallback, err)
	message := fallback
	if perr.HttpStatus() < http.StatusInternalServerError {
		message = err.Error()
	}
	writeError(ctx, stdCtx, message, perr)
}

func toPErr(msg string, err error) perrors.Err {
	var code perrors.ErrCode
	switch {
	case errors.Is(err, apperrors.ErrValidation):
		code = perrors.ErrCodeInvalidRequest
	case errors.Is(err, apperrors.ErrSelfInvite):
		code = perrors.ErrCodeSelfInvite
	case errors.Is(err, apperrors.ErrDuplicatePendingInvitation):
		code = perrors.ErrCodeDuplicatePendingInvitation
	case errors.Is(err, apperrors.ErrAlreadyMember):
		code = perrors.ErrCodeAlreadyMember
	case errors.Is(err, apperrors.ErrNotFound):
		code = perrors.ErrCodeNotFound
	case errors.Is(err, apperrors.ErrAuthenticationRequired):
		code = perrors.ErrCodeUnauthorized
	case errors.Is(err, apperrors.ErrForbidden):
		code = perrors.ErrCodeForbidden
	case errors.Is(err, apperrors.ErrConflict):
		code = perrors.ErrCodeConflict
	case errors.Is(err, apperrors.ErrRemoteFailure):
		code = perrors.ErrCodeRemoteFailure
	default:
		code = perrors.ErrCodeInternalServer
	}
	return perrors.New(code, msg, err).(perrors.Err)
}

func writeOK(ctx *fasthttp.RequestCtx, stdCtx context.Context, message string, data any) {
	response.NewResponse(stdCtx, message, data).Write(ctx)
}

func pathParam(ctx *fasthttp.RequestCtx, key string) (string, error) {
	val := ctx.UserValue(key)
	if val == nil {
		return "", fmt.Errorf("%s is required", key)
	}

	return fmt.Sprint(val), nil
}

func pathParamUUID(ctx *fasthttp.RequestCtx, key string) (uuid.UUID, error) {
	val, err := pathParam(ctx, key)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, apperrors.Validation(fmt.Sprintf("%s must be a valid id", key))
	}
	return id, nil
}

func requireStringQuery(ctx *fasthttp.RequestCtx, key string) (string, error) {
	raw := ctx.QueryArgs().Peek(key)
	if len(raw) == 0 {
		return "", apperrors.Validation(fmt.Sprintf("%s parameter is required", key))
	}

	return string(raw), nil
}

// currentIdentity resolves the caller from the claims the auth middleware stored. Tokens from
// the external issuer are mapped to a local identity by email.
func currentIdentity(ctx *fasthttp.RequestCtx, stdCtx context.Context, svc *services.Services) (*user.Identity, error) {
	claims, ok := ctx.UserValue("userClaims").(*authenticator.UserClaims)
	if !ok || claims == nil {
		return nil, errNoSession
	}

	if claims.External {
		return svc.User.EnsureExternal(stdCtx, claims.Email, claims.Name)
	}

	identity, err := svc.User.GetIdentity(stdCtx, claims.UserID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, errNoSession
		}
		return nil, err
	}
	return identity, nil
}

// withIdentity runs next with the caller's identity or writes an authentication error.
func withIdentity(svc *services.Services, next func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity)) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		identity, err := currentIdentity(ctx, stdCtx, svc)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to resolve session", err)
			return
		}
		next(ctx, stdCtx, identity)
	}
}

func setAccessCookie(ctx *fasthttp.RequestCtx, token string, expiresAt time.Time, secure bool) {
	var cookie fasthttp.Cookie
	cookie.SetKey(accessTokenCookie)
	cookie.SetValue(token)
	cookie.SetPath("/")
	cookie.SetHTTPOnly(true)
	cookie.SetSecure(secure)
	cookie.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	cookie.SetExpire(expiresAt)
	ctx.Response.Header.SetCookie(&cookie)
}

func clearAccessCookie(ctx *fasthttp.RequestCtx, secure bool) {
	setAccessCookie(ctx, "", time.Now().Add(-1*time.Hour), secure)
}
