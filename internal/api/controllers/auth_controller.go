package controllers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"golang.org/x/oauth2"

	"github.com/curaious/projecthub/internal/api/authenticator"
	"github.com/curaious/projecthub/internal/apperrors"
	"github.com/curaious/projecthub/internal/perrors"
	"github.com/curaious/projecthub/internal/services"
	"github.com/curaious/projecthub/internal/services/user"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SessionResponse struct {
	Token     string         `json:"token"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      *user.Identity `json:"user"`
}

// AuthOptions configure the session endpoints.
type AuthOptions struct {
	AppBaseURL   string
	SecureCookie bool
}

func RegisterAuthRoutes(r *router.Router, svc *services.Services, auth *authenticator.Authenticator, opts AuthOptions) {
	issueSession := func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		token, expiresAt, err := auth.GenerateToken(identity.ID, identity.Email, identity.Label())
		if err != nil {
			writeError(ctx, stdCtx, "Failed to generate token", perrors.NewErrInternalServerError("Failed to generate token", err))
			return
		}

		setAccessCookie(ctx, token, expiresAt, opts.SecureCookie)
		writeOK(ctx, stdCtx, "success", SessionResponse{Token: token, ExpiresAt: expiresAt, User: identity})
	}

	r.GET("/api/auth/enabled", func(ctx *fasthttp.RequestCtx) {
		writeOK(ctx, requestContext(ctx), "success", map[string]any{
			"password_enabled": true,
			"oidc_enabled":     auth.OIDCEnabled(),
		})
	})

	r.POST("/api/auth/signup", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		var req user.SignUpRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		identity, err := svc.User.SignUp(stdCtx, &req)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to sign up", err)
			return
		}

		issueSession(ctx, stdCtx, identity)
	})

	// Login with email/password
	r.POST("/api/auth/login", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)

		var req LoginRequest
		if err := parseBody(ctx, &req); err != nil {
			writeError(ctx, stdCtx, "Invalid request body", perrors.NewErrInvalidRequest("Invalid request body", err))
			return
		}

		if req.Email == "" || req.Password == "" {
			writeServiceError(ctx, stdCtx, "Email and password are required", apperrors.Validation("email and password are required"))
			return
		}

		identity, err := svc.User.Authenticate(stdCtx, req.Email, req.Password)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to sign in", err)
			return
		}

		issueSession(ctx, stdCtx, identity)
	})

	r.POST("/api/auth/logout", func(ctx *fasthttp.RequestCtx) {
		clearAccessCookie(ctx, opts.SecureCookie)
		writeOK(ctx, requestContext(ctx), "Logged out successfully", nil)
	})

	r.POST("/api/auth/refresh", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		issueSession(ctx, stdCtx, identity)
	}))

	r.GET("/api/auth/me", withIdentity(svc, func(ctx *fasthttp.RequestCtx, stdCtx context.Context, identity *user.Identity) {
		writeOK(ctx, stdCtx, "success", identity)
	}))

	r.GET("/api/auth/oidc/login", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		if !auth.OIDCEnabled() {
			writeError(ctx, stdCtx, "OIDC login is not enabled", perrors.New(perrors.ErrCodeNotFound, "OIDC login is not enabled", errors.New("oidc disabled")))
			return
		}

		csrf := make([]byte, 16)
		if _, err := rand.Read(csrf); err != nil {
			writeError(ctx, stdCtx, "Failed to create state", perrors.NewErrInternalServerError("Failed to create state", err))
			return
		}

		state := authenticator.OAuthState{
			CSRF:      base64.RawURLEncoding.EncodeToString(csrf),
			Redirect:  safeRedirect(opts.AppBaseURL, string(ctx.QueryArgs().Peek("redirect"))),
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: time.Now().Add(5 * time.Minute).Unix(),
		}

		encodedState, err := auth.GetSignedState(state)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to create signed state", perrors.NewErrInternalServerError("Failed to create signed state", err))
			return
		}

		url := auth.AuthCodeURL(encodedState, oauth2.SetAuthURLParam("audience", auth.Audience()))
		ctx.Redirect(url, fasthttp.StatusTemporaryRedirect)
	})

	r.GET("/api/auth/oidc/callback", func(ctx *fasthttp.RequestCtx) {
		stdCtx := requestContext(ctx)
		if !auth.OIDCEnabled() {
			writeError(ctx, stdCtx, "OIDC login is not enabled", perrors.New(perrors.ErrCodeNotFound, "OIDC login is not enabled", errors.New("oidc disabled")))
			return
		}

		encodedState := ctx.URI().QueryArgs().Peek("state")
		code := ctx.URI().QueryArgs().Peek("code")
		if encodedState == nil || code == nil {
			writeError(ctx, stdCtx, "missing parameters", perrors.NewErrInvalidRequest("missing parameters", errors.New("missing parameters")))
			return
		}

		state, err := auth.VerifySignedState(string(encodedState))
		if err != nil {
			writeError(ctx, stdCtx, "Failed to decode state", perrors.NewErrInvalidRequest("Failed to decode state", err))
			return
		}

		token, err := auth.Exchange(stdCtx, string(code))
		if err != nil {
			writeError(ctx, stdCtx, "Failed to exchange token", perrors.New(perrors.ErrCodeRemoteFailure, "Failed to exchange token", err))
			return
		}

		idToken, err := auth.VerifyIDToken(stdCtx, token)
		if err != nil {
			writeError(ctx, stdCtx, "Failed to verify ID token", perrors.NewErrUnauthorized("Failed to verify ID token", err))
			return
		}

		var profile authenticator.IDTokenProfile
		if err := idToken.Claims(&profile); err != nil {
			writeError(ctx, stdCtx, "Failed to get claims", perrors.NewErrUnauthorized("Failed to get claims", err))
			return
		}
		if profile.EmailVerified != nil && !*profile.EmailVerified {
			writeError(ctx, stdCtx, "Email address is not verified", perrors.NewErrUnauthorized("Email address is not verified", errors.New("unverified email")))
			return
		}

		identity, err := svc.User.EnsureExternal(stdCtx, profile.Email, profile.Name)
		if err != nil {
			writeServiceError(ctx, stdCtx, "Failed to sign in", err)
			return
		}

		accessToken, expiresAt, err := auth.GenerateToken(identity.ID, identity.Email, identity.Label())
		if err != nil {
			writeError(ctx, stdCtx, "Failed to generate token", perrors.NewErrInternalServerError("Failed to generate token", err))
			return
		}

		setAccessCookie(ctx, accessToken, expiresAt, opts.SecureCookie)
		ctx.Redirect(state.Redirect, fasthttp.StatusFound)
	})
}

// safeRedirect only follows paths on the app itself.
func safeRedirect(appBaseURL, path string) string {
	if !strings.HasPrefix(path, "/") || strings.HasPrefix(path, "//") {
		path = "/"
	}
	return appBaseURL + path
}
