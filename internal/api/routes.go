package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/propagation"

	"github.com/curaious/projecthub/internal/api/controllers"
	"github.com/curaious/projecthub/internal/api/response"
	"github.com/curaious/projecthub/internal/perrors"
)

var tracePropagator = propagation.TraceContext{}

var publicRoutes = map[string]bool{
	"/api/health":             true,
	"/api/auth/enabled":       true,
	"/api/auth/signup":        true,
	"/api/auth/login":         true,
	"/api/auth/logout":        true,
	"/api/auth/oidc/login":    true,
	"/api/auth/oidc/callback": true,
	"/api/contact":            true,
}

func (s *Server) initRoutes() fasthttp.RequestHandler {
	r := router.New()

	controllers.RegisterHealthRoutes(r, s.services)
	controllers.RegisterAuthRoutes(r, s.services, s.auth, controllers.AuthOptions{
		AppBaseURL:   s.conf.APP_BASE_URL,
		SecureCookie: s.conf.COOKIE_SECURE,
	})
	controllers.RegisterProfileRoutes(r, s.services)
	controllers.RegisterProjectRoutes(r, s.services)
	controllers.RegisterMembershipRoutes(r, s.services)
	controllers.RegisterContactRoutes(r, s.services)

	return s.withMiddlewares(r.Handler)
}

func (s *Server) withMiddlewares(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		s.applyCORS(ctx)
		if string(ctx.Method()) == fasthttp.MethodOptions {
			ctx.SetStatusCode(fasthttp.StatusNoContent)
			return
		}

		start := time.Now()
		method := string(ctx.Method())
		path := string(ctx.Path())
		slog.Debug("Started processing", slog.String("method", method), slog.String("path", path))

		h := http.Header{}
		ctx.Request.Header.VisitAll(func(k, v []byte) {
			h[string(k)] = []string{string(v)}
		})
		traceCtx := tracePropagator.Extract(ctx, propagation.HeaderCarrier(h))
		ctx.SetUserValue("traceCtx", traceCtx)

		// Claims are attached whenever a token is present. Protected routes also require one.
		if accessToken := bearerToken(ctx); accessToken != "" {
			claims, err := s.auth.VerifyAccessToken(traceCtx, accessToken)
			if err == nil {
				ctx.SetUserValue("userClaims", claims)
			} else if !publicRoutes[path] {
				writeUnauthorized(ctx, "Invalid or expired session", err)
				return
			}
		} else if !publicRoutes[path] {
			writeUnauthorized(ctx, "Sign in to continue", errNoToken)
			return
		}

		next(ctx)

		slog.Info("Finished processing",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", ctx.Response.StatusCode()),
			slog.Duration("duration", time.Since(start)))
	}
}

var errNoToken = errors.New("missing access token")

// bearerToken reads the Authorization header and falls back to the session cookie.
func bearerToken(ctx *fasthttp.RequestCtx) string {
	header := string(ctx.Request.Header.Peek("Authorization"))
	if token, ok := strings.CutPrefix(header, "Bearer "); ok && token != "" {
		return token
	}
	return string(ctx.Request.Header.Cookie("access_token"))
}

func writeUnauthorized(ctx *fasthttp.RequestCtx, message string, err error) {
	stdCtx, ok := ctx.UserValue("traceCtx").(context.Context)
	if !ok {
		stdCtx = context.Background()
	}
	response.NewResponse[any](stdCtx, message, nil).WithError(perrors.NewErrUnauthorized(message, err)).Write(ctx)
}

func (s *Server) applyCORS(ctx *fasthttp.RequestCtx) {
	headers := &ctx.Response.Header
	origin := string(ctx.Request.Header.Peek("Origin"))
	if origin == "" {
		return
	}
	if origin != s.conf.APP_BASE_URL && !s.allowedOrigins[origin] {
		return
	}

	headers.Set("Access-Control-Allow-Origin", origin)
	headers.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS,PATCH")
	headers.Set("Access-Control-Allow-Headers", s.allowedHeaders)
	headers.Set("Access-Control-Allow-Credentials", "true")
	headers.Add("Vary", "Origin")
}
