package api

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/curaious/projecthub/internal/api/authenticator"
	"github.com/curaious/projecthub/internal/config"
	"github.com/curaious/projecthub/internal/services"
)

// Server is the HTTP server exposing the project workspace API.
type Server struct {
	srv      *fasthttp.Server
	addr     string
	conf     *config.Config
	services *services.Services
	auth     *authenticator.Authenticator

	allowedOrigins map[string]bool
	allowedHeaders string
}

// New creates a server on top of already wired services.
func New(conf *config.Config, svc *services.Services, auth *authenticator.Authenticator) *Server {
	s := &Server{
		srv: &fasthttp.Server{
			Name:         "projecthub",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		addr:           conf.HTTP_ADDR,
		conf:           conf,
		services:       svc,
		auth:           auth,
		allowedOrigins: conf.AllowedOrigins(),
		allowedHeaders: conf.ALLOWED_HEADERS,
	}

	s.srv.Handler = s.initRoutes()

	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() fasthttp.RequestHandler {
	return s.srv.Handler
}

// Start runs the server and the invitation reaper until an interrupt arrives.
func (s *Server) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if s.conf.INVITATION_REAP_INTERVAL > 0 {
		go s.services.Membership.RunReaper(ctx, s.conf.INVITATION_REAP_INTERVAL, s.conf.INVITATION_RETENTION)
	}

	slog.Info("Starting REST server...", slog.String("addr", s.addr))
	go func() {
		if err := s.srv.ListenAndServe(s.addr); err != nil {
			slog.Error("Server shutdown", slog.Any("error", err))
		}
	}()
	slog.Info("REST server started!")

	// Listen for OS interrupts
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	// Block till we receive an interrupt
	<-c
	slog.Info("Received interrupt...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer shutdownCancel()

	s.shutdown(shutdownCtx)
}

func (s *Server) shutdown(ctx context.Context) {
	slog.Info("Gracefully shutting down REST server...")
	if err := s.srv.ShutdownWithContext(ctx); err != nil {
		slog.Error("Failed to shutdown the server", slog.Any("error", err))
	}
	s.services.Close()
	slog.Info("REST server shutdown!")
}
