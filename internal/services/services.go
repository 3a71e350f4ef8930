package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/curaious/projecthub/internal/config"
	"github.com/curaious/projecthub/internal/services/membership"
	"github.com/curaious/projecthub/internal/services/notification"
	"github.com/curaious/projecthub/internal/services/project"
	"github.com/curaious/projecthub/internal/services/user"
)

type Services struct {
	DB         *sqlx.DB
	User       *user.UserService
	Project    *project.ProjectService
	Membership *membership.MembershipService
	Dispatcher *notification.Dispatcher

	limiter *notification.RedisRateLimiter
}

// NewServices wires every service on top of dbconn.
func NewServices(conf *config.Config, dbconn *sqlx.DB) *Services {
	svc := &Services{DB: dbconn}

	var sender notification.EmailSender
	if conf.EmailEnabled() {
		sender = notification.NewEmailJSSender(notification.EmailJSConfig{
			URL:        conf.EMAIL_API_URL,
			ServiceID:  conf.EMAIL_SERVICE_ID,
			PublicKey:  conf.EMAIL_PUBLIC_KEY,
			PrivateKey: conf.EMAIL_PRIVATE_KEY,
			Timeout:    conf.EMAIL_DISPATCH_TIMEOUT,
		})
	} else {
		slog.Warn("Email delivery is not configured, invitations will be created without emails")
	}

	var limiter notification.RateLimiter
	if conf.REDIS_ADDR != "" {
		if l := newRateLimiter(conf); l != nil {
			svc.limiter = l
			limiter = l
		}
	}

	svc.Dispatcher = notification.NewDispatcher(notification.DispatcherConfig{
		Sender:  sender,
		Limiter: limiter,
		Templates: notification.Templates{
			Invitation: conf.EMAIL_INVITE_TEMPLATE_ID,
			Contact:    conf.EMAIL_CONTACT_TEMPLATE_ID,
		},
		AppBaseURL:       conf.APP_BASE_URL,
		ContactRecipient: conf.EMAIL_CONTACT_RECIPIENT,
	})

	svc.User = user.NewUserService(user.NewUserRepo(dbconn))
	svc.Project = project.NewProjectService(project.NewProjectRepo(dbconn))
	svc.Membership = membership.NewMembershipService(
		membership.NewMembershipRepo(dbconn),
		svc.User,
		svc.Dispatcher,
		membership.Options{
			DispatchTimeout:   conf.EMAIL_DISPATCH_TIMEOUT,
			RetainFormerOwner: conf.TRANSFER_RETAIN_FORMER_OWNER,
		},
	)

	return svc
}

func newRateLimiter(conf *config.Config) *notification.RedisRateLimiter {
	window, err := notification.ParseRateLimitUnit(conf.INVITE_EMAIL_RATE_UNIT)
	if err != nil {
		slog.Warn("Invalid INVITE_EMAIL_RATE_UNIT, invitation emails are not rate limited", slog.Any("error", err))
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     conf.REDIS_ADDR,
		Password: conf.REDIS_PASSWORD,
		DB:       conf.REDIS_DB,
	})
	limiter := notification.NewRedisRateLimiter(client, "", conf.INVITE_EMAIL_RATE_LIMIT, window)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := limiter.Ping(ctx); err != nil {
		// The limiter fails open per call, so an unreachable Redis is only worth a warning.
		slog.Warn("Redis is unreachable, invitation email rate limit will fail open", slog.Any("error", err))
	} else {
		slog.Info("Invitation email rate limit enabled",
			slog.Int("limit", conf.INVITE_EMAIL_RATE_LIMIT),
			slog.String("unit", conf.INVITE_EMAIL_RATE_UNIT))
	}

	return limiter
}

// Ping checks the database and, when configured, Redis.
func (s *Services) Ping(ctx context.Context) map[string]string {
	status := map[string]string{"database": "ok"}
	if err := s.DB.PingContext(ctx); err != nil {
		status["database"] = err.Error()
	}
	if s.limiter != nil {
		status["redis"] = "ok"
		if err := s.limiter.Ping(ctx); err != nil {
			status["redis"] = err.Error()
		}
	}
	return status
}

// Close releases connections held by the services.
func (s *Services) Close() {
	if s.limiter != nil {
		if err := s.limiter.Close(); err != nil {
			slog.Error("Failed to close redis client", slog.Any("error", err))
		}
	}
	if err := s.DB.Close(); err != nil {
		slog.Error("Failed to close database", slog.Any("error", err))
	}
}
