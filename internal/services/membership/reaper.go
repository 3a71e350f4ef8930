package membership

import (
	"context"
	"log/slog"
	"time"
)

// RunReaper deletes long-expired invitations every interval until ctx is done.
// A non-positive interval disables it.
func (s *MembershipService) RunReaper(ctx context.Context, interval, retention time.Duration) {
	if interval <= 0 {
		return
	}

	slog.Info("Invitation reaper started", slog.Duration("interval", interval), slog.Duration("retention", retention))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Invitation reaper stopped")
			return
		case <-ticker.C:
			n, err := s.ReapExpired(ctx, retention)
			if err != nil {
				slog.ErrorContext(ctx, "Invitation reaper failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				slog.InfoContext(ctx, "Reaped expired invitations", slog.Int64("count", n))
			}
		}
	}
}
