package lifecycle

import (
	"context"
	"time"

	"github.com/biotrack/biotrack/internal/logger"
)

// StartAutoSync runs Sync every interval until ctx is done. The returned
// channel is closed once the loop has exited. A non-positive interval disables
// the loop and returns an already closed channel.
func (s *Service) StartAutoSync(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		s.log.Info("automatic sync disabled")
		close(done)
		return done
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		s.log.Info("automatic sync started", logger.Duration("interval", interval))
		for {
			select {
			case <-ctx.Done():
				s.log.Info("automatic sync stopped")
				return
			case <-ticker.C:
				if _, err := s.Sync(ctx); err != nil && ctx.Err() == nil {
					s.log.Warn("automatic sync failed", logger.Error(err))
				}
			}
		}
	}()
	return done
}
