package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/branchbase/cli-auth-server/internal/config"
	"github.com/branchbase/cli-auth-server/internal/repository"
)

// CleanupJob garbage-collects expired device sessions and long-revoked
// client keys. Protocol correctness never depends on it: expiry is enforced
// on every read and write path from the row's expires_at.
type CleanupJob struct {
	sessionRepo repository.DeviceSessionRepository
	keyRepo     repository.PublishableClientKeyRepository
	interval    time.Duration
	done        chan struct{}
}

func NewCleanupJob(
	sessionRepo repository.DeviceSessionRepository,
	keyRepo repository.PublishableClientKeyRepository,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		sessionRepo: sessionRepo,
		keyRepo:     keyRepo,
		interval:    interval,
		done:        make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j.runCleanup(ctx, "device sessions", j.sessionRepo.DeleteExpired)
	j.runCleanup(ctx, "revoked client keys", func(ctx context.Context) (int64, error) {
		return j.keyRepo.DeleteRevoked(ctx, config.RevokedKeyRetention)
	})
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
