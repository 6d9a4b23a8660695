package service

import (
	"context"
	"time"

	"github.com/keyrelay/migration-server/internal/logger"
	"github.com/keyrelay/migration-server/internal/model"
)

// Sweeper periodically expires sessions past their TTL and hard-deletes
// terminal sessions past the audit retention window, reaping their payload
// blobs. It never runs on the request path.
type Sweeper struct {
	sessionStore model.SessionStore
	storage      model.Storage
	interval     time.Duration
	logger       *logger.Logger
}

func NewSweeper(
	sessionStore model.SessionStore,
	storage model.Storage,
	interval time.Duration,
	logger *logger.Logger,
) *Sweeper {
	return &Sweeper{
		sessionStore: sessionStore,
		storage:      storage,
		interval:     interval,
		logger:       logger,
	}
}

// Run blocks until ctx is cancelled, sweeping once per interval.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep performs a single pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := time.Now()

	expired, err := s.sessionStore.MarkExpired(ctx, now)
	if err != nil {
		s.logger.Error("Sweeper: failed to mark expired sessions", "error", err)
	} else if expired > 0 {
		s.logger.Info("Sweeper: expired sessions", "count", expired)
	}

	objectKeys, err := s.sessionStore.DeleteTerminatedBefore(ctx, now.Add(-model.AuditRetention))
	if err != nil {
		s.logger.Error("Sweeper: failed to delete terminated sessions", "error", err)
		return
	}

	for _, key := range objectKeys {
		if err := s.storage.Delete(ctx, key); err != nil {
			s.logger.Error("Sweeper: failed to delete payload blob",
				"object_key", key,
				"error", err)
		}
	}

	if len(objectKeys) > 0 {
		s.logger.Info("Sweeper: reaped payload blobs", "count", len(objectKeys))
	}
}
