package lifecycle

import (
	"context"
	"time"

	"secure-video-access/configs"
	"secure-video-access/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Sweeper deletes view-log rows older than the configured retention
// period. It runs out-of-band on a fixed interval, like the rest of the
// lifecycle operations.
type Sweeper struct {
	db     *gorm.DB
	cfg    *configs.Config
	logger zerolog.Logger
	done   chan struct{}
}

func NewSweeper(db *gorm.DB, cfg *configs.Config, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		db:     db,
		cfg:    cfg,
		logger: logger.With().Str("component", "retention").Logger(),
		done:   make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is done or Stop is called. A
// disabled policy makes Start a no-op.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.cfg.AutoCleanupEnabled || s.cfg.LogRetentionDays <= 0 {
		s.logger.Info().Msg("automatic cleanup disabled")
		return
	}

	go func() {
		ticker := time.NewTicker(s.cfg.CleanupInterval)
		defer ticker.Stop()

		// One sweep right away so a long interval does not delay the
		// first cleanup after a restart.
		s.sweep(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
				s.sweep(ctx)
			}
		}
	}()
}

func (s *Sweeper) Stop() {
	close(s.done)
}

// Sweep removes expired log rows once and reports how many went away.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -s.cfg.LogRetentionDays)
	result := s.db.WithContext(ctx).
		Where("viewed_at < ?", cutoff).
		Delete(&models.ViewLogEntry{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (s *Sweeper) sweep(ctx context.Context) {
	removed, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("retention sweep failed")
		return
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Int("retention_days", s.cfg.LogRetentionDays).Msg("retention sweep completed")
	}
}
