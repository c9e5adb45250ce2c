package views

import (
	"context"

	"secure-video-access/configs"
	"secure-video-access/internal/apperrors"
	"secure-video-access/internal/cache"
	"secure-video-access/internal/directory"
	"secure-video-access/internal/models"
	"secure-video-access/internal/permissions"
	"secure-video-access/internal/privacy"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// RequestMeta carries per-request context the recorder may persist,
// subject to the privacy policy flags.
type RequestMeta struct {
	ClientIP  string
	UserAgent string
	Duration  *int
}

// Recorder validates a permission, appends the immutable log entry and
// folds the view into the count cache, all within one transaction so a
// caller can never observe an incremented counter without its log row.
type Recorder struct {
	db       *gorm.DB
	perms    *permissions.Store
	counts   *cache.CountCache
	hot      *cache.HotCache
	resolver directory.Resolver
	cfg      *configs.Config
	logger   zerolog.Logger
}

func NewRecorder(db *gorm.DB, perms *permissions.Store, counts *cache.CountCache, hot *cache.HotCache, resolver directory.Resolver, cfg *configs.Config, logger zerolog.Logger) *Recorder {
	return &Recorder{
		db:       db,
		perms:    perms,
		counts:   counts,
		hot:      hot,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger.With().Str("component", "view_recorder").Logger(),
	}
}

// RecordView records one view of postID by userID (0 for anonymous).
// Public videos log unconditionally with no permission reference. For
// protected videos the permission check, the allowance decrement and the
// log append are one atomic unit; a denied or lost-race recording leaves
// no trace. Returns whether the view was recorded.
func (r *Recorder) RecordView(ctx context.Context, postID, userID uint64, meta RequestMeta) (bool, error) {
	if postID == 0 {
		return false, apperrors.InvalidInput("post id is required")
	}
	exists, err := r.resolver.VideoExists(ctx, postID)
	if err != nil {
		return false, apperrors.Storage("failed to resolve video", err)
	}
	if !exists {
		return false, apperrors.NotFound("video not found")
	}

	public, err := r.resolver.VideoIsPublic(ctx, postID)
	if err != nil {
		return false, apperrors.Storage("failed to resolve video access", err)
	}

	if !public {
		allowed, err := r.perms.CanView(ctx, postID, userID)
		if err != nil {
			return false, err
		}
		if !allowed {
			return false, nil
		}
	}

	recorded := false
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var permissionID *uint64
		if !public {
			perm, err := r.perms.ConsumeView(ctx, tx, postID, userID)
			if err != nil {
				return err
			}
			if perm == nil {
				// Another recording spent the last allowance between the
				// check and the increment.
				return nil
			}
			permissionID = &perm.ID
		}

		entry := models.ViewLogEntry{
			PermissionID: permissionID,
			PostID:       postID,
			UserID:       userID,
			IPAddress:    r.policyIP(meta.ClientIP),
			UserAgent:    r.policyUserAgent(meta.UserAgent),
			ViewDuration: meta.Duration,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return apperrors.Storage("failed to append view log", err)
		}

		if err := r.counts.IncrementOnView(ctx, tx, postID, userID); err != nil {
			return err
		}
		recorded = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if !recorded {
		return false, nil
	}

	r.counts.Invalidate(ctx, postID)
	counts, err := r.counts.GetCounts(ctx, postID)
	if err == nil && r.hot != nil {
		r.hot.PublishUpdate(ctx, cache.CountUpdate{
			PostID:      postID,
			TotalViews:  counts.Total,
			UniqueViews: counts.Unique,
		})
	}

	r.logger.Info().
		Uint64("post_id", postID).
		Uint64("user_id", userID).
		Bool("public", public).
		Msg("view recorded")
	return true, nil
}

// ListRecent returns the newest log entries for a video, default 50.
func (r *Recorder) ListRecent(ctx context.Context, postID uint64, limit int) ([]models.ViewLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.ViewLogEntry
	result := r.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("viewed_at DESC").
		Limit(limit).
		Find(&entries)
	if result.Error != nil {
		return nil, apperrors.Storage("failed to list view history", result.Error)
	}
	return entries, nil
}

func (r *Recorder) policyIP(ip string) string {
	if !r.cfg.TrackIP {
		return ""
	}
	if r.cfg.AnonymizeIP {
		return privacy.AnonymizeIP(ip)
	}
	return ip
}

func (r *Recorder) policyUserAgent(ua string) string {
	if !r.cfg.TrackUserAgent {
		return ""
	}
	return ua
}
