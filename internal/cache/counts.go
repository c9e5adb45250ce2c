package cache

import (
	"context"
	"errors"
	"fmt"

	"secure-video-access/internal/apperrors"
	"secure-video-access/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Counts is the per-video aggregate served to callers.
type Counts struct {
	Total  int64 `json:"total_views"`
	Unique int64 `json:"unique_views"`
}

// CountCache maintains the derived view_cache table. The view log stays
// the source of truth; every value here can be rebuilt from it.
type CountCache struct {
	db     *gorm.DB
	hot    *HotCache
	logger zerolog.Logger
}

func NewCountCache(db *gorm.DB, hot *HotCache, logger zerolog.Logger) *CountCache {
	return &CountCache{db: db, hot: hot, logger: logger.With().Str("component", "view_cache").Logger()}
}

func hotKey(postID uint64) string {
	return fmt.Sprintf("views:counts:%d", postID)
}

// GetCounts returns the cached aggregate, recomputing from the log on a
// miss. A miss is never an error.
func (c *CountCache) GetCounts(ctx context.Context, postID uint64) (Counts, error) {
	if c.hot != nil {
		var counts Counts
		if found, err := c.hot.Get(ctx, hotKey(postID), &counts); found && err == nil {
			return counts, nil
		}
	}

	var row models.ViewCache
	result := c.db.WithContext(ctx).First(&row, postID)
	if result.Error == nil {
		counts := Counts{Total: row.TotalViews, Unique: row.UniqueViews}
		c.storeHot(ctx, postID, counts)
		return counts, nil
	}
	if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return Counts{}, apperrors.Storage("failed to read view cache", result.Error)
	}

	return c.Rebuild(ctx, postID)
}

// Rebuild recomputes the aggregate from the log and replaces the cache
// row. It is idempotent: running it any number of times yields the same
// row as running it once.
func (c *CountCache) Rebuild(ctx context.Context, postID uint64) (Counts, error) {
	counts, err := c.computeFromLog(ctx, c.db, postID)
	if err != nil {
		return Counts{}, err
	}

	row := models.ViewCache{PostID: postID, TotalViews: counts.Total, UniqueViews: counts.Unique}
	result := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "post_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"total_views", "unique_views", "last_calculated"}),
	}).Create(&row)
	if result.Error != nil {
		return Counts{}, apperrors.Storage("failed to store view cache", result.Error)
	}

	c.storeHot(ctx, postID, counts)
	c.logger.Debug().Uint64("post_id", postID).Int64("total", counts.Total).Int64("unique", counts.Unique).Msg("cache rebuilt from log")
	return counts, nil
}

// IncrementOnView folds one just-written log row into the cache. It must
// run on the same transaction as the log insert so the uniqueness check
// and the counter bump are one atomic unit: the pair count is taken after
// the insert, and exactly 1 means this was the subject's first view.
func (c *CountCache) IncrementOnView(ctx context.Context, tx *gorm.DB, postID, userID uint64) error {
	err := tx.WithContext(ctx).Exec(
		"INSERT INTO view_cache (post_id, total_views, unique_views) VALUES (?, 1, 0) "+
			"ON DUPLICATE KEY UPDATE total_views = total_views + 1",
		postID,
	).Error
	if err != nil {
		return apperrors.Storage("failed to increment total views", err)
	}

	if userID == 0 {
		return nil
	}

	var pairViews int64
	err = tx.WithContext(ctx).Model(&models.ViewLogEntry{}).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Count(&pairViews).Error
	if err != nil {
		return apperrors.Storage("failed to count subject views", err)
	}
	if pairViews != 1 {
		return nil
	}

	err = tx.WithContext(ctx).Model(&models.ViewCache{}).
		Where("post_id = ?", postID).
		Update("unique_views", gorm.Expr("unique_views + 1")).Error
	if err != nil {
		return apperrors.Storage("failed to increment unique views", err)
	}
	return nil
}

// Reset irreversibly deletes every log entry and the cache row for a
// video. Used for administrative count resets.
func (c *CountCache) Reset(ctx context.Context, postID uint64) error {
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", postID).Delete(&models.ViewLogEntry{}).Error; err != nil {
			return err
		}
		return tx.Where("post_id = ?", postID).Delete(&models.ViewCache{}).Error
	})
	if err != nil {
		return apperrors.Storage("failed to reset view counts", err)
	}

	c.Invalidate(ctx, postID)
	c.logger.Info().Uint64("post_id", postID).Msg("view counts reset")
	return nil
}

// Invalidate drops the hot-layer entry so the next read goes to the
// database.
func (c *CountCache) Invalidate(ctx context.Context, postID uint64) {
	if c.hot != nil {
		if err := c.hot.Delete(ctx, hotKey(postID)); err != nil {
			c.logger.Warn().Err(err).Uint64("post_id", postID).Msg("hot cache invalidation failed")
		}
	}
}

func (c *CountCache) storeHot(ctx context.Context, postID uint64, counts Counts) {
	if c.hot == nil {
		return
	}
	if err := c.hot.Set(ctx, hotKey(postID), counts); err != nil {
		c.logger.Warn().Err(err).Uint64("post_id", postID).Msg("hot cache store failed")
	}
}

func (c *CountCache) computeFromLog(ctx context.Context, tx *gorm.DB, postID uint64) (Counts, error) {
	var counts Counts
	err := tx.WithContext(ctx).Model(&models.ViewLogEntry{}).
		Where("post_id = ?", postID).
		Count(&counts.Total).Error
	if err != nil {
		return Counts{}, apperrors.Storage("failed to count views", err)
	}

	err = tx.WithContext(ctx).Model(&models.ViewLogEntry{}).
		Where("post_id = ? AND user_id > 0", postID).
		Distinct("user_id").
		Count(&counts.Unique).Error
	if err != nil {
		return Counts{}, apperrors.Storage("failed to count unique views", err)
	}
	return counts, nil
}
