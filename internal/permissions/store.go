package permissions

import (
	"context"
	"errors"
	"time"

	"secure-video-access/internal/apperrors"
	"secure-video-access/internal/directory"
	"secure-video-access/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Store owns the permissions table: grants, revocations, view checks and
// the atomic view-allowance consumption used by the recorder.
type Store struct {
	db       *gorm.DB
	resolver directory.Resolver
	logger   zerolog.Logger
}

func NewStore(db *gorm.DB, resolver directory.Resolver, logger zerolog.Logger) *Store {
	return &Store{db: db, resolver: resolver, logger: logger.With().Str("component", "permissions").Logger()}
}

// Grant creates a permission for (postID, userID) or, when one already
// exists, replaces it in place: views_used back to 0, status back to
// active. Re-granting restarts the allowance, it never adds to it.
func (s *Store) Grant(ctx context.Context, postID, userID uint64, viewLimit *int, grantedBy uint64, expiresAt *time.Time) (uint64, error) {
	if postID == 0 || userID == 0 {
		return 0, apperrors.InvalidInput("post id and user id are required")
	}
	if viewLimit != nil && *viewLimit < 0 {
		return 0, apperrors.InvalidInput("view limit must not be negative")
	}

	exists, err := s.resolver.VideoExists(ctx, postID)
	if err != nil {
		return 0, apperrors.Storage("failed to resolve video", err)
	}
	if !exists {
		return 0, apperrors.NotFound("video not found")
	}
	exists, err = s.resolver.UserExists(ctx, userID)
	if err != nil {
		return 0, apperrors.Storage("failed to resolve user", err)
	}
	if !exists {
		return 0, apperrors.NotFound("user not found")
	}

	var permissionID uint64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Permission
		result := tx.Where("post_id = ? AND user_id = ?", postID, userID).First(&existing)
		if result.Error == nil {
			updates := map[string]interface{}{
				"view_limit": viewLimit,
				"views_used": 0,
				"granted_by": grantedBy,
				"expires_at": expiresAt,
				"status":     models.PermissionActive,
			}
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return err
			}
			permissionID = existing.ID
			return nil
		}
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return result.Error
		}

		perm := models.Permission{
			PostID:    postID,
			UserID:    userID,
			ViewLimit: viewLimit,
			ViewsUsed: 0,
			GrantedBy: grantedBy,
			ExpiresAt: expiresAt,
			Status:    models.PermissionActive,
		}
		if err := tx.Create(&perm).Error; err != nil {
			return err
		}
		permissionID = perm.ID
		return nil
	})
	if err != nil {
		return 0, apperrors.Storage("failed to grant permission", err)
	}

	s.logger.Info().
		Uint64("post_id", postID).
		Uint64("user_id", userID).
		Uint64("granted_by", grantedBy).
		Uint64("permission_id", permissionID).
		Msg("permission granted")
	return permissionID, nil
}

// Revoke hard-deletes the permission for the pair. It returns false when
// no row existed. Authorization belongs to the caller, not to the store.
func (s *Store) Revoke(ctx context.Context, postID, userID uint64) (bool, error) {
	if postID == 0 || userID == 0 {
		return false, apperrors.InvalidInput("post id and user id are required")
	}
	result := s.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&models.Permission{})
	if result.Error != nil {
		return false, apperrors.Storage("failed to revoke permission", result.Error)
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	s.logger.Info().Uint64("post_id", postID).Uint64("user_id", userID).Msg("permission revoked")
	return true, nil
}

// CanView decides whether userID may view postID right now. Admins always
// may; anonymous subjects never may. A grant past its expiry is moved to
// the expired state as an explicit, audited side effect of the check.
func (s *Store) CanView(ctx context.Context, postID, userID uint64) (bool, error) {
	admin, err := s.resolver.IsAdmin(ctx, userID)
	if err != nil {
		return false, apperrors.Storage("failed to resolve admin override", err)
	}
	if admin {
		return true, nil
	}
	if userID == 0 {
		return false, nil
	}

	perm, err := s.activePermission(ctx, s.db, postID, userID)
	if err != nil {
		return false, err
	}
	if perm == nil {
		return false, nil
	}

	if perm.ExpiresAt != nil && time.Now().After(*perm.ExpiresAt) {
		if err := s.expire(ctx, perm); err != nil {
			return false, err
		}
		return false, nil
	}

	if perm.ViewLimit == nil {
		return true, nil
	}
	return perm.ViewsUsed < *perm.ViewLimit, nil
}

// expire performs the active -> expired transition.
func (s *Store) expire(ctx context.Context, perm *models.Permission) error {
	result := s.db.WithContext(ctx).
		Model(&models.Permission{}).
		Where("id = ? AND status = ?", perm.ID, models.PermissionActive).
		Update("status", models.PermissionExpired)
	if result.Error != nil {
		return apperrors.Storage("failed to expire permission", result.Error)
	}
	s.logger.Info().
		Uint64("permission_id", perm.ID).
		Uint64("post_id", perm.PostID).
		Uint64("user_id", perm.UserID).
		Time("expires_at", *perm.ExpiresAt).
		Msg("permission expired")
	return nil
}

// RemainingViews reports how many successful recordings are left. Nil
// means unlimited, or that no active permission exists.
func (s *Store) RemainingViews(ctx context.Context, postID, userID uint64) (*int, error) {
	perm, err := s.activePermission(ctx, s.db, postID, userID)
	if err != nil {
		return nil, err
	}
	if perm == nil || perm.ViewLimit == nil {
		return nil, nil
	}
	remaining := *perm.ViewLimit - perm.ViewsUsed
	if remaining < 0 {
		remaining = 0
	}
	return &remaining, nil
}

// ListForVideo returns every permission for a video, most recent grant
// first. Drives audit and listing UIs.
func (s *Store) ListForVideo(ctx context.Context, postID uint64) ([]models.Permission, error) {
	var perms []models.Permission
	result := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("granted_at DESC").
		Find(&perms)
	if result.Error != nil {
		return nil, apperrors.Storage("failed to list permissions", result.Error)
	}
	return perms, nil
}

// ListForUser returns every permission held by a user, most recent first.
func (s *Store) ListForUser(ctx context.Context, userID uint64) ([]models.Permission, error) {
	var perms []models.Permission
	result := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("granted_at DESC").
		Find(&perms)
	if result.Error != nil {
		return nil, apperrors.Storage("failed to list permissions", result.Error)
	}
	return perms, nil
}

// ListAccessibleVideos returns the ids of videos the user holds an active,
// non-expired permission for.
func (s *Store) ListAccessibleVideos(ctx context.Context, userID uint64) ([]uint64, error) {
	var postIDs []uint64
	result := s.db.WithContext(ctx).
		Model(&models.Permission{}).
		Where("user_id = ? AND status = ? AND (expires_at IS NULL OR expires_at > ?)",
			userID, models.PermissionActive, time.Now()).
		Pluck("post_id", &postIDs)
	if result.Error != nil {
		return nil, apperrors.Storage("failed to list accessible videos", result.Error)
	}
	return postIDs, nil
}

// ConsumeView atomically spends one view of the pair's active permission:
// the increment only lands when the permission is unexpired and still has
// allowance, so two concurrent recordings can never overshoot the limit.
// Returns the permission after the increment, or nil when nothing could
// be consumed. Runs on the handle it is given so the recorder can place
// it inside a transaction.
func (s *Store) ConsumeView(ctx context.Context, tx *gorm.DB, postID, userID uint64) (*models.Permission, error) {
	result := tx.WithContext(ctx).
		Model(&models.Permission{}).
		Where("post_id = ? AND user_id = ? AND status = ?", postID, userID, models.PermissionActive).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Where("view_limit IS NULL OR views_used < view_limit").
		Update("views_used", gorm.Expr("views_used + 1"))
	if result.Error != nil {
		return nil, apperrors.Storage("failed to consume view", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}

	var perm models.Permission
	if err := tx.WithContext(ctx).Where("post_id = ? AND user_id = ?", postID, userID).First(&perm).Error; err != nil {
		return nil, apperrors.Storage("failed to load consumed permission", err)
	}
	return &perm, nil
}

// activePermission loads the pair's active row, nil when absent.
func (s *Store) activePermission(ctx context.Context, tx *gorm.DB, postID, userID uint64) (*models.Permission, error) {
	var perm models.Permission
	result := tx.WithContext(ctx).
		Where("post_id = ? AND user_id = ? AND status = ?", postID, userID, models.PermissionActive).
		First(&perm)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, apperrors.Storage("failed to load permission", result.Error)
	}
	return &perm, nil
}
