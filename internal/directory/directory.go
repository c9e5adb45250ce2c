package directory

import (
	"context"
	"errors"
	"fmt"

	"secure-video-access/internal/models"

	"gorm.io/gorm"
)

// VideoResolver answers existence and public-access queries against the
// video registry. The registry itself (upload, metadata, taxonomy) is an
// external collaborator; the engine only reads it.
type VideoResolver interface {
	VideoExists(ctx context.Context, postID uint64) (bool, error)
	VideoIsPublic(ctx context.Context, postID uint64) (bool, error)
	VideoTitle(ctx context.Context, postID uint64) (string, error)
}

// UserResolver answers identity queries. User management is delegated to
// an external identity provider queried by opaque id.
type UserResolver interface {
	UserExists(ctx context.Context, userID uint64) (bool, error)
	IsAdmin(ctx context.Context, userID uint64) (bool, error)
	UserSummary(ctx context.Context, userID uint64) (*models.User, error)
}

// Resolver bundles both read-only lookups.
type Resolver interface {
	VideoResolver
	UserResolver
}

// Directory is the gorm-backed Resolver over the mirrored registry tables.
type Directory struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) VideoExists(ctx context.Context, postID uint64) (bool, error) {
	var count int64
	result := d.db.WithContext(ctx).Model(&models.Video{}).Where("id = ?", postID).Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check video existence: %w", result.Error)
	}
	return count > 0, nil
}

func (d *Directory) VideoIsPublic(ctx context.Context, postID uint64) (bool, error) {
	var video models.Video
	result := d.db.WithContext(ctx).Select("public_access").First(&video, postID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read video access flag: %w", result.Error)
	}
	return video.PublicAccess, nil
}

func (d *Directory) VideoTitle(ctx context.Context, postID uint64) (string, error) {
	var video models.Video
	result := d.db.WithContext(ctx).Select("title").First(&video, postID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read video title: %w", result.Error)
	}
	return video.Title, nil
}

func (d *Directory) UserExists(ctx context.Context, userID uint64) (bool, error) {
	var count int64
	result := d.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to check user existence: %w", result.Error)
	}
	return count > 0, nil
}

func (d *Directory) IsAdmin(ctx context.Context, userID uint64) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	var user models.User
	result := d.db.WithContext(ctx).Select("admin").First(&user, userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read admin flag: %w", result.Error)
	}
	return user.Admin, nil
}

func (d *Directory) UserSummary(ctx context.Context, userID uint64) (*models.User, error) {
	var user models.User
	result := d.db.WithContext(ctx).First(&user, userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load user: %w", result.Error)
	}
	return &user, nil
}
