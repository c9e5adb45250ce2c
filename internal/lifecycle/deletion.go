package lifecycle

import (
	"context"

	"secure-video-access/internal/apperrors"
	"secure-video-access/internal/models"
	"secure-video-access/internal/privacy"

	"gorm.io/gorm"
)

// Outcome messages returned to the caller alongside the ack.
const (
	outcomeDeleted    = "Your data has been deleted successfully."
	outcomeAnonymized = "Your data has been anonymized successfully."
)

// Delete removes or anonymizes everything stored about a subject:
// permission rows first, then view-log rows, then one audit entry. The
// three steps run in a single transaction, so a failure in any of them
// leaves the store untouched. Returns a human-readable outcome.
func (m *Manager) Delete(ctx context.Context, subjectID, requesterID uint64, anonymizeOnly bool, originIP string) (string, error) {
	if !m.cfg.AllowDataDeletion {
		return "", apperrors.FeatureDisabled("data deletion is not enabled")
	}
	if err := m.authorize(ctx, subjectID, requesterID, "delete"); err != nil {
		return "", err
	}

	exists, err := m.resolver.UserExists(ctx, subjectID)
	if err != nil {
		return "", apperrors.Storage("failed to resolve user", err)
	}
	if !exists {
		return "", apperrors.NotFound("user not found")
	}

	deletionType := models.DeletionDelete
	if anonymizeOnly {
		deletionType = models.DeletionAnonymize
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if anonymizeOnly {
			if err := m.anonymizePermissions(tx, subjectID); err != nil {
				return err
			}
			if err := m.anonymizeViewLogs(tx, subjectID); err != nil {
				return err
			}
		} else {
			if err := m.deletePermissions(tx, subjectID); err != nil {
				return err
			}
			if err := m.deleteViewLogs(tx, subjectID); err != nil {
				return err
			}
		}

		audit := models.DeletionLogEntry{
			UserID:       subjectID,
			DeletionType: deletionType,
			DeletedBy:    requesterID,
			IPAddress:    originIP,
		}
		return tx.Create(&audit).Error
	})
	if err != nil {
		return "", apperrors.Storage("data deletion failed", err)
	}

	m.logger.Info().
		Uint64("user_id", subjectID).
		Uint64("deleted_by", requesterID).
		Str("deletion_type", string(deletionType)).
		Msg("user data lifecycle operation completed")

	if anonymizeOnly {
		return outcomeAnonymized, nil
	}
	return outcomeDeleted, nil
}

func (m *Manager) deletePermissions(tx *gorm.DB, userID uint64) error {
	return tx.Where("user_id = ?", userID).Delete(&models.Permission{}).Error
}

// anonymizePermissions zeroes the subject linkage but keeps the rows.
func (m *Manager) anonymizePermissions(tx *gorm.DB, userID uint64) error {
	return tx.Model(&models.Permission{}).
		Where("user_id = ?", userID).
		Update("user_id", 0).Error
}

func (m *Manager) deleteViewLogs(tx *gorm.DB, userID uint64) error {
	return tx.Where("user_id = ?", userID).Delete(&models.ViewLogEntry{}).Error
}

// anonymizeViewLogs is the only sanctioned in-place mutation of the view
// log: subject zeroed, IP and user agent replaced by the sentinel.
func (m *Manager) anonymizeViewLogs(tx *gorm.DB, userID uint64) error {
	return tx.Model(&models.ViewLogEntry{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"user_id":    0,
			"ip_address": privacy.Sentinel,
			"user_agent": privacy.Sentinel,
		}).Error
}

// DeletionHistory lists the audit entries for a subject, newest first.
func (m *Manager) DeletionHistory(ctx context.Context, subjectID uint64) ([]models.DeletionLogEntry, error) {
	var entries []models.DeletionLogEntry
	result := m.db.WithContext(ctx).
		Where("user_id = ?", subjectID).
		Order("deleted_at DESC").
		Find(&entries)
	if result.Error != nil {
		return nil, apperrors.Storage("failed to load deletion history", result.Error)
	}
	return entries, nil
}
