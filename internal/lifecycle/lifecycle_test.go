package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"secure-video-access/configs"
	"secure-video-access/internal/apperrors"
	"secure-video-access/internal/database"
	"secure-video-access/internal/directory"
	"secure-video-access/internal/models"
	"secure-video-access/internal/privacy"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) (*gorm.DB, func()) {
	t.Helper()

	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		host = "localhost"
	}
	user := os.Getenv("TEST_DB_USER")
	if user == "" {
		user = "root"
	}
	password := os.Getenv("TEST_DB_PASSWORD")
	if password == "" {
		password = "root"
	}
	dbName := os.Getenv("TEST_DB_NAME")
	if dbName == "" {
		dbName = "secure_video_test"
	}

	rootDSN := fmt.Sprintf("%s:%s@tcp(%s:3306)/?charset=utf8mb4&parseTime=True&loc=Local", user, password, host)
	rootDB, err := gorm.Open(mysql.Open(rootDSN), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Skipf("Skipping test: cannot connect to MySQL: %v", err)
	}
	rootDB.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", dbName))
	if sqlDB, err := rootDB.DB(); err == nil {
		sqlDB.Close()
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:3306)/%s?charset=utf8mb4&parseTime=True&loc=Local", user, password, host, dbName)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Skipf("Skipping test: cannot open test database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Skipf("Skipping test: cannot migrate test database: %v", err)
	}

	truncate := func() {
		db.Exec("DELETE FROM deletion_log")
		db.Exec("DELETE FROM view_cache")
		db.Exec("DELETE FROM view_log")
		db.Exec("DELETE FROM permissions")
		db.Exec("DELETE FROM users")
		db.Exec("DELETE FROM videos")
	}
	truncate()
	cleanup := func() {
		truncate()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return db, cleanup
}

func testConfig() *configs.Config {
	return &configs.Config{
		AllowDataExport:   true,
		AllowDataDeletion: true,
		LogRetentionDays:  30,
	}
}

func newTestManager(db *gorm.DB, cfg *configs.Config) *Manager {
	return NewManager(db, directory.New(db), cfg, zerolog.Nop())
}

func seedSubject(t *testing.T, db *gorm.DB) (videoID, userID uint64) {
	t.Helper()
	video := models.Video{Title: "Subject Video", PublicAccess: false}
	require.NoError(t, db.Create(&video).Error)
	user := models.User{Username: "subject", Email: "subject@example.com", DisplayName: "Subject"}
	require.NoError(t, db.Create(&user).Error)

	limit := 5
	perm := models.Permission{PostID: video.ID, UserID: user.ID, ViewLimit: &limit, ViewsUsed: 2, Status: models.PermissionActive, GrantedBy: user.ID}
	require.NoError(t, db.Create(&perm).Error)

	duration := 120
	for i := 0; i < 3; i++ {
		entry := models.ViewLogEntry{
			PermissionID: &perm.ID,
			PostID:       video.ID,
			UserID:       user.ID,
			IPAddress:    "198.51.100.23",
			UserAgent:    "test-agent/2.0",
			ViewDuration: &duration,
		}
		require.NoError(t, db.Create(&entry).Error)
	}
	return video.ID, user.ID
}

func TestExportDisabled(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	cfg := testConfig()
	cfg.AllowDataExport = false
	mgr := newTestManager(db, cfg)

	_, err := mgr.Export(context.Background(), 1, 1)
	assert.True(t, errors.Is(err, apperrors.ErrFeatureDisabled))
}

func TestExportAuthorization(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	mgr := newTestManager(db, testConfig())
	ctx := context.Background()

	_, subjectID := seedSubject(t, db)
	stranger := models.User{Username: "stranger", Email: "stranger@example.com"}
	require.NoError(t, db.Create(&stranger).Error)
	admin := models.User{Username: "admin", Email: "admin@example.com", Admin: true}
	require.NoError(t, db.Create(&admin).Error)

	_, err := mgr.Export(ctx, subjectID, stranger.ID)
	assert.True(t, errors.Is(err, apperrors.ErrPermissionDenied), "non-admin strangers are refused")

	_, err = mgr.Export(ctx, subjectID, subjectID)
	assert.NoError(t, err, "subjects may export their own data")

	_, err = mgr.Export(ctx, subjectID, admin.ID)
	assert.NoError(t, err, "administrators may export anyone")

	_, err = mgr.Export(ctx, 999999, admin.ID)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestExportDocumentContent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	mgr := newTestManager(db, testConfig())

	videoID, subjectID := seedSubject(t, db)

	doc, err := mgr.Export(context.Background(), subjectID, subjectID)
	require.NoError(t, err)

	assert.NotEmpty(t, doc.ExportID)
	assert.Equal(t, subjectID, doc.UserInfo.UserID)
	assert.Equal(t, "subject", doc.UserInfo.Username)

	require.Len(t, doc.Permissions, 1)
	assert.Equal(t, videoID, doc.Permissions[0].PostID)
	assert.Equal(t, "Subject Video", doc.Permissions[0].VideoTitle)
	assert.Equal(t, 2, doc.Permissions[0].ViewsUsed)

	require.Len(t, doc.ViewHistory, 3)
	assert.Equal(t, "198.51.100.23", doc.ViewHistory[0].IPAddress)

	assert.Equal(t, int64(3), doc.Analytics.TotalViews)
	assert.Equal(t, int64(360), doc.Analytics.TotalWatchTime)
	assert.InDelta(t, 120.0, doc.Analytics.AverageWatchTime, 0.01)
	require.Len(t, doc.Analytics.MostWatched, 1)
	assert.Equal(t, int64(3), doc.Analytics.MostWatched[0].ViewCount)
	require.NotEmpty(t, doc.Analytics.ViewsByWeekday)
}

func TestDeleteRemovesEverything(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	mgr := newTestManager(db, testConfig())
	ctx := context.Background()

	_, subjectID := seedSubject(t, db)

	outcome, err := mgr.Delete(ctx, subjectID, subjectID, false, "192.0.2.1")
	require.NoError(t, err)
	assert.Contains(t, outcome, "deleted")

	var permRows, logRows int64
	db.Model(&models.Permission{}).Where("user_id = ?", subjectID).Count(&permRows)
	db.Model(&models.ViewLogEntry{}).Where("user_id = ?", subjectID).Count(&logRows)
	assert.Zero(t, permRows)
	assert.Zero(t, logRows)

	history, err := mgr.DeletionHistory(ctx, subjectID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.DeletionDelete, history[0].DeletionType)
	assert.Equal(t, subjectID, history[0].DeletedBy)
	assert.Equal(t, "192.0.2.1", history[0].IPAddress)
}

func TestAnonymizeKeepsRows(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	mgr := newTestManager(db, testConfig())
	ctx := context.Background()

	videoID, subjectID := seedSubject(t, db)

	outcome, err := mgr.Delete(ctx, subjectID, subjectID, true, "192.0.2.1")
	require.NoError(t, err)
	assert.Contains(t, outcome, "anonymized")

	var permRows int64
	db.Model(&models.Permission{}).Where("post_id = ?", videoID).Count(&permRows)
	assert.Equal(t, int64(1), permRows, "anonymization keeps the permission row")

	var entries []models.ViewLogEntry
	require.NoError(t, db.Where("post_id = ?", videoID).Find(&entries).Error)
	require.Len(t, entries, 3, "anonymization keeps the log rows")
	for _, e := range entries {
		assert.Zero(t, e.UserID)
		assert.Equal(t, privacy.Sentinel, e.IPAddress)
		assert.Equal(t, privacy.Sentinel, e.UserAgent)
	}

	history, err := mgr.DeletionHistory(ctx, subjectID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, models.DeletionAnonymize, history[0].DeletionType)
}

func TestDeleteDisabledAndUnknown(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	cfg := testConfig()
	cfg.AllowDataDeletion = false
	mgr := newTestManager(db, cfg)
	_, err := mgr.Delete(ctx, 1, 1, false, "")
	assert.True(t, errors.Is(err, apperrors.ErrFeatureDisabled))

	mgr = newTestManager(db, testConfig())
	admin := models.User{Username: "admin", Email: "admin@example.com", Admin: true}
	require.NoError(t, db.Create(&admin).Error)
	_, err = mgr.Delete(ctx, 999999, admin.ID, false, "")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestRetentionSweep(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	videoID, subjectID := seedSubject(t, db)

	// Age two of the three log rows past the retention window.
	old := time.Now().AddDate(0, 0, -60)
	db.Exec("UPDATE view_log SET viewed_at = ? WHERE post_id = ? LIMIT 2", old, videoID)

	sweeper := NewSweeper(db, testConfig(), zerolog.Nop())
	removed, err := sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	var remaining int64
	db.Model(&models.ViewLogEntry{}).Where("user_id = ?", subjectID).Count(&remaining)
	assert.Equal(t, int64(1), remaining)

	removed, err = sweeper.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed, "a second sweep finds nothing to remove")
}

func TestRenderCSV(t *testing.T) {
	duration := 95
	doc := &Document{
		ExportID: "test-export",
		UserInfo: UserInfo{UserID: 7, Username: "subject", Email: "subject@example.com"},
		Permissions: []PermissionRecord{
			{ID: 1, PostID: 11, VideoTitle: "First, with comma", ViewsUsed: 2},
		},
		ViewHistory: []ViewRecord{
			{ID: 5, PostID: 11, VideoTitle: "First, with comma", ViewDuration: &duration, IPAddress: "198.51.100.23"},
		},
		Analytics:  Analytics{TotalViews: 1, TotalWatchTime: 95, AverageWatchTime: 95},
		ExportedAt: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}

	out := doc.RenderCSV()
	assert.Contains(t, out, "subject@example.com")
	assert.Contains(t, out, `"First, with comma"`, "titles with commas must be quoted")
	assert.Contains(t, out, "Unlimited", "absent view limits render as Unlimited")
	assert.Contains(t, out, "198.51.100.23")
}

func TestFilename(t *testing.T) {
	name := Filename(42, "csv")
	assert.True(t, strings.HasPrefix(name, "user-data-export-42-"))
	assert.True(t, strings.HasSuffix(name, ".csv"))
}
