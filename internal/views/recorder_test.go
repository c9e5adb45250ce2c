package views

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"secure-video-access/configs"
	"secure-video-access/internal/cache"
	"secure-video-access/internal/database"
	"secure-video-access/internal/directory"
	"secure-video-access/internal/models"
	"secure-video-access/internal/permissions"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	db       *gorm.DB
	recorder *Recorder
	perms    *permissions.Store
	counts   *cache.CountCache
	cfg      *configs.Config
}

func setupTestEnv(t *testing.T) (*testEnv, func()) {
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

	cfg := &configs.Config{TrackIP: true, AnonymizeIP: false, TrackUserAgent: true}
	resolver := directory.New(db)
	perms := permissions.NewStore(db, resolver, zerolog.Nop())
	counts := cache.NewCountCache(db, nil, zerolog.Nop())
	env := &testEnv{
		db:       db,
		recorder: NewRecorder(db, perms, counts, nil, resolver, cfg, zerolog.Nop()),
		perms:    perms,
		counts:   counts,
		cfg:      cfg,
	}
	cleanup := func() {
		truncate()
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return env, cleanup
}

func seedVideo(t *testing.T, db *gorm.DB, title string, public bool) uint64 {
	t.Helper()
	video := models.Video{Title: title, PublicAccess: public}
	require.NoError(t, db.Create(&video).Error)
	return video.ID
}

func seedUser(t *testing.T, db *gorm.DB, username string) uint64 {
	t.Helper()
	user := models.User{Username: username, Email: username + "@example.com"}
	require.NoError(t, db.Create(&user).Error)
	return user.ID
}

func intPtr(n int) *int { return &n }

func TestRecordViewConsumesLimit(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	videoID := seedVideo(t, env.db, "Protected", false)
	userID := seedUser(t, env.db, "alice")

	_, err := env.perms.Grant(ctx, videoID, userID, intPtr(2), userID, nil)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		recorded, err := env.recorder.RecordView(ctx, videoID, userID, RequestMeta{ClientIP: "192.168.1.10"})
		require.NoError(t, err)
		assert.True(t, recorded, "view %d inside the allowance", i+1)
	}

	remaining, err := env.perms.RemainingViews(ctx, videoID, userID)
	require.NoError(t, err)
	require.NotNil(t, remaining)
	assert.Equal(t, 0, *remaining)

	recorded, err := env.recorder.RecordView(ctx, videoID, userID, RequestMeta{})
	require.NoError(t, err)
	assert.False(t, recorded, "third view exceeds the allowance")

	counts, err := env.counts.GetCounts(ctx, videoID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts.Total, "denied views leave counts untouched")
	assert.Equal(t, int64(1), counts.Unique)

	var logRows int64
	env.db.Model(&models.ViewLogEntry{}).Where("post_id = ?", videoID).Count(&logRows)
	assert.Equal(t, int64(2), logRows, "denied views leave no log row")
}

func TestRecordViewPublicAnonymous(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	videoID := seedVideo(t, env.db, "Public", true)

	for i := 0; i < 3; i++ {
		recorded, err := env.recorder.RecordView(ctx, videoID, 0, RequestMeta{ClientIP: "10.0.0.5"})
		require.NoError(t, err)
		assert.True(t, recorded)
	}

	counts, err := env.counts.GetCounts(ctx, videoID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.Total)
	assert.Equal(t, int64(0), counts.Unique, "anonymous views never count as unique")

	var entry models.ViewLogEntry
	require.NoError(t, env.db.Where("post_id = ?", videoID).First(&entry).Error)
	assert.Nil(t, entry.PermissionID, "public views carry no permission reference")
}

func TestRecordViewUnknownVideo(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()

	_, err := env.recorder.RecordView(context.Background(), 424242, 0, RequestMeta{})
	assert.Error(t, err)
}

func TestRecordViewPrivacyPolicy(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	videoID := seedVideo(t, env.db, "Public", true)
	meta := RequestMeta{ClientIP: "203.0.113.77", UserAgent: "test-agent/1.0"}

	env.cfg.TrackIP = true
	env.cfg.AnonymizeIP = true
	env.cfg.TrackUserAgent = false
	recorded, err := env.recorder.RecordView(ctx, videoID, 0, meta)
	require.NoError(t, err)
	require.True(t, recorded)

	var entry models.ViewLogEntry
	require.NoError(t, env.db.Where("post_id = ?", videoID).Order("id DESC").First(&entry).Error)
	assert.True(t, strings.HasSuffix(entry.IPAddress, ".0"), "stored address must be anonymized, got %q", entry.IPAddress)
	assert.Empty(t, entry.UserAgent)

	env.cfg.TrackIP = false
	recorded, err = env.recorder.RecordView(ctx, videoID, 0, meta)
	require.NoError(t, err)
	require.True(t, recorded)

	require.NoError(t, env.db.Where("post_id = ?", videoID).Order("id DESC").First(&entry).Error)
	assert.Empty(t, entry.IPAddress, "tracking disabled stores nothing")
}

func TestListRecentNewestFirst(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	videoID := seedVideo(t, env.db, "Public", true)
	for i := 0; i < 5; i++ {
		_, err := env.recorder.RecordView(ctx, videoID, 0, RequestMeta{})
		require.NoError(t, err)
	}

	entries, err := env.recorder.ListRecent(ctx, videoID, 3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestResetClearsCountsAndLog(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	videoID := seedVideo(t, env.db, "Public", true)
	userID := seedUser(t, env.db, "bob")
	for i := 0; i < 4; i++ {
		_, err := env.recorder.RecordView(ctx, videoID, userID, RequestMeta{})
		require.NoError(t, err)
	}

	require.NoError(t, env.counts.Reset(ctx, videoID))

	counts, err := env.counts.GetCounts(ctx, videoID)
	require.NoError(t, err)
	assert.Equal(t, cache.Counts{}, counts)

	var logRows int64
	env.db.Model(&models.ViewLogEntry{}).Where("post_id = ?", videoID).Count(&logRows)
	assert.Equal(t, int64(0), logRows)
}

func TestRebuildIdempotent(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	videoID := seedVideo(t, env.db, "Public", true)
	userID := seedUser(t, env.db, "carol")
	for i := 0; i < 3; i++ {
		_, err := env.recorder.RecordView(ctx, videoID, userID, RequestMeta{})
		require.NoError(t, err)
	}

	first, err := env.counts.Rebuild(ctx, videoID)
	require.NoError(t, err)
	second, err := env.counts.Rebuild(ctx, videoID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(3), first.Total)
	assert.Equal(t, int64(1), first.Unique)
}

// The incremental counters maintained on each view must always agree
// with a full recount of the log, for any interleaving of identified
// and anonymous viewers.
func TestIncrementalCountsMatchRebuild(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()
	ctx := context.Background()

	videoID := seedVideo(t, env.db, "Public", true)
	viewerIDs := make([]uint64, 4)
	for i := range viewerIDs {
		viewerIDs[i] = seedUser(t, env.db, fmt.Sprintf("viewer%d", i))
	}

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 20
	properties := gopter.NewProperties(params)

	properties.Property("incremental equals recount", prop.ForAll(
		func(picks []int) bool {
			env.db.Exec("DELETE FROM view_cache")
			env.db.Exec("DELETE FROM view_log")

			for _, p := range picks {
				// Index 0 plays the anonymous viewer.
				var userID uint64
				if p > 0 {
					userID = viewerIDs[(p-1)%len(viewerIDs)]
				}
				recorded, err := env.recorder.RecordView(ctx, videoID, userID, RequestMeta{})
				if err != nil || !recorded {
					return false
				}
			}

			incremental, err := env.counts.GetCounts(ctx, videoID)
			if err != nil {
				return false
			}
			recount, err := env.counts.Rebuild(ctx, videoID)
			if err != nil {
				return false
			}
			return incremental == recount
		},
		gen.SliceOfN(10, gen.IntRange(0, 8)),
	))

	properties.TestingRun(t)
}
