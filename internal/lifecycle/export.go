package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"secure-video-access/configs"
	"secure-video-access/internal/apperrors"
	"secure-video-access/internal/directory"
	"secure-video-access/internal/models"
	"secure-video-access/internal/privacy"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// viewHistoryLimit bounds the export query so a heavy viewer cannot make
// the aggregation unbounded.
const viewHistoryLimit = 1000

// Manager performs the out-of-band compliance operations: export,
// deletion and anonymization. It reads and mutates the permission and
// view-log tables directly, never through the recorder.
type Manager struct {
	db       *gorm.DB
	resolver directory.Resolver
	cfg      *configs.Config
	logger   zerolog.Logger
}

func NewManager(db *gorm.DB, resolver directory.Resolver, cfg *configs.Config, logger zerolog.Logger) *Manager {
	return &Manager{db: db, resolver: resolver, cfg: cfg, logger: logger.With().Str("component", "lifecycle").Logger()}
}

// Document is the structured export. The CSV rendering carries exactly
// the same facts.
type Document struct {
	ExportID    string             `json:"export_id"`
	UserInfo    UserInfo           `json:"user_info"`
	Permissions []PermissionRecord `json:"video_permissions"`
	ViewHistory []ViewRecord       `json:"view_history"`
	Analytics   Analytics          `json:"analytics"`
	ExportedAt  time.Time          `json:"export_date"`
}

type UserInfo struct {
	UserID       uint64    `json:"user_id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	RegisteredAt time.Time `json:"registered_date"`
}

type PermissionRecord struct {
	ID         uint64     `json:"id"`
	PostID     uint64     `json:"post_id"`
	VideoTitle string     `json:"video_title"`
	ViewLimit  *int       `json:"view_limit"`
	ViewsUsed  int        `json:"views_used"`
	GrantedAt  time.Time  `json:"granted_at"`
	ExpiresAt  *time.Time `json:"expires_at"`
}

type ViewRecord struct {
	ID           uint64    `json:"id"`
	PostID       uint64    `json:"post_id"`
	VideoTitle   string    `json:"video_title"`
	ViewedAt     time.Time `json:"viewed_at"`
	ViewDuration *int      `json:"view_duration"`
	IPAddress    string    `json:"ip_address"`
}

type Analytics struct {
	TotalViews       int64          `json:"total_views"`
	TotalWatchTime   int64          `json:"total_watch_time"`
	AverageWatchTime float64        `json:"average_watch_time"`
	MostWatched      []VideoCount   `json:"most_watched_videos"`
	ViewsByWeekday   []WeekdayCount `json:"watch_times_by_day"`
}

type VideoCount struct {
	PostID     uint64 `json:"post_id"`
	VideoTitle string `json:"video_title"`
	ViewCount  int64  `json:"view_count"`
}

type WeekdayCount struct {
	DayName   string `json:"day_name"`
	DayNumber int    `json:"day_number"`
	ViewCount int64  `json:"view_count"`
}

// Export aggregates everything stored about a subject. Requester must be
// an administrator or the subject themselves, and the policy must have
// export enabled; both are checked before anything is read.
func (m *Manager) Export(ctx context.Context, subjectID, requesterID uint64) (*Document, error) {
	if !m.cfg.AllowDataExport {
		return nil, apperrors.FeatureDisabled("data export is not enabled")
	}
	if err := m.authorize(ctx, subjectID, requesterID, "export"); err != nil {
		return nil, err
	}

	user, err := m.resolver.UserSummary(ctx, subjectID)
	if err != nil {
		return nil, apperrors.Storage("failed to resolve user", err)
	}
	if user == nil {
		return nil, apperrors.NotFound("user not found")
	}

	doc := &Document{
		ExportID: uuid.New().String(),
		UserInfo: UserInfo{
			UserID:       user.ID,
			Username:     user.Username,
			Email:        user.Email,
			DisplayName:  user.DisplayName,
			RegisteredAt: user.RegisteredAt,
		},
		ExportedAt: time.Now(),
	}

	if doc.Permissions, err = m.permissionsForExport(ctx, subjectID); err != nil {
		return nil, err
	}
	if doc.ViewHistory, err = m.viewHistoryForExport(ctx, subjectID); err != nil {
		return nil, err
	}
	if doc.Analytics, err = m.analyticsForExport(ctx, subjectID); err != nil {
		return nil, err
	}

	m.logger.Info().
		Uint64("user_id", subjectID).
		Uint64("requested_by", requesterID).
		Str("export_id", doc.ExportID).
		Msg("user data exported")
	return doc, nil
}

func (m *Manager) authorize(ctx context.Context, subjectID, requesterID uint64, op string) error {
	if subjectID == 0 || requesterID == 0 {
		return apperrors.InvalidInput("user id is required")
	}
	if requesterID == subjectID {
		return nil
	}
	admin, err := m.resolver.IsAdmin(ctx, requesterID)
	if err != nil {
		return apperrors.Storage("failed to resolve requester", err)
	}
	if !admin {
		return apperrors.PermissionDenied(fmt.Sprintf("not allowed to %s this user's data", op))
	}
	return nil
}

func (m *Manager) permissionsForExport(ctx context.Context, userID uint64) ([]PermissionRecord, error) {
	var perms []models.Permission
	result := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("granted_at DESC").
		Find(&perms)
	if result.Error != nil {
		return nil, apperrors.Storage("failed to load permissions for export", result.Error)
	}

	records := make([]PermissionRecord, 0, len(perms))
	for _, p := range perms {
		title, _ := m.resolver.VideoTitle(ctx, p.PostID)
		records = append(records, PermissionRecord{
			ID:         p.ID,
			PostID:     p.PostID,
			VideoTitle: title,
			ViewLimit:  p.ViewLimit,
			ViewsUsed:  p.ViewsUsed,
			GrantedAt:  p.GrantedAt,
			ExpiresAt:  p.ExpiresAt,
		})
	}
	return records, nil
}

func (m *Manager) viewHistoryForExport(ctx context.Context, userID uint64) ([]ViewRecord, error) {
	var entries []models.ViewLogEntry
	result := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("viewed_at DESC").
		Limit(viewHistoryLimit).
		Find(&entries)
	if result.Error != nil {
		return nil, apperrors.Storage("failed to load view history for export", result.Error)
	}

	records := make([]ViewRecord, 0, len(entries))
	for _, e := range entries {
		title, _ := m.resolver.VideoTitle(ctx, e.PostID)
		ip := e.IPAddress
		if m.cfg.AnonymizeIP {
			ip = privacy.AnonymizeIP(ip)
		}
		records = append(records, ViewRecord{
			ID:           e.ID,
			PostID:       e.PostID,
			VideoTitle:   title,
			ViewedAt:     e.ViewedAt,
			ViewDuration: e.ViewDuration,
			IPAddress:    ip,
		})
	}
	return records, nil
}

func (m *Manager) analyticsForExport(ctx context.Context, userID uint64) (Analytics, error) {
	analytics := Analytics{
		MostWatched:    []VideoCount{},
		ViewsByWeekday: []WeekdayCount{},
	}

	var stats struct {
		TotalViews     int64
		TotalWatchTime int64
	}
	err := m.db.WithContext(ctx).Model(&models.ViewLogEntry{}).
		Select("COUNT(*) as total_views, COALESCE(SUM(view_duration), 0) as total_watch_time").
		Where("user_id = ?", userID).
		Scan(&stats).Error
	if err != nil {
		return analytics, apperrors.Storage("failed to aggregate view stats", err)
	}
	analytics.TotalViews = stats.TotalViews
	analytics.TotalWatchTime = stats.TotalWatchTime
	if stats.TotalViews > 0 {
		analytics.AverageWatchTime = float64(stats.TotalWatchTime) / float64(stats.TotalViews)
	}

	var top []VideoCount
	err = m.db.WithContext(ctx).Model(&models.ViewLogEntry{}).
		Select("post_id, COUNT(*) as view_count").
		Where("user_id = ?", userID).
		Group("post_id").
		Order("view_count DESC").
		Limit(10).
		Scan(&top).Error
	if err != nil {
		return analytics, apperrors.Storage("failed to aggregate top videos", err)
	}
	for i := range top {
		top[i].VideoTitle, _ = m.resolver.VideoTitle(ctx, top[i].PostID)
	}
	analytics.MostWatched = top

	var byDay []WeekdayCount
	err = m.db.WithContext(ctx).Model(&models.ViewLogEntry{}).
		Select("DAYNAME(viewed_at) as day_name, DAYOFWEEK(viewed_at) as day_number, COUNT(*) as view_count").
		Where("user_id = ?", userID).
		Group("DAYOFWEEK(viewed_at), DAYNAME(viewed_at)").
		Order("day_number").
		Scan(&byDay).Error
	if err != nil {
		return analytics, apperrors.Storage("failed to aggregate weekday views", err)
	}
	analytics.ViewsByWeekday = byDay

	return analytics, nil
}

// Filename names the download artifact for a subject and format.
func Filename(subjectID uint64, format string) string {
	return fmt.Sprintf("user-data-export-%d-%s.%s", subjectID, time.Now().Format("2006-01-02-150405"), format)
}

// RenderCSV flattens the document into the sectioned tabular form. Every
// fact in the JSON rendering appears here too.
func (d *Document) RenderCSV() string {
	var b strings.Builder

	b.WriteString("=== USER INFORMATION ===\n")
	b.WriteString("Field,Value\n")
	fmt.Fprintf(&b, "%q,%q\n", "user_id", fmt.Sprint(d.UserInfo.UserID))
	fmt.Fprintf(&b, "%q,%q\n", "username", d.UserInfo.Username)
	fmt.Fprintf(&b, "%q,%q\n", "email", d.UserInfo.Email)
	fmt.Fprintf(&b, "%q,%q\n", "display_name", d.UserInfo.DisplayName)
	fmt.Fprintf(&b, "%q,%q\n", "registered_date", d.UserInfo.RegisteredAt.Format(time.RFC3339))

	b.WriteString("\n=== VIDEO PERMISSIONS ===\n")
	if len(d.Permissions) > 0 {
		b.WriteString("Video Title,View Limit,Views Used,Granted At,Expires At\n")
		for _, p := range d.Permissions {
			limit := "Unlimited"
			if p.ViewLimit != nil {
				limit = fmt.Sprint(*p.ViewLimit)
			}
			expires := "Never"
			if p.ExpiresAt != nil {
				expires = p.ExpiresAt.Format(time.RFC3339)
			}
			fmt.Fprintf(&b, "%q,%q,%q,%q,%q\n",
				p.VideoTitle, limit, fmt.Sprint(p.ViewsUsed), p.GrantedAt.Format(time.RFC3339), expires)
		}
	} else {
		b.WriteString("No permissions found.\n")
	}

	b.WriteString("\n=== VIEW HISTORY ===\n")
	if len(d.ViewHistory) > 0 {
		b.WriteString("Video Title,Viewed At,Duration (seconds),IP Address\n")
		for _, v := range d.ViewHistory {
			duration := ""
			if v.ViewDuration != nil {
				duration = fmt.Sprint(*v.ViewDuration)
			}
			fmt.Fprintf(&b, "%q,%q,%q,%q\n",
				v.VideoTitle, v.ViewedAt.Format(time.RFC3339), duration, v.IPAddress)
		}
	} else {
		b.WriteString("No view history found.\n")
	}

	b.WriteString("\n=== ANALYTICS ===\n")
	b.WriteString("Metric,Value\n")
	fmt.Fprintf(&b, "%q,%q\n", "Total Views", fmt.Sprint(d.Analytics.TotalViews))
	fmt.Fprintf(&b, "%q,%q\n", "Total Watch Time (seconds)", fmt.Sprint(d.Analytics.TotalWatchTime))
	fmt.Fprintf(&b, "%q,%q\n", "Average Watch Time (seconds)", fmt.Sprintf("%.2f", d.Analytics.AverageWatchTime))

	if len(d.Analytics.MostWatched) > 0 {
		b.WriteString("\nMost Watched Videos\n")
		b.WriteString("Video Title,View Count\n")
		for _, v := range d.Analytics.MostWatched {
			fmt.Fprintf(&b, "%q,%q\n", v.VideoTitle, fmt.Sprint(v.ViewCount))
		}
	}

	if len(d.Analytics.ViewsByWeekday) > 0 {
		b.WriteString("\nViews By Weekday\n")
		b.WriteString("Day,View Count\n")
		for _, w := range d.Analytics.ViewsByWeekday {
			fmt.Fprintf(&b, "%q,%q\n", w.DayName, fmt.Sprint(w.ViewCount))
		}
	}

	return b.String()
}
