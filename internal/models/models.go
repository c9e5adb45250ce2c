package models

import "time"

// PermissionStatus tracks the lifecycle of a grant.
type PermissionStatus string

const (
	PermissionActive  PermissionStatus = "active"
	PermissionExpired PermissionStatus = "expired"
)

// Permission is one grant per (post, user) pair. ViewLimit nil means
// unlimited; ExpiresAt nil means the grant never expires.
type Permission struct {
	ID        uint64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PostID    uint64           `gorm:"uniqueIndex:idx_post_user;not null" json:"post_id"`
	UserID    uint64           `gorm:"uniqueIndex:idx_post_user;index;not null" json:"user_id"`
	ViewLimit *int             `gorm:"default:null" json:"view_limit"`
	ViewsUsed int              `gorm:"not null;default:0" json:"views_used"`
	GrantedBy uint64           `gorm:"default:null" json:"granted_by"`
	GrantedAt time.Time        `gorm:"autoCreateTime;index" json:"granted_at"`
	ExpiresAt *time.Time       `gorm:"default:null" json:"expires_at"`
	Status    PermissionStatus `gorm:"type:varchar(20);default:'active';index" json:"status"`
}

func (Permission) TableName() string {
	return "permissions"
}

// ViewLogEntry is an immutable record of a single view. PermissionID is
// nil for views of public videos; UserID 0 is anonymous or anonymized.
type ViewLogEntry struct {
	ID           uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PermissionID *uint64    `gorm:"index;default:null" json:"permission_id"`
	PostID       uint64     `gorm:"index;index:idx_post_user_log;not null" json:"post_id"`
	UserID       uint64     `gorm:"index:idx_post_user_log;index;default:0" json:"user_id"`
	IPAddress    string     `gorm:"type:varchar(45)" json:"ip_address"`
	UserAgent    string     `gorm:"type:text" json:"user_agent"`
	ViewedAt     time.Time  `gorm:"autoCreateTime;index" json:"viewed_at"`
	ViewDuration *int       `gorm:"default:null" json:"view_duration"`
}

func (ViewLogEntry) TableName() string {
	return "view_log"
}

// ViewCache is the derived per-video aggregate. The view log is the source
// of truth; this row is rebuildable from it at any time.
type ViewCache struct {
	PostID         uint64    `gorm:"primaryKey" json:"post_id"`
	TotalViews     int64     `gorm:"not null;default:0" json:"total_views"`
	UniqueViews    int64     `gorm:"not null;default:0" json:"unique_views"`
	LastCalculated time.Time `gorm:"autoUpdateTime" json:"last_calculated"`
}

func (ViewCache) TableName() string {
	return "view_cache"
}

// DeletionType distinguishes hard deletes from anonymization.
type DeletionType string

const (
	DeletionDelete    DeletionType = "delete"
	DeletionAnonymize DeletionType = "anonymize"
)

// DeletionLogEntry is the append-only audit trail of lifecycle operations.
type DeletionLogEntry struct {
	ID           uint64       `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       uint64       `gorm:"index;not null" json:"user_id"`
	DeletionType DeletionType `gorm:"type:varchar(20);not null;default:'delete'" json:"deletion_type"`
	DeletedBy    uint64       `gorm:"not null" json:"deleted_by"`
	DeletedAt    time.Time    `gorm:"autoCreateTime;index" json:"deleted_at"`
	IPAddress    string       `gorm:"type:varchar(45);not null" json:"ip_address"`
}

func (DeletionLogEntry) TableName() string {
	return "deletion_log"
}

// Video mirrors the external video registry: only the fields the access
// engine reads (existence, title for exports, the public flag).
type Video struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Title        string    `gorm:"type:varchar(500);not null" json:"title"`
	PublicAccess bool      `gorm:"not null;default:false" json:"public_access"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Video) TableName() string {
	return "videos"
}

// User mirrors the external identity provider: the engine only queries it
// by opaque id and never mutates it.
type User struct {
	ID           uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	DisplayName  string    `gorm:"type:varchar(255)" json:"display_name"`
	APIKey       string    `gorm:"type:varchar(255);index" json:"-"`
	Admin        bool      `gorm:"not null;default:false" json:"admin"`
	RegisteredAt time.Time `gorm:"autoCreateTime" json:"registered_at"`
}

func (User) TableName() string {
	return "users"
}
