package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TemplateScope separates the shared ladder from per-club overrides.
type TemplateScope string

const (
	ScopeGlobal TemplateScope = "global"
	ScopeClub   TemplateScope = "club"
)

// MissionType enumerates the gamified task kinds a template may define.
type MissionType string

const (
	MissionAttendEvent   MissionType = "attend_event"
	MissionUploadPhoto   MissionType = "upload_photo"
	MissionScanQR        MissionType = "scan_qr"
	MissionFollowUsers   MissionType = "follow_users"
	MissionCollectStamps MissionType = "collect_stamps"
	MissionShareLink     MissionType = "share_link"
)

// KnownMissionTypes is the closed set accepted at the validation boundary.
var KnownMissionTypes = map[MissionType]struct{}{
	MissionAttendEvent:   {},
	MissionUploadPhoto:   {},
	MissionScanQR:        {},
	MissionFollowUsers:   {},
	MissionCollectStamps: {},
	MissionShareLink:     {},
}

// RewardType enumerates level completion rewards.
type RewardType string

const (
	RewardFreeEntry    RewardType = "free_entry"
	RewardDrinkVoucher RewardType = "drink_voucher"
	RewardVIPTable     RewardType = "vip_table"
	RewardBadge        RewardType = "badge"
	RewardDiscount     RewardType = "discount"
)

// KnownRewardTypes is the closed set accepted at the validation boundary.
var KnownRewardTypes = map[RewardType]struct{}{
	RewardFreeEntry:    {},
	RewardDrinkVoucher: {},
	RewardVIPTable:     {},
	RewardBadge:        {},
	RewardDiscount:     {},
}

// MissionTemplate is one immutable task definition inside a level template.
type MissionTemplate struct {
	Type             MissionType            `json:"type"`
	Title            string                 `json:"title"`
	Description      string                 `json:"description"`
	Target           int64                  `json:"target"`
	Params           map[string]interface{} `json:"params,omitempty"`
	RequiresApproval bool                   `json:"requires_approval"`
	Order            int                    `json:"order"`
	Active           bool                   `json:"active"`
}

// MissionTemplateList is the JSONB-backed missions column.
type MissionTemplateList []MissionTemplate

// Value implements driver.Valuer.
func (l MissionTemplateList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *MissionTemplateList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// Reward describes what a level grants on completion. ValueText keeps
// the wire name "value"; the Go field cannot share a name with the
// driver.Valuer method.
type Reward struct {
	Type        RewardType             `json:"type"`
	Title       string                 `json:"title"`
	Description string                 `json:"description,omitempty"`
	ValueText   string                 `json:"value,omitempty"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
}

// Value implements driver.Valuer.
func (r Reward) Value() (driver.Value, error) {
	return json.Marshal(r)
}

// Scan implements sql.Scanner.
func (r *Reward) Scan(src interface{}) error {
	return scanJSON(src, r)
}

// LevelTemplate is a versioned, immutable definition of one ladder stage.
// Uniqueness of (scope, club_id, level_number) among active rows is
// enforced by a partial unique index.
type LevelTemplate struct {
	ID          string              `db:"id" json:"id"`
	Scope       TemplateScope       `db:"scope" json:"scope"`
	ClubID      *string             `db:"club_id" json:"club_id,omitempty"`
	LevelNumber int                 `db:"level_number" json:"level_number"`
	Title       string              `db:"title" json:"title"`
	Description string              `db:"description" json:"description"`
	Missions    MissionTemplateList `db:"missions" json:"missions"`
	Reward      Reward              `db:"reward" json:"reward"`
	Active      bool                `db:"active" json:"active"`
	Version     int                 `db:"version" json:"version"`
	CreatedAt   time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time           `db:"updated_at" json:"updated_at"`
}

// MissionStatus tracks a materialized mission's lifecycle.
type MissionStatus string

const (
	MissionLocked     MissionStatus = "locked"
	MissionInProgress MissionStatus = "in_progress"
	MissionPending    MissionStatus = "pending"
	MissionApproved   MissionStatus = "approved"
	MissionCompleted  MissionStatus = "completed"
	MissionRejected   MissionStatus = "rejected"
)

// LevelStatus tracks a materialized level's lifecycle.
type LevelStatus string

const (
	LevelLocked     LevelStatus = "locked"
	LevelInProgress LevelStatus = "in_progress"
	LevelCompleted  LevelStatus = "completed"
)

// ProgressStatus tracks the whole aggregate.
type ProgressStatus string

const (
	ProgressActive  ProgressStatus = "active"
	ProgressBlocked ProgressStatus = "blocked"
)

// MissionProgress is the mutable per-user materialization of one mission.
// MissionKey is derived as L{level}_{type}_{order} at materialization
// time; it is stable across re-reads but only unique within a level.
type MissionProgress struct {
	MissionKey       string                 `json:"mission_key"`
	Type             MissionType            `json:"type"`
	Title            string                 `json:"title"`
	Status           MissionStatus          `json:"status"`
	Current          int64                  `json:"current"`
	Target           int64                  `json:"target"`
	RequiresApproval bool                   `json:"requires_approval"`
	ClaimID          *string                `json:"claim_id,omitempty"`
	Meta             map[string]interface{} `json:"meta,omitempty"`
	StartedAt        *time.Time             `json:"started_at,omitempty"`
	CompletedAt      *time.Time             `json:"completed_at,omitempty"`
	UpdatedAt        *time.Time             `json:"updated_at,omitempty"`
}

// LevelProgress is the mutable per-user materialization of one level.
// Progress is a cached ratio in [0,1]; the engine refreshes it at every
// mutation site.
type LevelProgress struct {
	LevelNumber int               `json:"level_number"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Status      LevelStatus       `json:"status"`
	Missions    []MissionProgress `json:"missions"`
	Reward      Reward            `json:"reward"`
	Progress    float64           `json:"progress"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
}

// LevelProgressList is the JSONB-backed levels column.
type LevelProgressList []LevelProgress

// Value implements driver.Valuer.
func (l LevelProgressList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *LevelProgressList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// Counter keys accumulated on the progress aggregate.
const (
	CounterAttendancesInClub    = "attendances_in_club"
	CounterPhotosUploadedInClub = "photos_uploaded_in_club"
	CounterQRScansInClub        = "qr_scans_in_club"
	CounterAttendancesPlatform  = "attendances_platform"
	CounterFollowedUsers        = "followed_users"
	CounterStampsInCurrentEvent = "stamps_in_current_event"
)

// CounterMap is the JSONB-backed counters column.
type CounterMap map[string]int64

// Value implements driver.Valuer.
func (m CounterMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *CounterMap) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// PromotionProgress is the root aggregate: one row per (user, club),
// created lazily on first interaction and never destroyed. The version
// column serializes read-modify-write cycles optimistically.
type PromotionProgress struct {
	ID                 string            `db:"id" json:"id"`
	UserID             string            `db:"user_id" json:"user_id"`
	ClubID             string            `db:"club_id" json:"club_id"`
	CurrentLevel       int               `db:"current_level" json:"current_level"`
	CurrentProgress    float64           `db:"current_progress" json:"current_progress"`
	CurrentRewardTitle string            `db:"current_reward_title" json:"current_reward_title"`
	Status             ProgressStatus    `db:"status" json:"status"`
	Levels             LevelProgressList `db:"levels" json:"levels"`
	Counters           CounterMap        `db:"counters" json:"counters"`
	PendingClaimsCount int               `db:"pending_claims_count" json:"pending_claims_count"`
	LastEventID        *string           `db:"last_event_id" json:"last_event_id,omitempty"`
	LastActivityAt     *time.Time        `db:"last_activity_at" json:"last_activity_at,omitempty"`
	Version            int64             `db:"version" json:"-"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`
}

// ActivityKind names the domain events the engine consumes.
type ActivityKind string

const (
	ActivityAttendance  ActivityKind = "attendance"
	ActivityPhotoUpload ActivityKind = "photo_upload"
	ActivityQRScan      ActivityKind = "qr_scan"
	ActivityFollow      ActivityKind = "follow"
	ActivityStamp       ActivityKind = "stamp"
	ActivityShare       ActivityKind = "share"
)

// KnownActivityKinds is the closed set accepted at the boundary.
var KnownActivityKinds = map[ActivityKind]struct{}{
	ActivityAttendance:  {},
	ActivityPhotoUpload: {},
	ActivityQRScan:      {},
	ActivityFollow:      {},
	ActivityStamp:       {},
	ActivityShare:       {},
}

func scanJSON(src, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return json.Unmarshal(v, dest)
	case string:
		if v == "" {
			return nil
		}
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}
