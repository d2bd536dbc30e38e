package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// ClaimStatus tracks the review lifecycle of a claim. Pending is the
// only non-terminal state.
type ClaimStatus string

const (
	ClaimPending   ClaimStatus = "pending"
	ClaimApproved  ClaimStatus = "approved"
	ClaimRejected  ClaimStatus = "rejected"
	ClaimCancelled ClaimStatus = "cancelled"
)

// EvidenceType enumerates the supported claim evidence kinds.
type EvidenceType string

const (
	EvidencePhoto  EvidenceType = "photo"
	EvidenceQRScan EvidenceType = "qr_scan"
	EvidenceText   EvidenceType = "text"
	EvidenceMixed  EvidenceType = "mixed"
)

// KnownEvidenceTypes is the closed set accepted at the boundary.
var KnownEvidenceTypes = map[EvidenceType]struct{}{
	EvidencePhoto:  {},
	EvidenceQRScan: {},
	EvidenceText:   {},
	EvidenceMixed:  {},
}

// Evidence is one user-submitted proof item attached to a claim.
type Evidence struct {
	Type    EvidenceType           `json:"type"`
	URL     string                 `json:"url,omitempty"`
	QRID    string                 `json:"qr_id,omitempty"`
	Payload string                 `json:"payload,omitempty"`
	Text    string                 `json:"text,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// EvidenceList is the JSONB-backed evidence column.
type EvidenceList []Evidence

// Value implements driver.Valuer.
func (l EvidenceList) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *EvidenceList) Scan(src interface{}) error {
	return scanJSON(src, l)
}

// PromotionClaim is user-submitted evidence for an approval-gated
// mission. At most one pending claim may exist per
// (user, club, level_number, mission_key); a partial unique index
// enforces this and the repository maps the violation to a conflict.
// Resolved claims are immutable except for reward-grant bookkeeping.
type PromotionClaim struct {
	ID              string       `db:"id" json:"id"`
	UserID          string       `db:"user_id" json:"user_id"`
	ClubID          string       `db:"club_id" json:"club_id"`
	EventID         *string      `db:"event_id" json:"event_id,omitempty"`
	LevelNumber     int          `db:"level_number" json:"level_number"`
	MissionType     MissionType  `db:"mission_type" json:"mission_type"`
	MissionKey      string       `db:"mission_key" json:"mission_key"`
	Status          ClaimStatus  `db:"status" json:"status"`
	Evidence        EvidenceList `db:"evidence" json:"evidence"`
	UserNote        string       `db:"user_note" json:"user_note,omitempty"`
	ReviewedBy      *string      `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time   `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewNote      string       `db:"review_note" json:"review_note,omitempty"`
	RewardGranted   bool         `db:"reward_granted" json:"reward_granted"`
	RewardGrantedAt *time.Time   `db:"reward_granted_at" json:"reward_granted_at,omitempty"`
	IPAddress       string       `db:"ip_address" json:"-"`
	UserAgent       string       `db:"user_agent" json:"-"`
	CreatedAt       time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"`
}

// ClaimFilter captures list criteria for claims.
type ClaimFilter struct {
	UserID   string
	ClubID   string
	Status   ClaimStatus
	Page     int
	PageSize int
}
