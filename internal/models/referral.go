package models

import "time"

// ShareLink is a trackable referral link a user creates for an event or
// club. ClickCount/SignupCount are bumped with atomic column increments
// rather than read-modify-write.
type ShareLink struct {
	ID          string     `db:"id" json:"id"`
	Code        string     `db:"code" json:"code"`
	UserID      string     `db:"user_id" json:"user_id"`
	ClubID      *string    `db:"club_id" json:"club_id,omitempty"`
	EventID     *string    `db:"event_id" json:"event_id,omitempty"`
	TargetURL   string     `db:"target_url" json:"target_url"`
	ClickCount  int64      `db:"click_count" json:"click_count"`
	SignupCount int64      `db:"signup_count" json:"signup_count"`
	Active      bool       `db:"active" json:"active"`
	LastClickAt *time.Time `db:"last_click_at" json:"last_click_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
