package models

import "time"

// Club is a venue/organizer account that events and promotion ladders
// hang off.
type Club struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Slug           string    `db:"slug" json:"slug"`
	Description    string    `db:"description" json:"description,omitempty"`
	City           string    `db:"city" json:"city,omitempty"`
	OwnerID        string    `db:"owner_id" json:"owner_id"`
	FollowersCount int64     `db:"followers_count" json:"followers_count"`
	Active         bool      `db:"active" json:"active"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}
