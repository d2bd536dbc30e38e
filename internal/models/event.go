package models

import "time"

// EventStatus represents the publication lifecycle of an event.
type EventStatus string

const (
	EventDraft     EventStatus = "DRAFT"
	EventPublished EventStatus = "PUBLISHED"
	EventCancelled EventStatus = "CANCELLED"
	EventFinished  EventStatus = "FINISHED"
)

// Event is a club-hosted happening tickets are sold for.
type Event struct {
	ID            string      `db:"id" json:"id"`
	ClubID        string      `db:"club_id" json:"club_id"`
	Name          string      `db:"name" json:"name"`
	Slug          string      `db:"slug" json:"slug"`
	Description   string      `db:"description" json:"description,omitempty"`
	Venue         string      `db:"venue" json:"venue,omitempty"`
	StartsAt      time.Time   `db:"starts_at" json:"starts_at"`
	EndsAt        *time.Time  `db:"ends_at" json:"ends_at,omitempty"`
	Status        EventStatus `db:"status" json:"status"`
	Capacity      int         `db:"capacity" json:"capacity"`
	TicketsIssued int         `db:"tickets_issued" json:"tickets_issued"`
	PriceCents    int64       `db:"price_cents" json:"price_cents"`
	Currency      string      `db:"currency" json:"currency"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// EventDetail enriches Event with club context for list/read responses.
type EventDetail struct {
	Event
	ClubName string `db:"club_name" json:"club_name"`
	ClubSlug string `db:"club_slug" json:"club_slug"`
}

// EventFilter provides filters for listing events.
type EventFilter struct {
	ClubID    string
	Status    EventStatus
	City      string
	From      *time.Time
	To        *time.Time
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
