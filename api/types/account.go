package types

import "time"

// TrackedAccount is an X/Twitter account the worker watches. Records are
// created through the admin API and consumed by the rotation scheduler;
// the scraping pipeline never mutates them.
type TrackedAccount struct {
	Handle     string    `json:"handle" bson:"handle"`
	ProfileURL string    `json:"profile_url" bson:"profile_url"`
	Active     bool      `json:"active" bson:"active"`
	Category   string    `json:"category,omitempty" bson:"category,omitempty"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at"`
}

// SchedulerCursor is the persisted rotation position. There is a single
// named cursor per rotation; LastIndex is always >= 0 and is reset to 0
// whenever the tracked-account list shrinks below it.
type SchedulerCursor struct {
	Name      string `json:"name" bson:"name"`
	LastIndex int    `json:"last_index" bson:"last_index"`
}
