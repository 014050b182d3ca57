package models

import (
	"time"

	"github.com/google/uuid"
)

// Announcement covers both study materials and events. The two share one
// identifier namespace qualified by kind, e.g. "material-7" / "event-3", so a
// deletion notice can target the right sub-collection.
type Announcement struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"` // material | event
	GroupID    int64     `json:"group_id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	AuthorID   uuid.UUID `json:"author_id"`
	AuthorName string    `json:"author_name"`
	FileURL    *string   `json:"file_url"`
	CreatedAt  time.Time `json:"created_at"`
}

type PostAnnouncementRequest struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Content string `json:"content"`
	FileURL string `json:"file_url,omitempty"`
}
