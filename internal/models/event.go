package models

import "encoding/json"

const (
	EventCreate = "create"
	EventDelete = "delete"
)

const (
	KindMaterial = "material"
	KindEvent    = "event"
	KindDocument = "document"
)

// LiveEvent is the envelope pushed on a group's live update feed. ID is the
// kind-qualified identifier for announcements and the numeric document ID (as
// a string) for documents; Payload carries the created object on "create" and
// is empty on "delete".
type LiveEvent struct {
	Type    string          `json:"type"` // create | delete
	Kind    string          `json:"kind"` // material | event | document
	ID      string          `json:"id"`
	GroupID int64           `json:"group_id"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
