package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is one doubt-clarification entry in a group chat. DoubtID is
// assigned by the repository on insert and is the sole deduplication key for
// every receiver.
type Message struct {
	DoubtID    int64     `json:"doubt_id"`
	GroupID    int64     `json:"group_id"`
	SenderID   uuid.UUID `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	SenderRole string    `json:"sender_role"` // student | lecturer | system
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"created_at"`
	ReplyTo    *int64    `json:"reply_to"` // weak reference, may point at a tombstone
}

// ChatAction is an inbound frame on the group chat socket.
type ChatAction struct {
	Action   string `json:"action"` // "send" | "delete"
	Message  string `json:"message,omitempty"`
	ParentID *int64 `json:"parent_id,omitempty"`
	DoubtID  int64  `json:"doubt_id,omitempty"`
}

// ChatFrame is an outbound frame on the group chat socket.
type ChatFrame struct {
	Type       string     `json:"type"` // "message" | "delete" | "status" | "error"
	DoubtID    int64      `json:"doubt_id,omitempty"`
	Message    string     `json:"message,omitempty"`
	SenderID   *uuid.UUID `json:"sender_id,omitempty"`
	SenderName string     `json:"sender_name,omitempty"`
	SenderRole string     `json:"sender_role,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
	ReplyTo    *int64     `json:"reply_to,omitempty"`
	Code       string     `json:"code,omitempty"` // error frames only
}
