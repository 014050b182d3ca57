package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"nexus-backend/internal/middleware"
	"nexus-backend/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type messageStore interface {
	Create(ctx context.Context, m *models.Message) error
	GetByID(ctx context.Context, doubtID int64) (*models.Message, error)
	Delete(ctx context.Context, doubtID int64) error
}

// Hub runs the per-group doubt-clarification chat. It waits for the
// repository to assign a doubt_id before any broadcast, so receivers can
// deduplicate purely by identifier.
type Hub struct {
	registry *Registry
	messages messageStore
	jwt      *middleware.JWTAuth
	members  MembershipChecker
}

// MembershipChecker answers whether a user may attach to a group's chat.
type MembershipChecker interface {
	IsMemberOfGroup(ctx context.Context, userID uuid.UUID, groupID int64) (bool, error)
}

func NewHub(registry *Registry, messages messageStore, jwt *middleware.JWTAuth, members MembershipChecker) *Hub {
	return &Hub{
		registry: registry,
		messages: messages,
		jwt:      jwt,
		members:  members,
	}
}

// HandleWebSocket upgrades /ws/group/{groupID}?token=… into a chat session.
// Authentication happens before the upgrade; a caller outside the group is
// rejected, not silently attached.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid group ID", http.StatusBadRequest)
		return
	}

	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	identity, err := h.jwt.ParseToken(tokenStr)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	member, err := h.members.IsMemberOfGroup(r.Context(), identity.UserID, groupID)
	if err != nil {
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	if !member {
		http.Error(w, "Not a member of this group", http.StatusForbidden)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	session := h.registry.Register(groupID, identity, wsConn)
	h.registry.Broadcast(groupID, models.ChatFrame{
		Type:    "status",
		Message: fmt.Sprintf("%s joined the chat", identity.Name),
	}, nil)

	go h.readLoop(session, wsConn)
}

func (h *Hub) readLoop(s *Session, wsConn *websocket.Conn) {
	defer func() {
		// Connection loss unregisters exactly once; the registry tolerates a
		// session already dropped by a failed broadcast write.
		h.registry.Unregister(s)
		h.registry.Broadcast(s.GroupID, models.ChatFrame{
			Type:    "status",
			Message: fmt.Sprintf("%s left the chat", s.Identity.Name),
		}, nil)
	}()

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			return
		}
		h.HandleAction(context.Background(), s, data)
	}
}

// HandleAction processes one inbound frame from a session. Malformed or
// unauthorized actions produce an error frame for that session only.
func (h *Hub) HandleAction(ctx context.Context, s *Session, data []byte) {
	if !h.registry.IsRegistered(s) {
		h.sendError(s, "UNAUTHORIZED", "Session is not registered in this group")
		return
	}

	var action models.ChatAction
	if err := json.Unmarshal(data, &action); err != nil {
		h.sendError(s, "VALIDATION_ERROR", "Malformed action payload")
		return
	}

	switch action.Action {
	case "send":
		h.handleSend(ctx, s, action)
	case "delete":
		h.handleDelete(ctx, s, action)
	default:
		h.sendError(s, "VALIDATION_ERROR", fmt.Sprintf("Unknown action %q", action.Action))
	}
}

func (h *Hub) handleSend(ctx context.Context, s *Session, action models.ChatAction) {
	if strings.TrimSpace(action.Message) == "" {
		h.sendError(s, "VALIDATION_ERROR", "Message body must not be empty")
		return
	}

	msg := &models.Message{
		GroupID:    s.GroupID,
		SenderID:   s.Identity.UserID,
		SenderName: s.Identity.Name,
		SenderRole: s.Identity.Role,
		Message:    action.Message,
		ReplyTo:    action.ParentID,
	}

	// The doubt_id is authoritative. No frame leaves the hub until the
	// insert confirms it.
	if err := h.messages.Create(ctx, msg); err != nil {
		log.Printf("message insert failed: group %d: %v", s.GroupID, err)
		h.sendError(s, "INTERNAL_ERROR", "Failed to store message")
		return
	}

	senderID := msg.SenderID
	createdAt := msg.CreatedAt
	h.registry.Broadcast(s.GroupID, models.ChatFrame{
		Type:       "message",
		DoubtID:    msg.DoubtID,
		Message:    msg.Message,
		SenderID:   &senderID,
		SenderName: msg.SenderName,
		SenderRole: msg.SenderRole,
		CreatedAt:  &createdAt,
		ReplyTo:    msg.ReplyTo,
	}, nil)
}

func (h *Hub) handleDelete(ctx context.Context, s *Session, action models.ChatAction) {
	msg, err := h.messages.GetByID(ctx, action.DoubtID)
	if err != nil {
		h.sendError(s, "NOT_FOUND", "Message not found")
		return
	}

	// A session only speaks for its own group. Without this check an author
	// attached to another group could delete here and the owning group would
	// never see the tombstone.
	if msg.GroupID != s.GroupID {
		h.sendError(s, "FORBIDDEN", "Cannot delete this message")
		return
	}

	if msg.SenderID != s.Identity.UserID {
		h.sendError(s, "FORBIDDEN", "Cannot delete this message")
		return
	}

	if err := h.messages.Delete(ctx, action.DoubtID); err != nil {
		log.Printf("message delete failed: doubt %d: %v", action.DoubtID, err)
		h.sendError(s, "INTERNAL_ERROR", "Failed to delete message")
		return
	}

	// Receivers tombstone in place rather than removing, so replies keep a
	// resolvable parent. The tombstone goes to the group that owns the
	// message, which the check above pins to the session's group.
	h.registry.Broadcast(msg.GroupID, models.ChatFrame{
		Type:    "delete",
		DoubtID: action.DoubtID,
	}, nil)
}

func (h *Hub) sendError(s *Session, code, message string) {
	frame := models.ChatFrame{Type: "error", Code: code, Message: message}
	if err := s.conn.WriteJSON(frame); err != nil {
		h.registry.Unregister(s)
	}
}
