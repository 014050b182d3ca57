package handlers

import (
	"net/http"

	"nexus-backend/internal/middleware"
	"nexus-backend/internal/models"
	"nexus-backend/internal/repository"
)

// MessageHandler serves the chat backfill a client fetches once when it
// attaches; everything after that arrives over the websocket hub.
type MessageHandler struct {
	messages *repository.MessageRepo
	users    *repository.UserRepo
}

func NewMessageHandler(messages *repository.MessageRepo, users *repository.UserRepo) *MessageHandler {
	return &MessageHandler{messages: messages, users: users}
}

func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}

	id := middleware.GetIdentity(r.Context())
	member, err := h.users.IsMemberOfGroup(r.Context(), id.UserID, groupID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
		return
	}
	if !member {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "You are not a member of this group", r))
		return
	}

	msgs, err := h.messages.ListByGroup(r.Context(), groupID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "An unexpected error occurred", r))
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": msgs})
}
