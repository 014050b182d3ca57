package live

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"nexus-backend/internal/middleware"
)

// MembershipChecker gates feed attachment the same way the chat hub gates
// socket attachment.
type MembershipChecker interface {
	IsMemberOfGroup(ctx context.Context, userID uuid.UUID, groupID int64) (bool, error)
}

// SSEHandler streams a group's live update feed as server-sent events.
// EventSource cannot set headers, so like the websocket endpoint it
// authenticates via a token query parameter.
type SSEHandler struct {
	broker  *Broker
	jwt     *middleware.JWTAuth
	members MembershipChecker
}

func NewSSEHandler(broker *Broker, jwt *middleware.JWTAuth, members MembershipChecker) *SSEHandler {
	return &SSEHandler{broker: broker, jwt: jwt, members: members}
}

func (h *SSEHandler) HandleFeed(w http.ResponseWriter, r *http.Request) {
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

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher.Flush()

	events, cancel := h.broker.Subscribe(groupID)
	defer cancel()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				// Dropped as a slow subscriber; the client reconnects and
				// refetches the list to fill the gap.
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: " + string(payload) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
