package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"nexus-backend/internal/middleware"
	"nexus-backend/internal/models"
	"nexus-backend/internal/services"
)

type AnnouncementHandler struct {
	announcements *services.AnnouncementService
}

func NewAnnouncementHandler(announcements *services.AnnouncementService) *AnnouncementHandler {
	return &AnnouncementHandler{announcements: announcements}
}

func (h *AnnouncementHandler) List(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}

	anns, err := h.announcements.ListByGroup(r.Context(), middleware.GetIdentity(r.Context()), groupID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if anns == nil {
		anns = []*models.Announcement{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"announcements": anns})
}

func (h *AnnouncementHandler) Create(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}

	var req models.PostAnnouncementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	ann, err := h.announcements.Create(r.Context(), middleware.GetIdentity(r.Context()), groupID, req)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, ann)
}

func (h *AnnouncementHandler) Delete(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}
	annID := chi.URLParam(r, "annID")

	err := h.announcements.Delete(r.Context(), middleware.GetIdentity(r.Context()), groupID, annID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Announcement deleted"})
}

// groupIDParam parses the {groupID} route segment, writing the error response
// itself on failure.
func groupIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	groupID, err := strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid group id", r))
		return 0, false
	}
	return groupID, true
}
