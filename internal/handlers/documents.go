package handlers

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"nexus-backend/internal/middleware"
	"nexus-backend/internal/services"
)

type DocumentHandler struct {
	documents *services.DocumentService
}

func NewDocumentHandler(documents *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}

	docs, err := h.documents.ListByGroup(r.Context(), middleware.GetIdentity(r.Context()), groupID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid multipart body", r))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "A file is required", r))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Could not read uploaded file", r))
		return
	}

	var deadline *time.Time
	if raw := r.FormValue("deadline"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Deadline must be RFC3339", r))
			return
		}
		deadline = &parsed
	}

	doc, err := h.documents.Upload(r.Context(), middleware.GetIdentity(r.Context()), groupID,
		r.FormValue("title"), header.Filename, data, deadline)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, doc)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	groupID, ok := groupIDParam(w, r)
	if !ok {
		return
	}
	docID, ok := documentIDParam(w, r)
	if !ok {
		return
	}

	err := h.documents.Delete(r.Context(), middleware.GetIdentity(r.Context()), groupID, docID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Document deleted"})
}

// Sign takes the single best-lit frame from the client's liveness burst and
// records a verified signature on a match.
func (h *DocumentHandler) Sign(w http.ResponseWriter, r *http.Request) {
	docID, ok := documentIDParam(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(16 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid multipart body", r))
		return
	}

	file, _, err := r.FormFile("img")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "A face frame is required", r))
		return
	}
	defer file.Close()

	frame, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Could not read face frame", r))
		return
	}

	resp, err := h.documents.Sign(r.Context(), middleware.GetIdentity(r.Context()), docID, frame)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func documentIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	docID, err := strconv.ParseInt(chi.URLParam(r, "documentID"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid document id", r))
		return 0, false
	}
	return docID, true
}
