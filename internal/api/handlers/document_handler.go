package handlers

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	middleware "github.com/davidekete/ragdesk/internal/api/middlewares"
	"github.com/davidekete/ragdesk/internal/services"
)

const maxUploadBytes = 52 << 20 // 52 MB

type DocumentHandler struct {
	docs *services.DocumentService
	log  *zap.SugaredLogger
}

func NewDocumentHandler(docs *services.DocumentService, log *zap.SugaredLogger) *DocumentHandler {
	return &DocumentHandler{docs: docs, log: log}
}

// Upload stores the file, creates the pending ledger row and queues the
// ingestion job. The response carries the document with processing_status
// "pending"; clients poll the status endpoint for progress.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user_id not found in context")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	folderPath := r.FormValue("folder_path")

	// Strip any path components from the client-supplied name.
	cleanName := filepath.Base(header.Filename)

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	doc, err := h.docs.UploadAndDispatch(uploadCtx, userID, cleanName, contentType, folderPath, header.Size, file)
	if err != nil {
		h.log.Errorw("upload failed", "user_id", userID, "file", cleanName, "error", err)
		writeError(w, http.StatusInternalServerError, "upload failed")
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user_id not found in context")
		return
	}

	documents, err := h.docs.ListByUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, documents)
}

// Status returns the full ledger row including processing_status,
// status_message and chunk progress counters.
func (h *DocumentHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user_id not found in context")
		return
	}

	doc, err := h.docs.Get(r.Context(), chi.URLParam(r, "documentID"), userID)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user_id not found in context")
		return
	}

	if err := h.docs.Delete(r.Context(), chi.URLParam(r, "documentID"), userID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Retry re-queues a failed document. Anything not in status "failed" is a
// conflict.
func (h *DocumentHandler) Retry(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "user_id not found in context")
		return
	}

	if err := h.docs.Retry(r.Context(), chi.URLParam(r, "documentID"), userID); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
}
