package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/davidekete/ragdesk/internal/core/dispatch"
)

// IngestWebhookHandler accepts signed ingestion jobs over HTTP. It is the
// delivery path for deployments without a broker, or for external queue
// services that call back over HTTP.
type IngestWebhookHandler struct {
	pipeline dispatch.Processor
	// key and nextKey are both accepted so signing keys can rotate without a
	// window of rejected deliveries.
	key     string
	nextKey string
	log     *zap.SugaredLogger
}

func NewIngestWebhookHandler(pipeline dispatch.Processor, key, nextKey string, log *zap.SugaredLogger) *IngestWebhookHandler {
	return &IngestWebhookHandler{pipeline: pipeline, key: key, nextKey: nextKey, log: log}
}

// Handle verifies the HMAC signature over the raw body, then runs the
// pipeline synchronously. A non-2xx response tells the queue service to
// redeliver; duplicate deliveries are no-ops inside the pipeline.
func (h *IngestWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}

	sig := r.Header.Get(dispatch.SignatureHeader)
	if !dispatch.VerifySignature(body, sig, h.key, h.nextKey) {
		h.log.Warnw("webhook signature rejected", "remote", r.RemoteAddr)
		writeError(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var job dispatch.Job
	if err := json.Unmarshal(body, &job); err != nil || job.DocumentID == "" || job.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid job payload")
		return
	}

	if err := h.pipeline.Process(r.Context(), job.DocumentID, job.UserID); err != nil {
		h.log.Errorw("webhook job failed", "document_id", job.DocumentID, "error", err)
		writeError(w, http.StatusInternalServerError, "processing failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}
