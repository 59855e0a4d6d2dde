package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/fleetsapp/fleets/internal/convert"
	"github.com/fleetsapp/fleets/internal/errs"
	"github.com/fleetsapp/fleets/internal/model"
)

// handleListInbox returns unprocessed capture records.
func (s *Server) handleListInbox(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	recs, err := s.inbox.ListNew(r.Context(), userID)
	if err != nil {
		s.log.Error("list inbox", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "internal")
		return
	}
	out := make([]convert.InboxWire, 0, len(recs))
	for _, rec := range recs {
		out = append(out, convert.ToWireInbox(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCapture stores a structured capture record for later triage.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxNoteBodySize)

	var req struct {
		Items []model.InboxItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "bad payload: %v", err)
		return
	}
	rec, err := s.inbox.Capture(r.Context(), model.InboxRecord{UserID: userID, Items: req.Items})
	if err != nil {
		httpError(w, http.StatusBadRequest, "capture: %v", err)
		return
	}
	writeJSON(w, http.StatusCreated, convert.ToWireInbox(rec))
}

// handleInboxStatus flips a record to processed.
func (s *Server) handleInboxStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "bad id")
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "bad payload: %v", err)
		return
	}
	if model.InboxStatus(req.Status) != model.InboxProcessed {
		httpError(w, http.StatusBadRequest, "only processed is accepted")
		return
	}
	err = s.inbox.MarkProcessed(r.Context(), userID, id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, errs.ErrNotFound):
		httpError(w, http.StatusNotFound, "not found")
	default:
		s.log.Error("inbox status", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "internal")
	}
}
