package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/fleetsapp/fleets/internal/convert"
	"github.com/fleetsapp/fleets/internal/errs"
	"github.com/fleetsapp/fleets/internal/model"
)

const maxNoteBodySize = 256 << 10

// handleListNotes returns the full reconciliation snapshot, created_at ASC.
func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	notes, err := s.notes.List(r.Context(), userID)
	if err != nil {
		s.log.Error("list notes", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "internal")
		return
	}
	out := make([]convert.NoteWire, 0, len(notes))
	for _, n := range notes {
		out = append(out, convert.ToWireNote(n))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleInsertNote persists a note under its client-generated id.
func (s *Server) handleInsertNote(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, maxNoteBodySize)

	var wire convert.NoteWire
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		httpError(w, http.StatusBadRequest, "bad payload: %v", err)
		return
	}
	// the authenticated caller owns the note regardless of the payload
	wire.UserID = userID.String()
	n, err := convert.FromWireNote(wire)
	if err != nil {
		httpError(w, http.StatusBadRequest, "bad note: %v", err)
		return
	}
	if err := s.notes.Insert(r.Context(), n); err != nil {
		if errors.Is(err, errs.ErrAlreadyExists) {
			httpError(w, http.StatusConflict, "id taken")
			return
		}
		s.log.Error("insert note", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusCreated, convert.ToWireNote(n))
}

// notePatchWire mirrors the PATCH body; absent fields stay untouched.
type notePatchWire struct {
	Content   *string    `json:"content"`
	FileURL   *string    `json:"file_url"`
	FileType  *string    `json:"file_type"`
	FileName  *string    `json:"file_name"`
	IsPinned  *bool      `json:"is_pinned"`
	UpdatedAt *time.Time `json:"updated_at"`
}

// handleUpdateNote applies a partial update keyed by id.
func (s *Server) handleUpdateNote(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "bad id")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxNoteBodySize)

	var wire notePatchWire
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		httpError(w, http.StatusBadRequest, "bad payload: %v", err)
		return
	}
	patch := model.NotePatch{Content: wire.Content, IsPinned: wire.IsPinned}
	if wire.FileURL != nil {
		patch.Attachment = &model.Attachment{URL: *wire.FileURL}
		if wire.FileType != nil {
			patch.Attachment.Kind = *wire.FileType
		}
		if wire.FileName != nil {
			patch.Attachment.Name = *wire.FileName
		}
	}
	if wire.UpdatedAt != nil {
		patch.UpdatedAt = *wire.UpdatedAt
	}

	n, err := s.notes.Update(r.Context(), userID, id, patch)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, convert.ToWireNote(n))
	case errors.Is(err, errs.ErrNotFound):
		httpError(w, http.StatusNotFound, "not found")
	default:
		s.log.Error("update note", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "internal")
	}
}

// handleDeleteNote removes a note by id.
func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, http.StatusBadRequest, "bad id")
		return
	}
	err = s.notes.Delete(r.Context(), userID, id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, errs.ErrNotFound):
		httpError(w, http.StatusNotFound, "not found")
	default:
		s.log.Error("delete note", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "internal")
	}
}
