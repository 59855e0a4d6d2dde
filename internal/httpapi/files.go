package httpapi

import (
	"io"
	"net/http"

	"go.uber.org/zap"
)

const (
	blobURLPrefix   = "/files"
	maxUploadSize   = 20 << 20 // 20MB
	uploadFormField = "file"
)

// handleUpload accepts one multipart attachment and returns its resolved URL.
// The dispatcher uploads before inserting the note so the insert already
// carries the final URL.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		httpError(w, http.StatusBadRequest, "bad multipart body: %v", err)
		return
	}
	f, hdr, err := r.FormFile(uploadFormField)
	if err != nil {
		httpError(w, http.StatusBadRequest, "missing %q field", uploadFormField)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		httpError(w, http.StatusBadRequest, "read upload: %v", err)
		return
	}
	contentType := hdr.Header.Get("Content-Type")
	url, err := s.blobs.Save(hdr.Filename, contentType, data)
	if err != nil {
		s.log.Error("save blob", zap.Error(err))
		httpError(w, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"url":  url,
		"type": contentType,
		"name": hdr.Filename,
	})
}
