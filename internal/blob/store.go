// Package blob stores attachment binaries on local disk and resolves them to
// stable URLs served by the HTTP layer.
package blob

import (
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/gofrs/uuid/v5"
)

// Store writes uploaded binaries under dir and addresses them as
// urlPrefix/<generated name>.
type Store struct {
	dir       string
	urlPrefix string
}

// New creates the directory if needed.
func New(dir, urlPrefix string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("blob dir: %w", err)
	}
	return &Store{dir: dir, urlPrefix: urlPrefix}, nil
}

// Save persists the payload under a fresh opaque name, keeping the original
// extension so file servers infer the content type. Returns the public URL.
func (s *Store) Save(origName, contentType string, data []byte) (string, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return "", err
	}
	ext := filepath.Ext(origName)
	if ext == "" && contentType != "" {
		if exts, _ := mime.ExtensionsByType(contentType); len(exts) > 0 {
			ext = exts[0]
		}
	}
	name := id.String() + ext
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o640); err != nil {
		return "", err
	}
	return path.Join(s.urlPrefix, name), nil
}

// Handler serves stored blobs.
func (s *Store) Handler() http.Handler {
	return http.StripPrefix(s.urlPrefix, http.FileServer(http.Dir(s.dir)))
}
