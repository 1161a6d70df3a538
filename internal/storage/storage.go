// Package storage persists uploaded bytes on the local disk.
package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/config"
)

// copyBufSize is the chunk size for streaming uploads to disk.
const copyBufSize = 1 << 20

// Store writes and removes uploaded files under a dedicated directory tree.
type Store struct {
	uploadDir string
	tempDir   string
	maxSize   int64
}

// New prepares the upload and temp directories and returns a Store.
func New(cfg config.Storage) (*Store, error) {
	for _, dir := range []string{cfg.UploadDir, cfg.TempDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, apperr.Internal(err, "failed to create storage directory")
		}
	}

	return &Store{
		uploadDir: cfg.UploadDir,
		tempDir:   cfg.TempDir,
		maxSize:   cfg.MaxUploadSize,
	}, nil
}

// Save streams r to a new file in the upload directory and returns the
// stored path and byte count. The stored name is prefixed with a unix
// timestamp so repeated uploads of the same file never collide. Writes
// beyond the configured maximum size abort and leave nothing behind.
func (s *Store) Save(name string, r io.Reader) (string, int64, error) {
	path := filepath.Join(s.uploadDir, fmt.Sprintf("%d_%s", time.Now().UnixNano(), sanitize(name)))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", 0, apperr.Internal(err, "failed to create stored file")
	}

	limited := io.LimitReader(r, s.maxSize+1)
	buf := make([]byte, copyBufSize)

	written, err := io.CopyBuffer(f, limited, buf)
	if cerr := f.Close(); cerr != nil && err == nil {
		err = cerr
	}

	if err != nil {
		s.SafeDelete(path)

		return "", 0, apperr.Internal(err, "failed to write stored file")
	}

	if written > s.maxSize {
		s.SafeDelete(path)

		return "", 0, apperr.New(apperr.KindConflict, "file exceeds the maximum upload size")
	}

	return path, written, nil
}

// Open returns a reader over a stored file.
func (s *Store) Open(path string) (io.ReadCloser, error) {
	if !s.contains(path) {
		return nil, apperr.Forbidden("path is outside the storage directory")
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.NotFound("stored file")
		}

		return nil, apperr.Internal(err, "failed to open stored file")
	}

	return f, nil
}

// SafeDelete removes a stored file, refusing paths outside the upload
// directory and treating an already-missing file as success. Failures are
// logged rather than returned because callers run this during cleanup.
func (s *Store) SafeDelete(path string) {
	if path == "" {
		return
	}

	if !s.contains(path) {
		log.Warn().Str("path", path).Msg("refusing to delete file outside storage directory")

		return
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Error().Err(err).Str("path", path).Msg("failed to delete stored file")
	}
}

func (s *Store) contains(path string) bool {
	rel, err := filepath.Rel(s.uploadDir, path)
	if err != nil {
		return false
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// sanitize strips any directory components from a client-supplied name.
func sanitize(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == string(filepath.Separator) || name == "" {
		return "upload"
	}

	return name
}
