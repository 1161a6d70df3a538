// Package upload drives the ingestion lifecycle of a document: receive the
// bytes, register a database row, run text extraction, and let the client
// cancel the whole thing cooperatively at any point in between.
package upload

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docvault/docvault/internal/apperr"
)

// Status is the lifecycle state of an in-flight upload.
type Status string

const (
	// StatusUploading means the bytes are still being received or stored.
	StatusUploading Status = "uploading"
	// StatusProcessing means the row exists and extraction is running.
	StatusProcessing Status = "processing"
	// StatusDone means the upload finished; terminal, the descriptor is
	// dropped right after.
	StatusDone Status = "done"
	// StatusCancelled means the client withdrew the upload; terminal, the
	// descriptor is dropped once cleanup ran.
	StatusCancelled Status = "cancelled"
)

// Descriptor is the in-memory record of one in-flight upload.
type Descriptor struct {
	ID          string    `json:"upload_id"`
	UserID      uint64    `json:"user_id"`
	Status      Status    `json:"status"`
	StoragePath string    `json:"-"`
	FileID      uint64    `json:"file_id,omitempty"`
	StartedAt   time.Time `json:"started_at"`
}

// Tracker holds the descriptors of all in-flight uploads. It is safe for
// concurrent use; a missing descriptor is treated the same as a cancelled
// one so a crashed or evicted upload can never keep processing.
type Tracker struct {
	mu      sync.RWMutex
	uploads map[string]*Descriptor
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{uploads: make(map[string]*Descriptor)}
}

// Register creates a descriptor for a new upload and returns its snapshot.
func (t *Tracker) Register(userID uint64) Descriptor {
	d := &Descriptor{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    StatusUploading,
		StartedAt: time.Now(),
	}

	t.mu.Lock()
	t.uploads[d.ID] = d
	t.mu.Unlock()

	return *d
}

// Get returns a snapshot of the descriptor.
func (t *Tracker) Get(id string) (Descriptor, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	d, ok := t.uploads[id]
	if !ok {
		return Descriptor{}, false
	}

	return *d, true
}

// update mutates the descriptor under the lock, reporting whether it exists.
func (t *Tracker) update(id string, fn func(*Descriptor)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.uploads[id]
	if !ok {
		return false
	}

	fn(d)

	return true
}

// Err returns a cancelled error when the upload is cancelled or unknown,
// nil otherwise. The pipeline polls this before every processing step.
func (t *Tracker) Err(id string) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	d, ok := t.uploads[id]
	if !ok || d.Status == StatusCancelled {
		return apperr.New(apperr.KindCancelled, "upload cancelled")
	}

	return nil
}

// Cancel marks the upload cancelled and returns its last snapshot. Uploads
// that already finished cannot be cancelled.
func (t *Tracker) Cancel(id string) (Descriptor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.uploads[id]
	if !ok {
		return Descriptor{}, apperr.NotFound("upload")
	}

	if d.Status == StatusDone {
		return *d, apperr.New(apperr.KindConflict, "upload already finished")
	}

	d.Status = StatusCancelled

	return *d, nil
}

// Remove drops the descriptor entirely.
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	delete(t.uploads, id)
	t.mu.Unlock()
}
