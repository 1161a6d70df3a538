package upload

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/access"
	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/db/controller/accesslevel"
	"github.com/docvault/docvault/internal/db/controller/file"
	"github.com/docvault/docvault/internal/db/controller/folder"
	"github.com/docvault/docvault/internal/db/models"
	"github.com/docvault/docvault/internal/db/retry"
	"github.com/docvault/docvault/internal/extract"
	"github.com/docvault/docvault/internal/storage"
)

// Pipeline runs uploads end to end: store the bytes, create the database
// row, extract text, and keep the tracker's descriptor in sync throughout.
type Pipeline struct {
	db        *gorm.DB
	store     *storage.Store
	extractor *extract.Client
	tracker   *Tracker
}

// NewPipeline wires a Pipeline.
func NewPipeline(db *gorm.DB, store *storage.Store, extractor *extract.Client, tracker *Tracker) *Pipeline {
	return &Pipeline{db: db, store: store, extractor: extractor, tracker: tracker}
}

// Tracker exposes the pipeline's upload tracker.
func (p *Pipeline) Tracker() *Tracker {
	return p.tracker
}

// Request describes one incoming upload.
type Request struct {
	UploadID string
	UserID   uint64
	IsAdmin  bool
	Name     string
	MimeType string
	FolderID *uint64
	Body     io.Reader
}

// Process runs the upload and returns the stored file record. Extraction
// failure does not fail the upload: the record is returned with a failed
// status and the error message recorded. Cancellation at any checkpoint
// removes everything the upload created so far and returns a cancelled
// error.
func (p *Pipeline) Process(ctx context.Context, req Request) (*models.File, error) {
	if err := p.tracker.Err(req.UploadID); err != nil {
		return nil, err
	}

	path, size, err := p.store.Save(req.Name, req.Body)
	if err != nil {
		p.tracker.Remove(req.UploadID)

		return nil, err
	}

	p.tracker.update(req.UploadID, func(d *Descriptor) { d.StoragePath = path })

	if err := p.tracker.Err(req.UploadID); err != nil {
		p.store.SafeDelete(path)

		return nil, err
	}

	rec, err := p.createRecord(ctx, req, path, size)
	if err != nil {
		p.store.SafeDelete(path)
		p.tracker.Remove(req.UploadID)

		return nil, err
	}

	p.tracker.update(req.UploadID, func(d *Descriptor) {
		d.FileID = rec.ID
		d.Status = StatusProcessing
	})

	if err := p.grantDefaultAccess(ctx, rec); err != nil {
		log.Error().Err(err).Uint64("file_id", rec.ID).Msg("failed to grant default access")
	}

	if err := p.extractText(ctx, req, rec); err != nil {
		if apperr.Is(err, apperr.KindCancelled) {
			p.rollback(ctx, req.UploadID, rec)

			return nil, err
		}

		// the document stays usable without text
		msg := err.Error()
		if uerr := p.setExtraction(ctx, rec.ID, "", models.StatusFailed, msg); uerr != nil {
			log.Error().Err(uerr).Uint64("file_id", rec.ID).Msg("failed to record extraction failure")
		}

		rec.Status = models.StatusFailed
		rec.ErrorMessage = msg
	}

	if err := p.tracker.Err(req.UploadID); err != nil {
		p.rollback(ctx, req.UploadID, rec)

		return nil, err
	}

	// terminal state: the descriptor is dropped, so a later status poll
	// reports the upload as absent and cancellation is no longer possible
	p.tracker.update(req.UploadID, func(d *Descriptor) { d.Status = StatusDone })
	p.tracker.Remove(req.UploadID)

	if _, _, err := access.Refresh(ctx, p.db, req.UserID, req.IsAdmin); err != nil {
		log.Error().Err(err).Uint64("user_id", req.UserID).Msg("failed to refresh access cache after upload")
	}

	return rec, nil
}

// Cancel withdraws an upload and cleans up whatever it already created.
func (p *Pipeline) Cancel(ctx context.Context, uploadID string) (Descriptor, error) {
	d, err := p.tracker.Cancel(uploadID)
	if err != nil {
		return d, err
	}

	// the processing goroutine observes the cancelled status at its next
	// checkpoint; cleanup here covers uploads with no active goroutine
	if d.FileID != 0 {
		err := p.db.WithContext(ctx).Delete(&models.File{}, d.FileID).Error
		if err != nil {
			log.Error().Err(err).Uint64("file_id", d.FileID).Msg("failed to delete cancelled upload row")
		}
	}

	p.store.SafeDelete(d.StoragePath)
	p.tracker.Remove(uploadID)

	return d, nil
}

func (p *Pipeline) createRecord(ctx context.Context, req Request, path string, size int64) (*models.File, error) {
	folderPath := ""
	if req.FolderID != nil {
		f, err := folder.GetByID(p.db, *req.FolderID)
		if err != nil {
			return nil, err
		}

		folderPath = f.Path
	}

	rec, _, err := retry.Do(ctx, p.db, "file_create", func(tx *gorm.DB) (*models.File, error) {
		rec := &models.File{
			OriginalName:     req.Name,
			Extension:        strings.TrimPrefix(filepath.Ext(req.Name), "."),
			MimeType:         req.MimeType,
			SizeBytes:        size,
			StoragePath:      path,
			UploadedByUserID: req.UserID,
			FolderID:         req.FolderID,
			FolderPath:       folderPath,
			Status:           models.StatusUploaded,
		}

		if err := file.Create(tx, rec); err != nil {
			return nil, err
		}

		rec.DownloadLink = fmt.Sprintf("/api/documents/%d/download", rec.ID)

		err := tx.Model(rec).Update("download_link", rec.DownloadLink).Error
		if err != nil {
			return nil, apperr.Internal(err, "failed to set download link")
		}

		return rec, nil
	})

	return rec, err
}

// grantDefaultAccess assigns every default access level to the new file.
func (p *Pipeline) grantDefaultAccess(ctx context.Context, rec *models.File) error {
	defaults, err := accesslevel.Defaults(p.db)
	if err != nil {
		return err
	}

	if len(defaults) == 0 {
		return nil
	}

	ids := make([]uint, 0, len(defaults))
	for _, d := range defaults {
		ids = append(ids, d.ID)
	}

	_, _, err = retry.Do(ctx, p.db, "file_default_levels", func(tx *gorm.DB) (struct{}, error) {
		_, err := file.SetAccessLevels(tx, rec.ID, ids)

		return struct{}{}, err
	})

	return err
}

func (p *Pipeline) extractText(ctx context.Context, req Request, rec *models.File) error {
	r, err := p.store.Open(rec.StoragePath)
	if err != nil {
		return err
	}
	defer r.Close()

	check := func() error { return p.tracker.Err(req.UploadID) }

	res, err := extract.Run(ctx, p.extractor, rec.OriginalName, rec.MimeType, r, check)
	if err != nil {
		return err
	}

	if err := p.setExtraction(ctx, rec.ID, res.Text, models.StatusProcessed, ""); err != nil {
		return err
	}

	rec.ExtractedText = res.Text
	rec.Status = models.StatusProcessed

	if res.Failed > 0 {
		log.Warn().
			Int("failed_units", res.Failed).
			Uint64("file_id", rec.ID).
			Msg("document extracted with failed units")
	}

	return nil
}

func (p *Pipeline) setExtraction(ctx context.Context, id uint64, text string, status models.ProcessingStatus, msg string) error {
	_, _, err := retry.Do(ctx, p.db, "file_set_extraction", func(tx *gorm.DB) (struct{}, error) {
		return struct{}{}, file.SetExtraction(tx, id, text, status, msg)
	})

	return err
}

// rollback removes everything a cancelled upload created.
func (p *Pipeline) rollback(ctx context.Context, uploadID string, rec *models.File) {
	if rec != nil && rec.ID != 0 {
		err := p.db.WithContext(ctx).Delete(&models.File{}, rec.ID).Error
		if err != nil {
			log.Error().Err(err).Uint64("file_id", rec.ID).Msg("failed to delete cancelled upload row")
		}

		p.store.SafeDelete(rec.StoragePath)
	}

	p.tracker.Remove(uploadID)
}
