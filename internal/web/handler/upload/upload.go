// Package upload provides the JSON handlers for the upload lifecycle:
// register, send the bytes, poll, cancel.
package upload

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/internal/db/models"
	"github.com/docvault/docvault/internal/upload"
	"github.com/docvault/docvault/internal/web/handler"
)

const (
	// Path is the base path for upload management.
	Path = handler.RootPath + "api/uploads"

	// FormFile is the multipart form field carrying the document bytes.
	FormFile = "file"
	// FormFolderID is the optional form field naming the target folder.
	FormFolderID = "folder_id"
)

type service struct {
	db       *gorm.DB
	pipeline *upload.Pipeline
}

// Handler is the upload handler service instance.
var Handler = &service{}

// Init registers the upload routes.
func (s *service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB, pipeline *upload.Pipeline) error {
	if app == nil || cfg == nil || db == nil || pipeline == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
	}

	s.db = db
	s.pipeline = pipeline

	app.Post(Path, s.register)
	app.Put(Path+"/:id/file", s.receive)
	app.Get(Path+"/:id", s.status)
	app.Delete(Path+"/:id", s.cancel)

	return nil
}

// register creates an upload descriptor. The client sends the bytes in a
// separate request so it can cancel the upload while they are in flight.
func (s *service) register(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	d := s.pipeline.Tracker().Register(u.ID)

	return c.Status(fiber.StatusAccepted).JSON(d)
}

// receive accepts the document bytes and runs the ingestion pipeline. The
// request blocks until the document is stored and extracted, cancelled, or
// failed. Extraction failure still returns the stored record.
func (s *service) receive(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	d, err := s.descriptor(c, u)
	if err != nil {
		return handler.Fail(c, err)
	}

	fh, err := c.FormFile(FormFile)
	if err != nil {
		return handler.Fail(c, apperr.New(apperr.KindConflict, "missing file field"))
	}

	var folderID *uint64
	if raw := c.FormValue(FormFolderID); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return handler.Fail(c, apperr.New(apperr.KindConflict, "invalid folder_id"))
		}

		folderID = &id
	}

	body, err := fh.Open()
	if err != nil {
		return handler.Fail(c, apperr.Internal(err, "failed to open uploaded file"))
	}
	defer body.Close()

	rec, err := s.pipeline.Process(c.Context(), upload.Request{
		UploadID: d.ID,
		UserID:   u.ID,
		IsAdmin:  u.IsAdmin(),
		Name:     fh.Filename,
		MimeType: fh.Header.Get(fiber.HeaderContentType),
		FolderID: folderID,
		Body:     body,
	})
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(rec)
}

func (s *service) status(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	d, err := s.descriptor(c, u)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(d)
}

func (s *service) cancel(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	if _, err := s.descriptor(c, u); err != nil {
		return handler.Fail(c, err)
	}

	d, err := s.pipeline.Cancel(c.Context(), c.Params("id"))
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(d)
}

// descriptor loads the upload descriptor and enforces that only its owner
// or an admin may touch it.
func (s *service) descriptor(c *fiber.Ctx, u *models.User) (upload.Descriptor, error) {
	d, ok := s.pipeline.Tracker().Get(c.Params("id"))
	if !ok {
		return upload.Descriptor{}, apperr.NotFound("upload")
	}

	if !u.IsAdmin() && d.UserID != u.ID {
		return upload.Descriptor{}, apperr.Forbidden("not your upload")
	}

	return d, nil
}
