// Package document provides the JSON handlers for browsing, searching and
// managing stored documents and the folder tree they live in.
package document

import (
	"mime"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/access"
	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/internal/db/assoc"
	filectl "github.com/docvault/docvault/internal/db/controller/file"
	"github.com/docvault/docvault/internal/db/models"
	"github.com/docvault/docvault/internal/db/retry"
	"github.com/docvault/docvault/internal/storage"
	"github.com/docvault/docvault/internal/web/handler"
)

const (
	// Path is the base path for document management.
	Path = handler.RootPath + "api/documents"
	// FolderPath is the base path for folder management.
	FolderPath = handler.RootPath + "api/folders"

	// dateOnly is the accepted short form for date filters.
	dateOnly = "2006-01-02"
)

type service struct {
	db    *gorm.DB
	store *storage.Store
}

// Handler is the document handler service instance.
var Handler = &service{}

var validate = validator.New()

type renameRequest struct {
	Name string `json:"name" validate:"required,min=1,max=255"`
}

type levelsRequest struct {
	AccessLevelIDs []uint `json:"access_level_ids"`
}

type reconcileResponse struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Attempts int `json:"attempts"`
}

// Init registers the document and folder routes.
func (s *service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB, store *storage.Store) error {
	if app == nil || cfg == nil || db == nil || store == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
	}

	s.db = db
	s.store = store

	app.Get(Path, s.search)
	app.Get(Path+"/cached", s.cached)
	app.Get(Path+"/:id", s.get)
	app.Get(Path+"/:id/download", s.download)
	app.Patch(Path+"/:id", s.rename)
	app.Delete(Path+"/:id", s.delete)
	app.Get(Path+"/:id/access-levels", s.accessLevels)
	app.Put(Path+"/:id/access-levels", s.setAccessLevels)

	s.initFolders(app)

	return nil
}

// search returns one page of the caller's visible documents, filtered by
// the query parameters.
func (s *service) search(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	filters, err := parseFilters(c)
	if err != nil {
		return handler.Fail(c, err)
	}

	page, err := access.Search(
		s.db, u.ID, u.IsAdmin(), filters,
		c.QueryInt("page", 1), c.QueryInt("per_page", 0),
	)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(page)
}

// cached returns one page of the caller's accessible documents read from
// the materialized cache. It trades the live join graph for a single
// indexed lookup; a stale cache can lag a just-changed grant until the next
// refresh, never leak one, since per-document access stays on the live
// tables.
func (s *service) cached(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	page, err := access.CachedPage(
		s.db, u.ID, u.IsAdmin(),
		c.QueryInt("page", 1), c.QueryInt("per_page", 0),
	)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(page)
}

func (s *service) get(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	f, err := s.visibleFile(c, u)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(f)
}

func (s *service) download(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	f, err := s.visibleFile(c, u)
	if err != nil {
		return handler.Fail(c, err)
	}

	r, err := s.store.Open(f.StoragePath)
	if err != nil {
		return handler.Fail(c, err)
	}

	contentType := f.MimeType
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(f.OriginalName))
	}

	c.Set(fiber.HeaderContentType, contentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+f.OriginalName+`"`)

	return c.SendStream(r, int(f.SizeBytes))
}

func (s *service) rename(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	var req renameRequest
	if err := parseBody(c, &req); err != nil {
		return handler.Fail(c, err)
	}

	f, err := filectl.Rename(s.db, id, u.ID, u.IsAdmin(), req.Name)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(f)
}

func (s *service) delete(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	path, err := filectl.Delete(s.db, id, u.ID, u.IsAdmin())
	if err != nil {
		return handler.Fail(c, err)
	}

	s.store.SafeDelete(path)

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *service) accessLevels(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	f, err := s.visibleFile(c, u)
	if err != nil {
		return handler.Fail(c, err)
	}

	levels, err := filectl.AccessLevels(s.db, f.ID)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(levels)
}

// setAccessLevels replaces a document's level assignments in a retried
// transaction, then rebuilds the cache of every user whose visibility the
// change may have touched.
func (s *service) setAccessLevels(c *fiber.Ctx) error {
	u, err := handler.RequireUser(c)
	if u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	f, err := filectl.GetByID(s.db, id)
	if err != nil {
		return handler.Fail(c, err)
	}

	if !u.IsAdmin() && f.UploadedByUserID != u.ID {
		return handler.Fail(c, apperr.Forbidden("only the owner or an admin may change document access"))
	}

	var req levelsRequest
	if err := parseBody(c, &req); err != nil {
		return handler.Fail(c, err)
	}

	before, err := assignedLevelIDs(s.db, id)
	if err != nil {
		return handler.Fail(c, err)
	}

	res, attempts, err := retry.Do(c.Context(), s.db, "file_set_access_levels",
		func(tx *gorm.DB) (assoc.Result, error) {
			return filectl.SetAccessLevels(tx, id, req.AccessLevelIDs)
		})
	if err != nil {
		return handler.Fail(c, err)
	}

	s.refreshAffected(c, unionUint(before, req.AccessLevelIDs))

	return c.JSON(reconcileResponse{Added: res.Added, Removed: res.Removed, Attempts: attempts})
}

// visibleFile loads the file from the route parameter and enforces the
// caller's visibility against the live tables.
func (s *service) visibleFile(c *fiber.Ctx, u *models.User) (*models.File, error) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		return nil, err
	}

	f, err := filectl.GetByID(s.db, id)
	if err != nil {
		return nil, err
	}

	ok, err := access.CanAccess(s.db, u.ID, u.IsAdmin(), id)
	if err != nil {
		return nil, err
	}

	if !ok {
		// hide the document's existence from users who cannot see it
		return nil, apperr.NotFound("document")
	}

	return f, nil
}

// refreshAffected rebuilds the cache of every user who belongs to a group
// granted one of the given levels.
func (s *service) refreshAffected(c *fiber.Ctx, levelIDs []uint) {
	if len(levelIDs) == 0 {
		return
	}

	var userIDs []uint64
	err := s.db.Model(&models.UserGroup{}).
		Distinct("user_groups.user_id").
		Joins("JOIN group_access_levels ON group_access_levels.group_id = user_groups.group_id").
		Where("group_access_levels.access_level_id IN ?", levelIDs).
		Pluck("user_groups.user_id", &userIDs).Error
	if err != nil {
		log.Error().Err(err).Msg("failed to find users affected by level change")

		return
	}

	if err := access.RefreshUsers(c.Context(), s.db, userIDs); err != nil {
		log.Error().Err(err).Msg("failed to refresh access caches after level change")
	}
}

func assignedLevelIDs(db *gorm.DB, fileID uint64) ([]uint, error) {
	var ids []uint
	err := db.Model(&models.FileAccessLevel{}).
		Where("file_id = ?", fileID).
		Pluck("access_level_id", &ids).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to load assigned levels")
	}

	return ids, nil
}

func parseFilters(c *fiber.Ctx) (access.Filters, error) {
	f := access.Filters{
		Name:      c.Query("name"),
		Extension: c.Query("extension"),
		Content:   c.Query("content"),
		OwnerOnly: c.QueryBool("owner_only"),
	}

	for param, dst := range map[string]**time.Time{
		"uploaded_from": &f.UploadedFrom,
		"uploaded_to":   &f.UploadedTo,
		"modified_from": &f.ModifiedFrom,
		"modified_to":   &f.ModifiedTo,
	} {
		raw := c.Query(param)
		if raw == "" {
			continue
		}

		ts, err := parseDate(raw)
		if err != nil {
			return f, apperr.New(apperr.KindConflict, "invalid "+param+" date")
		}

		*dst = &ts
	}

	return f, nil
}

func parseDate(raw string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}

	return time.ParseInLocation(dateOnly, raw, time.Local)
}

func unionUint(a, b []uint) []uint {
	seen := make(map[uint]bool, len(a)+len(b))
	out := make([]uint, 0, len(a)+len(b))

	for _, id := range append(a, b...) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	return out
}

func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return apperr.Wrap(apperr.KindConflict, err, "invalid request body")
	}

	if err := validate.Struct(out); err != nil {
		return apperr.Wrap(apperr.KindConflict, err, "invalid request body")
	}

	return nil
}
