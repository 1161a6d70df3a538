// Package accesslevel provides the JSON handlers for managing access
// levels.
package accesslevel

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/access"
	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/config"
	levelctl "github.com/docvault/docvault/internal/db/controller/accesslevel"
	"github.com/docvault/docvault/internal/db/models"
	"github.com/docvault/docvault/internal/web/handler"
)

const (
	// Path is the base path for access level management.
	Path = handler.RootPath + "api/access-levels"
)

type service struct {
	db *gorm.DB
}

// Handler is the access level handler service instance.
var Handler handler.Service = &service{}

var validate = validator.New()

type levelRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=1024"`
	IsDefault   bool   `json:"is_default"`
}

// Init registers the access level routes. Listing is open to any
// authenticated user so file owners can pick levels; mutation is admin-only.
func (s *service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB) error {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
	}

	s.db = db

	app.Get(Path, s.list)
	app.Get(Path+"/defaults", s.defaults)
	app.Get(Path+"/:id", s.get)
	app.Post(Path, s.create)
	app.Put(Path+"/:id", s.update)
	app.Delete(Path+"/:id", s.delete)

	return nil
}

func (s *service) list(c *fiber.Ctx) error {
	if u, err := handler.RequireUser(c); u == nil {
		return err
	}

	levels, err := levelctl.GetAll(s.db)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(levels)
}

func (s *service) defaults(c *fiber.Ctx) error {
	if u, err := handler.RequireUser(c); u == nil {
		return err
	}

	levels, err := levelctl.Defaults(s.db)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(levels)
}

func (s *service) get(c *fiber.Ctx) error {
	if u, err := handler.RequireUser(c); u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	lvl, err := levelctl.GetByID(s.db, uint(id))
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(lvl)
}

func (s *service) create(c *fiber.Ctx) error {
	u, err := handler.RequireAdmin(c)
	if u == nil {
		return err
	}

	var req levelRequest
	if err := parseBody(c, &req); err != nil {
		return handler.Fail(c, err)
	}

	lvl, err := levelctl.Create(s.db, req.Name, req.Description, req.IsDefault, u.ID)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(lvl)
}

func (s *service) update(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	var req levelRequest
	if err := parseBody(c, &req); err != nil {
		return handler.Fail(c, err)
	}

	lvl, err := levelctl.Update(s.db, uint(id), req.Name, req.Description, req.IsDefault)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(lvl)
}

// delete removes the level and its assignments. Every user in a group the
// level was granted to may lose visibility, so their caches are rebuilt
// from the grants recorded before the delete.
func (s *service) delete(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	affected, err := grantedUserIDs(s.db, uint(id))
	if err != nil {
		return handler.Fail(c, err)
	}

	if err := levelctl.Delete(s.db, uint(id)); err != nil {
		return handler.Fail(c, err)
	}

	if len(affected) > 0 {
		if err := access.RefreshUsers(c.Context(), s.db, affected); err != nil {
			// stale caches are safe; authorization always checks the live tables
			log.Error().Err(err).Msg("failed to refresh access caches after level delete")
		}
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// grantedUserIDs returns the members of every group the level is granted to.
func grantedUserIDs(db *gorm.DB, levelID uint) ([]uint64, error) {
	var ids []uint64
	err := db.Model(&models.UserGroup{}).
		Distinct("user_groups.user_id").
		Joins("JOIN group_access_levels ON group_access_levels.group_id = user_groups.group_id").
		Where("group_access_levels.access_level_id = ?", levelID).
		Pluck("user_groups.user_id", &ids).Error
	if err != nil {
		return nil, apperr.Internal(err, "failed to find users affected by level delete")
	}

	return ids, nil
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
