// Package user provides the admin JSON handlers for user accounts and the
// bulk access cache rebuild.
package user

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/access"
	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/internal/db/dberr"
	"github.com/docvault/docvault/internal/db/models"
	"github.com/docvault/docvault/internal/web/handler"
)

const (
	// Path is the base path for user management.
	Path = handler.RootPath + "api/users"
	// CacheRefreshPath triggers a bulk rebuild of every user's access cache.
	CacheRefreshPath = handler.RootPath + "api/admin/access-cache/refresh"
)

type service struct {
	db *gorm.DB
}

// Handler is the user handler service instance.
var Handler handler.Service = &service{}

var validate = validator.New()

type userRequest struct {
	Username string `json:"username" validate:"required,min=1,max=255"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"omitempty,min=8"`
	Role     string `json:"role" validate:"omitempty,oneof=admin user"`
	Active   *bool  `json:"active"`
}

// Init registers the user routes. All of them require the admin role.
func (s *service) Init(app *fiber.App, cfg *config.Config, db *gorm.DB) error {
	if app == nil || cfg == nil || db == nil {
		log.Fatal().Msg(handler.ErrNilACDFatalLogMsg)
	}

	s.db = db

	app.Get(Path, s.list)
	app.Post(Path, s.create)
	app.Get(Path+"/:id", s.get)
	app.Put(Path+"/:id", s.update)
	app.Delete(Path+"/:id", s.delete)
	app.Post(CacheRefreshPath, s.refreshCaches)

	return nil
}

func (s *service) list(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	var users []models.User
	if err := s.db.Order("username").Find(&users).Error; err != nil {
		return handler.Fail(c, apperr.Internal(err, "failed to load users"))
	}

	return c.JSON(users)
}

func (s *service) create(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	var req userRequest
	if err := parseBody(c, &req); err != nil {
		return handler.Fail(c, err)
	}

	if req.Password == "" {
		return handler.Fail(c, apperr.New(apperr.KindConflict, "password is required"))
	}

	role := models.RoleUser
	if req.Role != "" {
		role = models.Role(req.Role)
	}

	nu := &models.User{
		Active:   true,
		Username: req.Username,
		Email:    req.Email,
		Password: models.HashPassword(req.Password),
		Role:     role,
	}

	if err := s.db.Create(nu).Error; err != nil {
		if dberr.IsUniqueViolation(err) {
			return handler.Fail(c, apperr.Wrap(apperr.KindConflict, err, "username already taken"))
		}

		return handler.Fail(c, apperr.Internal(err, "failed to create user"))
	}

	return c.Status(fiber.StatusCreated).JSON(nu)
}

func (s *service) get(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	target, err := s.load(c)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(target)
}

func (s *service) update(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	target, err := s.load(c)
	if err != nil {
		return handler.Fail(c, err)
	}

	var req userRequest
	if err := parseBody(c, &req); err != nil {
		return handler.Fail(c, err)
	}

	target.Username = req.Username
	target.Email = req.Email

	if req.Password != "" {
		target.Password = models.HashPassword(req.Password)
	}

	if req.Role != "" {
		target.Role = models.Role(req.Role)
	}

	if req.Active != nil {
		target.Active = *req.Active
	}

	if err := s.db.Save(target).Error; err != nil {
		if dberr.IsUniqueViolation(err) {
			return handler.Fail(c, apperr.Wrap(apperr.KindConflict, err, "username already taken"))
		}

		return handler.Fail(c, apperr.Internal(err, "failed to update user"))
	}

	return c.JSON(target)
}

func (s *service) delete(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	target, err := s.load(c)
	if err != nil {
		return handler.Fail(c, err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&models.User{}, target.ID).Error; err != nil {
			return apperr.Internal(err, "failed to delete user")
		}

		// membership and cache cleanup for engines without FK enforcement
		if err := tx.Where("user_id = ?", target.ID).Delete(&models.UserGroup{}).Error; err != nil {
			return apperr.Internal(err, "failed to delete user memberships")
		}

		if err := tx.Where("user_id = ?", target.ID).Delete(&models.UserAccessFile{}).Error; err != nil {
			return apperr.Internal(err, "failed to delete cached access rows")
		}

		return nil
	})
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// refreshCaches rebuilds the access cache of every active user in batches.
func (s *service) refreshCaches(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	refreshed, err := access.RefreshAll(c.Context(), s.db, c.QueryInt("batch_size", 0))
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(fiber.Map{"refreshed": refreshed})
}

func (s *service) load(c *fiber.Ctx) (*models.User, error) {
	id, err := handler.ParamID(c, "id")
	if err != nil {
		return nil, err
	}

	var target models.User
	if err := s.db.First(&target, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user")
		}

		return nil, apperr.Internal(err, "failed to load user")
	}

	return &target, nil
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
