// Package group provides the JSON handlers for managing groups, their
// members and their access level grants.
package group

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/access"
	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/internal/db/assoc"
	groupctl "github.com/docvault/docvault/internal/db/controller/group"
	"github.com/docvault/docvault/internal/db/retry"
	"github.com/docvault/docvault/internal/web/handler"
)

const (
	// Path is the base path for group management.
	Path = handler.RootPath + "api/groups"
)

type service struct {
	db *gorm.DB
}

// Handler is the group handler service instance.
var Handler handler.Service = &service{}

var validate = validator.New()

type groupRequest struct {
	Name        string `json:"name" validate:"required,min=1,max=255"`
	Description string `json:"description" validate:"max=1024"`
}

// The ID lists deliberately carry no "required" rule: an empty list is a
// valid request meaning "remove every association".
type membersRequest struct {
	UserIDs []uint64 `json:"user_ids"`
}

type levelsRequest struct {
	AccessLevelIDs []uint `json:"access_level_ids"`
}

// reconcileResponse reports the outcome of a membership or grant update,
// including how many transaction attempts the reconciliation needed.
type reconcileResponse struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Attempts int `json:"attempts"`
}

// Init registers the group routes. All of them require the admin role.
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
	app.Get(Path+"/:id/members", s.members)
	app.Put(Path+"/:id/members", s.setMembers)
	app.Get(Path+"/:id/access-levels", s.accessLevels)
	app.Put(Path+"/:id/access-levels", s.setAccessLevels)

	return nil
}

func (s *service) list(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	groups, err := groupctl.GetAll(s.db)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(groups)
}

func (s *service) create(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	var req groupRequest
	if err := parseBody(c, &req); err != nil {
		return handler.Fail(c, err)
	}

	g, err := groupctl.Create(s.db, req.Name, req.Description)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(g)
}

func (s *service) get(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	g, err := groupctl.GetByID(s.db, uint(id))
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(g)
}

func (s *service) update(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	var req groupRequest
	if err := parseBody(c, &req); err != nil {
		return handler.Fail(c, err)
	}

	g, err := groupctl.Update(s.db, uint(id), req.Name, req.Description)
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(g)
}

// delete removes the group. Its members lose every grant the group carried,
// so their caches are rebuilt from the membership recorded before the
// delete.
func (s *service) delete(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	members, err := memberIDs(s.db, uint(id))
	if err != nil {
		return handler.Fail(c, err)
	}

	if err := groupctl.Delete(s.db, uint(id)); err != nil {
		return handler.Fail(c, err)
	}

	s.refreshCaches(c, members)

	return c.SendStatus(fiber.StatusNoContent)
}

func (s *service) members(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	users, err := groupctl.Members(s.db, uint(id))
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(users)
}

// setMembers replaces the group's membership with the given user set. The
// reconciliation runs in a retried transaction; afterwards the access cache
// of every affected user is rebuilt.
func (s *service) setMembers(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	var req membersRequest
	if err := parseBody(c, &req); err != nil {
		return handler.Fail(c, err)
	}

	before, err := memberIDs(s.db, uint(id))
	if err != nil {
		return handler.Fail(c, err)
	}

	res, attempts, err := retry.Do(c.Context(), s.db, "group_set_members",
		func(tx *gorm.DB) (assoc.Result, error) {
			return groupctl.SetMembers(tx, uint(id), req.UserIDs)
		})
	if err != nil {
		return handler.Fail(c, err)
	}

	s.refreshCaches(c, union(before, req.UserIDs))

	return c.JSON(reconcileResponse{Added: res.Added, Removed: res.Removed, Attempts: attempts})
}

func (s *service) accessLevels(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	levels, err := groupctl.AccessLevels(s.db, uint(id))
	if err != nil {
		return handler.Fail(c, err)
	}

	return c.JSON(levels)
}

// setAccessLevels replaces the group's access level grants. Every member's
// cache is rebuilt afterwards since their visible file set changed.
func (s *service) setAccessLevels(c *fiber.Ctx) error {
	if u, err := handler.RequireAdmin(c); u == nil {
		return err
	}

	id, err := handler.ParamID(c, "id")
	if err != nil {
		return handler.Fail(c, err)
	}

	var req levelsRequest
	if err := parseBody(c, &req); err != nil {
		return handler.Fail(c, err)
	}

	res, attempts, err := retry.Do(c.Context(), s.db, "group_set_access_levels",
		func(tx *gorm.DB) (assoc.Result, error) {
			return groupctl.SetAccessLevels(tx, uint(id), req.AccessLevelIDs)
		})
	if err != nil {
		return handler.Fail(c, err)
	}

	members, err := memberIDs(s.db, uint(id))
	if err != nil {
		return handler.Fail(c, err)
	}

	s.refreshCaches(c, members)

	return c.JSON(reconcileResponse{Added: res.Added, Removed: res.Removed, Attempts: attempts})
}

func (s *service) refreshCaches(c *fiber.Ctx, userIDs []uint64) {
	if len(userIDs) == 0 {
		return
	}

	if err := access.RefreshUsers(c.Context(), s.db, userIDs); err != nil {
		// stale caches are safe; authorization always checks the live tables
		log.Error().Err(err).Msg("failed to refresh access caches after group change")
	}
}

func memberIDs(db *gorm.DB, groupID uint) ([]uint64, error) {
	users, err := groupctl.Members(db, groupID)
	if err != nil {
		return nil, err
	}

	ids := make([]uint64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}

	return ids, nil
}

func union(a, b []uint64) []uint64 {
	seen := make(map[uint64]bool, len(a)+len(b))
	out := make([]uint64, 0, len(a)+len(b))

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
