// Package handler holds the shared plumbing of the web handlers: the
// registration interface, the request identity helpers and the JSON error
// rendering.
package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/apperr"
	"github.com/docvault/docvault/internal/config"
	"github.com/docvault/docvault/internal/db/models"
)

const (
	// RootPath is the root path of the route group.
	RootPath = "/"

	// LocalsUser is the fiber.Locals key the identity middleware stores the
	// authenticated user under.
	LocalsUser = "user"

	// ErrNilACDFatalLogMsg is used if app or cfg or db var pointer is nil.
	ErrNilACDFatalLogMsg = "app, cfg or db is nil"
)

// Service is the interface for a web handler service.
type Service interface {
	Init(app *fiber.App, cfg *config.Config, db *gorm.DB) error
}

// CurrentUser returns the authenticated user stored by the identity
// middleware, or nil when the request is anonymous.
func CurrentUser(c *fiber.Ctx) *models.User {
	u, ok := c.Locals(LocalsUser).(*models.User)
	if !ok {
		return nil
	}

	return u
}

// RequireUser aborts with 401 unless the request carries an identity.
func RequireUser(c *fiber.Ctx) (*models.User, error) {
	u := CurrentUser(c)
	if u == nil {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "authentication required"})
	}

	return u, nil
}

// RequireAdmin aborts with 401/403 unless the request carries an admin
// identity.
func RequireAdmin(c *fiber.Ctx) (*models.User, error) {
	u, err := RequireUser(c)
	if u == nil {
		return nil, err
	}

	if !u.IsAdmin() {
		return nil, c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "admin role required"})
	}

	return u, nil
}

// Fail renders err as a JSON error with the status mapped from its kind.
// Unclassified errors are logged and hidden behind a generic message.
func Fail(c *fiber.Ctx, err error) error {
	status := apperr.HTTPStatus(err)

	msg := err.Error()
	if !apperr.Classified(err) || status == fiber.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")

		msg = "internal error"
	}

	return c.Status(status).JSON(fiber.Map{"error": msg})
}

// ParamID parses a positive integer route parameter.
func ParamID(c *fiber.Ctx, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.New(apperr.KindConflict, "invalid "+name)
	}

	return id, nil
}
