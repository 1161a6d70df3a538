package web

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/db/models"
	"github.com/docvault/docvault/internal/web/handler"
)

// HeaderUserID carries the authenticated user's ID, set by the fronting
// auth proxy. The service trusts this header; it must never be reachable
// without the proxy in between.
const HeaderUserID = "X-User-ID"

// IdentityMiddleware resolves the proxy-supplied user header to a user row
// and stores it in the request locals. Requests without a valid, active
// user stay anonymous; the handlers decide whether that is acceptable.
func IdentityMiddleware(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get(HeaderUserID)
		if raw == "" {
			return c.Next()
		}

		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || id == 0 {
			return c.Next()
		}

		var u models.User
		if err := db.First(&u, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Next()
			}

			return c.SendStatus(fiber.StatusInternalServerError)
		}

		if !u.Active {
			return c.Next()
		}

		c.Locals(handler.LocalsUser, &u)

		return c.Next()
	}
}
