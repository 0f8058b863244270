package middleware

import (
	"database/sql"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"docvault/internal/model"
	"docvault/internal/repository"
)

const (
	// CallerHeader carries the already-authenticated user id. Session and
	// token handling terminate upstream; this service only resolves the id
	// to a user record.
	CallerHeader = "X-User-ID"
	// CallerLocalKey is the fiber locals key holding the resolved model.User.
	CallerLocalKey = "caller"
)

// Identity resolves the caller identity for every request it guards. An
// absent, malformed or unknown id is rejected before any handler runs.
func Identity(users repository.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(CallerHeader)
		if id == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing identity")
		}
		if _, err := uuid.Parse(id); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid identity")
		}
		u, err := users.FindByID(c.UserContext(), id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return fiber.NewError(fiber.StatusUnauthorized, "unknown user")
			}
			return err
		}
		c.Locals(CallerLocalKey, *u)
		return c.Next()
	}
}

// Caller returns the identity stored by Identity.
func Caller(c *fiber.Ctx) (model.User, bool) {
	u, ok := c.Locals(CallerLocalKey).(model.User)
	return u, ok
}

// RequireAdmin guards admin-only routes. It must run after Identity.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		u, ok := Caller(c)
		if !ok || !u.IsAdmin() {
			return fiber.NewError(fiber.StatusForbidden, "admin role required")
		}
		return c.Next()
	}
}
