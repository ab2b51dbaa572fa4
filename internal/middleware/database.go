package middleware

import (
	"context"

	"nebs-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// Connector makes sure the shared database connection is usable.
type Connector interface {
	EnsureConnected(ctx context.Context) error
}

// RequireDatabase answers 503 when no database connection can be established
// for a route that needs one.
func RequireDatabase(db Connector) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := db.EnsureConnected(c.UserContext()); err != nil {
			log.Error().Err(err).Str("trace_id", GetTraceID(c)).Str("path", c.Path()).Msg("Database unavailable")
			return response.Error(c, "Database unavailable", fiber.StatusServiceUnavailable, "")
		}
		return c.Next()
	}
}
