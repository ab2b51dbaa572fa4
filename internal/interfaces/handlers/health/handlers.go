package health

import (
	"crypto/subtle"

	healthsvc "nebs-backend/internal/application/health"
	"nebs-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Handlers holds dependencies for health endpoints.
type Handlers struct {
	Rdb            *redis.Client
	DB             healthsvc.Database
	HealthAdminKey string
}

// JSON returns the detailed health report.
func (h *Handlers) JSON(c *fiber.Ctx) error {
	return c.JSON(healthsvc.Collect(c.UserContext(), h.Rdb, h.DB))
}

// Errors returns the last logged 5xx responses, newest first.
func (h *Handlers) Errors(c *fiber.Ctx) error {
	entries, err := healthsvc.Errors(c.UserContext(), h.Rdb)
	if err != nil {
		log.Warn().Err(err).Msg("Reading error log failed")
		return c.Status(fiber.StatusServiceUnavailable).JSON(entries)
	}
	return c.JSON(entries)
}

// Reset clears traffic stats. Requires ?key=HEALTH_ADMIN_KEY.
func (h *Handlers) Reset(c *fiber.Ctx) error {
	key := c.Query("key")
	if h.HealthAdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.HealthAdminKey)) != 1 {
		return response.Error(c, "Unauthorized", fiber.StatusForbidden, "")
	}
	if h.Rdb == nil {
		return response.Error(c, "Request stats are disabled", fiber.StatusServiceUnavailable, "")
	}
	if err := healthsvc.Reset(c.UserContext(), h.Rdb); err != nil {
		return err
	}
	return response.Success(c, "Stats reset successfully", nil)
}
