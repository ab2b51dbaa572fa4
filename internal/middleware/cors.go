package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	AllowedOrigins []string
	// Production rejects origins that are not listed; otherwise they are allowed and logged.
	Production bool
}

const (
	corsMethods        = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsHeaders        = "Content-Type, Authorization, X-Requested-With"
	corsExposedHeaders = "Content-Range, X-Content-Range"
)

// CORS returns a Fiber handler that echoes allowed origins with credentials and
// answers preflight requests with 204.
func CORS(cfg CORSConfig) fiber.Handler {
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}
	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		// No origin (same-origin, curl, mobile apps): allow
		if origin == "" {
			return c.Next()
		}
		if !allowed[origin] {
			if cfg.Production {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
					"success":    false,
					"message":    "Not allowed by CORS",
					"statusCode": fiber.StatusForbidden,
				})
			}
			log.Debug().Str("origin", origin).Msg("CORS: allowing unlisted origin outside production")
		}
		setCORSHeaders(c, origin)
		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}
		return c.Next()
	}
}

func setCORSHeaders(c *fiber.Ctx, origin string) {
	c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
	c.Set(fiber.HeaderAccessControlAllowCredentials, "true")
	c.Set(fiber.HeaderAccessControlAllowMethods, corsMethods)
	c.Set(fiber.HeaderAccessControlAllowHeaders, corsHeaders)
	c.Set(fiber.HeaderAccessControlExposeHeaders, corsExposedHeaders)
	c.Vary(fiber.HeaderOrigin)
}
