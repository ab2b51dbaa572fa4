package middleware

import (
	"errors"
	"fmt"

	"nebs-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// ErrorHandler is the global error handler. Returns the standard error format;
// the underlying error text is only exposed in development.
func ErrorHandler(development bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := response.MsgServerError

		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}

		ev := log.Error()
		if code < fiber.StatusInternalServerError {
			ev = log.Warn()
		}
		ev.Err(err).Str("trace_id", GetTraceID(c)).Str("method", c.Method()).Str("path", c.Path()).Int("status", code).Msg("Request failed")

		body := response.ErrorBody{
			Success:    false,
			Message:    message,
			StatusCode: code,
		}
		if development && code >= fiber.StatusInternalServerError {
			body.Error = err.Error()
		}
		return c.Status(code).JSON(body)
	}
}

// NotFound is the fallback for unmatched routes.
func NotFound() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return response.NotFound(c, fmt.Sprintf("Route %s not found", c.OriginalURL()))
	}
}
