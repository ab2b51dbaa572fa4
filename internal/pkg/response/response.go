package response

import (
	"github.com/gofiber/fiber/v2"
)

// Standard messages.
const (
	MsgCreated         = "Resource created successfully"
	MsgUpdated         = "Resource updated successfully"
	MsgDeleted         = "Resource deleted successfully"
	MsgRetrieved       = "Resource retrieved successfully"
	MsgNotFound        = "Resource not found"
	MsgValidationError = "Validation error"
	MsgServerError     = "Internal server error"
)

// SuccessBody is the standardized success JSON shape.
type SuccessBody struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data"`
	StatusCode int         `json:"statusCode"`
}

// ErrorBody is the standardized error JSON shape. Error carries details in development only.
type ErrorBody struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message"`
	Errors     interface{} `json:"errors,omitempty"`
	Error      string      `json:"error,omitempty"`
	StatusCode int         `json:"statusCode"`
}

// Success sends a 200 OK response with the standard success format.
func Success(c *fiber.Ctx, message string, data interface{}) error {
	return send(c, fiber.StatusOK, message, data)
}

// SuccessCreated sends a 201 Created response with the standard success format.
func SuccessCreated(c *fiber.Ctx, message string, data interface{}) error {
	return send(c, fiber.StatusCreated, message, data)
}

// NoContent sends 204; clients get no body.
func NoContent(c *fiber.Ctx) error {
	return c.SendStatus(fiber.StatusNoContent)
}

func send(c *fiber.Ctx, status int, message string, data interface{}) error {
	return c.Status(status).JSON(SuccessBody{
		Success:    true,
		Message:    message,
		Data:       data,
		StatusCode: status,
	})
}

// Error sends a response with the standard error format.
func Error(c *fiber.Ctx, message string, statusCode int, detail string) error {
	return c.Status(statusCode).JSON(ErrorBody{
		Success:    false,
		Message:    message,
		Error:      detail,
		StatusCode: statusCode,
	})
}

// ValidationFailed sends 400 with per-field errors.
func ValidationFailed(c *fiber.Ctx, errs interface{}) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorBody{
		Success:    false,
		Message:    MsgValidationError,
		Errors:     errs,
		StatusCode: fiber.StatusBadRequest,
	})
}

// NotFound sends 404 with the same shape as other errors.
func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, message, fiber.StatusNotFound, "")
}
