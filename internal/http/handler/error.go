package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"docfabric/internal/http/middleware"
	"docfabric/internal/logging"
	"docfabric/internal/service"
)

// errorPayload defines the standardized error response body. Detail repeats the
// human-readable message at the top level for clients that only look there.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Detail    string        `json:"detail"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a standardized JSON error response. message must be safe to show
// to end users.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		RequestID: middleware.RequestIDFrom(c),
		Detail:    message,
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	})
}

// writeServiceError maps a service failure onto the HTTP error taxonomy. Anything
// unrecognized is logged and reported as a 500 without internal details.
func writeServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
	case errors.Is(err, service.ErrIDRequired):
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
	case errors.Is(err, service.ErrTooLarge):
		return writeError(c, fiber.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds the upload limit")
	case errors.Is(err, service.ErrEmptyFile):
		return writeError(c, fiber.StatusBadRequest, "EMPTY_FILE", "file is empty")
	case errors.Is(err, service.ErrInvalidInput):
		return writeError(c, fiber.StatusBadRequest, "INVALID_FILE", "file could not be read")
	case errors.Is(err, service.ErrInvalidRange):
		return writeError(c, fiber.StatusRequestedRangeNotSatisfiable, "INVALID_RANGE", "requested range is outside the document")
	case errors.Is(err, service.ErrContentUnavailable):
		return writeError(c, fiber.StatusConflict, "CONTENT_CHANGED", "document changed while being read, retry")
	}

	logging.Default().Error(logging.Fields{
		"component":     "http",
		"event":         "request_failed",
		"request_id":    middleware.RequestIDFrom(c),
		"method":        c.Method(),
		"path":          c.Path(),
		"error_message": err.Error(),
	})
	return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "FILE_TOO_LARGE", "request body exceeds the upload limit")
		}
		if fe != nil {
			return writeError(c, status, "HTTP_ERROR", fe.Message)
		}
		return writeServiceError(c, err)
	}
}
