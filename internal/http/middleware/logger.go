package middleware

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"docfabric/internal/logging"
)

// Logger is a middleware that logs each HTTP request as one JSON line through the
// process-wide logger. Fields:
// - request_id (taken from context locals set by RequestID middleware)
// - method, path and route pattern
// - status
// - latency (in milliseconds, as float)
func Logger() fiber.Handler {
	return requestLogger(logging.Default())
}

// LoggerWithWriter is Logger writing to w with timestamps in loc.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	return requestLogger(logging.New(w, loc))
}

func requestLogger(log *logging.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}

		fields := logging.Fields{
			"component":  "http",
			"request_id": RequestIDFrom(c),
			"method":     c.Method(),
			"path":       c.Path(),
			"route":      c.Route().Path,
			"status":     status,
			"latency":    float64(time.Since(start).Microseconds()) / 1000,
		}
		if status >= fiber.StatusInternalServerError {
			log.Error(fields)
		} else {
			log.Info(fields)
		}
		return err
	}
}
