package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"docfabric/internal/http/middleware"
	"docfabric/internal/logging"
	"docfabric/internal/service"
)

// RouteConfig carries the HTTP-level knobs that come from configuration.
type RouteConfig struct {
	DefaultListLimit int
	MaxListLimit     int
	// PresignTTL > 0 makes /original redirect to a presigned URL when storage supports it.
	PresignTTL time.Duration
}

func (c RouteConfig) withDefaults() RouteConfig {
	if c.MaxListLimit <= 0 {
		c.MaxListLimit = 100
	}
	if c.DefaultListLimit <= 0 {
		c.DefaultListLimit = service.DefaultListLimit
	}
	if c.DefaultListLimit > c.MaxListLimit {
		c.DefaultListLimit = c.MaxListLimit
	}
	return c
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheck verifies the database and the bucket answer within two seconds.
func HealthCheck(p Pinger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			logging.Default().Error(logging.Fields{
				"component":     "http",
				"event":         "health_check_failed",
				"request_id":    middleware.RequestIDFrom(c),
				"error_message": err.Error(),
			})
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	}
}

// LivenessProbe answers 200 as long as the process serves requests.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// RegisterRoutes attaches the document API to app.
func RegisterRoutes(app *fiber.App, docSvc service.DocumentService, cfg RouteConfig) {
	cfg = cfg.withDefaults()

	app.Get("/health", HealthCheck(docSvc))
	app.Get("/healthz", LivenessProbe())

	app.Get("/documents", ListDocuments(docSvc, cfg))
	app.Post("/documents", UploadDocument(docSvc))
	app.Get("/documents/:id", GetDocument(docSvc))
	app.Put("/documents/:id", ReplaceDocument(docSvc))
	app.Delete("/documents/:id", DeleteDocument(docSvc))
	app.Get("/documents/:id/content", GetContent(docSvc))
	app.Get("/documents/:id/original", DownloadOriginal(docSvc, cfg))
}
