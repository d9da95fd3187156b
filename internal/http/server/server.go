// Package server assembles the fiber application: middleware stack, document routes,
// metrics and API docs.
package server

import (
	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docfabric/docs"
	"docfabric/internal/http/handler"
	"docfabric/internal/http/middleware"
	"docfabric/internal/mcp"
	"docfabric/internal/service"
)

// multipartOverhead leaves room for form boundaries and the metadata field on top of
// the file itself.
const multipartOverhead = 1 << 20

// Options configures New.
type Options struct {
	Routes         handler.RouteConfig
	MaxUploadBytes int
	// Registry receives the HTTP metrics and backs /metrics. Nil disables metrics.
	Registry *prometheus.Registry
	// Quiet drops the request log middleware.
	Quiet bool
	// DocsHost is the host advertised in the OpenAPI document. Empty keeps the
	// registered default.
	DocsHost string
}

// New builds the fiber app serving the document API and the MCP tools at /mcp.
func New(docSvc service.DocumentService, opts Options) (*fiber.App, error) {
	if opts.DocsHost != "" {
		docs.SwaggerInfo.Host = opts.DocsHost
	}

	bodyLimit := fiber.DefaultBodyLimit
	if opts.MaxUploadBytes > 0 {
		bodyLimit = opts.MaxUploadBytes + multipartOverhead
	}

	app := fiber.New(fiber.Config{
		AppName:      "docfabric",
		ErrorHandler: handler.ErrorHandler(),
		BodyLimit:    bodyLimit,
	})

	app.Use(recover.New())
	app.Use(otelfiber.Middleware())
	app.Use(cors.New(cors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS",
		ExposeHeaders: "Content-Disposition," + middleware.RequestIDHeader,
	}))
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	if !opts.Quiet {
		app.Use(middleware.Logger())
	}

	if opts.Registry != nil {
		prom, err := middleware.NewPrometheusMiddleware(opts.Registry)
		if err != nil {
			return nil, err
		}
		app.Use(prom.Handler())
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})))
	}

	handler.RegisterRoutes(app, docSvc, opts.Routes)

	tools := mcp.NewServer(docSvc, mcp.Options{Version: docs.SwaggerInfo.Version, MaxListLimit: opts.Routes.MaxListLimit})
	app.All("/mcp", adaptor.HTTPHandler(mcp.Handler(tools)))

	app.Get("/swagger/*", swagger.HandlerDefault)

	return app, nil
}
