package api

import (
	"squish/internal/web"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

// SetupRouter creates and configures the echo router with all routes and
// middleware. HTTP metrics land on the given registry next to the domain
// instruments.
func SetupRouter(handler *Handler, reg *prometheus.Registry) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))
	e.Use(RequestLogger())
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "http",
		Registerer: reg,
	}))

	// Health, stats & metrics
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleStats)
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{
		Gatherer: reg,
	}))

	// Compression
	e.POST("/api/compress", handler.HandleCompress)

	// Stored files
	e.GET("/uploads/:filename", handler.HandleDownload)
	e.GET("/api/info/:filename", handler.HandleInfo)

	// Demo page
	e.StaticFS("/", web.StaticFS)

	return e
}
