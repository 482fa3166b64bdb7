// Package router assembles the HTTP surface: the SOAP endpoint the desktop
// connector polls, the health endpoints, and the operator API.
package router

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qbridge/backend/internal/infrastructure/config"
	"github.com/qbridge/backend/internal/infrastructure/logger"
	"github.com/qbridge/backend/internal/interfaces/http/handler"
	"github.com/qbridge/backend/internal/interfaces/http/middleware"
)

// Handlers carries every handler the router mounts
type Handlers struct {
	Soap   *handler.SoapHandler
	System *handler.SystemHandler
	Admin  *handler.AdminHandler
}

// New builds the gin engine with the full middleware stack and all routes.
// Middleware order: request ID first so recovery and logging can tag their
// entries, then panic recovery, then request logging.
func New(cfg *config.Config, log *zap.Logger, h Handlers) (*gin.Engine, error) {
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			return nil, err
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.Secure())
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// the endpoint the desktop connector is registered against
	engine.POST("/qbwc", h.Soap.Handle)

	engine.GET("/health", h.System.Health)

	api := engine.Group("/api/v1")
	{
		system := api.Group("/system")
		system.GET("/info", h.System.GetSystemInfo)

		admin := api.Group("/admin")
		admin.GET("/checkpoints", h.Admin.ListCheckpoints)
		admin.DELETE("/checkpoints", h.Admin.ResetCheckpoints)
		admin.GET("/mappings/summary", h.Admin.GetMappingSummary)
		admin.GET("/sessions", h.Admin.GetSessionCount)
		admin.GET("/erp/records", h.Admin.ListERPRecords)
	}

	return engine, nil
}
