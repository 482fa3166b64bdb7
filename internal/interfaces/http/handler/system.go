package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qbridge/backend/internal/domain/erp"
	"github.com/qbridge/backend/internal/infrastructure/logger"
	"github.com/qbridge/backend/internal/infrastructure/persistence"
)

// SystemHandler handles system-related API endpoints
type SystemHandler struct {
	BaseHandler
	db        *persistence.Database
	erpClient erp.Client
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(db *persistence.Database, erpClient erp.Client) *SystemHandler {
	return &SystemHandler{
		db:        db,
		erpClient: erpClient,
		startTime: time.Now(),
	}
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// GetSystemInfo returns basic system information including version and uptime
func (h *SystemHandler) GetSystemInfo(c *gin.Context) {
	info := SystemInfoResponse{
		Name:      "QBridge Sync Server",
		Version:   "1.0.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	h.Success(c, info)
}

// HealthResponse reports the reachability of each dependency
type HealthResponse struct {
	Status   string `json:"status"`
	Time     string `json:"time"`
	Database string `json:"database"`
	ERP      string `json:"erp"`
}

// Health checks the database and the remote ERP. A degraded ERP still
// reports 200: sessions queue behind checkpoints and recover on their own,
// so only a dead database makes the process unhealthy.
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:   "healthy",
		Time:     time.Now().Format(time.RFC3339),
		Database: "ok",
		ERP:      "ok",
	}
	status := http.StatusOK

	if err := h.db.Ping(); err != nil {
		logger.GetGinLogger(c).Warn("health check: database unreachable")
		resp.Status = "unhealthy"
		resp.Database = "error"
		status = http.StatusServiceUnavailable
	}

	if err := h.erpClient.Ping(c.Request.Context()); err != nil {
		logger.GetGinLogger(c).Warn("health check: erp unreachable")
		resp.ERP = "error"
		if resp.Status == "healthy" {
			resp.Status = "degraded"
		}
	}

	c.JSON(status, resp)
}
