package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	appsync "github.com/qbridge/backend/internal/application/sync"
	"github.com/qbridge/backend/internal/domain/erp"
	"github.com/qbridge/backend/internal/domain/mapping"
	syncdomain "github.com/qbridge/backend/internal/domain/sync"
	"github.com/qbridge/backend/internal/interfaces/http/dto"
)

// AdminHandler exposes the operator surface: checkpoint inspection, forced
// full re-syncs, mapping statistics, and a read-only window into the remote
// ERP for drift checks. Session state is read through the session service so
// these endpoints never race a live protocol call.
type AdminHandler struct {
	BaseHandler
	pairing     string
	checkpoints syncdomain.CheckpointStore
	mappings    mapping.Repository
	sessions    *appsync.SessionService
	erp         erp.Client
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(pairing string, checkpoints syncdomain.CheckpointStore, mappings mapping.Repository, sessions *appsync.SessionService, erpClient erp.Client) *AdminHandler {
	return &AdminHandler{
		pairing:     pairing,
		checkpoints: checkpoints,
		mappings:    mappings,
		sessions:    sessions,
		erp:         erpClient,
	}
}

// CheckpointResponse is one committed checkpoint
type CheckpointResponse struct {
	ID          string `json:"id"`
	Entity      string `json:"entity"`
	Cursor      string `json:"cursor"`
	Outcome     string `json:"outcome"`
	CommittedAt string `json:"committed_at"`
}

// ListCheckpoints returns the committed checkpoint log, newest first
func (h *AdminHandler) ListCheckpoints(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	checkpoints, err := h.checkpoints.History(c.Request.Context(), h.pairing, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	out := make([]CheckpointResponse, 0, len(checkpoints))
	for _, cp := range checkpoints {
		out = append(out, CheckpointResponse{
			ID:          cp.ID.String(),
			Entity:      string(cp.Entity),
			Cursor:      cp.Cursor,
			Outcome:     string(cp.Outcome),
			CommittedAt: cp.CommittedAt.Format(time.RFC3339),
		})
	}
	h.SuccessWithMeta(c, out, int64(len(out)), limit)
}

// ResetCheckpoints drops every checkpoint for the pairing so the next
// session replays from the start. Identity mappings stay, so replayed
// records resolve to updates rather than duplicates.
func (h *AdminHandler) ResetCheckpoints(c *gin.Context) {
	if h.sessions.Busy() {
		h.Error(c, http.StatusConflict, dto.ErrCodeSessionBusy, "A session is in progress; reset after it finishes")
		return
	}
	if err := h.checkpoints.Reset(c.Request.Context(), h.pairing); err != nil {
		h.HandleError(c, err)
		return
	}
	h.NoContent(c)
}

// MappingSummaryResponse reports synced record counts per entity type
type MappingSummaryResponse struct {
	Pairing string           `json:"pairing"`
	Counts  map[string]int64 `json:"counts"`
	Total   int64            `json:"total"`
}

// GetMappingSummary returns how many records of each entity type have been
// mapped into the remote system
func (h *AdminHandler) GetMappingSummary(c *gin.Context) {
	counts, err := h.mappings.CountByEntity(c.Request.Context(), h.pairing)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := MappingSummaryResponse{
		Pairing: h.pairing,
		Counts:  make(map[string]int64, len(counts)),
	}
	for entity, n := range counts {
		resp.Counts[string(entity)] = n
		resp.Total += n
	}
	h.Success(c, resp)
}

// SessionCountResponse reports in-memory session occupancy
type SessionCountResponse struct {
	Active int  `json:"active"`
	Busy   bool `json:"busy"`
}

// GetSessionCount reports whether a session currently holds the pairing
func (h *AdminHandler) GetSessionCount(c *gin.Context) {
	h.Success(c, SessionCountResponse{
		Active: h.sessions.ActiveSessions(),
		Busy:   h.sessions.Busy(),
	})
}

// ListERPRecords reads a page of records straight from the remote ERP, so an
// operator can eyeball what the other side of the pairing actually holds.
func (h *AdminHandler) ListERPRecords(c *gin.Context) {
	entity := syncdomain.EntityType(c.Query("entity"))
	if !entity.IsValid() {
		h.BadRequest(c, "entity must be one of the sync entity types")
		return
	}

	offset := 0
	limit := 20
	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.BadRequest(c, "offset must be a non-negative integer")
			return
		}
		offset = parsed
	}
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	page, err := h.erp.List(c.Request.Context(), entity, offset, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, page.Records, int64(page.Total), limit)
}
