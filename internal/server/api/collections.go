package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/fx"

	"github.com/looplj/lifeline/internal/collections"
	"github.com/looplj/lifeline/internal/live"
	"github.com/looplj/lifeline/internal/objects"
	"github.com/looplj/lifeline/internal/store"
)

type CollectionHandlersParams struct {
	fx.In

	Registry *collections.Registry
	Config   Config
}

func NewCollectionHandlers(params CollectionHandlersParams) *CollectionHandlers {
	return &CollectionHandlers{
		Registry: params.Registry,
		Config:   params.Config,
		limiters: newRefreshLimiters(params.Config.RefreshRate, params.Config.RefreshBurst),
		upgrader: newUpgrader(params.Config.WebSocketOrigins),
	}
}

type CollectionHandlers struct {
	Registry *collections.Registry
	Config   Config

	limiters *refreshLimiters
	upgrader websocketUpgrader
}

type CollectionSummary struct {
	Name      string      `json:"name"`
	Status    live.Status `json:"status"`
	Error     string      `json:"error,omitempty"`
	UpdatedAt time.Time   `json:"updated_at,omitzero"`
}

// List returns the status of every collection.
func (h *CollectionHandlers) List(c *gin.Context) {
	summaries := lo.FilterMap(h.Registry.Names(), func(name string, _ int) (CollectionSummary, bool) {
		coll, err := h.Registry.Get(name)
		if err != nil {
			return CollectionSummary{}, false
		}

		view := coll.View()

		return CollectionSummary{
			Name:      name,
			Status:    view.Status,
			Error:     view.Error,
			UpdatedAt: view.UpdatedAt,
		}, true
	})

	c.JSON(http.StatusOK, gin.H{"collections": summaries})
}

// Get returns the current snapshot of a collection. The ETag is a hash of the body,
// so clients polling with If-None-Match get 304 until the snapshot or status changes.
func (h *CollectionHandlers) Get(c *gin.Context) {
	coll, err := h.Registry.Get(c.Param("name"))
	if err != nil {
		JSONError(c, errorStatus(err), err)
		return
	}

	body, err := json.Marshal(coll.View())
	if err != nil {
		JSONError(c, http.StatusInternalServerError, err)
		return
	}

	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
	c.Header("ETag", etag)

	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}

	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// Refresh re-reads a collection now and returns the resulting view.
func (h *CollectionHandlers) Refresh(c *gin.Context) {
	name := c.Param("name")

	coll, err := h.Registry.Get(name)
	if err != nil {
		JSONError(c, errorStatus(err), err)
		return
	}

	if !h.limiters.Allow(name) {
		JSONError(c, http.StatusTooManyRequests, fmt.Errorf("refresh of %s is rate limited", name))
		return
	}

	if err := coll.Refresh(c.Request.Context()); err != nil {
		JSONError(c, errorStatus(err), err)
		return
	}

	c.JSON(http.StatusOK, coll.View())
}

func (h *CollectionHandlers) CreateRecord(c *gin.Context) {
	h.write(c, store.OpInsert, http.StatusCreated)
}

func (h *CollectionHandlers) UpsertRecord(c *gin.Context) {
	h.write(c, store.OpUpsert, http.StatusOK)
}

func (h *CollectionHandlers) UpdateRecord(c *gin.Context) {
	h.write(c, store.OpUpdate, http.StatusOK)
}

func (h *CollectionHandlers) DeleteRecord(c *gin.Context) {
	h.write(c, store.OpDelete, http.StatusOK)
}

func (h *CollectionHandlers) write(c *gin.Context, op store.Op, status int) {
	var payload json.RawMessage

	if op != store.OpDelete {
		body, err := c.GetRawData()
		if err != nil || !json.Valid(body) {
			JSONError(c, http.StatusBadRequest, errors.New("request body must be a JSON object"))
			return
		}

		payload = body
	}

	record, err := h.Registry.Write(c.Request.Context(), store.Mutation{
		Topic:   c.Param("name"),
		Op:      op,
		ID:      c.Param("id"),
		Payload: payload,
	})
	if err != nil {
		JSONError(c, errorStatus(err), err)
		return
	}

	c.JSON(status, record)
}

// CreateIncidentReportRequest is the public report form.
type CreateIncidentReportRequest struct {
	Type        objects.IncidentType `json:"type"         binding:"required"`
	Severity    objects.Severity     `json:"severity"     binding:"required,oneof=low medium high critical"`
	Location    string               `json:"location"     binding:"required"`
	Description string               `json:"description"  binding:"required"`
	ContactInfo *string              `json:"contact_info"`
	IsAnonymous bool                 `json:"is_anonymous"`
	Images      []string             `json:"images"       binding:"omitempty,dive,required"`
}

func (h *CollectionHandlers) CreateIncidentReport(c *gin.Context) {
	var req CreateIncidentReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, fmt.Errorf("invalid request format: %w", err))
		return
	}

	report, err := h.Registry.CreateIncidentReport(c.Request.Context(), objects.NewIncidentReport{
		Type:        req.Type,
		Severity:    req.Severity,
		Location:    req.Location,
		Description: req.Description,
		ContactInfo: req.ContactInfo,
		IsAnonymous: req.IsAnonymous,
		Images:      req.Images,
	})
	if err != nil {
		JSONError(c, errorStatus(err), err)
		return
	}

	c.JSON(http.StatusCreated, report)
}
