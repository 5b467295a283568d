package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"go.uber.org/fx"

	"github.com/looplj/lifeline/internal/build"
	"github.com/looplj/lifeline/internal/collections"
	"github.com/looplj/lifeline/internal/live"
	"github.com/looplj/lifeline/internal/subscription"
)

type SystemHandlersParams struct {
	fx.In

	Registry *collections.Registry
	Manager  *subscription.Manager
}

func NewSystemHandlers(params SystemHandlersParams) *SystemHandlers {
	return &SystemHandlers{
		Registry: params.Registry,
		Manager:  params.Manager,
	}
}

type SystemHandlers struct {
	Registry *collections.Registry
	Manager  *subscription.Manager
}

const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

type HealthResponse struct {
	Status      string                 `json:"status"`
	Build       build.Info             `json:"build"`
	Collections map[string]live.Status `json:"collections"`
	LostTopics  []string               `json:"lost_topics,omitempty"`
}

// Health reports "degraded" while a collection is in error or a topic lost its live
// subscription. The service still answers with stale snapshots, so the status code stays 200.
func (h *SystemHandlers) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:      HealthOK,
		Build:       build.GetBuildInfo(),
		Collections: make(map[string]live.Status),
		LostTopics:  lo.Filter(h.Manager.Topics(), func(topic string, _ int) bool { return h.Manager.Lost(topic) }),
	}

	for _, name := range h.Registry.Names() {
		coll, err := h.Registry.Get(name)
		if err != nil {
			continue
		}

		status := coll.View().Status
		resp.Collections[name] = status

		if status == live.StatusError {
			resp.Status = HealthDegraded
		}
	}

	if len(resp.LostTopics) > 0 {
		resp.Status = HealthDegraded
	}

	c.JSON(http.StatusOK, resp)
}
