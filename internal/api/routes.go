// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"database/sql"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-servicearea/internal/history"
	"github.com/joeblew999/plat-servicearea/internal/loop"
	"github.com/joeblew999/plat-servicearea/internal/service"
	"github.com/joeblew999/plat-servicearea/internal/session"
	"github.com/joeblew999/plat-servicearea/internal/templates"
)

// Version is reported by /health and /api/v1/info.
const Version = "0.1.0"

// Services holds the service dependencies for API handlers.
type Services struct {
	Sessions *session.Registry
	Settings *service.SettingsService
	History  *history.Store
	Renderer *templates.Renderer
	Bus      *service.EventBus
	// DB is the history database; nil when history is off.
	DB *sql.DB
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status   string `json:"status" doc:"Health status" example:"ok"`
	Version  string `json:"version" doc:"API version" example:"0.1.0"`
	Sessions int    `json:"sessions" doc:"Live widget sessions"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every handler group on api.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	n := 0
	if h.svc != nil && h.svc.Sessions != nil {
		n = h.svc.Sessions.Len()
	}
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: Version, Sessions: n}}, nil
}

// session resolves a path ID to a live session.
func (h *APIHandler) session(id string) (*session.Session, error) {
	if h.svc == nil || h.svc.Sessions == nil {
		return nil, huma.Error503ServiceUnavailable("sessions not available")
	}
	s, err := h.svc.Sessions.Get(id)
	if errors.Is(err, session.ErrNotFound) {
		return nil, huma.Error404NotFound("session not found")
	}
	if err != nil {
		return nil, huma.Error500InternalServerError("session lookup failed", err)
	}
	return s, nil
}

// loopError maps a failed Do to an HTTP error.
func loopError(err error) error {
	if errors.Is(err, loop.ErrClosed) {
		return huma.Error404NotFound("session closed")
	}
	return huma.Error500InternalServerError("session error", err)
}
