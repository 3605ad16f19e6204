package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-servicearea/internal/db"
	"github.com/joeblew999/plat-servicearea/internal/history"
)

// RegisterHistory registers the solve history routes.
func (h *APIHandler) RegisterHistory(api huma.API) {
	huma.Get(api, "/api/v1/history", h.ListHistory, huma.OperationTags("history"))
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("history"))
}

type HistoryInput struct {
	Session string `query:"session" doc:"Only entries for this session"`
	Limit   int    `query:"limit" minimum:"1" maximum:"500" default:"50" doc:"Maximum entries"`
}

type HistoryOutput struct {
	Body []history.Entry
}

// ListHistory returns recorded solves, newest first.
func (h *APIHandler) ListHistory(ctx context.Context, input *HistoryInput) (*HistoryOutput, error) {
	if h.svc.History == nil {
		return nil, huma.Error503ServiceUnavailable("History not available")
	}
	entries, err := h.svc.History.Recent(ctx, input.Session, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to read history", err)
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return &HistoryOutput{Body: entries}, nil
}

// TablesOutput is the response for listing tables.
type TablesOutput struct {
	Body struct {
		Tables []string `json:"tables" doc:"List of table names"`
	}
}

// ListTables returns all DuckDB tables.
func (h *APIHandler) ListTables(ctx context.Context, input *struct{}) (*TablesOutput, error) {
	if h.svc.DB == nil {
		return nil, huma.Error503ServiceUnavailable("Database not available")
	}
	tables, err := db.Tables(h.svc.DB)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	out := &TablesOutput{}
	out.Body.Tables = tables
	if out.Body.Tables == nil {
		out.Body.Tables = []string{}
	}
	return out, nil
}
