package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

type InfoHandler struct {
	dataDir string
	dbOK    bool
	natsOK  bool
}

func NewInfoHandler(dataDir string, dbOK, natsOK bool) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, dbOK: dbOK, natsOK: natsOK}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	DataDir  string   `json:"data_dir" doc:"Data directory path"`
	DB       bool     `json:"db" doc:"Whether solve history is recorded"`
	NATS     bool     `json:"nats" doc:"Whether solve outcomes are published"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	features := []string{"service-area", "geocode", "datastar"}
	if h.dbOK {
		features = append(features, "duckdb")
	}
	if h.natsOK {
		features = append(features, "nats")
	}
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-servicearea",
		Version:  Version,
		DataDir:  h.dataDir,
		DB:       h.dbOK,
		NATS:     h.natsOK,
		Features: features,
	}}, nil
}
