package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-servicearea/internal/apperr"
	"github.com/joeblew999/plat-servicearea/internal/config"
)

// RegisterSettings registers the settings routes.
func (h *APIHandler) RegisterSettings(api huma.API) {
	huma.Get(api, "/api/v1/settings", h.GetSettings, huma.OperationTags("settings"))
	huma.Put(api, "/api/v1/settings", h.PutSettings, huma.OperationTags("settings"))
}

type SettingsOutput struct {
	Body config.Settings
}

type SettingsInput struct {
	Body config.Settings
}

func (h *APIHandler) GetSettings(ctx context.Context, input *struct{}) (*SettingsOutput, error) {
	return &SettingsOutput{Body: h.svc.Settings.Get()}, nil
}

// PutSettings saves the settings and pushes them to every live session.
// Settings the widget would reject are refused with 422.
func (h *APIHandler) PutSettings(ctx context.Context, input *SettingsInput) (*SettingsOutput, error) {
	saved, err := h.svc.Settings.Update(input.Body)
	if err != nil {
		var cfgErr *apperr.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, huma.Error422UnprocessableEntity(cfgErr.Error())
		}
		return nil, huma.Error500InternalServerError("failed to save settings", err)
	}
	return &SettingsOutput{Body: saved}, nil
}
