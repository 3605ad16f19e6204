// Package service holds the shared, persistent state behind the HTTP API:
// widget settings and the change bus live sessions listen on.
package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/joeblew999/plat-servicearea/internal/config"
)

// SettingsService manages the widget settings shared by new sessions.
type SettingsService struct {
	path     string
	bus      *EventBus
	settings config.Settings
	mu       sync.RWMutex
}

// NewSettingsService loads settings from path, falling back to the defaults.
// An empty path keeps settings in memory only.
func NewSettingsService(path string, bus *EventBus) (*SettingsService, error) {
	s, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	return &SettingsService{path: path, bus: bus, settings: s}, nil
}

// SettingsPath returns the default settings file inside dataDir.
func SettingsPath(dataDir string) string {
	return filepath.Join(dataDir, "settings.yaml")
}

// Get returns the current settings.
func (s *SettingsService) Get() config.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// SetDefaultTimezone fills an empty timezone without saving, so a server
// flag applies until the settings file names one.
func (s *SettingsService) SetDefaultTimezone(tz string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.settings.Timezone == "" {
		s.settings.Timezone = tz
	}
}

// Update validates, stores and announces new settings.
func (s *SettingsService) Update(next config.Settings) (config.Settings, error) {
	if err := next.Validate(); err != nil {
		return config.Settings{}, err
	}

	s.mu.Lock()
	if s.path != "" {
		if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
			s.mu.Unlock()
			return config.Settings{}, err
		}
		if err := config.Save(s.path, next); err != nil {
			s.mu.Unlock()
			return config.Settings{}, fmt.Errorf("save settings: %w", err)
		}
	}
	s.settings = next
	s.mu.Unlock()

	if s.bus != nil {
		s.bus.Publish(Event{Resource: ResourceSettings, Action: ActionUpdated})
	}
	return next, nil
}
