package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-servicearea/internal/api"
	"github.com/joeblew999/plat-servicearea/internal/arcgis"
	"github.com/joeblew999/plat-servicearea/internal/config"
	"github.com/joeblew999/plat-servicearea/internal/db"
	"github.com/joeblew999/plat-servicearea/internal/geocode"
	"github.com/joeblew999/plat-servicearea/internal/history"
	"github.com/joeblew999/plat-servicearea/internal/metrics"
	"github.com/joeblew999/plat-servicearea/internal/naservice"
	"github.com/joeblew999/plat-servicearea/internal/orchestrator"
	"github.com/joeblew999/plat-servicearea/internal/publisher"
	"github.com/joeblew999/plat-servicearea/internal/service"
	"github.com/joeblew999/plat-servicearea/internal/session"
	"github.com/joeblew999/plat-servicearea/internal/templates"
	"github.com/joeblew999/plat-servicearea/internal/widget"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string
	// SettingsPath defaults to settings.yaml in DataDir.
	SettingsPath string
	// WebDir overrides the embedded fragment templates when set.
	WebDir string
	// NATSURL enables publishing solve outcomes.
	NATSURL string
	// Timezone is used when the settings file names none.
	Timezone string
	// NoHistory skips opening DuckDB.
	NoHistory bool
}

// Server is the service area HTTP server.
type Server struct {
	config    Config
	mux       *http.ServeMux
	humaAPI   huma.API
	db        *sql.DB
	services  *api.Services
	metrics   *metrics.Collector
	publisher *publisher.NATSPublisher
	bus       *service.EventBus
	busCh     chan service.Event
	done      chan struct{}
}

// New creates a new service area server.
func New(cfg Config) (*Server, error) {
	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaAPI := humago.New(mux, apiConfig(cfg))

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humaAPI,
		metrics: metrics.NewCollector(),
		bus:     service.NewEventBus(),
		done:    make(chan struct{}),
	}

	settingsPath := cfg.SettingsPath
	if settingsPath == "" {
		settingsPath = service.SettingsPath(cfg.DataDir)
	}
	settingsSvc, err := service.NewSettingsService(settingsPath, s.bus)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	if cfg.Timezone != "" {
		settingsSvc.SetDefaultTimezone(cfg.Timezone)
	}

	// Fragment templates: embedded, or from disk for development
	renderer, err := templates.NewEmbedded()
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}
	if cfg.WebDir != "" {
		fragmentsDir := filepath.Join(cfg.WebDir, "templates", "fragments")
		if r, err := templates.New(fragmentsDir); err == nil {
			renderer = r
			log.Printf("loaded fragment templates from %s", fragmentsDir)
		}
	}

	// Initialize DuckDB connection
	var store *history.Store
	if !cfg.NoHistory {
		conn, err := db.Get(db.Config{
			DataDir: cfg.DataDir,
			DBName:  "servicearea",
		})
		if err == nil {
			s.db = conn
			store, err = history.New(context.Background(), conn)
		}
		if err != nil {
			log.Printf("history disabled: %v", err)
			store = nil
		}
	}

	if cfg.NATSURL != "" {
		p, err := publisher.NewNATSPublisher(cfg.NATSURL, false, s.metrics)
		if err != nil {
			log.Printf("nats disabled: %v", err)
		} else {
			s.publisher = p
		}
	}

	client := arcgis.NewClient()
	sessions := session.NewRegistry(session.Options{
		Service:     naservice.NewClient(client),
		NewGeocoder: GeocoderFactory(client),
		Observer:    s.metrics,
		OnSolve:     s.solved,
		OnCount:     func(n int) { s.metrics.SessionsActive.Set(float64(n)) },
	})

	s.services = &api.Services{
		Sessions: sessions,
		Settings: settingsSvc,
		History:  store,
		Renderer: renderer,
		Bus:      s.bus,
		DB:       s.db,
	}

	s.busCh = s.bus.Subscribe()
	go s.applySettings()

	s.routes()
	return s, nil
}

func apiConfig(cfg Config) huma.Config {
	humaConfig := huma.DefaultConfig("plat-servicearea API", api.Version)
	humaConfig.Info.Description = "Service area widget API: facility placement, travel-time parameters, zones and live map updates."
	if cfg.Host != "" {
		humaConfig.Servers = []*huma.Server{
			{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
		}
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, api.LinkTransformer())
	return humaConfig
}

// GeocoderFactory builds the search collaborator for a settings value.
func GeocoderFactory(client *arcgis.Client) func(config.Settings) orchestrator.Geocoder {
	return func(s config.Settings) orchestrator.Geocoder {
		precedence := geocode.First
		if s.SearchPrecedence == config.PrecedenceLast {
			precedence = geocode.Last
		}
		return geocode.New(client, s.GeocodeURLs, precedence)
	}
}

// solved runs on the session loop; recording and publishing happen off it.
func (s *Server) solved(sess *session.Session, o widget.Outcome) {
	s.metrics.SolveFinished(string(o.Status))
	entry := history.Entry{
		Session:         sess.ID,
		At:              o.At,
		FacilityLabel:   o.Facility.Label,
		Lon:             o.Facility.Point.Lon(),
		Lat:             o.Facility.Point.Lat(),
		TravelDirection: string(o.Query.TravelDirection),
		TimeOfDay:       o.TimeOfDay,
		Breaks:          o.Breaks,
		Status:          string(o.Status),
		Message:         o.Message,
		Zones:           o.Zones,
		ElapsedMs:       o.Elapsed.Milliseconds(),
	}
	go s.record(entry)
}

func (s *Server) record(e history.Entry) {
	if store := s.services.History; store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		id, err := store.Record(ctx, e)
		cancel()
		if err != nil {
			s.metrics.HistoryErrInc()
			log.Printf("history record error: %v", err)
		} else {
			s.bus.Publish(service.Event{Resource: service.ResourceHistory, Action: service.ActionCreated, ID: id})
		}
	}
	if s.publisher != nil {
		err := s.publisher.PublishSolved(publisher.SolvedMessage{
			Session:         e.Session,
			FacilityLabel:   e.FacilityLabel,
			Lon:             e.Lon,
			Lat:             e.Lat,
			TravelDirection: e.TravelDirection,
			TimeOfDay:       e.TimeOfDay,
			Breaks:          e.Breaks,
			Status:          e.Status,
			Message:         e.Message,
			Zones:           e.Zones,
			ElapsedMs:       e.ElapsedMs,
			Timestamp:       time.Now().UTC(),
		})
		if err != nil {
			log.Printf("nats publish error: %v", err)
		}
	}
}

// applySettings pushes saved settings to every live session.
func (s *Server) applySettings() {
	defer close(s.done)
	for ev := range s.busCh {
		if ev.Resource == service.ResourceSettings && ev.Action == service.ActionUpdated {
			s.services.Sessions.ApplySettings(s.services.Settings.Get())
		}
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// API exposes the Huma API for OpenAPI export.
func (s *Server) API() huma.API { return s.humaAPI }

// Sessions exposes the session registry.
func (s *Server) Sessions() *session.Registry { return s.services.Sessions }

// Close closes server resources.
func (s *Server) Close() error {
	s.services.Sessions.Close()
	s.bus.Unsubscribe(s.busCh)
	<-s.done
	if s.publisher != nil {
		s.publisher.Close()
	}
	if s.db != nil {
		return db.Close()
	}
	return nil
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)
	api.NewInfoHandler(s.config.DataDir, s.services.History != nil, s.publisher != nil).RegisterRoutes(s.humaAPI)

	s.mux.Handle("/metrics", s.metrics.Handler())

	// Static files
	if s.config.WebDir != "" {
		staticDir := filepath.Join(s.config.WebDir, "static")
		s.mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir))))
		s.mux.HandleFunc("/widget", s.handleWidget)
	}

	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"service":  "plat-servicearea",
		"status":   "running",
		"sessions": s.services.Sessions.Len(),
	})
}

func (s *Server) handleWidget(w http.ResponseWriter, r *http.Request) {
	templatePath := filepath.Join(s.config.WebDir, "templates", "widget.html")
	http.ServeFile(w, r, templatePath)
}
