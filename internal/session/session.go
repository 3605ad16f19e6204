// Package session keeps one widget per connected map. Each session owns an
// event loop; everything that touches its widget runs there through Do.
package session

import (
	"errors"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joeblew999/plat-servicearea/internal/api/live"
	"github.com/joeblew999/plat-servicearea/internal/config"
	"github.com/joeblew999/plat-servicearea/internal/loop"
	"github.com/joeblew999/plat-servicearea/internal/mapview"
	"github.com/joeblew999/plat-servicearea/internal/orchestrator"
	"github.com/joeblew999/plat-servicearea/internal/widget"
)

// ErrNotFound is returned for unknown session IDs.
var ErrNotFound = errors.New("session not found")

// Session is one widget bound to one browser map.
type Session struct {
	ID      string
	Created time.Time

	loop    *loop.EventLoop
	widget  *widget.Widget
	surface *mapview.Surface
	display *live.Display
	unsub   func()
}

// Do runs fn on the session loop and waits for it.
func (s *Session) Do(fn func(w *widget.Widget)) error {
	return s.loop.Do(func() { fn(s.widget) })
}

// State returns a snapshot taken on the loop.
func (s *Session) State() (widget.State, error) {
	var st widget.State
	err := s.Do(func(w *widget.Widget) { st = w.State() })
	return st, err
}

// Surface is the map the widget listens to. Dispatch events through Do.
func (s *Session) Surface() *mapview.Surface { return s.surface }

// Display is the live command stream for the session.
func (s *Session) Display() *live.Display { return s.display }

func (s *Session) close() {
	s.loop.Do(func() {
		s.unsub()
		s.widget.Close()
	})
	s.loop.Close()
	s.display.Close()
}

// Options configure every session a registry creates.
type Options struct {
	Service     orchestrator.Service
	NewGeocoder func(config.Settings) orchestrator.Geocoder
	Observer    orchestrator.Observer
	// OnSolve runs on the session loop after each finished solve.
	OnSolve func(s *Session, o widget.Outcome)
	// OnCount is told the number of live sessions after every change.
	OnCount func(n int)
}

// Registry holds the live sessions.
type Registry struct {
	opts     Options
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry.
func NewRegistry(opts Options) *Registry {
	return &Registry{opts: opts, sessions: make(map[string]*Session)}
}

// Create starts a session with settings. With attachMap the widget is bound
// to the session's map surface at once.
func (r *Registry) Create(settings config.Settings, attachMap bool) (*Session, error) {
	s := &Session{
		ID:      uuid.NewString(),
		Created: time.Now(),
		loop:    loop.New(),
		display: live.NewDisplay(),
	}
	s.surface = mapview.NewSurface(s.display)

	err := s.loop.Do(func() {
		s.widget = widget.New(widget.Options{
			Loop:        s.loop,
			Service:     r.opts.Service,
			Observer:    r.opts.Observer,
			NewGeocoder: r.opts.NewGeocoder,
			Settings:    settings,
			Hooks: widget.Hooks{OnSolve: func(o widget.Outcome) {
				if r.opts.OnSolve != nil {
					r.opts.OnSolve(s, o)
				}
			}},
		})
		s.unsub = s.widget.Subscribe(func(st widget.State) { s.display.PublishState(st) })
		if attachMap {
			s.widget.AttachMap(s.surface)
		}
		s.display.PublishState(s.widget.State())
	})
	if err != nil {
		s.loop.Close()
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.ID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	log.Printf("session created: %s", s.ID)
	r.count(n)
	return s, nil
}

// Get looks a session up.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// List returns the sessions, oldest first.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Delete tears a session down.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	n := len(r.sessions)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.close()
	log.Printf("session closed: %s", id)
	r.count(n)
	return nil
}

// ApplySettings pushes new settings to every session.
func (r *Registry) ApplySettings(settings config.Settings) {
	for _, s := range r.List() {
		err := s.Do(func(w *widget.Widget) {
			if err := w.UpdateSettings(settings); err != nil {
				log.Printf("session %s: settings rejected: %v", s.ID, err)
			}
		})
		if err != nil {
			log.Printf("session %s: %v", s.ID, err)
		}
	}
}

// Close tears every session down.
func (r *Registry) Close() {
	for _, s := range r.List() {
		r.Delete(s.ID)
	}
}

func (r *Registry) count(n int) {
	if r.opts.OnCount != nil {
		r.opts.OnCount(n)
	}
}
