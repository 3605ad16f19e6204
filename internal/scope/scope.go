// Package scope groups release functions so a component can dispose of
// everything it acquired with one call.
package scope

import "sync"

// Scope collects release functions and runs them once, in reverse order.
type Scope struct {
	mu       sync.Mutex
	releases []func()
	closed   bool
}

// New returns an open scope.
func New() *Scope {
	return &Scope{}
}

// Add registers release functions. Adding to a closed scope releases immediately.
func (s *Scope) Add(release ...func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		for _, r := range release {
			if r != nil {
				r()
			}
		}
		return
	}
	for _, r := range release {
		if r != nil {
			s.releases = append(s.releases, r)
		}
	}
	s.mu.Unlock()
}

// Close runs every registered release, last added first. Safe to call twice.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	releases := s.releases
	s.releases = nil
	s.mu.Unlock()

	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}
}

// Len reports how many releases are pending.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.releases)
}

// Reset closes s if non-nil and returns a fresh scope.
func Reset(s *Scope) *Scope {
	if s != nil {
		s.Close()
	}
	return New()
}
