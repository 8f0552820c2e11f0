package bindrt

import (
	"errors"
	"sync"
)

// Scope collects release actions for resources handed to the caller. Close
// runs them in reverse order of acquisition, each exactly once.
type Scope struct {
	mu       sync.Mutex
	releases []func() error
	closed   bool
}

func NewScope() *Scope {
	return &Scope{}
}

// Defer registers release. On a closed scope release runs immediately.
func (s *Scope) Defer(release func() error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = release()
		return
	}
	s.releases = append(s.releases, release)
	s.mu.Unlock()
}

// Len is the number of pending releases.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.releases)
}

// Close releases everything and joins the errors. Later calls do nothing.
func (s *Scope) Close() error {
	s.mu.Lock()
	releases := s.releases
	s.releases = nil
	s.closed = true
	s.mu.Unlock()

	var errs []error
	for i := len(releases) - 1; i >= 0; i-- {
		if err := releases[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
