package recognizer

import (
	"strings"
	"sync"

	"github.com/nagbot/nagbot/internal/errors"
)

// Registry holds the registered backends and selects one per locale.
// Selection prefers a backend that declares the locale exactly
// (case-insensitive); a backend declaring the wildcard "*" is the fallback
// for locales nothing else covers.
type Registry struct {
	mu       sync.RWMutex
	backends []Backend
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a backend. Registration order is selection priority among
// backends declaring the same locale.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends = append(r.backends, b)
}

// Select returns the backend for the given locale, or a NO_BACKEND error when
// no registered backend declares the locale and none declares the wildcard.
func (r *Registry) Select(locale string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var wildcard Backend
	for _, b := range r.backends {
		for _, l := range b.Locales() {
			if l == "*" {
				if wildcard == nil {
					wildcard = b
				}
				continue
			}
			if strings.EqualFold(l, locale) {
				return b, nil
			}
		}
	}
	if wildcard != nil {
		return wildcard, nil
	}
	return nil, errors.NoBackend(locale)
}

// Backends returns a snapshot of the registered backends.
func (r *Registry) Backends() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Backend, len(r.backends))
	copy(out, r.backends)
	return out
}
