package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dmehra2102/storefront-checkout/internal/checkout/domain"
)

var ErrSessionNotFound = errors.New("checkout session not found")

// Retention bounds how long sessions stay in memory. Settled sessions are kept
// for Settled so the confirmation can still be read; any session is dropped after
// MaxAge.
type Retention struct {
	Settled time.Duration
	MaxAge  time.Duration
}

var DefaultRetention = Retention{Settled: 10 * time.Minute, MaxAge: 24 * time.Hour}

// Registry owns the live checkout sessions of this process.
type Registry struct {
	log       *slog.Logger
	deps      Deps
	retention Retention

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(log *slog.Logger, deps Deps) *Registry {
	return &Registry{log: log, deps: deps, retention: DefaultRetention, sessions: make(map[string]*Session)}
}

func (r *Registry) WithRetention(ret Retention) *Registry {
	r.retention = ret
	return r
}

// Start opens a session. A tenant without payment methods cannot check out at all.
func (r *Registry) Start(ctx context.Context, in StartInput) (*Session, error) {
	if len(in.Tenant.PaymentMethods) == 0 || r.deps.Gateway == nil {
		return nil, domain.ErrCheckoutUnavailable
	}

	lines := make([]domain.CartLine, 0, len(in.Lines))
	for _, l := range in.Lines {
		if l.Quantity > 0 {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return nil, domain.ErrEmptyCart
	}
	in.Lines = lines

	s := newSession(ulid.Make().String(), r.log, r.deps, in)

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	s.start(ctx)
	s.log.Info("checkout started", "step", s.firstStep, "items", domain.ItemCount(lines))
	return s, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

func (r *Registry) Close(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	return nil
}

// CloseAll closes every session. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// Sweep closes and drops expired sessions. It returns how many were dropped.
func (r *Registry) Sweep() int {
	now := time.Now().UTC()
	if r.deps.Now != nil {
		now = r.deps.Now()
	}

	r.mu.RLock()
	var expired []*Session
	for _, s := range r.sessions {
		if s.expired(now, r.retention.Settled, r.retention.MaxAge) {
			expired = append(expired, s)
		}
	}
	r.mu.RUnlock()

	r.mu.Lock()
	for _, s := range expired {
		delete(r.sessions, s.id)
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
	}
	return len(expired)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
