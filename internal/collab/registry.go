package collab

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/coachsync/coachsync/pkg/logger"
	"github.com/coachsync/coachsync/pkg/metrics"
)

// SessionLoader resolves persisted session state for hub creation. It
// returns ErrSessionNotFound when no session was ever registered with the
// backing store.
type SessionLoader interface {
	LoadSession(ctx context.Context, sessionID string) (HubSeed, error)
}

// Registry is the process-wide map from session ID to hub. Hubs are created
// lazily on first reference and destroyed once a session is archived and has
// drained. The registry is the single shared structure between session
// workers; everything past the returned hub handle is private to that
// session's goroutine. Sharding across machines would partition session IDs
// in front of this type.
type Registry struct {
	mu       sync.Mutex
	hubs     map[string]*Hub
	loader   SessionLoader
	store    EventStore
	settings Settings
	log      *zap.Logger
	timeNow  func() time.Time
}

// RegistryOption customises registry construction.
type RegistryOption func(*Registry)

// WithRegistryEventStore wires the persistence collaborator into every hub.
func WithRegistryEventStore(store EventStore) RegistryOption {
	return func(r *Registry) {
		if store != nil {
			r.store = store
		}
	}
}

// WithRegistryClock overrides the clock handed to hubs (test helper).
func WithRegistryClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) {
		if clock != nil {
			r.timeNow = clock
		}
	}
}

// NewRegistry constructs a registry backed by the supplied loader.
func NewRegistry(loader SessionLoader, settings Settings, opts ...RegistryOption) *Registry {
	r := &Registry{
		hubs:     make(map[string]*Hub),
		loader:   loader,
		store:    NopEventStore{},
		settings: settings.withDefaults(),
		log:      logger.WithModule("collab.registry"),
		timeNow:  time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the hub owning the session, creating it from persisted
// state on first reference. Concurrent callers for the same ID receive the
// same hub instance; the registry lock covers the load so a second caller
// waits instead of racing a duplicate.
func (r *Registry) GetOrCreate(ctx context.Context, sessionID string) (*Hub, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if hub, ok := r.hubs[sessionID]; ok {
		return hub, nil
	}

	seed, err := r.loader.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	hub := NewHub(seed, r.settings,
		WithEventStore(r.store),
		WithHubClock(r.timeNow),
	)
	r.hubs[sessionID] = hub
	metrics.ActiveSessions.Set(float64(len(r.hubs)))

	r.log.Info("hub created", zap.String("session_id", sessionID))
	return hub, nil
}

// Get returns the hub if one is currently running for the session.
func (r *Registry) Get(sessionID string) (*Hub, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hub, ok := r.hubs[sessionID]
	return hub, ok
}

// Remove stops the session's hub and drops it from the registry. In-memory
// state is gone afterwards; a later GetOrCreate reloads from persistence.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	hub, ok := r.hubs[sessionID]
	if ok {
		delete(r.hubs, sessionID)
	}
	metrics.ActiveSessions.Set(float64(len(r.hubs)))
	r.mu.Unlock()

	if !ok {
		return
	}

	hub.Stop()
	r.log.Info("hub removed", zap.String("session_id", sessionID))
}

// Len reports the number of running hubs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hubs)
}

// IdleSessions returns the IDs of hubs with zero connections and no activity
// for at least idleFor. The maintenance job archives them.
func (r *Registry) IdleSessions(ctx context.Context, idleFor time.Duration) []string {
	r.mu.Lock()
	hubs := make([]*Hub, 0, len(r.hubs))
	for _, hub := range r.hubs {
		hubs = append(hubs, hub)
	}
	r.mu.Unlock()

	threshold := r.timeNow().Add(-idleFor)

	var idle []string
	for _, hub := range hubs {
		info, err := hub.Info(ctx)
		if err != nil {
			continue
		}
		if info.ActiveCount == 0 && info.LastActivityAt.Before(threshold) {
			idle = append(idle, info.ID)
		}
	}
	return idle
}

// Shutdown stops every hub. Used during process teardown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	hubs := r.hubs
	r.hubs = make(map[string]*Hub)
	metrics.ActiveSessions.Set(0)
	r.mu.Unlock()

	for _, hub := range hubs {
		hub.Stop()
	}
}
