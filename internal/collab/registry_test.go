package collab

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeLoader struct {
	seeds map[string]HubSeed
	calls int32
}

func (l *fakeLoader) LoadSession(_ context.Context, sessionID string) (HubSeed, error) {
	atomic.AddInt32(&l.calls, 1)
	seed, ok := l.seeds[sessionID]
	if !ok {
		return HubSeed{}, ErrSessionNotFound
	}
	return seed, nil
}

func TestRegistryGetOrCreateIsIdempotent(t *testing.T) {
	loader := &fakeLoader{seeds: map[string]HubSeed{
		"sess-1": activeSeed("sess-1", 4),
	}}
	registry := NewRegistry(loader, testSettings())
	defer registry.Shutdown()

	ctx := context.Background()

	first, err := registry.GetOrCreate(ctx, "sess-1")
	require.NoError(t, err)

	second, err := registry.GetOrCreate(ctx, "sess-1")
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, int32(1), atomic.LoadInt32(&loader.calls))
	require.Equal(t, 1, registry.Len())
}

func TestRegistryGetOrCreateConcurrent(t *testing.T) {
	loader := &fakeLoader{seeds: map[string]HubSeed{
		"sess-1": activeSeed("sess-1", 4),
	}}
	registry := NewRegistry(loader, testSettings())
	defer registry.Shutdown()

	var wg sync.WaitGroup
	hubs := make([]*Hub, 8)
	errs := make([]error, len(hubs))
	for i := range hubs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hubs[i], errs[i] = registry.GetOrCreate(context.Background(), "sess-1")
		}(i)
	}
	wg.Wait()

	for i, hub := range hubs {
		require.NoError(t, errs[i])
		require.Same(t, hubs[0], hub)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&loader.calls))
}

func TestRegistryUnknownSessionFails(t *testing.T) {
	registry := NewRegistry(&fakeLoader{}, testSettings())
	defer registry.Shutdown()

	_, err := registry.GetOrCreate(context.Background(), "missing")
	require.ErrorIs(t, err, ErrSessionNotFound)
	require.Zero(t, registry.Len())

	_, err = registry.GetOrCreate(context.Background(), "   ")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRegistryRemoveStopsHub(t *testing.T) {
	loader := &fakeLoader{seeds: map[string]HubSeed{
		"sess-1": activeSeed("sess-1", 4),
	}}
	registry := NewRegistry(loader, testSettings())
	defer registry.Shutdown()

	hub, err := registry.GetOrCreate(context.Background(), "sess-1")
	require.NoError(t, err)

	registry.Remove("sess-1")
	require.Zero(t, registry.Len())

	_, err = hub.Info(context.Background())
	require.ErrorIs(t, err, ErrHubClosed)

	// A later reference reloads from persistence.
	_, err = registry.GetOrCreate(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, int32(2), atomic.LoadInt32(&loader.calls))
}

func TestRegistryIdleSessions(t *testing.T) {
	var mu sync.Mutex
	current := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}

	loader := &fakeLoader{seeds: map[string]HubSeed{
		"sess-idle": activeSeed("sess-idle", 4),
	}}
	registry := NewRegistry(loader, testSettings(), WithRegistryClock(clock))
	defer registry.Shutdown()

	_, err := registry.GetOrCreate(context.Background(), "sess-idle")
	require.NoError(t, err)

	// Fresh hubs are not idle yet.
	require.Empty(t, registry.IdleSessions(context.Background(), 30*time.Minute))

	mu.Lock()
	current = current.Add(time.Hour)
	mu.Unlock()

	idle := registry.IdleSessions(context.Background(), 30*time.Minute)
	require.Equal(t, []string{"sess-idle"}, idle)
}

func TestRegistryShutdownStopsEverything(t *testing.T) {
	loader := &fakeLoader{seeds: map[string]HubSeed{
		"a": activeSeed("a", 4),
		"b": activeSeed("b", 4),
	}}
	registry := NewRegistry(loader, testSettings())

	hubA, err := registry.GetOrCreate(context.Background(), "a")
	require.NoError(t, err)
	hubB, err := registry.GetOrCreate(context.Background(), "b")
	require.NoError(t, err)

	registry.Shutdown()
	require.Zero(t, registry.Len())

	_, err = hubA.Info(context.Background())
	require.ErrorIs(t, err, ErrHubClosed)
	_, err = hubB.Info(context.Background())
	require.ErrorIs(t, err, ErrHubClosed)
}
