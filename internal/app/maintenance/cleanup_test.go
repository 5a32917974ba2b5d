package maintenance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/coachsync/coachsync/internal/collab"
	"github.com/coachsync/coachsync/internal/database/testutil"
	"github.com/coachsync/coachsync/internal/models"
	"github.com/coachsync/coachsync/internal/services"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type cleanerEnv struct {
	db       *gorm.DB
	sessions *services.SessionService
	registry *collab.Registry
	cleaner  *Cleaner
	clock    *testClock
}

func newCleanerEnv(t *testing.T) cleanerEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	sessionSvc, err := services.NewSessionService(db)
	require.NoError(t, err)

	sink, err := services.NewEventSink(db)
	require.NoError(t, err)
	t.Cleanup(sink.Close)

	clock := newTestClock()
	registry := collab.NewRegistry(sessionSvc, collab.Settings{},
		collab.WithRegistryEventStore(sink),
		collab.WithRegistryClock(clock.Now),
	)
	t.Cleanup(registry.Shutdown)

	cleaner := NewCleaner(db, registry,
		WithIdleAfter(30*time.Minute),
		WithNow(clock.Now),
	)

	return cleanerEnv{db: db, sessions: sessionSvc, registry: registry, cleaner: cleaner, clock: clock}
}

func TestCleanerArchivesIdleActiveSession(t *testing.T) {
	env := newCleanerEnv(t)
	ctx := context.Background()

	session, err := env.sessions.CreateSession(ctx, services.CreateSessionParams{
		Title:   "Idle session",
		OwnerID: "coach-1",
	})
	require.NoError(t, err)

	hub, err := env.registry.GetOrCreate(ctx, session.ID)
	require.NoError(t, err)
	require.NoError(t, hub.ChangeStatus(ctx, collab.StatusActive))

	// Still fresh: the pass leaves it alone.
	require.NoError(t, env.cleaner.RunOnce(ctx))
	require.Equal(t, 1, env.registry.Len())

	env.clock.Advance(time.Hour)
	require.NoError(t, env.cleaner.RunOnce(ctx))
	require.Zero(t, env.registry.Len())

	// The hub persisted the terminal transitions before it was released.
	require.Eventually(t, func() bool {
		var row models.Session
		if err := env.db.First(&row, "id = ?", session.ID).Error; err != nil {
			return false
		}
		return row.Status == models.SessionStatusArchived
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCleanerReleasesScheduledHubWithoutArchiving(t *testing.T) {
	env := newCleanerEnv(t)
	ctx := context.Background()

	session, err := env.sessions.CreateSession(ctx, services.CreateSessionParams{
		Title:   "Never started",
		OwnerID: "coach-1",
	})
	require.NoError(t, err)

	_, err = env.registry.GetOrCreate(ctx, session.ID)
	require.NoError(t, err)

	env.clock.Advance(time.Hour)
	require.NoError(t, env.cleaner.RunOnce(ctx))
	require.Zero(t, env.registry.Len())

	var row models.Session
	require.NoError(t, env.db.First(&row, "id = ?", session.ID).Error)
	require.Equal(t, models.SessionStatusScheduled, row.Status)
}

func TestCleanerArchivesEndedRowsWithoutHub(t *testing.T) {
	env := newCleanerEnv(t)
	ctx := context.Background()

	session, err := env.sessions.CreateSession(ctx, services.CreateSessionParams{
		Title:   "Orphaned",
		OwnerID: "coach-1",
	})
	require.NoError(t, err)

	endedAt := env.clock.Now().Add(-2 * time.Hour)
	require.NoError(t, env.db.Model(&models.Session{}).
		Where("id = ?", session.ID).
		Updates(map[string]any{
			"status":     models.SessionStatusEnded,
			"actual_end": endedAt,
		}).Error)

	require.NoError(t, env.cleaner.RunOnce(ctx))

	var row models.Session
	require.NoError(t, env.db.First(&row, "id = ?", session.ID).Error)
	require.Equal(t, models.SessionStatusArchived, row.Status)
}

func TestCleanerRecentlyEndedRowIsLeftAlone(t *testing.T) {
	env := newCleanerEnv(t)
	ctx := context.Background()

	session, err := env.sessions.CreateSession(ctx, services.CreateSessionParams{
		Title:   "Just ended",
		OwnerID: "coach-1",
	})
	require.NoError(t, err)

	require.NoError(t, env.db.Model(&models.Session{}).
		Where("id = ?", session.ID).
		Updates(map[string]any{
			"status":     models.SessionStatusEnded,
			"actual_end": env.clock.Now(),
		}).Error)

	require.NoError(t, env.cleaner.RunOnce(ctx))

	var row models.Session
	require.NoError(t, env.db.First(&row, "id = ?", session.ID).Error)
	require.Equal(t, models.SessionStatusEnded, row.Status)
}
