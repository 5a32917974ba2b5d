package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/coachsync/coachsync/internal/collab"
	"github.com/coachsync/coachsync/internal/models"
	"github.com/coachsync/coachsync/pkg/logger"
)

const (
	defaultIdleAfter = 30 * time.Minute
	defaultSpec      = "@every 5m"
)

// Cleaner coordinates background maintenance: archiving sessions that ended
// and went quiet, and releasing hubs nobody is connected to.
type Cleaner struct {
	db        *gorm.DB
	registry  *collab.Registry
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	idleAfter time.Duration
	schedule  string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for idle comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithIdleAfter adjusts how long a session must be silent before archival.
func WithIdleAfter(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d > 0 {
			cleaner.idleAfter = d
		}
	}
}

// WithSchedule overrides the cron expression for the maintenance pass.
func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(db *gorm.DB, registry *collab.Registry, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:        db,
		registry:  registry,
		now:       time.Now,
		idleAfter: defaultIdleAfter,
		schedule:  defaultSpec,
		log:       logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the maintenance job with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if _, err := c.cron.AddFunc(c.schedule, func() {
		if err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("maintenance pass failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes one maintenance pass. Primarily used in tests and during
// graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.registry != nil {
		errs = multierr.Append(errs, c.archiveIdleHubs(ctx))
	}
	if c.db != nil {
		errs = multierr.Append(errs, c.archiveEndedSessions(ctx))
	}

	return errs
}

// archiveIdleHubs walks hubs with zero connections and no recent activity,
// runs them to the end of their lifecycle and releases them.
func (c *Cleaner) archiveIdleHubs(ctx context.Context) error {
	var errs error

	for _, sessionID := range c.registry.IdleSessions(ctx, c.idleAfter) {
		hub, ok := c.registry.Get(sessionID)
		if !ok {
			continue
		}

		info, err := hub.Info(ctx)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		switch info.Status {
		case collab.StatusActive, collab.StatusPaused:
			if err := hub.ChangeStatus(ctx, collab.StatusEnded); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			fallthrough
		case collab.StatusEnded:
			if err := hub.ChangeStatus(ctx, collab.StatusArchived); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
		case collab.StatusScheduled:
			// Nothing happened yet; just release the hub. The session stays
			// scheduled and a later join recreates it.
		}

		c.registry.Remove(sessionID)
		c.log.Info("idle session released",
			zap.String("session_id", sessionID),
			zap.String("status", string(info.Status)),
		)
	}

	return errs
}

// archiveEndedSessions catches ended sessions whose hub is already gone, e.g.
// after a restart.
func (c *Cleaner) archiveEndedSessions(ctx context.Context) error {
	threshold := c.now().Add(-c.idleAfter)

	result := c.db.WithContext(ctx).
		Model(&models.Session{}).
		Where("status = ? AND (actual_end IS NULL OR actual_end < ?)", models.SessionStatusEnded, threshold).
		Update("status", models.SessionStatusArchived)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		c.log.Info("archived ended sessions", zap.Int64("count", result.RowsAffected))
	}
	return nil
}
