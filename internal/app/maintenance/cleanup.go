package maintenance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/coursehub/pkg/logger"
	"github.com/charlesng35/coursehub/pkg/metrics"
)

const (
	defaultMessageRetentionDays = 30
	defaultAuditRetentionDays   = 90
	defaultMessageSpec          = "@daily"
	defaultAuditSpec            = "@daily"

	// Job names reported by JobRuns and used as metric labels.
	JobMessagePurge = "messages"
	JobAuditPrune   = "audit"
)

// JobRun is the latest outcome of one maintenance job.
type JobRun struct {
	Job                 string    `json:"job"`
	LastRunAt           time.Time `json:"last_run_at"`
	LastError           string    `json:"last_error,omitempty"`
	Runs                uint64    `json:"runs"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// MessagePurger hard deletes soft deleted messages removed before the cutoff.
type MessagePurger interface {
	PurgeDeleted(ctx context.Context, olderThan time.Time) (int64, error)
}

// AuditPruner removes audit entries older than the given number of days.
type AuditPruner interface {
	CleanupOlderThan(ctx context.Context, days int) (int64, error)
}

// Cleaner coordinates background maintenance: purging deleted messages and
// pruning stale audit logs.
type Cleaner struct {
	messages MessagePurger
	audit    AuditPruner
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger

	messageRetention int
	auditRetention   int
	messageSchedule  string
	auditSchedule    string

	mu   sync.Mutex
	runs map[string]*JobRun
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

// WithNow overrides the clock used to compute retention cutoffs.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithMessageRetentionDays sets how long deleted messages are kept before the purge.
func WithMessageRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.messageRetention = days
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.auditRetention = days
		}
	}
}

// WithMessageSchedule overrides the cron specification for the message purge.
func WithMessageSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.messageSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner. A nil dependency skips the corresponding job.
func NewCleaner(messages MessagePurger, audit AuditPruner, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		messages:         messages,
		audit:            audit,
		now:              time.Now,
		messageRetention: defaultMessageRetentionDays,
		auditRetention:   defaultAuditRetentionDays,
		messageSchedule:  defaultMessageSpec,
		auditSchedule:    defaultAuditSpec,
		log:              logger.WithModule("maintenance"),
		runs:             make(map[string]*JobRun),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the cleanup jobs and launches the scheduler when at least one job exists.
func (c *Cleaner) Start() error {
	if c.messages == nil && c.audit == nil {
		return nil
	}

	if c.messages != nil {
		if _, err := c.cron.AddFunc(c.messageSchedule, func() {
			if _, err := c.purgeMessages(context.Background()); err != nil {
				c.log.Warn("message purge failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.audit != nil {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if _, err := c.pruneAudit(context.Background()); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
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

// RunOnce executes every configured cleanup sequentially and returns the combined error.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.messages != nil {
		if _, err := c.purgeMessages(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.audit != nil {
		if _, err := c.pruneAudit(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// JobRuns reports the latest outcome of every job that has run, ordered by job name.
func (c *Cleaner) JobRuns() []JobRun {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]JobRun, 0, len(c.runs))
	for _, run := range c.runs {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out
}

func (c *Cleaner) record(job string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	run, ok := c.runs[job]
	if !ok {
		run = &JobRun{Job: job}
		c.runs[job] = run
	}
	run.Runs++
	run.LastRunAt = c.now()
	if err != nil {
		run.ConsecutiveFailures++
		run.LastError = err.Error()
		return
	}
	run.ConsecutiveFailures = 0
	run.LastError = ""
}

func (c *Cleaner) purgeMessages(ctx context.Context) (int64, error) {
	cutoff := c.now().AddDate(0, 0, -c.messageRetention)
	removed, err := c.messages.PurgeDeleted(ctx, cutoff)
	c.record(JobMessagePurge, err)
	if err != nil {
		return 0, err
	}
	metrics.MaintenancePurged.WithLabelValues(JobMessagePurge).Add(float64(removed))
	if removed > 0 {
		c.log.Info("purged deleted messages", zap.Int64("removed", removed), zap.Time("cutoff", cutoff))
	}
	return removed, nil
}

func (c *Cleaner) pruneAudit(ctx context.Context) (int64, error) {
	removed, err := c.audit.CleanupOlderThan(ctx, c.auditRetention)
	c.record(JobAuditPrune, err)
	if err != nil {
		return 0, err
	}
	metrics.MaintenancePurged.WithLabelValues(JobAuditPrune).Add(float64(removed))
	if removed > 0 {
		c.log.Info("pruned audit logs", zap.Int64("removed", removed), zap.Int("retention_days", c.auditRetention))
	}
	return removed, nil
}
