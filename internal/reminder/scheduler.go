// Package reminder is the cron-driven scheduler behind `/remind`,
// `/background` digests, and poll-expiry notifications (§4.9's
// supplemented Reminder entity). A tick-on-interval loop backed by
// github.com/robfig/cron/v3 queries due rows, fires each, and either
// advances its next run or disables a one-shot reminder afterward.
package reminder

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/kickai/kickai/internal/entity"
	"github.com/kickai/kickai/internal/format"
	ktel "github.com/kickai/kickai/internal/otel"
	"github.com/kickai/kickai/internal/storage"
)

var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow,
)

// Notifier delivers a reminder's body to the chat it was scheduled
// against. Implemented by internal/fleet so this package never imports
// the Telegram transport.
type Notifier interface {
	Notify(ctx context.Context, teamID string, chatKind entity.ChatKind, text string) error
}

// Config holds the scheduler's dependencies.
type Config struct {
	Store    *storage.Store
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  *ktel.Metrics // optional; nil disables instrumentation
	Interval time.Duration // tick interval; defaults to 1 minute if zero
}

// Scheduler periodically queries storage for due reminders and fires
// each one.
type Scheduler struct {
	store    *storage.Store
	notifier Notifier
	logger   *slog.Logger
	metrics  *ktel.Metrics
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler builds a Scheduler from cfg.
func NewScheduler(cfg Config) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    cfg.Store,
		notifier: cfg.Notifier,
		logger:   logger,
		metrics:  cfg.Metrics,
		interval: interval,
	}
}

// Start runs the scheduler loop in a background goroutine until ctx is
// canceled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop(ctx)
	s.logger.Info("reminder scheduler started", "interval", s.interval)
}

// Stop cancels the loop and waits for it to exit.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("reminder scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	due, err := s.store.DueReminders(ctx, now)
	if err != nil {
		s.logger.Error("reminder: failed to query due reminders", "error", err)
		return
	}
	for _, r := range due {
		s.fire(ctx, r, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, r entity.Reminder, now time.Time) {
	if err := s.notifier.Notify(ctx, r.TeamID, r.ChatKind, format.Plain(r.Body)); err != nil {
		s.logger.Error("reminder: failed to deliver", "reminder_id", r.ReminderID, "error", err)
		return
	}

	var next *time.Time
	if isRecurring(r.CronExpr) {
		t, err := NextRunTime(r.CronExpr, now)
		if err != nil {
			s.logger.Error("reminder: failed to compute next run", "reminder_id", r.ReminderID, "cron_expr", r.CronExpr, "error", err)
			return
		}
		next = &t
	}

	if err := s.store.AdvanceReminder(ctx, r.ReminderID, now, next); err != nil {
		s.logger.Error("reminder: failed to advance", "reminder_id", r.ReminderID, "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.RemindersFired.Add(ctx, 1)
	}
	s.logger.Info("reminder: fired", "reminder_id", r.ReminderID, "team_id", r.TeamID, "chat_kind", r.ChatKind, "next_run_at", next)
}

// isRecurring reports whether cronExpr names more than one future
// occurrence. A `/remind` one-off is created with all five fields
// pinned to literal values (e.g. "30 9 14 3 *" naming one exact
// minute/hour/day/month); since that combination would otherwise fire
// again a year later, every field but day-of-week must carry a
// wildcard or list/step/range for the reminder to count as recurring
// (e.g. `/background`'s daily digest, "0 8 * * *"). day-of-week is
// exempt: a weekly reminder ("0 9 * * 1") is recurring even though
// every other field is literal.
func isRecurring(cronExpr string) bool {
	fields := strings.Fields(cronExpr)
	if len(fields) != 5 {
		return false
	}
	for _, field := range fields[:4] {
		if hasWildcard(field) {
			return true
		}
	}
	return false
}

func hasWildcard(field string) bool {
	return strings.ContainsAny(field, "*,-/")
}

// NextRunTime parses cronExpr and returns the next occurrence after
// `after`.
func NextRunTime(cronExpr string, after time.Time) (time.Time, error) {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(after), nil
}
