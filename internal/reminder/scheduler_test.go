package reminder_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/kickai/kickai/internal/entity"
	"github.com/kickai/kickai/internal/reminder"
	"github.com/kickai/kickai/internal/storage"
)

type recordingNotifier struct {
	mu  sync.Mutex
	got []string
}

func (r *recordingNotifier) Notify(_ context.Context, teamID string, chatKind entity.ChatKind, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, teamID+"|"+string(chatKind)+"|"+text)
	return nil
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "kickai.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	if err := store.CreateTeam(ctx, entity.Team{TeamID: "team-1", Name: "Dynamos FC", MainChatID: 100, LeadershipChatID: 200, BotMainToken: "tok-main", BotLeadershipToken: "tok-leadership"}); err != nil {
		t.Fatalf("create team: %v", err)
	}
	return store
}

func TestSchedulerFiresOneShotReminderAndDisablesIt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)

	reminderID, err := store.CreateReminder(ctx, entity.Reminder{
		TeamID:    "team-1",
		ChatKind:  entity.ChatKindMain,
		Body:      "Training tonight at 7pm",
		CronExpr:  "0 9 30 7 *",
		CreatedBy: "member-1",
		NextRunAt: now,
	})
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}

	notifier := &recordingNotifier{}
	sched := reminder.NewScheduler(reminder.Config{Store: store, Notifier: notifier, Interval: time.Hour})
	sched.Start(ctx)
	defer sched.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for notifier.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected exactly one notification, got %d", notifier.count())
	}

	due, err := store.DueReminders(ctx, now.Add(400*24*time.Hour))
	if err != nil {
		t.Fatalf("due reminders: %v", err)
	}
	for _, r := range due {
		if r.ReminderID == reminderID {
			t.Fatalf("expected one-shot reminder to be disabled after firing, still due: %+v", r)
		}
	}
}

func TestSchedulerKeepsRecurringReminderEnabled(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Add(-time.Minute)

	_, err := store.CreateReminder(ctx, entity.Reminder{
		TeamID:    "team-1",
		ChatKind:  entity.ChatKindLeadership,
		Body:      "Daily squad digest",
		CronExpr:  "0 8 * * *",
		CreatedBy: "member-1",
		NextRunAt: now,
	})
	if err != nil {
		t.Fatalf("create reminder: %v", err)
	}

	notifier := &recordingNotifier{}
	sched := reminder.NewScheduler(reminder.Config{Store: store, Notifier: notifier, Interval: time.Hour})
	sched.Start(ctx)
	defer sched.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for notifier.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if notifier.count() != 1 {
		t.Fatalf("expected exactly one notification, got %d", notifier.count())
	}

	due, err := store.DueReminders(ctx, now)
	if err != nil {
		t.Fatalf("due reminders: %v", err)
	}
	if len(due) != 0 {
		t.Fatalf("expected no reminders due immediately after firing (next_run_at moved forward), got %d", len(due))
	}
}

func TestIsRecurringHeuristicViaNextRunTime(t *testing.T) {
	after := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)
	next, err := reminder.NextRunTime("0 8 * * *", after)
	if err != nil {
		t.Fatalf("next run time: %v", err)
	}
	if !next.After(after) {
		t.Fatalf("expected next run to be after %v, got %v", after, next)
	}
}
