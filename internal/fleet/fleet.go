// Package fleet runs KICKAI's dual-bot-per-team Telegram ingestion
// layer (§4.9, C9): every team has two independent bot identities, one
// bound to its main chat and one to its leadership chat, each polled
// and reconnected on its own schedule. One goroutine runs per
// (team, chat_kind) bot instance, with a long-poll loop and exponential
// reconnect backoff, enqueueing each update into storage's inbox table
// for the orchestrator's engine to claim.
package fleet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"github.com/kickai/kickai/internal/bus"
	"github.com/kickai/kickai/internal/config"
	"github.com/kickai/kickai/internal/entity"
	"github.com/kickai/kickai/internal/orchestrator"
	"github.com/kickai/kickai/internal/shared"
	"github.com/kickai/kickai/internal/storage"
)

const (
	minBackoff = time.Second
	maxBackoff = 60 * time.Second
	jitterFrac = 0.2

	// escalationWindow/escalationThreshold implement §4.9's "five
	// consecutive reconnect failures within five minutes" fleet alert.
	escalationWindow    = 5 * time.Minute
	escalationThreshold = 5
)

// Manager owns one bot instance per (team, chat_kind) pair and keeps
// them running for the process lifetime, restarting any that
// disconnect. It also implements reminder.Notifier, routing an
// outbound reminder/digest to whichever of its instances owns the
// target team/chat_kind.
type Manager struct {
	store  *storage.Store
	events *bus.Bus

	teamsMu sync.Mutex
	teams   []config.TeamConfig
	runCtx  context.Context

	group errgroup.Group

	instMu    sync.RWMutex
	instances map[instanceKey]*botInstance
}

type instanceKey struct {
	teamID   string
	chatKind entity.ChatKind
}

// NewManager builds a Manager from the team routing table. Teams
// marked Disabled in config are skipped entirely — no goroutine, no
// connection attempt.
func NewManager(cfg *config.Config, store *storage.Store, events *bus.Bus) *Manager {
	return &Manager{store: store, events: events, teams: cfg.Teams, instances: make(map[instanceKey]*botInstance)}
}

// Start launches one goroutine per enabled team per chat kind and
// returns immediately; call Wait to block until ctx is canceled and
// every instance has exited.
func (m *Manager) Start(ctx context.Context) {
	m.teamsMu.Lock()
	m.runCtx = ctx
	teams := m.teams
	m.teamsMu.Unlock()

	for _, team := range teams {
		if team.Disabled {
			slog.Info("fleet: skipping disabled team", "team_id", team.TeamID)
			continue
		}
		m.spawn(ctx, team, entity.ChatKindMain, team.BotMainToken, team.MainChatID)
		m.spawn(ctx, team, entity.ChatKindLeadership, team.BotLeadershipToken, team.LeadershipChatID)
	}
}

// Reconcile adopts a freshly reloaded team table (§6: the routing table
// may change without a process restart) by spawning instances for any
// newly enabled team/chat_kind pair. It never tears down an instance
// for a team removed or disabled in the new table — killing a live
// long-poll mid-conversation is a bigger risk than leaving one running
// past its config's removal, and the next full process restart always
// picks up the leaner table. Call only after Start.
func (m *Manager) Reconcile(teams []config.TeamConfig) {
	m.teamsMu.Lock()
	ctx := m.runCtx
	m.teams = teams
	m.teamsMu.Unlock()

	if ctx == nil || ctx.Err() != nil {
		return
	}

	for _, team := range teams {
		if team.Disabled {
			continue
		}
		m.spawnIfAbsent(ctx, team, entity.ChatKindMain, team.BotMainToken, team.MainChatID)
		m.spawnIfAbsent(ctx, team, entity.ChatKindLeadership, team.BotLeadershipToken, team.LeadershipChatID)
	}
}

func (m *Manager) spawnIfAbsent(ctx context.Context, team config.TeamConfig, kind entity.ChatKind, token string, chatID int64) {
	m.instMu.RLock()
	_, exists := m.instances[instanceKey{teamID: team.TeamID, chatKind: kind}]
	m.instMu.RUnlock()
	if exists {
		return
	}
	slog.Info("fleet: config reload added a new bot instance", "team_id", team.TeamID, "chat_kind", kind)
	m.spawn(ctx, team, kind, token, chatID)
}

func (m *Manager) spawn(ctx context.Context, team config.TeamConfig, kind entity.ChatKind, token string, chatID int64) {
	if token == "" {
		slog.Warn("fleet: no bot token configured, skipping instance", "team_id", team.TeamID, "chat_kind", kind)
		return
	}
	inst := &botInstance{
		teamID:   team.TeamID,
		chatKind: kind,
		chatID:   chatID,
		token:    token,
		store:    m.store,
		events:   m.events,
	}
	m.instMu.Lock()
	m.instances[instanceKey{teamID: team.TeamID, chatKind: kind}] = inst
	m.instMu.Unlock()

	m.group.Go(func() error {
		inst.run(ctx)
		return nil
	})
}

// Wait blocks until every running instance has exited (i.e. ctx was
// canceled).
func (m *Manager) Wait() {
	_ = m.group.Wait()
}

// Notify sends text to the given team/chat_kind's chat using whichever
// bot instance owns it, satisfying internal/reminder.Notifier. An
// instance with no live connection yet (still backing off after a
// disconnect) returns an error rather than silently dropping the
// reminder, so the scheduler's own logging surfaces the failure.
func (m *Manager) Notify(ctx context.Context, teamID string, chatKind entity.ChatKind, text string) error {
	m.instMu.RLock()
	inst, ok := m.instances[instanceKey{teamID: teamID, chatKind: chatKind}]
	m.instMu.RUnlock()
	if !ok {
		return fmt.Errorf("fleet: no bot instance for team %q chat_kind %q", teamID, chatKind)
	}
	return inst.send(ctx, text)
}

// botInstance is one long-poll connection to one bot token, scoped to
// one team's one chat kind.
type botInstance struct {
	teamID   string
	chatKind entity.ChatKind
	chatID   int64
	token    string
	store    *storage.Store
	events   *bus.Bus

	botMu sync.RWMutex
	bot   *tgbotapi.BotAPI // set while connected; nil between disconnect and reconnect

	failureMu   sync.Mutex
	failureLog  []time.Time // reconnect-failure timestamps, pruned to escalationWindow
	lastAlertAt time.Time
}

// send delivers text to this instance's chat over its current
// connection. Returns an error if the instance is between connections.
func (b *botInstance) send(ctx context.Context, text string) error {
	b.botMu.RLock()
	bot := b.bot
	b.botMu.RUnlock()
	if bot == nil {
		return fmt.Errorf("fleet: bot instance for team %q chat_kind %q is not connected", b.teamID, b.chatKind)
	}
	_, err := bot.Send(tgbotapi.NewMessage(b.chatID, text))
	return err
}

// run reconnects with exponential backoff (1s to 60s, ±20% jitter)
// until ctx is canceled. Each disconnect counts toward the
// five-in-five-minutes escalation alert published on bus.TopicFleetAlert.
func (b *botInstance) run(ctx context.Context) {
	backoff := minBackoff
	for {
		if ctx.Err() != nil {
			return
		}

		err := b.connectAndPoll(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			// A nil return only happens via ctx cancellation inside
			// connectAndPoll, already handled above; treat anything else
			// reaching here as a disconnect worth logging and backing off.
			continue
		}

		slog.Warn("fleet: bot instance disconnected, reconnecting",
			"team_id", b.teamID, "chat_kind", b.chatKind, "error", err, "backoff", backoff)
		b.recordFailure(err)

		wait := jittered(backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func jittered(base time.Duration) time.Duration {
	delta := time.Duration(float64(base) * jitterFrac)
	if delta <= 0 {
		return base
	}
	offset := time.Duration(rand.Int64N(2*int64(delta))) - delta
	d := base + offset
	if d < 0 {
		return base
	}
	return d
}

// recordFailure appends to the sliding failure window and raises a
// fleet alert once five failures land inside five minutes, at most
// once per window (lastAlertAt guards against re-alerting every
// subsequent failure while the team's connection stays down).
func (b *botInstance) recordFailure(cause error) {
	b.failureMu.Lock()
	defer b.failureMu.Unlock()

	now := time.Now()
	b.failureLog = append(b.failureLog, now)
	cutoff := now.Add(-escalationWindow)
	pruned := b.failureLog[:0]
	for _, t := range b.failureLog {
		if t.After(cutoff) {
			pruned = append(pruned, t)
		}
	}
	b.failureLog = pruned

	if len(b.failureLog) < escalationThreshold {
		return
	}
	if b.lastAlertAt.After(cutoff) {
		return
	}
	b.lastAlertAt = now

	if b.events == nil {
		return
	}
	b.events.Publish(bus.TopicFleetAlert, bus.FleetAlertEvent{
		TeamID:   b.teamID,
		ChatKind: string(b.chatKind),
		Severity: "error",
		Message:  fmt.Sprintf("%d reconnect failures in the last %s: %v", len(b.failureLog), escalationWindow, cause),
	})
}

// connectAndPoll opens one bot connection and drains its update
// channel until it closes, stalls, or ctx is canceled. A nil error
// return always means ctx was canceled; anything else is a connection
// problem the caller should back off and retry on.
func (b *botInstance) connectAndPoll(ctx context.Context) error {
	bot, err := tgbotapi.NewBotAPI(b.token)
	if err != nil {
		return fmt.Errorf("telegram init failed: %w", err)
	}
	slog.Info("fleet: bot instance connected", "team_id", b.teamID, "chat_kind", b.chatKind, "bot_user", bot.Self.UserName)

	b.botMu.Lock()
	b.bot = bot
	b.botMu.Unlock()
	defer func() {
		b.botMu.Lock()
		b.bot = nil
		b.botMu.Unlock()
	}()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)
	defer bot.StopReceivingUpdates()

	// tgbotapi's long-poll blocks for up to 60s per request; no update
	// (not even an empty one) for 2.5x that strongly suggests a dead
	// connection the library itself won't notice.
	const stallTimeout = 150 * time.Second
	timer := time.NewTimer(stallTimeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return fmt.Errorf("update channel closed")
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(stallTimeout)

			if update.Message == nil || update.Message.From == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		case <-timer.C:
			return fmt.Errorf("no updates received for %v (possible disconnect)", stallTimeout)
		}
	}
}

func (b *botInstance) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	text := msg.Text
	if text == "" {
		return
	}

	traceID := shared.NewTraceID()
	payload, err := json.Marshal(orchestrator.UpdatePayload{TelegramID: msg.From.ID, Text: text})
	if err != nil {
		slog.Error("fleet: encode update payload", "team_id", b.teamID, "error", err)
		return
	}

	if _, err := b.store.EnqueueInboxTask(ctx, b.teamID, string(b.chatKind), msg.Chat.ID, traceID, string(payload)); err != nil {
		slog.Error("fleet: enqueue inbox task", "team_id", b.teamID, "chat_kind", b.chatKind, "error", err)
	}
}
