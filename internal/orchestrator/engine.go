package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kickai/kickai/internal/entity"
	ktel "github.com/kickai/kickai/internal/otel"
	"github.com/kickai/kickai/internal/storage"
)

// EngineConfig controls the per-chat worker pool's polling cadence
// (PollInterval, TaskTimeout), scoped per chat rather than globally
// (§5: ordering is guaranteed per chat, never globally).
type EngineConfig struct {
	PollInterval time.Duration
	TaskTimeout  time.Duration
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 35 * time.Second
	}
	return c
}

// UpdatePayload is the JSON shape EnqueueInboxTask's payload column holds —
// the wire format between whatever enqueues an update (the fleet's polling
// loop) and the worker that later claims and decodes it.
type UpdatePayload struct {
	TelegramID int64  `json:"telegram_id"`
	Text       string `json:"text"`
}

// Engine is the worker-pool wrapper around Router: one goroutine per
// currently-active chat, each draining that chat's inbox strictly in
// FIFO order (§5). A Start/Wait/Drain lifecycle wraps a claim-then-process
// loop with lease requeueing, but workers are spawned per chat key
// rather than a fixed pool size, since KICKAI's ordering guarantee is
// scoped to a chat, not to a worker slot.
type Engine struct {
	store  *storage.Store
	router *Router
	config EngineConfig

	wg sync.WaitGroup

	mu      sync.Mutex
	workers map[chatKey]context.CancelFunc

	metrics *ktel.Metrics
}

// SetMetrics attaches optional OpenTelemetry counters; nil-safe to omit.
func (e *Engine) SetMetrics(metrics *ktel.Metrics) {
	e.metrics = metrics
}

type chatKey struct {
	teamID   string
	chatKind string
	chatID   int64
}

// NewEngine builds an Engine. store and router must be non-nil.
func NewEngine(store *storage.Store, router *Router, cfg EngineConfig) *Engine {
	return &Engine{
		store:   store,
		router:  router,
		config:  cfg.withDefaults(),
		workers: make(map[chatKey]context.CancelFunc),
	}
}

// Start begins the supervisor loop: on each tick it requeues any
// expired leases (a crashed worker's claim reverting to QUEUED, per
// storage.RequeueExpiredLeases' own doc comment) and spawns a worker
// for any chat with a queued task that doesn't already have one
// running. It returns once ctx is canceled, after every spawned
// worker has exited.
func (e *Engine) Start(ctx context.Context) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.supervise(ctx)
	}()
}

// Wait blocks until every worker the supervisor spawned has exited.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Drain stops accepting new chats and waits up to timeout for
// in-flight workers to finish; anything still in-flight past timeout
// is left for RequeueExpiredLeases to recover on next startup, the
// a simple bounded-wait tradeoff rather than forcing an unbounded drain.
func (e *Engine) Drain(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("orchestrator engine drained cleanly")
	case <-time.After(timeout):
		slog.Warn("orchestrator engine drain timeout; leaving in-flight updates for lease recovery", "timeout", timeout)
	}
}

func (e *Engine) supervise(ctx context.Context) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.mu.Lock()
			for _, cancel := range e.workers {
				cancel()
			}
			e.mu.Unlock()
			return
		case <-ticker.C:
		}

		if _, err := e.store.RequeueExpiredLeases(ctx, time.Now().UTC()); err != nil {
			slog.Error("requeue expired inbox leases", "error", err)
		}

		keys, err := e.store.DistinctActiveChatKeys(ctx)
		if err != nil {
			slog.Error("list active chat keys", "error", err)
			continue
		}
		for _, k := range keys {
			teamID, _ := k[0].(string)
			chatKind, _ := k[1].(string)
			chatID, _ := k[2].(int64)
			e.ensureWorker(ctx, chatKey{teamID: teamID, chatKind: chatKind, chatID: chatID})
		}
	}
}

// ensureWorker spawns one goroutine per chat key on first sight and
// lets it run until the chat's queue goes idle, rather than keeping a
// permanent goroutine per ever-seen chat — a team's chats come and go
// with Telegram group membership, so an unbounded fleet of idle
// per-chat goroutines would be the natural failure mode of the
// simpler "one worker per key forever" design.
func (e *Engine) ensureWorker(ctx context.Context, key chatKey) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, running := e.workers[key]; running {
		return
	}
	workerCtx, cancel := context.WithCancel(ctx)
	e.workers[key] = cancel
	if e.metrics != nil {
		e.metrics.ActiveChatWorkers.Add(ctx, 1)
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			e.mu.Lock()
			delete(e.workers, key)
			e.mu.Unlock()
			cancel()
			if e.metrics != nil {
				e.metrics.ActiveChatWorkers.Add(ctx, -1)
			}
		}()
		e.drainChat(workerCtx, key)
	}()
}

// drainChat claims and processes one chat's queue until it is empty,
// then returns — letting the supervisor re-spawn it later if more
// updates arrive, rather than polling an idle chat forever.
func (e *Engine) drainChat(ctx context.Context, key chatKey) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := e.store.ClaimNextForChat(ctx, key.teamID, key.chatKind, key.chatID)
		if err != nil {
			slog.Error("claim inbox task", "team_id", key.teamID, "chat_kind", key.chatKind, "chat_id", key.chatID, "error", err)
			return
		}
		if task == nil {
			return
		}

		if err := e.store.MarkRunning(ctx, task.ID); err != nil {
			slog.Error("mark inbox task running", "task_id", task.ID, "error", err)
		}

		var payload UpdatePayload
		if err := json.Unmarshal([]byte(task.Payload), &payload); err != nil {
			_ = e.store.FailInboxTask(ctx, task.ID, fmt.Sprintf("malformed update payload: %v", err))
			continue
		}

		taskCtx, cancel := context.WithTimeout(ctx, e.config.TaskTimeout)
		reply := e.router.Process(taskCtx, Update{
			TeamID:     task.TeamID,
			ChatKind:   entity.ChatKind(task.ChatKind),
			ChatID:     task.ChatID,
			TelegramID: payload.TelegramID,
			Text:       payload.Text,
		})
		cancel()

		if err := e.store.CompleteInboxTask(ctx, task.ID, reply); err != nil {
			slog.Error("complete inbox task", "task_id", task.ID, "error", err)
		}
	}
}
