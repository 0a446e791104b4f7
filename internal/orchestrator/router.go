// Package orchestrator is the centerpiece router (C6): one Process call
// per inbound update, resolving identity, enforcing authorization,
// selecting an agent, driving the agent/tool loop, and formatting the
// reply. The surrounding concurrency shape (per-chat FIFO, per-update
// deadline, trace/run IDs threaded through context) follows the
// orchestrator's worker loop; the decision logic itself (identity
// classification, command-vs-NLP routing, agent/tool turns) is built
// from first principles against the component contracts in internal/entity,
// internal/command, internal/agent, internal/tool, internal/authz, and
// internal/invite.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/kickai/kickai/internal/agent"
	"github.com/kickai/kickai/internal/apperr"
	"github.com/kickai/kickai/internal/authz"
	"github.com/kickai/kickai/internal/bus"
	"github.com/kickai/kickai/internal/command"
	"github.com/kickai/kickai/internal/entity"
	"github.com/kickai/kickai/internal/format"
	"github.com/kickai/kickai/internal/invite"
	"github.com/kickai/kickai/internal/llm"
	ktel "github.com/kickai/kickai/internal/otel"
	"github.com/kickai/kickai/internal/shared"
	"github.com/kickai/kickai/internal/storage"
	"github.com/kickai/kickai/internal/tool"
)

const defaultAgentDeadline = 30 * time.Second

// Update is one inbound chat message, already resolved to a team and
// chat kind by the fleet manager's routing table (C9) before it ever
// reaches Process.
type Update struct {
	TeamID     string
	ChatKind   entity.ChatKind
	ChatID     int64
	TelegramID int64
	Text       string
}

// Router wires every C2-C10 component together behind one entry point.
type Router struct {
	store    *storage.Store
	checker  *authz.Checker
	commands *command.Registry
	agents   *agent.Roster
	tools    *tool.Registry
	llmc     llm.Client
	invites  *invite.Service
	events   *bus.Bus
	deadline time.Duration

	tracer  trace.Tracer
	metrics *ktel.Metrics
}

// SetTelemetry attaches the tracer/metrics built from otel.Init around
// this Router's Process calls. Both are nil-safe to omit — every test
// that builds a Router via NewRouter alone keeps working unchanged,
// tracing/metrics are purely additive instrumentation around the same
// decision logic.
func (r *Router) SetTelemetry(tracer trace.Tracer, metrics *ktel.Metrics) {
	r.tracer = tracer
	r.metrics = metrics
}

// NewRouter assembles a Router. deadline <= 0 defaults to 30s
// (config.Config.AgentDeadline's own default, mirrored here so a
// Router built without going through config still behaves sanely).
func NewRouter(store *storage.Store, checker *authz.Checker, commands *command.Registry, agents *agent.Roster, tools *tool.Registry, llmc llm.Client, invites *invite.Service, events *bus.Bus, deadline time.Duration) *Router {
	if deadline <= 0 {
		deadline = defaultAgentDeadline
	}
	return &Router{
		store: store, checker: checker, commands: commands, agents: agents,
		tools: tools, llmc: llmc, invites: invites, events: events, deadline: deadline,
	}
}

// Process runs one update end to end and returns the plain-text reply
// to send back to the originating chat. It never panics: every
// collaborator failure folds into a user-facing sentence via
// internal/format, and the outcome is best-effort recorded to the
// command audit log before returning.
func (r *Router) Process(ctx context.Context, u Update) string {
	// Step 1: bootstrap guard. A nil registry is a startup-sequencing bug
	// (main.go must build these before the fleet manager accepts
	// updates), not a recoverable per-update condition — but Process
	// still must not panic on it, so this is a plain pointer check.
	if r == nil || r.commands == nil || r.agents == nil || r.tools == nil {
		return format.Plain("KICKAI is still starting up. Please try again in a moment.")
	}

	start := time.Now()
	finalState := "completed"
	if r.tracer != nil {
		var span trace.Span
		ctx, span = ktel.StartServerSpan(ctx, r.tracer, "kickai.update.process",
			ktel.AttrTeamID.String(u.TeamID),
			ktel.AttrChatKind.String(string(u.ChatKind)),
			ktel.AttrChatID.Int64(u.ChatID),
		)
		defer func() {
			span.SetAttributes(ktel.AttrFinalState.String(finalState))
			span.End()
		}()
	}
	if r.metrics != nil {
		defer func() {
			r.metrics.UpdateDuration.Record(ctx, time.Since(start).Seconds())
		}()
	}

	traceID := shared.NewTraceID()
	ctx = shared.WithTraceID(ctx, traceID)
	ctx = shared.WithChatContext(ctx, shared.ChatContext{TeamID: u.TeamID, ChatKind: string(u.ChatKind), ChatID: u.ChatID, TelegramID: u.TelegramID})
	r.transition(ctx, u, "received")

	uc, err := classify(ctx, r.store, u.TeamID, u.ChatKind, u.TelegramID)
	if err != nil {
		r.recordAudit(ctx, u, "", "error", errorKindOf(err))
		r.transition(ctx, u, "failed")
		finalState = "failed"
		return r.errorReply(err)
	}

	firstToken, rest := splitCommand(u.Text)

	// Step 3 ahead of step 2: an empty leadership chat has no admin who
	// could possibly have issued an invite yet, so the bootstrap prompt
	// must win even for a sender step 2 would otherwise treat as a plain
	// unregistered-guidance case. (Reordering noted in DESIGN.md.)
	if u.ChatKind == entity.ChatKindLeadership {
		if count, cerr := r.store.CountMembers(ctx, u.TeamID); cerr == nil && count == 0 {
			reply := r.bootstrapFirstAdmin(ctx, u, firstToken, rest)
			r.transition(ctx, u, "completed")
			return reply
		}
	}

	// Step 2: unregistered-user handling.
	if uc.Classification == entity.ClassUnregistered {
		if (firstToken == "/register" || firstToken == "/start") && rest != "" {
			reply := r.redeemInvite(ctx, u, rest)
			r.transition(ctx, u, "completed")
			return reply
		}
		r.recordAudit(ctx, u, firstToken, "denied", "")
		r.transition(ctx, u, "denied")
		finalState = "denied"
		return format.Plain("You're not registered yet. Ask a team leader for an invite link, or follow the one they sent you to get started.")
	}
	r.transition(ctx, u, "authorized")

	var descriptor command.Descriptor

	if strings.HasPrefix(firstToken, "/") {
		// Step 4: command detection.
		d, ok := r.commands.Get(firstToken)
		if !ok {
			r.recordAudit(ctx, u, firstToken, "denied", string(apperr.UnknownCommand))
			r.transition(ctx, u, "denied")
			finalState = "denied"
			return format.Plain(fmt.Sprintf("I don't recognize %s. Commands available here: %s", firstToken, r.visibleCommandList(u.ChatKind)))
		}
		descriptor = d
	} else {
		// Step 5: natural-language path.
		intent, suggested, params, nerr := r.classifyIntent(ctx, u, uc)
		if nerr != nil {
			r.recordAudit(ctx, u, "", "error", errorKindOf(nerr))
			r.transition(ctx, u, "failed")
			finalState = "failed"
			return r.errorReply(nerr)
		}
		if d, ok := r.commands.Get(intent); ok {
			descriptor = d
			if params != "" {
				rest = params
			}
		} else {
			spec, ok := r.agents.Get(suggested)
			if !ok {
				spec = r.agents.MustGet(agent.MessageProcessor)
			}
			r.transition(ctx, u, "executing")
			reply, state := r.runAgent(ctx, u, uc, spec, u.Text)
			r.transition(ctx, u, state)
			finalState = state
			return reply
		}
	}

	decision, derr := r.checker.Authorize(uc, descriptor.CommandDescriptor)
	if derr != nil {
		r.recordAudit(ctx, u, descriptor.Name, "error", errorKindOf(derr))
		r.transition(ctx, u, "failed")
		finalState = "failed"
		return r.errorReply(derr)
	}
	if !decision.Allowed {
		r.recordAudit(ctx, u, descriptor.Name, "denied", "")
		r.transition(ctx, u, "denied")
		finalState = "denied"
		if r.metrics != nil {
			r.metrics.AuthzDenials.Add(ctx, 1)
		}
		return format.Plain("You don't have permission to do that here.")
	}

	r.transition(ctx, u, "routed")
	spec := r.agents.MustGet(descriptor.AgentForChat(u.ChatKind))
	task := descriptor.Name
	if rest != "" {
		task = descriptor.Name + " " + rest
	}
	r.transition(ctx, u, "executing")
	reply, state := r.runAgent(ctx, u, uc, spec, task)
	decisionLabel := "allowed"
	if state != "completed" {
		decisionLabel = "error"
	}
	r.recordAudit(ctx, u, descriptor.Name, decisionLabel, "")
	r.transition(ctx, u, state)
	finalState = state
	return reply
}

// lastState is a process-wide best-effort memory of the previous state
// per trace, solely to populate UpdateStateChangedEvent.OldState for
// observability — it is never read back to make a routing decision.
var lastState sync.Map // trace_id -> last published state

func (r *Router) transition(ctx context.Context, u Update, newState string) {
	if r.events == nil {
		return
	}
	traceID := shared.TraceID(ctx)
	old, _ := lastState.Load(traceID)
	oldState, _ := old.(string)
	r.events.Publish(bus.TopicUpdateStateChanged, bus.UpdateStateChangedEvent{
		TraceID: traceID, TeamID: u.TeamID, ChatKind: string(u.ChatKind), OldState: oldState, NewState: newState,
	})
	if newState == "completed" || newState == "denied" || newState == "timed_out" || newState == "failed" {
		lastState.Delete(traceID)
		return
	}
	lastState.Store(traceID, newState)
}

func (r *Router) recordAudit(ctx context.Context, u Update, command, decision, errKind string) {
	err := r.store.RecordAudit(ctx, storage.AuditEntry{
		TraceID: shared.TraceID(ctx), TeamID: u.TeamID, ChatKind: string(u.ChatKind),
		TelegramID: u.TelegramID, Command: command, Decision: decision, ErrorKind: errKind,
	})
	if err != nil {
		slog.Warn("record audit failed", "trace_id", shared.TraceID(ctx), "error", err)
	}
}

func (r *Router) errorReply(err error) string {
	kind, msg := apperr.As(err)
	return format.FromEnvelope(tool.Err(string(kind), msg))
}

func errorKindOf(err error) string {
	kind, _ := apperr.As(err)
	return string(kind)
}

// splitCommand splits leading whitespace-trimmed text into its first
// token and the remainder, a plain SplitN(..., " ", 2).
func splitCommand(text string) (first, rest string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	parts := strings.SplitN(text, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}

func (r *Router) visibleCommandList(kind entity.ChatKind) string {
	descs := r.commands.ListForChat(kind)
	names := make([]string, 0, len(descs))
	for _, d := range descs {
		names = append(names, d.Name)
	}
	return strings.Join(names, ", ")
}

// redeemInvite backs both the "/register <token>" command path and a
// literal "/start <token>" deep-link message (§4.8). Unlike the
// spec-literal wording ("if the chat is main"), KICKAI issues invites
// for both chat kinds (a member invite targets the leadership chat), so
// redemption is accepted in whichever chat the token's own ChatKind
// resolves to — storage.RedeemInvite's own atomic check is what
// actually enforces correctness here, not a chat-kind gate in the
// router. Decision recorded in DESIGN.md.
func (r *Router) redeemInvite(ctx context.Context, u Update, token string) string {
	if r.invites == nil {
		return r.errorReply(apperr.New(apperr.DependencyUnavailable, "invite redemption is unavailable"))
	}
	inv, err := r.invites.Redeem(ctx, invite.ParseRedemptionPayload(token), u.TelegramID, time.Now())
	if err != nil {
		r.recordAudit(ctx, u, "/register", "denied", errorKindOf(err))
		return r.errorReply(err)
	}
	r.recordAudit(ctx, u, "/register", "allowed", "")
	switch inv.Subject {
	case entity.SubjectMember:
		return format.Plain("Welcome! You're now registered as a team member. Send /myinfo to see your record.")
	default:
		return format.Plain("Welcome! You're now registered as a player. Send /myinfo to see your record.")
	}
}

// bootstrapFirstAdmin implements step 3 (§4.5): a leadership chat with
// zero members blocks every other path until "/register <name> <phone>
// <role>" succeeds, at which point the sender becomes the team's first
// admin directly (no invite token — there is no admin yet who could
// have issued one).
func (r *Router) bootstrapFirstAdmin(ctx context.Context, u Update, firstToken, rest string) string {
	if firstToken != "/register" {
		return format.Plain("No admin is registered for this leadership chat yet. Send /register <name> <phone> <role> to become its first admin.")
	}
	name, phone, role, ok := parseRegisterArgs(rest)
	if !ok {
		r.recordAudit(ctx, u, "/register", "denied", string(apperr.InvalidInput))
		return format.Plain("Usage: /register <name> <phone> <role>, e.g. /register Alex Smith +447911123456 manager")
	}
	memberID, err := r.store.CreateMember(ctx, entity.Member{
		TeamID: u.TeamID, TelegramID: u.TelegramID, Name: name, Phone: phone, Role: role,
		IsAdmin: true, Status: entity.StatusActive,
	})
	if err != nil {
		r.recordAudit(ctx, u, "/register", "error", errorKindOf(err))
		return r.errorReply(err)
	}
	r.recordAudit(ctx, u, "/register", "allowed", "")
	return format.Plain(fmt.Sprintf("Welcome, %s — you're this team's first admin (member_id %s). Use /addplayer or /addmember to bring in the rest of the team.", name, memberID))
}

// parseRegisterArgs splits "<name...> <phone> <role>" on whitespace,
// taking the last two fields as phone and role and everything before
// them as the name — the one field of the three that legitimately
// contains spaces.
func parseRegisterArgs(rest string) (name, phone, role string, ok bool) {
	fields := strings.Fields(rest)
	if len(fields) < 3 {
		return "", "", "", false
	}
	n := len(fields)
	role = fields[n-1]
	phone = fields[n-2]
	name = strings.Join(fields[:n-2], " ")
	if name == "" {
		return "", "", "", false
	}
	return name, phone, role, true
}

// classifyIntent runs the NLPProcessor specialist (§4.5 step 5) to turn
// free text into (intent, suggested_agent, parameters). NLPProcessor
// never mutates and holds no tools, so this is always exactly one LLM
// turn with no tool loop.
func (r *Router) classifyIntent(ctx context.Context, u Update, uc entity.UserContext) (intent string, suggestedAgent agent.Name, params string, err error) {
	spec := r.agents.MustGet(agent.NLPProcessor)
	system := spec.Backstory + " Respond with a single JSON object shaped exactly as " +
		`{"intent":"<slash-command-or-free-label>","suggested_agent":"<one of MessageProcessor,HelpAssistant,PlayerCoordinator,TeamAdministrator,SquadSelector>","parameters":"<trailing arguments, or empty>"}` +
		" and nothing else."
	userPrompt := fmt.Sprintf("Chat kind: %s\nSender classification: %s\nMessage: %s", uc.ChatKind, uc.Classification, u.Text)

	resp, cerr := r.llmc.Complete(ctx, system, userPrompt, nil, time.Now().Add(r.deadline))
	if cerr != nil {
		if errors.Is(cerr, llm.ErrUnavailable) {
			return "", agent.MessageProcessor, "", apperr.New(apperr.DependencyUnavailable, "please retry")
		}
		return "", agent.MessageProcessor, "", apperr.Wrap(apperr.DependencyUnavailable, "please retry", cerr)
	}

	var parsed struct {
		Intent         string `json:"intent"`
		SuggestedAgent string `json:"suggested_agent"`
		Parameters     string `json:"parameters"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(resp.Text)), &parsed); err != nil {
		// A malformed classification is not a system failure — fall back to
		// routing the raw text straight to MessageProcessor.
		return "", agent.MessageProcessor, "", nil
	}
	return parsed.Intent, agent.Name(parsed.SuggestedAgent), parsed.Parameters, nil
}
