package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kickai/kickai/internal/agent"
	"github.com/kickai/kickai/internal/apperr"
	"github.com/kickai/kickai/internal/entity"
	"github.com/kickai/kickai/internal/format"
	"github.com/kickai/kickai/internal/llm"
	"github.com/kickai/kickai/internal/safety"
	"github.com/kickai/kickai/internal/shared"
	"github.com/kickai/kickai/internal/tool"
)

// promptSanitizer screens the raw chat text that becomes runAgent's
// task string before it reaches any LLM prompt — the one place in the
// pipeline where untrusted Telegram input flows into a system/user
// prompt pair, making it the right chokepoint for prompt-injection
// screening regardless of which specialist ends up handling the
// update.
var promptSanitizer = safety.NewSanitizer()

// maxToolTurns bounds the agent/tool exchange (§4.5 step 6-7). Each turn
// is a single Complete call: internal/llm's Client holds no conversation
// history of its own, so every turn after the first re-sends the
// accumulated transcript of tool calls and results as part of the user
// prompt.
const maxToolTurns = 4

// runAgent drives one specialist through its tool-call/response loop
// under a single wall-clock deadline and returns the plain-text reply
// plus the terminal state it reached (§4.7: completed, timed_out, or
// failed). Every failure path — timeout, no provider configured, a
// malformed agent response — folds into a user-facing sentence;
// runAgent never returns a Go error to its caller.
func (r *Router) runAgent(ctx context.Context, u Update, uc entity.UserContext, spec agent.Spec, task string) (reply, finalState string) {
	runID := shared.NewRunID()
	ctx = shared.WithRunID(ctx, runID)
	deadline := time.Now().Add(r.deadline)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	if r.metrics != nil {
		runStart := time.Now()
		defer func() { r.metrics.AgentRunDuration.Record(ctx, time.Since(runStart).Seconds()) }()
	}

	if check := promptSanitizer.Check(task); check.Action == safety.ActionBlock {
		slog.Warn("blocked suspected prompt injection", "trace_id", shared.TraceID(ctx), "agent", spec.Name, "reason", check.Reason)
		return format.Plain("I can't process that request."), "completed"
	} else if check.Action == safety.ActionWarn {
		slog.Warn("suspicious input passed through to agent", "trace_id", shared.TraceID(ctx), "agent", spec.Name, "reason", check.Reason)
	}

	catalog := r.toolCatalog(spec)
	systemPrompt := buildSystemPrompt(spec, uc)

	var transcript strings.Builder
	transcript.WriteString(task)

	invoked := make(map[string]bool, len(spec.Tools))

	for turn := 0; turn < maxToolTurns; turn++ {
		llmStart := time.Now()
		resp, err := r.llmc.Complete(ctx, systemPrompt, transcript.String(), catalog, deadline)
		if r.metrics != nil {
			r.metrics.LLMCallDuration.Record(ctx, time.Since(llmStart).Seconds())
		}
		if err != nil {
			text, state := r.replyForAgentError(err)
			return text, state
		}

		if len(resp.ToolCalls) == 0 {
			if len(spec.Tools) > 0 && len(invoked) == 0 {
				slog.Warn("agent produced a final reply without invoking any tool",
					"trace_id", shared.TraceID(ctx), "agent", spec.Name, "task", task)
			}
			return format.Plain(resp.Text), "completed"
		}

		if !spec.CanMutate {
			// NLPProcessor is the only CanMutate=false specialist reachable
			// here; it is never routed into runAgent with tools declared, so
			// this branch only guards against a future misconfiguration.
			return format.Plain(resp.Text), "completed"
		}

		for _, call := range resp.ToolCalls {
			if !toolAllowed(spec, call.Name) {
				transcript.WriteString(fmt.Sprintf("\n[tool %s result] error: tool not permitted for this agent\n", call.Name))
				continue
			}
			toolStart := time.Now()
			env := r.tools.Call(ctx, call.Name, call.Arguments)
			if r.metrics != nil {
				r.metrics.ToolCallDuration.Record(ctx, time.Since(toolStart).Seconds())
				if env.Status == tool.StatusError {
					r.metrics.ToolCallErrors.Add(ctx, 1)
				}
			}
			invoked[call.Name] = true
			raw, _ := json.Marshal(env)
			transcript.WriteString(fmt.Sprintf("\n[tool %s result] %s\n", call.Name, raw))
		}
	}

	slog.Warn("agent exceeded max tool turns", "trace_id", shared.TraceID(ctx), "agent", spec.Name)
	return format.Plain("I wasn't able to finish that in time. Please try again."), "failed"
}

func (r *Router) replyForAgentError(err error) (reply, finalState string) {
	if errors.Is(err, llm.ErrUnavailable) {
		return r.errorReply(apperr.New(apperr.DependencyUnavailable, "please retry")), "failed"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return r.errorReply(apperr.New(apperr.TimedOut, "please retry")), "timed_out"
	}
	return r.errorReply(apperr.Wrap(apperr.DependencyUnavailable, "please retry", err)), "failed"
}

func toolAllowed(spec agent.Spec, name string) bool {
	for _, t := range spec.Tools {
		if t == name {
			return true
		}
	}
	return false
}

func (r *Router) toolCatalog(spec agent.Spec) []llm.ToolSpec {
	if len(spec.Tools) == 0 {
		return nil
	}
	catalog := make([]llm.ToolSpec, 0, len(spec.Tools))
	for _, name := range spec.Tools {
		desc, ok := r.tools.Describe(name)
		if !ok {
			continue
		}
		schema, _ := r.tools.Schema(name)
		catalog = append(catalog, llm.ToolSpec{Name: name, Description: desc, InputSchema: schema})
	}
	return catalog
}

// buildSystemPrompt embeds the sender's UserContext as a JSON block
// rather than interpolating it into prose (§4.5 step 6: "as typed
// parameters, NOT interpolated strings") so the model can reference
// specific fields (telegram_id, team_id, classification) without the
// orchestrator ever constructing a free-text sentence containing
// untrusted values.
func buildSystemPrompt(spec agent.Spec, uc entity.UserContext) string {
	ctxJSON, _ := json.Marshal(uc)
	var b strings.Builder
	b.WriteString(spec.Backstory)
	b.WriteString("\nRole: ")
	b.WriteString(spec.Role)
	b.WriteString("\nGoal: ")
	b.WriteString(spec.Goal)
	b.WriteString("\nRequesting user context (authoritative, do not restate as your own claim): ")
	b.Write(ctxJSON)
	return b.String()
}
