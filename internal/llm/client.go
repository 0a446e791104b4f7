// Package llm is the provider-neutral LLM adapter (C7). It exposes the
// single chat-completion method agents and the orchestrator actually
// need — complete(system_prompt, user_prompt, tools_catalog, deadline)
// — and nothing else: no streaming, no conversation history, no skill
// injection, no compaction. Those concerns belong to the orchestrator
// and storage layers, not the transport.
//
// A provider-switch structure (google/anthropic/openai/openai_compatible/
// openrouter via github.com/firebase/genkit/go and its plugins) degrades
// a missing API key to a deterministic unavailable response rather than
// panicking at startup. Scoped to just the completion call: history
// compaction, skill progressive-disclosure, prompt-injection
// sanitization and credential-leak scanning are not this package's job —
// the orchestrator calls internal/safety-derived checks and
// internal/format itself around the Complete call.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/anthropic"
	"github.com/firebase/genkit/go/plugins/compat_oai"
	"github.com/firebase/genkit/go/plugins/googlegenai"
)

// ErrUnavailable is returned by Complete when no provider API key was
// configured at startup. The orchestrator maps this to the canonical
// DependencyUnavailable reply (§7).
var ErrUnavailable = errors.New("llm: no provider configured")

// ToolSpec describes one tool an agent is permitted to call, in the
// shape the model needs to decide whether and how to call it. Built
// from an internal/tool.Registry entry's compiled JSON Schema.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolCall is a single tool invocation the model requested. The
// orchestrator — not this package — executes it against
// internal/tool.Registry and, if the agent continues, feeds the result
// back on the next Complete call.
type ToolCall struct {
	Name      string
	Arguments json.RawMessage
}

// Response is one completion turn: either final text, or one or more
// tool calls the caller must execute and resume with.
type Response struct {
	Text      string
	ToolCalls []ToolCall
}

// Client is the provider-neutral completion interface every agent and
// the orchestrator depend on (§5's "Business logic MUST NOT hold a
// transaction across an LLM call" implies callers never assume a
// particular provider's latency or retry behavior — this interface is
// the only contract they get).
type Client interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, toolsCatalog []ToolSpec, deadline time.Time) (Response, error)
}

// Config selects and authenticates a provider. Provider is one of
// "google", "anthropic", "openai", "openai_compatible", "openrouter";
// empty defaults to "google". "openai_compatible" pointed at a local
// Ollama endpoint is KICKAI's local/self-hosted provider, matching
// §6's requirement for at least one hosted and one local adapter.
type Config struct {
	Provider string
	Model    string
	APIKey   string

	OpenAICompatibleProvider string
	OpenAICompatibleBaseURL  string
}

// GenkitClient implements Client on top of github.com/firebase/genkit/go.
type GenkitClient struct {
	g     *genkit.Genkit
	cfg   Config
	llmOn bool
}

// NewGenkitClient initializes Genkit with the configured provider. A
// missing API key is not a startup error: the client comes up with
// llmOn false and every Complete call returns ErrUnavailable, so a
// misconfigured deployment fails loudly on first use rather than at
// boot.
func NewGenkitClient(ctx context.Context, cfg Config) *GenkitClient {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = "google"
	}
	modelID := strings.TrimSpace(cfg.Model)
	if modelID == "" {
		modelID = defaultModelForProvider(provider)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		apiKey = envAPIKeyForProvider(provider)
	}

	var g *genkit.Genkit
	llmOn := false

	switch provider {
	case "anthropic":
		if apiKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&anthropic.Anthropic{
				APIKey:  apiKey,
				BaseURL: os.Getenv("ANTHROPIC_BASE_URL"),
			}))
			llmOn = true
			slog.Info("llm client initialized", "provider", "anthropic", "model", modelID)
		} else {
			g = genkit.Init(ctx)
			slog.Warn("anthropic api key missing; llm client unavailable")
		}
	case "openai":
		if apiKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
				Provider: "openai",
				APIKey:   apiKey,
				BaseURL:  os.Getenv("OPENAI_BASE_URL"),
			}))
			llmOn = true
			slog.Info("llm client initialized", "provider", "openai", "model", modelID)
		} else {
			g = genkit.Init(ctx)
			slog.Warn("openai api key missing; llm client unavailable")
		}
	case "openai_compatible":
		if apiKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
				Provider: cfg.OpenAICompatibleProvider,
				APIKey:   apiKey,
				BaseURL:  cfg.OpenAICompatibleBaseURL,
			}))
			llmOn = true
			slog.Info("llm client initialized", "provider", "openai_compatible", "model", modelID, "base_url", cfg.OpenAICompatibleBaseURL)
		} else {
			g = genkit.Init(ctx)
			slog.Warn("openai-compatible api key missing; llm client unavailable")
		}
	case "openrouter":
		if apiKey != "" {
			g = genkit.Init(ctx, genkit.WithPlugins(&compat_oai.OpenAICompatible{
				Provider: "openrouter",
				APIKey:   apiKey,
				BaseURL:  "https://openrouter.ai/api/v1",
			}))
			llmOn = true
			slog.Info("llm client initialized", "provider", "openrouter", "model", modelID)
		} else {
			g = genkit.Init(ctx)
			slog.Warn("openrouter api key missing; llm client unavailable")
		}
	case "google":
		if apiKey != "" {
			_ = os.Setenv("GEMINI_API_KEY", apiKey)
			g = genkit.Init(ctx,
				genkit.WithPlugins(&googlegenai.GoogleAI{}),
				genkit.WithDefaultModel("googleai/"+modelID),
			)
			llmOn = true
			slog.Info("llm client initialized", "provider", "google", "model", "googleai/"+modelID)
		} else {
			g = genkit.Init(ctx)
			slog.Warn("google api key missing; llm client unavailable")
		}
	default:
		g = genkit.Init(ctx)
		slog.Warn("unknown llm provider; llm client unavailable", "provider", provider)
	}

	return &GenkitClient{g: g, cfg: cfg, llmOn: llmOn}
}

// Complete sends one completion request. toolsCatalog, if non-empty, is
// declared to the model as tools it may request (not execute — genkit
// is configured to return the raw tool request rather than invoke a
// handler, since execution must go through internal/tool.Registry's
// envelope and authorization path, not genkit's own).
func (c *GenkitClient) Complete(ctx context.Context, systemPrompt, userPrompt string, toolsCatalog []ToolSpec, deadline time.Time) (Response, error) {
	if !c.llmOn {
		return Response{}, ErrUnavailable
	}

	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	opts := []ai.GenerateOption{
		ai.WithSystem(systemPrompt),
		ai.WithPrompt(userPrompt),
	}
	if len(toolsCatalog) > 0 {
		tools, err := dynamicTools(c.g, toolsCatalog)
		if err != nil {
			return Response{}, fmt.Errorf("llm: declare tools: %w", err)
		}
		opts = append(opts, ai.WithTools(tools...), ai.WithReturnToolRequests(true))
	}

	modelName := modelNameForProvider(strings.ToLower(c.cfg.Provider), c.cfg.Model)
	genOpts := append([]ai.GenerateOption{ai.WithModelName(modelName)}, opts...)

	resp, err := genkit.Generate(ctx, c.g, genOpts...)
	if err != nil {
		return Response{}, fmt.Errorf("llm: generate: %w", err)
	}

	return Response{Text: resp.Text(), ToolCalls: toolCallsFromResponse(resp)}, nil
}

// dynamicTools declares each catalog entry to genkit as a tool
// definition with its raw JSON Schema as input schema. No handler
// executes — WithReturnToolRequests(true) on the Generate call means
// genkit hands the request back instead of invoking it.
func dynamicTools(g *genkit.Genkit, catalog []ToolSpec) ([]ai.Tool, error) {
	declared := make([]ai.Tool, 0, len(catalog))
	for _, spec := range catalog {
		schema, err := unmarshalSchema(spec.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %q: %w", spec.Name, err)
		}
		declared = append(declared, ai.NewToolDef(g, spec.Name, spec.Description, schema, nil))
	}
	return declared, nil
}

func unmarshalSchema(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{"type": "object"}, nil
	}
	var schema map[string]any
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, err
	}
	return schema, nil
}

func toolCallsFromResponse(resp *ai.ModelResponse) []ToolCall {
	if resp == nil || resp.Message == nil {
		return nil
	}
	var calls []ToolCall
	for _, part := range resp.Message.Content {
		if part.Kind != ai.PartToolRequest || part.ToolRequest == nil {
			continue
		}
		args, err := json.Marshal(part.ToolRequest.Input)
		if err != nil {
			continue
		}
		calls = append(calls, ToolCall{Name: part.ToolRequest.Name, Arguments: args})
	}
	return calls
}

func defaultModelForProvider(provider string) string {
	switch provider {
	case "anthropic":
		return "claude-3-5-sonnet-20241022"
	case "openai", "openai_compatible":
		return "gpt-4o-mini"
	case "openrouter":
		return "anthropic/claude-sonnet-4-5-20250929"
	default:
		return "gemini-2.5-flash"
	}
}

func envAPIKeyForProvider(provider string) string {
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "openai_compatible":
		return os.Getenv("OLLAMA_API_KEY")
	case "openrouter":
		return os.Getenv("OPENROUTER_API_KEY")
	default:
		return os.Getenv("GEMINI_API_KEY")
	}
}

func modelNameForProvider(provider, model string) string {
	switch provider {
	case "anthropic":
		return "anthropic/" + model
	case "openai", "openai_compatible":
		return "openai/" + model
	case "openrouter":
		return "openai/" + model
	default:
		return "googleai/" + model
	}
}
