package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/kickai/kickai/internal/apperr"
)

// Handler is the Go function bound to a tool name. It receives the raw,
// already schema-validated JSON arguments and returns the uniform
// envelope; a handler should never panic on bad input — by the time it
// runs, Registry.Call has already rejected anything that fails the
// declared schema.
type Handler func(ctx context.Context, args json.RawMessage) Envelope

// Definition is one tool's static declaration: name, description (shown
// to agents as part of their tool catalog), and a compiled input schema.
type Definition struct {
	Name        string
	Description string
	schemaJSON  string
	schema      *jsonschema.Schema
	handler     Handler
}

// Registry is the frozen, startup-built set of tools an agent may call by
// name (§4.4, C3). Like internal/command's Registry, it is built once
// and never mutated afterward.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]Definition
	ready bool
}

// NewRegistry compiles every definition's schema and freezes the table.
// A malformed schema is a startup-time error — tools are declared by
// this package's own code, never by user input, so a compile failure
// here means a programming mistake, not a runtime condition to recover
// from.
func NewRegistry(defs []RawDefinition) (*Registry, error) {
	r := &Registry{byID: make(map[string]Definition, len(defs))}
	for _, d := range defs {
		schema, err := compileSchema(d.Name, d.InputSchemaJSON)
		if err != nil {
			return nil, fmt.Errorf("compile schema for tool %q: %w", d.Name, err)
		}
		r.byID[d.Name] = Definition{
			Name:        d.Name,
			Description: d.Description,
			schemaJSON:  d.InputSchemaJSON,
			schema:      schema,
			handler:     d.Handler,
		}
	}
	r.ready = true
	return r, nil
}

// RawDefinition is the uncompiled form callers build a Registry from —
// it exists so the startup-time compile step lives in one place
// (NewRegistry) instead of scattered across every caller.
type RawDefinition struct {
	Name            string
	Description     string
	InputSchemaJSON string
	Handler         Handler
}

func compileSchema(name, schemaJSON string) (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	resourceID := "tool:" + name
	if err := c.AddResource(resourceID, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return c.Compile(resourceID)
}

// Names lists every registered tool name, the set an agent's permitted
// tools (agent.Spec.Tools) is validated against at startup.
func (r *Registry) Names() []string {
	r.mustBeReady()
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byID))
	for name := range r.byID {
		out = append(out, name)
	}
	return out
}

// Describe returns a tool's declared description, for agent tool-catalog
// construction.
func (r *Registry) Describe(name string) (string, bool) {
	r.mustBeReady()
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[name]
	return d.Description, ok
}

// Schema returns a tool's declared raw input schema JSON, the shape
// internal/llm.ToolSpec needs to declare the tool to a model.
func (r *Registry) Schema(name string) (json.RawMessage, bool) {
	r.mustBeReady()
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[name]
	if !ok {
		return nil, false
	}
	return json.RawMessage(d.schemaJSON), true
}

// Call validates args against the tool's declared schema and, only if
// valid, invokes its handler. An unknown tool name or a schema violation
// both come back as a StatusError envelope — they never panic or return
// a Go error, since the orchestrator treats every tool outcome as data.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) Envelope {
	r.mustBeReady()
	r.mu.RLock()
	d, ok := r.byID[name]
	r.mu.RUnlock()
	if !ok {
		return Err(string(apperr.UnknownCommand), fmt.Sprintf("no such tool %q", name))
	}

	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	parsed, err := jsonschema.UnmarshalJSON(strings.NewReader(string(args)))
	if err != nil {
		return Err(string(apperr.InvalidInput), fmt.Sprintf("tool %q: invalid JSON arguments: %v", name, err))
	}
	if err := d.schema.Validate(parsed); err != nil {
		return Err(string(apperr.InvalidInput), fmt.Sprintf("tool %q: arguments failed schema: %v", name, err))
	}

	return d.handler(ctx, args)
}

func (r *Registry) mustBeReady() {
	if r == nil || !r.ready {
		panic("tool: registry used before NewRegistry")
	}
}
