// Package tool is KICKAI's typed tool registry (§4.4, C3): every tool an
// agent may call is declared once at startup with a JSON Schema for its
// input, bound to a Go handler, and every call returns a uniform envelope
// so the orchestrator can detect failure without parsing free text. JSON
// Schema validation compiles with santhosh-tekuri/jsonschema/v6, gating
// a tool's *input* rather than an agent's final answer.
package tool

import (
	"encoding/json"
)

// Status is the outcome discriminator every tool call returns.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Envelope is the uniform JSON contract every tool handler returns,
// whether it succeeded or failed — the orchestrator's hallucination
// guard (§4.6) depends on every tool reply having this exact shape so it
// can tell a genuine result from an agent inventing one.
type Envelope struct {
	Status    Status          `json:"status"`
	ErrorKind string          `json:"error_kind,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// OK builds a successful envelope, marshaling data into the Data field.
func OK(data any) Envelope {
	raw, err := json.Marshal(data)
	if err != nil {
		return Err("SystemCritical", "marshal tool result: "+err.Error())
	}
	return Envelope{Status: StatusOK, Data: raw}
}

// Err builds a failed envelope. kind mirrors an apperr.Kind string so the
// orchestrator can map it back to a user-facing message uniformly.
func Err(kind, message string) Envelope {
	return Envelope{Status: StatusError, ErrorKind: kind, Message: message}
}
