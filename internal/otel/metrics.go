package otel

import "go.opentelemetry.io/otel/metric"

// Metrics holds the KICKAI metric instruments, scoped to what a
// single-process Telegram fleet actually emits: one update cycle per
// inbox task, one LLM/tool call per agent turn, one fired reminder per
// scheduler tick, one redeemed invite, one authz denial.
type Metrics struct {
	UpdateDuration    metric.Float64Histogram
	AgentRunDuration  metric.Float64Histogram
	LLMCallDuration   metric.Float64Histogram
	ToolCallDuration  metric.Float64Histogram
	ToolCallErrors    metric.Int64Counter
	ActiveChatWorkers metric.Int64UpDownCounter
	RemindersFired    metric.Int64Counter
	InviteRedemptions metric.Int64Counter
	AuthzDenials      metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.UpdateDuration, err = meter.Float64Histogram("kickai.update.duration",
		metric.WithDescription("Inbound update processing duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.AgentRunDuration, err = meter.Float64Histogram("kickai.agent.run.duration",
		metric.WithDescription("Specialist agent run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.LLMCallDuration, err = meter.Float64Histogram("kickai.llm.duration",
		metric.WithDescription("LLM API call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallDuration, err = meter.Float64Histogram("kickai.tool.duration",
		metric.WithDescription("Tool call duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	m.ToolCallErrors, err = meter.Int64Counter("kickai.tool.errors",
		metric.WithDescription("Tool call error count"),
	)
	if err != nil {
		return nil, err
	}

	m.ActiveChatWorkers, err = meter.Int64UpDownCounter("kickai.chat.workers.active",
		metric.WithDescription("Number of chats currently being drained by a worker"),
	)
	if err != nil {
		return nil, err
	}

	m.RemindersFired, err = meter.Int64Counter("kickai.reminder.fired",
		metric.WithDescription("Total reminders delivered"),
	)
	if err != nil {
		return nil, err
	}

	m.InviteRedemptions, err = meter.Int64Counter("kickai.invite.redemptions",
		metric.WithDescription("Total invite links redeemed"),
	)
	if err != nil {
		return nil, err
	}

	m.AuthzDenials, err = meter.Int64Counter("kickai.authz.denials",
		metric.WithDescription("Total capability checks denied"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}
