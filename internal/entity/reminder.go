package entity

import "time"

// Reminder drives `/remind` and the `/background` digest command. A
// one-shot reminder disables itself after firing once.
type Reminder struct {
	ReminderID string `validate:"required"`
	TeamID     string `validate:"required"`
	ChatKind   ChatKind
	Body       string `validate:"required,min=1"`
	CronExpr   string `validate:"required"`
	CreatedBy  string // member_id
	Enabled    bool
	NextRunAt  time.Time
	LastRunAt  time.Time
}

// Poll is a `/poll` ballot. Votes map a subject_id (player_id or member_id)
// to the chosen option index.
type Poll struct {
	PollID    string `validate:"required"`
	TeamID    string `validate:"required"`
	ChatKind  ChatKind
	Question  string   `validate:"required,min=1"`
	Options   []string `validate:"required,min=2"`
	Votes     map[string]int
	CreatedBy string
	ClosedAt  *time.Time
}
