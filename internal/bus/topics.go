package bus

// TopicFleetAlert is published when a team's bot connection crosses the
// escalation threshold in §4.9 (five consecutive restart failures
// within five minutes).
const TopicFleetAlert = "fleet.alert"

// FleetAlertEvent is a team-level alert raised by the fleet manager.
type FleetAlertEvent struct {
	TeamID   string
	ChatKind string
	Severity string // "warning" or "error"
	Message  string
}
