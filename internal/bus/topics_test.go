package bus

import "testing"

func TestEventTopics_Constants(t *testing.T) {
	if TopicUpdateStateChanged == "" {
		t.Fatal("TopicUpdateStateChanged is empty")
	}
	if TopicFleetAlert == "" {
		t.Fatal("TopicFleetAlert is empty")
	}
}

func TestEventTopics_Unique(t *testing.T) {
	topics := map[string]bool{
		TopicUpdateStateChanged: true,
		TopicFleetAlert:         true,
	}
	if len(topics) != 2 {
		t.Fatalf("expected 2 distinct topics, got %d", len(topics))
	}
}

func TestUpdateStateChangedEvent_Fields(t *testing.T) {
	e := UpdateStateChangedEvent{
		TraceID:  "trace-1",
		TeamID:   "team-1",
		ChatKind: "main",
		OldState: "authorized",
		NewState: "routed",
	}
	if e.TraceID == "" || e.TeamID == "" || e.OldState == "" || e.NewState == "" {
		t.Fatal("expected all UpdateStateChangedEvent fields to be set")
	}
}

func TestFleetAlertEvent_Severity(t *testing.T) {
	alert := FleetAlertEvent{
		TeamID:   "team-1",
		ChatKind: "leadership",
		Severity: "error",
		Message:  "5 consecutive restart failures in 5 minutes",
	}
	if alert.Severity != "error" {
		t.Fatalf("expected severity error, got %q", alert.Severity)
	}
}
