package agent_test

import (
	"testing"

	"github.com/kickai/kickai/internal/agent"
)

func TestNewRosterRegistersAllSixSpecialists(t *testing.T) {
	r := agent.NewRoster()
	all := r.All()
	if len(all) != 6 {
		t.Fatalf("expected 6 specialists, got %d", len(all))
	}
}

func TestGetKnownSpecialist(t *testing.T) {
	r := agent.NewRoster()
	s, ok := r.Get(agent.TeamAdministrator)
	if !ok {
		t.Fatalf("expected TeamAdministrator to be registered")
	}
	if s.Name != agent.TeamAdministrator {
		t.Fatalf("unexpected spec: %+v", s)
	}
	if !s.CanMutate {
		t.Fatalf("expected TeamAdministrator to be mutating")
	}
}

func TestNLPProcessorNeverMutates(t *testing.T) {
	r := agent.NewRoster()
	s := r.MustGet(agent.NLPProcessor)
	if s.CanMutate {
		t.Fatalf("NLPProcessor must never mutate state")
	}
	if len(s.Tools) != 0 {
		t.Fatalf("expected NLPProcessor to have no tools, got %v", s.Tools)
	}
}

func TestGetUnknownSpecialist(t *testing.T) {
	r := agent.NewRoster()
	_, ok := r.Get(agent.Name("DoesNotExist"))
	if ok {
		t.Fatalf("expected unknown specialist to be absent")
	}
}

func TestMustGetPanicsOnUnknown(t *testing.T) {
	r := agent.NewRoster()
	defer func() {
		if recover() == nil {
			t.Fatalf("expected MustGet to panic for an unknown specialist")
		}
	}()
	r.MustGet(agent.Name("DoesNotExist"))
}
