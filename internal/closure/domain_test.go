package closure

import "testing"

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusPending, StatusEarlyFreezing},
		{StatusPending, StatusClosingCalculators},
		{StatusPending, StatusFailed},
		{StatusEarlyFreezing, StatusClosingCalculators},
		{StatusEarlyFreezing, StatusFailed},
		{StatusClosingCalculators, StatusWaitingSummary},
		{StatusClosingCalculators, StatusFailed},
		{StatusWaitingSummary, StatusClosingSummary},
		{StatusWaitingSummary, StatusFailed},
		{StatusClosingSummary, StatusArchiving},
		{StatusClosingSummary, StatusFailed},
		{StatusArchiving, StatusCompleted},
		{StatusArchiving, StatusFailed},
		{StatusFailed, StatusPending},
	}
	for _, tr := range allowed {
		if !CanTransition(tr.from, tr.to) {
			t.Fatalf("expected %s -> %s to be allowed", tr.from, tr.to)
		}
	}

	rejected := []struct{ from, to Status }{
		{StatusPending, StatusArchiving},
		{StatusPending, StatusCompleted},
		{StatusPending, StatusWaitingSummary},
		{StatusEarlyFreezing, StatusWaitingSummary},
		{StatusClosingCalculators, StatusCompleted},
		{StatusWaitingSummary, StatusArchiving},
		{StatusCompleted, StatusPending},
		{StatusCompleted, StatusFailed},
		{StatusFailed, StatusCompleted},
		{StatusFailed, StatusArchiving},
	}
	for _, tr := range rejected {
		if CanTransition(tr.from, tr.to) {
			t.Fatalf("expected %s -> %s to be rejected", tr.from, tr.to)
		}
	}
}

func TestCompletedIsTerminal(t *testing.T) {
	for _, to := range []Status{StatusPending, StatusEarlyFreezing, StatusClosingCalculators, StatusWaitingSummary, StatusClosingSummary, StatusArchiving, StatusFailed} {
		if CanTransition(StatusCompleted, to) {
			t.Fatalf("completed must be terminal, allowed -> %s", to)
		}
	}
}

func TestValidateTransitionErrors(t *testing.T) {
	if err := ValidateTransition(StatusPending, Status("done")); err == nil {
		t.Fatal("expected unknown status error")
	}
	if err := ValidateTransition(StatusPending, StatusArchiving); err == nil {
		t.Fatal("expected invalid transition error")
	}
	if err := ValidateTransition(StatusArchiving, StatusCompleted); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
