package jobstore

import "testing"

func TestStatus_IsTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusTimeout, StatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("expected %q to be terminal", s)
		}
	}

	nonTerminal := []Status{StatusStarted, StatusRunning}
	for _, s := range nonTerminal {
		if s.IsTerminal() {
			t.Errorf("expected %q to not be terminal", s)
		}
	}
}

func TestJob_DurationSeconds_ZeroWhenIncomplete(t *testing.T) {
	j := Job{}
	if d := j.DurationSeconds(); d != 0 {
		t.Errorf("expected 0 duration for incomplete job, got %v", d)
	}
}

func TestNullable(t *testing.T) {
	if nullable("") != nil {
		t.Error("expected nil for empty string")
	}
	if got := nullable("x"); got == nil || *got != "x" {
		t.Error("expected pointer to the non-empty string")
	}
}

func TestOrEmpty(t *testing.T) {
	if m := orEmpty(nil); m == nil {
		t.Error("expected a non-nil empty map")
	}
	m := map[string]any{"a": 1}
	if got := orEmpty(m); len(got) != 1 {
		t.Error("expected orEmpty to pass through a non-nil map")
	}
}
