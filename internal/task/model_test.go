package task

import "testing"

func TestStatusValid(t *testing.T) {
	valid := []Status{StatusTodo, StatusInProgress, StatusDone}
	for _, s := range valid {
		if !s.Valid() {
			t.Fatalf("Status(%q).Valid() = false, want true", s)
		}
	}

	invalid := []Status{"", "archived", "TODO", "in progress"}
	for _, s := range invalid {
		if s.Valid() {
			t.Fatalf("Status(%q).Valid() = true, want false", s)
		}
	}
}
