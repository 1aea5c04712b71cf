package queue

import (
	"testing"
)

func mustView(t *testing.T, raw string) View {
	t.Helper()
	view, err := JSONInspector().Inspect([]byte(raw))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return view
}

func TestHasFields(t *testing.T) {
	view := mustView(t, `{"queue": "emails", "name": "send", "data": {"to": "x"}}`)

	t.Run("matches when all fields present", func(t *testing.T) {
		if !HasFields("queue", "name").Match(view) {
			t.Error("expected match")
		}
	})

	t.Run("matches nested fields", func(t *testing.T) {
		if !HasFields("queue", "data.to").Match(view) {
			t.Error("expected match")
		}
	})

	t.Run("fails when any field missing", func(t *testing.T) {
		if HasFields("queue", "queueName").Match(view) {
			t.Error("expected no match")
		}
	})

	t.Run("matches with no fields", func(t *testing.T) {
		if !HasFields().Match(view) {
			t.Error("expected match for empty field list")
		}
	})
}

func TestFieldEquals(t *testing.T) {
	view := mustView(t, `{"envelope": "v1", "attempt": 1}`)

	t.Run("matches exact string value", func(t *testing.T) {
		if !FieldEquals("envelope", "v1").Match(view) {
			t.Error("expected match")
		}
	})

	t.Run("fails on wrong value", func(t *testing.T) {
		if FieldEquals("envelope", "v2").Match(view) {
			t.Error("expected no match")
		}
	})

	t.Run("fails on missing field", func(t *testing.T) {
		if FieldEquals("missing", "v1").Match(view) {
			t.Error("expected no match")
		}
	})

	t.Run("fails on non-string field", func(t *testing.T) {
		if FieldEquals("attempt", "1").Match(view) {
			t.Error("expected no match for non-string field")
		}
	})
}

func TestFieldAtLeast(t *testing.T) {
	view := mustView(t, `{"attemptsMade": 2, "name": "send", "ratio": 0.5}`)

	tests := []struct {
		name string
		d    Discriminator
		want bool
	}{
		{"above minimum", FieldAtLeast("attemptsMade", 0), true},
		{"at minimum", FieldAtLeast("attemptsMade", 2), true},
		{"below minimum", FieldAtLeast("attemptsMade", 3), false},
		{"missing field", FieldAtLeast("attempt", 0), false},
		{"string field", FieldAtLeast("name", 0), false},
		{"fraction truncates", FieldAtLeast("ratio", 0), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.Match(view); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCombinators(t *testing.T) {
	view := mustView(t, `{"queue": "emails", "name": "send"}`)
	yes := HasFields("queue")
	no := HasFields("missing")

	tests := []struct {
		name string
		d    Discriminator
		want bool
	}{
		{"and all match", And(yes, yes), true},
		{"and one fails", And(yes, no), false},
		{"and empty", And(), true},
		{"or one matches", Or(no, yes), true},
		{"or none match", Or(no, no), false},
		{"or empty", Or(), false},
		{"not inverts match", Not(yes), false},
		{"not inverts miss", Not(no), true},
		{"nested", And(yes, Or(no, Not(no))), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.Match(view); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}
