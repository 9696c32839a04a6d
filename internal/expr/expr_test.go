package expr

import "testing"

func TestEvalString_comparisons(t *testing.T) {
	scope := map[string]any{
		"user": map[string]any{"verified": true, "age": float64(21), "plan": "pro"},
		"geo":  map[string]any{"accuracy": float64(12.5)},
	}

	cases := []struct {
		expr string
		want bool
	}{
		{"user.verified", true},
		{"user.verified == true", true},
		{"user.age >= 18", true},
		{"user.age < 18", false},
		{"user.plan == 'pro'", true},
		{"user.plan != 'free'", true},
		{"geo.accuracy <= 50", true},
		{"user.verified && user.age >= 18", true},
		{"user.age < 18 || user.plan == 'pro'", true},
		{"!user.verified", false},
		{"(user.age > 18 && user.plan == 'free') || user.verified", true},
		{"user.missing", false},
		{"user.missing == null", true},
	}
	for _, c := range cases {
		got, err := EvalString(c.expr, scope)
		if err != nil {
			t.Errorf("EvalString(%q) error: %v", c.expr, err)
			continue
		}
		if got != c.want {
			t.Errorf("EvalString(%q) = %v, want %v", c.expr, got, c.want)
		}
	}
}

func TestEvalString_intAndFloatCompareEqual(t *testing.T) {
	got, err := EvalString("count == 3", map[string]any{"count": 3})
	if err != nil {
		t.Fatalf("EvalString error: %v", err)
	}
	if !got {
		t.Error("int scope value should compare equal to numeric literal")
	}
}

func TestParse_rejectsMalformed(t *testing.T) {
	for _, expr := range []string{
		"user.age >",
		"user.plan == 'unterminated",
		"(user.verified",
		"user.age === 3",
		"user.age ; drop",
		"",
	} {
		if _, err := Parse(expr); err == nil {
			t.Errorf("Parse(%q): expected error", expr)
		}
	}
}

func TestEvalString_orderingNeedsNumbers(t *testing.T) {
	if _, err := EvalString("user.plan > 'a'", map[string]any{
		"user": map[string]any{"plan": "pro"},
	}); err == nil {
		t.Fatal("expected error for string ordering comparison")
	}
}

func TestEvalString_missingPathIntoNonMap(t *testing.T) {
	got, err := EvalString("a.b.c", map[string]any{"a": map[string]any{"b": "leaf"}})
	if err != nil {
		t.Fatalf("EvalString error: %v", err)
	}
	if got {
		t.Error("descending into a non-map should evaluate falsy")
	}
}
