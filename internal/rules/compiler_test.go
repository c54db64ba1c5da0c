package rules_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/sitelens/sitelens/internal/rules"
)

func TestCompile_EmptyRuleSet(t *testing.T) {
	p := rules.Compile(nil)

	if !p.AlwaysTrue() {
		t.Error("expected always-true predicate for empty rule set")
	}
	if p.SQL() != "1=1" {
		t.Errorf("expected 1=1, got %q", p.SQL())
	}
	if len(p.Args()) != 0 {
		t.Errorf("expected no args, got %v", p.Args())
	}
}

func TestCompile_UnknownFieldSkipped(t *testing.T) {
	p := rules.Compile([]rules.Rule{
		{Field: "unsupported_field", Operator: rules.OpEquals, Value: rules.StringValue("x")},
		{Field: "device_type", Operator: rules.OpEquals, Value: rules.StringValue("mobile")},
	})

	if p.AlwaysTrue() {
		t.Fatal("known rule should have compiled")
	}
	if p.SQL() != "device_type = ?" {
		t.Errorf("unexpected SQL: %q", p.SQL())
	}
	if strings.Contains(p.SQL(), "unsupported_field") {
		t.Error("unknown field leaked into SQL")
	}
	if len(p.Warnings()) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(p.Warnings()))
	}
	if p.Warnings()[0].Field != "unsupported_field" {
		t.Errorf("warning names wrong field: %+v", p.Warnings()[0])
	}
}

func TestCompile_AllUnsupportedIsAlwaysTrue(t *testing.T) {
	p := rules.Compile([]rules.Rule{
		{Field: "unsupported_field", Operator: rules.OpEquals, Value: rules.StringValue("x")},
	})

	if !p.AlwaysTrue() {
		t.Error("expected always-true predicate")
	}
	if p.SQL() != "1=1" {
		t.Errorf("expected 1=1, got %q", p.SQL())
	}
}

func TestCompile_UnsupportedOperatorSkipped(t *testing.T) {
	p := rules.Compile([]rules.Rule{
		{Field: "device_type", Operator: "regex", Value: rules.StringValue(".*")},
	})

	if !p.AlwaysTrue() {
		t.Error("expected unsupported operator to be skipped")
	}
	if len(p.Warnings()) != 1 {
		t.Errorf("expected 1 warning, got %d", len(p.Warnings()))
	}
}

func TestCompile_BooleanCoercion(t *testing.T) {
	p := rules.Compile([]rules.Rule{
		{Field: "is_returning", Operator: rules.OpEquals, Value: rules.StringValue("TRUE")},
	})
	if p.SQL() != "is_returning = ?" {
		t.Fatalf("unexpected SQL: %q", p.SQL())
	}
	if p.Args()[0] != 1 {
		t.Errorf("expected 1, got %v", p.Args()[0])
	}

	p = rules.Compile([]rules.Rule{
		{Field: "is_returning", Operator: rules.OpEquals, Value: rules.StringValue("nope")},
	})
	if p.Args()[0] != 0 {
		t.Errorf("expected 0, got %v", p.Args()[0])
	}
}

func TestCompile_NumericCoercionFailureSkips(t *testing.T) {
	p := rules.Compile([]rules.Rule{
		{Field: "scroll_depth", Operator: rules.OpGreaterThan, Value: rules.StringValue("deep")},
	})

	if !p.AlwaysTrue() {
		t.Error("uncoercible numeric value should be skipped")
	}
	if len(p.Warnings()) != 1 {
		t.Errorf("expected 1 warning, got %d", len(p.Warnings()))
	}
}

func TestCompile_NumericStringCoerces(t *testing.T) {
	p := rules.Compile([]rules.Rule{
		{Field: "session_duration", Operator: rules.OpLessThan, Value: rules.StringValue("120")},
	})

	if p.SQL() != "session_duration < ?" {
		t.Fatalf("unexpected SQL: %q", p.SQL())
	}
	if p.Args()[0] != 120.0 {
		t.Errorf("expected 120, got %v", p.Args()[0])
	}
}

func TestCompile_Between(t *testing.T) {
	v2 := rules.NumberValue(90)
	p := rules.Compile([]rules.Rule{
		{Field: "scroll_depth", Operator: rules.OpBetween, Value: rules.NumberValue(10), Value2: &v2},
	})

	if p.SQL() != "scroll_depth BETWEEN ? AND ?" {
		t.Fatalf("unexpected SQL: %q", p.SQL())
	}
	if len(p.Args()) != 2 {
		t.Fatalf("expected 2 args, got %v", p.Args())
	}
}

func TestCompile_BetweenWithoutSecondValueSkips(t *testing.T) {
	p := rules.Compile([]rules.Rule{
		{Field: "scroll_depth", Operator: rules.OpBetween, Value: rules.NumberValue(10)},
	})

	if !p.AlwaysTrue() {
		t.Error("between without value2 should be skipped")
	}
}

func TestCompile_ContainsEscapesWildcards(t *testing.T) {
	p := rules.Compile([]rules.Rule{
		{Field: "page_url", Operator: rules.OpContains, Value: rules.StringValue("10%_off")},
	})

	arg, ok := p.Args()[0].(string)
	if !ok {
		t.Fatalf("expected string arg, got %T", p.Args()[0])
	}
	if arg != `%10\%\_off%` {
		t.Errorf("wildcards not escaped: %q", arg)
	}
}

func TestCompile_MultipleRulesAreConjoined(t *testing.T) {
	p := rules.Compile([]rules.Rule{
		{Field: "device_type", Operator: rules.OpEquals, Value: rules.StringValue("mobile")},
		{Field: "scroll_depth", Operator: rules.OpGreaterThan, Value: rules.NumberValue(50)},
	})

	if p.SQL() != "device_type = ? AND scroll_depth > ?" {
		t.Errorf("unexpected SQL: %q", p.SQL())
	}
}

func TestRender_InjectionSafety(t *testing.T) {
	hostile := []string{
		`'; DROP TABLE events; --`,
		`' OR '1'='1`,
		`\'`,
		`it's`,
		`'`,
		`''`,
		`a\b'c;d--e`,
	}

	for _, value := range hostile {
		p := rules.Compile([]rules.Rule{
			{Field: "page_url", Operator: rules.OpEquals, Value: rules.StringValue(value)},
		})

		rendered := p.Render()
		if !strings.HasPrefix(rendered, "page_url = '") || !strings.HasSuffix(rendered, "'") {
			t.Fatalf("unexpected rendering for %q: %q", value, rendered)
		}

		// Inside the literal, every quote must be doubled so the value can
		// never terminate its context.
		inner := strings.TrimSuffix(strings.TrimPrefix(rendered, "page_url = '"), "'")
		if strings.Contains(strings.ReplaceAll(inner, "''", ""), "'") {
			t.Errorf("unescaped quote for %q: %q", value, rendered)
		}
	}
}

func TestValue_UnmarshalJSON(t *testing.T) {
	var r rules.Rule
	data := `{"field":"scroll_depth","operator":"greater_than","value":50}`
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if r.Value.Kind() != rules.KindNumber {
		t.Errorf("expected number kind, got %v", r.Value.Kind())
	}

	data = `{"field":"device_type","operator":"equals","value":"mobile"}`
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if r.Value.Kind() != rules.KindString || r.Value.Text() != "mobile" {
		t.Errorf("unexpected value: %+v", r.Value)
	}

	data = `{"field":"is_returning","operator":"equals","value":true}`
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if r.Value.Kind() != rules.KindBool || !r.Value.Bool() {
		t.Errorf("unexpected value: %+v", r.Value)
	}

	data = `{"field":"x","operator":"equals","value":{"nested":1}}`
	if err := json.Unmarshal([]byte(data), &r); err == nil {
		t.Error("expected error for object value")
	}
}
