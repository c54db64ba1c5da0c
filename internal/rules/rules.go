package rules

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Operator is a comparison operator in a user-authored segment rule.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpBetween     Operator = "between"
)

// Rule is one condition of a user-authored cohort definition. Rules arrive
// from the API layer as JSON and are untrusted until compiled.
type Rule struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    Value    `json:"value"`
	Value2   *Value   `json:"value2,omitempty"`
}

// ValueKind tags the variant held by a Value.
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindBool
)

// Value is a rule literal: string, number, or boolean. The loose JSON typing
// is resolved here once; everything past the compiler works with the tagged
// representation.
type Value struct {
	kind ValueKind
	str  string
	num  float64
	b    bool
}

func StringValue(s string) Value  { return Value{kind: KindString, str: s} }
func NumberValue(f float64) Value { return Value{kind: KindNumber, num: f} }
func BoolValue(b bool) Value      { return Value{kind: KindBool, b: b} }

func (v Value) Kind() ValueKind { return v.kind }

// Text returns the value rendered as text, whatever its kind.
func (v Value) Text() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return v.str
	}
}

// Number coerces the value to a float64. Strings are parsed; booleans do not
// coerce.
func (v Value) Number() (float64, bool) {
	switch v.kind {
	case KindNumber:
		return v.num, true
	case KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.str), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Bool coerces the value to a boolean. String values match "true"
// case-insensitively; any other text is false.
func (v Value) Bool() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return v.num != 0
	default:
		return strings.EqualFold(strings.TrimSpace(v.str), "true")
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = StringValue(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*v = NumberValue(f)
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = BoolValue(b)
		return nil
	}
	return fmt.Errorf("rule value must be a string, number, or boolean: %s", data)
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindBool:
		return json.Marshal(v.b)
	default:
		return json.Marshal(v.str)
	}
}

// FieldType is the store-side type of a whitelisted rule field.
type FieldType int

const (
	FieldString FieldType = iota
	FieldNumber
	FieldBool
)

// FieldSpec maps a whitelisted rule field to its event-store column.
type FieldSpec struct {
	Column string
	Type   FieldType
}

// SpecFor resolves a rule field name against the static whitelist. Fields not
// listed here are unsupported, not erroneous; the compiler skips them.
func SpecFor(field string) (FieldSpec, bool) {
	switch field {
	case "device_type":
		return FieldSpec{Column: "device_type", Type: FieldString}, true
	case "browser":
		return FieldSpec{Column: "browser", Type: FieldString}, true
	case "os":
		return FieldSpec{Column: "os", Type: FieldString}, true
	case "country":
		return FieldSpec{Column: "country", Type: FieldString}, true
	case "page_url":
		return FieldSpec{Column: "page_url", Type: FieldString}, true
	case "referrer":
		return FieldSpec{Column: "referrer", Type: FieldString}, true
	case "event_type":
		return FieldSpec{Column: "event_type", Type: FieldString}, true
	case "utm_source":
		return FieldSpec{Column: "utm_source", Type: FieldString}, true
	case "utm_medium":
		return FieldSpec{Column: "utm_medium", Type: FieldString}, true
	case "utm_campaign":
		return FieldSpec{Column: "utm_campaign", Type: FieldString}, true
	case "scroll_depth":
		return FieldSpec{Column: "scroll_depth", Type: FieldNumber}, true
	case "session_duration":
		return FieldSpec{Column: "session_duration", Type: FieldNumber}, true
	case "is_returning":
		return FieldSpec{Column: "is_returning", Type: FieldBool}, true
	default:
		return FieldSpec{}, false
	}
}
