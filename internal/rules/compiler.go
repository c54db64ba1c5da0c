package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// Warning records a rule that could not be compiled. Warnings are
// diagnostics, never failures: the rest of the rule set still compiles.
type Warning struct {
	Field    string
	Operator Operator
	Reason   string
}

func (w Warning) String() string {
	return fmt.Sprintf("rule %s %s skipped: %s", w.Field, w.Operator, w.Reason)
}

// Predicate is an ordered conjunction of compiled conditions over event-store
// columns. Literal values are carried as bound parameters; they never appear
// in the SQL text.
type Predicate struct {
	clauses  []string
	args     []any
	warnings []Warning
}

// Compile turns an untrusted rule list into a Predicate. Rules with unknown
// fields, unsupported operators, or uncoercible values are skipped with a
// warning. An empty result is the always-true predicate.
func Compile(ruleSet []Rule) Predicate {
	var p Predicate
	for _, r := range ruleSet {
		spec, ok := SpecFor(r.Field)
		if !ok {
			p.warn(r, "unknown field")
			continue
		}
		clause, args, reason := compileRule(r, spec)
		if reason != "" {
			p.warn(r, reason)
			continue
		}
		p.clauses = append(p.clauses, clause)
		p.args = append(p.args, args...)
	}
	return p
}

func compileRule(r Rule, spec FieldSpec) (clause string, args []any, reason string) {
	switch r.Operator {
	case OpEquals:
		switch spec.Type {
		case FieldBool:
			n := 0
			if r.Value.Bool() {
				n = 1
			}
			return spec.Column + " = ?", []any{n}, ""
		case FieldNumber:
			f, ok := r.Value.Number()
			if !ok {
				return "", nil, "value is not numeric"
			}
			return spec.Column + " = ?", []any{f}, ""
		default:
			return spec.Column + " = ?", []any{r.Value.Text()}, ""
		}

	case OpContains:
		if spec.Type != FieldString {
			return "", nil, "contains requires a text field"
		}
		pattern := "%" + escapeLike(r.Value.Text()) + "%"
		return spec.Column + ` LIKE ? ESCAPE '\'`, []any{pattern}, ""

	case OpGreaterThan, OpLessThan:
		if spec.Type != FieldNumber {
			return "", nil, "comparison requires a numeric field"
		}
		f, ok := r.Value.Number()
		if !ok {
			return "", nil, "value is not numeric"
		}
		op := ">"
		if r.Operator == OpLessThan {
			op = "<"
		}
		return spec.Column + " " + op + " ?", []any{f}, ""

	case OpBetween:
		if spec.Type != FieldNumber {
			return "", nil, "between requires a numeric field"
		}
		if r.Value2 == nil {
			return "", nil, "between requires two values"
		}
		lo, ok := r.Value.Number()
		if !ok {
			return "", nil, "value is not numeric"
		}
		hi, ok := r.Value2.Number()
		if !ok {
			return "", nil, "value2 is not numeric"
		}
		return spec.Column + " BETWEEN ? AND ?", []any{lo, hi}, ""

	default:
		return "", nil, "unsupported operator"
	}
}

func (p *Predicate) warn(r Rule, reason string) {
	p.warnings = append(p.warnings, Warning{Field: r.Field, Operator: r.Operator, Reason: reason})
}

// AlwaysTrue reports whether no conditions compiled.
func (p Predicate) AlwaysTrue() bool { return len(p.clauses) == 0 }

// SQL returns the predicate as a parameterized SQL fragment. The always-true
// predicate renders as "1=1" so callers can append it unconditionally.
func (p Predicate) SQL() string {
	if len(p.clauses) == 0 {
		return "1=1"
	}
	return strings.Join(p.clauses, " AND ")
}

// Args returns the bound parameters for SQL, in placeholder order.
func (p Predicate) Args() []any { return p.args }

// Warnings returns the diagnostics recorded during compilation.
func (p Predicate) Warnings() []Warning { return p.warnings }

// Render returns the predicate with literals inlined, for stores without
// placeholder support and for query logging. String literals are escaped
// against SQL quoting; user text can never terminate its literal context.
func (p Predicate) Render() string {
	sql := p.SQL()
	var b strings.Builder
	argIdx := 0
	for _, ch := range sql {
		if ch != '?' {
			b.WriteRune(ch)
			continue
		}
		if argIdx < len(p.args) {
			b.WriteString(renderLiteral(p.args[argIdx]))
			argIdx++
		}
	}
	return b.String()
}

func renderLiteral(arg any) string {
	switch v := arg.(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	default:
		return "'" + strings.ReplaceAll(fmt.Sprint(v), "'", "''") + "'"
	}
}

// escapeLike escapes LIKE wildcards so contains matches the user's text
// literally, substring only.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
