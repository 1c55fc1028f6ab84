package storage

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// The filter language is a flat conjunction of comparisons:
//
//	date = "2025-10-11" && file_name = "pr.txt" && seq >= 3
//
// Operators: = != > >= < <=. Values: double-quoted strings (times as
// RFC3339), numbers, true/false. No grouping and no disjunction; this
// core only ever emits conjunctions.

type Op string

const (
	OpEq  Op = "="
	OpNeq Op = "!="
	OpGt  Op = ">"
	OpGte Op = ">="
	OpLt  Op = "<"
	OpLte Op = "<="
)

type Cond struct {
	Field string
	Op    Op
	Value any
}

// Filter is an ordered conjunction of conditions.
type Filter []Cond

// Where starts a filter with one condition.
func Where(field string, op Op, value any) Filter {
	return Filter{{Field: field, Op: op, Value: value}}
}

// And appends a condition and returns the extended filter.
func (f Filter) And(field string, op Op, value any) Filter {
	return append(f, Cond{Field: field, Op: op, Value: value})
}

// String serializes the filter in the expression language.
func (f Filter) String() string {
	if len(f) == 0 {
		return ""
	}
	parts := make([]string, 0, len(f))
	for _, c := range f {
		parts = append(parts, fmt.Sprintf("%s %s %s", c.Field, c.Op, encodeValue(c.Value)))
	}
	return strings.Join(parts, " && ")
}

func encodeValue(v any) string {
	switch value := v.(type) {
	case string:
		return strconv.Quote(value)
	case time.Time:
		return strconv.Quote(value.UTC().Format(time.RFC3339))
	case bool:
		return strconv.FormatBool(value)
	case int:
		return strconv.Itoa(value)
	case int64:
		return strconv.FormatInt(value, 10)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		return strconv.Quote(fmt.Sprintf("%v", value))
	}
}

// ParseFilter decodes an expression back into conditions. An empty
// expression yields an empty filter.
func ParseFilter(expr string) (Filter, error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return nil, nil
	}

	clauses, err := splitConjunction(trimmed)
	if err != nil {
		return nil, err
	}

	filter := make(Filter, 0, len(clauses))
	for _, clause := range clauses {
		cond, err := parseCond(clause)
		if err != nil {
			return nil, err
		}
		filter = append(filter, cond)
	}
	return filter, nil
}

// splitConjunction splits on && while respecting quoted strings.
func splitConjunction(expr string) ([]string, error) {
	var parts []string
	var b strings.Builder
	inQuote := false

	for i := 0; i < len(expr); i++ {
		ch := expr[i]
		switch {
		case ch == '"' && (i == 0 || expr[i-1] != '\\'):
			inQuote = !inQuote
			b.WriteByte(ch)
		case !inQuote && ch == '&' && i+1 < len(expr) && expr[i+1] == '&':
			parts = append(parts, b.String())
			b.Reset()
			i++
		default:
			b.WriteByte(ch)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("unterminated string in filter %q", expr)
	}
	parts = append(parts, b.String())
	return parts, nil
}

func parseCond(clause string) (Cond, error) {
	trimmed := strings.TrimSpace(clause)
	if trimmed == "" {
		return Cond{}, fmt.Errorf("empty clause in filter")
	}

	// Two-character operators first so ">=" is not read as ">".
	for _, op := range []Op{OpGte, OpLte, OpNeq, OpEq, OpGt, OpLt} {
		idx := indexOfOperator(trimmed, string(op))
		if idx < 0 {
			continue
		}
		field := strings.TrimSpace(trimmed[:idx])
		rawValue := strings.TrimSpace(trimmed[idx+len(op):])
		if field == "" {
			return Cond{}, fmt.Errorf("missing field in clause %q", clause)
		}
		value, err := decodeValue(rawValue)
		if err != nil {
			return Cond{}, fmt.Errorf("clause %q: %w", clause, err)
		}
		return Cond{Field: field, Op: op, Value: value}, nil
	}

	return Cond{}, fmt.Errorf("no comparison operator in clause %q", clause)
}

// indexOfOperator finds op outside of quotes, ensuring "=" does not match
// inside "!=", ">=" or "<=".
func indexOfOperator(clause, op string) int {
	inQuote := false
	for i := 0; i+len(op) <= len(clause); i++ {
		if clause[i] == '"' && (i == 0 || clause[i-1] != '\\') {
			inQuote = !inQuote
			continue
		}
		if inQuote {
			continue
		}
		if clause[i:i+len(op)] != op {
			continue
		}
		if op == "=" && i > 0 && (clause[i-1] == '!' || clause[i-1] == '>' || clause[i-1] == '<') {
			continue
		}
		if (op == ">" || op == "<") && i+1 < len(clause) && clause[i+1] == '=' {
			continue
		}
		return i
	}
	return -1
}

func decodeValue(raw string) (any, error) {
	if raw == "" {
		return nil, fmt.Errorf("missing value")
	}
	if strings.HasPrefix(raw, `"`) {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return nil, fmt.Errorf("bad string literal %s: %w", raw, err)
		}
		return unquoted, nil
	}
	if raw == "true" || raw == "false" {
		return raw == "true", nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("bad literal %q: %w", raw, err)
	}
	return value, nil
}

// Matches evaluates the filter against a record. String comparisons are
// lexicographic, which lines up with equality and with RFC3339/ISO date
// ordering; numeric fields compare numerically.
func (f Filter) Matches(rec Record) bool {
	for _, c := range f {
		if !condMatches(c, rec) {
			return false
		}
	}
	return true
}

func condMatches(c Cond, rec Record) bool {
	field, present := rec[c.Field]
	if !present || field == nil {
		// Absent fields only satisfy explicit inequality against a value.
		return c.Op == OpNeq
	}

	if want, ok := toFloat(c.Value); ok {
		if got, ok := toFloat(field); ok {
			return compareFloats(got, want, c.Op)
		}
	}
	return compareStrings(stringify(field), stringify(c.Value), c.Op)
}

func compareFloats(got, want float64, op Op) bool {
	switch op {
	case OpEq:
		return got == want
	case OpNeq:
		return got != want
	case OpGt:
		return got > want
	case OpGte:
		return got >= want
	case OpLt:
		return got < want
	case OpLte:
		return got <= want
	default:
		return false
	}
}

func compareStrings(got, want string, op Op) bool {
	switch op {
	case OpEq:
		return got == want
	case OpNeq:
		return got != want
	case OpGt:
		return got > want
	case OpGte:
		return got >= want
	case OpLt:
		return got < want
	case OpLte:
		return got <= want
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int32:
		return float64(value), true
	case int64:
		return float64(value), true
	default:
		return 0, false
	}
}

func stringify(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case time.Time:
		return value.UTC().Format(time.RFC3339)
	case bool:
		return strconv.FormatBool(value)
	default:
		return fmt.Sprintf("%v", value)
	}
}
