package abac

import (
	"fmt"
	"regexp"
	"strings"
)

// ConstraintKind discriminates the three condition shapes.
type ConstraintKind uint8

const (
	// ConstraintScalar requires the context value to equal the scalar.
	ConstraintScalar ConstraintKind = iota
	// ConstraintList requires the context value to be a member of the list.
	ConstraintList
	// ConstraintOps requires every operator in the map to hold.
	ConstraintOps
)

// Constraint is the decoded form of one condition entry. Conditions are a
// fixed, shallow grammar: no nested boolean logic, no user-defined functions.
type Constraint struct {
	Kind   ConstraintKind
	Scalar any
	List   []any
	Ops    map[string]any
}

// Supported condition operators.
const (
	OpEq       = "eq"
	OpNe       = "ne"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpIn       = "in"
	OpNin      = "nin"
	OpContains = "contains"
	OpRegex    = "regex"
	OpExists   = "exists"
)

var knownOps = map[string]bool{
	OpEq: true, OpNe: true, OpGt: true, OpGte: true, OpLt: true, OpLte: true,
	OpIn: true, OpNin: true, OpContains: true, OpRegex: true, OpExists: true,
}

// subjectRefPrefix marks an operand resolved against the subject context,
// e.g. {"owner_id": {"eq": "$subject.id"}}.
const subjectRefPrefix = "$subject."

// DecodeConditions turns a raw attribute->constraint map (the persisted wire
// shape) into typed constraints. Unknown operators and non-string regex
// patterns are rejected; a nil map decodes to nil.
func DecodeConditions(raw map[string]any) (map[string]Constraint, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	out := make(map[string]Constraint, len(raw))
	for key, v := range raw {
		c, err := decodeConstraint(v)
		if err != nil {
			return nil, fmt.Errorf("condition %q: %w", key, err)
		}
		out[key] = c
	}
	return out, nil
}

func decodeConstraint(v any) (Constraint, error) {
	switch val := v.(type) {
	case map[string]any:
		ops := make(map[string]any, len(val))
		for op, operand := range val {
			if !knownOps[op] {
				return Constraint{}, fmt.Errorf("unknown operator %q", op)
			}
			if op == OpRegex {
				pat, ok := operand.(string)
				if !ok {
					return Constraint{}, fmt.Errorf("regex operand must be a string, got %T", operand)
				}
				if _, err := regexp.Compile(pat); err != nil {
					return Constraint{}, fmt.Errorf("invalid regex %q: %v", pat, err)
				}
			}
			ops[op] = operand
		}
		return Constraint{Kind: ConstraintOps, Ops: ops}, nil
	case map[any]any:
		// yaml.v2-style maps are not accepted; yaml.v3 produces map[string]any.
		return Constraint{}, fmt.Errorf("constraint map must have string keys")
	case []any:
		return Constraint{Kind: ConstraintList, List: val}, nil
	default:
		return Constraint{Kind: ConstraintScalar, Scalar: v}, nil
	}
}

// EvalConditions evaluates decoded conditions against a context attribute map.
// All keys must pass (implicit AND). subjectCtx enables "$subject.<attr>"
// operand resolution and is non-nil only when evaluating resource or
// environment conditions; subject conditions never self-reference.
//
// Pure function: no I/O, no clock, deterministic for fixed inputs.
func EvalConditions(conds map[string]Constraint, context map[string]any, subjectCtx map[string]any) bool {
	for key, c := range conds {
		actual, present := context[key]
		if !evalConstraint(c, actual, present, subjectCtx) {
			return false
		}
	}
	return true
}

func evalConstraint(c Constraint, actual any, present bool, subjectCtx map[string]any) bool {
	switch c.Kind {
	case ConstraintScalar:
		return valuesEqual(actual, resolveOperand(c.Scalar, subjectCtx))
	case ConstraintList:
		return listContains(c.List, actual, subjectCtx)
	case ConstraintOps:
		for op, operand := range c.Ops {
			if !evalOperator(op, operand, actual, present, subjectCtx) {
				return false
			}
		}
		return true
	}
	return false
}

func evalOperator(op string, operand, actual any, present bool, subjectCtx map[string]any) bool {
	if op != OpIn && op != OpNin {
		operand = resolveOperand(operand, subjectCtx)
	}
	switch op {
	case OpEq:
		return valuesEqual(actual, operand)
	case OpNe:
		return !valuesEqual(actual, operand)
	case OpGt, OpGte, OpLt, OpLte:
		// Absent or uncomparable values fail the comparison instead of erroring.
		cmp, ok := compareOrdered(actual, operand)
		if !ok {
			return false
		}
		switch op {
		case OpGt:
			return cmp > 0
		case OpGte:
			return cmp >= 0
		case OpLt:
			return cmp < 0
		default:
			return cmp <= 0
		}
	case OpIn:
		items, ok := operand.([]any)
		return ok && listContains(items, actual, subjectCtx)
	case OpNin:
		items, ok := operand.([]any)
		return ok && !listContains(items, actual, subjectCtx)
	case OpContains:
		return containsValue(actual, operand)
	case OpRegex:
		pat, ok := operand.(string)
		if !ok || !present {
			return false
		}
		matched, err := regexp.MatchString(pat, stringify(actual))
		return err == nil && matched
	case OpExists:
		want, ok := operand.(bool)
		if !ok {
			want = true
		}
		return present == want
	}
	return false
}

// resolveOperand replaces "$subject.<attr>" references with the subject's
// attribute value. Without a subject context the reference is left as-is and
// will simply fail to match.
func resolveOperand(operand any, subjectCtx map[string]any) any {
	s, ok := operand.(string)
	if !ok || subjectCtx == nil || !strings.HasPrefix(s, subjectRefPrefix) {
		return operand
	}
	return subjectCtx[strings.TrimPrefix(s, subjectRefPrefix)]
}

func listContains(items []any, actual any, subjectCtx map[string]any) bool {
	for _, it := range items {
		if valuesEqual(actual, resolveOperand(it, subjectCtx)) {
			return true
		}
	}
	return false
}

// containsValue handles both string containment and slice membership.
func containsValue(actual, operand any) bool {
	switch av := actual.(type) {
	case string:
		s, ok := operand.(string)
		return ok && strings.Contains(av, s)
	case []any:
		for _, it := range av {
			if valuesEqual(it, operand) {
				return true
			}
		}
	case []string:
		s, ok := operand.(string)
		if !ok {
			return false
		}
		for _, it := range av {
			if it == s {
				return true
			}
		}
	}
	return false
}

// valuesEqual compares two loosely typed attribute values. Numeric values are
// normalized so JSON float64s compare equal to ints.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

// compareOrdered returns (-1|0|1, true) for comparable pairs: two numbers or
// two strings (lexical). Everything else is uncomparable.
func compareOrdered(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
