package abac

import (
	"testing"
)

func mustDecode(t *testing.T, raw map[string]any) map[string]Constraint {
	t.Helper()
	conds, err := DecodeConditions(raw)
	if err != nil {
		t.Fatalf("decode conditions: %v", err)
	}
	return conds
}

func TestDecodeConditionsShapes(t *testing.T) {
	conds := mustDecode(t, map[string]any{
		"department": "engineering",
		"clearance":  []any{"secret", "top-secret"},
		"level":      map[string]any{"gte": 3},
	})
	if conds["department"].Kind != ConstraintScalar {
		t.Fatalf("expected scalar constraint")
	}
	if conds["clearance"].Kind != ConstraintList {
		t.Fatalf("expected list constraint")
	}
	if conds["level"].Kind != ConstraintOps {
		t.Fatalf("expected operator constraint")
	}
}

func TestDecodeConditionsRejectsUnknownOperator(t *testing.T) {
	_, err := DecodeConditions(map[string]any{
		"level": map[string]any{"between": []any{1, 5}},
	})
	if err == nil {
		t.Fatalf("expected error for unknown operator")
	}
}

func TestDecodeConditionsRejectsBadRegex(t *testing.T) {
	if _, err := DecodeConditions(map[string]any{
		"email": map[string]any{"regex": "[unclosed"},
	}); err == nil {
		t.Fatalf("expected error for invalid regex")
	}
	if _, err := DecodeConditions(map[string]any{
		"email": map[string]any{"regex": 42},
	}); err == nil {
		t.Fatalf("expected error for non-string regex operand")
	}
}

func TestDecodeConditionsEmpty(t *testing.T) {
	conds, err := DecodeConditions(nil)
	if err != nil || conds != nil {
		t.Fatalf("nil map should decode to nil, got %v, %v", conds, err)
	}
}

func TestEvalOperators(t *testing.T) {
	context := map[string]any{
		"department": "engineering",
		"level":      5,
		"score":      82.5,
		"email":      "alice@example.com",
		"tags":       []any{"pii", "finance"},
		"active":     true,
	}

	tests := []struct {
		name  string
		conds map[string]any
		want  bool
	}{
		{"scalar equal", map[string]any{"department": "engineering"}, true},
		{"scalar not equal", map[string]any{"department": "sales"}, false},
		{"list membership", map[string]any{"department": []any{"sales", "engineering"}}, true},
		{"list miss", map[string]any{"department": []any{"sales", "hr"}}, false},
		{"eq", map[string]any{"level": map[string]any{"eq": 5}}, true},
		{"eq float vs int", map[string]any{"level": map[string]any{"eq": 5.0}}, true},
		{"ne", map[string]any{"level": map[string]any{"ne": 3}}, true},
		{"gt", map[string]any{"level": map[string]any{"gt": 4}}, true},
		{"gt false", map[string]any{"level": map[string]any{"gt": 5}}, false},
		{"gte boundary", map[string]any{"level": map[string]any{"gte": 5}}, true},
		{"lt", map[string]any{"score": map[string]any{"lt": 90}}, true},
		{"lte boundary", map[string]any{"score": map[string]any{"lte": 82.5}}, true},
		{"in", map[string]any{"department": map[string]any{"in": []any{"engineering", "sales"}}}, true},
		{"nin", map[string]any{"department": map[string]any{"nin": []any{"sales", "hr"}}}, true},
		{"nin member", map[string]any{"department": map[string]any{"nin": []any{"engineering"}}}, false},
		{"contains string", map[string]any{"email": map[string]any{"contains": "@example"}}, true},
		{"contains slice", map[string]any{"tags": map[string]any{"contains": "pii"}}, true},
		{"contains miss", map[string]any{"tags": map[string]any{"contains": "health"}}, false},
		{"regex", map[string]any{"email": map[string]any{"regex": `^[a-z]+@example\.com$`}}, true},
		{"regex miss", map[string]any{"email": map[string]any{"regex": `^bob@`}}, false},
		{"exists true", map[string]any{"level": map[string]any{"exists": true}}, true},
		{"exists false", map[string]any{"missing": map[string]any{"exists": false}}, true},
		{"exists missing", map[string]any{"missing": map[string]any{"exists": true}}, false},
		{"bool scalar", map[string]any{"active": true}, true},
		{"multiple ops on one key", map[string]any{"level": map[string]any{"gte": 3, "lte": 7}}, true},
		{"multiple ops one fails", map[string]any{"level": map[string]any{"gte": 3, "lte": 4}}, false},
		{"implicit and across keys", map[string]any{"department": "engineering", "level": map[string]any{"gt": 10}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			conds := mustDecode(t, tc.conds)
			if got := EvalConditions(conds, context, nil); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvalAbsentNumericComparisonFails(t *testing.T) {
	conds := mustDecode(t, map[string]any{
		"level": map[string]any{"gt": 3},
	})
	if EvalConditions(conds, map[string]any{}, nil) {
		t.Fatalf("comparison against an absent attribute must fail, not allow")
	}
}

func TestEvalUncomparableTypesFail(t *testing.T) {
	conds := mustDecode(t, map[string]any{
		"level": map[string]any{"gt": "three"},
	})
	if EvalConditions(conds, map[string]any{"level": 5}, nil) {
		t.Fatalf("mixed-type ordering must fail closed")
	}
}

func TestEvalSubjectReference(t *testing.T) {
	subject := map[string]any{"id": "u-1", "org": "acme"}

	conds := mustDecode(t, map[string]any{
		"owner_id": map[string]any{"eq": "$subject.id"},
	})
	if !EvalConditions(conds, map[string]any{"owner_id": "u-1"}, subject) {
		t.Fatalf("owner check should match the subject id")
	}
	if EvalConditions(conds, map[string]any{"owner_id": "u-2"}, subject) {
		t.Fatalf("owner check should reject a different owner")
	}

	// Scalar form resolves too.
	scalar := mustDecode(t, map[string]any{"org": "$subject.org"})
	if !EvalConditions(scalar, map[string]any{"org": "acme"}, subject) {
		t.Fatalf("scalar subject reference should resolve")
	}

	// List elements resolve inside in/nin.
	in := mustDecode(t, map[string]any{
		"owner_id": map[string]any{"in": []any{"$subject.id", "shared"}},
	})
	if !EvalConditions(in, map[string]any{"owner_id": "u-1"}, subject) {
		t.Fatalf("in-list subject reference should resolve")
	}
}

func TestEvalSubjectReferenceWithoutContext(t *testing.T) {
	// Subject conditions never self-reference: without a subject context the
	// literal "$subject.id" string is compared as-is and fails to match.
	conds := mustDecode(t, map[string]any{
		"owner_id": map[string]any{"eq": "$subject.id"},
	})
	if EvalConditions(conds, map[string]any{"owner_id": "u-1"}, nil) {
		t.Fatalf("unresolved subject reference must not match")
	}
}

func TestValuesEqualNumericNormalization(t *testing.T) {
	if !valuesEqual(int64(7), 7.0) {
		t.Fatalf("int64 and float64 of the same value should compare equal")
	}
	if valuesEqual("7", 7) {
		t.Fatalf("string and number must not compare equal")
	}
	if !valuesEqual(nil, nil) {
		t.Fatalf("nil equals nil")
	}
	if valuesEqual(nil, "x") {
		t.Fatalf("nil equals only nil")
	}
}

func TestCompareOrderedStrings(t *testing.T) {
	cmp, ok := compareOrdered("2024-01-01", "2024-06-01")
	if !ok || cmp >= 0 {
		t.Fatalf("lexical string ordering should apply, got %d %v", cmp, ok)
	}
}
