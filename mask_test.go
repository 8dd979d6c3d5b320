package abac_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/complyon/abac"
)

func TestApplyMask(t *testing.T) {
	tests := []struct {
		name     string
		maskType string
		pattern  string
		value    any
		want     any
	}{
		{"full", abac.MaskFull, "", "4111111111111111", "****"},
		{"partial default pattern", abac.MaskPartial, "", "4111111111111111", "****1111"},
		{"partial custom pattern", abac.MaskPartial, "XXXX-XXXX-{last4}", "4111111111111111", "XXXX-XXXX-1111"},
		{"partial short value", abac.MaskPartial, "{last4}", "42", "42"},
		{"redact", abac.MaskRedact, "", "555-0100", "[REDACTED]"},
		{"unknown type unchanged", "rot13", "", "secret", "secret"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := abac.ApplyMask(tc.maskType, tc.pattern, tc.value); got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestApplyMaskHash(t *testing.T) {
	got, ok := abac.ApplyMask(abac.MaskHash, "", "alice@example.com").(string)
	if !ok || len(got) != 16 {
		t.Fatalf("hash mask should yield a 16 char hex string, got %v", got)
	}
	again, _ := abac.ApplyMask(abac.MaskHash, "", "alice@example.com").(string)
	if got != again {
		t.Fatalf("hash mask must be deterministic")
	}
	other, _ := abac.ApplyMask(abac.MaskHash, "", "bob@example.com").(string)
	if got == other {
		t.Fatalf("different values should hash differently")
	}
}

func TestApplyMaskIdempotent(t *testing.T) {
	once := abac.ApplyMask(abac.MaskFull, "", "secret")
	if abac.ApplyMask(abac.MaskFull, "", once) != once {
		t.Fatalf("full mask must be idempotent")
	}
	once = abac.ApplyMask(abac.MaskRedact, "", "secret")
	if abac.ApplyMask(abac.MaskRedact, "", once) != once {
		t.Fatalf("redact mask must be idempotent")
	}
}

func TestGetAllowedFields(t *testing.T) {
	ctx := context.Background()
	eng, _, _, _ := newTestEngine(t)

	seed := []*abac.FieldLevelPermission{
		abac.NewFieldRuleBuilder().ID("f1").Tenant("t1").Resource("patient").Field("name").
			Access(abac.AccessRead).Roles("nurse", "doctor").Build(),
		abac.NewFieldRuleBuilder().ID("f2").Tenant("t1").Resource("patient").Field("ssn").
			Access(abac.AccessNone).Roles("nurse").Build(),
		abac.NewFieldRuleBuilder().ID("f3").Tenant("t1").Resource("patient").Field("ssn").
			Access(abac.AccessRead).Roles("doctor").Build(),
		abac.NewFieldRuleBuilder().ID("f4").Tenant("t1").Resource("patient").Field("diagnosis").
			Mask(abac.MaskRedact, "").Roles("nurse").Build(),
		// No role restriction: applies to everyone.
		abac.NewFieldRuleBuilder().ID("f5").Tenant("t1").Resource("patient").Field("id").
			Access(abac.AccessRead).Build(),
		// Attribute gated rule.
		abac.NewFieldRuleBuilder().ID("f6").Tenant("t1").Resource("patient").Field("billing").
			Access(abac.AccessRead).
			UserAttribute("department", "finance").Build(),
		// Inactive rules never apply.
		abac.NewFieldRuleBuilder().ID("f7").Tenant("t1").Resource("patient").Field("notes").
			Access(abac.AccessRead).Build(),
	}
	seed[6].IsActive = false
	for _, f := range seed {
		if err := eng.CreateFieldPermission(ctx, f); err != nil {
			t.Fatalf("create field rule %s: %v", f.ID, err)
		}
	}

	nurse := map[string]any{"id": "u1", "roles": []string{"nurse"}, "department": "care"}
	allowed, denied, err := eng.GetAllowedFields(ctx, nurse, "patient", "read", "t1")
	if err != nil {
		t.Fatalf("get allowed fields: %v", err)
	}
	if !reflect.DeepEqual(allowed, []string{"diagnosis", "id", "name"}) {
		t.Fatalf("nurse allowed = %v", allowed)
	}
	if !reflect.DeepEqual(denied, []string{"ssn"}) {
		t.Fatalf("nurse denied = %v", denied)
	}

	doctor := map[string]any{"id": "u2", "roles": []any{"doctor"}, "department": "care"}
	allowed, denied, err = eng.GetAllowedFields(ctx, doctor, "patient", "read", "t1")
	if err != nil {
		t.Fatalf("get allowed fields: %v", err)
	}
	if !reflect.DeepEqual(allowed, []string{"id", "name", "ssn"}) {
		t.Fatalf("doctor allowed = %v", allowed)
	}
	if len(denied) != 0 {
		t.Fatalf("doctor denied = %v", denied)
	}

	accountant := map[string]any{"id": "u3", "roles": []string{"accountant"}, "department": "finance"}
	allowed, _, err = eng.GetAllowedFields(ctx, accountant, "patient", "read", "t1")
	if err != nil {
		t.Fatalf("get allowed fields: %v", err)
	}
	if !reflect.DeepEqual(allowed, []string{"billing", "id"}) {
		t.Fatalf("accountant allowed = %v", allowed)
	}
}

func TestMaskFieldValue(t *testing.T) {
	ctx := context.Background()
	eng, _, _, _ := newTestEngine(t)

	rules := []*abac.FieldLevelPermission{
		abac.NewFieldRuleBuilder().ID("m1").Tenant("t1").Resource("customer").Field("card").
			Mask(abac.MaskPartial, "").Build(),
		abac.NewFieldRuleBuilder().ID("m2").Tenant("t1").Resource("customer").Field("email").
			Mask(abac.MaskHash, "").Build(),
	}
	for _, f := range rules {
		if err := eng.CreateFieldPermission(ctx, f); err != nil {
			t.Fatalf("create field rule: %v", err)
		}
	}

	got, err := eng.MaskFieldValue(ctx, "customer", "card", "4111111111111111", "t1")
	if err != nil {
		t.Fatalf("mask: %v", err)
	}
	if got != "****1111" {
		t.Fatalf("card mask = %v", got)
	}

	got, err = eng.MaskFieldValue(ctx, "customer", "phone", "555-0100", "t1")
	if err != nil {
		t.Fatalf("mask: %v", err)
	}
	if got != "555-0100" {
		t.Fatalf("field without a mask rule must pass through, got %v", got)
	}
}

func TestFieldRuleValidation(t *testing.T) {
	bad := &abac.FieldLevelPermission{ResourceType: "patient", FieldName: "ssn", AccessLevel: "partial"}
	if err := bad.Validate(); err == nil {
		t.Fatalf("unknown access level must be rejected")
	}
	noMaskType := &abac.FieldLevelPermission{ResourceType: "patient", FieldName: "ssn", AccessLevel: abac.AccessMask}
	if err := noMaskType.Validate(); err == nil {
		t.Fatalf("mask access without a mask type must be rejected")
	}
}
