package abac

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

const (
	fullMaskString   = "****"
	redactedString   = "[REDACTED]"
	last4Placeholder = "{last4}"
)

// GetAllowedFields unions every active field rule applicable to the subject
// for the resource type: access "none" adds the field to the denied set, the
// other levels to the allowed set (masked fields are allowed but transformed
// before return). A rule applies when its role codes intersect the subject's
// roles (or it has no role restriction) and its user-attribute conditions, if
// any, hold. Results are sorted for deterministic output.
func (e *Engine) GetAllowedFields(ctx context.Context, subject map[string]any, resourceType, action, tenantID string) (allowed, denied []string, err error) {
	rules, err := e.policies.ListFieldPermissions(ctx, tenantID, resourceType)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch field permissions: %w", err)
	}
	_ = action // kept for call-surface parity; field rules are not action-scoped

	allowedSet := map[string]struct{}{}
	deniedSet := map[string]struct{}{}
	roles := subjectRoles(subject)
	for _, rule := range rules {
		if !fieldRuleApplies(rule, roles, subject) {
			continue
		}
		if rule.AccessLevel == AccessNone {
			deniedSet[rule.FieldName] = struct{}{}
		} else {
			allowedSet[rule.FieldName] = struct{}{}
		}
	}
	return sortedKeys(allowedSet), sortedKeys(deniedSet), nil
}

// MaskFieldValue transforms a field value according to the first applicable
// masking rule for (resource_type, field_name). Values without a matching
// mask rule are returned unchanged.
func (e *Engine) MaskFieldValue(ctx context.Context, resourceType, fieldName string, value any, tenantID string) (any, error) {
	rules, err := e.policies.ListFieldPermissions(ctx, tenantID, resourceType)
	if err != nil {
		return nil, fmt.Errorf("fetch field permissions: %w", err)
	}
	for _, rule := range rules {
		if rule.FieldName != fieldName || rule.AccessLevel != AccessMask {
			continue
		}
		return ApplyMask(rule.MaskType, rule.MaskPattern, value), nil
	}
	return value, nil
}

// ApplyMask is the pure masking primitive. Masking is idempotent for "full"
// and "redact": masking an already-masked value yields the same string.
func ApplyMask(maskType, pattern string, value any) any {
	switch maskType {
	case MaskFull:
		return fullMaskString
	case MaskPartial:
		if pattern == "" {
			pattern = fullMaskString + last4Placeholder
		}
		return strings.ReplaceAll(pattern, last4Placeholder, lastN(stringify(value), 4))
	case MaskHash:
		sum := sha256.Sum256([]byte(stringify(value)))
		return hex.EncodeToString(sum[:])[:16]
	case MaskRedact:
		return redactedString
	}
	return value
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// fieldRuleApplies checks the rule's role intersection and user-attribute
// conditions against the subject.
func fieldRuleApplies(rule *FieldLevelPermission, roles []string, subject map[string]any) bool {
	if !rule.IsActive {
		return false
	}
	if len(rule.RoleCodes) > 0 && !intersects(rule.RoleCodes, roles) {
		return false
	}
	if len(rule.UserAttributes) > 0 {
		conds, err := DecodeConditions(rule.UserAttributes)
		if err != nil {
			return false
		}
		if !EvalConditions(conds, subject, nil) {
			return false
		}
	}
	return true
}

// subjectRoles extracts the subject's role list from its attribute map,
// accepting []string or []any of strings under "roles".
func subjectRoles(subject map[string]any) []string {
	switch v := subject["roles"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, it := range v {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
