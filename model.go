package abac

import (
	"fmt"
	"time"
)

// Effect is the outcome a policy produces when it matches.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

func (e Effect) Valid() bool {
	return e == EffectAllow || e == EffectDeny
}

// Wildcard matches any resource type or action in a policy.
const Wildcard = "*"

// DecisionAllow / DecisionDeny are the values stored in PermissionAudit.Decision.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Permission is a named capability, referenced by roles via RolePermission.
// System permissions are immutable and cannot be deleted by admin tooling.
type Permission struct {
	Code             string    `json:"code" yaml:"code"`
	Category         string    `json:"category" yaml:"category"`
	Action           string    `json:"action" yaml:"action"`
	ResourceType     string    `json:"resource_type" yaml:"resource_type"`
	AllowedFields    []string  `json:"allowed_fields,omitempty" yaml:"allowed_fields,omitempty"`
	RestrictedFields []string  `json:"restricted_fields,omitempty" yaml:"restricted_fields,omitempty"`
	IsActive         bool      `json:"is_active" yaml:"is_active"`
	IsSystem         bool      `json:"is_system" yaml:"is_system"`
	CreatedAt        time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

func (p *Permission) Validate() error {
	if p.Code == "" {
		return &ValidationError{Field: "code", Reason: "permission code is required"}
	}
	if p.ResourceType == "" {
		return &ValidationError{Field: "resource_type", Reason: "resource type is required"}
	}
	if p.Action == "" {
		return &ValidationError{Field: "action", Reason: "action is required"}
	}
	return nil
}

// Role is a named bundle of permissions, optionally scoped to one tenant
// (nil TenantID = global). HierarchyLevel is an informational ranking and is
// not enforced as inheritance.
type Role struct {
	ID             string           `json:"id" yaml:"id"`
	TenantID       *string          `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	Name           string           `json:"name" yaml:"name"`
	HierarchyLevel int              `json:"hierarchy_level" yaml:"hierarchy_level"`
	IsSystem       bool             `json:"is_system" yaml:"is_system"`
	IsDefault      bool             `json:"is_default" yaml:"is_default"`
	Permissions    []RolePermission `json:"permissions,omitempty" yaml:"permissions,omitempty"`
	CreatedAt      time.Time        `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

func (r *Role) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "id", Reason: "role id is required"}
	}
	if r.Name == "" {
		return &ValidationError{Field: "name", Reason: "role name is required"}
	}
	return nil
}

// RolePermission links a role to a permission. Conditions is persisted but
// reserved: the evaluation path does not read it.
type RolePermission struct {
	RoleID         string         `json:"role_id" yaml:"role_id"`
	PermissionCode string         `json:"permission_code" yaml:"permission_code"`
	Conditions     map[string]any `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// UserRole assigns a Role to a user within a tenant for a validity window.
// A user may hold multiple roles across multiple tenants simultaneously.
type UserRole struct {
	ID         string         `json:"id" yaml:"id"`
	UserID     string         `json:"user_id" yaml:"user_id"`
	RoleID     string         `json:"role_id" yaml:"role_id"`
	TenantID   string         `json:"tenant_id" yaml:"tenant_id"`
	ValidFrom  *time.Time     `json:"valid_from,omitempty" yaml:"valid_from,omitempty"`
	ValidUntil *time.Time     `json:"valid_until,omitempty" yaml:"valid_until,omitempty"`
	Scope      map[string]any `json:"scope,omitempty" yaml:"scope,omitempty"`
	IsActive   bool           `json:"is_active" yaml:"is_active"`
	CreatedAt  time.Time      `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// CurrentAt reports whether the assignment is active and inside its validity window.
func (ur *UserRole) CurrentAt(now time.Time) bool {
	if !ur.IsActive {
		return false
	}
	if ur.ValidFrom != nil && now.Before(*ur.ValidFrom) {
		return false
	}
	if ur.ValidUntil != nil && !now.Before(*ur.ValidUntil) {
		return false
	}
	return true
}

// ABACPolicy is the unit of policy evaluation. ResourceType and Action may be
// the wildcard "*". A nil TenantID makes the policy visible to every tenant.
// Condition maps hold the shallow attribute->constraint grammar decoded by
// DecodeConditions; the raw map shape is the persisted wire format.
type ABACPolicy struct {
	ID                    string         `json:"id" yaml:"id"`
	TenantID              *string        `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	Name                  string         `json:"name,omitempty" yaml:"name,omitempty"`
	ResourceType          string         `json:"resource_type" yaml:"resource_type"`
	Action                string         `json:"action" yaml:"action"`
	Effect                Effect         `json:"effect" yaml:"effect"`
	Priority              int            `json:"priority" yaml:"priority"`
	SubjectConditions     map[string]any `json:"subject_conditions,omitempty" yaml:"subject_conditions,omitempty"`
	ResourceConditions    map[string]any `json:"resource_conditions,omitempty" yaml:"resource_conditions,omitempty"`
	EnvironmentConditions map[string]any `json:"environment_conditions,omitempty" yaml:"environment_conditions,omitempty"`
	AllowedFields         []string       `json:"allowed_fields,omitempty" yaml:"allowed_fields,omitempty"`
	DeniedFields          []string       `json:"denied_fields,omitempty" yaml:"denied_fields,omitempty"`
	Obligations           []string       `json:"obligations,omitempty" yaml:"obligations,omitempty"`
	IsActive              bool           `json:"is_active" yaml:"is_active"`
	CreatedAt             time.Time      `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt             time.Time      `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Validate rejects unknown effects and malformed condition shapes at write
// time; they are never silently coerced.
func (p *ABACPolicy) Validate() error {
	if !p.Effect.Valid() {
		return &ValidationError{Field: "effect", Reason: fmt.Sprintf("unknown effect %q", p.Effect)}
	}
	if p.ResourceType == "" {
		return &ValidationError{Field: "resource_type", Reason: "resource type is required"}
	}
	if p.Action == "" {
		return &ValidationError{Field: "action", Reason: "action is required"}
	}
	for _, c := range []struct {
		field string
		conds map[string]any
	}{
		{"subject_conditions", p.SubjectConditions},
		{"resource_conditions", p.ResourceConditions},
		{"environment_conditions", p.EnvironmentConditions},
	} {
		if _, err := DecodeConditions(c.conds); err != nil {
			return &ValidationError{Field: c.field, Reason: err.Error()}
		}
	}
	return nil
}

// Tenant returns the policy tenant or "" for global policies.
func (p *ABACPolicy) Tenant() string {
	if p.TenantID == nil {
		return ""
	}
	return *p.TenantID
}

// Field-level access levels.
const (
	AccessNone  = "none"
	AccessRead  = "read"
	AccessWrite = "write"
	AccessMask  = "mask"
)

// Mask types applied by the field mask engine.
const (
	MaskFull    = "full"
	MaskPartial = "partial"
	MaskHash    = "hash"
	MaskRedact  = "redact"
)

// FieldLevelPermission is a per (resource_type, field_name) access rule. A rule
// applies when RoleCodes intersects the subject's roles (or is empty) and, if
// set, UserAttributes evaluates true against the subject attribute map.
type FieldLevelPermission struct {
	ID             string         `json:"id" yaml:"id"`
	TenantID       *string        `json:"tenant_id,omitempty" yaml:"tenant_id,omitempty"`
	ResourceType   string         `json:"resource_type" yaml:"resource_type"`
	FieldName      string         `json:"field_name" yaml:"field_name"`
	AccessLevel    string         `json:"access_level" yaml:"access_level"`
	RoleCodes      []string       `json:"role_codes,omitempty" yaml:"role_codes,omitempty"`
	UserAttributes map[string]any `json:"user_attributes,omitempty" yaml:"user_attributes,omitempty"`
	MaskType       string         `json:"mask_type,omitempty" yaml:"mask_type,omitempty"`
	MaskPattern    string         `json:"mask_pattern,omitempty" yaml:"mask_pattern,omitempty"`
	IsActive       bool           `json:"is_active" yaml:"is_active"`
}

func (f *FieldLevelPermission) Validate() error {
	if f.ResourceType == "" {
		return &ValidationError{Field: "resource_type", Reason: "resource type is required"}
	}
	if f.FieldName == "" {
		return &ValidationError{Field: "field_name", Reason: "field name is required"}
	}
	switch f.AccessLevel {
	case AccessNone, AccessRead, AccessWrite, AccessMask:
	default:
		return &ValidationError{Field: "access_level", Reason: fmt.Sprintf("unknown access level %q", f.AccessLevel)}
	}
	if f.AccessLevel == AccessMask {
		switch f.MaskType {
		case MaskFull, MaskPartial, MaskHash, MaskRedact:
		default:
			return &ValidationError{Field: "mask_type", Reason: fmt.Sprintf("unknown mask type %q", f.MaskType)}
		}
	}
	if _, err := DecodeConditions(f.UserAttributes); err != nil {
		return &ValidationError{Field: "user_attributes", Reason: err.Error()}
	}
	return nil
}

// PermissionAudit is the append-only record of one authorization decision.
// Attribute maps are snapshots taken at evaluation time; MatchedPolicyID is
// nil on default-deny. Rows are never updated or deleted by the engine.
type PermissionAudit struct {
	ID              string         `json:"id"`
	TenantID        string         `json:"tenant_id"`
	UserID          string         `json:"user_id"`
	ResourceType    string         `json:"resource_type"`
	ResourceID      string         `json:"resource_id"`
	Action          string         `json:"action"`
	Decision        string         `json:"decision"`
	MatchedPolicyID *string        `json:"matched_policy_id,omitempty"`
	Subject         map[string]any `json:"subject"`
	Resource        map[string]any `json:"resource"`
	Environment     map[string]any `json:"environment"`
	IP              string         `json:"ip,omitempty"`
	RequestID       string         `json:"request_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}
