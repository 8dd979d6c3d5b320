package abac

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when an admin operation references a nonexistent
// role, permission or policy.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when a create collides with an existing id or code.
var ErrAlreadyExists = errors.New("already exists")

// ValidationError rejects malformed policies, permissions and field rules at
// write time.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// PolicyStore is durable storage for ABAC policies and field-level rules. The
// engine reads it on cache misses only; all reads are point-in-time with no
// transaction held across evaluation.
type PolicyStore interface {
	// CandidatePolicies returns active policies whose resource_type equals
	// resourceType or "*", whose action equals action or "*", and whose
	// tenant is tenantID or global. Order is unspecified; the engine sorts.
	CandidatePolicies(ctx context.Context, tenantID, resourceType, action string) ([]*ABACPolicy, error)
	CreatePolicy(ctx context.Context, p *ABACPolicy) error
	GetPolicy(ctx context.Context, id string) (*ABACPolicy, error)
	ListPolicies(ctx context.Context, tenantID string) ([]*ABACPolicy, error)
	SetPolicyActive(ctx context.Context, id string, active bool) error

	CreateFieldPermission(ctx context.Context, f *FieldLevelPermission) error
	// ListFieldPermissions returns active rules for the resource type visible
	// to the tenant (tenant-scoped and global).
	ListFieldPermissions(ctx context.Context, tenantID, resourceType string) ([]*FieldLevelPermission, error)
}

// RoleStore is durable storage for permissions, roles and user role assignments.
type RoleStore interface {
	CreatePermission(ctx context.Context, p *Permission) error
	GetPermissionByCode(ctx context.Context, code string) (*Permission, error)

	CreateRole(ctx context.Context, r *Role) error
	GetRole(ctx context.Context, id string) (*Role, error)
	AddRolePermission(ctx context.Context, link *RolePermission) error
	// RolePermissionCodes returns the codes of all active permissions linked
	// to the role.
	RolePermissionCodes(ctx context.Context, roleID string) ([]string, error)

	AssignUserRole(ctx context.Context, ur *UserRole) error
	// UserRoles returns all assignments for the user within the tenant,
	// including inactive and expired ones; the engine applies the validity
	// window.
	UserRoles(ctx context.Context, userID, tenantID string) ([]*UserRole, error)
}

// AuditSink is append-only persistence for decision records. Record must not
// return until the entry is accepted; an error fails the whole check.
type AuditSink interface {
	Record(ctx context.Context, entry *PermissionAudit) error
}

// AuditFilter selects audit rows for querying sinks (SQL and memory sinks
// implement querying; the engine itself only appends).
type AuditFilter struct {
	TenantID  string
	UserID    string
	Action    string
	Decision  string
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

// AuditQuerier is implemented by sinks that support reading back decisions.
type AuditQuerier interface {
	Query(ctx context.Context, filter AuditFilter) ([]*PermissionAudit, error)
}

// InvalidationEvent broadcasts a policy or role mutation so every engine
// instance can drop the affected cache entries.
type InvalidationEvent struct {
	Kind         string `json:"kind"` // "policy" or "role"
	ResourceType string `json:"resource_type,omitempty"`
	Action       string `json:"action,omitempty"`
	RoleID       string `json:"role_id,omitempty"`
}

const (
	InvalidatePolicies = "policy"
	InvalidateRole     = "role"
)

// InvalidationBus distributes invalidation events between engine instances.
// Delivery is best-effort; local caches are always invalidated synchronously
// regardless of bus failures.
type InvalidationBus interface {
	Publish(ctx context.Context, ev InvalidationEvent) error
	Subscribe(ctx context.Context, fn func(InvalidationEvent)) error
}
