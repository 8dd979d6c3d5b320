package abac

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Administrative operations. Every mutation invalidates the affected caches
// locally and broadcasts over the invalidation bus when one is configured.

// CreatePolicy validates and persists a policy, assigning an id when absent.
func (e *Engine) CreatePolicy(ctx context.Context, p *ABACPolicy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = e.now()
	}
	p.UpdatedAt = p.CreatedAt
	if err := e.policies.CreatePolicy(ctx, p); err != nil {
		return fmt.Errorf("create policy: %w", err)
	}
	e.InvalidatePolicyCache(p.ResourceType, p.Action)
	e.publishInvalidation(ctx, InvalidationEvent{
		Kind: InvalidatePolicies, ResourceType: p.ResourceType, Action: p.Action,
	})
	e.log.Info("policy created",
		"policy", p.ID,
		"tenant", p.Tenant(),
		"resource_type", p.ResourceType,
		"action", p.Action,
		"effect", string(p.Effect),
		"priority", p.Priority,
	)
	return nil
}

// GetPolicies lists policies visible to the tenant (tenant-scoped and global).
func (e *Engine) GetPolicies(ctx context.Context, tenantID string) ([]*ABACPolicy, error) {
	return e.policies.ListPolicies(ctx, tenantID)
}

// SetPolicyActive toggles a policy. Historical audit rows keep referencing the
// policy id regardless of its state.
func (e *Engine) SetPolicyActive(ctx context.Context, id string, active bool) error {
	p, err := e.policies.GetPolicy(ctx, id)
	if err != nil {
		return err
	}
	if err := e.policies.SetPolicyActive(ctx, id, active); err != nil {
		return fmt.Errorf("set policy active: %w", err)
	}
	e.InvalidatePolicyCache(p.ResourceType, p.Action)
	e.publishInvalidation(ctx, InvalidationEvent{
		Kind: InvalidatePolicies, ResourceType: p.ResourceType, Action: p.Action,
	})
	return nil
}

// CreatePermission persists a new permission. Codes are globally unique;
// collisions surface as ErrAlreadyExists from the store.
func (e *Engine) CreatePermission(ctx context.Context, p *Permission) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = e.now()
	}
	if err := e.roles.CreatePermission(ctx, p); err != nil {
		return fmt.Errorf("create permission: %w", err)
	}
	return nil
}

// CreateRole persists a role and links it to existing permissions by code.
// An unknown code fails the whole call with ErrNotFound.
func (e *Engine) CreateRole(ctx context.Context, r *Role, permissionCodes ...string) error {
	if err := r.Validate(); err != nil {
		return err
	}
	for _, code := range permissionCodes {
		if _, err := e.roles.GetPermissionByCode(ctx, code); err != nil {
			if errors.Is(err, ErrNotFound) {
				return fmt.Errorf("permission %q: %w", code, ErrNotFound)
			}
			return fmt.Errorf("lookup permission %q: %w", code, err)
		}
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = e.now()
	}
	if err := e.roles.CreateRole(ctx, r); err != nil {
		return fmt.Errorf("create role: %w", err)
	}
	for _, code := range permissionCodes {
		link := &RolePermission{RoleID: r.ID, PermissionCode: code}
		if err := e.roles.AddRolePermission(ctx, link); err != nil {
			return fmt.Errorf("link permission %q: %w", code, err)
		}
	}
	e.InvalidateRoleCache(r.ID)
	e.publishInvalidation(ctx, InvalidationEvent{Kind: InvalidateRole, RoleID: r.ID})
	e.log.Info("role created", "role", r.ID, "permissions", len(permissionCodes))
	return nil
}

// AddPermissionToRole links one more permission to an existing role.
func (e *Engine) AddPermissionToRole(ctx context.Context, roleID, permissionCode string) error {
	if _, err := e.roles.GetRole(ctx, roleID); err != nil {
		return err
	}
	if _, err := e.roles.GetPermissionByCode(ctx, permissionCode); err != nil {
		return err
	}
	if err := e.roles.AddRolePermission(ctx, &RolePermission{RoleID: roleID, PermissionCode: permissionCode}); err != nil {
		return fmt.Errorf("link permission: %w", err)
	}
	e.InvalidateRoleCache(roleID)
	e.publishInvalidation(ctx, InvalidationEvent{Kind: InvalidateRole, RoleID: roleID})
	return nil
}

// AssignRoleToUser records a UserRole assignment. The role must exist.
func (e *Engine) AssignRoleToUser(ctx context.Context, ur *UserRole) error {
	if ur.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "user id is required"}
	}
	if ur.RoleID == "" {
		return &ValidationError{Field: "role_id", Reason: "role id is required"}
	}
	if _, err := e.roles.GetRole(ctx, ur.RoleID); err != nil {
		return err
	}
	if ur.ID == "" {
		ur.ID = uuid.NewString()
	}
	if ur.CreatedAt.IsZero() {
		ur.CreatedAt = e.now()
	}
	if err := e.roles.AssignUserRole(ctx, ur); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	e.log.Info("role assigned", "user", ur.UserID, "role", ur.RoleID, "tenant", ur.TenantID)
	return nil
}

// CreateFieldPermission validates and persists a field-level rule.
func (e *Engine) CreateFieldPermission(ctx context.Context, f *FieldLevelPermission) error {
	if err := f.Validate(); err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if err := e.policies.CreateFieldPermission(ctx, f); err != nil {
		return fmt.Errorf("create field permission: %w", err)
	}
	return nil
}
