package stores

import (
	"context"
	"fmt"

	"github.com/oarkflow/squealx"

	"github.com/complyon/abac"
)

// SQLRoleStore persists permissions, roles, role-permission links and user
// role assignments.
type SQLRoleStore struct {
	db *squealx.DB
}

func NewSQLRoleStore(db *squealx.DB) *SQLRoleStore {
	return &SQLRoleStore{db: db}
}

func (s *SQLRoleStore) CreatePermission(ctx context.Context, p *abac.Permission) error {
	if existing, err := s.GetPermissionByCode(ctx, p.Code); err == nil && existing != nil {
		return fmt.Errorf("permission %s: %w", p.Code, abac.ErrAlreadyExists)
	}
	q := `INSERT INTO permissions(code, category, action, resource_type,
		allowed_fields_json, restricted_fields_json, is_active, is_system, created_at)
		VALUES(:code, :category, :action, :resource_type,
		:allowed_fields_json, :restricted_fields_json, :is_active, :is_system, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"code":                   p.Code,
		"category":               p.Category,
		"action":                 p.Action,
		"resource_type":          p.ResourceType,
		"allowed_fields_json":    marshalJSON(p.AllowedFields),
		"restricted_fields_json": marshalJSON(p.RestrictedFields),
		"is_active":              boolToInt(p.IsActive),
		"is_system":              boolToInt(p.IsSystem),
		"created_at":             p.CreatedAt,
	})
	return err
}

func (s *SQLRoleStore) GetPermissionByCode(ctx context.Context, code string) (*abac.Permission, error) {
	q := `SELECT code, category, action, resource_type, allowed_fields_json,
		restricted_fields_json, is_active, is_system, created_at
		FROM permissions WHERE code = :code`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"code": code})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("permission %s: %w", code, abac.ErrNotFound)
	}
	var (
		codeV, category, action, resourceType string
		allowedRaw, restrictedRaw, createdRaw any
		activeInt, systemInt                  int
	)
	if err := r.Scan(&codeV, &category, &action, &resourceType,
		&allowedRaw, &restrictedRaw, &activeInt, &systemInt, &createdRaw); err != nil {
		return nil, err
	}
	return &abac.Permission{
		Code:             codeV,
		Category:         category,
		Action:           action,
		ResourceType:     resourceType,
		AllowedFields:    unmarshalStrings(allowedRaw),
		RestrictedFields: unmarshalStrings(restrictedRaw),
		IsActive:         activeInt != 0,
		IsSystem:         systemInt != 0,
		CreatedAt:        scanTime(createdRaw),
	}, nil
}

func (s *SQLRoleStore) CreateRole(ctx context.Context, role *abac.Role) error {
	q := `INSERT INTO roles(id, tenant_id, name, hierarchy_level, is_system, is_default, created_at)
		VALUES(:id, :tenant_id, :name, :hierarchy_level, :is_system, :is_default, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":              role.ID,
		"tenant_id":       nullableTenant(role.TenantID),
		"name":            role.Name,
		"hierarchy_level": role.HierarchyLevel,
		"is_system":       boolToInt(role.IsSystem),
		"is_default":      boolToInt(role.IsDefault),
		"created_at":      role.CreatedAt,
	})
	return err
}

func (s *SQLRoleStore) GetRole(ctx context.Context, id string) (*abac.Role, error) {
	q := `SELECT id, tenant_id, name, hierarchy_level, is_system, is_default, created_at
		FROM roles WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("role %s: %w", id, abac.ErrNotFound)
	}
	var (
		idV, name                        string
		tenantRaw, createdRaw            any
		hierarchyLevel                   int
		systemInt, defaultInt            int
	)
	if err := r.Scan(&idV, &tenantRaw, &name, &hierarchyLevel, &systemInt, &defaultInt, &createdRaw); err != nil {
		return nil, err
	}
	return &abac.Role{
		ID:             idV,
		TenantID:       scanTenant(tenantRaw),
		Name:           name,
		HierarchyLevel: hierarchyLevel,
		IsSystem:       systemInt != 0,
		IsDefault:      defaultInt != 0,
		CreatedAt:      scanTime(createdRaw),
	}, nil
}

func (s *SQLRoleStore) AddRolePermission(ctx context.Context, link *abac.RolePermission) error {
	q := `INSERT OR REPLACE INTO role_permissions(role_id, permission_code, conditions_json)
		VALUES(:role_id, :permission_code, :conditions_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"role_id":         link.RoleID,
		"permission_code": link.PermissionCode,
		"conditions_json": marshalJSON(link.Conditions),
	})
	return err
}

func (s *SQLRoleStore) RolePermissionCodes(ctx context.Context, roleID string) ([]string, error) {
	q := `SELECT rp.permission_code FROM role_permissions rp
		JOIN permissions p ON p.code = rp.permission_code
		WHERE rp.role_id = :role_id AND p.is_active = 1`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"role_id": roleID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]string, 0)
	for r.Next() {
		var code string
		if err := r.Scan(&code); err != nil {
			return nil, err
		}
		out = append(out, code)
	}
	return out, nil
}

func (s *SQLRoleStore) AssignUserRole(ctx context.Context, ur *abac.UserRole) error {
	q := `INSERT INTO user_roles(id, user_id, role_id, tenant_id, valid_from, valid_until, scope_json, is_active, created_at)
		VALUES(:id, :user_id, :role_id, :tenant_id, :valid_from, :valid_until, :scope_json, :is_active, :created_at)`
	var validFrom, validUntil any
	if ur.ValidFrom != nil {
		validFrom = *ur.ValidFrom
	}
	if ur.ValidUntil != nil {
		validUntil = *ur.ValidUntil
	}
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":          ur.ID,
		"user_id":     ur.UserID,
		"role_id":     ur.RoleID,
		"tenant_id":   ur.TenantID,
		"valid_from":  validFrom,
		"valid_until": validUntil,
		"scope_json":  marshalJSON(ur.Scope),
		"is_active":   boolToInt(ur.IsActive),
		"created_at":  ur.CreatedAt,
	})
	return err
}

func (s *SQLRoleStore) UserRoles(ctx context.Context, userID, tenantID string) ([]*abac.UserRole, error) {
	q := `SELECT id, user_id, role_id, tenant_id, valid_from, valid_until, scope_json, is_active, created_at
		FROM user_roles WHERE user_id = :user_id AND tenant_id = :tenant_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID, "tenant_id": tenantID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*abac.UserRole, 0)
	for r.Next() {
		var (
			id, uid, roleID, tenant                       string
			validFromRaw, validUntilRaw, scopeRaw, crRaw  any
			activeInt                                     int
		)
		if err := r.Scan(&id, &uid, &roleID, &tenant, &validFromRaw, &validUntilRaw, &scopeRaw, &activeInt, &crRaw); err != nil {
			return nil, err
		}
		out = append(out, &abac.UserRole{
			ID:         id,
			UserID:     uid,
			RoleID:     roleID,
			TenantID:   tenant,
			ValidFrom:  scanTimePtr(validFromRaw),
			ValidUntil: scanTimePtr(validUntilRaw),
			Scope:      unmarshalMap(scopeRaw),
			IsActive:   activeInt != 0,
			CreatedAt:  scanTime(crRaw),
		})
	}
	return out, nil
}
