package stores

import (
	"context"
	"fmt"

	"github.com/oarkflow/squealx"

	"github.com/complyon/abac"
)

// SQLPolicyStore persists ABAC policies and field-level rules through squealx
// named queries. The schema mirrors the wire field names so policies stay
// portable between reimplementations.
type SQLPolicyStore struct {
	db *squealx.DB
}

func NewSQLPolicyStore(db *squealx.DB) *SQLPolicyStore {
	return &SQLPolicyStore{db: db}
}

const policyColumns = `id, tenant_id, name, resource_type, action, effect, priority,
	subject_conditions_json, resource_conditions_json, environment_conditions_json,
	allowed_fields_json, denied_fields_json, obligations_json, is_active, created_at, updated_at`

func (s *SQLPolicyStore) CreatePolicy(ctx context.Context, p *abac.ABACPolicy) error {
	q := `INSERT INTO abac_policies(` + policyColumns + `)
		VALUES(:id, :tenant_id, :name, :resource_type, :action, :effect, :priority,
		:subject_conditions_json, :resource_conditions_json, :environment_conditions_json,
		:allowed_fields_json, :denied_fields_json, :obligations_json, :is_active, :created_at, :updated_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":                          p.ID,
		"tenant_id":                   nullableTenant(p.TenantID),
		"name":                        p.Name,
		"resource_type":               p.ResourceType,
		"action":                      p.Action,
		"effect":                      string(p.Effect),
		"priority":                    p.Priority,
		"subject_conditions_json":     marshalJSON(p.SubjectConditions),
		"resource_conditions_json":    marshalJSON(p.ResourceConditions),
		"environment_conditions_json": marshalJSON(p.EnvironmentConditions),
		"allowed_fields_json":         marshalJSON(p.AllowedFields),
		"denied_fields_json":          marshalJSON(p.DeniedFields),
		"obligations_json":            marshalJSON(p.Obligations),
		"is_active":                   boolToInt(p.IsActive),
		"created_at":                  p.CreatedAt,
		"updated_at":                  p.UpdatedAt,
	})
	return err
}

func (s *SQLPolicyStore) GetPolicy(ctx context.Context, id string) (*abac.ABACPolicy, error) {
	q := `SELECT ` + policyColumns + ` FROM abac_policies WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, fmt.Errorf("policy %s: %w", id, abac.ErrNotFound)
	}
	return scanPolicy(r)
}

func (s *SQLPolicyStore) SetPolicyActive(ctx context.Context, id string, active bool) error {
	q := `UPDATE abac_policies SET is_active = :is_active WHERE id = :id`
	res, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id, "is_active": boolToInt(active)})
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("policy %s: %w", id, abac.ErrNotFound)
	}
	return nil
}

func (s *SQLPolicyStore) ListPolicies(ctx context.Context, tenantID string) ([]*abac.ABACPolicy, error) {
	q := `SELECT ` + policyColumns + ` FROM abac_policies
		WHERE tenant_id IS NULL OR tenant_id = :tenant_id
		ORDER BY priority DESC, id`
	return s.queryPolicies(ctx, q, map[string]any{"tenant_id": tenantID})
}

func (s *SQLPolicyStore) CandidatePolicies(ctx context.Context, tenantID, resourceType, action string) ([]*abac.ABACPolicy, error) {
	q := `SELECT ` + policyColumns + ` FROM abac_policies
		WHERE is_active = 1
		  AND (resource_type = :resource_type OR resource_type = '*')
		  AND (action = :action OR action = '*')
		  AND (tenant_id IS NULL OR tenant_id = :tenant_id)`
	return s.queryPolicies(ctx, q, map[string]any{
		"tenant_id":     tenantID,
		"resource_type": resourceType,
		"action":        action,
	})
}

func (s *SQLPolicyStore) queryPolicies(ctx context.Context, q string, args map[string]any) ([]*abac.ABACPolicy, error) {
	r, err := s.db.NamedQueryContext(ctx, q, args)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*abac.ABACPolicy, 0)
	for r.Next() {
		p, err := scanPolicy(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicy(r rowScanner) (*abac.ABACPolicy, error) {
	var (
		id, name, resourceType, action, effect          string
		tenantRaw, createdRaw, updatedRaw               any
		subjRaw, resRaw, envRaw                         any
		allowedRaw, deniedRaw, obligationsRaw           any
		priority, activeInt                             int
	)
	if err := r.Scan(&id, &tenantRaw, &name, &resourceType, &action, &effect, &priority,
		&subjRaw, &resRaw, &envRaw, &allowedRaw, &deniedRaw, &obligationsRaw,
		&activeInt, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	return &abac.ABACPolicy{
		ID:                    id,
		TenantID:              scanTenant(tenantRaw),
		Name:                  name,
		ResourceType:          resourceType,
		Action:                action,
		Effect:                abac.Effect(effect),
		Priority:              priority,
		SubjectConditions:     unmarshalMap(subjRaw),
		ResourceConditions:    unmarshalMap(resRaw),
		EnvironmentConditions: unmarshalMap(envRaw),
		AllowedFields:         unmarshalStrings(allowedRaw),
		DeniedFields:          unmarshalStrings(deniedRaw),
		Obligations:           unmarshalStrings(obligationsRaw),
		IsActive:              activeInt != 0,
		CreatedAt:             scanTime(createdRaw),
		UpdatedAt:             scanTime(updatedRaw),
	}, nil
}

func (s *SQLPolicyStore) CreateFieldPermission(ctx context.Context, f *abac.FieldLevelPermission) error {
	q := `INSERT INTO field_permissions(id, tenant_id, resource_type, field_name, access_level,
		role_codes_json, user_attributes_json, mask_type, mask_pattern, is_active)
		VALUES(:id, :tenant_id, :resource_type, :field_name, :access_level,
		:role_codes_json, :user_attributes_json, :mask_type, :mask_pattern, :is_active)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":                   f.ID,
		"tenant_id":            nullableTenant(f.TenantID),
		"resource_type":        f.ResourceType,
		"field_name":           f.FieldName,
		"access_level":         f.AccessLevel,
		"role_codes_json":      marshalJSON(f.RoleCodes),
		"user_attributes_json": marshalJSON(f.UserAttributes),
		"mask_type":            f.MaskType,
		"mask_pattern":         f.MaskPattern,
		"is_active":            boolToInt(f.IsActive),
	})
	return err
}

func (s *SQLPolicyStore) ListFieldPermissions(ctx context.Context, tenantID, resourceType string) ([]*abac.FieldLevelPermission, error) {
	q := `SELECT id, tenant_id, resource_type, field_name, access_level,
		role_codes_json, user_attributes_json, mask_type, mask_pattern, is_active
		FROM field_permissions
		WHERE is_active = 1 AND resource_type = :resource_type
		  AND (tenant_id IS NULL OR tenant_id = :tenant_id)
		ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{
		"tenant_id":     tenantID,
		"resource_type": resourceType,
	})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*abac.FieldLevelPermission, 0)
	for r.Next() {
		var (
			id, rt, fieldName, accessLevel, maskType, maskPattern string
			tenantRaw, rolesRaw, attrsRaw                         any
			activeInt                                             int
		)
		if err := r.Scan(&id, &tenantRaw, &rt, &fieldName, &accessLevel,
			&rolesRaw, &attrsRaw, &maskType, &maskPattern, &activeInt); err != nil {
			return nil, err
		}
		out = append(out, &abac.FieldLevelPermission{
			ID:             id,
			TenantID:       scanTenant(tenantRaw),
			ResourceType:   rt,
			FieldName:      fieldName,
			AccessLevel:    accessLevel,
			RoleCodes:      unmarshalStrings(rolesRaw),
			UserAttributes: unmarshalMap(attrsRaw),
			MaskType:       maskType,
			MaskPattern:    maskPattern,
			IsActive:       activeInt != 0,
		})
	}
	return out, nil
}
