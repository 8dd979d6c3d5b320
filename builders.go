package abac

// Fluent builders for policies, roles and field rules, used by seeding code
// and tests.

// PolicyBuilder builds an ABACPolicy.
type PolicyBuilder struct {
	p *ABACPolicy
}

func NewPolicyBuilder() *PolicyBuilder {
	return &PolicyBuilder{p: &ABACPolicy{Effect: EffectAllow, IsActive: true}}
}

func (b *PolicyBuilder) ID(id string) *PolicyBuilder     { b.p.ID = id; return b }
func (b *PolicyBuilder) Name(name string) *PolicyBuilder { b.p.Name = name; return b }
func (b *PolicyBuilder) Tenant(t string) *PolicyBuilder  { b.p.TenantID = &t; return b }
func (b *PolicyBuilder) Global() *PolicyBuilder          { b.p.TenantID = nil; return b }
func (b *PolicyBuilder) Resource(rt string) *PolicyBuilder {
	b.p.ResourceType = rt
	return b
}
func (b *PolicyBuilder) Action(a string) *PolicyBuilder  { b.p.Action = a; return b }
func (b *PolicyBuilder) Effect(e Effect) *PolicyBuilder  { b.p.Effect = e; return b }
func (b *PolicyBuilder) Allow() *PolicyBuilder           { b.p.Effect = EffectAllow; return b }
func (b *PolicyBuilder) Deny() *PolicyBuilder            { b.p.Effect = EffectDeny; return b }
func (b *PolicyBuilder) Priority(n int) *PolicyBuilder   { b.p.Priority = n; return b }
func (b *PolicyBuilder) Active(on bool) *PolicyBuilder   { b.p.IsActive = on; return b }
func (b *PolicyBuilder) SubjectCondition(key string, constraint any) *PolicyBuilder {
	if b.p.SubjectConditions == nil {
		b.p.SubjectConditions = map[string]any{}
	}
	b.p.SubjectConditions[key] = constraint
	return b
}
func (b *PolicyBuilder) ResourceCondition(key string, constraint any) *PolicyBuilder {
	if b.p.ResourceConditions == nil {
		b.p.ResourceConditions = map[string]any{}
	}
	b.p.ResourceConditions[key] = constraint
	return b
}
func (b *PolicyBuilder) EnvironmentCondition(key string, constraint any) *PolicyBuilder {
	if b.p.EnvironmentConditions == nil {
		b.p.EnvironmentConditions = map[string]any{}
	}
	b.p.EnvironmentConditions[key] = constraint
	return b
}
func (b *PolicyBuilder) Obligations(o ...string) *PolicyBuilder {
	b.p.Obligations = append(b.p.Obligations, o...)
	return b
}
func (b *PolicyBuilder) AllowedFields(f ...string) *PolicyBuilder {
	b.p.AllowedFields = append(b.p.AllowedFields, f...)
	return b
}
func (b *PolicyBuilder) DeniedFields(f ...string) *PolicyBuilder {
	b.p.DeniedFields = append(b.p.DeniedFields, f...)
	return b
}
func (b *PolicyBuilder) Build() *ABACPolicy { return b.p }

// RoleBuilder builds a Role.
type RoleBuilder struct {
	r *Role
}

func NewRoleBuilder() *RoleBuilder {
	return &RoleBuilder{r: &Role{}}
}

func (b *RoleBuilder) ID(id string) *RoleBuilder       { b.r.ID = id; return b }
func (b *RoleBuilder) Name(name string) *RoleBuilder   { b.r.Name = name; return b }
func (b *RoleBuilder) Tenant(t string) *RoleBuilder    { b.r.TenantID = &t; return b }
func (b *RoleBuilder) Level(n int) *RoleBuilder        { b.r.HierarchyLevel = n; return b }
func (b *RoleBuilder) System(on bool) *RoleBuilder     { b.r.IsSystem = on; return b }
func (b *RoleBuilder) Default(on bool) *RoleBuilder    { b.r.IsDefault = on; return b }
func (b *RoleBuilder) Build() *Role                    { return b.r }

// FieldRuleBuilder builds a FieldLevelPermission.
type FieldRuleBuilder struct {
	f *FieldLevelPermission
}

func NewFieldRuleBuilder() *FieldRuleBuilder {
	return &FieldRuleBuilder{f: &FieldLevelPermission{IsActive: true}}
}

func (b *FieldRuleBuilder) ID(id string) *FieldRuleBuilder      { b.f.ID = id; return b }
func (b *FieldRuleBuilder) Tenant(t string) *FieldRuleBuilder   { b.f.TenantID = &t; return b }
func (b *FieldRuleBuilder) Resource(rt string) *FieldRuleBuilder {
	b.f.ResourceType = rt
	return b
}
func (b *FieldRuleBuilder) Field(name string) *FieldRuleBuilder { b.f.FieldName = name; return b }
func (b *FieldRuleBuilder) Access(level string) *FieldRuleBuilder {
	b.f.AccessLevel = level
	return b
}
func (b *FieldRuleBuilder) Roles(codes ...string) *FieldRuleBuilder {
	b.f.RoleCodes = append(b.f.RoleCodes, codes...)
	return b
}
func (b *FieldRuleBuilder) UserAttribute(key string, constraint any) *FieldRuleBuilder {
	if b.f.UserAttributes == nil {
		b.f.UserAttributes = map[string]any{}
	}
	b.f.UserAttributes[key] = constraint
	return b
}
func (b *FieldRuleBuilder) Mask(maskType, pattern string) *FieldRuleBuilder {
	b.f.AccessLevel = AccessMask
	b.f.MaskType = maskType
	b.f.MaskPattern = pattern
	return b
}
func (b *FieldRuleBuilder) Build() *FieldLevelPermission { return b.f }
