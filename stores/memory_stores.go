// Package stores provides the storage implementations consumed by the
// decision engine: in-memory stores for tests and embedding, SQL stores built
// on squealx, a redis-backed cache invalidation bus and audit sink decorators.
package stores

import (
	"context"
	"fmt"
	"sync"

	"github.com/complyon/abac"
)

// MemoryPolicyStore keeps policies and field rules in mutex-guarded maps.
type MemoryPolicyStore struct {
	mu       sync.RWMutex
	policies map[string]*abac.ABACPolicy
	fields   []*abac.FieldLevelPermission
}

func NewMemoryPolicyStore() *MemoryPolicyStore {
	return &MemoryPolicyStore{policies: make(map[string]*abac.ABACPolicy)}
}

func (s *MemoryPolicyStore) CreatePolicy(_ context.Context, p *abac.ABACPolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[p.ID]; ok {
		return fmt.Errorf("policy %s: %w", p.ID, abac.ErrAlreadyExists)
	}
	s.policies[p.ID] = p
	return nil
}

func (s *MemoryPolicyStore) GetPolicy(_ context.Context, id string) (*abac.ABACPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[id]
	if !ok {
		return nil, fmt.Errorf("policy %s: %w", id, abac.ErrNotFound)
	}
	return p, nil
}

func (s *MemoryPolicyStore) SetPolicyActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.policies[id]
	if !ok {
		return fmt.Errorf("policy %s: %w", id, abac.ErrNotFound)
	}
	p.IsActive = active
	return nil
}

func (s *MemoryPolicyStore) ListPolicies(_ context.Context, tenantID string) ([]*abac.ABACPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*abac.ABACPolicy, 0)
	for _, p := range s.policies {
		if p.TenantID == nil || *p.TenantID == tenantID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *MemoryPolicyStore) CandidatePolicies(_ context.Context, tenantID, resourceType, action string) ([]*abac.ABACPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*abac.ABACPolicy, 0)
	for _, p := range s.policies {
		if !p.IsActive {
			continue
		}
		if p.ResourceType != resourceType && p.ResourceType != abac.Wildcard {
			continue
		}
		if p.Action != action && p.Action != abac.Wildcard {
			continue
		}
		if p.TenantID != nil && *p.TenantID != tenantID {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *MemoryPolicyStore) CreateFieldPermission(_ context.Context, f *abac.FieldLevelPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fields = append(s.fields, f)
	return nil
}

func (s *MemoryPolicyStore) ListFieldPermissions(_ context.Context, tenantID, resourceType string) ([]*abac.FieldLevelPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*abac.FieldLevelPermission, 0)
	for _, f := range s.fields {
		if !f.IsActive || f.ResourceType != resourceType {
			continue
		}
		if f.TenantID != nil && *f.TenantID != tenantID {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// MemoryRoleStore keeps permissions, roles and assignments in memory.
type MemoryRoleStore struct {
	mu          sync.RWMutex
	permissions map[string]*abac.Permission
	roles       map[string]*abac.Role
	links       map[string][]*abac.RolePermission
	assignments []*abac.UserRole
}

func NewMemoryRoleStore() *MemoryRoleStore {
	return &MemoryRoleStore{
		permissions: make(map[string]*abac.Permission),
		roles:       make(map[string]*abac.Role),
		links:       make(map[string][]*abac.RolePermission),
	}
}

func (s *MemoryRoleStore) CreatePermission(_ context.Context, p *abac.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.permissions[p.Code]; ok {
		return fmt.Errorf("permission %s: %w", p.Code, abac.ErrAlreadyExists)
	}
	s.permissions[p.Code] = p
	return nil
}

func (s *MemoryRoleStore) GetPermissionByCode(_ context.Context, code string) (*abac.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.permissions[code]
	if !ok {
		return nil, fmt.Errorf("permission %s: %w", code, abac.ErrNotFound)
	}
	return p, nil
}

func (s *MemoryRoleStore) CreateRole(_ context.Context, r *abac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[r.ID]; ok {
		return fmt.Errorf("role %s: %w", r.ID, abac.ErrAlreadyExists)
	}
	s.roles[r.ID] = r
	return nil
}

func (s *MemoryRoleStore) GetRole(_ context.Context, id string) (*abac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, fmt.Errorf("role %s: %w", id, abac.ErrNotFound)
	}
	return r, nil
}

func (s *MemoryRoleStore) AddRolePermission(_ context.Context, link *abac.RolePermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[link.RoleID] = append(s.links[link.RoleID], link)
	return nil
}

func (s *MemoryRoleStore) RolePermissionCodes(_ context.Context, roleID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	links := s.links[roleID]
	out := make([]string, 0, len(links))
	for _, l := range links {
		if p, ok := s.permissions[l.PermissionCode]; ok && !p.IsActive {
			continue
		}
		out = append(out, l.PermissionCode)
	}
	return out, nil
}

func (s *MemoryRoleStore) AssignUserRole(_ context.Context, ur *abac.UserRole) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assignments = append(s.assignments, ur)
	return nil
}

func (s *MemoryRoleStore) UserRoles(_ context.Context, userID, tenantID string) ([]*abac.UserRole, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*abac.UserRole, 0)
	for _, ur := range s.assignments {
		if ur.UserID == userID && ur.TenantID == tenantID {
			out = append(out, ur)
		}
	}
	return out, nil
}

// MemoryAuditSink appends decision records in memory and supports querying.
type MemoryAuditSink struct {
	mu      sync.RWMutex
	entries []*abac.PermissionAudit
}

func NewMemoryAuditSink() *MemoryAuditSink {
	return &MemoryAuditSink{}
}

func (s *MemoryAuditSink) Record(_ context.Context, entry *abac.PermissionAudit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryAuditSink) Query(_ context.Context, filter abac.AuditFilter) ([]*abac.PermissionAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*abac.PermissionAudit, 0)
	for _, e := range s.entries {
		if filter.TenantID != "" && e.TenantID != filter.TenantID {
			continue
		}
		if filter.UserID != "" && e.UserID != filter.UserID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.Decision != "" && e.Decision != filter.Decision {
			continue
		}
		if !filter.StartTime.IsZero() && e.CreatedAt.Before(filter.StartTime) {
			continue
		}
		if !filter.EndTime.IsZero() && e.CreatedAt.After(filter.EndTime) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Len reports the number of recorded entries.
func (s *MemoryAuditSink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Last returns the most recent entry, nil when empty.
func (s *MemoryAuditSink) Last() *abac.PermissionAudit {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil
	}
	return s.entries[len(s.entries)-1]
}
