package abac

import (
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
)

// compiledPolicy pairs a policy with its decoded condition maps so candidates
// cached per (tenant, resource_type, action) never re-decode on the hot path.
type compiledPolicy struct {
	policy      *ABACPolicy
	subject     map[string]Constraint
	resource    map[string]Constraint
	environment map[string]Constraint
}

// policyCache memoizes sorted candidate lists keyed "{tenant}:{rt}:{action}".
// Process-local with no TTL; staleness is bounded by explicit invalidation.
type policyCache struct {
	mu      sync.RWMutex
	entries map[string][]*compiledPolicy
}

func newPolicyCache() *policyCache {
	return &policyCache{entries: make(map[string][]*compiledPolicy)}
}

func policyCacheKey(tenantID, resourceType, action string) string {
	return tenantID + ":" + resourceType + ":" + action
}

func (c *policyCache) get(key string) ([]*compiledPolicy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

func (c *policyCache) set(key string, v []*compiledPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = v
}

// invalidate drops entries matching the given resource type and action; empty
// arguments match everything. A wildcard policy affects every cached key, so
// mutating one clears the whole table.
func (c *policyCache) invalidate(resourceType, action string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if resourceType == Wildcard || action == Wildcard {
		c.entries = make(map[string][]*compiledPolicy)
		return
	}
	for key := range c.entries {
		parts := strings.SplitN(key, ":", 3)
		if len(parts) != 3 {
			delete(c.entries, key)
			continue
		}
		if resourceType != "" && parts[1] != resourceType {
			continue
		}
		if action != "" && parts[2] != action {
			continue
		}
		delete(c.entries, key)
	}
}

// roleCache memoizes permission-code sets per role id.
type roleCache struct {
	mu      sync.RWMutex
	entries map[string]map[string]struct{}
}

func newRoleCache() *roleCache {
	return &roleCache{entries: make(map[string]map[string]struct{})}
}

func (c *roleCache) get(roleID string) (map[string]struct{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[roleID]
	return v, ok
}

func (c *roleCache) set(roleID string, codes []string) map[string]struct{} {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		set[code] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[roleID] = set
	return set
}

func (c *roleCache) drop(roleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if roleID == "" {
		c.entries = make(map[string]map[string]struct{})
		return
	}
	delete(c.entries, roleID)
}

// DecisionCacheConfig sizes the optional ristretto-backed decision cache.
type DecisionCacheConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	TTL         time.Duration
}

// decisionCache memoizes full decisions for a short TTL. Serving from it skips
// candidate fetch and condition evaluation but never the audit write. Keys
// cover (tenant, subject id, resource type, resource id, action); a decision
// sensitive to attributes outside the key can be stale for at most one TTL.
type decisionCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func newDecisionCache(cfg DecisionCacheConfig) (*decisionCache, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 1e5
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 1 << 24
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Second
	}
	rc, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &decisionCache{cache: rc, ttl: cfg.TTL}, nil
}

func decisionCacheKey(req *CheckRequest) string {
	return req.TenantID + "|" + attrString(req.Subject, "id") + "|" +
		req.ResourceType + "|" + attrString(req.Resource, "id") + "|" + req.Action
}

func (c *decisionCache) get(req *CheckRequest) (*Decision, bool) {
	v, ok := c.cache.Get(decisionCacheKey(req))
	if !ok {
		return nil, false
	}
	d, ok := v.(*Decision)
	return d, ok
}

func (c *decisionCache) set(req *CheckRequest, d *Decision) {
	c.cache.SetWithTTL(decisionCacheKey(req), d, 1, c.ttl)
}

func (c *decisionCache) clear() {
	c.cache.Clear()
}
