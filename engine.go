package abac

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/complyon/abac/logger"
)

// CheckRequest carries everything the engine needs to decide one access check.
// Subject must at minimum resolve an identity under "id", but the engine does
// not validate it; absent attributes simply fail to match conditions that
// reference them. Resource and Environment default to empty maps.
type CheckRequest struct {
	TenantID     string
	Subject      map[string]any
	ResourceType string
	Action       string
	Resource     map[string]any
	Environment  map[string]any
	IP           string
	RequestID    string
}

// Decision is the outcome of one check. Policy is nil on default-deny.
// Obligations are surfaced from the matched policy as hints; the engine never
// enforces them. Trace is populated only by Explain.
type Decision struct {
	Allowed     bool
	Policy      *ABACPolicy
	Obligations []string
	Trace       []string
	Timestamp   time.Time
}

// Engine evaluates prioritized multi-tenant ABAC policies with field-level
// masking and an append-only audit trail. All collaborators are injected at
// construction; the engine holds no ambient state.
type Engine struct {
	policies PolicyStore
	roles    RoleStore
	audit    AuditSink
	log      logger.Logger

	candidates *policyCache
	roleCodes  *roleCache
	decisions  *decisionCache
	bus        InvalidationBus

	now func() time.Time
}

// EngineOption configures an Engine at construction.
type EngineOption func(*Engine) error

// WithLogger replaces the default oarkflow/log backed logger.
func WithLogger(l logger.Logger) EngineOption {
	return func(e *Engine) error {
		if l == nil {
			return fmt.Errorf("logger must not be nil")
		}
		e.log = l
		return nil
	}
}

// WithClock overrides the time source used for role validity windows and
// audit timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		e.now = now
		return nil
	}
}

// WithDecisionCache enables the TTL'd ristretto decision cache. A cached
// decision still writes its audit row; only candidate fetch and condition
// evaluation are skipped.
func WithDecisionCache(cfg DecisionCacheConfig) EngineOption {
	return func(e *Engine) error {
		dc, err := newDecisionCache(cfg)
		if err != nil {
			return fmt.Errorf("decision cache: %w", err)
		}
		e.decisions = dc
		return nil
	}
}

// WithInvalidationBus wires cross-instance cache invalidation. The engine
// publishes on every policy/role mutation and applies received events to its
// local caches.
func WithInvalidationBus(bus InvalidationBus) EngineOption {
	return func(e *Engine) error {
		e.bus = bus
		return nil
	}
}

// NewEngine builds an engine around the given stores and audit sink.
func NewEngine(policies PolicyStore, roles RoleStore, audit AuditSink, opts ...EngineOption) (*Engine, error) {
	if policies == nil || roles == nil || audit == nil {
		return nil, fmt.Errorf("policy store, role store and audit sink are required")
	}
	e := &Engine{
		policies:   policies,
		roles:      roles,
		audit:      audit,
		log:        logger.NewOarkLogger(),
		candidates: newPolicyCache(),
		roleCodes:  newRoleCache(),
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	if e.bus != nil {
		if err := e.bus.Subscribe(context.Background(), e.applyInvalidation); err != nil {
			return nil, fmt.Errorf("subscribe invalidation bus: %w", err)
		}
	}
	return e, nil
}

// CheckPermission answers "can subject perform action on resource type under
// environment" for the tenant. Candidates are evaluated in priority order with
// deny before allow at equal priority; no match is a default deny. Exactly one
// audit record is written synchronously before returning; an audit failure
// fails the check.
func (e *Engine) CheckPermission(ctx context.Context, req CheckRequest) (*Decision, error) {
	return e.check(ctx, req, false)
}

// Explain runs the same evaluation as CheckPermission with a per-candidate
// trace attached. The trace never changes the decision, and the call is
// audited like any other.
func (e *Engine) Explain(ctx context.Context, req CheckRequest) (*Decision, error) {
	return e.check(ctx, req, true)
}

// BatchCheck evaluates requests sequentially, stopping at the first error.
// Each request is individually audited.
func (e *Engine) BatchCheck(ctx context.Context, reqs []CheckRequest) ([]*Decision, error) {
	out := make([]*Decision, len(reqs))
	for i, req := range reqs {
		d, err := e.CheckPermission(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("batch check %d: %w", i, err)
		}
		out[i] = d
	}
	return out, nil
}

func (e *Engine) check(ctx context.Context, req CheckRequest, trace bool) (*Decision, error) {
	if req.Subject == nil {
		req.Subject = map[string]any{}
	}
	if req.Resource == nil {
		req.Resource = map[string]any{}
	}
	if req.Environment == nil {
		req.Environment = map[string]any{}
	}

	if e.decisions != nil && !trace {
		if d, ok := e.decisions.get(&req); ok {
			if err := e.recordAudit(ctx, &req, d); err != nil {
				return nil, err
			}
			return d, nil
		}
	}

	cands, err := e.candidatePolicies(ctx, req.TenantID, req.ResourceType, req.Action)
	if err != nil {
		return nil, fmt.Errorf("fetch candidate policies: %w", err)
	}

	d := &Decision{Timestamp: e.now()}
	if trace {
		d.Trace = append(d.Trace, fmt.Sprintf("candidates for %s:%s:%s: %d",
			req.TenantID, req.ResourceType, req.Action, len(cands)))
	}
	for _, cp := range cands {
		matched, why := matchCandidate(cp, &req)
		if trace {
			d.Trace = append(d.Trace, fmt.Sprintf("policy %s (priority=%d effect=%s): %s",
				cp.policy.ID, cp.policy.Priority, cp.policy.Effect, why))
		}
		if !matched {
			continue
		}
		d.Allowed = cp.policy.Effect == EffectAllow
		d.Policy = cp.policy
		d.Obligations = cp.policy.Obligations
		break
	}
	if d.Policy == nil && trace {
		d.Trace = append(d.Trace, "no policy matched: default deny")
	}

	if e.decisions != nil && !trace {
		e.decisions.set(&req, d)
	}
	if err := e.recordAudit(ctx, &req, d); err != nil {
		return nil, err
	}

	e.log.Debug("permission decision",
		"tenant", req.TenantID,
		"user", attrString(req.Subject, "id"),
		"resource_type", req.ResourceType,
		"action", req.Action,
		"allowed", d.Allowed,
		"policy", policyID(d.Policy),
	)
	if len(d.Obligations) > 0 {
		e.log.Info("policy obligations",
			"policy", policyID(d.Policy),
			"obligations", d.Obligations,
		)
	}
	return d, nil
}

func matchCandidate(cp *compiledPolicy, req *CheckRequest) (bool, string) {
	if !EvalConditions(cp.subject, req.Subject, nil) {
		return false, "subject conditions not met"
	}
	if !EvalConditions(cp.resource, req.Resource, req.Subject) {
		return false, "resource conditions not met"
	}
	if !EvalConditions(cp.environment, req.Environment, req.Subject) {
		return false, "environment conditions not met"
	}
	return true, "matched"
}

// candidatePolicies returns the sorted, compiled candidate list for the key,
// memoized until explicit invalidation.
func (e *Engine) candidatePolicies(ctx context.Context, tenantID, resourceType, action string) ([]*compiledPolicy, error) {
	key := policyCacheKey(tenantID, resourceType, action)
	if cached, ok := e.candidates.get(key); ok {
		return cached, nil
	}
	raw, err := e.policies.CandidatePolicies(ctx, tenantID, resourceType, action)
	if err != nil {
		return nil, err
	}
	compiled := make([]*compiledPolicy, 0, len(raw))
	for _, p := range raw {
		cp, err := compilePolicy(p)
		if err != nil {
			// Write-time validation should make this unreachable; a policy
			// that cannot be decoded can never grant access.
			e.log.Error("skipping undecodable policy", "policy", p.ID, "error", err.Error())
			continue
		}
		compiled = append(compiled, cp)
	}
	sortCandidates(compiled)
	e.candidates.set(key, compiled)
	return compiled, nil
}

func compilePolicy(p *ABACPolicy) (*compiledPolicy, error) {
	subject, err := DecodeConditions(p.SubjectConditions)
	if err != nil {
		return nil, fmt.Errorf("subject conditions: %w", err)
	}
	resource, err := DecodeConditions(p.ResourceConditions)
	if err != nil {
		return nil, fmt.Errorf("resource conditions: %w", err)
	}
	environment, err := DecodeConditions(p.EnvironmentConditions)
	if err != nil {
		return nil, fmt.Errorf("environment conditions: %w", err)
	}
	return &compiledPolicy{policy: p, subject: subject, resource: resource, environment: environment}, nil
}

// sortCandidates orders by priority descending, then deny before allow, then
// id. The id tie-break makes evaluation order fully reproducible.
func sortCandidates(cands []*compiledPolicy) {
	sort.SliceStable(cands, func(i, j int) bool {
		a, b := cands[i].policy, cands[j].policy
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Effect != b.Effect {
			return a.Effect == EffectDeny
		}
		return a.ID < b.ID
	})
}

// recordAudit writes exactly one decision record. The caller must not see a
// decision that was not recorded, so the error propagates and the check fails.
func (e *Engine) recordAudit(ctx context.Context, req *CheckRequest, d *Decision) error {
	entry := &PermissionAudit{
		ID:           uuid.NewString(),
		TenantID:     req.TenantID,
		UserID:       attrString(req.Subject, "id"),
		ResourceType: req.ResourceType,
		ResourceID:   attrString(req.Resource, "id"),
		Action:       req.Action,
		Decision:     DecisionDeny,
		Subject:      cloneAttrs(req.Subject),
		Resource:     cloneAttrs(req.Resource),
		Environment:  cloneAttrs(req.Environment),
		IP:           req.IP,
		RequestID:    req.RequestID,
		CreatedAt:    e.now(),
	}
	if d.Allowed {
		entry.Decision = DecisionAllow
	}
	if d.Policy != nil {
		id := d.Policy.ID
		entry.MatchedPolicyID = &id
	}
	if err := e.audit.Record(ctx, entry); err != nil {
		e.log.Error("audit write failed",
			"tenant", req.TenantID,
			"user", entry.UserID,
			"resource_type", req.ResourceType,
			"action", req.Action,
			"error", err.Error(),
		)
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// CheckPermissionSimple is the cheap RBAC path: it unions the permission-code
// sets of the user's current roles and checks "{resource_type}.{action}" or
// "{resource_type}.*" membership. No audit record is written; this is a coarse
// gate, not a compliance-relevant decision.
func (e *Engine) CheckPermissionSimple(ctx context.Context, userID, resourceType, action, tenantID string) (bool, error) {
	assignments, err := e.roles.UserRoles(ctx, userID, tenantID)
	if err != nil {
		return false, fmt.Errorf("fetch user roles: %w", err)
	}
	now := e.now()
	exact := resourceType + "." + action
	wildcard := resourceType + ".*"
	for _, ur := range assignments {
		if !ur.CurrentAt(now) {
			continue
		}
		codes, ok := e.roleCodes.get(ur.RoleID)
		if !ok {
			list, err := e.roles.RolePermissionCodes(ctx, ur.RoleID)
			if err != nil {
				return false, fmt.Errorf("fetch role permissions: %w", err)
			}
			codes = e.roleCodes.set(ur.RoleID, list)
		}
		if _, ok := codes[exact]; ok {
			return true, nil
		}
		if _, ok := codes[wildcard]; ok {
			return true, nil
		}
	}
	return false, nil
}

// InvalidatePolicyCache drops memoized candidate lists matching the resource
// type and action (empty strings match everything) and clears the decision
// cache. Mutation paths call this automatically.
func (e *Engine) InvalidatePolicyCache(resourceType, action string) {
	e.candidates.invalidate(resourceType, action)
	if e.decisions != nil {
		e.decisions.clear()
	}
}

// InvalidateRoleCache drops one role's memoized permission-code set, or every
// set when roleID is empty.
func (e *Engine) InvalidateRoleCache(roleID string) {
	e.roleCodes.drop(roleID)
}

func (e *Engine) applyInvalidation(ev InvalidationEvent) {
	switch ev.Kind {
	case InvalidatePolicies:
		e.InvalidatePolicyCache(ev.ResourceType, ev.Action)
	case InvalidateRole:
		e.InvalidateRoleCache(ev.RoleID)
	}
}

// publishInvalidation broadcasts best-effort; local caches are already
// invalidated by the time this runs.
func (e *Engine) publishInvalidation(ctx context.Context, ev InvalidationEvent) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, ev); err != nil {
		e.log.Warn("invalidation publish failed", "kind", ev.Kind, "error", err.Error())
	}
}

// attrString reads a map attribute as a string, "" when absent.
func attrString(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	return stringify(v)
}

func cloneAttrs(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func policyID(p *ABACPolicy) string {
	if p == nil {
		return ""
	}
	return p.ID
}
