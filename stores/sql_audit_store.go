package stores

import (
	"context"

	"github.com/oarkflow/squealx"

	"github.com/complyon/abac"
)

// SQLAuditSink appends decision records to the permission_audit table. Rows
// are never updated or deleted here; retention is an external concern.
type SQLAuditSink struct {
	db *squealx.DB
}

func NewSQLAuditSink(db *squealx.DB) *SQLAuditSink {
	return &SQLAuditSink{db: db}
}

func (s *SQLAuditSink) Record(ctx context.Context, entry *abac.PermissionAudit) error {
	q := `INSERT INTO permission_audit(id, tenant_id, user_id, resource_type, resource_id,
		action, decision, matched_policy_id, subject_json, resource_json, environment_json,
		ip, request_id, created_at)
		VALUES(:id, :tenant_id, :user_id, :resource_type, :resource_id,
		:action, :decision, :matched_policy_id, :subject_json, :resource_json, :environment_json,
		:ip, :request_id, :created_at)`
	var matched any
	if entry.MatchedPolicyID != nil {
		matched = *entry.MatchedPolicyID
	}
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":                entry.ID,
		"tenant_id":         entry.TenantID,
		"user_id":           entry.UserID,
		"resource_type":     entry.ResourceType,
		"resource_id":       entry.ResourceID,
		"action":            entry.Action,
		"decision":          entry.Decision,
		"matched_policy_id": matched,
		"subject_json":      marshalJSON(entry.Subject),
		"resource_json":     marshalJSON(entry.Resource),
		"environment_json":  marshalJSON(entry.Environment),
		"ip":                entry.IP,
		"request_id":        entry.RequestID,
		"created_at":        entry.CreatedAt,
	})
	return err
}

func (s *SQLAuditSink) Query(ctx context.Context, filter abac.AuditFilter) ([]*abac.PermissionAudit, error) {
	q := `SELECT id, tenant_id, user_id, resource_type, resource_id, action, decision,
		matched_policy_id, subject_json, resource_json, environment_json, ip, request_id, created_at
		FROM permission_audit WHERE 1=1`
	params := map[string]any{}
	if filter.TenantID != "" {
		q += " AND tenant_id = :tenant_id"
		params["tenant_id"] = filter.TenantID
	}
	if filter.UserID != "" {
		q += " AND user_id = :user_id"
		params["user_id"] = filter.UserID
	}
	if filter.Action != "" {
		q += " AND action = :action"
		params["action"] = filter.Action
	}
	if filter.Decision != "" {
		q += " AND decision = :decision"
		params["decision"] = filter.Decision
	}
	if !filter.StartTime.IsZero() {
		q += " AND created_at >= :start_time"
		params["start_time"] = filter.StartTime
	}
	if !filter.EndTime.IsZero() {
		q += " AND created_at <= :end_time"
		params["end_time"] = filter.EndTime
	}
	q += " ORDER BY created_at"
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*abac.PermissionAudit, 0)
	for r.Next() {
		var (
			id, tenant, user, resourceType, resourceID, action, decision, ip, requestID string
			matchedRaw, subjRaw, resRaw, envRaw, createdRaw                             any
		)
		if err := r.Scan(&id, &tenant, &user, &resourceType, &resourceID, &action, &decision,
			&matchedRaw, &subjRaw, &resRaw, &envRaw, &ip, &requestID, &createdRaw); err != nil {
			return nil, err
		}
		entry := &abac.PermissionAudit{
			ID:           id,
			TenantID:     tenant,
			UserID:       user,
			ResourceType: resourceType,
			ResourceID:   resourceID,
			Action:       action,
			Decision:     decision,
			Subject:      unmarshalMap(subjRaw),
			Resource:     unmarshalMap(resRaw),
			Environment:  unmarshalMap(envRaw),
			IP:           ip,
			RequestID:    requestID,
			CreatedAt:    scanTime(createdRaw),
		}
		if matched := scanString(matchedRaw); matched != "" {
			entry.MatchedPolicyID = &matched
		}
		out = append(out, entry)
	}
	return out, nil
}
