package persistence

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/audit"
)

// AuditStore persists cross-tenant access events. The table rejects updates
// and deletes at the rule level, so the store only ever inserts and reads.
type AuditStore struct {
	db      *TenantDB
	builder sq.StatementBuilderType
}

// NewAuditStore constructs an AuditStore.
func NewAuditStore(db *TenantDB) (*AuditStore, error) {
	if db == nil {
		return nil, fmt.Errorf("tenant db is required")
	}
	return &AuditStore{db: db, builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}, nil
}

// Record implements audit.Sink.
func (s *AuditStore) Record(ctx context.Context, event audit.Event) error {
	var actual *uuid.UUID
	if event.ActualTenantID != uuid.Nil {
		actual = &event.ActualTenantID
	}
	var requestID *string
	if event.RequestID != "" {
		requestID = &event.RequestID
	}

	err := s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO cross_tenant_access_events
			   (principal_id, attempted_tenant_id, actual_tenant_id, resource_type, resource_id, reason, request_id, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			event.PrincipalID, event.AttemptedTenantID, actual, event.ResourceType, event.ResourceID,
			string(event.Reason), requestID, event.Timestamp)
		return err
	})
	if err != nil {
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}

// AuditQuery narrows List.
type AuditQuery struct {
	AttemptedTenantID *uuid.UUID
	Limit             int
}

// List returns the most recent events first.
func (s *AuditStore) List(ctx context.Context, q AuditQuery) ([]audit.Event, error) {
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := s.builder.
		Select("principal_id", "attempted_tenant_id", "actual_tenant_id", "resource_type", "resource_id", "reason", "request_id", "occurred_at").
		From("cross_tenant_access_events").
		OrderBy("occurred_at DESC", "id DESC").
		Limit(uint64(limit))
	if q.AttemptedTenantID != nil {
		query = query.Where(sq.Expr("attempted_tenant_id = ?", *q.AttemptedTenantID))
	}
	sql, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit events: %w", err)
	}

	var out []audit.Event
	err = s.db.WithAdmin(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e         audit.Event
				actual    *uuid.UUID
				reason    string
				requestID *string
			)
			if err := rows.Scan(&e.PrincipalID, &e.AttemptedTenantID, &actual, &e.ResourceType, &e.ResourceID,
				&reason, &requestID, &e.Timestamp); err != nil {
				return err
			}
			if actual != nil {
				e.ActualTenantID = *actual
			}
			if requestID != nil {
				e.RequestID = *requestID
			}
			e.Reason = audit.Reason(reason)
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return out, nil
}

var _ audit.Sink = (*AuditStore)(nil)
