package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/audit"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
)

// Resolver turns a verified claim set into a tenant Context or a rejection.
// It holds no per-request state and is safe for concurrent use.
type Resolver struct {
	directory Directory
	sink      audit.Sink
	logger    *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(directory Directory, sink audit.Sink, logger *zap.Logger) *Resolver {
	if directory == nil {
		panic("tenant resolver: directory is required")
	}
	if sink == nil {
		panic("tenant resolver: audit sink is required")
	}
	if logger == nil {
		panic("tenant resolver: logger is required")
	}
	return &Resolver{directory: directory, sink: sink, logger: logger}
}

// Resolve validates claims against the optional explicit tenant header and the
// directory. The claim is authoritative; the header only cross-checks it.
// A *RejectionError is returned for validation failures; any other error is a
// directory failure and must not be reported as a rejection.
func (r *Resolver) Resolve(ctx context.Context, claims Claims, explicitTenant string) (Context, error) {
	var lc lifecycle
	if err := lc.advance(StateResolving); err != nil {
		return Context{}, err
	}

	tc, err := r.resolve(ctx, claims, explicitTenant)
	if err != nil {
		if advErr := lc.advance(StateRejected); advErr != nil {
			return Context{}, advErr
		}
		return Context{}, err
	}

	if err := lc.advance(StateResolved); err != nil {
		return Context{}, err
	}
	return tc, nil
}

func (r *Resolver) resolve(ctx context.Context, claims Claims, explicitTenant string) (Context, error) {
	logger := r.loggerFrom(ctx)

	if claims.TenantID == uuid.Nil || claims.SubjectID == "" {
		return r.rejected(ctx, claims, reject(ReasonTenantClaimMissing, "verified claims carry no tenant"), uuid.Nil)
	}

	if raw := explicitTenant; raw != "" {
		headerID, ok := parseHeader(raw)
		switch {
		case !ok:
			logger.Warn("ignoring unparseable tenant header", zap.String("header", HeaderTenantID))
		case headerID != claims.TenantID:
			return r.rejected(ctx, claims, reject(ReasonTenantMismatch, "header %s != claim %s", headerID, claims.TenantID), headerID)
		}
	}

	t, err := r.directory.Tenant(ctx, claims.TenantID)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return r.rejected(ctx, claims, reject(ReasonTenantInactive, "tenant %s not found", claims.TenantID), uuid.Nil)
		}
		return Context{}, fmt.Errorf("lookup tenant: %w", err)
	}
	if t.Status != StatusActive {
		return r.rejected(ctx, claims, reject(ReasonTenantInactive, "tenant %s is %s", t.ID, t.Status), uuid.Nil)
	}

	m, err := r.directory.Membership(ctx, claims.SubjectID, claims.TenantID)
	if err != nil {
		if errors.Is(err, ErrNoMembership) {
			return r.rejected(ctx, claims, reject(ReasonMembershipNotFound, "principal has no active membership in %s", claims.TenantID), uuid.Nil)
		}
		return Context{}, fmt.Errorf("lookup membership: %w", err)
	}

	return NewContext(t.ID, t.Name, claims.SubjectID, m.Role)
}

// rejected logs the rejection and, for attack signals, emits an audit event.
// attemptedFromHeader is the header tenant for mismatches, uuid.Nil otherwise.
func (r *Resolver) rejected(ctx context.Context, claims Claims, rej *RejectionError, attemptedFromHeader uuid.UUID) (Context, error) {
	logger := r.loggerFrom(ctx).With(
		zap.String("rejection_reason", string(rej.Reason)),
		zap.String("principal_id", claims.SubjectID),
	)

	if !rej.Reason.Audited() {
		logger.Info("tenant resolution failed", zap.String("detail", rej.Detail))
		return Context{}, rej
	}

	logger.Warn("tenant resolution rejected", zap.String("detail", rej.Detail))

	event := audit.Event{PrincipalID: claims.SubjectID}
	switch rej.Reason {
	case ReasonTenantMismatch:
		event.Reason = audit.ReasonTenantMismatch
		event.ResourceType = audit.ResourceTenant
		event.ResourceID = attemptedFromHeader.String()
		event.AttemptedTenantID = attemptedFromHeader
		event.ActualTenantID = claims.TenantID
	case ReasonMembershipNotFound:
		event.Reason = audit.ReasonMembershipNotFound
		event.ResourceType = audit.ResourceMembership
		event.ResourceID = claims.TenantID.String()
		event.AttemptedTenantID = claims.TenantID
	}

	if err := r.sink.Record(ctx, audit.Stamp(ctx, event)); err != nil {
		logger.Error("record cross-tenant access event", zap.Error(err))
	}

	return Context{}, rej
}

func (r *Resolver) loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := platformlogging.FromContext(ctx); ok {
		return logger
	}
	return r.logger
}
