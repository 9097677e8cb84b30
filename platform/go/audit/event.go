package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/requesttrace"
)

// Reason classifies why a cross-tenant access event was emitted.
type Reason string

const (
	ReasonTenantMismatch     Reason = "tenant_mismatch"
	ReasonMembershipNotFound Reason = "membership_not_found"
	ReasonOwnershipViolation Reason = "ownership_violation"
)

// Resource types recorded on events raised by the resolver itself.
const (
	ResourceTenant     = "tenant"
	ResourceMembership = "membership"
)

// Event is an append-only record of an attempt to cross a tenant boundary.
// ActualTenantID is uuid.Nil when the caller has no legitimate tenant for the attempt.
type Event struct {
	PrincipalID       string    `json:"principalId"`
	AttemptedTenantID uuid.UUID `json:"attemptedTenantId"`
	ActualTenantID    uuid.UUID `json:"actualTenantId"`
	ResourceType      string    `json:"resourceType"`
	ResourceID        string    `json:"resourceId"`
	Reason            Reason    `json:"reason"`
	RequestID         string    `json:"requestId,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Stamp fills the request id from the request trace and the timestamp when unset.
func Stamp(ctx context.Context, event Event) Event {
	if event.RequestID == "" {
		if info, ok := requesttrace.FromContext(ctx); ok {
			event.RequestID = info.RequestID
		}
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	return event
}

// Sink receives cross-tenant access events.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, event Event) error

func (f SinkFunc) Record(ctx context.Context, event Event) error { return f(ctx, event) }

// Multi fans an event out to every sink. All sinks are attempted; failures are joined.
func Multi(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return multiSink(filtered)
}

type multiSink []Sink

func (m multiSink) Record(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps events in memory. Safe for concurrent use.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func (m *MemorySink) Record(_ context.Context, event Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (m *MemorySink) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}
