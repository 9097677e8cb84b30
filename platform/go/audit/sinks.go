package audit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// LogSink writes events to a zap logger at warn level.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink constructs a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		panic("audit log sink: logger is required")
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, event Event) error {
	s.logger.Warn("cross-tenant access attempt",
		zap.String("audit_reason", string(event.Reason)),
		zap.String("principal_id", event.PrincipalID),
		zap.String("attempted_tenant_id", event.AttemptedTenantID.String()),
		zap.String("actual_tenant_id", event.ActualTenantID.String()),
		zap.String("resource_type", event.ResourceType),
		zap.String("resource_id", event.ResourceID),
		zap.String("request_id", event.RequestID),
		zap.Time("occurred_at", event.Timestamp),
	)
	return nil
}

// InstrumentedSink counts events by resource type and reason before delegating.
type InstrumentedSink struct {
	next   Sink
	events *prometheus.CounterVec
}

// NewInstrumentedSink registers palmyra_cross_tenant_access_events_total on reg.
func NewInstrumentedSink(next Sink, reg prometheus.Registerer) (*InstrumentedSink, error) {
	if next == nil {
		panic("audit instrumented sink: next sink is required")
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "palmyra",
		Name:      "cross_tenant_access_events_total",
		Help:      "Cross-tenant access attempts detected, by resource type and reason.",
	}, []string{"resource_type", "reason"})
	if reg != nil {
		if err := reg.Register(events); err != nil {
			return nil, err
		}
	}
	return &InstrumentedSink{next: next, events: events}, nil
}

func (s *InstrumentedSink) Record(ctx context.Context, event Event) error {
	s.events.WithLabelValues(event.ResourceType, string(event.Reason)).Inc()
	return s.next.Record(ctx, event)
}
