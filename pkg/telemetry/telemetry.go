// Package telemetry is a thin wrapper over the global go.opentelemetry.io/otel
// tracer/meter providers plus a small set of prometheus/client_golang
// collectors.
// Exporter/SDK wiring (batching, OTLP, Prometheus scrape endpoint) is an
// HTTP-layer concern and out of scope for this module — NewMetrics only creates
// instruments against whatever provider process startup has registered with
// otel.SetTracerProvider/otel.SetMeterProvider (a no-op provider if none was
// set, per the otel API's own default).
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/atplabs/ledger"

// Metrics holds the ledger's command/event/audit instrument set.
type Metrics struct {
	CommandDuration metric.Float64Histogram
	CommandTotal    metric.Int64Counter
	CommandErrors   metric.Int64Counter

	EventsAppended    metric.Int64Counter
	EventStoreLatency metric.Float64Histogram

	AggregateLoads metric.Int64Counter
	SnapshotHits   metric.Int64Counter
	SnapshotMisses metric.Int64Counter

	AuditChainVerifications metric.Int64Counter
	AuditChainBreaks        metric.Int64Counter
}

// Tracer returns the package-wide tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// NewMetrics builds every instrument against the globally registered meter
// provider (otel.Meter), returning an error if any instrument creation
// fails rather than leaving the Metrics struct partially populated.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	if m.CommandDuration, err = meter.Float64Histogram(
		"ledger.command.duration",
		metric.WithDescription("Command execution duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating command.duration: %w", err)
	}

	if m.CommandTotal, err = meter.Int64Counter(
		"ledger.command.total",
		metric.WithDescription("Total commands executed"),
	); err != nil {
		return nil, fmt.Errorf("creating command.total: %w", err)
	}

	if m.CommandErrors, err = meter.Int64Counter(
		"ledger.command.errors",
		metric.WithDescription("Total command errors, labeled by error code"),
	); err != nil {
		return nil, fmt.Errorf("creating command.errors: %w", err)
	}

	if m.EventsAppended, err = meter.Int64Counter(
		"ledger.events.appended",
		metric.WithDescription("Total events appended to the event store"),
	); err != nil {
		return nil, fmt.Errorf("creating events.appended: %w", err)
	}

	if m.EventStoreLatency, err = meter.Float64Histogram(
		"ledger.eventstore.latency",
		metric.WithDescription("append_atomic latency in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating eventstore.latency: %w", err)
	}

	if m.AggregateLoads, err = meter.Int64Counter(
		"ledger.aggregate.loads",
		metric.WithDescription("Total aggregate loads"),
	); err != nil {
		return nil, fmt.Errorf("creating aggregate.loads: %w", err)
	}

	if m.SnapshotHits, err = meter.Int64Counter(
		"ledger.snapshot.hits",
		metric.WithDescription("Aggregate loads that started from a snapshot"),
	); err != nil {
		return nil, fmt.Errorf("creating snapshot.hits: %w", err)
	}

	if m.SnapshotMisses, err = meter.Int64Counter(
		"ledger.snapshot.misses",
		metric.WithDescription("Aggregate loads that replayed from event zero"),
	); err != nil {
		return nil, fmt.Errorf("creating snapshot.misses: %w", err)
	}

	if m.AuditChainVerifications, err = meter.Int64Counter(
		"ledger.audit.chain_verifications",
		metric.WithDescription("Total audit hash-chain verification passes"),
	); err != nil {
		return nil, fmt.Errorf("creating audit.chain_verifications: %w", err)
	}

	if m.AuditChainBreaks, err = meter.Int64Counter(
		"ledger.audit.chain_breaks",
		metric.WithDescription("Total broken links found across all verification passes"),
	); err != nil {
		return nil, fmt.Errorf("creating audit.chain_breaks: %w", err)
	}

	return m, nil
}

// RecordCommand records one command execution's duration/outcome, keyed by
// its command type (transfer, mint, burn, ...) and domain error code if any.
func (m *Metrics) RecordCommand(ctx context.Context, commandType string, duration time.Duration, errorCode string) {
	attrs := metric.WithAttributes(attribute.String("command_type", commandType))

	m.CommandDuration.Record(ctx, duration.Seconds(), attrs)
	m.CommandTotal.Add(ctx, 1, attrs)

	if errorCode != "" {
		m.CommandErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("command_type", commandType),
			attribute.String("error_code", errorCode),
		))
	}
}

// RecordAggregateLoad records one aggregate load, noting whether it started
// from a snapshot.
func (m *Metrics) RecordAggregateLoad(ctx context.Context, aggregateType string, snapshotUsed bool) {
	attrs := metric.WithAttributes(attribute.String("aggregate_type", aggregateType))

	m.AggregateLoads.Add(ctx, 1, attrs)
	if snapshotUsed {
		m.SnapshotHits.Add(ctx, 1, attrs)
	} else {
		m.SnapshotMisses.Add(ctx, 1, attrs)
	}
}

// RecordAuditVerification records the outcome of one pkg/audit.VerifyHashChain pass.
func (m *Metrics) RecordAuditVerification(ctx context.Context, broken bool) {
	m.AuditChainVerifications.Add(ctx, 1)
	if broken {
		m.AuditChainBreaks.Add(ctx, 1)
	}
}
