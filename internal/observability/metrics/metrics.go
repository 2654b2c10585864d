package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

const (
	ChargeResultSucceeded   = "succeeded"
	ChargeResultDeclined    = "declined"
	ChargeResultNotRecorded = "not_recorded"
)

const exportInterval = 10 * time.Second

// Metrics holds the OTLP instruments for charges, memberships and rate limiting.
// A nil *Metrics records nothing.
type Metrics struct {
	charges          metric.Int64Counter
	chargeAmount     metric.Int64Counter
	reconciliation   metric.Int64Counter
	membershipEvents metric.Int64Counter
	rateLimitDenied  metric.Int64Counter
	processorLatency metric.Float64Histogram
}

// NewProvider installs the global meter provider. With export disabled a noop
// provider is used so instruments stay valid.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.StopHook(provider.Shutdown))
	}
	log.Info("metrics export enabled",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "accounts"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	counters := []struct {
		target *metric.Int64Counter
		name   string
		desc   string
	}{
		{&m.charges, "accounts_charges_total", "Charge attempts by provider and result."},
		{&m.chargeAmount, "accounts_charge_amount_minor_total", "Charged amount in minor currency units."},
		{&m.reconciliation, "accounts_charge_reconciliation_required_total", "Charges taken by the processor but not stored."},
		{&m.membershipEvents, "accounts_membership_events_total", "Membership additions, removals and admin changes."},
		{&m.rateLimitDenied, "accounts_rate_limit_denied_total", "Requests refused by the charge limiter."},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", c.name, err)
		}
		*c.target = counter
	}

	latency, err := meter.Float64Histogram("accounts_payment_processor_duration_seconds",
		metric.WithDescription("Latency of payment processor charge calls."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("histogram: %w", err)
	}
	m.processorLatency = latency

	return m, nil
}

// NewNoop is used when no provider was injected.
func NewNoop() *Metrics {
	m, _ := New(Config{}, noop.NewMeterProvider())
	return m
}

// RecordCharge counts an attempt; only succeeded charges add to the amount.
func (m *Metrics) RecordCharge(ctx context.Context, provider, result, currency string, amount int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("result", result),
		attribute.String("currency", currency),
	)...)
	m.charges.Add(ctx, 1, attrs)
	if result == ChargeResultSucceeded && amount > 0 {
		m.chargeAmount.Add(ctx, amount, attrs)
	}
}

func (m *Metrics) RecordReconciliationRequired(ctx context.Context, provider string) {
	if m == nil {
		return
	}
	m.reconciliation.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
	)...))
}

func (m *Metrics) RecordProcessorLatency(ctx context.Context, provider, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.processorLatency.Record(ctx, elapsed.Seconds(), metric.WithAttributes(FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("result", result),
	)...))
}

func (m *Metrics) RecordMembershipEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.membershipEvents.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("event_type", strings.TrimSpace(eventType)),
	)...))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Organization and user identifiers are never labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"provider":    {},
	"result":      {},
	"currency":    {},
	"event_type":  {},
	"reason":      {},
}

func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := attrs[:0:0]
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
