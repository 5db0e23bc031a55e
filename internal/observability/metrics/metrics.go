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

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	invoicesCreated metric.Int64Counter
	batchesFinished metric.Int64Counter
	lateFeesApplied metric.Int64Counter
	remindersSent   metric.Int64Counter
	renderFailures  metric.Int64Counter
	rateLimitDenied metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
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

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "invoicekits"
	}
	meter := provider.Meter(name)

	invoicesCreated, err := meter.Int64Counter("invoicekits_invoices_created_total")
	if err != nil {
		return nil, err
	}
	batchesFinished, err := meter.Int64Counter("invoicekits_batches_finished_total")
	if err != nil {
		return nil, err
	}
	lateFeesApplied, err := meter.Int64Counter("invoicekits_late_fees_applied_total")
	if err != nil {
		return nil, err
	}
	remindersSent, err := meter.Int64Counter("invoicekits_payment_reminders_total")
	if err != nil {
		return nil, err
	}
	renderFailures, err := meter.Int64Counter("invoicekits_pdf_render_failures_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("invoicekits_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invoicesCreated: invoicesCreated,
		batchesFinished: batchesFinished,
		lateFeesApplied: lateFeesApplied,
		remindersSent:   remindersSent,
		renderFailures:  renderFailures,
		rateLimitDenied: rateLimitDenied,
	}, nil
}

// RecordInvoiceCreated counts invoices by origin (api or batch).
func (m *Metrics) RecordInvoiceCreated(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.invoicesCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordBatchFinished counts batches reaching a terminal status.
func (m *Metrics) RecordBatchFinished(ctx context.Context, status string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("status", strings.TrimSpace(status)))
	m.batchesFinished.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordLateFeeApplied(ctx context.Context, feeType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("fee_type", strings.TrimSpace(feeType)))
	m.lateFeesApplied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordReminder(ctx context.Context, reminderType string, success bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("reminder_type", strings.TrimSpace(reminderType)),
		attribute.Bool("success", success),
	)
	m.remindersSent.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordRenderFailure(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.renderFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"source":        {},
	"status":        {},
	"fee_type":      {},
	"reminder_type": {},
	"success":       {},
	"endpoint":      {},
	"reason":        {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
