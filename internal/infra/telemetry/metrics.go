package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Instrument names.
const (
	MetricHTTPRequests     = "tally.exchange.http.requests"
	MetricHTTPDuration     = "tally.exchange.http.duration"
	MetricRateLimitRetries = "tally.exchange.ratelimit.retries"
	MetricRecordsSkipped   = "tally.ingest.records.skipped"
	MetricEventsNormalized = "tally.ingest.events.normalized"
	MetricReportWait       = "tally.exchange.report.wait"
	MetricRecordsStored    = "tally.ingest.records.stored"
	MetricAccountDuration  = "tally.ingest.account.duration"
)

// ExchangeMetrics records ingestion signals for one exchange adapter. A nil receiver is a no-op.
type ExchangeMetrics struct {
	environment string
	exchange    string

	requests   metric.Int64Counter
	duration   metric.Float64Histogram
	retries    metric.Int64Counter
	skipped    metric.Int64Counter
	normalized metric.Int64Counter
	reportWait metric.Float64Histogram
}

// NewExchangeMetrics creates instruments on the global meter provider.
func NewExchangeMetrics(exchange string) *ExchangeMetrics {
	meter := otel.Meter("adapter." + exchange)
	m := &ExchangeMetrics{environment: Environment(), exchange: exchange}

	m.requests, _ = meter.Int64Counter(MetricHTTPRequests,
		metric.WithDescription("Exchange REST requests by endpoint and status"),
		metric.WithUnit("{request}"))
	m.duration, _ = meter.Float64Histogram(MetricHTTPDuration,
		metric.WithDescription("Exchange REST round trip latency"),
		metric.WithUnit("ms"))
	m.retries, _ = meter.Int64Counter(MetricRateLimitRetries,
		metric.WithDescription("Requests retried after a rate limit response"),
		metric.WithUnit("{retry}"))
	m.skipped, _ = meter.Int64Counter(MetricRecordsSkipped,
		metric.WithDescription("Raw exchange records dropped during normalization"),
		metric.WithUnit("{record}"))
	m.normalized, _ = meter.Int64Counter(MetricEventsNormalized,
		metric.WithDescription("Canonical events produced from raw records"),
		metric.WithUnit("{event}"))
	m.reportWait, _ = meter.Float64Histogram(MetricReportWait,
		metric.WithDescription("Time spent waiting for exchange reports"),
		metric.WithUnit("s"))
	return m
}

func (m *ExchangeMetrics) RecordRequest(ctx context.Context, method, endpoint string, status int, elapsed time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	attrs := metric.WithAttributes(RequestAttributes(m.environment, m.exchange, method, endpoint, status)...)
	m.requests.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

func (m *ExchangeMetrics) RecordRetry(ctx context.Context, method, endpoint string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(RequestAttributes(m.environment, m.exchange, method, endpoint, 429)...))
}

func (m *ExchangeMetrics) RecordSkipped(ctx context.Context, operation, reason string) {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.Add(ctx, 1, metric.WithAttributes(SkipAttributes(m.environment, m.exchange, operation, reason)...))
}

func (m *ExchangeMetrics) RecordNormalized(ctx context.Context, operation string, count int) {
	if m == nil || m.normalized == nil || count == 0 {
		return
	}
	m.normalized.Add(ctx, int64(count), metric.WithAttributes(OperationResultAttributes(m.environment, m.exchange, operation, ResultSuccess)...))
}

func (m *ExchangeMetrics) RecordReportWait(ctx context.Context, result string, elapsed time.Duration) {
	if m == nil || m.reportWait == nil {
		return
	}
	m.reportWait.Record(ctx, elapsed.Seconds(), metric.WithAttributes(OperationResultAttributes(m.environment, m.exchange, "report", result)...))
}

// IngestMetrics records runner-level signals. A nil receiver is a no-op.
type IngestMetrics struct {
	environment string
	stored      metric.Int64Counter
	duration    metric.Float64Histogram
}

// NewIngestMetrics creates runner instruments on the global meter provider.
func NewIngestMetrics() *IngestMetrics {
	meter := otel.Meter("tally.ingest")
	m := &IngestMetrics{environment: Environment()}
	m.stored, _ = meter.Int64Counter(MetricRecordsStored,
		metric.WithDescription("Ledger records newly persisted by kind"),
		metric.WithUnit("{record}"))
	m.duration, _ = meter.Float64Histogram(MetricAccountDuration,
		metric.WithDescription("Wall time of one account ingestion"),
		metric.WithUnit("s"))
	return m
}

func (m *IngestMetrics) RecordStored(ctx context.Context, account, kind string, count int) {
	if m == nil || m.stored == nil || count == 0 {
		return
	}
	m.stored.Add(ctx, int64(count), metric.WithAttributes(
		AttrEnvironment.String(m.environment),
		AttrAccount.String(account),
		AttrEventType.String(kind)))
}

func (m *IngestMetrics) RecordAccount(ctx context.Context, account, result string, elapsed time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		AttrEnvironment.String(m.environment),
		AttrAccount.String(account),
		AttrResult.String(result)))
}
