// Package telemetry provides OpenTelemetry setup and semantic conventions for tally.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	// AttrEnvironment specifies the deployment environment for every metric.
	AttrEnvironment = attribute.Key("environment")
	// AttrExchange identifies the exchange adapter that produced the signal.
	AttrExchange = attribute.Key("exchange")
	// AttrAccount names the configured exchange account.
	AttrAccount = attribute.Key("account")
	// AttrEndpoint is the exchange REST endpoint, without query string.
	AttrEndpoint = attribute.Key("endpoint")
	AttrMethod   = attribute.Key("http.method")
	AttrStatus   = attribute.Key("http.status_code")
	// AttrReason explains why a record was skipped.
	AttrReason    = attribute.Key("reason")
	AttrEventType = attribute.Key("event.type")
	AttrResult    = attribute.Key("result")
	AttrOperation = attribute.Key("operation")
)

// Result values.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultTimeout = "timeout"
)

// RequestAttributes returns attributes for exchange HTTP request metrics.
func RequestAttributes(environment, exchange, method, endpoint string, status int) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrExchange.String(exchange),
		AttrMethod.String(method),
		AttrEndpoint.String(endpoint),
		AttrStatus.Int(status),
	}
}

// SkipAttributes returns attributes for skipped raw record metrics.
func SkipAttributes(environment, exchange, operation, reason string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrExchange.String(exchange),
		AttrOperation.String(operation),
		AttrReason.String(reason),
	}
}

// OperationResultAttributes returns attributes for operation metrics with result classification.
func OperationResultAttributes(environment, exchange, operation, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrExchange.String(exchange),
		AttrOperation.String(operation),
		AttrResult.String(result),
	}
}
