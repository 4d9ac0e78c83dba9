// Package errs provides structured error types and helpers for tally services.
package errs

import (
	"errors"
	"strconv"
	"strings"
)

// Code identifies an error category.
type Code string

const (
	// CodeRemote indicates the exchange answered with a non-success status or an unreadable body.
	CodeRemote Code = "remote"
	// CodeNetwork indicates a network transport failure.
	CodeNetwork Code = "network"
	// CodeAuth indicates insufficient API permissions or a bad signature.
	CodeAuth Code = "auth"
	// CodeRateLimited indicates that the request exceeded rate limits.
	CodeRateLimited Code = "rate_limited"
	// CodeInvalid indicates invalid input provided by the caller.
	CodeInvalid Code = "invalid_request"
	// CodeUnknownAsset indicates a currency code that no resolver knows.
	CodeUnknownAsset Code = "unknown_asset"
	// CodeUnsupportedAsset indicates a known currency code that tally does not handle.
	CodeUnsupportedAsset Code = "unsupported_asset"
	// CodeUnprocessablePair indicates a product code that cannot be split into base and quote.
	CodeUnprocessablePair Code = "unprocessable_pair"
	// CodeDeserialization indicates a malformed or missing field in a raw record.
	CodeDeserialization Code = "deserialization"
)

// E captures structured error information produced across the tally stack.
type E struct {
	Exchange    string
	Code        Code
	HTTP        int
	RawMsg      string
	Message     string
	Asset       string
	Pair        string
	Endpoint    string
	Remediation string

	cause error
}

// Option configures an error envelope.
type Option func(*E)

// New constructs an error envelope for the exchange and error code.
func New(exchange string, code Code, opts ...Option) *E {
	e := &E{
		Exchange: strings.TrimSpace(exchange),
		Code:     code,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// WithMessage attaches a human-readable message to the error.
func WithMessage(message string) Option {
	trimmed := strings.TrimSpace(message)
	return func(e *E) {
		e.Message = trimmed
	}
}

// WithRemediation attaches remediation guidance to the error.
func WithRemediation(remediation string) Option {
	trimmed := strings.TrimSpace(remediation)
	return func(e *E) {
		e.Remediation = trimmed
	}
}

// WithHTTP records the associated HTTP status code.
func WithHTTP(status int) Option {
	return func(e *E) {
		e.HTTP = status
	}
}

// WithRawMessage captures the raw exchange response body.
func WithRawMessage(msg string) Option {
	return func(e *E) {
		e.RawMsg = msg
	}
}

// WithAsset records the offending currency code.
func WithAsset(asset string) Option {
	trimmed := strings.TrimSpace(asset)
	return func(e *E) {
		e.Asset = trimmed
	}
}

// WithPair records the offending product code.
func WithPair(pair string) Option {
	trimmed := strings.TrimSpace(pair)
	return func(e *E) {
		e.Pair = trimmed
	}
}

// WithCause sets the underlying cause error.
func WithCause(err error) Option {
	return func(e *E) {
		e.cause = err
	}
}

// WithEndpoint records the exchange endpoint that produced the error.
func WithEndpoint(endpoint string) Option {
	trimmed := strings.Trim(strings.TrimSpace(endpoint), "/")
	return func(e *E) {
		e.Endpoint = trimmed
	}
}

func (e *E) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := []string{
		"exchange=" + orUnknown(e.Exchange),
		"code=" + orUnknown(string(e.Code)),
	}
	if e.HTTP > 0 {
		parts = append(parts, "http="+strconv.Itoa(e.HTTP))
	}
	if e.Endpoint != "" {
		parts = append(parts, "endpoint="+e.Endpoint)
	}
	quoted := [...]struct{ key, value string }{
		{"message", e.Message},
		{"asset", e.Asset},
		{"pair", e.Pair},
		{"remediation", e.Remediation},
		{"raw_msg", e.RawMsg},
	}
	for _, q := range quoted {
		if q.value != "" {
			parts = append(parts, q.key+"="+strconv.Quote(q.value))
		}
	}
	if e.cause != nil {
		parts = append(parts, "cause="+strconv.Quote(e.cause.Error()))
	}
	return strings.Join(parts, " ")
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unknown"
	}
	return s
}

func (e *E) Unwrap() error { return e.cause }

// CodeOf returns the code of the first envelope in the error chain, or "" when none exists.
func CodeOf(err error) Code {
	var e *E
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsPermission reports whether err signals insufficient API permissions.
func IsPermission(err error) bool {
	return CodeOf(err) == CodeAuth
}

// IsRemote reports whether err means the exchange could not be reached or answered badly.
func IsRemote(err error) bool {
	switch CodeOf(err) {
	case CodeRemote, CodeNetwork, CodeRateLimited:
		return true
	default:
		return false
	}
}

// IsRecordScoped reports whether err only concerns a single raw record.
func IsRecordScoped(err error) bool {
	switch CodeOf(err) {
	case CodeUnknownAsset, CodeUnsupportedAsset, CodeUnprocessablePair, CodeDeserialization:
		return true
	default:
		return false
	}
}

// UnknownAsset returns a standardized error for a currency code no resolver knows.
func UnknownAsset(exchange, asset string) *E {
	return New(exchange, CodeUnknownAsset, WithAsset(asset), WithMessage("unknown asset"))
}

// UnsupportedAsset returns a standardized error for a known but unsupported currency code.
func UnsupportedAsset(exchange, asset string) *E {
	return New(exchange, CodeUnsupportedAsset, WithAsset(asset), WithMessage("unsupported asset"))
}

// UnprocessablePair returns a standardized error for a product code that cannot be split.
func UnprocessablePair(exchange, pair string) *E {
	return New(exchange, CodeUnprocessablePair, WithPair(pair), WithMessage("unprocessable trade pair"))
}

// Deserialization returns a standardized error for a malformed raw field.
func Deserialization(exchange, message string, cause error) *E {
	return New(exchange, CodeDeserialization, WithMessage(message), WithCause(cause))
}

// MissingKey returns a deserialization error for a required field absent from a raw record.
func MissingKey(exchange, key string) *E {
	return New(exchange, CodeDeserialization, WithMessage("missing key entry for "+key))
}
