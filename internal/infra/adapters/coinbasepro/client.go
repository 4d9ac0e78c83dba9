package coinbasepro

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/coachpo/tally/errs"
	"github.com/coachpo/tally/internal/infra/telemetry"
	"github.com/coachpo/tally/internal/observability"
)

// Response is a successful exchange reply.
type Response struct {
	Body   json.RawMessage
	Cursor string
}

// Client dispatches signed requests, retries rate limited calls and classifies failures.
type Client struct {
	exchange    string
	signer      *Signer
	http        *http.Client
	limiter     *rate.Limiter
	retryBudget int
	newBackOff  func() backoff.BackOff
	metrics     *telemetry.ExchangeMetrics
}

func newClient(opts Options) *Client {
	cfg := opts.Config
	c := &Client{
		exchange:    opts.metadata.identifier,
		signer:      NewSigner(opts.metadata.identifier, opts.restBase(), cfg.APIKey, cfg.APISecret, cfg.Passphrase, opts.Now),
		http:        opts.HTTPClient,
		retryBudget: cfg.RetryBudget,
		metrics:     opts.Metrics,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = cfg.RetryInitialInterval
			b.MaxInterval = cfg.RetryMaxInterval
			b.Multiplier = 1.5
			b.RandomizationFactor = 0
			b.Reset()
			return b
		},
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// Query performs r. A 429 reply is retried until RetryBudget attempts are spent, after which
// the last reply is classified like any other.
func (c *Client) Query(ctx context.Context, r Request) (Response, error) {
	b := c.newBackOff()
	var (
		status int
		header http.Header
		body   []byte
	)
	for attempt := 1; ; attempt++ {
		var err error
		status, header, body, err = c.do(ctx, r)
		if err != nil {
			return Response{}, err
		}
		if status != http.StatusTooManyRequests || attempt >= c.retryBudget {
			break
		}
		wait := b.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		c.metrics.RecordRetry(ctx, r.method(), endpointLabel(r.Endpoint))
		observability.Log().Debug("coinbasepro rate limited",
			observability.F("endpoint", r.Endpoint),
			observability.F("attempt", attempt),
			observability.F("wait", wait.String()))
		if err := sleepContext(ctx, wait); err != nil {
			return Response{}, errs.New(c.exchange, errs.CodeNetwork,
				errs.WithMessage("rate limit wait interrupted"),
				errs.WithCause(err))
		}
	}
	return c.classify(r, status, header, body)
}

func (c *Client) do(ctx context.Context, r Request) (int, http.Header, []byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, nil, nil, errs.New(c.exchange, errs.CodeNetwork,
				errs.WithMessage("request throttle"),
				errs.WithCause(err))
		}
	}
	req, err := c.signer.Build(ctx, r)
	if err != nil {
		return 0, nil, nil, err
	}
	observability.Log().Debug("coinbasepro api query",
		observability.F("method", req.Method),
		observability.F("path", r.requestPath()))

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, errs.New(c.exchange, errs.CodeNetwork,
			errs.WithMessage(fmt.Sprintf("Coinbase Pro %s query at %s connection error", req.Method, req.URL.String())),
			errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, errs.New(c.exchange, errs.CodeNetwork,
			errs.WithMessage(fmt.Sprintf("read %s response", r.Endpoint)),
			errs.WithCause(err))
	}
	c.metrics.RecordRequest(ctx, req.Method, endpointLabel(r.Endpoint), resp.StatusCode, time.Since(start))
	return resp.StatusCode, resp.Header, body, nil
}

type errorPayload struct {
	Message string `json:"message"`
}

func (c *Client) classify(r Request, status int, header http.Header, body []byte) (Response, error) {
	method := r.method()
	switch status {
	case http.StatusBadRequest:
		var payload errorPayload
		if json.Unmarshal(body, &payload) == nil && payload.Message == "invalid signature" {
			return Response{}, errs.New(c.exchange, errs.CodeAuth,
				errs.WithHTTP(status),
				errs.WithMessage(fmt.Sprintf("While doing %s at %s endpoint the API secret created an invalid signature.", method, r.Endpoint)),
				errs.WithEndpoint(r.Endpoint))
		}
	case http.StatusForbidden:
		return Response{}, errs.New(c.exchange, errs.CodeAuth,
			errs.WithHTTP(status),
			errs.WithMessage(fmt.Sprintf("API key does not have permission for %s", r.Endpoint)),
			errs.WithEndpoint(r.Endpoint))
	}

	if status != http.StatusOK {
		code := errs.CodeRemote
		if status == http.StatusTooManyRequests {
			code = errs.CodeRateLimited
		}
		return Response{}, errs.New(c.exchange, code,
			errs.WithHTTP(status),
			errs.WithMessage(fmt.Sprintf("Coinbase Pro %s query at %s responded with error status code: %d", method, r.requestPath(), status)),
			errs.WithRawMessage(truncate(body)),
			errs.WithEndpoint(r.Endpoint))
	}
	if !json.Valid(body) {
		return Response{}, errs.New(c.exchange, errs.CodeRemote,
			errs.WithHTTP(status),
			errs.WithMessage(fmt.Sprintf("Coinbase Pro %s query at %s returned invalid JSON response", method, r.requestPath())),
			errs.WithRawMessage(truncate(body)))
	}
	return Response{Body: json.RawMessage(body), Cursor: header.Get(headerCursor)}, nil
}

func truncate(body []byte) string {
	const limit = 4 << 10
	if len(body) > limit {
		body = body[:limit]
	}
	return strings.TrimSpace(string(body))
}

// endpointLabel drops path parameters so metric cardinality stays bounded.
func endpointLabel(endpoint string) string {
	head, _, _ := strings.Cut(strings.TrimPrefix(endpoint, "/"), "/")
	return head
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
