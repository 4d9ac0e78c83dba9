package coinbasepro

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/coachpo/tally/errs"
)

const (
	headerKey        = "CB-ACCESS-KEY"
	headerSign       = "CB-ACCESS-SIGN"
	headerTimestamp  = "CB-ACCESS-TIMESTAMP"
	headerPassphrase = "CB-ACCESS-PASSPHRASE"
	headerCursor     = "CB-AFTER"
)

// Request describes one exchange REST call. Endpoint has no leading slash, e.g. "accounts".
type Request struct {
	Endpoint string
	Method   string
	Query    url.Values
	Body     any
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// requestPath is the signed path including the encoded query string.
func (r Request) requestPath() string {
	path := "/" + strings.TrimPrefix(r.Endpoint, "/")
	if len(r.Query) > 0 {
		path += "?" + r.Query.Encode()
	}
	return path
}

// public endpoints are served without authentication.
func (r Request) public() bool {
	return strings.HasPrefix(strings.TrimPrefix(r.Endpoint, "/"), "products")
}

// Signer builds self-contained authenticated requests. It holds no per-request state.
type Signer struct {
	exchange   string
	baseURL    string
	apiKey     string
	passphrase string
	secret     []byte
	secretErr  error
	now        func() time.Time
}

// NewSigner decodes the base64 secret once. An undecodable secret fails every signed Build.
func NewSigner(exchange, baseURL, apiKey, secret, passphrase string, now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	s := &Signer{
		exchange:   exchange,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		passphrase: passphrase,
		now:        now,
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(secret))
	if err != nil {
		s.secretErr = errs.New(exchange, errs.CodeRemote,
			errs.WithMessage("provided API secret is invalid"),
			errs.WithRemediation("copy the base64 secret exactly as shown when the key was created"),
			errs.WithCause(err))
	}
	s.secret = decoded
	return s
}

// Build returns a fully formed request. Every call re-signs with a fresh timestamp.
func (s *Signer) Build(ctx context.Context, r Request) (*http.Request, error) {
	var payload []byte
	if r.Body != nil {
		encoded, err := json.Marshal(r.Body)
		if err != nil {
			return nil, errs.New(s.exchange, errs.CodeInvalid,
				errs.WithMessage("encode request body"),
				errs.WithCause(err))
		}
		payload = encoded
	}

	path := r.requestPath()
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method(), s.baseURL+path, body)
	if err != nil {
		return nil, errs.New(s.exchange, errs.CodeInvalid,
			errs.WithMessage(fmt.Sprintf("create %s request", r.Endpoint)),
			errs.WithCause(err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if r.public() {
		return req, nil
	}
	if s.secretErr != nil {
		return nil, s.secretErr
	}

	timestamp := strconv.FormatInt(s.now().Unix(), 10)
	req.Header.Set(headerKey, s.apiKey)
	req.Header.Set(headerPassphrase, s.passphrase)
	req.Header.Set(headerTimestamp, timestamp)
	req.Header.Set(headerSign, signPayload(timestamp+r.method()+path+string(payload), s.secret))
	return req, nil
}

func signPayload(payload string, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
