package coinbasepro

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"io"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/coachpo/tally/errs"
)

func TestSignerSignsMethodPathQueryAndBody(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	signer := NewSigner("coinbasepro", "https://example.test", "key", testSecret, "pass", func() time.Time { return now })

	req, err := signer.Build(context.Background(), Request{
		Endpoint: "reports",
		Method:   http.MethodPost,
		Query:    url.Values{"limit": {"100"}},
		Body:     map[string]string{"type": "fills"},
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	body, _ := io.ReadAll(req.Body)
	if string(body) != `{"type":"fills"}` {
		t.Fatalf("unexpected body %s", body)
	}
	if req.URL.String() != "https://example.test/reports?limit=100" {
		t.Fatalf("unexpected url %s", req.URL)
	}

	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte("1700000000POST/reports?limit=100" + `{"type":"fills"}`))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if got := req.Header.Get(headerSign); got != want {
		t.Fatalf("signature mismatch: got %s want %s", got, want)
	}
	if req.Header.Get(headerTimestamp) != "1700000000" || req.Header.Get(headerKey) != "key" || req.Header.Get(headerPassphrase) != "pass" {
		t.Fatalf("missing auth headers: %v", req.Header)
	}
}

func TestSignerBuildsIndependentRequests(t *testing.T) {
	tick := int64(100)
	signer := NewSigner("coinbasepro", "https://example.test", "key", testSecret, "pass", func() time.Time {
		tick++
		return time.Unix(tick, 0)
	})
	first, err := signer.Build(context.Background(), Request{Endpoint: "accounts"})
	if err != nil {
		t.Fatalf("build first: %v", err)
	}
	second, err := signer.Build(context.Background(), Request{Endpoint: "accounts"})
	if err != nil {
		t.Fatalf("build second: %v", err)
	}
	if first.Header.Get(headerTimestamp) == second.Header.Get(headerTimestamp) {
		t.Fatalf("expected a fresh timestamp per request")
	}
	if first.Header.Get(headerSign) == second.Header.Get(headerSign) {
		t.Fatalf("expected a fresh signature per request")
	}
}

func TestSignerSkipsPublicEndpoints(t *testing.T) {
	signer := NewSigner("coinbasepro", "https://example.test", "key", "not base64!", "pass", nil)
	req, err := signer.Build(context.Background(), Request{Endpoint: "products"})
	if err != nil {
		t.Fatalf("public endpoint must not need a valid secret: %v", err)
	}
	if req.Header.Get(headerSign) != "" || req.Header.Get(headerKey) != "" {
		t.Fatalf("public request must be unsigned: %v", req.Header)
	}

	_, err = signer.Build(context.Background(), Request{Endpoint: "accounts"})
	if !errs.IsRemote(err) {
		t.Fatalf("expected remote error for invalid secret, got %v", err)
	}
}
