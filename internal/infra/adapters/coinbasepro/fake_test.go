package coinbasepro

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coachpo/tally/internal/domain/valuation"
	"github.com/coachpo/tally/internal/observability"
)

const testSecret = "c2VjcmV0" // base64("secret")

// fakeVenue is an httptest server with per-path handlers and request counters.
type fakeVenue struct {
	t      *testing.T
	server *httptest.Server
	mux    *http.ServeMux

	mu    sync.Mutex
	calls map[string]int
}

func newFakeVenue(t *testing.T) *fakeVenue {
	t.Helper()
	f := &fakeVenue{t: t, mux: http.NewServeMux(), calls: make(map[string]int)}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls[r.Method+" "+r.URL.Path]++
		f.mu.Unlock()
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeVenue) handle(pattern string, h http.HandlerFunc) {
	f.mux.HandleFunc(pattern, h)
}

func (f *fakeVenue) count(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[key]
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func testOptions(baseURL string, messages observability.Messages) Options {
	return Options{
		Config: Config{
			BaseURL:              baseURL,
			APIKey:               "key",
			APISecret:            testSecret,
			Passphrase:           "pass",
			RetryInitialInterval: time.Millisecond,
			RetryMaxInterval:     5 * time.Millisecond,
			ReportWait:           time.Second,
			ReportPollInterval:   time.Millisecond,
			BalanceCacheTTL:      time.Minute,
		},
		Prices: valuation.NewStatic(map[string]decimal.Decimal{
			"ETH": decimal.NewFromInt(2000),
			"BTC": decimal.NewFromInt(30000),
		}),
		Messages: messages,
	}
}

func newTestExchange(t *testing.T, f *fakeVenue, messages observability.Messages) *Exchange {
	t.Helper()
	ex, err := New(testOptions(f.server.URL, messages))
	if err != nil {
		t.Fatalf("new exchange: %v", err)
	}
	return ex
}
