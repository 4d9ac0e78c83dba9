// Package httpserver exposes read-only HTTP handlers over the ledger store.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/coachpo/tally/internal/domain/ledger"
	"github.com/coachpo/tally/internal/domain/ledgerstore"
	"github.com/coachpo/tally/internal/observability"
)

const (
	eventsPath  = "/events"
	tradesPath  = "/trades"
	healthzPath = "/healthz"

	maxLimit       = 10_000
	requestTimeout = 30 * time.Second
)

type handlerFunc func(http.ResponseWriter, *http.Request)

type httpServer struct {
	store ledgerstore.Store
}

// NewHandler creates an HTTP handler that serves stored events and trades.
func NewHandler(store ledgerstore.Store) http.Handler {
	server := &httpServer{store: store}
	mux := http.NewServeMux()

	mux.Handle(eventsPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.listEvents,
	}))
	mux.Handle(tradesPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: server.listTrades,
	}))
	mux.Handle(healthzPath, server.methodHandlers(map[string]handlerFunc{
		http.MethodGet: func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		},
	}))

	return withCORS(mux)
}

func (s *httpServer) methodHandlers(handlers map[string]handlerFunc) http.Handler {
	allowed := allowedMethods(handlers)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := handlers[r.Method]; ok {
			handler(w, r)
			return
		}
		methodNotAllowed(w, allowed...)
	})
}

func allowedMethods(handlers map[string]handlerFunc) []string {
	if len(handlers) == 0 {
		return nil
	}
	allowed := make([]string, 0, len(handlers))
	for method := range handlers {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return allowed
}

type window struct {
	location ledger.Location
	from     ledger.TimestampMS
	to       ledger.TimestampMS
	limit    int
}

func parseWindow(r *http.Request) (window, error) {
	q := r.URL.Query()
	var (
		out window
		err error
	)
	out.location = ledger.Location(strings.ToUpper(strings.TrimSpace(q.Get("location"))))
	if out.from, err = parseTimestamp(q.Get("from")); err != nil {
		return window{}, fmt.Errorf("from: %w", err)
	}
	if out.to, err = parseTimestamp(q.Get("to")); err != nil {
		return window{}, fmt.Errorf("to: %w", err)
	}
	if out.to != 0 && out.from > out.to {
		return window{}, errors.New("from must not be after to")
	}
	if raw := strings.TrimSpace(q.Get("limit")); raw != "" {
		out.limit, err = strconv.Atoi(raw)
		if err != nil || out.limit <= 0 || out.limit > maxLimit {
			return window{}, fmt.Errorf("limit must be between 1 and %d", maxLimit)
		}
	}
	return out, nil
}

// parseTimestamp accepts unix milliseconds or RFC3339.
func parseTimestamp(raw string) (ledger.TimestampMS, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if ms < 0 {
			return 0, errors.New("timestamp must not be negative")
		}
		return ledger.TimestampMS(ms), nil
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", raw)
	}
	return ledger.FromTime(ts), nil
}

func (s *httpServer) listEvents(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	events, err := s.store.ListEvents(ctx, ledgerstore.EventQuery{
		Location:        win.location,
		EventIdentifier: strings.TrimSpace(r.URL.Query().Get("event")),
		From:            win.from,
		To:              win.to,
		Limit:           win.limit,
	})
	if err != nil {
		s.writeStoreError(w, "list events", err)
		return
	}
	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		views = append(views, newEventView(ev))
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": views, "count": len(views)})
}

func (s *httpServer) listTrades(w http.ResponseWriter, r *http.Request) {
	win, err := parseWindow(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	trades, err := s.store.ListTrades(ctx, ledgerstore.TradeQuery{
		Location: win.location,
		From:     win.from,
		To:       win.to,
		Limit:    win.limit,
	})
	if err != nil {
		s.writeStoreError(w, "list trades", err)
		return
	}
	views := make([]tradeView, 0, len(trades))
	for _, trade := range trades {
		views = append(views, newTradeView(trade))
	}
	writeJSON(w, http.StatusOK, map[string]any{"trades": views, "count": len(views)})
}

func (s *httpServer) writeStoreError(w http.ResponseWriter, operation string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusServiceUnavailable, operation+": request canceled")
		return
	}
	observability.Log().Error("ledger api query failed",
		observability.F("operation", operation),
		observability.F("error", err))
	writeError(w, http.StatusInternalServerError, operation+" failed")
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": message})
}

func withCORS(handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
