package coinbasepro

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"

	"github.com/coachpo/tally/errs"
	"github.com/coachpo/tally/internal/infra/telemetry"
	"github.com/coachpo/tally/internal/observability"
)

const (
	reportTypeFills   = "fills"
	reportFormatCSV   = "csv"
	reportStatusReady = "ready"
	reportStatusFail  = "failed"
)

type productRecord struct {
	ID string `json:"id"`
}

type reportCreate struct {
	Type      string `json:"type"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	ProductID string `json:"product_id"`
	Format    string `json:"format"`
}

type reportRecord struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Status  string `json:"status"`
	FileURL string `json:"file_url"`
}

var errReportPending = errors.New("report not ready")

// productIDs lists the markets offered by the exchange.
func (e *Exchange) productIDs(ctx context.Context) ([]string, error) {
	resp, err := e.client.Query(ctx, Request{Endpoint: e.opts.metadata.productsPath})
	if err != nil {
		return nil, err
	}
	var products []productRecord
	if err := json.Unmarshal(resp.Body, &products); err != nil {
		return nil, errs.New(e.client.exchange, errs.CodeRemote,
			errs.WithMessage("expected a list of products"),
			errs.WithCause(err))
	}
	ids := make([]string, 0, len(products))
	for _, p := range products {
		if id := strings.TrimSpace(p.ID); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// generateReports requests one fills report per product, waits for each and downloads it into
// dir. It returns the downloaded file paths.
func (e *Exchange) generateReports(ctx context.Context, start, end time.Time, dir string) ([]string, error) {
	products, err := e.productIDs(ctx)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(products))
	for _, product := range products {
		report, err := e.createReport(ctx, product, start, end)
		if err != nil {
			return nil, err
		}
		ready, err := e.waitReport(ctx, report.ID)
		if err != nil {
			return nil, err
		}
		path := filepath.Join(dir, sanitizeFileName(product)+".csv")
		if err := e.download(ctx, ready.FileURL, path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (e *Exchange) createReport(ctx context.Context, product string, start, end time.Time) (reportRecord, error) {
	resp, err := e.client.Query(ctx, Request{
		Endpoint: e.opts.metadata.reportsPath,
		Method:   http.MethodPost,
		Body: reportCreate{
			Type:      reportTypeFills,
			StartDate: start.UTC().Format(time.RFC3339),
			EndDate:   end.UTC().Format(time.RFC3339),
			ProductID: product,
			Format:    reportFormatCSV,
		},
	})
	if err != nil {
		return reportRecord{}, err
	}
	var report reportRecord
	if err := json.Unmarshal(resp.Body, &report); err != nil || report.ID == "" {
		return reportRecord{}, errs.New(e.client.exchange, errs.CodeRemote,
			errs.WithMessage("report creation returned no id"),
			errs.WithRawMessage(truncate(resp.Body)),
			errs.WithCause(err))
	}
	return report, nil
}

// waitReport polls until the report is ready, failing after ReportWait.
func (e *Exchange) waitReport(ctx context.Context, id string) (reportRecord, error) {
	poll := backoff.NewExponentialBackOff()
	poll.InitialInterval = e.opts.Config.ReportPollInterval
	poll.MaxInterval = defaultReportPollMax
	poll.RandomizationFactor = 0
	poll.Reset()

	started := time.Now()
	operation := func() (reportRecord, error) {
		resp, err := e.client.Query(ctx, Request{Endpoint: e.opts.metadata.reportsPath + "/" + id})
		if err != nil {
			return reportRecord{}, backoff.Permanent(err)
		}
		var report reportRecord
		if err := json.Unmarshal(resp.Body, &report); err != nil {
			return reportRecord{}, backoff.Permanent(errs.New(e.client.exchange, errs.CodeRemote,
				errs.WithMessage("decode report status"),
				errs.WithCause(err)))
		}
		switch report.Status {
		case reportStatusReady:
			if report.FileURL == "" {
				return reportRecord{}, backoff.Permanent(errs.New(e.client.exchange, errs.CodeRemote,
					errs.WithMessage("report "+id+" is ready without a file url")))
			}
			return report, nil
		case reportStatusFail:
			return reportRecord{}, backoff.Permanent(errs.New(e.client.exchange, errs.CodeRemote,
				errs.WithMessage("report "+id+" generation failed")))
		default:
			return reportRecord{}, errReportPending
		}
	}

	report, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(poll),
		backoff.WithMaxElapsedTime(e.opts.Config.ReportWait))
	elapsed := time.Since(started)
	switch {
	case err == nil:
		e.opts.Metrics.RecordReportWait(ctx, telemetry.ResultSuccess, elapsed)
		return report, nil
	case errors.Is(err, errReportPending):
		e.opts.Metrics.RecordReportWait(ctx, telemetry.ResultTimeout, elapsed)
		return reportRecord{}, errs.New(e.client.exchange, errs.CodeRemote,
			errs.WithMessage(fmt.Sprintf("report %s not ready after %s", id, e.opts.Config.ReportWait)))
	default:
		e.opts.Metrics.RecordReportWait(ctx, telemetry.ResultError, elapsed)
		if errs.CodeOf(err) == "" {
			err = errs.New(e.client.exchange, errs.CodeNetwork, errs.WithMessage("report wait interrupted"), errs.WithCause(err))
		}
		return reportRecord{}, err
	}
}

// download fetches a generated report. File URLs are pre-signed, so no auth headers are sent.
func (e *Exchange) download(ctx context.Context, fileURL, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return errs.New(e.client.exchange, errs.CodeRemote, errs.WithMessage("invalid report url"), errs.WithCause(err))
	}
	resp, err := e.opts.HTTPClient.Do(req)
	if err != nil {
		return errs.New(e.client.exchange, errs.CodeNetwork, errs.WithMessage("download report"), errs.WithCause(err))
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return errs.New(e.client.exchange, errs.CodeRemote,
			errs.WithHTTP(resp.StatusCode),
			errs.WithMessage("download report"),
			errs.WithRawMessage(strings.TrimSpace(string(body))))
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report file: %w", err)
	}
	if _, err := io.Copy(file, resp.Body); err != nil {
		_ = file.Close()
		return errs.New(e.client.exchange, errs.CodeNetwork, errs.WithMessage("read report body"), errs.WithCause(err))
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close report file: %w", err)
	}
	observability.Log().Debug("coinbasepro report downloaded", observability.F("path", path))
	return nil
}

func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
