package coinbasepro

import (
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/coachpo/tally/internal/domain/assets"
	"github.com/coachpo/tally/internal/domain/ledger"
	"github.com/coachpo/tally/internal/domain/valuation"
	"github.com/coachpo/tally/internal/infra/telemetry"
	"github.com/coachpo/tally/internal/observability"
)

type metadata struct {
	apiBaseURL    string
	identifier    string
	location      ledger.Location
	accountsPath  string
	productsPath  string
	transfersPath string
	reportsPath   string
}

var coinbaseproMetadata = metadata{
	apiBaseURL:    "https://api.pro.coinbase.com",
	identifier:    "coinbasepro",
	location:      ledger.LocationCoinbasePro,
	accountsPath:  "accounts",
	productsPath:  "products",
	transfersPath: "transfers",
	reportsPath:   "reports",
}

const (
	// PaginationLimit is the largest page the exchange serves.
	PaginationLimit = 100

	defaultHTTPTimeout        = 30 * time.Second
	defaultRetryBudget        = 5
	defaultRetryInitial       = time.Second
	defaultRetryMaxInterval   = 10 * time.Second
	defaultReportWait         = 5 * time.Minute
	defaultReportPollInterval = time.Second
	defaultReportPollMax      = 10 * time.Second
	defaultBalanceCacheTTL    = 10 * time.Second
)

// Config captures user-overridable Coinbase Pro settings.
type Config struct {
	Name       string
	BaseURL    string
	APIKey     string
	APISecret  string
	Passphrase string

	// RetryBudget is the total number of attempts made for a rate limited request.
	RetryBudget          int
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	ReportWait           time.Duration
	ReportPollInterval   time.Duration
	RequestsPerSecond    float64
	HTTPTimeout          time.Duration
	PageLimit            int
	BalanceCacheTTL      time.Duration
}

// TempDirProvider hands out scratch directories for downloaded reports.
type TempDirProvider interface {
	MkdirTemp(prefix string) (dir string, cleanup func() error, err error)
}

// OSTempDirs creates directories under Root, or the system temp dir when Root is empty.
type OSTempDirs struct {
	Root string
}

func (o OSTempDirs) MkdirTemp(prefix string) (string, func() error, error) {
	dir, err := os.MkdirTemp(o.Root, prefix+"-*")
	if err != nil {
		return "", nil, err
	}
	return dir, func() error { return os.RemoveAll(dir) }, nil
}

// Options configure the Coinbase Pro adapter.
type Options struct {
	Config     Config
	HTTPClient *http.Client
	Assets     assets.Resolver
	Prices     valuation.Oracle
	Messages   observability.Messages
	TempDirs   TempDirProvider
	Metrics    *telemetry.ExchangeMetrics
	// Now overrides the clock used for request timestamps.
	Now func() time.Time

	metadata metadata
}

func withDefaults(in Options) Options {
	in.metadata = coinbaseproMetadata
	if strings.TrimSpace(in.Config.Name) == "" {
		in.Config.Name = in.metadata.identifier
	}
	if strings.TrimSpace(in.Config.BaseURL) != "" {
		in.metadata.apiBaseURL = strings.TrimSpace(in.Config.BaseURL)
	}
	if in.Config.RetryBudget <= 0 {
		in.Config.RetryBudget = defaultRetryBudget
	}
	if in.Config.RetryInitialInterval <= 0 {
		in.Config.RetryInitialInterval = defaultRetryInitial
	}
	if in.Config.RetryMaxInterval <= 0 {
		in.Config.RetryMaxInterval = defaultRetryMaxInterval
	}
	if in.Config.ReportWait <= 0 {
		in.Config.ReportWait = defaultReportWait
	}
	if in.Config.ReportPollInterval <= 0 {
		in.Config.ReportPollInterval = defaultReportPollInterval
	}
	if in.Config.HTTPTimeout <= 0 {
		in.Config.HTTPTimeout = defaultHTTPTimeout
	}
	if in.Config.PageLimit <= 0 || in.Config.PageLimit > PaginationLimit {
		in.Config.PageLimit = PaginationLimit
	}
	if in.Config.BalanceCacheTTL == 0 {
		in.Config.BalanceCacheTTL = defaultBalanceCacheTTL
	}
	if in.HTTPClient == nil {
		in.HTTPClient = &http.Client{Timeout: in.Config.HTTPTimeout}
	}
	if in.Assets == nil {
		in.Assets = assets.Default()
	}
	if in.Messages == nil {
		in.Messages = observability.Discard
	}
	if in.TempDirs == nil {
		in.TempDirs = OSTempDirs{}
	}
	if in.Now == nil {
		in.Now = time.Now
	}
	return in
}

func (o Options) restBase() string {
	return strings.TrimSuffix(strings.TrimSpace(o.metadata.apiBaseURL), "/")
}
