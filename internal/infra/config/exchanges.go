package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// CredentialEnv names the environment variables holding an account's API credentials.
type CredentialEnv struct {
	APIKey     string `yaml:"apiKey"`
	APISecret  string `yaml:"apiSecret"`
	Passphrase string `yaml:"passphrase"`
}

// ExchangeConfig configures one exchange account.
type ExchangeConfig struct {
	Name              string        `yaml:"name"`
	Location          string        `yaml:"location"`
	BaseURL           string        `yaml:"baseURL"`
	CredentialEnv     CredentialEnv `yaml:"credentialEnv"`
	RetryBudget       int           `yaml:"retryBudget"`
	ReportWait        time.Duration `yaml:"reportWait"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	HTTPTimeout       time.Duration `yaml:"httpTimeout"`
	BalanceCacheTTL   time.Duration `yaml:"balanceCacheTTL"`
	Disabled          bool          `yaml:"disabled"`
}

// Credentials are resolved API credentials.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

func (c *ExchangeConfig) normalise() {
	c.Name = normalizeExchangeName(c.Name)
	c.Location = normalizeLocation(c.Location)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")

	prefix := strings.ToUpper(strings.NewReplacer("-", "_", " ", "_").Replace(c.Name))
	if strings.TrimSpace(c.CredentialEnv.APIKey) == "" {
		c.CredentialEnv.APIKey = "TALLY_" + prefix + "_API_KEY"
	}
	if strings.TrimSpace(c.CredentialEnv.APISecret) == "" {
		c.CredentialEnv.APISecret = "TALLY_" + prefix + "_API_SECRET"
	}
	if strings.TrimSpace(c.CredentialEnv.Passphrase) == "" {
		c.CredentialEnv.Passphrase = "TALLY_" + prefix + "_PASSPHRASE"
	}
}

func (c ExchangeConfig) validate() error {
	if c.Name == "" {
		return fmt.Errorf("name required")
	}
	if c.Location != LocationCoinbasePro {
		return fmt.Errorf("exchange %q: unsupported location %q", c.Name, c.Location)
	}
	if c.RetryBudget < 0 {
		return fmt.Errorf("exchange %q: retryBudget must be >=0", c.Name)
	}
	if c.ReportWait < 0 {
		return fmt.Errorf("exchange %q: reportWait must be >=0", c.Name)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("exchange %q: requestsPerSecond must be >=0", c.Name)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("exchange %q: httpTimeout must be >=0", c.Name)
	}
	if c.BaseURL != "" && !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("exchange %q: baseURL must be http(s)", c.Name)
	}
	return nil
}

// ResolveCredentials reads the account credentials through lookup, or the process environment when nil.
func (c ExchangeConfig) ResolveCredentials(lookup LookupFunc) (Credentials, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	var missing []string
	read := func(key string) string {
		value, ok := lookup(key)
		value = strings.TrimSpace(value)
		if !ok || value == "" {
			missing = append(missing, key)
		}
		return value
	}
	creds := Credentials{
		APIKey:     read(c.CredentialEnv.APIKey),
		APISecret:  read(c.CredentialEnv.APISecret),
		Passphrase: read(c.CredentialEnv.Passphrase),
	}
	if len(missing) > 0 {
		return Credentials{}, fmt.Errorf("exchange %q: missing credentials %s", c.Name, strings.Join(missing, ", "))
	}
	return creds, nil
}
