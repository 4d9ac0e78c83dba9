package config

import "strings"

// Environment identifies where tally runs.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

// DatabaseDriver selects the ledger store implementation.
type DatabaseDriver string

const (
	DriverSQLite   DatabaseDriver = "sqlite"
	DriverPostgres DatabaseDriver = "postgres"
	DriverMemory   DatabaseDriver = "memory"
)

// LocationCoinbasePro is the only supported exchange location.
const LocationCoinbasePro = "coinbasepro"

func normalizeExchangeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalizeLocation(location string) string {
	trimmed := strings.ToLower(strings.TrimSpace(location))
	switch trimmed {
	case "", "coinbase_pro", "coinbase-pro", "coinbase pro":
		return LocationCoinbasePro
	}
	return trimmed
}
