// internal/config/config.go
package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"posterminal/internal/logger"
)

// Spec is the full environment configuration for one terminal process.
type Spec struct {
	ServerHost    string `envconfig:"SERVER_HOST" default:"127.0.0.1"`
	ServerPort    string `envconfig:"SERVER_PORT" default:"5051"`
	BackendAPIURL string `envconfig:"BACKEND_API_URL"`
	TaxRate       string `envconfig:"TAX_RATE" default:"0"`
	POSUserID     int64  `envconfig:"POS_USER_ID" default:"1"`
	TimeZone      string `envconfig:"TIME_ZONE" default:"Local"`
	LogsDirectory string `envconfig:"LOGS_DIRECTORY" default:"./logs"`
	LogFileFormat string `envconfig:"LOG_FILE_FORMAT" default:"terminal_%s.log"`
	Environment   string `envconfig:"ENVIRONMENT" default:"dev"`
}

var (
	spec    Spec
	taxRate decimal.Decimal
)

// LoadEnv reads the .env file if one is present. System environment
// variables win when both are set.
func LoadEnv() {
	wd, err := os.Getwd()
	if err != nil {
		log.Printf("Could not determine working directory: %v", err)
	}

	if err := godotenv.Load(".env"); err != nil {
		log.Printf("No .env file found in %s. Using system environment variables.", wd)
	} else {
		log.Printf("Loaded environment variables from .env file in %s", wd)
	}
}

// Load populates the typed configuration from the environment.
// Call after LoadEnv and before anything reads a getter.
func Load() error {
	if err := envconfig.Process("", &spec); err != nil {
		return fmt.Errorf("processing environment config: %w", err)
	}

	if spec.BackendAPIURL == "" {
		return fmt.Errorf("BACKEND_API_URL is not set")
	}

	rate, err := decimal.NewFromString(spec.TaxRate)
	if err != nil {
		return fmt.Errorf("invalid TAX_RATE %q: %w", spec.TaxRate, err)
	}
	if rate.IsNegative() {
		return fmt.Errorf("TAX_RATE must not be negative, got %s", spec.TaxRate)
	}
	taxRate = rate

	return nil
}

// LogCurrentEnvironment logs which environment the terminal is running in.
func LogCurrentEnvironment() {
	if spec.Environment == "dev" {
		logger.LogInfo("Running in development environment")
	} else {
		logger.LogInfo("Running in production environment")
	}
}

// LoggerConfig returns a logger.Config populated from the environment.
func LoggerConfig() logger.Config {
	return logger.Config{
		LogsDirectory: spec.LogsDirectory,
		LogFileFormat: spec.LogFileFormat,
		TimeZone:      spec.TimeZone,
	}
}

//
// --- Getters (exported) ---
//

// ServerAddress builds the listen address for the terminal HTTP surface.
func ServerAddress() string {
	return spec.ServerHost + ":" + spec.ServerPort
}

// BackendAPIBase returns the base URL of the remote retail backend.
func BackendAPIBase() string {
	return spec.BackendAPIURL
}

// TaxRate returns the configured sales tax multiplier (0 by default).
func TaxRate() decimal.Decimal {
	return taxRate
}

// POSUserID is the backend user id sales are submitted under.
func POSUserID() int64 {
	return spec.POSUserID
}
