// Package twelvedata provides a client for the Twelve Data stock market API.
package twelvedata

import (
	"errors"
	"os"
	"time"
)

// DefaultBaseURL is used when TWELVE_DATA_BASE_URL is not set.
const DefaultBaseURL = "https://api.twelvedata.com"

// ErrMissingAPIKey is returned by Validate when no API key is configured.
var ErrMissingAPIKey = errors.New("twelvedata: TWELVE_DATA_API_KEY is not set")

// Config holds configuration for the Twelve Data API client.
type Config struct {
	TwelveDataAPIKey string        // API key for authentication
	BaseURL          string        // Base URL for the API (e.g., "https://api.twelvedata.com")
	Timeout          time.Duration // HTTP request timeout
}

// LoadConfig loads Twelve Data configuration from environment variables.
func LoadConfig() Config {
	base := os.Getenv("TWELVE_DATA_BASE_URL")
	if base == "" {
		base = DefaultBaseURL
	}
	return Config{
		TwelveDataAPIKey: os.Getenv("TWELVE_DATA_API_KEY"),
		BaseURL:          base,
		Timeout:          10 * time.Second,
	}
}

// Validate reports a configuration the process cannot start with.
func (c Config) Validate() error {
	if c.TwelveDataAPIKey == "" {
		return ErrMissingAPIKey
	}
	return nil
}
