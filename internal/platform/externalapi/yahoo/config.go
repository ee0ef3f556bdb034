// Package yahoo provides a daily-bar client for the Yahoo Finance chart API.
package yahoo

import (
	"os"
	"time"
)

// DefaultBaseURL is used when YAHOO_BASE_URL is not set.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// Config holds configuration for the Yahoo Finance client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// LoadConfig loads Yahoo configuration from environment variables.
// An explicit "off" disables the alternate source.
func LoadConfig() Config {
	base := os.Getenv("YAHOO_BASE_URL")
	if base == "" {
		base = DefaultBaseURL
	}
	return Config{BaseURL: base, Timeout: 10 * time.Second}
}

// Enabled reports whether the client should be wired into the fetch chain.
func (c Config) Enabled() bool {
	return c.BaseURL != "" && c.BaseURL != "off"
}
