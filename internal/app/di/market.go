// Package di provides dependency injection factories for creating application components.
package di

import (
	"marketdata_backend/internal/feature/prices/usecase"
	infrahttp "marketdata_backend/internal/platform/http"
	"marketdata_backend/internal/platform/externalapi/twelvedata"
	"marketdata_backend/internal/platform/externalapi/yahoo"
)

// NewMarket creates a fully configured TwelveDataMarket with HTTP client.
func NewMarket(cfg twelvedata.Config) *twelvedata.TwelveDataMarket {
	httpClient := infrahttp.NewHTTPClient(cfg.Timeout)
	return twelvedata.NewTwelveDataMarket(cfg, httpClient)
}

// NewAlternateSource creates the Yahoo chart client used as the last fetch strategy.
// It returns nil when the alternate source is switched off.
func NewAlternateSource(cfg yahoo.Config) usecase.HistorySource {
	if !cfg.Enabled() {
		return nil
	}
	return yahoo.NewChartClient(cfg, infrahttp.NewHTTPClient(cfg.Timeout))
}
