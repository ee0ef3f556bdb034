// Package entity defines the domain models for the symbollist feature.
package entity

import "time"

// DefaultMarket is used for symbols registered implicitly on first fetch.
const DefaultMarket = "US"

// Symbol represents a ticker registered in the system.
// Rows are created either from the configured universe or the first time
// price data is stored for a code. Name starts out as the code itself and is
// replaced by the provider's display name once a live quote reports one.
type Symbol struct {
	ID        uint      `gorm:"primaryKey" yaml:"-"`
	Code      string    `gorm:"size:20;not null;uniqueIndex" yaml:"code"`
	Name      string    `gorm:"size:255;not null" yaml:"name"`
	Market    string    `gorm:"size:100;not null" yaml:"market"`
	IsActive  bool      `gorm:"not null;default:true" yaml:"-"`
	SortKey   int       `gorm:"not null;default:0" yaml:"-"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" yaml:"-"`
}
