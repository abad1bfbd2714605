package domain

import (
	"math"
	"strings"
	"time"
)

// Product is a sellable catalog item. The matcher only reads it, apart from
// the derived EarningPerSale refreshed during a rebuild.
type Product struct {
	ID             string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	Name           string    `json:"name" gorm:"type:text;not null"`
	URL            string    `json:"url,omitempty" gorm:"type:text;index"`
	Category       string    `json:"category,omitempty" gorm:"type:varchar(255)"`
	Price          float64   `json:"price"`
	CommissionRate float64   `json:"commissionRate"`
	EarningPerSale float64   `json:"earningPerSale"`
	Revenue        float64   `json:"revenue" gorm:"index"`
	Sales          int64     `json:"sales"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Matchable reports whether the product can be offered as a match candidate
func (p *Product) Matchable() bool {
	return strings.TrimSpace(p.Name) != ""
}

// ComputeEarning refreshes EarningPerSale from price and commission rate
func (p *Product) ComputeEarning() {
	p.EarningPerSale = math.Round(p.Price*p.CommissionRate*100) / 100
}

// ImportSummary reports the outcome of a catalog spreadsheet import
type ImportSummary struct {
	Rows     int `json:"rows"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}
