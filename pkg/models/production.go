package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ForecastMonth is the expected production for one calendar month.
// Natural key: (project_id, month). Forecasts are always complete
// recomputations, so numeric fields are replaced wholesale on conflict.
type ForecastMonth struct {
	ID               uuid.UUID        `json:"id"`
	ProjectID        uuid.UUID        `json:"project_id"`
	Month            time.Time        `json:"month"` // first day of month
	EnergyKWh        decimal.Decimal  `json:"energy_kwh"`
	Irradiation      *decimal.Decimal `json:"irradiation,omitempty"`
	PerformanceRatio *decimal.Decimal `json:"performance_ratio,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// GuaranteeYear is the contractually guaranteed minimum production for one
// operating year. Guaranteed energy must be strictly positive.
// Natural key: (project_id, operating_year). Replace-on-conflict, like
// forecasts.
type GuaranteeYear struct {
	ID                  uuid.UUID       `json:"id"`
	ProjectID           uuid.UUID       `json:"project_id"`
	OperatingYear       int             `json:"operating_year"`
	GuaranteedEnergyKWh decimal.Decimal `json:"guaranteed_energy_kwh"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}
