package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tariff is one pricing scheme attached to a contract. A contract may carry
// several tariff groups (e.g. day/night registers); within a group only one
// row is current at a time.
// Natural key: (contract_id, tariff_group_key, valid_from, valid_to).
type Tariff struct {
	ID             uuid.UUID        `json:"id"`
	ContractID     uuid.UUID        `json:"contract_id"`
	TariffGroupKey string           `json:"tariff_group_key"`
	ValidFrom      *time.Time       `json:"valid_from,omitempty"`
	ValidTo        *time.Time       `json:"valid_to,omitempty"`
	BaseRate       *decimal.Decimal `json:"base_rate,omitempty"`
	CurrencyCode   string           `json:"currency_code,omitempty"`
	Discount       *decimal.Decimal `json:"discount,omitempty"` // fraction in [0,1]
	FloorRate      *decimal.Decimal `json:"floor_rate,omitempty"`
	CeilingRate    *decimal.Decimal `json:"ceiling_rate,omitempty"`
	EscalationType string           `json:"escalation_type,omitempty"`
	EscalationRate *decimal.Decimal `json:"escalation_rate,omitempty"`
	Params         map[string]any   `json:"params,omitempty"` // structured parameter bag
	IsCurrent      bool             `json:"is_current"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// RatePeriod is the resolved rate for one contract year of a tariff.
// Year 1 is seeded from the tariff's base rate at onboarding; escalation
// produces later years through a separate process.
// Natural key: (tariff_id, contract_year).
type RatePeriod struct {
	ID           uuid.UUID       `json:"id"`
	TariffID     uuid.UUID       `json:"tariff_id"`
	ContractYear int             `json:"contract_year"`
	Rate         decimal.Decimal `json:"rate"`
	StartsOn     *time.Time      `json:"starts_on,omitempty"`
	EndsOn       *time.Time      `json:"ends_on,omitempty"`
	IsCurrent    bool            `json:"is_current"`
	CreatedAt    time.Time       `json:"created_at"`
}
