package models

import (
	"time"

	"github.com/google/uuid"
)

// Contract is the commercial agreement governing a project's energy sale.
// Natural key: (project_id, external_contract_id).
type Contract struct {
	ID                     uuid.UUID      `json:"id"`
	ProjectID              uuid.UUID      `json:"project_id"`
	CounterpartyID         uuid.UUID      `json:"counterparty_id"`
	ExternalContractID     string         `json:"external_contract_id"`
	ContractType           string         `json:"contract_type"`
	EnergySaleType         string         `json:"energy_sale_type,omitempty"`
	CurrencyCode           string         `json:"currency_code,omitempty"`
	SignedDate             *time.Time     `json:"signed_date,omitempty"`
	StartDate              *time.Time     `json:"start_date,omitempty"`
	EndDate                *time.Time     `json:"end_date,omitempty"`
	PaymentSecurityDetails string         `json:"payment_security_details,omitempty"`
	Metadata               map[string]any `json:"metadata,omitempty"`
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
}

// BillingProductAssignment links a contract to a billing product.
// Natural key: (contract_id, product_id). At most one assignment per
// contract may be primary; a partial unique index enforces this.
type BillingProductAssignment struct {
	ID         uuid.UUID `json:"id"`
	ContractID uuid.UUID `json:"contract_id"`
	ProductID  uuid.UUID `json:"product_id"`
	IsPrimary  bool      `json:"is_primary"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
