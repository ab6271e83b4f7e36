package models

import (
	"time"

	"github.com/google/uuid"
)

// Organization is a tenant that owns projects and org-scoped billing products.
// Organizations pre-exist onboarding; the pipeline only resolves them.
type Organization struct {
	ID        uuid.UUID `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// BillingProduct is a billable product a contract can be assigned to.
// OrganizationID is nil for global (canonical) products shared by all
// organizations; org-scoped products shadow a global product with the
// same code.
type BillingProduct struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID *uuid.UUID `json:"organization_id,omitempty"`
	Code           string     `json:"code"`
	Name           string     `json:"name"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Lookup code tables seeded by migration and read-only to the pipeline.
// Each is a bare code plus label; the pipeline only checks existence.
const (
	LookupContractTypes   = "contract_types"
	LookupEnergySaleTypes = "energy_sale_types"
	LookupEscalationTypes = "escalation_types"
	LookupCurrencies      = "currencies"
	LookupAssetTypes      = "asset_types"
)
