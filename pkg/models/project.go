package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Project is an onboarded renewable-energy installation.
// Natural key: (organization_id, external_project_id).
type Project struct {
	ID                uuid.UUID        `json:"id"`
	OrganizationID    uuid.UUID        `json:"organization_id"`
	ExternalProjectID string           `json:"external_project_id"`
	Name              string           `json:"name,omitempty"`
	CapacityKWP       *decimal.Decimal `json:"capacity_kwp,omitempty"`
	Address           string           `json:"address,omitempty"`
	Region            string           `json:"region,omitempty"`
	CommissioningDate *time.Time       `json:"commissioning_date,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}
