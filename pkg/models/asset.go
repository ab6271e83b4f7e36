package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Asset is a physical component of a project (inverter, panel string,
// transformer). Assets have no standalone natural key beyond the
// (project, type, model, serial) combination and are never updated in place.
type Asset struct {
	ID           uuid.UUID        `json:"id"`
	ProjectID    uuid.UUID        `json:"project_id"`
	AssetType    string           `json:"asset_type"`
	Model        string           `json:"model,omitempty"`
	SerialNumber string           `json:"serial_number,omitempty"`
	Manufacturer string           `json:"manufacturer,omitempty"`
	CapacityKW   *decimal.Decimal `json:"capacity_kw,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Meter is a revenue or check meter attached to a project.
// Natural key: (project_id, serial_number).
type Meter struct {
	ID           uuid.UUID `json:"id"`
	ProjectID    uuid.UUID `json:"project_id"`
	SerialNumber string    `json:"serial_number"`
	Location     string    `json:"location,omitempty"`
	MeteringType string    `json:"metering_type,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
