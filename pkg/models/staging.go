package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Entity kind labels used in batch reports and violation messages.
const (
	KindProject           = "project"
	KindCounterparty      = "counterparty"
	KindContract          = "contract"
	KindTariff            = "tariff"
	KindAsset             = "asset"
	KindMeter             = "meter"
	KindForecastMonth     = "forecast month"
	KindGuaranteeYear     = "guarantee year"
	KindContact           = "contact"
	KindProductAssignment = "billing product assignment"
	KindRatePeriod        = "rate period"
)

// StagedRecord carries the batch stamp shared by every staged record.
// The registrar sets it; records never carry internal ids.
type StagedRecord struct {
	BatchID uuid.UUID `json:"-" yaml:"-"`
}

// StagingBatch is one atomic unit of staged records for a single project,
// produced upstream by extraction/onboarding preparation. It exists only for
// the duration of one onboarding run and is discarded after commit or
// rollback. Exactly one project record is required; every other kind is an
// optional collection.
type StagingBatch struct {
	BatchID  uuid.UUID `json:"batch_id" yaml:"-"`
	Source   string    `json:"source" yaml:"source"`
	LoadedAt time.Time `json:"loaded_at" yaml:"-"`

	Project            *StagedProject             `json:"project" yaml:"project"`
	Counterparties     []*StagedCounterparty      `json:"counterparties,omitempty" yaml:"counterparties"`
	Contracts          []*StagedContract          `json:"contracts,omitempty" yaml:"contracts"`
	Tariffs            []*StagedTariff            `json:"tariffs,omitempty" yaml:"tariffs"`
	Assets             []*StagedAsset             `json:"assets,omitempty" yaml:"assets"`
	Meters             []*StagedMeter             `json:"meters,omitempty" yaml:"meters"`
	ForecastMonths     []*StagedForecastMonth     `json:"forecast_months,omitempty" yaml:"forecast_months"`
	GuaranteeYears     []*StagedGuaranteeYear     `json:"guarantee_years,omitempty" yaml:"guarantee_years"`
	Contacts           []*StagedContact           `json:"contacts,omitempty" yaml:"contacts"`
	ProductAssignments []*StagedProductAssignment `json:"product_assignments,omitempty" yaml:"product_assignments"`
}

// StagedProject is the batch's single project-core record.
type StagedProject struct {
	StagedRecord      `json:"-" yaml:"-"`
	OrganizationCode  string           `json:"organization_code" yaml:"organization_code"`
	ExternalProjectID string           `json:"external_project_id" yaml:"external_project_id"`
	Name              string           `json:"name,omitempty" yaml:"name"`
	CapacityKWP       *decimal.Decimal `json:"capacity_kwp,omitempty" yaml:"capacity_kwp"`
	Address           string           `json:"address,omitempty" yaml:"address"`
	Region            string           `json:"region,omitempty" yaml:"region"`
	CommissioningDate *time.Time       `json:"commissioning_date,omitempty" yaml:"commissioning_date"`
}

// StagedCounterparty identifies a counterparty by type and name.
type StagedCounterparty struct {
	StagedRecord       `json:"-" yaml:"-"`
	Type               string `json:"type" yaml:"type"`
	Name               string `json:"name" yaml:"name"`
	RegistrationNumber string `json:"registration_number,omitempty" yaml:"registration_number"`
	TaxID              string `json:"tax_id,omitempty" yaml:"tax_id"`
	Address            string `json:"address,omitempty" yaml:"address"`
	Country            string `json:"country,omitempty" yaml:"country"`
}

// StagedContract references its counterparty by (type, name) natural key.
type StagedContract struct {
	StagedRecord           `json:"-" yaml:"-"`
	ExternalContractID     string         `json:"external_contract_id" yaml:"external_contract_id"`
	CounterpartyType       string         `json:"counterparty_type" yaml:"counterparty_type"`
	CounterpartyName       string         `json:"counterparty_name" yaml:"counterparty_name"`
	ContractType           string         `json:"contract_type" yaml:"contract_type"`
	EnergySaleType         string         `json:"energy_sale_type,omitempty" yaml:"energy_sale_type"`
	CurrencyCode           string         `json:"currency_code,omitempty" yaml:"currency_code"`
	SignedDate             *time.Time     `json:"signed_date,omitempty" yaml:"signed_date"`
	StartDate              *time.Time     `json:"start_date,omitempty" yaml:"start_date"`
	EndDate                *time.Time     `json:"end_date,omitempty" yaml:"end_date"`
	PaymentSecurityDetails string         `json:"payment_security_details,omitempty" yaml:"payment_security_details"`
	Metadata               map[string]any `json:"metadata,omitempty" yaml:"metadata"`
}

// StagedTariff references its contract by external contract id.
type StagedTariff struct {
	StagedRecord       `json:"-" yaml:"-"`
	ExternalContractID string           `json:"external_contract_id" yaml:"external_contract_id"`
	TariffGroupKey     string           `json:"tariff_group_key" yaml:"tariff_group_key"`
	ValidFrom          *time.Time       `json:"valid_from,omitempty" yaml:"valid_from"`
	ValidTo            *time.Time       `json:"valid_to,omitempty" yaml:"valid_to"`
	BaseRate           *decimal.Decimal `json:"base_rate,omitempty" yaml:"base_rate"`
	CurrencyCode       string           `json:"currency_code,omitempty" yaml:"currency_code"`
	Discount           *decimal.Decimal `json:"discount,omitempty" yaml:"discount"`
	FloorRate          *decimal.Decimal `json:"floor_rate,omitempty" yaml:"floor_rate"`
	CeilingRate        *decimal.Decimal `json:"ceiling_rate,omitempty" yaml:"ceiling_rate"`
	EscalationType     string           `json:"escalation_type,omitempty" yaml:"escalation_type"`
	EscalationRate     *decimal.Decimal `json:"escalation_rate,omitempty" yaml:"escalation_rate"`
	ExtraParams        map[string]any   `json:"extra_params,omitempty" yaml:"extra_params"`
}

// StagedAsset is insert-if-absent; there is nothing to merge.
type StagedAsset struct {
	StagedRecord `json:"-" yaml:"-"`
	AssetType    string           `json:"asset_type" yaml:"asset_type"`
	Model        string           `json:"model,omitempty" yaml:"model"`
	SerialNumber string           `json:"serial_number,omitempty" yaml:"serial_number"`
	Manufacturer string           `json:"manufacturer,omitempty" yaml:"manufacturer"`
	CapacityKW   *decimal.Decimal `json:"capacity_kw,omitempty" yaml:"capacity_kw"`
}

// StagedMeter is keyed by serial number within the project.
type StagedMeter struct {
	StagedRecord `json:"-" yaml:"-"`
	SerialNumber string `json:"serial_number" yaml:"serial_number"`
	Location     string `json:"location,omitempty" yaml:"location"`
	MeteringType string `json:"metering_type,omitempty" yaml:"metering_type"`
}

// StagedForecastMonth carries a complete recomputation for one month.
type StagedForecastMonth struct {
	StagedRecord     `json:"-" yaml:"-"`
	Month            time.Time        `json:"month" yaml:"month"`
	EnergyKWh        decimal.Decimal  `json:"energy_kwh" yaml:"energy_kwh"`
	Irradiation      *decimal.Decimal `json:"irradiation,omitempty" yaml:"irradiation"`
	PerformanceRatio *decimal.Decimal `json:"performance_ratio,omitempty" yaml:"performance_ratio"`
}

// StagedGuaranteeYear carries the guaranteed minimum for one operating year.
type StagedGuaranteeYear struct {
	StagedRecord        `json:"-" yaml:"-"`
	OperatingYear       int             `json:"operating_year" yaml:"operating_year"`
	GuaranteedEnergyKWh decimal.Decimal `json:"guaranteed_energy_kwh" yaml:"guaranteed_energy_kwh"`
}

// StagedContact references its counterparty by (type, name) natural key.
type StagedContact struct {
	StagedRecord     `json:"-" yaml:"-"`
	CounterpartyType string `json:"counterparty_type" yaml:"counterparty_type"`
	CounterpartyName string `json:"counterparty_name" yaml:"counterparty_name"`
	Email            string `json:"email" yaml:"email"`
	Role             string `json:"role" yaml:"role"`
	FullName         string `json:"full_name,omitempty" yaml:"full_name"`
	Phone            string `json:"phone,omitempty" yaml:"phone"`
}

// StagedProductAssignment references its contract by external contract id and
// the billing product by code.
type StagedProductAssignment struct {
	StagedRecord       `json:"-" yaml:"-"`
	ExternalContractID string `json:"external_contract_id" yaml:"external_contract_id"`
	ProductCode        string `json:"product_code" yaml:"product_code"`
	IsPrimary          bool   `json:"is_primary" yaml:"is_primary"`
}

// Stamp sets the batch id on the batch and every record it owns.
func (b *StagingBatch) Stamp(batchID uuid.UUID, loadedAt time.Time) {
	b.BatchID = batchID
	b.LoadedAt = loadedAt
	if b.Project != nil {
		b.Project.BatchID = batchID
	}
	for _, r := range b.Counterparties {
		r.BatchID = batchID
	}
	for _, r := range b.Contracts {
		r.BatchID = batchID
	}
	for _, r := range b.Tariffs {
		r.BatchID = batchID
	}
	for _, r := range b.Assets {
		r.BatchID = batchID
	}
	for _, r := range b.Meters {
		r.BatchID = batchID
	}
	for _, r := range b.ForecastMonths {
		r.BatchID = batchID
	}
	for _, r := range b.GuaranteeYears {
		r.BatchID = batchID
	}
	for _, r := range b.Contacts {
		r.BatchID = batchID
	}
	for _, r := range b.ProductAssignments {
		r.BatchID = batchID
	}
}
