//go:build integration

package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heliogrid/onboard-engine/pkg/apperrors"
	"github.com/heliogrid/onboard-engine/pkg/database"
	"github.com/heliogrid/onboard-engine/pkg/models"
	"github.com/heliogrid/onboard-engine/pkg/testhelpers"
)

// scopedCtx acquires a pooled connection, puts it in the context the way the
// pipeline does, and releases it when the test ends.
func scopedCtx(t *testing.T, db *database.DB) context.Context {
	t.Helper()
	scope, err := db.Acquire(context.Background())
	require.NoError(t, err)
	t.Cleanup(scope.Close)
	return database.SetScope(context.Background(), scope)
}

func seedOrganization(t *testing.T, db *database.DB, code string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := db.Pool.QueryRow(context.Background(), `
		INSERT INTO organizations (code, name) VALUES ($1, $2)
		ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, code, "Test Org "+code).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedProject(t *testing.T, ctx context.Context, orgID uuid.UUID) *models.Project {
	t.Helper()
	repo := NewProjectRepository()
	commissioned := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	project := &models.Project{
		OrganizationID:    orgID,
		ExternalProjectID: "P-" + uuid.NewString()[:8],
		Name:              "Test Park",
		CommissioningDate: &commissioned,
	}
	require.NoError(t, repo.Upsert(ctx, project))
	return project
}

func seedContract(t *testing.T, ctx context.Context, projectID uuid.UUID) *models.Contract {
	t.Helper()
	cpRepo := NewCounterpartyRepository()
	cp := &models.Counterparty{Type: models.CounterpartyOfftaker, Name: "Offtaker " + uuid.NewString()[:8]}
	require.NoError(t, cpRepo.Upsert(ctx, cp))

	repo := NewContractRepository()
	contract := &models.Contract{
		ProjectID:          projectID,
		CounterpartyID:     cp.ID,
		ExternalContractID: "C-" + uuid.NewString()[:8],
		ContractType:       "ppa",
		CurrencyCode:       "EUR",
	}
	require.NoError(t, repo.Upsert(ctx, contract))
	return contract
}

func TestCounterpartyRepository_UpsertMergesOnPresent(t *testing.T) {
	db := testhelpers.GetOnboardDB(t)
	ctx := scopedCtx(t, db.DB)
	repo := NewCounterpartyRepository()

	name := "Green Grid " + uuid.NewString()[:8]
	first := &models.Counterparty{
		Type:    models.CounterpartyOfftaker,
		Name:    name,
		Country: "DE",
		TaxID:   "DE-123",
	}
	require.NoError(t, repo.Upsert(ctx, first))

	// Omitted fields survive; present fields win. Name matching ignores case.
	second := &models.Counterparty{
		Type:  models.CounterpartyOfftaker,
		Name:  name,
		TaxID: "DE-456",
	}
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := repo.GetByTypeAndName(ctx, models.CounterpartyOfftaker, name)
	require.NoError(t, err)
	assert.Equal(t, "DE", got.Country)
	assert.Equal(t, "DE-456", got.TaxID)
}

func TestCounterpartyRepository_GetByTypeAndName_NotFound(t *testing.T) {
	db := testhelpers.GetOnboardDB(t)
	ctx := scopedCtx(t, db.DB)
	repo := NewCounterpartyRepository()

	_, err := repo.GetByTypeAndName(ctx, models.CounterpartyOfftaker, "Nobody "+uuid.NewString())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCounterpartyRepository_UpsertContactIdempotent(t *testing.T) {
	db := testhelpers.GetOnboardDB(t)
	ctx := scopedCtx(t, db.DB)
	repo := NewCounterpartyRepository()

	cp := &models.Counterparty{Type: models.CounterpartyLandlord, Name: "Landlord " + uuid.NewString()[:8]}
	require.NoError(t, repo.Upsert(ctx, cp))

	contact := &models.Contact{
		CounterpartyID: cp.ID,
		Email:          "Lease@Example.com",
		Role:           "legal",
		FullName:       "Avi Cohen",
	}
	require.NoError(t, repo.UpsertContact(ctx, contact))

	// Same email in different case, phone added, name omitted.
	again := &models.Contact{
		CounterpartyID: cp.ID,
		Email:          "lease@example.com",
		Role:           "legal",
		Phone:          "+972-50-0000000",
	}
	require.NoError(t, repo.UpsertContact(ctx, again))
	assert.Equal(t, contact.ID, again.ID)

	var fullName, phone string
	err := db.DB.Pool.QueryRow(context.Background(),
		`SELECT full_name, phone FROM contacts WHERE id = $1`, again.ID).Scan(&fullName, &phone)
	require.NoError(t, err)
	assert.Equal(t, "Avi Cohen", fullName)
	assert.Equal(t, "+972-50-0000000", phone)
}

func TestProjectRepository_UpsertMergesOnPresent(t *testing.T) {
	db := testhelpers.GetOnboardDB(t)
	ctx := scopedCtx(t, db.DB)
	orgID := seedOrganization(t, db.DB, "org-"+uuid.NewString()[:8])
	repo := NewProjectRepository()

	externalID := "P-" + uuid.NewString()[:8]
	capacity := decimal.RequireFromString("1874.4")
	first := &models.Project{
		OrganizationID:    orgID,
		ExternalProjectID: externalID,
		Name:              "Solar Park",
		CapacityKWP:       &capacity,
	}
	require.NoError(t, repo.Upsert(ctx, first))

	second := &models.Project{
		OrganizationID:    orgID,
		ExternalProjectID: externalID,
		Region:            "Bavaria",
	}
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := repo.GetByNaturalKey(ctx, orgID, externalID)
	require.NoError(t, err)
	assert.Equal(t, "Solar Park", got.Name)
	assert.Equal(t, "Bavaria", got.Region)
	require.NotNil(t, got.CapacityKWP)
	assert.True(t, got.CapacityKWP.Equal(capacity))
}

func TestContractRepository_UpsertPreservesOmittedFields(t *testing.T) {
	db := testhelpers.GetOnboardDB(t)
	ctx := scopedCtx(t, db.DB)
	orgID := seedOrganization(t, db.DB, "org-"+uuid.NewString()[:8])
	project := seedProject(t, ctx, orgID)

	cpRepo := NewCounterpartyRepository()
	cp := &models.Counterparty{Type: models.CounterpartyOfftaker, Name: "Utility " + uuid.NewString()[:8]}
	require.NoError(t, cpRepo.Upsert(ctx, cp))

	repo := NewContractRepository()
	start := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	externalID := "C-" + uuid.NewString()[:8]
	first := &models.Contract{
		ProjectID:              project.ID,
		CounterpartyID:         cp.ID,
		ExternalContractID:     externalID,
		ContractType:           "ppa",
		EnergySaleType:         "grid_export",
		CurrencyCode:           "EUR",
		StartDate:              &start,
		PaymentSecurityDetails: "bank guarantee, 3 months",
		Metadata:               map[string]any{"tranche": "A"},
	}
	require.NoError(t, repo.Upsert(ctx, first))

	second := &models.Contract{
		ProjectID:          project.ID,
		CounterpartyID:     cp.ID,
		ExternalContractID: externalID,
		ContractType:       "ppa",
		Metadata:           map[string]any{"amendment": 1},
	}
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	got, err := repo.GetByNaturalKey(ctx, project.ID, externalID)
	require.NoError(t, err)
	assert.Equal(t, "grid_export", got.EnergySaleType)
	assert.Equal(t, "EUR", got.CurrencyCode)
	assert.Equal(t, "bank guarantee, 3 months", got.PaymentSecurityDetails)
	require.NotNil(t, got.StartDate)
	assert.True(t, got.StartDate.Equal(start))
	// Metadata keys accumulate across batches.
	assert.Equal(t, "A", got.Metadata["tranche"])
	assert.EqualValues(t, 1, got.Metadata["amendment"])
}

func TestContractRepository_AssignmentPrimaryReplacedWholesale(t *testing.T) {
	db := testhelpers.GetOnboardDB(t)
	ctx := scopedCtx(t, db.DB)
	orgID := seedOrganization(t, db.DB, "org-"+uuid.NewString()[:8])
	project := seedProject(t, ctx, orgID)
	contract := seedContract(t, ctx, project.ID)

	var productID uuid.UUID
	err := db.DB.Pool.QueryRow(context.Background(),
		`SELECT id FROM billing_products WHERE code = 'energy_sale' AND organization_id IS NULL`).Scan(&productID)
	require.NoError(t, err)

	repo := NewContractRepository()
	assignment := &models.BillingProductAssignment{
		ContractID: contract.ID,
		ProductID:  productID,
		IsPrimary:  true,
	}
	require.NoError(t, repo.UpsertAssignment(ctx, assignment))

	total, primary, err := repo.AssignmentCounts(ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, primary)

	// A resubmit that demotes the product demotes the row, it does not merge.
	demoted := &models.BillingProductAssignment{
		ContractID: contract.ID,
		ProductID:  productID,
		IsPrimary:  false,
	}
	require.NoError(t, repo.UpsertAssignment(ctx, demoted))
	assert.Equal(t, assignment.ID, demoted.ID)

	total, primary, err = repo.AssignmentCounts(ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, primary)
}

func TestContractRepository_PrimarySwitchAcrossBatches(t *testing.T) {
	db := testhelpers.GetOnboardDB(t)
	ctx := scopedCtx(t, db.DB)
	orgID := seedOrganization(t, db.DB, "org-"+uuid.NewString()[:8])
	project := seedProject(t, ctx, orgID)
	contract := seedContract(t, ctx, project.ID)

	var energySaleID, omServiceID uuid.UUID
	err := db.DB.Pool.QueryRow(context.Background(),
		`SELECT id FROM billing_products WHERE code = 'energy_sale' AND organization_id IS NULL`).Scan(&energySaleID)
	require.NoError(t, err)
	err = db.DB.Pool.QueryRow(context.Background(),
		`SELECT id FROM billing_products WHERE code = 'om_service' AND organization_id IS NULL`).Scan(&omServiceID)
	require.NoError(t, err)

	repo := NewContractRepository()
	require.NoError(t, repo.UpsertAssignment(ctx, &models.BillingProductAssignment{
		ContractID: contract.ID,
		ProductID:  energySaleID,
		IsPrimary:  true,
	}))

	// A later batch moves primary to the O&M product. The promotion lands
	// before the demotion, while energy_sale still holds primary; the upsert
	// must take primary over rather than trip the one-primary index.
	require.NoError(t, repo.UpsertAssignment(ctx, &models.BillingProductAssignment{
		ContractID: contract.ID,
		ProductID:  omServiceID,
		IsPrimary:  true,
	}))
	require.NoError(t, repo.UpsertAssignment(ctx, &models.BillingProductAssignment{
		ContractID: contract.ID,
		ProductID:  energySaleID,
		IsPrimary:  false,
	}))

	total, primary, err := repo.AssignmentCounts(ctx, contract.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, primary)

	var primaryProduct uuid.UUID
	err = db.DB.Pool.QueryRow(context.Background(),
		`SELECT product_id FROM billing_product_assignments WHERE contract_id = $1 AND is_primary`,
		contract.ID).Scan(&primaryProduct)
	require.NoError(t, err)
	assert.Equal(t, omServiceID, primaryProduct)
}

func TestTariffRepository_UpsertFlipsCurrentWithinGroup(t *testing.T) {
	db := testhelpers.GetOnboardDB(t)
	ctx := scopedCtx(t, db.DB)
	orgID := seedOrganization(t, db.DB, "org-"+uuid.NewString()[:8])
	project := seedProject(t, ctx, orgID)
	contract := seedContract(t, ctx, project.ID)

	repo := NewTariffRepository()
	from1 := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	to1 := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)
	first := &models.Tariff{
		ContractID:     contract.ID,
		TariffGroupKey: "energy",
		ValidFrom:      &from1,
		ValidTo:        &to1,
		BaseRate:       decimalPtr("0.142"),
	}
	require.NoError(t, repo.Upsert(ctx, first))
	assert.True(t, first.IsCurrent)

	from2 := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	second := &models.Tariff{
		ContractID:     contract.ID,
		TariffGroupKey: "energy",
		ValidFrom:      &from2,
		BaseRate:       decimalPtr("0.151"),
	}
	require.NoError(t, repo.Upsert(ctx, second))
	assert.True(t, second.IsCurrent)
	assert.NotEqual(t, first.ID, second.ID)

	tariffs, err := repo.ListByContract(ctx, contract.ID)
	require.NoError(t, err)
	require.Len(t, tariffs, 2)
	current := 0
	for _, tariff := range tariffs {
		if tariff.IsCurrent {
			current++
			assert.Equal(t, second.ID, tariff.ID)
		}
	}
	assert.Equal(t, 1, current)
}

func TestTariffRepository_UpsertMergesRatesAndParams(t *testing.T) {
	db := testhelpers.GetOnboardDB(t)
	ctx := scopedCtx(t, db.DB)
	orgID := seedOrganization(t, db.DB, "org-"+uuid.NewString()[:8])
	project := seedProject(t, ctx, orgID)
	contract := seedContract(t, ctx, project.ID)

	repo := NewTariffRepository()
	first := &models.Tariff{
		ContractID:     contract.ID,
		TariffGroupKey: "energy",
		BaseRate:       decimalPtr("0.142"),
		Discount:       decimalPtr("0.21"),
		Params:         map[string]any{"indexation": "cpi"},
	}
	require.NoError(t, repo.Upsert(ctx, first))

	second := &models.Tariff{
		ContractID:     contract.ID,
		TariffGroupKey: "energy",
		FloorRate:      decimalPtr("0.079"),
		Params:         map[string]any{"cap_year": 2030},
	}
	require.NoError(t, repo.Upsert(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	tariffs, err := repo.ListByContract(ctx, contract.ID)
	require.NoError(t, err)
	require.Len(t, tariffs, 1)
	merged := tariffs[0]
	require.NotNil(t, merged.BaseRate)
	assert.True(t, merged.BaseRate.Equal(decimal.RequireFromString("0.142")))
	require.NotNil(t, merged.Discount)
	require.NotNil(t, merged.FloorRate)
	assert.Equal(t, "cpi", merged.Params["indexation"])
	assert.EqualValues(t, 2030, merged.Params["cap_year"])
}

func TestTariffRepository_InitialRatePeriodInsertOnly(t *testing.T) {
	db := testhelpers.GetOnboardDB(t)
	ctx := scopedCtx(t, db.DB)
	orgID := seedOrganization(t, db.DB, "org-"+uuid.NewString()[:8])
	project := seedProject(t, ctx, orgID)
	contract := seedContract(t, ctx, project.ID)

	repo := NewTariffRepository()
	tariff := &models.Tariff{
		ContractID:     contract.ID,
		TariffGroupKey: "energy",
		BaseRate:       decimalPtr("0.142"),
	}
	require.NoError(t, repo.Upsert(ctx, tariff))

	rp := &models.RatePeriod{
		TariffID:     tariff.ID,
		ContractYear: 1,
		Rate:         decimal.RequireFromString("0.142"),
	}
	require.NoError(t, repo.InsertInitialRatePeriod(ctx, rp))

	// A resubmitted batch with a corrected base rate must not rewrite year 1.
	again := &models.RatePeriod{
		TariffID:     tariff.ID,
		ContractYear: 1,
		Rate:         decimal.RequireFromString("0.150"),
	}
	require.NoError(t, repo.InsertInitialRatePeriod(ctx, again))

	current, err := repo.CountCurrentRatePeriods(ctx, tariff.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, current)

	var rate decimal.Decimal
	err = db.DB.Pool.QueryRow(context.Background(),
		`SELECT rate FROM rate_periods WHERE tariff_id = $1 AND contract_year = 1`, tariff.ID).Scan(&rate)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.142")))
}

func TestAssetRepository_InsertIfAbsentNeverUpdates(t *testing.T) {
	db := testhelpers.GetOnboardDB(t)
	ctx := scopedCtx(t, db.DB)
	orgID := seedOrganization(t, db.DB, "org-"+uuid.NewString()[:8])
	project := seedProject(t, ctx, orgID)

	repo := NewAssetRepository()
	asset := &models.Asset{
		ProjectID:    project.ID,
		AssetType:    "inverter",
		Model:        "SUN2000-100KTL",
		SerialNumber: "INV-" + uuid.NewString()[:8],
		Manufacturer: "Huawei",
	}
	require.NoError(t, repo.InsertIfAbsent(ctx, asset))
	require.NoError(t, repo.InsertIfAbsent(ctx, asset))

	n, err := repo.CountAssets(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAssetRepository_UpsertMeterMergesOnPresent(t *testing.T) {
	db := testhelpers.GetOnboardDB(t)
	ctx := scopedCtx(t, db.DB)
	orgID := seedOrganization(t, db.DB, "org-"+uuid.NewString()[:8])
	project := seedProject(t, ctx, orgID)

	repo := NewAssetRepository()
	serial := "M-" + uuid.NewString()[:8]
	first := &models.Meter{
		ProjectID:    project.ID,
		SerialNumber: serial,
		Location:     "substation A",
	}
	require.NoError(t, repo.UpsertMeter(ctx, first))

	second := &models.Meter{
		ProjectID:    project.ID,
		SerialNumber: serial,
		MeteringType: "production",
	}
	require.NoError(t, repo.UpsertMeter(ctx, second))
	assert.Equal(t, first.ID, second.ID)

	var location, meteringType string
	err := db.DB.Pool.QueryRow(context.Background(),
		`SELECT location, metering_type FROM meters WHERE id = $1`, second.ID).Scan(&location, &meteringType)
	require.NoError(t, err)
	assert.Equal(t, "substation A", location)
	assert.Equal(t, "production", meteringType)

	n, err := repo.CountMeters(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestProductionRepository_ReplaceWholesale(t *testing.T) {
	db := testhelpers.GetOnboardDB(t)
	ctx := scopedCtx(t, db.DB)
	orgID := seedOrganization(t, db.DB, "org-"+uuid.NewString()[:8])
	project := seedProject(t, ctx, orgID)

	repo := NewProductionRepository()
	month := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	fm := &models.ForecastMonth{
		ProjectID:   project.ID,
		Month:       month,
		EnergyKWh:   decimal.RequireFromString("311000"),
		Irradiation: decimalPtr("182.4"),
	}
	require.NoError(t, repo.ReplaceForecastMonth(ctx, fm))

	// A recomputed forecast replaces every value, including dropping the
	// irradiation it no longer carries.
	recomputed := &models.ForecastMonth{
		ProjectID: project.ID,
		Month:     month,
		EnergyKWh: decimal.RequireFromString("318250"),
	}
	require.NoError(t, repo.ReplaceForecastMonth(ctx, recomputed))
	assert.Equal(t, fm.ID, recomputed.ID)

	n, err := repo.CountForecastMonths(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var energy decimal.Decimal
	var irradiation *decimal.Decimal
	err = db.DB.Pool.QueryRow(context.Background(),
		`SELECT energy_kwh, irradiation FROM forecast_months WHERE id = $1`, recomputed.ID).
		Scan(&energy, &irradiation)
	require.NoError(t, err)
	assert.True(t, energy.Equal(decimal.RequireFromString("318250")))
	assert.Nil(t, irradiation)

	gy := &models.GuaranteeYear{
		ProjectID:           project.ID,
		OperatingYear:       1,
		GuaranteedEnergyKWh: decimal.RequireFromString("3249363"),
	}
	require.NoError(t, repo.ReplaceGuaranteeYear(ctx, gy))
	corrected := &models.GuaranteeYear{
		ProjectID:           project.ID,
		OperatingYear:       1,
		GuaranteedEnergyKWh: decimal.RequireFromString("3226617"),
	}
	require.NoError(t, repo.ReplaceGuaranteeYear(ctx, corrected))
	assert.Equal(t, gy.ID, corrected.ID)

	years, err := repo.ListGuaranteeYears(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, years, 1)
	assert.True(t, years[0].GuaranteedEnergyKWh.Equal(decimal.RequireFromString("3226617")))
}

func TestLookupRepository_CodesAndProducts(t *testing.T) {
	db := testhelpers.GetOnboardDB(t)
	ctx := scopedCtx(t, db.DB)
	repo := NewLookupRepository()

	ok, err := repo.CurrencyExists(ctx, "EUR")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.CurrencyExists(ctx, "XXX")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.GetOrganizationByCode(ctx, "no-such-org-"+uuid.NewString()[:8])
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	orgID := seedOrganization(t, db.DB, "org-"+uuid.NewString()[:8])

	// Global product resolves for any organization.
	global, err := repo.GetBillingProduct(ctx, orgID, "energy_sale")
	require.NoError(t, err)
	assert.Nil(t, global.OrganizationID)

	// An org-scoped product with the same code shadows the global one.
	_, err = db.DB.Pool.Exec(context.Background(),
		`INSERT INTO billing_products (organization_id, code, name) VALUES ($1, 'energy_sale', 'Custom energy sale')`,
		orgID)
	require.NoError(t, err)

	scoped, err := repo.GetBillingProduct(ctx, orgID, "energy_sale")
	require.NoError(t, err)
	require.NotNil(t, scoped.OrganizationID)
	assert.Equal(t, orgID, *scoped.OrganizationID)
	assert.Equal(t, "Custom energy sale", scoped.Name)
}

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}
