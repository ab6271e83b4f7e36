package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heliogrid/onboard-engine/pkg/apperrors"
	"github.com/heliogrid/onboard-engine/pkg/models"
)

// mockStore satisfies Store without a database. Transact runs fn directly and
// records whether the unit of work rolled back.
type mockStore struct {
	transacted int
	rolledBack bool
}

func (m *mockStore) ReadScope(ctx context.Context) (context.Context, func(), error) {
	return ctx, func() {}, nil
}

func (m *mockStore) Transact(_ context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	m.transacted++
	if err := fn(context.Background()); err != nil {
		m.rolledBack = true
		return err
	}
	return nil
}

// mockLookupRepo resolves organizations, codes, and products from fixed maps.
type mockLookupRepo struct {
	orgs            map[string]*models.Organization
	contractTypes   map[string]bool
	energySaleTypes map[string]bool
	escalationTypes map[string]bool
	currencies      map[string]bool
	assetTypes      map[string]bool
	products        map[string]*models.BillingProduct
}

func newMockLookupRepo() *mockLookupRepo {
	org := &models.Organization{ID: uuid.New(), Code: "acme-renewables", Name: "ACME Renewables"}
	return &mockLookupRepo{
		orgs:            map[string]*models.Organization{org.Code: org},
		contractTypes:   map[string]bool{"ppa": true, "lease": true},
		energySaleTypes: map[string]bool{"self_consumption": true, "grid_export": true},
		escalationTypes: map[string]bool{"none": true, "cpi": true},
		currencies:      map[string]bool{"EUR": true, "ILS": true},
		assetTypes:      map[string]bool{"inverter": true, "panel": true},
		products: map[string]*models.BillingProduct{
			"energy_sale": {ID: uuid.New(), Code: "energy_sale", Name: "Energy sale"},
			"om_service":  {ID: uuid.New(), Code: "om_service", Name: "O&M service fee"},
		},
	}
}

func (m *mockLookupRepo) GetOrganizationByCode(_ context.Context, code string) (*models.Organization, error) {
	if org, ok := m.orgs[code]; ok {
		return org, nil
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockLookupRepo) ContractTypeExists(_ context.Context, code string) (bool, error) {
	return m.contractTypes[code], nil
}

func (m *mockLookupRepo) EnergySaleTypeExists(_ context.Context, code string) (bool, error) {
	return m.energySaleTypes[code], nil
}

func (m *mockLookupRepo) EscalationTypeExists(_ context.Context, code string) (bool, error) {
	return m.escalationTypes[code], nil
}

func (m *mockLookupRepo) CurrencyExists(_ context.Context, code string) (bool, error) {
	return m.currencies[code], nil
}

func (m *mockLookupRepo) AssetTypeExists(_ context.Context, code string) (bool, error) {
	return m.assetTypes[code], nil
}

func (m *mockLookupRepo) GetBillingProduct(_ context.Context, _ uuid.UUID, code string) (*models.BillingProduct, error) {
	if p, ok := m.products[code]; ok {
		return p, nil
	}
	return nil, apperrors.ErrNotFound
}

// mockCounterpartyRepo emulates natural-key upserts in memory.
type mockCounterpartyRepo struct {
	counterparties map[string]*models.Counterparty
	contacts       map[string]*models.Contact
}

func newMockCounterpartyRepo() *mockCounterpartyRepo {
	return &mockCounterpartyRepo{
		counterparties: make(map[string]*models.Counterparty),
		contacts:       make(map[string]*models.Contact),
	}
}

func cpMapKey(cpType, name string) string {
	return cpType + "\x00" + strings.ToLower(name)
}

func (m *mockCounterpartyRepo) Upsert(_ context.Context, cp *models.Counterparty) error {
	key := cpMapKey(cp.Type, cp.Name)
	if existing, ok := m.counterparties[key]; ok {
		if cp.RegistrationNumber != "" {
			existing.RegistrationNumber = cp.RegistrationNumber
		}
		if cp.TaxID != "" {
			existing.TaxID = cp.TaxID
		}
		if cp.Address != "" {
			existing.Address = cp.Address
		}
		if cp.Country != "" {
			existing.Country = cp.Country
		}
		*cp = *existing
		return nil
	}
	cp.ID = uuid.New()
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	stored := *cp
	m.counterparties[key] = &stored
	return nil
}

func (m *mockCounterpartyRepo) GetByTypeAndName(_ context.Context, cpType, name string) (*models.Counterparty, error) {
	if cp, ok := m.counterparties[cpMapKey(cpType, name)]; ok {
		return cp, nil
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockCounterpartyRepo) UpsertContact(_ context.Context, contact *models.Contact) error {
	key := contact.CounterpartyID.String() + "\x00" + strings.ToLower(contact.Email) + "\x00" + contact.Role
	if existing, ok := m.contacts[key]; ok {
		if contact.FullName != "" {
			existing.FullName = contact.FullName
		}
		if contact.Phone != "" {
			existing.Phone = contact.Phone
		}
		*contact = *existing
		return nil
	}
	contact.ID = uuid.New()
	contact.Active = true
	stored := *contact
	m.contacts[key] = &stored
	return nil
}

// mockProjectRepo emulates the project natural-key upsert.
type mockProjectRepo struct {
	projects map[string]*models.Project
}

func newMockProjectRepo() *mockProjectRepo {
	return &mockProjectRepo{projects: make(map[string]*models.Project)}
}

func projectMapKey(orgID uuid.UUID, externalID string) string {
	return orgID.String() + "\x00" + externalID
}

func (m *mockProjectRepo) Upsert(_ context.Context, project *models.Project) error {
	key := projectMapKey(project.OrganizationID, project.ExternalProjectID)
	if existing, ok := m.projects[key]; ok {
		if project.Name != "" {
			existing.Name = project.Name
		}
		if project.CapacityKWP != nil {
			existing.CapacityKWP = project.CapacityKWP
		}
		if project.CommissioningDate != nil {
			existing.CommissioningDate = project.CommissioningDate
		}
		*project = *existing
		return nil
	}
	project.ID = uuid.New()
	stored := *project
	m.projects[key] = &stored
	return nil
}

func (m *mockProjectRepo) GetByNaturalKey(_ context.Context, orgID uuid.UUID, externalID string) (*models.Project, error) {
	if p, ok := m.projects[projectMapKey(orgID, externalID)]; ok {
		return p, nil
	}
	return nil, apperrors.ErrNotFound
}

// mockContractRepo emulates contract and assignment upserts.
type mockContractRepo struct {
	contracts   map[string]*models.Contract
	assignments map[string]*models.BillingProductAssignment
}

func newMockContractRepo() *mockContractRepo {
	return &mockContractRepo{
		contracts:   make(map[string]*models.Contract),
		assignments: make(map[string]*models.BillingProductAssignment),
	}
}

func (m *mockContractRepo) Upsert(_ context.Context, contract *models.Contract) error {
	key := contract.ProjectID.String() + "\x00" + contract.ExternalContractID
	if existing, ok := m.contracts[key]; ok {
		existing.CounterpartyID = contract.CounterpartyID
		existing.ContractType = contract.ContractType
		if contract.EnergySaleType != "" {
			existing.EnergySaleType = contract.EnergySaleType
		}
		if contract.CurrencyCode != "" {
			existing.CurrencyCode = contract.CurrencyCode
		}
		if contract.SignedDate != nil {
			existing.SignedDate = contract.SignedDate
		}
		if contract.StartDate != nil {
			existing.StartDate = contract.StartDate
		}
		if contract.EndDate != nil {
			existing.EndDate = contract.EndDate
		}
		if contract.PaymentSecurityDetails != "" {
			existing.PaymentSecurityDetails = contract.PaymentSecurityDetails
		}
		for k, v := range contract.Metadata {
			if existing.Metadata == nil {
				existing.Metadata = map[string]any{}
			}
			existing.Metadata[k] = v
		}
		*contract = *existing
		return nil
	}
	contract.ID = uuid.New()
	stored := *contract
	m.contracts[key] = &stored
	return nil
}

func (m *mockContractRepo) GetByNaturalKey(_ context.Context, projectID uuid.UUID, externalID string) (*models.Contract, error) {
	if c, ok := m.contracts[projectID.String()+"\x00"+externalID]; ok {
		return c, nil
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockContractRepo) ListByProject(_ context.Context, projectID uuid.UUID) ([]*models.Contract, error) {
	var out []*models.Contract
	for _, c := range m.contracts {
		if c.ProjectID == projectID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockContractRepo) CountByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	contracts, _ := m.ListByProject(ctx, projectID)
	return len(contracts), nil
}

func (m *mockContractRepo) UpsertAssignment(_ context.Context, a *models.BillingProductAssignment) error {
	if a.IsPrimary {
		for _, existing := range m.assignments {
			if existing.ContractID == a.ContractID && existing.ProductID != a.ProductID {
				existing.IsPrimary = false
			}
		}
	}
	key := a.ContractID.String() + "\x00" + a.ProductID.String()
	if existing, ok := m.assignments[key]; ok {
		existing.IsPrimary = a.IsPrimary
		*a = *existing
		return nil
	}
	a.ID = uuid.New()
	stored := *a
	m.assignments[key] = &stored
	return nil
}

func (m *mockContractRepo) AssignmentCounts(_ context.Context, contractID uuid.UUID) (int, int, error) {
	total, primary := 0, 0
	for _, a := range m.assignments {
		if a.ContractID == contractID {
			total++
			if a.IsPrimary {
				primary++
			}
		}
	}
	return total, primary, nil
}

func (m *mockContractRepo) CountAssignmentsByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	contracts, _ := m.ListByProject(ctx, projectID)
	n := 0
	for _, c := range contracts {
		total, _, _ := m.AssignmentCounts(ctx, c.ID)
		n += total
	}
	return n, nil
}

// mockTariffRepo emulates the current-flag flip and insert-only rate periods.
type mockTariffRepo struct {
	contractRepo *mockContractRepo
	tariffs      map[string]*models.Tariff
	ratePeriods  map[string]*models.RatePeriod
}

func newMockTariffRepo(contractRepo *mockContractRepo) *mockTariffRepo {
	return &mockTariffRepo{
		contractRepo: contractRepo,
		tariffs:      make(map[string]*models.Tariff),
		ratePeriods:  make(map[string]*models.RatePeriod),
	}
}

func (m *mockTariffRepo) Upsert(_ context.Context, tariff *models.Tariff) error {
	key := tariff.ContractID.String() + "\x00" + tariff.TariffGroupKey
	if tariff.ValidFrom != nil {
		key += "\x00" + tariff.ValidFrom.Format("2006-01-02")
	}
	if tariff.ValidTo != nil {
		key += "\x00" + tariff.ValidTo.Format("2006-01-02")
	}
	if existing, ok := m.tariffs[key]; ok {
		if tariff.BaseRate != nil {
			existing.BaseRate = tariff.BaseRate
		}
		if tariff.Discount != nil {
			existing.Discount = tariff.Discount
		}
		if tariff.FloorRate != nil {
			existing.FloorRate = tariff.FloorRate
		}
		if tariff.CeilingRate != nil {
			existing.CeilingRate = tariff.CeilingRate
		}
		existing.IsCurrent = true
		*tariff = *existing
		return nil
	}
	for _, t := range m.tariffs {
		if t.ContractID == tariff.ContractID && t.TariffGroupKey == tariff.TariffGroupKey {
			t.IsCurrent = false
		}
	}
	tariff.ID = uuid.New()
	tariff.IsCurrent = true
	stored := *tariff
	m.tariffs[key] = &stored
	return nil
}

func (m *mockTariffRepo) ListByContract(_ context.Context, contractID uuid.UUID) ([]*models.Tariff, error) {
	var out []*models.Tariff
	for _, t := range m.tariffs {
		if t.ContractID == contractID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockTariffRepo) InsertInitialRatePeriod(_ context.Context, rp *models.RatePeriod) error {
	key := rp.TariffID.String() + "\x001"
	if _, ok := m.ratePeriods[key]; ok {
		return nil
	}
	rp.ID = uuid.New()
	rp.IsCurrent = true
	stored := *rp
	m.ratePeriods[key] = &stored
	return nil
}

func (m *mockTariffRepo) CountCurrentRatePeriods(_ context.Context, tariffID uuid.UUID) (int, error) {
	n := 0
	for _, rp := range m.ratePeriods {
		if rp.TariffID == tariffID && rp.IsCurrent {
			n++
		}
	}
	return n, nil
}

func (m *mockTariffRepo) CountRatePeriodsByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	contracts, _ := m.contractRepo.ListByProject(ctx, projectID)
	n := 0
	for _, c := range contracts {
		tariffs, _ := m.ListByContract(ctx, c.ID)
		for _, t := range tariffs {
			for _, rp := range m.ratePeriods {
				if rp.TariffID == t.ID {
					n++
				}
			}
		}
	}
	return n, nil
}

// mockAssetRepo emulates insert-if-absent assets and merged meters.
type mockAssetRepo struct {
	assets map[string]*models.Asset
	meters map[string]*models.Meter
}

func newMockAssetRepo() *mockAssetRepo {
	return &mockAssetRepo{
		assets: make(map[string]*models.Asset),
		meters: make(map[string]*models.Meter),
	}
}

func (m *mockAssetRepo) InsertIfAbsent(_ context.Context, asset *models.Asset) error {
	key := asset.ProjectID.String() + "\x00" + asset.AssetType + "\x00" + asset.Model + "\x00" + asset.SerialNumber
	if _, ok := m.assets[key]; ok {
		return nil
	}
	asset.ID = uuid.New()
	stored := *asset
	m.assets[key] = &stored
	return nil
}

func (m *mockAssetRepo) UpsertMeter(_ context.Context, meter *models.Meter) error {
	key := meter.ProjectID.String() + "\x00" + meter.SerialNumber
	if existing, ok := m.meters[key]; ok {
		if meter.Location != "" {
			existing.Location = meter.Location
		}
		if meter.MeteringType != "" {
			existing.MeteringType = meter.MeteringType
		}
		*meter = *existing
		return nil
	}
	meter.ID = uuid.New()
	stored := *meter
	m.meters[key] = &stored
	return nil
}

func (m *mockAssetRepo) CountAssets(_ context.Context, projectID uuid.UUID) (int, error) {
	n := 0
	for _, a := range m.assets {
		if a.ProjectID == projectID {
			n++
		}
	}
	return n, nil
}

func (m *mockAssetRepo) CountMeters(_ context.Context, projectID uuid.UUID) (int, error) {
	n := 0
	for _, mt := range m.meters {
		if mt.ProjectID == projectID {
			n++
		}
	}
	return n, nil
}

// mockProductionRepo emulates replace-on-conflict forecasts and guarantees.
type mockProductionRepo struct {
	forecasts  map[string]*models.ForecastMonth
	guarantees map[string]*models.GuaranteeYear
}

func newMockProductionRepo() *mockProductionRepo {
	return &mockProductionRepo{
		forecasts:  make(map[string]*models.ForecastMonth),
		guarantees: make(map[string]*models.GuaranteeYear),
	}
}

func (m *mockProductionRepo) ReplaceForecastMonth(_ context.Context, fm *models.ForecastMonth) error {
	key := fm.ProjectID.String() + "\x00" + fm.Month.Format("2006-01")
	if existing, ok := m.forecasts[key]; ok {
		existing.EnergyKWh = fm.EnergyKWh
		existing.Irradiation = fm.Irradiation
		existing.PerformanceRatio = fm.PerformanceRatio
		*fm = *existing
		return nil
	}
	fm.ID = uuid.New()
	stored := *fm
	m.forecasts[key] = &stored
	return nil
}

func (m *mockProductionRepo) ReplaceGuaranteeYear(_ context.Context, gy *models.GuaranteeYear) error {
	key := gy.ProjectID.String() + "\x00" + strconv.Itoa(gy.OperatingYear)
	if existing, ok := m.guarantees[key]; ok {
		existing.GuaranteedEnergyKWh = gy.GuaranteedEnergyKWh
		*gy = *existing
		return nil
	}
	gy.ID = uuid.New()
	stored := *gy
	m.guarantees[key] = &stored
	return nil
}

func (m *mockProductionRepo) ListGuaranteeYears(_ context.Context, projectID uuid.UUID) ([]*models.GuaranteeYear, error) {
	var out []*models.GuaranteeYear
	for _, gy := range m.guarantees {
		if gy.ProjectID == projectID {
			out = append(out, gy)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].OperatingYear < out[i].OperatingYear {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *mockProductionRepo) CountForecastMonths(_ context.Context, projectID uuid.UUID) (int, error) {
	n := 0
	for _, fm := range m.forecasts {
		if fm.ProjectID == projectID {
			n++
		}
	}
	return n, nil
}

func (m *mockProductionRepo) CountGuaranteeYears(_ context.Context, projectID uuid.UUID) (int, error) {
	n := 0
	for _, gy := range m.guarantees {
		if gy.ProjectID == projectID {
			n++
		}
	}
	return n, nil
}
