package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/heliogrid/onboard-engine/pkg/apperrors"
	"github.com/heliogrid/onboard-engine/pkg/models"
	"github.com/heliogrid/onboard-engine/pkg/repositories"
)

// Store provides scoped database access for the pipeline. *database.DB
// satisfies it; tests substitute a pass-through.
type Store interface {
	// ReadScope returns a context carrying a read-only connection scope and
	// a cleanup function.
	ReadScope(ctx context.Context) (context.Context, func(), error)

	// Transact runs fn inside one transaction with organization context set.
	// fn returning an error rolls back every write it made.
	Transact(ctx context.Context, orgID uuid.UUID, fn func(ctx context.Context) error) error
}

// OnboardingService commits one staged batch as a single atomic unit:
// preflight validation, dependency-ordered upserts, post-load assertions.
type OnboardingService interface {
	// Onboard registers, validates, applies, and asserts a batch. On success
	// it returns the committed row counts; on failure no durable change
	// remains, whether the batch failed preflight (*PreflightError, nothing
	// written) or post-load assertions (*AssertionError, rolled back).
	Onboard(ctx context.Context, batch *models.StagingBatch) (*models.BatchReport, error)
}

type onboardingService struct {
	store            Store
	lookupRepo       repositories.LookupRepository
	counterpartyRepo repositories.CounterpartyRepository
	projectRepo      repositories.ProjectRepository
	contractRepo     repositories.ContractRepository
	tariffRepo       repositories.TariffRepository
	assetRepo        repositories.AssetRepository
	productionRepo   repositories.ProductionRepository
	logger           *zap.Logger
}

// NewOnboardingService creates a new OnboardingService.
func NewOnboardingService(
	store Store,
	lookupRepo repositories.LookupRepository,
	counterpartyRepo repositories.CounterpartyRepository,
	projectRepo repositories.ProjectRepository,
	contractRepo repositories.ContractRepository,
	tariffRepo repositories.TariffRepository,
	assetRepo repositories.AssetRepository,
	productionRepo repositories.ProductionRepository,
	logger *zap.Logger,
) OnboardingService {
	return &onboardingService{
		store:            store,
		lookupRepo:       lookupRepo,
		counterpartyRepo: counterpartyRepo,
		projectRepo:      projectRepo,
		contractRepo:     contractRepo,
		tariffRepo:       tariffRepo,
		assetRepo:        assetRepo,
		productionRepo:   productionRepo,
		logger:           logger.Named("onboarding"),
	}
}

var _ OnboardingService = (*onboardingService)(nil)

// RegisterBatch stamps a fresh batch id and load timestamp onto the batch and
// every record it owns. Pure allocation; it cannot fail. If the batch carries
// no provenance label, source is used.
func RegisterBatch(batch *models.StagingBatch, source string) uuid.UUID {
	if batch.Source == "" {
		batch.Source = source
	}
	id := uuid.New()
	batch.Stamp(id, time.Now().UTC())
	return id
}

func (s *onboardingService) Onboard(ctx context.Context, batch *models.StagingBatch) (*models.BatchReport, error) {
	if batch.BatchID == uuid.Nil {
		RegisterBatch(batch, "")
	}
	logger := s.logger.With(zap.String("batch_id", batch.BatchID.String()), zap.String("source", batch.Source))

	lifecycle := &batchLifecycle{}
	if err := lifecycle.to(stateValidating); err != nil {
		return nil, err
	}

	// Preflight is read-only; a rejected batch has written nothing.
	readCtx, release, err := s.store.ReadScope(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire read scope: %w", err)
	}
	refs, violations, err := s.preflight(readCtx, batch)
	release()
	if err != nil {
		_ = lifecycle.to(stateRolledBack)
		return nil, fmt.Errorf("preflight failed: %w", err)
	}
	if len(violations) > 0 {
		_ = lifecycle.to(stateRolledBack)
		logger.Warn("batch rejected in preflight", zap.Int("violations", len(violations)))
		return nil, &PreflightError{BatchID: batch.BatchID, Violations: violations}
	}

	// Applying and asserting share one transaction; any error unwinds every
	// write made by the batch.
	var report *models.BatchReport
	err = s.store.Transact(ctx, refs.org.ID, func(txCtx context.Context) error {
		if err := lifecycle.to(stateApplying); err != nil {
			return err
		}
		applied, err := s.apply(txCtx, batch, refs)
		if err != nil {
			return err
		}

		if err := lifecycle.to(stateAsserting); err != nil {
			return err
		}
		counts, warnings, assertViolations, err := s.assertCommitted(txCtx, batch, applied)
		if err != nil {
			return fmt.Errorf("post-load assertion failed: %w", err)
		}
		if len(assertViolations) > 0 {
			return &AssertionError{BatchID: batch.BatchID, Violations: assertViolations}
		}

		report = &models.BatchReport{
			BatchID:     batch.BatchID,
			Source:      batch.Source,
			ProjectID:   applied.projectID,
			CommittedAt: time.Now().UTC(),
			RowCounts:   counts,
			Warnings:    warnings,
		}
		return nil
	})
	if err != nil {
		_ = lifecycle.to(stateRolledBack)
		var assertErr *AssertionError
		if errors.As(err, &assertErr) {
			logger.Warn("batch rolled back by post-load assertions", zap.Int("violations", len(assertErr.Violations)))
		} else {
			logger.Error("batch rolled back", zap.Error(err))
		}
		return nil, err
	}

	if err := lifecycle.to(stateCommitted); err != nil {
		return nil, err
	}
	logger.Info("batch committed",
		zap.String("project_id", report.ProjectID.String()),
		zap.Int("warnings", len(report.Warnings)))
	return report, nil
}

// applied carries the identifiers produced by the upsert steps for the
// assertion phase and the report.
type applied struct {
	projectID         uuid.UUID
	counterpartyCount int
	contactCount      int
	tariffs           []*models.Tariff
}

// apply runs the eleven upsert steps in fixed dependency order. Each step may
// only reference entities upserted earlier in the same batch.
func (s *onboardingService) apply(ctx context.Context, batch *models.StagingBatch, refs *resolvedRefs) (*applied, error) {
	out := &applied{}

	// 1. Counterparties.
	counterpartyIDs := make(map[string]uuid.UUID)
	for _, staged := range batch.Counterparties {
		cp := &models.Counterparty{
			Type:               staged.Type,
			Name:               staged.Name,
			RegistrationNumber: staged.RegistrationNumber,
			TaxID:              staged.TaxID,
			Address:            staged.Address,
			Country:            staged.Country,
		}
		if err := s.counterpartyRepo.Upsert(ctx, cp); err != nil {
			return nil, err
		}
		counterpartyIDs[counterpartyKey(cp.Type, cp.Name)] = cp.ID
	}
	out.counterpartyCount = len(counterpartyIDs)

	resolveCounterparty := func(cpType, name string) (uuid.UUID, error) {
		if id, ok := counterpartyIDs[counterpartyKey(cpType, name)]; ok {
			return id, nil
		}
		cp, err := s.counterpartyRepo.GetByTypeAndName(ctx, cpType, name)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to resolve counterparty %q: %w", name, err)
		}
		counterpartyIDs[counterpartyKey(cpType, name)] = cp.ID
		return cp.ID, nil
	}

	// 2. Project.
	project := &models.Project{
		OrganizationID:    refs.org.ID,
		ExternalProjectID: batch.Project.ExternalProjectID,
		Name:              batch.Project.Name,
		CapacityKWP:       batch.Project.CapacityKWP,
		Address:           batch.Project.Address,
		Region:            batch.Project.Region,
		CommissioningDate: batch.Project.CommissioningDate,
	}
	if err := s.projectRepo.Upsert(ctx, project); err != nil {
		return nil, err
	}
	out.projectID = project.ID

	// 3. Contracts.
	contractIDs := make(map[string]uuid.UUID)
	for _, staged := range batch.Contracts {
		counterpartyID, err := resolveCounterparty(staged.CounterpartyType, staged.CounterpartyName)
		if err != nil {
			return nil, err
		}
		contract := &models.Contract{
			ProjectID:              project.ID,
			CounterpartyID:         counterpartyID,
			ExternalContractID:     staged.ExternalContractID,
			ContractType:           staged.ContractType,
			EnergySaleType:         staged.EnergySaleType,
			CurrencyCode:           staged.CurrencyCode,
			SignedDate:             staged.SignedDate,
			StartDate:              staged.StartDate,
			EndDate:                staged.EndDate,
			PaymentSecurityDetails: staged.PaymentSecurityDetails,
			Metadata:               staged.Metadata,
		}
		if err := s.contractRepo.Upsert(ctx, contract); err != nil {
			return nil, err
		}
		contractIDs[contract.ExternalContractID] = contract.ID
	}

	resolveContract := func(externalContractID string) (uuid.UUID, error) {
		if id, ok := contractIDs[externalContractID]; ok {
			return id, nil
		}
		contract, err := s.contractRepo.GetByNaturalKey(ctx, project.ID, externalContractID)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to resolve contract %q: %w", externalContractID, err)
		}
		contractIDs[externalContractID] = contract.ID
		return contract.ID, nil
	}

	// 4. Assets.
	for _, staged := range batch.Assets {
		asset := &models.Asset{
			ProjectID:    project.ID,
			AssetType:    staged.AssetType,
			Model:        staged.Model,
			SerialNumber: staged.SerialNumber,
			Manufacturer: staged.Manufacturer,
			CapacityKW:   staged.CapacityKW,
		}
		if err := s.assetRepo.InsertIfAbsent(ctx, asset); err != nil {
			return nil, err
		}
	}

	// 5. Tariffs.
	for _, staged := range batch.Tariffs {
		contractID, err := resolveContract(staged.ExternalContractID)
		if err != nil {
			return nil, err
		}
		tariff := &models.Tariff{
			ContractID:     contractID,
			TariffGroupKey: staged.TariffGroupKey,
			ValidFrom:      staged.ValidFrom,
			ValidTo:        staged.ValidTo,
			BaseRate:       staged.BaseRate,
			CurrencyCode:   staged.CurrencyCode,
			Discount:       staged.Discount,
			FloorRate:      staged.FloorRate,
			CeilingRate:    staged.CeilingRate,
			EscalationType: staged.EscalationType,
			EscalationRate: staged.EscalationRate,
			Params:         staged.ExtraParams,
		}
		if err := s.tariffRepo.Upsert(ctx, tariff); err != nil {
			return nil, err
		}
		out.tariffs = append(out.tariffs, tariff)
	}

	// 6. Contacts.
	for _, staged := range batch.Contacts {
		counterpartyID, err := resolveCounterparty(staged.CounterpartyType, staged.CounterpartyName)
		if err != nil {
			return nil, err
		}
		contact := &models.Contact{
			CounterpartyID: counterpartyID,
			Email:          staged.Email,
			Role:           staged.Role,
			FullName:       staged.FullName,
			Phone:          staged.Phone,
		}
		if err := s.counterpartyRepo.UpsertContact(ctx, contact); err != nil {
			return nil, err
		}
		out.contactCount++
	}

	// 7. Forecast months.
	for _, staged := range batch.ForecastMonths {
		fm := &models.ForecastMonth{
			ProjectID:        project.ID,
			Month:            staged.Month,
			EnergyKWh:        staged.EnergyKWh,
			Irradiation:      staged.Irradiation,
			PerformanceRatio: staged.PerformanceRatio,
		}
		if err := s.productionRepo.ReplaceForecastMonth(ctx, fm); err != nil {
			return nil, err
		}
	}

	// 8. Guarantee years.
	for _, staged := range batch.GuaranteeYears {
		gy := &models.GuaranteeYear{
			ProjectID:           project.ID,
			OperatingYear:       staged.OperatingYear,
			GuaranteedEnergyKWh: staged.GuaranteedEnergyKWh,
		}
		if err := s.productionRepo.ReplaceGuaranteeYear(ctx, gy); err != nil {
			return nil, err
		}
	}

	// 9. Meters.
	for _, staged := range batch.Meters {
		meter := &models.Meter{
			ProjectID:    project.ID,
			SerialNumber: staged.SerialNumber,
			Location:     staged.Location,
			MeteringType: staged.MeteringType,
		}
		if err := s.assetRepo.UpsertMeter(ctx, meter); err != nil {
			return nil, err
		}
	}

	// 10. Billing product assignments.
	for _, staged := range batch.ProductAssignments {
		contractID, err := resolveContract(staged.ExternalContractID)
		if err != nil {
			return nil, err
		}
		product, ok := refs.products[staged.ProductCode]
		if !ok {
			return nil, fmt.Errorf("billing product %q: %w", staged.ProductCode, apperrors.ErrNotFound)
		}
		assignment := &models.BillingProductAssignment{
			ContractID: contractID,
			ProductID:  product.ID,
			IsPrimary:  staged.IsPrimary,
		}
		if err := s.contractRepo.UpsertAssignment(ctx, assignment); err != nil {
			return nil, err
		}
	}

	// 11. Rate periods: year 1 = base rate, once per tariff that has a base
	// rate (the upsert just made each one current). Later escalation inserts
	// further years elsewhere.
	for _, tariff := range out.tariffs {
		if tariff.BaseRate == nil {
			continue
		}
		rp := &models.RatePeriod{
			TariffID:     tariff.ID,
			ContractYear: 1,
			Rate:         *tariff.BaseRate,
			StartsOn:     tariff.ValidFrom,
		}
		if err := s.tariffRepo.InsertInitialRatePeriod(ctx, rp); err != nil {
			return nil, err
		}
	}

	return out, nil
}
