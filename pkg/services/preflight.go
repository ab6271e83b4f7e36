package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/heliogrid/onboard-engine/pkg/apperrors"
	"github.com/heliogrid/onboard-engine/pkg/models"
)

// resolvedRefs carries the identifiers the preflight resolved so the apply
// phase does not repeat the lookups.
type resolvedRefs struct {
	org      *models.Organization
	products map[string]*models.BillingProduct // product code -> product
}

// counterpartyKey is the in-batch natural key for counterparty references.
func counterpartyKey(cpType, name string) string {
	return cpType + "\x00" + strings.ToLower(name)
}

// preflight confirms every cross-entity reference in the batch resolves
// against the canonical store and enforces the cheap batch-scoped required
// field checks. It is strictly read-only and aggregates all violations so the
// operator sees every problem in one pass. The third return is reserved for
// store failures, which are not data violations.
func (s *onboardingService) preflight(ctx context.Context, batch *models.StagingBatch) (*resolvedRefs, []Violation, error) {
	var violations []Violation
	refs := &resolvedRefs{products: make(map[string]*models.BillingProduct)}

	if batch.Project == nil {
		violations = append(violations, Violation{
			Field:   "project",
			Message: "batch must include exactly one project record",
		})
		return refs, violations, nil
	}

	org, err := s.lookupRepo.GetOrganizationByCode(ctx, batch.Project.OrganizationCode)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		violations = append(violations, Violation{
			Field:   "project.organization_code",
			Value:   batch.Project.OrganizationCode,
			Message: "organization does not exist",
		})
	case err != nil:
		return nil, nil, fmt.Errorf("failed to resolve organization: %w", err)
	default:
		refs.org = org
	}

	if batch.Project.ExternalProjectID == "" {
		violations = append(violations, Violation{
			Field:   "project.external_project_id",
			Message: "external project id is required",
		})
	}
	if batch.Project.CommissioningDate == nil {
		violations = append(violations, Violation{
			Field:   "project.commissioning_date",
			Message: "commissioning date is required",
		})
	}

	// Lookup-code existence, cached per (table, code) so repeated codes cost
	// one store read but every offending field is still reported.
	codeCache := make(map[string]bool)
	checkCode := func(table, field, code string, exists func(context.Context, string) (bool, error)) error {
		if code == "" {
			return nil
		}
		cacheKey := table + "\x00" + code
		ok, seen := codeCache[cacheKey]
		if !seen {
			var err error
			ok, err = exists(ctx, code)
			if err != nil {
				return err
			}
			codeCache[cacheKey] = ok
		}
		if !ok {
			violations = append(violations, Violation{Field: field, Value: code, Message: "unknown code"})
		}
		return nil
	}

	// Natural keys visible within the batch; references to them need no
	// store lookup.
	batchCounterparties := make(map[string]bool)
	for _, cp := range batch.Counterparties {
		batchCounterparties[counterpartyKey(cp.Type, cp.Name)] = true
	}
	batchContracts := make(map[string]bool)
	for _, c := range batch.Contracts {
		batchContracts[c.ExternalContractID] = true
	}

	// The project may already exist from an earlier batch; if so, contract
	// references can also resolve against its committed contracts.
	var projectID *uuid.UUID
	if refs.org != nil && batch.Project.ExternalProjectID != "" {
		existing, err := s.projectRepo.GetByNaturalKey(ctx, refs.org.ID, batch.Project.ExternalProjectID)
		if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, fmt.Errorf("failed to resolve project: %w", err)
		}
		if existing != nil {
			projectID = &existing.ID
		}
	}

	contractResolves := func(externalContractID string) (bool, error) {
		if batchContracts[externalContractID] {
			return true, nil
		}
		if projectID == nil {
			return false, nil
		}
		_, err := s.contractRepo.GetByNaturalKey(ctx, *projectID, externalContractID)
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}

	counterpartyResolves := func(cpType, name string) (bool, error) {
		if batchCounterparties[counterpartyKey(cpType, name)] {
			return true, nil
		}
		_, err := s.counterpartyRepo.GetByTypeAndName(ctx, cpType, name)
		if errors.Is(err, apperrors.ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}

	for i, c := range batch.Contracts {
		field := fmt.Sprintf("contracts[%d]", i)
		if c.ContractType == "" {
			violations = append(violations, Violation{
				Field:   field + ".contract_type",
				Message: "contract type is required",
			})
		}
		if err := checkCode(models.LookupContractTypes, field+".contract_type", c.ContractType, s.lookupRepo.ContractTypeExists); err != nil {
			return nil, nil, err
		}
		if err := checkCode(models.LookupEnergySaleTypes, field+".energy_sale_type", c.EnergySaleType, s.lookupRepo.EnergySaleTypeExists); err != nil {
			return nil, nil, err
		}
		if err := checkCode(models.LookupCurrencies, field+".currency_code", c.CurrencyCode, s.lookupRepo.CurrencyExists); err != nil {
			return nil, nil, err
		}
		ok, err := counterpartyResolves(c.CounterpartyType, c.CounterpartyName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve counterparty: %w", err)
		}
		if !ok {
			violations = append(violations, Violation{
				Field:   field + ".counterparty",
				Value:   c.CounterpartyName,
				Message: "counterparty not present in batch or store",
			})
		}
	}

	for i, t := range batch.Tariffs {
		field := fmt.Sprintf("tariffs[%d]", i)
		if err := checkCode(models.LookupEscalationTypes, field+".escalation_type", t.EscalationType, s.lookupRepo.EscalationTypeExists); err != nil {
			return nil, nil, err
		}
		if err := checkCode(models.LookupCurrencies, field+".currency_code", t.CurrencyCode, s.lookupRepo.CurrencyExists); err != nil {
			return nil, nil, err
		}
		ok, err := contractResolves(t.ExternalContractID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve contract: %w", err)
		}
		if !ok {
			violations = append(violations, Violation{
				Field:   field + ".external_contract_id",
				Value:   t.ExternalContractID,
				Message: "contract not present in batch or store",
			})
		}
	}

	for i, a := range batch.Assets {
		if err := checkCode(models.LookupAssetTypes, fmt.Sprintf("assets[%d].asset_type", i), a.AssetType, s.lookupRepo.AssetTypeExists); err != nil {
			return nil, nil, err
		}
	}

	for i, contact := range batch.Contacts {
		ok, err := counterpartyResolves(contact.CounterpartyType, contact.CounterpartyName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve counterparty: %w", err)
		}
		if !ok {
			violations = append(violations, Violation{
				Field:   fmt.Sprintf("contacts[%d].counterparty", i),
				Value:   contact.CounterpartyName,
				Message: "counterparty not present in batch or store",
			})
		}
	}

	for i, gy := range batch.GuaranteeYears {
		if !gy.GuaranteedEnergyKWh.IsPositive() {
			violations = append(violations, Violation{
				Field:   fmt.Sprintf("guarantee_years[%d].guaranteed_energy_kwh", i),
				Value:   gy.GuaranteedEnergyKWh.String(),
				Message: "guaranteed energy must be strictly positive",
			})
		}
	}

	// A batch naming two primary products for one contract is ambiguous:
	// applying it would silently keep whichever record came last.
	primariesByContract := make(map[string]int)
	for _, pa := range batch.ProductAssignments {
		if pa.IsPrimary {
			primariesByContract[pa.ExternalContractID]++
		}
	}
	for i, pa := range batch.ProductAssignments {
		if pa.IsPrimary && primariesByContract[pa.ExternalContractID] > 1 {
			violations = append(violations, Violation{
				Field:   fmt.Sprintf("product_assignments[%d].is_primary", i),
				Value:   pa.ProductCode,
				Message: fmt.Sprintf("contract %q stages more than one primary billing product", pa.ExternalContractID),
			})
		}
	}

	// Billing product codes resolve org-scoped first, then global.
	if refs.org != nil {
		for i, pa := range batch.ProductAssignments {
			ok, err := contractResolves(pa.ExternalContractID)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to resolve contract: %w", err)
			}
			if !ok {
				violations = append(violations, Violation{
					Field:   fmt.Sprintf("product_assignments[%d].external_contract_id", i),
					Value:   pa.ExternalContractID,
					Message: "contract not present in batch or store",
				})
			}
			if _, done := refs.products[pa.ProductCode]; done {
				continue
			}
			product, err := s.lookupRepo.GetBillingProduct(ctx, refs.org.ID, pa.ProductCode)
			if errors.Is(err, apperrors.ErrNotFound) {
				violations = append(violations, Violation{
					Field:   fmt.Sprintf("product_assignments[%d].product_code", i),
					Value:   pa.ProductCode,
					Message: "billing product does not exist for organization or globally",
				})
				continue
			}
			if err != nil {
				return nil, nil, fmt.Errorf("failed to resolve billing product: %w", err)
			}
			refs.products[pa.ProductCode] = product
		}
	}

	return refs, violations, nil
}
