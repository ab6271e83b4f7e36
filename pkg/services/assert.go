package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/heliogrid/onboard-engine/pkg/models"
)

// Bounds for the discount fraction invariant.
var (
	discountMin = decimal.Zero
	discountMax = decimal.NewFromInt(1)
)

// assertCommitted re-reads the state just written by the batch, inside the
// same transaction, and checks the batch-level and domain-level invariants.
// Fatal violations abort the batch; the returned warnings surface to the
// caller without blocking commit. Row counts are lower bounds against the
// staged counts because upserts coexist with rows from earlier batches.
func (s *onboardingService) assertCommitted(ctx context.Context, batch *models.StagingBatch, app *applied) (map[string]int, []string, []Violation, error) {
	var violations []Violation
	var warnings []string
	counts := make(map[string]int)

	counts[models.KindProject] = 1
	counts[models.KindCounterparty] = app.counterpartyCount
	counts[models.KindContact] = app.contactCount

	// Exactly one contract per project.
	contracts, err := s.contractRepo.ListByProject(ctx, app.projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	counts[models.KindContract] = len(contracts)
	if len(contracts) != 1 {
		violations = append(violations, Violation{
			Field:   "contracts",
			Value:   fmt.Sprintf("%d", len(contracts)),
			Message: "project must have exactly one contract",
		})
	}

	// Row-count parity: committed counts must cover what the batch staged.
	checkFloor := func(kind string, committed, staged int) {
		counts[kind] = committed
		if committed < staged {
			violations = append(violations, Violation{
				Field:   kind,
				Value:   fmt.Sprintf("%d", committed),
				Message: fmt.Sprintf("committed rows fell short of the %d staged", staged),
			})
		}
	}

	forecasts, err := s.productionRepo.CountForecastMonths(ctx, app.projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	checkFloor(models.KindForecastMonth, forecasts, len(batch.ForecastMonths))

	guaranteeCount, err := s.productionRepo.CountGuaranteeYears(ctx, app.projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	checkFloor(models.KindGuaranteeYear, guaranteeCount, len(batch.GuaranteeYears))

	meters, err := s.assetRepo.CountMeters(ctx, app.projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	checkFloor(models.KindMeter, meters, len(batch.Meters))

	assets, err := s.assetRepo.CountAssets(ctx, app.projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	counts[models.KindAsset] = assets

	assignments, err := s.contractRepo.CountAssignmentsByProject(ctx, app.projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	checkFloor(models.KindProductAssignment, assignments, len(batch.ProductAssignments))

	ratePeriods, err := s.tariffRepo.CountRatePeriodsByProject(ctx, app.projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	staged := 0
	for _, t := range app.tariffs {
		if t.BaseRate != nil {
			staged++
		}
	}
	checkFloor(models.KindRatePeriod, ratePeriods, staged)

	// Per-contract and per-tariff invariants.
	for _, contract := range contracts {
		total, primary, err := s.contractRepo.AssignmentCounts(ctx, contract.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		if total > 0 && primary != 1 {
			violations = append(violations, Violation{
				Field:   "billing_product_assignments",
				Value:   fmt.Sprintf("%d", primary),
				Message: fmt.Sprintf("contract %s must have exactly one primary assignment", contract.ExternalContractID),
			})
		}

		tariffs, err := s.tariffRepo.ListByContract(ctx, contract.ID)
		if err != nil {
			return nil, nil, nil, err
		}
		counts[models.KindTariff] += len(tariffs)
		for _, tariff := range tariffs {
			if tariff.Discount != nil && (tariff.Discount.LessThan(discountMin) || tariff.Discount.GreaterThan(discountMax)) {
				violations = append(violations, Violation{
					Field:   "tariffs.discount",
					Value:   tariff.Discount.String(),
					Message: fmt.Sprintf("discount for tariff group %q must be within [0,1]", tariff.TariffGroupKey),
				})
			}
			if tariff.FloorRate != nil && tariff.CeilingRate != nil && tariff.FloorRate.GreaterThan(*tariff.CeilingRate) {
				violations = append(violations, Violation{
					Field:   "tariffs.floor_rate",
					Value:   tariff.FloorRate.String(),
					Message: fmt.Sprintf("floor exceeds ceiling %s for tariff group %q", tariff.CeilingRate, tariff.TariffGroupKey),
				})
			}
			if tariff.BaseRate != nil {
				current, err := s.tariffRepo.CountCurrentRatePeriods(ctx, tariff.ID)
				if err != nil {
					return nil, nil, nil, err
				}
				if current != 1 {
					violations = append(violations, Violation{
						Field:   "rate_periods",
						Value:   fmt.Sprintf("%d", current),
						Message: fmt.Sprintf("tariff group %q must have exactly one current rate period", tariff.TariffGroupKey),
					})
				}
			}
		}
	}

	// Guarantee positivity is fatal; a non-declining schedule is only a
	// warning since some contracts legitimately carry one.
	guarantees, err := s.productionRepo.ListGuaranteeYears(ctx, app.projectID)
	if err != nil {
		return nil, nil, nil, err
	}
	for i, gy := range guarantees {
		if !gy.GuaranteedEnergyKWh.IsPositive() {
			violations = append(violations, Violation{
				Field:   "guarantee_years",
				Value:   gy.GuaranteedEnergyKWh.String(),
				Message: fmt.Sprintf("guaranteed energy for operating year %d must be strictly positive", gy.OperatingYear),
			})
		}
		if i > 0 && gy.GuaranteedEnergyKWh.GreaterThan(guarantees[i-1].GuaranteedEnergyKWh) {
			warnings = append(warnings, fmt.Sprintf(
				"guaranteed energy rises from %s to %s between operating years %d and %d",
				guarantees[i-1].GuaranteedEnergyKWh, gy.GuaranteedEnergyKWh,
				guarantees[i-1].OperatingYear, gy.OperatingYear))
		}
	}

	return counts, warnings, violations, nil
}
