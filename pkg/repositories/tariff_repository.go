package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/heliogrid/onboard-engine/pkg/database"
	"github.com/heliogrid/onboard-engine/pkg/models"
)

// Sentinel validity bounds used when a tariff has an open-ended window.
// The natural-key unique constraint needs concrete values.
var (
	tariffValidFromMin = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	tariffValidToMax   = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// TariffRepository defines data access for tariffs and rate periods.
type TariffRepository interface {
	// Upsert inserts or merges a tariff by its
	// (contract, group key, validity window) natural key, merges the
	// structured parameter bag, marks the row current, and flips the
	// current flag off the prior row in the same group.
	Upsert(ctx context.Context, tariff *models.Tariff) error

	ListByContract(ctx context.Context, contractID uuid.UUID) ([]*models.Tariff, error)

	// InsertInitialRatePeriod records year 1 = base rate for a tariff.
	// Insert-only: re-running the batch or later escalation never updates
	// the row through this method.
	InsertInitialRatePeriod(ctx context.Context, rp *models.RatePeriod) error

	CountCurrentRatePeriods(ctx context.Context, tariffID uuid.UUID) (int, error)
	CountRatePeriodsByProject(ctx context.Context, projectID uuid.UUID) (int, error)
}

type tariffRepository struct{}

// NewTariffRepository creates a new tariff repository.
func NewTariffRepository() TariffRepository {
	return &tariffRepository{}
}

func (r *tariffRepository) Upsert(ctx context.Context, tariff *models.Tariff) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if tariff.Params == nil {
		tariff.Params = map[string]any{}
	}
	params, err := json.Marshal(tariff.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal tariff params: %w", err)
	}

	validFrom := tariffValidFromMin
	if tariff.ValidFrom != nil {
		validFrom = *tariff.ValidFrom
	}
	validTo := tariffValidToMax
	if tariff.ValidTo != nil {
		validTo = *tariff.ValidTo
	}

	query := `
		INSERT INTO tariffs (contract_id, tariff_group_key, valid_from, valid_to, base_rate,
			currency_code, discount, floor_rate, ceiling_rate, escalation_type, escalation_rate, params)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (contract_id, tariff_group_key, valid_from, valid_to) DO UPDATE SET
			base_rate = COALESCE(EXCLUDED.base_rate, tariffs.base_rate),
			currency_code = COALESCE(EXCLUDED.currency_code, tariffs.currency_code),
			discount = COALESCE(EXCLUDED.discount, tariffs.discount),
			floor_rate = COALESCE(EXCLUDED.floor_rate, tariffs.floor_rate),
			ceiling_rate = COALESCE(EXCLUDED.ceiling_rate, tariffs.ceiling_rate),
			escalation_type = COALESCE(EXCLUDED.escalation_type, tariffs.escalation_type),
			escalation_rate = COALESCE(EXCLUDED.escalation_rate, tariffs.escalation_rate),
			params = tariffs.params || EXCLUDED.params,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err = scope.Querier().QueryRow(ctx, query,
		tariff.ContractID,
		tariff.TariffGroupKey,
		validFrom,
		validTo,
		tariff.BaseRate,
		nullIfEmpty(tariff.CurrencyCode),
		tariff.Discount,
		tariff.FloorRate,
		tariff.CeilingRate,
		nullIfEmpty(tariff.EscalationType),
		tariff.EscalationRate,
		params,
	).Scan(&tariff.ID, &tariff.CreatedAt, &tariff.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert tariff: %w", err)
	}
	// The upserted row becomes the group's current tariff. Clear the prior
	// holder first so the partial unique index never sees two.
	q := scope.Querier()
	_, err = q.Exec(ctx, `
		UPDATE tariffs SET is_current = false, updated_at = now()
		WHERE contract_id = $1 AND tariff_group_key = $2 AND id <> $3 AND is_current`,
		tariff.ContractID, tariff.TariffGroupKey, tariff.ID)
	if err != nil {
		return fmt.Errorf("failed to clear current tariff flag: %w", err)
	}
	_, err = q.Exec(ctx, `
		UPDATE tariffs SET is_current = true, updated_at = now()
		WHERE id = $1 AND NOT is_current`, tariff.ID)
	if err != nil {
		return fmt.Errorf("failed to set current tariff flag: %w", err)
	}
	tariff.IsCurrent = true

	return nil
}

func (r *tariffRepository) ListByContract(ctx context.Context, contractID uuid.UUID) ([]*models.Tariff, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, contract_id, tariff_group_key, valid_from, valid_to, base_rate,
			COALESCE(currency_code, ''), discount, floor_rate, ceiling_rate,
			COALESCE(escalation_type, ''), escalation_rate, params, is_current,
			created_at, updated_at
		FROM tariffs
		WHERE contract_id = $1
		ORDER BY tariff_group_key, valid_from`

	rows, err := scope.Querier().Query(ctx, query, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tariffs: %w", err)
	}
	defer rows.Close()

	var tariffs []*models.Tariff
	for rows.Next() {
		var t models.Tariff
		var params []byte
		err := rows.Scan(
			&t.ID,
			&t.ContractID,
			&t.TariffGroupKey,
			&t.ValidFrom,
			&t.ValidTo,
			&t.BaseRate,
			&t.CurrencyCode,
			&t.Discount,
			&t.FloorRate,
			&t.CeilingRate,
			&t.EscalationType,
			&t.EscalationRate,
			&params,
			&t.IsCurrent,
			&t.CreatedAt,
			&t.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tariff: %w", err)
		}
		if err := json.Unmarshal(params, &t.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tariff params: %w", err)
		}
		tariffs = append(tariffs, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tariffs: %w", err)
	}

	return tariffs, nil
}

func (r *tariffRepository) InsertInitialRatePeriod(ctx context.Context, rp *models.RatePeriod) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO rate_periods (tariff_id, contract_year, rate, starts_on, ends_on, is_current)
		VALUES ($1, $2, $3, $4, $5, true)
		ON CONFLICT (tariff_id, contract_year) DO NOTHING`

	_, err := scope.Querier().Exec(ctx, query,
		rp.TariffID,
		rp.ContractYear,
		rp.Rate,
		rp.StartsOn,
		rp.EndsOn,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rate period: %w", err)
	}

	return nil
}

func (r *tariffRepository) CountCurrentRatePeriods(ctx context.Context, tariffID uuid.UUID) (int, error) {
	return countRows(ctx, `SELECT count(*) FROM rate_periods WHERE tariff_id = $1 AND is_current`, tariffID)
}

func (r *tariffRepository) CountRatePeriodsByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	return countRows(ctx, `
		SELECT count(*)
		FROM rate_periods rp
		JOIN tariffs t ON t.id = rp.tariff_id
		JOIN contracts c ON c.id = t.contract_id
		WHERE c.project_id = $1`, projectID)
}

var _ TariffRepository = (*tariffRepository)(nil)
