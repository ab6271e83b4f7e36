package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/heliogrid/onboard-engine/pkg/database"
	"github.com/heliogrid/onboard-engine/pkg/models"
)

// ProductionRepository defines data access for production forecasts and
// multi-year guarantees. Both kinds arrive as complete recomputations, so
// conflicts replace the numeric fields wholesale instead of merging.
type ProductionRepository interface {
	ReplaceForecastMonth(ctx context.Context, fm *models.ForecastMonth) error
	ReplaceGuaranteeYear(ctx context.Context, gy *models.GuaranteeYear) error
	ListGuaranteeYears(ctx context.Context, projectID uuid.UUID) ([]*models.GuaranteeYear, error)
	CountForecastMonths(ctx context.Context, projectID uuid.UUID) (int, error)
	CountGuaranteeYears(ctx context.Context, projectID uuid.UUID) (int, error)
}

type productionRepository struct{}

// NewProductionRepository creates a new production repository.
func NewProductionRepository() ProductionRepository {
	return &productionRepository{}
}

func (r *productionRepository) ReplaceForecastMonth(ctx context.Context, fm *models.ForecastMonth) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO forecast_months (project_id, month, energy_kwh, irradiation, performance_ratio)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (project_id, month) DO UPDATE SET
			energy_kwh = EXCLUDED.energy_kwh,
			irradiation = EXCLUDED.irradiation,
			performance_ratio = EXCLUDED.performance_ratio,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err := scope.Querier().QueryRow(ctx, query,
		fm.ProjectID,
		fm.Month,
		fm.EnergyKWh,
		fm.Irradiation,
		fm.PerformanceRatio,
	).Scan(&fm.ID, &fm.CreatedAt, &fm.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to replace forecast month: %w", err)
	}

	return nil
}

func (r *productionRepository) ReplaceGuaranteeYear(ctx context.Context, gy *models.GuaranteeYear) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO guarantee_years (project_id, operating_year, guaranteed_energy_kwh)
		VALUES ($1, $2, $3)
		ON CONFLICT (project_id, operating_year) DO UPDATE SET
			guaranteed_energy_kwh = EXCLUDED.guaranteed_energy_kwh,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err := scope.Querier().QueryRow(ctx, query,
		gy.ProjectID,
		gy.OperatingYear,
		gy.GuaranteedEnergyKWh,
	).Scan(&gy.ID, &gy.CreatedAt, &gy.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to replace guarantee year: %w", err)
	}

	return nil
}

func (r *productionRepository) ListGuaranteeYears(ctx context.Context, projectID uuid.UUID) ([]*models.GuaranteeYear, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, project_id, operating_year, guaranteed_energy_kwh, created_at, updated_at
		FROM guarantee_years
		WHERE project_id = $1
		ORDER BY operating_year`

	rows, err := scope.Querier().Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list guarantee years: %w", err)
	}
	defer rows.Close()

	var years []*models.GuaranteeYear
	for rows.Next() {
		var gy models.GuaranteeYear
		err := rows.Scan(&gy.ID, &gy.ProjectID, &gy.OperatingYear, &gy.GuaranteedEnergyKWh, &gy.CreatedAt, &gy.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan guarantee year: %w", err)
		}
		years = append(years, &gy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate guarantee years: %w", err)
	}

	return years, nil
}

func (r *productionRepository) CountForecastMonths(ctx context.Context, projectID uuid.UUID) (int, error) {
	return countRows(ctx, `SELECT count(*) FROM forecast_months WHERE project_id = $1`, projectID)
}

func (r *productionRepository) CountGuaranteeYears(ctx context.Context, projectID uuid.UUID) (int, error) {
	return countRows(ctx, `SELECT count(*) FROM guarantee_years WHERE project_id = $1`, projectID)
}

var _ ProductionRepository = (*productionRepository)(nil)
