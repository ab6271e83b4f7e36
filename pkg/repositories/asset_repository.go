package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/heliogrid/onboard-engine/pkg/database"
	"github.com/heliogrid/onboard-engine/pkg/models"
)

// AssetRepository defines data access for physical assets and meters.
type AssetRepository interface {
	// InsertIfAbsent inserts an asset unless an identical
	// (project, type, model, serial) row already exists. Assets are never
	// updated in place.
	InsertIfAbsent(ctx context.Context, asset *models.Asset) error

	// UpsertMeter inserts or merges a meter by (project, serial number).
	// Location and metering type follow merge-on-present.
	UpsertMeter(ctx context.Context, meter *models.Meter) error

	CountAssets(ctx context.Context, projectID uuid.UUID) (int, error)
	CountMeters(ctx context.Context, projectID uuid.UUID) (int, error)
}

type assetRepository struct{}

// NewAssetRepository creates a new asset repository.
func NewAssetRepository() AssetRepository {
	return &assetRepository{}
}

func (r *assetRepository) InsertIfAbsent(ctx context.Context, asset *models.Asset) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO assets (project_id, asset_type, model, serial_number, manufacturer, capacity_kw)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id, asset_type, model, serial_number) DO NOTHING`

	_, err := scope.Querier().Exec(ctx, query,
		asset.ProjectID,
		asset.AssetType,
		asset.Model,
		asset.SerialNumber,
		asset.Manufacturer,
		asset.CapacityKW,
	)
	if err != nil {
		return fmt.Errorf("failed to insert asset: %w", err)
	}

	return nil
}

func (r *assetRepository) UpsertMeter(ctx context.Context, meter *models.Meter) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO meters (project_id, serial_number, location, metering_type)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (project_id, serial_number) DO UPDATE SET
			location = COALESCE(NULLIF(EXCLUDED.location, ''), meters.location),
			metering_type = COALESCE(NULLIF(EXCLUDED.metering_type, ''), meters.metering_type),
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err := scope.Querier().QueryRow(ctx, query,
		meter.ProjectID,
		meter.SerialNumber,
		meter.Location,
		meter.MeteringType,
	).Scan(&meter.ID, &meter.CreatedAt, &meter.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert meter: %w", err)
	}

	return nil
}

func (r *assetRepository) CountAssets(ctx context.Context, projectID uuid.UUID) (int, error) {
	return countRows(ctx, `SELECT count(*) FROM assets WHERE project_id = $1`, projectID)
}

func (r *assetRepository) CountMeters(ctx context.Context, projectID uuid.UUID) (int, error) {
	return countRows(ctx, `SELECT count(*) FROM meters WHERE project_id = $1`, projectID)
}

var _ AssetRepository = (*assetRepository)(nil)
