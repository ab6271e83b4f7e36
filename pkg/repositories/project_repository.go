package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/heliogrid/onboard-engine/pkg/apperrors"
	"github.com/heliogrid/onboard-engine/pkg/database"
	"github.com/heliogrid/onboard-engine/pkg/models"
)

// ProjectRepository defines data access for projects.
type ProjectRepository interface {
	// Upsert inserts or merges a project by its
	// (organization, external project id) natural key and sets the surrogate
	// id on the model. Capacity, location, and commissioning fields follow
	// merge-on-present.
	Upsert(ctx context.Context, project *models.Project) error

	GetByNaturalKey(ctx context.Context, orgID uuid.UUID, externalProjectID string) (*models.Project, error)
}

type projectRepository struct{}

// NewProjectRepository creates a new project repository.
func NewProjectRepository() ProjectRepository {
	return &projectRepository{}
}

func (r *projectRepository) Upsert(ctx context.Context, project *models.Project) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO projects (organization_id, external_project_id, name, capacity_kwp, address, region, commissioning_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (organization_id, external_project_id) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), projects.name),
			capacity_kwp = COALESCE(EXCLUDED.capacity_kwp, projects.capacity_kwp),
			address = COALESCE(NULLIF(EXCLUDED.address, ''), projects.address),
			region = COALESCE(NULLIF(EXCLUDED.region, ''), projects.region),
			commissioning_date = COALESCE(EXCLUDED.commissioning_date, projects.commissioning_date),
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err := scope.Querier().QueryRow(ctx, query,
		project.OrganizationID,
		project.ExternalProjectID,
		project.Name,
		project.CapacityKWP,
		project.Address,
		project.Region,
		project.CommissioningDate,
	).Scan(&project.ID, &project.CreatedAt, &project.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}

	return nil
}

func (r *projectRepository) GetByNaturalKey(ctx context.Context, orgID uuid.UUID, externalProjectID string) (*models.Project, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, organization_id, external_project_id, name, capacity_kwp, address, region, commissioning_date, created_at, updated_at
		FROM projects
		WHERE organization_id = $1 AND external_project_id = $2`

	var project models.Project
	err := scope.Querier().QueryRow(ctx, query, orgID, externalProjectID).Scan(
		&project.ID,
		&project.OrganizationID,
		&project.ExternalProjectID,
		&project.Name,
		&project.CapacityKWP,
		&project.Address,
		&project.Region,
		&project.CommissioningDate,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	return &project, nil
}

var _ ProjectRepository = (*projectRepository)(nil)
