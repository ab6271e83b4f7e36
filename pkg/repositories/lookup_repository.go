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

// LookupRepository resolves organizations, lookup codes, and billing products.
// All reads; the onboarding pipeline never mutates reference data.
type LookupRepository interface {
	GetOrganizationByCode(ctx context.Context, code string) (*models.Organization, error)
	ContractTypeExists(ctx context.Context, code string) (bool, error)
	EnergySaleTypeExists(ctx context.Context, code string) (bool, error)
	EscalationTypeExists(ctx context.Context, code string) (bool, error)
	CurrencyExists(ctx context.Context, code string) (bool, error)
	AssetTypeExists(ctx context.Context, code string) (bool, error)

	// GetBillingProduct resolves a product code for an organization,
	// preferring an org-scoped product over a global one.
	GetBillingProduct(ctx context.Context, orgID uuid.UUID, code string) (*models.BillingProduct, error)
}

type lookupRepository struct{}

// NewLookupRepository creates a new lookup repository.
func NewLookupRepository() LookupRepository {
	return &lookupRepository{}
}

func (r *lookupRepository) GetOrganizationByCode(ctx context.Context, code string) (*models.Organization, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT id, code, name, created_at FROM organizations WHERE code = $1`

	var org models.Organization
	err := scope.Querier().QueryRow(ctx, query, code).Scan(&org.ID, &org.Code, &org.Name, &org.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}

	return &org, nil
}

// codeExists checks a lookup table for a code. The table name is one of the
// models.Lookup* constants, never caller input.
func codeExists(ctx context.Context, table, code string) (bool, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return false, fmt.Errorf("no database scope in context")
	}

	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE code = $1)`, table)

	var exists bool
	if err := scope.Querier().QueryRow(ctx, query, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check %s code: %w", table, err)
	}
	return exists, nil
}

func (r *lookupRepository) ContractTypeExists(ctx context.Context, code string) (bool, error) {
	return codeExists(ctx, models.LookupContractTypes, code)
}

func (r *lookupRepository) EnergySaleTypeExists(ctx context.Context, code string) (bool, error) {
	return codeExists(ctx, models.LookupEnergySaleTypes, code)
}

func (r *lookupRepository) EscalationTypeExists(ctx context.Context, code string) (bool, error) {
	return codeExists(ctx, models.LookupEscalationTypes, code)
}

func (r *lookupRepository) CurrencyExists(ctx context.Context, code string) (bool, error) {
	return codeExists(ctx, models.LookupCurrencies, code)
}

func (r *lookupRepository) AssetTypeExists(ctx context.Context, code string) (bool, error) {
	return codeExists(ctx, models.LookupAssetTypes, code)
}

func (r *lookupRepository) GetBillingProduct(ctx context.Context, orgID uuid.UUID, code string) (*models.BillingProduct, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	// Org-scoped products shadow global ones with the same code.
	query := `
		SELECT id, organization_id, code, name, created_at
		FROM billing_products
		WHERE code = $2 AND (organization_id = $1 OR organization_id IS NULL)
		ORDER BY organization_id NULLS LAST
		LIMIT 1`

	var product models.BillingProduct
	err := scope.Querier().QueryRow(ctx, query, orgID, code).Scan(
		&product.ID,
		&product.OrganizationID,
		&product.Code,
		&product.Name,
		&product.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get billing product: %w", err)
	}

	return &product, nil
}

var _ LookupRepository = (*lookupRepository)(nil)
