package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/heliogrid/onboard-engine/pkg/apperrors"
	"github.com/heliogrid/onboard-engine/pkg/database"
	"github.com/heliogrid/onboard-engine/pkg/models"
)

// ContractRepository defines data access for contracts and their billing
// product assignments.
type ContractRepository interface {
	// Upsert inserts or merges a contract by its
	// (project, external contract id) natural key. Dates, metadata keys, and
	// security terms follow merge-on-present: a value always wins, an
	// omission never erases.
	Upsert(ctx context.Context, contract *models.Contract) error

	GetByNaturalKey(ctx context.Context, projectID uuid.UUID, externalContractID string) (*models.Contract, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Contract, error)
	CountByProject(ctx context.Context, projectID uuid.UUID) (int, error)

	// UpsertAssignment inserts or updates an assignment keyed by
	// (contract, product). The primary flag is replaced wholesale; promoting
	// a product demotes the contract's previous primary.
	UpsertAssignment(ctx context.Context, a *models.BillingProductAssignment) error

	// AssignmentCounts returns the total and primary assignment counts for a contract.
	AssignmentCounts(ctx context.Context, contractID uuid.UUID) (total int, primary int, err error)

	CountAssignmentsByProject(ctx context.Context, projectID uuid.UUID) (int, error)
}

type contractRepository struct{}

// NewContractRepository creates a new contract repository.
func NewContractRepository() ContractRepository {
	return &contractRepository{}
}

func (r *contractRepository) Upsert(ctx context.Context, contract *models.Contract) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if contract.Metadata == nil {
		contract.Metadata = map[string]any{}
	}
	metadata, err := json.Marshal(contract.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal contract metadata: %w", err)
	}

	query := `
		INSERT INTO contracts (project_id, counterparty_id, external_contract_id, contract_type,
			energy_sale_type, currency_code, signed_date, start_date, end_date,
			payment_security_details, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (project_id, external_contract_id) DO UPDATE SET
			counterparty_id = EXCLUDED.counterparty_id,
			contract_type = EXCLUDED.contract_type,
			energy_sale_type = COALESCE(EXCLUDED.energy_sale_type, contracts.energy_sale_type),
			currency_code = COALESCE(EXCLUDED.currency_code, contracts.currency_code),
			signed_date = COALESCE(EXCLUDED.signed_date, contracts.signed_date),
			start_date = COALESCE(EXCLUDED.start_date, contracts.start_date),
			end_date = COALESCE(EXCLUDED.end_date, contracts.end_date),
			payment_security_details = COALESCE(NULLIF(EXCLUDED.payment_security_details, ''), contracts.payment_security_details),
			metadata = contracts.metadata || EXCLUDED.metadata,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err = scope.Querier().QueryRow(ctx, query,
		contract.ProjectID,
		contract.CounterpartyID,
		contract.ExternalContractID,
		contract.ContractType,
		nullIfEmpty(contract.EnergySaleType),
		nullIfEmpty(contract.CurrencyCode),
		contract.SignedDate,
		contract.StartDate,
		contract.EndDate,
		contract.PaymentSecurityDetails,
		metadata,
	).Scan(&contract.ID, &contract.CreatedAt, &contract.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert contract: %w", err)
	}

	return nil
}

func (r *contractRepository) GetByNaturalKey(ctx context.Context, projectID uuid.UUID, externalContractID string) (*models.Contract, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, project_id, counterparty_id, external_contract_id, contract_type,
			COALESCE(energy_sale_type, ''), COALESCE(currency_code, ''),
			signed_date, start_date, end_date, payment_security_details, metadata,
			created_at, updated_at
		FROM contracts
		WHERE project_id = $1 AND external_contract_id = $2`

	var contract models.Contract
	var metadata []byte
	err := scope.Querier().QueryRow(ctx, query, projectID, externalContractID).Scan(
		&contract.ID,
		&contract.ProjectID,
		&contract.CounterpartyID,
		&contract.ExternalContractID,
		&contract.ContractType,
		&contract.EnergySaleType,
		&contract.CurrencyCode,
		&contract.SignedDate,
		&contract.StartDate,
		&contract.EndDate,
		&contract.PaymentSecurityDetails,
		&metadata,
		&contract.CreatedAt,
		&contract.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}

	if err := json.Unmarshal(metadata, &contract.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contract metadata: %w", err)
	}

	return &contract, nil
}

func (r *contractRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*models.Contract, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, project_id, counterparty_id, external_contract_id, contract_type,
			COALESCE(energy_sale_type, ''), COALESCE(currency_code, ''),
			signed_date, start_date, end_date, payment_security_details, metadata,
			created_at, updated_at
		FROM contracts
		WHERE project_id = $1
		ORDER BY external_contract_id`

	rows, err := scope.Querier().Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*models.Contract
	for rows.Next() {
		var contract models.Contract
		var metadata []byte
		err := rows.Scan(
			&contract.ID,
			&contract.ProjectID,
			&contract.CounterpartyID,
			&contract.ExternalContractID,
			&contract.ContractType,
			&contract.EnergySaleType,
			&contract.CurrencyCode,
			&contract.SignedDate,
			&contract.StartDate,
			&contract.EndDate,
			&contract.PaymentSecurityDetails,
			&metadata,
			&contract.CreatedAt,
			&contract.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		if err := json.Unmarshal(metadata, &contract.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contract metadata: %w", err)
		}
		contracts = append(contracts, &contract)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contracts: %w", err)
	}

	return contracts, nil
}

func (r *contractRepository) CountByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	return countRows(ctx, `SELECT count(*) FROM contracts WHERE project_id = $1`, projectID)
}

func (r *contractRepository) UpsertAssignment(ctx context.Context, a *models.BillingProductAssignment) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	q := scope.Querier()

	// A promoted product takes primary from whichever row holds it, so a
	// batch that switches the contract's primary commits regardless of the
	// order its assignment records arrive in. Demote first; the partial
	// unique index never sees two primaries.
	if a.IsPrimary {
		_, err := q.Exec(ctx, `
			UPDATE billing_product_assignments SET is_primary = false, updated_at = now()
			WHERE contract_id = $1 AND product_id <> $2 AND is_primary`,
			a.ContractID, a.ProductID)
		if err != nil {
			return fmt.Errorf("failed to demote primary assignment: %w", err)
		}
	}

	query := `
		INSERT INTO billing_product_assignments (contract_id, product_id, is_primary)
		VALUES ($1, $2, $3)
		ON CONFLICT (contract_id, product_id) DO UPDATE SET
			is_primary = EXCLUDED.is_primary,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err := q.QueryRow(ctx, query, a.ContractID, a.ProductID, a.IsPrimary).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert billing product assignment: %w", err)
	}

	return nil
}

func (r *contractRepository) AssignmentCounts(ctx context.Context, contractID uuid.UUID) (int, int, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, 0, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT count(*), count(*) FILTER (WHERE is_primary)
		FROM billing_product_assignments
		WHERE contract_id = $1`

	var total, primary int
	if err := scope.Querier().QueryRow(ctx, query, contractID).Scan(&total, &primary); err != nil {
		return 0, 0, fmt.Errorf("failed to count assignments: %w", err)
	}
	return total, primary, nil
}

func (r *contractRepository) CountAssignmentsByProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	return countRows(ctx, `
		SELECT count(*)
		FROM billing_product_assignments a
		JOIN contracts c ON c.id = a.contract_id
		WHERE c.project_id = $1`, projectID)
}

// countRows runs a single-count query with the scope from context.
func countRows(ctx context.Context, query string, args ...any) (int, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}

	var n int
	if err := scope.Querier().QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}
	return n, nil
}

// nullIfEmpty maps "" to NULL for nullable text columns with FK constraints.
func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ ContractRepository = (*contractRepository)(nil)
