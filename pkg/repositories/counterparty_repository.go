package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/heliogrid/onboard-engine/pkg/apperrors"
	"github.com/heliogrid/onboard-engine/pkg/database"
	"github.com/heliogrid/onboard-engine/pkg/models"
)

// CounterpartyRepository defines data access for counterparties and their contacts.
type CounterpartyRepository interface {
	// Upsert inserts or merges a counterparty by its (type, name) natural key
	// and sets the surrogate id on the model. Existing registration, tax,
	// address, and country values survive unless the incoming record carries
	// a non-empty replacement.
	Upsert(ctx context.Context, cp *models.Counterparty) error

	GetByTypeAndName(ctx context.Context, cpType, name string) (*models.Counterparty, error)

	// UpsertContact inserts or merges a contact keyed by
	// (counterparty, lowercased email, role) among active contacts.
	UpsertContact(ctx context.Context, contact *models.Contact) error
}

type counterpartyRepository struct{}

// NewCounterpartyRepository creates a new counterparty repository.
func NewCounterpartyRepository() CounterpartyRepository {
	return &counterpartyRepository{}
}

func (r *counterpartyRepository) Upsert(ctx context.Context, cp *models.Counterparty) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO counterparties (type, name, registration_number, tax_id, address, country)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (type, lower(name)) DO UPDATE SET
			registration_number = COALESCE(NULLIF(EXCLUDED.registration_number, ''), counterparties.registration_number),
			tax_id = COALESCE(NULLIF(EXCLUDED.tax_id, ''), counterparties.tax_id),
			address = COALESCE(NULLIF(EXCLUDED.address, ''), counterparties.address),
			country = COALESCE(NULLIF(EXCLUDED.country, ''), counterparties.country),
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err := scope.Querier().QueryRow(ctx, query,
		cp.Type,
		cp.Name,
		cp.RegistrationNumber,
		cp.TaxID,
		cp.Address,
		cp.Country,
	).Scan(&cp.ID, &cp.CreatedAt, &cp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert counterparty: %w", err)
	}

	return nil
}

func (r *counterpartyRepository) GetByTypeAndName(ctx context.Context, cpType, name string) (*models.Counterparty, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `
		SELECT id, type, name, registration_number, tax_id, address, country, created_at, updated_at
		FROM counterparties
		WHERE type = $1 AND lower(name) = lower($2)`

	var cp models.Counterparty
	err := scope.Querier().QueryRow(ctx, query, cpType, name).Scan(
		&cp.ID,
		&cp.Type,
		&cp.Name,
		&cp.RegistrationNumber,
		&cp.TaxID,
		&cp.Address,
		&cp.Country,
		&cp.CreatedAt,
		&cp.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get counterparty: %w", err)
	}

	return &cp, nil
}

func (r *counterpartyRepository) UpsertContact(ctx context.Context, contact *models.Contact) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	query := `
		INSERT INTO contacts (counterparty_id, email, role, full_name, phone, active)
		VALUES ($1, $2, $3, $4, $5, true)
		ON CONFLICT (counterparty_id, lower(email), role) WHERE active DO UPDATE SET
			full_name = COALESCE(NULLIF(EXCLUDED.full_name, ''), contacts.full_name),
			phone = COALESCE(NULLIF(EXCLUDED.phone, ''), contacts.phone),
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err := scope.Querier().QueryRow(ctx, query,
		contact.CounterpartyID,
		contact.Email,
		contact.Role,
		contact.FullName,
		contact.Phone,
	).Scan(&contact.ID, &contact.CreatedAt, &contact.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert contact: %w", err)
	}
	contact.Active = true

	return nil
}

var _ CounterpartyRepository = (*counterpartyRepository)(nil)
