package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type contextKey string

const (
	// ScopeKey is the context key for storing the scoped database connection.
	ScopeKey contextKey = "dbScope"
)

// GetScope retrieves the scoped database connection from context.
// Returns nil and false if not present.
func GetScope(ctx context.Context) (*Scope, bool) {
	scope, ok := ctx.Value(ScopeKey).(*Scope)
	return scope, ok
}

// SetScope stores the scoped database connection in context.
func SetScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, ScopeKey, scope)
}

// ReadScope acquires a connection, stores it in the returned context, and
// returns a cleanup function that releases it. Used for read-only phases that
// do not need a transaction.
func (db *DB) ReadScope(ctx context.Context) (context.Context, func(), error) {
	scope, err := db.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	return SetScope(ctx, scope), func() { scope.Close() }, nil
}

// Transact acquires a connection, sets the organization context, opens a
// transaction, and runs fn with the scoped context. The transaction commits
// when fn returns nil and rolls back otherwise; rollback errors are
// secondary to fn's own error.
func (db *DB) Transact(ctx context.Context, orgID uuid.UUID, fn func(ctx context.Context) error) error {
	scope, err := db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer scope.Close()

	if err := scope.SetOrg(ctx, orgID); err != nil {
		return fmt.Errorf("failed to set org context: %w", err)
	}
	if err := scope.Begin(ctx); err != nil {
		return err
	}

	if err := fn(SetScope(ctx, scope)); err != nil {
		_ = scope.Rollback(ctx)
		return err
	}

	if err := scope.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
