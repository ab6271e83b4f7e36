package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the subset of pgx operations repositories need. Both a pooled
// connection and an open transaction satisfy it, so repositories are oblivious
// to whether they run standalone or inside a batch transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Scope wraps a connection with optional organization context and an optional
// open transaction. When an organization is set, app.current_org_id is set on
// the session for RLS policy evaluation.
type Scope struct {
	Conn *pgxpool.Conn
	tx   pgx.Tx
}

// Querier returns the open transaction if one is active, otherwise the
// underlying connection.
func (s *Scope) Querier() Querier {
	if s.tx != nil {
		return s.tx
	}
	return s.Conn
}

// Begin opens a transaction on the scope's connection. All subsequent Querier
// calls go through the transaction until Commit or Rollback.
func (s *Scope) Begin(ctx context.Context) error {
	if s.tx != nil {
		return fmt.Errorf("transaction already open on scope")
	}
	tx, err := s.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	s.tx = tx
	return nil
}

// Commit commits the scope's open transaction.
func (s *Scope) Commit(ctx context.Context) error {
	if s.tx == nil {
		return fmt.Errorf("no open transaction on scope")
	}
	err := s.tx.Commit(ctx)
	s.tx = nil
	return err
}

// Rollback discards the scope's open transaction. Safe to call after Commit.
func (s *Scope) Rollback(ctx context.Context) error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Rollback(ctx)
	s.tx = nil
	if err == pgx.ErrTxClosed {
		return nil
	}
	return err
}

// SetOrg sets the organization context on the session for RLS evaluation.
func (s *Scope) SetOrg(ctx context.Context, orgID uuid.UUID) error {
	_, err := s.Querier().Exec(ctx, "SELECT set_config('app.current_org_id', $1, false)", orgID.String())
	return err
}

// Close resets organization context and releases the connection to the pool.
// This MUST be called to prevent org context from leaking to the next caller.
func (s *Scope) Close() {
	if s.Conn == nil {
		return
	}
	if s.tx != nil {
		_ = s.tx.Rollback(context.Background())
		s.tx = nil
	}
	_, _ = s.Conn.Exec(context.Background(), "RESET app.current_org_id")
	s.Conn.Release()
}

// Acquire takes a connection from the pool and wraps it in a Scope.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) Acquire(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Scope{Conn: conn}, nil
}
