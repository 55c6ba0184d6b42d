package storage

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/agencyhub/libs/db"
	"github.com/md-rashed-zaman/agencyhub/services/booking-service/internal/outbox"
)

//go:embed schema.sql
var schema string

// Postgres implements Store on a pgx pool. Appointment writes run in
// SERIALIZABLE transactions and the appointments table carries an exclusion
// constraint per host, so concurrent bookings of one interval cannot both commit.
type Postgres struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

var _ Store = (*Postgres)(nil)

func NewPostgres(pool *db.Pool, repo *outbox.Repository) *Postgres {
	if repo == nil {
		repo = outbox.NewRepository()
	}
	return &Postgres{pool: pool, outbox: repo}
}

// Migrate applies the idempotent schema.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (p *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx, outbox: p.outbox}); err != nil {
		return mapError(err)
	}
	return mapError(tx.Commit(ctx))
}

// IsConflict reports whether err is a PostgreSQL exclusion, unique or
// serialization violation.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "23P01", "23505", "40001":
		return true
	}
	return false
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case IsConflict(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case IsNotFound(err):
		return ErrNotFound
	}
	return err
}
