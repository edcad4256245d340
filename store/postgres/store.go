// Package postgres provides a PostgreSQL journal store built on Grove ORM.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/lien/event"
	lienstore "github.com/xraph/lien/store"
)

// compile-time interface check
var _ lienstore.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("lien/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("lien/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Journal ====================

// Append writes the batch with a single multi-row INSERT, so either every
// event is stored or none is.
func (s *Store) Append(ctx context.Context, events []*event.Event) error {
	if len(events) == 0 {
		return nil
	}
	models := make([]eventModel, len(events))
	for i, e := range events {
		models[i] = *toEventModel(e)
	}
	if _, err := s.pg.NewInsert(&models).Exec(ctx); err != nil {
		return fmt.Errorf("lien/postgres: append events: %w", err)
	}
	return nil
}

// List returns matching events in sequence order.
func (s *Store) List(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.pg.NewSelect(&models).Where("seq > $1", int64(opts.AfterSeq))

	argIdx := 1
	if opts.ClaimID != 0 {
		argIdx++
		q = q.Where(fmt.Sprintf("claim_id = $%d", argIdx), int64(opts.ClaimID))
	}
	if opts.Actor != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("actor = $%d", argIdx), opts.Actor)
	}
	if len(opts.Kinds) > 0 {
		placeholders := make([]string, len(opts.Kinds))
		args := make([]any, len(opts.Kinds))
		for i, k := range opts.Kinds {
			argIdx++
			placeholders[i] = fmt.Sprintf("$%d", argIdx)
			args[i] = string(k)
		}
		q = q.Where("kind IN ("+strings.Join(placeholders, ", ")+")", args...)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	q = q.OrderExpr("seq ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("lien/postgres: list events: %w", err)
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		e, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// LastSeq returns the highest stored sequence number.
func (s *Store) LastSeq(ctx context.Context) (uint64, error) {
	var last int64
	err := s.pg.NewRaw(`SELECT COALESCE(MAX(seq), 0) FROM lien_events`).Scan(ctx, &last)
	if err != nil {
		return 0, fmt.Errorf("lien/postgres: last seq: %w", err)
	}
	return uint64(last), nil
}
