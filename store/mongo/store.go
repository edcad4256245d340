// Package mongo provides a MongoDB journal store built on Grove ORM.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/lien"
	"github.com/xraph/lien/event"
	lienstore "github.com/xraph/lien/store"
)

// Collection name constants.
const (
	colOperations = "lien_operations"
)

// listPageSize is how many operation documents List reads per round trip.
const listPageSize = 200

// compile-time interface check
var _ lienstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all lien collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("lien/mongo: migrate %s indexes: %w", col, err)
		}
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

// Append stores the batch as one operation document.
func (s *Store) Append(ctx context.Context, events []*event.Event) error {
	if len(events) == 0 {
		return nil
	}
	m := toOperationModel(events)
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %d", lien.ErrDuplicateSeq, m.FirstSeq)
		}
		return fmt.Errorf("lien/mongo: append events: %w", err)
	}
	return nil
}

// List returns matching events in sequence order.
func (s *Store) List(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	filter := bson.M{"last_seq": bson.M{"$gt": int64(opts.AfterSeq)}}
	if opts.ClaimID != 0 {
		filter["claim_ids"] = int64(opts.ClaimID)
	}
	if opts.Actor != "" {
		filter["actor"] = opts.Actor
	}
	if len(opts.Kinds) > 0 {
		kinds := make(bson.A, len(opts.Kinds))
		for i, k := range opts.Kinds {
			kinds[i] = string(k)
		}
		filter["kinds"] = bson.M{"$in": kinds}
	}

	result := make([]*event.Event, 0)
	var skip int64
	for {
		var models []operationModel
		err := s.mdb.NewFind(&models).
			Filter(filter).
			Sort(bson.D{{Key: "first_seq", Value: 1}}).
			Skip(skip).
			Limit(listPageSize).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("lien/mongo: list events: %w", err)
		}

		for i := range models {
			events, err := fromOperationModel(&models[i])
			if err != nil {
				return nil, err
			}
			for _, e := range events {
				if !opts.Matches(e) {
					continue
				}
				result = append(result, e)
				if opts.Limit > 0 && len(result) == opts.Limit {
					return result, nil
				}
			}
		}

		if len(models) < listPageSize {
			return result, nil
		}
		skip += int64(len(models))
	}
}

// LastSeq returns the highest stored sequence number.
func (s *Store) LastSeq(ctx context.Context) (uint64, error) {
	var m operationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "last_seq", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("lien/mongo: last seq: %w", err)
	}
	return uint64(m.LastSeq), nil
}

// ==================== Helpers ====================

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all lien collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colOperations: {
			{
				Keys:    bson.D{{Key: "first_seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "last_seq", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "events.id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "claim_ids", Value: 1}, {Key: "first_seq", Value: 1}}},
			{Keys: bson.D{{Key: "actor", Value: 1}, {Key: "first_seq", Value: 1}}},
			{Keys: bson.D{{Key: "kinds", Value: 1}, {Key: "first_seq", Value: 1}}},
		},
	}
}
