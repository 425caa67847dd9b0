// Package sqlite persists credential and habit data in SQLite.
//
// The same database file backs both the auth.Store and habit.Store
// interfaces. Writes run on a single-connection pool in immediate
// transaction mode, which makes transactions serializable.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/habitkeep/habitkeep/internal/auth"
	"github.com/habitkeep/habitkeep/internal/errorz"
	"github.com/habitkeep/habitkeep/internal/habit"
)

// Store is responsible for interacting with the database.
type Store struct {
	db *sql.DB
}

// New creates a new Store.
func New(db *sql.DB) *Store {
	return &Store{
		db: db,
	}
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (auth.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{
		tx: tx,
	}, nil
}

// GetData returns the stored habit data for the user. Users without any
// stored data get an empty result.
func (s *Store) GetData(ctx context.Context, userID uuid.UUID) (habit.StoredData, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return habit.StoredData{}, err
	}

	data, err := selectHabitData(tx, userID)
	if err != nil {
		return habit.StoredData{}, rollback(tx, err)
	}

	if err := tx.Commit(); err != nil {
		return habit.StoredData{}, errorz.MapDBErr(err)
	}

	return data, nil
}

// ReplaceData replaces the user's full habit state in one transaction.
func (s *Store) ReplaceData(ctx context.Context, userID uuid.UUID, data habit.StoredData) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := replaceHabitData(tx, userID, data); err != nil {
		return rollback(tx, err)
	}

	if err := tx.Commit(); err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func rollback(tx *sql.Tx, err error) error {
	if rErr := tx.Rollback(); rErr != nil {
		return errorz.MapDBErr(rErr)
	}
	return err
}
