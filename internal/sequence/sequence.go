// Package sequence allocates production numbers. Numbers are strictly
// increasing and never handed out twice, even after the schedule that held
// one is deleted.
package sequence

import (
	"context"
	"database/sql"
	"fmt"
)

const DefaultName = "production"

// Allocator hands out the next production number. Implementations may use tx
// to make the allocation part of the producing transaction.
type Allocator interface {
	Next(ctx context.Context, tx *sql.Tx) (int64, error)
}

// SQLAllocator increments a counter row inside the caller's transaction, so
// a rolled back production releases its number. The counter never falls
// behind the highest number stored on a schedule, so switching sequence names
// cannot hand out a used number.
type SQLAllocator struct {
	Name string
}

func (a SQLAllocator) name() string {
	if a.Name == "" {
		return DefaultName
	}
	return a.Name
}

func (a SQLAllocator) Next(ctx context.Context, tx *sql.Tx) (int64, error) {
	if tx == nil {
		return 0, fmt.Errorf("sql allocator requires a transaction")
	}
	var next int64
	err := tx.QueryRowContext(ctx, `UPDATE production_sequence
SET value = MAX(value, (SELECT COALESCE(MAX(production_number), 0) FROM schedules)) + 1
WHERE name=? RETURNING value`, a.name()).Scan(&next)
	if err == sql.ErrNoRows {
		floor, err := Floor(ctx, tx, a.name())
		if err != nil {
			return 0, err
		}
		next = floor + 1
		if _, err := tx.ExecContext(ctx, `INSERT INTO production_sequence(name, value) VALUES (?, ?)`, a.name(), next); err != nil {
			return 0, fmt.Errorf("init sequence %s: %w", a.name(), err)
		}
		return next, nil
	}
	if err != nil {
		return 0, fmt.Errorf("advance sequence %s: %w", a.name(), err)
	}
	return next, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Floor returns the highest number ever handed out: the larger of the counter
// and the highest number still stored on a schedule.
func Floor(ctx context.Context, q queryRower, name string) (int64, error) {
	if name == "" {
		name = DefaultName
	}
	var floor int64
	err := q.QueryRowContext(ctx, `SELECT MAX(
  COALESCE((SELECT value FROM production_sequence WHERE name=?), 0),
  COALESCE((SELECT MAX(production_number) FROM schedules), 0))`, name).Scan(&floor)
	if err != nil {
		return 0, fmt.Errorf("read sequence floor: %w", err)
	}
	return floor, nil
}
