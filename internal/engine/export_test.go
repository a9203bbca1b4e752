package engine

import (
	"context"
	"database/sql"

	"distline/internal/domain"
)

type ItemCompleter interface {
	MarkItemDone(ctx context.Context, tx *sql.Tx, ref domain.ItemRef, ts string) (bool, error)
}

// WithCompleter swaps the cascade write so tests can inject failures.
func WithCompleter(e Engine, c ItemCompleter) Engine {
	e.completer = c
	return e
}
