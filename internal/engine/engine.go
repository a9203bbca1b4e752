package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"distline/internal/config"
	"distline/internal/domain"
	derrors "distline/internal/errors"
	"distline/internal/events"
	"distline/internal/logger"
	"distline/internal/metrics"
	"distline/internal/repo"
	"distline/internal/sequence"
)

// itemCompleter is the write used by the completion cascade.
type itemCompleter interface {
	MarkItemDone(ctx context.Context, tx *sql.Tx, ref domain.ItemRef, ts string) (bool, error)
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Allocator sequence.Allocator
	Log       *logger.Logger
	Metrics   *metrics.Metrics
	Now       func() time.Time

	completer itemCompleter
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{Now: time.Now},
		Config:    cfg,
		Allocator: sequence.SQLAllocator{Name: cfg.Production.SequenceName},
		Log:       logger.Nop(),
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *logger.Logger {
	if e.Log != nil {
		return e.Log
	}
	return logger.Nop()
}

func (e Engine) allocator() sequence.Allocator {
	if e.Allocator != nil {
		return e.Allocator
	}
	return sequence.SQLAllocator{}
}

func (e Engine) itemCompleter() itemCompleter {
	if e.completer != nil {
		return e.completer
	}
	return e.Repo
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// inTx runs fn in one transaction. Errors from fn are returned as is; begin
// and commit failures are store write failures.
func (e Engine) inTx(ctx context.Context, step string, fn func(tx *sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return derrors.StoreWrite(err, step)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return derrors.StoreWrite(err, step)
	}
	return nil
}

// readErr turns repo.ErrNotFound into a coded not-found error.
func readErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, repo.ErrNotFound) {
		return derrors.Wrap(derrors.CodeNotFound, err, msg+" not found")
	}
	return derrors.Wrap(derrors.CodeInternal, err, "read "+msg)
}

// writeErr classifies a failed write. A missing row is not found; anything
// else is a store write failure.
func writeErr(err error, step string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repo.ErrNotFound) {
		return derrors.Wrap(derrors.CodeNotFound, err, step)
	}
	return derrors.StoreWrite(err, step)
}

// Snapshot reads everything the board is computed from in one transaction.
func (e Engine) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return snap, derrors.Wrap(derrors.CodeInternal, err, "begin snapshot")
	}
	defer tx.Rollback()
	if snap.Schedules, err = e.Repo.ListSchedules(ctx, tx, repo.ScheduleFilters{}); err != nil {
		return snap, readErr(err, "schedules")
	}
	if snap.Items, err = e.Repo.ListItems(ctx, tx, repo.ItemFilters{}); err != nil {
		return snap, readErr(err, "items")
	}
	if snap.Directives, err = e.Repo.ListDirectives(ctx, tx); err != nil {
		return snap, readErr(err, "directives")
	}
	if snap.Groups, err = e.Repo.ListGroups(ctx, tx); err != nil {
		return snap, readErr(err, "groups")
	}
	return snap, nil
}

func (e Engine) ListSchedules(ctx context.Context) ([]domain.Schedule, error) {
	list, err := e.Repo.ListSchedules(ctx, nil, repo.ScheduleFilters{})
	if err != nil {
		return nil, readErr(err, "schedules")
	}
	return list, nil
}

func (e Engine) GetSchedule(ctx context.Context, id int64) (domain.Schedule, error) {
	s, err := e.Repo.GetSchedule(ctx, nil, id)
	if err != nil {
		return s, readErr(err, "schedule %d", id)
	}
	return s, nil
}

func (e Engine) GetItem(ctx context.Context, ref domain.ItemRef) (domain.Item, error) {
	it, err := e.Repo.GetItem(ctx, nil, ref)
	if err != nil {
		return it, readErr(err, "%s", ref)
	}
	return it, nil
}
