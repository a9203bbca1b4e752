package repo_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distline/internal/db"
	"distline/internal/domain"
	"distline/internal/migrate"
	"distline/internal/repo"
)

const ts = "2024-01-01T08:00:00Z"

func newRepo(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)
	r := repo.Repo{DB: conn}
	require.NoError(t, r.InsertGroup(ctx, nil, domain.Group{ID: "north", Label: "North", CreatedAt: ts}))
	return r, ctx
}

func insertOrder(t *testing.T, r repo.Repo, ctx context.Context, primary *int64) domain.ItemRef {
	t.Helper()
	id, err := r.InsertItem(ctx, nil, domain.Item{
		Variant:           domain.VariantOrder,
		CustomerName:      "Dana",
		City:              "Haifa",
		Amount:            decimal.NewFromInt(5),
		AgentID:           "agent-1",
		PrimaryScheduleID: primary,
		Transfer:          domain.NoTransfer(),
		CreatedAt:         ts,
		UpdatedAt:         ts,
	})
	require.NoError(t, err)
	return domain.ItemRef{Variant: domain.VariantOrder, ID: id}
}

func TestUpdateItemScheduleRefusesProducedTarget(t *testing.T) {
	r, ctx := newRepo(t)
	line, err := r.InsertSchedule(ctx, nil, "north", ts)
	require.NoError(t, err)
	ref := insertOrder(t, r, ctx, nil)

	// Produced after the caller validated the destination.
	ok, err := r.MarkProduced(ctx, nil, line.ID, 1, ts)
	require.NoError(t, err)
	require.True(t, ok)

	err = r.UpdateItemSchedule(ctx, nil, ref, &line.ID, ts)
	assert.ErrorIs(t, err, repo.ErrProduced)

	it, err := r.GetItem(ctx, nil, ref)
	require.NoError(t, err)
	assert.Nil(t, it.PrimaryScheduleID)
}

func TestUpdateItemScheduleMovesAndReportsMissingRows(t *testing.T) {
	r, ctx := newRepo(t)
	line, err := r.InsertSchedule(ctx, nil, "north", ts)
	require.NoError(t, err)
	ref := insertOrder(t, r, ctx, nil)

	require.NoError(t, r.UpdateItemSchedule(ctx, nil, ref, &line.ID, ts))
	it, err := r.GetItem(ctx, nil, ref)
	require.NoError(t, err)
	require.NotNil(t, it.PrimaryScheduleID)
	assert.Equal(t, line.ID, *it.PrimaryScheduleID)

	require.NoError(t, r.UpdateItemSchedule(ctx, nil, ref, nil, ts))

	missing := int64(999)
	assert.ErrorIs(t, r.UpdateItemSchedule(ctx, nil, ref, &missing, ts), repo.ErrNotFound)
	assert.ErrorIs(t, r.UpdateItemSchedule(ctx, nil, domain.ItemRef{Variant: domain.VariantOrder, ID: 999}, nil, ts), repo.ErrNotFound)
}
