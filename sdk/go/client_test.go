package distlinesdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distline/internal/config"
	"distline/internal/db"
	"distline/internal/engine"
	"distline/internal/migrate"
	"distline/internal/server"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	_, err = migrate.Migrate(ctx, conn)
	require.NoError(t, err)

	e := engine.New(conn, config.Default())
	admin, err := e.Bootstrap(ctx, "admin-1")
	require.NoError(t, err)
	_, err = e.CreateGroup(ctx, admin, "north", "")
	require.NoError(t, err)
	key, err := e.CreateAPIKey(ctx, admin, "", "sdk")
	require.NoError(t, err)

	handler, err := server.New(server.Config{Engine: e, BasePath: "/v0"})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := New(srv.URL)
	c.APIKey = key.Key
	return c
}

func TestClientProducesASchedule(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()

	sched, err := c.CreateSchedule(ctx, "north")
	require.NoError(t, err)
	item, err := c.CreateItem(ctx, "order", NewItem{CustomerName: "Dana", City: "Haifa", Amount: "42.50"})
	require.NoError(t, err)

	zones, err := c.Zones(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, zones)
	require.NotNil(t, zones[0].ScheduleID)
	_, err = c.DropItem(ctx, zones[0].Index, "order", item.ID)
	require.NoError(t, err)

	board, err := c.Board(ctx)
	require.NoError(t, err)
	assert.Empty(t, board.Pool)

	res, err := c.Produce(ctx, sched.ID)
	require.NoError(t, err)
	require.NotNil(t, res.Schedule.ProductionNumber)
	assert.Equal(t, 1, res.Completed)

	produced, err := c.Schedules(ctx, "produced")
	require.NoError(t, err)
	require.Len(t, produced, 1)
	assert.Equal(t, 1, produced[0].Aggregate.CompletedOrders)
	assert.Equal(t, "42.5", produced[0].Aggregate.OrderTotal)

	_, err = c.Produce(ctx, sched.ID)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "VALIDATION_REJECTION", apiErr.Code)
}

func TestClientMovesItemBackToPool(t *testing.T) {
	c := newClient(t)
	ctx := context.Background()
	sched, err := c.CreateSchedule(ctx, "north")
	require.NoError(t, err)
	item, err := c.CreateItem(ctx, "return", NewItem{CustomerName: "Omer", City: "Acre", Amount: "3", PrimaryScheduleID: &sched.ID})
	require.NoError(t, err)
	require.NotNil(t, item.PrimaryScheduleID)

	moved, err := c.MoveItem(ctx, "return", item.ID, nil)
	require.NoError(t, err)
	assert.Nil(t, moved.PrimaryScheduleID)

	page, err := c.EventsPage(ctx, 1, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "item.moved", page.Items[0].Type)
}

func TestClientReportsAuthErrors(t *testing.T) {
	c := newClient(t)
	c.APIKey = "dl_invalid"
	_, err := c.Board(context.Background())
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", apiErr.Code)
}
