package board

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distline/internal/config"
	"distline/internal/domain"
	derrors "distline/internal/errors"
	"distline/internal/zones"
)

func ptr[T any](v T) *T { return &v }

type fakeStore struct {
	snap domain.Snapshot
}

func (f fakeStore) Snapshot(context.Context) (domain.Snapshot, error) { return f.snap, nil }

func (f fakeStore) ListSchedules(context.Context) ([]domain.Schedule, error) {
	return f.snap.Schedules, nil
}

func (f fakeStore) GetSchedule(_ context.Context, id int64) (domain.Schedule, error) {
	for _, s := range f.snap.Schedules {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Schedule{}, errors.New("missing")
}

func (f fakeStore) MoveItem(context.Context, domain.Actor, domain.ItemRef, *int64) (domain.Item, error) {
	return domain.Item{}, nil
}

func (f fakeStore) ResetSchedule(context.Context, domain.Actor, int64) error { return nil }

func (f fakeStore) SetPinned(context.Context, domain.Actor, int64, bool) (domain.Schedule, error) {
	return domain.Schedule{}, nil
}

func order(id int64, agent string, primary *int64) domain.Item {
	return domain.Item{Variant: domain.VariantOrder, ID: id, CustomerName: "Dana", City: "Haifa", AgentID: agent, Amount: decimal.NewFromInt(10), PrimaryScheduleID: primary}
}

func newService() Service {
	store := fakeStore{snap: domain.Snapshot{
		Schedules: []domain.Schedule{
			{ID: 1, GroupID: "north"},
			{ID: 2, GroupID: "south"},
			{ID: 3, GroupID: "north", ScheduledDate: ptr("2024-02-01")},
		},
		Items: []domain.Item{
			order(10, "agent-a", ptr(int64(1))),
			order(11, "agent-b", ptr(int64(2))),
			order(12, "agent-b", ptr(int64(3))),
			order(13, "agent-a", nil),
		},
		Groups: []domain.Group{{ID: "north", AgentIDs: []string{"agent-a"}}, {ID: "south"}},
	}}
	cfg := config.Default()
	return Service{Store: store, Zones: zones.NewManager(store, 3, nil), Config: cfg}
}

func TestBoardForAdmin(t *testing.T) {
	svc := newService()
	view, err := svc.Board(context.Background(), domain.Actor{ID: "root", Role: domain.RoleAdmin})
	require.NoError(t, err)

	require.Len(t, view.Zones, 3)
	require.NotNil(t, view.Zones[0].Line)
	assert.Equal(t, int64(1), view.Zones[0].Line.Schedule.ID)
	require.NotNil(t, view.Zones[1].Line)
	assert.Equal(t, int64(2), view.Zones[1].Line.Schedule.ID)
	assert.Nil(t, view.Zones[2].Line)

	require.Len(t, view.Schedules, 1)
	assert.Equal(t, domain.StateScheduled, view.Schedules[0].State)
	assert.Equal(t, 1, view.Schedules[0].Aggregate.TotalOrders)

	require.Len(t, view.Pool, 1)
	assert.Equal(t, int64(13), view.Pool[0].Item.ID)
}

func TestBoardHidesForeignZonesFromAgents(t *testing.T) {
	svc := newService()
	view, err := svc.Board(context.Background(), domain.Actor{ID: "agent-a", Role: domain.RoleAgent})
	require.NoError(t, err)

	require.NotNil(t, view.Zones[0].Line)
	assert.Nil(t, view.Zones[1].Line)
	require.Len(t, view.Schedules, 1)
	assert.Equal(t, int64(3), view.Schedules[0].Schedule.ID)
}

func TestSchedulesForRestrictedAgent(t *testing.T) {
	svc := newService()
	actor := domain.Actor{ID: "agent-b", Role: domain.RoleRestrictedAgent}
	list, err := svc.Schedules(context.Background(), actor, "")
	require.NoError(t, err)
	var ids []int64
	for _, v := range list {
		ids = append(ids, v.Schedule.ID)
	}
	assert.Equal(t, []int64{2, 3}, ids)

	_, err = svc.Schedule(context.Background(), actor, 1)
	assert.Equal(t, derrors.CodeNotFound, derrors.CodeOf(err))

	dated, err := svc.Schedules(context.Background(), actor, domain.StateScheduled)
	require.NoError(t, err)
	require.Len(t, dated, 1)
	assert.Equal(t, int64(3), dated[0].Schedule.ID)
}

func TestUnrestrictedAgentSeesEverything(t *testing.T) {
	svc := newService()
	svc.Config.Visibility.UnrestrictedAgents = []string{"agent-b"}
	list, err := svc.Schedules(context.Background(), domain.Actor{ID: "agent-b", Role: domain.RoleAgent}, "")
	require.NoError(t, err)
	assert.Len(t, list, 3)
}
