package aggregate

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"distline/internal/domain"
	"distline/internal/resolve"
)

func ptr[T any](v T) *T { return &v }

func item(variant domain.Variant, id int64, name, city string, primary int64, amount string) domain.Item {
	return domain.Item{
		Variant:           variant,
		ID:                id,
		CustomerName:      name,
		City:              city,
		Amount:            decimal.RequireFromString(amount),
		AgentID:           "agent-1",
		PrimaryScheduleID: ptr(primary),
	}
}

func TestAggregateSubstitutedCustomerCountsSeparately(t *testing.T) {
	items := []domain.Item{
		item(domain.VariantOrder, 1, "Dana", "Tel Aviv", 5, "100"),
		item(domain.VariantOrder, 2, "Dana", "Tel Aviv", 5, "50.5"),
	}
	dirs := resolve.NewDirectives([]domain.ReplacementDirective{
		{Variant: domain.VariantOrder, ItemID: 1, CustomerName: "Noa", City: "Haifa", ExistsInSystem: true},
	})

	agg := Aggregate(5, items, dirs)
	assert.Equal(t, 2, agg.UniqueCustomers)
	require.Len(t, agg.Customers, 2)
	for _, c := range agg.Customers {
		assert.False(t, c.CompletelyTransferred)
	}
	assert.True(t, agg.OrderTotal.Equal(decimal.RequireFromString("150.5")))
	assert.Equal(t, 2, agg.TotalOrders)
}

func TestAggregateListsFullySubstitutedOriginal(t *testing.T) {
	items := []domain.Item{item(domain.VariantOrder, 1, "Dana", "Tel Aviv", 5, "10")}
	dirs := resolve.NewDirectives([]domain.ReplacementDirective{
		{Variant: domain.VariantOrder, ItemID: 1, CustomerName: "Noa", City: "Haifa"},
	})

	agg := Aggregate(5, items, dirs)
	assert.Equal(t, 1, agg.UniqueCustomers)
	require.Len(t, agg.Customers, 2)
	assert.Equal(t, "Noa", agg.Customers[0].Identity.Name)
	assert.True(t, agg.Customers[0].Substituted)
	assert.False(t, agg.Customers[0].ExistsInSystem)
	assert.Equal(t, "Dana", agg.Customers[1].Identity.Name)
	assert.True(t, agg.Customers[1].CompletelyTransferred)
}

func TestAggregateCountsCompletionAndSkipsCancelled(t *testing.T) {
	done := item(domain.VariantOrder, 1, "A", "X", 5, "10")
	done.CompletedAt = ptr("2024-01-01T00:00:00Z")
	open := item(domain.VariantOrder, 2, "B", "X", 5, "20")
	cancelled := item(domain.VariantOrder, 3, "C", "X", 5, "1000")
	cancelled.CancelledAt = ptr("2024-01-01T00:00:00Z")
	ret := item(domain.VariantReturn, 1, "A", "X", 5, "7")
	ret.CompletedAt = ptr("2024-01-01T00:00:00Z")
	cancelledReturn := item(domain.VariantReturn, 2, "D", "X", 5, "3")
	cancelledReturn.CancelledAt = ptr("2024-01-01T00:00:00Z")

	agg := Aggregate(5, []domain.Item{done, open, cancelled, ret, cancelledReturn}, nil)
	assert.Equal(t, 1, agg.CompletedOrders)
	assert.Equal(t, 2, agg.TotalOrders)
	assert.Equal(t, 1, agg.CompletedReturns)
	assert.Equal(t, 1, agg.TotalReturns)
	assert.True(t, agg.OrderTotal.Equal(decimal.NewFromInt(30)))
	assert.True(t, agg.ReturnTotal.Equal(decimal.NewFromInt(7)))
	assert.Equal(t, 2, agg.UniqueCustomers)
}

func TestAggregateFlagsTransfersAndModifications(t *testing.T) {
	moved := item(domain.VariantOrder, 1, "A", "X", 10, "1")
	moved.Transfer = domain.SingleTransfer(17)
	edited := item(domain.VariantReturn, 4, "B", "X", 17, "1")
	edited.Modified = true

	agg := Aggregate(17, []domain.Item{moved, edited}, nil)
	require.Len(t, agg.Orders, 1)
	assert.True(t, agg.Orders[0].Transferred)
	require.NotNil(t, agg.Orders[0].TransferredFrom)
	assert.Equal(t, int64(10), *agg.Orders[0].TransferredFrom)
	require.Len(t, agg.Returns, 1)
	assert.True(t, agg.Returns[0].Modified)
	assert.True(t, agg.AnyTransferred)
	assert.True(t, agg.AnyModified)

	assert.Equal(t, 0, Aggregate(10, []domain.Item{moved}, nil).TotalOrders)
}

func TestAggregateEmptySchedule(t *testing.T) {
	agg := Aggregate(99, nil, nil)
	assert.Equal(t, 0, agg.UniqueCustomers)
	assert.True(t, agg.OrderTotal.IsZero())
	assert.Empty(t, agg.Orders)
	assert.Empty(t, agg.Returns)
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	items := []domain.Item{
		item(domain.VariantOrder, 1, "Dana", "Tel Aviv", 5, "1.10"),
		item(domain.VariantOrder, 2, "Yael", "Haifa", 5, "2.20"),
		item(domain.VariantReturn, 1, "Dana", "Tel Aviv", 5, "3.30"),
		item(domain.VariantReturn, 2, "Omer", "Eilat", 5, "4.40"),
		item(domain.VariantOrder, 3, "Omer", "Eilat", 6, "5.50"),
	}
	items[4].Transfer = domain.ListTransfer(5)
	dirs := resolve.NewDirectives([]domain.ReplacementDirective{
		{Variant: domain.VariantReturn, ItemID: 2, CustomerName: "Dana", City: "Tel Aviv", ExistsInSystem: true},
	})

	want := Aggregate(5, items, dirs)
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.Item(nil), items...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := Aggregate(5, shuffled, dirs)
		assert.Equal(t, want.UniqueCustomers, got.UniqueCustomers)
		assert.True(t, want.OrderTotal.Equal(got.OrderTotal))
		assert.True(t, want.ReturnTotal.Equal(got.ReturnTotal))
		assert.Equal(t, want.Orders, got.Orders)
		assert.Equal(t, want.Returns, got.Returns)
		assert.Equal(t, want.Customers, got.Customers)
	}
	assert.Equal(t, 3, want.TotalOrders)
}

func TestViewerFilter(t *testing.T) {
	snap := domain.Snapshot{
		Groups: []domain.Group{
			{ID: "north", AgentIDs: []string{"agent-1"}},
			{ID: "south", AgentIDs: []string{"agent-2"}},
		},
		Schedules: []domain.Schedule{{ID: 1, GroupID: "north"}, {ID: 2, GroupID: "south"}},
		Items: []domain.Item{
			{Variant: domain.VariantOrder, ID: 1, AgentID: "agent-2", PrimaryScheduleID: ptr[int64](1)},
			{Variant: domain.VariantOrder, ID: 2, AgentID: "agent-2", PrimaryScheduleID: ptr[int64](2)},
			{Variant: domain.VariantOrder, ID: 3, AgentID: "agent-1"},
			{Variant: domain.VariantOrder, ID: 4, AgentID: "agent-3", PrimaryScheduleID: ptr[int64](2)},
		},
	}

	admin := Viewer{ID: "root", Role: domain.RoleAdmin}.Filter(snap)
	assert.Len(t, admin.Items, 4)

	special := Viewer{ID: "agent-9", Role: domain.RoleAgent, Unrestricted: true}.Filter(snap)
	assert.Len(t, special.Schedules, 2)

	agent := Viewer{ID: "agent-1", Role: domain.RoleAgent}.Filter(snap)
	require.Len(t, agent.Schedules, 1)
	assert.Equal(t, int64(1), agent.Schedules[0].ID)
	assert.ElementsMatch(t, []int64{1, 3}, itemIDs(agent.Items))

	restricted := Viewer{ID: "agent-2", Role: domain.RoleRestrictedAgent}.Filter(snap)
	assert.ElementsMatch(t, []int64{1, 2}, itemIDs(restricted.Items))
	assert.Len(t, restricted.Schedules, 2)
	assert.Equal(t, 1, Aggregate(2, restricted.Items, nil).TotalOrders)
}

func itemIDs(items []domain.Item) []int64 {
	var out []int64
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}
