package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"distline/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func order(id int64, primary *int64, ref domain.TransferRef) domain.Item {
	return domain.Item{Variant: domain.VariantOrder, ID: id, CustomerName: "Dana", City: "Tel Aviv", PrimaryScheduleID: primary, Transfer: ref}
}

func TestEffectiveScheduleNoTransfer(t *testing.T) {
	it := order(1, ptr[int64](10), domain.NoTransfer())
	assert.Equal(t, []int64{10}, EffectiveScheduleIDs(it))
	assert.False(t, IsTransferred(it))
	_, ok := TransferredFrom(it)
	assert.False(t, ok)
}

func TestEffectiveScheduleSingleTransferReplacesPrimary(t *testing.T) {
	it := order(1, ptr[int64](10), domain.SingleTransfer(17))
	assert.Equal(t, []int64{17}, EffectiveScheduleIDs(it))
	assert.True(t, IsTransferred(it))
	from, ok := TransferredFrom(it)
	assert.True(t, ok)
	assert.Equal(t, int64(10), from)
	assert.False(t, IsMember(it, 10))
	assert.True(t, IsMember(it, 17))
}

func TestEffectiveScheduleRecordBehavesLikeSingle(t *testing.T) {
	it := order(1, ptr[int64](10), domain.RecordTransfer(17))
	assert.Equal(t, []int64{17}, EffectiveScheduleIDs(it))
	assert.True(t, IsTransferred(it))
}

func TestEffectiveScheduleListUnionsWithPrimary(t *testing.T) {
	it := order(1, ptr[int64](10), domain.ListTransfer(3, 4))
	assert.Equal(t, []int64{3, 4, 10}, EffectiveScheduleIDs(it))
	assert.True(t, IsTransferred(it))

	empty := order(2, ptr[int64](10), domain.ListTransfer())
	assert.Equal(t, []int64{10}, EffectiveScheduleIDs(empty))
	assert.False(t, IsTransferred(empty))

	backHome := order(3, ptr[int64](10), domain.ListTransfer(4, 10))
	assert.False(t, IsTransferred(backHome))
}

func TestEffectiveScheduleTransferWithoutPrimary(t *testing.T) {
	it := order(1, nil, domain.SingleTransfer(17))
	assert.Equal(t, []int64{17}, EffectiveScheduleIDs(it))
	assert.False(t, IsTransferred(it))
}

func TestEffectiveScheduleTransferToSelf(t *testing.T) {
	it := order(1, ptr[int64](10), domain.SingleTransfer(10))
	assert.Equal(t, []int64{10}, EffectiveScheduleIDs(it))
	assert.False(t, IsTransferred(it))
}

func TestCancelledItemsBelongNowhere(t *testing.T) {
	it := order(1, ptr[int64](10), domain.SingleTransfer(17))
	it.CancelledAt = ptr("2024-01-01T00:00:00Z")
	assert.Empty(t, EffectiveScheduleIDs(it))
	assert.False(t, IsMember(it, 17))
}

func TestEffectiveSchedulesNoDuplicates(t *testing.T) {
	refs := []domain.TransferRef{
		domain.NoTransfer(), domain.SingleTransfer(5), domain.RecordTransfer(10),
		domain.ListTransfer(5, 5, 10), domain.ListTransfer(),
	}
	for _, ref := range refs {
		ids := EffectiveScheduleIDs(order(1, ptr[int64](10), ref))
		seen := map[int64]bool{}
		for _, id := range ids {
			assert.False(t, seen[id], "duplicate %d for %s", id, ref.Kind())
			seen[id] = true
		}
	}
}

func TestResolveCustomer(t *testing.T) {
	it := order(7, nil, domain.NoTransfer())
	dirs := NewDirectives([]domain.ReplacementDirective{
		{Variant: domain.VariantOrder, ItemID: 7, CustomerName: "Noa", City: "Haifa", ExistsInSystem: true},
		{Variant: domain.VariantReturn, ItemID: 8, CustomerName: "Other", City: "Eilat"},
	})

	c := ResolveCustomer(it, dirs)
	assert.True(t, c.Substituted)
	assert.Equal(t, "Noa", c.Name)
	assert.Equal(t, "Haifa", c.City)
	assert.Equal(t, "Dana", c.Original.Name)
	assert.True(t, c.ExistsInSystem)

	plain := ResolveCustomer(order(8, nil, domain.NoTransfer()), dirs)
	assert.False(t, plain.Substituted)
	assert.Equal(t, "Dana", plain.Name)
}

func TestIdentityKeyNormalizes(t *testing.T) {
	a := Identity{Name: " Dana ", City: "tel aviv"}
	b := Identity{Name: "dana", City: "Tel Aviv"}
	assert.Equal(t, a.Key(), b.Key())
}

func TestCompletelyTransferred(t *testing.T) {
	items := []domain.Item{order(1, nil, domain.NoTransfer()), order(2, nil, domain.NoTransfer())}
	items[1].CustomerName = "Yael"
	dirs := NewDirectives([]domain.ReplacementDirective{
		{Variant: domain.VariantOrder, ItemID: 1, CustomerName: "Noa", City: "Haifa"},
	})
	assert.Equal(t, []Identity{{Name: "Dana", City: "Tel Aviv"}}, CompletelyTransferred(items, dirs))

	items = append(items, order(3, nil, domain.NoTransfer()))
	assert.Empty(t, CompletelyTransferred(items, dirs))
}

func TestCompletelyTransferredIgnoresDirectivesToSameCustomer(t *testing.T) {
	items := []domain.Item{order(1, nil, domain.NoTransfer())}
	dirs := NewDirectives([]domain.ReplacementDirective{
		{Variant: domain.VariantOrder, ItemID: 1, CustomerName: " dana ", City: "TEL AVIV"},
	})
	assert.True(t, ResolveCustomer(items[0], dirs).Substituted)
	assert.Empty(t, CompletelyTransferred(items, dirs))
}
