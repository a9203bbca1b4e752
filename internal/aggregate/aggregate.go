// Package aggregate computes per-schedule summaries. Every function is pure:
// the same snapshot always yields the same result.
package aggregate

import (
	"sort"

	"github.com/shopspring/decimal"

	"distline/internal/domain"
	"distline/internal/resolve"
)

type ItemView struct {
	Item            domain.Item      `json:"item"`
	Customer        resolve.Customer `json:"customer"`
	Transferred     bool             `json:"transferred"`
	TransferredFrom *int64           `json:"transferred_from,omitempty"`
	Modified        bool             `json:"modified"`
}

type CustomerSummary struct {
	Identity              resolve.Identity `json:"identity"`
	Orders                int              `json:"orders"`
	Returns               int              `json:"returns"`
	Substituted           bool             `json:"substituted"`
	ExistsInSystem        bool             `json:"exists_in_system"`
	CompletelyTransferred bool             `json:"completely_transferred"`
}

type ScheduleAggregate struct {
	ScheduleID       int64             `json:"schedule_id"`
	Orders           []ItemView        `json:"orders"`
	Returns          []ItemView        `json:"returns"`
	Customers        []CustomerSummary `json:"customers"`
	UniqueCustomers  int               `json:"unique_customers"`
	OrderTotal       decimal.Decimal   `json:"order_total"`
	ReturnTotal      decimal.Decimal   `json:"return_total"`
	CompletedOrders  int               `json:"completed_orders"`
	TotalOrders      int               `json:"total_orders"`
	CompletedReturns int               `json:"completed_returns"`
	TotalReturns     int               `json:"total_returns"`
	AnyTransferred   bool              `json:"any_transferred"`
	AnyModified      bool              `json:"any_modified"`
}

// View resolves the customer and transfer state of one item.
func View(it domain.Item, directives resolve.Directives) ItemView {
	view := ItemView{
		Item:        it,
		Customer:    resolve.ResolveCustomer(it, directives),
		Transferred: resolve.IsTransferred(it),
		Modified:    it.Modified,
	}
	if from, ok := resolve.TransferredFrom(it); ok {
		view.TransferredFrom = &from
	}
	return view
}

// Aggregate summarises the members of one schedule. Items are expected to be
// pre-filtered for visibility; cancelled items are skipped.
func Aggregate(scheduleID int64, items []domain.Item, directives resolve.Directives) ScheduleAggregate {
	agg := ScheduleAggregate{
		ScheduleID:  scheduleID,
		Orders:      []ItemView{},
		Returns:     []ItemView{},
		Customers:   []CustomerSummary{},
		OrderTotal:  decimal.Zero,
		ReturnTotal: decimal.Zero,
	}
	members := resolve.Members(items, scheduleID)
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Variant != members[j].Variant {
			return members[i].Variant < members[j].Variant
		}
		return members[i].ID < members[j].ID
	})

	byKey := map[string]*CustomerSummary{}
	for _, it := range members {
		view := View(it, directives)
		agg.AnyTransferred = agg.AnyTransferred || view.Transferred
		agg.AnyModified = agg.AnyModified || view.Modified

		key := view.Customer.Key()
		sum, ok := byKey[key]
		if !ok {
			sum = &CustomerSummary{Identity: view.Customer.Identity, ExistsInSystem: true}
			byKey[key] = sum
		}
		if view.Customer.Substituted {
			sum.Substituted = true
			sum.ExistsInSystem = sum.ExistsInSystem && view.Customer.ExistsInSystem
		}

		switch it.Variant {
		case domain.VariantReturn:
			agg.Returns = append(agg.Returns, view)
			agg.ReturnTotal = agg.ReturnTotal.Add(it.Amount)
			agg.TotalReturns++
			if it.Completed() {
				agg.CompletedReturns++
			}
			sum.Returns++
		default:
			agg.Orders = append(agg.Orders, view)
			agg.OrderTotal = agg.OrderTotal.Add(it.Amount)
			agg.TotalOrders++
			if it.Completed() {
				agg.CompletedOrders++
			}
			sum.Orders++
		}
	}
	agg.UniqueCustomers = len(byKey)

	for _, sum := range byKey {
		agg.Customers = append(agg.Customers, *sum)
	}
	for _, id := range resolve.CompletelyTransferred(members, directives) {
		if _, counted := byKey[id.Key()]; counted {
			continue
		}
		agg.Customers = append(agg.Customers, CustomerSummary{Identity: id, CompletelyTransferred: true})
	}
	sort.Slice(agg.Customers, func(i, j int) bool {
		a, b := agg.Customers[i], agg.Customers[j]
		if a.CompletelyTransferred != b.CompletelyTransferred {
			return !a.CompletelyTransferred
		}
		return a.Identity.Key() < b.Identity.Key()
	})
	return agg
}

// AggregateAll aggregates every schedule in the given order.
func AggregateAll(schedules []domain.Schedule, items []domain.Item, directives resolve.Directives) []ScheduleAggregate {
	out := make([]ScheduleAggregate, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, Aggregate(s.ID, items, directives))
	}
	return out
}
