// Package resolve derives schedule membership and customer identity from
// stored item records. Nothing here performs I/O or returns errors.
package resolve

import (
	"sort"

	"distline/internal/domain"
)

// EffectiveScheduleIDs returns the schedules an item counts toward, sorted.
// A single or record transfer replaces the primary schedule; a list transfer
// is added to it. Cancelled items belong nowhere.
func EffectiveScheduleIDs(it domain.Item) []int64 {
	if it.Cancelled() {
		return nil
	}
	set := map[int64]struct{}{}
	if it.PrimaryScheduleID != nil {
		set[*it.PrimaryScheduleID] = struct{}{}
	}
	switch it.Transfer.Kind() {
	case domain.TransferSingle, domain.TransferRecord:
		if target, ok := it.Transfer.Target(); ok {
			set = map[int64]struct{}{target: {}}
		}
	case domain.TransferList:
		for _, id := range it.Transfer.IDs() {
			set[id] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func IsMember(it domain.Item, scheduleID int64) bool {
	for _, id := range EffectiveScheduleIDs(it) {
		if id == scheduleID {
			return true
		}
	}
	return false
}

// resolvedTarget is the schedule the transfer points at last.
func resolvedTarget(ref domain.TransferRef) (int64, bool) {
	switch ref.Kind() {
	case domain.TransferSingle, domain.TransferRecord:
		return ref.Target()
	case domain.TransferList:
		ids := ref.IDs()
		if len(ids) == 0 {
			return 0, false
		}
		return ids[len(ids)-1], true
	}
	return 0, false
}

// IsTransferred reports whether an item with a primary schedule was moved
// somewhere else.
func IsTransferred(it domain.Item) bool {
	if it.PrimaryScheduleID == nil {
		return false
	}
	target, ok := resolvedTarget(it.Transfer)
	return ok && target != *it.PrimaryScheduleID
}

// TransferredFrom returns the primary schedule of a transferred item.
func TransferredFrom(it domain.Item) (int64, bool) {
	if !IsTransferred(it) {
		return 0, false
	}
	return *it.PrimaryScheduleID, true
}

// Members returns the items of a list that count toward scheduleID, in input
// order.
func Members(items []domain.Item, scheduleID int64) []domain.Item {
	var out []domain.Item
	for _, it := range items {
		if IsMember(it, scheduleID) {
			out = append(out, it)
		}
	}
	return out
}
