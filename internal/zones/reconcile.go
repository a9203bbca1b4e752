// Package zones keeps a bounded set of board slots bound to unscheduled
// schedules across refreshes.
package zones

import (
	"slices"

	"distline/internal/domain"
)

const DefaultSize = 12

// Mapping binds zone indices (1-based) to schedule ids.
type Mapping map[int]int64

func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// ZoneOf returns the zone a schedule is bound to.
func (m Mapping) ZoneOf(scheduleID int64) (int, bool) {
	for idx, id := range m {
		if id == scheduleID {
			return idx, true
		}
	}
	return 0, false
}

type Zone struct {
	Index      int    `json:"index"`
	ScheduleID *int64 `json:"schedule_id,omitempty"`
	Pinned     bool   `json:"pinned"`
}

// Live returns the schedules that may occupy a zone: no date and no
// production number.
func Live(schedules []domain.Schedule) []domain.Schedule {
	var out []domain.Schedule
	for _, s := range schedules {
		if s.ScheduledDate == nil && s.ProductionNumber == nil {
			out = append(out, s)
		}
	}
	return out
}

// Reconcile computes the next mapping from the previous one and the current
// live schedules. Bindings whose schedule is still live stay where they are;
// remaining schedules fill empty zones in ascending id and index order.
// Schedules that do not fit stay unbound.
func Reconcile(prev Mapping, live []domain.Schedule, size int) Mapping {
	if size <= 0 {
		size = DefaultSize
	}
	isLive := make(map[int64]bool, len(live))
	for _, s := range live {
		isLive[s.ID] = true
	}

	next := Mapping{}
	bound := map[int64]bool{}
	indices := make([]int, 0, len(prev))
	for idx := range prev {
		indices = append(indices, idx)
	}
	slices.Sort(indices)
	for _, idx := range indices {
		id := prev[idx]
		if idx < 1 || idx > size || !isLive[id] || bound[id] {
			continue
		}
		next[idx] = id
		bound[id] = true
	}

	var unassigned []int64
	for id := range isLive {
		if !bound[id] {
			unassigned = append(unassigned, id)
		}
	}
	slices.Sort(unassigned)
	for idx := 1; idx <= size && len(unassigned) > 0; idx++ {
		if _, taken := next[idx]; taken {
			continue
		}
		next[idx] = unassigned[0]
		unassigned = unassigned[1:]
	}
	return next
}

// Order lists every zone for display: pinned zones first, then by index.
func Order(m Mapping, schedules []domain.Schedule, size int) []Zone {
	if size <= 0 {
		size = DefaultSize
	}
	pinned := map[int64]bool{}
	for _, s := range schedules {
		if s.Pinned {
			pinned[s.ID] = true
		}
	}
	zones := make([]Zone, 0, size)
	for idx := 1; idx <= size; idx++ {
		z := Zone{Index: idx}
		if id, ok := m[idx]; ok {
			z.ScheduleID = &id
			z.Pinned = pinned[id]
		}
		zones = append(zones, z)
	}
	slices.SortStableFunc(zones, func(a, b Zone) int {
		switch {
		case a.Pinned && !b.Pinned:
			return -1
		case !a.Pinned && b.Pinned:
			return 1
		}
		return a.Index - b.Index
	})
	return zones
}
