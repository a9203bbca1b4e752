package aggregate

import (
	"distline/internal/domain"
	"distline/internal/resolve"
)

// Viewer is who the board is computed for. Unrestricted marks agents that
// are configured to see every line.
type Viewer struct {
	ID           string
	Role         domain.Role
	Unrestricted bool
}

func (v Viewer) seesAll() bool {
	return v.Role == domain.RoleAdmin || (v.Unrestricted && v.Role == domain.RoleAgent)
}

// Filter narrows a snapshot to what the viewer may see. Admins and
// unrestricted agents see everything. Agents see the schedules of groups
// that authorise them, the members of those schedules and their own items.
// Restricted agents see only their own items and the schedules those items
// resolve into.
func (v Viewer) Filter(s domain.Snapshot) domain.Snapshot {
	if v.seesAll() {
		return s
	}
	out := domain.Snapshot{Directives: s.Directives}

	visible := map[int64]bool{}
	switch v.Role {
	case domain.RoleAgent:
		groups := map[string]bool{}
		for _, g := range s.Groups {
			for _, a := range g.AgentIDs {
				if a == v.ID {
					groups[g.ID] = true
					out.Groups = append(out.Groups, g)
					break
				}
			}
		}
		for _, sch := range s.Schedules {
			if groups[sch.GroupID] {
				visible[sch.ID] = true
			}
		}
		for _, it := range s.Items {
			if it.AgentID == v.ID || memberOfAny(it, visible) {
				out.Items = append(out.Items, it)
			}
		}
	default:
		for _, it := range s.Items {
			if it.AgentID != v.ID {
				continue
			}
			out.Items = append(out.Items, it)
			for _, id := range resolve.EffectiveScheduleIDs(it) {
				visible[id] = true
			}
		}
	}
	for _, sch := range s.Schedules {
		if visible[sch.ID] {
			out.Schedules = append(out.Schedules, sch)
		}
	}
	return out
}

func memberOfAny(it domain.Item, schedules map[int64]bool) bool {
	for _, id := range resolve.EffectiveScheduleIDs(it) {
		if schedules[id] {
			return true
		}
	}
	return false
}
