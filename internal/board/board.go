// Package board assembles what one viewer sees: the zone strip, the dated
// and produced lines, and the pool of unassigned items.
package board

import (
	"context"
	"slices"

	"distline/internal/aggregate"
	"distline/internal/config"
	"distline/internal/domain"
	derrors "distline/internal/errors"
	"distline/internal/resolve"
	"distline/internal/zones"
)

type Snapshotter interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

type ScheduleView struct {
	Schedule  domain.Schedule             `json:"schedule"`
	State     domain.ScheduleState        `json:"state"`
	Aggregate aggregate.ScheduleAggregate `json:"aggregate"`
}

// ZoneView is a zone with its schedule when the viewer may see it.
type ZoneView struct {
	Index  int           `json:"index"`
	Pinned bool          `json:"pinned"`
	Line   *ScheduleView `json:"line,omitempty"`
}

type View struct {
	Zones     []ZoneView           `json:"zones"`
	Schedules []ScheduleView       `json:"schedules"`
	Pool      []aggregate.ItemView `json:"pool"`
}

type Service struct {
	Store  Snapshotter
	Zones  *zones.Manager
	Config *config.Config
}

func (s Service) viewer(actor domain.Actor) aggregate.Viewer {
	return aggregate.Viewer{ID: actor.ID, Role: actor.Role, Unrestricted: s.Config.Unrestricted(actor.ID)}
}

func (s Service) snapshot(ctx context.Context, actor domain.Actor) (domain.Snapshot, resolve.Directives, error) {
	snap, err := s.Store.Snapshot(ctx)
	if err != nil {
		return snap, nil, err
	}
	snap = s.viewer(actor).Filter(snap)
	return snap, resolve.NewDirectives(snap.Directives), nil
}

// Board refreshes the zone mapping and returns the viewer's board. Zones
// bound to schedules the viewer cannot see are shown empty.
func (s Service) Board(ctx context.Context, actor domain.Actor) (View, error) {
	var view View
	strip, err := s.Zones.Refresh(ctx)
	if err != nil {
		return view, err
	}
	snap, directives, err := s.snapshot(ctx, actor)
	if err != nil {
		return view, err
	}
	byID := make(map[int64]domain.Schedule, len(snap.Schedules))
	for _, sch := range snap.Schedules {
		byID[sch.ID] = sch
	}
	for _, z := range strip {
		zv := ZoneView{Index: z.Index, Pinned: z.Pinned}
		if z.ScheduleID != nil {
			if sch, ok := byID[*z.ScheduleID]; ok {
				line := scheduleView(sch, snap.Items, directives)
				zv.Line = &line
			}
		}
		view.Zones = append(view.Zones, zv)
	}
	view.Schedules = []ScheduleView{}
	for _, sch := range snap.Schedules {
		if sch.State() == domain.StateUnscheduled {
			continue
		}
		view.Schedules = append(view.Schedules, scheduleView(sch, snap.Items, directives))
	}
	view.Pool = []aggregate.ItemView{}
	for _, it := range snap.Items {
		if len(resolve.EffectiveScheduleIDs(it)) == 0 {
			view.Pool = append(view.Pool, aggregate.View(it, directives))
		}
	}
	return view, nil
}

// Schedules lists the visible schedules, optionally of one state.
func (s Service) Schedules(ctx context.Context, actor domain.Actor, state domain.ScheduleState) ([]ScheduleView, error) {
	snap, directives, err := s.snapshot(ctx, actor)
	if err != nil {
		return nil, err
	}
	out := []ScheduleView{}
	for _, sch := range snap.Schedules {
		if state != "" && sch.State() != state {
			continue
		}
		out = append(out, scheduleView(sch, snap.Items, directives))
	}
	return out, nil
}

func (s Service) Schedule(ctx context.Context, actor domain.Actor, id int64) (ScheduleView, error) {
	snap, directives, err := s.snapshot(ctx, actor)
	if err != nil {
		return ScheduleView{}, err
	}
	idx := slices.IndexFunc(snap.Schedules, func(sch domain.Schedule) bool { return sch.ID == id })
	if idx < 0 {
		return ScheduleView{}, derrors.Newf(derrors.CodeNotFound, "schedule %d not found", id)
	}
	return scheduleView(snap.Schedules[idx], snap.Items, directives), nil
}

func scheduleView(sch domain.Schedule, items []domain.Item, directives resolve.Directives) ScheduleView {
	return ScheduleView{Schedule: sch, State: sch.State(), Aggregate: aggregate.Aggregate(sch.ID, items, directives)}
}
