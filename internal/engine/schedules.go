package engine

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strconv"
	"strings"
	"time"

	"distline/internal/domain"
	"distline/internal/engine/auth"
	derrors "distline/internal/errors"
	"distline/internal/events"
	"distline/internal/repo"
)

const dateLayout = "2006-01-02"

func scheduleEntity(id int64) string { return strconv.FormatInt(id, 10) }

// CreateSchedule returns the group's empty open schedule, creating one when
// none exists.
func (e Engine) CreateSchedule(ctx context.Context, actor domain.Actor, groupID string) (domain.Schedule, error) {
	var s domain.Schedule
	if err := auth.Require(actor, auth.PermScheduleWrite); err != nil {
		return s, err
	}
	groupID = strings.TrimSpace(groupID)
	if groupID == "" {
		return s, derrors.Reject("group_id required")
	}
	if _, err := e.Repo.GetGroup(ctx, nil, groupID); err != nil {
		return s, readErr(err, "group %s", groupID)
	}
	err := e.inTx(ctx, "create schedule", func(tx *sql.Tx) error {
		existing, err := e.Repo.FindEmptyOpenSchedule(ctx, tx, groupID)
		if err == nil {
			s = existing
			return nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return derrors.StoreWrite(err, "find open schedule")
		}
		if s, err = e.Repo.InsertSchedule(ctx, tx, groupID, e.stamp()); err != nil {
			return derrors.StoreWrite(err, "insert schedule")
		}
		if err := e.events().Append(ctx, tx, events.ScheduleCreated, "schedule", scheduleEntity(s.ID), actor.ID, events.EventPayload{"group_id": groupID}); err != nil {
			return derrors.StoreWrite(err, "append schedule event")
		}
		return nil
	})
	return s, err
}

// loadWritable reads a schedule that is about to change and rejects produced
// ones.
func (e Engine) loadWritable(ctx context.Context, id int64) (domain.Schedule, error) {
	s, err := e.Repo.GetSchedule(ctx, nil, id)
	if err != nil {
		return s, readErr(err, "schedule %d", id)
	}
	if err := ensureScheduleTransition(s, domain.StateScheduled); err != nil {
		return s, err
	}
	return s, nil
}

// SetScheduledDate sets or moves the date. Dates use YYYY-MM-DD. A nil date
// is only accepted on an unscheduled line, where it changes nothing: a dated
// line never returns to unscheduled.
func (e Engine) SetScheduledDate(ctx context.Context, actor domain.Actor, id int64, date *string) (domain.Schedule, error) {
	var s domain.Schedule
	if err := auth.Require(actor, auth.PermScheduleWrite); err != nil {
		return s, err
	}
	if date != nil {
		v := strings.TrimSpace(*date)
		if _, err := time.Parse(dateLayout, v); err != nil {
			return s, derrors.Reject("invalid date %q, expected YYYY-MM-DD", *date)
		}
		date = &v
	}
	s, err := e.loadWritable(ctx, id)
	if err != nil {
		return s, err
	}
	if date == nil {
		return s, ensureScheduleTransition(s, domain.StateUnscheduled)
	}
	err = e.inTx(ctx, "set schedule date", func(tx *sql.Tx) error {
		if err := e.Repo.UpdateScheduleDate(ctx, tx, id, date); err != nil {
			return writeErr(err, "update schedule date")
		}
		if err := e.events().Append(ctx, tx, events.ScheduleDated, "schedule", scheduleEntity(id), actor.ID, events.EventPayload{"scheduled_date": *date}); err != nil {
			return derrors.StoreWrite(err, "append schedule event")
		}
		return nil
	})
	if err != nil {
		return s, err
	}
	s.ScheduledDate = date
	return s, nil
}

func (e Engine) SetDriver(ctx context.Context, actor domain.Actor, id int64, driverID *string) (domain.Schedule, error) {
	var s domain.Schedule
	if err := auth.Require(actor, auth.PermScheduleWrite); err != nil {
		return s, err
	}
	if driverID != nil {
		v := strings.TrimSpace(*driverID)
		if v == "" {
			driverID = nil
		} else {
			driverID = &v
		}
	}
	s, err := e.loadWritable(ctx, id)
	if err != nil {
		return s, err
	}
	err = e.inTx(ctx, "set schedule driver", func(tx *sql.Tx) error {
		if err := e.Repo.UpdateScheduleDriver(ctx, tx, id, driverID); err != nil {
			return writeErr(err, "update schedule driver")
		}
		if err := e.events().Append(ctx, tx, events.ScheduleDriver, "schedule", scheduleEntity(id), actor.ID, events.EventPayload{"driver_id": driverID}); err != nil {
			return derrors.StoreWrite(err, "append schedule event")
		}
		return nil
	})
	if err != nil {
		return s, err
	}
	s.DriverID = driverID
	return s, nil
}

// SetPinned is the only change allowed on a produced schedule.
func (e Engine) SetPinned(ctx context.Context, actor domain.Actor, id int64, pinned bool) (domain.Schedule, error) {
	var s domain.Schedule
	if err := auth.Require(actor, auth.PermZoneAssign); err != nil {
		return s, err
	}
	s, err := e.Repo.GetSchedule(ctx, nil, id)
	if err != nil {
		return s, readErr(err, "schedule %d", id)
	}
	err = e.inTx(ctx, "set schedule pin", func(tx *sql.Tx) error {
		if err := e.Repo.UpdateSchedulePinned(ctx, tx, id, pinned); err != nil {
			return writeErr(err, "update schedule pin")
		}
		if err := e.events().Append(ctx, tx, events.SchedulePinned, "schedule", scheduleEntity(id), actor.ID, events.EventPayload{"pinned": pinned}); err != nil {
			return derrors.StoreWrite(err, "append schedule event")
		}
		return nil
	})
	if err != nil {
		return s, err
	}
	s.Pinned = pinned
	return s, nil
}

// ResetSchedule detaches every item from an unscheduled schedule and deletes
// it. Transfer references to the schedule are dropped too.
func (e Engine) ResetSchedule(ctx context.Context, actor domain.Actor, id int64) error {
	if err := auth.Require(actor, auth.PermZoneAssign); err != nil {
		return err
	}
	s, err := e.Repo.GetSchedule(ctx, nil, id)
	if err != nil {
		return readErr(err, "schedule %d", id)
	}
	if err := ensureScheduleTransition(s, domain.StateUnscheduled); err != nil {
		return err
	}
	now := e.stamp()
	return e.inTx(ctx, "reset schedule", func(tx *sql.Tx) error {
		detached, err := e.Repo.ClearPrimarySchedule(ctx, tx, id, now)
		if err != nil {
			return derrors.StoreWrite(err, "detach items")
		}
		items, err := e.Repo.ListItems(ctx, tx, repo.ItemFilters{IncludeCancelled: true})
		if err != nil {
			return derrors.StoreWrite(err, "list items")
		}
		for _, it := range items {
			if !transferNames(it.Transfer, id) {
				continue
			}
			if err := e.Repo.SetItemTransfer(ctx, tx, it.Ref(), withoutTarget(it.Transfer, id), now); err != nil {
				return derrors.StoreWrite(err, "drop transfer reference")
			}
		}
		if err := e.Repo.DeleteSchedule(ctx, tx, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return derrors.ErrNotUnscheduled.WithDetails(map[string]any{"schedule_id": id})
			}
			return derrors.StoreWrite(err, "delete schedule")
		}
		if err := e.events().Append(ctx, tx, events.ScheduleReset, "schedule", scheduleEntity(id), actor.ID, events.EventPayload{"detached": detached}); err != nil {
			return derrors.StoreWrite(err, "append schedule event")
		}
		return nil
	})
}

func transferNames(t domain.TransferRef, id int64) bool {
	if target, ok := t.Target(); ok {
		return target == id
	}
	return slices.Contains(t.IDs(), id)
}

// withoutTarget removes id from a transfer reference. A list keeps its
// remaining ids; every other shape becomes none.
func withoutTarget(t domain.TransferRef, id int64) domain.TransferRef {
	if t.Kind() != domain.TransferList {
		return domain.NoTransfer()
	}
	rest := slices.DeleteFunc(t.IDs(), func(v int64) bool { return v == id })
	if len(rest) == 0 {
		return domain.NoTransfer()
	}
	return domain.ListTransfer(rest...)
}
