package engine

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"distline/internal/domain"
	"distline/internal/engine/auth"
	derrors "distline/internal/errors"
	"distline/internal/events"
	"distline/internal/repo"
	"distline/internal/resolve"
)

// CascadeWarning records a member item that could not be marked done after
// production. The production itself stands.
type CascadeWarning struct {
	Item    domain.ItemRef `json:"item"`
	Message string         `json:"message"`
}

type ProduceResult struct {
	Schedule  domain.Schedule  `json:"schedule"`
	Completed int              `json:"completed"`
	Warnings  []CascadeWarning `json:"warnings,omitempty"`
}

func ensureScheduleTransition(s domain.Schedule, to domain.ScheduleState) error {
	from := s.State()
	if from == domain.StateProduced {
		return derrors.ErrAlreadyProduced.WithDetails(map[string]any{"schedule_id": s.ID, "production_number": *s.ProductionNumber})
	}
	switch to {
	case domain.StateScheduled, domain.StateProduced:
		return nil
	case domain.StateUnscheduled:
		if from != domain.StateUnscheduled {
			return derrors.ErrNotUnscheduled.WithDetails(map[string]any{"schedule_id": s.ID, "state": from})
		}
		return nil
	}
	return derrors.Reject("invalid schedule transition %s -> %s", from, to)
}

// Produce assigns the next production number to a schedule and then marks
// every member item done. The cascade runs after commit, one item per
// transaction; its failures become warnings.
func (e Engine) Produce(ctx context.Context, actor domain.Actor, scheduleID int64) (ProduceResult, error) {
	var res ProduceResult
	if err := auth.Require(actor, auth.PermScheduleProduce); err != nil {
		e.Metrics.IncRejected("forbidden")
		return res, err
	}
	start := e.now()
	s, err := e.Repo.GetSchedule(ctx, nil, scheduleID)
	if err != nil {
		return res, readErr(err, "schedule %d", scheduleID)
	}
	if err := ensureScheduleTransition(s, domain.StateProduced); err != nil {
		e.Metrics.IncRejected("already_produced")
		return res, err
	}

	ts := e.stamp()
	err = e.inTx(ctx, "produce schedule", func(tx *sql.Tx) error {
		number, err := e.allocator().Next(ctx, tx)
		if err != nil {
			return derrors.StoreWrite(err, "allocate production number")
		}
		ok, err := e.Repo.MarkProduced(ctx, tx, scheduleID, number, ts)
		if err != nil {
			return derrors.StoreWrite(err, "write production number")
		}
		if !ok {
			return derrors.ErrAlreadyProduced.WithDetails(map[string]any{"schedule_id": scheduleID})
		}
		s.ProductionNumber = &number
		s.ProducedAt = &ts
		if err := e.events().Append(ctx, tx, events.ScheduleProduced, "schedule", strconv.FormatInt(scheduleID, 10), actor.ID, events.EventPayload{
			"production_number": number,
			"produced_at":       ts,
		}); err != nil {
			return derrors.StoreWrite(err, "append production event")
		}
		return nil
	})
	if err != nil {
		if derrors.CodeOf(err) == derrors.CodeRejected {
			e.Metrics.IncRejected("already_produced")
		}
		return res, err
	}
	res.Schedule = s
	e.Metrics.IncProduced()

	ctx = e.log().WithFields(ctx, map[string]any{"schedule_id": scheduleID, "production_number": *s.ProductionNumber})
	e.log().Info(ctx, "schedule produced")

	res.Completed, res.Warnings = e.completeMembers(ctx, actor, scheduleID, ts)
	e.Metrics.ObserveProduction(time.Since(start))
	return res, nil
}

// completeMembers marks every member of the schedule done. Items already
// done are skipped.
func (e Engine) completeMembers(ctx context.Context, actor domain.Actor, scheduleID int64, ts string) (int, []CascadeWarning) {
	items, err := e.Repo.ListItems(ctx, nil, repo.ItemFilters{})
	if err != nil {
		e.log().Warn(ctx, "cascade: list items failed", err)
		e.Metrics.IncCascadeWarning("all")
		return 0, []CascadeWarning{{Message: "list items: " + err.Error()}}
	}
	var (
		completed int
		warnings  []CascadeWarning
	)
	for _, it := range resolve.Members(items, scheduleID) {
		if it.Completed() {
			continue
		}
		ref := it.Ref()
		if err := e.completeOne(ctx, actor, ref, scheduleID, ts); err != nil {
			e.log().Warn(e.log().WithField(ctx, "item", ref.String()), "cascade: mark item done failed", err)
			e.Metrics.IncCascadeWarning(string(ref.Variant))
			warnings = append(warnings, CascadeWarning{Item: ref, Message: err.Error()})
			continue
		}
		completed++
	}
	return completed, warnings
}

func (e Engine) completeOne(ctx context.Context, actor domain.Actor, ref domain.ItemRef, scheduleID int64, ts string) error {
	return e.inTx(ctx, "complete item", func(tx *sql.Tx) error {
		changed, err := e.itemCompleter().MarkItemDone(ctx, tx, ref, ts)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return e.events().Append(ctx, tx, events.ItemCompleted, string(ref.Variant), strconv.FormatInt(ref.ID, 10), actor.ID, events.EventPayload{
			"schedule_id": scheduleID,
			"cascade":     true,
		})
	})
}
