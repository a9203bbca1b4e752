package engine

import (
	"context"
	"database/sql"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"distline/internal/domain"
	"distline/internal/engine/auth"
	derrors "distline/internal/errors"
	"distline/internal/events"
	"distline/internal/repo"
	"distline/internal/resolve"
)

type ItemInput struct {
	Variant           domain.Variant
	CustomerName      string
	City              string
	Address           string
	Phone             string
	Remark            string
	Amount            decimal.Decimal
	AgentID           string
	PrimaryScheduleID *int64
	AlertFlag         bool
	MessageFlag       bool
}

// ItemPatch carries the editable fields of an item. Nil fields are left
// alone.
type ItemPatch struct {
	CustomerName *string
	City         *string
	Address      *string
	Phone        *string
	Remark       *string
	Amount       *decimal.Decimal
	AlertFlag    *bool
	MessageFlag  *bool
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool {
	return p.CustomerName == nil && p.City == nil && p.Address == nil && p.Phone == nil &&
		p.Remark == nil && p.Amount == nil && p.AlertFlag == nil && p.MessageFlag == nil
}

func itemEntity(ref domain.ItemRef) string { return strconv.FormatInt(ref.ID, 10) }

// authorizeItemWrite lets owners write their own items and admins write any.
func authorizeItemWrite(actor domain.Actor, it domain.Item) error {
	if it.AgentID == actor.ID {
		if err := auth.Require(actor, auth.PermItemWriteOwn); err == nil {
			return nil
		}
	}
	return auth.Require(actor, auth.PermItemWriteAny)
}

// checkDestination validates a schedule an item is about to join. Callers
// without zone rights may only use the unscheduled pool.
func (e Engine) checkDestination(ctx context.Context, actor domain.Actor, scheduleID *int64) error {
	if scheduleID == nil {
		return nil
	}
	s, err := e.Repo.GetSchedule(ctx, nil, *scheduleID)
	if err != nil {
		return readErr(err, "schedule %d", *scheduleID)
	}
	if s.Produced() {
		return derrors.ErrAlreadyProduced.WithDetails(map[string]any{"schedule_id": s.ID})
	}
	if !auth.Allowed(actor.Role, auth.PermZoneAssign) && s.State() != domain.StateUnscheduled {
		return auth.ForbiddenError{Permission: auth.PermZoneAssign, Role: actor.Role}
	}
	return nil
}

// ensureNotLocked rejects items that belong to a produced schedule.
func (e Engine) ensureNotLocked(ctx context.Context, it domain.Item) error {
	for _, id := range resolve.EffectiveScheduleIDs(it) {
		s, err := e.Repo.GetSchedule(ctx, nil, id)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				continue
			}
			return readErr(err, "schedule %d", id)
		}
		if s.Produced() {
			return derrors.Reject("%s belongs to produced schedule %d", it.Ref(), id).WithDetails(map[string]any{"schedule_id": id})
		}
	}
	return nil
}

func (e Engine) loadItem(ctx context.Context, ref domain.ItemRef) (domain.Item, error) {
	if _, err := domain.ParseVariant(string(ref.Variant)); err != nil {
		return domain.Item{}, derrors.Reject("%v", err)
	}
	it, err := e.Repo.GetItem(ctx, nil, ref)
	if err != nil {
		return it, readErr(err, "%s", ref)
	}
	return it, nil
}

func (e Engine) ListItems(ctx context.Context, f repo.ItemFilters) ([]domain.Item, error) {
	items, err := e.Repo.ListItems(ctx, nil, f)
	if err != nil {
		return nil, readErr(err, "items")
	}
	return items, nil
}

func (e Engine) CreateItem(ctx context.Context, actor domain.Actor, in ItemInput) (domain.Item, error) {
	var it domain.Item
	if err := auth.Require(actor, auth.PermItemCreate); err != nil {
		return it, err
	}
	variant, err := domain.ParseVariant(string(in.Variant))
	if err != nil {
		return it, derrors.Reject("%v", err)
	}
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.City = strings.TrimSpace(in.City)
	if in.CustomerName == "" {
		return it, derrors.Reject("customer_name required")
	}
	if in.Amount.IsNegative() {
		return it, derrors.Reject("amount must not be negative")
	}
	agentID := strings.TrimSpace(in.AgentID)
	switch {
	case agentID == "":
		agentID = actor.ID
	case agentID != actor.ID:
		if err := auth.Require(actor, auth.PermItemWriteAny); err != nil {
			return it, err
		}
	}
	if err := e.checkDestination(ctx, actor, in.PrimaryScheduleID); err != nil {
		return it, err
	}
	now := e.stamp()
	it = domain.Item{
		Variant:           variant,
		CustomerName:      in.CustomerName,
		City:              in.City,
		Address:           strings.TrimSpace(in.Address),
		Phone:             strings.TrimSpace(in.Phone),
		Remark:            strings.TrimSpace(in.Remark),
		Amount:            in.Amount,
		AgentID:           agentID,
		PrimaryScheduleID: in.PrimaryScheduleID,
		AlertFlag:         in.AlertFlag,
		MessageFlag:       in.MessageFlag,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err = e.inTx(ctx, "create item", func(tx *sql.Tx) error {
		id, err := e.Repo.InsertItem(ctx, tx, it)
		if err != nil {
			return derrors.StoreWrite(err, "insert item")
		}
		it.ID = id
		if err := e.events().Append(ctx, tx, events.ItemCreated, string(variant), itemEntity(it.Ref()), actor.ID, events.EventPayload{
			"customer_name":       it.CustomerName,
			"city":                it.City,
			"amount":              it.Amount.String(),
			"agent_id":            it.AgentID,
			"primary_schedule_id": it.PrimaryScheduleID,
		}); err != nil {
			return derrors.StoreWrite(err, "append item event")
		}
		return nil
	})
	return it, err
}

// UpdateItem applies a patch. Changing the amount, the address or the
// remark marks the item modified.
func (e Engine) UpdateItem(ctx context.Context, actor domain.Actor, ref domain.ItemRef, patch ItemPatch) (domain.Item, error) {
	if patch.Empty() {
		return domain.Item{}, derrors.Reject("no fields to update")
	}
	it, err := e.loadItem(ctx, ref)
	if err != nil {
		return it, err
	}
	if err := authorizeItemWrite(actor, it); err != nil {
		return it, err
	}
	if it.Cancelled() {
		return it, derrors.ErrItemCancelled.WithDetails(map[string]any{"item": ref.String()})
	}
	changed := map[string]any{}
	setString := func(field string, dst *string, v *string) bool {
		if v == nil {
			return false
		}
		nv := strings.TrimSpace(*v)
		if nv == *dst {
			return false
		}
		*dst = nv
		changed[field] = nv
		return true
	}
	if patch.CustomerName != nil && strings.TrimSpace(*patch.CustomerName) == "" {
		return it, derrors.Reject("customer_name must not be empty")
	}
	setString("customer_name", &it.CustomerName, patch.CustomerName)
	setString("city", &it.City, patch.City)
	setString("phone", &it.Phone, patch.Phone)
	dirty := setString("address", &it.Address, patch.Address)
	dirty = setString("remark", &it.Remark, patch.Remark) || dirty
	if patch.Amount != nil && !patch.Amount.Equal(it.Amount) {
		if patch.Amount.IsNegative() {
			return it, derrors.Reject("amount must not be negative")
		}
		it.Amount = *patch.Amount
		changed["amount"] = it.Amount.String()
		dirty = true
	}
	if patch.AlertFlag != nil && *patch.AlertFlag != it.AlertFlag {
		it.AlertFlag = *patch.AlertFlag
		changed["alert_flag"] = it.AlertFlag
	}
	if patch.MessageFlag != nil && *patch.MessageFlag != it.MessageFlag {
		it.MessageFlag = *patch.MessageFlag
		changed["message_flag"] = it.MessageFlag
	}
	if len(changed) == 0 {
		return it, nil
	}
	if dirty {
		it.Modified = true
	}
	it.UpdatedAt = e.stamp()
	err = e.inTx(ctx, "update item", func(tx *sql.Tx) error {
		if err := e.Repo.UpdateItemDetails(ctx, tx, it); err != nil {
			return writeErr(err, "update item")
		}
		if err := e.events().Append(ctx, tx, events.ItemUpdated, string(ref.Variant), itemEntity(ref), actor.ID, events.EventPayload(changed)); err != nil {
			return derrors.StoreWrite(err, "append item event")
		}
		return nil
	})
	return it, err
}

// MoveItem sets the primary schedule of an item, or returns it to the pool
// when scheduleID is nil. The transfer reference is cleared.
func (e Engine) MoveItem(ctx context.Context, actor domain.Actor, ref domain.ItemRef, scheduleID *int64) (domain.Item, error) {
	it, err := e.loadItem(ctx, ref)
	if err != nil {
		return it, err
	}
	if err := authorizeItemWrite(actor, it); err != nil {
		return it, err
	}
	if it.Cancelled() {
		return it, derrors.ErrItemCancelled.WithDetails(map[string]any{"item": ref.String()})
	}
	if err := e.ensureNotLocked(ctx, it); err != nil {
		return it, err
	}
	if err := e.checkDestination(ctx, actor, scheduleID); err != nil {
		return it, err
	}
	from := it.PrimaryScheduleID
	now := e.stamp()
	err = e.inTx(ctx, "move item", func(tx *sql.Tx) error {
		if err := e.Repo.UpdateItemSchedule(ctx, tx, ref, scheduleID, now); err != nil {
			if errors.Is(err, repo.ErrProduced) {
				return derrors.ErrAlreadyProduced.WithDetails(map[string]any{"item": ref.String()})
			}
			return writeErr(err, "update item schedule")
		}
		if err := e.events().Append(ctx, tx, events.ItemMoved, string(ref.Variant), itemEntity(ref), actor.ID, events.EventPayload{
			"from": from,
			"to":   scheduleID,
		}); err != nil {
			return derrors.StoreWrite(err, "append item event")
		}
		return nil
	})
	if err != nil {
		return it, err
	}
	it.PrimaryScheduleID = scheduleID
	it.Transfer = domain.NoTransfer()
	it.UpdatedAt = now
	return it, nil
}

// TransferItem points an item at another schedule while keeping its primary
// for transferred-from reporting. With appendList the target joins a list
// reference instead of replacing the primary.
func (e Engine) TransferItem(ctx context.Context, actor domain.Actor, ref domain.ItemRef, target int64, appendList bool) (domain.Item, error) {
	if err := auth.Require(actor, auth.PermZoneAssign); err != nil {
		return domain.Item{}, err
	}
	it, err := e.loadItem(ctx, ref)
	if err != nil {
		return it, err
	}
	if it.Cancelled() {
		return it, derrors.ErrItemCancelled.WithDetails(map[string]any{"item": ref.String()})
	}
	if err := e.ensureNotLocked(ctx, it); err != nil {
		return it, err
	}
	if err := e.checkDestination(ctx, actor, &target); err != nil {
		return it, err
	}
	transfer := domain.SingleTransfer(target)
	if appendList {
		ids := it.Transfer.IDs()
		if t, ok := it.Transfer.Target(); ok {
			ids = []int64{t}
		}
		ids = slices.DeleteFunc(ids, func(v int64) bool { return v == target })
		transfer = domain.ListTransfer(append(ids, target)...)
	}
	now := e.stamp()
	err = e.inTx(ctx, "transfer item", func(tx *sql.Tx) error {
		if err := e.Repo.SetItemTransfer(ctx, tx, ref, transfer, now); err != nil {
			return writeErr(err, "write transfer reference")
		}
		if err := e.events().Append(ctx, tx, events.ItemTransferred, string(ref.Variant), itemEntity(ref), actor.ID, events.EventPayload{
			"from":     it.PrimaryScheduleID,
			"transfer": transfer,
		}); err != nil {
			return derrors.StoreWrite(err, "append item event")
		}
		return nil
	})
	if err != nil {
		return it, err
	}
	it.Transfer = transfer
	it.UpdatedAt = now
	return it, nil
}

// MarkItemDone sets the completion time once. Marking a done item again is
// a no-op.
func (e Engine) MarkItemDone(ctx context.Context, actor domain.Actor, ref domain.ItemRef) (domain.Item, error) {
	it, err := e.loadItem(ctx, ref)
	if err != nil {
		return it, err
	}
	if err := authorizeItemWrite(actor, it); err != nil {
		return it, err
	}
	if it.Cancelled() {
		return it, derrors.ErrItemCancelled.WithDetails(map[string]any{"item": ref.String()})
	}
	if it.Completed() {
		return it, nil
	}
	ts := e.stamp()
	err = e.inTx(ctx, "mark item done", func(tx *sql.Tx) error {
		changed, err := e.Repo.MarkItemDone(ctx, tx, ref, ts)
		if err != nil {
			return derrors.StoreWrite(err, "mark item done")
		}
		if !changed {
			return nil
		}
		if err := e.events().Append(ctx, tx, events.ItemCompleted, string(ref.Variant), itemEntity(ref), actor.ID, nil); err != nil {
			return derrors.StoreWrite(err, "append item event")
		}
		return nil
	})
	if err != nil {
		return it, err
	}
	it.CompletedAt = &ts
	it.UpdatedAt = ts
	return it, nil
}

// CancelItem soft deletes an item. Cancelled items belong to no schedule.
func (e Engine) CancelItem(ctx context.Context, actor domain.Actor, ref domain.ItemRef) (domain.Item, error) {
	it, err := e.loadItem(ctx, ref)
	if err != nil {
		return it, err
	}
	if err := authorizeItemWrite(actor, it); err != nil {
		return it, err
	}
	if it.Cancelled() {
		return it, nil
	}
	if err := e.ensureNotLocked(ctx, it); err != nil {
		return it, err
	}
	ts := e.stamp()
	err = e.inTx(ctx, "cancel item", func(tx *sql.Tx) error {
		if err := e.Repo.CancelItem(ctx, tx, ref, ts); err != nil {
			return writeErr(err, "cancel item")
		}
		if err := e.events().Append(ctx, tx, events.ItemCancelled, string(ref.Variant), itemEntity(ref), actor.ID, nil); err != nil {
			return derrors.StoreWrite(err, "append item event")
		}
		return nil
	})
	if err != nil {
		return it, err
	}
	it.CancelledAt = &ts
	it.UpdatedAt = ts
	return it, nil
}
