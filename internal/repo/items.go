package repo

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"distline/internal/domain"
)

const itemColumns = `id,customer_name,city,COALESCE(address,''),COALESCE(phone,''),COALESCE(remark,''),amount,agent_id,
primary_schedule_id,transfer_ref,completed_at,cancelled_at,alert_flag,message_flag,modified,created_at,updated_at`

func tableFor(v domain.Variant) (string, error) {
	switch v {
	case domain.VariantOrder:
		return "orders", nil
	case domain.VariantReturn:
		return "returns", nil
	}
	return "", fmt.Errorf("unknown item variant %q", v)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner, v domain.Variant) (domain.Item, error) {
	it := domain.Item{Variant: v}
	var (
		primary               sql.NullInt64
		completed, cancelled  sql.NullString
		alert, message, dirty bool
	)
	err := row.Scan(&it.ID, &it.CustomerName, &it.City, &it.Address, &it.Phone, &it.Remark, &it.Amount, &it.AgentID,
		&primary, &it.Transfer, &completed, &cancelled, &alert, &message, &dirty, &it.CreatedAt, &it.UpdatedAt)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	if err != nil {
		return it, err
	}
	it.PrimaryScheduleID = int64Ptr(primary)
	it.CompletedAt = stringPtr(completed)
	it.CancelledAt = stringPtr(cancelled)
	it.AlertFlag, it.MessageFlag, it.Modified = alert, message, dirty
	return it, nil
}

// InsertItem stores a new order or return and returns its id.
func (r Repo) InsertItem(ctx context.Context, tx *sql.Tx, it domain.Item) (int64, error) {
	table, err := tableFor(it.Variant)
	if err != nil {
		return 0, err
	}
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO `+table+`(customer_name,city,address,phone,remark,amount,agent_id,primary_schedule_id,transfer_ref,alert_flag,message_flag,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		it.CustomerName, it.City, nullable(it.Address), nullable(it.Phone), nullable(it.Remark), it.Amount.String(), it.AgentID,
		nullableInt64Ptr(it.PrimaryScheduleID), it.Transfer, it.AlertFlag, it.MessageFlag, it.CreatedAt, it.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r Repo) GetItem(ctx context.Context, tx *sql.Tx, ref domain.ItemRef) (domain.Item, error) {
	table, err := tableFor(ref.Variant)
	if err != nil {
		return domain.Item{}, err
	}
	return scanItem(r.q(tx).QueryRowContext(ctx, `SELECT `+itemColumns+` FROM `+table+` WHERE id=?`, ref.ID), ref.Variant)
}

type ItemFilters struct {
	// Variant limits the listing to one variant; empty lists both.
	Variant           domain.Variant
	AgentID           string
	PrimaryScheduleID *int64
	Unassigned        bool
	IncludeCancelled  bool
}

// ListItems returns items ordered by variant then id.
func (r Repo) ListItems(ctx context.Context, tx *sql.Tx, f ItemFilters) ([]domain.Item, error) {
	variants := []domain.Variant{domain.VariantOrder, domain.VariantReturn}
	if f.Variant != "" {
		variants = []domain.Variant{f.Variant}
	}
	var (
		clauses []string
		args    []any
	)
	if !f.IncludeCancelled {
		clauses = append(clauses, "cancelled_at IS NULL")
	}
	if f.AgentID != "" {
		clauses = append(clauses, "agent_id=?")
		args = append(args, f.AgentID)
	}
	if f.PrimaryScheduleID != nil {
		clauses = append(clauses, "primary_schedule_id=?")
		args = append(args, *f.PrimaryScheduleID)
	}
	if f.Unassigned {
		clauses = append(clauses, "primary_schedule_id IS NULL")
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}
	var res []domain.Item
	for _, v := range variants {
		table, err := tableFor(v)
		if err != nil {
			return nil, err
		}
		rows, err := r.q(tx).QueryContext(ctx, `SELECT `+itemColumns+` FROM `+table+where+` ORDER BY id`, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			it, err := scanItem(rows, v)
			if err != nil {
				rows.Close()
				return nil, err
			}
			res = append(res, it)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Variant != res[j].Variant {
			return res[i].Variant < res[j].Variant
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

// UpdateItemSchedule sets the primary schedule and drops any transfer
// reference. A target produced by the time of the write yields ErrProduced.
func (r Repo) UpdateItemSchedule(ctx context.Context, tx *sql.Tx, ref domain.ItemRef, scheduleID *int64, now string) error {
	table, err := tableFor(ref.Variant)
	if err != nil {
		return err
	}
	target := nullableInt64Ptr(scheduleID)
	res, err := r.q(tx).ExecContext(ctx, `UPDATE `+table+` SET primary_schedule_id=?, transfer_ref=NULL, updated_at=?
WHERE id=? AND (? IS NULL OR EXISTS (SELECT 1 FROM schedules s WHERE s.id=? AND s.production_number IS NULL))`,
		target, now, ref.ID, target, target)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := r.GetItem(ctx, tx, ref); err != nil {
		return err
	}
	if scheduleID != nil {
		if _, err := r.GetSchedule(ctx, tx, *scheduleID); err != nil {
			return err
		}
	}
	return ErrProduced
}

func (r Repo) SetItemTransfer(ctx context.Context, tx *sql.Tx, ref domain.ItemRef, transfer domain.TransferRef, now string) error {
	table, err := tableFor(ref.Variant)
	if err != nil {
		return err
	}
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `UPDATE `+table+` SET transfer_ref=?, updated_at=? WHERE id=?`, transfer, now, ref.ID))
}

// UpdateItemDetails writes the editable fields of an item, including the
// modified flag the caller computed.
func (r Repo) UpdateItemDetails(ctx context.Context, tx *sql.Tx, it domain.Item) error {
	table, err := tableFor(it.Variant)
	if err != nil {
		return err
	}
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `UPDATE `+table+` SET customer_name=?, city=?, address=?, phone=?, remark=?, amount=?,
alert_flag=?, message_flag=?, modified=?, updated_at=? WHERE id=?`,
		it.CustomerName, it.City, nullable(it.Address), nullable(it.Phone), nullable(it.Remark), it.Amount.String(),
		it.AlertFlag, it.MessageFlag, it.Modified, it.UpdatedAt, it.ID))
}

// MarkItemDone sets completed_at when it is not set yet. It reports whether
// the row changed.
func (r Repo) MarkItemDone(ctx context.Context, tx *sql.Tx, ref domain.ItemRef, ts string) (bool, error) {
	table, err := tableFor(ref.Variant)
	if err != nil {
		return false, err
	}
	res, err := r.q(tx).ExecContext(ctx, `UPDATE `+table+` SET completed_at=?, updated_at=? WHERE id=? AND completed_at IS NULL`, ts, ts, ref.ID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r Repo) CancelItem(ctx context.Context, tx *sql.Tx, ref domain.ItemRef, ts string) error {
	table, err := tableFor(ref.Variant)
	if err != nil {
		return err
	}
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `UPDATE `+table+` SET cancelled_at=?, updated_at=? WHERE id=? AND cancelled_at IS NULL`, ts, ts, ref.ID))
}

// ClearPrimarySchedule detaches every item whose primary schedule is id and
// returns how many rows changed.
func (r Repo) ClearPrimarySchedule(ctx context.Context, tx *sql.Tx, scheduleID int64, now string) (int64, error) {
	var total int64
	for _, table := range []string{"orders", "returns"} {
		res, err := r.q(tx).ExecContext(ctx, `UPDATE `+table+` SET primary_schedule_id=NULL, updated_at=? WHERE primary_schedule_id=?`, now, scheduleID)
		if err != nil {
			return total, err
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}
