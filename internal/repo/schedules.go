package repo

import (
	"context"
	"database/sql"
	"strings"

	"distline/internal/domain"
)

const scheduleColumns = `id,group_id,driver_id,scheduled_date,production_number,produced_at,pinned,created_at`

func scanSchedule(row rowScanner) (domain.Schedule, error) {
	var (
		s                    domain.Schedule
		driver, date, prodAt sql.NullString
		number               sql.NullInt64
	)
	err := row.Scan(&s.ID, &s.GroupID, &driver, &date, &number, &prodAt, &s.Pinned, &s.CreatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.DriverID = stringPtr(driver)
	s.ScheduledDate = stringPtr(date)
	s.ProductionNumber = int64Ptr(number)
	s.ProducedAt = stringPtr(prodAt)
	return s, nil
}

func (r Repo) InsertSchedule(ctx context.Context, tx *sql.Tx, groupID, now string) (domain.Schedule, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO schedules(group_id,pinned,created_at) VALUES (?,0,?)`, groupID, now)
	if err != nil {
		return domain.Schedule{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Schedule{}, err
	}
	return domain.Schedule{ID: id, GroupID: groupID, CreatedAt: now}, nil
}

func (r Repo) GetSchedule(ctx context.Context, tx *sql.Tx, id int64) (domain.Schedule, error) {
	return scanSchedule(r.q(tx).QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE id=?`, id))
}

// FindEmptyOpenSchedule returns the oldest unscheduled, unproduced schedule
// of a group that has no live member by primary assignment.
func (r Repo) FindEmptyOpenSchedule(ctx context.Context, tx *sql.Tx, groupID string) (domain.Schedule, error) {
	return scanSchedule(r.q(tx).QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules s
WHERE s.group_id=? AND s.scheduled_date IS NULL AND s.production_number IS NULL
  AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.primary_schedule_id=s.id AND o.cancelled_at IS NULL)
  AND NOT EXISTS (SELECT 1 FROM returns t WHERE t.primary_schedule_id=s.id AND t.cancelled_at IS NULL)
ORDER BY s.id LIMIT 1`, groupID))
}

type ScheduleFilters struct {
	State   domain.ScheduleState
	GroupID string
}

// ListSchedules returns schedules ordered by id.
func (r Repo) ListSchedules(ctx context.Context, tx *sql.Tx, f ScheduleFilters) ([]domain.Schedule, error) {
	var (
		clauses []string
		args    []any
	)
	switch f.State {
	case domain.StateUnscheduled:
		clauses = append(clauses, "scheduled_date IS NULL", "production_number IS NULL")
	case domain.StateScheduled:
		clauses = append(clauses, "scheduled_date IS NOT NULL", "production_number IS NULL")
	case domain.StateProduced:
		clauses = append(clauses, "production_number IS NOT NULL")
	}
	if f.GroupID != "" {
		clauses = append(clauses, "group_id=?")
		args = append(args, f.GroupID)
	}
	query := `SELECT ` + scheduleColumns + ` FROM schedules`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := r.q(tx).QueryContext(ctx, query+" ORDER BY id", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// UpdateScheduleDate sets or clears the date of an unproduced schedule.
func (r Repo) UpdateScheduleDate(ctx context.Context, tx *sql.Tx, id int64, date *string) error {
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `UPDATE schedules SET scheduled_date=? WHERE id=? AND production_number IS NULL`, nullableStringPtr(date), id))
}

func (r Repo) UpdateScheduleDriver(ctx context.Context, tx *sql.Tx, id int64, driverID *string) error {
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `UPDATE schedules SET driver_id=? WHERE id=? AND production_number IS NULL`, nullableStringPtr(driverID), id))
}

func (r Repo) UpdateSchedulePinned(ctx context.Context, tx *sql.Tx, id int64, pinned bool) error {
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `UPDATE schedules SET pinned=? WHERE id=?`, pinned, id))
}

// MarkProduced writes the production number and timestamp in one update. It
// reports false when the schedule already carries a number.
func (r Repo) MarkProduced(ctx context.Context, tx *sql.Tx, id, number int64, producedAt string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE schedules SET production_number=?, produced_at=? WHERE id=? AND production_number IS NULL`, number, producedAt, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteSchedule removes an unscheduled, unproduced schedule.
func (r Repo) DeleteSchedule(ctx context.Context, tx *sql.Tx, id int64) error {
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `DELETE FROM schedules WHERE id=? AND scheduled_date IS NULL AND production_number IS NULL`, id))
}
