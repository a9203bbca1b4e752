package repo

import (
	"context"
	"database/sql"

	"distline/internal/domain"
)

func (r Repo) UpsertDirective(ctx context.Context, tx *sql.Tx, d domain.ReplacementDirective) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO replacements(variant,item_id,customer_name,city,exists_in_system,address,phone,created_at)
VALUES (?,?,?,?,?,?,?,?)
ON CONFLICT(variant,item_id) DO UPDATE SET customer_name=excluded.customer_name, city=excluded.city,
  exists_in_system=excluded.exists_in_system, address=excluded.address, phone=excluded.phone`,
		d.Variant, d.ItemID, d.CustomerName, d.City, d.ExistsInSystem, nullable(d.Address), nullable(d.Phone), d.CreatedAt)
	return err
}

func (r Repo) DeleteDirective(ctx context.Context, tx *sql.Tx, ref domain.ItemRef) error {
	return affectedOrNotFound(r.q(tx).ExecContext(ctx, `DELETE FROM replacements WHERE variant=? AND item_id=?`, ref.Variant, ref.ID))
}

func (r Repo) ListDirectives(ctx context.Context, tx *sql.Tx) ([]domain.ReplacementDirective, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT variant,item_id,customer_name,city,exists_in_system,COALESCE(address,''),COALESCE(phone,''),created_at
FROM replacements ORDER BY variant, item_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ReplacementDirective
	for rows.Next() {
		var d domain.ReplacementDirective
		if err := rows.Scan(&d.Variant, &d.ItemID, &d.CustomerName, &d.City, &d.ExistsInSystem, &d.Address, &d.Phone, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
