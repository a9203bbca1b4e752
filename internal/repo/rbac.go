package repo

import (
	"context"
	"database/sql"

	"distline/internal/domain"
)

// EnsureActor inserts the actor with role when it does not exist yet and
// returns the stored record.
func (r Repo) EnsureActor(ctx context.Context, tx *sql.Tx, actorID string, role domain.Role, now string) (domain.Actor, error) {
	if _, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO actors(id, role, created_at) VALUES (?,?,?)`, actorID, role, now); err != nil {
		return domain.Actor{}, err
	}
	return r.GetActor(ctx, tx, actorID)
}

func (r Repo) SetActorRole(ctx context.Context, tx *sql.Tx, actorID string, role domain.Role, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO actors(id, role, created_at) VALUES (?,?,?)
ON CONFLICT(id) DO UPDATE SET role=excluded.role`, actorID, role, now)
	return err
}

func (r Repo) GetActor(ctx context.Context, tx *sql.Tx, actorID string) (domain.Actor, error) {
	var a domain.Actor
	err := r.q(tx).QueryRowContext(ctx, `SELECT id, role, created_at FROM actors WHERE id=?`, actorID).Scan(&a.ID, &a.Role, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	return a, err
}

func (r Repo) ListActors(ctx context.Context) ([]domain.Actor, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, role, created_at FROM actors ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Actor
	for rows.Next() {
		var a domain.Actor
		if err := rows.Scan(&a.ID, &a.Role, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) InsertGroup(ctx context.Context, tx *sql.Tx, g domain.Group) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO line_groups(id, label, created_at) VALUES (?,?,?)`, g.ID, g.Label, g.CreatedAt)
	return err
}

// AuthorizeAgent lets an agent see the lines of a group.
func (r Repo) AuthorizeAgent(ctx context.Context, tx *sql.Tx, groupID, actorID string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO group_agents(group_id, actor_id) VALUES (?,?)`, groupID, actorID)
	return err
}

func (r Repo) GetGroup(ctx context.Context, tx *sql.Tx, id string) (domain.Group, error) {
	var g domain.Group
	err := r.q(tx).QueryRowContext(ctx, `SELECT id, label, created_at FROM line_groups WHERE id=?`, id).Scan(&g.ID, &g.Label, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	if err != nil {
		return g, err
	}
	agents, err := r.groupAgents(ctx, tx)
	if err != nil {
		return g, err
	}
	g.AgentIDs = agents[g.ID]
	return g, nil
}

// ListGroups returns groups with their authorised agents.
func (r Repo) ListGroups(ctx context.Context, tx *sql.Tx) ([]domain.Group, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id, label, created_at FROM line_groups ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var res []domain.Group
	for rows.Next() {
		var g domain.Group
		if err := rows.Scan(&g.ID, &g.Label, &g.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, g)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, err
	}
	agents, err := r.groupAgents(ctx, tx)
	if err != nil {
		return nil, err
	}
	for i := range res {
		res[i].AgentIDs = agents[res[i].ID]
	}
	return res, nil
}

func (r Repo) groupAgents(ctx context.Context, tx *sql.Tx) (map[string][]string, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT group_id, actor_id FROM group_agents ORDER BY group_id, actor_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string][]string{}
	for rows.Next() {
		var groupID, actorID string
		if err := rows.Scan(&groupID, &actorID); err != nil {
			return nil, err
		}
		res[groupID] = append(res[groupID], actorID)
	}
	return res, rows.Err()
}
