package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"

	"distline/internal/config"
	"distline/internal/domain"
	"distline/internal/engine/auth"
	derrors "distline/internal/errors"
	"distline/internal/events"
	"distline/internal/repo"
)

// SetReplacement stores the replacement directive of one item.
func (e Engine) SetReplacement(ctx context.Context, actor domain.Actor, d domain.ReplacementDirective) (domain.ReplacementDirective, error) {
	if err := auth.Require(actor, auth.PermDirectiveWrite); err != nil {
		return d, err
	}
	d.CustomerName = strings.TrimSpace(d.CustomerName)
	d.City = strings.TrimSpace(d.City)
	if d.CustomerName == "" {
		return d, derrors.Reject("customer_name required")
	}
	if _, err := e.loadItem(ctx, d.Ref()); err != nil {
		return d, err
	}
	d.CreatedAt = e.stamp()
	err := e.inTx(ctx, "set replacement", func(tx *sql.Tx) error {
		if err := e.Repo.UpsertDirective(ctx, tx, d); err != nil {
			return derrors.StoreWrite(err, "upsert directive")
		}
		if err := e.events().Append(ctx, tx, events.DirectiveSet, string(d.Variant), itemEntity(d.Ref()), actor.ID, events.EventPayload{
			"customer_name":    d.CustomerName,
			"city":             d.City,
			"exists_in_system": d.ExistsInSystem,
		}); err != nil {
			return derrors.StoreWrite(err, "append directive event")
		}
		return nil
	})
	return d, err
}

func (e Engine) ClearReplacement(ctx context.Context, actor domain.Actor, ref domain.ItemRef) error {
	if err := auth.Require(actor, auth.PermDirectiveWrite); err != nil {
		return err
	}
	return e.inTx(ctx, "clear replacement", func(tx *sql.Tx) error {
		if err := e.Repo.DeleteDirective(ctx, tx, ref); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return derrors.Wrap(derrors.CodeNotFound, err, "no directive for "+ref.String())
			}
			return derrors.StoreWrite(err, "delete directive")
		}
		if err := e.events().Append(ctx, tx, events.DirectiveCleared, string(ref.Variant), itemEntity(ref), actor.ID, nil); err != nil {
			return derrors.StoreWrite(err, "append directive event")
		}
		return nil
	})
}

func (e Engine) ListDirectives(ctx context.Context) ([]domain.ReplacementDirective, error) {
	list, err := e.Repo.ListDirectives(ctx, nil)
	if err != nil {
		return nil, readErr(err, "directives")
	}
	return list, nil
}

func (e Engine) CreateGroup(ctx context.Context, actor domain.Actor, id, label string) (domain.Group, error) {
	g := domain.Group{ID: strings.TrimSpace(id), Label: strings.TrimSpace(label)}
	if err := auth.Require(actor, auth.PermGroupWrite); err != nil {
		return g, err
	}
	if g.ID == "" {
		return g, derrors.Reject("group id required")
	}
	if g.Label == "" {
		g.Label = g.ID
	}
	if _, err := e.Repo.GetGroup(ctx, nil, g.ID); err == nil {
		return g, derrors.Reject("group %s already exists", g.ID)
	}
	g.CreatedAt = e.stamp()
	err := e.inTx(ctx, "create group", func(tx *sql.Tx) error {
		if err := e.Repo.InsertGroup(ctx, tx, g); err != nil {
			return derrors.StoreWrite(err, "insert group")
		}
		if err := e.events().Append(ctx, tx, events.GroupCreated, "group", g.ID, actor.ID, events.EventPayload{"label": g.Label}); err != nil {
			return derrors.StoreWrite(err, "append group event")
		}
		return nil
	})
	return g, err
}

// AuthorizeAgent lets an agent see the schedules of a group. Unknown actors
// are registered as agents.
func (e Engine) AuthorizeAgent(ctx context.Context, actor domain.Actor, groupID, agentID string) (domain.Group, error) {
	var g domain.Group
	if err := auth.Require(actor, auth.PermGroupWrite); err != nil {
		return g, err
	}
	agentID = strings.TrimSpace(agentID)
	if agentID == "" {
		return g, derrors.Reject("agent id required")
	}
	if _, err := e.Repo.GetGroup(ctx, nil, groupID); err != nil {
		return g, readErr(err, "group %s", groupID)
	}
	err := e.inTx(ctx, "authorize agent", func(tx *sql.Tx) error {
		if _, err := e.Repo.EnsureActor(ctx, tx, agentID, domain.RoleAgent, e.stamp()); err != nil {
			return derrors.StoreWrite(err, "ensure actor")
		}
		if err := e.Repo.AuthorizeAgent(ctx, tx, groupID, agentID); err != nil {
			return derrors.StoreWrite(err, "authorize agent")
		}
		if err := e.events().Append(ctx, tx, events.GroupAgentAdded, "group", groupID, actor.ID, events.EventPayload{"agent_id": agentID}); err != nil {
			return derrors.StoreWrite(err, "append group event")
		}
		return nil
	})
	if err != nil {
		return g, err
	}
	return e.Repo.GetGroup(ctx, nil, groupID)
}

func (e Engine) ListGroups(ctx context.Context) ([]domain.Group, error) {
	list, err := e.Repo.ListGroups(ctx, nil)
	if err != nil {
		return nil, readErr(err, "groups")
	}
	return list, nil
}

func (e Engine) SetActorRole(ctx context.Context, actor domain.Actor, actorID string, role domain.Role) (domain.Actor, error) {
	target := domain.Actor{ID: strings.TrimSpace(actorID), Role: role}
	if err := auth.Require(actor, auth.PermActorWrite); err != nil {
		return target, err
	}
	if target.ID == "" {
		return target, derrors.Reject("actor id required")
	}
	if _, err := domain.ParseRole(string(role)); err != nil {
		return target, derrors.Reject("%v", err)
	}
	if target.ID == actor.ID && role != domain.RoleAdmin {
		return target, derrors.Reject("admins cannot demote themselves")
	}
	err := e.inTx(ctx, "set actor role", func(tx *sql.Tx) error {
		if err := e.Repo.SetActorRole(ctx, tx, target.ID, role, e.stamp()); err != nil {
			return derrors.StoreWrite(err, "set actor role")
		}
		if err := e.events().Append(ctx, tx, events.ActorRoleSet, "actor", target.ID, actor.ID, events.EventPayload{"role": role}); err != nil {
			return derrors.StoreWrite(err, "append actor event")
		}
		return nil
	})
	if err != nil {
		return target, err
	}
	return e.Repo.GetActor(ctx, nil, target.ID)
}

// Bootstrap registers the first admin of a workspace. It only succeeds while
// no admin exists.
func (e Engine) Bootstrap(ctx context.Context, actorID string) (domain.Actor, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return domain.Actor{}, derrors.Reject("actor id required")
	}
	actors, err := e.Repo.ListActors(ctx)
	if err != nil {
		return domain.Actor{}, readErr(err, "actors")
	}
	for _, a := range actors {
		if a.Role == domain.RoleAdmin {
			if a.ID == actorID {
				return a, nil
			}
			return domain.Actor{}, derrors.Reject("workspace already has an admin")
		}
	}
	var a domain.Actor
	err = e.inTx(ctx, "bootstrap admin", func(tx *sql.Tx) error {
		if err := e.Repo.SetActorRole(ctx, tx, actorID, domain.RoleAdmin, e.stamp()); err != nil {
			return derrors.StoreWrite(err, "set actor role")
		}
		if err := e.events().Append(ctx, tx, events.ActorRoleSet, "actor", actorID, actorID, events.EventPayload{"role": domain.RoleAdmin, "bootstrap": true}); err != nil {
			return derrors.StoreWrite(err, "append actor event")
		}
		var err error
		a, err = e.Repo.GetActor(ctx, tx, actorID)
		return err
	})
	return a, err
}

// CreatedAPIKey carries the raw key, which is only shown once.
type CreatedAPIKey struct {
	domain.APIKey
	Key string `json:"key"`
}

func (e Engine) CreateAPIKey(ctx context.Context, actor domain.Actor, ownerID, name string) (CreatedAPIKey, error) {
	var out CreatedAPIKey
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		ownerID = actor.ID
	}
	if ownerID != actor.ID {
		if err := auth.Require(actor, auth.PermActorWrite); err != nil {
			return out, err
		}
	}
	if _, err := e.Repo.GetActor(ctx, nil, ownerID); err != nil {
		return out, readErr(err, "actor %s", ownerID)
	}
	raw := "dl_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	out = CreatedAPIKey{
		APIKey: domain.APIKey{
			ID:        uuid.NewString(),
			ActorID:   ownerID,
			Name:      strings.TrimSpace(name),
			KeyHash:   repo.HashAPIKey(raw),
			CreatedAt: e.stamp(),
		},
		Key: raw,
	}
	err := e.inTx(ctx, "create api key", func(tx *sql.Tx) error {
		if err := e.Repo.InsertAPIKey(ctx, tx, out.APIKey); err != nil {
			return derrors.StoreWrite(err, "insert api key")
		}
		if err := e.events().Append(ctx, tx, events.APIKeyCreated, "api_key", out.ID, actor.ID, events.EventPayload{"actor_id": ownerID, "name": out.Name}); err != nil {
			return derrors.StoreWrite(err, "append api key event")
		}
		return nil
	})
	return out, err
}

// ListAPIKeys returns key metadata. Callers without actor.write only see
// their own keys.
func (e Engine) ListAPIKeys(ctx context.Context, actor domain.Actor, ownerID string) ([]domain.APIKey, error) {
	ownerID = strings.TrimSpace(ownerID)
	if auth.Require(actor, auth.PermActorWrite) != nil {
		ownerID = actor.ID
	}
	keys, err := e.Repo.ListAPIKeys(ctx, ownerID)
	if err != nil {
		return nil, readErr(err, "api keys")
	}
	return keys, nil
}

// RevokeAPIKey deletes a key. Owners may revoke their own keys.
func (e Engine) RevokeAPIKey(ctx context.Context, actor domain.Actor, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return derrors.Reject("api key id required")
	}
	keys, err := e.Repo.ListAPIKeys(ctx, "")
	if err != nil {
		return readErr(err, "api keys")
	}
	var owner string
	for _, k := range keys {
		if k.ID == id {
			owner = k.ActorID
			break
		}
	}
	if owner == "" {
		return derrors.Newf(derrors.CodeNotFound, "api key %s not found", id)
	}
	if owner != actor.ID {
		if err := auth.Require(actor, auth.PermActorWrite); err != nil {
			return err
		}
	}
	return e.inTx(ctx, "revoke api key", func(tx *sql.Tx) error {
		if err := e.Repo.DeleteAPIKey(ctx, tx, id); err != nil {
			return writeErr(err, "delete api key")
		}
		if err := e.events().Append(ctx, tx, events.APIKeyRevoked, "api_key", id, actor.ID, events.EventPayload{"actor_id": owner}); err != nil {
			return derrors.StoreWrite(err, "append api key event")
		}
		return nil
	})
}

// ImportConfig validates cfg and stores it as the workspace config.
func (e Engine) ImportConfig(ctx context.Context, actor domain.Actor, cfg *config.Config) error {
	if err := auth.Require(actor, auth.PermSettingsWrite); err != nil {
		return err
	}
	if cfg == nil {
		return derrors.Reject("config required")
	}
	if err := cfg.Validate(); err != nil {
		return derrors.Reject("%v", err)
	}
	return e.inTx(ctx, "import config", func(tx *sql.Tx) error {
		if err := e.Repo.UpsertConfig(ctx, tx, cfg); err != nil {
			return derrors.StoreWrite(err, "store config")
		}
		if err := e.events().Append(ctx, tx, events.ConfigImported, "settings", "1", actor.ID, events.EventPayload{"zones": cfg.Board.Zones}); err != nil {
			return derrors.StoreWrite(err, "append config event")
		}
		return nil
	})
}

func (e Engine) LatestEvents(ctx context.Context, f repo.EventFilters) ([]domain.Event, error) {
	list, err := e.Repo.LatestEvents(ctx, f)
	if err != nil {
		return nil, readErr(err, "events")
	}
	return list, nil
}
