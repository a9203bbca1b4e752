package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"distline/internal/domain"
	"distline/internal/repo"
)

const (
	PermBoardRead       = "board.read"
	PermItemCreate      = "item.create"
	PermItemWriteOwn    = "item.write_own"
	PermItemWriteAny    = "item.write_any"
	PermZoneAssign      = "zone.assign"
	PermScheduleWrite   = "schedule.write"
	PermScheduleProduce = "schedule.produce"
	PermDirectiveWrite  = "directive.write"
	PermGroupWrite      = "group.write"
	PermActorWrite      = "actor.write"
	PermSettingsWrite   = "settings.write"
	PermEventsRead      = "events.read"
)

var rolePermissions = map[domain.Role][]string{
	domain.RoleAdmin: {
		PermBoardRead, PermItemCreate, PermItemWriteOwn, PermItemWriteAny, PermZoneAssign,
		PermScheduleWrite, PermScheduleProduce, PermDirectiveWrite, PermGroupWrite, PermActorWrite, PermSettingsWrite, PermEventsRead,
	},
	domain.RoleAgent:           {PermBoardRead, PermItemCreate, PermItemWriteOwn},
	domain.RoleRestrictedAgent: {PermBoardRead, PermItemCreate, PermItemWriteOwn},
}

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
	Role       domain.Role
}

func (e ForbiddenError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("permission %s required", e.Permission)
	}
	return fmt.Sprintf("permission %s required (role %s)", e.Permission, e.Role)
}

func Permissions(role domain.Role) []string {
	return append([]string(nil), rolePermissions[role]...)
}

func Allowed(role domain.Role, perm string) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// Require returns a ForbiddenError when the actor's role lacks perm.
func Require(actor domain.Actor, perm string) error {
	if Allowed(actor.Role, perm) {
		return nil
	}
	return ForbiddenError{Permission: perm, Role: actor.Role}
}

// Service resolves actors from the store.
type Service struct {
	Repo repo.Repo
}

// Resolve returns the stored actor. Unknown actors are rejected.
func (s Service) Resolve(ctx context.Context, actorID string) (domain.Actor, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return domain.Actor{}, errors.New("actor_id required")
	}
	a, err := s.Repo.GetActor(ctx, nil, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.Actor{}, fmt.Errorf("actor %s not registered: %w", actorID, err)
	}
	return a, err
}
