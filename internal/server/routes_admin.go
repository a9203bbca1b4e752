package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"distline/internal/config"
	"distline/internal/domain"
	"distline/internal/engine"
	"distline/internal/engine/auth"
	"distline/internal/repo"
)

func registerGroups(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-groups",
		Method:      http.MethodGet,
		Path:        "/groups",
		Summary:     "List groups with their authorized agents",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Group `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.Require(actor, auth.PermBoardRead); err != nil {
			return nil, handleError(err)
		}
		list, err := d.e.ListGroups(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Group `json:"body"`
		}{Body: nonNilSlice(list)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-group",
		Method:        http.MethodPost,
		Path:          "/groups",
		Summary:       "Create a group",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateGroupRequest `json:"body"`
	}) (*struct {
		Body domain.Group `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		g, err := d.e.CreateGroup(ctx, actor, input.Body.ID, input.Body.Label)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Group `json:"body"`
		}{Body: g}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "authorize-agent",
		Method:      http.MethodPost,
		Path:        "/groups/{id}/agents",
		Summary:     "Authorize an agent on a group",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body AuthorizeAgentRequest `json:"body"`
	}) (*struct {
		Body domain.Group `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if strings.TrimSpace(input.Body.AgentID) == "" {
			return nil, badRequest("agent_id is required")
		}
		g, err := d.e.AuthorizeAgent(ctx, actor, input.ID, input.Body.AgentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Group `json:"body"`
		}{Body: g}, nil
	})
}

func registerAdmin(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "set-actor-role",
		Method:      http.MethodPut,
		Path:        "/actors/{id}/role",
		Summary:     "Register an actor or change its role",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body SetRoleRequest `json:"body"`
	}) (*struct {
		Body domain.Actor `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		role, err := domain.ParseRole(input.Body.Role)
		if err != nil {
			return nil, badRequest("%v", err)
		}
		a, err := d.e.SetActorRole(ctx, actor, input.ID, role)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Actor `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create an API key. The raw key is only returned here",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body engine.CreatedAPIKey `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, err := d.e.CreateAPIKey(ctx, actor, input.Body.ActorID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.CreatedAPIKey `json:"body"`
		}{Body: key}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-config",
		Method:      http.MethodGet,
		Path:        "/config",
		Summary:     "Show the stored workspace config",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body *config.Config `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.Require(actor, auth.PermSettingsWrite); err != nil {
			return nil, handleError(err)
		}
		cfg, err := d.e.Repo.GetConfig(ctx)
		if errors.Is(err, repo.ErrNotFound) || (err == nil && cfg == nil) {
			cfg, err = d.e.Config, nil
		}
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body *config.Config `json:"body"`
		}{Body: cfg}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "import-config",
		Method:      http.MethodPut,
		Path:        "/config",
		Summary:     "Replace the stored workspace config. Running servers pick it up on restart",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body config.Config `json:"body"`
	}) (*struct {
		Body config.Config `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cfg := input.Body
		if cfg.Production.Allocator == "" {
			cfg.Production.Allocator = config.AllocatorSQL
		}
		if err := d.e.ImportConfig(ctx, actor, &cfg); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body config.Config `json:"body"`
		}{Body: cfg}, nil
	})
}

func registerEvents(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List events newest first",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.Require(actor, auth.PermEventsRead); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		f := repo.EventFilters{
			Type:       strings.TrimSpace(input.Type),
			EntityKind: strings.TrimSpace(input.EntityKind),
			EntityID:   strings.TrimSpace(input.EntityID),
			Limit:      limit + 1,
		}
		if c := strings.TrimSpace(input.Cursor); c != "" {
			before, err := strconv.ParseInt(c, 10, 64)
			if err != nil || before <= 0 {
				return nil, badRequest("invalid cursor %q", c)
			}
			f.Before = before
		}
		list, err := d.e.LatestEvents(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		out := paginatedEvents{Items: make([]EventResponse, 0, len(list))}
		if len(list) > limit {
			list = list[:limit]
			out.NextCursor = strconv.FormatInt(list[len(list)-1].ID, 10)
		}
		for _, evt := range list {
			out.Items = append(out.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: out}, nil
	})
}
