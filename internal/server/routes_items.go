package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"distline/internal/domain"
	"distline/internal/engine/auth"
	"distline/internal/repo"
)

type itemPath struct {
	Variant string `path:"variant" enum:"order,return"`
	ID      int64  `path:"id"`
}

func registerItems(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-items",
		Method:      http.MethodGet,
		Path:        "/items",
		Summary:     "List items. Callers without write access to every item only see their own",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Variant          string `query:"variant"`
		AgentID          string `query:"agent_id"`
		ScheduleID       int64  `query:"schedule_id"`
		Unassigned       bool   `query:"unassigned"`
		IncludeCancelled bool   `query:"include_cancelled"`
	}) (*struct {
		Body []domain.Item `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f := repo.ItemFilters{
			AgentID:          strings.TrimSpace(input.AgentID),
			Unassigned:       input.Unassigned,
			IncludeCancelled: input.IncludeCancelled,
		}
		if input.Variant != "" {
			v, err := domain.ParseVariant(input.Variant)
			if err != nil {
				return nil, badRequest("%v", err)
			}
			f.Variant = v
		}
		if input.ScheduleID > 0 {
			f.PrimaryScheduleID = &input.ScheduleID
		}
		if !auth.Allowed(actor.Role, auth.PermItemWriteAny) {
			f.AgentID = actor.ID
		}
		items, err := d.e.ListItems(ctx, f)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Item `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-item",
		Method:        http.MethodPost,
		Path:          "/items/{variant}",
		Summary:       "Create an order or a return",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Variant string            `path:"variant" enum:"order,return"`
		Body    CreateItemRequest `json:"body"`
	}) (*struct {
		Body domain.Item `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := domain.ParseVariant(input.Variant)
		if err != nil {
			return nil, badRequest("%v", err)
		}
		in, err := input.Body.input(v)
		if err != nil {
			return nil, handleError(err)
		}
		it, err := d.e.CreateItem(ctx, actor, in)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Item `json:"body"`
		}{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-item",
		Method:      http.MethodGet,
		Path:        "/items/{variant}/{id}",
		Summary:     "Get one item",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *itemPath) (*struct {
		Body domain.Item `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ref, err := parseItemRef(input.Variant, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		it, err := d.e.GetItem(ctx, ref)
		if err != nil {
			return nil, handleError(err)
		}
		if it.AgentID != actor.ID {
			if err := auth.Require(actor, auth.PermItemWriteAny); err != nil {
				return nil, handleError(err)
			}
		}
		return &struct {
			Body domain.Item `json:"body"`
		}{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-item",
		Method:      http.MethodPatch,
		Path:        "/items/{variant}/{id}",
		Summary:     "Edit details, move to a schedule or record a transfer",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Variant string            `path:"variant" enum:"order,return"`
		ID      int64             `path:"id"`
		Body    UpdateItemRequest `json:"body"`
	}) (*struct {
		Body domain.Item `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ref, err := parseItemRef(input.Variant, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		patch, err := input.Body.patch()
		if err != nil {
			return nil, handleError(err)
		}
		raw := rawBodyMap(ctx)
		rawSchedule, move := raw["schedule_id"]
		if patch.Empty() && !move && input.Body.Transfer == nil {
			return nil, badRequest("no fields to update")
		}
		if !patch.Empty() {
			if _, err := d.e.UpdateItem(ctx, actor, ref, patch); err != nil {
				return nil, handleError(err)
			}
		}
		if move {
			target := input.Body.ScheduleID
			if isNullRaw(rawSchedule) {
				target = nil
			}
			if _, err := d.e.MoveItem(ctx, actor, ref, target); err != nil {
				return nil, handleError(err)
			}
		}
		if t := input.Body.Transfer; t != nil {
			if _, err := d.e.TransferItem(ctx, actor, ref, t.ScheduleID, t.Append); err != nil {
				return nil, handleError(err)
			}
		}
		it, err := d.e.GetItem(ctx, ref)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Item `json:"body"`
		}{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-item",
		Method:      http.MethodPost,
		Path:        "/items/{variant}/{id}/done",
		Summary:     "Mark an item done",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *itemPath) (*struct {
		Body domain.Item `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ref, err := parseItemRef(input.Variant, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		it, err := d.e.MarkItemDone(ctx, actor, ref)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Item `json:"body"`
		}{Body: it}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-item",
		Method:      http.MethodDelete,
		Path:        "/items/{variant}/{id}",
		Summary:     "Cancel an item",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *itemPath) (*struct {
		Body domain.Item `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ref, err := parseItemRef(input.Variant, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		it, err := d.e.CancelItem(ctx, actor, ref)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Item `json:"body"`
		}{Body: it}, nil
	})
}

func registerDirectives(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-directives",
		Method:      http.MethodGet,
		Path:        "/directives",
		Summary:     "List replacement directives",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.ReplacementDirective `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.Require(actor, auth.PermBoardRead); err != nil {
			return nil, handleError(err)
		}
		list, err := d.e.ListDirectives(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.ReplacementDirective `json:"body"`
		}{Body: nonNilSlice(list)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-directive",
		Method:      http.MethodPut,
		Path:        "/directives/{variant}/{id}",
		Summary:     "Substitute the customer identity of an item",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Variant string           `path:"variant" enum:"order,return"`
		ID      int64            `path:"id"`
		Body    DirectiveRequest `json:"body"`
	}) (*struct {
		Body domain.ReplacementDirective `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ref, err := parseItemRef(input.Variant, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		dir, err := d.e.SetReplacement(ctx, actor, domain.ReplacementDirective{
			Variant:        ref.Variant,
			ItemID:         ref.ID,
			CustomerName:   input.Body.CustomerName,
			City:           input.Body.City,
			ExistsInSystem: input.Body.ExistsInSystem,
			Address:        input.Body.Address,
			Phone:          input.Body.Phone,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ReplacementDirective `json:"body"`
		}{Body: dir}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "clear-directive",
		Method:        http.MethodDelete,
		Path:          "/directives/{variant}/{id}",
		Summary:       "Remove the replacement directive of an item",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *itemPath) (*struct{}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ref, err := parseItemRef(input.Variant, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := d.e.ClearReplacement(ctx, actor, ref); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}
