package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"distline/internal/board"
	"distline/internal/domain"
	"distline/internal/engine"
	"distline/internal/engine/auth"
	"distline/internal/zones"
)

type zonesBody struct {
	Zones []zones.Zone `json:"zones"`
}

// primeZones loads the mapping once after startup so zone commands work
// before anyone has read the board.
func (d deps) primeZones(ctx context.Context) error {
	if len(d.zones.Mapping()) > 0 {
		return nil
	}
	_, err := d.zones.Refresh(ctx)
	return err
}

func registerMe(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		p, ok := principalFromContext(ctx)
		if !ok {
			return nil, newAPIError(http.StatusUnauthorized, "", "authentication required", nil)
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: MeResponse{
			ActorID:      p.Actor.ID,
			Role:         string(p.Actor.Role),
			Permissions:  nonNilSlice(auth.Permissions(p.Actor.Role)),
			Unrestricted: d.e.Config.Unrestricted(p.Actor.ID),
			Source:       p.Source,
		}}, nil
	})
}

func registerDevAuth(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for a registered actor",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		if !d.auth.AllowDevLogin {
			return nil, newAPIError(http.StatusNotFound, "", "dev login disabled", nil)
		}
		actorID := strings.TrimSpace(input.Body.ActorID)
		if actorID == "" {
			return nil, badRequest("actor_id is required")
		}
		actor, err := auth.Service{Repo: d.e.Repo}.Resolve(ctx, actorID)
		if err != nil {
			return nil, newAPIError(http.StatusNotFound, "", err.Error(), nil)
		}
		token, err := signDevToken(d.auth.JWTSecret, actor, 12*time.Hour)
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func registerBoard(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "board",
		Method:      http.MethodGet,
		Path:        "/board",
		Summary:     "Zones, dated lines and the unassigned pool for the caller",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body board.View `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.Require(actor, auth.PermBoardRead); err != nil {
			return nil, handleError(err)
		}
		view, err := d.boards.Board(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body board.View `json:"body"`
		}{Body: view}, nil
	})
}

func registerSchedules(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-schedules",
		Method:      http.MethodGet,
		Path:        "/schedules",
		Summary:     "Visible schedules with aggregates",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		State string `query:"state" doc:"unscheduled, scheduled or produced"`
	}) (*struct {
		Body []board.ScheduleView `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		state := domain.ScheduleState(strings.TrimSpace(input.State))
		switch state {
		case "", domain.StateUnscheduled, domain.StateScheduled, domain.StateProduced:
		default:
			return nil, badRequest("invalid state %q", input.State)
		}
		list, err := d.boards.Schedules(ctx, actor, state)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []board.ScheduleView `json:"body"`
		}{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-schedule",
		Method:        http.MethodPost,
		Path:          "/schedules",
		Summary:       "Get or create the open schedule of a group",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Body CreateScheduleRequest `json:"body"`
	}) (*struct {
		Body domain.Schedule `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := d.e.CreateSchedule(ctx, actor, input.Body.GroupID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Schedule `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-schedule",
		Method:      http.MethodGet,
		Path:        "/schedules/{id}",
		Summary:     "One schedule with its aggregate",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body board.ScheduleView `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		view, err := d.boards.Schedule(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body board.ScheduleView `json:"body"`
		}{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-schedule",
		Method:      http.MethodPatch,
		Path:        "/schedules/{id}",
		Summary:     "Set date, driver or pin",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ID   int64                 `path:"id"`
		Body UpdateScheduleRequest `json:"body"`
	}) (*struct {
		Body domain.Schedule `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		raw := rawBodyMap(ctx)
		var (
			s       domain.Schedule
			err     error
			changed bool
		)
		if v, ok := raw["scheduled_date"]; ok {
			date := input.Body.ScheduledDate
			if isNullRaw(v) {
				date = nil
			}
			if s, err = d.e.SetScheduledDate(ctx, actor, input.ID, date); err != nil {
				return nil, handleError(err)
			}
			changed = true
		}
		if v, ok := raw["driver_id"]; ok {
			driver := input.Body.DriverID
			if isNullRaw(v) {
				driver = nil
			}
			if s, err = d.e.SetDriver(ctx, actor, input.ID, driver); err != nil {
				return nil, handleError(err)
			}
			changed = true
		}
		if input.Body.Pinned != nil {
			if s, err = d.e.SetPinned(ctx, actor, input.ID, *input.Body.Pinned); err != nil {
				return nil, handleError(err)
			}
			changed = true
		}
		if !changed {
			return nil, badRequest("no fields to update")
		}
		if s, err = d.e.GetSchedule(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Schedule `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "produce-schedule",
		Method:      http.MethodPost,
		Path:        "/schedules/{id}/produce",
		Summary:     "Assign the next production number and complete member items",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity, http.StatusServiceUnavailable},
	}, func(ctx context.Context, input *struct {
		ID int64 `path:"id"`
	}) (*struct {
		Body engine.ProduceResult `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := d.e.Produce(ctx, actor, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ProduceResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerZones(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID: "list-zones",
		Method:      http.MethodGet,
		Path:        "/zones",
		Summary:     "Refresh and list the zone strip",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body zonesBody `json:"body"`
	}, error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		strip, err := d.zones.Refresh(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body zonesBody `json:"body"`
		}{Body: zonesBody{Zones: strip}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "drop-item",
		Method:      http.MethodPost,
		Path:        "/zones/{index}/drop",
		Summary:     "Assign an item to the schedule bound to a zone",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Index int             `path:"index"`
		Body  DropItemRequest `json:"body"`
	}) (*struct {
		Body zonesBody `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ref, err := parseItemRef(input.Body.Variant, input.Body.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if err := d.primeZones(ctx); err != nil {
			return nil, handleError(err)
		}
		strip, err := d.zones.DropItem(ctx, actor, ref, input.Index)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body zonesBody `json:"body"`
		}{Body: zonesBody{Zones: strip}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reset-zone",
		Method:      http.MethodPost,
		Path:        "/zones/{index}/reset",
		Summary:     "Detach every item from the zone's schedule and delete it",
		Errors:      []int{http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Index int `path:"index"`
	}) (*struct {
		Body zonesBody `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := d.primeZones(ctx); err != nil {
			return nil, handleError(err)
		}
		strip, err := d.zones.ResetZone(ctx, actor, input.Index)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body zonesBody `json:"body"`
		}{Body: zonesBody{Zones: strip}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-zone-pin",
		Method:      http.MethodPost,
		Path:        "/zones/{index}/pin",
		Summary:     "Toggle the pin of the zone's schedule",
		Errors:      []int{http.StatusForbidden, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		Index int `path:"index"`
	}) (*struct {
		Body zonesBody `json:"body"`
	}, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := d.primeZones(ctx); err != nil {
			return nil, handleError(err)
		}
		strip, err := d.zones.TogglePin(ctx, actor, input.Index)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body zonesBody `json:"body"`
		}{Body: zonesBody{Zones: strip}}, nil
	})
}
