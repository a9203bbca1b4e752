package server

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"distline/internal/domain"
	"distline/internal/engine"
	derrors "distline/internal/errors"
)

// Request payloads

type CreateScheduleRequest struct {
	GroupID string `json:"group_id"`
}

// UpdateScheduleRequest is applied field by field. A null scheduled_date or
// driver_id clears it.
type UpdateScheduleRequest struct {
	ScheduledDate *string `json:"scheduled_date,omitempty" nullable:"true"`
	DriverID      *string `json:"driver_id,omitempty" nullable:"true"`
	Pinned        *bool   `json:"pinned,omitempty"`
}

type DropItemRequest struct {
	Variant string `json:"variant" enum:"order,return"`
	ID      int64  `json:"id"`
}

type CreateItemRequest struct {
	CustomerName      string `json:"customer_name"`
	City              string `json:"city"`
	Address           string `json:"address,omitempty"`
	Phone             string `json:"phone,omitempty"`
	Remark            string `json:"remark,omitempty"`
	Amount            string `json:"amount" example:"120.50"`
	AgentID           string `json:"agent_id,omitempty"`
	PrimaryScheduleID *int64 `json:"primary_schedule_id,omitempty"`
	AlertFlag         bool   `json:"alert_flag,omitempty"`
	MessageFlag       bool   `json:"message_flag,omitempty"`
}

type TransferRequest struct {
	ScheduleID int64 `json:"schedule_id"`
	// Append adds the schedule to a list reference instead of replacing the
	// primary.
	Append bool `json:"append,omitempty"`
}

// UpdateItemRequest edits details, moves the item when schedule_id is
// present (null returns it to the pool) and records a transfer.
type UpdateItemRequest struct {
	CustomerName *string          `json:"customer_name,omitempty"`
	City         *string          `json:"city,omitempty"`
	Address      *string          `json:"address,omitempty"`
	Phone        *string          `json:"phone,omitempty"`
	Remark       *string          `json:"remark,omitempty"`
	Amount       *string          `json:"amount,omitempty"`
	AlertFlag    *bool            `json:"alert_flag,omitempty"`
	MessageFlag  *bool            `json:"message_flag,omitempty"`
	ScheduleID   *int64           `json:"schedule_id,omitempty" nullable:"true"`
	Transfer     *TransferRequest `json:"transfer,omitempty"`
}

type DirectiveRequest struct {
	CustomerName   string `json:"customer_name"`
	City           string `json:"city"`
	ExistsInSystem bool   `json:"exists_in_system"`
	Address        string `json:"address,omitempty"`
	Phone          string `json:"phone,omitempty"`
}

type CreateGroupRequest struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

type AuthorizeAgentRequest struct {
	AgentID string `json:"agent_id"`
}

type SetRoleRequest struct {
	Role string `json:"role" enum:"admin,agent,restricted_agent"`
}

type CreateAPIKeyRequest struct {
	ActorID string `json:"actor_id,omitempty"`
	Name    string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Responses

type DevLoginResponse struct {
	Token string `json:"token"`
}

type MeResponse struct {
	ActorID      string   `json:"actor_id"`
	Role         string   `json:"role"`
	Permissions  []string `json:"permissions"`
	Unrestricted bool     `json:"unrestricted"`
	Source       string   `json:"source"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    any    `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func eventResponse(evt domain.Event) EventResponse {
	return EventResponse{
		ID:         evt.ID,
		TS:         evt.TS,
		Type:       evt.Type,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		Payload:    decodePayload(evt.Payload),
	}
}

func parseAmount(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return d, derrors.Reject("invalid amount %q", raw)
	}
	return d, nil
}

func parseItemRef(variant string, id int64) (domain.ItemRef, error) {
	v, err := domain.ParseVariant(variant)
	if err != nil {
		return domain.ItemRef{}, badRequest("%v", err)
	}
	if id <= 0 {
		return domain.ItemRef{}, badRequest("invalid id %s", strconv.FormatInt(id, 10))
	}
	return domain.ItemRef{Variant: v, ID: id}, nil
}

func (r CreateItemRequest) input(v domain.Variant) (engine.ItemInput, error) {
	amount, err := parseAmount(r.Amount)
	if err != nil {
		return engine.ItemInput{}, err
	}
	return engine.ItemInput{
		Variant:           v,
		CustomerName:      r.CustomerName,
		City:              r.City,
		Address:           r.Address,
		Phone:             r.Phone,
		Remark:            r.Remark,
		Amount:            amount,
		AgentID:           r.AgentID,
		PrimaryScheduleID: r.PrimaryScheduleID,
		AlertFlag:         r.AlertFlag,
		MessageFlag:       r.MessageFlag,
	}, nil
}

func (r UpdateItemRequest) patch() (engine.ItemPatch, error) {
	p := engine.ItemPatch{
		CustomerName: r.CustomerName,
		City:         r.City,
		Address:      r.Address,
		Phone:        r.Phone,
		Remark:       r.Remark,
		AlertFlag:    r.AlertFlag,
		MessageFlag:  r.MessageFlag,
	}
	if r.Amount != nil {
		amount, err := parseAmount(*r.Amount)
		if err != nil {
			return p, err
		}
		p.Amount = &amount
	}
	return p, nil
}

func decodePayload(raw string) any {
	if raw == "" {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
