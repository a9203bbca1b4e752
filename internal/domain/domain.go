package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type Variant string

const (
	VariantOrder  Variant = "order"
	VariantReturn Variant = "return"
)

func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case VariantOrder, "orders":
		return VariantOrder, nil
	case VariantReturn, "returns":
		return VariantReturn, nil
	}
	return "", fmt.Errorf("unknown item variant %q", s)
}

// ItemRef identifies an order or a return. Ids are only unique per variant.
type ItemRef struct {
	Variant Variant `json:"variant" enum:"order,return"`
	ID      int64   `json:"id"`
}

func (r ItemRef) String() string {
	return string(r.Variant) + ":" + strconv.FormatInt(r.ID, 10)
}

// Item is an order or a return. Both variants share every field.
type Item struct {
	Variant           Variant         `json:"variant"`
	ID                int64           `json:"id"`
	CustomerName      string          `json:"customer_name"`
	City              string          `json:"city"`
	Address           string          `json:"address,omitempty"`
	Phone             string          `json:"phone,omitempty"`
	Remark            string          `json:"remark,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	AgentID           string          `json:"agent_id"`
	PrimaryScheduleID *int64          `json:"primary_schedule_id,omitempty"`
	Transfer          TransferRef     `json:"transfer_ref"`
	CompletedAt       *string         `json:"completed_at,omitempty"`
	CancelledAt       *string         `json:"cancelled_at,omitempty"`
	AlertFlag         bool            `json:"alert_flag"`
	MessageFlag       bool            `json:"message_flag"`
	Modified          bool            `json:"modified"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
}

func (it Item) Ref() ItemRef {
	return ItemRef{Variant: it.Variant, ID: it.ID}
}

func (it Item) Cancelled() bool { return it.CancelledAt != nil }

func (it Item) Completed() bool { return it.CompletedAt != nil }

type ScheduleState string

const (
	StateUnscheduled ScheduleState = "unscheduled"
	StateScheduled   ScheduleState = "scheduled"
	StateProduced    ScheduleState = "produced"
)

// Schedule is a distribution line.
type Schedule struct {
	ID               int64   `json:"id"`
	GroupID          string  `json:"group_id"`
	DriverID         *string `json:"driver_id,omitempty"`
	ScheduledDate    *string `json:"scheduled_date,omitempty"`
	ProductionNumber *int64  `json:"production_number,omitempty"`
	ProducedAt       *string `json:"produced_at,omitempty"`
	Pinned           bool    `json:"pinned"`
	CreatedAt        string  `json:"created_at"`
}

// State derives the lifecycle state. A production number wins over a date.
func (s Schedule) State() ScheduleState {
	switch {
	case s.ProductionNumber != nil:
		return StateProduced
	case s.ScheduledDate != nil:
		return StateScheduled
	default:
		return StateUnscheduled
	}
}

func (s Schedule) Produced() bool { return s.ProductionNumber != nil }

type Group struct {
	ID        string   `json:"id"`
	Label     string   `json:"label"`
	AgentIDs  []string `json:"agent_ids,omitempty"`
	CreatedAt string   `json:"created_at"`
}

// ReplacementDirective substitutes the customer identity of one item.
type ReplacementDirective struct {
	Variant        Variant `json:"variant"`
	ItemID         int64   `json:"item_id"`
	CustomerName   string  `json:"customer_name"`
	City           string  `json:"city"`
	ExistsInSystem bool    `json:"exists_in_system"`
	Address        string  `json:"address,omitempty"`
	Phone          string  `json:"phone,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func (d ReplacementDirective) Ref() ItemRef {
	return ItemRef{Variant: d.Variant, ID: d.ItemID}
}

type Role string

const (
	RoleAdmin           Role = "admin"
	RoleAgent           Role = "agent"
	RoleRestrictedAgent Role = "restricted_agent"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleAdmin, RoleAgent, RoleRestrictedAgent:
		return r, nil
	case "restricted-agent":
		return RoleRestrictedAgent, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

type Actor struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	CreatedAt string `json:"created_at,omitempty"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Snapshot is one consistent read of everything the board is computed from.
type Snapshot struct {
	Schedules  []Schedule             `json:"schedules"`
	Items      []Item                 `json:"items"`
	Directives []ReplacementDirective `json:"directives"`
	Groups     []Group                `json:"groups"`
}
