package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	ItemCreated      = "item.created"
	ItemUpdated      = "item.updated"
	ItemMoved        = "item.moved"
	ItemTransferred  = "item.transferred"
	ItemCompleted    = "item.completed"
	ItemCancelled    = "item.cancelled"
	ScheduleCreated  = "schedule.created"
	ScheduleReset    = "schedule.reset"
	SchedulePinned   = "schedule.pinned"
	ScheduleDated    = "schedule.dated"
	ScheduleDriver   = "schedule.driver_assigned"
	ScheduleProduced = "schedule.produced"
	DirectiveSet     = "directive.set"
	DirectiveCleared = "directive.cleared"
	GroupCreated     = "group.created"
	GroupAgentAdded  = "group.agent_authorized"
	ActorRoleSet     = "actor.role_set"
	ConfigImported   = "config.imported"
	APIKeyCreated    = "api_key.created"
	APIKeyRevoked    = "api_key.revoked"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx so it commits or rolls back with the
// change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
