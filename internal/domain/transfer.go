package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
)

type TransferKind int

const (
	TransferNone TransferKind = iota
	TransferSingle
	TransferList
	TransferRecord
)

func (k TransferKind) String() string {
	switch k {
	case TransferSingle:
		return "single"
	case TransferList:
		return "list"
	case TransferRecord:
		return "record"
	default:
		return "none"
	}
}

// TransferRef records that an item was moved to other schedules after its
// primary assignment. The zero value means no transfer.
type TransferRef struct {
	kind TransferKind
	ids  []int64
}

func NoTransfer() TransferRef { return TransferRef{} }

func SingleTransfer(id int64) TransferRef {
	return TransferRef{kind: TransferSingle, ids: []int64{id}}
}

func ListTransfer(ids ...int64) TransferRef {
	return TransferRef{kind: TransferList, ids: append([]int64(nil), ids...)}
}

func RecordTransfer(id int64) TransferRef {
	return TransferRef{kind: TransferRecord, ids: []int64{id}}
}

func (t TransferRef) Kind() TransferKind { return t.kind }

// Target is the replacing schedule of a single or record transfer.
func (t TransferRef) Target() (int64, bool) {
	if (t.kind == TransferSingle || t.kind == TransferRecord) && len(t.ids) == 1 {
		return t.ids[0], true
	}
	return 0, false
}

// IDs returns the schedules named by a list transfer.
func (t TransferRef) IDs() []int64 {
	if t.kind != TransferList {
		return nil
	}
	return append([]int64(nil), t.ids...)
}

// Present reports whether the reference names at least one schedule.
func (t TransferRef) Present() bool {
	return t.kind != TransferNone && len(t.ids) > 0
}

func (t TransferRef) MarshalJSON() ([]byte, error) {
	switch t.kind {
	case TransferSingle:
		return json.Marshal(t.ids[0])
	case TransferList:
		ids := t.ids
		if ids == nil {
			ids = []int64{}
		}
		return json.Marshal(ids)
	case TransferRecord:
		return json.Marshal(struct {
			ScheduleID int64 `json:"schedule_id"`
		}{t.ids[0]})
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON never fails: shapes it does not recognise decode to no
// transfer.
func (t *TransferRef) UnmarshalJSON(data []byte) error {
	*t = ParseTransferRef(data)
	return nil
}

// ParseTransferRef decodes the stored JSON shape. Integers are single
// transfers, integer arrays are lists, objects with an integer schedule_id
// (or id) are records. Everything else is no transfer.
func ParseTransferRef(data []byte) TransferRef {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return TransferRef{}
	}
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return TransferRef{}
	}
	switch v := raw.(type) {
	case json.Number:
		if id, ok := scheduleID(v); ok {
			return SingleTransfer(id)
		}
	case []any:
		ids := make([]int64, 0, len(v))
		for _, el := range v {
			n, ok := el.(json.Number)
			if !ok {
				return TransferRef{}
			}
			id, ok := scheduleID(n)
			if !ok {
				return TransferRef{}
			}
			ids = append(ids, id)
		}
		return TransferRef{kind: TransferList, ids: ids}
	case map[string]any:
		for _, key := range []string{"schedule_id", "id"} {
			n, ok := v[key].(json.Number)
			if !ok {
				continue
			}
			if id, ok := scheduleID(n); ok {
				return RecordTransfer(id)
			}
			return TransferRef{}
		}
	}
	return TransferRef{}
}

func scheduleID(n json.Number) (int64, bool) {
	if id, err := n.Int64(); err == nil {
		return id, id > 0
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f <= 0 || f > math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func (t TransferRef) Value() (driver.Value, error) {
	if t.kind == TransferNone {
		return nil, nil
	}
	data, err := t.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (t *TransferRef) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = TransferRef{}
	case string:
		*t = ParseTransferRef([]byte(v))
	case []byte:
		*t = ParseTransferRef(v)
	case int64:
		*t = ParseTransferRef([]byte(fmt.Sprint(v)))
	default:
		*t = TransferRef{}
	}
	return nil
}
