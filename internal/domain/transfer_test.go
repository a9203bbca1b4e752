package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTransferRefShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		kind TransferKind
		ids  []int64
	}{
		{name: "absent", raw: "", kind: TransferNone},
		{name: "null", raw: "null", kind: TransferNone},
		{name: "single", raw: "17", kind: TransferSingle, ids: []int64{17}},
		{name: "single float literal", raw: "17.0", kind: TransferSingle, ids: []int64{17}},
		{name: "list", raw: "[3, 4]", kind: TransferList, ids: []int64{3, 4}},
		{name: "empty list", raw: "[]", kind: TransferList},
		{name: "record", raw: `{"schedule_id": 9, "at": "2024-01-01"}`, kind: TransferRecord, ids: []int64{9}},
		{name: "record by id", raw: `{"id": 12}`, kind: TransferRecord, ids: []int64{12}},
		{name: "string", raw: `"17"`, kind: TransferNone},
		{name: "fraction", raw: "1.5", kind: TransferNone},
		{name: "negative", raw: "-3", kind: TransferNone},
		{name: "list with junk", raw: `[1, "x"]`, kind: TransferNone},
		{name: "object without id", raw: `{"note": 1}`, kind: TransferNone},
		{name: "invalid json", raw: `{`, kind: TransferNone},
		{name: "bool", raw: `true`, kind: TransferNone},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ref := ParseTransferRef([]byte(tc.raw))
			assert.Equal(t, tc.kind, ref.Kind())
			switch tc.kind {
			case TransferSingle, TransferRecord:
				id, ok := ref.Target()
				require.True(t, ok)
				assert.Equal(t, tc.ids[0], id)
			case TransferList:
				assert.Equal(t, len(tc.ids), len(ref.IDs()))
				for i, id := range tc.ids {
					assert.Equal(t, id, ref.IDs()[i])
				}
			}
		})
	}
}

func TestTransferRefStoreRoundTrip(t *testing.T) {
	for _, ref := range []TransferRef{SingleTransfer(17), ListTransfer(3, 4), RecordTransfer(9)} {
		v, err := ref.Value()
		require.NoError(t, err)
		var back TransferRef
		require.NoError(t, back.Scan(v))
		assert.Equal(t, ref.Kind(), back.Kind())
	}

	v, err := NoTransfer().Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestItemJSONKeepsTransferShape(t *testing.T) {
	it := Item{Variant: VariantOrder, ID: 1, Transfer: RecordTransfer(5)}
	data, err := json.Marshal(it)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"transfer_ref":{"schedule_id":5}`)

	var back Item
	require.NoError(t, json.Unmarshal(data, &back))
	target, ok := back.Transfer.Target()
	require.True(t, ok)
	assert.Equal(t, int64(5), target)
}

func TestScheduleState(t *testing.T) {
	date := "2024-03-01"
	num := int64(4)
	assert.Equal(t, StateUnscheduled, Schedule{}.State())
	assert.Equal(t, StateScheduled, Schedule{ScheduledDate: &date}.State())
	assert.Equal(t, StateProduced, Schedule{ScheduledDate: &date, ProductionNumber: &num}.State())
	assert.Equal(t, StateProduced, Schedule{ProductionNumber: &num}.State())
}
