package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDiffTreatsMissingAsNull(t *testing.T) {
	changes, err := Diff(json.RawMessage(`{"a":1,"b":null}`), json.RawMessage(`{"a":1}`), nil)
	require.NoError(t, err)
	require.Empty(t, changes)
}

func TestDiffSortedByField(t *testing.T) {
	changes, err := Diff(
		map[string]any{"z": 1, "m": 1, "a": 1},
		map[string]any{"z": 2, "m": 2, "a": 2},
		nil,
	)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	require.Equal(t, "a", changes[0].Field)
	require.Equal(t, "m", changes[1].Field)
	require.Equal(t, "z", changes[2].Field)
}

func TestDiffKeepsLargeIntegersExact(t *testing.T) {
	changes, err := Diff(
		json.RawMessage(`{"amount_cents":9007199254740993}`),
		json.RawMessage(`{"amount_cents":9007199254740992}`),
		nil,
	)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, "9007199254740993", string(changes[0].Old))
	require.Equal(t, "9007199254740992", string(changes[0].New))
}

func TestSnapshotRejectsInvalidInput(t *testing.T) {
	_, err := Snapshot(json.RawMessage(`{"a":`))
	require.ErrorIs(t, err, ErrNotAnObject)

	_, err = Snapshot(json.RawMessage(`null`))
	require.ErrorIs(t, err, ErrMissingRecord)

	snap, err := Snapshot([]byte("{ \"a\" : 1 }"))
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, string(snap))
}

func TestDiffComparesNumbersByValue(t *testing.T) {
	changes, err := Diff(
		json.RawMessage(`{"a":1.0,"b":1e2,"c":[0.50,{"d":-0}]}`),
		json.RawMessage(`{"a":1,"b":100,"c":[0.5,{"d":0}]}`),
		nil,
	)
	require.NoError(t, err)
	require.Empty(t, changes)

	changes, err = Diff(json.RawMessage(`{"rate":1e2}`), json.RawMessage(`{"rate":101}`), nil)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	require.Equal(t, "1e2", string(changes[0].Old))
	require.Equal(t, "101", string(changes[0].New))
}
