package collection_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgevdb/core/internal/collection"
	"github.com/edgevdb/core/internal/corerr"
)

func TestUpsertThenGetRoundTrips(t *testing.T) {
	c := collection.New("demo", 4, true, 0)
	values := []float32{1, 2, 3, 4}
	payload := map[string]collection.PayloadValue{"tier": collection.StringValue("gold")}

	require.NoError(t, c.Upsert(1, values, payload))

	got, err := c.Get(1)
	require.NoError(t, err)
	require.Equal(t, values, got.Values)
	require.Equal(t, payload, got.Payload)
}

func TestUpsertRepeatedIsIdempotent(t *testing.T) {
	c := collection.New("demo", 2, false, 0)
	require.NoError(t, c.Upsert(1, []float32{1, 2}, nil))
	require.NoError(t, c.Upsert(1, []float32{1, 2}, nil))
	require.Equal(t, 1, c.Len())
}

func TestDimensionMismatchRejected(t *testing.T) {
	c := collection.New("demo", 4, false, 0)
	err := c.Upsert(1, []float32{1, 2}, nil)
	require.Error(t, err)
	kind, _ := corerr.ClassifyErr(err)
	require.Equal(t, corerr.KindInvalidArgument, kind)
	require.Equal(t, 0, c.Len())
}

func TestStrictFiniteRejectsNaNAndInf(t *testing.T) {
	c := collection.New("demo", 2, true, 0)
	err := c.Upsert(1, []float32{float32(nan()), 0}, nil)
	require.Error(t, err)
	kind, _ := corerr.ClassifyErr(err)
	require.Equal(t, corerr.KindInvalidArgument, kind)

	err = c.Upsert(2, []float32{float32(math.Inf(1)), 0}, nil)
	require.Error(t, err)
	kind, _ = corerr.ClassifyErr(err)
	require.Equal(t, corerr.KindInvalidArgument, kind)
	require.Equal(t, 0, c.Len())
}

func nan() float64 {
	var z float64
	return z / z
}

func TestCapacityCapExceeded(t *testing.T) {
	c := collection.New("demo", 2, false, 2)
	require.NoError(t, c.Upsert(1, []float32{1, 1}, nil))
	require.NoError(t, c.Upsert(2, []float32{1, 1}, nil))
	err := c.Upsert(3, []float32{1, 1}, nil)
	require.Error(t, err)
	kind, _ := corerr.ClassifyErr(err)
	require.Equal(t, corerr.KindResourceExhausted, kind)
}

func TestDeleteNonexistentIsNoop(t *testing.T) {
	c := collection.New("demo", 2, false, 0)
	existed := c.Delete(999)
	require.False(t, existed)
}

func TestInvariantEveryPointMatchesDimension(t *testing.T) {
	c := collection.New("demo", 3, false, 0)
	for i := PointId(0); i < 50; i++ {
		require.NoError(t, c.Upsert(i, []float32{float32(i), 0, 0}, nil))
	}
	for _, p := range c.SnapshotEntries() {
		require.Len(t, p.Values, 3)
	}
}

type PointId = collection.PointId

func TestListByOffsetAscendingAndPaginates(t *testing.T) {
	c := collection.New("demo", 1, false, 0)
	for i := PointId(0); i < 10; i++ {
		require.NoError(t, c.Upsert(i, []float32{float32(i)}, nil))
	}
	page := c.ListByOffset(0, 3)
	require.Len(t, page.Points, 3)
	require.Equal(t, []PointId{0, 1, 2}, idsOf(page.Points))
	require.NotNil(t, page.NextOffset)
	require.Equal(t, 3, *page.NextOffset)

	last := c.ListByOffset(9, 3)
	require.Len(t, last.Points, 1)
	require.Nil(t, last.NextOffset)
}

func TestListAfterIDAscendingAndPaginates(t *testing.T) {
	c := collection.New("demo", 1, false, 0)
	for i := PointId(0); i < 5; i++ {
		require.NoError(t, c.Upsert(i, []float32{float32(i)}, nil))
	}
	page := c.ListAfterID(nil, 2)
	require.Equal(t, []PointId{0, 1}, idsOf(page.Points))
	require.NotNil(t, page.NextAfterID)
	require.Equal(t, PointId(1), *page.NextAfterID)

	page2 := c.ListAfterID(page.NextAfterID, 2)
	require.Equal(t, []PointId{2, 3}, idsOf(page2.Points))

	page3 := c.ListAfterID(page2.NextAfterID, 2)
	require.Equal(t, []PointId{4}, idsOf(page3.Points))
	require.Nil(t, page3.NextAfterID)
}

func idsOf(points []*collection.Point) []PointId {
	ids := make([]PointId, len(points))
	for i, p := range points {
		ids[i] = p.ID
	}
	return ids
}

func TestSetPayloadPreservesValues(t *testing.T) {
	c := collection.New("demo", 2, false, 0)
	require.NoError(t, c.Upsert(1, []float32{9, 9}, nil))
	updated := c.SetPayload([]PointId{1}, map[string]collection.PayloadValue{"k": collection.IntValue(5)})
	require.Equal(t, 1, updated)

	p, err := c.Get(1)
	require.NoError(t, err)
	require.Equal(t, []float32{9, 9}, p.Values)
	require.Equal(t, collection.IntValue(5), p.Payload["k"])
}

func TestDeletePayloadRemovesKeysOnly(t *testing.T) {
	c := collection.New("demo", 1, false, 0)
	require.NoError(t, c.Upsert(1, []float32{1}, map[string]collection.PayloadValue{
		"a": collection.IntValue(1), "b": collection.IntValue(2),
	}))
	c.DeletePayload([]PointId{1}, []string{"a"})
	p, _ := c.Get(1)
	_, hasA := p.Payload["a"]
	_, hasB := p.Payload["b"]
	require.False(t, hasA)
	require.True(t, hasB)
}

func TestEngineCreateConflict(t *testing.T) {
	e := collection.NewEngine(0)
	_, err := e.Create("demo", 4, false)
	require.NoError(t, err)
	_, err = e.Create("demo", 4, false)
	require.Error(t, err)
	kind, _ := corerr.ClassifyErr(err)
	require.Equal(t, corerr.KindConflict, kind)
}

func TestEngineGetMissingIsNotFound(t *testing.T) {
	e := collection.NewEngine(0)
	_, err := e.Get("missing")
	require.Error(t, err)
	kind, _ := corerr.ClassifyErr(err)
	require.Equal(t, corerr.KindNotFound, kind)
}
