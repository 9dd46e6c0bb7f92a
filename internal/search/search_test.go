package search_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgevdb/core/internal/collection"
	"github.com/edgevdb/core/internal/ivf"
	"github.com/edgevdb/core/internal/kernel"
	"github.com/edgevdb/core/internal/search"
)

func seedDemo(t *testing.T) *collection.Collection {
	t.Helper()
	c := collection.New("demo", 4, true, 0)
	require.NoError(t, c.Upsert(1, []float32{1, 0, 0, 0}, map[string]collection.PayloadValue{"tier": collection.StringValue("gold")}))
	require.NoError(t, c.Upsert(2, []float32{0.8, 0.1, 0, 0}, map[string]collection.PayloadValue{"tier": collection.StringValue("silver")}))
	require.NoError(t, c.Upsert(3, []float32{0, 1, 0, 0}, map[string]collection.PayloadValue{"tier": collection.StringValue("gold")}))
	return c
}

func TestExactSearchDotProductMatchesSpecScenario(t *testing.T) {
	c := seedDemo(t)
	exec := search.NewExecutor(search.Thresholds{InlineMaxPoints: 1000, InlineMaxWork: 1_000_000}, nil, nil)

	resp, err := exec.Search(context.Background(), "demo", c, search.Request{
		Metric: kernel.Dot,
		Query:  []float32{1, 0, 0, 0},
		Limit:  2,
		Mode:   search.ModeExact,
	}, 8, 0)
	require.NoError(t, err)
	require.Len(t, resp.Hits, 2)
	require.Equal(t, uint64(1), resp.Hits[0].ID)
	require.InDelta(t, 1.0, resp.Hits[0].Score, 1e-6)
	require.Equal(t, uint64(2), resp.Hits[1].ID)
	require.InDelta(t, 0.8, resp.Hits[1].Score, 1e-6)
}

func TestExactSearchL2RanksAscendingDistance(t *testing.T) {
	c := seedDemo(t)
	exec := search.NewExecutor(search.Thresholds{InlineMaxPoints: 1000, InlineMaxWork: 1_000_000}, nil, nil)

	resp, err := exec.Search(context.Background(), "demo", c, search.Request{
		Metric: kernel.L2,
		Query:  []float32{1, 0, 0, 0},
		Limit:  1,
		Mode:   search.ModeExact,
	}, 8, 0)
	require.NoError(t, err)
	require.Len(t, resp.Hits, 1)
	require.Equal(t, uint64(1), resp.Hits[0].ID)
	require.InDelta(t, 0.0, resp.Hits[0].Score, 1e-6)
}

func TestLimitZeroReturnsEmptyHits(t *testing.T) {
	c := seedDemo(t)
	exec := search.NewExecutor(search.Thresholds{}, nil, nil)
	resp, err := exec.Search(context.Background(), "demo", c, search.Request{
		Metric: kernel.Dot,
		Query:  []float32{1, 0, 0, 0},
		Limit:  0,
		Mode:   search.ModeExact,
	}, 8, 0)
	require.NoError(t, err)
	require.Empty(t, resp.Hits)
}

func TestFilterMustMatchExcludesNonMatchingPoints(t *testing.T) {
	c := seedDemo(t)
	exec := search.NewExecutor(search.Thresholds{InlineMaxPoints: 1000, InlineMaxWork: 1_000_000}, nil, nil)

	resp, err := exec.Search(context.Background(), "demo", c, search.Request{
		Metric: kernel.Dot,
		Query:  []float32{1, 0, 0, 0},
		Limit:  10,
		Mode:   search.ModeExact,
		Filter: &search.Filter{Must: []search.Clause{{Field: "tier", Kind: search.Match, Value: collection.StringValue("gold")}}},
	}, 8, 0)
	require.NoError(t, err)
	require.Len(t, resp.Hits, 2)
	for _, h := range resp.Hits {
		require.Contains(t, []uint64{1, 3}, h.ID)
	}
}

func TestQueryDimensionMismatchIsInvalidArgument(t *testing.T) {
	c := seedDemo(t)
	exec := search.NewExecutor(search.Thresholds{}, nil, nil)
	_, err := exec.Search(context.Background(), "demo", c, search.Request{
		Metric: kernel.Dot,
		Query:  []float32{1, 0},
		Limit:  1,
		Mode:   search.ModeExact,
	}, 8, 0)
	require.Error(t, err)
}

func TestIVFFallbackMatchesExactWhenNoArtifact(t *testing.T) {
	c := seedDemo(t)
	mgr := ivf.NewManager(1, 0, nil, nil)
	exec := search.NewExecutor(search.Thresholds{InlineMaxPoints: 1000, InlineMaxWork: 1_000_000}, mgr, nil)

	resp, err := exec.Search(context.Background(), "demo", c, search.Request{
		Metric: kernel.Dot,
		Query:  []float32{1, 0, 0, 0},
		Limit:  2,
		Mode:   search.ModeIVF,
	}, 8, 0)
	require.NoError(t, err)
	require.False(t, resp.UsedIVF)
	require.Equal(t, uint64(1), resp.Hits[0].ID)
}

func TestBatchSearchReturnsOneResponsePerQuery(t *testing.T) {
	c := seedDemo(t)
	exec := search.NewExecutor(search.Thresholds{InlineMaxPoints: 1000, InlineMaxWork: 1_000_000}, nil, nil)

	reqs := []search.Request{
		{Metric: kernel.Dot, Query: []float32{1, 0, 0, 0}, Limit: 1, Mode: search.ModeExact},
		{Metric: kernel.Dot, Query: []float32{0, 1, 0, 0}, Limit: 1, Mode: search.ModeExact},
	}
	resps, err := exec.BatchSearch(context.Background(), "demo", c, reqs, 8, 0, 160)
	require.NoError(t, err)
	require.Len(t, resps, 2)
	require.Equal(t, uint64(1), resps[0].Hits[0].ID)
	require.Equal(t, uint64(3), resps[1].Hits[0].ID)
}

func TestDispatchAutoStaysInlineForSmallCollections(t *testing.T) {
	plan := search.Decide(search.ModeAuto, 10, 4, 1, 0, false, search.Thresholds{
		InlineMaxPoints: 1000, InlineMaxWork: 1_000_000,
	})
	require.True(t, plan.Inline)
	require.False(t, plan.UseIVF)
}

func TestDispatchAutoUsesIVFWhenEligible(t *testing.T) {
	plan := search.Decide(search.ModeAuto, 100_000, 128, 1, 1000, true, search.Thresholds{
		InlineMaxPoints:        1000,
		InlineMaxWork:          1_000_000,
		LightLoadMaxWork:       1,
		LightLoadMaxInFlight:   0,
		ParallelScoreMinPoints: 1000,
	})
	require.True(t, plan.UseIVF)
}

func TestParseModeRejectsUnknownString(t *testing.T) {
	_, err := search.ParseMode("fuzzy")
	require.Error(t, err)

	m, err := search.ParseMode("ivf")
	require.NoError(t, err)
	require.Equal(t, search.ModeIVF, m)
}
