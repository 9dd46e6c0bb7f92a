package search

import (
	"context"

	"github.com/edgevdb/core/internal/collection"
	"github.com/edgevdb/core/internal/kernel"
)

// BatchSearch runs topk_batch (spec.md §4.5): one Request per query. When
// every request explicitly asks for mode=exact, shares a metric, and the
// batch crosses exactBatchTransposeMinQueries, the transposed exact
// kernel scores all queries against one cache-resident candidate matrix
// instead of dispatching each query through Executor.Search independently.
func (e *Executor) BatchSearch(ctx context.Context, collectionName string, c *collection.Collection, reqs []Request, nprobeDefault, inFlight, exactBatchTransposeMinQueries int) ([]Response, error) {
	if len(reqs) == 0 {
		return nil, nil
	}
	if canTranspose(reqs, exactBatchTransposeMinQueries) {
		return e.exactBatchTransposed(ctx, c, reqs)
	}

	out := make([]Response, len(reqs))
	for i, req := range reqs {
		resp, err := e.Search(ctx, collectionName, c, req, nprobeDefault, inFlight)
		if err != nil {
			return nil, err
		}
		out[i] = resp
	}
	return out, nil
}

func canTranspose(reqs []Request, threshold int) bool {
	if threshold <= 0 || len(reqs) < threshold {
		return false
	}
	metric := reqs[0].Metric
	for _, r := range reqs {
		if r.Mode != ModeExact || r.Metric != metric {
			return false
		}
	}
	return true
}

func (e *Executor) exactBatchTransposed(ctx context.Context, c *collection.Collection, reqs []Request) ([]Response, error) {
	points := c.SnapshotEntries()
	ids := make([]uint64, len(points))
	vectors := make([][]float32, len(points))
	for i, p := range points {
		ids[i] = p.ID
		vectors[i] = p.Values
	}
	matrix := kernel.NewCandidateMatrix(c.Dimension, ids, vectors)

	queries := make([][]float32, len(reqs))
	for i, r := range reqs {
		queries[i] = r.Query
	}
	metric := reqs[0].Metric
	scores := kernel.ScoreBatchTransposed(metric, queries, matrix)

	higherIsBetter := metric.HigherIsBetter()
	out := make([]Response, len(reqs))
	for qi, req := range reqs {
		if err := ctx.Err(); err != nil {
			out[qi] = Response{State: FailedTimeout}
			continue
		}
		topk := NewBoundedTopK(req.Limit, higherIsBetter)
		for i, id := range ids {
			if !req.Filter.Matches(points[i].Payload) {
				continue
			}
			topk.Offer(Hit{ID: id, Score: scores[qi][i]})
		}
		resp, err := e.finish(topk, c, req, false)
		if err != nil {
			return nil, err
		}
		out[qi] = resp
	}
	return out, nil
}
