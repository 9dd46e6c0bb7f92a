package engine

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/edgevdb/core/internal/collection"
	"github.com/edgevdb/core/internal/kernel"
	"github.com/edgevdb/core/internal/search"
)

// GetPoint returns a point by id.
func (e *Engine) GetPoint(collectionName string, id uint64) (*collection.Point, error) {
	c, err := e.collections.Get(collectionName)
	if err != nil {
		return nil, err
	}
	return c.Get(id)
}

// ListCollections returns every collection name.
func (e *Engine) ListCollections() []string {
	return e.collections.List()
}

// DescribeCollection returns read-only metadata for a collection.
func (e *Engine) DescribeCollection(name string) (collection.Info, error) {
	return e.collections.Describe(name)
}

// ListPointsByOffset lists points in ascending PointId order starting at
// offset.
func (e *Engine) ListPointsByOffset(collectionName string, offset, limit int) (collection.Page, error) {
	if err := e.governor.CheckPageLimit(limit); err != nil {
		return collection.Page{}, err
	}
	c, err := e.collections.Get(collectionName)
	if err != nil {
		return collection.Page{}, err
	}
	return c.ListByOffset(offset, limit), nil
}

// ListPointsAfterID lists points in ascending PointId order after a
// cursor.
func (e *Engine) ListPointsAfterID(collectionName string, afterID *uint64, limit int) (collection.Page, error) {
	if err := e.governor.CheckPageLimit(limit); err != nil {
		return collection.Page{}, err
	}
	c, err := e.collections.Get(collectionName)
	if err != nil {
		return collection.Page{}, err
	}
	return c.ListAfterID(afterID, limit), nil
}

// Distance computes an ad-hoc distance between two vectors under metric,
// bypassing any collection (spec.md §6's /distance route).
func (e *Engine) Distance(metric kernel.Metric, a, b []float32) (float32, error) {
	if len(a) != len(b) {
		return 0, corerrLengthMismatch(len(a), len(b))
	}
	return kernel.Distance(metric, a, b), nil
}

// Search runs a single top-k query, admitting it through the concurrency
// gate and enforcing the configured request timeout.
func (e *Engine) Search(ctx context.Context, collectionName string, req search.Request) (search.Response, error) {
	if err := e.governor.CheckTopK(req.Limit); err != nil {
		return search.Response{State: search.FailedInvalid}, err
	}
	admission, err := e.governor.Admit()
	if err != nil {
		if e.metrics != nil {
			e.metrics.SearchRejectedOverloadTotal.Inc()
		}
		return search.Response{State: search.RejectedOverload}, err
	}
	defer admission.Release()

	ctx, cancel := withRequestTimeout(ctx, e.cfg.RequestTimeout())
	defer cancel()

	c, err := e.collections.Get(collectionName)
	if err != nil {
		return search.Response{}, err
	}

	inFlight := int(atomic.AddInt32(&e.inFlight, 1))
	defer atomic.AddInt32(&e.inFlight, -1)
	if e.metrics != nil {
		e.metrics.InFlightRequestsGauge.Set(float64(inFlight))
	}

	started := time.Now()
	resp, err := e.executor.Search(ctx, collectionName, c, req, e.cfg.IVFNProbeDefault, inFlight)
	if e.metrics != nil {
		e.metrics.SearchLatencySeconds.Observe(time.Since(started).Seconds())
	}
	if err != nil {
		if resp.State == search.FailedTimeout && e.metrics != nil {
			e.metrics.SearchTimeoutTotal.Inc()
		}
		return resp, err
	}
	return resp, nil
}

// SearchBatch runs topk_batch: up to search_batch_max_queries independent
// queries, admitted and timed as a single request.
func (e *Engine) SearchBatch(ctx context.Context, collectionName string, reqs []search.Request) ([]search.Response, error) {
	if err := e.governor.CheckSearchBatch(len(reqs)); err != nil {
		return nil, err
	}
	for _, r := range reqs {
		if err := e.governor.CheckTopK(r.Limit); err != nil {
			return nil, err
		}
	}
	admission, err := e.governor.Admit()
	if err != nil {
		if e.metrics != nil {
			e.metrics.SearchRejectedOverloadTotal.Inc()
		}
		return nil, err
	}
	defer admission.Release()

	ctx, cancel := withRequestTimeout(ctx, e.cfg.RequestTimeout())
	defer cancel()

	c, err := e.collections.Get(collectionName)
	if err != nil {
		return nil, err
	}

	inFlight := int(atomic.AddInt32(&e.inFlight, 1))
	defer atomic.AddInt32(&e.inFlight, -1)

	started := time.Now()
	resp, err := e.executor.BatchSearch(ctx, collectionName, c, reqs, e.cfg.IVFNProbeDefault, inFlight, e.cfg.ExactBatchTransposeMinQueries)
	if e.metrics != nil {
		e.metrics.SearchLatencySeconds.Observe(time.Since(started).Seconds())
	}
	return resp, err
}
