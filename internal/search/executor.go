package search

import (
	"context"
	"sync"

	"github.com/edgevdb/core/internal/collection"
	"github.com/edgevdb/core/internal/corerr"
	"github.com/edgevdb/core/internal/ivf"
	"github.com/edgevdb/core/internal/kernel"
	"github.com/edgevdb/core/internal/metrics"
)

// State is a request's position in the state machine of spec.md §4.5:
// Received -> Admitted -> Dispatched(exact|ivf) -> Filtered -> Ranked ->
// Responded, with Rejected/Failed terminal states reachable earlier.
type State int

const (
	Received State = iota
	Admitted
	DispatchedExact
	DispatchedIVF
	Filtered
	Ranked
	Responded
	RejectedOverload
	FailedInvalid
	FailedTimeout
)

// Request is one search's query contract (spec.md §4.5).
type Request struct {
	Metric         kernel.Metric
	Query          []float32
	Limit          int
	Mode           Mode
	TargetRecall   float64
	NProbe         int
	Filter         *Filter
	IncludePayload bool
}

// ResultHit is one ranked hit in a Response.
type ResultHit struct {
	ID      uint64
	Score   float32
	Payload map[string]collection.PayloadValue
}

// Response is the outcome of a search.
type Response struct {
	Hits   []ResultHit
	UsedIVF bool
	State  State
}

// Executor runs searches against a single collection, dispatching between
// exact and IVF paths per Thresholds.
type Executor struct {
	thresholds Thresholds
	ivfMgr     *ivf.Manager
	metrics    *metrics.Registry
}

func NewExecutor(thresholds Thresholds, ivfMgr *ivf.Manager, reg *metrics.Registry) *Executor {
	return &Executor{thresholds: thresholds, ivfMgr: ivfMgr, metrics: reg}
}

// Search executes req against c. collectionName is used to look up the
// collection's IVF artifact, if any. inFlight is the current in-flight
// request gauge, used by the auto dispatch policy.
func (e *Executor) Search(ctx context.Context, collectionName string, c *collection.Collection, req Request, nprobeDefault, inFlight int) (Response, error) {
	if len(req.Query) != c.Dimension {
		return Response{State: FailedInvalid}, corerr.NewInvalidArgument(
			"query length mismatch: expected %d, got %d", c.Dimension, len(req.Query))
	}
	if req.Limit == 0 {
		return Response{State: Ranked}, nil
	}
	if err := ctx.Err(); err != nil {
		return Response{State: FailedTimeout}, corerr.NewTimeout("search cancelled before dispatch")
	}

	n := c.Len()
	var artifact *ivf.Artifact
	if e.ivfMgr != nil {
		artifact = e.ivfMgr.Get(collectionName)
	}
	hasValidArtifact := artifact != nil && !artifact.Stale(c.Dimension, ivf.ComputeFingerprint(c.Dimension, c.SnapshotEntries()))

	plan := Decide(req.Mode, n, c.Dimension, 1, inFlight, hasValidArtifact, e.thresholds)

	if plan.UseIVF {
		if !hasValidArtifact {
			if e.metrics != nil {
				e.metrics.IVFFallbackExactTotal.Inc()
			}
			return e.exactSearch(ctx, req, c, DispatchedExact, false)
		}
		return e.ivfSearch(ctx, req, c, artifact, nprobeDefault)
	}
	return e.exactSearch(ctx, req, c, DispatchedExact, !plan.Inline)
}

func (e *Executor) ivfSearch(ctx context.Context, req Request, c *collection.Collection, artifact *ivf.Artifact, nprobeDefault int) (Response, error) {
	nprobe := req.NProbe
	if nprobe <= 0 {
		nprobe = artifact.ProbeCountForRecall(req.TargetRecall, nprobeDefault)
	}
	candidates := artifact.Candidates(req.Query, nprobe)

	higherIsBetter := req.Metric.HigherIsBetter()
	topk := NewBoundedTopK(req.Limit, higherIsBetter)
	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			return Response{State: FailedTimeout}, corerr.NewTimeout("search cancelled during IVF scoring")
		}
		p, err := c.Get(id)
		if err != nil {
			continue // deleted since the artifact was built
		}
		if !req.Filter.Matches(p.Payload) {
			continue
		}
		topk.Offer(Hit{ID: id, Score: kernel.Score(req.Metric, req.Query, p.Values)})
	}

	return e.finish(topk, c, req, true)
}

func (e *Executor) exactSearch(ctx context.Context, req Request, c *collection.Collection, state State, offload bool) (Response, error) {
	points := c.SnapshotEntries()
	higherIsBetter := req.Metric.HigherIsBetter()
	topk := NewBoundedTopK(req.Limit, higherIsBetter)

	chunkLen := e.thresholds.ParallelScoreMinChunkLen
	if chunkLen <= 0 {
		chunkLen = len(points)
	}

	if !offload || len(points) <= chunkLen {
		for _, p := range points {
			if err := ctx.Err(); err != nil {
				return Response{State: FailedTimeout}, corerr.NewTimeout("search cancelled during exact scoring")
			}
			if !req.Filter.Matches(p.Payload) {
				continue
			}
			topk.Offer(Hit{ID: p.ID, Score: kernel.Score(req.Metric, req.Query, p.Values)})
		}
		return e.finish(topk, c, req, false)
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	var cancelled bool
	for start := 0; start < len(points); start += chunkLen {
		end := start + chunkLen
		if end > len(points) {
			end = len(points)
		}
		chunk := points[start:end]
		wg.Add(1)
		go func(chunk []*collection.Point) {
			defer wg.Done()
			if ctx.Err() != nil {
				mu.Lock()
				cancelled = true
				mu.Unlock()
				return
			}
			local := NewBoundedTopK(req.Limit, higherIsBetter)
			for _, p := range chunk {
				if !req.Filter.Matches(p.Payload) {
					continue
				}
				local.Offer(Hit{ID: p.ID, Score: kernel.Score(req.Metric, req.Query, p.Values)})
			}
			mu.Lock()
			for _, h := range local.Sorted() {
				topk.Offer(h)
			}
			mu.Unlock()
		}(chunk)
	}
	wg.Wait()
	if cancelled {
		return Response{State: FailedTimeout}, corerr.NewTimeout("search cancelled during offloaded exact scoring")
	}
	return e.finish(topk, c, req, false)
}

func (e *Executor) finish(topk *BoundedTopK, c *collection.Collection, req Request, usedIVF bool) (Response, error) {
	sorted := topk.Sorted()
	hits := make([]ResultHit, 0, len(sorted))
	for _, h := range sorted {
		rh := ResultHit{ID: h.ID, Score: h.Score}
		if req.IncludePayload {
			if p, err := c.Get(h.ID); err == nil {
				rh.Payload = p.Payload
			}
		}
		hits = append(hits, rh)
	}
	return Response{Hits: hits, UsedIVF: usedIVF, State: Ranked}, nil
}
