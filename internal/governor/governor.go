// Package governor enforces the core's resource limits: the memory
// budget, the concurrency admission gate, and the request/body/topk/page
// caps of spec.md §4.6. It never queues — every check either admits or
// rejects immediately, so a caller always knows synchronously whether its
// request can proceed.
package governor

import (
	"golang.org/x/sync/semaphore"

	"github.com/edgevdb/core/internal/corerr"
)

// Limits mirrors the subset of config.Config the governor enforces.
type Limits struct {
	MemoryBudgetBytes    int64
	MaxConcurrency       int
	MaxBodyBytes         int64
	MaxTopKLimit         int
	MaxPageLimit         int
	UpsertBatchMaxPoints int
	SearchBatchMaxQueries int
}

// Governor admits or rejects requests against Limits. A zero
// MemoryBudgetBytes means unlimited (spec.md §6's documented default).
type Governor struct {
	limits Limits
	gate   *semaphore.Weighted
}

func New(limits Limits) *Governor {
	concurrency := limits.MaxConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Governor{limits: limits, gate: semaphore.NewWeighted(int64(concurrency))}
}

// Admission is a held concurrency slot. Callers must call Release exactly
// once after the admitted request completes.
type Admission struct {
	gate *semaphore.Weighted
}

// Release gives the slot back to the concurrency gate.
func (a Admission) Release() {
	a.gate.Release(1)
}

// Admit attempts to reserve one concurrency slot, rejecting immediately
// (resource_exhausted) rather than queuing if the gate is full (spec.md
// §4.6: "reject, don't queue").
func (g *Governor) Admit() (Admission, error) {
	if !g.gate.TryAcquire(1) {
		return Admission{}, corerr.NewResourceExhausted("max_concurrency exceeded")
	}
	return Admission{gate: g.gate}, nil
}

// CheckMemoryBudget rejects a mutation that would push estimated usage
// past the configured budget. A budget of 0 means unlimited. Per spec.md
// §9's resolved Open Question, lowering the budget below current usage
// never evicts existing points — only new growth is rejected.
func (g *Governor) CheckMemoryBudget(currentBytes, additionalBytes int64) error {
	if g.limits.MemoryBudgetBytes <= 0 {
		return nil
	}
	if currentBytes+additionalBytes > g.limits.MemoryBudgetBytes {
		return corerr.NewResourceExhausted("memory budget %d bytes exceeded (current %d + %d)",
			g.limits.MemoryBudgetBytes, currentBytes, additionalBytes)
	}
	return nil
}

// CheckBodyBytes rejects an oversized request body.
func (g *Governor) CheckBodyBytes(n int64) error {
	if g.limits.MaxBodyBytes > 0 && n > g.limits.MaxBodyBytes {
		return corerr.NewInvalidArgument("request body %d bytes exceeds max_body_bytes %d", n, g.limits.MaxBodyBytes)
	}
	return nil
}

// CheckTopK rejects a topk beyond max_topk_limit.
func (g *Governor) CheckTopK(k int) error {
	if g.limits.MaxTopKLimit > 0 && k > g.limits.MaxTopKLimit {
		return corerr.NewInvalidArgument("topk %d exceeds max_topk_limit %d", k, g.limits.MaxTopKLimit)
	}
	return nil
}

// CheckPageLimit rejects a page size beyond max_page_limit.
func (g *Governor) CheckPageLimit(limit int) error {
	if g.limits.MaxPageLimit > 0 && limit > g.limits.MaxPageLimit {
		return corerr.NewInvalidArgument("page limit %d exceeds max_page_limit %d", limit, g.limits.MaxPageLimit)
	}
	return nil
}

// CheckUpsertBatch rejects an upsert batch larger than
// upsert_batch_max_points.
func (g *Governor) CheckUpsertBatch(n int) error {
	if g.limits.UpsertBatchMaxPoints > 0 && n > g.limits.UpsertBatchMaxPoints {
		return corerr.NewInvalidArgument("upsert batch of %d exceeds upsert_batch_max_points %d", n, g.limits.UpsertBatchMaxPoints)
	}
	return nil
}

// CheckSearchBatch rejects a topk_batch query count larger than
// search_batch_max_queries.
func (g *Governor) CheckSearchBatch(n int) error {
	if g.limits.SearchBatchMaxQueries > 0 && n > g.limits.SearchBatchMaxQueries {
		return corerr.NewInvalidArgument("search batch of %d exceeds search_batch_max_queries %d", n, g.limits.SearchBatchMaxQueries)
	}
	return nil
}
