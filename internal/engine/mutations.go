package engine

import (
	"github.com/edgevdb/core/internal/collection"
	"github.com/edgevdb/core/internal/corerr"
	"github.com/edgevdb/core/internal/wal"
)

// CreateCollection creates a new, empty collection and durably records it.
func (e *Engine) CreateCollection(name string, dimension int, strictFinite bool) error {
	if dimension > e.cfg.MaxDimension {
		return corerr.NewInvalidArgument("dimension %d exceeds max_dimension %d", dimension, e.cfg.MaxDimension)
	}
	if _, err := e.collections.Create(name, dimension, strictFinite); err != nil {
		return err
	}
	if err := e.appendAndApply(wal.NewCreateCollection(name, dimension, strictFinite)); err != nil {
		return err
	}
	return nil
}

// DeleteCollection removes a collection and its points.
func (e *Engine) DeleteCollection(name string) error {
	if _, err := e.collections.Get(name); err != nil {
		return err
	}
	if err := e.appendAndApply(wal.NewDeleteCollection(name)); err != nil {
		return err
	}
	return nil
}

// Upsert inserts or replaces a single point, enforcing dimension,
// strict-finite, capacity, and memory-budget invariants before it ever
// reaches the WAL (spec.md §8).
func (e *Engine) Upsert(collectionName string, id uint64, values []float32, payload map[string]collection.PayloadValue) error {
	c, err := e.collections.Get(collectionName)
	if err != nil {
		return err
	}
	if err := c.ValidateVector(values); err != nil {
		if e.metrics != nil {
			e.metrics.MutationsRejectedTotal.Inc()
		}
		return err
	}
	if _, exists := tryGet(c, id); !exists {
		if c.CapacityCap > 0 && c.Len() >= c.CapacityCap {
			if e.metrics != nil {
				e.metrics.MutationsRejectedTotal.Inc()
			}
			return corerr.NewResourceExhausted("collection %q at capacity cap %d", collectionName, c.CapacityCap)
		}
		additional := int64(c.Dimension) * 4
		if err := e.governor.CheckMemoryBudget(e.collections.EstimatedBytes(), additional); err != nil {
			if e.metrics != nil {
				e.metrics.MutationsRejectedTotal.Inc()
			}
			return err
		}
	}
	return e.appendAndApply(wal.NewUpsertPoint(collectionName, id, values, payload))
}

func tryGet(c *collection.Collection, id uint64) (*collection.Point, bool) {
	p, err := c.Get(id)
	return p, err == nil
}

// BatchUpsert upserts every point in order, stopping at the first failure.
// Callers should enforce governor.CheckUpsertBatch on len(points) before
// calling this.
func (e *Engine) BatchUpsert(collectionName string, points []collection.Point) error {
	for _, p := range points {
		if err := e.Upsert(collectionName, p.ID, p.Values, p.Payload); err != nil {
			return err
		}
	}
	return nil
}

// DeletePoint removes a point. Deleting a missing point is a no-op that
// still succeeds (spec.md §8).
func (e *Engine) DeletePoint(collectionName string, id uint64) error {
	if _, err := e.collections.Get(collectionName); err != nil {
		return err
	}
	return e.appendAndApply(wal.NewDeletePoint(collectionName, id))
}

// SetPayload merges fields into each id's payload, preserving values.
func (e *Engine) SetPayload(collectionName string, ids []uint64, fields map[string]collection.PayloadValue) error {
	if _, err := e.collections.Get(collectionName); err != nil {
		return err
	}
	return e.appendAndApply(wal.NewSetPayload(collectionName, ids, fields))
}

// DeletePayload removes keys from each id's payload.
func (e *Engine) DeletePayload(collectionName string, ids []uint64, keys []string) error {
	if _, err := e.collections.Get(collectionName); err != nil {
		return err
	}
	return e.appendAndApply(wal.NewDeletePayload(collectionName, ids, keys))
}
