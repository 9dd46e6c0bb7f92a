// Package collection implements the in-memory collection data model and its
// invariants (spec.md §3, §4.3): a fixed-dimension named set of points,
// validated on every mutation, capped at a per-collection capacity, and
// enumerable in strictly ascending PointId order for cursor pagination.
package collection

import (
	"math"
	"sync"

	"github.com/google/btree"

	"github.com/edgevdb/core/internal/corerr"
)

// Collection holds one named, fixed-dimension set of points. Mutations are
// serialized by mu (the "per-collection write lock" of spec.md §4.3);
// readers take an RLock or call Snapshot for a point-in-time copy.
type Collection struct {
	Name         string
	Dimension    int
	StrictFinite bool
	CapacityCap  int

	mu     sync.RWMutex
	points map[PointId]*Point
	order  *btree.BTreeG[PointId] // ascending PointId index, mirrors the teacher's BTreeIndex

	// Generation increments on every mutation. The engine records it on
	// the IVF artifacts it builds; staleness itself is decided by the
	// content-hash fingerprint, not by this counter.
	generation uint64
}

func New(name string, dimension int, strictFinite bool, capacityCap int) *Collection {
	return &Collection{
		Name:         name,
		Dimension:    dimension,
		StrictFinite: strictFinite,
		CapacityCap:  capacityCap,
		points:       make(map[PointId]*Point),
		order:        btree.NewG(32, func(a, b PointId) bool { return a < b }),
	}
}

// Len returns the current point count.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.points)
}

// Generation returns the current mutation generation.
func (c *Collection) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// ValidateVector checks length and (if StrictFinite) finiteness. Called
// before WAL append so an invalid mutation never reaches the log
// (spec.md §8: "does not write to the WAL").
func (c *Collection) ValidateVector(values []float32) error {
	if len(values) != c.Dimension {
		return corerr.NewInvalidArgument("vector length mismatch: expected %d, got %d", c.Dimension, len(values))
	}
	if c.StrictFinite {
		for i, v := range values {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return corerr.NewInvalidArgument("non-finite component at index %d", i)
			}
		}
	}
	return nil
}

// Upsert inserts or replaces a point. It does not check the memory budget —
// that is the resource governor's job, evaluated before this is called —
// but it does enforce the dimension/finite/capacity invariants directly, so
// the collection can never be corrupted by a caller that skips the
// governor (e.g. WAL replay).
func (c *Collection) Upsert(id PointId, values []float32, payload map[string]PayloadValue) error {
	if err := c.ValidateVector(values); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	_, exists := c.points[id]
	if !exists && c.CapacityCap > 0 && len(c.points) >= c.CapacityCap {
		return corerr.NewResourceExhausted("collection %q at capacity cap %d", c.Name, c.CapacityCap)
	}

	vcopy := make([]float32, len(values))
	copy(vcopy, values)
	var pcopy map[string]PayloadValue
	if payload != nil {
		pcopy = make(map[string]PayloadValue, len(payload))
		for k, v := range payload {
			pcopy[k] = v
		}
	}

	c.points[id] = &Point{ID: id, Values: vcopy, Payload: pcopy}
	if !exists {
		c.order.ReplaceOrInsert(id)
	}
	c.generation++
	return nil
}

// Get returns a deep copy of the point with the given id, or not_found.
func (c *Collection) Get(id PointId) (*Point, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.points[id]
	if !ok {
		return nil, corerr.NewNotFound("point %d", id)
	}
	return p.Clone(), nil
}

// Delete removes a point. Deleting a non-existent point is a no-op
// (spec.md §8) and returns ok=false so the caller can decide whether to
// still append a WAL DeletePoint record (idempotent replay tolerates it
// either way).
func (c *Collection) Delete(id PointId) (existed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.points[id]; !ok {
		return false
	}
	delete(c.points, id)
	c.order.Delete(id)
	c.generation++
	return true
}

// SetPayload merges fields into the payload of each id in ids, preserving
// Values. Unknown ids are skipped, matching upsert-like idempotence rather
// than failing the whole batch.
func (c *Collection) SetPayload(ids []PointId, fields map[string]PayloadValue) (updated int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		p, ok := c.points[id]
		if !ok {
			continue
		}
		if p.Payload == nil {
			p.Payload = make(map[string]PayloadValue, len(fields))
		}
		for k, v := range fields {
			p.Payload[k] = v
		}
		updated++
	}
	if updated > 0 {
		c.generation++
	}
	return updated
}

// DeletePayload removes keys from the payload of each id in ids.
func (c *Collection) DeletePayload(ids []PointId, keys []string) (updated int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		p, ok := c.points[id]
		if !ok || p.Payload == nil {
			continue
		}
		for _, k := range keys {
			delete(p.Payload, k)
		}
		updated++
	}
	if updated > 0 {
		c.generation++
	}
	return updated
}

// Page is one page of ascending-PointId point enumeration.
type Page struct {
	Points       []*Point
	NextOffset   *int  // offset mode: nil signals the final page
	NextAfterID  *PointId
}

// ListByOffset returns up to limit points starting at offset, in ascending
// PointId order.
func (c *Collection) ListByOffset(offset, limit int) Page {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ids := c.sortedIDsLocked()
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ids) {
		return Page{}
	}
	end := offset + limit
	if end > len(ids) {
		end = len(ids)
	}
	page := make([]*Point, 0, end-offset)
	for _, id := range ids[offset:end] {
		page = append(page, c.points[id].Clone())
	}
	var next *int
	if end < len(ids) {
		n := end
		next = &n
	}
	return Page{Points: page, NextOffset: next}
}

// ListAfterID returns up to limit points with id > afterID, in ascending
// PointId order. A nil afterID starts from the beginning.
func (c *Collection) ListAfterID(afterID *PointId, limit int) Page {
	c.mu.RLock()
	defer c.mu.RUnlock()

	page := make([]*Point, 0, limit)
	var lastSeen PointId
	var any bool
	start := PointId(0)
	if afterID != nil {
		start = *afterID + 1
		if *afterID == math.MaxUint64 {
			return Page{}
		}
	}
	c.order.AscendGreaterOrEqual(start, func(id PointId) bool {
		if len(page) >= limit {
			return false
		}
		page = append(page, c.points[id].Clone())
		lastSeen = id
		any = true
		return true
	})

	var next *PointId
	if any {
		// Peek one more to see whether this is the final page.
		hasMore := false
		c.order.AscendGreaterOrEqual(lastSeen+1, func(id PointId) bool {
			hasMore = true
			return false
		})
		if hasMore {
			n := lastSeen
			next = &n
		}
	}
	return Page{Points: page, NextAfterID: next}
}

func (c *Collection) sortedIDsLocked() []PointId {
	ids := make([]PointId, 0, len(c.points))
	c.order.Ascend(func(id PointId) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// SnapshotEntries returns every point's (id, cloned values) sorted by
// ascending id, the exact shape internal/ivf digests for a content
// fingerprint (spec.md §4.4) and internal/snapshot serializes.
func (c *Collection) SnapshotEntries() []*Point {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Point, 0, len(c.points))
	ids := c.sortedIDsLocked()
	for _, id := range ids {
		out = append(out, c.points[id].Clone())
	}
	return out
}

// VectorsAndIDs returns parallel slices of every point's id and its Values
// (not cloned — callers must not mutate), in no particular order. The
// exact-scan and IVF paths use SnapshotEntries instead.
func (c *Collection) VectorsAndIDs() (ids []PointId, vectors [][]float32) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids = make([]PointId, 0, len(c.points))
	vectors = make([][]float32, 0, len(c.points))
	for id, p := range c.points {
		ids = append(ids, id)
		vectors = append(vectors, p.Values)
	}
	return ids, vectors
}

// EstimatedBytes approximates memory held by this collection's vector
// storage: N·D·4 bytes, the dominant term of spec.md §4.6's memory budget.
func (c *Collection) EstimatedBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.points)) * int64(c.Dimension) * 4
}
