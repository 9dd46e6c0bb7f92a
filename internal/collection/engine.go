package collection

import (
	"sync"

	"github.com/edgevdb/core/internal/corerr"
)

// Info is the read-only description returned by Describe/List.
type Info struct {
	Name         string
	Dimension    int
	StrictFinite bool
	CapacityCap  int
	PointCount   int
}

// Engine is the in-memory mapping of collection name to collection state
// (spec.md §2's "Collection Engine"). Cross-collection operations
// (Create/Delete) hold a brief engine-level write lock; everything else
// delegates to the named Collection's own lock.
type Engine struct {
	mu          sync.RWMutex
	collections map[string]*Collection
	capacityCap int
}

func NewEngine(defaultCapacityCap int) *Engine {
	return &Engine{
		collections: make(map[string]*Collection),
		capacityCap: defaultCapacityCap,
	}
}

// Create registers a new, empty collection. Returns conflict if the name is
// already taken.
func (e *Engine) Create(name string, dimension int, strictFinite bool) (*Collection, error) {
	if name == "" {
		return nil, corerr.NewInvalidArgument("collection name must not be empty")
	}
	if dimension <= 0 {
		return nil, corerr.NewInvalidArgument("dimension must be positive, got %d", dimension)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.collections[name]; exists {
		return nil, corerr.NewConflict("collection %q already exists", name)
	}
	c := New(name, dimension, strictFinite, e.capacityCap)
	e.collections[name] = c
	return c, nil
}

// Restore registers a collection whose state was already rebuilt (WAL
// replay / snapshot load), bypassing the "already exists" conflict check.
func (e *Engine) Restore(c *Collection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.collections[c.Name] = c
}

// Delete removes a collection entirely.
func (e *Engine) Delete(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.collections[name]; !exists {
		return corerr.NewNotFound("collection %q", name)
	}
	delete(e.collections, name)
	return nil
}

// Get returns the named collection or not_found.
func (e *Engine) Get(name string) (*Collection, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, exists := e.collections[name]
	if !exists {
		return nil, corerr.NewNotFound("collection %q", name)
	}
	return c, nil
}

// List returns every collection name.
func (e *Engine) List() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.collections))
	for name := range e.collections {
		names = append(names, name)
	}
	return names
}

// Describe returns read-only metadata for the named collection.
func (e *Engine) Describe(name string) (Info, error) {
	c, err := e.Get(name)
	if err != nil {
		return Info{}, err
	}
	return Info{
		Name:         c.Name,
		Dimension:    c.Dimension,
		StrictFinite: c.StrictFinite,
		CapacityCap:  c.CapacityCap,
		PointCount:   c.Len(),
	}, nil
}

// EstimatedBytes sums the vector-storage estimate across all collections,
// the dominant term the resource governor checks against
// memory_budget_bytes (spec.md §4.6).
func (e *Engine) EstimatedBytes() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var total int64
	for _, c := range e.collections {
		total += c.EstimatedBytes()
	}
	return total
}
