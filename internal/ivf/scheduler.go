package ivf

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/edgevdb/core/internal/collection"
	"github.com/edgevdb/core/internal/kernel"
	"github.com/edgevdb/core/internal/metrics"
)

// Manager holds the latest built Artifact per collection and schedules
// rebuilds with bounded concurrency and a cooldown throttle (spec.md
// §4.4's build_max_in_flight and cooldown_ms), so a stream of mutations
// never triggers a thundering herd of k-means builds.
type Manager struct {
	mu          sync.RWMutex
	artifacts   map[string]*Artifact
	lastBuildAt map[string]time.Time
	building    map[string]bool

	sem      *semaphore.Weighted
	cooldown time.Duration

	metrics *metrics.Registry
	logger  *zap.Logger
}

// NewManager builds a Manager. maxInFlight bounds concurrent k-means
// builds across all collections; cooldown is the minimum interval between
// two builds of the same collection.
func NewManager(maxInFlight int, cooldown time.Duration, reg *metrics.Registry, logger *zap.Logger) *Manager {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		artifacts:   make(map[string]*Artifact),
		lastBuildAt: make(map[string]time.Time),
		building:    make(map[string]bool),
		sem:         semaphore.NewWeighted(int64(maxInFlight)),
		cooldown:    cooldown,
		metrics:     reg,
		logger:      logger,
	}
}

// Get returns the latest built artifact for name, or nil if none has been
// built yet.
func (m *Manager) Get(name string) *Artifact {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.artifacts[name]
}

// RequestBuild schedules a rebuild of name's IVF artifact if one isn't
// already in flight and the cooldown has elapsed. It never blocks the
// caller: if the concurrency gate or cooldown prevents an immediate
// build, it increments the corresponding skip counter and returns.
func (m *Manager) RequestBuild(name string, metric kernel.Metric, dimension int, points []*collection.Point, generation uint64, cfg BuildConfig, now time.Time) {
	m.mu.Lock()
	if m.building[name] {
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.ScheduleSkipsTotal.Inc()
		}
		return
	}
	if last, ok := m.lastBuildAt[name]; ok && m.cooldown > 0 && now.Sub(last) < m.cooldown {
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.CooldownSkipsTotal.Inc()
		}
		return
	}
	if !m.sem.TryAcquire(1) {
		m.mu.Unlock()
		if m.metrics != nil {
			m.metrics.ScheduleSkipsTotal.Inc()
		}
		return
	}
	m.building[name] = true
	m.mu.Unlock()

	go m.runBuild(name, metric, dimension, points, generation, cfg)
}

func (m *Manager) runBuild(name string, metric kernel.Metric, dimension int, points []*collection.Point, generation uint64, cfg BuildConfig) {
	defer m.sem.Release(1)
	defer func() {
		m.mu.Lock()
		m.building[name] = false
		m.lastBuildAt[name] = time.Now()
		m.mu.Unlock()
	}()

	artifact, err := Build(metric, dimension, points, generation, cfg)
	if err != nil {
		if m.metrics != nil {
			m.metrics.IVFBuildFailuresTotal.Inc()
		}
		m.logger.Warn("IVF build failed", zap.String("collection", name), zap.Error(err))
		return
	}

	m.mu.Lock()
	m.artifacts[name] = artifact
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.IVFBuildsTotal.Inc()
	}
	m.logger.Info("IVF build completed",
		zap.String("collection", name),
		zap.Int("centroids", len(artifact.Centroids)),
		zap.Uint64("generation", generation))
}

// AwaitIdle blocks until no build is currently running for any
// collection, or ctx is done — used by boot warmup and tests.
func (m *Manager) AwaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		m.mu.RLock()
		idle := true
		for _, b := range m.building {
			if b {
				idle = false
				break
			}
		}
		m.mu.RUnlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
