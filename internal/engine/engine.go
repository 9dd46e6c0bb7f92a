// Package engine wires the collection engine, WAL, snapshot/segment
// persistence, IVF index manager, search executor, resource governor, and
// metrics into the single programmatic interface an external HTTP layer,
// CLI, or embedding application drives (spec.md §2's request lifecycle).
package engine

import (
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"time"

	"github.com/edgevdb/core/internal/collection"
	"github.com/edgevdb/core/internal/config"
	"github.com/edgevdb/core/internal/corerr"
	"github.com/edgevdb/core/internal/governor"
	"github.com/edgevdb/core/internal/ivf"
	"github.com/edgevdb/core/internal/kernel"
	"github.com/edgevdb/core/internal/metrics"
	"github.com/edgevdb/core/internal/search"
	"github.com/edgevdb/core/internal/snapshot"
	"github.com/edgevdb/core/internal/wal"
)

// Engine is the core's top-level handle: every public operation in
// spec.md flows through it.
type Engine struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Registry

	collections *collection.Engine
	governor    *governor.Governor
	ivfMgr      *ivf.Manager
	executor    *search.Executor

	persistMu sync.RWMutex // serializes WAL rotation against Append
	liveWAL   *wal.WAL
	segments  *snapshot.SegmentManager

	generation            uint64
	writesSinceCheckpoint int
	checkpointInFlight     int32 // atomic bool

	degradeMu                   sync.Mutex
	degraded                    bool
	consecutiveSnapshotFailures int

	walTailWasOpen bool

	inFlight int32 // atomic, read by the auto dispatch policy
}

// New recovers engine state from cfg's snapshot/segment/WAL paths and
// opens a live WAL for new mutations.
func New(cfg config.Config, reg *metrics.Registry, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = metrics.NewUnregistered()
	}

	segmentDir := filepath.Join(filepath.Dir(cfg.WALPath), "segments")
	state, err := snapshot.Recover(cfg.SnapshotPath, segmentDir, cfg.WALPath, cfg.MaxPointsPerCollection)
	if err != nil {
		return nil, err
	}

	segments, err := snapshot.NewSegmentManager(segmentDir)
	if err != nil {
		return nil, err
	}

	walCfg := wal.Config{
		SyncOnWrite:             cfg.WALSyncOnWrite,
		SyncEveryNWrites:        cfg.WALSyncEveryNWrites,
		SyncIntervalSeconds:     cfg.WALSyncIntervalSeconds,
		GroupCommitMaxBatch:     cfg.WALGroupCommitMaxBatch,
		GroupCommitFlushDelayMs: cfg.WALGroupCommitFlushDelayMs,
	}
	liveWAL, err := wal.Open(cfg.WALPath, walCfg, reg, logger)
	if err != nil {
		return nil, err
	}

	ivfMgr := ivf.NewManager(cfg.IndexBuildMaxInFlight, cfg.IndexBuildCooldown(), reg, logger)
	executor := search.NewExecutor(search.Thresholds{
		InlineMaxPoints:          cfg.SearchInlineMaxPoints,
		InlineMaxWork:            cfg.SearchInlineMaxWork,
		LightLoadMaxWork:         cfg.SearchInlineLightLoadMaxWork,
		LightLoadMaxInFlight:     cfg.SearchInlineLightLoadMaxInFlight,
		ParallelScoreMinPoints:   cfg.ParallelScoreMinPoints,
		ParallelScoreMinWork:     cfg.ParallelScoreMinWork,
		ParallelScoreMinChunkLen: cfg.ParallelScoreMinChunkLen,
	}, ivfMgr, reg)

	e := &Engine{
		cfg:            cfg,
		logger:         logger,
		metrics:        reg,
		collections:    state.Engine,
		governor: governor.New(governor.Limits{
			MemoryBudgetBytes:     cfg.MemoryBudgetBytes,
			MaxConcurrency:        cfg.MaxConcurrency,
			MaxBodyBytes:          cfg.MaxBodyBytes,
			MaxTopKLimit:          cfg.MaxTopKLimit,
			MaxPageLimit:          cfg.MaxPageLimit,
			UpsertBatchMaxPoints:  cfg.UpsertBatchMaxPoints,
			SearchBatchMaxQueries: cfg.SearchBatchMaxQueries,
		}),
		ivfMgr:         ivfMgr,
		executor:       executor,
		liveWAL:        liveWAL,
		segments:       segments,
		generation:     state.Generation,
		walTailWasOpen: state.WALTailOpen,
	}

	if state.WALTailOpen {
		logger.Warn("WAL tail was open on recovery; final record before crash may have been lost")
	}

	if cfg.IndexWarmupOnBoot {
		e.warmupIndexes()
	}
	return e, nil
}

func (e *Engine) warmupIndexes() {
	for _, name := range e.collections.List() {
		c, err := e.collections.Get(name)
		if err != nil {
			continue
		}
		if c.Len() == 0 {
			continue
		}
		e.scheduleIVFBuild(name, c)
	}
}

func (e *Engine) scheduleIVFBuild(name string, c *collection.Collection) {
	points := c.SnapshotEntries()
	e.ivfMgr.RequestBuild(name, kernel.L2, c.Dimension, points, c.Generation(), ivf.BuildConfig{
		MaxTrainingPoints: e.cfg.IVFKMeansMaxTrainingPoints,
	}, time.Now())
}

// Close stops background work and closes the live WAL.
func (e *Engine) Close() error {
	return e.liveWAL.Close()
}

// appendAndApply writes r to the live WAL then applies it to in-memory
// state. Applying after a successful WAL append matches spec.md §8: a
// mutation that reached the WAL must be applied even if the response path
// is later cancelled.
func (e *Engine) appendAndApply(r wal.Record) error {
	e.persistMu.RLock()
	err := e.liveWAL.Append(r)
	e.persistMu.RUnlock()

	if err != nil {
		return err
	}
	if err := snapshot.Apply(e.collections, r); err != nil {
		return corerr.NewInternal("apply WAL record after durable append: %v", err)
	}
	e.onWriteCommitted()
	e.maybeScheduleIVFRebuild(r)
	return nil
}

// maybeScheduleIVFRebuild requests an async IVF rebuild for a mutated
// collection. The index manager's own cooldown/in-flight gate (spec.md
// §4.4) absorbs a burst of mutations into at most one build per cooldown
// window, so every mutation can safely call this.
func (e *Engine) maybeScheduleIVFRebuild(r wal.Record) {
	switch r.Type {
	case wal.UpsertPoint, wal.DeletePoint, wal.SetPayload, wal.DeletePayload:
	default:
		return
	}
	c, err := e.collections.Get(r.Collection)
	if err != nil || c.Len() == 0 {
		return
	}
	e.scheduleIVFBuild(r.Collection, c)
}

func (e *Engine) onWriteCommitted() {
	if e.metrics != nil {
		e.metrics.MemoryUsageBytesGauge.Set(float64(e.collections.EstimatedBytes()))
	}

	e.persistMu.Lock()
	e.writesSinceCheckpoint++
	due := e.cfg.CheckpointInterval > 0 && e.writesSinceCheckpoint >= e.cfg.CheckpointInterval
	if due {
		e.writesSinceCheckpoint = 0
	}
	e.persistMu.Unlock()

	if !due {
		return
	}
	if e.cfg.AsyncCheckpoints {
		if !atomic.CompareAndSwapInt32(&e.checkpointInFlight, 0, 1) {
			if e.metrics != nil {
				e.metrics.ScheduleSkipsTotal.Inc()
			}
			return
		}
		go func() {
			defer atomic.StoreInt32(&e.checkpointInFlight, 0)
			e.runCheckpoint()
		}()
	} else {
		e.runCheckpoint()
	}
}

// runCheckpoint rotates the live WAL into a new numbered segment, then
// compacts all accumulated segments into a fresh snapshot once their
// count reaches checkpoint_compact_after (spec.md §4.2).
func (e *Engine) runCheckpoint() {
	e.persistMu.Lock()
	defer e.persistMu.Unlock()

	oldPath := e.cfg.WALPath
	if err := e.liveWAL.Close(); err != nil {
		e.logger.Error("checkpoint: close live WAL failed", zap.Error(err))
		if e.metrics != nil {
			e.metrics.CheckpointErrorsTotal.Inc()
		}
		// best effort: reopen so writes can continue
		w, reopenErr := wal.Open(oldPath, e.walConfig(), e.metrics, e.logger)
		if reopenErr == nil {
			e.liveWAL = w
		}
		return
	}

	segPath, segErr := e.rotateToSegment(oldPath)
	if segErr != nil {
		e.logger.Error("checkpoint: rotate WAL to segment failed", zap.Error(segErr))
		if e.metrics != nil {
			e.metrics.CheckpointErrorsTotal.Inc()
		}
	} else if segPath != "" {
		e.logger.Debug("checkpoint: rotated WAL to segment", zap.String("segment", segPath))
	}

	w, err := wal.Open(oldPath, e.walConfig(), e.metrics, e.logger)
	if err != nil {
		e.logger.Error("checkpoint: reopen live WAL failed", zap.Error(err))
		return
	}
	e.liveWAL = w

	segments, err := e.segments.List()
	if err != nil {
		e.logger.Error("checkpoint: list segments failed", zap.Error(err))
		return
	}
	if len(segments) < e.cfg.CheckpointCompactAfter {
		return
	}
	e.compactLocked()
}

func (e *Engine) rotateToSegment(liveWALPath string) (string, error) {
	info, err := os.Stat(liveWALPath)
	if err != nil {
		return "", err
	}
	if info.Size() == 0 {
		return "", nil // nothing accumulated since the last rotation
	}
	segPath := e.segments.AllocatePath()
	if err := copyFile(liveWALPath, segPath); err != nil {
		return "", err
	}
	return segPath, os.Truncate(liveWALPath, 0)
}

func (e *Engine) compactLocked() {
	e.generation++
	if err := snapshot.Write(e.cfg.SnapshotPath, e.generation, e.collections); err != nil {
		e.logger.Error("checkpoint: snapshot write failed", zap.Error(err))
		if e.metrics != nil {
			e.metrics.CheckpointErrorsTotal.Inc()
		}
		e.enterDegraded()
		return
	}
	if err := e.segments.Compact(); err != nil {
		e.logger.Error("checkpoint: segment compaction failed", zap.Error(err))
		if e.metrics != nil {
			e.metrics.CheckpointErrorsTotal.Inc()
		}
		e.enterDegraded()
		return
	}
	if e.metrics != nil {
		e.metrics.CheckpointsTotal.Inc()
	}
	e.leaveDegraded()
}

func (e *Engine) walConfig() wal.Config {
	return wal.Config{
		SyncOnWrite:             e.cfg.WALSyncOnWrite,
		SyncEveryNWrites:        e.cfg.WALSyncEveryNWrites,
		SyncIntervalSeconds:     e.cfg.WALSyncIntervalSeconds,
		GroupCommitMaxBatch:     e.cfg.WALGroupCommitMaxBatch,
		GroupCommitFlushDelayMs: e.cfg.WALGroupCommitFlushDelayMs,
	}
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}
