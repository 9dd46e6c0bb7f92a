package engine

import "go.uber.org/zap"

// DegradationState reports whether persistence is fully healthy or has
// fallen back to WAL-only checkpointing after repeated snapshot failures
// (spec.md §4.2's failure semantics).
type DegradationState int

const (
	Normal DegradationState = iota
	WALOnly
)

func (s DegradationState) String() string {
	if s == WALOnly {
		return "wal_only"
	}
	return "normal"
}

// degradeThreshold is the number of consecutive snapshot failures after
// which the engine reports WALOnly rather than Normal.
const degradeThreshold = 3

func (e *Engine) enterDegraded() {
	e.degradeMu.Lock()
	defer e.degradeMu.Unlock()
	e.consecutiveSnapshotFailures++
	if e.consecutiveSnapshotFailures >= degradeThreshold && !e.degraded {
		e.degraded = true
		if e.metrics != nil {
			e.metrics.DegradedModeGauge.Set(1)
		}
		e.logger.Warn("entering WAL-only degraded mode after repeated snapshot failures",
			zap.Int("consecutive_failures", e.consecutiveSnapshotFailures))
	}
}

func (e *Engine) leaveDegraded() {
	e.degradeMu.Lock()
	defer e.degradeMu.Unlock()
	e.consecutiveSnapshotFailures = 0
	if e.degraded {
		e.degraded = false
		if e.metrics != nil {
			e.metrics.DegradedModeGauge.Set(0)
		}
		e.logger.Info("snapshot checkpointing recovered; leaving WAL-only degraded mode")
	}
}

// Health is the engine's readiness/liveness snapshot (spec.md §6, §7):
// liveness is true whenever the process can answer at all. Readiness is
// true once New has loaded the engine; storage availability is not
// tracked, so Ready does not turn false when storage fails later.
type Health struct {
	Live        bool
	Ready       bool
	Degradation DegradationState
	WALTailOpen bool
}

// Health reports the engine's current liveness/readiness state.
func (e *Engine) Health() Health {
	e.degradeMu.Lock()
	degraded := e.degraded
	e.degradeMu.Unlock()

	state := Normal
	if degraded {
		state = WALOnly
	}
	return Health{
		Live:        true,
		Ready:       true, // the engine always holds a usable in-memory view once New succeeds
		Degradation: state,
		WALTailOpen: e.walTailWasOpen,
	}
}
