package ivf

import (
	"sort"

	"github.com/edgevdb/core/internal/kernel"
)

// ProbeCountForRecall turns a target recall into a concrete nprobe using
// the artifact's build-time RecallCurve: the smallest nprobe whose measured
// recall meets targetRecall (spec.md §4.4: "a monotone probe-count schedule
// keyed to target_recall, stored alongside the artifact"). Falls back to
// the coarser ProbeCount heuristic when the artifact carries no curve, e.g.
// one assembled by hand in a test rather than through Build.
func (a *Artifact) ProbeCountForRecall(targetRecall float64, nprobeDefault int) int {
	numCentroids := a.NumCentroids()
	if numCentroids <= 0 {
		return 0
	}
	if targetRecall <= 0 || len(a.RecallCurve) == 0 {
		return ProbeCount(targetRecall, nprobeDefault, numCentroids)
	}
	for i, recall := range a.RecallCurve {
		if recall >= targetRecall {
			return i + 1
		}
	}
	return numCentroids
}

// ProbeCount is the fallback heuristic used when no measured recall curve
// is available: it scales the configured default by target recall band,
// capped at the artifact's centroid count (spec.md §4.4: "a monotone
// probe-count schedule keyed to target_recall").
func ProbeCount(targetRecall float64, nprobeDefault, numCentroids int) int {
	if numCentroids <= 0 {
		return 0
	}
	nprobe := nprobeDefault
	switch {
	case targetRecall <= 0:
		// unset: use the configured default as-is
	case targetRecall >= 0.99:
		nprobe = numCentroids
	case targetRecall >= 0.95:
		nprobe = nprobeDefault * 4
	case targetRecall >= 0.9:
		nprobe = nprobeDefault * 2
	default:
		nprobe = nprobeDefault
	}
	if nprobe < 1 {
		nprobe = 1
	}
	if nprobe > numCentroids {
		nprobe = numCentroids
	}
	return nprobe
}

// Candidates returns the ids assigned to the nprobe centroids nearest
// query, ordered by centroid proximity (closest centroid's posting list
// first). The search executor scores these ids exactly against query;
// the index only narrows which points are worth scoring.
func (a *Artifact) Candidates(query []float32, nprobe int) []uint64 {
	if a == nil || len(a.Centroids) == 0 {
		return nil
	}
	if nprobe <= 0 || nprobe > len(a.Centroids) {
		nprobe = len(a.Centroids)
	}

	type scored struct {
		idx  int
		dist float32
	}
	ranked := make([]scored, len(a.Centroids))
	for i, c := range a.Centroids {
		ranked[i] = scored{idx: i, dist: kernel.L2Squared(query, c)}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].dist < ranked[j].dist })

	var ids []uint64
	for i := 0; i < nprobe; i++ {
		ids = append(ids, a.Postings[ranked[i].idx]...)
	}
	return ids
}
