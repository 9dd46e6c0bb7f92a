// Package ivf implements the approximate search index: a content-
// fingerprinted inverted file built by k-means clustering over a
// collection's vectors, with a bounded, cooldown-throttled build scheduler
// and a monotone probe-count schedule keyed to a target recall (spec.md
// §4.4).
package ivf

import (
	"encoding/binary"
	"math"
	"sort"

	"golang.org/x/crypto/blake2b"

	"github.com/edgevdb/core/internal/collection"
	"github.com/edgevdb/core/internal/kernel"
)

// Fingerprint is a content hash over a collection's (dimension, sorted
// (id, values)) state, used to detect whether a built Artifact is stale
// relative to its collection without diffing every point (spec.md §4.4).
type Fingerprint [blake2b.Size256]byte

// ComputeFingerprint hashes dimension and every point's (id, values) in
// ascending id order. Payload is excluded: it never affects which vectors
// an IVF artifact indexes.
func ComputeFingerprint(dimension int, points []*collection.Point) Fingerprint {
	sorted := make([]*collection.Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	h, _ := blake2b.New256(nil)
	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], uint64(dimension))
	h.Write(hdr[:])

	buf := make([]byte, 8)
	for _, p := range sorted {
		binary.LittleEndian.PutUint64(buf, p.ID)
		h.Write(buf)
		for _, v := range p.Values {
			binary.LittleEndian.PutUint32(buf[:4], math.Float32bits(v))
			h.Write(buf[:4])
		}
	}

	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp
}

// Artifact is a built IVF index: a set of centroids and, per centroid, the
// ids of the points assigned to it. It is immutable once built — a stale
// Artifact is replaced wholesale by a fresh build, never patched in place.
type Artifact struct {
	Dimension   int
	Metric      kernel.Metric
	Fingerprint Fingerprint
	Generation  uint64

	Centroids [][]float32
	Postings  [][]uint64 // Postings[c] holds the ids assigned to Centroids[c]

	// RecallCurve[i] is the measured recall at nprobe = i+1, from a
	// build-time sample (see kmeans.go's buildRecallCurve). Empty for an
	// artifact assembled without going through Build (e.g. in tests).
	RecallCurve []float64
}

// Stale reports whether the artifact no longer matches a collection's
// current content.
func (a *Artifact) Stale(dimension int, fp Fingerprint) bool {
	return a == nil || a.Dimension != dimension || a.Fingerprint != fp
}

// NumCentroids returns the centroid count, 0 for a nil artifact.
func (a *Artifact) NumCentroids() int {
	if a == nil {
		return 0
	}
	return len(a.Centroids)
}
