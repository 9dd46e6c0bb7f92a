package ivf

import (
	"encoding/binary"
	"math"
	"math/rand"
	"sort"

	"github.com/edgevdb/core/internal/collection"
	"github.com/edgevdb/core/internal/corerr"
	"github.com/edgevdb/core/internal/kernel"
)

// BuildConfig controls one k-means build (spec.md §4.4).
type BuildConfig struct {
	// TargetCentroids, if 0, defaults to max(1, floor(sqrt(N))).
	TargetCentroids int
	// MaxTrainingPoints caps how many points are sampled for training when
	// the collection is larger than this; 0 means no cap.
	MaxTrainingPoints int
	// Iterations bounds Lloyd's algorithm; 0 defaults to 10.
	Iterations int
}

// Build trains an IVF artifact over points. The result is deterministic
// for a given (metric, dimension, points, config): centroid seeding and
// training-point sampling are both derived from a PRNG seeded by the
// content fingerprint, never from wall-clock time or crypto/rand.
func Build(metric kernel.Metric, dimension int, points []*collection.Point, generation uint64, cfg BuildConfig) (*Artifact, error) {
	if len(points) == 0 {
		return nil, corerr.NewInvalidArgument("cannot build an IVF index over an empty collection")
	}

	fp := ComputeFingerprint(dimension, points)
	seed := int64(binary.LittleEndian.Uint64(fp[:8]))
	rng := rand.New(rand.NewSource(seed))

	k := cfg.TargetCentroids
	if k <= 0 {
		k = int(math.Sqrt(float64(len(points))))
	}
	if k < 1 {
		k = 1
	}
	if k > len(points) {
		k = len(points)
	}

	training := points
	if cfg.MaxTrainingPoints > 0 && len(points) > cfg.MaxTrainingPoints {
		training = sampleDeterministic(points, cfg.MaxTrainingPoints, rng)
	}

	centroids := seedCentroidsKMeansPlusPlus(metric, dimension, training, k, rng)

	iterations := cfg.Iterations
	if iterations <= 0 {
		iterations = 10
	}
	assignments := make([]int, len(training))
	for iter := 0; iter < iterations; iter++ {
		changed := assignToNearest(metric, training, centroids, assignments)
		recomputeCentroids(dimension, training, assignments, centroids)
		if !changed && iter > 0 {
			break
		}
	}
	assignToNearest(metric, training, centroids, assignments) // re-sync after the last centroid update

	recallCurve := buildRecallCurve(training, centroids, assignments, rng)

	// Final assignment pass over the full point set (not just the training
	// sample), so every point lands in exactly one posting list.
	postings := make([][]uint64, len(centroids))
	fullAssignments := make([]int, len(points))
	assignToNearest(metric, points, centroids, fullAssignments)
	for i, p := range points {
		c := fullAssignments[i]
		postings[c] = append(postings[c], p.ID)
	}
	for c := range postings {
		sort.Slice(postings[c], func(i, j int) bool { return postings[c][i] < postings[c][j] })
	}

	return &Artifact{
		Dimension:   dimension,
		Metric:      metric,
		Fingerprint: fp,
		Generation:  generation,
		Centroids:   centroids,
		Postings:    postings,
		RecallCurve: recallCurve,
	}, nil
}

// recallSampleSize bounds how many training points are used as queries when
// measuring the build-time recall curve.
const recallSampleSize = 64

// buildRecallCurve measures, for each possible nprobe, what fraction of a
// deterministic query sample would find its true (brute-force) nearest
// training neighbor among the posting lists of the nprobe nearest centroids.
// The result is a monotonically non-decreasing curve stored on the artifact
// so a search can turn a target_recall into a concrete nprobe without
// re-measuring anything at query time (spec.md §4.4: "a monotone
// probe-count schedule keyed to target_recall").
func buildRecallCurve(points []*collection.Point, centroids [][]float32, assignments []int, rng *rand.Rand) []float64 {
	numCentroids := len(centroids)
	if numCentroids == 0 || len(points) < 2 {
		return nil
	}
	n := recallSampleSize
	if n > len(points) {
		n = len(points)
	}
	sampleIdx := rng.Perm(len(points))[:n]

	hitAtRank := make([]int, numCentroids)
	sampled := 0
	for _, qi := range sampleIdx {
		q := points[qi]
		nearestDist := float32(math.MaxFloat32)
		nearestCentroid := -1
		found := false
		for j, p := range points {
			if j == qi {
				continue
			}
			d := kernel.L2Squared(q.Values, p.Values)
			if d < nearestDist {
				nearestDist = d
				nearestCentroid = assignments[j]
				found = true
			}
		}
		if !found {
			continue
		}
		sampled++
		for rank, c := range rankCentroidsByDistance(q.Values, centroids) {
			if c == nearestCentroid {
				hitAtRank[rank]++
				break
			}
		}
	}
	if sampled == 0 {
		return nil
	}

	curve := make([]float64, numCentroids)
	var cumulative int
	for nprobe := 1; nprobe <= numCentroids; nprobe++ {
		cumulative += hitAtRank[nprobe-1]
		curve[nprobe-1] = float64(cumulative) / float64(sampled)
	}
	return curve
}

// rankCentroidsByDistance returns centroid indices ordered nearest-first to
// q.
func rankCentroidsByDistance(q []float32, centroids [][]float32) []int {
	type scored struct {
		idx  int
		dist float32
	}
	ranked := make([]scored, len(centroids))
	for i, c := range centroids {
		ranked[i] = scored{idx: i, dist: kernel.L2Squared(q, c)}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].dist < ranked[j].dist })
	order := make([]int, len(ranked))
	for i, r := range ranked {
		order[i] = r.idx
	}
	return order
}

func sampleDeterministic(points []*collection.Point, n int, rng *rand.Rand) []*collection.Point {
	sorted := make([]*collection.Point, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	perm := rng.Perm(len(sorted))[:n]
	sort.Ints(perm)
	out := make([]*collection.Point, n)
	for i, idx := range perm {
		out[i] = sorted[idx]
	}
	return out
}

// seedCentroidsKMeansPlusPlus picks k initial centroids with k-means++
// weighting: the first is chosen deterministically, each subsequent one
// with probability proportional to its squared distance from the nearest
// already-chosen centroid.
func seedCentroidsKMeansPlusPlus(metric kernel.Metric, dimension int, points []*collection.Point, k int, rng *rand.Rand) [][]float32 {
	centroids := make([][]float32, 0, k)
	first := points[rng.Intn(len(points))]
	centroids = append(centroids, cloneVector(first.Values))

	dist := make([]float64, len(points))
	for len(centroids) < k {
		var total float64
		for i, p := range points {
			best := float32(math.MaxFloat32)
			for _, c := range centroids {
				d := kernel.L2Squared(p.Values, c)
				if d < best {
					best = d
				}
			}
			dist[i] = float64(best)
			total += dist[i]
		}
		if total == 0 {
			// All remaining points coincide with an existing centroid; pad
			// with arbitrary points rather than looping forever.
			centroids = append(centroids, cloneVector(points[len(centroids)%len(points)].Values))
			continue
		}
		target := rng.Float64() * total
		var cum float64
		chosen := len(points) - 1
		for i, d := range dist {
			cum += d
			if cum >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, cloneVector(points[chosen].Values))
	}
	_ = dimension
	return centroids
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// assignToNearest assigns each point to its nearest centroid by squared L2
// (the standard k-means objective regardless of the artifact's ranking
// metric: clustering groups points spatially, ranking within a posting
// list still uses the collection's configured metric). It returns whether
// any assignment changed from the previous pass.
func assignToNearest(metric kernel.Metric, points []*collection.Point, centroids [][]float32, assignments []int) (changed bool) {
	for i, p := range points {
		best := 0
		bestDist := kernel.L2Squared(p.Values, centroids[0])
		for c := 1; c < len(centroids); c++ {
			d := kernel.L2Squared(p.Values, centroids[c])
			if d < bestDist {
				bestDist = d
				best = c
			}
		}
		if assignments[i] != best {
			changed = true
		}
		assignments[i] = best
	}
	return changed
}

func recomputeCentroids(dimension int, points []*collection.Point, assignments []int, centroids [][]float32) {
	sums := make([][]float64, len(centroids))
	counts := make([]int, len(centroids))
	for c := range sums {
		sums[c] = make([]float64, dimension)
	}
	for i, p := range points {
		c := assignments[i]
		counts[c]++
		for d, v := range p.Values {
			sums[c][d] += float64(v)
		}
	}
	for c := range centroids {
		if counts[c] == 0 {
			continue // keep the previous centroid; an empty cluster is not reseeded mid-run
		}
		for d := 0; d < dimension; d++ {
			centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
		}
	}
}
