// Package kernel implements the scalar and blockwise scoring routines the
// search executor builds on: dot product, squared L2 distance, and cosine
// similarity over dense float32 vectors (spec.md §4.1). Kernels are
// deterministic given identical inputs and tolerate non-finite components —
// strict-finite enforcement happens at ingest, in internal/collection, not
// here.
package kernel

import "math"

// Metric is a small closed set represented as a tagged variant, per the
// design note in spec.md §9 ("represent them as tagged variants rather than
// runtime-polymorphic objects").
type Metric int

const (
	Dot Metric = iota
	L2
	Cosine
)

func (m Metric) String() string {
	switch m {
	case Dot:
		return "dot"
	case L2:
		return "l2"
	case Cosine:
		return "cosine"
	default:
		return "unknown"
	}
}

// ParseMetric maps the wire string to a Metric. ok is false for anything
// else, letting the caller produce an invalid_argument error with context.
func ParseMetric(s string) (Metric, bool) {
	switch s {
	case "dot":
		return Dot, true
	case "l2":
		return L2, true
	case "cosine":
		return Cosine, true
	default:
		return 0, false
	}
}

// HigherIsBetter reports whether a larger score ranks better under m. Dot
// and cosine rank descending by score; L2 ranks ascending by squared
// distance (smaller is closer).
func (m Metric) HigherIsBetter() bool {
	return m != L2
}

const blockSize = 8

// DotProduct computes Σ a_i·b_i, unrolled in blocks of 8 for throughput. a and b
// must have equal length; callers (internal/collection) guarantee the
// dimension invariant before kernels ever see a vector.
func DotProduct(a, b []float32) float32 {
	var sum float32
	n := len(a)
	i := 0
	for ; i+blockSize <= n; i += blockSize {
		sum += a[i]*b[i] + a[i+1]*b[i+1] + a[i+2]*b[i+2] + a[i+3]*b[i+3] +
			a[i+4]*b[i+4] + a[i+5]*b[i+5] + a[i+6]*b[i+6] + a[i+7]*b[i+7]
	}
	for ; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// L2Squared computes Σ (a_i−b_i)². The square root is never taken here:
// ranking by squared distance yields the same order and avoids the sqrt
// cost on every candidate (spec.md §4.1).
func L2Squared(a, b []float32) float32 {
	var sum float32
	n := len(a)
	i := 0
	for ; i+blockSize <= n; i += blockSize {
		d0 := a[i] - b[i]
		d1 := a[i+1] - b[i+1]
		d2 := a[i+2] - b[i+2]
		d3 := a[i+3] - b[i+3]
		d4 := a[i+4] - b[i+4]
		d5 := a[i+5] - b[i+5]
		d6 := a[i+6] - b[i+6]
		d7 := a[i+7] - b[i+7]
		sum += d0*d0 + d1*d1 + d2*d2 + d3*d3 + d4*d4 + d5*d5 + d6*d6 + d7*d7
	}
	for ; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Norm returns the Euclidean norm of v.
func Norm(v []float32) float32 {
	return float32(math.Sqrt(float64(DotProduct(v, v))))
}

// Cosine computes dot(a,b) / (‖a‖·‖b‖), defined as 0 when either norm is 0.
func Cosine(a, b []float32) float32 {
	na := Norm(a)
	nb := Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return DotProduct(a, b) / (na * nb)
}

// Score computes the raw score for metric m between a query and a
// candidate. For Dot and Cosine, larger is better; for L2, smaller is
// better (it is a squared distance, not a similarity).
func Score(m Metric, query, candidate []float32) float32 {
	switch m {
	case Dot:
		return DotProduct(query, candidate)
	case L2:
		return L2Squared(query, candidate)
	case Cosine:
		return Cosine(query, candidate)
	default:
		return 0
	}
}

// Distance computes an externally meaningful distance for the ad-hoc
// /distance route (spec.md §6): for L2 this takes the square root that
// ranking kernels skip; dot and cosine are returned as similarities
// (negated would be a "distance", but the spec only asks for the metric
// value itself).
func Distance(m Metric, a, b []float32) float32 {
	switch m {
	case L2:
		return float32(math.Sqrt(float64(L2Squared(a, b))))
	default:
		return Score(m, a, b)
	}
}

// TransposeMinQueries is the smallest query count the transposed candidate
// layout can serve. The search executor does not read it: batched exact
// search switches to the transposed kernel at the
// exact_batch_transpose_min_queries setting passed to BatchSearch.
const TransposeMinQueries = 1

// CandidateMatrix stores candidate vectors contiguously in [point][dim]
// layout for cache-friendly streaming of many queries against the same
// candidate set (spec.md §4.1's transposed batch kernel).
type CandidateMatrix struct {
	Dim    int
	IDs    []uint64
	Values []float32 // len(IDs)*Dim, row-major: point i occupies Values[i*Dim:(i+1)*Dim]
}

// NewCandidateMatrix packs ids/vectors into a CandidateMatrix. vectors[i]
// must have length dim.
func NewCandidateMatrix(dim int, ids []uint64, vectors [][]float32) CandidateMatrix {
	flat := make([]float32, len(ids)*dim)
	for i, v := range vectors {
		copy(flat[i*dim:(i+1)*dim], v)
	}
	return CandidateMatrix{Dim: dim, IDs: ids, Values: flat}
}

// Row returns a view of the i-th candidate vector without copying.
func (m CandidateMatrix) Row(i int) []float32 {
	return m.Values[i*m.Dim : (i+1)*m.Dim]
}

// Len returns the number of candidates in the matrix.
func (m CandidateMatrix) Len() int { return len(m.IDs) }

// ScoreBatch scores a single query against every row of the candidate
// matrix in order, writing one score per candidate into out (which must
// have length m.Len(), or be nil to allocate a new slice).
func ScoreBatch(metric Metric, query []float32, m CandidateMatrix, out []float32) []float32 {
	if out == nil {
		out = make([]float32, m.Len())
	}
	for i := 0; i < m.Len(); i++ {
		out[i] = Score(metric, query, m.Row(i))
	}
	return out
}

// ScoreBatchTransposed streams every query against the full candidate
// matrix, reusing the matrix's cache-resident layout across queries. This
// is the kernel topk_batch selects once the query count reaches the
// exact_batch_transpose_min_queries threshold the search executor is given.
func ScoreBatchTransposed(metric Metric, queries [][]float32, m CandidateMatrix) [][]float32 {
	results := make([][]float32, len(queries))
	for qi, q := range queries {
		results[qi] = ScoreBatch(metric, q, m, nil)
	}
	return results
}
