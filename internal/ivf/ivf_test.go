package ivf_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edgevdb/core/internal/collection"
	"github.com/edgevdb/core/internal/ivf"
	"github.com/edgevdb/core/internal/kernel"
)

func pointsGrid(n int) []*collection.Point {
	points := make([]*collection.Point, n)
	for i := 0; i < n; i++ {
		points[i] = &collection.Point{ID: uint64(i), Values: []float32{float32(i), float32(i % 3)}}
	}
	return points
}

func TestBuildIsDeterministicForIdenticalInput(t *testing.T) {
	points := pointsGrid(64)
	a1, err := ivf.Build(kernel.L2, 2, points, 1, ivf.BuildConfig{TargetCentroids: 4})
	require.NoError(t, err)
	a2, err := ivf.Build(kernel.L2, 2, points, 1, ivf.BuildConfig{TargetCentroids: 4})
	require.NoError(t, err)
	require.Equal(t, a1.Centroids, a2.Centroids)
	require.Equal(t, a1.Postings, a2.Postings)
	require.Equal(t, a1.Fingerprint, a2.Fingerprint)
}

func TestBuildAssignsEveryPointToSomeCentroid(t *testing.T) {
	points := pointsGrid(100)
	a, err := ivf.Build(kernel.L2, 2, points, 1, ivf.BuildConfig{TargetCentroids: 5})
	require.NoError(t, err)

	total := 0
	for _, p := range a.Postings {
		total += len(p)
	}
	require.Equal(t, 100, total)
}

func TestBuildRejectsEmptyCollection(t *testing.T) {
	_, err := ivf.Build(kernel.L2, 2, nil, 1, ivf.BuildConfig{})
	require.Error(t, err)
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a := pointsGrid(10)
	fp1 := ivf.ComputeFingerprint(2, a)
	a[0].Values[0] += 1
	fp2 := ivf.ComputeFingerprint(2, a)
	require.NotEqual(t, fp1, fp2)
}

func TestArtifactStaleDetectsDimensionAndFingerprintChange(t *testing.T) {
	points := pointsGrid(32)
	artifact, err := ivf.Build(kernel.L2, 2, points, 1, ivf.BuildConfig{TargetCentroids: 3})
	require.NoError(t, err)

	fp := ivf.ComputeFingerprint(2, points)
	require.False(t, artifact.Stale(2, fp))
	require.True(t, artifact.Stale(3, fp))

	points[0].Values[0] += 100
	changedFP := ivf.ComputeFingerprint(2, points)
	require.True(t, artifact.Stale(2, changedFP))
}

func TestProbeCountIsMonotoneInTargetRecall(t *testing.T) {
	low := ivf.ProbeCount(0.5, 8, 64)
	mid := ivf.ProbeCount(0.9, 8, 64)
	high := ivf.ProbeCount(0.99, 8, 64)
	require.LessOrEqual(t, low, mid)
	require.LessOrEqual(t, mid, high)
	require.LessOrEqual(t, high, 64)
}

func TestBuildRecallCurveIsMonotoneAndReachesOne(t *testing.T) {
	points := pointsGrid(200)
	artifact, err := ivf.Build(kernel.L2, 2, points, 1, ivf.BuildConfig{TargetCentroids: 8})
	require.NoError(t, err)

	require.Len(t, artifact.RecallCurve, artifact.NumCentroids())
	for i := 1; i < len(artifact.RecallCurve); i++ {
		require.GreaterOrEqual(t, artifact.RecallCurve[i], artifact.RecallCurve[i-1])
	}
	require.InDelta(t, 1.0, artifact.RecallCurve[len(artifact.RecallCurve)-1], 1e-9)
}

func TestProbeCountForRecallUsesBuildTimeCurve(t *testing.T) {
	points := pointsGrid(200)
	artifact, err := ivf.Build(kernel.L2, 2, points, 1, ivf.BuildConfig{TargetCentroids: 8})
	require.NoError(t, err)

	low := artifact.ProbeCountForRecall(0.5, 2)
	high := artifact.ProbeCountForRecall(0.99, 2)
	require.LessOrEqual(t, low, high)
	require.LessOrEqual(t, high, artifact.NumCentroids())
}

func TestProbeCountForRecallFallsBackWithoutCurve(t *testing.T) {
	artifact := &ivf.Artifact{Centroids: make([][]float32, 16)}
	require.Equal(t, ivf.ProbeCount(0.95, 4, 16), artifact.ProbeCountForRecall(0.95, 4))
}

func TestCandidatesReturnsNearestCentroidsPostings(t *testing.T) {
	points := pointsGrid(40)
	artifact, err := ivf.Build(kernel.L2, 2, points, 1, ivf.BuildConfig{TargetCentroids: 4})
	require.NoError(t, err)

	candidates := artifact.Candidates([]float32{0, 0}, 1)
	require.NotEmpty(t, candidates)
	require.LessOrEqual(t, len(candidates), 40)
}

func TestManagerSkipsConcurrentBuildOfSameCollection(t *testing.T) {
	mgr := ivf.NewManager(1, 0, nil, nil)
	points := pointsGrid(200)
	now := time.Now()

	mgr.RequestBuild("demo", kernel.L2, 2, points, 1, ivf.BuildConfig{}, now)
	mgr.RequestBuild("demo", kernel.L2, 2, points, 1, ivf.BuildConfig{}, now)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, mgr.AwaitIdle(ctx))
	require.NotNil(t, mgr.Get("demo"))
}

func TestManagerRespectsCooldown(t *testing.T) {
	mgr := ivf.NewManager(2, time.Hour, nil, nil)
	points := pointsGrid(20)
	now := time.Now()

	mgr.RequestBuild("demo", kernel.L2, 2, points, 1, ivf.BuildConfig{}, now)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, mgr.AwaitIdle(ctx))
	first := mgr.Get("demo")
	require.NotNil(t, first)

	mgr.RequestBuild("demo", kernel.L2, 2, points, 2, ivf.BuildConfig{}, now.Add(time.Minute))
	require.NoError(t, mgr.AwaitIdle(ctx))
	require.Same(t, first, mgr.Get("demo"))
}
