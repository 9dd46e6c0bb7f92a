package snapshot_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgevdb/core/internal/collection"
	"github.com/edgevdb/core/internal/snapshot"
	"github.com/edgevdb/core/internal/wal"
)

func TestWriteThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.db")

	engine := collection.NewEngine(0)
	c, err := engine.Create("demo", 3, false)
	require.NoError(t, err)
	require.NoError(t, c.Upsert(1, []float32{1, 2, 3}, map[string]collection.PayloadValue{"k": collection.IntValue(7)}))
	require.NoError(t, c.Upsert(2, []float32{4, 5, 6}, nil))

	require.NoError(t, snapshot.Write(path, 42, engine))

	loaded, generation, err := snapshot.Load(path, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(42), generation)

	lc, err := loaded.Get("demo")
	require.NoError(t, err)
	require.Equal(t, 2, lc.Len())
	p1, err := lc.Get(1)
	require.NoError(t, err)
	require.Equal(t, []float32{1, 2, 3}, p1.Values)
	require.Equal(t, collection.IntValue(7), p1.Payload["k"])
}

func TestLoadMissingSnapshotReturnsEmptyEngine(t *testing.T) {
	dir := t.TempDir()
	engine, generation, err := snapshot.Load(filepath.Join(dir, "missing.db"), 0)
	require.NoError(t, err)
	require.Equal(t, uint64(0), generation)
	require.Empty(t, engine.List())
}

func TestSegmentManagerOrdersBySequence(t *testing.T) {
	dir := t.TempDir()
	mgr, err := snapshot.NewSegmentManager(dir)
	require.NoError(t, err)

	w1, path1, err := mgr.Create(wal.Config{SyncOnWrite: true, GroupCommitMaxBatch: 1}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, w1.Append(wal.NewCreateCollection("demo", 2, false)))
	require.NoError(t, w1.Close())

	w2, path2, err := mgr.Create(wal.Config{SyncOnWrite: true, GroupCommitMaxBatch: 1}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, w2.Append(wal.NewUpsertPoint("demo", 1, []float32{1, 1}, nil)))
	require.NoError(t, w2.Close())

	paths, err := mgr.List()
	require.NoError(t, err)
	require.Equal(t, []string{path1, path2}, paths)
}

func TestRecoverComposesSnapshotSegmentsAndWALTail(t *testing.T) {
	dir := t.TempDir()
	snapshotPath := filepath.Join(dir, "snapshot.db")
	segmentDir := filepath.Join(dir, "segments")
	walPath := filepath.Join(dir, "wal.log")

	base := collection.NewEngine(0)
	c, err := base.Create("demo", 2, false)
	require.NoError(t, err)
	require.NoError(t, c.Upsert(1, []float32{1, 1}, nil))
	require.NoError(t, snapshot.Write(snapshotPath, 1, base))

	mgr, err := snapshot.NewSegmentManager(segmentDir)
	require.NoError(t, err)
	segW, _, err := mgr.Create(wal.Config{SyncOnWrite: true, GroupCommitMaxBatch: 1}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, segW.Append(wal.NewUpsertPoint("demo", 2, []float32{2, 2}, nil)))
	require.NoError(t, segW.Close())

	liveWAL, err := wal.Open(walPath, wal.Config{SyncOnWrite: true, GroupCommitMaxBatch: 1}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, liveWAL.Append(wal.NewUpsertPoint("demo", 3, []float32{3, 3}, nil)))
	require.NoError(t, liveWAL.Close())

	state, err := snapshot.Recover(snapshotPath, segmentDir, walPath, 0)
	require.NoError(t, err)
	require.False(t, state.WALTailOpen)

	lc, err := state.Engine.Get("demo")
	require.NoError(t, err)
	require.Equal(t, 3, lc.Len())
}
