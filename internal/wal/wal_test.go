package wal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edgevdb/core/internal/collection"
	"github.com/edgevdb/core/internal/wal"
)

func syncOnWriteConfig() wal.Config {
	return wal.Config{SyncOnWrite: true, GroupCommitMaxBatch: 16}
}

func TestAppendThenReplayRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := wal.Open(path, syncOnWriteConfig(), nil, nil)
	require.NoError(t, err)

	require.NoError(t, w.Append(wal.NewCreateCollection("demo", 4, true)))
	require.NoError(t, w.Append(wal.NewUpsertPoint("demo", 1, []float32{1, 2, 3, 4}, map[string]collection.PayloadValue{
		"tier": collection.StringValue("gold"),
	})))
	require.NoError(t, w.Append(wal.NewDeletePoint("demo", 2)))
	require.NoError(t, w.Close())

	result, err := wal.Replay(path)
	require.NoError(t, err)
	require.False(t, result.TailOpen)
	require.Len(t, result.Records, 3)
	require.Equal(t, wal.CreateCollection, result.Records[0].Type)
	require.Equal(t, wal.UpsertPoint, result.Records[1].Type)
	require.Equal(t, []float32{1, 2, 3, 4}, result.Records[1].Values)
	require.Equal(t, collection.StringValue("gold"), result.Records[1].PayloadValues()["tier"])
	require.Equal(t, wal.DeletePoint, result.Records[2].Type)
}

func TestReplayMissingFileReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.log")

	result, err := wal.Replay(path)
	require.NoError(t, err)
	require.Empty(t, result.Records)
	require.False(t, result.TailOpen)
}

func TestReplayToleratesTruncatedTail(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := wal.Open(path, syncOnWriteConfig(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, w.Append(wal.NewUpsertPoint("demo", 1, []float32{1}, nil)))
	require.NoError(t, w.Close())

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"type":"upsert_point","collect`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	result, err := wal.Replay(path)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	require.True(t, result.TailOpen)
}

func TestClearTruncatesLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := wal.Open(path, syncOnWriteConfig(), nil, nil)
	require.NoError(t, err)
	require.NoError(t, w.Append(wal.NewUpsertPoint("demo", 1, []float32{1}, nil)))
	require.NoError(t, w.Clear())
	require.NoError(t, w.Close())

	result, err := wal.Replay(path)
	require.NoError(t, err)
	require.Empty(t, result.Records)
}

func TestGroupCommitAppliesAllConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := wal.Open(path, wal.Config{SyncOnWrite: true, GroupCommitMaxBatch: 8, GroupCommitFlushDelayMs: 5}, nil, nil)
	require.NoError(t, err)

	const n = 50
	errCh := make(chan error, n)
	for i := 0; i < n; i++ {
		id := uint64(i)
		go func() {
			errCh <- w.Append(wal.NewUpsertPoint("demo", id, []float32{float32(id)}, nil))
		}()
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errCh)
	}
	require.NoError(t, w.Close())

	result, err := wal.Replay(path)
	require.NoError(t, err)
	require.Len(t, result.Records, n)
}

func TestSyncEveryNWritesDoesNotBlockOnEveryAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := wal.Open(path, wal.Config{SyncEveryNWrites: 4, GroupCommitMaxBatch: 1}, nil, nil)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Append(wal.NewUpsertPoint("demo", uint64(i), []float32{float32(i)}, nil)))
	}
	require.NoError(t, w.Close())

	result, err := wal.Replay(path)
	require.NoError(t, err)
	require.Len(t, result.Records, 10)
}
