// Package snapshot implements crash recovery for the core: a full-state
// snapshot file, incremental segments recorded between snapshots, and a
// recovery loader that replays snapshot -> segments -> live WAL tail in
// order (spec.md §4.2, §8).
//
// Snapshot and segment files share the WAL's record format (newline-
// delimited JSON, self-describing by RecordType), so the same tail-open
// tolerance applies to a truncated snapshot write as to the WAL itself.
package snapshot

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/edgevdb/core/internal/collection"
	"github.com/edgevdb/core/internal/corerr"
	"github.com/edgevdb/core/internal/wal"
)

// Write serializes every collection and point in engine at the given
// generation to a new snapshot file at path, atomically: it writes to a
// temp file in the same directory, fsyncs it, then renames over path so a
// crash mid-write never leaves a corrupt file at the canonical location.
func Write(path string, generation uint64, engine *collection.Engine) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return corerr.NewInternal("create snapshot dir %q: %v", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return corerr.NewInternal("create snapshot temp file: %v", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	w := bufio.NewWriter(tmp)
	writeRecord := func(r wal.Record) error {
		data, err := r.Marshal()
		if err != nil {
			return err
		}
		data = append(data, '\n')
		_, err = w.Write(data)
		return err
	}

	if err := writeRecord(wal.NewSnapshotHeader(generation)); err != nil {
		tmp.Close()
		return corerr.NewInternal("write snapshot header: %v", err)
	}

	for _, name := range engine.List() {
		info, err := engine.Describe(name)
		if err != nil {
			continue // deleted concurrently; the live WAL/segments carry the deletion
		}
		if err := writeRecord(wal.NewCreateCollection(info.Name, info.Dimension, info.StrictFinite)); err != nil {
			tmp.Close()
			return corerr.NewInternal("write snapshot collection header: %v", err)
		}
		c, err := engine.Get(name)
		if err != nil {
			continue
		}
		for _, p := range c.SnapshotEntries() {
			if err := writeRecord(wal.NewUpsertPoint(name, p.ID, p.Values, p.Payload)); err != nil {
				tmp.Close()
				return corerr.NewInternal("write snapshot point: %v", err)
			}
		}
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		return corerr.NewInternal("flush snapshot: %v", err)
	}
	if err := unix.Fdatasync(int(tmp.Fd())); err != nil {
		tmp.Close()
		return corerr.NewInternal("fsync snapshot: %v", err)
	}
	if err := tmp.Close(); err != nil {
		return corerr.NewInternal("close snapshot temp file: %v", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return corerr.NewInternal("rename snapshot into place: %v", err)
	}
	if dirF, err := os.Open(dir); err == nil {
		_ = dirF.Sync()
		_ = dirF.Close()
	}
	return nil
}

// Load reads the snapshot at path and reconstructs an Engine plus the
// generation it was taken at. A missing file is not an error: it means
// recovery starts from an empty engine and replays segments/WAL from
// scratch.
func Load(path string, capacityCap int) (*collection.Engine, uint64, error) {
	engine := collection.NewEngine(capacityCap)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return engine, 0, nil
		}
		return nil, 0, corerr.NewInternal("open snapshot %q: %v", path, err)
	}
	defer f.Close()

	var generation uint64
	reader := bufio.NewReader(f)
	for {
		line, readErr := reader.ReadBytes('\n')
		trimmed := trimNewline(line)
		if len(trimmed) > 0 {
			rec, parseErr := wal.UnmarshalRecord(trimmed)
			if parseErr != nil {
				break // truncated tail: tolerate, same as WAL replay
			}
			if rec.Type == wal.SnapshotHeader {
				generation = rec.Generation
			} else if err := Apply(engine, rec); err != nil {
				return nil, 0, err
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			return nil, 0, corerr.NewInternal("read snapshot: %v", readErr)
		}
	}
	return engine, generation, nil
}

func trimNewline(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		return b[:n-1]
	}
	return b
}

// Apply replays a single WAL/segment/snapshot record against engine,
// mirroring the mutation the record originally described. It bypasses the
// resource governor (the memory budget is not checked), but Collection.Upsert
// still enforces dimension, strict-finite, and the capacity cap the engine
// was loaded with, so a record violating those fails replay.
func Apply(engine *collection.Engine, r wal.Record) error {
	switch r.Type {
	case wal.SnapshotHeader:
		return nil
	case wal.CreateCollection:
		if _, err := engine.Get(r.Collection); err == nil {
			return nil // already present from an earlier pass
		}
		_, err := engine.Create(r.Collection, r.Dimension, r.Strict)
		return err
	case wal.DeleteCollection:
		_ = engine.Delete(r.Collection)
		return nil
	case wal.UpsertPoint:
		c, err := engine.Get(r.Collection)
		if err != nil {
			return fmt.Errorf("replay upsert into unknown collection %q: %w", r.Collection, err)
		}
		return c.Upsert(r.ID, r.Values, r.PayloadValues())
	case wal.DeletePoint:
		c, err := engine.Get(r.Collection)
		if err != nil {
			return nil // collection already gone; deletion is moot
		}
		c.Delete(r.ID)
		return nil
	case wal.SetPayload:
		c, err := engine.Get(r.Collection)
		if err != nil {
			return nil
		}
		c.SetPayload(r.IDs, r.FieldValues())
		return nil
	case wal.DeletePayload:
		c, err := engine.Get(r.Collection)
		if err != nil {
			return nil
		}
		c.DeletePayload(r.IDs, r.Keys)
		return nil
	default:
		return corerr.NewInternal("unknown record type %q during replay", r.Type)
	}
}
