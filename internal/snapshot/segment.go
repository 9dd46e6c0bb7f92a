package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/edgevdb/core/internal/corerr"
	"github.com/edgevdb/core/internal/metrics"
	"github.com/edgevdb/core/internal/wal"
	"go.uber.org/zap"
)

const segmentPrefix = "segment-"
const segmentSuffix = ".log"

// SegmentManager owns the numbered incremental segment files written
// between snapshots: each is WAL-formatted, holds the mutations recorded
// since the last snapshot or segment rotation, and is folded into the next
// snapshot during compaction (spec.md §4.2's "incremental segment
// manager").
type SegmentManager struct {
	dir     string
	nextSeq int
}

// NewSegmentManager scans dir for existing segment files and resumes
// numbering after the highest one found.
func NewSegmentManager(dir string) (*SegmentManager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, corerr.NewInternal("create segment dir %q: %v", dir, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, corerr.NewInternal("read segment dir %q: %v", dir, err)
	}
	next := 0
	for _, e := range entries {
		if seq, ok := parseSegmentSeq(e.Name()); ok && seq >= next {
			next = seq + 1
		}
	}
	return &SegmentManager{dir: dir, nextSeq: next}, nil
}

func parseSegmentSeq(name string) (int, bool) {
	if !strings.HasPrefix(name, segmentPrefix) || !strings.HasSuffix(name, segmentSuffix) {
		return 0, false
	}
	middle := strings.TrimSuffix(strings.TrimPrefix(name, segmentPrefix), segmentSuffix)
	seq, err := strconv.Atoi(middle)
	if err != nil {
		return 0, false
	}
	return seq, true
}

// Create opens a new, empty segment file and returns a WAL writer over it
// along with its path. The caller is responsible for closing the WAL.
func (m *SegmentManager) Create(cfg wal.Config, reg *metrics.Registry, logger *zap.Logger) (*wal.WAL, string, error) {
	path := m.AllocatePath()
	w, err := wal.Open(path, cfg, reg, logger)
	if err != nil {
		return nil, "", err
	}
	return w, path, nil
}

// AllocatePath reserves the next sequence number and returns the segment
// path for it, without opening a WAL over it. For callers that populate the
// segment file by other means (e.g. renaming an existing file into place)
// and so have no use for a live WAL writer or its background goroutine.
func (m *SegmentManager) AllocatePath() string {
	path := filepath.Join(m.dir, fmt.Sprintf("%s%08d%s", segmentPrefix, m.nextSeq, segmentSuffix))
	m.nextSeq++
	return path
}

// List returns every segment file path, ordered by ascending sequence
// number (i.e. the order they must be replayed in).
func (m *SegmentManager) List() ([]string, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, corerr.NewInternal("read segment dir %q: %v", m.dir, err)
	}
	type numbered struct {
		seq  int
		path string
	}
	var found []numbered
	for _, e := range entries {
		if seq, ok := parseSegmentSeq(e.Name()); ok {
			found = append(found, numbered{seq: seq, path: filepath.Join(m.dir, e.Name())})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })
	paths := make([]string, len(found))
	for i, n := range found {
		paths[i] = n.path
	}
	return paths, nil
}

// Compact removes every existing segment file: called after their content
// has been folded into a fresh snapshot (spec.md §4.2's checkpoint
// compaction), so recovery never has to replay them again.
func (m *SegmentManager) Compact() error {
	paths, err := m.List()
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return corerr.NewInternal("remove compacted segment %q: %v", p, err)
		}
	}
	return nil
}
