package wal

import (
	"bufio"
	"bytes"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/edgevdb/core/internal/corerr"
	"github.com/edgevdb/core/internal/metrics"
)

// Config controls the WAL's durability and group-commit behavior
// (spec.md §4.2, §6).
type Config struct {
	SyncOnWrite             bool
	SyncEveryNWrites        int
	SyncIntervalSeconds     int
	GroupCommitMaxBatch     int
	GroupCommitFlushDelayMs int
}

type writeRequest struct {
	data []byte
	done chan error
}

// WAL is the append-only write-ahead log: a single-producer-per-writer,
// single-consumer queue feeding a dedicated commit coordinator goroutine
// (spec.md §5, §9), so records from concurrent writers are totally ordered
// by enqueue time and batch boundaries.
type WAL struct {
	path string
	file *os.File
	cfg  Config

	enqueueCh chan *writeRequest
	quit      chan struct{}
	wg        sync.WaitGroup

	appendedSinceSync int
	closeOnce         sync.Once

	metrics *metrics.Registry
	logger  *zap.Logger
}

// Open opens (or creates) the WAL file at path and starts its commit
// coordinator. Existing content is preserved; callers replay it via
// Replay before issuing new appends.
func Open(path string, cfg Config, reg *metrics.Registry, logger *zap.Logger) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, corerr.NewInternal("open WAL %q: %v", path, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &WAL{
		path:      path,
		file:      f,
		cfg:       cfg,
		enqueueCh: make(chan *writeRequest, 256),
		quit:      make(chan struct{}),
		metrics:   reg,
		logger:    logger,
	}
	w.wg.Add(1)
	go w.commitLoop()

	if !cfg.SyncOnWrite && cfg.SyncIntervalSeconds > 0 {
		w.wg.Add(1)
		go w.intervalSyncLoop(time.Duration(cfg.SyncIntervalSeconds) * time.Second)
	}
	return w, nil
}

// Append enqueues record and blocks until its batch has been durably
// handled per the configured sync policy, returning any I/O error.
func (w *WAL) Append(r Record) error {
	data, err := r.marshal()
	if err != nil {
		return corerr.NewInternal("marshal WAL record: %v", err)
	}
	data = append(data, '\n')

	req := &writeRequest{data: data, done: make(chan error, 1)}
	select {
	case w.enqueueCh <- req:
	case <-w.quit:
		return corerr.NewUnavailable("WAL is closed")
	}
	return <-req.done
}

// commitLoop is the single consumer: it drains up to GroupCommitMaxBatch
// requests (or waits up to GroupCommitFlushDelayMs for more to coalesce),
// performs one append syscall per batch, fsyncs according to the
// configured policy, and releases waiters in enqueue order.
func (w *WAL) commitLoop() {
	defer w.wg.Done()
	maxBatch := w.cfg.GroupCommitMaxBatch
	if maxBatch <= 0 {
		maxBatch = 1
	}
	flushDelay := time.Duration(w.cfg.GroupCommitFlushDelayMs) * time.Millisecond

	for {
		var req *writeRequest
		select {
		case req = <-w.enqueueCh:
		case <-w.quit:
			return
		}

		batch := []*writeRequest{req}
		if flushDelay > 0 {
			timer := time.NewTimer(flushDelay)
		drain:
			for len(batch) < maxBatch {
				select {
				case next := <-w.enqueueCh:
					batch = append(batch, next)
				case <-timer.C:
					break drain
				case <-w.quit:
					timer.Stop()
					break drain
				}
			}
			timer.Stop()
		} else {
			for len(batch) < maxBatch {
				select {
				case next := <-w.enqueueCh:
					batch = append(batch, next)
				default:
					goto write
				}
			}
		}
	write:
		w.commitBatch(batch)
	}
}

func (w *WAL) commitBatch(batch []*writeRequest) {
	var buf bytes.Buffer
	for _, req := range batch {
		buf.Write(req.data)
	}

	_, err := w.file.Write(buf.Bytes())
	if err != nil {
		if w.metrics != nil {
			w.metrics.WALWriteErrorsTotal.Inc()
		}
		w.logger.Error("WAL append failed", zap.Error(err))
		for _, req := range batch {
			req.done <- corerr.NewInternal("WAL append: %v", err)
		}
		return
	}
	if w.metrics != nil {
		w.metrics.WALAppendedTotal.Add(float64(len(batch)))
	}
	w.appendedSinceSync += len(batch)

	needSync := w.cfg.SyncOnWrite ||
		(w.cfg.SyncEveryNWrites > 0 && w.appendedSinceSync >= w.cfg.SyncEveryNWrites)

	var syncErr error
	if needSync {
		syncErr = w.fsync()
		w.appendedSinceSync = 0
	}

	if syncErr != nil {
		if w.metrics != nil {
			w.metrics.WALWriteErrorsTotal.Inc()
		}
		w.logger.Error("WAL fsync failed", zap.Error(syncErr))
	}
	for _, req := range batch {
		req.done <- syncErr
	}
}

func (w *WAL) fsync() error {
	if err := unix.Fdatasync(int(w.file.Fd())); err != nil {
		return corerr.NewInternal("WAL fdatasync: %v", err)
	}
	return nil
}

func (w *WAL) intervalSyncLoop(interval time.Duration) {
	defer w.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.fsync(); err != nil {
				w.logger.Error("WAL interval fsync failed", zap.Error(err))
				if w.metrics != nil {
					w.metrics.WALWriteErrorsTotal.Inc()
				}
			}
		case <-w.quit:
			return
		}
	}
}

// ReplayResult carries every well-formed record found plus whether the
// final line was left open (unparseable or truncated): spec.md §4.2's
// wal_tail_open condition.
type ReplayResult struct {
	Records  []Record
	TailOpen bool
}

// Replay reads every complete record from the WAL file in append order. A
// line that fails to parse (typically a final record cut short by a crash)
// is tolerated: replay stops there and reports it via TailOpen rather than
// treating it as a fatal error (spec.md §4.2, §8). A last line that lacks
// its newline but parses is returned as an ordinary record.
func Replay(path string) (ReplayResult, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ReplayResult{}, nil
		}
		return ReplayResult{}, corerr.NewInternal("open WAL for replay: %v", err)
	}
	defer f.Close()

	var result ReplayResult
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		trimmed := bytes.TrimRight(line, "\n")
		if len(trimmed) > 0 {
			rec, parseErr := unmarshalRecord(trimmed)
			if parseErr != nil {
				result.TailOpen = true
				break
			}
			result.Records = append(result.Records, rec)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return result, corerr.NewInternal("read WAL: %v", err)
		}
	}
	return result, nil
}

// Clear truncates the WAL file to empty. The engine's checkpoint does not
// call it; it truncates the file by path after copying it to a segment.
func (w *WAL) Clear() error {
	if err := w.file.Truncate(0); err != nil {
		return corerr.NewInternal("truncate WAL: %v", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return corerr.NewInternal("seek WAL: %v", err)
	}
	return nil
}

// Close stops the commit coordinator and closes the underlying file.
func (w *WAL) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.quit)
		w.wg.Wait()
		err = w.file.Close()
	})
	return err
}
