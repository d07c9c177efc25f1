package wal

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// writer owns the active segment. Exactly one writer runs per *WAL, in its
// own goroutine, and it alone touches segment files.
type writer struct {
	cfg      Config
	logger   *zap.Logger
	metrics  *metrics
	marks    *watermarks
	openFile fileOpener

	queue <-chan MintRecord
	stop  <-chan struct{}
	kick  <-chan struct{}
	done  chan<- struct{}

	seq    int64 // Sequence number of the most recently started segment.
	active *segment

	buf            []byte // Frames not yet handed to the active file.
	pendingFirstID int32  // ID of the first record in buf.
	pendingRecords int

	unforced  bool // Records were appended since the last force.
	lastForce time.Time
}

func (w *writer) run() {
	defer close(w.done)
	w.lastForce = time.Now()

	err := w.loop()
	if err == nil {
		return
	}
	w.logger.Error("wal writer failed", zap.Error(err))
	w.marks.fail(err)
	if w.active != nil {
		w.active.file.Close()
		w.active = nil
	}
}

func (w *writer) loop() error {
	timer := time.NewTimer(w.cfg.IdlePollInterval)
	defer timer.Stop()

	for {
		idle := false
		select {
		case rec := <-w.queue:
			if err := w.appendAvailable(rec); err != nil {
				return err
			}
		case <-w.kick:
		case <-w.stop:
			return w.shutdown()
		case <-timer.C:
			idle = true
		}
		if err := w.sync(idle); err != nil {
			return err
		}
		timer.Reset(w.cfg.IdlePollInterval)
	}
}

// appendAvailable appends rec, along with whatever else is already waiting
// in the queue, bounded by the queue's capacity.
func (w *writer) appendAvailable(rec MintRecord) error {
	if err := w.append(rec); err != nil {
		return err
	}
	for i := 0; i < w.cfg.QueueCapacity; i++ {
		select {
		case rec := <-w.queue:
			if err := w.append(rec); err != nil {
				return err
			}
		default:
			return nil
		}
	}
	return nil
}

// sync decides whether the active segment needs flushing or forcing after
// the writer woke up.
func (w *writer) sync(idle bool) error {
	if !w.unforced {
		return nil
	}
	if _, pending := w.marks.forceRequested(); pending {
		return w.force()
	}
	switch w.cfg.SyncPolicy {
	case SyncAlways:
		return w.force()
	case SyncInterval:
		if time.Since(w.lastForce) >= w.cfg.SyncInterval {
			return w.force()
		}
	}
	if idle {
		return w.flush()
	}
	return nil
}

// shutdown drains the queue, forces everything appended, and closes the
// active segment. The active segment is left uncompressed.
func (w *writer) shutdown() error {
	for drained := false; !drained; {
		select {
		case rec := <-w.queue:
			if err := w.append(rec); err != nil {
				return err
			}
		default:
			drained = true
		}
	}
	if w.unforced || len(w.buf) > 0 {
		if err := w.force(); err != nil {
			return err
		}
	}
	if w.active == nil {
		return nil
	}
	err := w.active.file.Close()
	w.active = nil
	return errors.Wrap(err, "close active segment")
}

// append encodes rec and adds it to the active segment, rotating first if
// the frame would push the segment past its size limit.
func (w *writer) append(rec MintRecord) error {
	frame, err := EncodeFrame(rec)
	if err != nil {
		return errors.Wrapf(err, "encode lsn %s", rec.LSN)
	}
	if w.active != nil && w.active.records > 0 && int64(len(frame)) > w.active.remaining(w.cfg.MaxSegmentBytes) {
		if err := w.rotate(); err != nil {
			return err
		}
	}
	if w.active == nil {
		if err := w.startSegment(rec.ID); err != nil {
			return err
		}
	}
	if err := w.buffer(frame, rec.ID); err != nil {
		return err
	}
	w.active.lastID = rec.ID
	w.active.records++
	w.unforced = true
	w.marks.setAppended(rec.LSN)
	w.metrics.recordsAppended.Inc()
	w.metrics.lastAppended.Set(float64(rec.LSN))
	return nil
}

// buffer adds a record frame to the batch buffer, flushing before it if it
// would not fit, and after it if the buffer is full.
func (w *writer) buffer(frame []byte, id int32) error {
	limit := w.cfg.BatchBufferBytes
	if len(w.buf) > 0 && len(w.buf)+len(frame) > limit {
		if err := w.flush(); err != nil {
			return err
		}
	}
	if w.pendingRecords == 0 {
		w.pendingFirstID = id
	}
	w.buf = append(w.buf, frame...)
	w.pendingRecords++
	w.active.size += int64(len(frame))
	if len(w.buf) >= limit {
		return w.flush()
	}
	return nil
}

// flush hands the batch buffer to the active segment file.
func (w *writer) flush() error {
	if len(w.buf) == 0 || w.active == nil {
		return nil
	}
	if _, err := os.Stat(w.active.path); os.IsNotExist(err) {
		if err := w.replaceMissing(); err != nil {
			return err
		}
	}
	n, err := w.active.file.Write(w.buf)
	w.active.flushed += int64(n)
	w.metrics.bytesWritten.Add(float64(n))
	if err != nil {
		return errors.Wrapf(err, "write segment %s", w.active.path)
	}
	w.buf = w.buf[:0]
	if cap(w.buf) > w.cfg.BatchBufferBytes {
		w.buf = make([]byte, 0, w.cfg.BatchBufferBytes)
	}
	w.pendingRecords = 0
	return nil
}

// force flushes the batch buffer and commits the active segment to stable
// storage, advancing the forced watermark to everything appended so far.
func (w *writer) force() error {
	if err := w.flush(); err != nil {
		return err
	}
	if w.active != nil {
		if err := w.active.file.Sync(); err != nil {
			return errors.Wrapf(err, "sync segment %s", w.active.path)
		}
		w.metrics.fsyncs.Inc()
	}
	forced := w.marks.setForced()
	w.metrics.lastForced.Set(float64(forced))
	w.unforced = false
	w.lastForce = time.Now()
	return nil
}

// rotate finalizes the active segment: it is forced, closed and then
// compressed. The next append starts a new segment.
func (w *writer) rotate() error {
	if err := w.force(); err != nil {
		return err
	}
	old := w.active
	w.active = nil
	if err := old.file.Close(); err != nil {
		return errors.Wrapf(err, "close segment %s", old.path)
	}
	w.metrics.rotations.Inc()
	w.logger.Info("finalized segment",
		zap.Int64("segment", old.seq),
		zap.String("path", old.path),
		zap.Int32("first_id", old.firstID),
		zap.Int32("last_id", old.lastID),
		zap.Int64("bytes", old.size))
	w.compress(old)
	return nil
}

// compress replaces a finalized segment with its compressed form. Failures
// only cost disk space; the original segment is kept.
func (w *writer) compress(seg *segment) {
	dst, err := compressSegment(seg.path, seg.lastID)
	if err != nil {
		w.metrics.compressions.WithLabelValues("failed").Inc()
		w.logger.Warn("segment compression skipped",
			zap.String("path", seg.path),
			zap.Error(err))
		return
	}
	w.metrics.compressions.WithLabelValues("ok").Inc()
	w.logger.Debug("compressed segment", zap.String("path", dst))
}

// startSegment creates a new active segment. Its header is written and
// forced before the directory entry is synced.
func (w *writer) startSegment(firstID int32) error {
	seq := w.seq + 1
	path := filepath.Join(w.cfg.WALDirectory, segmentFileName(firstID))
	frame, err := EncodeFrame(SegmentHeader{
		Version: FormatVersion,
		Store:   w.cfg.StoreID,
		Engine:  EngineTag,
		Created: time.Now().Unix(),
		Segment: seq,
		FirstID: firstID,
	})
	if err != nil {
		return err
	}
	f, err := w.openFile(path)
	if os.IsExist(errors.Cause(err)) {
		w.logger.Error("segment file already exists",
			zap.String("path", path),
			zap.Int32("first_id", firstID))
		return errors.Wrap(ErrSegmentExists, path)
	} else if err != nil {
		return errors.Wrap(err, "create segment")
	}
	n, err := f.Write(frame)
	w.metrics.bytesWritten.Add(float64(n))
	if err != nil {
		f.Close()
		return errors.Wrapf(err, "write header %s", path)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrapf(err, "sync header %s", path)
	}
	w.metrics.fsyncs.Inc()
	if err := syncDir(w.cfg.WALDirectory); err != nil {
		f.Close()
		return err
	}
	w.seq = seq
	w.active = &segment{
		file:    f,
		path:    path,
		seq:     seq,
		firstID: firstID,
		lastID:  firstID,
		size:    int64(len(frame)),
		flushed: int64(len(frame)),
	}
	w.logger.Debug("started segment",
		zap.Int64("segment", seq),
		zap.String("path", path))
	return nil
}

// replaceMissing handles an active segment file that was removed from
// under the writer. Under SyncInterval the buffered records are carried
// into a freshly started segment; records already written to the missing
// file are gone. Under SyncAlways it is fatal.
func (w *writer) replaceMissing() error {
	old := w.active
	if w.cfg.SyncPolicy == SyncAlways {
		return errors.Wrap(ErrSegmentMissing, old.path)
	}
	w.logger.Error("active segment vanished, continuing in a new segment",
		zap.String("path", old.path),
		zap.Int64("segment", old.seq),
		zap.Int("carried_records", w.pendingRecords))

	carry := append([]byte(nil), w.buf...)
	firstID, records := old.firstID, w.pendingRecords
	if records > 0 {
		firstID = w.pendingFirstID
	}
	old.file.Close()

	w.active = nil
	w.buf = w.buf[:0]
	if err := w.startSegment(firstID); err != nil {
		return err
	}
	w.buf = append(w.buf, carry...)
	w.active.size += int64(len(carry))
	w.active.records = records
	w.active.lastID = old.lastID
	w.pendingFirstID = firstID
	w.pendingRecords = records
	return nil
}
