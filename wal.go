package wal

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// enqueueSpins is the number of times LogMint yields and retries a full
// queue before blocking on it.
const enqueueSpins = 64

// WAL is a handle on an open value-store write-ahead log.
//
// Any number of goroutines may call LogMint and AwaitDurable concurrently.
// A single background writer performs all file I/O.
type WAL struct {
	cfg        Config
	logger     *zap.Logger
	registerer prometheus.Registerer
	openFile   fileOpener
	metrics    *metrics
	marks      *watermarks
	lock       *dirLock
	scan       ScanResult

	// enqueueMu serializes LSN allocation with the hand-off to the writer,
	// so records reach the writer in LSN order, and fences Close.
	enqueueMu sync.Mutex
	closed    atomic.Bool

	queue chan MintRecord
	stop  chan struct{}
	kick  chan struct{}
	done  chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// Open opens the write-ahead log described by cfg.
//
// The WAL and snapshots directories are created if they do not exist, and an
// exclusive lock is taken on the WAL directory for the lifetime of the
// handle. Existing segments are scanned, but not replayed; see
// HasInitialSegments.
func Open(cfg Config, options ...Option) (*WAL, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dir, err := filepath.Abs(cfg.WALDirectory)
	if err != nil {
		return nil, errors.Wrap(err, "open wal")
	}
	cfg.WALDirectory = dir

	w := &WAL{
		cfg:      cfg,
		logger:   zap.NewNop(),
		openFile: createSegmentFile,
		metrics:  newMetrics(),
		marks:    newWatermarks(),
	}
	for _, option := range options {
		if err := option(w); err != nil {
			return nil, errors.Wrap(err, "applying option")
		}
	}
	w.logger = w.logger.With(zap.String("wal_dir", dir))

	for _, d := range []string{cfg.WALDirectory, cfg.SnapshotsDirectory} {
		if err := ensureDir(d); err != nil {
			return nil, errors.Wrap(err, "open wal")
		}
	}

	lock, err := acquireDirLock(filepath.Join(dir, lockFileName))
	if err != nil {
		return nil, errors.Wrap(err, "open wal")
	}
	w.lock = lock

	if err := removeStaleTemps(dir, w.logger); err != nil {
		lock.release()
		return nil, errors.Wrap(err, "open wal")
	}
	if w.scan, err = scanSegments(dir, w.logger); err != nil {
		lock.release()
		return nil, errors.Wrap(err, "open wal")
	}
	if w.registerer != nil {
		if err := w.metrics.register(w.registerer); err != nil {
			w.metrics.unregister(w.registerer)
			lock.release()
			return nil, errors.Wrap(err, "open wal")
		}
	}

	w.queue = make(chan MintRecord, cfg.QueueCapacity)
	w.stop = make(chan struct{})
	w.kick = make(chan struct{}, 1)
	w.done = make(chan struct{})

	wr := &writer{
		cfg:      cfg,
		logger:   w.logger,
		metrics:  w.metrics,
		marks:    w.marks,
		openFile: w.openFile,
		queue:    w.queue,
		stop:     w.stop,
		kick:     w.kick,
		done:     w.done,
		seq:      w.scan.MaxSequence,
		buf:      make([]byte, 0, cfg.BatchBufferBytes),
	}
	go wr.run()

	w.logger.Info("opened wal",
		zap.Bool("initial_segments", w.scan.Found),
		zap.Int64("max_segment", w.scan.MaxSequence),
		zap.String("sync_policy", string(cfg.SyncPolicy)))
	return w, nil
}

// ensureDir creates dir if it does not exist, and checks that it is a
// directory we can read and write.
func ensureDir(dir string) error {
	if err := checkDirPerms(dir); err != nil && os.IsNotExist(errors.Cause(err)) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrap(err, "mkdir all")
		}
	} else if err != nil {
		return err
	}
	return nil
}

// LogMint records that id was assigned to the value described by kind,
// lexical, datatype and language, and returns the record's LSN.
//
// The record is queued for the background writer; use AwaitDurable to wait
// until it is on stable storage. When the queue is full, LogMint blocks
// until the writer makes room.
//
// LogMint returns ErrClosed after Close, and the writer's failure once the
// writer has failed.
func (w *WAL) LogMint(id int32, kind ValueKind, lexical, datatype, language string, hash int32) (LSN, error) {
	if !kind.Valid() {
		return ZeroLSN, errors.Errorf("log mint: invalid value kind %d", uint8(kind))
	}

	w.enqueueMu.Lock()
	defer w.enqueueMu.Unlock()
	if w.closed.Load() {
		return ZeroLSN, ErrClosed
	}
	if err := w.marks.err(); err != nil {
		return ZeroLSN, errors.Wrap(err, "log mint")
	}

	rec := MintRecord{
		LSN:      w.marks.allocate(),
		ID:       id,
		Kind:     kind,
		Lexical:  lexical,
		Datatype: datatype,
		Language: language,
		Hash:     hash,
	}
	if err := w.enqueue(rec); err != nil {
		return ZeroLSN, err
	}
	return rec.LSN, nil
}

// enqueue hands rec to the writer. w.enqueueMu must be held.
func (w *WAL) enqueue(rec MintRecord) error {
	select {
	case w.queue <- rec:
		return nil
	default:
	}

	w.metrics.queueFull.Inc()
	for i := 0; i < enqueueSpins; i++ {
		runtime.Gosched()
		select {
		case w.queue <- rec:
			return nil
		default:
		}
	}

	select {
	case w.queue <- rec:
		return nil
	case <-w.done:
		if err := w.marks.err(); err != nil {
			return errors.Wrap(err, "log mint")
		}
		return ErrClosed
	}
}

// AwaitDurable blocks until the record with the given LSN, and every record
// before it, is on stable storage.
//
// AwaitDurable returns immediately for an LSN that is not positive or has
// already been forced. It returns the writer's failure if the writer fails,
// and ErrClosed if the WAL is closed before lsn is forced. Waiting for an
// LSN that was never issued blocks until Close.
func (w *WAL) AwaitDurable(lsn LSN) error {
	return w.AwaitDurableContext(context.Background(), lsn)
}

// AwaitDurableContext is like AwaitDurable, but gives up when ctx is done.
// Giving up abandons only the wait; the record is still written.
func (w *WAL) AwaitDurableContext(ctx context.Context, lsn LSN) error {
	if lsn <= ZeroLSN {
		return nil
	}
	if err := w.marks.wait(ctx, lsn, w.wake); err != nil {
		return errors.Wrapf(err, "await durable %s", lsn)
	}
	return nil
}

// wake nudges the writer to look at a pending force request.
func (w *WAL) wake() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

// LastForcedLSN returns the highest LSN known to be on stable storage.
func (w *WAL) LastForcedLSN() LSN {
	return w.marks.lastForced()
}

// LastAppendedLSN returns the highest LSN handed to the active segment.
func (w *WAL) LastAppendedLSN() LSN {
	return w.marks.lastAppended()
}

// NextLSN returns the most recently allocated LSN.
func (w *WAL) NextLSN() LSN {
	return w.marks.nextLSN()
}

// HasInitialSegments reports whether segments existed when the WAL was
// opened, in which case the owning store should replay them.
func (w *WAL) HasInitialSegments() bool {
	return w.scan.Found
}

// InitialSequence returns the highest segment sequence number found when
// the WAL was opened.
func (w *WAL) InitialSequence() int64 {
	return w.scan.MaxSequence
}

// IsClosed reports whether Close has been called.
func (w *WAL) IsClosed() bool {
	return w.closed.Load()
}

// Dir returns the absolute path of the WAL directory.
func (w *WAL) Dir() string {
	return w.cfg.WALDirectory
}

// Close stops accepting records, waits for the writer to force everything
// queued before the call, and releases the directory lock.
//
// Close returns the writer's failure, if it failed. Calling Close more than
// once returns the result of the first call.
//
// Close implements the io.Closer interface.
func (w *WAL) Close() error {
	w.closeOnce.Do(func() {
		w.enqueueMu.Lock()
		w.closed.Store(true)
		w.enqueueMu.Unlock()

		close(w.stop)
		w.closeErr = w.shutdown()
	})
	return w.closeErr
}

// shutdown joins the writer. The lock is released on every path.
func (w *WAL) shutdown() (err error) {
	defer func() {
		if rerr := w.lock.release(); rerr != nil {
			err = multierr.Append(err, errors.Wrap(rerr, "release lock"))
		}
	}()

	<-w.done
	w.marks.close()
	if w.registerer != nil {
		w.metrics.unregister(w.registerer)
	}
	if ferr := w.marks.err(); ferr != nil {
		w.logger.Error("closed wal after writer failure", zap.Error(ferr))
		return errors.Wrap(ferr, "close")
	}
	w.logger.Info("closed wal", zap.Stringer("last_forced_lsn", w.marks.lastForced()))
	return nil
}
