package wal

import (
	"context"
	"sync"
	"sync/atomic"
)

// watermarks holds the durability cursors shared between producers and the
// writer. Producers advance next and requested; only the writer advances
// appended and forced.
//
// Waiters block on changed, which is closed and replaced whenever the
// forced watermark advances or the state becomes terminal.
type watermarks struct {
	next atomic.Int64

	mu        sync.Mutex
	appended  LSN
	forced    LSN
	requested LSN
	failure   error
	closed    bool
	changed   chan struct{}
}

func newWatermarks() *watermarks {
	return &watermarks{changed: make(chan struct{})}
}

// allocate returns the next LSN. Callers serialize allocation with the
// hand-off to the writer.
func (m *watermarks) allocate() LSN {
	return LSN(m.next.Add(1))
}

func (m *watermarks) nextLSN() LSN {
	return LSN(m.next.Load())
}

func (m *watermarks) lastAppended() LSN {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appended
}

func (m *watermarks) lastForced() LSN {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.forced
}

// forceRequested returns the highest LSN a caller is waiting on, if it is
// not yet forced.
func (m *watermarks) forceRequested() (LSN, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requested, m.requested > m.forced
}

func (m *watermarks) err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failure
}

func (m *watermarks) setAppended(lsn LSN) {
	m.mu.Lock()
	if lsn > m.appended {
		m.appended = lsn
	}
	m.mu.Unlock()
}

// setForced marks everything appended so far as durable.
func (m *watermarks) setForced() LSN {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appended > m.forced {
		m.forced = m.appended
		m.broadcast()
	}
	return m.forced
}

// fail records err as the terminal failure. The first failure wins.
func (m *watermarks) fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failure == nil {
		m.failure = err
		m.broadcast()
	}
}

func (m *watermarks) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		m.broadcast()
	}
}

// broadcast wakes every waiter. m.mu must be held.
func (m *watermarks) broadcast() {
	close(m.changed)
	m.changed = make(chan struct{})
}

// wait blocks until lsn is forced, the state becomes terminal, or ctx is
// done. kick is called after registering the request so the writer can act
// on it.
func (m *watermarks) wait(ctx context.Context, lsn LSN, kick func()) error {
	for {
		m.mu.Lock()
		if m.forced >= lsn {
			m.mu.Unlock()
			return nil
		}
		if m.failure != nil {
			err := m.failure
			m.mu.Unlock()
			return err
		}
		if m.closed {
			m.mu.Unlock()
			return ErrClosed
		}
		if lsn > m.requested {
			m.requested = lsn
		}
		changed := m.changed
		m.mu.Unlock()

		kick()
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
