package wal

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Option is a functional configuration type that can be used to configure
// the behaviour of a *WAL, beyond what its Config describes.
type Option func(*WAL) error

// WithLogger sets the logger used by the WAL and its writer. By default
// nothing is logged.
func WithLogger(logger *zap.Logger) Option {
	return func(w *WAL) error {
		if logger == nil {
			return errors.New("nil logger")
		}
		w.logger = logger
		return nil
	}
}

// WithRegisterer registers the WAL's metrics with reg.
//
// Collectors are registered once per WAL; opening two WALs against the same
// registerer without wrapping it (see prometheus.WrapRegistererWith) fails.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(w *WAL) error {
		if reg == nil {
			return errors.New("nil registerer")
		}
		w.registerer = reg
		return nil
	}
}

// withFileOpener replaces the function used to create segment files.
func withFileOpener(open fileOpener) Option {
	return func(w *WAL) error {
		w.openFile = open
		return nil
	}
}
