package wal

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// SyncPolicy controls when the writer forces the active segment to stable
// storage.
type SyncPolicy string

const (
	// SyncAlways forces after every batch of appended records. A vanished
	// active segment is fatal under this policy.
	SyncAlways SyncPolicy = "always"

	// SyncInterval forces at most once per Config.SyncInterval, unless a
	// caller is waiting in AwaitDurable.
	SyncInterval SyncPolicy = "interval"
)

// UnmarshalText implements the encoding.TextUnmarshaler interface.
// Policy names are matched case-insensitively.
func (p *SyncPolicy) UnmarshalText(b []byte) error {
	switch v := SyncPolicy(strings.ToLower(strings.TrimSpace(string(b)))); v {
	case SyncAlways, SyncInterval:
		*p = v
		return nil
	}
	return errors.Wrapf(ErrInvalidConfig, "unknown sync policy %q", string(b))
}

// Config holds the settings the owning store supplies when opening a WAL.
// It is not modified after Open.
type Config struct {
	WALDirectory       string        `yaml:"wal_directory"`
	SnapshotsDirectory string        `yaml:"snapshots_directory"`
	QueueCapacity      int           `yaml:"queue_capacity"`
	BatchBufferBytes   int           `yaml:"batch_buffer_bytes"`
	MaxSegmentBytes    int64         `yaml:"max_segment_bytes"`
	SyncPolicy         SyncPolicy    `yaml:"sync_policy"`
	SyncInterval       time.Duration `yaml:"sync_interval"`
	IdlePollInterval   time.Duration `yaml:"idle_poll_interval"`
	StoreID            string        `yaml:"store_id"`
}

const (
	DefaultQueueCapacity    = 16384
	DefaultBatchBufferBytes = 128 << 10
	DefaultMaxSegmentBytes  = 128 << 20
	DefaultSyncInterval     = 100 * time.Millisecond
	DefaultIdlePollInterval = 10 * time.Millisecond
	DefaultStoreID          = "valuestore"
)

// DefaultConfig returns a Config for dir with every other field set to its
// default. The snapshots directory is a sibling of dir.
func DefaultConfig(dir string) Config {
	return Config{WALDirectory: dir}.withDefaults()
}

// withDefaults returns a copy of c with zero-valued fields replaced by
// their defaults.
func (c Config) withDefaults() Config {
	if c.SnapshotsDirectory == "" && c.WALDirectory != "" {
		c.SnapshotsDirectory = siblingDir(c.WALDirectory, "snapshots")
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.BatchBufferBytes == 0 {
		c.BatchBufferBytes = DefaultBatchBufferBytes
	}
	if c.MaxSegmentBytes == 0 {
		c.MaxSegmentBytes = DefaultMaxSegmentBytes
	}
	if c.SyncPolicy == "" {
		c.SyncPolicy = SyncInterval
	}
	if c.SyncInterval == 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.IdlePollInterval == 0 {
		c.IdlePollInterval = DefaultIdlePollInterval
	}
	if c.StoreID == "" {
		c.StoreID = DefaultStoreID
	}
	return c
}

// Validate reports whether c can be used to open a WAL.
func (c Config) Validate() error {
	switch {
	case c.WALDirectory == "":
		return errors.Wrap(ErrInvalidConfig, "wal directory not set")
	case c.QueueCapacity < 1:
		return errors.Wrapf(ErrInvalidConfig, "queue capacity %d", c.QueueCapacity)
	case c.BatchBufferBytes < 1:
		return errors.Wrapf(ErrInvalidConfig, "batch buffer size %d", c.BatchBufferBytes)
	case c.MaxSegmentBytes < 1:
		return errors.Wrapf(ErrInvalidConfig, "max segment size %d", c.MaxSegmentBytes)
	case c.SyncInterval < 0:
		return errors.Wrapf(ErrInvalidConfig, "sync interval %s", c.SyncInterval)
	case c.IdlePollInterval <= 0:
		return errors.Wrapf(ErrInvalidConfig, "idle poll interval %s", c.IdlePollInterval)
	}
	switch c.SyncPolicy {
	case SyncAlways, SyncInterval:
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown sync policy %q", string(c.SyncPolicy))
	}
	return nil
}

// ParseConfig reads a YAML document from r. Fields left out of the document
// take their default values.
func ParseConfig(r io.Reader) (Config, error) {
	var c Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && err != io.EOF {
		return Config{}, errors.Wrap(err, "decode config")
	}
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "open config")
	}
	defer f.Close()
	c, err := ParseConfig(f)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load %s", path)
	}
	return c, nil
}
