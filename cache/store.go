// Package cache persists solver arrays keyed by topic and complex index so
// that partitions can be solved out of process and repeated solves can skip
// finished work.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/n0madic/go-discrete-choice/model"
)

// ErrNotFound is returned by Load when no entry exists.
var ErrNotFound = errors.New("cache entry not found")

// Store persists frames keyed by (topic, complex index).
type Store interface {
	// Store writes f, overwriting any previous entry.
	Store(ctx context.Context, topic string, ci model.ComplexIndex, f Frame) error
	// Load returns the entry or an error matching ErrNotFound.
	Load(ctx context.Context, topic string, ci model.ComplexIndex) (Frame, error)
	// Clear removes every entry.
	Clear(ctx context.Context) error
	Close() error
}

// EntryName returns the name of an entry: the complex index name followed
// by the frame and codec extensions.
func EntryName(topic string, ci model.ComplexIndex, c Codec) string {
	return ci.Name(topic) + ".dcf" + c.Ext()
}

// Open creates the store configured by opts.
func Open(opts model.Options, logger *slog.Logger) (Store, error) {
	codec, err := CodecByName(opts.CacheCompression)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.CacheBackend {
	case "", "file":
		return NewFileStore(opts.CachePath, codec)
	case "badger":
		cfg := DefaultBadgerConfig()
		cfg.Path = opts.CachePath
		cfg.Logger = logger
		return NewBadgerStore(cfg, codec)
	}
	return nil, &model.ConfigError{Field: "cache_backend", Reason: fmt.Sprintf("unknown backend %q", opts.CacheBackend)}
}
