package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/n0madic/go-discrete-choice/model"
)

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM. Useful for testing.
	InMemory bool

	SyncWrites bool

	// Logger receives badger's internal logs. Nil disables them.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns the configuration for persistent use.
func DefaultBadgerConfig() BadgerConfig {
	return BadgerConfig{SyncWrites: true}
}

// InMemoryBadgerConfig returns a configuration for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// BadgerStore keeps entries in an embedded badger database, keyed by entry
// name.
type BadgerStore struct {
	db    *badger.DB
	codec Codec
}

// NewBadgerStore opens the database described by cfg.
func NewBadgerStore(cfg BadgerConfig, codec Codec) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, &model.ConfigError{Field: "cache_path", Reason: "required for a persistent badger store"}
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}
	return &BadgerStore{db: db, codec: codec}, nil
}

func (s *BadgerStore) key(topic string, ci model.ComplexIndex) []byte {
	return []byte(EntryName(topic, ci, s.codec))
}

func (s *BadgerStore) Store(ctx context.Context, topic string, ci model.ComplexIndex, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeFrame(s.codec, f)
	if err != nil {
		return fmt.Errorf("store %s: %w", ci.Name(topic), err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(topic, ci), data)
	})
	if err != nil {
		return fmt.Errorf("store %s: %w", ci.Name(topic), err)
	}
	return nil
}

func (s *BadgerStore) Load(ctx context.Context, topic string, ci model.ComplexIndex) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(topic, ci))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return Frame{}, fmt.Errorf("%w: %s", ErrNotFound, ci.Name(topic))
	}
	if err != nil {
		return Frame{}, fmt.Errorf("load %s: %w", ci.Name(topic), err)
	}
	f, err := decodeFrame(s.codec, data)
	if err != nil {
		return Frame{}, fmt.Errorf("load %s: %w", ci.Name(topic), err)
	}
	return f, nil
}

// Clear drops every key.
func (s *BadgerStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.DropAll(); err != nil {
		return fmt.Errorf("clear badger store: %w", err)
	}
	return nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }
