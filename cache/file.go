package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/n0madic/go-discrete-choice/model"
)

// FileStore keeps one file per entry in a directory. Writes go to a
// temporary file that is renamed into place, so readers never observe a
// partial entry.
type FileStore struct {
	dir   string
	codec Codec
}

// NewFileStore creates dir if needed and returns a store over it.
func NewFileStore(dir string, codec Codec) (*FileStore, error) {
	if dir == "" {
		return nil, &model.ConfigError{Field: "cache_path", Reason: "must not be empty"}
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir, codec: codec}, nil
}

// Dir returns the cache directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the file path of an entry.
func (s *FileStore) Path(topic string, ci model.ComplexIndex) string {
	return filepath.Join(s.dir, EntryName(topic, ci, s.codec))
}

func (s *FileStore) Store(ctx context.Context, topic string, ci model.ComplexIndex, f Frame) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeFrame(s.codec, f)
	if err != nil {
		return fmt.Errorf("store %s: %w", ci.Name(topic), err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("store %s: %w", ci.Name(topic), err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store %s: %w", ci.Name(topic), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store %s: %w", ci.Name(topic), err)
	}
	if err := os.Rename(tmp.Name(), s.Path(topic, ci)); err != nil {
		return fmt.Errorf("store %s: %w", ci.Name(topic), err)
	}
	return nil
}

func (s *FileStore) Load(ctx context.Context, topic string, ci model.ComplexIndex) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	data, err := os.ReadFile(s.Path(topic, ci))
	if errors.Is(err, fs.ErrNotExist) {
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

// Clear removes the directory with everything in it and recreates it empty.
func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("clear cache directory %s: %w", s.dir, err)
	}
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("create cache directory %s: %w", s.dir, err)
	}
	return nil
}

// Prepare readies the directory for a fresh solve.
func (s *FileStore) Prepare(ctx context.Context) error { return s.Clear(ctx) }

func (s *FileStore) Close() error { return nil }
