package keyindex

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

const lockRetryDelay = 10 * time.Millisecond

// FileIndex persists the document as a JSON file.
//
// Writers hold a process mutex and an exclusive flock on "<path>.lock" for the
// whole read-modify-write. The file itself is replaced by rename, so readers
// never observe a partial document.
type FileIndex struct {
	path   string
	mu     sync.Mutex
	lock   *flock.Flock
	logger *zap.Logger
}

// FileOption configures a FileIndex.
type FileOption func(*FileIndex)

// WithFileLogger sets the logger.
func WithFileLogger(logger *zap.Logger) FileOption {
	return func(f *FileIndex) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFileIndex creates an index stored at path. The file is created lazily.
func NewFileIndex(path string, opts ...FileOption) *FileIndex {
	f := &FileIndex{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = f.logger.With(zap.String("component", "keyindex.file"), zap.String("path", path))
	return f
}

// Path returns the document location.
func (f *FileIndex) Path() string {
	return f.path
}

// Append implements Index.
func (f *FileIndex) Append(ctx context.Context, entity, key string) error {
	return f.update(ctx, func(doc Document) bool {
		return doc.Add(entity, key)
	})
}

// Flush implements Index.
func (f *FileIndex) Flush(ctx context.Context, entity string) ([]string, error) {
	var keys []string
	err := f.update(ctx, func(doc Document) bool {
		keys = doc.Take(entity)
		return len(keys) > 0
	})
	if err != nil {
		return nil, err
	}
	f.logger.Debug("flushed entity", zap.String("entity", entity), zap.Int("keys", len(keys)))
	return keys, nil
}

// Load implements Index. A missing file is an empty document.
func (f *FileIndex) Load(ctx context.Context) (Document, error) {
	return f.read()
}

// update runs mutate against the current document inside the critical
// section and persists the result when mutate reports a change.
func (f *FileIndex) update(ctx context.Context, mutate func(Document) bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("keyindex: create dir: %w", err)
	}

	locked, err := f.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("keyindex: acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("keyindex: acquire lock: %w", ctx.Err())
	}
	defer func() {
		if err := f.lock.Unlock(); err != nil {
			f.logger.Warn("release lock failed", zap.Error(err))
		}
	}()

	doc, err := f.read()
	if err != nil {
		return err
	}
	if !mutate(doc) {
		return nil
	}
	return f.write(doc)
}

func (f *FileIndex) read() (Document, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("keyindex: read %s: %w", f.path, err)
	}
	return Decode(data)
}

func (f *FileIndex) write(doc Document) error {
	data, err := Encode(doc)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("keyindex: create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("keyindex: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("keyindex: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("keyindex: close temp: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("keyindex: replace %s: %w", f.path, err)
	}
	return nil
}
