package geocache

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-json"
)

// ErrNoDocument is returned by Store.Load when nothing has been persisted yet.
var ErrNoDocument = errors.New("no cache document")

// Store is the durable backing of a Cache. The whole entry set is read and
// written at once.
type Store[T any] interface {
	Load() (map[string]Entry[T], error)
	Save(entries map[string]Entry[T]) error
	Purge() error
}

// FileStore keeps the entry set as a single JSON document on disk.
type FileStore[T any] struct {
	path string
}

// NewFileStore creates a store writing to path.
func NewFileStore[T any](path string) *FileStore[T] {
	return &FileStore[T]{path: path}
}

// Path returns the document location.
func (s *FileStore[T]) Path() string {
	return s.path
}

// Load reads the document. A missing file yields ErrNoDocument.
func (s *FileStore[T]) Load() (map[string]Entry[T], error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoDocument
		}
		return nil, errors.Wrap(err, "failed to read cache document")
	}

	entries := make(map[string]Entry[T])
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.Wrapf(err, "failed to decode cache document %s", s.path)
	}
	return entries, nil
}

// Save replaces the document atomically: the entries are written to a
// temporary file in the same directory which is then renamed over the target.
func (s *FileStore[T]) Save(entries map[string]Entry[T]) error {
	if entries == nil {
		entries = map[string]Entry[T]{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "failed to encode cache document")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "failed to create cache directory")
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary cache document")
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to write cache document")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to sync cache document")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close cache document")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return errors.Wrap(err, "failed to replace cache document")
	}
	return nil
}

// Purge deletes the document. Purging a missing document is not an error.
func (s *FileStore[T]) Purge() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "failed to delete cache document")
	}
	return nil
}

// nopStore backs a cache that lives in memory only.
type nopStore[T any] struct{}

func (nopStore[T]) Load() (map[string]Entry[T], error) { return nil, ErrNoDocument }
func (nopStore[T]) Save(map[string]Entry[T]) error     { return nil }
func (nopStore[T]) Purge() error                       { return nil }
