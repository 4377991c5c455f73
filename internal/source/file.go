package source

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileSource reads flags from a local JSON or YAML file.
//
// The version starts at 1 and is bumped only when the file content changes,
// so re-reading an untouched file yields the same snapshot.
type FileSource struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	digest  [sha256.Size]byte
	current *Snapshot
}

var (
	_ Source  = (*FileSource)(nil)
	_ Watcher = (*FileSource)(nil)
)

// NewFileSource creates a source for the file at path.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		path:   path,
		logger: logger.With("component", "file_source", "path", path),
	}
}

// Fetch reads and validates the file.
func (s *FileSource) Fetch(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read flag file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	digest := sha256.Sum256(data)
	if s.current != nil && digest == s.digest {
		return s.current, nil
	}

	flags, err := ParseFlags(data)
	if err != nil {
		return nil, fmt.Errorf("flag file %s: %w", s.path, err)
	}

	var version int64 = 1
	if s.current != nil {
		version = s.current.Version + 1
	}

	s.current = NewSnapshot(version, flags, s.logger)
	s.digest = digest
	return s.current, nil
}

// Watch notifies on writes to the file. The parent directory is watched so
// that editors replacing the file through a rename are noticed too.
func (s *FileSource) Watch(ctx context.Context, notify func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	const relevant = fsnotify.Write | fsnotify.Create | fsnotify.Rename | fsnotify.Remove

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&relevant == 0 {
				continue
			}
			s.logger.Debug("flag file changed", "op", event.Op.String())
			notify()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("file watcher error", "error", err)
		}
	}
}
