// Package file persists session keys in a single JSON document on disk so the
// session survives between CLI invocations.
//
// Every operation re-reads the document, so changes written by another
// process are always observed. Writes go to a temporary file in the same
// directory which is then renamed over the document.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tablewait/waitlist-admin/storage"
)

const (
	fileMode = 0o600
	dirMode  = 0o700

	documentVersion = 1
)

// DefaultPath returns the per-user session file location,
// typically ~/.config/waitlist-admin/session.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(dir, "waitlist-admin", "session.json"), nil
}

// Storage implements storage.Storage and storage.Watcher on top of a JSON file.
type Storage struct {
	path string
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Option configures the file store.
type Option func(*Storage)

// WithLogger sets the logger used for watch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Storage) {
		if l != nil {
			s.log = l
		}
	}
}

type document struct {
	Version int                   `json:"version"`
	Items   map[string]storedItem `json:"items"`
}

type storedItem struct {
	Data      []byte     `json:"data"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// New returns a store backed by path. The parent directory is created with
// owner-only permissions; the file itself is created lazily on first write.
func New(path string, opts ...Option) (*Storage, error) {
	if path == "" {
		return nil, errors.New("file: path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("file: resolve path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), dirMode); err != nil {
		return nil, fmt.Errorf("file: create directory: %w", err)
	}
	s := &Storage{path: abs, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path reports the backing file.
func (s *Storage) Path() string { return s.path }

// Get retrieves data for a specific key within the given namespace
func (s *Storage) Get(ctx context.Context, key string, opts ...storage.Option) (*storage.Item, error) {
	options := storage.Apply(opts...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, os.ErrClosed
	}

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	stored, ok := doc.Items[buildKey(options.Namespace, key)]
	if !ok {
		return nil, nil
	}
	item := &storage.Item{Data: stored.Data, CreatedAt: stored.CreatedAt, ExpiresAt: stored.ExpiresAt}
	if item.IsExpired() {
		return nil, nil
	}
	if item.Data == nil {
		item.Data = []byte{}
	}
	return item, nil
}

// Set stores data for a specific key within the given namespace
func (s *Storage) Set(ctx context.Context, key string, data []byte, opts ...storage.Option) error {
	options := storage.Apply(opts...)
	if options.TTL != nil && *options.TTL <= 0 {
		return storage.ErrInvalidOptions
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}

	doc, err := s.load()
	if err != nil {
		return err
	}

	k := buildKey(options.Namespace, key)
	// Rewriting an identical value would wake every watcher for nothing.
	if prev, ok := doc.Items[k]; ok && options.TTL == nil && prev.ExpiresAt == nil && string(prev.Data) == string(data) {
		return nil
	}

	now := time.Now()
	item := storedItem{Data: append([]byte(nil), data...), CreatedAt: now}
	if options.TTL != nil {
		exp := now.Add(*options.TTL)
		item.ExpiresAt = &exp
	}
	doc.Items[k] = item
	doc.prune(now)
	return s.save(doc)
}

// Delete removes data within the given namespace
func (s *Storage) Delete(ctx context.Context, opts ...storage.Option) error {
	options := storage.Apply(opts...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return os.ErrClosed
	}

	doc, err := s.load()
	if err != nil {
		return err
	}

	removed := false
	if options.Key != nil {
		k := buildKey(options.Namespace, *options.Key)
		if _, ok := doc.Items[k]; ok {
			delete(doc.Items, k)
			removed = true
		}
	} else {
		prefix := storage.NamespaceName(options.Namespace) + ":key:"
		for k := range doc.Items {
			if strings.HasPrefix(k, prefix) {
				delete(doc.Items, k)
				removed = true
			}
		}
	}
	if !removed {
		return nil
	}
	return s.save(doc)
}

// Close marks the store closed. The file is left in place.
func (s *Storage) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Watch reports changes to the backing file until ctx is done. Bursts of
// filesystem events collapse into a single pending signal.
func (s *Storage) Watch(ctx context.Context) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("file: watcher unavailable: %w", err)
	}
	// The document is replaced by rename, so the directory is watched
	// rather than the file's inode.
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("file: watch %s: %w", filepath.Dir(s.path), err)
	}

	out := make(chan struct{}, 1)
	name := filepath.Base(s.path)

	go func() {
		defer close(out)
		defer func() { _ = w.Close() }()

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != name {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Debug("storage.file.watch_error", slog.String("err", err.Error()))
			}
		}
	}()

	return out, nil
}

func (s *Storage) load() (*document, error) {
	doc := &document{Version: documentVersion, Items: map[string]storedItem{}}

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file: read %s: %w", s.path, err)
	}
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, doc); err != nil {
		return nil, fmt.Errorf("file: decode %s: %w", s.path, err)
	}
	if doc.Items == nil {
		doc.Items = map[string]storedItem{}
	}
	return doc, nil
}

func (s *Storage) save(doc *document) error {
	doc.Version = documentVersion
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("file: encode: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("file: create temp: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(fileMode); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file: chmod temp: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("file: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("file: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("file: replace %s: %w", s.path, err)
	}
	return nil
}

func (d *document) prune(now time.Time) {
	for k, it := range d.Items {
		if it.ExpiresAt != nil && now.After(*it.ExpiresAt) {
			delete(d.Items, k)
		}
	}
}

func buildKey(namespace storage.Namespace, key string) string {
	return storage.NamespaceName(namespace) + ":key:" + key
}

var (
	_ storage.Storage = (*Storage)(nil)
	_ storage.Watcher = (*Storage)(nil)
)
