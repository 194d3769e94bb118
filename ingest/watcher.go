// Package ingest uploads conversation logs dropped into a directory.
//
// The watcher uses fsnotify and falls back to polling the directory when
// notifications are unavailable. Each file is uploaded at most once per
// Watcher, labelled with its file name.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/randalmurphal/autodev/api"
)

// Uploader sends one file. *api.SourcesService satisfies it.
type Uploader interface {
	Upload(ctx context.Context, req api.UploadRequest) (api.Source, error)
}

// Result reports the outcome for one file.
type Result struct {
	Path   string
	Source api.Source
	Err    error
}

// Config controls a Watcher.
type Config struct {
	// Dir is the drop folder. Required.
	Dir string

	// Extensions lists accepted suffixes, e.g. ".txt". Case-insensitive.
	Extensions []string

	// ProjectID is attached to every upload.
	ProjectID string

	// Settle is how long a file must stay unchanged before upload.
	// Default: 500ms.
	Settle time.Duration

	// PollInterval is used when fsnotify is unavailable. Default: 2s.
	PollInterval time.Duration

	// IncludeExisting uploads files already present at start.
	IncludeExisting bool
}

func (c Config) withDefaults() Config {
	if c.Settle <= 0 {
		c.Settle = 500 * time.Millisecond
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	return c
}

// Watcher uploads new files from a directory.
type Watcher struct {
	cfg      Config
	uploader Uploader
	logger   *slog.Logger

	// forcePoll skips fsnotify. Tests only.
	forcePoll bool

	extMu sync.RWMutex

	mu      sync.Mutex
	seen    map[string]bool
	pending map[string]pendingFile
}

type pendingFile struct {
	size    int64
	mod     time.Time
	changed time.Time
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New validates cfg and creates a Watcher.
func New(cfg Config, uploader Uploader, opts ...Option) (*Watcher, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("ingest: dir is required")
	}
	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("ingest: %s is not a directory", cfg.Dir)
	}
	w := &Watcher{
		cfg:      cfg.withDefaults(),
		uploader: uploader,
		logger:   slog.Default(),
		seen:     map[string]bool{},
		pending:  map[string]pendingFile{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Accepts reports whether name has an accepted extension. An empty
// extension list accepts everything except hidden files.
func (w *Watcher) Accepts(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	w.extMu.RLock()
	defer w.extMu.RUnlock()
	if len(w.cfg.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(base))
	return slices.ContainsFunc(w.cfg.Extensions, func(e string) bool {
		return strings.ToLower(e) == ext
	})
}

// SetExtensions replaces the accepted extensions of a running Watcher.
// Files already uploaded are not revisited.
func (w *Watcher) SetExtensions(exts []string) {
	w.extMu.Lock()
	w.cfg.Extensions = slices.Clone(exts)
	w.extMu.Unlock()
}

// Run watches until ctx is done, sending one Result per upload attempt.
// The channel is closed when Run returns. Returns ctx.Err() on cancel.
func (w *Watcher) Run(ctx context.Context, results chan<- Result) error {
	defer close(results)

	if !w.cfg.IncludeExisting {
		if err := w.markExisting(); err != nil {
			return err
		}
	}

	if !w.forcePoll {
		watcher, err := fsnotify.NewWatcher()
		if err == nil {
			if err := watcher.Add(w.cfg.Dir); err == nil {
				defer watcher.Close()
				if w.cfg.IncludeExisting {
					w.scan()
				}
				return w.runNotify(ctx, watcher, results)
			}
			watcher.Close()
		}
		w.logger.Warn("fsnotify unavailable, polling drop folder",
			slog.String("dir", w.cfg.Dir),
			slog.Duration("interval", w.cfg.PollInterval))
	}
	return w.runPolling(ctx, results)
}

func (w *Watcher) runNotify(ctx context.Context, watcher *fsnotify.Watcher, results chan<- Result) error {
	ticker := time.NewTicker(w.cfg.Settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename) {
				w.touch(event.Name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("drop folder watcher error", slog.Any("error", err))

		case <-ticker.C:
			w.flush(ctx, results)
		}
	}
}

func (w *Watcher) runPolling(ctx context.Context, results chan<- Result) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	w.scan()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.scan()
			w.flush(ctx, results)
		}
	}
}

func (w *Watcher) markExisting() error {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		return fmt.Errorf("ingest: read dir: %w", err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, e := range entries {
		if !e.IsDir() {
			w.seen[filepath.Join(w.cfg.Dir, e.Name())] = true
		}
	}
	return nil
}

// scan queues every accepted regular file not yet seen.
func (w *Watcher) scan() {
	entries, err := os.ReadDir(w.cfg.Dir)
	if err != nil {
		w.logger.Warn("scan drop folder", slog.Any("error", err))
		return
	}
	for _, e := range entries {
		if e.Type().IsRegular() {
			w.touch(filepath.Join(w.cfg.Dir, e.Name()))
		}
	}
}

// touch records path, restarting its settle timer when size or mtime moved.
func (w *Watcher) touch(path string) {
	if !w.Accepts(path) {
		return
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.seen[path] {
		return
	}
	p, ok := w.pending[path]
	if !ok || p.size != info.Size() || !p.mod.Equal(info.ModTime()) {
		w.pending[path] = pendingFile{size: info.Size(), mod: info.ModTime(), changed: time.Now()}
	}
}

// flush uploads pending files that have settled.
func (w *Watcher) flush(ctx context.Context, results chan<- Result) {
	now := time.Now()
	var ready []string
	w.mu.Lock()
	for path, p := range w.pending {
		if now.Sub(p.changed) >= w.cfg.Settle {
			ready = append(ready, path)
			delete(w.pending, path)
			w.seen[path] = true
		}
	}
	w.mu.Unlock()

	slices.Sort(ready)
	for _, path := range ready {
		r := w.upload(ctx, path)
		select {
		case results <- r:
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) upload(ctx context.Context, path string) Result {
	f, err := os.Open(path)
	if err != nil {
		w.logger.Warn("open dropped file", slog.String("path", path), slog.Any("error", err))
		return Result{Path: path, Err: fmt.Errorf("open %s: %w", path, err)}
	}
	defer f.Close()

	name := filepath.Base(path)
	src, err := w.uploader.Upload(ctx, api.UploadRequest{
		Filename:  name,
		Reader:    f,
		Label:     name,
		ProjectID: w.cfg.ProjectID,
	})
	if err != nil {
		w.logger.Error("upload failed", slog.String("path", path), slog.Any("error", err))
		return Result{Path: path, Err: err}
	}
	w.logger.Info("uploaded conversation log",
		slog.String("path", path),
		slog.String("source_id", src.ID))
	return Result{Path: path, Source: src}
}
