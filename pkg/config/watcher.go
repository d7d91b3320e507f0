package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads problem files when they, or the predicate files they
// reference, change on disk.
type Watcher struct {
	loader *Loader
	logger zerolog.Logger
	delay  time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	files   map[string]bool
	dirs    []string
}

// NewWatcher creates a watcher that reloads through loader.
func NewWatcher(loader *Loader, logger zerolog.Logger) *Watcher {
	return &Watcher{
		loader: loader,
		logger: logger.With().Str("component", "problem-watcher").Logger(),
		delay:  500 * time.Millisecond,
		files:  make(map[string]bool),
	}
}

// SetDebounce changes how long the watcher waits for changes to settle.
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.delay = d
}

// Watch starts watching sources and calls reloadFn with the reloaded
// problems after each burst of changes. It returns once watching has
// started; watching stops when ctx is done or Close is called.
func (w *Watcher) Watch(ctx context.Context, sources []string, reloadFn func(*ParsedProblems) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	for _, source := range sources {
		info, err := os.Stat(source)
		if err != nil {
			w.logger.Warn().Err(err).Str("path", source).Msg("Failed to stat path for watching")
			continue
		}

		if info.IsDir() {
			if err := w.watchDirectory(source); err != nil {
				w.logger.Warn().Err(err).Str("path", source).Msg("Failed to watch directory")
			}
			continue
		}

		// Editors often replace files by rename, so the parent directory is
		// watched and events are filtered by name.
		if err := w.trackFile(source); err != nil {
			w.logger.Warn().Err(err).Str("path", source).Msg("Failed to watch file")
		}
	}

	if parsed, err := w.loader.Load(ctx, sources...); err == nil {
		w.trackPredicateFiles(parsed)
	}

	go w.processEvents(ctx, watcher, sources, reloadFn)

	w.logger.Info().
		Int("paths", len(sources)).
		Msg("Started watching problem paths")

	return nil
}

func (w *Watcher) watchDirectory(dirPath string) error {
	abs, err := filepath.Abs(dirPath)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.dirs = append(w.dirs, abs)
	w.mu.Unlock()

	return filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) trackFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.files[abs] || w.watcher == nil {
		return nil
	}
	w.files[abs] = true
	return w.watcher.Add(filepath.Dir(abs))
}

func (w *Watcher) trackPredicateFiles(parsed *ParsedProblems) {
	for i := range parsed.Problems {
		file := parsed.Problems[i].ResolveFile()
		if file == "" {
			continue
		}
		if err := w.trackFile(file); err != nil {
			w.logger.Warn().Err(err).Str("path", file).Msg("Failed to watch predicate file")
		}
	}
}

// relevant reports whether a change to name should trigger a reload.
func (w *Watcher) relevant(name string) bool {
	abs, err := filepath.Abs(name)
	if err != nil {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.files[abs] {
		return true
	}
	if _, ok := FormatFromPath(abs); !ok {
		return false
	}
	for _, dir := range w.dirs {
		if strings.HasPrefix(abs, dir+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *Watcher) processEvents(ctx context.Context, watcher *fsnotify.Watcher, sources []string, reloadFn func(*ParsedProblems) error) {
	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if !w.relevant(event.Name) {
				continue
			}

			w.logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Problem file changed")

			w.scheduleReload(ctx, sources, reloadFn)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) scheduleReload(ctx context.Context, sources []string, reloadFn func(*ParsedProblems) error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, func() {
		if err := w.triggerReload(ctx, sources, reloadFn); err != nil {
			w.logger.Error().Err(err).Msg("Failed to reload problems")
		}
	})
}

func (w *Watcher) triggerReload(ctx context.Context, sources []string, reloadFn func(*ParsedProblems) error) error {
	if ctx.Err() != nil {
		return nil
	}

	w.logger.Info().Msg("Reloading problems")

	parsed, err := w.loader.Load(ctx, sources...)
	if err != nil {
		return fmt.Errorf("failed to reload problems: %w", err)
	}
	w.trackPredicateFiles(parsed)

	if err := reloadFn(parsed); err != nil {
		return fmt.Errorf("failed to apply reloaded problems: %w", err)
	}

	w.logger.Info().
		Int("count", len(parsed.Problems)).
		Int("errors", len(parsed.Errors)).
		Msg("Problems reloaded")

	return nil
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	if w.watcher == nil {
		return nil
	}
	err := w.watcher.Close()
	w.watcher = nil
	return err
}
