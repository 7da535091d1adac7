package content

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/m3rciful/tutorbot/core/logger"
)

// Lookup is the read side used by the router.
type Lookup interface {
	Lookup(normalized string) (Entry, bool)
}

// Config points at the catalog file.
type Config struct {
	Path  string `yaml:"path" envconfig:"CONTENT_PATH"`
	Watch bool   `yaml:"watch" envconfig:"CONTENT_WATCH"`
}

// Store holds the live catalog and swaps it atomically on reload.
type Store struct {
	path    string
	current atomic.Pointer[Catalog]
	reloads atomic.Int64
}

// NewStore loads path. An empty path yields an empty catalog.
func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	if path == "" {
		s.current.Store(&Catalog{index: map[string]int{}})
		return s, nil
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Lookup implements Lookup against the current catalog.
func (s *Store) Lookup(normalized string) (Entry, bool) {
	return s.current.Load().Lookup(normalized)
}

// Catalog returns the live catalog.
func (s *Store) Catalog() *Catalog { return s.current.Load() }

// Reloads counts successful reloads after the initial load.
func (s *Store) Reloads() int64 { return s.reloads.Load() }

// Reload re-reads the file. On error the previous catalog stays in place.
func (s *Store) Reload() error {
	c, err := Load(s.path)
	if err != nil {
		return err
	}
	if s.current.Swap(c) != nil {
		s.reloads.Add(1)
	}
	return nil
}

const reloadDebounce = 200 * time.Millisecond

// Watch reloads the catalog when its file changes until ctx is done.
// The directory is watched so that editors replacing the file are noticed too.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		<-ctx.Done()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("content: watcher: %w", err)
	}
	defer w.Close()

	target, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("content: %w", err)
	}
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("content: watch %s: %w", filepath.Dir(target), err)
	}
	logger.Info(ctx, "content", "watch.started", slog.String("path", target))

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn(ctx, "content", "watch.error", slog.String("err", err.Error()))
		case <-timer.C:
			start := time.Now()
			if err := s.Reload(); err != nil {
				logger.Warn(ctx, "content", "reload.failed",
					slog.String("status", "fail"),
					slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
				)
				continue
			}
			logger.Info(ctx, "content", "reload.done",
				slog.String("status", "ok"),
				slog.Int("entries", s.Catalog().Len()),
				slog.Int64("duration_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
			)
		}
	}
}
