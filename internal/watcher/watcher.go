// Package watcher reports changes to the knowledge, draft and profile
// directories made outside the bot, such as hand edits or deployments.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/lorekeeper/internal/sse"
)

// DefaultDebounce is how long a path must be quiet before its change is reported.
const DefaultDebounce = 300 * time.Millisecond

// Dir is one watched directory. Only files directly inside it whose name
// ends with Ext are reported.
type Dir struct {
	Topic string
	Path  string
	Ext   string
}

// Watcher coalesces fsnotify events per path and reports them as sse.Change values.
type Watcher struct {
	dirs     []Dir
	debounce time.Duration
	logger   *slog.Logger
	onChange func(sse.Change)
}

// New creates a Watcher. onChange runs on the watcher goroutine.
func New(dirs []Dir, debounce time.Duration, logger *slog.Logger, onChange func(sse.Change)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{dirs: dirs, debounce: debounce, logger: logger, onChange: onChange}
}

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	defer fw.Close()

	byPath := make(map[string]Dir, len(w.dirs))
	for _, d := range w.dirs {
		abs, err := filepath.Abs(d.Path)
		if err != nil {
			return fmt.Errorf("watcher: resolve %s: %w", d.Path, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return fmt.Errorf("watcher: create %s: %w", abs, err)
		}
		if err := fw.Add(abs); err != nil {
			return fmt.Errorf("watcher: watch %s: %w", abs, err)
		}
		d.Path = abs
		byPath[abs] = d
		w.logger.Info("watcher: started", slog.String("topic", d.Topic), slog.String("dir", abs))
	}

	pending := make(map[string]Dir)
	var timer *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			fire = timer.C
			return
		}
		timer.Reset(w.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info("watcher: stopped")
			return nil

		case <-fire:
			for path, d := range pending {
				w.report(d, path)
			}
			clear(pending)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op == fsnotify.Chmod {
				continue
			}
			d, ok := byPath[filepath.Dir(ev.Name)]
			if !ok || !strings.HasSuffix(ev.Name, d.Ext) || strings.HasPrefix(filepath.Base(ev.Name), ".") {
				continue
			}
			pending[ev.Name] = d
			schedule()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher: error", slog.String("error", err.Error()))
		}
	}
}

// report emits the current state of path: updated when the file exists,
// deleted otherwise. A write-then-rename save therefore reports once.
func (w *Watcher) report(d Dir, path string) {
	c := sse.Change{Topic: d.Topic, Kind: "updated", Path: filepath.Base(path)}
	if _, err := os.Stat(path); err != nil {
		c.Kind = "deleted"
	}
	w.logger.Debug("watcher: change", slog.String("topic", c.Topic), slog.String("kind", c.Kind), slog.String("path", c.Path))
	if w.onChange != nil {
		w.onChange(c)
	}
}
