package watch

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for writes to settle.
const DefaultDebounce = 250 * time.Millisecond

// Watcher triggers a reload whenever the observation file changes.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(ctx context.Context)
}

// NewWatcher creates a Watcher for path. onChange runs at most once per
// debounce window, never concurrently with itself.
func NewWatcher(path string, debounce time.Duration, onChange func(ctx context.Context)) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{path: path, debounce: debounce, onChange: onChange}
}

// ReloadOnChange returns a Watcher that calls r.Reload on every change.
func ReloadOnChange(path string, r *Reloader) *Watcher {
	return NewWatcher(path, DefaultDebounce, func(ctx context.Context) {
		if _, err := r.Reload(ctx); err != nil {
			zap.L().Error("watch: reload after change failed", zap.Error(err))
		}
	})
}

// Run blocks until ctx is cancelled. The parent directory is watched rather
// than the file itself so atomic rename-over writes are seen.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "watch: create watcher")
	}
	defer fw.Close() //nolint:errcheck

	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		return eris.Wrapf(err, "watch: add %s", dir)
	}
	target := filepath.Clean(w.path)
	zap.L().Info("watch: watching observation file", zap.String("path", target))

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.onChange(ctx)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			zap.L().Warn("watch: fsnotify error", zap.Error(err))
		}
	}
}
