package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conclave-sh/conclave/internal/logging"
)

// debounceWindow collapses bursts of filesystem events into a single
// reload. Editors commonly emit several writes per save.
const debounceWindow = 100 * time.Millisecond

// Watcher watches a single file and invokes a callback after each
// write. Used to hot-reload the policy document and the config file.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(path string)
	logger   *logging.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for path. onChange runs on the watch
// goroutine; it must not block for long.
func NewWatcher(path string, logger *logging.Logger, onChange func(path string)) (*Watcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	w := &Watcher{
		watcher:  fw,
		path:     path,
		onChange: onChange,
		logger:   logger.WithComponent("config.watcher"),
		stopCh:   make(chan struct{}),
	}

	// Watch the file's directory; fsnotify handles renames and
	// recreations better at the directory level.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch directory: %w", err)
	}

	return w, nil
}

// Start begins watching on a background goroutine.
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
	})
}

func (w *Watcher) watchLoop() {
	target := filepath.Base(w.path)
	debounce := time.NewTimer(0)
	<-debounce.C // drain initial timer

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			debounce.Reset(debounceWindow)

		case <-debounce.C:
			w.logger.Info("watched file changed", "path", w.path)
			if w.onChange != nil {
				w.onChange(w.path)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "path", w.path, "error", err)
		}
	}
}
