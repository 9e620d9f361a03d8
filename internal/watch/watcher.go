package watch

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joshbrooks/viewedmodels/internal/logging"
)

// DefaultDebounce groups the bursts of events editors emit on save
const DefaultDebounce = 100 * time.Millisecond

// FileWatcher calls reloadFn when the definitions file, or a .sql file
// next to it, changes
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	filePath string
	reloadFn func() error
	reloadMu sync.Mutex
	done     chan struct{}
	stopOnce sync.Once

	// Debounce is how long to wait for further events before reloading
	Debounce time.Duration
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(filePath string, reloadFn func() error) (*FileWatcher, error) {
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", filePath, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory: editors often replace the file on save
	dir := filepath.Dir(abs)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	return &FileWatcher{
		watcher:  watcher,
		filePath: abs,
		reloadFn: reloadFn,
		done:     make(chan struct{}),
		Debounce: DefaultDebounce,
	}, nil
}

// Start begins watching for file changes
func (fw *FileWatcher) Start() {
	go fw.watch()
}

// Stop stops watching for file changes
func (fw *FileWatcher) Stop() {
	fw.stopOnce.Do(func() {
		close(fw.done)
		fw.watcher.Close()
	})
}

// relevant reports whether an event path should trigger a reload
func (fw *FileWatcher) relevant(name string) bool {
	name = filepath.Clean(name)
	return name == fw.filePath || strings.EqualFold(filepath.Ext(name), ".sql")
}

func (fw *FileWatcher) watch() {
	var debounceTimer *time.Timer

	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !fw.relevant(event.Name) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			logging.Debug("definitions changed", "file", event.Name, "op", event.Op.String())
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(fw.Debounce, fw.reload)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("watcher error", "file", fw.filePath, "error", err.Error())

		case <-fw.done:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}

// reload runs reloadFn. A change arriving during a reload waits for it
// and then reloads again, so reloads never overlap.
func (fw *FileWatcher) reload() {
	fw.reloadMu.Lock()
	defer fw.reloadMu.Unlock()

	if err := fw.reloadFn(); err != nil {
		logging.Error("reload failed", "file", fw.filePath, "error", err.Error())
	} else {
		logging.Info("reloaded", "file", fw.filePath)
	}
}
