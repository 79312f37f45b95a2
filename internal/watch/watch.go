// Package watch signals index staleness by watching a store's session
// and artifact logs for writes. It is a helper a long-lived command
// invocation can use to know when to trigger a rebuild; memory-bank
// runs no server process or network listener, so this is owned and
// stopped by whatever command starts it, never a background daemon.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/memorybank/membank/internal/store"
)

// Watcher debounces writes and creates of .json and .jsonl files under
// a store root's sessions and artifacts directories (chunk logs, event
// logs and meta files alike) and calls OnStale once per quiet period
// after the last such write.
type Watcher struct {
	layout    store.Layout
	fsw       *fsnotify.Watcher
	debounce  time.Duration
	onStale   func()

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	pendingMu sync.Mutex
	lastEvent time.Time
	dirty     bool
}

// New returns a Watcher over root's sessions and artifacts directories.
func New(root string, debounce time.Duration, onStale func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	return &Watcher{
		layout:   store.NewLayout(root),
		fsw:      fsw,
		debounce: debounce,
		onStale:  onStale,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. It is idempotent.
func (w *Watcher) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addDirectories(); err != nil {
		return fmt.Errorf("add directories: %w", err)
	}

	go w.processEvents()
	go w.processDebounced()
	return nil
}

// Stop stops the watcher and releases its OS resources.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)
	return w.fsw.Close()
}

func (w *Watcher) addDirectories() error {
	for _, dir := range []string{w.layout.SessionsDir(), w.layout.ArtifactsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() {
				return nil
			}
			if addErr := w.fsw.Add(path); addErr != nil {
				fmt.Fprintf(os.Stderr, "warning: cannot watch %s: %v\n", path, addErr)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create) != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// A new session directory: extend the watch to it so its
			// future chunks.jsonl writes are seen too.
			if addErr := w.fsw.Add(ev.Name); addErr != nil {
				fmt.Fprintf(os.Stderr, "warning: cannot watch %s: %v\n", ev.Name, addErr)
			}
			return
		}
	}
	if !strings.HasSuffix(ev.Name, ".jsonl") && !strings.HasSuffix(ev.Name, ".json") {
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	w.pendingMu.Lock()
	w.lastEvent = time.Now()
	w.dirty = true
	w.pendingMu.Unlock()
}

func (w *Watcher) processDebounced() {
	interval := w.debounce / 4
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.maybeFireStale()
		}
	}
}

func (w *Watcher) maybeFireStale() {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	if !w.dirty || time.Since(w.lastEvent) < w.debounce {
		return
	}
	w.dirty = false
	if w.onStale != nil {
		w.onStale()
	}
}
