// Package inbox imports task files dropped into a watched directory.
//
// Other local tools create tasks by writing small JSON files into the inbox
// directory. The watcher debounces file events, turns each valid file into
// an optimistic local task in the store, removes the file, and asks the
// coordinator for a sync so the new tasks reach the server.
package inbox

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tasksync/tasksync/internal/recurrence"
	"github.com/tasksync/tasksync/internal/store"
	"github.com/tasksync/tasksync/internal/task"
)

// TaskFile is the import schema for one dropped file.
type TaskFile struct {
	Title        string `json:"title"`
	ListID       string `json:"list_id"`
	MyDay        bool   `json:"my_day,omitempty"`
	Priority     int    `json:"priority,omitempty"`
	DueDate      string `json:"due_date,omitempty"`
	RecurrenceID string `json:"recurrence_id,omitempty"`
	Notes        string `json:"notes,omitempty"`
	URL          string `json:"url,omitempty"`
}

// Validate checks if the TaskFile has valid field values.
func (f *TaskFile) Validate() error {
	if strings.TrimSpace(f.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if f.ListID == "" {
		return fmt.Errorf("list_id is required")
	}
	if f.Priority < 0 || f.Priority > 3 {
		return fmt.Errorf("priority must be between 0 and 3 (got %d)", f.Priority)
	}
	if f.RecurrenceID != "" && !recurrence.IsValid(f.RecurrenceID) {
		return fmt.Errorf("unknown recurrence rule %q", f.RecurrenceID)
	}
	return nil
}

// Config holds configuration for the watcher.
type Config struct {
	// DebounceInterval is how long to wait before processing file changes.
	// This batches rapid writes together.
	DebounceInterval time.Duration

	// RequestSync is invoked after a flush that imported at least one
	// task.
	RequestSync func(reason string)

	// Logger for watcher activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 100 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[inbox] ", log.LstdFlags),
	}
}

// Watcher imports dropped task files into the store.
type Watcher struct {
	store  *store.Store
	dir    string
	config *Config

	watcher       *fsnotify.Watcher
	changeQueue   map[string]time.Time // filepath -> time queued
	changeQueueMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Watcher over the given inbox directory.
func New(st *store.Store, dir string, config *Config) (*Watcher, error) {
	if st == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if dir == "" {
		return nil, fmt.Errorf("dir cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultConfig().DebounceInterval
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Watcher{
		store:       st,
		dir:         dir,
		config:      config,
		watcher:     watcher,
		changeQueue: make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
	}, nil
}

// Start performs an initial scan of the inbox and begins watching. It
// returns once watching is active; event processing happens in the
// background until Stop.
func (w *Watcher) Start() error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("failed to create inbox directory: %w", err)
	}

	// Files dropped while nobody was watching.
	if n := w.scanExisting(); n > 0 && w.config.RequestSync != nil {
		w.config.RequestSync("inbox")
	}

	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch inbox directory: %w", err)
	}

	w.config.Logger.Printf("Watching inbox: %s", w.dir)

	w.wg.Add(2)
	go w.watchFileEvents()
	go w.processChangeQueue()

	return nil
}

// Stop gracefully shuts down the watcher.
func (w *Watcher) Stop() error {
	w.cancel()
	if err := w.watcher.Close(); err != nil {
		w.config.Logger.Printf("Error closing watcher: %v", err)
	}
	w.wg.Wait()
	return nil
}

// scanExisting imports every file already present, returning the number
// imported.
func (w *Watcher) scanExisting() int {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.config.Logger.Printf("WARNING: failed to read inbox directory: %v", err)
		return 0
	}
	imported := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		if w.importFile(filepath.Join(w.dir, entry.Name())) {
			imported++
		}
	}
	return imported
}

// watchFileEvents queues fsnotify events for debounced processing.
func (w *Watcher) watchFileEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".json") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			w.changeQueueMu.Lock()
			w.changeQueue[event.Name] = time.Now()
			w.changeQueueMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processChangeQueue flushes queued files once they have been quiet for the
// debounce interval.
func (w *Watcher) processChangeQueue() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return

		case <-ticker.C:
			now := time.Now()
			var ready []string
			w.changeQueueMu.Lock()
			for path, queued := range w.changeQueue {
				if now.Sub(queued) >= w.config.DebounceInterval {
					ready = append(ready, path)
					delete(w.changeQueue, path)
				}
			}
			w.changeQueueMu.Unlock()

			imported := 0
			for _, path := range ready {
				if w.importFile(path) {
					imported++
				}
			}
			if imported > 0 && w.config.RequestSync != nil {
				w.config.RequestSync("inbox")
			}
		}
	}
}

// importFile turns one dropped file into a local dirty task. The file is
// removed only on success; a malformed file is logged and left in place
// for the user to fix or delete.
func (w *Watcher) importFile(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			w.config.Logger.Printf("WARNING: failed to read %s: %v", filepath.Base(path), err)
		}
		return false
	}

	var file TaskFile
	if err := json.Unmarshal(data, &file); err != nil {
		w.config.Logger.Printf("WARNING: failed to parse %s: %v", filepath.Base(path), err)
		return false
	}
	if err := file.Validate(); err != nil {
		w.config.Logger.Printf("WARNING: invalid task file %s: %v", filepath.Base(path), err)
		return false
	}

	t, ok := w.store.CreateLocal(file.Title, file.ListID, task.LocalOptions{
		MyDay:        file.MyDay,
		Priority:     file.Priority,
		DueDate:      file.DueDate,
		RecurrenceID: file.RecurrenceID,
		Notes:        file.Notes,
		URL:          file.URL,
	})
	if !ok {
		return false
	}

	if err := os.Remove(path); err != nil {
		w.config.Logger.Printf("WARNING: failed to remove imported file %s: %v", filepath.Base(path), err)
	}

	w.config.Logger.Printf("Imported task %s (%s)", t.ID, t.Title)
	return true
}
