package event

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"converge/internal/resource"
	"converge/pkg/logging"
)

// FileOptions configures a FileSource.
type FileOptions struct {
	// Name identifies the source. Defaults to "file/<dir>".
	Name string

	// Dir is the watched directory. Files directly inside it map to primaries in
	// DefaultNamespace; files one level down map to the namespace named by
	// their subdirectory.
	Dir string

	// Kind is the kind of the primaries triggered.
	Kind string

	// DefaultNamespace is used for files at the top level of Dir.
	DefaultNamespace string

	// Debounce is how long to wait for additional changes to the same file.
	// Defaults to 500ms.
	Debounce time.Duration
}

// FileSource watches a directory of YAML files and triggers the primary named
// after each file (<namespace>/<name>.yaml) when it changes.
type FileSource struct {
	opts FileOptions

	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	handler   Handler
	pending   map[resource.ID]*debounceEntry
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool
	lastErr   error
	failures  int
	lastEvent time.Time
}

// debounceEntry tracks a pending event for debouncing.
type debounceEntry struct {
	event Event
	timer *time.Timer
}

var _ Source = (*FileSource)(nil)

// NewFileSource creates a file source.
func NewFileSource(opts FileOptions) (*FileSource, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("file source requires a directory")
	}
	if opts.Kind == "" {
		return nil, fmt.Errorf("file source requires a kind")
	}
	if opts.Debounce == 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	if opts.Name == "" {
		opts.Name = "file/" + filepath.Base(opts.Dir)
	}
	return &FileSource{
		opts:    opts,
		pending: make(map[resource.ID]*debounceEntry),
	}, nil
}

// Name returns the source name.
func (f *FileSource) Name() string { return f.opts.Name }

// Start begins watching the directory and its immediate subdirectories.
func (f *FileSource) Start(ctx context.Context, h Handler) error {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.mu.Unlock()
		return err
	}

	f.watcher = watcher
	f.handler = h
	f.running = true
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	f.mu.Unlock()

	if err := f.setupWatches(); err != nil {
		f.mu.Lock()
		f.doneCh = nil
		f.mu.Unlock()
		_ = f.Stop()
		return err
	}

	go f.processEvents(ctx, watcher, f.stopCh, f.doneCh)

	logging.Info("FileSource", "Started watching %s for %s triggers", f.opts.Dir, f.opts.Kind)
	return nil
}

func (f *FileSource) setupWatches() error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(f.opts.Dir, 0o755); err != nil {
		return err
	}
	if err := f.watcher.Add(f.opts.Dir); err != nil {
		return err
	}

	entries, err := os.ReadDir(f.opts.Dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(f.opts.Dir, e.Name())
		if err := f.watcher.Add(sub); err != nil {
			logging.Warn("FileSource", "Failed to watch %s: %v", sub, err)
		}
	}
	return nil
}

func (f *FileSource) processEvents(ctx context.Context, watcher *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-ctx.Done():
			f.cleanupPendingEvents()
			return

		case <-stopCh:
			f.cleanupPendingEvents()
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			f.handleFsEvent(watcher, ev)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			f.mu.Lock()
			f.failures++
			f.lastErr = err
			f.mu.Unlock()
			logging.Error("FileSource", err, "Filesystem watcher error on %s", f.opts.Dir)
		}
	}
}

func (f *FileSource) handleFsEvent(watcher *fsnotify.Watcher, ev fsnotify.Event) {
	// New namespace directories are watched as they appear.
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if filepath.Dir(ev.Name) == filepath.Clean(f.opts.Dir) {
				if err := watcher.Add(ev.Name); err != nil {
					logging.Warn("FileSource", "Failed to watch %s: %v", ev.Name, err)
				}
			}
			return
		}
	}

	if !isYAMLFile(ev.Name) {
		return
	}
	id, ok := f.parseFilePath(ev.Name)
	if !ok {
		return
	}

	var op Operation
	switch {
	case ev.Op&fsnotify.Create == fsnotify.Create:
		op = OperationCreate
	case ev.Op&fsnotify.Write == fsnotify.Write:
		op = OperationUpdate
	case ev.Op&fsnotify.Remove == fsnotify.Remove:
		op = OperationDelete
	case ev.Op&fsnotify.Rename == fsnotify.Rename:
		// Rename is treated as delete (the new name will trigger a create)
		op = OperationDelete
	default:
		return
	}

	f.mu.Lock()
	f.failures = 0
	f.lastErr = nil
	f.lastEvent = time.Now()
	f.mu.Unlock()

	f.debounceEvent(Event{
		ID:        id,
		Operation: op,
		Source:    f.opts.Name,
		Timestamp: time.Now(),
	})
}

// debounceEvent collapses rapid successive changes to one file into one event.
func (f *FileSource) debounceEvent(e Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if entry, ok := f.pending[e.ID]; ok {
		entry.timer.Stop()
		e.Operation = mergeOperations(entry.event.Operation, e.Operation)
	}

	id := e.ID
	timer := time.AfterFunc(f.opts.Debounce, func() {
		f.mu.Lock()
		entry, ok := f.pending[id]
		if ok {
			delete(f.pending, id)
		}
		h := f.handler
		f.mu.Unlock()

		if ok && h != nil {
			h.Submit(entry.event)
		}
	})

	f.pending[id] = &debounceEntry{event: e, timer: timer}
}

// mergeOperations merges two operations into a single logical operation.
func mergeOperations(old, new Operation) Operation {
	if old == OperationCreate {
		if new == OperationDelete {
			return OperationDelete
		}
		// Create + Update = Create
		return OperationCreate
	}
	return new
}

// parseFilePath maps <dir>/<name>.yaml and <dir>/<namespace>/<name>.yaml to IDs.
func (f *FileSource) parseFilePath(path string) (resource.ID, bool) {
	rel, err := filepath.Rel(f.opts.Dir, path)
	if err != nil {
		return resource.ID{}, false
	}
	parts := strings.Split(rel, string(filepath.Separator))

	var namespace, file string
	switch len(parts) {
	case 1:
		namespace, file = f.opts.DefaultNamespace, parts[0]
	case 2:
		namespace, file = parts[0], parts[1]
	default:
		return resource.ID{}, false
	}
	if strings.HasPrefix(file, ".") {
		return resource.ID{}, false
	}

	name := strings.TrimSuffix(file, filepath.Ext(file))
	if name == "" {
		return resource.ID{}, false
	}
	return resource.New(f.opts.Kind, namespace, name), true
}

func (f *FileSource) cleanupPendingEvents() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, entry := range f.pending {
		entry.timer.Stop()
	}
	f.pending = make(map[resource.ID]*debounceEntry)
}

// Stop closes the watcher.
func (f *FileSource) Stop() error {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return nil
	}
	f.running = false
	f.handler = nil
	close(f.stopCh)
	watcher, done := f.watcher, f.doneCh
	f.watcher = nil
	f.mu.Unlock()

	var err error
	if watcher != nil {
		err = watcher.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
	return err
}

// Health is unhealthy after repeated watcher errors with no successful event since.
func (f *FileSource) Health() Health {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return Health{Message: "not started"}
	}
	if f.failures >= 3 {
		return Health{
			Message:             fmt.Sprintf("watcher errors: %v", f.lastErr),
			ConsecutiveFailures: f.failures,
			LastSuccess:         f.lastEvent,
		}
	}
	return Health{Healthy: true, ConsecutiveFailures: f.failures, LastSuccess: f.lastEvent}
}

// isYAMLFile checks if a file path is a YAML file.
func isYAMLFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
