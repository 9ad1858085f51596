// Package watcher provides debounced filesystem watching for component
// sources. Rapid save bursts from editors are coalesced into a single
// change batch before handlers run.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/singlet-dev/singlet/internal/logging"
)

// SourceWatcher watches component source files with debouncing.
type SourceWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	filters   []FileFilter
	handlers  []ChangeHandler
	log       logging.Logger
	mutex     sync.RWMutex
}

// ChangeEvent represents one file change.
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
}

// EventType classifies a file change.
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter reports whether a path should produce events.
type FileFilter func(path string) bool

// ComponentSourceFilter accepts the file types a component bundle can
// reference: the bundle itself plus external scripts and stylesheets.
func ComponentSourceFilter(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".js", ".mjs", ".css":
		return true
	}
	return false
}

// ChangeHandler receives one debounced batch of changes.
type ChangeHandler func(events []ChangeEvent) error

// debouncer groups rapid changes into one batch per quiet period.
type debouncer struct {
	delay   time.Duration
	events  chan ChangeEvent
	output  chan []ChangeEvent
	timer   *time.Timer
	pending []ChangeEvent
	mutex   sync.Mutex
}

// New creates a watcher with the given debounce delay.
func New(debounceDelay time.Duration, log logging.Logger) (*SourceWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.Nop()
	}
	return &SourceWatcher{
		watcher: fsw,
		debouncer: &debouncer{
			delay:  debounceDelay,
			events: make(chan ChangeEvent, 100),
			output: make(chan []ChangeEvent, 10),
		},
		log: log,
	}, nil
}

// AddFilter adds a file filter. All filters must accept a path for it to
// produce events.
func (sw *SourceWatcher) AddFilter(filter FileFilter) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	sw.filters = append(sw.filters, filter)
}

// AddHandler registers a batch handler.
func (sw *SourceWatcher) AddHandler(handler ChangeHandler) {
	sw.mutex.Lock()
	defer sw.mutex.Unlock()
	sw.handlers = append(sw.handlers, handler)
}

// AddPath watches a single file or directory.
func (sw *SourceWatcher) AddPath(path string) error {
	clean, err := validatePath(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	return sw.watcher.Add(clean)
}

// AddRecursive watches a directory tree.
func (sw *SourceWatcher) AddRecursive(root string) error {
	cleanRoot, err := validatePath(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}
	return filepath.Walk(cleanRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return nil
		}
		clean, err := validatePath(path)
		if err != nil {
			sw.log.Warn(context.Background(), err, "skipping directory", "path", path)
			return nil
		}
		return sw.watcher.Add(clean)
	})
}

// validatePath cleans a path and rejects anything escaping the working
// directory.
func validatePath(path string) (string, error) {
	clean := filepath.Clean(path)
	abs, err := filepath.Abs(clean)
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	if !strings.HasPrefix(abs, cwd) {
		return "", fmt.Errorf("path %s is outside current working directory", path)
	}
	if strings.Contains(clean, "..") {
		return "", fmt.Errorf("path contains directory traversal: %s", path)
	}
	return clean, nil
}

// Start launches the watch, debounce, and dispatch loops. They run until
// ctx is cancelled.
func (sw *SourceWatcher) Start(ctx context.Context) {
	go sw.debouncer.run(ctx)
	go sw.dispatch(ctx)
	go sw.watchLoop(ctx)
}

// Stop releases the underlying fsnotify watcher.
func (sw *SourceWatcher) Stop() error {
	sw.debouncer.mutex.Lock()
	if sw.debouncer.timer != nil {
		sw.debouncer.timer.Stop()
	}
	sw.debouncer.mutex.Unlock()
	return sw.watcher.Close()
}

func (sw *SourceWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			sw.handleEvent(event)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.log.Warn(ctx, err, "file watcher error")
		}
	}
}

func (sw *SourceWatcher) handleEvent(event fsnotify.Event) {
	sw.mutex.RLock()
	filters := sw.filters
	sw.mutex.RUnlock()
	for _, filter := range filters {
		if !filter(event.Name) {
			return
		}
	}

	var modTime time.Time
	if info, err := os.Stat(event.Name); err == nil {
		modTime = info.ModTime()
	}

	var eventType EventType
	switch {
	case event.Op&fsnotify.Create != 0:
		eventType = EventTypeCreated
	case event.Op&fsnotify.Write != 0:
		eventType = EventTypeModified
	case event.Op&fsnotify.Remove != 0:
		eventType = EventTypeDeleted
	case event.Op&fsnotify.Rename != 0:
		eventType = EventTypeRenamed
	default:
		eventType = EventTypeModified
	}

	select {
	case sw.debouncer.events <- ChangeEvent{Type: eventType, Path: event.Name, ModTime: modTime}:
	default:
		// Channel full, drop the event; the next save re-triggers.
	}
}

func (sw *SourceWatcher) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case events := <-sw.debouncer.output:
			sw.mutex.RLock()
			handlers := sw.handlers
			sw.mutex.RUnlock()
			for _, handler := range handlers {
				if err := handler(events); err != nil {
					sw.log.Warn(ctx, err, "change handler error")
				}
			}
		}
	}
}

func (d *debouncer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-d.events:
			d.add(event)
		}
	}
}

func (d *debouncer) add(event ChangeEvent) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.pending = append(d.pending, event)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.flush)
}

func (d *debouncer) flush() {
	d.mutex.Lock()
	if len(d.pending) == 0 {
		d.mutex.Unlock()
		return
	}
	batch := dedupe(d.pending)
	d.pending = nil
	d.mutex.Unlock()

	select {
	case d.output <- batch:
	default:
	}
}

// dedupe keeps the last event per path, preserving first-seen order.
func dedupe(events []ChangeEvent) []ChangeEvent {
	last := make(map[string]ChangeEvent, len(events))
	order := make([]string, 0, len(events))
	for _, ev := range events {
		if _, seen := last[ev.Path]; !seen {
			order = append(order, ev.Path)
		}
		last[ev.Path] = ev
	}
	out := make([]ChangeEvent, 0, len(order))
	for _, p := range order {
		out = append(out, last[p])
	}
	return out
}
