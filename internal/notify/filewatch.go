package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/fjod/storefront-cart/internal/storage"
)

const (
	defaultDebounce = 100 * time.Millisecond
	// ownWriteWindow is how long after a local Publish the watcher ignores changes to
	// the same session's file.
	defaultOwnWriteWindow = time.Second
)

// FileWatchFeed turns changes to a file store directory into events. Processes sharing
// the directory need no broker: the atomic rename of a cart file is the signal. Publish
// only records the local write so the watcher does not echo it back.
type FileWatchFeed struct {
	dir    string
	logger *zap.Logger

	mu             sync.Mutex
	pending        map[string]time.Time // session -> last fs event
	ownWrites      map[string]time.Time // session -> last local publish
	debounce       time.Duration
	ownWriteWindow time.Duration
}

func NewFileWatchFeed(dir string, logger *zap.Logger) *FileWatchFeed {
	return &FileWatchFeed{
		dir:            dir,
		logger:         logger,
		pending:        make(map[string]time.Time),
		ownWrites:      make(map[string]time.Time),
		debounce:       defaultDebounce,
		ownWriteWindow: defaultOwnWriteWindow,
	}
}

func (f *FileWatchFeed) Publish(_ context.Context, e Event) error {
	f.mu.Lock()
	f.ownWrites[e.Session] = time.Now()
	f.mu.Unlock()
	return nil
}

func (f *FileWatchFeed) Run(ctx context.Context, fn func(Event)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(f.dir); err != nil {
		return fmt.Errorf("failed to watch cart dir: %w", err)
	}
	f.logger.Info("watching cart dir", zap.String("dir", f.dir))

	ticker := time.NewTicker(f.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			f.handleEvent(event)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("cart dir watcher error", zap.Error(err))

		case <-ticker.C:
			for _, e := range f.settled() {
				fn(e)
			}
		}
	}
}

func (f *FileWatchFeed) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
		return
	}
	session, ok := storage.KeyFromFileName(event.Name)
	if !ok {
		return
	}

	f.mu.Lock()
	f.pending[session] = time.Now()
	f.mu.Unlock()
}

// settled returns events for sessions whose files have been quiet for the debounce
// period, minus those explained by a recent local write.
func (f *FileWatchFeed) settled() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	var out []Event
	for session, seen := range f.pending {
		if now.Sub(seen) < f.debounce {
			continue
		}
		delete(f.pending, session)

		if own, ok := f.ownWrites[session]; ok && now.Sub(own) < f.ownWriteWindow {
			continue
		}
		out = append(out, Event{Session: session, Op: OpExternal, At: seen})
	}
	for session, own := range f.ownWrites {
		if now.Sub(own) >= f.ownWriteWindow {
			delete(f.ownWrites, session)
		}
	}
	return out
}
