package rules

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/harun/sdkbridge/internal/observability"
)

// Store publishes the current Book. Readers always see a complete snapshot.
type Store struct {
	book atomic.Pointer[Book]
}

// NewStore creates a store holding book
func NewStore(book *Book) *Store {
	s := &Store{}
	if book == nil {
		book = NewBook()
	}
	s.book.Store(book)
	return s
}

// Book returns the current snapshot
func (s *Store) Book() *Book {
	return s.book.Load()
}

// For returns the current rule set for a system
func (s *Store) For(system string) *RuleSet {
	return s.Book().For(system)
}

// Swap replaces the snapshot
func (s *Store) Swap(book *Book) {
	s.book.Store(book)
}

// ReloadCallback is called after a successful reload
type ReloadCallback func(book *Book)

// WatcherConfig holds configuration for the rules watcher
type WatcherConfig struct {
	Path     string
	Debounce time.Duration
	OnReload ReloadCallback
}

// Watcher reloads a rules file into a Store when it changes
type Watcher struct {
	watcher  *fsnotify.Watcher
	loader   *Loader
	store    *Store
	path     string
	debounce time.Duration
	onReload ReloadCallback
	logger   zerolog.Logger

	done     chan struct{}
	timer    *time.Timer
	timerMu  sync.Mutex
	stopOnce sync.Once
}

// NewWatcher creates a watcher for cfg.Path
func NewWatcher(cfg WatcherConfig, loader *Loader, store *Store, logger zerolog.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 100 * time.Millisecond
	}

	return &Watcher{
		watcher:  fw,
		loader:   loader,
		store:    store,
		path:     filepath.Clean(cfg.Path),
		debounce: cfg.Debounce,
		onReload: cfg.OnReload,
		logger:   logger.With().Str("component", "rules-watcher").Logger(),
		done:     make(chan struct{}),
	}, nil
}

// Start watches the directory holding the rules file so editors that
// replace the file atomically are still observed
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch rules directory: %w", err)
	}

	go w.eventLoop()

	w.logger.Info().Str("path", w.path).Msg("Rules watcher started")
	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}

	w.logger.Info().Msg("Rules watcher stopped")
	return nil
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

// schedule debounces bursts of events into one reload
func (w *Watcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.done:
			return
		default:
			w.reload()
		}
	})
}

func (w *Watcher) reload() {
	book, err := w.loader.Load(w.path)
	if err != nil {
		observability.RecordRulesReload(false)
		observability.RecordRulesAudit(context.Background(), "rules:reload", "error", map[string]interface{}{
			"path":  w.path,
			"error": err.Error(),
		})
		w.logger.Error().Err(err).Str("path", w.path).Msg("Rules reload failed, keeping previous rules")
		return
	}

	w.store.Swap(book)
	observability.RecordRulesReload(true)
	observability.RecordRulesAudit(context.Background(), "rules:reload", "success", map[string]interface{}{
		"path":    w.path,
		"systems": book.Systems(),
	})
	w.logger.Info().Strs("systems", book.Systems()).Msg("Rules reloaded")

	if w.onReload != nil {
		w.onReload(book)
	}
}
