package pages

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pterm/pterm"
)

// DefaultDebounce collapses editor write bursts into one reload.
const DefaultDebounce = 200 * time.Millisecond

// Reloader is anything that can rebuild its state from disk.
type Reloader interface {
	Reload() error
}

// TemplateWatcher monitors a templates directory using fsnotify and reloads
// the provider when a template is written, created, removed or renamed.
type TemplateWatcher struct {
	watcher  *fsnotify.Watcher
	dir      string
	target   Reloader
	logger   *pterm.Logger
	debounce time.Duration
	reloads  chan struct{}
}

// NewTemplateWatcher creates a watcher for dir. The directory must exist.
func NewTemplateWatcher(dir string, target Reloader, logger *pterm.Logger) (*TemplateWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.WithCaller().Error("Failed to create template watcher", logger.Args("error", err))
		return nil, err
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch templates dir %s: %w", dir, err)
	}

	logger.Debug("Started watching templates", logger.Args("dir", dir))
	return &TemplateWatcher{
		watcher:  watcher,
		dir:      dir,
		target:   target,
		logger:   logger,
		debounce: DefaultDebounce,
		reloads:  make(chan struct{}, 1),
	}, nil
}

// Reloaded receives a value after each completed reload. Sends are dropped
// when nobody is listening.
func (tw *TemplateWatcher) Reloaded() <-chan struct{} {
	return tw.reloads
}

// Run processes file system events until ctx is cancelled. It closes the
// underlying watcher on return.
func (tw *TemplateWatcher) Run(ctx context.Context) error {
	defer tw.watcher.Close()

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			tw.logger.Debug("Template watcher stopped")
			return nil

		case event, ok := <-tw.watcher.Events:
			if !ok {
				tw.logger.Warn("Template watcher events channel closed")
				return nil
			}
			if !tw.relevant(event) {
				continue
			}
			tw.logger.Trace("Template change detected",
				tw.logger.Args("file", event.Name, "op", event.Op.String()))

			if timer == nil {
				timer = time.NewTimer(tw.debounce)
			} else {
				timer.Reset(tw.debounce)
			}
			pending = timer.C

		case <-pending:
			pending = nil
			if err := tw.target.Reload(); err != nil {
				tw.logger.WithCaller().Error("Failed to reload templates",
					tw.logger.Args("dir", tw.dir, "error", err))
				continue
			}
			tw.logger.Info("Templates reloaded", tw.logger.Args("dir", tw.dir))
			select {
			case tw.reloads <- struct{}{}:
			default:
			}

		case err, ok := <-tw.watcher.Errors:
			if !ok {
				tw.logger.Warn("Template watcher errors channel closed")
				return nil
			}
			tw.logger.WithCaller().Error("Template watcher error", tw.logger.Args("error", err))
		}
	}
}

func (tw *TemplateWatcher) relevant(event fsnotify.Event) bool {
	if !strings.HasSuffix(filepath.Base(event.Name), TemplateExt) {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
