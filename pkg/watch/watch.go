// Package watch reruns tasks when their source files change.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"

	"github.com/ngld/assetpipe/pkg/fileset"
	"github.com/ngld/assetpipe/pkg/pipeline"
)

// Options configures a Controller.
type Options struct {
	// Lull is the time without further events before a task is rerun.
	Lull time.Duration
	// Notifier is told about failed reruns. Nil disables notifications.
	Notifier Notifier
}

type binding struct {
	task     *pipeline.Task
	patterns []*fileset.Pattern
	// trigger holds at most one pending rerun.
	trigger chan struct{}
}

func (b *binding) matches(name string) bool {
	for _, p := range b.patterns {
		if p.Match(name) {
			return true
		}
	}
	return false
}

// schedule queues a rerun. Events arriving while one is already queued are coalesced.
func (b *binding) schedule() {
	select {
	case b.trigger <- struct{}{}:
	default:
	}
}

// Controller maps glob patterns to tasks. Every binding has a single worker goroutine, so a task
// never runs concurrently with itself.
type Controller struct {
	opts     Options
	run      *pipeline.Run
	bindings []*binding
}

func NewController(r *pipeline.Run, opts Options) *Controller {
	return &Controller{opts: opts, run: r}
}

// Add binds task to the given patterns.
func (c *Controller) Add(task *pipeline.Task, patterns ...string) error {
	if len(patterns) == 0 {
		return eris.Errorf("watch for %s has no patterns", task.Short)
	}

	b := &binding{
		task:    task,
		trigger: make(chan struct{}, 1),
	}
	for _, raw := range patterns {
		p, err := fileset.Compile(raw)
		if err != nil {
			return err
		}
		b.patterns = append(b.patterns, p)
	}

	c.bindings = append(c.bindings, b)
	return nil
}

// Handle dispatches a changed file to every matching watch. It reports whether any matched.
func (c *Controller) Handle(name string) bool {
	matched := false
	for _, b := range c.bindings {
		if b.matches(name) {
			b.schedule()
			matched = true
		}
	}
	return matched
}

// Run watches the base directories of all patterns until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	for _, dir := range c.baseDirs() {
		if err := watchBase(watcher, dir, nil); err != nil {
			return err
		}
	}

	var wg sync.WaitGroup
	for _, b := range c.bindings {
		wg.Add(1)
		go func(b *binding) {
			defer wg.Done()
			c.worker(ctx, b)
		}(b)
	}
	defer wg.Wait()

	logger := pipeline.Log(ctx)
	logger.Info().Msgf("Watching %d task(s) for changes", len(c.bindings))

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := c.watchCreated(watcher, filepath.Clean(event.Name)); err != nil {
						logger.Warn().Err(err).Msgf("Failed to watch %s", event.Name)
					}
				}
			}

			if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
				continue
			}

			if c.Handle(event.Name) {
				logger.Debug().Str("file", event.Name).Str("op", event.Op.String()).Msg("change detected")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("File watcher error")
		}
	}
}

func (c *Controller) worker(ctx context.Context, b *binding) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.trigger:
		}

		// Wait for the burst to end. Events during the lull are absorbed by the pending slot.
		if c.opts.Lull > 0 {
			timer := time.NewTimer(c.opts.Lull)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}
		select {
		case <-b.trigger:
		default:
		}

		c.rerun(ctx, b)
	}
}

// rerun executes the task once. Failures are logged and reported; they never stop the watch.
func (c *Controller) rerun(ctx context.Context, b *binding) {
	err := pipeline.RunTask(ctx, b.task, c.run)
	if err == nil || ctx.Err() != nil {
		return
	}

	pipeline.Log(ctx).Error().Err(err).Msgf("Task %s failed", b.task.Short)
	if c.opts.Notifier != nil {
		if nerr := c.opts.Notifier.Notify(ctx, "Task "+b.task.Short+" failed", eris.Cause(err).Error()); nerr != nil {
			pipeline.Log(ctx).Warn().Err(nerr).Msg("Failed to show notification")
		}
	}
}

func (c *Controller) baseDirs() []string {
	seen := make(map[string]bool)
	dirs := make([]string, 0)
	for _, b := range c.bindings {
		for _, p := range b.patterns {
			base := filepath.Clean(p.Base())
			if !seen[base] {
				seen[base] = true
				dirs = append(dirs, base)
			}
		}
	}
	return dirs
}

// watchCreated starts watching a new directory if it is a base directory, lies below one or
// is on the way to one. Files that appeared before the watch was added are handled right away.
func (c *Controller) watchCreated(watcher *fsnotify.Watcher, dir string) error {
	bases := c.baseDirs()
	for _, base := range bases {
		if dir == base || within(base, dir) {
			return addRecursive(watcher, dir, func(file string) { c.Handle(file) })
		}
	}

	for _, base := range bases {
		if within(dir, base) {
			if err := watchBase(watcher, base, func(file string) { c.Handle(file) }); err != nil {
				return err
			}
		}
	}
	return nil
}

// watchBase watches dir recursively. A missing dir is not created; its closest existing parent
// is watched instead until the directory shows up.
func watchBase(watcher *fsnotify.Watcher, dir string, onFile func(string)) error {
	if _, err := os.Stat(dir); err == nil {
		return addRecursive(watcher, dir, onFile)
	}

	parent := dir
	for {
		next := filepath.Dir(parent)
		if next == parent {
			return eris.Errorf("no existing parent for %s", dir)
		}
		parent = next

		if info, err := os.Stat(parent); err == nil && info.IsDir() {
			return eris.Wrapf(watcher.Add(parent), "failed to watch %s", parent)
		}
	}
}

// addRecursive watches dir and every directory below it. onFile, when set, receives the files
// found along the way.
func addRecursive(watcher *fsnotify.Watcher, dir string, onFile func(string)) error {
	return filepath.WalkDir(dir, func(item string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if onFile != nil {
				onFile(item)
			}
			return nil
		}
		if err := watcher.Add(item); err != nil {
			return eris.Wrapf(err, "failed to watch %s", item)
		}
		return nil
	})
}

// within reports whether child lies below parent.
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
