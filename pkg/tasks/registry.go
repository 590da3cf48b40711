// Package tasks defines the built-in tasks and entry points of the pipeline.
package tasks

import (
	"io"
	"path/filepath"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/ngld/assetpipe/pkg/config"
	"github.com/ngld/assetpipe/pkg/devserver"
	"github.com/ngld/assetpipe/pkg/pipeline"
	"github.com/ngld/assetpipe/pkg/transform"
	"github.com/ngld/assetpipe/pkg/watch"
)

// Options configures a Registry. Only Config is required.
type Options struct {
	Config *config.Config
	// Compiler compiles style sheets. Defaults to the command from the config.
	Compiler transform.StyleCompiler
	// Progress receives progress bars of long operations.
	Progress io.Writer
	// Notifier reports failed reruns in watch mode. Defaults to desktop notifications if they
	// are enabled in the config.
	Notifier watch.Notifier
	// Logger is used by the development server.
	Logger *zerolog.Logger
}

// Entrypoint is a named composition the user can invoke.
type Entrypoint struct {
	Name    string
	Aliases []string
	Desc    string
	Node    pipeline.Node
}

// Registry holds all tasks and entry points of a project.
type Registry struct {
	cfg      *config.Config
	paths    config.Paths
	opts     Options
	registry *prometheus.Registry
	metrics  *pipeline.Metrics
	server   *devserver.Server

	tasks       map[string]*pipeline.Task
	entrypoints map[string]*Entrypoint
	aliases     map[string]string
}

// New creates the built-in tasks and entry points.
func New(opts Options) (*Registry, error) {
	if opts.Config == nil {
		return nil, eris.New("tasks need a config")
	}

	if opts.Compiler == nil {
		opts.Compiler = transform.CommandCompiler{Command: opts.Config.Styles.Command, Dir: opts.Config.Root}
	}
	if opts.Notifier == nil && opts.Config.Notify.Enabled {
		opts.Notifier = watch.DesktopNotifier{}
	}

	reg := prometheus.NewRegistry()
	r := &Registry{
		cfg:         opts.Config,
		paths:       opts.Config.Paths(),
		opts:        opts,
		registry:    reg,
		metrics:     pipeline.NewMetrics(reg),
		tasks:       make(map[string]*pipeline.Task),
		entrypoints: make(map[string]*Entrypoint),
		aliases:     make(map[string]string),
	}
	r.server = devserver.New(devserver.Options{
		Address:  opts.Config.Server.Address,
		Root:     r.paths.BuildFolder,
		Registry: reg,
		Logger:   opts.Logger,
	})

	for _, task := range r.buildTasks() {
		r.tasks[task.Short] = task
	}
	for _, task := range r.releaseTasks() {
		r.tasks[task.Short] = task
	}
	watchTask := r.watchTask()
	r.tasks[watchTask.Short] = watchTask

	for _, ep := range r.builtinEntrypoints() {
		if err := r.AddEntrypoint(ep); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewRun creates a Run that records metrics and pushes outputs to the development server.
func (r *Registry) NewRun() *pipeline.Run {
	return pipeline.NewRun(
		pipeline.WithMetrics(r.metrics),
		pipeline.WithReloader(r.server.Hub()),
	)
}

// Paths returns the path configuration the tasks were built from.
func (r *Registry) Paths() config.Paths {
	return r.paths
}

// Task returns a task by name.
func (r *Registry) Task(name string) (*pipeline.Task, bool) {
	task, ok := r.tasks[name]
	return task, ok
}

// MustTask is like Task but panics if the task does not exist.
func (r *Registry) MustTask(name string) *pipeline.Task {
	task, ok := r.tasks[name]
	if !ok {
		panic("unknown task " + name)
	}
	return task
}

// Tasks returns all tasks sorted by name.
func (r *Registry) Tasks() []*pipeline.Task {
	result := make([]*pipeline.Task, 0, len(r.tasks))
	for _, task := range r.tasks {
		result = append(result, task)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Short < result[j].Short
	})
	return result
}

// AddEntrypoint validates and registers an entry point. Names and aliases must be unique.
func (r *Registry) AddEntrypoint(ep *Entrypoint) error {
	if err := pipeline.Validate(ep.Node); err != nil {
		return eris.Wrapf(err, "invalid entry point %s", ep.Name)
	}

	for _, name := range append([]string{ep.Name}, ep.Aliases...) {
		if _, ok := r.entrypoints[name]; ok {
			return eris.Errorf("entry point %s is already defined", name)
		}
		if _, ok := r.aliases[name]; ok {
			return eris.Errorf("entry point %s is already defined", name)
		}
	}

	r.entrypoints[ep.Name] = ep
	for _, alias := range ep.Aliases {
		r.aliases[alias] = ep.Name
	}
	return nil
}

// Entrypoint returns an entry point by name or alias.
func (r *Registry) Entrypoint(name string) (*Entrypoint, bool) {
	if target, ok := r.aliases[name]; ok {
		name = target
	}
	ep, ok := r.entrypoints[name]
	return ep, ok
}

// Entrypoints returns all entry points sorted by name.
func (r *Registry) Entrypoints() []*Entrypoint {
	result := make([]*Entrypoint, 0, len(r.entrypoints))
	for _, ep := range r.entrypoints {
		result = append(result, ep)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Lookup resolves an entry point (preferred) or a single task.
func (r *Registry) Lookup(name string) (pipeline.Node, bool) {
	if ep, ok := r.Entrypoint(name); ok {
		return ep.Node, true
	}
	if task, ok := r.tasks[name]; ok {
		return task, true
	}
	return nil, false
}

// rel returns path relative to the output folder with forward slashes.
func (r *Registry) rel(path string) string {
	rel, err := filepath.Rel(r.paths.BuildFolder, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func (r *Registry) builtinEntrypoints() []*Entrypoint {
	t := r.MustTask
	assets := func(scripts, styles string) []pipeline.Node {
		return []pipeline.Node{
			t("clean"),
			t("html"),
			t(scripts),
			t(styles),
			t("resources"),
			t("images"),
			pipeline.Parallel("modern-images", t("webp"), t("avif")),
			t("svg-sprite"),
		}
	}

	return []*Entrypoint{
		{
			Name:    "default",
			Aliases: []string{"dev"},
			Desc:    "Development build, then watch and serve the output",
			Node:    pipeline.Series("default", append(assets("scripts", "styles"), t("watch"))...),
		},
		{
			Name: "backend",
			Desc: "Development build without source maps and without watching",
			Node: pipeline.Series("backend", assets("scripts-backend", "styles-backend")...),
		},
		{
			Name:    "build",
			Aliases: []string{"prod"},
			Desc:    "Production build",
			Node: pipeline.Series("build", append(append([]pipeline.Node{pipeline.ToProd()},
				assets("scripts", "styles")...), t("html-minify"))...),
		},
		{
			Name: "cache",
			Desc: "Add content hashes to asset names and rewrite references",
			Node: pipeline.Series("cache", t("cache"), t("rewrite")),
		},
		{
			Name: "zip",
			Desc: "Pack the output folder into an archive",
			Node: t("zip"),
		},
	}
}
