package tasks

import (
	"context"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/ngld/assetpipe/pkg/pipeline"
	"github.com/ngld/assetpipe/pkg/watch"
)

func (r *Registry) watchTask() *pipeline.Task {
	return pipeline.NewTask("watch", "Serve the output folder and rebuild on changes", r.watch)
}

// Watcher creates the controller used by the watch task.
func (r *Registry) Watcher(run *pipeline.Run) (*watch.Controller, error) {
	p := r.paths
	ctl := watch.NewController(run, watch.Options{
		Lull:     r.cfg.Watch.Lull,
		Notifier: r.opts.Notifier,
	})

	bindings := []struct {
		task     string
		patterns []string
	}{
		{"styles", []string{p.SrcScss}},
		{"scripts", []string{p.SrcFullJs}},
		{"html", []string{p.SrcPartials, p.SrcHTML}},
		{"resources", []string{p.Resources}},
		{"images", []string{p.SrcImages}},
		{"webp", []string{p.BuildImages}},
		{"avif", []string{p.BuildImages}},
		{"svg-sprite", []string{p.SrcSvg}},
	}

	for _, b := range bindings {
		if err := ctl.Add(r.MustTask(b.task), b.patterns...); err != nil {
			return nil, err
		}
	}
	return ctl, nil
}

func (r *Registry) watch(ctx context.Context, run *pipeline.Run) error {
	ctl, err := r.Watcher(run)
	if err != nil {
		return err
	}

	pipeline.Log(ctx).Info().Msgf("Serving %s", filepath.Clean(r.paths.BuildFolder))

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return r.server.ListenAndServe(ctx)
	})
	eg.Go(func() error {
		return ctl.Run(ctx)
	})
	return eg.Wait()
}
