package tasks

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ngld/assetpipe/pkg/fileset"
	"github.com/ngld/assetpipe/pkg/pipeline"
	"github.com/ngld/assetpipe/pkg/transform"
)

var cacheExts = []string{"css", "js", "svg", "png", "jpg", "jpeg", "webp", "avif", "woff2"}

func (r *Registry) releaseTasks() []*pipeline.Task {
	p := r.paths
	return []*pipeline.Task{
		pipeline.NewTask("html-minify", "Collapse whitespace in the built HTML pages", r.htmlMinify,
			pipeline.Tree(p.BuildFolder, "html")),
		pipeline.NewTask("cache", "Rename assets to include a content hash", r.cache,
			pipeline.Tree(p.BuildFolder, cacheExts...),
			pipeline.Files(filepath.Dir(r.cfg.ManifestWritePath()), "json")),
		pipeline.NewTask("rewrite", "Point references in style sheets and pages to the hashed assets", r.rewrite,
			pipeline.Files(p.BuildCssFolder, "css"), pipeline.Tree(p.BuildFolder, "html")),
		pipeline.NewTask("zip", "Pack the output folder", r.zip,
			pipeline.Files(p.BuildFolder, "zip", "xz", "br")),
	}
}

func (r *Registry) htmlMinify(ctx context.Context, _ *pipeline.Run) error {
	files, err := fileset.Resolve(filepath.Join(r.paths.BuildFolder, "**", "*.html"))
	if err != nil {
		return err
	}

	minifier := transform.NewHTMLMinifier()
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := os.ReadFile(file.Path)
		if err != nil {
			return eris.Wrapf(err, "failed to read %s", file.Path)
		}

		data, err = minifier.Minify(file.Path, data)
		if err != nil {
			return err
		}

		if err := transform.WriteFile(file.Path, data); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) cacheFiles() ([]fileset.File, error) {
	pattern := filepath.Join(r.paths.BuildFolder, "**", "*.{"+strings.Join(cacheExts, ",")+"}")
	return fileset.Resolve(pattern)
}

func (r *Registry) cache(ctx context.Context, _ *pipeline.Run) error {
	files, err := r.cacheFiles()
	if err != nil {
		return err
	}

	manifest, err := transform.Revision(files)
	if err != nil {
		return err
	}

	target := r.cfg.ManifestWritePath()
	if err := manifest.Write(target); err != nil {
		return err
	}

	log := pipeline.Log(ctx)
	for _, orig := range manifest.Keys() {
		log.Debug().Msgf("%s -> %s", orig, manifest[orig])
	}
	log.Info().Msgf("Revisioned %d file(s), manifest written to %s", len(manifest), target)
	return nil
}

func (r *Registry) rewrite(ctx context.Context, _ *pipeline.Run) error {
	source := r.cfg.ManifestReadPath()
	manifest, err := transform.ReadManifest(source)
	if err != nil {
		return err
	}

	files, err := fileset.Resolve(
		filepath.Join(r.paths.BuildCssFolder, "*.css"),
		filepath.Join(r.paths.BuildFolder, "**", "*.html"),
	)
	if err != nil {
		return err
	}

	rw := transform.NewRewriter(manifest)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := os.ReadFile(file.Path)
		if err != nil {
			return eris.Wrapf(err, "failed to read %s", file.Path)
		}

		if err := transform.WriteFile(file.Path, rw.Rewrite(r.rel(file.Path), data)); err != nil {
			return err
		}
	}

	pipeline.Log(ctx).Debug().Msgf("Rewrote references in %d file(s) using %s", len(files), source)
	return nil
}

func (r *Registry) zip(ctx context.Context, _ *pipeline.Run) error {
	removed, err := transform.RemoveArchives(r.paths.BuildFolder)
	if err != nil {
		return err
	}
	for _, item := range removed {
		pipeline.Log(ctx).Debug().Msgf("Removed old archive %s", item)
	}

	files, err := fileset.Resolve(filepath.Join(r.paths.BuildFolder, "**", "*.*"))
	if err != nil {
		return err
	}

	name, err := r.cfg.ProjectName()
	if err != nil {
		return err
	}

	format := r.cfg.Archive.Format
	dest := filepath.Join(r.paths.BuildFolder, name+transform.ArchiveExt(format))
	err = transform.CreateArchive(ctx, dest, files, transform.ArchiveOptions{
		Format:   format,
		Progress: r.opts.Progress,
	})
	if err != nil {
		return err
	}

	pipeline.Log(ctx).Info().Msgf("Packed %d file(s) into %s", len(files), dest)
	return nil
}
