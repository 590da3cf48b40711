package tasks

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/ngld/assetpipe/pkg/fileset"
	"github.com/ngld/assetpipe/pkg/pipeline"
	"github.com/ngld/assetpipe/pkg/transform"
)

var (
	rasterExts   = []string{"jpg", "jpeg", "png"}
	typografLocs = []string{"ru", "en-US"}
)

func (r *Registry) buildTasks() []*pipeline.Task {
	p := r.paths
	return []*pipeline.Task{
		pipeline.NewTask("clean", "Remove the output folder", r.clean, pipeline.Tree(p.BuildFolder)),
		pipeline.NewTask("html", "Expand includes and fix typography in HTML pages", r.html,
			pipeline.Files(p.BuildFolder, "html")),
		pipeline.NewTask("scripts", "Bundle the main script", r.scripts(false), pipeline.Tree(p.BuildJsFolder)),
		pipeline.NewTask("scripts-backend", "Bundle the main script without source maps", r.scripts(true),
			pipeline.Tree(p.BuildJsFolder)),
		pipeline.NewTask("styles", "Compile and prefix style sheets", r.styles(false), pipeline.Tree(p.BuildCssFolder)),
		pipeline.NewTask("styles-backend", "Compile and prefix style sheets without source maps", r.styles(true),
			pipeline.Tree(p.BuildCssFolder)),
		pipeline.NewTask("resources", "Copy static resources", r.resources, pipeline.Tree(p.BuildFolder)),
		pipeline.NewTask("images", "Copy (and in production compress) raster images", r.images,
			pipeline.Files(p.BuildImgFolder, rasterExts...)),
		pipeline.NewTask("webp", "Create WebP versions of the built images", r.modernImages(".webp", transform.EncodeWebP, transform.WebPQuality),
			pipeline.Files(p.BuildImgFolder, "webp")),
		pipeline.NewTask("avif", "Create AVIF versions of the built images", r.modernImages(".avif", transform.EncodeAVIF, transform.AVIFQuality),
			pipeline.Files(p.BuildImgFolder, "avif")),
		pipeline.NewTask("svg-sprite", "Build the SVG sprite", r.svgSprite,
			pipeline.Files(p.BuildImgFolder, "svg", "html")),
	}
}

func (r *Registry) clean(ctx context.Context, _ *pipeline.Run) error {
	pipeline.Log(ctx).Debug().Msgf("Removing %s", r.paths.BuildFolder)
	return eris.Wrapf(os.RemoveAll(r.paths.BuildFolder), "failed to remove %s", r.paths.BuildFolder)
}

func (r *Registry) html(ctx context.Context, run *pipeline.Run) error {
	files, err := fileset.Resolve(r.paths.SrcHTML)
	if err != nil {
		return err
	}

	includer := transform.NewIncluder("@")
	typograf, err := transform.NewTypograf(typografLocs...)
	if err != nil {
		return err
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := includer.ProcessFile(file.Path)
		if err != nil {
			return err
		}

		data, err = typograf.Process(data)
		if err != nil {
			return eris.Wrapf(err, "failed to process %s", file.Path)
		}

		dest := filepath.Join(r.paths.BuildFolder, filepath.FromSlash(file.Rel))
		if err := transform.WriteFile(dest, data); err != nil {
			return err
		}
		run.Publish(pipeline.ReloadPage, r.rel(dest))
	}

	pipeline.Log(ctx).Debug().Msgf("Wrote %d page(s)", len(files))
	return nil
}

func (r *Registry) scripts(backend bool) pipeline.TaskFunc {
	return func(ctx context.Context, run *pipeline.Run) error {
		prod := run.IsProd() && !backend
		outfile := filepath.Join(r.paths.BuildJsFolder, "main.js")

		if !backend && !prod {
			pipeline.Log(ctx).Debug().Msg("Writing source maps")
		}

		written, err := transform.BundleScript(transform.ScriptOptions{
			Entry:      r.paths.SrcMainJs,
			Outfile:    outfile,
			Minify:     prod,
			SourceMap:  !prod && !backend,
			Production: prod,
		})
		if err != nil {
			return err
		}

		if prod || backend {
			if err := removeIfExists(outfile + ".map"); err != nil {
				return err
			}
		}

		for _, item := range written {
			if filepath.Ext(item) == ".js" {
				run.Publish(pipeline.ReloadPage, r.rel(item))
			}
		}
		return nil
	}
}

func (r *Registry) styles(backend bool) pipeline.TaskFunc {
	return func(ctx context.Context, run *pipeline.Run) error {
		pattern, err := fileset.Compile(r.paths.SrcScss)
		if err != nil {
			return err
		}
		files, err := pattern.Resolve()
		if err != nil {
			return err
		}

		prod := run.IsProd() && !backend
		opts := transform.StyleOptions{
			Compress:  prod,
			SourceMap: !prod && !backend,
		}

		for _, file := range files {
			if transform.IsPartial(file.Path) {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			css, err := r.opts.Compiler.Compile(ctx, file.Path, opts.SourceMap)
			if err != nil {
				return err
			}

			rel := transform.ReplaceExt(file.Rel, ".css")
			dest := filepath.Join(r.paths.BuildCssFolder, filepath.FromSlash(rel))
			result, err := transform.ProcessCSS(css, path.Base(rel), opts)
			if err != nil {
				return err
			}

			if err := transform.WriteFile(dest, result.Code); err != nil {
				return err
			}
			if opts.SourceMap {
				if err := transform.WriteFile(dest+".map", result.Map); err != nil {
					return err
				}
			} else if err := removeIfExists(dest + ".map"); err != nil {
				return err
			}

			run.Publish(pipeline.ReloadCSS, r.rel(dest))
		}
		return nil
	}
}

func (r *Registry) resources(ctx context.Context, _ *pipeline.Run) error {
	files, err := fileset.Resolve(r.paths.Resources)
	if err != nil {
		return err
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		dest := filepath.Join(r.paths.BuildFolder, filepath.FromSlash(file.Rel))
		if err := transform.CopyFile(file.Path, dest); err != nil {
			return err
		}
	}

	pipeline.Log(ctx).Debug().Msgf("Copied %d resource(s)", len(files))
	return nil
}

func (r *Registry) images(ctx context.Context, run *pipeline.Run) error {
	files, err := fileset.Resolve(r.paths.SrcImages)
	if err != nil {
		return err
	}

	compress := run.IsProd()
	var eg errgroup.Group
	eg.SetLimit(4)
	for _, file := range files {
		file := file
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			dest := filepath.Join(r.paths.BuildImgFolder, filepath.FromSlash(file.Rel))
			return transform.OptimizeImage(file.Path, dest, compress)
		})
	}

	return eg.Wait()
}

type encodeFunc func(src, dst string, quality int) error

func (r *Registry) modernImages(ext string, encode encodeFunc, quality int) pipeline.TaskFunc {
	return func(ctx context.Context, _ *pipeline.Run) error {
		files, err := fileset.Resolve(r.paths.BuildImages)
		if err != nil {
			return err
		}

		var eg errgroup.Group
		eg.SetLimit(4)
		for _, file := range files {
			file := file
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				return encode(file.Path, transform.ReplaceExt(file.Path, ext), quality)
			})
		}
		return eg.Wait()
	}
}

func (r *Registry) svgSprite(ctx context.Context, run *pipeline.Run) error {
	files, err := fileset.Resolve(r.paths.SrcSvg)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		pipeline.Log(ctx).Debug().Msg("No icons found, skipping sprite")
		return nil
	}

	icons := make([]transform.SpriteIcon, len(files))
	for idx, file := range files {
		icons[idx] = transform.SpriteIcon{Path: file.Path, ID: transform.IconID(file.Path)}
	}

	preview := !run.IsProd()
	result, err := transform.BuildSprite(icons, preview)
	if err != nil {
		return err
	}

	spritePath := filepath.Join(r.paths.BuildImgFolder, "sprite.svg")
	if err := transform.WriteFile(spritePath, result.Sprite); err != nil {
		return err
	}

	previewPath := filepath.Join(r.paths.BuildImgFolder, "sprite.stack.html")
	if preview {
		if err := transform.WriteFile(previewPath, result.Preview); err != nil {
			return err
		}
	} else if err := removeIfExists(previewPath); err != nil {
		return err
	}

	run.Publish(pipeline.ReloadPage, r.rel(spritePath))
	return nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !eris.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "failed to remove %s", path)
	}
	return nil
}
