package transform

import (
	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"
)

// ScriptOptions configures a bundle.
type ScriptOptions struct {
	Entry   string
	Outfile string
	// Minify enables every esbuild minification pass.
	Minify bool
	// SourceMap writes a linked .map file next to the bundle.
	SourceMap bool
	// Production sets process.env.NODE_ENV for libraries that check it.
	Production bool
}

// BundleScript bundles the entry point and everything it imports into a single file. Syntax is
// lowered to ES2015 for older browsers. The written paths are returned.
func BundleScript(opts ScriptOptions) ([]string, error) {
	nodeEnv := `"development"`
	if opts.Production {
		nodeEnv = `"production"`
	}

	sourcemap := api.SourceMapNone
	if opts.SourceMap {
		sourcemap = api.SourceMapLinked
	}

	result := api.Build(api.BuildOptions{
		EntryPoints:       []string{opts.Entry},
		Outfile:           opts.Outfile,
		Bundle:            true,
		Write:             true,
		Format:            api.FormatIIFE,
		Target:            api.ES2015,
		Sourcemap:         sourcemap,
		MinifyWhitespace:  opts.Minify,
		MinifyIdentifiers: opts.Minify,
		MinifySyntax:      opts.Minify,
		LogLevel:          api.LogLevelSilent,
		Define: map[string]string{
			"process.env.NODE_ENV": nodeEnv,
		},
	})

	if len(result.Errors) > 0 {
		return nil, eris.Errorf("failed to bundle %s:\n%s", opts.Entry, formatMessages(result.Errors))
	}

	written := make([]string, 0, len(result.OutputFiles))
	for _, file := range result.OutputFiles {
		written = append(written, file.Path)
	}
	return written, nil
}
