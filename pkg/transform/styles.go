package transform

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/rotisserie/eris"

	"github.com/ngld/assetpipe/pkg/shell"
)

// StyleCompiler turns a style source (usually SCSS) into plain CSS. If sourceMap is set, the
// CSS carries an inline source map pointing back to the sources.
type StyleCompiler interface {
	Compile(ctx context.Context, file string, sourceMap bool) ([]byte, error)
}

// CommandCompiler runs an external compiler that prints the CSS to stdout. The command may use
// the {in} (source file), {dir} (directory of the source file) and {sourcemap} placeholders.
// {sourcemap} expands to the sass flag that embeds or disables the source map.
type CommandCompiler struct {
	Command string
	Dir     string
}

func (c CommandCompiler) Compile(ctx context.Context, file string, sourceMap bool) ([]byte, error) {
	mapFlag := "--no-source-map"
	if sourceMap {
		mapFlag = "--embed-source-map"
	}

	out, err := shell.Output(ctx, shell.Command{
		Script: c.Command,
		Dir:    c.Dir,
		Vars: map[string]string{
			"in":        file,
			"dir":       filepath.Dir(file),
			"sourcemap": mapFlag,
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to compile %s", file)
	}
	return out, nil
}

// LegacyEngines approximates "last 10 versions" of the major browsers. esbuild adds the vendor
// prefixes these engines need.
var LegacyEngines = []api.Engine{
	{Name: api.EngineChrome, Version: "80"},
	{Name: api.EngineEdge, Version: "80"},
	{Name: api.EngineFirefox, Version: "78"},
	{Name: api.EngineSafari, Version: "12"},
	{Name: api.EngineIOS, Version: "12"},
	{Name: api.EngineOpera, Version: "67"},
}

// StyleOptions controls the post-processing of compiled CSS.
type StyleOptions struct {
	// Compress merges and minifies rules (the structural level 2 pass).
	Compress bool
	// SourceMap returns an external map and appends a sourceMappingURL comment. An inline map
	// in the input is chained, so the result points at the original sources.
	SourceMap bool
}

// StyleResult holds the processed sheet.
type StyleResult struct {
	Code []byte
	Map  []byte
}

// ProcessCSS adds vendor prefixes and applies the optional compression and source map. name
// is the file name of the output sheet and is used for the map reference.
func ProcessCSS(css []byte, name string, opts StyleOptions) (StyleResult, error) {
	options := api.TransformOptions{
		Loader:           api.LoaderCSS,
		Engines:          LegacyEngines,
		Sourcefile:       name,
		MinifyWhitespace: opts.Compress,
		MinifySyntax:     opts.Compress,
		LegalComments:    api.LegalCommentsNone,
		LogLevel:         api.LogLevelSilent,
		Sourcemap:        api.SourceMapNone,
		SourcesContent:   api.SourcesContentInclude,
	}
	if opts.SourceMap {
		options.Sourcemap = api.SourceMapExternal
	}

	result := api.Transform(string(css), options)
	if len(result.Errors) > 0 {
		return StyleResult{}, eris.Errorf("failed to process %s:\n%s", name, formatMessages(result.Errors))
	}

	out := StyleResult{Code: result.Code}
	if opts.SourceMap {
		out.Map = result.Map
		out.Code = append(out.Code, []byte(fmt.Sprintf("/*# sourceMappingURL=%s.map */\n", filepath.Base(name)))...)
	}
	return out, nil
}

// IsPartial reports whether a style source is only meant to be imported.
func IsPartial(file string) bool {
	return strings.HasPrefix(filepath.Base(file), "_")
}

func formatMessages(msgs []api.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Location != nil {
			lines = append(lines, fmt.Sprintf("%s:%d:%d: %s", msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text))
		} else {
			lines = append(lines, msg.Text)
		}
	}
	return strings.Join(lines, "\n")
}
