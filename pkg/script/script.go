// Package script loads pipeline.star files. They declare additional shell tasks and entry points
// built from the built-in tasks.
package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"

	"github.com/ngld/assetpipe/pkg/pipeline"
)

// DefaultFile is the name of the script in the project root.
const DefaultFile = "pipeline.star"

type parserCtx struct {
	ctx          context.Context
	host         Host
	options      map[string]ScriptOption
	optionValues map[string]string
	yamlCache    map[string]interface{}
	taskNames    map[string]bool
	filepath     string
	projectRoot  string
	entrypoints  []string
}

// Result lists what a script declared.
type Result struct {
	Options     map[string]ScriptOption
	Entrypoints []string
}

func getCtx(thread *starlark.Thread) *parserCtx {
	return thread.Local("parserCtx").(*parserCtx)
}

func info(thread *starlark.Thread, msg string, args ...interface{}) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	pipeline.Log(ctx.ctx).Info().
		Msgf("%s:%d:%d: %s", simplifyPath(ctx, ctx.filepath), pos.Line, pos.Col, fmt.Sprintf(msg, args...))
}

func warn(thread *starlark.Thread, msg string, args ...interface{}) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos

	pipeline.Log(ctx.ctx).Warn().
		Msgf("%s:%d:%d: %s", simplifyPath(ctx, ctx.filepath), pos.Line, pos.Col, fmt.Sprintf(msg, args...))
}

// Exists reports whether the project has a script.
func Exists(projectRoot string) bool {
	info, err := os.Stat(filepath.Join(projectRoot, DefaultFile))
	return err == nil && info.Mode().IsRegular()
}

// Load executes the given script. Every entry point it declares is added to host.
func Load(ctx context.Context, filename, projectRoot string, host Host, options map[string]string) (*Result, error) {
	projectRoot, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve %s", projectRoot)
	}

	filename, err = filepath.Abs(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve %s", filename)
	}

	if options == nil {
		options = map[string]string{}
	}

	builtins := starlark.StringDict{
		"OS":         starlark.String(runtime.GOOS),
		"ARCH":       starlark.String(runtime.GOARCH),
		"info":       starlark.NewBuiltin("info", starInfo),
		"warn":       starlark.NewBuiltin("warn", starWarn),
		"error":      starlark.NewBuiltin("error", starError),
		"getenv":     starlark.NewBuiltin("getenv", getenv),
		"option":     starlark.NewBuiltin("option", option),
		"read_yaml":  starlark.NewBuiltin("read_yaml", readYaml),
		"task":       starlark.NewBuiltin("task", task),
		"builtin":    starlark.NewBuiltin("builtin", builtin),
		"series":     starlark.NewBuiltin("series", compose(false)),
		"parallel":   starlark.NewBuiltin("parallel", compose(true)),
		"entrypoint": starlark.NewBuiltin("entrypoint", entrypoint),
	}

	thread := &starlark.Thread{
		Name: "main",
		Print: func(thread *starlark.Thread, msg string) {
			pipeline.Log(ctx).Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	threadCtx := parserCtx{
		ctx:          ctx,
		host:         host,
		filepath:     filename,
		projectRoot:  projectRoot,
		options:      make(map[string]ScriptOption),
		optionValues: options,
		yamlCache:    make(map[string]interface{}),
		taskNames:    make(map[string]bool),
		entrypoints:  make([]string, 0),
	}
	thread.SetLocal("parserCtx", &threadCtx)

	script, err := os.ReadFile(filename)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", filename)
	}

	_, err = starlark.ExecFile(thread, simplifyPath(&threadCtx, filename), script, builtins)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, eris.Errorf("failed to execute %s:\n%s", simplifyPath(&threadCtx, filename), evalError.Backtrace())
		}
		return nil, eris.Wrapf(err, "failed to execute %s", simplifyPath(&threadCtx, filename))
	}

	for name := range options {
		if _, ok := threadCtx.options[name]; !ok {
			return nil, eris.Errorf("%s does not declare an option %s", simplifyPath(&threadCtx, filename), name)
		}
	}

	return &Result{
		Options:     threadCtx.options,
		Entrypoints: threadCtx.entrypoints,
	}, nil
}
