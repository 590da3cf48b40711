package script

import (
	"bytes"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"mvdan.cc/sh/v3/syntax"
)

// normalizePath resolves paths relative to the script. A leading "//" refers to the project root.
func normalizePath(ctx *parserCtx, pathList ...string) string {
	result := filepath.Dir(ctx.filepath)

	for _, path := range pathList {
		if strings.HasPrefix(path, "//") {
			result = filepath.Join(ctx.projectRoot, path[2:])
		} else if strings.HasPrefix(path, "/") {
			result = filepath.Join(filepath.VolumeName(result), path)
		} else if !filepath.IsAbs(path) {
			result = filepath.Join(result, path)
		} else {
			result = path
		}
	}

	return filepath.Clean(result)
}

func simplifyPath(ctx *parserCtx, path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	if strings.HasPrefix(absPath, ctx.projectRoot+string(filepath.Separator)) {
		return "//" + filepath.ToSlash(absPath[len(ctx.projectRoot)+1:])
	}
	return path
}

type starlarkIterable interface {
	Len() int
	Iterate() starlark.Iterator
}

func starlarkIterable2stringSlice(input starlarkIterable, field string) ([]string, error) {
	if value, ok := input.(*starlark.List); ok && value == nil {
		return []string{}, nil
	}

	result := make([]string, 0, input.Len())
	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		switch value := item.(type) {
		case starlark.String:
			result = append(result, value.GoString())
		default:
			return nil, eris.Errorf("expected all items in %s to be strings but found %s", field, item.Type())
		}
	}
	return result, nil
}

func starlarkIterable2nodeSlice(input starlarkIterable, field string) ([]*Node, error) {
	if value, ok := input.(*starlark.List); ok && value == nil {
		return []*Node{}, nil
	}

	result := make([]*Node, 0, input.Len())
	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		node, ok := item.(*Node)
		if !ok {
			return nil, eris.Errorf("expected all items in %s to be tasks but found %s", field, item.Type())
		}
		result = append(result, node)
	}
	return result, nil
}

// quoteCmdParts turns a list of arguments into a single shell command line.
func quoteCmdParts(parts []starlark.Value) (string, error) {
	words := make([]string, len(parts))
	for idx, part := range parts {
		value, ok := part.(starlark.String)
		if !ok {
			return "", eris.Errorf("found argument of type %s but only strings are supported: %s", part.Type(), part.String())
		}

		quoted, err := syntax.Quote(value.GoString(), syntax.LangBash)
		if err != nil {
			return "", eris.Wrapf(err, "failed to quote %s", value.GoString())
		}
		words[idx] = quoted
	}
	return strings.Join(words, " "), nil
}

// lineWriter forwards every complete line to the logger.
type lineWriter struct {
	lock   sync.Mutex
	logger *zerolog.Logger
	level  zerolog.Level
	buffer bytes.Buffer
}

func (w *lineWriter) Write(data []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()

	w.buffer.Write(data)
	for {
		line, err := w.buffer.ReadString('\n')
		if err != nil {
			// incomplete line, keep it for the next call
			w.buffer.Reset()
			w.buffer.WriteString(line)
			break
		}

		w.emit(line)
	}
	return len(data), nil
}

// Flush logs whatever is left in the buffer.
func (w *lineWriter) Flush() {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.buffer.Len() > 0 {
		w.emit(w.buffer.String())
		w.buffer.Reset()
	}
}

func (w *lineWriter) emit(line string) {
	line = strings.TrimRight(line, "\r\n")
	if line != "" {
		w.logger.WithLevel(w.level).Msg(line)
	}
}
