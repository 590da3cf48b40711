// Package shell runs external transformer commands (like the sass compiler) through the
// mvdan.cc/sh interpreter so command lines behave the same on every platform.
package shell

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Command describes a single invocation.
type Command struct {
	// Script is a shell snippet. {name} placeholders are replaced with the quoted Vars entry.
	Script string
	Vars   map[string]string
	Dir    string
	Env    map[string]string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

var placeholder = regexp.MustCompile(`\{([a-z][a-z0-9_]*)\}`)

// Expand replaces every {name} placeholder in script with the shell-quoted value from vars.
// Parameter expansions like ${name} are left alone.
func Expand(script string, vars map[string]string) (string, error) {
	var result strings.Builder
	last := 0
	for _, match := range placeholder.FindAllStringSubmatchIndex(script, -1) {
		start, end := match[0], match[1]
		if start > 0 && script[start-1] == '$' {
			continue
		}

		name := script[match[2]:match[3]]
		value, ok := vars[name]
		if !ok {
			return "", eris.Errorf("unknown placeholder %s in %q", script[start:end], script)
		}

		quoted, err := syntax.Quote(value, syntax.LangBash)
		if err != nil {
			return "", eris.Wrapf(err, "can't quote value for %s", script[start:end])
		}

		result.WriteString(script[last:start])
		result.WriteString(quoted)
		last = end
	}
	result.WriteString(script[last:])

	return result.String(), nil
}

func getEnv(overrides map[string]string) expand.Environ {
	envVars := os.Environ()

	keys := make([]string, 0, len(overrides))
	for name := range overrides {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	for _, name := range keys {
		envVars = append(envVars, fmt.Sprintf("%s=%s", name, overrides[name]))
	}

	return expand.ListEnviron(envVars...)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

// Run executes the command. A non-zero exit status is returned as an error that includes
// whatever the command wrote to stderr.
func Run(ctx context.Context, cmd Command) error {
	script, err := Expand(cmd.Script, cmd.Vars)
	if err != nil {
		return err
	}

	file, err := syntax.NewParser().Parse(strings.NewReader(script), "command")
	if err != nil {
		return eris.Wrapf(err, "failed to parse command %s", script)
	}

	stderr := new(bytes.Buffer)
	var errOut io.Writer = stderr
	if cmd.Stderr != nil {
		errOut = io.MultiWriter(stderr, cmd.Stderr)
	}

	stdout := cmd.Stdout
	if stdout == nil {
		stdout = io.Discard
	}

	dir := cmd.Dir
	if dir == "" {
		dir = "."
	}

	runner, err := interp.New(
		interp.Dir(dir),
		interp.Env(getEnv(cmd.Env)),
		interp.ExecHandler(interp.DefaultExecHandler(2*time.Second)),
		interp.OpenHandler(openHandler),
		interp.StdIO(cmd.Stdin, stdout, errOut),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "Failed to initialize runner")
	}

	err = runner.Run(ctx, file)
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return eris.Wrapf(err, "%s failed: %s", script, msg)
		}
		return eris.Wrapf(err, "%s failed", script)
	}

	return nil
}

// Output runs the command and returns its stdout.
func Output(ctx context.Context, cmd Command) ([]byte, error) {
	buffer := new(bytes.Buffer)
	cmd.Stdout = buffer
	if err := Run(ctx, cmd); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
