package script

import (
	"context"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"

	"github.com/ngld/assetpipe/pkg/pipeline"
	"github.com/ngld/assetpipe/pkg/shell"
	"github.com/ngld/assetpipe/pkg/tasks"
)

func starInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	info(thread, message)
	return starlark.None, nil
}

func starWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	warn(thread, message)
	return starlark.None, nil
}

func starError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

func getenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	var defaultValue string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &key, &defaultValue)
	if err != nil {
		return nil, err
	}

	value, ok := os.LookupEnv(key)
	if !ok {
		value = defaultValue
	}

	return starlark.String(value), nil
}

func option(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue starlark.String
	var help string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if _, ok := ctx.options[name]; ok {
		return nil, eris.Errorf("option %s is declared twice", name)
	}

	ctx.options[name] = ScriptOption{
		DefaultValue: defaultValue,
		Help:         help,
	}

	value, ok := ctx.optionValues[name]
	if ok {
		return starlark.String(value), nil
	}

	return defaultValue, nil
}

func readYaml(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var yamlFile string
	var yamlKey string
	var defaultValue starlark.Value = starlark.None

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &yamlFile, &yamlKey, &defaultValue)
	if err != nil {
		return nil, err
	}

	yamlFile = normalizePath(getCtx(thread), yamlFile)

	cache := getCtx(thread).yamlCache
	doc, loaded := cache[yamlFile]
	if !loaded {
		content, err := os.ReadFile(yamlFile)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to open file %s", yamlFile)
		}

		err = yaml.Unmarshal(content, &doc)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse file %s", yamlFile)
		}
		cache[yamlFile] = doc
	}

	value := reflect.ValueOf(doc)
	for _, key := range strings.Split(yamlKey, ".") {
		if value.Kind() == reflect.Interface {
			value = value.Elem()
		}

		switch value.Kind() {
		case reflect.Map:
			value = value.MapIndex(reflect.ValueOf(key))
		case reflect.Slice:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= value.Len() {
				return defaultValue, nil
			}
			value = value.Index(idx)
		case reflect.Invalid:
			return defaultValue, nil
		default:
			return nil, eris.Errorf("encountered unexpected value of kind %v in YAML document", value.Kind())
		}
	}

	if value.Kind() == reflect.Interface {
		value = value.Elem()
	}
	if !value.IsValid() {
		return defaultValue, nil
	}

	switch value := value.Interface().(type) {
	case string:
		return starlark.String(value), nil
	case int:
		return starlark.MakeInt(value), nil
	case float64:
		return starlark.Float(value), nil
	case bool:
		return starlark.Bool(value), nil
	case nil:
		return defaultValue, nil
	default:
		return nil, eris.Errorf("can't return value %v", value)
	}
}

func task(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var short, desc string
	var hidden bool
	var cmds *starlark.List
	var deps *starlark.List
	var outputs *starlark.List
	var env *starlark.Dict

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "short?", &short, "desc?", &desc, "cmds?", &cmds,
		"deps?", &deps, "outputs?", &outputs, "env?", &env, "hidden?", &hidden)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if short == "" {
		hidden = true
		short = "auto#" + nanoid.New()
	}

	if _, ok := ctx.host.Lookup(short); ok {
		return nil, eris.Errorf("the name %s is already used by a built-in task or entry point", short)
	}
	if ctx.taskNames[short] {
		return nil, eris.Errorf("task %s is declared twice", short)
	}
	ctx.taskNames[short] = true

	if cmds == nil || cmds.Len() == 0 {
		return nil, eris.Errorf("task %s has no commands", short)
	}

	scripts := make([]string, 0, cmds.Len())
	iter := cmds.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		switch value := item.(type) {
		case starlark.String:
			scripts = append(scripts, value.GoString())
		case starlark.Tuple:
			line, err := quoteCmdParts(value)
			if err != nil {
				return nil, eris.Wrapf(err, "failed to process command #%d", len(scripts))
			}
			scripts = append(scripts, line)
		case *starlark.List:
			parts := make([]starlark.Value, value.Len())
			for idx := range parts {
				parts[idx] = value.Index(idx)
			}

			line, err := quoteCmdParts(parts)
			if err != nil {
				return nil, eris.Wrapf(err, "failed to process command #%d", len(scripts))
			}
			scripts = append(scripts, line)
		default:
			return nil, eris.Errorf("%s: unexpected type %s. Only strings, tuples and lists are valid", fn.Name(), item.Type())
		}
	}

	outputPaths, err := starlarkIterable2stringSlice(outputs, "outputs")
	if err != nil {
		return nil, err
	}
	claims := make([]pipeline.Claim, len(outputPaths))
	for idx, path := range outputPaths {
		claims[idx] = pipeline.Tree(normalizePath(ctx, path))
	}

	depNodes, err := starlarkIterable2nodeSlice(deps, "deps")
	if err != nil {
		return nil, err
	}

	envVars := map[string]string{}
	if env != nil {
		for _, rawKey := range env.Keys() {
			key, ok := rawKey.(starlark.String)
			if !ok {
				return nil, eris.Errorf("found key type %s in env map but only strings are supported", rawKey.Type())
			}

			rawValue, _, err := env.Get(rawKey)
			if err != nil {
				return nil, err
			}
			value, ok := rawValue.(starlark.String)
			if !ok {
				return nil, eris.Errorf("found value of type %s for key %s but only strings are supported", rawValue.Type(), key.GoString())
			}
			envVars[key.GoString()] = value.GoString()
		}
	}

	result := pipeline.NewTask(short, desc, shellTask(ctx.projectRoot, scripts, envVars), claims...)
	result.Hidden = hidden

	if len(depNodes) == 0 {
		return &Node{node: result}, nil
	}

	steps := make([]pipeline.Node, 0, len(depNodes)+1)
	for _, dep := range depNodes {
		steps = append(steps, dep.node)
	}
	steps = append(steps, result)
	return &Node{node: pipeline.Series(short, steps...)}, nil
}

// shellTask runs each command in order. The project root and the current mode are available as
// {root} and {mode} placeholders and as the ASSETPIPE_MODE environment variable.
func shellTask(root string, scripts []string, env map[string]string) pipeline.TaskFunc {
	return func(ctx context.Context, r *pipeline.Run) error {
		logger := pipeline.Log(ctx)
		stdout := &lineWriter{logger: logger, level: zerolog.InfoLevel}
		stderr := &lineWriter{logger: logger, level: zerolog.WarnLevel}
		defer stdout.Flush()
		defer stderr.Flush()

		mode := r.Mode().String()
		cmdEnv := make(map[string]string, len(env)+1)
		for k, v := range env {
			cmdEnv[k] = v
		}
		cmdEnv["ASSETPIPE_MODE"] = mode

		for idx, script := range scripts {
			if err := ctx.Err(); err != nil {
				return err
			}

			err := shell.Run(ctx, shell.Command{
				Script: script,
				Vars:   map[string]string{"root": root, "mode": mode},
				Dir:    root,
				Env:    cmdEnv,
				Stdout: stdout,
				Stderr: stderr,
			})
			if err != nil {
				return eris.Wrapf(err, "command #%d failed", idx+1)
			}
		}
		return nil
	}
}

func builtin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &name)
	if err != nil {
		return nil, err
	}

	node, ok := getCtx(thread).host.Lookup(name)
	if !ok {
		return nil, eris.Errorf("unknown task %s", name)
	}
	return &Node{node: node}, nil
}

func compose(parallel bool) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, eris.Errorf("%s does not accept keyword arguments", fn.Name())
		}
		if len(args) < 2 {
			return nil, eris.Errorf("%s expects a name and at least one task", fn.Name())
		}

		name, ok := args[0].(starlark.String)
		if !ok {
			return nil, eris.Errorf("%s: the first argument must be a string, not %s", fn.Name(), args[0].Type())
		}

		steps, err := starlarkIterable2nodeSlice(args[1:], fn.Name())
		if err != nil {
			return nil, err
		}

		nodes := make([]pipeline.Node, len(steps))
		for idx, step := range steps {
			nodes[idx] = step.node
		}

		var group *pipeline.Group
		if parallel {
			group = pipeline.Parallel(name.GoString(), nodes...)
		} else {
			group = pipeline.Series(name.GoString(), nodes...)
		}

		if err := pipeline.Validate(group); err != nil {
			return nil, err
		}
		return &Node{node: group}, nil
	}
}

func entrypoint(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, desc string
	var node *Node
	var aliases *starlark.List

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "node", &node, "desc?", &desc, "aliases?", &aliases)
	if err != nil {
		return nil, err
	}

	aliasNames, err := starlarkIterable2stringSlice(aliases, "aliases")
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	err = ctx.host.AddEntrypoint(&tasks.Entrypoint{
		Name:    name,
		Aliases: aliasNames,
		Desc:    desc,
		Node:    node.node,
	})
	if err != nil {
		return nil, err
	}

	ctx.entrypoints = append(ctx.entrypoints, name)
	return starlark.None, nil
}
