package transform

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
)

const maxIncludeDepth = 32

// Includer expands include directives of the form
//
//	@include('partials/header.html', {"title": "Home"})
//
// The path is resolved relative to the including file. Parameters are available as @name inside
// the included file and its own includes; nested objects use dotted names (@page.title).
type Includer struct {
	Prefix string
	vars   *regexp.Regexp
}

// NewIncluder returns an Includer that uses prefix as its directive marker.
func NewIncluder(prefix string) *Includer {
	return &Includer{
		Prefix: prefix,
		vars:   regexp.MustCompile(regexp.QuoteMeta(prefix) + varNamePattern),
	}
}

// ProcessFile reads path and expands all includes in it.
func (inc *Includer) ProcessFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read %s", path)
	}
	return inc.Process(path, data, nil)
}

// Process expands the includes in content. path is the file content was read from.
func (inc *Includer) Process(path string, content []byte, vars map[string]string) ([]byte, error) {
	return inc.process(path, content, vars, 0)
}

func (inc *Includer) process(path string, content []byte, vars map[string]string, depth int) ([]byte, error) {
	if depth > maxIncludeDepth {
		return nil, eris.Errorf("include depth exceeded in %s, is there a cycle?", path)
	}

	text := inc.substitute(string(content), vars)
	directive := inc.Prefix + "include("

	var out bytes.Buffer
	for {
		idx := strings.Index(text, directive)
		if idx < 0 {
			out.WriteString(text)
			break
		}

		out.WriteString(text[:idx])
		argStart := idx + len(directive)
		argEnd, err := findClosingParen(text, argStart)
		if err != nil {
			return nil, eris.Wrapf(err, "invalid include in %s", path)
		}

		target, params, err := parseIncludeArgs(text[argStart:argEnd])
		if err != nil {
			return nil, eris.Wrapf(err, "invalid include in %s", path)
		}

		childVars := make(map[string]string, len(vars)+len(params))
		for k, v := range vars {
			childVars[k] = v
		}
		for k, v := range params {
			childVars[k] = v
		}

		childPath := target
		if !filepath.IsAbs(childPath) {
			childPath = filepath.Join(filepath.Dir(path), filepath.FromSlash(target))
		}

		data, err := os.ReadFile(childPath)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to include %s from %s", target, path)
		}

		expanded, err := inc.process(childPath, data, childVars, depth+1)
		if err != nil {
			return nil, err
		}
		out.Write(expanded)

		text = text[argEnd+1:]
	}

	return out.Bytes(), nil
}

const varNamePattern = `([A-Za-z_]\w*(?:\.[A-Za-z_]\w*)*)`

func (inc *Includer) substitute(text string, vars map[string]string) string {
	if len(vars) == 0 {
		return text
	}

	return inc.vars.ReplaceAllStringFunc(text, func(match string) string {
		name := match[len(inc.Prefix):]
		// Try the longest dotted name first so @page.title. at the end of a sentence still works.
		for {
			if value, ok := vars[name]; ok {
				return value + match[len(inc.Prefix)+len(name):]
			}
			dot := strings.LastIndexByte(name, '.')
			if dot < 0 {
				return match
			}
			name = name[:dot]
		}
	})
}

// findClosingParen returns the index of the parenthesis closing an argument list starting at
// start. Quoted strings and nested brackets are skipped.
func findClosingParen(text string, start int) (int, error) {
	depth := 0
	var quote byte
	for i := start; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			switch c {
			case '\\':
				i++
			case quote:
				quote = 0
			}
			continue
		}

		switch c {
		case '\'', '"':
			quote = c
		case '(', '{', '[':
			depth++
		case '}', ']':
			depth--
		case ')':
			if depth == 0 {
				return i, nil
			}
			depth--
		}
	}
	return 0, eris.New("unterminated include directive")
}

func parseIncludeArgs(args string) (string, map[string]string, error) {
	args = strings.TrimSpace(args)
	if args == "" || (args[0] != '\'' && args[0] != '"') {
		return "", nil, eris.New("include path must be a quoted string")
	}

	end := strings.IndexByte(args[1:], args[0])
	if end < 0 {
		return "", nil, eris.New("unterminated include path")
	}
	target := args[1 : end+1]
	rest := strings.TrimSpace(args[end+2:])

	if rest == "" {
		return target, nil, nil
	}
	if rest[0] != ',' {
		return "", nil, eris.Errorf("unexpected %q after include path", rest)
	}

	obj := strings.TrimSpace(rest[1:])
	if !gjson.Valid(obj) || !gjson.Parse(obj).IsObject() {
		return "", nil, eris.Errorf("include parameters for %s are not a JSON object", target)
	}

	params := make(map[string]string)
	flattenParams(gjson.Parse(obj), "", params)
	return target, params, nil
}

func flattenParams(value gjson.Result, prefix string, out map[string]string) {
	value.ForEach(func(key, val gjson.Result) bool {
		name := prefix + key.String()
		if val.IsObject() {
			flattenParams(val, name+".", out)
		} else {
			out[name] = val.String()
		}
		return true
	})
}
