// Package fileset resolves the source globs of the pipeline. The syntax follows the usual
// front-end tooling conventions: "*" stays inside a directory, "**/" matches zero or more
// directories and "{a,b}" lists alternatives.
package fileset

import (
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rotisserie/eris"
)

// Pattern is a compiled glob.
type Pattern struct {
	raw   string
	base  string
	globs []glob.Glob
}

// File is a single match. Rel is relative to the static base of the pattern that matched it and
// is what destinations are built from.
type File struct {
	Path string
	Base string
	Rel  string
}

const metaChars = "*?[{"

// Compile parses a pattern.
func Compile(pattern string) (*Pattern, error) {
	clean := normalize(pattern)
	if clean == "" {
		return nil, eris.New("empty pattern")
	}

	p := &Pattern{
		raw:  clean,
		base: staticBase(clean),
	}

	for _, variant := range expandGlobStar(clean) {
		g, err := glob.Compile(variant, '/')
		if err != nil {
			return nil, eris.Wrapf(err, "invalid pattern %s", pattern)
		}
		p.globs = append(p.globs, g)
	}

	return p, nil
}

// MustCompile is like Compile but panics on invalid patterns.
func MustCompile(pattern string) *Pattern {
	p, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return p
}

func (p *Pattern) String() string {
	return p.raw
}

// Base returns the leading directory of the pattern that contains no wildcards.
func (p *Pattern) Base() string {
	return filepath.FromSlash(p.base)
}

// Match reports whether the given file path matches.
func (p *Pattern) Match(name string) bool {
	name = normalize(name)
	for _, g := range p.globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Resolve walks the base directory and returns every regular file matching the pattern, sorted
// by path. A missing base directory yields no files.
func (p *Pattern) Resolve() ([]File, error) {
	base := p.Base()
	info, err := os.Stat(base)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "failed to check %s", base)
	}

	if !info.IsDir() {
		if p.Match(base) {
			return []File{{Path: base, Base: filepath.Dir(base), Rel: filepath.Base(base)}}, nil
		}
		return nil, nil
	}

	result := make([]File, 0)
	err = filepath.WalkDir(base, func(item string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !p.Match(item) {
			return nil
		}

		rel, err := filepath.Rel(base, item)
		if err != nil {
			return err
		}

		result = append(result, File{Path: item, Base: base, Rel: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve %s", p.raw)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Path < result[j].Path
	})
	return result, nil
}

// Resolve compiles and resolves several patterns. Files matched by more than one pattern are
// only returned once.
func Resolve(patterns ...string) ([]File, error) {
	seen := make(map[string]bool)
	result := make([]File, 0)
	for _, raw := range patterns {
		p, err := Compile(raw)
		if err != nil {
			return nil, err
		}

		files, err := p.Resolve()
		if err != nil {
			return nil, err
		}

		for _, f := range files {
			if !seen[f.Path] {
				seen[f.Path] = true
				result = append(result, f)
			}
		}
	}
	return result, nil
}

func normalize(name string) string {
	name = filepath.ToSlash(name)
	if name == "" {
		return ""
	}

	// path.Clean would collapse "**/" sequences with "." which is fine, but keep a trailing "**"
	return path.Clean(name)
}

func staticBase(pattern string) string {
	parts := strings.Split(pattern, "/")
	static := make([]string, 0, len(parts))
	for idx, part := range parts {
		if strings.ContainsAny(part, metaChars) {
			break
		}
		// the last segment is the file name unless the whole pattern is static
		if idx == len(parts)-1 {
			break
		}
		static = append(static, part)
	}

	if len(static) == 0 {
		if strings.HasPrefix(pattern, "/") {
			return "/"
		}
		return "."
	}

	base := strings.Join(static, "/")
	if base == "" {
		return "/"
	}
	return base
}

// expandGlobStar turns every "**/" into two variants so it can match zero directories as well.
func expandGlobStar(pattern string) []string {
	idx := strings.Index(pattern, "**/")
	if idx < 0 {
		return []string{pattern}
	}

	head := pattern[:idx]
	rest := expandGlobStar(pattern[idx+3:])
	result := make([]string, 0, len(rest)*2)
	for _, tail := range rest {
		result = append(result, head+tail, head+"**/"+tail)
	}
	return result
}
