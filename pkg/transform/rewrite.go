package transform

import (
	"path"
	"regexp"
	"sort"
	"strings"
)

// Rewriter replaces references to original asset paths with their revisioned names.
type Rewriter struct {
	manifest Manifest
}

func NewRewriter(m Manifest) *Rewriter {
	return &Rewriter{manifest: m}
}

// isPathChar reports whether c can be part of a file reference. Matches must be surrounded by
// other characters (or the text boundaries).
func isPathChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("-_.~%+@", c) >= 0
}

// Rewrite returns content with every reference replaced. fileRel is the location of the
// rewritten file relative to the output root; references relative to its directory are
// recognized as well. All replacements happen in a single pass.
func (rw *Rewriter) Rewrite(fileRel string, content []byte) []byte {
	if len(rw.manifest) == 0 {
		return content
	}

	dir := path.Dir(fileRel)
	replacements := make(map[string]string, len(rw.manifest)*2)
	for orig, hashed := range rw.manifest {
		replacements[orig] = hashed
		if dir != "." {
			replacements[relPath(dir, orig)] = relPath(dir, hashed)
		}
	}

	candidates := make([]string, 0, len(replacements))
	for k := range replacements {
		candidates = append(candidates, k)
	}
	// Longer candidates win so ../img/a.png is not handled as img/a.png.
	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) > len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})

	quoted := make([]string, len(candidates))
	for i, c := range candidates {
		quoted[i] = regexp.QuoteMeta(c)
	}
	re := regexp.MustCompile(strings.Join(quoted, "|"))

	text := string(content)
	var out strings.Builder
	last := 0
	for _, loc := range re.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isPathChar(text[start-1]) {
			continue
		}
		if end < len(text) && isPathChar(text[end]) {
			continue
		}

		out.WriteString(text[last:start])
		out.WriteString(replacements[text[start:end]])
		last = end
	}
	out.WriteString(text[last:])

	return []byte(out.String())
}

// relPath returns target relative to dir. Both are slash separated and relative to the same root.
func relPath(dir, target string) string {
	dirParts := strings.Split(dir, "/")
	targetParts := strings.Split(target, "/")

	common := 0
	for common < len(dirParts) && common < len(targetParts)-1 && dirParts[common] == targetParts[common] {
		common++
	}

	parts := make([]string, 0, len(dirParts)-common+len(targetParts)-common)
	for range dirParts[common:] {
		parts = append(parts, "..")
	}
	parts = append(parts, targetParts[common:]...)
	return strings.Join(parts, "/")
}
