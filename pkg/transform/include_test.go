package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestIncludeExpandsPartials(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"index.html":           "<body>\n@include('partials/header.html', {\"title\": \"Home\", \"page\": {\"id\": 3}})\n<p>mail me@example.com</p>\n</body>\n",
		"partials/header.html": "<h1>@title (@page.id).</h1>@include('nav.html')",
		"partials/nav.html":    "<nav>@title</nav>",
	})

	out, err := NewIncluder("@").ProcessFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<body>\n<h1>Home (3).</h1><nav>Home</nav>\n<p>mail me@example.com</p>\n</body>\n", string(out))
}

func TestIncludeWithoutParameters(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"index.html":  `<main>@include("footer.html")</main>`,
		"footer.html": "<footer>(c)</footer>",
	})

	out, err := NewIncluder("@").ProcessFile(filepath.Join(dir, "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<main><footer>(c)</footer></main>", string(out))
}

func TestIncludeErrors(t *testing.T) {
	tests := map[string]map[string]string{
		"missing file":   {"index.html": "@include('nope.html')"},
		"bad parameters": {"index.html": "@include('a.html', {title: 1})", "a.html": ""},
		"unterminated":   {"index.html": "@include('a.html'"},
		"cycle":          {"index.html": "@include('index.html')"},
	}

	for name, files := range tests {
		t.Run(name, func(t *testing.T) {
			dir := writeTree(t, files)
			_, err := NewIncluder("@").ProcessFile(filepath.Join(dir, "index.html"))
			assert.Error(t, err)
		})
	}
}
