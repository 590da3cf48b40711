package transform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScripts(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib.js"), []byte("export const greet = (name) => `hello ${name}`;\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.js"), []byte("import { greet } from './lib.js';\nconsole.log(greet('world'));\n"), 0o644))
	return dir
}

func TestBundleScriptDevelopment(t *testing.T) {
	dir := writeScripts(t)
	out := filepath.Join(dir, "dist", "main.js")

	written, err := BundleScript(ScriptOptions{
		Entry:     filepath.Join(dir, "main.js"),
		Outfile:   out,
		SourceMap: true,
	})
	require.NoError(t, err)
	assert.Contains(t, written, out)

	code, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(code), "hello")
	assert.NotContains(t, string(code), "=>")
	assert.NotContains(t, string(code), "import ")
	assert.Contains(t, string(code), "sourceMappingURL=main.js.map")
	assert.FileExists(t, out+".map")
}

func TestBundleScriptProduction(t *testing.T) {
	dir := writeScripts(t)
	out := filepath.Join(dir, "dist", "main.js")

	_, err := BundleScript(ScriptOptions{
		Entry:      filepath.Join(dir, "main.js"),
		Outfile:    out,
		Minify:     true,
		Production: true,
	})
	require.NoError(t, err)

	code, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(code), "sourceMappingURL")
	assert.NoFileExists(t, out+".map")
}

func TestBundleScriptMissingImport(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "main.js")
	require.NoError(t, os.WriteFile(entry, []byte("import './nope.js';\n"), 0o644))

	_, err := BundleScript(ScriptOptions{Entry: entry, Outfile: filepath.Join(dir, "out.js")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.js")
}
