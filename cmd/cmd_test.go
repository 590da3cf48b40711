package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/assetpipe/pkg/config"
	"github.com/ngld/assetpipe/pkg/tasks"
)

func TestConsoleWriterPrefixesTask(t *testing.T) {
	out := new(bytes.Buffer)
	log := zerolog.New(NewConsoleWriter(out))

	log.Info().Str("task", "styles").Msg("finished after 10ms")
	log.Error().Err(eris.New("broken pipe")).Msg("failed")

	text := out.String()
	assert.Contains(t, text, "styles: finished after 10ms")
	assert.Contains(t, text, "Error: failed")
	assert.Contains(t, text, "broken pipe")
}

func TestListShowsEntrypointsAndTasks(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	cfg.Root = t.TempDir()
	cfg.Notify.Enabled = false

	registry, err := tasks.New(tasks.Options{Config: cfg})
	require.NoError(t, err)

	out := new(bytes.Buffer)
	renderList(out, registry)

	text := out.String()
	for _, name := range []string{"default", "backend", "build", "cache", "zip", "styles", "svg-sprite", "html-minify"} {
		assert.Contains(t, text, name)
	}
	assert.Contains(t, text, "alias prod")
	assert.NotContains(t, text, "to-prod")
}

func TestRunUnknownName(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "assetpipe.toml")
	require.NoError(t, os.WriteFile(file, []byte("root = \""+filepath.ToSlash(dir)+"\"\n[notify]\nenabled = false\n"), 0o644))

	rootCmd.SetArgs([]string{"run", "--config", file, "nope"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}
