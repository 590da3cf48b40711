package transform

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ngld/assetpipe/pkg/fileset"
)

var hashedName = regexp.MustCompile(`^css/main-[0-9a-f]{10}\.css$`)

func TestHashName(t *testing.T) {
	name := HashName("css/main.css", []byte("body{}"))
	assert.Regexp(t, hashedName, name)
	assert.Equal(t, name, HashName("css/main.css", []byte("body{}")))
	assert.NotEqual(t, name, HashName("css/main.css", []byte("body{color:red}")))
}

func TestRevisionRenamesFiles(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"css/main.css": "body{}",
		"img/a.png":    "png",
		"index.html":   "<html></html>",
	})

	files, err := fileset.Resolve(filepath.Join(dir, "**", "*.{css,png}"))
	require.NoError(t, err)
	require.Len(t, files, 2)

	manifest, err := Revision(files)
	require.NoError(t, err)
	assert.Equal(t, []string{"css/main.css", "img/a.png"}, manifest.Keys())

	for orig, hashed := range manifest {
		assert.NoFileExists(t, filepath.Join(dir, filepath.FromSlash(orig)))
		assert.FileExists(t, filepath.Join(dir, filepath.FromSlash(hashed)))
	}
	assert.FileExists(t, filepath.Join(dir, "index.html"))
}

func TestRevisionRestoresFilesOnFailure(t *testing.T) {
	contents := map[string]string{
		"css/main.css": "body{}",
		"img/a.png":    "png",
	}
	dir := writeTree(t, contents)

	files, err := fileset.Resolve(filepath.Join(dir, "**", "*.{css,png}"))
	require.NoError(t, err)
	require.Len(t, files, 2)

	// A non-empty directory in place of the last hashed name makes its rename fail.
	last := files[len(files)-1]
	blocked := filepath.Join(dir, filepath.FromSlash(HashName(last.Rel, []byte(contents[last.Rel]))))
	require.NoError(t, os.MkdirAll(filepath.Join(blocked, "keep"), 0o755))

	_, err = Revision(files)
	require.Error(t, err)

	first := files[0]
	assert.FileExists(t, first.Path)
	assert.FileExists(t, last.Path)
	assert.NoFileExists(t, filepath.Join(dir, filepath.FromSlash(HashName(first.Rel, []byte(contents[first.Rel])))))
}

func TestRevisionHashesBeforeRenaming(t *testing.T) {
	dir := writeTree(t, map[string]string{"css/main.css": "body{}"})

	files, err := fileset.Resolve(filepath.Join(dir, "**", "*.css"))
	require.NoError(t, err)
	files = append(files, fileset.File{Path: filepath.Join(dir, "css", "gone.css"), Base: dir, Rel: "css/gone.css"})

	_, err = Revision(files)
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(dir, "css", "main.css"))
}

func TestManifestRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dir, err := os.MkdirTemp("", "manifest")
		if err != nil {
			t.Fatal(err)
		}
		defer os.RemoveAll(dir)

		count := rapid.IntRange(1, 8).Draw(t, "count")
		files := make(map[string]string, count)
		for i := 0; i < count; i++ {
			name := fmt.Sprintf("assets/f%d.%s", i, rapid.SampledFrom([]string{"css", "js", "png"}).Draw(t, "ext"))
			files[name] = rapid.StringN(0, 64, -1).Draw(t, "content")
		}

		for name, content := range files {
			p := filepath.Join(dir, filepath.FromSlash(name))
			if err := WriteFile(p, []byte(content)); err != nil {
				t.Fatal(err)
			}
		}

		resolved, err := fileset.Resolve(filepath.Join(dir, "**", "*.*"))
		if err != nil {
			t.Fatal(err)
		}

		manifest, err := Revision(resolved)
		if err != nil {
			t.Fatal(err)
		}

		manifestPath := filepath.Join(dir, "rev.json")
		if err := manifest.Write(manifestPath); err != nil {
			t.Fatal(err)
		}
		loaded, err := ReadManifest(manifestPath)
		if err != nil {
			t.Fatal(err)
		}

		if len(loaded) != len(files) {
			t.Fatalf("manifest has %d entries, expected %d", len(loaded), len(files))
		}
		for orig, hashed := range loaded {
			if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(hashed))); err != nil {
				t.Fatalf("hashed file %s is missing: %v", hashed, err)
			}
			if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(orig))); err == nil {
				t.Fatalf("original %s still exists", orig)
			}
		}
	})
}

func TestReadManifestMissingFile(t *testing.T) {
	_, err := ReadManifest(filepath.Join(t.TempDir(), "rev.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
