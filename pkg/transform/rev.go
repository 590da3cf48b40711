package transform

import (
	"crypto/md5"
	"encoding/hex"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"github.com/ngld/assetpipe/pkg/fileset"
)

// HashLength is the number of hex digits of the content hash embedded in file names.
const HashLength = 10

// Manifest maps original asset paths to their hashed names. Paths are relative to the output
// root and use forward slashes.
type Manifest map[string]string

// HashName returns the revisioned name of rel for the given content: main.css becomes
// main-<hash>.css.
func HashName(rel string, content []byte) string {
	sum := md5.Sum(content)
	hash := hex.EncodeToString(sum[:])[:HashLength]

	ext := path.Ext(rel)
	return strings.TrimSuffix(rel, ext) + "-" + hash + ext
}

// Revision renames every file to its hashed name and returns the resulting manifest. The
// originals no longer exist afterwards. All files are hashed before the first rename, and a
// failed rename moves the files renamed so far back, so an error leaves the folder unchanged.
func Revision(files []fileset.File) (Manifest, error) {
	dests := make([]string, len(files))
	manifest := make(Manifest, len(files))
	for idx, file := range files {
		content, err := os.ReadFile(file.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to read %s", file.Path)
		}

		hashed := HashName(file.Rel, content)
		dests[idx] = filepath.Join(file.Base, filepath.FromSlash(hashed))
		manifest[file.Rel] = hashed
	}

	for idx, file := range files {
		if err := os.Rename(file.Path, dests[idx]); err != nil {
			err = eris.Wrapf(err, "failed to rename %s", file.Path)
			for undo := idx - 1; undo >= 0; undo-- {
				if rerr := os.Rename(dests[undo], files[undo].Path); rerr != nil {
					return nil, eris.Wrapf(err, "failed to restore %s (%s)", files[undo].Path, rerr)
				}
			}
			return nil, err
		}
	}
	return manifest, nil
}

// Keys returns the original paths in sorted order.
func (m Manifest) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Write stores the manifest as indented JSON. Keys are sorted.
func (m Manifest) Write(file string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return eris.Wrap(err, "failed to encode manifest")
	}
	return WriteFile(file, append(data, '\n'))
}

// ReadManifest loads a manifest written by Write.
func ReadManifest(file string) (Manifest, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to read manifest %s", file)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrapf(err, "failed to parse manifest %s", file)
	}
	return m, nil
}
