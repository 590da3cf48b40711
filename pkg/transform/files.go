package transform

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// WriteFile writes data to path and creates missing parent directories.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", path)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "failed to write %s", path)
	}
	return nil
}

// CopyFile copies src to dst and creates missing parent directories.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", src)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", dst)
	}

	out, err := os.Create(dst)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dst)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return eris.Wrapf(err, "failed to copy %s to %s", src, dst)
	}

	return eris.Wrapf(out.Close(), "failed to close %s", dst)
}

// ReplaceExt swaps the extension of name. ext includes the leading dot.
func ReplaceExt(name, ext string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ext
}
