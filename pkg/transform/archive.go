package transform

import (
	"archive/tar"
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"

	"github.com/ngld/assetpipe/pkg/fileset"
)

// ArchiveFormats lists the supported formats in the order their extensions are checked.
var ArchiveFormats = []string{"zip", "tar.xz", "tar.br"}

// ArchiveExt returns the file extension (with leading dot) for format.
func ArchiveExt(format string) string {
	return "." + format
}

// IsArchive reports whether name has the extension of a supported archive format.
func IsArchive(name string) bool {
	for _, format := range ArchiveFormats {
		if strings.HasSuffix(name, ArchiveExt(format)) {
			return true
		}
	}
	return false
}

// RemoveArchives deletes all archives directly inside dir.
func RemoveArchives(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "failed to list %s", dir)
	}

	removed := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() || !IsArchive(entry.Name()) {
			continue
		}

		item := filepath.Join(dir, entry.Name())
		if err := os.Remove(item); err != nil {
			return removed, eris.Wrapf(err, "failed to remove %s", item)
		}
		removed = append(removed, item)
	}
	return removed, nil
}

// ArchiveOptions configures CreateArchive.
type ArchiveOptions struct {
	Format string
	// Progress receives a progress bar. Nil disables it.
	Progress io.Writer
}

type archiveWriter interface {
	add(file fileset.File, info os.FileInfo, r io.Reader) error
	Close() error
}

// CreateArchive packs files into dest. Entries are named after File.Rel.
func CreateArchive(ctx context.Context, dest string, files []fileset.File, opts ArchiveOptions) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return eris.Wrapf(err, "failed to create directory for %s", dest)
	}

	f, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "failed to create %s", dest)
	}
	defer f.Close()

	var writer archiveWriter
	switch opts.Format {
	case "", "zip":
		writer = &zipArchive{w: zip.NewWriter(f)}
	case "tar.xz":
		xzWriter, err := xz.NewWriter(f)
		if err != nil {
			return eris.Wrap(err, "failed to initialize xz compressor")
		}
		writer = &tarArchive{compressor: xzWriter, w: tar.NewWriter(xzWriter)}
	case "tar.br":
		brWriter := brotli.NewWriterLevel(f, brotli.BestCompression)
		writer = &tarArchive{compressor: brWriter, w: tar.NewWriter(brWriter)}
	default:
		return eris.Errorf("unsupported archive format %s", opts.Format)
	}

	var total int64
	infos := make([]os.FileInfo, len(files))
	for idx, file := range files {
		info, err := os.Stat(file.Path)
		if err != nil {
			return eris.Wrapf(err, "failed to check %s", file.Path)
		}
		infos[idx] = info
		total += info.Size()
	}

	bar := getProgressBar(total, "Packing "+filepath.Base(dest), opts.Progress)
	for idx, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := addToArchive(writer, file, infos[idx], bar); err != nil {
			return err
		}
	}

	if err := writer.Close(); err != nil {
		return eris.Wrapf(err, "failed to finish %s", dest)
	}
	if err := bar.Finish(); err != nil {
		return eris.Wrap(err, "failed to finish progress bar")
	}

	return eris.Wrapf(f.Close(), "failed to close %s", dest)
}

func addToArchive(writer archiveWriter, file fileset.File, info os.FileInfo, bar *progressbar.ProgressBar) error {
	src, err := os.Open(file.Path)
	if err != nil {
		return eris.Wrapf(err, "failed to open %s", file.Path)
	}
	defer src.Close()

	return writer.add(file, info, io.TeeReader(src, bar))
}

func getProgressBar(total int64, desc string, out io.Writer) *progressbar.ProgressBar {
	if out == nil || os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(total, progressbar.OptionSetVisibility(false))
	}

	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(out),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(out, "\n")
		}),
	)
}

type zipArchive struct {
	w *zip.Writer
}

func (z *zipArchive) add(file fileset.File, info os.FileInfo, r io.Reader) error {
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return eris.Wrapf(err, "failed to build header for %s", file.Path)
	}
	header.Name = file.Rel
	header.Method = zip.Deflate

	w, err := z.w.CreateHeader(header)
	if err != nil {
		return eris.Wrapf(err, "failed to add %s", file.Rel)
	}

	_, err = io.Copy(w, r)
	return eris.Wrapf(err, "failed to write %s", file.Rel)
}

func (z *zipArchive) Close() error {
	return z.w.Close()
}

type tarArchive struct {
	compressor io.WriteCloser
	w          *tar.Writer
}

func (t *tarArchive) add(file fileset.File, info os.FileInfo, r io.Reader) error {
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return eris.Wrapf(err, "failed to build header for %s", file.Path)
	}
	header.Name = file.Rel
	header.Uid = 0
	header.Gid = 0
	header.Uname = ""
	header.Gname = ""

	if err := t.w.WriteHeader(header); err != nil {
		return eris.Wrapf(err, "failed to add %s", file.Rel)
	}

	_, err = io.Copy(t.w, r)
	return eris.Wrapf(err, "failed to write %s", file.Rel)
}

func (t *tarArchive) Close() error {
	if err := t.w.Close(); err != nil {
		return err
	}
	return t.compressor.Close()
}
