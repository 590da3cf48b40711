package transform

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/avif"
	"github.com/gen2brain/webp"
	"github.com/rotisserie/eris"
)

const (
	JPEGQuality = 80
	WebPQuality = 75
	AVIFQuality = 50
)

func decodeImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to decode %s", path)
	}
	return img, nil
}

// OptimizeImage writes src to dst. With compress set, JPEGs are re-encoded at JPEGQuality and
// PNGs with the best lossless compression; the result is only used if it is smaller than the
// source. Without compress the file is copied unchanged.
func OptimizeImage(src, dst string, compress bool) error {
	if !compress {
		return CopyFile(src, dst)
	}

	original, err := os.ReadFile(src)
	if err != nil {
		return eris.Wrapf(err, "failed to read %s", src)
	}

	img, _, err := image.Decode(bytes.NewReader(original))
	if err != nil {
		return eris.Wrapf(err, "failed to decode %s", src)
	}

	var buf bytes.Buffer
	switch strings.ToLower(filepath.Ext(src)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality})
	case ".png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		err = enc.Encode(&buf, img)
	default:
		return eris.Errorf("unsupported image format: %s", src)
	}
	if err != nil {
		return eris.Wrapf(err, "failed to encode %s", src)
	}

	if buf.Len() >= len(original) {
		return WriteFile(dst, original)
	}
	return WriteFile(dst, buf.Bytes())
}

// EncodeWebP writes a lossy WebP copy of src to dst.
func EncodeWebP(src, dst string, quality int) error {
	img, err := decodeImage(src)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	err = webp.Encode(&buf, img, webp.Options{Quality: quality, Method: 4})
	if err != nil {
		return eris.Wrapf(err, "failed to encode %s as webp", src)
	}

	return WriteFile(dst, buf.Bytes())
}

// EncodeAVIF writes an AVIF copy of src to dst.
func EncodeAVIF(src, dst string, quality int) error {
	img, err := decodeImage(src)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	err = avif.Encode(&buf, img, avif.Options{
		Quality:           quality,
		QualityAlpha:      quality,
		Speed:             10,
		ChromaSubsampling: image.YCbCrSubsampleRatio420,
	})
	if err != nil {
		return eris.Wrapf(err, "failed to encode %s as avif", src)
	}

	return WriteFile(dst, buf.Bytes())
}
