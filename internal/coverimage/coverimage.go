// Package coverimage prepares cover art for vision model prompts.
package coverimage

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"covercat/internal/services"
)

const (
	defaultMaxDimension = 1024
	defaultQuality      = 90
)

// Extensions lists the cover formats the decoder understands.
var Extensions = []string{".jpg", ".jpeg", ".png", ".webp"}

// Supported reports whether path has a decodable cover extension.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, candidate := range Extensions {
		if ext == candidate {
			return true
		}
	}
	return false
}

// Options control how covers are downscaled and encoded.
type Options struct {
	MaxDimension int
	Quality      int
}

func (o Options) normalized() Options {
	if o.MaxDimension <= 0 {
		o.MaxDimension = defaultMaxDimension
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = defaultQuality
	}
	return o
}

// Prepare loads the image at path, honours EXIF orientation, shrinks it so
// neither side exceeds MaxDimension, and returns it JPEG encoded.
func Prepare(path string, opts Options) ([]byte, error) {
	opts = opts.normalized()
	if _, err := os.Stat(path); err != nil {
		return nil, services.Wrap(services.ErrValidation, "extraction", "open cover", path, err)
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "extraction", "decode cover", path, err)
	}
	img = Fit(img, opts.MaxDimension)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(opts.Quality)); err != nil {
		return nil, fmt.Errorf("encode cover %s: %w", path, err)
	}
	return buf.Bytes(), nil
}

// PrepareBase64 is Prepare followed by standard base64 encoding, the form
// vision APIs accept inline.
func PrepareBase64(path string, opts Options) (string, error) {
	data, err := Prepare(path, opts)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Fit downsizes img with Lanczos resampling when its longer side exceeds maxSide.
// Smaller images are returned unchanged.
func Fit(img image.Image, maxSide int) image.Image {
	b := img.Bounds()
	if b.Dx() <= maxSide && b.Dy() <= maxSide {
		return img
	}
	return imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
}
