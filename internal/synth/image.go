package synth

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // decode png records
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/ferro-labs/semcache/cache"
	"github.com/ferro-labs/semcache/normalize"
	"github.com/ferro-labs/semcache/providers"
)

// ImageWriter persists url-mode image output and returns the location the
// caller receives.
type ImageWriter interface {
	WriteImage(name string, data []byte) (string, error)
}

// DirWriter writes images into Dir and returns their absolute path.
type DirWriter struct {
	Dir string
}

// WriteImage writes data to Dir/name.
func (d DirWriter) WriteImage(name string, data []byte) (string, error) {
	dir := d.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}
	path, err := filepath.Abs(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // images are not secret
		return "", fmt.Errorf("write image: %w", err)
	}
	return path, nil
}

const jpegQuality = 90

func (s *Synthesizer) image(req *normalize.Request, rec cache.Record, created int64) (*providers.ImageResponse, error) {
	params := req.Image
	if params == nil {
		params = &normalize.ImageParams{Size: normalize.DefaultImageSize, Width: 256, Height: 256, ResponseFormat: normalize.DefaultImageFormat}
	}
	if params.ResponseFormat != providers.ImageFormatURL && params.ResponseFormat != providers.ImageFormatB64JSON {
		return nil, fmt.Errorf("%w: %q", normalize.ErrUnsupportedFormat, params.ResponseFormat)
	}

	raw, err := base64.StdEncoding.DecodeString(rec.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: image payload is not base64: %v", normalize.ErrShapeMismatch, err)
	}
	data, ext, err := Resize(raw, params.Width, params.Height)
	if err != nil {
		return nil, err
	}

	out := providers.GeneratedImage{}
	if params.ResponseFormat == providers.ImageFormatB64JSON {
		out.B64JSON = base64.StdEncoding.EncodeToString(data)
	} else {
		if s.Images == nil {
			return nil, fmt.Errorf("%w: no image writer configured for url output", normalize.ErrUnsupportedFormat)
		}
		name := fmt.Sprintf("%d-%s.%s", created, digest(rec.Text), ext)
		path, err := s.Images.WriteImage(name, data)
		if err != nil {
			return nil, err
		}
		out.URL = path
	}
	return &providers.ImageResponse{Created: created, Data: []providers.GeneratedImage{out}, Cached: true}, nil
}

// Resize returns raw unchanged when it already has the requested
// dimensions. Otherwise it resamples with Catmull-Rom and re-encodes as
// JPEG. ext is the file extension of the returned bytes.
func Resize(raw []byte, width, height int) (data []byte, ext string, err error) {
	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode image: %v", normalize.ErrShapeMismatch, err)
	}
	b := src.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return raw, format, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), "jpeg", nil
}
