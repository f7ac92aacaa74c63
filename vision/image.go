package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/fwojciec/medic"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder.
)

// Image limits.
const (
	MaxBytes     = 20 << 20
	MaxDimension = 4096
	MaxPixels    = 100_000_000
	jpegQuality  = 90
)

// Prepared is an image ready for transmission to the vision model.
type Prepared struct {
	Data           []byte
	MimeType       string
	Format         string // jpeg, png or webp as detected
	Width          int
	Height         int
	OriginalWidth  int
	OriginalHeight int
	OriginalSize   int
	Resized        bool
}

var mimeFormats = map[string]string{
	"image/jpeg": "jpeg",
	"image/jpg":  "jpeg",
	"image/png":  "png",
	"image/webp": "webp",
}

var formatMIME = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
}

// Prepare validates img and downscales it when its longest side exceeds
// MaxDimension. The byte and pixel limits are enforced before any pixel
// data is decoded. A declared MIME type must match the detected format; an
// empty one defers to it.
func Prepare(img medic.Image) (*Prepared, error) {
	if len(img.Data) > MaxBytes {
		return nil, fmt.Errorf("%d bytes exceeds %d: %w", len(img.Data), MaxBytes, medic.ErrImageTooLarge)
	}
	if len(img.Data) == 0 {
		return nil, fmt.Errorf("empty image: %w", medic.ErrValidation)
	}
	if img.MimeType != "" {
		if _, ok := mimeFormats[img.MimeType]; !ok {
			return nil, fmt.Errorf("declared %q: %w", img.MimeType, medic.ErrImageFormat)
		}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("decode: %v: %w", err, medic.ErrImageFormat)
	}
	mime, ok := formatMIME[format]
	if !ok {
		return nil, fmt.Errorf("detected %q: %w", format, medic.ErrImageFormat)
	}
	if declared, ok := mimeFormats[img.MimeType]; ok && declared != format {
		return nil, fmt.Errorf("declared %q but detected %q: %w", img.MimeType, format, medic.ErrImageFormat)
	}
	if px := int64(cfg.Width) * int64(cfg.Height); px > MaxPixels {
		return nil, fmt.Errorf("%dx%d exceeds %d pixels: %w", cfg.Width, cfg.Height, MaxPixels, medic.ErrImageTooLarge)
	}

	p := &Prepared{
		Data:           img.Data,
		MimeType:       mime,
		Format:         format,
		Width:          cfg.Width,
		Height:         cfg.Height,
		OriginalWidth:  cfg.Width,
		OriginalHeight: cfg.Height,
		OriginalSize:   len(img.Data),
	}
	if max(cfg.Width, cfg.Height) <= MaxDimension {
		return p, nil
	}

	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, fmt.Errorf("decode: %v: %w", err, medic.ErrImageFormat)
	}
	w, h := fit(cfg.Width, cfg.Height, MaxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	switch format {
	case "jpeg":
		err = jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality})
	default:
		// No pure-Go WebP encoder exists; WebP sources are re-encoded as PNG.
		err = png.Encode(&buf, dst)
		p.MimeType = "image/png"
	}
	if err != nil {
		return nil, fmt.Errorf("encode resized image: %w", err)
	}
	p.Data = buf.Bytes()
	p.Width, p.Height = w, h
	p.Resized = true
	return p, nil
}

// fit scales w×h so the longest side equals limit, preserving aspect ratio.
func fit(w, h, limit int) (int, int) {
	if w >= h {
		nh := int(float64(h) * float64(limit) / float64(w))
		return limit, max(nh, 1)
	}
	nw := int(float64(w) * float64(limit) / float64(h))
	return max(nw, 1), limit
}
