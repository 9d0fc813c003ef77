package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var ErrInvalidDimensions = errors.New("invalid image dimensions")

type Variant struct {
	Size int
	Data []byte
}

// DecodeConfig returns the dimensions and format name without decoding pixels.
func DecodeConfig(r io.Reader) (image.Config, string, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return image.Config{}, "", fmt.Errorf("decode config: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return image.Config{}, "", ErrInvalidDimensions
	}
	return cfg, format, nil
}

// Generate decodes src once and renders a square PNG avatar per size.
func Generate(src io.Reader, sizes []int) ([]Variant, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	variants := make([]Variant, 0, len(sizes))
	for _, size := range sizes {
		if size <= 0 {
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, Square(img, size)); err != nil {
			return nil, fmt.Errorf("encode %dpx: %w", size, err)
		}
		variants = append(variants, Variant{Size: size, Data: buf.Bytes()})
	}
	return variants, nil
}

// Square scales img to cover a size x size box and crops the centre.
func Square(img image.Image, size int) *image.RGBA {
	bounds := img.Bounds()
	w, h := FitCover(bounds.Dx(), bounds.Dy(), size)

	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)

	offset := image.Pt((w-size)/2, (h-size)/2)
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(dst, dst.Bounds(), scaled, offset, draw.Src)
	return dst
}

// FitCover returns the smallest dimensions preserving the aspect ratio
// where both sides are at least minDim.
func FitCover(width, height, minDim int) (int, int) {
	if width <= 0 || height <= 0 || minDim <= 0 {
		return minDim, minDim
	}
	if width <= height {
		return minDim, max(minDim, height*minDim/width)
	}
	return max(minDim, width*minDim/height), minDim
}
