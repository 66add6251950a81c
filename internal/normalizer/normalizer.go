// Package normalizer converts arbitrary still-image bytes into the fixed
// input the vision engine expects.
package normalizer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	_ "image/png" // Register PNG decoder
)

// Engine input dimensions for the reference deployment (LLaVA-style models
// take 336x336 patches).
const (
	TargetWidth  = 336
	TargetHeight = 336
)

const jpegQuality = 85

// ErrDecode reports input bytes that are not a supported still image
// (JPEG or PNG).
var ErrDecode = errors.New("image decode failed")

// Decode decodes raw image bytes into a pixel grid.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// Normalize resamples img to the engine's fixed input size using the
// smoothest kernel x/image offers, so aliasing artifacts don't degrade
// caption quality. The input image is not mutated.
func Normalize(img image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, TargetWidth, TargetHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

// EncodeJPEG encodes a normalized image for hand-off to the engine.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
