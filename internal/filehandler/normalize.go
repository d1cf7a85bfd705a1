package filehandler

import (
	"image"
	"image/jpeg"
	"io"
	"math"

	// Decoders registered for image.Decode / image.DecodeConfig.
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Normalize converts img to an opaque RGB raster no larger than
// maxWidth x maxHeight. Aspect ratio is preserved and images already inside
// the box keep their dimensions. Transparent areas are flattened onto white.
func Normalize(img image.Image, maxWidth, maxHeight int) *image.RGBA {
	bounds := img.Bounds()
	newWidth, newHeight := calculateDimensions(bounds.Dx(), bounds.Dy(), maxWidth, maxHeight)

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)

	if newWidth == bounds.Dx() && newHeight == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), img, bounds.Min, draw.Over)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// calculateDimensions fits width x height inside the max box, shrinking only.
// The limiting side lands exactly on its maximum; the other side is rounded
// to the nearest pixel and never drops below one.
func calculateDimensions(width, height, maxWidth, maxHeight int) (int, int) {
	if width <= maxWidth && height <= maxHeight {
		return width, height
	}

	ratio := math.Min(float64(maxWidth)/float64(width), float64(maxHeight)/float64(height))
	newWidth := min(maxWidth, max(1, int(math.Round(float64(width)*ratio))))
	newHeight := min(maxHeight, max(1, int(math.Round(float64(height)*ratio))))
	return newWidth, newHeight
}

// EncodeJPEG writes img as baseline JPEG at the given quality (1-100).
func EncodeJPEG(w io.Writer, img image.Image, quality int) error {
	return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
}
