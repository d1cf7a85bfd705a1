package filehandler

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

func TestCalculateDimensions(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		maxW, maxH    int
		wantW, wantH  int
	}{
		{"landscape shrinks to long side", 2400, 1600, 512, 512, 512, 341},
		{"portrait shrinks to long side", 1600, 2400, 512, 512, 341, 512},
		{"square", 1024, 1024, 512, 512, 512, 512},
		{"already fits", 300, 200, 512, 512, 300, 200},
		{"exactly at limit", 512, 512, 512, 512, 512, 512},
		{"never upscales", 10, 10, 512, 512, 10, 10},
		{"non-square box limited by height", 1000, 1000, 800, 400, 400, 400},
		{"non-square box limited by width", 2000, 500, 800, 600, 800, 200},
		{"extreme aspect keeps one pixel", 10000, 5, 512, 512, 512, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := calculateDimensions(tt.width, tt.height, tt.maxW, tt.maxH)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("calculateDimensions(%d, %d, %d, %d) = (%d, %d), want (%d, %d)",
					tt.width, tt.height, tt.maxW, tt.maxH, w, h, tt.wantW, tt.wantH)
			}
			if w > tt.maxW || h > tt.maxH {
				t.Errorf("result %dx%d exceeds box %dx%d", w, h, tt.maxW, tt.maxH)
			}
		})
	}
}

func TestNormalizeFlattensTransparency(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8)) // fully transparent

	out := Normalize(src, 512, 512)
	if out.Bounds().Dx() != 8 || out.Bounds().Dy() != 8 {
		t.Fatalf("unexpected bounds %v", out.Bounds())
	}
	c := out.RGBAAt(4, 4)
	if c != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("transparent pixel = %v, want opaque white", c)
	}
}

func TestNormalizeKeepsOpaqueColor(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1000, 500))
	red := color.RGBA{200, 10, 10, 255}
	for y := 0; y < 500; y++ {
		for x := 0; x < 1000; x++ {
			src.SetRGBA(x, y, red)
		}
	}

	out := Normalize(src, 100, 100)
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 50 {
		t.Fatalf("bounds = %v, want 100x50", out.Bounds())
	}
	c := out.RGBAAt(50, 25)
	if c.A != 255 || absDiff(c.R, red.R) > 2 || c.G > 15 || c.B > 15 {
		t.Errorf("center pixel = %v, want ~%v", c, red)
	}
}

func TestEncodeJPEG(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	var buf bytes.Buffer
	if err := EncodeJPEG(&buf, img, 85); err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	cfg, err := jpeg.DecodeConfig(&buf)
	if err != nil {
		t.Fatalf("output is not JPEG: %v", err)
	}
	if cfg.Width != 16 || cfg.Height != 16 {
		t.Errorf("decoded size = %dx%d", cfg.Width, cfg.Height)
	}
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
