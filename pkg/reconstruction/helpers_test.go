package reconstruction

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// writePNG encodes img into dir/name and returns the path
func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", name, err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		t.Fatalf("Failed to encode %s: %v", name, err)
	}
	return path
}

// createGrayImage creates a grayscale image with the specified dimensions and pattern
func createGrayImage(width, height int, pattern func(x, y int) uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: pattern(x, y)})
		}
	}
	return img
}

// fullMask creates a mask selecting every pixel
func fullMask(width, height int) *image.Gray {
	return createGrayImage(width, height, func(x, y int) uint8 { return 255 })
}
