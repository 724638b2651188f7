package visualization

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdouchement/hdr"
	"github.com/mdouchement/hdr/codec/rgbe"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Output base names of the maps written for a reconstruction
const (
	SurfaceNormalName     = "surfaceNormal"
	SurfaceAlbedoName     = "surfaceAlbedo"
	ReprojectionErrorName = "reprojectionError"
	ReprojectionHeatName  = "reprojectionHeatmap"
)

// Extension returns the file extension, with dot, for an output format name
func Extension(format string) (string, error) {
	switch strings.ToLower(format) {
	case "", "png":
		return ".png", nil
	case "jpg", "jpeg":
		return ".jpg", nil
	case "tif", "tiff":
		return ".tiff", nil
	case "bmp":
		return ".bmp", nil
	default:
		return "", fmt.Errorf("unsupported image format %q", format)
	}
}

// SaveImage writes img, choosing the encoder from the file extension:
// PNG, JPEG (quality 90), Deflate compressed TIFF or BMP
func SaveImage(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
	case ".tif", ".tiff":
		err = tiff.Encode(file, img, &tiff.Options{Compression: tiff.Deflate})
	case ".bmp":
		err = bmp.Encode(file, img)
	default:
		err = png.Encode(file, img)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s: %v", filename, err)
	}
	return file.Close()
}

// SaveHDR writes img as a Radiance RGBE file
func SaveHDR(img hdr.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := rgbe.Encode(file, img); err != nil {
		return fmt.Errorf("failed to encode %s: %v", filename, err)
	}
	return file.Close()
}
