package reconstruction

import (
	"context"
	"fmt"
	"sync"

	"photostereo/internal/models"
	"photostereo/pkg/linalg"
)

// BuildObservationMatrix loads every observation image and builds I, a
// (color*pixels.Len()) × len(obs) matrix where row c*P+p holds the intensity
// of pixel p in channel c and column f comes from image f.
//
// Images are loaded in parallel by up to numCores goroutines; each image is
// decoded and scanned exactly once and writes only its own column. Every
// image must have the same dimensions as the mask. When several images fail
// the error of the lowest image index is returned.
func BuildObservationMatrix[T linalg.Float](ctx context.Context, pixels PixelIndexSet, obs []models.Observation, color, numCores int) (linalg.Matrix[T], error) {
	if color < 1 || color > 3 {
		return linalg.Matrix[T]{}, invalidInput("color must be 1, 2 or 3, got %d", color)
	}
	if len(obs) == 0 {
		return linalg.Matrix[T]{}, invalidInput("no observations")
	}
	if pixels.Len() == 0 {
		return linalg.Matrix[T]{}, invalidInput("no pixels selected")
	}

	numPixels := pixels.Len()
	numImages := len(obs)
	I := linalg.NewMatrix[T](color*numPixels, numImages, nil)

	if numCores < 1 {
		numCores = 1
	}
	if numCores > numImages {
		numCores = numImages
	}

	errs := make([]error, numImages)
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < numCores; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range jobs {
				errs[f] = fillObservationColumn(I, f, obs[f].Image, pixels, color)
			}
		}()
	}

feed:
	for f := 0; f < numImages; f++ {
		select {
		case jobs <- f:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return linalg.Matrix[T]{}, err
	}
	for f, err := range errs {
		if err != nil {
			return linalg.Matrix[T]{}, fmt.Errorf("image %d: %w", f, err)
		}
	}
	return I, nil
}

// fillObservationColumn writes column f of I from one image file
func fillObservationColumn[T linalg.Float](I linalg.Matrix[T], f int, path string, pixels PixelIndexSet, color int) error {
	img, err := loadImage(path)
	if err != nil {
		return err
	}
	b := img.Bounds()
	if b.Dx() != pixels.Width || b.Dy() != pixels.Height {
		return invalidInput("%s is %dx%d but the mask is %dx%d", path, b.Dx(), b.Dy(), pixels.Width, pixels.Height)
	}

	at := channelReader(img)
	numPixels := pixels.Len()
	for p, idx := range pixels.Indices {
		x, y := models.XY(idx, pixels.Width)
		for c := 0; c < color; c++ {
			I.Set(c*numPixels+p, f, T(at(x, y, c)))
		}
	}
	return nil
}

// BuildLightSourceMatrix builds L, a 3 × len(obs) matrix whose column f is
// the light direction of observation f scaled by its intensity. Directions
// are used as given, without renormalization.
func BuildLightSourceMatrix[T linalg.Float](obs []models.Observation) linalg.Matrix[T] {
	L := linalg.NewMatrix[T](3, len(obs), nil)
	for f, o := range obs {
		light := o.Light()
		for k := 0; k < 3; k++ {
			L.Set(k, f, T(light[k]))
		}
	}
	return L
}
