package reconstruction

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"photostereo/internal/models"
	"photostereo/pkg/linalg"
	"photostereo/pkg/visualization"
)

// consistentSinglePixel builds four observations of a single pixel whose
// intensities [100, 120, 90, 80] are exactly explained by one albedo-scaled
// normal g: three axis lights and a fourth unit light with g·l = 80
func consistentSinglePixel(t *testing.T, dir string) (string, []models.Observation, models.Vec3) {
	return consistentUniform(t, dir, 1)
}

// consistentUniform is consistentSinglePixel on a size×size raster where
// every pixel sees the same intensities
func consistentUniform(t *testing.T, dir string, size int) (string, []models.Observation, models.Vec3) {
	intensities := []uint8{100, 120, 90, 80}
	g := models.Vec3{100, 120, 90}

	alpha := 80 / g.Norm()
	perp := models.Vec3{120, -100, 0}
	perp = perp.Scale(1 / perp.Norm())
	gHat := g.Scale(1 / g.Norm())
	beta := math.Sqrt(1 - alpha*alpha)
	l4 := models.Vec3{
		alpha*gHat[0] + beta*perp[0],
		alpha*gHat[1] + beta*perp[1],
		alpha*gHat[2] + beta*perp[2],
	}
	lights := []models.Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}, l4}

	mask := writePNG(t, dir, "mask.png", fullMask(size, size))
	var obs []models.Observation
	for f, v := range intensities {
		v := v
		img := createGrayImage(size, size, func(x, y int) uint8 { return v })
		obs = append(obs, models.Observation{
			Image:          writePNG(t, dir, fmt.Sprintf("img%d.png", f), img),
			LightDirection: lights[f],
			LightIntensity: 1,
		})
	}
	return mask, obs, g
}

// TestProcessSinglePixelConsistent runs the four image, one pixel scenario
func TestProcessSinglePixelConsistent(t *testing.T) {
	dir := t.TempDir()
	mask, obs, g := consistentSinglePixel(t, dir)
	outDir := filepath.Join(dir, "out")

	for _, mode := range []linalg.Mode{linalg.ModeFullSVD, linalg.ModeNormalEquations, linalg.ModeThinSVD} {
		params := &Params{
			MaskPath:     mask,
			Observations: obs,
			Color:        1,
			OutputDir:    outDir,
			NumCores:     2,
			PinvMode:     mode,
		}
		res, err := NewReconstructor[float32](params).Process(context.Background())
		if err != nil {
			t.Fatalf("%s: Process failed: %v", mode, err)
		}

		if r, c := res.I.Dims(); r != 1 || c != 4 {
			t.Fatalf("%s: expected 1x4 observation matrix, got %dx%d", mode, r, c)
		}

		// S·L reproduces the observations
		SL := linalg.Mul(res.S, res.L)
		for f := 0; f < 4; f++ {
			if d := math.Abs(float64(SL.At(0, f) - res.I.At(0, f))); d > 1e-3 {
				t.Errorf("%s: image %d: S·L = %g, observed %g", mode, f, SL.At(0, f), res.I.At(0, f))
			}
		}

		if math.Abs(float64(res.R[0])-g.Norm()) > 1e-3 {
			t.Errorf("%s: expected albedo %g, got %g", mode, g.Norm(), res.R[0])
		}

		n := models.Vec3{float64(res.N.At(0, 0)), float64(res.N.At(0, 1)), float64(res.N.At(0, 2))}
		if math.Abs(n.Norm()-1) > 1e-5 {
			t.Errorf("%s: expected unit normal, got norm %g", mode, n.Norm())
		}
		if res.Metrics.RMSE > 1e-3 {
			t.Errorf("%s: expected near zero residual, got RMSE %g", mode, res.Metrics.RMSE)
		}
	}

	for _, name := range []string{"surfaceNormal.png", "surfaceAlbedo.png", "reprojectionError.png", MetricsFileName} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("Expected output %s: %v", name, err)
		}
	}
}

// TestProcessSinglePixelDegenerate verifies an unlit pixel yields a zero surface row and normal
func TestProcessSinglePixelDegenerate(t *testing.T) {
	dir := t.TempDir()
	mask := writePNG(t, dir, "mask.png", fullMask(1, 1))
	dark := writePNG(t, dir, "dark.png", createGrayImage(1, 1, func(x, y int) uint8 { return 0 }))

	obs := []models.Observation{
		{Image: dark, LightDirection: models.Vec3{1, 0, 0}, LightIntensity: 1},
		{Image: dark, LightDirection: models.Vec3{0, 1, 0}, LightIntensity: 1},
		{Image: dark, LightDirection: models.Vec3{0, 0, 1}, LightIntensity: 1},
		{Image: dark, LightDirection: models.Vec3{0.6, 0, 0.8}, LightIntensity: 1},
	}

	res, err := NewReconstructor[float64](&Params{MaskPath: mask, Observations: obs, Color: 1}).Process(context.Background())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	for k := 0; k < 3; k++ {
		if res.S.At(0, k) != 0 {
			t.Errorf("S(0,%d) = %g, expected exactly 0", k, res.S.At(0, k))
		}
		if res.N.At(0, k) != 0 {
			t.Errorf("N(0,%d) = %g, expected exactly 0", k, res.N.At(0, k))
		}
	}
	if res.Metrics.DegenerateRows != 1 || res.Metrics.UndefinedNormals != 1 {
		t.Errorf("Expected 1 degenerate row and 1 undefined normal, got %+v", res.Metrics)
	}
}

// TestProcessSphere reconstructs a Lambertian sphere in three channels
func TestProcessSphere(t *testing.T) {
	// Skip this test for regular unit testing, as it is slow and comprehensive
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	dir := t.TempDir()
	size := 33
	radius := 14.0
	center := float64(size-1) / 2
	albedo := [3]float64{0.9, 0.7, 0.5}

	normalAt := func(x, y int) (models.Vec3, bool) {
		dx := (float64(x) - center) / radius
		dy := (float64(y) - center) / radius
		d2 := dx*dx + dy*dy
		if d2 >= 0.8 {
			return models.Vec3{}, false
		}
		return models.Vec3{dx, dy, math.Sqrt(1 - d2)}, true
	}

	lights := []models.Vec3{
		{0, 0, 1},
		{0.3, 0, math.Sqrt(1 - 0.09)},
		{0, 0.3, math.Sqrt(1 - 0.09)},
		{-0.2, -0.2, math.Sqrt(1 - 0.08)},
		{0.2, -0.25, math.Sqrt(1 - 0.04 - 0.0625)},
	}

	maskImg := createGrayImage(size, size, func(x, y int) uint8 {
		if _, ok := normalAt(x, y); ok {
			return 255
		}
		return 0
	})
	mask := writePNG(t, dir, "mask.png", maskImg)

	var obs []models.Observation
	for f, l := range lights {
		img := image.NewNRGBA(image.Rect(0, 0, size, size))
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				n, ok := normalAt(x, y)
				if !ok {
					img.SetNRGBA(x, y, color.NRGBA{A: 255})
					continue
				}
				shade := math.Max(0, n[0]*l[0]+n[1]*l[1]+n[2]*l[2])
				var v [3]uint8
				for c := range v {
					v[c] = uint8(math.Round(255 * albedo[c] * shade))
				}
				img.SetNRGBA(x, y, color.NRGBA{R: v[0], G: v[1], B: v[2], A: 255})
			}
		}
		obs = append(obs, models.Observation{
			Image:          writePNG(t, dir, fmt.Sprintf("light%d.png", f), img),
			LightDirection: l,
			LightIntensity: 1,
		})
	}

	outDir := filepath.Join(dir, "out")
	params := &Params{
		MaskPath:     mask,
		Observations: obs,
		Color:        3,
		OutputDir:    outDir,
		NumCores:     4,
		Output: OutputParams{
			Format:        "png",
			SaveHDR:       true,
			AlbedoMapping: visualization.AlbedoMinMax,
			ResidualMode:  visualization.ResidualMaxAbs,
			Heatmap:       true,
		},
		Depth: DepthParams{Enabled: true, FillHoles: true, STLFile: "surface.stl", ZScale: 1},
	}
	res, err := NewReconstructor[float64](params).Process(context.Background())
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	maxAngle := 0.0
	for p, idx := range res.Pixels.Indices {
		x, y := models.XY(idx, size)
		want, _ := normalAt(x, y)
		got := models.Vec3{res.N.At(p, 0), res.N.At(p, 1), res.N.At(p, 2)}
		cos := (got[0]*want[0] + got[1]*want[1] + got[2]*want[2]) / got.Norm()
		maxAngle = math.Max(maxAngle, math.Acos(math.Min(1, cos)))

		for c := 0; c < 3; c++ {
			r := res.R[c*res.Pixels.Len()+p]
			if math.Abs(r-255*albedo[c]) > 0.05*255 {
				t.Errorf("Pixel %d channel %d: expected albedo %g, got %g", p, c, 255*albedo[c], r)
			}
		}
	}
	if maxAngle > 0.1 {
		t.Errorf("Largest normal error %.3f rad exceeds 0.1", maxAngle)
	}

	if res.Depth == nil {
		t.Fatal("Expected a height map")
	}
	// the centre of the sphere is its highest point
	ci := models.Index(int(center), int(center), size)
	edge := res.Pixels.Indices[0]
	if res.Depth.Z[ci] <= res.Depth.Z[edge] {
		t.Errorf("Expected the centre (%f) above the rim (%f)", res.Depth.Z[ci], res.Depth.Z[edge])
	}

	for _, name := range []string{
		"surfaceNormal.png", "surfaceAlbedo.png", "reprojectionError.png",
		"surfaceNormal.hdr", "reprojectionHeatmap.png", "depth.png", "surface.stl", MetricsFileName,
	} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("Expected output %s: %v", name, err)
		}
	}

	data, err := os.ReadFile(filepath.Join(outDir, MetricsFileName))
	if err != nil {
		t.Fatal(err)
	}
	var metrics ResidualMetrics
	if err := yaml.Unmarshal(data, &metrics); err != nil {
		t.Fatalf("Failed to parse metrics: %v", err)
	}
	if metrics.Pixels != res.Pixels.Len() || len(metrics.ChannelRMSE) != 3 {
		t.Errorf("Unexpected metrics %+v", metrics)
	}
	if len(metrics.Histogram.Counts) != histogramBins {
		t.Errorf("Expected %d histogram bins, got %d", histogramBins, len(metrics.Histogram.Counts))
	}
}

// TestProcessWritesNothingOnFailure verifies a failed run leaves no output directory
func TestProcessWritesNothingOnFailure(t *testing.T) {
	dir := t.TempDir()
	mask := writePNG(t, dir, "mask.png", fullMask(2, 2))
	good := writePNG(t, dir, "good.png", fullMask(2, 2))
	outDir := filepath.Join(dir, "out")

	params := &Params{
		MaskPath: mask,
		Observations: []models.Observation{
			{Image: good, LightDirection: models.Vec3{0, 0, 1}, LightIntensity: 1},
			{Image: filepath.Join(dir, "missing.png"), LightDirection: models.Vec3{1, 0, 0}, LightIntensity: 1},
		},
		Color:     1,
		OutputDir: outDir,
	}
	_, err := NewReconstructor[float32](params).Process(context.Background())
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
	if _, statErr := os.Stat(outDir); !os.IsNotExist(statErr) {
		t.Errorf("Output directory should not exist after a failed run")
	}
}

// TestProcessOutputFailureLeavesNoFiles verifies a write failing after some
// maps were written leaves the output directory as it was
func TestProcessOutputFailureLeavesNoFiles(t *testing.T) {
	dir := t.TempDir()
	mask, obs, _ := consistentUniform(t, dir, 2)
	outDir := filepath.Join(dir, "out")

	params := &Params{
		MaskPath:     mask,
		Observations: obs,
		Color:        1,
		OutputDir:    outDir,
		// the mesh is written last and its directory does not exist
		Depth: DepthParams{Enabled: true, STLFile: filepath.Join("missing", "surface.stl"), ZScale: 1},
	}

	_, err := NewReconstructor[float64](params).Process(context.Background())
	if err == nil {
		t.Fatal("Expected the mesh write to fail")
	}
	if _, statErr := os.Stat(outDir); !os.IsNotExist(statErr) {
		t.Errorf("Output directory should not exist after a failed write")
	}

	// an existing output directory keeps its previous contents
	if err := os.MkdirAll(outDir, 0755); err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(outDir, MetricsFileName)
	if err := os.WriteFile(stale, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewReconstructor[float64](params).Process(context.Background()); err == nil {
		t.Fatal("Expected the mesh write to fail")
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("Expected only the previous metrics file, found %d entries", len(entries))
	}
	if data, _ := os.ReadFile(stale); string(data) != "stale" {
		t.Errorf("Previous metrics file was overwritten")
	}

	// a successful run replaces it and leaves no staging directory behind
	params.Depth.STLFile = "surface.stl"
	if _, err := NewReconstructor[float64](params).Process(context.Background()); err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if data, _ := os.ReadFile(stale); string(data) == "stale" {
		t.Errorf("Metrics file was not replaced")
	}
	for _, name := range []string{"surfaceNormal.png", "depth.png", "surface.stl"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("Expected output %s: %v", name, err)
		}
	}
	siblings, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range siblings {
		if strings.HasPrefix(e.Name(), ".photostereo-") {
			t.Errorf("Staging directory %s was left behind", e.Name())
		}
	}
}

// TestRunPrecision verifies precision dispatch and rejection of unknown names
func TestRunPrecision(t *testing.T) {
	dir := t.TempDir()
	mask, obs, _ := consistentSinglePixel(t, dir)
	params := &Params{MaskPath: mask, Observations: obs, Color: 1}

	for _, precision := range []string{"float32", "float64"} {
		m, err := Run(context.Background(), params, precision)
		if err != nil {
			t.Errorf("%s: Run failed: %v", precision, err)
			continue
		}
		if m.Pixels != 1 {
			t.Errorf("%s: expected 1 pixel, got %d", precision, m.Pixels)
		}
	}

	if _, err := Run(context.Background(), params, "float16"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for float16, got %v", err)
	}
}
