package reconstruction

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"photostereo/internal/models"
	"photostereo/pkg/depth"
	"photostereo/pkg/linalg"
	"photostereo/pkg/stl"
	"photostereo/pkg/visualization"
)

// MetricsFileName is the name of the residual statistics file written to the output directory
const MetricsFileName = "metrics.yaml"

// DepthParams controls the optional height map integration
type DepthParams struct {
	// Enabled turns on integration of the normal field
	Enabled bool

	// FillHoles replaces undefined normals by the mean of their nearest defined neighbours
	FillHoles bool

	// STLFile is the mesh file name inside the output directory; empty skips meshing
	STLFile string

	// ZScale multiplies heights before meshing
	ZScale float64
}

// OutputParams controls which maps are written and how they are rendered
type OutputParams struct {
	// Format is the raster format of the maps: png, jpg, tiff or bmp
	Format string

	// SaveHDR additionally writes unquantized Radiance .hdr maps
	SaveHDR bool

	// AlbedoMapping selects the albedo display mapping
	AlbedoMapping visualization.AlbedoMapping

	// ResidualMode selects the displayed residual
	ResidualMode visualization.ResidualMode

	// Heatmap writes a colour coded residual map
	Heatmap bool
}

// Params holds the reconstruction parameters.
// These parameters control the input/output and processing configuration.
type Params struct {
	// MaskPath is the mask image; pixels at full intensity are reconstructed
	MaskPath string

	// Observations lists every image with its calibrated light
	Observations []models.Observation

	// Color is the number of color channels used (1 to 3)
	Color int

	// OutputDir is where the maps and metrics are written. Empty skips writing.
	OutputDir string

	// NumCores specifies how many CPU cores to use for parallel processing
	NumCores int

	// PinvMode selects the pseudoinverse algorithm for the light matrix
	PinvMode linalg.Mode

	// Tolerance overrides the singular value cut-off; zero uses the precision default
	Tolerance float64

	// NormalAveraging selects how channel normals are combined
	NormalAveraging NormalAveraging

	// Output controls the written maps
	Output OutputParams

	// Depth controls height map integration
	Depth DepthParams

	// DumpMatrices logs every intermediate matrix
	DumpMatrices bool

	// Logger receives progress messages; nil discards them
	Logger *log.Logger
}

// Result holds every stage output of one reconstruction. It is built once by
// Process and never modified afterwards.
type Result[T linalg.Float] struct {
	// Pixels is the set of reconstructed pixels and the raster size
	Pixels PixelIndexSet

	// Color is the number of channels
	Color int

	// I is the (Color*P)×N observation matrix
	I linalg.Matrix[T]

	// L is the 3×N light source matrix
	L linalg.Matrix[T]

	// S is the (Color*P)×3 surface matrix solving I = S·L
	S linalg.Matrix[T]

	// R is the albedo of every row of S
	R []T

	// N is the P×3 normal field; zero rows are undefined normals
	N linalg.Matrix[T]

	// Idiff is the reprojection residual I - S·L
	Idiff linalg.Matrix[T]

	// Metrics summarises Idiff
	Metrics ResidualMetrics

	// Depth is the integrated height map, nil unless depth was enabled
	Depth *depth.HeightMap
}

// Reconstructor runs calibrated photometric stereo in the working precision T.
//
// The reconstruction process consists of several steps:
// 1. Loading the mask into the set of reconstructed pixels
// 2. Assembling the observation matrix I and the light matrix L
// 3. Solving S = I·L⁺ and zeroing rows without signal
// 4. Decomposing S into albedo R and normals N
// 5. Computing the reprojection residual and its metrics
// 6. Optionally integrating the normals into a height map
// 7. Writing the maps, metrics and mesh
type Reconstructor[T linalg.Float] struct {
	// params stores the reconstruction configuration
	params *Params

	logger *log.Logger
}

// NewReconstructor creates a new reconstructor instance with the provided parameters.
// This is the entry point for starting the reconstruction process.
//
// Parameters:
//   - params: Configuration parameters for the reconstruction process
//
// Returns:
//   - A new Reconstructor instance initialized with the provided parameters
func NewReconstructor[T linalg.Float](params *Params) *Reconstructor[T] {
	logger := params.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Reconstructor[T]{params: params, logger: logger}
}

// solver returns the estimator configured from the parameters
func (r *Reconstructor[T]) solver() Solver[T] {
	s := Solver[T]{
		Mode:      r.params.PinvMode,
		Averaging: r.params.NormalAveraging,
		NumCores:  r.params.NumCores,
	}
	if r.params.Tolerance > 0 {
		s.Options = &linalg.Options{Tolerance: r.params.Tolerance}
	}
	return s
}

// Process runs the complete reconstruction pipeline. Outputs are written to
// params.OutputDir only after every stage succeeded.
func (r *Reconstructor[T]) Process(ctx context.Context) (*Result[T], error) {
	p := r.params
	if p.Color < 1 || p.Color > 3 {
		return nil, invalidInput("color must be 1, 2 or 3, got %d", p.Color)
	}
	if len(p.Observations) == 0 {
		return nil, invalidInput("at least one observation is required")
	}

	// Step 1: Load the mask
	r.logger.Printf("Step 1: Loading mask %s...", p.MaskPath)
	pixels, err := LoadAvailablePixels(p.MaskPath)
	if err != nil {
		return nil, err
	}
	r.logger.Printf("Mask is %dx%d with %d available pixels", pixels.Width, pixels.Height, pixels.Len())

	// Step 2: Assemble I and L
	r.logger.Printf("Step 2: Building observation matrices from %d images...", len(p.Observations))
	I, err := BuildObservationMatrix[T](ctx, pixels, p.Observations, p.Color, p.NumCores)
	if err != nil {
		return nil, fmt.Errorf("failed to build observation matrix: %w", err)
	}
	rows, cols := I.Dims()
	r.logger.Printf("build I of %dx%d matrix", rows, cols)
	r.dump("I", I)

	L := BuildLightSourceMatrix[T](p.Observations)
	r.logger.Printf("build L of 3x%d matrix", len(p.Observations))
	r.dump("L", L)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 3: Solve for the surface
	solver := r.solver()
	r.logger.Printf("Step 3: Estimating surface (%s pseudoinverse, %s)...", solver.Mode, linalg.PrecisionName[T]())
	S, err := solver.EstimateSurface(I, L)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate surface: %w", err)
	}
	r.dump("S", S)

	// Step 4: Albedo and normals
	r.logger.Println("Step 4: Estimating albedo and normals...")
	R := solver.EstimateSurfaceAlbedo(S)
	N, err := solver.EstimateSurfaceNormal(S, R, pixels.Len(), p.Color)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate normals: %w", err)
	}
	r.dump("N", N)

	// Step 5: Reprojection error
	r.logger.Println("Step 5: Computing reprojection error...")
	Idiff, err := ComputeErrorLambertian(I, S, L)
	if err != nil {
		return nil, fmt.Errorf("failed to compute reprojection error: %w", err)
	}
	r.dump("Idiff", Idiff)

	res := &Result[T]{
		Pixels:  pixels,
		Color:   p.Color,
		I:       I,
		L:       L,
		S:       S,
		R:       R,
		N:       N,
		Idiff:   Idiff,
		Metrics: ComputeResidualMetrics(I, Idiff, N, pixels.Len(), p.Color),
	}
	r.logger.Printf("Reprojection RMSE %.4f, max |r| %.4f, %d degenerate rows, %d undefined normals",
		res.Metrics.RMSE, res.Metrics.MaxAbs, res.Metrics.DegenerateRows, res.Metrics.UndefinedNormals)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Step 6: Height map
	if p.Depth.Enabled {
		r.logger.Println("Step 6: Integrating normals into a height map...")
		field := depth.NewNormalField(N, pixels)
		if p.Depth.FillHoles {
			var filled int
			field, filled = depth.FillHoles(field, 4)
			r.logger.Printf("Filled %d undefined normals", filled)
		}
		res.Depth, err = depth.Integrate(field, p.NumCores)
		if err != nil {
			return nil, fmt.Errorf("failed to integrate normals: %w", err)
		}
	}

	// Step 7: Outputs
	if p.OutputDir != "" {
		r.logger.Printf("Step 7: Writing results to %s...", p.OutputDir)
		if err := r.writeOutputs(res); err != nil {
			return nil, err
		}
	}

	return res, nil
}

// dump logs a matrix when matrix dumps are enabled
func (r *Reconstructor[T]) dump(name string, m linalg.Matrix[T]) {
	if !r.params.DumpMatrices {
		return
	}
	var buf bytes.Buffer
	if err := m.Format(&buf); err != nil {
		r.logger.Printf("Warning: failed to format %s: %v", name, err)
		return
	}
	r.logger.Printf("%s =\n%s", name, buf.String())
}

// mapImage pairs a map with its output base name
type mapImage struct {
	name string
	img  *visualization.FloatImage
}

// writeOutputs renders every map before creating any file, writes the maps,
// the metrics and the optional depth outputs into a staging directory next to
// params.OutputDir, and moves them into params.OutputDir only once every file
// was written. A failed write leaves params.OutputDir untouched.
func (r *Reconstructor[T]) writeOutputs(res *Result[T]) error {
	p := r.params
	ext, err := visualization.Extension(p.Output.Format)
	if err != nil {
		return invalidInput("%v", err)
	}

	viewer := visualization.NewViewer[T](res.Pixels, res.Color)
	viewer.AlbedoMapping = p.Output.AlbedoMapping
	viewer.ResidualMode = p.Output.ResidualMode
	viewer.NumCores = p.NumCores

	normalMap, err := viewer.NormalMap(res.N)
	if err != nil {
		return err
	}
	albedoMap, err := viewer.AlbedoMap(res.R)
	if err != nil {
		return err
	}
	errorMap, err := viewer.ReprojectionErrorMap(res.Idiff)
	if err != nil {
		return err
	}
	maps := []mapImage{
		{visualization.SurfaceNormalName, normalMap},
		{visualization.SurfaceAlbedoName, albedoMap},
		{visualization.ReprojectionErrorName, errorMap},
	}

	metrics, err := yaml.Marshal(res.Metrics)
	if err != nil {
		return fmt.Errorf("error marshaling metrics: %w", err)
	}

	outputDir := filepath.Clean(p.OutputDir)
	parent := filepath.Dir(outputDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	stage, err := os.MkdirTemp(parent, ".photostereo-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stage)

	for _, m := range maps {
		filename := filepath.Join(stage, m.name+ext)
		if err := visualization.SaveImage(m.img.Quantize(), filename); err != nil {
			return fmt.Errorf("failed to save %s: %w", m.name, err)
		}
		if p.Output.SaveHDR {
			if err := visualization.SaveHDR(m.img, filepath.Join(stage, m.name+".hdr")); err != nil {
				return fmt.Errorf("failed to save %s: %w", m.name, err)
			}
		}
	}

	if p.Output.Heatmap {
		heat, err := viewer.Heatmap(res.Idiff)
		if err != nil {
			return err
		}
		if err := visualization.SaveImage(heat, filepath.Join(stage, visualization.ReprojectionHeatName+ext)); err != nil {
			return fmt.Errorf("failed to save heatmap: %w", err)
		}
	}

	if err := os.WriteFile(filepath.Join(stage, MetricsFileName), metrics, 0644); err != nil {
		return fmt.Errorf("error writing metrics file: %w", err)
	}

	if res.Depth != nil {
		if err := visualization.SaveImage(res.Depth.Image(), filepath.Join(stage, "depth.png")); err != nil {
			return fmt.Errorf("failed to save height map: %w", err)
		}
		if p.Depth.STLFile != "" {
			zScale := p.Depth.ZScale
			if zScale == 0 {
				zScale = 1
			}
			mesher := stl.NewHeightMesher(res.Depth.Z, res.Depth.Mask, res.Depth.Width, res.Depth.Height)
			mesher.SetScale(1, 1, float32(zScale))
			triangles := mesher.GenerateTriangles()
			if err := stl.SaveToSTL(filepath.Join(stage, p.Depth.STLFile), triangles); err != nil {
				return err
			}
			r.logger.Printf("Saved %d triangles to %s", len(triangles), p.Depth.STLFile)
		}
	}

	return publish(stage, outputDir)
}

// publish moves every file of the staging directory into outputDir,
// replacing files of the same name
func publish(stage, outputDir string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	entries, err := os.ReadDir(stage)
	if err != nil {
		return fmt.Errorf("failed to read staging directory: %w", err)
	}
	for _, e := range entries {
		if err := os.Rename(filepath.Join(stage, e.Name()), filepath.Join(outputDir, e.Name())); err != nil {
			return fmt.Errorf("failed to move %s into %s: %w", e.Name(), outputDir, err)
		}
	}
	return nil
}

// Run reconstructs in the precision named by precision ("float32" or
// "float64") and returns the residual metrics
func Run(ctx context.Context, params *Params, precision string) (ResidualMetrics, error) {
	switch precision {
	case "", "float32":
		res, err := NewReconstructor[float32](params).Process(ctx)
		if err != nil {
			return ResidualMetrics{}, err
		}
		return res.Metrics, nil
	case "float64":
		res, err := NewReconstructor[float64](params).Process(ctx)
		if err != nil {
			return ResidualMetrics{}, err
		}
		return res.Metrics, nil
	default:
		return ResidualMetrics{}, invalidInput("unknown precision %q", precision)
	}
}
