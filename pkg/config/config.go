// Package config provides configuration loading and management for photostereo.
// It handles loading configuration from YAML files (and the legacy XML layout),
// validates it and resolves the observation list used by the reconstruction.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"photostereo/internal/models"
	"photostereo/pkg/linalg"
)

// ErrInvalidConfig is wrapped by every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Accepted enumeration values
const (
	ReflectanceLambertian = "lambertian"

	PrecisionFloat32 = "float32"
	PrecisionFloat64 = "float64"

	NormalAveragingChannels = "channels"
	NormalAveragingFixed    = "fixed"

	AlbedoMappingAffine = "affine"
	AlbedoMappingMinMax = "minmax"

	ResidualModeDiagonal = "diagonal"
	ResidualModeMaxAbs   = "maxabs"
)

// ImageEntry is one captured image and the light that illuminated it
type ImageEntry struct {
	// Image is the image file name, relative to the observation directory
	Image string `yaml:"image"`

	// LightDirection is the calibrated direction towards the light
	LightDirection Direction `yaml:"lightDirection"`

	// LightIntensity scales the direction; defaults to 1 when omitted
	LightIntensity float64 `yaml:"lightIntensity"`
}

// UnmarshalYAML implements yaml.Unmarshaler so an omitted intensity reads as 1.
// An entry without a lightDirection key, or with a null one, is an
// ErrEmptyDirection error.
func (e *ImageEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		var dir *yaml.Node
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "lightDirection" {
				dir = node.Content[i+1]
			}
		}
		if dir == nil {
			return fmt.Errorf("line %d: %w", node.Line, &DirectionError{Input: "", Index: -1, Err: ErrEmptyDirection})
		}
		if dir.ShortTag() == "!!null" {
			return fmt.Errorf("line %d: %w", dir.Line, &DirectionError{Input: dir.Value, Index: -1, Err: ErrEmptyDirection})
		}
	}

	type plain ImageEntry
	p := plain{LightIntensity: 1}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = ImageEntry(p)
	return nil
}

// Config represents the application configuration loaded from YAML
type Config struct {
	// DirectoryOutput is where the result images are written
	DirectoryOutput string `yaml:"directoryOutput"`

	// ReflectanceModel names the reflectance model; only lambertian is supported
	ReflectanceModel string `yaml:"reflectanceModel"`

	// Observation describes the input images
	Observation struct {
		// Directory holds the mask and the images
		Directory string `yaml:"directory"`

		// Mask is the pixel mask image; white pixels are reconstructed
		Mask string `yaml:"mask"`

		// Color is the number of color channels used (1 to 3)
		Color int `yaml:"color"`

		// Images lists every observation in capture order
		Images []ImageEntry `yaml:"images"`
	} `yaml:"observation"`

	// Processing parameters
	Processing struct {
		// NumCores specifies how many CPU cores to use for parallel processing
		NumCores int `yaml:"numCores"`

		// Precision is the working floating point type, float32 or float64
		Precision string `yaml:"precision"`

		// PinvMode selects the pseudoinverse algorithm: 0 full SVD, 1 normal equations, 2 thin SVD
		PinvMode int `yaml:"pinvMode"`

		// NormalAveraging is channels or fixed
		NormalAveraging string `yaml:"normalAveraging"`
	} `yaml:"processing"`

	// Output parameters
	Output struct {
		// Verbose controls the level of logging output
		Verbose bool `yaml:"verbose"`

		// DumpMatrices prints every intermediate matrix when verbose
		DumpMatrices bool `yaml:"dumpMatrices"`

		// Format is the raster format of the maps: png, jpg, tiff or bmp
		Format string `yaml:"format"`

		// SaveHDR additionally writes unquantized Radiance .hdr maps
		SaveHDR bool `yaml:"saveHDR"`

		// AlbedoMapping is affine or minmax
		AlbedoMapping string `yaml:"albedoMapping"`

		// ResidualMode is diagonal or maxabs
		ResidualMode string `yaml:"residualMode"`

		// Heatmap writes a colour coded residual map
		Heatmap bool `yaml:"heatmap"`
	} `yaml:"output"`

	// Depth integration parameters
	Depth struct {
		// Enabled turns on height map integration
		Enabled bool `yaml:"enabled"`

		// FillHoles replaces undefined normals by their nearest defined neighbour
		FillHoles bool `yaml:"fillHoles"`

		// STL is the mesh file name, empty to skip mesh export
		STL string `yaml:"stl"`

		// ZScale multiplies heights before meshing
		ZScale float64 `yaml:"zScale"`
	} `yaml:"depth"`

	// baseDir is the directory of the loaded file; relative paths resolve against it
	baseDir string
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.DirectoryOutput = "output"
	cfg.ReflectanceModel = ReflectanceLambertian

	cfg.Observation.Directory = "."
	cfg.Observation.Color = 3

	// Set default processing parameters
	cfg.Processing.NumCores = runtime.NumCPU() // Use all available cores by default
	cfg.Processing.Precision = PrecisionFloat32
	cfg.Processing.PinvMode = int(linalg.ModeFullSVD)
	cfg.Processing.NormalAveraging = NormalAveragingChannels

	// Set default output parameters
	cfg.Output.Verbose = true
	cfg.Output.Format = "png"
	cfg.Output.AlbedoMapping = AlbedoMappingAffine
	cfg.Output.ResidualMode = ResidualModeDiagonal

	cfg.Depth.FillHoles = true
	cfg.Depth.ZScale = 1.0

	return cfg
}

// LoadConfig loads and validates a configuration file.
// Files ending in .xml are read with the legacy XML layout, anything else as YAML.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".xml":
		cfg, err = parseXML(data)
	default:
		cfg, err = parseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("error parsing config file %s: %w", configPath, err)
	}
	cfg.baseDir = filepath.Dir(configPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseYAML(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path.
// The observation list is left empty and must be filled in before use.
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	cfg.Observation.Mask = "mask.png"
	return SaveConfig(cfg, configPath)
}

// Validate checks every field and returns an error wrapping ErrInvalidConfig
// describing the first problem found
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}

	if !strings.EqualFold(c.ReflectanceModel, ReflectanceLambertian) {
		return invalid("unsupported reflectance model %q", c.ReflectanceModel)
	}
	if c.Observation.Color < 1 || c.Observation.Color > 3 {
		return invalid("color must be 1, 2 or 3, got %d", c.Observation.Color)
	}
	if c.Observation.Mask == "" {
		return invalid("observation mask is not set")
	}
	if len(c.Observation.Images) == 0 {
		return invalid("at least one observation image is required")
	}
	for i, img := range c.Observation.Images {
		if img.Image == "" {
			return invalid("image %d has no file name", i)
		}
		if math.IsNaN(img.LightIntensity) || math.IsInf(img.LightIntensity, 0) || img.LightIntensity < 0 {
			return invalid("image %d (%s): light intensity %v must be finite and non-negative", i, img.Image, img.LightIntensity)
		}
		for k, v := range img.LightDirection {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%w: image %d (%s): %w", ErrInvalidConfig, i, img.Image,
					&DirectionError{Input: fmt.Sprint(img.LightDirection.Vec3()), Index: k, Err: ErrNonFiniteComponent})
			}
		}
		if img.LightDirection.Vec3().Norm() == 0 {
			return fmt.Errorf("%w: image %d (%s): %w", ErrInvalidConfig, i, img.Image,
				&DirectionError{Input: fmt.Sprint(img.LightDirection.Vec3()), Index: -1, Err: ErrZeroDirection})
		}
	}

	if c.Processing.NumCores < 0 {
		return invalid("numCores must not be negative, got %d", c.Processing.NumCores)
	}
	switch c.Processing.Precision {
	case PrecisionFloat32, PrecisionFloat64:
	default:
		return invalid("precision must be %s or %s, got %q", PrecisionFloat32, PrecisionFloat64, c.Processing.Precision)
	}
	if !linalg.Mode(c.Processing.PinvMode).Valid() {
		return invalid("pinvMode must be 0, 1 or 2, got %d", c.Processing.PinvMode)
	}
	switch c.Processing.NormalAveraging {
	case NormalAveragingChannels, NormalAveragingFixed:
	default:
		return invalid("normalAveraging must be %s or %s, got %q", NormalAveragingChannels, NormalAveragingFixed, c.Processing.NormalAveraging)
	}

	switch strings.ToLower(c.Output.Format) {
	case "png", "jpg", "jpeg", "tiff", "tif", "bmp":
	default:
		return invalid("unsupported output format %q", c.Output.Format)
	}
	switch c.Output.AlbedoMapping {
	case AlbedoMappingAffine, AlbedoMappingMinMax:
	default:
		return invalid("albedoMapping must be %s or %s, got %q", AlbedoMappingAffine, AlbedoMappingMinMax, c.Output.AlbedoMapping)
	}
	switch c.Output.ResidualMode {
	case ResidualModeDiagonal, ResidualModeMaxAbs:
	default:
		return invalid("residualMode must be %s or %s, got %q", ResidualModeDiagonal, ResidualModeMaxAbs, c.Output.ResidualMode)
	}

	if c.Depth.Enabled && (math.IsNaN(c.Depth.ZScale) || c.Depth.ZScale == 0) {
		return invalid("depth zScale must be non-zero")
	}

	return nil
}

// ObservationDir returns the observation directory resolved against the
// directory of the configuration file
func (c *Config) ObservationDir() string {
	return c.resolve(c.Observation.Directory)
}

// OutputDir returns the output directory resolved against the directory of
// the configuration file
func (c *Config) OutputDir() string {
	return c.resolve(c.DirectoryOutput)
}

// MaskPath returns the full path of the mask image
func (c *Config) MaskPath() string {
	return joinPath(c.ObservationDir(), c.Observation.Mask)
}

// ToObservations converts the image list into observations with full paths
func (c *Config) ToObservations() []models.Observation {
	dir := c.ObservationDir()
	obs := make([]models.Observation, len(c.Observation.Images))
	for i, img := range c.Observation.Images {
		obs[i] = models.Observation{
			Image:          joinPath(dir, img.Image),
			LightDirection: img.LightDirection.Vec3(),
			LightIntensity: img.LightIntensity,
		}
	}
	return obs
}

// SetBaseDir sets the directory relative paths are resolved against
func (c *Config) SetBaseDir(dir string) {
	c.baseDir = dir
}

func (c *Config) resolve(p string) string {
	if p == "" {
		p = "."
	}
	if filepath.IsAbs(p) || c.baseDir == "" {
		return filepath.Clean(p)
	}
	return filepath.Join(c.baseDir, p)
}

func joinPath(dir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// Summary returns a human readable description of the configuration
func (c *Config) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Output directory:      %s\n", c.OutputDir())
	fmt.Fprintf(&b, "Reflectance model:     %s\n", c.ReflectanceModel)
	fmt.Fprintf(&b, "Observation directory: %s\n", c.ObservationDir())
	fmt.Fprintf(&b, "Mask:                  %s\n", c.MaskPath())
	fmt.Fprintf(&b, "Color channels:        %d\n", c.Observation.Color)
	fmt.Fprintf(&b, "Precision:             %s\n", c.Processing.Precision)
	fmt.Fprintf(&b, "Pseudoinverse:         %s\n", linalg.Mode(c.Processing.PinvMode))
	fmt.Fprintf(&b, "Observations:          %d\n", len(c.Observation.Images))
	for i, img := range c.Observation.Images {
		d := img.LightDirection
		fmt.Fprintf(&b, "  [%d] %s  direction (%g, %g, %g)  intensity %g\n", i, img.Image, d[0], d[1], d[2], img.LightIntensity)
	}
	return b.String()
}
