package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"photostereo/pkg/config"
	"photostereo/pkg/linalg"
	"photostereo/pkg/reconstruction"
	"photostereo/pkg/visualization"
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "", "Configuration file (.yaml or legacy .xml)")
	initPath := flag.String("init", "", "Write a default configuration to this file and exit")
	numCores := flag.Int("cores", 0, "Number of CPU cores to use (default: from config)")
	precision := flag.String("precision", "", "Arithmetic precision: float32 or float64 (default: from config)")
	pinvMode := flag.String("pinv", "", "Pseudoinverse mode: 0 full SVD, 1 normal equations, 2 thin SVD (default: from config)")
	outputDir := flag.String("out", "", "Output directory (default: from config)")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	if *initPath != "" {
		if err := config.CreateDefaultConfigFile(*initPath); err != nil {
			log.Fatalf("Failed to write default configuration: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *initPath)
		return
	}

	// Validate inputs
	if *configPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Command line flags override the configuration file
	if *numCores > 0 {
		cfg.Processing.NumCores = *numCores
	}
	if *precision != "" {
		cfg.Processing.Precision = strings.ToLower(*precision)
	}
	if *pinvMode != "" {
		mode, err := linalg.ParseMode(*pinvMode)
		if err != nil {
			log.Fatalf("Invalid -pinv: %v", err)
		}
		cfg.Processing.PinvMode = int(mode)
	}
	if *outputDir != "" {
		abs, err := filepath.Abs(*outputDir)
		if err != nil {
			log.Fatalf("Invalid -out: %v", err)
		}
		cfg.DirectoryOutput = abs
	}
	if *verbose {
		cfg.Output.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := log.New(io.Discard, "", 0)
	if cfg.Output.Verbose {
		logger = log.New(os.Stderr, "photostereo: ", log.LstdFlags)
		fmt.Println("================================")
		fmt.Println("CALIBRATED PHOTOMETRIC STEREO")
		fmt.Println("================================")
		fmt.Print(cfg.Summary())
	}

	params := &reconstruction.Params{
		MaskPath:        cfg.MaskPath(),
		Observations:    cfg.ToObservations(),
		Color:           cfg.Observation.Color,
		OutputDir:       cfg.OutputDir(),
		NumCores:        cfg.Processing.NumCores,
		PinvMode:        linalg.Mode(cfg.Processing.PinvMode),
		NormalAveraging: normalAveraging(cfg.Processing.NormalAveraging),
		Output: reconstruction.OutputParams{
			Format:        cfg.Output.Format,
			SaveHDR:       cfg.Output.SaveHDR,
			AlbedoMapping: albedoMapping(cfg.Output.AlbedoMapping),
			ResidualMode:  residualMode(cfg.Output.ResidualMode),
			Heatmap:       cfg.Output.Heatmap,
		},
		Depth: reconstruction.DepthParams{
			Enabled:   cfg.Depth.Enabled,
			FillHoles: cfg.Depth.FillHoles,
			STLFile:   cfg.Depth.STL,
			ZScale:    cfg.Depth.ZScale,
		},
		DumpMatrices: cfg.Output.Verbose && cfg.Output.DumpMatrices,
		Logger:       logger,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	startTime := time.Now()
	metrics, err := reconstruction.Run(ctx, params, cfg.Processing.Precision)
	if err != nil {
		log.Fatalf("Reconstruction failed: %v", err)
	}
	processingTime := time.Since(startTime)

	fmt.Printf("\nReconstruction completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Results saved to: %s\n\n", params.OutputDir)

	fmt.Printf("Reprojection residual:\n")
	fmt.Printf("=======================================\n")
	fmt.Printf("Pixels: %d (%d degenerate rows, %d undefined normals)\n", metrics.Pixels, metrics.DegenerateRows, metrics.UndefinedNormals)
	fmt.Printf("Root Mean Square Error (RMSE): %.6f\n", metrics.RMSE)
	fmt.Printf("Mean absolute residual: %.6f\n", metrics.MeanAbs)
	fmt.Printf("Max absolute residual: %.6f\n", metrics.MaxAbs)
	fmt.Printf("95th percentile: %.6f\n", metrics.P95)
	for c, rmse := range metrics.ChannelRMSE {
		fmt.Printf("- Channel %d RMSE: %.6f\n", c, rmse)
	}
}

func normalAveraging(name string) reconstruction.NormalAveraging {
	if name == config.NormalAveragingFixed {
		return reconstruction.AverageFixed
	}
	return reconstruction.AverageChannels
}

func albedoMapping(name string) visualization.AlbedoMapping {
	if name == config.AlbedoMappingMinMax {
		return visualization.AlbedoMinMax
	}
	return visualization.AlbedoAffine
}

func residualMode(name string) visualization.ResidualMode {
	if name == config.ResidualModeMaxAbs {
		return visualization.ResidualMaxAbs
	}
	return visualization.ResidualDiagonal
}
