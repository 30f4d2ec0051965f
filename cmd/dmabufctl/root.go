package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/joshuapare/dmabufkit/dmabuf"
	"github.com/joshuapare/dmabufkit/dmabuf/factory"
	"github.com/joshuapare/dmabufkit/internal/logging"
)

var (
	// Global flags
	verbose     bool
	quiet       bool
	jsonOut     bool
	metricsOut  bool
	configPath  string
	backendName string
	logLevel    string

	// registry collects allocator metrics for --metrics.
	registry = prometheus.NewRegistry()
)

var rootCmd = &cobra.Command{
	Use:   "dmabufctl",
	Short: "Allocate and inspect physically contiguous DMA buffers",
	Long: `dmabufctl exercises the DMA buffer allocators available on i.MX and
other embedded Linux systems (dma-heap, ION, IPU, PXP), and an emulated
memfd backend for development hosts.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if metricsOut {
			return printMetrics(os.Stdout, registry)
		}
		return nil
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().
		BoolVar(&metricsOut, "metrics", false, "Print allocator metrics after the command")
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", "", "Allocator configuration file (YAML)")
	rootCmd.PersistentFlags().
		StringVarP(&backendName, "backend", "b", "", "Backend to use, overriding the configuration")
	rootCmd.PersistentFlags().
		StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); logging is off by default")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initLogging() error {
	if logLevel == "" && !verbose {
		logging.Init(logging.Options{})
		return nil
	}
	level := logrus.DebugLevel
	if logLevel != "" {
		lvl, err := logging.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
		level = lvl
	}
	logging.Init(logging.Options{Enabled: true, Level: level, Output: os.Stderr})
	return nil
}

// loadConfig reads --config if given and applies --backend.
func loadConfig() (factory.Config, error) {
	cfg := factory.Default()
	if configPath != "" {
		var err error
		cfg, err = factory.Load(configPath)
		if err != nil {
			return factory.Config{}, err
		}
	}
	if backendName != "" {
		cfg.Backend = backendName
	}
	if metricsOut {
		cfg.Trace = true
	}
	return cfg, cfg.Validate()
}

// newAllocator builds the allocator for backend, registering metrics with
// the command's registry.
func newAllocator(cfg factory.Config, backend string) (dmabuf.Allocator, error) {
	cfg.Backend = backend
	return factory.New(cfg, factory.WithRegisterer(registry))
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
