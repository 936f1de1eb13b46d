package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/joshuapare/blockalloc/internal/config"
	"github.com/joshuapare/blockalloc/internal/logger"
)

var (
	// Global flags
	configPath string
	verbose    bool
	quiet      bool
	jsonOut    bool
	noColor    bool
	logLevel   string
	logJSON    bool
)

// Scenario overrides shared by the workload commands. Zero values keep the
// setting from the config file.
var (
	arenaSize      string
	arenaSource    string
	policyName     string
	dualThreshold  string
	poison         bool
	synchronized   bool
	lockKind       string
	fallbackSize   string
	seed           uint64
	requests       int
	maxSize        string
	maxAllocations int
)

var rootCmd = &cobra.Command{
	Use:   "allocctl",
	Short: "Exercise and inspect block allocators",
	Long: `allocctl drives randomized allocation workloads against a configurable
allocator stack (block arena, optional fallback arena, locking and tracking)
and reports metrics, arena statistics and block layouts.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup()
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Scenario file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); empty disables logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write log records as JSON")
}

// addScenarioFlags registers the config overrides on a workload command.
func addScenarioFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&arenaSize, "arena-size", "", "Primary arena size (e.g. 64KiB)")
	f.StringVar(&arenaSource, "source", "", "Arena memory source (heap, mmap)")
	f.StringVarP(&policyName, "policy", "p", "", "Placement policy")
	f.StringVar(&dualThreshold, "threshold", "", "Dual-first-fit size threshold")
	f.BoolVar(&poison, "poison", false, "Poison freed blocks")
	f.BoolVar(&synchronized, "synchronized", false, "Serialize access through a lock")
	f.StringVar(&lockKind, "lock", "", "Lock kind (mutex, spin)")
	f.StringVar(&fallbackSize, "fallback", "", "Add a fallback arena of this size")
	f.Uint64Var(&seed, "seed", 0, "Random seed")
	f.IntVarP(&requests, "requests", "n", 0, "Number of requests")
	f.StringVar(&maxSize, "max-size", "", "Largest request size")
	f.IntVar(&maxAllocations, "max-allocations", 0, "Live allocation limit")
}

func resetScenarioFlags() {
	arenaSize, arenaSource, policyName, dualThreshold = "", "", "", ""
	poison, synchronized = false, false
	lockKind, fallbackSize = "", ""
	seed, requests, maxSize, maxAllocations = 0, 0, "", 0
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v\n", err)
		os.Exit(1)
	}
}

func setup() error {
	color.NoColor = color.NoColor || noColor || jsonOut
	if logLevel == "" {
		return nil
	}
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	logger.Init(logger.Options{Enabled: true, Level: level, JSON: logJSON, Writer: os.Stderr})
	return nil
}

// loadConfig reads the scenario file, applies flag overrides and validates
// the result.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
		printVerbose("Loaded scenario: %s\n", configPath)
	}

	if err := parseSize(arenaSize, &cfg.Arena.Size); err != nil {
		return nil, fmt.Errorf("--arena-size: %w", err)
	}
	if err := parseSize(dualThreshold, &cfg.Arena.Threshold); err != nil {
		return nil, fmt.Errorf("--threshold: %w", err)
	}
	if err := parseSize(maxSize, &cfg.Harness.MaxSize); err != nil {
		return nil, fmt.Errorf("--max-size: %w", err)
	}
	if fallbackSize != "" {
		fb := cfg.Arena
		if cfg.Fallback != nil {
			fb = *cfg.Fallback
		}
		if err := parseSize(fallbackSize, &fb.Size); err != nil {
			return nil, fmt.Errorf("--fallback: %w", err)
		}
		cfg.Fallback = &fb
	}
	if arenaSource != "" {
		cfg.Arena.Source = arenaSource
	}
	if policyName != "" {
		cfg.Arena.Policy = policyName
	}
	if poison {
		cfg.Arena.Poison = true
	}
	if synchronized {
		cfg.Synchronized = true
	}
	if lockKind != "" {
		cfg.Lock = lockKind
	}
	if seed != 0 {
		cfg.Harness.Seed = seed
	}
	if requests != 0 {
		cfg.Harness.Requests = requests
	}
	if maxAllocations != 0 {
		cfg.Harness.MaxAllocations = maxAllocations
	}
	return cfg, cfg.Validate()
}

func parseSize(s string, dst *config.Size) error {
	if s == "" {
		return nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return err
	}
	*dst = config.Size(n)
	return nil
}

// Helper functions for output

var (
	printer = message.NewPrinter(language.English)
	bold    = color.New(color.Bold)
	green   = color.New(color.FgGreen)
	red     = color.New(color.FgRed)
)

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printHeading prints a bold section title if not in quiet mode
func printHeading(title string) {
	printInfo("%s\n", bold.Sprint(title))
}

// printError prints an error message
func printError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, red.Sprint("Error: ")+format, args...)
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...any) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// count formats n with thousands separators.
func count[T ~int | ~uint64 | ~uintptr](n T) string {
	return printer.Sprintf("%d", n)
}

func size[T ~int | ~uint64 | ~uintptr](n T) string {
	return humanize.IBytes(uint64(n))
}
