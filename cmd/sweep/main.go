// Package main implements the sweep binary, which builds a grid of sorted-file
// variants from one dataset and ranks them by measured read performance.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/arkilian/sweep/internal/bench"
	"github.com/arkilian/sweep/internal/config"
	"github.com/arkilian/sweep/internal/sortedfile"
)

var (
	version = "dev"
	commit  = "unknown"
)

// options holds the raw command-line values. Only flags explicitly set
// override the file and environment configuration.
type options struct {
	configFile string
	envFile    string

	mode           string
	folder         string
	seed           uint64
	entryCount     int
	keyMode        string
	maxCardinality int
	datasetFile    string
	strategies     []string
	backends       []string
	workers        int
	sortBy         string
	boltMapSize    int64

	compression      string
	indexLevels      int
	blockSize        int
	indexKeyInterval int

	storageType string
	storagePath string
	s3Bucket    string
	s3Region    string
	s3Endpoint  string

	profile string
	verbose bool
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Sorted-file parameter sweep benchmark",
		Long: `Sorted-file parameter sweep benchmark

  sweep generates a reproducible key/value dataset, builds one sorted file per
  combination of compression, index levels, block size and index key interval,
  optionally builds transactional baselines, then times a full iteration and
  a series of random lower-bound seeks on every store and prints the results
  ranked fastest first.
`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), opts)
			if err != nil {
				return err
			}
			defer startProfile(cfg.Profile)()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			printBanner(cfg)
			return bench.Run(ctx, cfg, os.Stdout)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flags.StringVar(&opts.envFile, "env-file", ".env", "Path to a .env file loaded before SWEEP_ variables are read")
	flags.StringVar(&opts.mode, "mode", "", "Execution mode: grid or single")
	flags.StringVar(&opts.folder, "folder", "", "Folder where artifacts are built")
	flags.Uint64Var(&opts.seed, "seed", 42, "Seed for keys, values and seek targets")
	flags.IntVar(&opts.entryCount, "entry-count", 10_000, "Number of generated entries and of measured seeks")
	flags.StringVar(&opts.keyMode, "key-mode", "", "Key shape: word or dense")
	flags.IntVar(&opts.maxCardinality, "max-cardinality", 10_000, "Maximum number of integers in one value")
	flags.StringVar(&opts.datasetFile, "dataset", "", "Load the dataset from an existing sorted file")
	flags.StringSliceVar(&opts.strategies, "read-strategy", nil,
		"Read strategies: direct, read-to-vec, bufreader, memory-mapped, memory-mapped-bufreader")
	flags.StringSliceVar(&opts.backends, "backend", nil, "Backends: sorted-file, bolt, sqlite")
	flags.IntVar(&opts.workers, "workers", 0, "Concurrent tasks (0 means one per CPU)")
	flags.StringVar(&opts.sortBy, "sort-by", "", "Ranking key: jump, iter or sum")
	flags.Int64Var(&opts.boltMapSize, "bolt-map-size", 0, "Memory-map size of the bolt baseline in bytes")
	flags.StringVar(&opts.compression, "compression", "", "Single mode compression: None, Snappy, Lz4 or Zstd")
	flags.IntVar(&opts.indexLevels, "index-levels", 0, "Single mode index levels")
	flags.IntVar(&opts.blockSize, "block-size", 0, "Single mode block size in bytes")
	flags.IntVar(&opts.indexKeyInterval, "index-key-interval", 0, "Single mode index key interval")
	flags.StringVar(&opts.storageType, "storage", "", "Artifact mirror: none, local or s3")
	flags.StringVar(&opts.storagePath, "storage-path", "", "Local mirror directory")
	flags.StringVar(&opts.s3Bucket, "s3-bucket", "", "S3 mirror bucket")
	flags.StringVar(&opts.s3Region, "s3-region", "", "S3 mirror region")
	flags.StringVar(&opts.s3Endpoint, "s3-endpoint", "", "S3-compatible endpoint")
	flags.StringVar(&opts.profile, "profile", "", "Enable profiling: cpu or mem")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log build and measurement progress")

	rootCmd.AddCommand(gridCommand(opts), cleanCommand(opts))

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("sweep: %v", err)
	}
}

func gridCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "grid",
		Short: "List the parameter tuples and artifact names of the configured sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), opts)
			if err != nil {
				return err
			}
			for _, p := range cfg.Parameters() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", p.Name(), p)
			}
			return nil
		},
	}
}

func cleanCommand(opts *options) *cobra.Command {
	var withMirror bool
	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove built artifacts from the folder",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), opts)
			if err != nil {
				return err
			}
			n, err := bench.Clean(cmd.Context(), cfg, withMirror)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d artifacts\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&withMirror, "mirror", false, "Also remove artifacts from the artifact mirror")
	return cmd
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(flags *pflag.FlagSet, opts *options) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", opts.envFile, err)
	}

	var cfg *config.Config
	var err error
	if opts.configFile != "" {
		cfg, err = config.LoadFromFile(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	// Command line flags have the highest priority.
	set := flags.Changed
	if set("mode") {
		cfg.Mode = config.Mode(opts.mode)
	}
	if set("folder") {
		cfg.Folder = opts.folder
	}
	if set("seed") {
		cfg.Dataset.Seed = opts.seed
	}
	if set("entry-count") {
		cfg.Dataset.EntryCount = opts.entryCount
	}
	if set("key-mode") {
		cfg.Dataset.KeyMode = opts.keyMode
	}
	if set("max-cardinality") {
		cfg.Dataset.MaxCardinality = opts.maxCardinality
	}
	if set("dataset") {
		cfg.Dataset.File = opts.datasetFile
	}
	if set("read-strategy") {
		cfg.ReadStrategies = opts.strategies
	}
	if set("backend") {
		cfg.Backends = opts.backends
	}
	if set("workers") {
		cfg.Workers = opts.workers
	}
	if set("sort-by") {
		cfg.SortBy = opts.sortBy
	}
	if set("bolt-map-size") {
		cfg.BoltMapSize = opts.boltMapSize
	}
	if set("compression") {
		c, err := sortedfile.ParseCompression(opts.compression)
		if err != nil {
			return nil, err
		}
		cfg.Single.Compression = c
	}
	if set("index-levels") {
		cfg.Single.IndexLevels = opts.indexLevels
	}
	if set("block-size") {
		cfg.Single.BlockSize = opts.blockSize
	}
	if set("index-key-interval") {
		cfg.Single.IndexKeyInterval = opts.indexKeyInterval
	}
	if set("storage") {
		cfg.Storage.Type = opts.storageType
	}
	if set("storage-path") {
		cfg.Storage.Path = opts.storagePath
	}
	if set("s3-bucket") {
		cfg.Storage.S3.Bucket = opts.s3Bucket
	}
	if set("s3-region") {
		cfg.Storage.S3.Region = opts.s3Region
	}
	if set("s3-endpoint") {
		cfg.Storage.S3.Endpoint = opts.s3Endpoint
	}
	if set("profile") {
		cfg.Profile = opts.profile
	}
	if set("verbose") {
		cfg.Verbose = opts.verbose
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// startProfile starts the configured profiler and returns its stop function.
func startProfile(mode string) func() {
	switch mode {
	case "cpu":
		return profile.Start(profile.CPUProfile, profile.ProfilePath(".")).Stop
	case "mem":
		return profile.Start(profile.MemProfile, profile.ProfilePath(".")).Stop
	default:
		return func() {}
	}
}

// printBanner logs the configuration summary.
func printBanner(cfg *config.Config) {
	log.Printf("sweep %s", version)
	log.Printf("  Mode:       %s (%d tuples)", cfg.Mode, len(cfg.Parameters()))
	log.Printf("  Folder:     %s", cfg.Folder)
	log.Printf("  Dataset:    seed=%d entries=%d keys=%s max_cardinality=%d",
		cfg.Dataset.Seed, cfg.Dataset.EntryCount, cfg.Dataset.KeyMode, cfg.Dataset.MaxCardinality)
	log.Printf("  Strategies: %v", cfg.ReadStrategies)
	log.Printf("  Backends:   %v", cfg.Backends)
	log.Printf("  Storage:    %s", cfg.Storage.Type)
}
