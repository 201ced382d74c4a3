// Package config provides the configuration of a sweep run.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/arkilian/sweep/internal/bitmap"
	"github.com/arkilian/sweep/internal/dataset"
	serrors "github.com/arkilian/sweep/internal/errors"
	"github.com/arkilian/sweep/internal/grid"
	"github.com/arkilian/sweep/internal/report"
	"github.com/arkilian/sweep/internal/source"
	"github.com/arkilian/sweep/internal/store"
)

// Mode selects which sorted-file tuples are measured.
type Mode string

const (
	// ModeGrid measures the full Cartesian product of the grid candidates.
	ModeGrid Mode = "grid"
	// ModeSingle measures one tuple.
	ModeSingle Mode = "single"
)

// Config holds the configuration of a sweep run.
type Config struct {
	// Mode is grid or single
	Mode Mode `json:"mode" yaml:"mode"`

	// Folder receives every built artifact
	Folder string `json:"folder" yaml:"folder"`

	// Dataset configuration
	Dataset DatasetConfig `json:"dataset" yaml:"dataset"`

	// Single is the tuple measured in single mode
	Single grid.Parameters `json:"single" yaml:"single"`

	// Grid holds the candidate lists enumerated in grid mode
	Grid grid.Candidates `json:"grid" yaml:"grid"`

	// ReadStrategies lists the byte-source strategies measured per sorted file
	ReadStrategies []string `json:"read_strategies" yaml:"read_strategies"`

	// Backends lists the store families to measure
	Backends []string `json:"backends" yaml:"backends"`

	// Workers bounds the number of concurrent build and measure tasks
	Workers int `json:"workers" yaml:"workers"`

	// SortBy is the ranking key: jump, iter or sum
	SortBy string `json:"sort_by" yaml:"sort_by"`

	// BoltMapSize is the memory-map size of the bolt baseline in bytes
	BoltMapSize int64 `json:"bolt_map_size" yaml:"bolt_map_size"`

	// Buffer configures the buffered read strategies
	Buffer BufferConfig `json:"buffer" yaml:"buffer"`

	// Storage configures the optional artifact mirror
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Profile is empty, cpu or mem
	Profile string `json:"profile" yaml:"profile"`

	// Verbose enables progress logging
	Verbose bool `json:"verbose" yaml:"verbose"`
}

// DatasetConfig describes the dataset every store is built from.
type DatasetConfig struct {
	// Seed drives key, value and jump generation
	Seed uint64 `json:"seed" yaml:"seed"`

	// EntryCount is the number of generated entries and of measured seeks
	EntryCount int `json:"entry_count" yaml:"entry_count"`

	// KeyMode is word or dense
	KeyMode string `json:"key_mode" yaml:"key_mode"`

	// MaxCardinality bounds every value
	MaxCardinality int `json:"max_cardinality" yaml:"max_cardinality"`

	// File optionally loads the dataset from an existing sorted file
	File string `json:"file" yaml:"file"`
}

// BufferConfig sizes the page cache of the buffered strategies.
type BufferConfig struct {
	// PageSize is the size of one cached page in bytes
	PageSize int `json:"page_size" yaml:"page_size"`

	// Pages is the number of cached pages
	Pages int `json:"pages" yaml:"pages"`
}

// StorageConfig holds artifact mirror configuration.
type StorageConfig struct {
	// Type is none, local or s3
	Type string `json:"type" yaml:"type"`

	// Path is the mirror directory (for local type)
	Path string `json:"path" yaml:"path"`

	// S3 configuration (for s3 type)
	S3 S3Config `json:"s3" yaml:"s3"`
}

// S3Config holds S3 mirror configuration.
type S3Config struct {
	// Bucket is the S3 bucket name
	Bucket string `json:"bucket" yaml:"bucket"`

	// Region is the AWS region
	Region string `json:"region" yaml:"region"`

	// Endpoint is the S3 endpoint (for S3-compatible storage)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// UsePathStyle enables path-style addressing
	UsePathStyle bool `json:"use_path_style" yaml:"use_path_style"`

	// Prefix is prepended to every object key
	Prefix string `json:"prefix" yaml:"prefix"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	src := source.DefaultOptions()
	return &Config{
		Mode:   ModeGrid,
		Folder: "./data/sweep",
		Dataset: DatasetConfig{
			Seed:           42,
			EntryCount:     10_000,
			KeyMode:        dataset.ModeWord.String(),
			MaxCardinality: bitmap.DefaultMaxCardinality,
		},
		Single:         grid.Parameters{BlockSize: 8 * 1024, IndexKeyInterval: 16},
		Grid:           grid.DefaultCandidates(),
		ReadStrategies: []string{source.Direct.String()},
		Backends:       []string{store.BackendSortedFile.String()},
		Workers:        0,
		SortBy:         report.ByJump.String(),
		BoltMapSize:    store.DefaultBoltMapSize,
		Buffer: BufferConfig{
			PageSize: src.PageSize,
			Pages:    src.Pages,
		},
		Storage: StorageConfig{
			Type: "none",
		},
	}
}

// Resolve fills derived defaults.
func (c *Config) Resolve() {
	if c.Folder == "" {
		c.Folder = "./data/sweep"
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "none"
	}
	if c.Storage.Type == "local" && c.Storage.Path == "" {
		c.Storage.Path = filepath.Join(c.Folder, "mirror")
	}
	if c.Storage.S3.Region == "" {
		c.Storage.S3.Region = "us-east-1"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeGrid, ModeSingle:
	default:
		return invalid("invalid mode: %s (must be grid or single)", c.Mode)
	}

	if c.Folder == "" {
		return invalid("folder is required")
	}
	if c.Dataset.EntryCount < 0 {
		return invalid("dataset.entry_count must not be negative, got %d", c.Dataset.EntryCount)
	}
	if c.Dataset.MaxCardinality < 0 {
		return invalid("dataset.max_cardinality must not be negative, got %d", c.Dataset.MaxCardinality)
	}
	if _, err := dataset.ParseMode(c.Dataset.KeyMode); err != nil {
		return invalid("dataset.key_mode: %v", err)
	}

	if c.Mode == ModeSingle {
		if err := c.Single.Options().Validate(); err != nil {
			return invalid("single: %v", err)
		}
	}

	if _, err := c.Strategies(); err != nil {
		return err
	}
	if len(c.ReadStrategies) == 0 {
		return invalid("at least one read strategy is required")
	}
	backends, err := c.BackendSet()
	if err != nil {
		return err
	}
	if len(backends) == 0 {
		return invalid("at least one backend is required")
	}
	if _, err := report.ParseSortKey(c.SortBy); err != nil {
		return invalid("sort_by: %v", err)
	}

	if c.Workers < 0 {
		return invalid("workers must not be negative, got %d", c.Workers)
	}
	if c.BoltMapSize <= 0 {
		return invalid("bolt_map_size must be positive, got %d", c.BoltMapSize)
	}
	if c.Buffer.PageSize <= 0 || c.Buffer.Pages <= 0 {
		return invalid("buffer.page_size and buffer.pages must be positive")
	}

	switch c.Storage.Type {
	case "none", "local", "s3":
	default:
		return invalid("invalid storage type: %s (must be none, local or s3)", c.Storage.Type)
	}
	if c.Storage.Type == "s3" && c.Storage.S3.Bucket == "" {
		return invalid("s3.bucket is required when storage type is s3")
	}

	switch c.Profile {
	case "", "cpu", "mem":
	default:
		return invalid("invalid profile: %s (must be cpu or mem)", c.Profile)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return serrors.NewConfigError(fmt.Sprintf(format, args...))
}

// Strategies parses ReadStrategies.
func (c *Config) Strategies() ([]source.Strategy, error) {
	out := make([]source.Strategy, 0, len(c.ReadStrategies))
	for _, s := range c.ReadStrategies {
		st, err := source.ParseStrategy(s)
		if err != nil {
			return nil, invalid("read_strategies: %v", err)
		}
		out = append(out, st)
	}
	return out, nil
}

// BackendSet parses Backends, dropping duplicates.
func (c *Config) BackendSet() ([]store.Backend, error) {
	seen := make(map[store.Backend]bool)
	var out []store.Backend
	for _, s := range c.Backends {
		b, err := store.ParseBackend(s)
		if err != nil {
			return nil, invalid("backends: %v", err)
		}
		if !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	return out, nil
}

// Parameters returns the sorted-file tuples to measure.
func (c *Config) Parameters() []grid.Parameters {
	if c.Mode == ModeSingle {
		return []grid.Parameters{c.Single}
	}
	return grid.Enumerate(c.Grid)
}

// KeyMode returns the parsed key mode.
func (c *Config) KeyMode() dataset.Mode {
	m, _ := dataset.ParseMode(c.Dataset.KeyMode)
	return m
}

// SortKey returns the parsed ranking key.
func (c *Config) SortKey() report.SortKey {
	k, _ := report.ParseSortKey(c.SortBy)
	return k
}

// BufferOptions returns the page cache options.
func (c *Config) BufferOptions() source.Options {
	return source.Options{PageSize: c.Buffer.PageSize, Pages: c.Buffer.Pages}
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment when present.
// Variables already set take precedence.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	return godotenv.Load(path)
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the SWEEP_ prefix. Malformed numbers are ignored.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("SWEEP_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv("SWEEP_FOLDER"); v != "" {
		cfg.Folder = v
	}

	// Dataset configuration
	if v := os.Getenv("SWEEP_SEED"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Dataset.Seed = n
		}
	}
	if v := os.Getenv("SWEEP_ENTRY_COUNT"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Dataset.EntryCount)
	}
	if v := os.Getenv("SWEEP_KEY_MODE"); v != "" {
		cfg.Dataset.KeyMode = v
	}
	if v := os.Getenv("SWEEP_MAX_CARDINALITY"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Dataset.MaxCardinality)
	}
	if v := os.Getenv("SWEEP_DATASET_FILE"); v != "" {
		cfg.Dataset.File = v
	}

	// Measurement configuration
	if v := os.Getenv("SWEEP_READ_STRATEGIES"); v != "" {
		cfg.ReadStrategies = splitList(v)
	}
	if v := os.Getenv("SWEEP_BACKENDS"); v != "" {
		cfg.Backends = splitList(v)
	}
	if v := os.Getenv("SWEEP_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.Workers)
	}
	if v := os.Getenv("SWEEP_SORT_BY"); v != "" {
		cfg.SortBy = v
	}
	if v := os.Getenv("SWEEP_BOLT_MAP_SIZE"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.BoltMapSize)
	}
	if v := os.Getenv("SWEEP_PROFILE"); v != "" {
		cfg.Profile = v
	}

	// Storage configuration
	if v := os.Getenv("SWEEP_STORAGE_TYPE"); v != "" {
		cfg.Storage.Type = v
	}
	if v := os.Getenv("SWEEP_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("SWEEP_S3_BUCKET"); v != "" {
		cfg.Storage.S3.Bucket = v
	}
	if v := os.Getenv("SWEEP_S3_REGION"); v != "" {
		cfg.Storage.S3.Region = v
	}
	if v := os.Getenv("SWEEP_S3_ENDPOINT"); v != "" {
		cfg.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("SWEEP_S3_PREFIX"); v != "" {
		cfg.Storage.S3.Prefix = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Folder}
	if c.Storage.Type == "local" {
		dirs = append(dirs, c.Storage.Path)
	}
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
