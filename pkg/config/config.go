// Package config provides configuration loading and management for tissueclean.
// It handles loading configuration from YAML files, applies environment
// overrides and provides default values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tissueclean/pkg/cleaning"
	"tissueclean/pkg/watershed"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv
const EnvPrefix = "TISSUECLEAN_"

// Config represents the application configuration loaded from YAML
type Config struct {
	// Cleaning parameters
	Cleaning struct {
		// Threshold is the binarization cut, labels above it are foreground
		Threshold float64 `yaml:"threshold"`

		// MinDistance is the watershed seed suppression radius in voxels
		MinDistance int `yaml:"minDistance"`

		// Strictness controls how dominant contact with condemned labels
		// must be before a neighbour is removed too
		Strictness float64 `yaml:"strictness"`
	} `yaml:"cleaning"`

	// Batch processing parameters
	Batch struct {
		// NumWorkers specifies how many volumes are cleaned concurrently
		NumWorkers int `yaml:"numWorkers"`

		// InputKey is the dataset key holding the raw segmentation
		InputKey string `yaml:"inputKey"`

		// OutputKey is the dataset key the cleaned segmentation is saved under
		OutputKey string `yaml:"outputKey"`

		// Move sorts containers into raw/ and clean/ subdirectories
		Move bool `yaml:"move"`
	} `yaml:"batch"`

	// Output parameters
	Output struct {
		// SavePreviews writes a raw/cleaned comparison image per container
		SavePreviews bool `yaml:"savePreviews"`

		// PreviewDir is where comparison images are written, relative to
		// the input directory unless absolute
		PreviewDir string `yaml:"previewDir"`
	} `yaml:"output"`

	// Logging parameters
	Logging struct {
		// Level is one of debug, info, warn, error
		Level string `yaml:"level"`

		// Format is text or json
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Set default cleaning parameters
	cfg.Cleaning.Threshold = 0
	cfg.Cleaning.MinDistance = watershed.DefaultMinDistance
	cfg.Cleaning.Strictness = cleaning.DefaultStrictness

	// Set default batch parameters
	cfg.Batch.NumWorkers = runtime.NumCPU() // Use all available cores by default
	cfg.Batch.InputKey = "segmentation"
	cfg.Batch.OutputKey = "cleaned"
	cfg.Batch.Move = false

	// Set default output parameters
	cfg.Output.SavePreviews = false
	cfg.Output.PreviewDir = "previews"

	// Set default logging parameters
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	return cfg
}

// CleaningOptions converts the cleaning section into pipeline options
func (c *Config) CleaningOptions() cleaning.Options {
	return cleaning.Options{
		Threshold:   c.Cleaning.Threshold,
		MinDistance: c.Cleaning.MinDistance,
		Strictness:  c.Cleaning.Strictness,
	}
}

// Validate checks every section before any volume is touched
func (c *Config) Validate() error {
	if err := c.CleaningOptions().Validate(); err != nil {
		return err
	}
	if c.Batch.NumWorkers < 1 {
		return fmt.Errorf("%w: numWorkers must be at least 1, got %d", cleaning.ErrConfiguration, c.Batch.NumWorkers)
	}
	if c.Batch.InputKey == "" || c.Batch.OutputKey == "" {
		return fmt.Errorf("%w: inputKey and outputKey must not be empty", cleaning.ErrConfiguration)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", cleaning.ErrConfiguration, c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: unknown log format %q", cleaning.ErrConfiguration, c.Logging.Format)
	}
	return nil
}

// LoadConfig loads configuration from a YAML file
// If the file doesn't exist, it returns the default configuration
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	// Read config file
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Parse YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are ignored; existing variables win.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("error loading env file: %w", err)
	}
	return nil
}

// ApplyEnv overrides configuration values from TISSUECLEAN_* variables
// returned by lookup (os.LookupEnv in production).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	floatVars := map[string]*float64{
		"THRESHOLD":  &c.Cleaning.Threshold,
		"STRICTNESS": &c.Cleaning.Strictness,
	}
	for name, dst := range floatVars {
		if v, ok := lookup(EnvPrefix + name); ok {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("error parsing %s%s: %w", EnvPrefix, name, err)
			}
			*dst = f
		}
	}

	intVars := map[string]*int{
		"MIN_DISTANCE": &c.Cleaning.MinDistance,
		"WORKERS":      &c.Batch.NumWorkers,
	}
	for name, dst := range intVars {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("error parsing %s%s: %w", EnvPrefix, name, err)
			}
			*dst = n
		}
	}

	stringVars := map[string]*string{
		"INPUT_KEY":  &c.Batch.InputKey,
		"OUTPUT_KEY": &c.Batch.OutputKey,
		"LOG_LEVEL":  &c.Logging.Level,
		"LOG_FORMAT": &c.Logging.Format,
	}
	for name, dst := range stringVars {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	return nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(cfg *Config, configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	// Marshal config to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	// Write to file
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}

	return nil
}

// CreateDefaultConfigFile creates a default configuration file at the specified path
func CreateDefaultConfigFile(configPath string) error {
	cfg := DefaultConfig()
	return SaveConfig(cfg, configPath)
}
