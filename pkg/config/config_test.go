package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"tissueclean/pkg/cleaning"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.Validate())
	require.Equal(t, 3, cfg.Cleaning.MinDistance)
	require.Equal(t, 2.0, cfg.Cleaning.Strictness)
	require.Equal(t, "segmentation", cfg.Batch.InputKey)
	require.Equal(t, "cleaned", cfg.Batch.OutputKey)
}

func TestLoadConfigMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.Cleaning.Strictness = 3.5
	cfg.Batch.NumWorkers = 2
	cfg.Output.SavePreviews = true

	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestLoadConfigPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cleaning:\n  strictness: 4\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 4.0, cfg.Cleaning.Strictness)
	require.Equal(t, 3, cfg.Cleaning.MinDistance)
}

func TestLoadConfigRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cleaning: [unclosed"), 0644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestValidateRejectsOutOfRange(t *testing.T) {
	tests := map[string]func(*Config){
		"negative strictness": func(c *Config) { c.Cleaning.Strictness = -1 },
		"zero min distance":   func(c *Config) { c.Cleaning.MinDistance = 0 },
		"zero workers":        func(c *Config) { c.Batch.NumWorkers = 0 },
		"empty output key":    func(c *Config) { c.Batch.OutputKey = "" },
		"unknown log level":   func(c *Config) { c.Logging.Level = "loud" },
		"unknown log format":  func(c *Config) { c.Logging.Format = "xml" },
	}

	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			err := cfg.Validate()
			require.True(t, errors.Is(err, cleaning.ErrConfiguration), "got %v", err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"TISSUECLEAN_STRICTNESS":   "1.5",
		"TISSUECLEAN_MIN_DISTANCE": "5",
		"TISSUECLEAN_WORKERS":      "3",
		"TISSUECLEAN_OUTPUT_KEY":   "tidy",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultConfig()
	require.NoError(t, cfg.ApplyEnv(lookup))
	require.Equal(t, 1.5, cfg.Cleaning.Strictness)
	require.Equal(t, 5, cfg.Cleaning.MinDistance)
	require.Equal(t, 3, cfg.Batch.NumWorkers)
	require.Equal(t, "tidy", cfg.Batch.OutputKey)
	require.Equal(t, "segmentation", cfg.Batch.InputKey)
}

func TestApplyEnvRejectsGarbage(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "TISSUECLEAN_MIN_DISTANCE" {
			return "three", true
		}
		return "", false
	}

	require.Error(t, DefaultConfig().ApplyEnv(lookup))
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("TISSUECLEAN_TEST_DOTENV=7\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("TISSUECLEAN_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env")))
	require.Equal(t, "7", os.Getenv("TISSUECLEAN_TEST_DOTENV"))
}
