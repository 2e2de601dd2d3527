// Command tissueclean removes stray tissue and border contamination from
// 3D label volumes.
//
// Usage:
//
//	tissueclean clean <dir> [--move] [--previews] [--workers N]
//	tissueclean inspect <container>...
//	tissueclean init-config <path>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"tissueclean/internal/logging"
	"tissueclean/pkg/batch"
	"tissueclean/pkg/config"
	"tissueclean/pkg/volumeio"
)

const version = "0.1.0"

// Globals holds flags shared by every command
type Globals struct {
	Config    string `name:"config" short:"c" help:"Configuration file" default:"tissueclean.yaml" type:"path"`
	EnvFile   string `name:"env-file" help:"Environment file with TISSUECLEAN_* overrides" default:".env" type:"path"`
	LogLevel  string `name:"log-level" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" help:"Log format (text, json)"`
}

// CLI defines the command-line interface for tissueclean.
var CLI struct {
	Globals

	Clean      CleanCmd      `cmd:"" help:"Clean every container in a directory"`
	Inspect    InspectCmd    `cmd:"" help:"Print the datasets of containers"`
	InitConfig InitConfigCmd `cmd:"" name:"init-config" help:"Write a default configuration file"`
	Version    VersionCmd    `cmd:"" help:"Print version information"`
}

// load resolves the configuration: defaults, then the YAML file, then the
// environment, then command-line flags. It also installs the logger.
func (g *Globals) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig(g.Config)
	if err != nil {
		return nil, nil, err
	}
	if err := config.LoadDotEnv(g.EnvFile); err != nil {
		return nil, nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, nil, err
	}
	if g.LogLevel != "" {
		cfg.Logging.Level = g.LogLevel
	}
	if g.LogFormat != "" {
		cfg.Logging.Format = g.LogFormat
	}
	logger := logging.Init(cfg.Logging.Level, cfg.Logging.Format)
	return cfg, logger, nil
}

// CleanCmd cleans a directory of containers.
type CleanCmd struct {
	Dir string `arg:"" help:"Directory holding .vol containers" type:"existingdir"`

	Workers     *int     `help:"Number of volumes cleaned concurrently"`
	Threshold   *float64 `help:"Labels above this value are foreground"`
	MinDistance *int     `name:"min-distance" help:"Watershed seed suppression radius in voxels"`
	Strictness  *float64 `help:"Edge to interior contact ratio above which a neighbour is removed"`
	InputKey    *string  `name:"input-key" help:"Dataset key holding the segmentation"`
	OutputKey   *string  `name:"output-key" help:"Dataset key the cleaned segmentation is saved under"`
	Move        *bool    `help:"Sort containers into raw/ and clean/ subdirectories"`
	Previews    *bool    `help:"Save a raw/cleaned comparison image per container"`
	PreviewDir  *string  `name:"preview-dir" help:"Directory for comparison images"`
}

// apply copies the flags that were given over cfg
func (c *CleanCmd) apply(cfg *config.Config) {
	if c.Workers != nil {
		cfg.Batch.NumWorkers = *c.Workers
	}
	if c.Threshold != nil {
		cfg.Cleaning.Threshold = *c.Threshold
	}
	if c.MinDistance != nil {
		cfg.Cleaning.MinDistance = *c.MinDistance
	}
	if c.Strictness != nil {
		cfg.Cleaning.Strictness = *c.Strictness
	}
	if c.InputKey != nil {
		cfg.Batch.InputKey = *c.InputKey
	}
	if c.OutputKey != nil {
		cfg.Batch.OutputKey = *c.OutputKey
	}
	if c.Move != nil {
		cfg.Batch.Move = *c.Move
	}
	if c.Previews != nil {
		cfg.Output.SavePreviews = *c.Previews
	}
	if c.PreviewDir != nil {
		cfg.Output.PreviewDir = *c.PreviewDir
	}
}

func (c *CleanCmd) Run(g *Globals) error {
	cfg, logger, err := g.load()
	if err != nil {
		return err
	}
	c.apply(cfg)

	runner, err := batch.NewRunner(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := runner.Run(ctx, c.Dir)
	if summary != nil {
		printSummary(summary)
	}
	if err != nil {
		return err
	}
	if n := len(summary.Failed); n > 0 {
		return fmt.Errorf("%d of %d files failed", n, summary.Total)
	}
	return nil
}

func printSummary(s *batch.Summary) {
	fmt.Printf("\nProcessed %d of %d files in %v\n", s.Processed, s.Total, s.Duration.Round(time.Millisecond))
	if s.Processed > 0 {
		fmt.Printf("Removed voxels per file: %.1f ± %.1f\n", s.RemovedVoxels.Mean, s.RemovedVoxels.StdDev)
		fmt.Printf("Removed labels per file: %.1f ± %.1f\n", s.RemovedLabels.Mean, s.RemovedLabels.StdDev)
	}
	if s.InputDir != s.OutputDir {
		fmt.Printf("Cleaned files moved to %s\n", s.OutputDir)
	}
	if len(s.Failed) > 0 {
		fmt.Printf("\nFailed files:\n")
		for _, f := range s.Failed {
			fmt.Printf("  - %s: %v\n", f.Name, f.Err)
		}
	}
}

// InspectCmd prints dataset metrics of containers.
type InspectCmd struct {
	Containers []string `arg:"" help:"Containers to inspect"`
}

func (c *InspectCmd) Run(g *Globals) error {
	if _, _, err := g.load(); err != nil {
		return err
	}
	for _, container := range c.Containers {
		infos, err := volumeio.Inspect(container)
		if err != nil {
			return fmt.Errorf("failed to inspect %s: %w", container, err)
		}
		volumeio.PrintInfo(os.Stdout, container, infos)
	}
	return nil
}

// InitConfigCmd writes the default configuration.
type InitConfigCmd struct {
	Path  string `arg:"" help:"Where to write the configuration" type:"path"`
	Force bool   `help:"Overwrite an existing file"`
}

func (c *InitConfigCmd) Run() error {
	if _, err := os.Stat(c.Path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", c.Path)
	}
	if err := config.CreateDefaultConfigFile(c.Path); err != nil {
		return err
	}
	fmt.Printf("Wrote default configuration to %s\n", c.Path)
	return nil
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("tissueclean version %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("tissueclean"),
		kong.Description("Isolate the principal tissue of 3D segmentations and strip border contamination"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run(&CLI.Globals)
	ctx.FatalIfErrorf(err)
}
