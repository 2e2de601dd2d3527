// Package batch cleans every container of a directory on a worker pool.
//
// Each container is loaded, cleaned, and written back under the output key
// with the source voxel size. With Move enabled the directory is split
// into raw/ (pending) and clean/ (done) subdirectories, and containers move
// from one to the other as they succeed, so an interrupted batch can be
// resumed by running it again on the same directory.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"tissueclean/pkg/cleaning"
	"tissueclean/pkg/config"
	"tissueclean/pkg/visualization"
	"tissueclean/pkg/volumeio"
)

const (
	rawDir   = "raw"
	cleanDir = "clean"
)

// Result is the outcome of cleaning one container
type Result struct {
	Container string
	Name      string
	Report    *cleaning.Report
	Err       error
	Duration  time.Duration
}

// Stats is the mean and standard deviation of a per-file quantity
type Stats struct {
	Mean   float64
	StdDev float64
}

// Summary aggregates a batch run
type Summary struct {
	InputDir  string
	OutputDir string

	// Total is the number of containers found, Processed the number
	// cleaned successfully
	Total     int
	Processed int
	Failed    []Result

	RemovedVoxels Stats
	RemovedLabels Stats
	Duration      time.Duration
}

// Runner cleans directories of containers
type Runner struct {
	cfg     *config.Config
	cleaner *cleaning.Cleaner
	logger  *slog.Logger
}

// NewRunner validates cfg and prepares a runner. A nil logger falls back to
// slog.Default().
func NewRunner(cfg *config.Config, logger *slog.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cleaner, err := cleaning.NewCleaner(cfg.CleaningOptions())
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, cleaner: cleaner, logger: logger}, nil
}

// ResolveDirs returns the input and output directories for dir. Without
// move both are dir. With move, dir (or its parent when dir is itself
// named raw) gets raw/ and clean/ subdirectories and any containers lying
// directly in dir are moved into raw/.
func ResolveDirs(dir string, move bool) (input, output string, err error) {
	info, err := os.Stat(dir)
	if err != nil {
		return "", "", fmt.Errorf("failed to access input directory: %w", err)
	}
	if !info.IsDir() {
		return "", "", fmt.Errorf("expected a directory, got: %s", dir)
	}

	if !move {
		return dir, dir, nil
	}

	base := dir
	input = filepath.Join(dir, rawDir)
	if filepath.Base(dir) == rawDir {
		base = filepath.Dir(dir)
		input = dir
	}
	output = filepath.Join(base, cleanDir)

	for _, d := range []string{input, output} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return "", "", fmt.Errorf("failed to create %s: %w", d, err)
		}
	}

	if input != dir {
		containers, err := volumeio.ListContainers(dir)
		if err != nil {
			return "", "", err
		}
		for _, c := range containers {
			if _, err := volumeio.Move(c, input); err != nil {
				return "", "", err
			}
		}
	}

	return input, output, nil
}

// Run cleans every container in dir. Per-file failures are logged and
// collected in the summary; the returned error is reserved for problems
// with the directory itself and for cancellation, in which case the
// summary covers the files finished before ctx was done.
func (r *Runner) Run(ctx context.Context, dir string) (*Summary, error) {
	start := time.Now()

	input, output, err := ResolveDirs(dir, r.cfg.Batch.Move)
	if err != nil {
		return nil, err
	}
	containers, err := volumeio.ListContainers(input)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	summary := &Summary{InputDir: input, OutputDir: output, Total: len(containers)}
	if len(containers) == 0 {
		r.logger.Warn("no containers found", "dir", input)
		return summary, nil
	}

	numWorkers := r.cfg.Batch.NumWorkers
	if numWorkers > len(containers) {
		numWorkers = len(containers)
	}
	r.logger.Info("starting batch", "dir", input, "files", len(containers), "workers", numWorkers)

	jobs := make(chan string)
	go func() {
		defer close(jobs)
		for _, c := range containers {
			if ctx.Err() != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case jobs <- c:
			}
		}
	}()

	results := make(chan Result)
	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range jobs {
				results <- r.processFile(c, input, output)
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	var removedVoxels, removedLabels []float64
	for res := range results {
		if res.Err != nil {
			r.logger.Error("failed to clean", "file", res.Name, "error", res.Err)
			summary.Failed = append(summary.Failed, res)
			continue
		}
		summary.Processed++
		removedVoxels = append(removedVoxels, float64(res.Report.InputVoxels-res.Report.CleanedVoxels))
		removedLabels = append(removedLabels, float64(res.Report.InputLabels-res.Report.CleanedLabels))
		r.logger.Info("cleaned",
			"file", res.Name,
			"principal", res.Report.Principal.Label,
			"major_axis", res.Report.Principal.AxisLengths[0],
			"removed_labels", len(res.Report.Removal.Condemned),
			"voxels", res.Report.CleanedVoxels,
			"elapsed", res.Duration.Round(time.Millisecond))
	}

	sort.Slice(summary.Failed, func(i, j int) bool {
		return summary.Failed[i].Name < summary.Failed[j].Name
	})
	summary.RemovedVoxels = summarize(removedVoxels)
	summary.RemovedLabels = summarize(removedLabels)
	summary.Duration = time.Since(start)

	r.logger.Info("batch finished",
		"processed", summary.Processed,
		"failed", len(summary.Failed),
		"elapsed", summary.Duration.Round(time.Millisecond))

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("batch interrupted: %w", err)
	}
	return summary, nil
}

// processFile cleans one container: load, clean, save, preview, move
func (r *Runner) processFile(container, input, output string) (res Result) {
	start := time.Now()
	res = Result{Container: container, Name: volumeio.Name(container)}
	defer func() { res.Duration = time.Since(start) }()

	r.logger.Debug("processing", "file", res.Name, "key", r.cfg.Batch.InputKey)

	vol, err := volumeio.Load(container, r.cfg.Batch.InputKey)
	if err != nil {
		res.Err = err
		return res
	}
	if vol.VoxelSize == nil {
		r.logger.Warn("no voxel size recorded", "file", res.Name, "key", r.cfg.Batch.InputKey)
	}

	cleaned, report, err := r.cleaner.Clean(vol)
	if err != nil {
		res.Err = err
		return res
	}
	res.Report = report

	if err := volumeio.Save(container, r.cfg.Batch.OutputKey, cleaned); err != nil {
		res.Err = err
		return res
	}

	if r.cfg.Output.SavePreviews {
		previewDir := r.cfg.Output.PreviewDir
		if !filepath.IsAbs(previewDir) {
			previewDir = filepath.Join(input, previewDir)
		}
		path := filepath.Join(previewDir, res.Name+".jpg")
		if err := visualization.SaveComparison(vol, cleaned, path); err != nil {
			res.Err = fmt.Errorf("failed to save preview: %w", err)
			return res
		}
	}

	if r.cfg.Batch.Move && output != input {
		moved, err := volumeio.Move(container, output)
		if err != nil {
			res.Err = err
			return res
		}
		res.Container = moved
	}

	return res
}

func summarize(values []float64) Stats {
	switch len(values) {
	case 0:
		return Stats{}
	case 1:
		return Stats{Mean: values[0]}
	}
	mean, std := stat.MeanStdDev(values, nil)
	return Stats{Mean: mean, StdDev: std}
}
