// Package cleaning isolates the principal tissue of a 3D instance
// segmentation and strips fragments left behind by the field of view.
//
// The pipeline is:
//  1. Binarize the label volume
//  2. Re-segment the foreground with a distance-transform watershed
//  3. Profile and rank the resulting candidate regions
//  4. Keep only the original labels inside the winning region
//  5. Remove labels touching the border, and neighbours dominated by them,
//     until nothing changes
//
// Every function here is a pure function of one in-memory volume. Nothing
// is shared between calls, so callers may clean many volumes concurrently.
package cleaning

import (
	"fmt"
	"math"

	"tissueclean/internal/models"
	"tissueclean/pkg/watershed"
)

// Options holds the tunable parameters of the cleaning pipeline
type Options struct {
	// Threshold is the binarization cut: labels above it are foreground
	Threshold float64

	// MinDistance is the watershed seed suppression radius in voxels
	MinDistance int

	// Strictness is the condemned-to-other contact ratio a neighbour must
	// exceed to be removed along with the border labels
	Strictness float64
}

// DefaultOptions returns the parameters used by the original workflow
func DefaultOptions() Options {
	return Options{
		Threshold:   0,
		MinDistance: watershed.DefaultMinDistance,
		Strictness:  DefaultStrictness,
	}
}

// Validate rejects out-of-range parameters before any computation
func (o Options) Validate() error {
	if math.IsNaN(o.Threshold) || math.IsInf(o.Threshold, 0) {
		return fmt.Errorf("%w: threshold must be finite, got %v", ErrConfiguration, o.Threshold)
	}
	if o.MinDistance < 1 {
		return fmt.Errorf("%w: watershed min distance must be at least 1, got %d", ErrConfiguration, o.MinDistance)
	}
	return validateStrictness(o.Strictness)
}

// Report summarises one cleaning run
type Report struct {
	// Principal is the candidate region selected as the main tissue
	Principal models.Region

	// Candidates is the number of watershed regions that were scored
	Candidates int

	// Removal records the border contamination expansion
	Removal *Removal

	// Voxel counts at the input, after masking, and after border removal
	InputVoxels   int
	MaskedVoxels  int
	CleanedVoxels int

	// Distinct label counts before and after cleaning
	InputLabels   int
	CleanedLabels int
}

// Cleaner runs the full pipeline with a fixed set of options
type Cleaner struct {
	opts Options
}

// NewCleaner validates opts and returns a cleaner using them
func NewCleaner(opts Options) (*Cleaner, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Cleaner{opts: opts}, nil
}

// Options returns the options the cleaner was built with
func (c *Cleaner) Options() Options {
	return c.opts
}

// MainTissue restricts vol to the footprint of its principal tissue. The
// original labels inside that footprint are preserved.
func (c *Cleaner) MainTissue(vol *models.LabelVolume) (*models.LabelVolume, models.Region, int, error) {
	if err := checkVolume(vol); err != nil {
		return nil, models.Region{}, 0, err
	}

	binary := Binarize(vol, c.opts.Threshold)
	tissues, err := watershed.Partition(binary, c.opts.MinDistance)
	if err != nil {
		return nil, models.Region{}, 0, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	regions, err := Profile(binary, tissues)
	if err != nil {
		return nil, models.Region{}, 0, err
	}
	principal, err := SelectPrincipal(regions)
	if err != nil {
		return nil, models.Region{}, len(regions), fmt.Errorf("volume %s has no foreground above %v: %w",
			vol.Shape, c.opts.Threshold, err)
	}

	masked, err := ApplyMask(vol, MaskLabel(tissues, principal.Label))
	if err != nil {
		return nil, principal, len(regions), err
	}
	return masked, principal, len(regions), nil
}

// Clean runs main tissue selection followed by border contamination removal
func (c *Cleaner) Clean(vol *models.LabelVolume) (*models.LabelVolume, *Report, error) {
	masked, principal, candidates, err := c.MainTissue(vol)
	if err != nil {
		return nil, nil, err
	}

	cleaned, removal, err := removeBorder(masked, c.opts.Strictness)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{
		Principal:     principal,
		Candidates:    candidates,
		Removal:       removal,
		InputVoxels:   vol.CountNonZero(),
		MaskedVoxels:  masked.CountNonZero(),
		CleanedVoxels: cleaned.CountNonZero(),
		InputLabels:   len(vol.Labels()),
		CleanedLabels: len(cleaned.Labels()),
	}
	return cleaned, report, nil
}

// CleanMainTissue restricts vol to its principal tissue using default options
func CleanMainTissue(vol *models.LabelVolume) (*models.LabelVolume, error) {
	c := &Cleaner{opts: DefaultOptions()}
	out, _, _, err := c.MainTissue(vol)
	return out, err
}

// FullClean selects the principal tissue and removes border contamination
func FullClean(vol *models.LabelVolume, minDistance int, strictness float64) (*models.LabelVolume, error) {
	opts := DefaultOptions()
	opts.MinDistance = minDistance
	opts.Strictness = strictness

	c, err := NewCleaner(opts)
	if err != nil {
		return nil, err
	}
	out, _, err := c.Clean(vol)
	return out, err
}
