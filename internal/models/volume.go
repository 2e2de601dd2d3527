package models

import (
	"fmt"
	"sort"
)

// Shape is the extent of a volume along its three axes, ordered (Z, Y, X)
type Shape struct {
	Z, Y, X int
}

// Len returns the number of voxels covered by the shape
func (s Shape) Len() int {
	return s.Z * s.Y * s.X
}

// Valid reports whether every axis has at least one voxel
func (s Shape) Valid() bool {
	return s.Z > 0 && s.Y > 0 && s.X > 0
}

// Index converts (z, y, x) voxel coordinates into a flat row-major offset
func (s Shape) Index(z, y, x int) int {
	return z*s.Y*s.X + y*s.X + x
}

// Coords converts a flat offset back into (z, y, x) voxel coordinates
func (s Shape) Coords(i int) (z, y, x int) {
	plane := s.Y * s.X
	z = i / plane
	rem := i % plane
	return z, rem / s.X, rem % s.X
}

// OnBorder reports whether the voxel lies on any of the six boundary planes
func (s Shape) OnBorder(z, y, x int) bool {
	return z == 0 || z == s.Z-1 ||
		y == 0 || y == s.Y-1 ||
		x == 0 || x == s.X-1
}

// Center returns the geometric center of the volume (shape / 2 per axis)
func (s Shape) Center() [3]float64 {
	return [3]float64{float64(s.Z) / 2, float64(s.Y) / 2, float64(s.X) / 2}
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s.Z, s.Y, s.X)
}

// VoxelSize is the physical size of a voxel in micrometres, ordered (Z, Y, X)
type VoxelSize struct {
	Z, Y, X float64
}

// LabelVolume is a 3D instance segmentation. Label 0 is background and
// every positive value names one object.
type LabelVolume struct {
	Shape

	// Data holds the labels in row-major order: z*Y*X + y*X + x
	Data []uint32

	// VoxelSize is the physical voxel size, nil when unknown
	VoxelSize *VoxelSize
}

// NewLabelVolume allocates an all-background volume of the given shape
func NewLabelVolume(shape Shape) *LabelVolume {
	return &LabelVolume{
		Shape: shape,
		Data:  make([]uint32, shape.Len()),
	}
}

// At returns the label at (z, y, x)
func (v *LabelVolume) At(z, y, x int) uint32 {
	return v.Data[v.Index(z, y, x)]
}

// Set stores a label at (z, y, x)
func (v *LabelVolume) Set(z, y, x int, label uint32) {
	v.Data[v.Index(z, y, x)] = label
}

// Clone returns a deep copy of the volume
func (v *LabelVolume) Clone() *LabelVolume {
	out := &LabelVolume{
		Shape: v.Shape,
		Data:  make([]uint32, len(v.Data)),
	}
	copy(out.Data, v.Data)
	if v.VoxelSize != nil {
		vs := *v.VoxelSize
		out.VoxelSize = &vs
	}
	return out
}

// Labels returns the sorted unique non-zero labels present in the volume
func (v *LabelVolume) Labels() []uint32 {
	seen := make(map[uint32]struct{})
	for _, l := range v.Data {
		if l != 0 {
			seen[l] = struct{}{}
		}
	}
	labels := make([]uint32, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// CountNonZero returns the number of foreground voxels
func (v *LabelVolume) CountNonZero() int {
	n := 0
	for _, l := range v.Data {
		if l != 0 {
			n++
		}
	}
	return n
}

// Mask is a boolean voxel grid sharing the layout of LabelVolume
type Mask struct {
	Shape
	Data []bool
}

// NewMask allocates an all-false mask of the given shape
func NewMask(shape Shape) *Mask {
	return &Mask{
		Shape: shape,
		Data:  make([]bool, shape.Len()),
	}
}

// Count returns the number of true voxels
func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Data {
		if b {
			n++
		}
	}
	return n
}

// Region describes one candidate tissue produced by the watershed partition
type Region struct {
	// Label is the watershed label of the region
	Label uint32

	// Area is the voxel count
	Area int

	// Centroid is the mean voxel position in (Z, Y, X)
	Centroid [3]float64

	// BBox holds start z, y, x followed by exclusive stop z, y, x
	BBox [6]int

	// TouchFraction is the share of voxels lying on a boundary plane
	TouchFraction float64

	// DistanceToCenter is the Euclidean distance from the centroid to shape/2
	DistanceToCenter float64

	// AxisLengths are twice the square roots of the voxel covariance
	// eigenvalues, longest first
	AxisLengths [3]float64

	// Score is the combined rank, lower is more likely the principal tissue
	Score float64
}
