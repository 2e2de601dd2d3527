package watershed

import (
	"math"
	"testing"

	"tissueclean/internal/models"
)

// fillBox sets every voxel of the half-open box [z0,z1) x [y0,y1) x [x0,x1)
func fillBox(m *models.Mask, z0, z1, y0, y1, x0, x1 int) {
	for z := z0; z < z1; z++ {
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				m.Data[m.Index(z, y, x)] = true
			}
		}
	}
}

// TestDistanceTransformLine checks distances along a single row
func TestDistanceTransformLine(t *testing.T) {
	mask := models.NewMask(models.Shape{Z: 1, Y: 1, X: 6})
	fillBox(mask, 0, 1, 0, 1, 1, 6)

	dist := DistanceTransform(mask)
	expected := []float64{0, 1, 2, 3, 4, 5}
	for i, want := range expected {
		if dist[i] != want {
			t.Errorf("Expected dist[%d]=%f, got %f", i, want, dist[i])
		}
	}
}

// TestDistanceTransformDiagonal checks that distances are Euclidean, not city block
func TestDistanceTransformDiagonal(t *testing.T) {
	shape := models.Shape{Z: 3, Y: 3, X: 3}
	mask := models.NewMask(shape)
	fillBox(mask, 0, 3, 0, 3, 0, 3)
	mask.Data[shape.Index(0, 0, 0)] = false

	dist := DistanceTransform(mask)

	if got := dist[shape.Index(1, 1, 1)]; math.Abs(got-math.Sqrt(3)) > 1e-9 {
		t.Errorf("Expected sqrt(3) at (1,1,1), got %f", got)
	}
	if got := dist[shape.Index(2, 2, 2)]; math.Abs(got-math.Sqrt(12)) > 1e-9 {
		t.Errorf("Expected sqrt(12) at (2,2,2), got %f", got)
	}
	if got := dist[shape.Index(0, 0, 0)]; got != 0 {
		t.Errorf("Expected 0 on background, got %f", got)
	}
}

// TestDistanceTransformNoBackground verifies the all-foreground case
func TestDistanceTransformNoBackground(t *testing.T) {
	mask := models.NewMask(models.Shape{Z: 2, Y: 2, X: 2})
	fillBox(mask, 0, 2, 0, 2, 0, 2)

	for i, d := range DistanceTransform(mask) {
		if !math.IsInf(d, 1) {
			t.Errorf("Expected +Inf at %d, got %f", i, d)
		}
	}
}

// TestComponents verifies 6-connected component labelling
func TestComponents(t *testing.T) {
	shape := models.Shape{Z: 5, Y: 5, X: 5}
	mask := models.NewMask(shape)
	fillBox(mask, 0, 2, 0, 2, 0, 2)
	fillBox(mask, 3, 5, 3, 5, 3, 5)
	// Diagonal contact only, must not merge
	mask.Data[shape.Index(2, 2, 2)] = true

	comp, n := Components(mask)
	if n != 3 {
		t.Fatalf("Expected 3 components, got %d", n)
	}
	if comp[shape.Index(0, 0, 0)] == comp[shape.Index(4, 4, 4)] {
		t.Errorf("Separate boxes should not share a component")
	}
	if comp[shape.Index(1, 1, 1)] != comp[shape.Index(0, 0, 0)] {
		t.Errorf("Voxels of the same box should share a component")
	}
	if comp[shape.Index(2, 0, 0)] != -1 {
		t.Errorf("Background should be -1, got %d", comp[shape.Index(2, 0, 0)])
	}
}

// TestSeedsCoverEveryComponent checks that a small blob next to a larger
// one still gets its own seed even when the larger one dominates its window
func TestSeedsCoverEveryComponent(t *testing.T) {
	shape := models.Shape{Z: 12, Y: 12, X: 20}
	mask := models.NewMask(shape)
	fillBox(mask, 1, 10, 1, 10, 1, 10)
	fillBox(mask, 4, 7, 4, 7, 12, 15)

	dist := DistanceTransform(mask)
	seeds := Seeds(mask, dist, 3)

	_, n := Components(mask)
	covered := make(map[int]bool)
	for _, s := range seeds {
		covered[s.Component] = true
		if !mask.Data[s.Index] {
			t.Errorf("Seed at %d lies on background", s.Index)
		}
	}
	if len(covered) != n {
		t.Errorf("Expected seeds in %d components, got %d", n, len(covered))
	}
}

// TestSeedsSpacing verifies that accepted seeds respect the minimum distance
func TestSeedsSpacing(t *testing.T) {
	shape := models.Shape{Z: 8, Y: 8, X: 30}
	mask := models.NewMask(shape)
	fillBox(mask, 1, 7, 1, 7, 1, 29)

	dist := DistanceTransform(mask)
	minDistance := 4
	seeds := Seeds(mask, dist, minDistance)
	if len(seeds) == 0 {
		t.Fatal("Expected at least one seed")
	}

	for i := 0; i < len(seeds); i++ {
		for j := i + 1; j < len(seeds); j++ {
			a := pointAt(shape, seeds[i].Index)
			b := pointAt(shape, seeds[j].Index)
			if d := math.Sqrt(a.Distance(b)); d < float64(minDistance) {
				t.Errorf("Seeds %d and %d are %.2f apart, expected at least %d", i, j, d, minDistance)
			}
		}
	}
}

// TestPartitionEmptyMask verifies that an empty mask yields no regions
func TestPartitionEmptyMask(t *testing.T) {
	mask := models.NewMask(models.Shape{Z: 4, Y: 4, X: 4})

	labeled, err := Partition(mask, DefaultMinDistance)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if labeled.CountNonZero() != 0 {
		t.Errorf("Expected empty labeled volume, got %d foreground voxels", labeled.CountNonZero())
	}
}

// TestPartitionRejectsMinDistance checks parameter validation
func TestPartitionRejectsMinDistance(t *testing.T) {
	mask := models.NewMask(models.Shape{Z: 4, Y: 4, X: 4})

	if _, err := Partition(mask, 0); err == nil {
		t.Error("Expected an error for min distance 0")
	}
}

// TestPartitionCoversMask checks that every foreground voxel gets a basin
// and no background voxel does
func TestPartitionCoversMask(t *testing.T) {
	size := 24
	shape := models.Shape{Z: size, Y: size, X: size}
	mask := models.NewMask(shape)

	// Sphere in the middle of the volume
	radius := 8.0
	center := float64(size) / 2
	for z := 0; z < size; z++ {
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				dz, dy, dx := float64(z)-center, float64(y)-center, float64(x)-center
				if math.Sqrt(dz*dz+dy*dy+dx*dx) < radius {
					mask.Data[shape.Index(z, y, x)] = true
				}
			}
		}
	}

	labeled, err := Partition(mask, DefaultMinDistance)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i, fg := range mask.Data {
		if fg && labeled.Data[i] == 0 {
			t.Fatalf("Foreground voxel %d was not assigned a basin", i)
		}
		if !fg && labeled.Data[i] != 0 {
			t.Fatalf("Background voxel %d was assigned basin %d", i, labeled.Data[i])
		}
	}
}

// TestPartitionSplitsDumbbell verifies that two cubes joined by a thin neck
// end up in different basins
func TestPartitionSplitsDumbbell(t *testing.T) {
	shape := models.Shape{Z: 11, Y: 11, X: 24}
	mask := models.NewMask(shape)
	fillBox(mask, 1, 10, 1, 10, 1, 10)
	fillBox(mask, 5, 6, 5, 6, 10, 14)
	fillBox(mask, 1, 10, 1, 10, 14, 23)

	labeled, err := Partition(mask, DefaultMinDistance)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	left := labeled.At(5, 5, 5)
	right := labeled.At(5, 5, 18)
	if left == 0 || right == 0 {
		t.Fatalf("Cube centers should be labeled, got %d and %d", left, right)
	}
	if left == right {
		t.Fatalf("Expected the cubes in different basins, both got %d", left)
	}

	// Every voxel of each cube belongs to its center's basin
	for z := 1; z < 10; z++ {
		for y := 1; y < 10; y++ {
			for x := 1; x < 10; x++ {
				if got := labeled.At(z, y, x); got != left {
					t.Fatalf("Voxel (%d,%d,%d) of left cube has basin %d, expected %d", z, y, x, got, left)
				}
				if got := labeled.At(z, y, x+13); got != right {
					t.Fatalf("Voxel (%d,%d,%d) of right cube has basin %d, expected %d", z, y, x+13, got, right)
				}
			}
		}
	}
}
