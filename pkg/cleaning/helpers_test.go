package cleaning

import (
	"math"

	"tissueclean/internal/models"
)

// cube returns a volume of edge length size filled with background
func cube(size int) *models.LabelVolume {
	return models.NewLabelVolume(models.Shape{Z: size, Y: size, X: size})
}

// fillBox labels every voxel of the half-open box [z0,z1) x [y0,y1) x [x0,x1)
func fillBox(vol *models.LabelVolume, label uint32, z0, z1, y0, y1, x0, x1 int) {
	for z := z0; z < z1; z++ {
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				vol.Set(z, y, x, label)
			}
		}
	}
}

// fillSphere labels every voxel closer than radius to the given center
func fillSphere(vol *models.LabelVolume, label uint32, cz, cy, cx, radius float64) {
	for z := 0; z < vol.Z; z++ {
		for y := 0; y < vol.Y; y++ {
			for x := 0; x < vol.X; x++ {
				dz, dy, dx := float64(z)-cz, float64(y)-cy, float64(x)-cx
				if math.Sqrt(dz*dz+dy*dy+dx*dx) < radius {
					vol.Set(z, y, x, label)
				}
			}
		}
	}
}

// sameVoxels reports whether two volumes hold identical shapes and labels
func sameVoxels(a, b *models.LabelVolume) bool {
	if a.Shape != b.Shape || len(a.Data) != len(b.Data) {
		return false
	}
	for i := range a.Data {
		if a.Data[i] != b.Data[i] {
			return false
		}
	}
	return true
}

// chainVolume stacks labels 1..n along Z, each two slices thick, so that
// label 1 touches the Z=0 face and every label touches only its
// predecessor and successor through a 4x4 interface.
func chainVolume(n int) *models.LabelVolume {
	vol := models.NewLabelVolume(models.Shape{Z: 2*n + 4, Y: 12, X: 12})
	for k := 1; k <= n; k++ {
		z0 := 2 * (k - 1)
		fillBox(vol, uint32(k), z0, z0+2, 4, 8, 4, 8)
	}
	return vol
}
