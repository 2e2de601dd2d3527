package watershed

import (
	"math"

	"tissueclean/internal/models"
)

// edtInf stands in for infinity inside the lower-envelope computation.
// A true Inf would turn the parabola intersections into NaN.
const edtInf = 1e20

// DistanceTransform computes the exact Euclidean distance of every
// foreground voxel to the nearest background voxel of the mask.
//
// Background voxels get distance 0. Space outside the array is not treated
// as background, so a mask without any background voxel yields +Inf for
// every voxel.
//
// The transform is separable: a one dimensional squared distance pass is
// run along X, then Y, then Z (Felzenszwalb & Huttenlocher lower envelope
// of parabolas), and the square root is taken at the end.
func DistanceTransform(mask *models.Mask) []float64 {
	s := mask.Shape
	dist := make([]float64, s.Len())
	for i, fg := range mask.Data {
		if fg {
			dist[i] = edtInf
		}
	}

	maxLen := s.X
	if s.Y > maxLen {
		maxLen = s.Y
	}
	if s.Z > maxLen {
		maxLen = s.Z
	}
	buf := newEnvelope(maxLen)

	// Pass along X
	for z := 0; z < s.Z; z++ {
		for y := 0; y < s.Y; y++ {
			buf.transformLine(dist, s.Index(z, y, 0), 1, s.X)
		}
	}

	// Pass along Y
	for z := 0; z < s.Z; z++ {
		for x := 0; x < s.X; x++ {
			buf.transformLine(dist, s.Index(z, 0, x), s.X, s.Y)
		}
	}

	// Pass along Z
	for y := 0; y < s.Y; y++ {
		for x := 0; x < s.X; x++ {
			buf.transformLine(dist, s.Index(0, y, x), s.Y*s.X, s.Z)
		}
	}

	for i, d := range dist {
		if d >= edtInf/2 {
			dist[i] = math.Inf(1)
		} else {
			dist[i] = math.Sqrt(d)
		}
	}
	return dist
}

// envelope holds scratch buffers reused across lines
type envelope struct {
	f []float64
	d []float64
	v []int
	z []float64
}

func newEnvelope(n int) *envelope {
	return &envelope{
		f: make([]float64, n),
		d: make([]float64, n),
		v: make([]int, n),
		z: make([]float64, n+1),
	}
}

// transformLine replaces n squared distances starting at offset with stride
// by their one dimensional lower envelope.
func (e *envelope) transformLine(data []float64, offset, stride, n int) {
	f, d, v, z := e.f[:n], e.d[:n], e.v[:n], e.z[:n+1]
	for i := 0; i < n; i++ {
		f[i] = data[offset+i*stride]
	}

	k := 0
	v[0] = 0
	z[0] = math.Inf(-1)
	z[1] = math.Inf(1)
	for q := 1; q < n; q++ {
		fq := f[q] + float64(q*q)
		s := (fq - (f[v[k]] + float64(v[k]*v[k]))) / float64(2*q-2*v[k])
		for s <= z[k] {
			k--
			s = (fq - (f[v[k]] + float64(v[k]*v[k]))) / float64(2*q-2*v[k])
		}
		k++
		v[k] = q
		z[k] = s
		z[k+1] = math.Inf(1)
	}

	k = 0
	for q := 0; q < n; q++ {
		for z[k+1] < float64(q) {
			k++
		}
		dq := q - v[k]
		d[q] = float64(dq*dq) + f[v[k]]
	}

	for i := 0; i < n; i++ {
		data[offset+i*stride] = d[i]
	}
}
