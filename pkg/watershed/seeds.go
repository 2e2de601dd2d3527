package watershed

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"

	"tissueclean/internal/models"
)

// Seed is a local maximum of the distance map that anchors one basin
type Seed struct {
	// Index is the flat voxel offset of the seed
	Index int

	// Distance is the distance transform value at the seed
	Distance float64

	// Component is the 6-connected foreground component holding the seed
	Component int
}

// seedPoint is a voxel position usable as a k-d tree point
type seedPoint struct {
	Z, Y, X float64
}

// Compare implements the kdtree.Comparable interface
func (p seedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(seedPoint)
	switch d {
	case 0:
		return p.Z - q.Z
	case 1:
		return p.Y - q.Y
	case 2:
		return p.X - q.X
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the k-d tree
func (p seedPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p seedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(seedPoint)
	dz := p.Z - q.Z
	dy := p.Y - q.Y
	dx := p.X - q.X
	return dz*dz + dy*dy + dx*dx
}

func pointAt(s models.Shape, idx int) seedPoint {
	z, y, x := s.Coords(idx)
	return seedPoint{Z: float64(z), Y: float64(y), X: float64(x)}
}

// Components labels the 6-connected components of the mask. Background
// voxels get -1; components are numbered from 0 in scan order.
func Components(mask *models.Mask) ([]int, int) {
	s := mask.Shape
	comp := make([]int, s.Len())
	for i := range comp {
		comp[i] = -1
	}

	n := 0
	queue := make([]int, 0, 1024)
	for start, fg := range mask.Data {
		if !fg || comp[start] >= 0 {
			continue
		}

		// BFS from this voxel
		queue = append(queue[:0], start)
		comp[start] = n
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			forEachFaceNeighbor(s, cur, func(nb int) {
				if mask.Data[nb] && comp[nb] < 0 {
					comp[nb] = n
					queue = append(queue, nb)
				}
			})
		}
		n++
	}
	return comp, n
}

// Seeds selects watershed markers from a distance map.
//
// A foreground voxel is a candidate when its distance equals the maximum
// over its Chebyshev neighbourhood of radius minDistance. Candidates are
// visited from the highest distance down (scan order on ties) and accepted
// when no seed already accepted in the same component lies closer than
// minDistance. Components left without a seed receive their first maximal
// voxel, so every component yields at least one basin.
func Seeds(mask *models.Mask, dist []float64, minDistance int) []Seed {
	s := mask.Shape
	comp, numComp := Components(mask)
	if numComp == 0 {
		return nil
	}

	peaks := maximumFilter(s, dist, minDistance)

	var candidates []int
	for i, fg := range mask.Data {
		if fg && dist[i] > 0 && dist[i] == peaks[i] {
			candidates = append(candidates, i)
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return dist[candidates[a]] > dist[candidates[b]]
	})

	limit := float64(minDistance * minDistance)
	trees := make([]*kdtree.Tree, numComp)
	var seeds []Seed
	for _, idx := range candidates {
		c := comp[idx]
		p := pointAt(s, idx)
		if trees[c] == nil {
			trees[c] = &kdtree.Tree{}
		} else if _, d2 := trees[c].Nearest(p); d2 < limit {
			continue
		}
		trees[c].Insert(p, false)
		seeds = append(seeds, Seed{Index: idx, Distance: dist[idx], Component: c})
	}

	// Guarantee one seed per component
	best := make([]int, numComp)
	for i := range best {
		best[i] = -1
	}
	for i, c := range comp {
		if c < 0 || trees[c] != nil {
			continue
		}
		if best[c] < 0 || dist[i] > dist[best[c]] {
			best[c] = i
		}
	}
	for c, idx := range best {
		if idx >= 0 {
			seeds = append(seeds, Seed{Index: idx, Distance: dist[idx], Component: c})
		}
	}

	return seeds
}

// maximumFilter returns the running maximum of dist over a cube of
// half-width radius, clamped at the volume edges. It is applied as three
// separable one dimensional passes.
func maximumFilter(s models.Shape, dist []float64, radius int) []float64 {
	out := make([]float64, len(dist))
	copy(out, dist)
	if radius <= 0 {
		return out
	}

	maxLen := s.X
	if s.Y > maxLen {
		maxLen = s.Y
	}
	if s.Z > maxLen {
		maxLen = s.Z
	}
	line := make([]float64, maxLen)

	for z := 0; z < s.Z; z++ {
		for y := 0; y < s.Y; y++ {
			maxLine(out, line, s.Index(z, y, 0), 1, s.X, radius)
		}
	}
	for z := 0; z < s.Z; z++ {
		for x := 0; x < s.X; x++ {
			maxLine(out, line, s.Index(z, 0, x), s.X, s.Y, radius)
		}
	}
	for y := 0; y < s.Y; y++ {
		for x := 0; x < s.X; x++ {
			maxLine(out, line, s.Index(0, y, x), s.Y*s.X, s.Z, radius)
		}
	}
	return out
}

func maxLine(data, line []float64, offset, stride, n, radius int) {
	line = line[:n]
	for i := 0; i < n; i++ {
		line[i] = data[offset+i*stride]
	}
	for i := 0; i < n; i++ {
		lo := i - radius
		if lo < 0 {
			lo = 0
		}
		hi := i + radius
		if hi > n-1 {
			hi = n - 1
		}
		m := line[lo]
		for j := lo + 1; j <= hi; j++ {
			if line[j] > m {
				m = line[j]
			}
		}
		data[offset+i*stride] = m
	}
}
