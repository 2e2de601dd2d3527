// Package watershed re-segments a binary foreground into candidate regions
// using marker-controlled watershed on the foreground's own distance
// transform. Blobs are split along the narrow necks between distance
// maxima, independently of any labels the foreground came from.
package watershed

import (
	"container/heap"
	"fmt"

	"tissueclean/internal/models"
)

// DefaultMinDistance is the default seed suppression radius in voxels
const DefaultMinDistance = 3

// Partition splits every connected component of the mask into one or more
// basins. The result has the mask's shape; background stays 0 and basins
// are numbered from 1 in seed order.
//
// Larger minDistance values produce fewer seeds and merge more, smaller
// values split more. An empty mask yields an all-zero volume.
func Partition(mask *models.Mask, minDistance int) (*models.LabelVolume, error) {
	if minDistance < 1 {
		return nil, fmt.Errorf("min distance must be at least 1, got %d", minDistance)
	}
	if !mask.Valid() || len(mask.Data) != mask.Len() {
		return nil, fmt.Errorf("invalid mask shape %s with %d voxels", mask.Shape, len(mask.Data))
	}

	dist := DistanceTransform(mask)
	seeds := Seeds(mask, dist, minDistance)
	return Flood(mask, dist, seeds), nil
}

// Flood grows basins outward from the seeds, always extending the basin
// whose frontier voxel has the highest distance value. Voxels reached first
// keep their label; ties are resolved by the order voxels were queued.
func Flood(mask *models.Mask, dist []float64, seeds []Seed) *models.LabelVolume {
	s := mask.Shape
	out := models.NewLabelVolume(s)

	pq := &floodQueue{}
	heap.Init(pq)
	var age uint64
	for i, seed := range seeds {
		label := uint32(i + 1)
		out.Data[seed.Index] = label
		heap.Push(pq, &floodItem{index: seed.Index, label: label, priority: dist[seed.Index], age: age})
		age++
	}

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*floodItem)
		forEachFaceNeighbor(s, item.index, func(nb int) {
			if !mask.Data[nb] || out.Data[nb] != 0 {
				return
			}
			out.Data[nb] = item.label
			heap.Push(pq, &floodItem{index: nb, label: item.label, priority: dist[nb], age: age})
			age++
		})
	}

	return out
}

// forEachFaceNeighbor calls fn for each in-bounds 6-connected neighbour
func forEachFaceNeighbor(s models.Shape, idx int, fn func(int)) {
	z, y, x := s.Coords(idx)
	plane := s.Y * s.X
	if z > 0 {
		fn(idx - plane)
	}
	if z < s.Z-1 {
		fn(idx + plane)
	}
	if y > 0 {
		fn(idx - s.X)
	}
	if y < s.Y-1 {
		fn(idx + s.X)
	}
	if x > 0 {
		fn(idx - 1)
	}
	if x < s.X-1 {
		fn(idx + 1)
	}
}

type floodItem struct {
	index    int
	label    uint32
	priority float64
	age      uint64
}

// floodQueue implements heap.Interface: highest priority first, oldest first on ties
type floodQueue []*floodItem

func (pq floodQueue) Len() int { return len(pq) }

func (pq floodQueue) Less(i, j int) bool {
	if pq[i].priority != pq[j].priority {
		return pq[i].priority > pq[j].priority
	}
	return pq[i].age < pq[j].age
}

func (pq floodQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
}

func (pq *floodQueue) Push(x interface{}) {
	*pq = append(*pq, x.(*floodItem))
}

func (pq *floodQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}
