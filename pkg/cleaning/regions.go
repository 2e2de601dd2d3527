package cleaning

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"tissueclean/internal/models"
)

// regionStats accumulates per-label measurements during a single scan
type regionStats struct {
	area     int
	sum      [3]float64
	prod     [3][3]float64
	min      [3]int
	max      [3]int
	onBorder int
}

// Profile measures every non-zero label of a partition.
//
// For each region it records area, centroid, bounding box, the fraction of
// voxels lying on one of the six boundary planes and the distance from the
// centroid to the volume center. Regions are returned ordered by label.
func Profile(mask *models.Mask, labeled *models.LabelVolume) ([]models.Region, error) {
	if err := checkVolume(labeled); err != nil {
		return nil, err
	}
	if mask.Shape != labeled.Shape || len(mask.Data) != len(labeled.Data) {
		return nil, fmt.Errorf("%w: mask shape %s does not match partition shape %s",
			ErrInvalidInput, mask.Shape, labeled.Shape)
	}

	s := labeled.Shape
	stats := make(map[uint32]*regionStats)
	i := 0
	for z := 0; z < s.Z; z++ {
		for y := 0; y < s.Y; y++ {
			for x := 0; x < s.X; x++ {
				label := labeled.Data[i]
				i++
				if label == 0 {
					continue
				}

				st, ok := stats[label]
				if !ok {
					st = &regionStats{min: [3]int{z, y, x}, max: [3]int{z, y, x}}
					stats[label] = st
				}
				pos := [3]int{z, y, x}
				st.area++
				for a := 0; a < 3; a++ {
					st.sum[a] += float64(pos[a])
					for b := a; b < 3; b++ {
						st.prod[a][b] += float64(pos[a] * pos[b])
					}
					if pos[a] < st.min[a] {
						st.min[a] = pos[a]
					}
					if pos[a] > st.max[a] {
						st.max[a] = pos[a]
					}
				}
				if s.OnBorder(z, y, x) {
					st.onBorder++
				}
			}
		}
	}

	center := s.Center()
	regions := make([]models.Region, 0, len(stats))
	for label, st := range stats {
		r := models.Region{
			Label:         label,
			Area:          st.area,
			TouchFraction: float64(st.onBorder) / float64(st.area),
		}
		for a := 0; a < 3; a++ {
			r.Centroid[a] = st.sum[a] / float64(st.area)
			r.BBox[a] = st.min[a]
			r.BBox[a+3] = st.max[a] + 1
		}
		r.DistanceToCenter = floats.Distance(r.Centroid[:], center[:], 2)
		r.AxisLengths = st.axisLengths()
		regions = append(regions, r)
	}
	sort.Slice(regions, func(a, b int) bool { return regions[a].Label < regions[b].Label })

	return regions, nil
}

// axisLengths returns 2*sqrt of the eigenvalues of the sample covariance of
// the voxel coordinates, longest first
func (st *regionStats) axisLengths() [3]float64 {
	var lengths [3]float64
	if st.area < 2 {
		return lengths
	}

	n := float64(st.area)
	cov := mat.NewSymDense(3, nil)
	for a := 0; a < 3; a++ {
		for b := a; b < 3; b++ {
			cov.SetSym(a, b, (st.prod[a][b]-st.sum[a]*st.sum[b]/n)/(n-1))
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(cov, false) {
		return lengths
	}
	vals := eig.Values(nil)
	for i := range lengths {
		// Values are ascending
		lengths[i] = 2 * math.Sqrt(math.Max(vals[2-i], 0))
	}
	return lengths
}

// Score fills in the combined rank of every region:
//
//	rank(area, descending) + rank(distance to center) + rank(touch fraction)
//
// Ranks are competition ranks, so tied values share the lowest rank.
func Score(regions []models.Region) {
	n := len(regions)
	if n == 0 {
		return
	}

	area := make([]float64, n)
	dist := make([]float64, n)
	touch := make([]float64, n)
	for i, r := range regions {
		area[i] = -float64(r.Area)
		dist[i] = r.DistanceToCenter
		touch[i] = r.TouchFraction
	}

	areaRank := competitionRanks(area)
	distRank := competitionRanks(dist)
	touchRank := competitionRanks(touch)
	for i := range regions {
		regions[i].Score = areaRank[i] + distRank[i] + touchRank[i]
	}
}

// competitionRanks ranks values ascending starting at 1; equal values share
// the rank of their first occurrence in sorted order.
func competitionRanks(values []float64) []float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	inds := make([]int, len(values))
	floats.Argsort(sorted, inds)

	ranks := make([]float64, len(values))
	for i := range sorted {
		if i > 0 && sorted[i] == sorted[i-1] {
			ranks[inds[i]] = ranks[inds[i-1]]
			continue
		}
		ranks[inds[i]] = float64(i + 1)
	}
	return ranks
}

// SelectPrincipal scores the regions and returns the one with the lowest
// score. Equal scores go to the lowest label.
func SelectPrincipal(regions []models.Region) (models.Region, error) {
	if len(regions) == 0 {
		return models.Region{}, fmt.Errorf("%w: no candidate regions to score", ErrInvalidInput)
	}

	Score(regions)
	best := 0
	for i := 1; i < len(regions); i++ {
		r, b := regions[i], regions[best]
		if r.Score < b.Score || (r.Score == b.Score && r.Label < b.Label) {
			best = i
		}
	}
	return regions[best], nil
}
