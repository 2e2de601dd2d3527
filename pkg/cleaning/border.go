package cleaning

import (
	"fmt"
	"math"
	"sort"

	"tissueclean/internal/models"
)

// DefaultStrictness requires a neighbour to touch condemned material more
// than twice as much as anything else before it is condemned too.
const DefaultStrictness = 2.0

// LabelSet is a set of non-zero label ids
type LabelSet map[uint32]struct{}

// NewLabelSet builds a set from the given labels, dropping background
func NewLabelSet(labels ...uint32) LabelSet {
	s := make(LabelSet, len(labels))
	for _, l := range labels {
		s.Add(l)
	}
	return s
}

// Add inserts a label; background is ignored
func (s LabelSet) Add(label uint32) {
	if label != 0 {
		s[label] = struct{}{}
	}
}

// Has reports whether label is in the set
func (s LabelSet) Has(label uint32) bool {
	_, ok := s[label]
	return ok
}

// Clone returns an independent copy of the set
func (s LabelSet) Clone() LabelSet {
	out := make(LabelSet, len(s))
	for l := range s {
		out[l] = struct{}{}
	}
	return out
}

// Sorted returns the labels in ascending order
func (s LabelSet) Sorted() []uint32 {
	out := make([]uint32, 0, len(s))
	for l := range s {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Contacts counts face-adjacent voxel pairs between distinct non-zero labels
type Contacts struct {
	pairs  map[uint32]map[uint32]int
	labels int
}

// NewContacts scans the volume once, looking forward along each axis, and
// records every face shared by two different non-zero labels in both
// directions.
func NewContacts(vol *models.LabelVolume) *Contacts {
	c := &Contacts{pairs: make(map[uint32]map[uint32]int)}
	s := vol.Shape
	plane := s.Y * s.X
	seen := make(map[uint32]struct{})

	i := 0
	for z := 0; z < s.Z; z++ {
		for y := 0; y < s.Y; y++ {
			for x := 0; x < s.X; x++ {
				a := vol.Data[i]
				if a != 0 {
					seen[a] = struct{}{}
					if x+1 < s.X {
						c.add(a, vol.Data[i+1])
					}
					if y+1 < s.Y {
						c.add(a, vol.Data[i+s.X])
					}
					if z+1 < s.Z {
						c.add(a, vol.Data[i+plane])
					}
				}
				i++
			}
		}
	}
	c.labels = len(seen)
	return c
}

func (c *Contacts) add(a, b uint32) {
	if b == 0 || b == a {
		return
	}
	c.inc(a, b)
	c.inc(b, a)
}

func (c *Contacts) inc(a, b uint32) {
	m, ok := c.pairs[a]
	if !ok {
		m = make(map[uint32]int)
		c.pairs[a] = m
	}
	m[b]++
}

// Between returns the number of faces shared by labels a and b
func (c *Contacts) Between(a, b uint32) int {
	return c.pairs[a][b]
}

// NumLabels returns the number of distinct non-zero labels in the volume
func (c *Contacts) NumLabels() int {
	return c.labels
}

// Faces splits the face contacts of label into those with condemned labels
// and those with every other non-background label.
func (c *Contacts) Faces(label uint32, condemned LabelSet) (withEdge, withOther int) {
	for nb, n := range c.pairs[label] {
		if condemned.Has(nb) {
			withEdge += n
		} else {
			withOther += n
		}
	}
	return withEdge, withOther
}

// condemns applies the removal rule to one candidate
func (c *Contacts) condemns(label uint32, condemned LabelSet, strictness float64) bool {
	withEdge, withOther := c.Faces(label, condemned)
	if withEdge == 0 {
		return false
	}
	return withOther == 0 || float64(withEdge) > strictness*float64(withOther)
}

// candidates returns the non-condemned labels sharing a face with any of from
func (c *Contacts) candidates(from []uint32, condemned LabelSet) []uint32 {
	found := NewLabelSet()
	for _, l := range from {
		for nb := range c.pairs[l] {
			if !condemned.Has(nb) {
				found.Add(nb)
			}
		}
	}
	return found.Sorted()
}

// EdgeLabels returns the non-zero labels present on any of the six
// boundary planes of the volume.
func EdgeLabels(vol *models.LabelVolume) LabelSet {
	s := vol.Shape
	edge := NewLabelSet()
	for z := 0; z < s.Z; z++ {
		for y := 0; y < s.Y; y++ {
			if z == 0 || z == s.Z-1 || y == 0 || y == s.Y-1 {
				// Whole row lies on a boundary plane
				for x := 0; x < s.X; x++ {
					edge.Add(vol.At(z, y, x))
				}
				continue
			}
			edge.Add(vol.At(z, y, 0))
			edge.Add(vol.At(z, y, s.X-1))
		}
	}
	return edge
}

// EdgeLabelNeighbors runs one expansion step: every label face-adjacent to
// the condemned labels is condemned when it touches nothing else, or when
// its condemned contact exceeds strictness times its other contact.
func EdgeLabelNeighbors(vol *models.LabelVolume, condemned LabelSet, strictness float64) LabelSet {
	c := NewContacts(vol)
	found := NewLabelSet()
	for _, cand := range c.candidates(condemned.Sorted(), condemned) {
		if c.condemns(cand, condemned, strictness) {
			found.Add(cand)
		}
	}
	return found
}

// Removal records how the condemned set was reached
type Removal struct {
	// Edge holds the labels touching the volume border
	Edge LabelSet

	// Condemned holds the edge labels plus every neighbour condemned after them
	Condemned LabelSet

	// Rounds lists the labels added by each expansion round that added any
	Rounds [][]uint32

	// Iterations is the number of expansion rounds run, including the final
	// one that found nothing new
	Iterations int
}

// RecursiveEdgeLabelNeighbors expands the edge labels to a fixed point.
//
// Each round evaluates, against the condemned set as it stood at the start
// of the round, the labels adjacent to what the previous round condemned.
// Labels whose neighbourhood did not change keep their earlier verdict, so
// only the frontier needs revisiting. The loop is capped at one round per
// distinct label plus the final empty round.
func RecursiveEdgeLabelNeighbors(vol *models.LabelVolume, edge LabelSet, strictness float64) (*Removal, error) {
	return expand(NewContacts(vol), edge, strictness)
}

func expand(c *Contacts, edge LabelSet, strictness float64) (*Removal, error) {
	r := &Removal{
		Edge:      edge.Clone(),
		Condemned: edge.Clone(),
	}

	limit := c.NumLabels() + 1
	frontier := edge.Sorted()
	for len(frontier) > 0 {
		if r.Iterations >= limit {
			return r, fmt.Errorf("%w: %d rounds over %d labels, %d condemned so far",
				ErrConvergenceBound, r.Iterations, c.NumLabels(), len(r.Condemned))
		}
		r.Iterations++

		var added []uint32
		for _, cand := range c.candidates(frontier, r.Condemned) {
			if c.condemns(cand, r.Condemned, strictness) {
				added = append(added, cand)
			}
		}
		for _, l := range added {
			r.Condemned.Add(l)
		}
		if len(added) > 0 {
			r.Rounds = append(r.Rounds, added)
		}
		frontier = added
	}
	return r, nil
}

// RemoveLabels returns a copy of vol with every voxel of the given labels
// set to background.
func RemoveLabels(vol *models.LabelVolume, labels LabelSet) *models.LabelVolume {
	out := vol.Clone()
	if len(labels) == 0 {
		return out
	}
	for i, l := range out.Data {
		if l != 0 && labels.Has(l) {
			out.Data[i] = 0
		}
	}
	return out
}

// RemoveBorderContamination removes labels touching the volume border and,
// recursively, the neighbours dominated by them. A volume without border
// labels comes back unchanged; a volume where everything is condemned comes
// back as all background.
func RemoveBorderContamination(vol *models.LabelVolume, strictness float64) (*models.LabelVolume, error) {
	out, _, err := removeBorder(vol, strictness)
	return out, err
}

func removeBorder(vol *models.LabelVolume, strictness float64) (*models.LabelVolume, *Removal, error) {
	if err := validateStrictness(strictness); err != nil {
		return nil, nil, err
	}
	if err := checkVolume(vol); err != nil {
		return nil, nil, err
	}

	edge := EdgeLabels(vol)
	removal, err := RecursiveEdgeLabelNeighbors(vol, edge, strictness)
	if err != nil {
		return nil, removal, err
	}
	return RemoveLabels(vol, removal.Condemned), removal, nil
}

func validateStrictness(strictness float64) error {
	if math.IsNaN(strictness) || strictness < 0 {
		return fmt.Errorf("%w: strictness must be a non-negative number, got %v", ErrConfiguration, strictness)
	}
	return nil
}
