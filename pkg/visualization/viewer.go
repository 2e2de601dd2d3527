package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"

	"tissueclean/internal/models"
)

// gap is the number of white pixels between panels of a comparison image
const gap = 4

// Viewer extracts colour-coded cross sections from a label volume
type Viewer struct {
	// vol is the label volume being viewed
	vol *models.LabelVolume
}

// NewViewer creates a new viewer over vol
func NewViewer(vol *models.LabelVolume) *Viewer {
	return &Viewer{vol: vol}
}

// LabelColor maps a label to a stable colour. Background is black; every
// other label gets a saturated colour derived from a hash of its value, so
// the same label has the same colour in every image.
func LabelColor(label uint32) color.RGBA {
	if label == 0 {
		return color.RGBA{A: 255}
	}

	// Integer hash (lowbias32)
	h := label
	h ^= h >> 16
	h *= 0x7feb352d
	h ^= h >> 15
	h *= 0x846ca68b
	h ^= h >> 16

	// Keep every channel away from black so labels stand out
	return color.RGBA{
		R: uint8(64 + (h&0xff)%192),
		G: uint8(64 + ((h>>8)&0xff)%192),
		B: uint8(64 + ((h>>16)&0xff)%192),
		A: 255,
	}
}

// ExtractSlice extracts a 2D cross section along the specified axis.
// A "z" slice is the XY plane at depth position, "y" the XZ plane and "x"
// the YZ plane.
func (v *Viewer) ExtractSlice(axis string, position int) (*image.RGBA, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}

	s := v.vol.Shape
	var img *image.RGBA

	switch axis {
	case "z", "Z":
		if position >= s.Z {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, s.Z)
		}
		img = image.NewRGBA(image.Rect(0, 0, s.X, s.Y))
		for y := 0; y < s.Y; y++ {
			for x := 0; x < s.X; x++ {
				img.SetRGBA(x, y, LabelColor(v.vol.At(position, y, x)))
			}
		}

	case "y", "Y":
		if position >= s.Y {
			return nil, fmt.Errorf("position %d exceeds height %d", position, s.Y)
		}
		img = image.NewRGBA(image.Rect(0, 0, s.X, s.Z))
		for z := 0; z < s.Z; z++ {
			for x := 0; x < s.X; x++ {
				img.SetRGBA(x, z, LabelColor(v.vol.At(z, position, x)))
			}
		}

	case "x", "X":
		if position >= s.X {
			return nil, fmt.Errorf("position %d exceeds width %d", position, s.X)
		}
		img = image.NewRGBA(image.Rect(0, 0, s.Z, s.Y))
		for y := 0; y < s.Y; y++ {
			for z := 0; z < s.Z; z++ {
				img.SetRGBA(z, y, LabelColor(v.vol.At(z, y, position)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// midSlices returns the central XY and YZ cross sections
func (v *Viewer) midSlices() (xy, yz *image.RGBA, err error) {
	s := v.vol.Shape
	if xy, err = v.ExtractSlice("z", s.Z/2); err != nil {
		return nil, nil, err
	}
	if yz, err = v.ExtractSlice("x", s.X/2); err != nil {
		return nil, nil, err
	}
	return xy, yz, nil
}

// Comparison lays out the central XY and YZ cross sections of two volumes
// of the same shape: raw on the left, cleaned on the right.
func Comparison(raw, cleaned *models.LabelVolume) (*image.RGBA, error) {
	if raw.Shape != cleaned.Shape {
		return nil, fmt.Errorf("shape mismatch: %s vs %s", raw.Shape, cleaned.Shape)
	}

	rawXY, rawYZ, err := NewViewer(raw).midSlices()
	if err != nil {
		return nil, err
	}
	cleanXY, cleanYZ, err := NewViewer(cleaned).midSlices()
	if err != nil {
		return nil, err
	}

	s := raw.Shape
	width := 2*(s.X+gap+s.Z) + gap
	height := s.Y
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)

	x := 0
	for _, panel := range []*image.RGBA{rawXY, rawYZ, cleanXY, cleanYZ} {
		b := panel.Bounds()
		draw.Draw(out, image.Rect(x, 0, x+b.Dx(), b.Dy()), panel, image.Point{}, draw.Src)
		x += b.Dx() + gap
	}

	return out, nil
}

// SaveImage saves an image as JPEG, creating parent directories
func SaveImage(img image.Image, filename string) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 90})
}

// SaveComparison renders Comparison(raw, cleaned) to a JPEG file
func SaveComparison(raw, cleaned *models.LabelVolume, filename string) error {
	img, err := Comparison(raw, cleaned)
	if err != nil {
		return err
	}
	return SaveImage(img, filename)
}
