package cleaning

import (
	"fmt"

	"tissueclean/internal/models"
)

// Binarize returns a mask that is true wherever the label exceeds threshold
func Binarize(vol *models.LabelVolume, threshold float64) *models.Mask {
	mask := models.NewMask(vol.Shape)
	for i, l := range vol.Data {
		mask.Data[i] = float64(l) > threshold
	}
	return mask
}

// MaskLabel returns a mask that is true wherever the volume holds label
func MaskLabel(vol *models.LabelVolume, label uint32) *models.Mask {
	mask := models.NewMask(vol.Shape)
	for i, l := range vol.Data {
		mask.Data[i] = l == label
	}
	return mask
}

// ApplyMask returns a copy of vol with every voxel outside mask set to 0
func ApplyMask(vol *models.LabelVolume, mask *models.Mask) (*models.LabelVolume, error) {
	if vol.Shape != mask.Shape || len(vol.Data) != len(mask.Data) {
		return nil, fmt.Errorf("%w: volume shape %s does not match mask shape %s",
			ErrInvalidInput, vol.Shape, mask.Shape)
	}

	out := vol.Clone()
	for i, keep := range mask.Data {
		if !keep {
			out.Data[i] = 0
		}
	}
	return out, nil
}

// checkVolume rejects volumes that cannot be processed
func checkVolume(vol *models.LabelVolume) error {
	if vol == nil {
		return fmt.Errorf("%w: nil volume", ErrInvalidInput)
	}
	if !vol.Valid() {
		return fmt.Errorf("%w: empty volume of shape %s", ErrInvalidInput, vol.Shape)
	}
	if len(vol.Data) != vol.Len() {
		return fmt.Errorf("%w: volume of shape %s holds %d voxels, expected %d",
			ErrInvalidInput, vol.Shape, len(vol.Data), vol.Len())
	}
	return nil
}
