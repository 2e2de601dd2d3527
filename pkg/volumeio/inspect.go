package volumeio

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"tissueclean/internal/models"
)

// DatasetInfo summarises one dataset of a container
type DatasetInfo struct {
	Key       string
	Shape     models.Shape
	DType     string
	VoxelSize *models.VoxelSize
	SizeBytes int64
	Labels    int
	Min       float64
	Max       float64
	Mean      float64
}

// Inspect loads every dataset of a container and reports its metrics
func Inspect(container string) ([]DatasetInfo, error) {
	keys, err := Keys(container)
	if err != nil {
		return nil, err
	}

	infos := make([]DatasetInfo, 0, len(keys))
	for _, key := range keys {
		vol, err := Load(container, key)
		if err != nil {
			return nil, err
		}

		values := make([]float64, len(vol.Data))
		for i, l := range vol.Data {
			values[i] = float64(l)
		}

		info := DatasetInfo{
			Key:       key,
			Shape:     vol.Shape,
			DType:     dtypeUint32,
			VoxelSize: vol.VoxelSize,
			Labels:    len(vol.Labels()),
			Min:       floats.Min(values),
			Max:       floats.Max(values),
			Mean:      stat.Mean(values, nil),
		}
		if fi, err := os.Stat(filepath.Join(container, key+payloadExt)); err == nil {
			info.SizeBytes = fi.Size()
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// PrintInfo writes a human readable report of a container's datasets
func PrintInfo(w io.Writer, container string, infos []DatasetInfo) {
	fmt.Fprintf(w, "\n%s\n", "============================================================")
	fmt.Fprintf(w, "Container: %s\n", filepath.Base(container))
	fmt.Fprintf(w, "%s\n", "============================================================")
	fmt.Fprintf(w, "Path: %s\n", container)

	for _, info := range infos {
		fmt.Fprintf(w, "\nKey: %s\n", info.Key)
		fmt.Fprintf(w, "  Shape: %s\n", info.Shape)
		if vs := info.VoxelSize; vs != nil {
			fmt.Fprintf(w, "  Voxel size (zyx): %.3f x %.3f x %.3f um\n", vs.Z, vs.Y, vs.X)
		}
		fmt.Fprintf(w, "  Data type: %s\n", info.DType)
		fmt.Fprintf(w, "  Size: %.2f MB\n", float64(info.SizeBytes)/(1024*1024))
		fmt.Fprintf(w, "  Labels: %d\n", info.Labels)
		fmt.Fprintf(w, "  Min: %.4f\n", info.Min)
		fmt.Fprintf(w, "  Max: %.4f\n", info.Max)
		fmt.Fprintf(w, "  Mean: %.4f\n", info.Mean)
	}
}
