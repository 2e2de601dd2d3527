// Package volumeio persists label volumes in directory containers.
//
// A container is a directory named <name>.vol holding any number of
// datasets addressed by key. Each dataset is two files:
//
//	<key>.yaml    header: shape, dtype, voxel size, checksum
//	<key>.raw.xz  xz-compressed little-endian uint32 voxels in (Z, Y, X) order
//
// The header is written last, so a dataset without a header is treated as
// absent.
package volumeio

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"tissueclean/internal/models"
)

const (
	// ContainerExt is the directory suffix identifying a container
	ContainerExt = ".vol"

	headerExt   = ".yaml"
	payloadExt  = ".raw.xz"
	dtypeUint32 = "uint32"
)

var (
	// ErrNotFound reports a missing container
	ErrNotFound = errors.New("container not found")

	// ErrKeyNotFound reports a missing dataset key inside a container
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidKey reports an empty or path-like dataset key
	ErrInvalidKey = errors.New("invalid key")

	// ErrCorrupt reports a payload that does not match its header
	ErrCorrupt = errors.New("corrupt dataset")
)

// Header describes one dataset
type Header struct {
	Shape         [3]int    `yaml:"shape"`
	DType         string    `yaml:"dtype"`
	ElementSizeUm []float64 `yaml:"element_size_um,omitempty"`
	Compression   string    `yaml:"compression"`
	Blake3        string    `yaml:"blake3"`
	Created       time.Time `yaml:"created"`
}

func (h *Header) shape() models.Shape {
	return models.Shape{Z: h.Shape[0], Y: h.Shape[1], X: h.Shape[2]}
}

func (h *Header) voxelSize() *models.VoxelSize {
	if len(h.ElementSizeUm) != 3 {
		return nil
	}
	return &models.VoxelSize{Z: h.ElementSizeUm[0], Y: h.ElementSizeUm[1], X: h.ElementSizeUm[2]}
}

func validKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: key cannot be empty", ErrInvalidKey)
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

func checkContainer(container string) error {
	info, err := os.Stat(container)
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrNotFound, container)
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrNotFound, container)
	}
	return nil
}

// readHeader loads the header of key, reporting available keys when absent
func readHeader(container, key string) (*Header, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	if err := checkContainer(container); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(container, key+headerExt))
	if os.IsNotExist(err) {
		available, _ := Keys(container)
		return nil, fmt.Errorf("%w: %q not found in %s, available keys: %v",
			ErrKeyNotFound, key, filepath.Base(container), available)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	var h Header
	if err := yaml.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("%w: header of %q: %v", ErrCorrupt, key, err)
	}
	if h.DType != dtypeUint32 {
		return nil, fmt.Errorf("%w: unsupported dtype %q", ErrCorrupt, h.DType)
	}
	if !h.shape().Valid() {
		return nil, fmt.Errorf("%w: invalid shape %v", ErrCorrupt, h.Shape)
	}
	return &h, nil
}

// Load reads the dataset stored under key
func Load(container, key string) (*models.LabelVolume, error) {
	h, err := readHeader(container, key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(container, key+payloadExt))
	if err != nil {
		return nil, fmt.Errorf("%w: payload of %q: %v", ErrCorrupt, key, err)
	}
	defer f.Close()

	r, err := xz.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("%w: payload of %q: %v", ErrCorrupt, key, err)
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: payload of %q: %v", ErrCorrupt, key, err)
	}

	shape := h.shape()
	if len(raw) != 4*shape.Len() {
		return nil, fmt.Errorf("%w: payload of %q holds %d bytes, expected %d",
			ErrCorrupt, key, len(raw), 4*shape.Len())
	}
	sum := blake3.Sum256(raw)
	if hex.EncodeToString(sum[:]) != h.Blake3 {
		return nil, fmt.Errorf("%w: checksum mismatch for %q", ErrCorrupt, key)
	}

	vol := models.NewLabelVolume(shape)
	for i := range vol.Data {
		vol.Data[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	vol.VoxelSize = h.voxelSize()
	return vol, nil
}

// ReadVoxelSize returns the voxel size recorded for key, or nil when the
// dataset carries none.
func ReadVoxelSize(container, key string) (*models.VoxelSize, error) {
	h, err := readHeader(container, key)
	if err != nil {
		return nil, err
	}
	return h.voxelSize(), nil
}

// Save writes vol under key, replacing any dataset already stored there.
// The container directory is created when missing.
func Save(container, key string, vol *models.LabelVolume) error {
	if err := validKey(key); err != nil {
		return err
	}
	if !vol.Valid() || len(vol.Data) != vol.Len() {
		return fmt.Errorf("cannot save volume of shape %s with %d voxels", vol.Shape, len(vol.Data))
	}
	if err := os.MkdirAll(container, 0755); err != nil {
		return fmt.Errorf("failed to create container: %w", err)
	}

	raw := make([]byte, 4*len(vol.Data))
	for i, l := range vol.Data {
		binary.LittleEndian.PutUint32(raw[4*i:], l)
	}
	sum := blake3.Sum256(raw)

	var payload bytes.Buffer
	w, err := xz.NewWriter(&payload)
	if err != nil {
		return fmt.Errorf("failed to create compressor: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("failed to compress payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to compress payload: %w", err)
	}

	h := Header{
		Shape:       [3]int{vol.Z, vol.Y, vol.X},
		DType:       dtypeUint32,
		Compression: "xz",
		Blake3:      hex.EncodeToString(sum[:]),
		Created:     time.Now().UTC().Truncate(time.Second),
	}
	if vs := vol.VoxelSize; vs != nil {
		h.ElementSizeUm = []float64{vs.Z, vs.Y, vs.X}
	}
	header, err := yaml.Marshal(&h)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	// Drop the old header first so a crash never pairs it with a new payload
	headerPath := filepath.Join(container, key+headerExt)
	if err := os.Remove(headerPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to replace dataset: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(container, key+payloadExt), payload.Bytes()); err != nil {
		return err
	}
	return writeFileAtomic(headerPath, header)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Keys lists the dataset keys of a container in sorted order
func Keys(container string) ([]string, error) {
	if err := checkContainer(container); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(container)
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, headerExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, headerExt))
	}
	sort.Strings(keys)
	return keys, nil
}

// ListContainers returns the containers directly inside dir, sorted by name
func ListContainers(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var containers []string
	for _, e := range entries {
		if e.IsDir() && strings.HasSuffix(e.Name(), ContainerExt) {
			containers = append(containers, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(containers)
	return containers, nil
}

// Name returns the container name without directory or extension
func Name(container string) string {
	return strings.TrimSuffix(filepath.Base(container), ContainerExt)
}

// Move relocates a container into dstDir and returns its new path
func Move(container, dstDir string) (string, error) {
	if err := checkContainer(container); err != nil {
		return "", err
	}
	dst := filepath.Join(dstDir, filepath.Base(container))
	if filepath.Clean(dst) == filepath.Clean(container) {
		return container, nil
	}
	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create destination: %w", err)
	}
	if err := os.Rename(container, dst); err != nil {
		return "", fmt.Errorf("failed to move %s: %w", filepath.Base(container), err)
	}
	return dst, nil
}
