package dataset

import (
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

const (
	imageMagic = 2051
	labelMagic = 2049

	// MNIST labels are digits 0-9.
	maxLabel = 9

	// Bounds on header fields so a corrupt or hostile header cannot drive
	// a huge or overflowing allocation.
	maxSide     = 1 << 12
	maxExamples = 1 << 30
	maxPixels   = 1 << 31
)

// Set holds one split of the dataset fully in memory. Images are stored
// row-major, one flattened image per record, with pixel intensities scaled
// into [0,1].
type Set struct {
	Images []float64
	Labels []int
	Rows   int
	Cols   int
}

// Len returns the number of examples in the set.
func (s *Set) Len() int { return len(s.Labels) }

// ImageSize returns the flattened length of one image.
func (s *Set) ImageSize() int { return s.Rows * s.Cols }

// Image returns the flattened pixels of example i. The returned slice
// aliases the set's backing array.
func (s *Set) Image(i int) []float64 {
	size := s.ImageSize()
	return s.Images[i*size : (i+1)*size]
}

// Subset returns a set view over the first n examples.
func (s *Set) Subset(n int) *Set {
	if n <= 0 || n >= s.Len() {
		return s
	}
	return &Set{
		Images: s.Images[:n*s.ImageSize()],
		Labels: s.Labels[:n],
		Rows:   s.Rows,
		Cols:   s.Cols,
	}
}

// LoadSet reads a paired images/labels IDX file set. Both files may be
// gzip-compressed.
func LoadSet(files Files) (*Set, error) {
	images, rows, cols, err := readImages(files.Images)
	if err != nil {
		return nil, errors.Wrapf(err, "read images %s", files.Images)
	}
	labels, err := readLabels(files.Labels)
	if err != nil {
		return nil, errors.Wrapf(err, "read labels %s", files.Labels)
	}
	if len(labels)*rows*cols != len(images) {
		return nil, errors.Errorf("image/label count mismatch: %d images, %d labels",
			len(images)/(rows*cols), len(labels))
	}
	return &Set{Images: images, Labels: labels, Rows: rows, Cols: cols}, nil
}

func readImages(path string) ([]float64, int, int, error) {
	r, closeFn, err := openMaybeGzip(path)
	if err != nil {
		return nil, 0, 0, err
	}
	defer closeFn()

	var hdr [16]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, 0, 0, errors.Wrap(err, "read header")
	}
	if magic := binary.BigEndian.Uint32(hdr[0:4]); magic != imageMagic {
		return nil, 0, 0, errors.Errorf("bad image magic %d", magic)
	}
	count := int(binary.BigEndian.Uint32(hdr[4:8]))
	rows := int(binary.BigEndian.Uint32(hdr[8:12]))
	cols := int(binary.BigEndian.Uint32(hdr[12:16]))
	if count <= 0 || rows <= 0 || cols <= 0 {
		return nil, 0, 0, errors.Errorf("bad dimensions %dx%dx%d", count, rows, cols)
	}
	if rows > maxSide || cols > maxSide || count > maxExamples {
		return nil, 0, 0, errors.Errorf("implausible dimensions %dx%dx%d", count, rows, cols)
	}
	total := int64(count) * int64(rows) * int64(cols)
	if total > maxPixels {
		return nil, 0, 0, errors.Errorf("image file claims %d pixels", total)
	}

	raw := make([]byte, total)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, 0, 0, errors.Wrap(err, "read pixels")
	}
	pixels := make([]float64, len(raw))
	for i, b := range raw {
		pixels[i] = float64(b) / 255.0
	}
	return pixels, rows, cols, nil
}

func readLabels(path string) ([]int, error) {
	r, closeFn, err := openMaybeGzip(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, errors.Wrap(err, "read header")
	}
	if magic := binary.BigEndian.Uint32(hdr[0:4]); magic != labelMagic {
		return nil, errors.Errorf("bad label magic %d", magic)
	}
	count := int(binary.BigEndian.Uint32(hdr[4:8]))
	if count <= 0 || count > maxExamples {
		return nil, errors.Errorf("bad label count %d", count)
	}

	raw := make([]byte, count)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, errors.Wrap(err, "read labels")
	}
	labels := make([]int, count)
	for i, b := range raw {
		if b > maxLabel {
			return nil, errors.Errorf("label %d out of range at record %d", b, i)
		}
		labels[i] = int(b)
	}
	return labels, nil
}

func openMaybeGzip(path string) (io.Reader, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open")
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, f.Close, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrap(err, "gzip")
	}
	closeFn := func() error {
		gz.Close()
		return f.Close()
	}
	return gz, closeFn, nil
}
