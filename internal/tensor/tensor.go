// Package tensor provides flat float32 activation buffers with
// explicit shapes. It exists to express and sanity-check the slicing
// that the interchange-variable addresses describe: extracting a
// [layers, heads, dims] sub-block from an activation tensor.
package tensor

import (
	"fmt"
)

// Tensor is a dense row-major float32 buffer with an explicit shape.
type Tensor struct {
	shape   []int
	strides []int
	data    []float32
}

// New allocates a zero-filled tensor of the given shape.
func New(shape ...int) (*Tensor, error) {
	n, err := elemCount(shape)
	if err != nil {
		return nil, err
	}
	return &Tensor{
		shape:   append([]int(nil), shape...),
		strides: rowMajorStrides(shape),
		data:    make([]float32, n),
	}, nil
}

// FromSlice wraps data in a tensor of the given shape. The data is
// copied; len(data) must equal the shape's element count.
func FromSlice(data []float32, shape ...int) (*Tensor, error) {
	n, err := elemCount(shape)
	if err != nil {
		return nil, err
	}
	if len(data) != n {
		return nil, fmt.Errorf("shape %v needs %d elements, got %d", shape, n, len(data))
	}
	t := &Tensor{
		shape:   append([]int(nil), shape...),
		strides: rowMajorStrides(shape),
		data:    make([]float32, n),
	}
	copy(t.data, data)
	return t, nil
}

// Shape returns a copy of the tensor's shape.
func (t *Tensor) Shape() []int {
	return append([]int(nil), t.shape...)
}

// Len returns the total number of elements.
func (t *Tensor) Len() int {
	return len(t.data)
}

// Data returns the underlying buffer. Callers must treat it as
// read-only.
func (t *Tensor) Data() []float32 {
	return t.data
}

// At returns the element at the given multi-index.
func (t *Tensor) At(idx ...int) (float32, error) {
	off, err := t.offset(idx)
	if err != nil {
		return 0, err
	}
	return t.data[off], nil
}

// Set assigns the element at the given multi-index.
func (t *Tensor) Set(v float32, idx ...int) error {
	off, err := t.offset(idx)
	if err != nil {
		return err
	}
	t.data[off] = v
	return nil
}

// Slice copies out the sub-tensor covering [lo, hi) along axis dim,
// keeping every other axis whole. Slicing a [layers, heads, dims]
// activation block along each axis in turn extracts the region an
// interchange-variable address names.
func (t *Tensor) Slice(dim, lo, hi int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.shape) {
		return nil, fmt.Errorf("axis %d out of range for shape %v", dim, t.shape)
	}
	if lo < 0 || hi > t.shape[dim] || lo >= hi {
		return nil, fmt.Errorf("slice [%d:%d) invalid for axis %d of length %d", lo, hi, dim, t.shape[dim])
	}

	outShape := t.Shape()
	outShape[dim] = hi - lo
	out, err := New(outShape...)
	if err != nil {
		return nil, err
	}

	// Walk the output index space and map each index back to the
	// source with the axis offset applied.
	idx := make([]int, len(outShape))
	src := make([]int, len(outShape))
	for i := 0; i < out.Len(); i++ {
		copy(src, idx)
		src[dim] += lo

		srcOff, _ := t.offset(src)
		out.data[i] = t.data[srcOff]

		incrementIndex(idx, outShape)
	}
	return out, nil
}

// Equal reports whether the two tensors have identical shapes and
// element-for-element identical contents.
func (t *Tensor) Equal(other *Tensor) bool {
	if len(t.shape) != len(other.shape) {
		return false
	}
	for i := range t.shape {
		if t.shape[i] != other.shape[i] {
			return false
		}
	}
	for i := range t.data {
		if t.data[i] != other.data[i] {
			return false
		}
	}
	return true
}

func (t *Tensor) offset(idx []int) (int, error) {
	if len(idx) != len(t.shape) {
		return 0, fmt.Errorf("index %v has %d axes, tensor has %d", idx, len(idx), len(t.shape))
	}
	off := 0
	for i, x := range idx {
		if x < 0 || x >= t.shape[i] {
			return 0, fmt.Errorf("index %d out of range for axis %d of length %d", x, i, t.shape[i])
		}
		off += x * t.strides[i]
	}
	return off, nil
}

func elemCount(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("tensor needs at least one axis")
	}
	n := 1
	for i, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("axis %d has non-positive length %d", i, d)
		}
		n *= d
	}
	return n, nil
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// incrementIndex advances a row-major multi-index by one position.
func incrementIndex(idx, shape []int) {
	for i := len(idx) - 1; i >= 0; i-- {
		idx[i]++
		if idx[i] < shape[i] {
			return
		}
		idx[i] = 0
	}
}
