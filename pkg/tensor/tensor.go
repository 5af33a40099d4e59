// Package tensor holds the transmission result tensor of a sweep.
//
// A Tensor is indexed by (bias index, source contact, destination contact) and
// stored row-major in one flat slice. Every worker owns a Tensor of the full
// shape and writes only the bias indices it computes, so summing tensors from
// different workers is a disjoint union.
//
// Equal and NonZero compare tensors and inspect single bias points. Callers use
// them to check resumed or reduced state against an expected tensor.
package tensor

import (
	"errors"
	"fmt"
)

// Sentinel errors for tensor operations.
var (
	ErrInvalidShape  = errors.New("invalid tensor shape")
	ErrShapeMismatch = errors.New("tensor shape mismatch")
	ErrIndexRange    = errors.New("tensor index out of range")
	ErrPackedLength  = errors.New("packed payload length mismatch")
)

// Shape is the size of a Tensor.
type Shape struct {
	Points   int `json:"points"   yaml:"points"`
	Contacts int `json:"contacts" yaml:"contacts"`
}

// Validate reports whether the shape can back a tensor.
func (s Shape) Validate() error {
	if s.Points < 0 || s.Contacts < 1 {
		return fmt.Errorf("%w: %d points x %d contacts", ErrInvalidShape, s.Points, s.Contacts)
	}

	return nil
}

// Stride is the number of values stored per bias index.
func (s Shape) Stride() int {
	return s.Contacts * s.Contacts
}

// Len is the total number of values.
func (s Shape) Len() int {
	return s.Points * s.Stride()
}

// String formats the shape as points x contacts x contacts.
func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Points, s.Contacts, s.Contacts)
}

// Matrix is a square contact-by-contact transmission matrix. Row is the
// source contact and column the destination contact.
type Matrix [][]float64

// NewMatrix returns a zero n x n matrix.
func NewMatrix(n int) Matrix {
	m := make(Matrix, n)
	for i := range m {
		m[i] = make([]float64, n)
	}

	return m
}

// Square reports whether m is n x n.
func (m Matrix) Square(n int) bool {
	if len(m) != n {
		return false
	}

	for _, row := range m {
		if len(row) != n {
			return false
		}
	}

	return true
}

// Clone returns a deep copy of m.
func (m Matrix) Clone() Matrix {
	if m == nil {
		return nil
	}

	out := make(Matrix, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}

	return out
}

// Tensor is a (bias index, source, destination) array of float64.
type Tensor struct {
	shape Shape
	data  []float64
}

// New returns a zero tensor of the given shape.
func New(shape Shape) (*Tensor, error) {
	err := shape.Validate()
	if err != nil {
		return nil, err
	}

	return &Tensor{shape: shape, data: make([]float64, shape.Len())}, nil
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{shape: t.shape, data: append([]float64(nil), t.data...)}
}

// Set stores m at bias index.
func (t *Tensor) Set(index int, m Matrix) error {
	err := t.checkIndex(index)
	if err != nil {
		return err
	}

	if !m.Square(t.shape.Contacts) {
		return fmt.Errorf("%w: matrix is not %dx%d", ErrShapeMismatch, t.shape.Contacts, t.shape.Contacts)
	}

	base := index * t.shape.Stride()
	for src, row := range m {
		copy(t.data[base+src*t.shape.Contacts:], row)
	}

	return nil
}

// Matrix returns a copy of the matrix stored at bias index.
func (t *Tensor) Matrix(index int) (Matrix, error) {
	err := t.checkIndex(index)
	if err != nil {
		return nil, err
	}

	n := t.shape.Contacts
	m := NewMatrix(n)
	base := index * t.shape.Stride()

	for src := range m {
		copy(m[src], t.data[base+src*n:base+(src+1)*n])
	}

	return m, nil
}

// At returns one entry. It panics when the position is out of range.
func (t *Tensor) At(index, src, dst int) float64 {
	n := t.shape.Contacts
	if index < 0 || index >= t.shape.Points || src < 0 || src >= n || dst < 0 || dst >= n {
		panic(fmt.Sprintf("tensor: position (%d, %d, %d) outside %s", index, src, dst, t.shape))
	}

	return t.data[index*t.shape.Stride()+src*n+dst]
}

// Add sums other into t element-wise.
func (t *Tensor) Add(other *Tensor) error {
	if t.shape != other.shape {
		return fmt.Errorf("%w: %s vs %s", ErrShapeMismatch, t.shape, other.shape)
	}

	for i, v := range other.data {
		t.data[i] += v
	}

	return nil
}

// Merge returns the element-wise sum of a and b without modifying either.
func Merge(a, b *Tensor) (*Tensor, error) {
	out := a.Clone()

	err := out.Add(b)
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Equal reports whether both tensors have the same shape and identical values.
func (t *Tensor) Equal(other *Tensor) bool {
	if t.shape != other.shape {
		return false
	}

	for i, v := range t.data {
		if v != other.data[i] {
			return false
		}
	}

	return true
}

// NonZero reports whether any entry at bias index differs from zero.
func (t *Tensor) NonZero(index int) bool {
	if t.checkIndex(index) != nil {
		return false
	}

	stride := t.shape.Stride()
	for _, v := range t.data[index*stride : (index+1)*stride] {
		if v != 0 {
			return true
		}
	}

	return false
}

// Pack returns the values at the given bias indices, concatenated in order.
// The result has len(indices) x Contacts x Contacts entries.
func (t *Tensor) Pack(indices []int) ([]float64, error) {
	stride := t.shape.Stride()
	out := make([]float64, 0, len(indices)*stride)

	for _, index := range indices {
		err := t.checkIndex(index)
		if err != nil {
			return nil, err
		}

		out = append(out, t.data[index*stride:(index+1)*stride]...)
	}

	return out, nil
}

// Unpack assigns packed values produced by Pack back into the given bias
// indices. Values are assigned, not added, so unpacking the same index twice
// is idempotent. Nothing is written unless the whole payload is valid.
func (t *Tensor) Unpack(indices []int, packed []float64) error {
	stride := t.shape.Stride()
	if len(packed) != len(indices)*stride {
		return fmt.Errorf("%w: %d values for %d indices of stride %d", ErrPackedLength, len(packed), len(indices), stride)
	}

	for _, index := range indices {
		err := t.checkIndex(index)
		if err != nil {
			return err
		}
	}

	for i, index := range indices {
		copy(t.data[index*stride:(index+1)*stride], packed[i*stride:(i+1)*stride])
	}

	return nil
}

func (t *Tensor) checkIndex(index int) error {
	if index < 0 || index >= t.shape.Points {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexRange, index, t.shape.Points)
	}

	return nil
}
