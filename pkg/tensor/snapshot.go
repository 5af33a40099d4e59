package tensor

import "fmt"

// Snapshot is the exported, serializable form of a Tensor.
type Snapshot struct {
	Shape  Shape     `json:"shape"  yaml:"shape"`
	Values []float64 `json:"values" yaml:"values"`
}

// Snapshot returns a serializable copy of t.
func (t *Tensor) Snapshot() Snapshot {
	return Snapshot{Shape: t.shape, Values: append([]float64(nil), t.data...)}
}

// FromSnapshot rebuilds a Tensor from its serialized form.
func FromSnapshot(s Snapshot) (*Tensor, error) {
	err := s.Shape.Validate()
	if err != nil {
		return nil, err
	}

	if len(s.Values) != s.Shape.Len() {
		return nil, fmt.Errorf("%w: %d values for shape %s", ErrPackedLength, len(s.Values), s.Shape)
	}

	return &Tensor{shape: s.Shape, data: append([]float64(nil), s.Values...)}, nil
}
