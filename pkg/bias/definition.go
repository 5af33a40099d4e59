package bias

import "fmt"

// VariableDef is the serializable form of one variable.
type VariableDef struct {
	Key    string    `json:"key"    yaml:"key"`
	Kind   Kind      `json:"kind"   yaml:"kind"`
	Levels []float64 `json:"levels" yaml:"levels"`
}

// Definition is the serializable form of a Space. Field variables precede
// voltage variables, each in registration order.
type Definition struct {
	Variables []VariableDef `json:"variables" yaml:"variables"`
}

// Definition returns the serializable form of s.
func (s *Space) Definition() Definition {
	vars := s.Variables()
	def := Definition{Variables: make([]VariableDef, 0, len(vars))}

	for _, v := range vars {
		def.Variables = append(def.Variables, VariableDef{Key: v.Key, Kind: v.Kind, Levels: v.Levels})
	}

	return def
}

// FromDefinition rebuilds a Space. Keys are re-derived from registration
// order and must match the stored ones.
func FromDefinition(def Definition) (*Space, error) {
	s := NewSpace()

	for _, v := range def.Variables {
		key, err := s.Append(v.Levels, v.Kind)
		if err != nil {
			return nil, err
		}

		if v.Key != "" && v.Key != key {
			return nil, fmt.Errorf("%w: stored key %q registers as %q", ErrUnknownKey, v.Key, key)
		}
	}

	return s, nil
}
