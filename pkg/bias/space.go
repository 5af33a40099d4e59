// Package bias encodes a multi-dimensional bias grid as a single linear index.
//
// A Space holds field-like (B) and voltage-like (V) variables. Every integer in
// [0, NumBiases()) names exactly one point of the Cartesian product of all
// variable levels, using mixed-radix digits: field variables first, then
// voltage variables, each in registration order.
package bias

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Sentinel errors for bias space construction and decoding.
var (
	ErrInvalidKind     = errors.New("invalid bias kind")
	ErrEmptyLevels     = errors.New("bias variable has no levels")
	ErrIndexOutOfRange = errors.New("bias index out of range")
	ErrSpaceTooLarge   = errors.New("bias space exceeds index range")
	ErrUnknownKey      = errors.New("unknown bias variable")
	ErrLevelCount      = errors.New("level tuple length mismatch")
)

// Kind identifies the physical role of a bias variable.
type Kind string

// Supported kinds.
const (
	KindField   Kind = "B"
	KindVoltage Kind = "V"
)

// ParseKind accepts "B"/"field" and "V"/"voltage", case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "b", "field":
		return KindField, nil
	case "v", "voltage":
		return KindVoltage, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// Valid reports whether k is a supported kind.
func (k Kind) Valid() bool {
	return k == KindField || k == KindVoltage
}

// Variable is one bias dimension.
type Variable struct {
	Key    string
	Kind   Kind
	Levels []float64
}

// Size returns the number of levels.
func (v Variable) Size() int {
	return len(v.Levels)
}

// Space is an ordered set of bias variables. The zero value is an empty
// space with a single bias point.
type Space struct {
	field   []Variable
	voltage []Variable
	total   int
}

// NewSpace creates an empty bias space.
func NewSpace() *Space {
	return &Space{total: 1}
}

// Append registers a variable and returns its key (B1, B2, ... or V1, V2, ...).
// The levels are copied.
func (s *Space) Append(levels []float64, kind Kind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
	}

	if len(levels) == 0 {
		return "", ErrEmptyLevels
	}

	total := s.NumBiases()
	if total > math.MaxInt/len(levels) {
		return "", fmt.Errorf("%w: %d x %d", ErrSpaceTooLarge, total, len(levels))
	}

	v := Variable{Kind: kind, Levels: append([]float64(nil), levels...)}

	switch kind {
	case KindField:
		v.Key = string(KindField) + strconv.Itoa(len(s.field)+1)
		s.field = append(s.field, v)
	case KindVoltage:
		v.Key = string(KindVoltage) + strconv.Itoa(len(s.voltage)+1)
		s.voltage = append(s.voltage, v)
	}

	s.total = total * len(levels)

	return v.Key, nil
}

// NumBiases returns the product of every variable's level count.
func (s *Space) NumBiases() int {
	if s.total == 0 {
		return 1
	}

	return s.total
}

// NumVariables returns the number of registered variables.
func (s *Space) NumVariables() int {
	return len(s.field) + len(s.voltage)
}

// Variables returns every variable in digit order: field first, then voltage.
// Level slices are copies.
func (s *Space) Variables() []Variable {
	out := make([]Variable, 0, s.NumVariables())

	for _, v := range s.digits() {
		out = append(out, Variable{Key: v.Key, Kind: v.Kind, Levels: append([]float64(nil), v.Levels...)})
	}

	return out
}

// Keys returns the variable keys in digit order.
func (s *Space) Keys() []string {
	keys := make([]string, 0, s.NumVariables())

	for _, v := range s.digits() {
		keys = append(keys, v.Key)
	}

	return keys
}

// Variable looks up a variable by key.
func (s *Space) Variable(key string) (Variable, error) {
	for _, v := range s.digits() {
		if v.Key == key {
			return Variable{Key: v.Key, Kind: v.Kind, Levels: append([]float64(nil), v.Levels...)}, nil
		}
	}

	return Variable{}, fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

// DecodeLevels returns the level index of every variable at index, in digit order.
func (s *Space) DecodeLevels(index int) ([]int, error) {
	if index < 0 || index >= s.NumBiases() {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, s.NumBiases())
	}

	digits := s.digits()
	levels := make([]int, len(digits))
	rest := index

	for i, v := range digits {
		levels[i] = rest % v.Size()
		rest /= v.Size()
	}

	return levels, nil
}

// Decode returns the concrete field values followed by the voltage values at index.
func (s *Space) Decode(index int) (field, voltage []float64, err error) {
	levels, err := s.DecodeLevels(index)
	if err != nil {
		return nil, nil, err
	}

	field = make([]float64, len(s.field))
	for i, v := range s.field {
		field[i] = v.Levels[levels[i]]
	}

	voltage = make([]float64, len(s.voltage))
	for i, v := range s.voltage {
		voltage[i] = v.Levels[levels[len(s.field)+i]]
	}

	return field, voltage, nil
}

// Encode is the inverse of DecodeLevels.
func (s *Space) Encode(levels []int) (int, error) {
	digits := s.digits()
	if len(levels) != len(digits) {
		return 0, fmt.Errorf("%w: got %d, want %d", ErrLevelCount, len(levels), len(digits))
	}

	index := 0
	place := 1

	for i, v := range digits {
		if levels[i] < 0 || levels[i] >= v.Size() {
			return 0, fmt.Errorf("%w: %s level %d not in [0, %d)", ErrIndexOutOfRange, v.Key, levels[i], v.Size())
		}

		index += levels[i] * place
		place *= v.Size()
	}

	return index, nil
}

// Point formats the bias values at index as "B1=1.000 V1=0.150".
func (s *Space) Point(index int) (string, error) {
	levels, err := s.DecodeLevels(index)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(levels))

	for i, v := range s.digits() {
		parts = append(parts, fmt.Sprintf("%s=%.3f", v.Key, v.Levels[levels[i]]))
	}

	return strings.Join(parts, " "), nil
}

// String lists every variable with its levels.
func (s *Space) String() string {
	var b strings.Builder

	for _, v := range s.digits() {
		fmt.Fprintf(&b, "Bias List %s:", v.Key)

		for _, l := range v.Levels {
			fmt.Fprintf(&b, " %.3f", l)
		}

		b.WriteByte('\n')
	}

	return b.String()
}

func (s *Space) digits() []Variable {
	out := make([]Variable, 0, len(s.field)+len(s.voltage))
	out = append(out, s.field...)

	return append(out, s.voltage...)
}
