// Package completion tracks which bias indices have been computed.
package completion

import (
	"maps"
	"slices"
)

// Set is a set of bias indices. The zero value is an empty set ready to use.
type Set struct {
	items map[int]struct{}
}

// New returns a set holding the given indices.
func New(indices ...int) *Set {
	s := &Set{items: make(map[int]struct{}, len(indices))}
	for _, i := range indices {
		s.items[i] = struct{}{}
	}

	return s
}

// Add inserts indices.
func (s *Set) Add(indices ...int) {
	if s.items == nil {
		s.items = make(map[int]struct{}, len(indices))
	}

	for _, i := range indices {
		s.items[i] = struct{}{}
	}
}

// Has reports whether index is in the set.
func (s *Set) Has(index int) bool {
	_, ok := s.items[index]

	return ok
}

// Len returns the number of indices.
func (s *Set) Len() int {
	return len(s.items)
}

// Union adds every index of other to s.
func (s *Set) Union(other *Set) {
	if other == nil {
		return
	}

	for i := range other.items {
		s.Add(i)
	}
}

// Clone returns an independent copy.
func (s *Set) Clone() *Set {
	return &Set{items: maps.Clone(s.items)}
}

// Sorted returns the indices in ascending order.
func (s *Set) Sorted() []int {
	return slices.Sorted(maps.Keys(s.items))
}

// Remaining returns [0, n) minus the set, in ascending order.
func (s *Set) Remaining(n int) []int {
	out := make([]int, 0, max(n-len(s.items), 0))

	for i := range n {
		if !s.Has(i) {
			out = append(out, i)
		}
	}

	return out
}
