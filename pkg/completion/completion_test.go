package completion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestSet_ZeroValue(t *testing.T) {
	t.Parallel()

	var s Set

	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Has(0))
	assert.Empty(t, s.Sorted())

	s.Add(3, 1, 3)

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, []int{1, 3}, s.Sorted())
}

func TestSet_Union(t *testing.T) {
	t.Parallel()

	a := New(0, 2)
	b := New(2, 5)

	a.Union(b)
	a.Union(nil)

	assert.Equal(t, []int{0, 2, 5}, a.Sorted())
	assert.Equal(t, []int{2, 5}, b.Sorted())
}

func TestSet_Clone(t *testing.T) {
	t.Parallel()

	a := New(1)
	b := a.Clone()
	b.Add(2)

	assert.False(t, a.Has(2))
	assert.True(t, b.Has(1))
}

func TestSet_Remaining(t *testing.T) {
	t.Parallel()

	s := New(0, 3, 4, 99)

	assert.Equal(t, []int{1, 2, 5}, s.Remaining(6))
	assert.Empty(t, New(0, 1).Remaining(2))
	assert.Empty(t, New().Remaining(0))
}

func TestSet_RemainingPartitionsDomain(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 200).Draw(t, "n")
		done := rapid.SliceOf(rapid.IntRange(0, 250)).Draw(t, "done")
		s := New(done...)

		remaining := s.Remaining(n)

		for i := 1; i < len(remaining); i++ {
			assert.Less(t, remaining[i-1], remaining[i])
		}

		count := 0

		for i := range n {
			if s.Has(i) {
				count++
			}
		}

		assert.Equal(t, n, count+len(remaining))

		for _, i := range remaining {
			assert.False(t, s.Has(i))
		}
	})
}
