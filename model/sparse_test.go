package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSparseVecOrdering(t *testing.T) {
	assert := require.New(t)

	var s SparseVec[VariableID, float64]
	for _, k := range []VariableID{7, 2, 9, 0, 4} {
		s.Set(k, float64(k)+0.5)
	}

	assert.Equal(5, s.Len())
	assert.Equal([]VariableID{0, 2, 4, 7, 9}, s.Keys)

	v, ok := s.Get(7)
	assert.True(ok)
	assert.Equal(7.5, v)

	_, ok = s.Get(3)
	assert.False(ok)

	// overwrite keeps a single entry
	s.Set(7, 1.0)
	assert.Equal(5, s.Len())
	v, _ = s.Get(7)
	assert.Equal(1.0, v)
}

func TestSparseVecErase(t *testing.T) {
	assert := require.New(t)

	var s SparseVec[VariableID, float64]
	s.Set(1, 1)
	s.Set(2, 2)
	s.Set(3, 3)

	assert.True(s.Erase(2))
	assert.False(s.Erase(2))
	assert.Equal([]VariableID{1, 3}, s.Keys)

	_, ok := s.Get(2)
	assert.False(ok)
}

func TestSparseVecForEachStopsEarly(t *testing.T) {
	assert := require.New(t)

	var s SparseVec[VariableID, float64]
	s.Set(0, 1)
	s.Set(1, 2)
	s.Set(2, 3)

	var seen []VariableID
	s.ForEach(func(k VariableID, _ float64) bool {
		seen = append(seen, k)
		return len(seen) < 2
	})
	assert.Equal([]VariableID{0, 1}, seen)
}

func TestSparseVecMerge(t *testing.T) {
	assert := require.New(t)

	mk := func(pairs ...float64) SparseVec[VariableID, float64] {
		var s SparseVec[VariableID, float64]
		for i := 0; i+1 < len(pairs); i += 2 {
			s.Set(VariableID(pairs[i]), pairs[i+1])
		}
		return s
	}

	a := mk(0, 1, 2, 2)
	b := mk(2, 3, 4, 4)
	assert.NoError(a.Merge(&b, Sum))
	v, _ := a.Get(2)
	assert.Equal(5.0, v)
	v, _ = a.Get(4)
	assert.Equal(4.0, v)

	a = mk(0, 1)
	b = mk(0, 9)
	assert.NoError(a.Merge(&b, Replace[float64]))
	v, _ = a.Get(0)
	assert.Equal(9.0, v)

	a = mk(0, 1)
	b = mk(0, 9)
	assert.ErrorIs(a.Merge(&b, FailOnCollision[float64]), ErrDuplicateKey)
}

func TestSparseVecClone(t *testing.T) {
	assert := require.New(t)

	var s SparseVec[QuadKey, float64]
	s.Set(NewQuadKey(1, 2), 4)

	c := s.Clone()
	c.Set(NewQuadKey(0, 0), 1)

	assert.Equal(1, s.Len())
	assert.Equal(2, c.Len())
}
